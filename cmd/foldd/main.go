package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/foldhq/fold/internal/blob"
	"github.com/foldhq/fold/internal/chunk"
	"github.com/foldhq/fold/internal/config"
	"github.com/foldhq/fold/internal/embedder"
	"github.com/foldhq/fold/internal/gitsink"
	"github.com/foldhq/fold/internal/indexer"
	"github.com/foldhq/fold/internal/linker"
	"github.com/foldhq/fold/internal/linkrunner"
	"github.com/foldhq/fold/internal/llmclient"
	"github.com/foldhq/fold/internal/logging"
	"github.com/foldhq/fold/internal/memory"
	"github.com/foldhq/fold/internal/queue"
	"github.com/foldhq/fold/internal/relstore"
	"github.com/foldhq/fold/internal/vectorstore"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.LogLevel, cfg.LogFile)
	slog.SetDefault(logger)

	db, err := relstore.Open(cfg.DBPath)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	projects := relstore.NewProjectStore(db)
	repos := relstore.NewRepositoryStore(db)
	memories := relstore.NewMemoryStore(db)
	chunks := relstore.NewChunkStore(db)
	links := relstore.NewLinkStore(db)
	jobs := relstore.NewJobStore(db)
	embCache := relstore.NewEmbeddingCacheStore(db, cfg.Embedder.IndexModel)

	blobs := blob.New(cfg.FoldRoot)

	llmClient := buildLLMClient(cfg, logger)
	emb, err := buildEmbedder(cfg, embCache)
	if err != nil {
		logger.Error("failed to build embedder", "error", err)
		os.Exit(1)
	}

	vectors := vectorstore.NewQdrantClient(cfg.VectorStore.Endpoint, cfg.VectorStore.APIKey, cfg.VectorStore.Timeout)
	collMgr := vectorstore.NewCollectionManager(vectors, cfg.VectorStore.CollectionPrefix, cfg.Embedder.Dimension)

	memSvc := memory.New(projects, memories, chunks, links, blobs, vectors, collMgr, emb, llmClient, logger)
	linkerSvc := linker.New(memories, links, blobs, vectors, collMgr, llmClient, logger)
	linkRunner := linkrunner.New(projects, memSvc, emb, linkerSvc, logger)

	enq := queue.NewEnqueuer(jobs)

	idx := indexer.New(memSvc, llmClient, linkRunner, enq, cfg.Indexing.Concurrency, logger).
		WithChunkConfig(chunk.Config{
			LineChunkSize: cfg.Indexing.LineChunkSize,
			LineOverlap:   cfg.Indexing.LineOverlap,
			MinChunkLines: cfg.Indexing.MinChunkLines,
			MaxChunkLines: cfg.Indexing.MaxChunkLines,
		})

	collab := &collaborators{
		projects: projects,
		repos:    repos,
		memories: memSvc,
		memStore: memories,
		llm:      llmClient,
		idx:      idx,
		history:  newHistoryIndexer(memSvc, memories, links, logger),
		git:      gitsink.New(),
		logger:   logger,
	}

	pool := queue.NewPool(jobs, buildHandlers(collab), queue.Config{
		WorkerID:          "foldd",
		Concurrency:       cfg.Queue.Workers,
		HeartbeatInterval: cfg.Queue.HeartbeatInterval,
		SweepInterval:     cfg.Queue.SweepInterval,
		StaleAfter:        cfg.Queue.StaleAfter,
		BackoffBase:       cfg.Queue.BaseBackoff,
		MaxBackoff:        cfg.Queue.MaxBackoff,
	}, logger)

	pool.Start()
	logger.Info("foldd started", "db", cfg.DBPath, "workers", cfg.Queue.Workers)

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)
	<-done

	logger.Info("shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Queue.ShutdownGracePeriod)
	defer cancel()

	stopped := make(chan struct{})
	go func() {
		pool.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
		logger.Info("foldd stopped cleanly")
	case <-ctx.Done():
		logger.Warn("foldd shutdown grace period exceeded, exiting anyway")
	}
}

func buildLLMClient(cfg *config.Config, logger *slog.Logger) *llmclient.Client {
	var providers []llmclient.Provider
	for _, p := range cfg.LLM.Providers {
		if !p.Enabled {
			continue
		}
		switch p.Name {
		case "anthropic":
			ap, err := llmclient.NewAnthropicProvider(p.APIKey, p.Model, cfg.LLM.RequestTimeout)
			if err != nil {
				logger.Warn("skipping anthropic provider", "error", err)
				continue
			}
			providers = append(providers, ap)
		default:
			providers = append(providers, llmclient.NewHTTPProvider(p.Name, p.Endpoint, p.APIKey, p.Model, cfg.LLM.RequestTimeout))
		}
	}
	return llmclient.New(logger, providers...)
}

func buildEmbedder(cfg *config.Config, cache embedder.Cache) (*embedder.Embedder, error) {
	var regs []embedder.Registration
	if cfg.Embedder.IndexEndpoint != "" {
		regs = append(regs, embedder.Registration{
			Provider:       embedder.NewHTTPProvider("index", cfg.Embedder.IndexEndpoint, cfg.Embedder.IndexAPIKey, cfg.Embedder.IndexModel, cfg.Embedder.Dimension, cfg.Embedder.Timeout),
			IndexPriority:  1,
			SearchPriority: 2,
		})
	}
	if cfg.Embedder.SearchEndpoint != "" && cfg.Embedder.SearchEndpoint != cfg.Embedder.IndexEndpoint {
		regs = append(regs, embedder.Registration{
			Provider:       embedder.NewHTTPProvider("search", cfg.Embedder.SearchEndpoint, cfg.Embedder.SearchAPIKey, cfg.Embedder.SearchModel, cfg.Embedder.Dimension, cfg.Embedder.Timeout),
			IndexPriority:  2,
			SearchPriority: 1,
		})
	}
	return embedder.New(cache, regs...)
}
