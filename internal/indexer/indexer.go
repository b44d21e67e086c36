// Package indexer implements index_file and index_repository (spec
// §4.9): walking a repository's working tree, chunking and summarizing
// each file, and handing the result to the memory service.
//
// Grounded on the teacher's BulkStore loop shape (per-item try/continue
// aggregation, internal/memory/service.go) and on
// yungbote-neurobridge-backend's embed_chunks.go for the
// errgroup.SetLimit-bounded concurrent fan-out.
package indexer

import (
	"bufio"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/foldhq/fold/internal/chunk"
	"github.com/foldhq/fold/internal/fingerprint"
	"github.com/foldhq/fold/internal/llmclient"
	"github.com/foldhq/fold/internal/memory"
	"github.com/foldhq/fold/internal/relstore"
)

// MaxFileSize is spec §4.9's per-file size ceiling.
const MaxFileSize = 100 * 1024

// DefaultConcurrency is spec §6.4's INDEXING_CONCURRENCY default.
const DefaultConcurrency = 4

// Outcome is one file's index_file result.
type Outcome string

const (
	OutcomeSkipped  Outcome = "skipped"
	OutcomeInserted Outcome = "inserted"
	OutcomeUpdated  Outcome = "updated"
	OutcomeFailed   Outcome = "failed"
)

// FileResult is the per-file result returned by IndexFile.
type FileResult struct {
	Path    string
	Outcome Outcome
	Reason  string
	Memory  *relstore.Memory
}

// RepositoryResult aggregates an index_repository run per spec §4.9.
type RepositoryResult struct {
	Total    int
	Inserted int
	Updated  int
	Skipped  int
	Failed   int
	Files    []FileResult
}

// LinkEnqueuer schedules the async linker step for a new/updated
// memory. Defined here rather than depending on internal/queue
// directly, so the indexer stays usable without a queue backend in
// tests.
type LinkEnqueuer interface {
	EnqueueLink(ctx context.Context, projectID, memoryID string) error
}

// CommitEnqueuer schedules the git_commit job after a repository pass.
type CommitEnqueuer interface {
	EnqueueGitCommit(ctx context.Context, projectID, repositoryID string) error
}

// Indexer orchestrates file discovery, chunking, summarization, and
// memory creation.
type Indexer struct {
	memories       *memory.Service
	llm            *llmclient.Client
	chunkCfg       chunk.Config
	linkEnqueuer   LinkEnqueuer
	commitEnqueuer CommitEnqueuer
	concurrency    int
	logger         *slog.Logger
}

func New(memories *memory.Service, llm *llmclient.Client, linkEnqueuer LinkEnqueuer, commitEnqueuer CommitEnqueuer, concurrency int, logger *slog.Logger) *Indexer {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Indexer{
		memories: memories, llm: llm, chunkCfg: chunk.DefaultConfig(),
		linkEnqueuer: linkEnqueuer, commitEnqueuer: commitEnqueuer,
		concurrency: concurrency, logger: logger,
	}
}

// WithChunkConfig overrides the default chunker configuration (spec
// §6.4's LINE_CHUNK_SIZE/LINE_OVERLAP/MIN_CHUNK_LINES/MAX_CHUNK_LINES).
func (idx *Indexer) WithChunkConfig(cfg chunk.Config) *Indexer {
	idx.chunkCfg = cfg
	return idx
}

// IndexFile implements spec §4.9's index_file steps 1-7 for a single
// repository-relative path.
func (idx *Indexer) IndexFile(ctx context.Context, projectID, projectSlug string, repo *relstore.Repository, root, relPath string, excludeGlobs []string) FileResult {
	res := FileResult{Path: relPath}

	if matchesAny(relPath, excludeGlobs) {
		res.Outcome = OutcomeSkipped
		res.Reason = "excluded"
		return res
	}

	absPath := filepath.Join(root, relPath)
	info, err := os.Stat(absPath)
	if err != nil {
		res.Outcome = OutcomeFailed
		res.Reason = err.Error()
		return res
	}
	if info.Size() == 0 {
		res.Outcome = OutcomeSkipped
		res.Reason = "empty"
		return res
	}
	if info.Size() > MaxFileSize {
		res.Outcome = OutcomeSkipped
		res.Reason = "too large"
		return res
	}

	content, err := os.ReadFile(absPath)
	if err != nil {
		res.Outcome = OutcomeFailed
		res.Reason = err.Error()
		return res
	}
	text := string(content)

	language := detectLanguage(relPath)
	id, contentHash, err := fingerprint.FileFingerprint(projectSlug, relPath, text)
	if err != nil {
		res.Outcome = OutcomeFailed
		res.Reason = err.Error()
		return res
	}

	existing, getErr := idx.memories.Get(id)
	if getErr == nil && existing != nil && existing.ContentHash == contentHash {
		res.Outcome = OutcomeSkipped
		res.Reason = "unchanged"
		res.Memory = existing
		return res
	}

	chunks := idx.chunkCfg.Chunk(text, language)

	title, ctxSummary, keywords, tags, synthesized := idx.summarize(ctx, text, relPath, language)

	isUpdate := getErr == nil && existing != nil

	var result *memory.Result
	if isUpdate {
		result, err = idx.memories.Update(ctx, projectID, id, memory.Patch{
			Title: &title, Context: &ctxSummary, Keywords: &keywords, Tags: &tags,
			Content: &text, SynthesizedSummary: &synthesized, NewChunks: chunks,
		})
	} else {
		in := memory.CreateInput{
			Source: memory.SourceFile, MemoryType: "code", Content: text, Title: title,
			Language: language, FilePath: relPath, RepositoryID: repo.ID, Keywords: keywords, Tags: tags,
			Context: ctxSummary, SynthesizedSummary: synthesized, Chunks: chunks,
		}
		result, err = idx.memories.Create(ctx, projectID, in)
	}
	if err != nil {
		res.Outcome = OutcomeFailed
		res.Reason = err.Error()
		return res
	}

	if synthesized {
		idx.logger.Debug("index_file: llm unavailable, used synthesized summary", "path", relPath)
	}
	for _, w := range result.Warnings {
		idx.logger.Warn("index_file: sub-component degraded", "path", relPath, "component", w.Component, "error", w.Err)
	}

	if idx.linkEnqueuer != nil {
		if err := idx.linkEnqueuer.EnqueueLink(ctx, projectID, result.Memory.ID); err != nil {
			idx.logger.Warn("index_file: failed to enqueue linker task", "path", relPath, "error", err)
		}
	}

	res.Memory = result.Memory
	if isUpdate {
		res.Outcome = OutcomeUpdated
	} else {
		res.Outcome = OutcomeInserted
	}
	return res
}

// summarize calls summarize_code, falling back to a deterministic
// synthesized summary on LLM exhaustion (spec §4.9 step 5, scenario S6).
func (idx *Indexer) summarize(ctx context.Context, content, relPath, language string) (title, contextSummary string, keywords, tags []string, synthesized bool) {
	if idx.llm != nil {
		if summary, err := idx.llm.SummarizeCode(ctx, content, relPath, language); err == nil {
			return summary.Title, summary.Summary, summary.Keywords, summary.Tags, false
		}
	}
	return synthesizedSummary(content, relPath)
}

// synthesizedSummary implements scenario S6's deterministic fallback:
// the title is the first fn/struct/impl name (or type/class equivalent)
// or the filename; the context is the first ~400 characters.
func synthesizedSummary(content, relPath string) (title, contextSummary string, keywords, tags []string, synthesized bool) {
	title = filepath.Base(relPath)
	scanner := bufio.NewScanner(strings.NewReader(content))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if name := extractDeclName(line); name != "" {
			title = name
			break
		}
	}
	contextSummary = firstNChars(content, 400)
	return title, contextSummary, nil, nil, true
}

var declPrefixes = []string{"func ", "type ", "struct ", "impl ", "class ", "interface ", "fn "}

func extractDeclName(line string) string {
	for _, prefix := range declPrefixes {
		if strings.HasPrefix(line, prefix) {
			rest := strings.TrimSpace(strings.TrimPrefix(line, prefix))
			end := strings.IndexAny(rest, " ({<[")
			if end == -1 {
				end = len(rest)
			}
			if end > 0 {
				return rest[:end]
			}
		}
	}
	return ""
}

func firstNChars(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func detectLanguage(path string) string {
	switch filepath.Ext(path) {
	case ".go":
		return "go"
	case ".rs":
		return "rust"
	case ".ts", ".tsx":
		return "typescript"
	case ".js", ".jsx":
		return "javascript"
	case ".py":
		return "python"
	case ".md", ".markdown":
		return "markdown"
	default:
		return ""
	}
}

func matchesAny(path string, globs []string) bool {
	for _, g := range globs {
		if ok, _ := filepath.Match(g, path); ok {
			return true
		}
		if ok, _ := filepath.Match(g, filepath.Base(path)); ok {
			return true
		}
	}
	return false
}

// IndexRepository walks root under includeGlobs minus excludeGlobs and
// runs IndexFile with bounded concurrency (spec §4.9).
func (idx *Indexer) IndexRepository(ctx context.Context, projectID, projectSlug string, repo *relstore.Repository, root string, includeGlobs, excludeGlobs []string) (*RepositoryResult, error) {
	paths, err := discoverFiles(root, includeGlobs, excludeGlobs)
	if err != nil {
		return nil, err
	}

	result := &RepositoryResult{Total: len(paths), Files: make([]FileResult, len(paths))}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(idx.concurrency)

	for i, p := range paths {
		i, p := i, p
		g.Go(func() error {
			fr := idx.IndexFile(gctx, projectID, projectSlug, repo, root, p, excludeGlobs)
			mu.Lock()
			result.Files[i] = fr
			switch fr.Outcome {
			case OutcomeInserted:
				result.Inserted++
			case OutcomeUpdated:
				result.Updated++
			case OutcomeSkipped:
				result.Skipped++
			case OutcomeFailed:
				result.Failed++
			}
			mu.Unlock()
			return nil // per-file failures are aggregated, not fatal to the walk
		})
	}
	_ = g.Wait()

	if idx.commitEnqueuer != nil {
		if err := idx.commitEnqueuer.EnqueueGitCommit(ctx, projectID, repo.ID); err != nil {
			idx.logger.Warn("index_repository: failed to enqueue git_commit job", "error", err)
		}
	}

	return result, nil
}

func discoverFiles(root string, includeGlobs, excludeGlobs []string) ([]string, error) {
	var out []string
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			if info.Name() == ".git" || info.Name() == "fold" {
				return filepath.SkipDir
			}
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if len(includeGlobs) > 0 && !matchesAny(rel, includeGlobs) {
			return nil
		}
		if matchesAny(rel, excludeGlobs) {
			return nil
		}
		out = append(out, rel)
		return nil
	})
	return out, err
}
