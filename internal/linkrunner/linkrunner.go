// Package linkrunner schedules the A-MEM linker as a fire-and-forget
// task after a memory is created (spec §4.8: "the linker runs
// asynchronously... it must never cause a user-facing failure").
//
// The known job types enumerated in spec §4.10 do not include a linker
// job, and an unknown type fails immediately rather than retrying, so
// linking is not persisted through internal/queue's JobStore. Instead
// it runs as an in-process goroutine with its own retry budget, grounded
// on steveyegge-beads' dolt/store.go withRetry: a fresh
// backoff.ExponentialBackOff wrapping backoff.Retry.
package linkrunner

import (
	"context"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/foldhq/fold/internal/embedder"
	"github.com/foldhq/fold/internal/foldxerr"
	"github.com/foldhq/fold/internal/linker"
	"github.com/foldhq/fold/internal/memory"
	"github.com/foldhq/fold/internal/relstore"
)

// MaxElapsedTime bounds the retry budget for a single linking attempt
// chain before it is abandoned and logged.
const MaxElapsedTime = 5 * time.Minute

// Runner schedules Linker.LinkNew calls off the request path.
type Runner struct {
	projects *relstore.ProjectStore
	memories *memory.Service
	embed    *embedder.Embedder
	linker   *linker.Linker
	logger   *slog.Logger
}

func New(projects *relstore.ProjectStore, memories *memory.Service, embed *embedder.Embedder, l *linker.Linker, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{projects: projects, memories: memories, embed: embed, linker: l, logger: logger}
}

// EnqueueLink implements internal/indexer.LinkEnqueuer: it returns
// immediately and runs the linking attempt (with retries) in the
// background.
func (r *Runner) EnqueueLink(ctx context.Context, projectID, memoryID string) error {
	if r.embed == nil || r.linker == nil {
		return nil
	}
	go r.runWithRetry(projectID, memoryID)
	return nil
}

func (r *Runner) runWithRetry(projectID, memoryID string) {
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = MaxElapsedTime

	err := backoff.Retry(func() error {
		return r.linkOnce(context.Background(), projectID, memoryID)
	}, bo)
	if err != nil {
		r.logger.Warn("linker: gave up after retry budget exhausted", "memory_id", memoryID, "error", err)
	}
}

func (r *Runner) linkOnce(ctx context.Context, projectID, memoryID string) error {
	project, err := r.projects.GetByID(projectID)
	if err != nil {
		return backoff.Permanent(err)
	}

	m, err := r.memories.Get(memoryID)
	if err != nil {
		return backoff.Permanent(err)
	}

	vectors, err := r.embed.EmbedForIndex(ctx, []string{m.Content})
	if err != nil {
		return err // transient: retry
	}
	if len(vectors) == 0 {
		return backoff.Permanent(foldxerr.New(foldxerr.Embed, "embedder returned no vectors for linking"))
	}

	return r.linker.LinkNew(ctx, project.Slug, m, vectors[0])
}
