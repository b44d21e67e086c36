package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"github.com/foldhq/fold/internal/foldxerr"
	"github.com/foldhq/fold/internal/gitsink"
	"github.com/foldhq/fold/internal/indexer"
	"github.com/foldhq/fold/internal/llmclient"
	"github.com/foldhq/fold/internal/memory"
	"github.com/foldhq/fold/internal/queue"
	"github.com/foldhq/fold/internal/relstore"
)

// collaborators bundles everything a job handler needs, so buildHandlers
// stays a flat map literal.
type collaborators struct {
	projects *relstore.ProjectStore
	repos    *relstore.RepositoryStore
	memories *memory.Service
	memStore *relstore.MemoryStore
	llm      *llmclient.Client
	idx      *indexer.Indexer
	history  *historyIndexer
	git      *gitsink.Sink
	logger   *slog.Logger
}

// buildHandlers registers a queue.Handler for every job type spec §4.10
// enumerates. process_webhook and sync_metadata have no producer in this
// build (webhook ingestion and external metadata sync are out of scope),
// so their handlers exist only to document that and fail predictably if
// something ever enqueues one.
func buildHandlers(c *collaborators) map[string]queue.Handler {
	return map[string]queue.Handler{
		queue.JobTypeIndexRepo:       c.handleIndexRepo,
		queue.JobTypeReindexRepo:     c.handleIndexRepo,
		queue.JobTypeIndexHistory:    c.handleIndexHistory,
		queue.JobTypeGenerateSummary: c.handleGenerateSummary,
		queue.JobTypeGitCommit:       c.handleGitCommit,
		queue.JobTypeProcessWebhook:  c.handleUnsupported,
		queue.JobTypeSyncMetadata:    c.handleUnsupported,
	}
}

func (c *collaborators) handleIndexRepo(ctx context.Context, job *relstore.Job) error {
	var p queue.IndexRepoPayload
	if err := json.Unmarshal([]byte(job.Payload), &p); err != nil {
		return foldxerr.Wrap(foldxerr.InvalidInput, err, "unmarshal index_repo payload")
	}

	project, err := c.projects.GetByID(p.ProjectID)
	if err != nil {
		return err
	}
	repo, err := c.repos.GetByID(p.RepositoryID)
	if err != nil {
		return err
	}

	result, err := c.idx.IndexRepository(ctx, project.ID, project.Slug, repo, project.RootPath, project.IncludeGlobs, project.ExcludeGlobs)
	if err != nil {
		return err
	}
	c.logger.Info("index_repo complete", "project", project.Slug, "total", result.Total,
		"inserted", result.Inserted, "updated", result.Updated, "skipped", result.Skipped, "failed", result.Failed)

	if sha, err := headSHA(ctx, project.RootPath); err == nil {
		if err := c.repos.UpdateLastIndexedCommit(repo.ID, sha, time.Now().Unix()); err != nil {
			c.logger.Warn("index_repo: failed to bump last_indexed_commit", "repo", repo.ID, "error", err)
		}
	}
	return nil
}

// headSHA resolves the current commit for a working tree, used to
// record the repository's last-indexed position after a walk.
func headSHA(ctx context.Context, root string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", "rev-parse", "HEAD")
	cmd.Dir = root
	out, err := cmd.Output()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

func (c *collaborators) handleIndexHistory(ctx context.Context, job *relstore.Job) error {
	var p queue.IndexHistoryPayload
	if err := json.Unmarshal([]byte(job.Payload), &p); err != nil {
		return foldxerr.Wrap(foldxerr.InvalidInput, err, "unmarshal index_history payload")
	}

	project, err := c.projects.GetByID(p.ProjectID)
	if err != nil {
		return err
	}
	return c.history.Run(ctx, project.ID, project.Slug, p.RepositoryID, project.RootPath, p.MaxCommits)
}

func (c *collaborators) handleGenerateSummary(ctx context.Context, job *relstore.Job) error {
	var p queue.GenerateSummaryPayload
	if err := json.Unmarshal([]byte(job.Payload), &p); err != nil {
		return foldxerr.Wrap(foldxerr.InvalidInput, err, "unmarshal generate_summary payload")
	}

	m, err := c.memStore.GetByID(p.MemoryID)
	if err != nil {
		return err
	}
	if m == nil {
		return foldxerr.New(foldxerr.NotFound, "memory not found: "+p.MemoryID)
	}

	summary, err := c.llm.SummarizeCode(ctx, m.Content, m.FilePath, m.Language)
	if err != nil {
		return err
	}

	synthesized := false
	_, err = c.memories.Update(ctx, p.ProjectID, m.ID, memory.Patch{
		Title:              &summary.Title,
		Context:            &summary.Summary,
		Keywords:           &summary.Keywords,
		Tags:               &summary.Tags,
		SynthesizedSummary: &synthesized,
	})
	return err
}

func (c *collaborators) handleGitCommit(ctx context.Context, job *relstore.Job) error {
	var p queue.GitCommitPayload
	if err := json.Unmarshal([]byte(job.Payload), &p); err != nil {
		return foldxerr.Wrap(foldxerr.InvalidInput, err, "unmarshal git_commit payload")
	}

	project, err := c.projects.GetByID(p.ProjectID)
	if err != nil {
		return err
	}

	result, err := c.git.Commit(ctx, project.RootPath, project.Slug)
	if err != nil {
		return err
	}
	if result.Committed {
		c.logger.Info("git_commit: fold tree committed", "project", project.Slug, "sha", result.CommitSHA)
	}
	return nil
}

func (c *collaborators) handleUnsupported(ctx context.Context, job *relstore.Job) error {
	return foldxerr.New(foldxerr.InvalidInput, "job type not implemented in this deployment: "+job.JobType)
}
