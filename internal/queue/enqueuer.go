package queue

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/foldhq/fold/internal/foldxerr"
	"github.com/foldhq/fold/internal/relstore"
)

// DefaultPriority is used by enqueue helpers that don't take an explicit
// priority argument.
const DefaultPriority = 0

// Enqueuer inserts jobs of the known types (spec §4.10). It implements
// internal/indexer's CommitEnqueuer so the indexer can schedule the
// post-repository-walk git_commit job without importing this package's
// worker machinery.
type Enqueuer struct {
	jobs *relstore.JobStore
}

func NewEnqueuer(jobs *relstore.JobStore) *Enqueuer {
	return &Enqueuer{jobs: jobs}
}

// Enqueue inserts a pending job of the given type with a JSON-marshaled
// payload. An unregistered job type is accepted here; the pool fails it
// with InvalidInput at claim time, through its ordinary retry path.
func (e *Enqueuer) Enqueue(jobType string, payload any, priority, maxRetries int) (*relstore.Job, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, foldxerr.Wrap(foldxerr.InvalidInput, err, "marshal job payload")
	}
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	now := time.Now().Unix()
	job := &relstore.Job{
		ID: uuid.NewString(), JobType: jobType, Status: relstore.JobPending,
		Payload: string(body), Priority: priority, ScheduledAt: now,
		MaxRetries: maxRetries, CreatedAt: now, UpdatedAt: now,
	}
	if err := e.jobs.Insert(job); err != nil {
		return nil, err
	}
	return job, nil
}

// GitCommitPayload is the payload for a git_commit job (spec §4.9,
// §4.12's auto-commit step).
type GitCommitPayload struct {
	ProjectID    string `json:"project_id"`
	RepositoryID string `json:"repository_id"`
}

// EnqueueGitCommit implements internal/indexer.CommitEnqueuer.
func (e *Enqueuer) EnqueueGitCommit(ctx context.Context, projectID, repositoryID string) error {
	_, err := e.Enqueue(JobTypeGitCommit, GitCommitPayload{ProjectID: projectID, RepositoryID: repositoryID}, DefaultPriority, DefaultMaxRetries)
	return err
}

// IndexRepoPayload is the payload for index_repo/reindex_repo jobs.
type IndexRepoPayload struct {
	ProjectID    string `json:"project_id"`
	RepositoryID string `json:"repository_id"`
}

func (e *Enqueuer) EnqueueIndexRepo(projectID, repositoryID string, priority int) error {
	_, err := e.Enqueue(JobTypeIndexRepo, IndexRepoPayload{ProjectID: projectID, RepositoryID: repositoryID}, priority, DefaultMaxRetries)
	return err
}

func (e *Enqueuer) EnqueueReindexRepo(projectID, repositoryID string, priority int) error {
	_, err := e.Enqueue(JobTypeReindexRepo, IndexRepoPayload{ProjectID: projectID, RepositoryID: repositoryID}, priority, DefaultMaxRetries)
	return err
}

// IndexHistoryPayload is the payload for a bounded git-log backfill job.
type IndexHistoryPayload struct {
	ProjectID    string `json:"project_id"`
	RepositoryID string `json:"repository_id"`
	MaxCommits   int    `json:"max_commits"`
}

func (e *Enqueuer) EnqueueIndexHistory(projectID, repositoryID string, maxCommits int) error {
	_, err := e.Enqueue(JobTypeIndexHistory, IndexHistoryPayload{ProjectID: projectID, RepositoryID: repositoryID, MaxCommits: maxCommits}, DefaultPriority, DefaultMaxRetries)
	return err
}

// WebhookPayload carries a raw provider webhook event for async processing.
type WebhookPayload struct {
	ProjectID string `json:"project_id"`
	Provider  string `json:"provider"`
	Event     string `json:"event"`
	Body      string `json:"body"`
}

func (e *Enqueuer) EnqueueProcessWebhook(p WebhookPayload) error {
	_, err := e.Enqueue(JobTypeProcessWebhook, p, DefaultPriority+5, DefaultMaxRetries)
	return err
}

// GenerateSummaryPayload requests a re-summarization pass for a memory
// whose auto-generated title/context should be refreshed.
type GenerateSummaryPayload struct {
	ProjectID string `json:"project_id"`
	MemoryID  string `json:"memory_id"`
}

func (e *Enqueuer) EnqueueGenerateSummary(projectID, memoryID string) error {
	_, err := e.Enqueue(JobTypeGenerateSummary, GenerateSummaryPayload{ProjectID: projectID, MemoryID: memoryID}, DefaultPriority, DefaultMaxRetries)
	return err
}

// SyncMetadataPayload requests a metadata refresh from the project's
// git host (labels, PR state) for repositories tracking one.
type SyncMetadataPayload struct {
	ProjectID    string `json:"project_id"`
	RepositoryID string `json:"repository_id"`
}

func (e *Enqueuer) EnqueueSyncMetadata(projectID, repositoryID string) error {
	_, err := e.Enqueue(JobTypeSyncMetadata, SyncMetadataPayload{ProjectID: projectID, RepositoryID: repositoryID}, DefaultPriority, DefaultMaxRetries)
	return err
}
