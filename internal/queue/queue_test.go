package queue

import (
	"context"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foldhq/fold/internal/relstore"
)

func setupJobStore(t *testing.T) *relstore.JobStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "fold.db")
	db, err := relstore.Open(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return relstore.NewJobStore(db)
}

func TestEnqueueGitCommitInsertsPendingJob(t *testing.T) {
	jobs := setupJobStore(t)
	enq := NewEnqueuer(jobs)

	require.NoError(t, enq.EnqueueGitCommit(context.Background(), "p1", "r1"))

	pending, err := jobs.ListByStatus(relstore.JobPending)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, JobTypeGitCommit, pending[0].JobType)
}

func TestPoolProcessesJobAndMarksCompleted(t *testing.T) {
	jobs := setupJobStore(t)
	enq := NewEnqueuer(jobs)
	require.NoError(t, enq.EnqueueGitCommit(context.Background(), "p1", "r1"))

	var handled int32
	handlers := map[string]Handler{
		JobTypeGitCommit: func(ctx context.Context, job *relstore.Job) error {
			atomic.AddInt32(&handled, 1)
			return nil
		},
	}
	pool := NewPool(jobs, handlers, Config{PollInterval: 10 * time.Millisecond, Concurrency: 1}, nil)
	pool.Start()
	defer pool.Stop()

	require.Eventually(t, func() bool { return atomic.LoadInt32(&handled) == 1 }, time.Second, 10*time.Millisecond)

	completed, err := jobs.ListByStatus(relstore.JobCompleted)
	require.NoError(t, err)
	require.Len(t, completed, 1)
}

func TestPoolRetriesFailedHandlerThenGivesUp(t *testing.T) {
	jobs := setupJobStore(t)
	enq := NewEnqueuer(jobs)
	job, err := enq.Enqueue(JobTypeSyncMetadata, SyncMetadataPayload{ProjectID: "p1", RepositoryID: "r1"}, 0, 1)
	require.NoError(t, err)

	var attempts int32
	handlers := map[string]Handler{
		JobTypeSyncMetadata: func(ctx context.Context, j *relstore.Job) error {
			atomic.AddInt32(&attempts, 1)
			return assert.AnError
		},
	}
	pool := NewPool(jobs, handlers, Config{PollInterval: 10 * time.Millisecond, Concurrency: 1, BackoffBase: time.Millisecond, MaxBackoff: 5 * time.Millisecond}, nil)
	pool.Start()
	defer pool.Stop()

	require.Eventually(t, func() bool {
		got, err := jobs.GetByID(job.ID)
		return err == nil && got.Status == relstore.JobFailed
	}, 2*time.Second, 10*time.Millisecond)

	assert.GreaterOrEqual(t, int(atomic.LoadInt32(&attempts)), 1)
}

func TestPoolFailsUnknownJobTypeImmediately(t *testing.T) {
	jobs := setupJobStore(t)
	enq := NewEnqueuer(jobs)
	job, err := enq.Enqueue("not_a_real_type", map[string]string{}, 0, 1)
	require.NoError(t, err)

	pool := NewPool(jobs, map[string]Handler{}, Config{PollInterval: 10 * time.Millisecond, Concurrency: 1, BackoffBase: time.Millisecond, MaxBackoff: 5 * time.Millisecond}, nil)
	pool.Start()
	defer pool.Stop()

	require.Eventually(t, func() bool {
		got, err := jobs.GetByID(job.ID)
		return err == nil && (got.Status == relstore.JobRetry || got.Status == relstore.JobFailed)
	}, time.Second, 10*time.Millisecond)
}

func TestBackoffDelayGrowsWithAttemptsAndCapsAtMax(t *testing.T) {
	base := 10 * time.Millisecond
	max := 30 * time.Millisecond

	d0 := backoffDelay(0, base, max)
	d5 := backoffDelay(5, base, max)

	assert.Greater(t, d0, time.Duration(0))
	// d0 is within 25% of base, d5 within 25% of max
	assert.Less(t, d0, d5)
	assert.LessOrEqual(t, d5, max+max/4) // allow jitter headroom above the cap
}
