// Package queue implements the durable job queue and worker pool (spec
// §4.10): atomic claim, heartbeat, retry-with-backoff, and a recovery
// sweep for lost workers.
//
// Grounded on the teacher's heartbeat.Service (itsddvn-goclaw): a
// mutex-guarded running/cancel pair driving a background loop, started
// and stopped idempotently. The atomic claim itself is
// internal/relstore.JobStore.Claim, whose single-writer SQLite
// transaction plays the role of the teacher's row-level exclusion.
package queue

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/foldhq/fold/internal/foldxerr"
	"github.com/foldhq/fold/internal/relstore"
)

// Known job types (spec §4.10). A job whose type has no registered
// handler is failed with InvalidInput through the same retry path as a
// handler error: it is rescheduled with backoff until max_retries is
// exhausted, and is not marked failed on its first attempt.
const (
	JobTypeIndexRepo       = "index_repo"
	JobTypeReindexRepo     = "reindex_repo"
	JobTypeIndexHistory    = "index_history"
	JobTypeProcessWebhook  = "process_webhook"
	JobTypeGenerateSummary = "generate_summary"
	JobTypeSyncMetadata    = "sync_metadata"
	JobTypeGitCommit       = "git_commit"
)

// Defaults per spec §4.10.
const (
	DefaultHeartbeatInterval = 30 * time.Second
	DefaultSweepInterval     = 60 * time.Second
	DefaultStaleAfter        = 5 * time.Minute
	DefaultBackoffBase       = 1 * time.Minute
	DefaultMaxBackoff        = 2 * time.Hour
	DefaultMaxRetries        = 5
	DefaultConcurrency       = 4
)

// Handler processes one job's payload. Returning an error puts the job
// through the retry/fail transition; returning nil completes it.
type Handler func(ctx context.Context, job *relstore.Job) error

// Config tunes a Pool's timing (spec §4.10's named intervals).
type Config struct {
	WorkerID          string
	Concurrency       int
	PollInterval      time.Duration
	HeartbeatInterval time.Duration
	SweepInterval     time.Duration
	StaleAfter        time.Duration
	BackoffBase       time.Duration
	MaxBackoff        time.Duration
}

func (c *Config) applyDefaults() {
	if c.WorkerID == "" {
		c.WorkerID = "foldd"
	}
	if c.Concurrency <= 0 {
		c.Concurrency = DefaultConcurrency
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 2 * time.Second
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = DefaultSweepInterval
	}
	if c.StaleAfter <= 0 {
		c.StaleAfter = DefaultStaleAfter
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = DefaultBackoffBase
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = DefaultMaxBackoff
	}
}

// Pool runs a bounded set of worker goroutines that claim and process
// jobs from a JobStore until Stop is called.
type Pool struct {
	jobs     *relstore.JobStore
	handlers map[string]Handler
	cfg      Config
	logger   *slog.Logger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewPool constructs a Pool. handlers maps a job type to the function
// that processes it; a job whose type is absent from this map is failed
// with InvalidInput on claim and then retried like any other failure.
func NewPool(jobs *relstore.JobStore, handlers map[string]Handler, cfg Config, logger *slog.Logger) *Pool {
	cfg.applyDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Pool{jobs: jobs, handlers: handlers, cfg: cfg, logger: logger}
}

// Start launches the worker goroutines and the recovery sweep loop.
func (p *Pool) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.running = true

	for i := 0; i < p.cfg.Concurrency; i++ {
		p.wg.Add(1)
		go p.workerLoop(ctx, i)
	}
	p.wg.Add(1)
	go p.sweepLoop(ctx)

	p.logger.Info("job queue started", "worker_id", p.cfg.WorkerID, "concurrency", p.cfg.Concurrency)
}

// Stop signals every worker goroutine to exit and waits for them to
// drain their current job.
func (p *Pool) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.cancel()
	p.running = false
	p.mu.Unlock()

	p.wg.Wait()
	p.logger.Info("job queue stopped", "worker_id", p.cfg.WorkerID)
}

func (p *Pool) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *Pool) workerLoop(ctx context.Context, index int) {
	defer p.wg.Done()
	workerID := workerLockID(p.cfg.WorkerID, index)
	ticker := time.NewTicker(p.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.claimAndRun(ctx, workerID)
		}
	}
}

func (p *Pool) claimAndRun(ctx context.Context, workerID string) {
	job, err := p.jobs.Claim(workerID, time.Now().Unix())
	if err != nil {
		p.logger.Warn("job claim failed", "worker_id", workerID, "error", err)
		return
	}
	if job == nil {
		return
	}
	p.run(ctx, job, workerID)
}

func (p *Pool) run(ctx context.Context, job *relstore.Job, workerID string) {
	handler, ok := p.handlers[job.JobType]
	if !ok {
		p.fail(job, foldxerr.New(foldxerr.InvalidInput, "unknown job type: "+job.JobType))
		return
	}

	hbCtx, stopHeartbeat := context.WithCancel(ctx)
	defer stopHeartbeat()
	go p.heartbeatLoop(hbCtx, job.ID)

	if err := handler(ctx, job); err != nil {
		p.logger.Warn("job handler failed", "job_id", job.ID, "job_type", job.JobType, "error", err)
		p.fail(job, err)
		return
	}

	if err := p.jobs.Complete(job.ID, time.Now().Unix()); err != nil {
		p.logger.Error("job complete transition failed", "job_id", job.ID, "error", err)
	}
}

func (p *Pool) heartbeatLoop(ctx context.Context, jobID string) {
	ticker := time.NewTicker(p.cfg.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := p.jobs.Heartbeat(jobID, time.Now().Unix()); err != nil {
				p.logger.Warn("job heartbeat failed", "job_id", jobID, "error", err)
			}
		}
	}
}

func (p *Pool) fail(job *relstore.Job, cause error) {
	next := time.Now().Add(backoffDelay(job.Attempts, p.cfg.BackoffBase, p.cfg.MaxBackoff)).Unix()
	if err := p.jobs.Fail(job.ID, cause.Error(), next, time.Now().Unix()); err != nil {
		p.logger.Error("job fail transition failed", "job_id", job.ID, "error", err)
	}
}

func (p *Pool) sweepLoop(ctx context.Context) {
	defer p.wg.Done()
	ticker := time.NewTicker(p.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := p.jobs.RecoverStale(int64(p.cfg.StaleAfter.Seconds()), time.Now().Unix())
			if err != nil {
				p.logger.Warn("stale job recovery sweep failed", "error", err)
				continue
			}
			if n > 0 {
				p.logger.Info("recovered stale jobs", "count", n)
			}
		}
	}
}

// backoffDelay implements spec §4.10's retry schedule:
// min(base*2^attempts, max) with +/-25% jitter, via a fresh
// ExponentialBackOff advanced to the given attempt count (BackOff
// instances are stateful, so each call gets its own).
func backoffDelay(attempts int, base, max time.Duration) time.Duration {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = base
	bo.MaxInterval = max
	bo.Multiplier = 2
	bo.RandomizationFactor = 0.25
	bo.MaxElapsedTime = 0
	bo.Reset() // start from base, not the constructor's default interval

	var delay time.Duration
	for i := 0; i <= attempts; i++ {
		delay = bo.NextBackOff()
	}
	return delay
}

func workerLockID(base string, index int) string {
	return base + "-" + strconv.Itoa(index)
}
