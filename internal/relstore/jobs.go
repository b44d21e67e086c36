package relstore

import (
	"database/sql"
	"fmt"

	"github.com/foldhq/fold/internal/foldxerr"
)

const jobColumns = `id, job_type, status, payload, priority, scheduled_at,
	locked_at, locked_by, attempts, max_retries, last_error,
	total_items, processed_items, failed_items, created_at, updated_at`

// JobStore handles the job queue's persistence (spec §4.10). SQLite's
// single-writer discipline (db.SetMaxOpenConns(1)) makes the claim
// UPDATE below atomic without needing SELECT ... FOR UPDATE.
type JobStore struct {
	db *DB
}

func NewJobStore(db *DB) *JobStore {
	return &JobStore{db: db}
}

func (s *JobStore) Insert(j *Job) error {
	_, err := s.db.Exec(fmt.Sprintf(`
		INSERT INTO jobs (%s) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, jobColumns),
		j.ID, j.JobType, string(j.Status), j.Payload, j.Priority, nullIfZero64(j.ScheduledAt),
		nullIfZero64(j.LockedAt), nullIfEmpty(j.LockedBy), j.Attempts, j.MaxRetries, nullIfEmpty(j.LastError),
		nullIfZero(j.TotalItems), j.ProcessedItems, j.FailedItems, j.CreatedAt, j.UpdatedAt,
	)
	if err != nil {
		return foldxerr.Wrap(foldxerr.Storage, err, "insert job")
	}
	return nil
}

func (s *JobStore) GetByID(id string) (*Job, error) {
	row := s.db.QueryRow(fmt.Sprintf(`SELECT %s FROM jobs WHERE id = ?`, jobColumns), id)
	j, err := scanJob(row)
	if err == sql.ErrNoRows {
		return nil, foldxerr.New(foldxerr.NotFound, "job not found: "+id)
	}
	if err != nil {
		return nil, foldxerr.Wrap(foldxerr.Storage, err, "scan job")
	}
	return j, nil
}

// Claim atomically picks the highest-priority pending or retry job that
// is due (scheduled_at <= now, or unset) and not already locked, and
// marks it running under workerID. Returns nil, nil if nothing is
// claimable. Grounded on the pack's heartbeat/ticker worker-loop
// pattern (itsddvn-goclaw), adapted here to SQLite's single-writer
// serialization instead of a distributed lock.
func (s *JobStore) Claim(workerID string, now int64) (*Job, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, foldxerr.Wrap(foldxerr.Storage, err, "begin claim tx")
	}
	defer tx.Rollback()

	row := tx.QueryRow(fmt.Sprintf(`
		SELECT %s FROM jobs
		WHERE status IN ('pending', 'retry')
		  AND (scheduled_at IS NULL OR scheduled_at <= ?)
		ORDER BY priority DESC, scheduled_at ASC, created_at ASC
		LIMIT 1
	`, jobColumns), now)

	job, err := scanJob(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, foldxerr.Wrap(foldxerr.Storage, err, "scan claimable job")
	}

	res, err := tx.Exec(`
		UPDATE jobs SET status = 'running', locked_at = ?, locked_by = ?, attempts = attempts + 1, updated_at = ?
		WHERE id = ? AND status IN ('pending', 'retry')
	`, now, workerID, now, job.ID)
	if err != nil {
		return nil, foldxerr.Wrap(foldxerr.Storage, err, "claim job")
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		// raced with another claimer between select and update
		return nil, nil
	}
	if err := tx.Commit(); err != nil {
		return nil, foldxerr.Wrap(foldxerr.Storage, err, "commit claim")
	}

	job.Status = JobRunning
	job.LockedAt = now
	job.LockedBy = workerID
	job.Attempts++
	return job, nil
}

// Heartbeat refreshes locked_at so the stale-job sweep doesn't reclaim
// a job that is still being actively worked.
func (s *JobStore) Heartbeat(id string, now int64) error {
	res, err := s.db.Exec(`UPDATE jobs SET locked_at = ?, updated_at = ? WHERE id = ? AND status = 'running'`, now, now, id)
	if err != nil {
		return foldxerr.Wrap(foldxerr.Storage, err, "heartbeat job")
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return foldxerr.New(foldxerr.Conflict, "job not running or not found: "+id)
	}
	return nil
}

// Complete marks a job finished successfully.
func (s *JobStore) Complete(id string, now int64) error {
	_, err := s.db.Exec(`UPDATE jobs SET status = 'completed', locked_at = NULL, locked_by = NULL, updated_at = ? WHERE id = ?`, now, id)
	if err != nil {
		return foldxerr.Wrap(foldxerr.Storage, err, "complete job")
	}
	return nil
}

// Fail records a failure. If attempts have not exhausted max_retries the
// job goes back to retry with the given next scheduled_at (the caller
// computes exponential backoff with jitter); otherwise it's terminal.
func (s *JobStore) Fail(id string, lastErr string, nextScheduledAt int64, now int64) error {
	job, err := s.GetByID(id)
	if err != nil {
		return err
	}
	status := JobRetry
	if job.Attempts > job.MaxRetries {
		status = JobFailed
	}
	_, err = s.db.Exec(`
		UPDATE jobs SET status = ?, locked_at = NULL, locked_by = NULL,
			last_error = ?, scheduled_at = ?, updated_at = ?
		WHERE id = ?
	`, string(status), lastErr, nextScheduledAt, now, id)
	if err != nil {
		return foldxerr.Wrap(foldxerr.Storage, err, "fail job")
	}
	return nil
}

// RecoverStale requeues jobs whose lock has gone silent for at least
// staleAfterSecs (worker crashed mid-job), per spec §4.10's recovery
// sweep. locked_at is an absolute Unix-seconds timestamp, so the cutoff
// compared against it must be now minus the threshold, not the bare
// threshold itself.
func (s *JobStore) RecoverStale(staleAfterSecs, now int64) (int64, error) {
	cutoff := now - staleAfterSecs
	res, err := s.db.Exec(`
		UPDATE jobs SET status = 'retry', locked_at = NULL, locked_by = NULL,
			attempts = attempts + 1, last_error = 'heartbeat lost', updated_at = ?
		WHERE status = 'running' AND locked_at IS NOT NULL AND locked_at < ?
	`, now, cutoff)
	if err != nil {
		return 0, foldxerr.Wrap(foldxerr.Storage, err, "recover stale jobs")
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// UpdateProgress advances processed/failed item counters for a
// long-running batch job (e.g. index_repository over many files).
func (s *JobStore) UpdateProgress(id string, processedDelta, failedDelta int, now int64) error {
	_, err := s.db.Exec(`
		UPDATE jobs SET processed_items = processed_items + ?, failed_items = failed_items + ?, updated_at = ?
		WHERE id = ?
	`, processedDelta, failedDelta, now, id)
	if err != nil {
		return foldxerr.Wrap(foldxerr.Storage, err, "update job progress")
	}
	return nil
}

func (s *JobStore) ListByStatus(status JobStatus) ([]*Job, error) {
	rows, err := s.db.Query(fmt.Sprintf(`SELECT %s FROM jobs WHERE status = ? ORDER BY priority DESC, created_at ASC`, jobColumns), string(status))
	if err != nil {
		return nil, foldxerr.Wrap(foldxerr.Storage, err, "list jobs by status")
	}
	defer rows.Close()

	var out []*Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, foldxerr.Wrap(foldxerr.Storage, err, "scan job")
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

func scanJob(row rowScanner) (*Job, error) {
	var j Job
	var status string
	var scheduledAt, lockedAt sql.NullInt64
	var lockedBy, lastError sql.NullString
	var totalItems sql.NullInt64

	if err := row.Scan(
		&j.ID, &j.JobType, &status, &j.Payload, &j.Priority, &scheduledAt,
		&lockedAt, &lockedBy, &j.Attempts, &j.MaxRetries, &lastError,
		&totalItems, &j.ProcessedItems, &j.FailedItems, &j.CreatedAt, &j.UpdatedAt,
	); err != nil {
		return nil, err
	}
	j.Status = JobStatus(status)
	j.ScheduledAt = scheduledAt.Int64
	j.LockedAt = lockedAt.Int64
	j.LockedBy = lockedBy.String
	j.LastError = lastError.String
	j.TotalItems = int(totalItems.Int64)
	return &j, nil
}
