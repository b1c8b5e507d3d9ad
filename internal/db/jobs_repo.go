package db

import (
	"context"
	"time"

	"expirywatch/internal/types"
)

// JobLockRepository implements a distributed job lock over the job_locks
// table. Overlapping scheduler triggers of the same task skip cleanly
// instead of double-processing a day's alerts.
type JobLockRepository struct {
	db DBTX
}

// NewJobLockRepository creates a new JobLockRepository backed by the given
// database connection (pool or transaction).
func NewJobLockRepository(db DBTX) *JobLockRepository {
	return &JobLockRepository{db: db}
}

// Acquire attempts to take the named lock for workerID with the given TTL.
// Returns true when the lock was taken, false when another live worker holds
// it. An expired lock row is stolen in the same statement, so a crashed
// worker cannot wedge the schedule.
func (r *JobLockRepository) Acquire(ctx context.Context, lockID string, workerID string, ttl time.Duration) (bool, error) {
	tag, err := r.db.Exec(ctx,
		`INSERT INTO job_locks (lock_id, worker_id, expires_at)
		 VALUES ($1, $2, NOW() + $3)
		 ON CONFLICT (lock_id) DO UPDATE
		   SET worker_id = EXCLUDED.worker_id,
		       expires_at = EXCLUDED.expires_at
		   WHERE job_locks.expires_at < NOW()`,
		lockID,
		workerID,
		ttl,
	)
	if err != nil {
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to acquire job lock", err)
	}
	return tag.RowsAffected() > 0, nil
}

// Release drops the lock if this worker still owns it. Best effort: a lock
// left behind expires via its TTL.
func (r *JobLockRepository) Release(ctx context.Context, lockID string, workerID string) error {
	_, err := r.db.Exec(ctx,
		`DELETE FROM job_locks WHERE lock_id = $1 AND worker_id = $2`,
		lockID,
		workerID,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to release job lock", err)
	}
	return nil
}

// JobHistoryRepository records start/finish rows in job_history for
// operational visibility into scheduled runs.
type JobHistoryRepository struct {
	db DBTX
}

// NewJobHistoryRepository creates a new JobHistoryRepository backed by the
// given database connection (pool or transaction).
func NewJobHistoryRepository(db DBTX) *JobHistoryRepository {
	return &JobHistoryRepository{db: db}
}

// Start inserts a running job_history row and returns its ID.
func (r *JobHistoryRepository) Start(ctx context.Context, jobType string) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx,
		`INSERT INTO job_history (job_type, status, started_at)
		 VALUES ($1, 'running', NOW())
		 RETURNING id`,
		jobType,
	).Scan(&id)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to start job history", err)
	}
	return id, nil
}

// Finish closes a job_history row with its terminal status, processed item
// count, and the error message when the run failed.
func (r *JobHistoryRepository) Finish(ctx context.Context, id int64, status types.JobStatus, items int, runErr error) error {
	var errMsg *string
	if runErr != nil {
		msg := runErr.Error()
		errMsg = &msg
	}

	_, err := r.db.Exec(ctx,
		`UPDATE job_history
		 SET status = $1, items_processed = $2, error = $3, finished_at = NOW()
		 WHERE id = $4`,
		string(status),
		items,
		errMsg,
		id,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to finish job history", err)
	}
	return nil
}
