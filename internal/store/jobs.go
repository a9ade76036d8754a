package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// JobStatus is the lifecycle state of a Job, per spec.md §3.
type JobStatus string

const (
	JobQueued    JobStatus = "queued"
	JobRunning   JobStatus = "running"
	JobSucceeded JobStatus = "succeeded"
	JobFailed    JobStatus = "failed"
	JobCanceled  JobStatus = "canceled"
)

// ErrJobNotFound is returned when a job id has no matching row.
var ErrJobNotFound = errors.New("store: job not found")

// ErrNoJobAvailable is returned by Claim when the queue is empty.
var ErrNoJobAvailable = errors.New("store: no job available")

// Job mirrors the Job entity of spec.md §3.
type Job struct {
	ID                   string
	Type                 string
	Params               []byte
	Status               JobStatus
	CreatedAt            time.Time
	UpdatedAt            time.Time
	FinishedAt           *time.Time
	LeaseExpiresAt       *time.Time
	HeartbeatAt          *time.Time
	IdempotencyKey       *string
	IdempotencyExpiresAt *time.Time
	Result               []byte
	Attempt              int
	NotifyURL            *string
	RetryOf              *string
	ErrorMessage         *string
}

func (j JobStatus) Terminal() bool {
	return j == JobSucceeded || j == JobFailed || j == JobCanceled
}

// Enqueue inserts a queued Job row. If idempotencyKey collides with a
// concurrently-inserted row (unique index violation), the caller should
// re-read via GetByIdempotencyKey — this mirrors the at-most-one-winner
// semantics of spec.md §4.3.
func (s *Store) Enqueue(ctx context.Context, j *Job) error {
	if j.ID == "" {
		return errors.New("job id is required")
	}
	now := time.Now().UTC()
	j.CreatedAt, j.UpdatedAt, j.Status, j.Attempt = now, now, JobQueued, 0
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO jobs (id, type, params, status, created_at, updated_at, idempotency_key,
			idempotency_expires_at, notify_url, retry_of, attempt)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0)`,
		j.ID, j.Type, j.Params, j.Status, j.CreatedAt, j.UpdatedAt,
		nullableString(j.IdempotencyKey), nullableTime(j.IdempotencyExpiresAt),
		nullableString(j.NotifyURL), nullableString(j.RetryOf))
	return err
}

// Claim transactionally selects the oldest queued job (or one whose lease
// has expired) and promotes it to running, per spec.md §4.3. Returns
// ErrNoJobAvailable when the queue is empty.
func (s *Store) Claim(ctx context.Context, leaseDuration time.Duration) (*Job, error) {
	var claimed *Job
	err := s.Tx(ctx, func(tx *sql.Tx) error {
		now := time.Now().UTC()
		row := tx.QueryRowContext(ctx, `
			SELECT id FROM jobs
			WHERE status = ? OR (status = ? AND lease_expires_at IS NOT NULL AND lease_expires_at < ?)
			ORDER BY created_at ASC
			LIMIT 1`, JobQueued, JobRunning, now)
		var id string
		if err := row.Scan(&id); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrNoJobAvailable
			}
			return err
		}
		leaseExpires := now.Add(leaseDuration)
		_, err := tx.ExecContext(ctx, `
			UPDATE jobs SET status = ?, lease_expires_at = ?, heartbeat_at = ?,
				attempt = attempt + 1, updated_at = ? WHERE id = ?`,
			JobRunning, leaseExpires, now, now, id)
		if err != nil {
			return err
		}
		j, err := scanJobTx(ctx, tx, id)
		if err != nil {
			return err
		}
		claimed = j
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

// Heartbeat re-stamps a running job's lease and extends its idempotency
// expiry so long jobs do not expire mid-flight. Updating zero rows (job
// already finished or gone) is not an error, per spec.md §8 boundary
// behaviors.
func (s *Store) Heartbeat(ctx context.Context, id string, leaseDuration, idempotencyTTL time.Duration) error {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		UPDATE jobs SET heartbeat_at = ?, lease_expires_at = ?,
			idempotency_expires_at = CASE
				WHEN idempotency_expires_at IS NULL THEN NULL
				WHEN idempotency_expires_at < ? THEN ?
				ELSE idempotency_expires_at
			END,
			updated_at = ?
		WHERE id = ? AND status = ?`,
		now, now.Add(leaseDuration), now.Add(idempotencyTTL), now.Add(idempotencyTTL), now, id, JobRunning)
	return err
}

// Finish transitions a job to a terminal status, stores the result/error,
// and clears the lease.
func (s *Store) Finish(ctx context.Context, id string, status JobStatus, result []byte, errMsg *string) error {
	if !status.Terminal() {
		return fmt.Errorf("finish requires a terminal status, got %q", status)
	}
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		UPDATE jobs SET status = ?, result = ?, error_message = ?, finished_at = ?,
			lease_expires_at = NULL, updated_at = ? WHERE id = ?`,
		status, result, nullableString(errMsg), now, now, id)
	return err
}

// Cancel transitions a job to canceled iff it is currently queued or
// running, per spec.md §4.3. Returns false (no error) if the job was
// already terminal.
func (s *Store) Cancel(ctx context.Context, id string) (bool, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		UPDATE jobs SET status = ?, lease_expires_at = NULL, finished_at = ?, updated_at = ?
		WHERE id = ? AND status IN (?, ?)`,
		JobCanceled, now, now, id, JobQueued, JobRunning)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// ReclaimExpired demotes running jobs whose lease has expired back to
// queued, preserving the attempt counter, and returns their ids so the
// caller can append an "abandoned" event for each.
func (s *Store) ReclaimExpired(ctx context.Context) ([]string, error) {
	now := time.Now().UTC()
	rows, err := s.db.QueryContext(ctx, `
		SELECT id FROM jobs WHERE status = ? AND lease_expires_at IS NOT NULL AND lease_expires_at < ?`,
		JobRunning, now)
	if err != nil {
		return nil, err
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()
	if len(ids) == 0 {
		return nil, nil
	}
	for _, id := range ids {
		if _, err := s.db.ExecContext(ctx, `
			UPDATE jobs SET status = ?, lease_expires_at = NULL, updated_at = ? WHERE id = ? AND status = ?`,
			JobQueued, now, id, JobRunning); err != nil {
			return nil, err
		}
	}
	return ids, nil
}

// GetJob loads a job by id.
func (s *Store) GetJob(ctx context.Context, id string) (*Job, error) {
	j, err := scanJobTx(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	return j, nil
}

// ListJobs returns the most recent jobs, newest first, optionally filtered
// to a single status, for the list_jobs tool of spec.md §4.2. An empty
// status lists across all statuses.
func (s *Store) ListJobs(ctx context.Context, status JobStatus, limit int) ([]*Job, error) {
	var rows *sql.Rows
	var err error
	if status == "" {
		rows, err = s.db.QueryContext(ctx, `SELECT id FROM jobs ORDER BY created_at DESC LIMIT ?`, limit)
	} else {
		rows, err = s.db.QueryContext(ctx, `SELECT id FROM jobs WHERE status = ? ORDER BY created_at DESC LIMIT ?`, status, limit)
	}
	if err != nil {
		return nil, err
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()
	out := make([]*Job, 0, len(ids))
	for _, id := range ids {
		j, err := s.GetJob(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, nil
}

// CountJobsByStatus returns the number of jobs in each status, for the
// /metrics snapshot's queue-depth and per-status counters.
func (s *Store) CountJobsByStatus(ctx context.Context) (map[JobStatus]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM jobs GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	counts := make(map[JobStatus]int)
	for rows.Next() {
		var status JobStatus
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

// GetByIdempotencyKey loads the (at most one) non-expired job for a key.
func (s *Store) GetByIdempotencyKey(ctx context.Context, key string) (*Job, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id FROM jobs WHERE idempotency_key = ? LIMIT 1`, key)
	var id string
	if err := row.Scan(&id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrJobNotFound
		}
		return nil, err
	}
	return s.GetJob(ctx, id)
}

// ClearIdempotencyKey detaches a single job's idempotency key, used when
// linking a retry: the failed/canceled predecessor gives up the key so a
// new job can claim it under the unique index.
func (s *Store) ClearIdempotencyKey(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE jobs SET idempotency_key = NULL WHERE id = ?`, id)
	return err
}

// CleanExpiredIdempotencyKeys clears the idempotency_key column on terminal
// jobs whose idempotency window has expired, so a future Enqueue with the
// same key is free to create a fresh job.
func (s *Store) CleanExpiredIdempotencyKeys(ctx context.Context) (int64, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		UPDATE jobs SET idempotency_key = NULL
		WHERE idempotency_key IS NOT NULL AND idempotency_expires_at IS NOT NULL
			AND idempotency_expires_at < ? AND status IN (?, ?, ?)`,
		now, JobSucceeded, JobFailed, JobCanceled)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

type rowScanner interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func scanJobTx(ctx context.Context, q rowScanner, id string) (*Job, error) {
	row := q.QueryRowContext(ctx, `
		SELECT id, type, params, status, created_at, updated_at, finished_at, lease_expires_at,
			heartbeat_at, idempotency_key, idempotency_expires_at, result, attempt, notify_url,
			retry_of, error_message
		FROM jobs WHERE id = ?`, id)
	var j Job
	var finishedAt, leaseExpiresAt, heartbeatAt, idemExpiresAt sql.NullTime
	var idemKey, notifyURL, retryOf, errMsg sql.NullString
	var result []byte
	err := row.Scan(&j.ID, &j.Type, &j.Params, &j.Status, &j.CreatedAt, &j.UpdatedAt,
		&finishedAt, &leaseExpiresAt, &heartbeatAt, &idemKey, &idemExpiresAt, &result,
		&j.Attempt, &notifyURL, &retryOf, &errMsg)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrJobNotFound
		}
		return nil, err
	}
	j.Result = result
	if finishedAt.Valid {
		j.FinishedAt = &finishedAt.Time
	}
	if leaseExpiresAt.Valid {
		j.LeaseExpiresAt = &leaseExpiresAt.Time
	}
	if heartbeatAt.Valid {
		j.HeartbeatAt = &heartbeatAt.Time
	}
	if idemExpiresAt.Valid {
		j.IdempotencyExpiresAt = &idemExpiresAt.Time
	}
	if idemKey.Valid {
		j.IdempotencyKey = &idemKey.String
	}
	if notifyURL.Valid {
		j.NotifyURL = &notifyURL.String
	}
	if retryOf.Valid {
		j.RetryOf = &retryOf.String
	}
	if errMsg.Valid {
		j.ErrorMessage = &errMsg.String
	}
	return &j, nil
}

func nullableString(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}
