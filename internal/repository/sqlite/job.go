package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/garnizeh/taosdlc/internal/models"
)

// Job statuses stored in the jobs table.
const (
	JobQueued  = "queued"
	JobRunning = "running"
	JobRetry   = "retry"
	JobDone    = "done"
)

// DefaultJobLease bounds how long a claimed job may stay running without an
// update before FetchNext hands it out again.
const DefaultJobLease = 10 * time.Minute

// SetJobLease overrides the running-job lease; non-positive values are ignored.
func (r *SQLiteRepo) SetJobLease(d time.Duration) {
	if d > 0 {
		r.jobLease = d
	}
}

// Enqueue inserts a job into the jobs table and returns the new ID
func (r *SQLiteRepo) Enqueue(ctx context.Context, j *models.BackgroundJob) (int64, error) {
	if j == nil {
		return 0, fmt.Errorf("job is nil")
	}
	if j.MaxAttempts == 0 {
		j.MaxAttempts = 5
	}
	if j.ScheduledAt.IsZero() {
		j.ScheduledAt = time.Now().UTC()
	}

	ts := now()
	q := `INSERT INTO jobs(type, payload, status, attempts, max_attempts, priority, scheduled_at, created, updated) VALUES(?,?,?,?,?,?,?,?,?)`
	res, err := r.q.ExecContext(ctx, q, j.Type, string(j.Payload), JobQueued, j.Attempts, j.MaxAttempts, j.Priority, j.ScheduledAt.UTC().UnixMilli(), ts, ts)
	if err != nil {
		return 0, fmt.Errorf("enqueue failed: %w", err)
	}

	return res.LastInsertId()
}

// FetchNext claims the next available job respecting priority and schedule.
// The claimed job is marked running in the same statement so two workers
// never receive the same row. A running job whose lease expired, left behind
// by a crashed worker, is claimed again and the lost run counts as an attempt.
func (r *SQLiteRepo) FetchNext(ctx context.Context) (*models.BackgroundJob, error) {
	ts := now()
	stale := ts - r.jobLease.Milliseconds()
	q := `UPDATE jobs SET
			attempts = attempts + CASE WHEN status = 'running' THEN 1 ELSE 0 END,
			status = 'running', updated = ?
		WHERE id = (
			SELECT id FROM jobs
			WHERE ((status = 'queued' OR status = 'retry') AND (next_try_at IS NULL OR next_try_at <= ?) AND scheduled_at <= ?)
				OR (status = 'running' AND updated <= ?)
			ORDER BY priority ASC, scheduled_at ASC, id ASC LIMIT 1
		)
		RETURNING id, type, payload, status, attempts, max_attempts, priority, scheduled_at, next_try_at, last_error, created, updated`
	row := r.q.QueryRowContext(ctx, q, ts, ts, ts, stale)

	var (
		j           models.BackgroundJob
		payload     sql.NullString
		scheduledAt int64
		nextTry     sql.NullInt64
		lastError   sql.NullString
		created     int64
		updated     int64
	)
	if err := row.Scan(&j.ID, &j.Type, &payload, &j.Status, &j.Attempts, &j.MaxAttempts, &j.Priority, &scheduledAt, &nextTry, &lastError, &created, &updated); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}

		return nil, fmt.Errorf("fetch next job: %w", err)
	}

	j.ScheduledAt = time.UnixMilli(scheduledAt).UTC()
	j.Created = time.UnixMilli(created).UTC()
	j.Updated = time.UnixMilli(updated).UTC()
	if payload.Valid {
		j.Payload = json.RawMessage(payload.String)
	}
	if nextTry.Valid {
		t := time.UnixMilli(nextTry.Int64).UTC()
		j.NextTryAt = &t
	}
	if lastError.Valid {
		j.LastError = lastError.String
	}

	return &j, nil
}

// UpdateJob updates attempts, status, next_try_at, last_error
func (r *SQLiteRepo) UpdateJob(ctx context.Context, j *models.BackgroundJob) error {
	var nextTry any
	if j.NextTryAt != nil {
		nextTry = j.NextTryAt.UTC().UnixMilli()
	}
	q := `UPDATE jobs SET status = ?, attempts = ?, next_try_at = ?, last_error = ?, updated = ? WHERE id = ?`
	_, err := r.q.ExecContext(ctx, q, j.Status, j.Attempts, nextTry, j.LastError, now(), j.ID)

	return err
}

// MoveToDeadLetter moves a job to dead_letter_jobs and deletes the original
func (r *SQLiteRepo) MoveToDeadLetter(ctx context.Context, j *models.BackgroundJob) error {
	move := func(q interface {
		ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	}) error {
		insert := `INSERT INTO dead_letter_jobs(job_id, type, payload, attempts, last_error, failed_at) VALUES(?,?,?,?,?,?)`
		if _, err := q.ExecContext(ctx, insert, j.ID, j.Type, string(j.Payload), j.Attempts, j.LastError, now()); err != nil {
			return err
		}
		_, err := q.ExecContext(ctx, `DELETE FROM jobs WHERE id = ?`, j.ID)
		return err
	}

	if r.inTx {
		return move(r.q)
	}
	return r.conn.WithTx(ctx, func(tx *sql.Tx) error { return move(tx) })
}

// CountDeadLetters returns the number of jobs that exhausted their attempts.
func (r *SQLiteRepo) CountDeadLetters(ctx context.Context) (int64, error) {
	var cnt int64
	if err := r.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM dead_letter_jobs`).Scan(&cnt); err != nil {
		return 0, err
	}
	return cnt, nil
}
