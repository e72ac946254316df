// Package jobstore is the durable record of job state, inputs and results,
// keyed by job id and backed by Postgres. Each mutation is a single UPDATE,
// so a concurrent reader observes either the pre- or post-transition row,
// never a partially applied one.
package jobstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"vidconv/internal/domain"
	"vidconv/internal/infra"
	"vidconv/internal/sqlinline"
)

// Store persists job records through an injected SQL executor.
type Store struct {
	SQL infra.SQLExecutor
}

func New(sql infra.SQLExecutor) *Store {
	return &Store{SQL: sql}
}

// Create inserts a fresh pending record. Job ids are single use: inserting
// an id that already has a record, live or terminal, fails with
// domain.ErrDuplicateJob.
func (s *Store) Create(ctx context.Context, job domain.Job) error {
	_, err := s.SQL.Exec(ctx, sqlinline.QCreateJob,
		job.ID, job.OriginalFilename, job.InputPath, string(job.OutputFormat))
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrDuplicateJob
		}
		return fmt.Errorf("jobstore: create %s: %w", job.ID, err)
	}
	return nil
}

// Get returns the record for id, or domain.ErrNotFound.
func (s *Store) Get(ctx context.Context, id string) (domain.Job, error) {
	row := s.SQL.QueryRow(ctx, sqlinline.QGetJob, id)
	var job domain.Job
	var format, state string
	err := row.Scan(&job.ID, &job.OriginalFilename, &job.InputPath, &format,
		&state, &job.Progress, &job.ObjectKey, &job.ErrorMessage,
		&job.Attempts, &job.CreatedAt, &job.UpdatedAt)
	if err != nil {
		if infra.IsNoRows(err) {
			return domain.Job{}, domain.ErrNotFound
		}
		return domain.Job{}, fmt.Errorf("jobstore: get %s: %w", id, err)
	}
	job.OutputFormat = domain.OutputFormat(format)
	job.State = domain.JobState(state)
	return job, nil
}

// MarkActive transitions pending to active and returns the attempt number
// this claim represents. A job already in a terminal state is not
// reclaimed; that surfaces as domain.ErrNotFound and the caller drops the
// redelivered entry.
func (s *Store) MarkActive(ctx context.Context, id string) (int, error) {
	row := s.SQL.QueryRow(ctx, sqlinline.QMarkActive, id)
	var attempts int
	if err := row.Scan(&attempts); err != nil {
		if infra.IsNoRows(err) {
			return 0, domain.ErrNotFound
		}
		return 0, fmt.Errorf("jobstore: mark active %s: %w", id, err)
	}
	return attempts, nil
}

// SetProgress records coarse transcode progress for an active job.
func (s *Store) SetProgress(ctx context.Context, id string, progress int) error {
	if progress < 0 {
		progress = 0
	}
	if progress > 100 {
		progress = 100
	}
	_, err := s.SQL.Exec(ctx, sqlinline.QSetProgress, id, progress)
	if err != nil {
		return fmt.Errorf("jobstore: progress %s: %w", id, err)
	}
	return nil
}

// MarkCompleted commits the terminal completed state together with the
// remote object key in one statement.
func (s *Store) MarkCompleted(ctx context.Context, id, objectKey string) error {
	tag, err := s.SQL.Exec(ctx, sqlinline.QMarkCompleted, id, objectKey)
	if err != nil {
		return fmt.Errorf("jobstore: mark completed %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// MarkFailed commits the terminal failed state with a human-readable error
// description. Descriptions are truncated so a pathological ffmpeg stderr
// dump cannot bloat the record.
func (s *Store) MarkFailed(ctx context.Context, id, message string) error {
	if len(message) > 1024 {
		message = message[:1024]
	}
	tag, err := s.SQL.Exec(ctx, sqlinline.QMarkFailed, id, message)
	if err != nil {
		return fmt.Errorf("jobstore: mark failed %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// DeleteUnqueued backs out a pending, never-claimed record after its
// enqueue failed, so a submission rejection leaves nothing behind.
func (s *Store) DeleteUnqueued(ctx context.Context, id string) error {
	if _, err := s.SQL.Exec(ctx, sqlinline.QDeleteJob, id); err != nil {
		return fmt.Errorf("jobstore: delete unqueued %s: %w", id, err)
	}
	return nil
}

// DeleteCompletedBefore ages out completed records older than the cutoff.
// Failed records are retained for diagnosis. The remote artifact is
// authoritative for downloads, so record expiry never races an in-flight
// fetch.
func (s *Store) DeleteCompletedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.SQL.Exec(ctx, sqlinline.QDeleteCompletedBefore, cutoff)
	if err != nil {
		return 0, fmt.Errorf("jobstore: sweep: %w", err)
	}
	return tag.RowsAffected(), nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
