// Package jobs exposes the two operations the outside world consumes:
// submitting a conversion and polling its status. The HTTP layer is a thin
// collaborator over this service.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"vidconv/internal/artifact"
	"vidconv/internal/domain"
)

// RecordStore is the slice of the job store the service needs.
type RecordStore interface {
	Create(ctx context.Context, job domain.Job) error
	Get(ctx context.Context, id string) (domain.Job, error)
	DeleteUnqueued(ctx context.Context, id string) error
}

// WorkQueue is the slice of the queue the service needs.
type WorkQueue interface {
	Enqueue(ctx context.Context, id string, payload domain.QueuePayload) error
	Depth(ctx context.Context) (int64, error)
}

// Service wires submissions into the record store and the work queue, and
// answers status polls.
type Service struct {
	store     RecordStore
	queue     WorkQueue
	artifacts artifact.Store
	depthCap  int64
	urlTTL    time.Duration
	logger    zerolog.Logger
}

func NewService(store RecordStore, q WorkQueue, a artifact.Store, depthCap int, urlTTL time.Duration, logger zerolog.Logger) *Service {
	return &Service{store: store, queue: q, artifacts: a, depthCap: int64(depthCap), urlTTL: urlTTL, logger: logger}
}

// SubmitRequest describes one uploaded file awaiting conversion. The
// caller owns spooling the upload to InputPath. JobID is optional; a
// caller that supplies one gets idempotent resubmission semantics.
type SubmitRequest struct {
	JobID            string
	InputPath        string
	OriginalFilename string
	OutputFormat     string
}

// SubmitResult echoes the identifiers the polling collaborator needs.
type SubmitResult struct {
	JobID            string
	OriginalFilename string
}

// Submit validates the request, creates the pending record and enqueues
// the work. Rejections (domain.ErrOverloaded, domain.ErrDuplicateJob,
// invalid format) happen synchronously and leave no job behind.
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (SubmitResult, error) {
	format, err := domain.ParseOutputFormat(req.OutputFormat)
	if err != nil {
		return SubmitResult{}, err
	}
	if req.InputPath == "" {
		return SubmitResult{}, errors.New("jobs: input path is required")
	}

	if s.depthCap > 0 {
		depth, err := s.queue.Depth(ctx)
		if err != nil {
			return SubmitResult{}, fmt.Errorf("jobs: queue depth: %w", err)
		}
		if depth >= s.depthCap {
			return SubmitResult{}, domain.ErrOverloaded
		}
	}

	id := req.JobID
	if id == "" {
		id = uuid.NewString()
	} else if _, err := uuid.Parse(id); err != nil {
		return SubmitResult{}, fmt.Errorf("jobs: invalid job id %q: %w", id, err)
	}

	job := domain.Job{
		ID:               id,
		OriginalFilename: req.OriginalFilename,
		InputPath:        req.InputPath,
		OutputFormat:     format,
		State:            domain.JobStatePending,
	}
	if err := s.store.Create(ctx, job); err != nil {
		return SubmitResult{}, err
	}

	payload := domain.QueuePayload{
		InputPath:        req.InputPath,
		OutputFormat:     string(format),
		OriginalFilename: req.OriginalFilename,
	}
	if err := s.queue.Enqueue(ctx, id, payload); err != nil {
		// The record was created for this submission only; back it out so
		// a rejected submission leaves nothing behind.
		if delErr := s.store.DeleteUnqueued(ctx, id); delErr != nil {
			s.logger.Error().Err(delErr).Str("job_id", id).Msg("jobs: orphaned record after enqueue failure")
		}
		return SubmitResult{}, err
	}

	s.logger.Info().Str("job_id", id).Str("format", string(format)).Msg("jobs: submitted")
	return SubmitResult{JobID: id, OriginalFilename: req.OriginalFilename}, nil
}

// Status is the read-only projection answered to pollers. DownloadURL is
// set only for completed jobs whose artifact still exists; a completed job
// with an expired artifact is a valid, degraded response.
type Status struct {
	ID          string
	State       domain.JobState
	Progress    int
	DownloadURL string
	Error       string
}

// Query reports the state of job id, minting a fresh signed URL on every
// call for completed jobs. URLs are time-bounded and never cached.
func (s *Service) Query(ctx context.Context, id string) (Status, error) {
	job, err := s.store.Get(ctx, id)
	if err != nil {
		return Status{}, err
	}

	st := Status{
		ID:       job.ID,
		State:    job.State,
		Progress: job.Progress,
		Error:    job.ErrorMessage,
	}

	if job.State == domain.JobStateCompleted && job.ObjectKey != "" {
		url, err := s.artifacts.SignedURL(ctx, job.ObjectKey, s.urlTTL)
		switch {
		case errors.Is(err, domain.ErrNotFound):
			// Artifact expired independently of the record; the poller
			// still learns the job finished.
			s.logger.Warn().Str("job_id", id).Str("object_key", job.ObjectKey).Msg("jobs: artifact gone, degraded status")
		case err != nil:
			return Status{}, fmt.Errorf("jobs: sign url for %s: %w", id, err)
		default:
			st.DownloadURL = url
		}
	}
	return st, nil
}
