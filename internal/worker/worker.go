// Package worker drives queued jobs through the pipeline: claim, mark
// active, transcode, upload, record the terminal state, ack. Coordination
// between workers happens entirely through the queue's lease semantics and
// the record store; there is no shared in-process job state.
package worker

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"vidconv/internal/artifact"
	"vidconv/internal/domain"
	"vidconv/internal/queue"
	"vidconv/internal/transcode"
)

// RecordStore is the slice of the job store the worker mutates. The worker
// holding the queue lease is the record's sole writer.
type RecordStore interface {
	MarkActive(ctx context.Context, id string) (int, error)
	SetProgress(ctx context.Context, id string, progress int) error
	MarkCompleted(ctx context.Context, id, objectKey string) error
	MarkFailed(ctx context.Context, id, message string) error
}

// WorkQueue is the slice of the queue the worker consumes.
type WorkQueue interface {
	Dequeue(ctx context.Context, timeout time.Duration) (*queue.Entry, error)
	Ack(ctx context.Context, id string) error
	Fail(ctx context.Context, id, reason string) error
}

// Transcoder converts a local input into the target format.
type Transcoder interface {
	Run(ctx context.Context, inputPath string, format domain.OutputFormat, onProgress func(int)) (string, error)
}

// Config tunes the worker pool.
type Config struct {
	Count         int
	PollTimeout   time.Duration
	MaxAttempts   int
	UploadRetries int
	UploadBackoff time.Duration
}

// Worker runs a pool of pull loops against the work queue.
type Worker struct {
	cfg       Config
	store     RecordStore
	queue     WorkQueue
	transcode Transcoder
	artifacts artifact.Store
	logger    zerolog.Logger
}

func New(cfg Config, store RecordStore, q WorkQueue, t Transcoder, a artifact.Store, logger zerolog.Logger) *Worker {
	if cfg.Count <= 0 {
		cfg.Count = 1
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	return &Worker{cfg: cfg, store: store, queue: q, transcode: t, artifacts: a, logger: logger}
}

// Run blocks until ctx is cancelled, pulling jobs with cfg.Count
// concurrent loops.
func (w *Worker) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	for i := 0; i < w.cfg.Count; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.loop(ctx)
		}()
	}
	wg.Wait()
	return ctx.Err()
}

func (w *Worker) loop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		entry, err := w.queue.Dequeue(ctx, w.cfg.PollTimeout)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			w.logger.Error().Err(err).Msg("worker: dequeue failed")
			time.Sleep(time.Second)
			continue
		}
		if entry == nil {
			continue
		}
		w.Process(ctx, entry)
	}
}

// Process drives a single dequeued entry to a terminal outcome. It is
// exported for tests; Run calls it from the pull loops.
func (w *Worker) Process(ctx context.Context, entry *queue.Entry) {
	log := w.logger.With().Str("job_id", entry.ID).Logger()

	attempts, err := w.store.MarkActive(ctx, entry.ID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			// Record is gone or already terminal; a redelivery after the
			// outcome was committed. Drop the entry, nothing to redo.
			log.Warn().Msg("worker: dropping entry without claimable record")
			if err := w.queue.Ack(ctx, entry.ID); err != nil {
				log.Error().Err(err).Msg("worker: ack orphaned entry failed")
			}
			return
		}
		// Transient store failure. Leave the entry leased; the reaper will
		// hand it out again once the lease expires.
		log.Error().Err(err).Msg("worker: claim failed, leaving entry for lease expiry")
		return
	}

	log.Info().Int("attempt", attempts).Str("input", entry.Payload.InputPath).Msg("worker: job active")

	if attempts > w.cfg.MaxAttempts {
		// Repeated crashes on the same input would otherwise loop through
		// lease expiry forever.
		w.finalizeFailed(ctx, log, entry, "", fmt.Errorf("gave up after %d attempts", attempts))
		return
	}

	format, err := domain.ParseOutputFormat(entry.Payload.OutputFormat)
	if err != nil {
		w.finalizeFailed(ctx, log, entry, "", err)
		return
	}

	outputPath, err := w.transcode.Run(ctx, entry.Payload.InputPath, format, w.progressFunc(ctx, entry.ID))
	if err != nil {
		if ctx.Err() != nil && !errors.Is(err, domain.ErrTranscodeTimeout) {
			// Shutdown, not a job fault. No ack: the lease expires and
			// another worker redoes the job from the retained input.
			log.Warn().Msg("worker: transcode interrupted by shutdown")
			return
		}
		w.finalizeFailed(ctx, log, entry, transcode.OutputPath(entry.Payload.InputPath, format), err)
		return
	}

	key := domain.ArtifactKey(entry.Payload.OriginalFilename, format)
	if err := w.uploadWithRetry(ctx, log, outputPath, key, format.MIMEType()); err != nil {
		w.finalizeFailed(ctx, log, entry, outputPath, err)
		return
	}

	if err := w.store.MarkCompleted(ctx, entry.ID, key); err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			// Outcome not durable yet; keep the files and let the lease
			// expire so the job is redone. Re-upload under the same key is
			// harmless.
			log.Error().Err(err).Msg("worker: record completion failed, leaving entry for redo")
			return
		}
	}
	w.cleanup(log, entry.Payload.InputPath, outputPath)
	if err := w.queue.Ack(ctx, entry.ID); err != nil {
		log.Error().Err(err).Msg("worker: ack failed")
	}
	log.Info().Str("object_key", key).Msg("worker: job completed")
}

// finalizeFailed commits the failed state, retires the queue entry to the
// failed list and removes local files. Cleanup problems are logged but
// never override the outcome already recorded.
func (w *Worker) finalizeFailed(ctx context.Context, log zerolog.Logger, entry *queue.Entry, outputPath string, cause error) {
	log.Error().Err(cause).Msg("worker: job failed")
	if err := w.store.MarkFailed(ctx, entry.ID, cause.Error()); err != nil && !errors.Is(err, domain.ErrNotFound) {
		log.Error().Err(err).Msg("worker: record failure failed")
	}
	w.cleanup(log, entry.Payload.InputPath, outputPath)
	if err := w.queue.Fail(ctx, entry.ID, cause.Error()); err != nil {
		log.Error().Err(err).Msg("worker: retire entry failed")
	}
}

func (w *Worker) uploadWithRetry(ctx context.Context, log zerolog.Logger, localPath, key, contentType string) error {
	retries := w.cfg.UploadRetries
	if retries < 1 {
		retries = 1
	}
	var err error
	for attempt := 1; attempt <= retries; attempt++ {
		err = w.artifacts.Upload(ctx, localPath, key, contentType)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return err
		}
		log.Warn().Err(err).Int("attempt", attempt).Msg("worker: upload failed")
		if attempt < retries {
			select {
			case <-time.After(w.cfg.UploadBackoff * time.Duration(attempt)):
			case <-ctx.Done():
				return err
			}
		}
	}
	return fmt.Errorf("upload failed after %d attempts: %w", retries, err)
}

// progressFunc throttles transcode progress into record updates. Failures
// only cost progress granularity, never the job.
func (w *Worker) progressFunc(ctx context.Context, id string) func(int) {
	last := -1
	return func(p int) {
		if p < 100 && p-last < 5 {
			return
		}
		last = p
		if err := w.store.SetProgress(ctx, id, p); err != nil {
			w.logger.Warn().Err(err).Str("job_id", id).Msg("worker: progress update failed")
		}
	}
}

// cleanup removes the local input and output for a finished job so
// sustained failures cannot fill the disk.
func (w *Worker) cleanup(log zerolog.Logger, paths ...string) {
	for _, path := range paths {
		if path == "" {
			continue
		}
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			log.Error().Err(err).Str("path", path).Msg("worker: cleanup failed")
		}
	}
}
