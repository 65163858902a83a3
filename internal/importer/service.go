package importer

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/mberg/product-importer/internal/catalog"
	"github.com/mberg/product-importer/internal/metrics"
	"github.com/mberg/product-importer/internal/progress"
	"github.com/mberg/product-importer/internal/webhook"
)

// Notifier delivers event notifications after an import finishes. The
// service fires it from a detached goroutine so delivery latency never
// holds up job completion.
type Notifier interface {
	Dispatch(ctx context.Context, eventType string, data map[string]any) ([]webhook.DeliveryResult, error)
}

// Options configures a Service.
type Options struct {
	BatchSize     int
	MaxConcurrent int
	MaxWaitTime   time.Duration
	JobTimeout    time.Duration
}

// Service runs imports end to end: it owns the job lifecycle, drives the
// parse/batch/upsert pipeline from a worker goroutine per job, and keeps
// progress flowing to the store and the hub.
type Service struct {
	engine   *Engine
	jobs     JobStore
	hub      *progress.Hub
	notifier Notifier
	limiter  *Limiter
	metrics  *metrics.Metrics
	log      *slog.Logger

	batchSize  int
	jobTimeout time.Duration
}

func NewService(store CatalogStore, jobs JobStore, hub *progress.Hub, notifier Notifier, m *metrics.Metrics, log *slog.Logger, opts Options) *Service {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.JobTimeout <= 0 {
		opts.JobTimeout = 30 * time.Minute
	}
	return &Service{
		engine:     NewEngine(store, log),
		jobs:       jobs,
		hub:        hub,
		notifier:   notifier,
		limiter:    NewLimiter(opts.MaxConcurrent, opts.MaxWaitTime),
		metrics:    m,
		log:        log,
		batchSize:  opts.BatchSize,
		jobTimeout: opts.JobTimeout,
	}
}

// StartImport creates a pending job for the source and launches its
// worker. cleanup runs when the worker is done with the source, whether
// the import succeeds or not. The returned task ID identifies the job
// for status polling and progress subscriptions.
func (s *Service) StartImport(ctx context.Context, src Source, cleanup func()) (string, error) {
	if err := s.limiter.Acquire(ctx); err != nil {
		if cleanup != nil {
			cleanup()
		}
		return "", err
	}

	job := &catalog.ImportJob{
		TaskID: uuid.NewString(),
		Status: catalog.JobPending,
	}
	if err := s.jobs.CreateJob(ctx, job); err != nil {
		s.limiter.Release()
		if cleanup != nil {
			cleanup()
		}
		return "", fmt.Errorf("creating import job: %w", err)
	}

	log := s.log.With("task_id", job.TaskID)
	tracker := NewTracker(s.jobs, s.hub, log, job)
	s.metrics.ImportsStarted.Inc()

	go func() {
		jobCtx, cancel := context.WithTimeout(context.Background(), s.jobTimeout)
		defer func() {
			if r := recover(); r != nil {
				log.Error("import worker panicked", "panic", r)
				tracker.Fail(jobCtx, "An unexpected error occurred. Please try again or contact support")
			}
			cancel()
			if cleanup != nil {
				cleanup()
			}
			s.limiter.Release()
		}()
		s.run(jobCtx, tracker, src, log)
	}()

	return job.TaskID, nil
}

// run is the worker body: validate, count, then stream batches through
// the upsert engine until the file is exhausted or the job dies.
func (s *Service) run(ctx context.Context, tracker *Tracker, src Source, log *slog.Logger) {
	start := time.Now()
	parser := NewParser(src, DefaultAliases())

	if err := parser.ValidateFormat(); err != nil {
		s.finishFailed(ctx, tracker, log, err)
		return
	}

	total, err := parser.CountRows()
	if err != nil {
		s.finishFailed(ctx, tracker, log, err)
		return
	}
	tracker.Start(ctx, total)
	log.Info("import started", "total_rows", total)

	rows, err := parser.Rows()
	if err != nil {
		s.finishFailed(ctx, tracker, log, err)
		return
	}
	defer rows.Close()

	batches := NewBatchReader(rows, s.batchSize)
	for {
		if ctx.Err() != nil {
			s.finishFailed(ctx, tracker, log, ctx.Err())
			return
		}

		batch, err := batches.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			s.finishFailed(ctx, tracker, log, err)
			return
		}

		applied, rowErrs := s.engine.ProcessBatch(ctx, batch)
		tracker.BatchComplete(ctx, len(batch.Records), applied, rowErrs)
		s.metrics.RowsProcessed.Add(float64(len(batch.Records)))
	}

	tracker.Complete(ctx)
	s.metrics.ImportsCompleted.WithLabelValues(string(catalog.JobCompleted)).Inc()
	s.metrics.ImportDuration.Observe(time.Since(start).Seconds())
	log.Info("import completed",
		"total_rows", tracker.Job().TotalRows,
		"processed_rows", tracker.Job().ProcessedRows,
		"applied", tracker.SuccessCount(),
		"errors", tracker.ErrorCount(),
		"duration", time.Since(start).Round(time.Millisecond),
	)

	s.notifyCompleted(tracker)
}

func (s *Service) finishFailed(ctx context.Context, tracker *Tracker, log *slog.Logger, err error) {
	msg := Classify(err)
	log.Error("import failed", "category", msg.Category, "error", err)
	tracker.Fail(ctx, msg.Message)
	s.metrics.ImportsCompleted.WithLabelValues(string(catalog.JobFailed)).Inc()
	s.notifyCompleted(tracker)
}

func (s *Service) notifyCompleted(tracker *Tracker) {
	if s.notifier == nil {
		return
	}
	job := tracker.Job()
	data := map[string]any{
		"task_id":        job.TaskID,
		"status":         string(job.Status),
		"total_rows":     job.TotalRows,
		"processed_rows": job.ProcessedRows,
		"success_count":  tracker.SuccessCount(),
		"error_count":    tracker.ErrorCount(),
	}
	if job.ErrorMessage != "" {
		data["error"] = job.ErrorMessage
	}
	go func() {
		if _, err := s.notifier.Dispatch(context.Background(), catalog.EventImportCompleted, data); err != nil {
			s.log.Error("completion notification failed", "task_id", job.TaskID, "error", err)
		}
	}()
}

// Job looks up an import job by task ID for status polling.
func (s *Service) Job(ctx context.Context, taskID string) (*catalog.ImportJob, error) {
	return s.jobs.GetJobByTaskID(ctx, taskID)
}

// ActiveImports reports how many workers are currently running.
func (s *Service) ActiveImports() int { return s.limiter.ActiveCount() }

// Drain waits for running imports to finish, for graceful shutdown.
func (s *Service) Drain(ctx context.Context) error { return s.limiter.WaitForDrain(ctx) }
