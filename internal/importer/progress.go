package importer

import (
	"context"
	"log/slog"

	"github.com/mberg/product-importer/internal/catalog"
	"github.com/mberg/product-importer/internal/progress"
)

// maxStoredErrors caps how many row errors a job keeps. Past this the
// counter still grows but the detail list stops, so a pathological file
// cannot balloon the job row.
const maxStoredErrors = 1000

// Tracker owns one job's durable progress record and its live event
// stream. Persisting and publishing are independent: a failed database
// write is logged and the event still goes out, so observers keep
// receiving updates even when the job row is stale.
//
// All methods are called from the single worker goroutine that owns the
// job, so the embedded ImportJob needs no locking.
type Tracker struct {
	jobs JobStore
	hub  *progress.Hub
	log  *slog.Logger

	job          *catalog.ImportJob
	successCount int
	errorCount   int
}

func NewTracker(jobs JobStore, hub *progress.Hub, log *slog.Logger, job *catalog.ImportJob) *Tracker {
	return &Tracker{jobs: jobs, hub: hub, log: log, job: job}
}

// Job returns the tracked job record.
func (t *Tracker) Job() *catalog.ImportJob { return t.job }

// SuccessCount reports how many rows have actually been applied to the
// store so far.
func (t *Tracker) SuccessCount() int { return t.successCount }

// ErrorCount reports every row error seen, including those past the
// storage cap.
func (t *Tracker) ErrorCount() int { return t.errorCount }

// Start moves the job to processing with the counted row total.
func (t *Tracker) Start(ctx context.Context, totalRows int) {
	t.transition(catalog.JobProcessing)
	t.job.TotalRows = totalRows
	t.job.ProcessedRows = 0
	t.job.Progress = 0
	t.persist(ctx)
	t.publish(progress.TypeProgress)
}

// BatchComplete records one finished batch. Every row in the batch
// advances the processed counter, applied is the subset that reached the
// store, and row errors are appended up to the storage cap.
func (t *Tracker) BatchComplete(ctx context.Context, rowsInBatch, applied int, rowErrs []catalog.RowError) {
	t.job.ProcessedRows += rowsInBatch
	t.successCount += applied
	t.errorCount += len(rowErrs)
	if remaining := maxStoredErrors - len(t.job.Errors); remaining > 0 {
		if len(rowErrs) > remaining {
			rowErrs = rowErrs[:remaining]
		}
		t.job.Errors = append(t.job.Errors, rowErrs...)
	}
	t.job.Progress = percentDone(t.job.ProcessedRows, t.job.TotalRows)
	t.persist(ctx)
	t.publish(progress.TypeProgress)
}

// Complete marks the job successful and emits the terminal event.
func (t *Tracker) Complete(ctx context.Context) {
	if !t.transition(catalog.JobCompleted) {
		return
	}
	t.job.Progress = 100
	t.persist(ctx)
	t.publish(progress.TypeComplete)
}

// Fail marks the job failed with a user-facing message and emits the
// terminal event.
func (t *Tracker) Fail(ctx context.Context, message string) {
	if !t.transition(catalog.JobFailed) {
		return
	}
	t.job.ErrorMessage = message
	t.persist(ctx)
	t.publish(progress.TypeComplete)
}

func (t *Tracker) transition(to catalog.JobStatus) bool {
	if !canTransition(t.job.Status, to) {
		t.log.Warn("invalid job transition", "from", t.job.Status, "to", to)
		return false
	}
	t.job.Status = to
	return true
}

func (t *Tracker) persist(ctx context.Context) {
	if err := t.jobs.UpdateJob(ctx, t.job); err != nil {
		t.log.Error("persisting job progress failed", "status", t.job.Status, "error", err)
	}
}

func (t *Tracker) publish(eventType string) {
	e := progress.Event{
		Type:          eventType,
		TaskID:        t.job.TaskID,
		Status:        string(t.job.Status),
		Progress:      t.job.Progress,
		TotalRows:     t.job.TotalRows,
		ProcessedRows: t.job.ProcessedRows,
		SuccessCount:  t.successCount,
		ErrorCount:    t.errorCount,
		Error:         t.job.ErrorMessage,
	}
	if eventType == progress.TypeComplete {
		ok := t.job.Status == catalog.JobCompleted
		e.Success = &ok
	}
	t.hub.Publish(e)
}

func percentDone(processed, total int) float64 {
	if total <= 0 {
		return 0
	}
	p := float64(processed) / float64(total) * 100
	if p > 100 {
		p = 100
	}
	return p
}
