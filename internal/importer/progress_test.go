package importer

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"

	"github.com/mberg/product-importer/internal/catalog"
	"github.com/mberg/product-importer/internal/progress"
)

// fakeJobStore is mutex-guarded: the import worker updates it while
// tests poll for terminal status.
type fakeJobStore struct {
	mu        sync.Mutex
	jobs      map[string]*catalog.ImportJob
	updateErr error
	updates   int
}

func newFakeJobStore() *fakeJobStore {
	return &fakeJobStore{jobs: make(map[string]*catalog.ImportJob)}
}

func (f *fakeJobStore) CreateJob(_ context.Context, job *catalog.ImportJob) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	job.ID = int64(len(f.jobs) + 1)
	snapshot := *job
	f.jobs[job.TaskID] = &snapshot
	return nil
}

func (f *fakeJobStore) UpdateJob(_ context.Context, job *catalog.ImportJob) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates++
	if f.updateErr != nil {
		return f.updateErr
	}
	snapshot := *job
	snapshot.Errors = append([]catalog.RowError(nil), job.Errors...)
	f.jobs[job.TaskID] = &snapshot
	return nil
}

func (f *fakeJobStore) GetJobByTaskID(_ context.Context, taskID string) (*catalog.ImportJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[taskID]
	if !ok {
		return nil, errors.New("not found")
	}
	snapshot := *job
	snapshot.Errors = append([]catalog.RowError(nil), job.Errors...)
	return &snapshot, nil
}

func (f *fakeJobStore) stored(taskID string) *catalog.ImportJob {
	f.mu.Lock()
	defer f.mu.Unlock()
	snapshot := *f.jobs[taskID]
	return &snapshot
}

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func newTestTracker(t *testing.T) (*Tracker, *fakeJobStore, *progress.Hub, <-chan progress.Event) {
	t.Helper()
	jobs := newFakeJobStore()
	hub := progress.NewHub()
	job := &catalog.ImportJob{TaskID: "task-1", Status: catalog.JobPending}
	if err := jobs.CreateJob(context.Background(), job); err != nil {
		t.Fatal(err)
	}
	events, cancel := hub.Subscribe("task-1")
	t.Cleanup(cancel)
	return NewTracker(jobs, hub, discardLogger(), job), jobs, hub, events
}

func TestTracker_Lifecycle(t *testing.T) {
	tracker, jobs, _, events := newTestTracker(t)
	ctx := context.Background()

	tracker.Start(ctx, 100)
	e := <-events
	if e.Type != progress.TypeProgress || e.Status != string(catalog.JobProcessing) || e.TotalRows != 100 {
		t.Errorf("start event = %+v", e)
	}

	tracker.BatchComplete(ctx, 40, 39, []catalog.RowError{{Row: 5, Message: "SKU is required"}})
	e = <-events
	if e.ProcessedRows != 40 || e.Progress != 40 || e.SuccessCount != 39 || e.ErrorCount != 1 {
		t.Errorf("batch event = %+v", e)
	}

	tracker.BatchComplete(ctx, 60, 60, nil)
	<-events

	tracker.Complete(ctx)
	e = <-events
	if e.Type != progress.TypeComplete || e.Status != string(catalog.JobCompleted) || e.Progress != 100 {
		t.Errorf("complete event = %+v", e)
	}
	if e.Success == nil || !*e.Success || e.SuccessCount != 99 {
		t.Errorf("complete event success = %+v", e)
	}

	stored := jobs.stored("task-1")
	if stored.Status != catalog.JobCompleted || stored.ProcessedRows != 100 {
		t.Errorf("stored job = %+v", stored)
	}
	if len(stored.Errors) != 1 {
		t.Errorf("stored errors = %+v", stored.Errors)
	}
}

func TestTracker_Fail(t *testing.T) {
	tracker, jobs, _, events := newTestTracker(t)
	ctx := context.Background()

	tracker.Start(ctx, 10)
	<-events

	tracker.Fail(ctx, "The file is missing required columns")
	e := <-events
	if e.Type != progress.TypeComplete || e.Status != string(catalog.JobFailed) {
		t.Errorf("fail event = %+v", e)
	}
	if e.Error != "The file is missing required columns" {
		t.Errorf("fail event error = %q", e.Error)
	}
	if e.Success == nil || *e.Success {
		t.Errorf("fail event success = %+v", e.Success)
	}

	if jobs.stored("task-1").Status != catalog.JobFailed {
		t.Errorf("stored status = %s", jobs.stored("task-1").Status)
	}
}

func TestTracker_PersistFailureStillPublishes(t *testing.T) {
	tracker, jobs, _, events := newTestTracker(t)
	jobs.updateErr = errors.New("connection refused")
	ctx := context.Background()

	tracker.Start(ctx, 10)
	select {
	case e := <-events:
		if e.Type != progress.TypeProgress {
			t.Errorf("event = %+v", e)
		}
	default:
		t.Fatal("no event published when persistence failed")
	}
}

func TestTracker_TerminalStatusSticks(t *testing.T) {
	tracker, jobs, _, events := newTestTracker(t)
	ctx := context.Background()

	tracker.Start(ctx, 10)
	<-events
	tracker.Fail(ctx, "boom")
	<-events

	// A late Complete must not resurrect a failed job.
	tracker.Complete(ctx)
	if got := jobs.stored("task-1").Status; got != catalog.JobFailed {
		t.Errorf("status after late Complete = %s, want failed", got)
	}
}

func TestTracker_UnknownTotalReportsZeroProgress(t *testing.T) {
	tracker, _, _, events := newTestTracker(t)
	ctx := context.Background()

	tracker.Start(ctx, 0)
	<-events

	tracker.BatchComplete(ctx, 5, 5, nil)
	e := <-events
	if e.Progress != 0 {
		t.Errorf("progress with unknown total = %v, want 0", e.Progress)
	}

	// Completion still pins progress to 100.
	tracker.Complete(ctx)
	e = <-events
	if e.Progress != 100 {
		t.Errorf("terminal progress = %v, want 100", e.Progress)
	}
}

func TestTracker_ErrorCapAndCountStillGrows(t *testing.T) {
	tracker, _, _, events := newTestTracker(t)
	ctx := context.Background()

	tracker.Start(ctx, maxStoredErrors*2)
	<-events

	batchErrs := make([]catalog.RowError, maxStoredErrors+50)
	for i := range batchErrs {
		batchErrs[i] = catalog.RowError{Row: i + 2, Message: "SKU is required"}
	}
	tracker.BatchComplete(ctx, len(batchErrs), 0, batchErrs)
	e := <-events

	if len(tracker.Job().Errors) != maxStoredErrors {
		t.Errorf("stored errors = %d, want capped at %d", len(tracker.Job().Errors), maxStoredErrors)
	}
	if e.ErrorCount != maxStoredErrors+50 {
		t.Errorf("event error count = %d, want %d", e.ErrorCount, maxStoredErrors+50)
	}
}
