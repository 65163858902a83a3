package importer

import (
	"context"

	"github.com/mberg/product-importer/internal/catalog"
)

// JobStore persists import job state. Implementations must tolerate
// concurrent reads while the worker goroutine writes.
type JobStore interface {
	CreateJob(ctx context.Context, job *catalog.ImportJob) error
	UpdateJob(ctx context.Context, job *catalog.ImportJob) error
	GetJobByTaskID(ctx context.Context, taskID string) (*catalog.ImportJob, error)
}

// validTransitions encodes the job lifecycle: pending -> processing ->
// completed or failed, with a direct pending -> failed for validation
// rejections. Terminal states never transition again.
var validTransitions = map[catalog.JobStatus][]catalog.JobStatus{
	catalog.JobPending:    {catalog.JobProcessing, catalog.JobFailed},
	catalog.JobProcessing: {catalog.JobCompleted, catalog.JobFailed},
}

func canTransition(from, to catalog.JobStatus) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}
