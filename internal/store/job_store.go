package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mberg/product-importer/internal/catalog"
)

// JobStore persists import job records. Row errors are stored as a
// jsonb column since they are written once per batch and only ever read
// back whole.
type JobStore struct {
	pool *pgxpool.Pool
}

func NewJobStore(pool *pgxpool.Pool) *JobStore {
	return &JobStore{pool: pool}
}

func (s *JobStore) CreateJob(ctx context.Context, job *catalog.ImportJob) error {
	row := s.pool.QueryRow(ctx,
		`INSERT INTO import_jobs (task_id, status)
		 VALUES ($1, $2)
		 RETURNING id, created_at, updated_at`,
		job.TaskID, job.Status,
	)
	if err := row.Scan(&job.ID, &job.CreatedAt, &job.UpdatedAt); err != nil {
		return fmt.Errorf("inserting import job: %w", err)
	}
	return nil
}

func (s *JobStore) UpdateJob(ctx context.Context, job *catalog.ImportJob) error {
	errsJSON, err := json.Marshal(job.Errors)
	if err != nil {
		return fmt.Errorf("encoding job errors: %w", err)
	}

	row := s.pool.QueryRow(ctx,
		`UPDATE import_jobs
		 SET status = $2, progress = $3, total_rows = $4, processed_rows = $5,
		     errors = $6, error_message = $7, updated_at = now()
		 WHERE id = $1
		 RETURNING updated_at`,
		job.ID, job.Status, job.Progress, job.TotalRows, job.ProcessedRows,
		errsJSON, nullIfEmpty(job.ErrorMessage),
	)
	if err := row.Scan(&job.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("updating import job %d: %w", job.ID, err)
	}
	return nil
}

func (s *JobStore) GetJobByTaskID(ctx context.Context, taskID string) (*catalog.ImportJob, error) {
	var (
		job      catalog.ImportJob
		errsJSON []byte
		errMsg   *string
	)
	row := s.pool.QueryRow(ctx,
		`SELECT id, task_id, status, progress, total_rows, processed_rows,
		        errors, error_message, created_at, updated_at
		 FROM import_jobs WHERE task_id = $1`,
		taskID,
	)
	err := row.Scan(&job.ID, &job.TaskID, &job.Status, &job.Progress,
		&job.TotalRows, &job.ProcessedRows, &errsJSON, &errMsg,
		&job.CreatedAt, &job.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("fetching import job %q: %w", taskID, err)
	}

	if len(errsJSON) > 0 {
		if err := json.Unmarshal(errsJSON, &job.Errors); err != nil {
			return nil, fmt.Errorf("decoding job errors: %w", err)
		}
	}
	if errMsg != nil {
		job.ErrorMessage = *errMsg
	}
	return &job, nil
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
