package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mberg/product-importer/internal/catalog"
)

// WebhookStore persists webhook registrations. Event type lists live in
// a text[] column; pgx maps it to []string directly.
type WebhookStore struct {
	pool *pgxpool.Pool
}

func NewWebhookStore(pool *pgxpool.Pool) *WebhookStore {
	return &WebhookStore{pool: pool}
}

const webhookColumns = "id, url, event_types, enabled, created_at, updated_at"

func scanWebhook(row pgx.Row) (catalog.Webhook, error) {
	var w catalog.Webhook
	err := row.Scan(&w.ID, &w.URL, &w.EventTypes, &w.Enabled, &w.CreatedAt, &w.UpdatedAt)
	return w, err
}

func (s *WebhookStore) Create(ctx context.Context, w *catalog.Webhook) error {
	row := s.pool.QueryRow(ctx,
		`INSERT INTO webhooks (url, event_types, enabled)
		 VALUES ($1, $2, $3)
		 RETURNING id, created_at, updated_at`,
		w.URL, w.EventTypes, w.Enabled,
	)
	if err := row.Scan(&w.ID, &w.CreatedAt, &w.UpdatedAt); err != nil {
		return fmt.Errorf("inserting webhook: %w", err)
	}
	return nil
}

func (s *WebhookStore) Get(ctx context.Context, id int64) (*catalog.Webhook, error) {
	w, err := scanWebhook(s.pool.QueryRow(ctx,
		"SELECT "+webhookColumns+" FROM webhooks WHERE id = $1", id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("fetching webhook %d: %w", id, err)
	}
	return &w, nil
}

func (s *WebhookStore) List(ctx context.Context) ([]catalog.Webhook, error) {
	return s.list(ctx, "SELECT "+webhookColumns+" FROM webhooks ORDER BY id")
}

// ListEnabledWebhooks returns the delivery candidates for dispatch.
func (s *WebhookStore) ListEnabledWebhooks(ctx context.Context) ([]catalog.Webhook, error) {
	return s.list(ctx, "SELECT "+webhookColumns+" FROM webhooks WHERE enabled ORDER BY id")
}

func (s *WebhookStore) list(ctx context.Context, query string) ([]catalog.Webhook, error) {
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("listing webhooks: %w", err)
	}
	defer rows.Close()

	var out []catalog.Webhook
	for rows.Next() {
		w, err := scanWebhook(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning webhook: %w", err)
		}
		out = append(out, w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading webhooks: %w", err)
	}
	return out, nil
}

func (s *WebhookStore) Update(ctx context.Context, w *catalog.Webhook) error {
	row := s.pool.QueryRow(ctx,
		`UPDATE webhooks SET url = $2, event_types = $3, enabled = $4, updated_at = now()
		 WHERE id = $1
		 RETURNING updated_at`,
		w.ID, w.URL, w.EventTypes, w.Enabled,
	)
	if err := row.Scan(&w.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("updating webhook %d: %w", w.ID, err)
	}
	return nil
}

func (s *WebhookStore) Delete(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, "DELETE FROM webhooks WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("deleting webhook %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
