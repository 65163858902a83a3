package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mberg/product-importer/internal/catalog"
)

// ProductStore persists the product catalog. SKU uniqueness is enforced
// case-insensitively by a unique index on lower(sku).
type ProductStore struct {
	pool *pgxpool.Pool
}

func NewProductStore(pool *pgxpool.Pool) *ProductStore {
	return &ProductStore{pool: pool}
}

const productColumns = "id, sku, name, description, created_at, updated_at"

func scanProduct(row pgx.Row) (catalog.Product, error) {
	var p catalog.Product
	err := row.Scan(&p.ID, &p.SKU, &p.Name, &p.Description, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

// LookupBySKUs fetches existing products for the given SKUs in one
// query. The result map is keyed by lowercased SKU.
func (s *ProductStore) LookupBySKUs(ctx context.Context, skus []string) (map[string]catalog.Product, error) {
	if len(skus) == 0 {
		return map[string]catalog.Product{}, nil
	}

	lowered := make([]string, len(skus))
	for i, sku := range skus {
		lowered[i] = strings.ToLower(sku)
	}

	rows, err := s.pool.Query(ctx,
		"SELECT "+productColumns+" FROM products WHERE lower(sku) = ANY($1)",
		lowered,
	)
	if err != nil {
		return nil, fmt.Errorf("querying products by sku: %w", err)
	}
	defer rows.Close()

	out := make(map[string]catalog.Product, len(skus))
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning product: %w", err)
		}
		out[strings.ToLower(p.SKU)] = p
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading products: %w", err)
	}
	return out, nil
}

// ApplyBatch writes all inserts and updates atomically. Statements are
// pipelined through one pgx batch inside a transaction, so a failure
// anywhere rolls back the entire batch.
func (s *ProductStore) ApplyBatch(ctx context.Context, inserts, updates []catalog.Product) error {
	if len(inserts) == 0 && len(updates) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning batch transaction: %w", err)
	}
	defer tx.Rollback(ctx) // No-op if already committed

	b := &pgx.Batch{}
	for _, p := range inserts {
		b.Queue(
			"INSERT INTO products (sku, name, description) VALUES ($1, $2, $3)",
			p.SKU, p.Name, p.Description,
		)
	}
	for _, p := range updates {
		b.Queue(
			"UPDATE products SET name = $2, description = $3, updated_at = now() WHERE id = $1",
			p.ID, p.Name, p.Description,
		)
	}

	br := tx.SendBatch(ctx, b)
	for i := 0; i < b.Len(); i++ {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return fmt.Errorf("applying batch statement %d: %w", i, err)
		}
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("closing batch: %w", err)
	}
	return tx.Commit(ctx)
}

// Create inserts a product and fills in its generated fields.
func (s *ProductStore) Create(ctx context.Context, p *catalog.Product) error {
	row := s.pool.QueryRow(ctx,
		`INSERT INTO products (sku, name, description)
		 VALUES ($1, $2, $3)
		 RETURNING id, created_at, updated_at`,
		p.SKU, p.Name, p.Description,
	)
	if err := row.Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return fmt.Errorf("inserting product: %w", err)
	}
	return nil
}

func (s *ProductStore) Get(ctx context.Context, id int64) (*catalog.Product, error) {
	p, err := scanProduct(s.pool.QueryRow(ctx,
		"SELECT "+productColumns+" FROM products WHERE id = $1", id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("fetching product %d: %w", id, err)
	}
	return &p, nil
}

// Update overwrites name and description and refreshes updated_at. The
// SKU is immutable once created.
func (s *ProductStore) Update(ctx context.Context, p *catalog.Product) error {
	row := s.pool.QueryRow(ctx,
		`UPDATE products SET name = $2, description = $3, updated_at = now()
		 WHERE id = $1
		 RETURNING updated_at`,
		p.ID, p.Name, p.Description,
	)
	if err := row.Scan(&p.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("updating product %d: %w", p.ID, err)
	}
	return nil
}

func (s *ProductStore) Delete(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, "DELETE FROM products WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("deleting product %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteBulk removes the given products and returns how many existed.
func (s *ProductStore) DeleteBulk(ctx context.Context, ids []int64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	tag, err := s.pool.Exec(ctx, "DELETE FROM products WHERE id = ANY($1)", ids)
	if err != nil {
		return 0, fmt.Errorf("bulk deleting products: %w", err)
	}
	return tag.RowsAffected(), nil
}

// DeleteAll empties the catalog and returns the removed row count.
func (s *ProductStore) DeleteAll(ctx context.Context) (int64, error) {
	tag, err := s.pool.Exec(ctx, "DELETE FROM products")
	if err != nil {
		return 0, fmt.Errorf("deleting all products: %w", err)
	}
	return tag.RowsAffected(), nil
}

// ListParams narrows and pages List results. Page is 1-based.
type ListParams struct {
	Search   string
	Page     int
	PageSize int
}

// List returns one page of products plus the total match count. Search
// matches SKU or name, case-insensitively.
func (s *ProductStore) List(ctx context.Context, params ListParams) ([]catalog.Product, int, error) {
	if params.Page < 1 {
		params.Page = 1
	}
	if params.PageSize < 1 || params.PageSize > 500 {
		params.PageSize = 50
	}

	where := ""
	args := []any{}
	if params.Search != "" {
		where = "WHERE sku ILIKE $1 OR name ILIKE $1"
		args = append(args, "%"+params.Search+"%")
	}

	var total int
	if err := s.pool.QueryRow(ctx, "SELECT count(*) FROM products "+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting products: %w", err)
	}

	limitArg := len(args) + 1
	offsetArg := len(args) + 2
	args = append(args, params.PageSize, (params.Page-1)*params.PageSize)

	rows, err := s.pool.Query(ctx,
		fmt.Sprintf("SELECT %s FROM products %s ORDER BY id LIMIT $%d OFFSET $%d",
			productColumns, where, limitArg, offsetArg),
		args...,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("listing products: %w", err)
	}
	defer rows.Close()

	var out []catalog.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scanning product: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("reading products: %w", err)
	}
	return out, total, nil
}
