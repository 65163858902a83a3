// Package store implements Postgres persistence for products, import
// jobs and webhooks on top of pgx connection pools.
package store

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("not found")

// IsUniqueViolation reports whether err is a Postgres unique constraint
// violation, so handlers can answer 409 instead of 500.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
