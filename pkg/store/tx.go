package store

import (
	"context"
	stdsql "database/sql"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

// withTx runs fn inside a transaction, rolling back on error or panic and
// committing otherwise.
func (s *Store) withTx(ctx context.Context, fn func(tx *stdsql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// isUniqueViolation reports whether err is a Postgres unique-constraint
// violation (SQLSTATE 23505), surfaced through the pgx driver.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
