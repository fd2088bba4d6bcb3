package history

import (
	"context"
	"database/sql"
)

// safeDB wraps *sql.DB and only exposes context-aware methods, so every
// ledger query carries the caller's deadline.
type safeDB struct {
	db *sql.DB
}

func (d *safeDB) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return d.db.QueryContext(ctx, query, args...)
}

func (d *safeDB) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return d.db.ExecContext(ctx, query, args...)
}

func (d *safeDB) Close() error {
	return d.db.Close()
}
