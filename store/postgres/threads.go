// Package postgres keeps the user -> assistant thread mapping directly in Postgres,
// for deployments that reach the database without the Supabase REST gateway.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/lib/pq"
)

// ThreadRepository stores thread mappings in a plain table.
type ThreadRepository struct {
	db    *sql.DB
	table string
}

// Open connects to dsn and returns a repository over table (default chat_threads).
func Open(ctx context.Context, dsn, table string) (*ThreadRepository, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}
	return New(db, table), nil
}

// New wraps an existing connection pool.
func New(db *sql.DB, table string) *ThreadRepository {
	if table == "" {
		table = "chat_threads"
	}
	return &ThreadRepository{db: db, table: table}
}

// EnsureTable creates the mapping table when it does not exist.
func (r *ThreadRepository) EnsureTable(ctx context.Context) error {
	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id         BIGSERIAL PRIMARY KEY,
			user_id    TEXT        NOT NULL,
			thread_id  TEXT        NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`, r.table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_user ON %s(user_id)`, r.table, r.table),
	}
	for _, s := range stmts {
		if _, err := r.db.ExecContext(ctx, s); err != nil {
			return err
		}
	}
	return nil
}

// GetThread returns the newest thread id for userID, or "" when there is none.
func (r *ThreadRepository) GetThread(ctx context.Context, userID string) (string, error) {
	query := fmt.Sprintf(`SELECT thread_id FROM %s WHERE user_id = $1 ORDER BY created_at DESC LIMIT 1`, r.table)

	var threadID string
	err := r.db.QueryRowContext(ctx, query, userID).Scan(&threadID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get thread: %w", err)
	}
	return threadID, nil
}

// SaveThread inserts a mapping row.
func (r *ThreadRepository) SaveThread(ctx context.Context, userID, threadID string) error {
	stmt := fmt.Sprintf(`INSERT INTO %s (user_id, thread_id) VALUES ($1, $2)`, r.table)
	if _, err := r.db.ExecContext(ctx, stmt, userID, threadID); err != nil {
		return fmt.Errorf("failed to save thread: %w", err)
	}
	return nil
}

// Close closes the connection pool.
func (r *ThreadRepository) Close() error {
	return r.db.Close()
}
