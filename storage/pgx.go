package storage

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DB is the subset of *pgxpool.Pool (or pgx.Tx) the pgx client needs.
type DB interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

var _ DB = (*pgxpool.Pool)(nil)

// PgxClient runs adapter statements on PostgreSQL. Pair it with
// PostgresDialect.
type PgxClient struct {
	db DB
}

var _ Client = (*PgxClient)(nil)

// NewPgxClient wraps db.
func NewPgxClient(db DB) *PgxClient {
	return &PgxClient{db: db}
}

// Connect opens a pool for dsn and returns a client and an adapter bound
// to it. Callers close the pool.
func Connect(ctx context.Context, dsn string, opts ...Option) (*pgxpool.Pool, *Adapter, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}
	opts = append([]Option{WithDialect(PostgresDialect{})}, opts...)
	return pool, NewAdapter(NewPgxClient(pool), opts...), nil
}

// QueryRows returns every row as a column-keyed map.
func (c *PgxClient) QueryRows(ctx context.Context, query string, args ...any) ([]map[string]any, error) {
	rows, err := c.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowToMap)
}

// QueryScalar returns the first column of the first row, or nil when the
// query returns no rows.
func (c *PgxClient) QueryScalar(ctx context.Context, query string, args ...any) (any, error) {
	var v any
	if err := c.db.QueryRow(ctx, query, args...).Scan(&v); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return v, nil
}

// Exec runs a write. LastInsertID is always zero; inserts use RETURNING.
func (c *PgxClient) Exec(ctx context.Context, query string, args ...any) (ExecResult, error) {
	tag, err := c.db.Exec(ctx, query, args...)
	if err != nil {
		return ExecResult{}, err
	}
	return ExecResult{RowsAffected: tag.RowsAffected()}, nil
}
