// Package storage provides the PostgreSQL persistence layer for TraceHub.
//
// It manages connection pooling via pgxpool, a forward-only migration
// runner over an embedded filesystem, and query methods for all tables.
// All multi-write operations run inside a single transaction via WithTx;
// idempotency is enforced by unique indexes, surfaced as ErrConflict.
package storage

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// querier is the subset of pgx operations shared by pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// DB wraps a pgxpool.Pool and hands out Stores bound to either the pool
// (autocommit reads) or a transaction (batched writes).
type DB struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// Store executes queries against either the pool or an open transaction.
type Store struct {
	q querier
}

// New creates a new DB with a connection pool and verifies connectivity.
func New(ctx context.Context, dsn string, logger *slog.Logger) (*DB, error) {
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("storage: parse DSN: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("storage: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("storage: ping pool: %w", err)
	}

	return &DB{pool: pool, logger: logger}, nil
}

// Pool returns the underlying connection pool for use by other packages.
func (db *DB) Pool() *pgxpool.Pool {
	return db.pool
}

// Store returns a Store bound to the pool (each call autocommits).
func (db *DB) Store() *Store {
	return &Store{q: db.pool}
}

// WithTx runs fn inside a single transaction. A unique-constraint violation
// raised anywhere in fn (or at commit) rolls the whole transaction back and
// is returned as ErrConflict, so no partial writes are ever visible.
func (db *DB) WithTx(ctx context.Context, fn func(s *Store) error) error {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("storage: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(&Store{q: tx}); err != nil {
		return conflictOr(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return conflictOr(fmt.Errorf("storage: commit tx: %w", err))
	}
	return nil
}

// Ping checks connectivity to the database.
func (db *DB) Ping(ctx context.Context) error {
	return db.pool.Ping(ctx)
}

// Close shuts down the connection pool.
func (db *DB) Close() {
	db.pool.Close()
}

// RegisterPoolMetrics exports pgxpool statistics as OTEL observable gauges.
// Call after telemetry.Init so the global meter provider is configured.
func (db *DB) RegisterPoolMetrics() {
	meter := otel.GetMeterProvider().Meter("tracehub/storage")

	totalConns, err1 := meter.Int64ObservableGauge("db.pool.total_conns")
	idleConns, err2 := meter.Int64ObservableGauge("db.pool.idle_conns")
	acquired, err3 := meter.Int64ObservableGauge("db.pool.acquired_conns")
	if err1 != nil || err2 != nil || err3 != nil {
		db.logger.Warn("storage: pool metric instruments not created")
		return
	}

	_, err := meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		stat := db.pool.Stat()
		o.ObserveInt64(totalConns, int64(stat.TotalConns()))
		o.ObserveInt64(idleConns, int64(stat.IdleConns()))
		o.ObserveInt64(acquired, int64(stat.AcquiredConns()))
		return nil
	}, totalConns, idleConns, acquired)
	if err != nil {
		db.logger.Warn("storage: pool metrics callback not registered", "error", err)
	}
}
