package storage

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

// Transaction retry policy for contended writes. Concurrent batches
// touching the same trace contend on the rollup recompute.
const (
	txMaxRetries = 3
	txBaseDelay  = 25 * time.Millisecond
)

// isRetriable reports whether err is a transient Postgres conflict worth
// re-running the transaction for. Unique violations are NOT retriable:
// they signal an idempotency conflict the caller must surface.
func isRetriable(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	switch pgErr.Code {
	case "40001": // serialization_failure
		return true
	case "40P01": // deadlock_detected
		return true
	default:
		return false
	}
}

// WithTxRetry runs fn through WithTx, retrying serialization and deadlock
// failures with jittered exponential backoff. Ingest and decide write
// transactions go through here; single-row admin writes use WithTx directly.
func (db *DB) WithTxRetry(ctx context.Context, fn func(s *Store) error) error {
	delay := txBaseDelay
	var err error
	for attempt := 0; attempt <= txMaxRetries; attempt++ {
		err = db.WithTx(ctx, fn)
		if err == nil || !isRetriable(err) {
			return err
		}
		if attempt == txMaxRetries {
			break
		}
		db.logger.Warn("storage: retrying contended transaction", "attempt", attempt+1, "error", err)
		jitter := time.Duration(rand.Int64N(int64(delay))) //nolint:gosec // jitter doesn't need crypto-strength randomness
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay + jitter):
		}
		delay *= 2
	}
	return err
}
