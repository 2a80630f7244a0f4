package storage

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

// Sentinel errors returned by storage operations.
var (
	// ErrNotFound indicates the requested row does not exist in the
	// caller's project scope.
	ErrNotFound = errors.New("storage: not found")

	// ErrConflict indicates a unique constraint rejected the write, i.e.
	// an idempotency-key replay with a different payload or a concurrent
	// duplicate. Handlers map it to HTTP 409.
	ErrConflict = errors.New("storage: conflict")
)

// uniqueViolation is the PostgreSQL error code for unique_violation.
const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

// conflictOr maps unique-constraint violations to ErrConflict and passes
// every other error through unchanged.
func conflictOr(err error) error {
	if isUniqueViolation(err) {
		return ErrConflict
	}
	return err
}
