package repository

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

// Sentinel errors surfaced by the store layer. Services translate these into
// the caller-facing taxonomy; they never leak to HTTP responses directly.
var (
	// ErrDuplicateReference — the partial unique index on
	// (account_id, reference_type, reference_id) rejected the insert. This is
	// the final idempotency backstop; callers treat it as "already recorded".
	ErrDuplicateReference = errors.New("duplicate ledger reference")

	// ErrUniqueViolation — any other unique-constraint hit (single open
	// register, one register per business date).
	ErrUniqueViolation = errors.New("unique constraint violation")

	// ErrLockContention — lock-wait timeout, serialization failure or
	// deadlock. Safe to retry at the caller.
	ErrLockContention = errors.New("row lock contention")
)

// Postgres SQLSTATE codes this layer cares about.
const (
	pgUniqueViolation      = "23505"
	pgLockNotAvailable     = "55P03"
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
)

const accountReferenceIndex = "uq_account_movements_reference"

// translatePgError maps driver errors onto the store sentinels so that the
// service layer never inspects SQLSTATEs itself.
func translatePgError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case pgUniqueViolation:
		if pgErr.ConstraintName == accountReferenceIndex {
			return ErrDuplicateReference
		}
		return ErrUniqueViolation
	case pgLockNotAvailable, pgSerializationFailure, pgDeadlockDetected:
		return ErrLockContention
	}
	return err
}
