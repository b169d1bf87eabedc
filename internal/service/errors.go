package service

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Caller-facing error taxonomy. Handlers map these onto HTTP status codes;
// other in-process callers branch on them with errors.Is / errors.As.
var (
	// ErrConflict — the operation contradicts real business state (register
	// already open/closed, account closed). Never retried automatically.
	ErrConflict = errors.New("conflict with current state")

	// ErrNotFound — the referenced register or account does not exist or is
	// not in the expected state.
	ErrNotFound = errors.New("not found")

	// ErrRetryable — transient datastore contention (lock-wait timeout,
	// serialization failure). The same call is safe to retry: movement
	// creation is idempotent under a reference.
	ErrRetryable = errors.New("transient contention, retry")

	// ErrClosingNotesRequired — a close with critical variance needs
	// supervisor notes.
	ErrClosingNotesRequired = errors.New("critical variance requires closing notes")
)

// CreditLimitError rejects a charge that would push the balance past the
// account's credit limit without an explicit override.
type CreditLimitError struct {
	CreditLimit decimal.Decimal
	Balance     decimal.Decimal
	Attempted   decimal.Decimal
}

func (e *CreditLimitError) Error() string {
	return fmt.Sprintf("credit limit exceeded: limit %s, balance %s, attempted charge %s",
		e.CreditLimit.StringFixed(2), e.Balance.StringFixed(2), e.Attempted.StringFixed(2))
}
