package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AccountStatus is the credit account state. CLOSED is terminal.
type AccountStatus string

const (
	AccountActive    AccountStatus = "active"
	AccountSuspended AccountStatus = "suspended"
	AccountClosed    AccountStatus = "closed"
)

// AccountMovementType is the closed set of ledger entry kinds.
type AccountMovementType string

const (
	MovementCharge     AccountMovementType = "charge"
	MovementPayment    AccountMovementType = "payment"
	MovementAdjustment AccountMovementType = "adjustment"
	MovementDiscount   AccountMovementType = "discount"
	MovementInterest   AccountMovementType = "interest"
)

// SignedAmount converts the caller-supplied amount into the balance delta.
// Charges and interest increase the balance (the customer owes more), payments
// and discounts decrease it. Adjustments carry their own sign.
func SignedAmount(t AccountMovementType, amount decimal.Decimal) (decimal.Decimal, error) {
	switch t {
	case MovementCharge, MovementInterest:
		return amount.Abs(), nil
	case MovementPayment, MovementDiscount:
		return amount.Abs().Neg(), nil
	case MovementAdjustment:
		return amount, nil
	default:
		return decimal.Zero, fmt.Errorf("unknown account movement type %q", t)
	}
}

// CustomerAccount is the running credit account for one customer.
// Balance convention: > 0 the customer owes the business, < 0 the business
// owes the customer. Balance always equals the BalanceAfter of the most
// recent AccountMovement (or zero when none exist).
type CustomerAccount struct {
	ID              uuid.UUID       `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	CustomerID      uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex"`
	Balance         decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0;index"`
	// CreditLimit 0 means no limit established.
	CreditLimit     decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0"`
	Status          AccountStatus   `gorm:"type:varchar(10);not null;default:'active';index"`
	DaysOverdue     int             `gorm:"not null;default:0;index"`
	PaymentTermDays int             `gorm:"not null;default:30"`
	LastPaymentDate  *time.Time
	LastPurchaseDate *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time

	Movements []AccountMovement `gorm:"foreignKey:AccountID"`
}

// AccountMovement is one append-only ledger entry with before/after balance
// snapshots. Never updated or deleted; corrections are new adjustment entries.
// At most one movement may exist per (AccountID, ReferenceType, ReferenceID)
// when ReferenceID is non-null (partial unique index
// uq_account_movements_reference) — the idempotency boundary for retried
// business events.
type AccountMovement struct {
	ID            uuid.UUID           `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	AccountID     uuid.UUID           `gorm:"type:uuid;not null;index"`
	MovementType  AccountMovementType `gorm:"type:varchar(12);not null;index"`
	// Amount is signed: > 0 debits the customer, < 0 credits them.
	Amount        decimal.Decimal `gorm:"type:decimal(20,2);not null"`
	BalanceBefore decimal.Decimal `gorm:"type:decimal(20,2);not null"`
	BalanceAfter  decimal.Decimal `gorm:"type:decimal(20,2);not null"`
	Description   string          `gorm:"type:varchar(200);not null"`
	ReferenceType *string         `gorm:"type:varchar(50);index:idx_account_movements_reference"`
	ReferenceID   *uuid.UUID      `gorm:"type:uuid;index:idx_account_movements_reference"`
	PaymentMethodID *uuid.UUID    `gorm:"type:uuid"`
	PaymentMethod   *PaymentMethod
	Notes         *string    `gorm:"type:text"`
	CreatedBy     *uuid.UUID `gorm:"type:uuid"`
	CreatedAt     time.Time  `gorm:"index"`
}
