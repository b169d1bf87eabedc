package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// RegisterStatus is the cash register session state.
// open --close--> closed; closed sessions of the current business date may be
// reopened, any other transition requires a new session.
type RegisterStatus string

const (
	RegisterOpen   RegisterStatus = "open"
	RegisterClosed RegisterStatus = "closed"
)

// CashMovementType is the direction of a cash event.
type CashMovementType string

const (
	CashIncome  CashMovementType = "income"
	CashExpense CashMovementType = "expense"
)

// CashRegister represents one opening session of the physical drawer.
// At most one row may be open at any instant (partial unique index
// uq_cash_registers_open) and at most one row exists per business date.
type CashRegister struct {
	ID           uuid.UUID       `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	BusinessDate time.Time       `gorm:"type:date;not null;uniqueIndex"`
	OpenedAt     time.Time       `gorm:"not null"`
	ClosedAt     *time.Time
	OpeningAmount decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	TotalIncome   decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0"`
	TotalExpense  decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0"`
	// ExpectedAmount, ActualAmount and Difference are the closing snapshot;
	// nil while the session is open.
	ExpectedAmount *decimal.Decimal `gorm:"type:decimal(12,2)"`
	ActualAmount   *decimal.Decimal `gorm:"type:decimal(12,2)"`
	Difference     *decimal.Decimal `gorm:"type:decimal(12,2)"`
	Status         RegisterStatus   `gorm:"type:varchar(10);not null;default:'open';index"`
	OpeningNotes   *string          `gorm:"type:text"`
	ClosingNotes   *string          `gorm:"type:text"`
	OpenedBy       uuid.UUID        `gorm:"type:uuid;not null"`
	ClosedBy       *uuid.UUID       `gorm:"type:uuid"`
	CreatedAt      time.Time
	UpdatedAt      time.Time

	Movements []CashMovement       `gorm:"foreignKey:RegisterID"`
	Totals    []CashRegisterTotals `gorm:"foreignKey:RegisterID"`
}

// CashMovement is an immutable event in the cash ledger. Corrections are new
// offsetting movements, never edits — the repository exposes no update.
type CashMovement struct {
	ID              uuid.UUID        `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	RegisterID      uuid.UUID        `gorm:"type:uuid;not null;index"`
	MovementType    CashMovementType `gorm:"type:varchar(10);not null"`
	Amount          decimal.Decimal  `gorm:"type:decimal(12,2);not null"`
	PaymentMethodID uuid.UUID        `gorm:"type:uuid;not null"`
	PaymentMethod   *PaymentMethod
	// ReferenceType/ReferenceID point at the originating business event
	// (e.g. "sale_payment", "account_payment"); nil for manual entries.
	ReferenceType *string    `gorm:"type:varchar(50)"`
	ReferenceID   *uuid.UUID `gorm:"type:uuid"`
	Description   string     `gorm:"type:varchar(200);not null"`
	CreatedBy     uuid.UUID  `gorm:"type:uuid;not null"`
	CreatedAt     time.Time  `gorm:"index"`
}

// CashRegisterTotals is the per-(register, payment method) running aggregate.
// It is a derived cache of CashMovement rows: always recomputable via
// RegisterRepository.SumMovementsByMethod, updated only under row lock inside
// the same transaction as the movement insert.
type CashRegisterTotals struct {
	ID              uuid.UUID       `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	RegisterID      uuid.UUID       `gorm:"type:uuid;not null;index:idx_totals_register_method,unique"`
	PaymentMethodID uuid.UUID       `gorm:"type:uuid;not null;index:idx_totals_register_method,unique"`
	PaymentMethod   *PaymentMethod
	InitialAmount   decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0"`
	TotalIncome     decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0"`
	TotalExpense    decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0"`
	ExpectedAmount  decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0"`
	ActualAmount    *decimal.Decimal `gorm:"type:decimal(12,2)"`
	Difference      *decimal.Decimal `gorm:"type:decimal(12,2)"`
	CreatedAt       time.Time
	UpdatedAt       time.Time
}
