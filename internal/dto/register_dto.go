package dto

import (
	"time"

	"github.com/shopspring/decimal"
)

// ─── Request DTOs ────────────────────────────────────────────────────────────

type OpenRegisterRequest struct {
	OpeningAmount decimal.Decimal `json:"opening_amount" validate:"min=0"`
	OpeningNotes  *string         `json:"opening_notes"`
	// ManuallyAdjusted flags that the cashier overrode the suggested opening
	// amount carried over from the previous close.
	ManuallyAdjusted bool    `json:"manually_adjusted"`
	AdjustmentReason *string `json:"adjustment_reason"`
}

type RecordCashMovementRequest struct {
	RegisterID      string          `json:"register_id"       validate:"required,uuid"`
	MovementType    string          `json:"movement_type"     validate:"required,oneof=income expense"`
	Amount          decimal.Decimal `json:"amount"            validate:"required,gt=0"`
	PaymentMethodID string          `json:"payment_method_id" validate:"required,uuid"`
	ReferenceType   *string         `json:"reference_type"    validate:"omitempty,min=2,max=50"`
	ReferenceID     *string         `json:"reference_id"      validate:"omitempty,uuid"`
	Description     string          `json:"description"       validate:"required,min=3,max=200"`
}

type CloseRegisterRequest struct {
	// CountedAmounts is the physically counted amount per payment method code
	// (e.g. "cash": 1300). Methods not declared default to their expected
	// amount with zero difference.
	CountedAmounts map[string]decimal.Decimal `json:"counted_amounts" validate:"required"`
	ClosingNotes   *string                    `json:"closing_notes"`
}

// ─── Response DTOs ───────────────────────────────────────────────────────────

type MethodTotal struct {
	PaymentMethodID string           `json:"payment_method_id"`
	Code            string           `json:"code"`
	Name            string           `json:"name"`
	InitialAmount   decimal.Decimal  `json:"initial_amount"`
	TotalIncome     decimal.Decimal  `json:"total_income"`
	TotalExpense    decimal.Decimal  `json:"total_expense"`
	ExpectedAmount  decimal.Decimal  `json:"expected_amount"`
	ActualAmount    *decimal.Decimal `json:"actual_amount,omitempty"`
	Difference      *decimal.Decimal `json:"difference,omitempty"`
}

type CashMovementResponse struct {
	ID              string          `json:"id"`
	RegisterID      string          `json:"register_id"`
	MovementType    string          `json:"movement_type"`
	Amount          decimal.Decimal `json:"amount"`
	PaymentMethodID string          `json:"payment_method_id"`
	ReferenceType   *string         `json:"reference_type,omitempty"`
	ReferenceID     *string         `json:"reference_id,omitempty"`
	Description     string          `json:"description"`
	CreatedBy       string          `json:"created_by"`
	CreatedAt       time.Time       `json:"created_at"`
}

type RegisterReport struct {
	ID             string           `json:"id"`
	BusinessDate   string           `json:"business_date"` // YYYY-MM-DD
	Status         string           `json:"status"`
	OpeningAmount  decimal.Decimal  `json:"opening_amount"`
	TotalIncome    decimal.Decimal  `json:"total_income"`
	TotalExpense   decimal.Decimal  `json:"total_expense"`
	ExpectedAmount *decimal.Decimal `json:"expected_amount,omitempty"`
	ActualAmount   *decimal.Decimal `json:"actual_amount,omitempty"`
	Difference     *decimal.Decimal `json:"difference,omitempty"`
	OpeningNotes   *string          `json:"opening_notes,omitempty"`
	ClosingNotes   *string          `json:"closing_notes,omitempty"`
	OpenedBy       string           `json:"opened_by"`
	ClosedBy       *string          `json:"closed_by,omitempty"`
	OpenedAt       time.Time        `json:"opened_at"`
	ClosedAt       *time.Time       `json:"closed_at,omitempty"`
	Totals         []MethodTotal    `json:"totals"`
	Movements      []CashMovementResponse `json:"movements,omitempty"`
}

// ClosingSummary is the reconciliation result returned by a close.
type ClosingSummary struct {
	RegisterID      string          `json:"register_id"`
	ClosedAt        time.Time       `json:"closed_at"`
	ByMethod        []MethodTotal   `json:"by_method"`
	ExpectedTotal   decimal.Decimal `json:"expected_total"`
	CountedTotal    decimal.Decimal `json:"counted_total"`
	TotalDifference decimal.Decimal `json:"total_difference"`
	VariancePct     decimal.Decimal `json:"variance_pct"`
	// Classification: normal | warning | critical
	Classification string `json:"classification"`
	Status         string `json:"status"`
}

type RegisterStatus struct {
	HasOpenRegister   bool            `json:"has_open_register"`
	IsFromPreviousDay bool            `json:"is_from_previous_day"`
	Register          *RegisterReport `json:"register,omitempty"`
}

type SuggestedOpeningAmount struct {
	Suggested      decimal.Decimal `json:"suggested"`
	PreviousDate   *string         `json:"previous_date,omitempty"`
	PreviousActual decimal.Decimal `json:"previous_actual"`
}

type RegisterStats struct {
	TotalRegisters    int             `json:"total_registers"`
	ClosedRegisters   int             `json:"closed_registers"`
	OpenRegisters     int             `json:"open_registers"`
	TotalIncome       decimal.Decimal `json:"total_income"`
	TotalExpense      decimal.Decimal `json:"total_expense"`
	NetCashFlow       decimal.Decimal `json:"net_cash_flow"`
	TotalDifferences  decimal.Decimal `json:"total_differences"`
	AverageDifference decimal.Decimal `json:"average_difference"`
}

// CashSyncJob is the queue payload echoing a customer account payment into
// the open cash register.
type CashSyncJob struct {
	AccountMovementID string          `json:"account_movement_id"`
	CustomerID        string          `json:"customer_id"`
	Amount            decimal.Decimal `json:"amount"`
	PaymentMethodID   string          `json:"payment_method_id"`
	Description       string          `json:"description"`
	CreatedBy         string          `json:"created_by"`
}

// ClosingReportJob is the queue payload for post-close report generation.
type ClosingReportJob struct {
	RegisterID string `json:"register_id"`
	Critical   bool   `json:"critical"`
}
