package dto

import (
	"time"

	"github.com/shopspring/decimal"
)

// ─── Request DTOs ────────────────────────────────────────────────────────────

type ApplyMovementRequest struct {
	MovementType string `json:"movement_type" validate:"required,oneof=charge payment adjustment discount interest"`
	// Amount must be positive for every type except adjustment, which carries
	// its own sign.
	Amount          decimal.Decimal `json:"amount"            validate:"required"`
	PaymentMethodID *string         `json:"payment_method_id" validate:"omitempty,uuid"`
	ReferenceType   *string         `json:"reference_type"    validate:"omitempty,min=2,max=50"`
	ReferenceID     *string         `json:"reference_id"      validate:"omitempty,uuid"`
	Description     string          `json:"description"       validate:"required,min=3,max=200"`
	Notes           *string         `json:"notes"`
	// OverrideCreditLimit lets a supervisor push a charge past the limit.
	OverrideCreditLimit bool `json:"override_credit_limit"`
}

type SurchargeRequest struct {
	SurchargeType string          `json:"surcharge_type" validate:"required,oneof=percentage fixed"`
	Value         decimal.Decimal `json:"value"          validate:"required,gt=0"`
	Description   *string         `json:"description"`
}

type UpdateAccountRequest struct {
	CreditLimit     *decimal.Decimal `json:"credit_limit"      validate:"omitempty,min=0"`
	PaymentTermDays *int             `json:"payment_term_days" validate:"omitempty,min=1"`
	Status          *string          `json:"status"            validate:"omitempty,oneof=active suspended closed"`
}

// MovementFilters are query-string filters for the movement listing.
type MovementFilters struct {
	MovementType string `form:"movement_type" validate:"omitempty,oneof=charge payment adjustment discount interest"`
	From         string `form:"from"          validate:"omitempty,datetime=2006-01-02"`
	To           string `form:"to"            validate:"omitempty,datetime=2006-01-02"`
	Page         int    `form:"page"`
	Limit        int    `form:"limit"`
}

type AccountFilters struct {
	Status    string `form:"status"   validate:"omitempty,oneof=active suspended closed"`
	HasDebt   bool   `form:"has_debt"`
	IsOverdue bool   `form:"overdue"`
	Page      int    `form:"page"`
	Limit     int    `form:"limit"`
}

// ─── Response DTOs ───────────────────────────────────────────────────────────

type AccountResponse struct {
	ID               string          `json:"id"`
	CustomerID       string          `json:"customer_id"`
	Balance          decimal.Decimal `json:"balance"`
	CreditLimit      decimal.Decimal `json:"credit_limit"`
	Status           string          `json:"status"`
	DaysOverdue      int             `json:"days_overdue"`
	PaymentTermDays  int             `json:"payment_term_days"`
	LastPaymentDate  *time.Time      `json:"last_payment_date,omitempty"`
	LastPurchaseDate *time.Time      `json:"last_purchase_date,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
}

type AccountMovementResponse struct {
	ID              string          `json:"id"`
	AccountID       string          `json:"account_id"`
	MovementType    string          `json:"movement_type"`
	Amount          decimal.Decimal `json:"amount"`
	BalanceBefore   decimal.Decimal `json:"balance_before"`
	BalanceAfter    decimal.Decimal `json:"balance_after"`
	Description     string          `json:"description"`
	ReferenceType   *string         `json:"reference_type,omitempty"`
	ReferenceID     *string         `json:"reference_id,omitempty"`
	PaymentMethodID *string         `json:"payment_method_id,omitempty"`
	Notes           *string         `json:"notes,omitempty"`
	CreatedBy       *string         `json:"created_by,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	// Duplicate is true when the movement was not created by this request but
	// returned from a previous submission of the same reference.
	Duplicate bool `json:"duplicate,omitempty"`
}

type StatementSummary struct {
	TotalCharges   decimal.Decimal `json:"total_charges"`
	TotalPayments  decimal.Decimal `json:"total_payments"`
	CurrentBalance decimal.Decimal `json:"current_balance"`
	// CustomerPosition: customer_owes | business_owes | settled
	CustomerPosition string `json:"customer_position"`
}

type AccountStatement struct {
	Account   AccountResponse           `json:"account"`
	Movements []AccountMovementResponse `json:"movements"`
	Summary   StatementSummary          `json:"summary"`
}

type AccountStats struct {
	TotalAccounts     int             `json:"total_accounts"`
	ActiveAccounts    int             `json:"active_accounts"`
	SuspendedAccounts int             `json:"suspended_accounts"`
	TotalDebtors      int             `json:"total_debtors"`
	TotalDebt         decimal.Decimal `json:"total_debt"`
	AverageDebt       decimal.Decimal `json:"average_debt"`
	OverdueAccounts   int             `json:"overdue_accounts"`
	TotalOverdue      decimal.Decimal `json:"total_overdue"`
}

type OverdueAlert struct {
	CustomerID      string          `json:"customer_id"`
	AccountID       string          `json:"account_id"`
	Balance         decimal.Decimal `json:"balance"`
	DaysOverdue     int             `json:"days_overdue"`
	LastPaymentDate *time.Time      `json:"last_payment_date,omitempty"`
}

type PaymentMethodResponse struct {
	ID       string `json:"id"`
	Code     string `json:"code"`
	Name     string `json:"name"`
	IsActive bool   `json:"is_active"`
}
