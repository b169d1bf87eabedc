package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"posledger/internal/dto"
	"posledger/internal/model"
	"posledger/internal/repository"
)

// Thresholds is the injected credit policy. Zero CreditGrace means charges
// are cut off exactly at the limit.
type Thresholds struct {
	SuspendOverdueDays     int
	CreditGrace            decimal.Decimal
	DefaultPaymentTermDays int
}

// AccountService manages customer credit accounts and their append-only
// movement ledger.
type AccountService interface {
	GetOrCreate(ctx context.Context, customerID uuid.UUID) (*dto.AccountResponse, error)
	GetAccount(ctx context.Context, customerID uuid.UUID) (*dto.AccountResponse, error)
	GetBalance(ctx context.Context, customerID uuid.UUID) (decimal.Decimal, error)

	ApplyMovement(ctx context.Context, actorID uuid.UUID, customerID uuid.UUID, req dto.ApplyMovementRequest) (*dto.AccountMovementResponse, error)
	ApplySurcharge(ctx context.Context, actorID uuid.UUID, customerID uuid.UUID, req dto.SurchargeRequest) (*dto.AccountMovementResponse, error)

	ListMovements(ctx context.Context, customerID uuid.UUID, f dto.MovementFilters) ([]dto.AccountMovementResponse, int64, error)
	Statement(ctx context.Context, customerID uuid.UUID, from, to *time.Time) (*dto.AccountStatement, error)

	ListAccounts(ctx context.Context, f dto.AccountFilters) ([]dto.AccountResponse, int64, error)
	Debtors(ctx context.Context) ([]dto.AccountResponse, error)
	Stats(ctx context.Context) (*dto.AccountStats, error)
	OverdueAlerts(ctx context.Context) ([]dto.OverdueAlert, error)

	UpdateAccount(ctx context.Context, customerID uuid.UUID, req dto.UpdateAccountRequest) (*dto.AccountResponse, error)

	// RecalculateOverdue refreshes days_overdue on every indebted account and
	// auto-suspends the ones past the policy threshold. Returns the number of
	// accounts updated and the number suspended.
	RecalculateOverdue(ctx context.Context) (updated, suspended int, err error)
}

type accountService struct {
	repo       repository.AccountRepository
	dispatcher JobDispatcher
	cache      BalanceCache
	policy     Thresholds
}

func NewAccountService(repo repository.AccountRepository, dispatcher JobDispatcher, cache BalanceCache, policy Thresholds) AccountService {
	if policy.DefaultPaymentTermDays <= 0 {
		policy.DefaultPaymentTermDays = 30
	}
	if policy.SuspendOverdueDays <= 0 {
		policy.SuspendOverdueDays = 30
	}
	return &accountService{repo: repo, dispatcher: dispatcher, cache: cache, policy: policy}
}

func (s *accountService) GetOrCreate(ctx context.Context, customerID uuid.UUID) (*dto.AccountResponse, error) {
	acc, err := s.getOrCreate(ctx, customerID)
	if err != nil {
		return nil, err
	}
	resp := toAccountResponse(*acc)
	return &resp, nil
}

func (s *accountService) getOrCreate(ctx context.Context, customerID uuid.UUID) (*model.CustomerAccount, error) {
	acc, err := s.repo.FindByCustomerID(ctx, customerID)
	if err == nil {
		return acc, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	acc = &model.CustomerAccount{
		CustomerID:      customerID,
		Status:          model.AccountActive,
		PaymentTermDays: s.policy.DefaultPaymentTermDays,
	}
	if err := s.repo.Create(ctx, acc); err != nil {
		// Lost a creation race: the other writer's row is the account.
		if errors.Is(err, repository.ErrUniqueViolation) {
			return s.repo.FindByCustomerID(ctx, customerID)
		}
		return nil, err
	}

	log.Info().
		Str("account_id", acc.ID.String()).
		Str("customer_id", customerID.String()).
		Msg("customer account created")
	return acc, nil
}

func (s *accountService) GetAccount(ctx context.Context, customerID uuid.UUID) (*dto.AccountResponse, error) {
	acc, err := s.repo.FindByCustomerID(ctx, customerID)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	resp := toAccountResponse(*acc)
	return &resp, nil
}

func (s *accountService) GetBalance(ctx context.Context, customerID uuid.UUID) (decimal.Decimal, error) {
	if s.cache != nil {
		if balance, ok := s.cache.Get(ctx, customerID.String()); ok {
			return balance, nil
		}
	}

	acc, err := s.repo.FindByCustomerID(ctx, customerID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		// No account yet means nothing owed either way.
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, err
	}

	if s.cache != nil {
		s.cache.Set(ctx, customerID.String(), acc.Balance)
	}
	return acc.Balance, nil
}

func (s *accountService) ApplyMovement(ctx context.Context, actorID uuid.UUID, customerID uuid.UUID, req dto.ApplyMovementRequest) (*dto.AccountMovementResponse, error) {
	movementType := model.AccountMovementType(req.MovementType)
	signed, err := model.SignedAmount(movementType, req.Amount)
	if err != nil {
		return nil, err
	}
	if signed.IsZero() {
		return nil, fmt.Errorf("%w: zero-amount movement", ErrConflict)
	}

	var methodID, refID *uuid.UUID
	if req.PaymentMethodID != nil {
		id, err := uuid.Parse(*req.PaymentMethodID)
		if err != nil {
			return nil, fmt.Errorf("%w: payment method %q", ErrNotFound, *req.PaymentMethodID)
		}
		methodID = &id
	}
	if req.ReferenceID != nil {
		id, err := uuid.Parse(*req.ReferenceID)
		if err != nil {
			return nil, fmt.Errorf("%w: reference id %q", ErrNotFound, *req.ReferenceID)
		}
		refID = &id
	}

	acc, err := s.getOrCreate(ctx, customerID)
	if err != nil {
		return nil, err
	}

	var (
		movement  *model.AccountMovement
		duplicate bool
	)

	err = s.repo.Transaction(ctx, func(tx *gorm.DB) error {
		locked, err := s.repo.FindByIDForUpdate(tx, acc.ID)
		if err != nil {
			return err
		}

		// Idempotency first: a retried business event must come back as the
		// already-recorded movement even if the account was suspended or
		// closed since the original posting.
		if req.ReferenceType != nil && refID != nil {
			existing, err := s.repo.FindMovementByReferenceTx(tx, locked.ID, *req.ReferenceType, *refID)
			if err == nil {
				movement, duplicate = existing, true
				return nil
			}
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}
		}

		switch {
		case locked.Status == model.AccountClosed:
			return fmt.Errorf("%w: account is closed", ErrConflict)
		case locked.Status == model.AccountSuspended && movementType == model.MovementCharge:
			return fmt.Errorf("%w: account is suspended, charges are blocked", ErrConflict)
		}

		newBalance := locked.Balance.Add(signed)

		if movementType == model.MovementCharge &&
			locked.CreditLimit.IsPositive() &&
			newBalance.GreaterThan(locked.CreditLimit.Add(s.policy.CreditGrace)) &&
			!req.OverrideCreditLimit {
			return &CreditLimitError{
				CreditLimit: locked.CreditLimit,
				Balance:     locked.Balance,
				Attempted:   signed,
			}
		}

		m := &model.AccountMovement{
			AccountID:       locked.ID,
			MovementType:    movementType,
			Amount:          signed,
			BalanceBefore:   locked.Balance,
			BalanceAfter:    newBalance,
			Description:     req.Description,
			ReferenceType:   req.ReferenceType,
			ReferenceID:     refID,
			PaymentMethodID: methodID,
			Notes:           req.Notes,
			CreatedBy:       &actorID,
		}
		if err := s.repo.CreateMovementTx(tx, m); err != nil {
			// The partial unique index caught a race between two identical
			// retries; surface the winner's row as the result.
			if errors.Is(err, repository.ErrDuplicateReference) && req.ReferenceType != nil && refID != nil {
				existing, ferr := s.repo.FindMovementByReferenceTx(tx, locked.ID, *req.ReferenceType, *refID)
				if ferr != nil {
					return ferr
				}
				movement, duplicate = existing, true
				return nil
			}
			return err
		}
		movement = m

		now := time.Now()
		locked.Balance = newBalance
		switch movementType {
		case model.MovementPayment:
			locked.LastPaymentDate = &now
		case model.MovementCharge:
			locked.LastPurchaseDate = &now
		}
		locked.DaysOverdue = overdueDays(locked, now)
		s.applyStatusTransition(locked, movementType)

		acc = locked
		return s.repo.SaveTx(tx, locked)
	})
	if err != nil {
		return nil, mapStoreErr(err)
	}

	if duplicate {
		log.Info().
			Str("account_id", acc.ID.String()).
			Str("movement_id", movement.ID.String()).
			Str("reference_id", refID.String()).
			Msg("duplicate reference, returning existing movement")
		resp := toAccountMovementResponse(*movement)
		resp.Duplicate = true
		return &resp, nil
	}

	if s.cache != nil {
		s.cache.Invalidate(ctx, customerID.String())
	}

	log.Info().
		Str("account_id", acc.ID.String()).
		Str("movement_id", movement.ID.String()).
		Str("type", req.MovementType).
		Str("amount", signed.StringFixed(2)).
		Str("balance", acc.Balance.StringFixed(2)).
		Msg("account movement applied")

	// Payments received at the counter are echoed into the open cash register
	// asynchronously so the account write never waits on the register lock.
	if movementType == model.MovementPayment && s.dispatcher != nil {
		if methodID == nil {
			log.Warn().
				Str("movement_id", movement.ID.String()).
				Msg("payment without payment method, skipping cash register echo")
		} else {
			job := dto.CashSyncJob{
				AccountMovementID: movement.ID.String(),
				CustomerID:        customerID.String(),
				Amount:            signed.Abs(),
				PaymentMethodID:   methodID.String(),
				Description:       fmt.Sprintf("Account payment from customer %s", customerID),
				CreatedBy:         actorID.String(),
			}
			if err := s.dispatcher.EnqueueCashSync(ctx, job); err != nil {
				log.Error().Err(err).Str("movement_id", movement.ID.String()).Msg("could not enqueue cash register echo")
			}
		}
	}

	resp := toAccountMovementResponse(*movement)
	return &resp, nil
}

func (s *accountService) ApplySurcharge(ctx context.Context, actorID uuid.UUID, customerID uuid.UUID, req dto.SurchargeRequest) (*dto.AccountMovementResponse, error) {
	acc, err := s.repo.FindByCustomerID(ctx, customerID)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	if !acc.Balance.IsPositive() {
		return nil, fmt.Errorf("%w: no outstanding balance to surcharge", ErrConflict)
	}

	var amount decimal.Decimal
	var description string
	switch req.SurchargeType {
	case "percentage":
		amount = acc.Balance.Mul(req.Value).Div(decimal.NewFromInt(100)).Round(2)
		description = fmt.Sprintf("Surcharge %s%% on outstanding balance", req.Value)
	case "fixed":
		amount = req.Value
		description = "Fixed surcharge on outstanding balance"
	default:
		return nil, fmt.Errorf("%w: unknown surcharge type %q", ErrConflict, req.SurchargeType)
	}
	if req.Description != nil && *req.Description != "" {
		description = *req.Description
	}

	return s.ApplyMovement(ctx, actorID, customerID, dto.ApplyMovementRequest{
		MovementType: string(model.MovementInterest),
		Amount:       amount,
		Description:  description,
	})
}

func (s *accountService) ListMovements(ctx context.Context, customerID uuid.UUID, f dto.MovementFilters) ([]dto.AccountMovementResponse, int64, error) {
	acc, err := s.repo.FindByCustomerID(ctx, customerID)
	if err != nil {
		return nil, 0, mapStoreErr(err)
	}

	filters, err := toMovementFilters(f)
	if err != nil {
		return nil, 0, err
	}

	movs, total, err := s.repo.ListMovements(ctx, acc.ID, filters)
	if err != nil {
		return nil, 0, err
	}

	out := make([]dto.AccountMovementResponse, 0, len(movs))
	for _, m := range movs {
		out = append(out, toAccountMovementResponse(m))
	}
	return out, total, nil
}

func (s *accountService) Statement(ctx context.Context, customerID uuid.UUID, from, to *time.Time) (*dto.AccountStatement, error) {
	acc, err := s.repo.FindByCustomerID(ctx, customerID)
	if err != nil {
		return nil, mapStoreErr(err)
	}

	movs, _, err := s.repo.ListMovements(ctx, acc.ID, repository.AccountMovementFilters{
		From: from, To: to, Page: 1, Limit: 500,
	})
	if err != nil {
		return nil, err
	}

	statement := &dto.AccountStatement{
		Account:   toAccountResponse(*acc),
		Movements: make([]dto.AccountMovementResponse, 0, len(movs)),
	}
	for _, m := range movs {
		statement.Movements = append(statement.Movements, toAccountMovementResponse(m))
		if m.Amount.IsPositive() {
			statement.Summary.TotalCharges = statement.Summary.TotalCharges.Add(m.Amount)
		} else {
			statement.Summary.TotalPayments = statement.Summary.TotalPayments.Add(m.Amount.Abs())
		}
	}
	statement.Summary.CurrentBalance = acc.Balance
	switch {
	case acc.Balance.IsPositive():
		statement.Summary.CustomerPosition = "customer_owes"
	case acc.Balance.IsNegative():
		statement.Summary.CustomerPosition = "business_owes"
	default:
		statement.Summary.CustomerPosition = "settled"
	}
	return statement, nil
}

func (s *accountService) ListAccounts(ctx context.Context, f dto.AccountFilters) ([]dto.AccountResponse, int64, error) {
	filters := repository.AccountFilters{
		HasDebt:   f.HasDebt,
		IsOverdue: f.IsOverdue,
		Page:      f.Page,
		Limit:     f.Limit,
	}
	if f.Status != "" {
		status := model.AccountStatus(f.Status)
		filters.Status = &status
	}
	if filters.Page < 1 {
		filters.Page = 1
	}
	if filters.Limit < 1 || filters.Limit > 100 {
		filters.Limit = 20
	}

	accounts, total, err := s.repo.List(ctx, filters)
	if err != nil {
		return nil, 0, err
	}

	out := make([]dto.AccountResponse, 0, len(accounts))
	for _, a := range accounts {
		out = append(out, toAccountResponse(a))
	}
	return out, total, nil
}

func (s *accountService) Debtors(ctx context.Context) ([]dto.AccountResponse, error) {
	accounts, err := s.repo.ListDebtors(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]dto.AccountResponse, 0, len(accounts))
	for _, a := range accounts {
		out = append(out, toAccountResponse(a))
	}
	return out, nil
}

func (s *accountService) Stats(ctx context.Context) (*dto.AccountStats, error) {
	accounts, err := s.repo.ListAll(ctx)
	if err != nil {
		return nil, err
	}

	stats := &dto.AccountStats{TotalAccounts: len(accounts)}
	for _, a := range accounts {
		switch a.Status {
		case model.AccountActive:
			stats.ActiveAccounts++
		case model.AccountSuspended:
			stats.SuspendedAccounts++
		}
		if a.Balance.IsPositive() {
			stats.TotalDebtors++
			stats.TotalDebt = stats.TotalDebt.Add(a.Balance)
			if a.DaysOverdue > 0 {
				stats.OverdueAccounts++
				stats.TotalOverdue = stats.TotalOverdue.Add(a.Balance)
			}
		}
	}
	if stats.TotalDebtors > 0 {
		stats.AverageDebt = stats.TotalDebt.
			Div(decimal.NewFromInt(int64(stats.TotalDebtors))).
			Round(2)
	}
	return stats, nil
}

func (s *accountService) OverdueAlerts(ctx context.Context) ([]dto.OverdueAlert, error) {
	accounts, err := s.repo.ListOverdue(ctx)
	if err != nil {
		return nil, err
	}

	alerts := make([]dto.OverdueAlert, 0, len(accounts))
	for _, a := range accounts {
		alerts = append(alerts, dto.OverdueAlert{
			CustomerID:      a.CustomerID.String(),
			AccountID:       a.ID.String(),
			Balance:         a.Balance,
			DaysOverdue:     a.DaysOverdue,
			LastPaymentDate: a.LastPaymentDate,
		})
	}
	return alerts, nil
}

func (s *accountService) UpdateAccount(ctx context.Context, customerID uuid.UUID, req dto.UpdateAccountRequest) (*dto.AccountResponse, error) {
	acc, err := s.repo.FindByCustomerID(ctx, customerID)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	if acc.Status == model.AccountClosed {
		return nil, fmt.Errorf("%w: account is closed", ErrConflict)
	}

	if req.CreditLimit != nil {
		acc.CreditLimit = *req.CreditLimit
	}
	if req.PaymentTermDays != nil {
		acc.PaymentTermDays = *req.PaymentTermDays
	}
	if req.Status != nil {
		next := model.AccountStatus(*req.Status)
		if next == model.AccountClosed && !acc.Balance.IsZero() {
			return nil, fmt.Errorf("%w: account can only be closed with a settled balance", ErrConflict)
		}
		if next != acc.Status {
			log.Info().
				Str("account_id", acc.ID.String()).
				Str("from", string(acc.Status)).
				Str("to", string(next)).
				Msg("account status changed")
		}
		acc.Status = next
	}

	if err := s.repo.Save(ctx, acc); err != nil {
		return nil, err
	}
	if s.cache != nil {
		s.cache.Invalidate(ctx, customerID.String())
	}

	resp := toAccountResponse(*acc)
	return &resp, nil
}

func (s *accountService) RecalculateOverdue(ctx context.Context) (int, int, error) {
	accounts, err := s.repo.ListDebtors(ctx)
	if err != nil {
		return 0, 0, err
	}

	now := time.Now()
	updated, suspended := 0, 0
	for i := range accounts {
		a := &accounts[i]
		if a.Status == model.AccountClosed {
			continue
		}

		days := overdueDays(a, now)
		changed := days != a.DaysOverdue
		a.DaysOverdue = days

		if a.Status == model.AccountActive && days > s.policy.SuspendOverdueDays {
			a.Status = model.AccountSuspended
			suspended++
			changed = true
			log.Warn().
				Str("account_id", a.ID.String()).
				Str("customer_id", a.CustomerID.String()).
				Int("days_overdue", days).
				Msg("account auto-suspended for overdue balance")
		}

		if changed {
			if err := s.repo.Save(ctx, a); err != nil {
				return updated, suspended, err
			}
			updated++
		}
	}
	return updated, suspended, nil
}

// overdueDays computes how many days the outstanding balance is past the
// payment term, anchored on the most recent payment (or first purchase).
func overdueDays(a *model.CustomerAccount, now time.Time) int {
	if !a.Balance.IsPositive() {
		return 0
	}

	anchor := a.CreatedAt
	if a.LastPurchaseDate != nil {
		anchor = *a.LastPurchaseDate
	}
	if a.LastPaymentDate != nil && a.LastPaymentDate.After(anchor) {
		anchor = *a.LastPaymentDate
	}

	days := int(now.Sub(anchor).Hours()/24) - a.PaymentTermDays
	if days < 0 {
		return 0
	}
	return days
}

// applyStatusTransition applies the automatic state machine after a movement:
// payments can reactivate a suspended account, falling past the overdue
// threshold or past the credit limit suspends an active one. An over-limit
// balance can only arise from an override charge, interest or a positive
// adjustment; the regular charge gate rejects it first.
func (s *accountService) applyStatusTransition(a *model.CustomerAccount, movementType model.AccountMovementType) {
	overLimit := a.CreditLimit.IsPositive() &&
		a.Balance.GreaterThan(a.CreditLimit.Add(s.policy.CreditGrace))

	switch a.Status {
	case model.AccountActive:
		if a.DaysOverdue > s.policy.SuspendOverdueDays || overLimit {
			a.Status = model.AccountSuspended
			log.Warn().
				Str("account_id", a.ID.String()).
				Int("days_overdue", a.DaysOverdue).
				Bool("over_limit", overLimit).
				Msg("account suspended")
		}
	case model.AccountSuspended:
		if movementType == model.MovementPayment &&
			a.DaysOverdue <= s.policy.SuspendOverdueDays && !overLimit {
			a.Status = model.AccountActive
			log.Info().
				Str("account_id", a.ID.String()).
				Msg("account reactivated after payment")
		}
	}
}

func toMovementFilters(f dto.MovementFilters) (repository.AccountMovementFilters, error) {
	filters := repository.AccountMovementFilters{Page: f.Page, Limit: f.Limit}
	if filters.Page < 1 {
		filters.Page = 1
	}
	if filters.Limit < 1 || filters.Limit > 100 {
		filters.Limit = 20
	}
	if f.MovementType != "" {
		mt := model.AccountMovementType(f.MovementType)
		filters.MovementType = &mt
	}
	if f.From != "" {
		t, err := time.ParseInLocation("2006-01-02", f.From, time.Local)
		if err != nil {
			return filters, fmt.Errorf("invalid from date: %w", err)
		}
		filters.From = &t
	}
	if f.To != "" {
		t, err := time.ParseInLocation("2006-01-02", f.To, time.Local)
		if err != nil {
			return filters, fmt.Errorf("invalid to date: %w", err)
		}
		filters.To = &t
	}
	return filters, nil
}

func toAccountResponse(a model.CustomerAccount) dto.AccountResponse {
	return dto.AccountResponse{
		ID:               a.ID.String(),
		CustomerID:       a.CustomerID.String(),
		Balance:          a.Balance,
		CreditLimit:      a.CreditLimit,
		Status:           string(a.Status),
		DaysOverdue:      a.DaysOverdue,
		PaymentTermDays:  a.PaymentTermDays,
		LastPaymentDate:  a.LastPaymentDate,
		LastPurchaseDate: a.LastPurchaseDate,
		CreatedAt:        a.CreatedAt,
	}
}

func toAccountMovementResponse(m model.AccountMovement) dto.AccountMovementResponse {
	resp := dto.AccountMovementResponse{
		ID:            m.ID.String(),
		AccountID:     m.AccountID.String(),
		MovementType:  string(m.MovementType),
		Amount:        m.Amount,
		BalanceBefore: m.BalanceBefore,
		BalanceAfter:  m.BalanceAfter,
		Description:   m.Description,
		ReferenceType: m.ReferenceType,
		Notes:         m.Notes,
		CreatedAt:     m.CreatedAt,
	}
	if m.ReferenceID != nil {
		rid := m.ReferenceID.String()
		resp.ReferenceID = &rid
	}
	if m.PaymentMethodID != nil {
		pid := m.PaymentMethodID.String()
		resp.PaymentMethodID = &pid
	}
	if m.CreatedBy != nil {
		cb := m.CreatedBy.String()
		resp.CreatedBy = &cb
	}
	return resp
}
