package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"posledger/internal/dto"
	"posledger/internal/model"
	"posledger/internal/repository"
)

// ── In-memory AccountRepository ──────────────────────────────────────────────

type fakeAccountRepo struct {
	mu        sync.Mutex
	accounts  map[uuid.UUID]*model.CustomerAccount
	movements []model.AccountMovement
}

var _ repository.AccountRepository = (*fakeAccountRepo)(nil)

func newFakeAccountRepo() *fakeAccountRepo {
	return &fakeAccountRepo{accounts: make(map[uuid.UUID]*model.CustomerAccount)}
}

func (r *fakeAccountRepo) Transaction(_ context.Context, fn func(tx *gorm.DB) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return fn(nil)
}

func (r *fakeAccountRepo) Create(_ context.Context, a *model.CustomerAccount) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.accounts {
		if existing.CustomerID == a.CustomerID {
			return repository.ErrUniqueViolation
		}
	}
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	a.CreatedAt = time.Now()
	cp := *a
	r.accounts[a.ID] = &cp
	return nil
}

func (r *fakeAccountRepo) FindByCustomerID(_ context.Context, customerID uuid.UUID) (*model.CustomerAccount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.accounts {
		if a.CustomerID == customerID {
			cp := *a
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeAccountRepo) FindByIDForUpdate(_ *gorm.DB, id uuid.UUID) (*model.CustomerAccount, error) {
	a, ok := r.accounts[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *a
	return &cp, nil
}

func (r *fakeAccountRepo) SaveTx(_ *gorm.DB, a *model.CustomerAccount) error {
	cp := *a
	r.accounts[a.ID] = &cp
	return nil
}

func (r *fakeAccountRepo) Save(_ context.Context, a *model.CustomerAccount) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.SaveTx(nil, a)
}

func (r *fakeAccountRepo) List(_ context.Context, f repository.AccountFilters) ([]model.CustomerAccount, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.CustomerAccount
	for _, a := range r.accounts {
		if f.Status != nil && a.Status != *f.Status {
			continue
		}
		if f.HasDebt && !a.Balance.IsPositive() {
			continue
		}
		if f.IsOverdue && a.DaysOverdue == 0 {
			continue
		}
		out = append(out, *a)
	}
	return out, int64(len(out)), nil
}

func (r *fakeAccountRepo) ListDebtors(_ context.Context) ([]model.CustomerAccount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.CustomerAccount
	for _, a := range r.accounts {
		if a.Balance.IsPositive() {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (r *fakeAccountRepo) ListOverdue(_ context.Context) ([]model.CustomerAccount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.CustomerAccount
	for _, a := range r.accounts {
		if a.Balance.IsPositive() && a.DaysOverdue > 0 {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (r *fakeAccountRepo) ListAll(_ context.Context) ([]model.CustomerAccount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.CustomerAccount
	for _, a := range r.accounts {
		out = append(out, *a)
	}
	return out, nil
}

func (r *fakeAccountRepo) CreateMovementTx(_ *gorm.DB, m *model.AccountMovement) error {
	if m.ReferenceID != nil && m.ReferenceType != nil {
		for _, existing := range r.movements {
			if existing.AccountID == m.AccountID &&
				existing.ReferenceType != nil && *existing.ReferenceType == *m.ReferenceType &&
				existing.ReferenceID != nil && *existing.ReferenceID == *m.ReferenceID {
				return repository.ErrDuplicateReference
			}
		}
	}
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	m.CreatedAt = time.Now()
	r.movements = append(r.movements, *m)
	return nil
}

func (r *fakeAccountRepo) FindMovementByReferenceTx(_ *gorm.DB, accountID uuid.UUID, refType string, refID uuid.UUID) (*model.AccountMovement, error) {
	for _, m := range r.movements {
		if m.AccountID == accountID &&
			m.ReferenceType != nil && *m.ReferenceType == refType &&
			m.ReferenceID != nil && *m.ReferenceID == refID {
			cp := m
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeAccountRepo) FindMovementByReference(_ context.Context, accountID uuid.UUID, refType string, refID uuid.UUID) (*model.AccountMovement, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.FindMovementByReferenceTx(nil, accountID, refType, refID)
}

func (r *fakeAccountRepo) FindLatestMovementTx(_ *gorm.DB, accountID uuid.UUID) (*model.AccountMovement, error) {
	for i := len(r.movements) - 1; i >= 0; i-- {
		if r.movements[i].AccountID == accountID {
			cp := r.movements[i]
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeAccountRepo) ListMovements(_ context.Context, accountID uuid.UUID, f repository.AccountMovementFilters) ([]model.AccountMovement, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.AccountMovement
	for _, m := range r.movements {
		if m.AccountID != accountID {
			continue
		}
		if f.MovementType != nil && m.MovementType != *f.MovementType {
			continue
		}
		out = append(out, m)
	}
	return out, int64(len(out)), nil
}

// ── Fixtures ─────────────────────────────────────────────────────────────────

func newAccountFixture(policy Thresholds) (AccountService, *fakeAccountRepo, *fakeDispatcher) {
	repo := newFakeAccountRepo()
	dispatcher := &fakeDispatcher{}
	svc := NewAccountService(repo, dispatcher, nil, policy)
	return svc, repo, dispatcher
}

func charge(amount, desc string) dto.ApplyMovementRequest {
	return dto.ApplyMovementRequest{MovementType: "charge", Amount: dec(amount), Description: desc}
}

func payment(amount, desc string) dto.ApplyMovementRequest {
	return dto.ApplyMovementRequest{MovementType: "payment", Amount: dec(amount), Description: desc}
}

// ── Tests ────────────────────────────────────────────────────────────────────

func TestApplyMovement_BalanceChain(t *testing.T) {
	svc, repo, _ := newAccountFixture(Thresholds{})
	ctx := context.Background()
	actor, customer := uuid.New(), uuid.New()

	first, err := svc.ApplyMovement(ctx, actor, customer, charge("100", "groceries on credit"))
	require.NoError(t, err)
	assert.True(t, first.BalanceBefore.IsZero())
	assert.True(t, first.BalanceAfter.Equal(dec("100")))

	second, err := svc.ApplyMovement(ctx, actor, customer, payment("40", "partial payment"))
	require.NoError(t, err)
	assert.True(t, second.Amount.Equal(dec("-40")), "payments are stored negative")
	assert.True(t, second.BalanceBefore.Equal(dec("100")))
	assert.True(t, second.BalanceAfter.Equal(dec("60")))

	third, err := svc.ApplyMovement(ctx, actor, customer, dto.ApplyMovementRequest{
		MovementType: "adjustment", Amount: dec("-10"), Description: "goodwill correction",
	})
	require.NoError(t, err)
	assert.True(t, third.BalanceAfter.Equal(dec("50")))

	acc, err := repo.FindByCustomerID(ctx, customer)
	require.NoError(t, err)
	assert.True(t, acc.Balance.Equal(dec("50")), "account balance equals last BalanceAfter")
	assert.NotNil(t, acc.LastPaymentDate)
	assert.NotNil(t, acc.LastPurchaseDate)
}

func TestApplyMovement_SignConvention(t *testing.T) {
	svc, _, _ := newAccountFixture(Thresholds{})
	ctx := context.Background()
	actor, customer := uuid.New(), uuid.New()

	_, err := svc.ApplyMovement(ctx, actor, customer, charge("200", "initial purchase"))
	require.NoError(t, err)

	interest, err := svc.ApplyMovement(ctx, actor, customer, dto.ApplyMovementRequest{
		MovementType: "interest", Amount: dec("20"), Description: "late interest",
	})
	require.NoError(t, err)
	assert.True(t, interest.Amount.Equal(dec("20")), "interest increases the debt")

	discount, err := svc.ApplyMovement(ctx, actor, customer, dto.ApplyMovementRequest{
		MovementType: "discount", Amount: dec("15"), Description: "loyalty discount",
	})
	require.NoError(t, err)
	assert.True(t, discount.Amount.Equal(dec("-15")), "discounts reduce the debt")
	assert.True(t, discount.BalanceAfter.Equal(dec("205")))
}

func TestApplyMovement_DuplicateReferenceReturnsExisting(t *testing.T) {
	svc, repo, _ := newAccountFixture(Thresholds{})
	ctx := context.Background()
	actor, customer := uuid.New(), uuid.New()

	refType, refID := "sale", uuid.NewString()
	req := charge("75", "sale on credit")
	req.ReferenceType = &refType
	req.ReferenceID = &refID

	first, err := svc.ApplyMovement(ctx, actor, customer, req)
	require.NoError(t, err)
	assert.False(t, first.Duplicate)

	// Retried business event with the same reference
	second, err := svc.ApplyMovement(ctx, actor, customer, req)
	require.NoError(t, err)
	assert.True(t, second.Duplicate)
	assert.Equal(t, first.ID, second.ID)

	acc, err := repo.FindByCustomerID(ctx, customer)
	require.NoError(t, err)
	assert.True(t, acc.Balance.Equal(dec("75")), "the charge posted exactly once")
}

func TestApplyMovement_DuplicateReferenceOnBlockedAccount(t *testing.T) {
	svc, repo, _ := newAccountFixture(Thresholds{})
	ctx := context.Background()
	actor, customer := uuid.New(), uuid.New()

	refType, refID := "sale", uuid.NewString()
	req := charge("75", "sale on credit")
	req.ReferenceType = &refType
	req.ReferenceID = &refID

	first, err := svc.ApplyMovement(ctx, actor, customer, req)
	require.NoError(t, err)

	// A retry of the same business event must come back as the recorded
	// movement even after the account stopped accepting new charges.
	acc, err := repo.FindByCustomerID(ctx, customer)
	require.NoError(t, err)
	acc.Status = model.AccountSuspended
	require.NoError(t, repo.Save(ctx, acc))

	retry, err := svc.ApplyMovement(ctx, actor, customer, req)
	require.NoError(t, err)
	assert.True(t, retry.Duplicate)
	assert.Equal(t, first.ID, retry.ID)

	acc.Status = model.AccountClosed
	require.NoError(t, repo.Save(ctx, acc))

	retry, err = svc.ApplyMovement(ctx, actor, customer, req)
	require.NoError(t, err)
	assert.True(t, retry.Duplicate)

	acc, err = repo.FindByCustomerID(ctx, customer)
	require.NoError(t, err)
	assert.True(t, acc.Balance.Equal(dec("75")), "retries never post again")
}

func TestApplyMovement_CreditLimit(t *testing.T) {
	svc, repo, _ := newAccountFixture(Thresholds{CreditGrace: dec("0")})
	ctx := context.Background()
	actor, customer := uuid.New(), uuid.New()

	_, err := svc.GetOrCreate(ctx, customer)
	require.NoError(t, err)
	limit := dec("100")
	_, err = svc.UpdateAccount(ctx, customer, dto.UpdateAccountRequest{CreditLimit: &limit})
	require.NoError(t, err)

	_, err = svc.ApplyMovement(ctx, actor, customer, charge("150", "over the limit"))
	var creditErr *CreditLimitError
	require.ErrorAs(t, err, &creditErr)
	assert.True(t, creditErr.CreditLimit.Equal(dec("100")))
	assert.True(t, creditErr.Attempted.Equal(dec("150")))

	acc, err := repo.FindByCustomerID(ctx, customer)
	require.NoError(t, err)
	assert.True(t, acc.Balance.IsZero(), "rejected charge must not post")

	// Supervisor override pushes it through
	req := charge("150", "approved exception")
	req.OverrideCreditLimit = true
	_, err = svc.ApplyMovement(ctx, actor, customer, req)
	require.NoError(t, err)
}

func TestApplyMovement_CreditGraceExtendsLimit(t *testing.T) {
	svc, _, _ := newAccountFixture(Thresholds{CreditGrace: dec("50")})
	ctx := context.Background()
	actor, customer := uuid.New(), uuid.New()

	_, err := svc.GetOrCreate(ctx, customer)
	require.NoError(t, err)
	limit := dec("100")
	_, err = svc.UpdateAccount(ctx, customer, dto.UpdateAccountRequest{CreditLimit: &limit})
	require.NoError(t, err)

	_, err = svc.ApplyMovement(ctx, actor, customer, charge("140", "within grace"))
	require.NoError(t, err)

	_, err = svc.ApplyMovement(ctx, actor, customer, charge("20", "past grace"))
	var creditErr *CreditLimitError
	assert.ErrorAs(t, err, &creditErr)
}

func TestApplyMovement_OverLimitBalanceSuspends(t *testing.T) {
	svc, repo, _ := newAccountFixture(Thresholds{CreditGrace: dec("0")})
	ctx := context.Background()
	actor, customer := uuid.New(), uuid.New()

	_, err := svc.GetOrCreate(ctx, customer)
	require.NoError(t, err)
	limit := dec("100")
	_, err = svc.UpdateAccount(ctx, customer, dto.UpdateAccountRequest{CreditLimit: &limit})
	require.NoError(t, err)

	// An override charge may pass the gate but leaves the balance over the
	// limit, which suspends the account.
	req := charge("150", "approved exception")
	req.OverrideCreditLimit = true
	_, err = svc.ApplyMovement(ctx, actor, customer, req)
	require.NoError(t, err)

	acc, err := repo.FindByCustomerID(ctx, customer)
	require.NoError(t, err)
	assert.Equal(t, model.AccountSuspended, acc.Status)

	// Suspended blocks further charges until a payment brings the balance
	// back within the limit.
	_, err = svc.ApplyMovement(ctx, actor, customer, charge("10", "blocked"))
	assert.ErrorIs(t, err, ErrConflict)

	_, err = svc.ApplyMovement(ctx, actor, customer, payment("60", "partial payment"))
	require.NoError(t, err)

	acc, err = repo.FindByCustomerID(ctx, customer)
	require.NoError(t, err)
	assert.True(t, acc.Balance.Equal(dec("90")))
	assert.Equal(t, model.AccountActive, acc.Status)
}

func TestApplySurcharge_OverLimitInterestSuspends(t *testing.T) {
	svc, repo, _ := newAccountFixture(Thresholds{CreditGrace: dec("0")})
	ctx := context.Background()
	actor, customer := uuid.New(), uuid.New()

	_, err := svc.GetOrCreate(ctx, customer)
	require.NoError(t, err)
	limit := dec("100")
	_, err = svc.UpdateAccount(ctx, customer, dto.UpdateAccountRequest{CreditLimit: &limit})
	require.NoError(t, err)

	_, err = svc.ApplyMovement(ctx, actor, customer, charge("95", "purchase"))
	require.NoError(t, err)

	// Interest bypasses the charge gate; landing past the limit suspends.
	resp, err := svc.ApplySurcharge(ctx, actor, customer, dto.SurchargeRequest{
		SurchargeType: "fixed", Value: dec("10"),
	})
	require.NoError(t, err)
	assert.True(t, resp.BalanceAfter.Equal(dec("105")))

	acc, err := repo.FindByCustomerID(ctx, customer)
	require.NoError(t, err)
	assert.Equal(t, model.AccountSuspended, acc.Status)
}

func TestApplyMovement_StatusGates(t *testing.T) {
	svc, repo, _ := newAccountFixture(Thresholds{SuspendOverdueDays: 30})
	ctx := context.Background()
	actor, customer := uuid.New(), uuid.New()

	_, err := svc.ApplyMovement(ctx, actor, customer, charge("100", "purchase"))
	require.NoError(t, err)

	// Force suspension
	acc, err := repo.FindByCustomerID(ctx, customer)
	require.NoError(t, err)
	acc.Status = model.AccountSuspended
	require.NoError(t, repo.Save(ctx, acc))

	_, err = svc.ApplyMovement(ctx, actor, customer, charge("10", "blocked"))
	assert.ErrorIs(t, err, ErrConflict)

	// Payments are always accepted and reactivate the account
	_, err = svc.ApplyMovement(ctx, actor, customer, payment("100", "full settlement"))
	require.NoError(t, err)

	acc, err = repo.FindByCustomerID(ctx, customer)
	require.NoError(t, err)
	assert.Equal(t, model.AccountActive, acc.Status)
}

func TestApplyMovement_ClosedAccountRejectsEverything(t *testing.T) {
	svc, repo, _ := newAccountFixture(Thresholds{})
	ctx := context.Background()
	actor, customer := uuid.New(), uuid.New()

	_, err := svc.GetOrCreate(ctx, customer)
	require.NoError(t, err)
	acc, err := repo.FindByCustomerID(ctx, customer)
	require.NoError(t, err)
	acc.Status = model.AccountClosed
	require.NoError(t, repo.Save(ctx, acc))

	_, err = svc.ApplyMovement(ctx, actor, customer, charge("10", "no"))
	assert.ErrorIs(t, err, ErrConflict)
	_, err = svc.ApplyMovement(ctx, actor, customer, payment("10", "also no"))
	assert.ErrorIs(t, err, ErrConflict)
}

func TestApplyMovement_ConcurrentChargesStayConsistent(t *testing.T) {
	svc, repo, _ := newAccountFixture(Thresholds{})
	ctx := context.Background()
	actor, customer := uuid.New(), uuid.New()

	_, err := svc.GetOrCreate(ctx, customer)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.ApplyMovement(ctx, actor, customer, charge("100", "concurrent purchase"))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	acc, err := repo.FindByCustomerID(ctx, customer)
	require.NoError(t, err)
	assert.True(t, acc.Balance.Equal(dec("200")))

	movs, _, err := repo.ListMovements(ctx, acc.ID, repository.AccountMovementFilters{Page: 1, Limit: 10})
	require.NoError(t, err)
	require.Len(t, movs, 2)
	// Snapshots must chain: each BalanceBefore equals the other's BalanceAfter or zero.
	chained := (movs[0].BalanceBefore.IsZero() && movs[1].BalanceBefore.Equal(movs[0].BalanceAfter)) ||
		(movs[1].BalanceBefore.IsZero() && movs[0].BalanceBefore.Equal(movs[1].BalanceAfter))
	assert.True(t, chained, "balance snapshots must form an unbroken chain")
}

func TestApplyMovement_PaymentEnqueuesRegisterEcho(t *testing.T) {
	svc, _, dispatcher := newAccountFixture(Thresholds{})
	ctx := context.Background()
	actor, customer := uuid.New(), uuid.New()

	_, err := svc.ApplyMovement(ctx, actor, customer, charge("100", "purchase"))
	require.NoError(t, err)
	assert.Empty(t, dispatcher.cashSync, "charges are not echoed")

	method := cashMethod.ID.String()
	req := payment("60", "counter payment")
	req.PaymentMethodID = &method
	resp, err := svc.ApplyMovement(ctx, actor, customer, req)
	require.NoError(t, err)

	require.Len(t, dispatcher.cashSync, 1)
	job := dispatcher.cashSync[0]
	assert.Equal(t, resp.ID, job.AccountMovementID)
	assert.True(t, job.Amount.Equal(dec("60")), "echo carries the positive amount")
	assert.Equal(t, method, job.PaymentMethodID)
}

func TestApplySurcharge(t *testing.T) {
	svc, _, _ := newAccountFixture(Thresholds{})
	ctx := context.Background()
	actor, customer := uuid.New(), uuid.New()

	_, err := svc.ApplySurcharge(ctx, actor, customer, dto.SurchargeRequest{
		SurchargeType: "percentage", Value: dec("10"),
	})
	assert.Error(t, err, "no account, nothing to surcharge")

	_, err = svc.ApplyMovement(ctx, actor, customer, charge("200", "purchase"))
	require.NoError(t, err)

	resp, err := svc.ApplySurcharge(ctx, actor, customer, dto.SurchargeRequest{
		SurchargeType: "percentage", Value: dec("10"),
	})
	require.NoError(t, err)
	assert.Equal(t, "interest", resp.MovementType)
	assert.True(t, resp.Amount.Equal(dec("20")))
	assert.True(t, resp.BalanceAfter.Equal(dec("220")))

	fixed, err := svc.ApplySurcharge(ctx, actor, customer, dto.SurchargeRequest{
		SurchargeType: "fixed", Value: dec("5"),
	})
	require.NoError(t, err)
	assert.True(t, fixed.BalanceAfter.Equal(dec("225")))
}

func TestRecalculateOverdue_AutoSuspends(t *testing.T) {
	svc, repo, _ := newAccountFixture(Thresholds{SuspendOverdueDays: 30, DefaultPaymentTermDays: 30})
	ctx := context.Background()
	actor, customer := uuid.New(), uuid.New()

	_, err := svc.ApplyMovement(ctx, actor, customer, charge("500", "old purchase"))
	require.NoError(t, err)

	// Age the debt: last purchase 90 days ago, 30-day term → 60 days overdue.
	acc, err := repo.FindByCustomerID(ctx, customer)
	require.NoError(t, err)
	old := time.Now().AddDate(0, 0, -90)
	acc.LastPurchaseDate = &old
	require.NoError(t, repo.Save(ctx, acc))

	updated, suspended, err := svc.RecalculateOverdue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, updated)
	assert.Equal(t, 1, suspended)

	acc, err = repo.FindByCustomerID(ctx, customer)
	require.NoError(t, err)
	assert.Equal(t, model.AccountSuspended, acc.Status)
	assert.Equal(t, 60, acc.DaysOverdue)
}

func TestRecalculateOverdue_SettledAccountsStayActive(t *testing.T) {
	svc, repo, _ := newAccountFixture(Thresholds{SuspendOverdueDays: 30})
	ctx := context.Background()
	actor, customer := uuid.New(), uuid.New()

	_, err := svc.ApplyMovement(ctx, actor, customer, charge("100", "purchase"))
	require.NoError(t, err)
	_, err = svc.ApplyMovement(ctx, actor, customer, payment("100", "settled"))
	require.NoError(t, err)

	updated, suspended, err := svc.RecalculateOverdue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, updated)
	assert.Equal(t, 0, suspended)

	acc, err := repo.FindByCustomerID(ctx, customer)
	require.NoError(t, err)
	assert.Equal(t, model.AccountActive, acc.Status)
	assert.Equal(t, 0, acc.DaysOverdue)
}

func TestStatement_SummaryAndPosition(t *testing.T) {
	svc, _, _ := newAccountFixture(Thresholds{})
	ctx := context.Background()
	actor, customer := uuid.New(), uuid.New()

	_, err := svc.ApplyMovement(ctx, actor, customer, charge("300", "purchase"))
	require.NoError(t, err)
	_, err = svc.ApplyMovement(ctx, actor, customer, payment("120", "payment"))
	require.NoError(t, err)

	statement, err := svc.Statement(ctx, customer, nil, nil)
	require.NoError(t, err)

	assert.True(t, statement.Summary.TotalCharges.Equal(dec("300")))
	assert.True(t, statement.Summary.TotalPayments.Equal(dec("120")))
	assert.True(t, statement.Summary.CurrentBalance.Equal(dec("180")))
	assert.Equal(t, "customer_owes", statement.Summary.CustomerPosition)
	assert.Len(t, statement.Movements, 2)

	// Overpay into business_owes
	_, err = svc.ApplyMovement(ctx, actor, customer, payment("200", "overpayment"))
	require.NoError(t, err)
	statement, err = svc.Statement(ctx, customer, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "business_owes", statement.Summary.CustomerPosition)
}

func TestGetOrCreate_IsIdempotent(t *testing.T) {
	svc, _, _ := newAccountFixture(Thresholds{DefaultPaymentTermDays: 45})
	ctx := context.Background()
	customer := uuid.New()

	first, err := svc.GetOrCreate(ctx, customer)
	require.NoError(t, err)
	assert.Equal(t, 45, first.PaymentTermDays)
	assert.Equal(t, "active", first.Status)

	second, err := svc.GetOrCreate(ctx, customer)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
}

func TestUpdateAccount_CloseRequiresSettledBalance(t *testing.T) {
	svc, _, _ := newAccountFixture(Thresholds{})
	ctx := context.Background()
	actor, customer := uuid.New(), uuid.New()

	_, err := svc.ApplyMovement(ctx, actor, customer, charge("50", "purchase"))
	require.NoError(t, err)

	closed := "closed"
	_, err = svc.UpdateAccount(ctx, customer, dto.UpdateAccountRequest{Status: &closed})
	assert.ErrorIs(t, err, ErrConflict)

	_, err = svc.ApplyMovement(ctx, actor, customer, payment("50", "settled"))
	require.NoError(t, err)
	resp, err := svc.UpdateAccount(ctx, customer, dto.UpdateAccountRequest{Status: &closed})
	require.NoError(t, err)
	assert.Equal(t, "closed", resp.Status)

	// Closed is terminal
	active := "active"
	_, err = svc.UpdateAccount(ctx, customer, dto.UpdateAccountRequest{Status: &active})
	assert.ErrorIs(t, err, ErrConflict)
}
