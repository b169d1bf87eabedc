package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"posledger/internal/dto"
	"posledger/internal/model"
	"posledger/internal/repository"
)

// ── In-memory RegisterRepository ─────────────────────────────────────────────

type fakeRegisterRepo struct {
	mu        sync.Mutex
	registers map[uuid.UUID]*model.CashRegister
	movements []model.CashMovement
	totals    map[uuid.UUID]*model.CashRegisterTotals
	methods   map[uuid.UUID]model.PaymentMethod
}

var _ repository.RegisterRepository = (*fakeRegisterRepo)(nil)

func newFakeRegisterRepo(methods ...model.PaymentMethod) *fakeRegisterRepo {
	r := &fakeRegisterRepo{
		registers: make(map[uuid.UUID]*model.CashRegister),
		totals:    make(map[uuid.UUID]*model.CashRegisterTotals),
		methods:   make(map[uuid.UUID]model.PaymentMethod),
	}
	for _, m := range methods {
		r.methods[m.ID] = m
	}
	return r
}

func (r *fakeRegisterRepo) Transaction(_ context.Context, fn func(tx *gorm.DB) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return fn(nil)
}

func (r *fakeRegisterRepo) CreateTx(_ *gorm.DB, reg *model.CashRegister) error {
	if reg.ID == uuid.Nil {
		reg.ID = uuid.New()
	}
	reg.CreatedAt = time.Now()
	cp := *reg
	r.registers[reg.ID] = &cp
	return nil
}

func (r *fakeRegisterRepo) findOpen() (*model.CashRegister, error) {
	for _, reg := range r.registers {
		if reg.Status == model.RegisterOpen {
			return reg, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeRegisterRepo) FindOpen(_ context.Context) (*model.CashRegister, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	reg, err := r.findOpen()
	if err != nil {
		return nil, err
	}
	return r.withTotals(reg), nil
}

func (r *fakeRegisterRepo) FindOpenForUpdate(_ *gorm.DB) (*model.CashRegister, error) {
	reg, err := r.findOpen()
	if err != nil {
		return nil, err
	}
	cp := *reg
	return &cp, nil
}

func (r *fakeRegisterRepo) FindByID(_ context.Context, id uuid.UUID) (*model.CashRegister, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	reg, ok := r.registers[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return r.withTotals(reg), nil
}

func (r *fakeRegisterRepo) FindByIDForUpdate(_ *gorm.DB, id uuid.UUID) (*model.CashRegister, error) {
	reg, ok := r.registers[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *reg
	return &cp, nil
}

func (r *fakeRegisterRepo) FindByBusinessDate(_ context.Context, date time.Time) (*model.CashRegister, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, reg := range r.registers {
		if reg.BusinessDate.Format("2006-01-02") == date.Format("2006-01-02") {
			cp := *reg
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeRegisterRepo) FindLastClosed(_ context.Context) (*model.CashRegister, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var last *model.CashRegister
	for _, reg := range r.registers {
		if reg.Status != model.RegisterClosed || reg.ClosedAt == nil {
			continue
		}
		if last == nil || reg.ClosedAt.After(*last.ClosedAt) {
			last = reg
		}
	}
	if last == nil {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *last
	return &cp, nil
}

func (r *fakeRegisterRepo) UpdateTx(_ *gorm.DB, reg *model.CashRegister) error {
	cp := *reg
	cp.Totals = nil
	r.registers[reg.ID] = &cp
	return nil
}

func (r *fakeRegisterRepo) List(_ context.Context, from, to *time.Time, page, limit int) ([]model.CashRegister, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.CashRegister
	for _, reg := range r.registers {
		if from != nil && reg.BusinessDate.Before(*from) {
			continue
		}
		if to != nil && reg.BusinessDate.After(*to) {
			continue
		}
		out = append(out, *r.withTotals(reg))
	}
	return out, int64(len(out)), nil
}

func (r *fakeRegisterRepo) CreateMovementTx(_ *gorm.DB, m *model.CashMovement) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	m.CreatedAt = time.Now()
	r.movements = append(r.movements, *m)
	return nil
}

func (r *fakeRegisterRepo) ListMovements(_ context.Context, registerID uuid.UUID) ([]model.CashMovement, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.CashMovement
	for _, m := range r.movements {
		if m.RegisterID == registerID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (r *fakeRegisterRepo) SumMovementsByMethod(_ context.Context, registerID uuid.UUID) (map[uuid.UUID]repository.MethodSums, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sums := make(map[uuid.UUID]repository.MethodSums)
	for _, m := range r.movements {
		if m.RegisterID != registerID {
			continue
		}
		s := sums[m.PaymentMethodID]
		switch m.MovementType {
		case model.CashIncome:
			s.Income = s.Income.Add(m.Amount)
		case model.CashExpense:
			s.Expense = s.Expense.Add(m.Amount)
		}
		sums[m.PaymentMethodID] = s
	}
	return sums, nil
}

func (r *fakeRegisterRepo) CreateTotalsTx(_ *gorm.DB, t *model.CashRegisterTotals) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	cp := *t
	r.totals[t.ID] = &cp
	return nil
}

func (r *fakeRegisterRepo) ApplyToTotalsTx(_ *gorm.DB, registerID, paymentMethodID uuid.UUID, income, expense decimal.Decimal) error {
	for _, t := range r.totals {
		if t.RegisterID == registerID && t.PaymentMethodID == paymentMethodID {
			t.TotalIncome = t.TotalIncome.Add(income)
			t.TotalExpense = t.TotalExpense.Add(expense)
			t.ExpectedAmount = t.InitialAmount.Add(t.TotalIncome).Sub(t.TotalExpense)
			return nil
		}
	}
	t := &model.CashRegisterTotals{
		ID:              uuid.New(),
		RegisterID:      registerID,
		PaymentMethodID: paymentMethodID,
		TotalIncome:     income,
		TotalExpense:    expense,
		ExpectedAmount:  income.Sub(expense),
	}
	r.totals[t.ID] = t
	return nil
}

func (r *fakeRegisterRepo) listTotals(registerID uuid.UUID) []model.CashRegisterTotals {
	var out []model.CashRegisterTotals
	for _, t := range r.totals {
		if t.RegisterID != registerID {
			continue
		}
		cp := *t
		if m, ok := r.methods[t.PaymentMethodID]; ok {
			mm := m
			cp.PaymentMethod = &mm
		}
		out = append(out, cp)
	}
	return out
}

func (r *fakeRegisterRepo) ListTotals(_ context.Context, registerID uuid.UUID) ([]model.CashRegisterTotals, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.listTotals(registerID), nil
}

func (r *fakeRegisterRepo) ListTotalsForUpdate(_ *gorm.DB, registerID uuid.UUID) ([]model.CashRegisterTotals, error) {
	return r.listTotals(registerID), nil
}

func (r *fakeRegisterRepo) SaveTotalsTx(_ *gorm.DB, t *model.CashRegisterTotals) error {
	cp := *t
	cp.PaymentMethod = nil
	r.totals[t.ID] = &cp
	return nil
}

func (r *fakeRegisterRepo) withTotals(reg *model.CashRegister) *model.CashRegister {
	cp := *reg
	cp.Totals = r.listTotals(reg.ID)
	return &cp
}

// ── Fake payment method repository ───────────────────────────────────────────

type fakeMethodRepo struct{ methods []model.PaymentMethod }

var _ repository.PaymentMethodRepository = (*fakeMethodRepo)(nil)

func (f *fakeMethodRepo) ListActive(_ context.Context) ([]model.PaymentMethod, error) {
	return f.methods, nil
}

func (f *fakeMethodRepo) FindByID(_ context.Context, id uuid.UUID) (*model.PaymentMethod, error) {
	for _, m := range f.methods {
		if m.ID == id {
			return &m, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeMethodRepo) FindByCode(_ context.Context, code string) (*model.PaymentMethod, error) {
	for _, m := range f.methods {
		if m.Code == code {
			return &m, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

// ── Fake dispatcher ──────────────────────────────────────────────────────────

type fakeDispatcher struct {
	mu         sync.Mutex
	cashSync   []dto.CashSyncJob
	reportJobs []dto.ClosingReportJob
}

var _ JobDispatcher = (*fakeDispatcher)(nil)

func (d *fakeDispatcher) EnqueueCashSync(_ context.Context, job dto.CashSyncJob) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cashSync = append(d.cashSync, job)
	return nil
}

func (d *fakeDispatcher) EnqueueClosingReport(_ context.Context, job dto.ClosingReportJob) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.reportJobs = append(d.reportJobs, job)
	return nil
}

// ── Test fixtures ────────────────────────────────────────────────────────────

var (
	cashMethod  = model.PaymentMethod{ID: uuid.New(), Code: model.PaymentMethodCash, Name: "Cash", IsActive: true}
	debitMethod = model.PaymentMethod{ID: uuid.New(), Code: model.PaymentMethodDebitCard, Name: "Debit card", IsActive: true}
)

func newRegisterFixture() (RegisterService, *fakeRegisterRepo, *fakeDispatcher) {
	repo := newFakeRegisterRepo(cashMethod, debitMethod)
	dispatcher := &fakeDispatcher{}
	svc := NewRegisterService(repo, &fakeMethodRepo{methods: []model.PaymentMethod{cashMethod, debitMethod}}, dispatcher)
	return svc, repo, dispatcher
}

// ── Tests ────────────────────────────────────────────────────────────────────

func TestOpenRegister_CreatesTotalsPerMethod(t *testing.T) {
	svc, _, _ := newRegisterFixture()
	actor := uuid.New()

	report, err := svc.Open(context.Background(), actor, dto.OpenRegisterRequest{OpeningAmount: dec("1000")})
	require.NoError(t, err)

	assert.Equal(t, "open", report.Status)
	assert.True(t, report.OpeningAmount.Equal(dec("1000")))
	require.Len(t, report.Totals, 2)

	for _, mt := range report.Totals {
		if mt.Code == model.PaymentMethodCash {
			assert.True(t, mt.InitialAmount.Equal(dec("1000")), "cash carries the drawer float")
			assert.True(t, mt.ExpectedAmount.Equal(dec("1000")))
		} else {
			assert.True(t, mt.InitialAmount.IsZero(), "non-cash methods start at zero")
		}
	}
}

func TestOpenRegister_ConflictWhenAlreadyOpen(t *testing.T) {
	svc, _, _ := newRegisterFixture()
	actor := uuid.New()

	_, err := svc.Open(context.Background(), actor, dto.OpenRegisterRequest{OpeningAmount: dec("100")})
	require.NoError(t, err)

	_, err = svc.Open(context.Background(), actor, dto.OpenRegisterRequest{OpeningAmount: dec("100")})
	assert.ErrorIs(t, err, ErrConflict)
}

func TestOpenRegister_ConflictOnSameBusinessDate(t *testing.T) {
	svc, _, _ := newRegisterFixture()
	actor := uuid.New()

	_, err := svc.Open(context.Background(), actor, dto.OpenRegisterRequest{OpeningAmount: dec("100")})
	require.NoError(t, err)
	_, err = svc.Close(context.Background(), actor, dto.CloseRegisterRequest{
		CountedAmounts: map[string]decimal.Decimal{"cash": dec("100")},
	})
	require.NoError(t, err)

	// Same business date: must reopen, not open a second session.
	_, err = svc.Open(context.Background(), actor, dto.OpenRegisterRequest{OpeningAmount: dec("100")})
	assert.ErrorIs(t, err, ErrConflict)
}

func TestRecordMovement_UpdatesRunningTotals(t *testing.T) {
	svc, repo, _ := newRegisterFixture()
	actor := uuid.New()
	ctx := context.Background()

	report, err := svc.Open(ctx, actor, dto.OpenRegisterRequest{OpeningAmount: dec("1000")})
	require.NoError(t, err)

	_, err = svc.RecordMovement(ctx, actor, dto.RecordCashMovementRequest{
		RegisterID:      report.ID,
		MovementType:    "income",
		Amount:          dec("500"),
		PaymentMethodID: cashMethod.ID.String(),
		Description:     "counter sales",
	})
	require.NoError(t, err)

	_, err = svc.RecordMovement(ctx, actor, dto.RecordCashMovementRequest{
		RegisterID:      report.ID,
		MovementType:    "expense",
		Amount:          dec("200"),
		PaymentMethodID: cashMethod.ID.String(),
		Description:     "supplier petty cash",
	})
	require.NoError(t, err)

	current, err := svc.GetOpen(ctx)
	require.NoError(t, err)
	assert.True(t, current.TotalIncome.Equal(dec("500")))
	assert.True(t, current.TotalExpense.Equal(dec("200")))
	assert.Len(t, current.Movements, 2)

	for _, mt := range current.Totals {
		if mt.Code == model.PaymentMethodCash {
			assert.True(t, mt.ExpectedAmount.Equal(dec("1300")), "expected = initial + income - expense")
		}
	}

	// The totals cache must stay derivable from the movement log.
	regID := uuid.MustParse(report.ID)
	sums, err := repo.SumMovementsByMethod(ctx, regID)
	require.NoError(t, err)
	assert.True(t, sums[cashMethod.ID].Income.Equal(dec("500")))
	assert.True(t, sums[cashMethod.ID].Expense.Equal(dec("200")))
}

func TestRecordMovement_ClosedRegisterRejected(t *testing.T) {
	svc, _, _ := newRegisterFixture()
	actor := uuid.New()
	ctx := context.Background()

	report, err := svc.Open(ctx, actor, dto.OpenRegisterRequest{OpeningAmount: dec("100")})
	require.NoError(t, err)
	_, err = svc.Close(ctx, actor, dto.CloseRegisterRequest{
		CountedAmounts: map[string]decimal.Decimal{"cash": dec("100")},
	})
	require.NoError(t, err)

	_, err = svc.RecordMovement(ctx, actor, dto.RecordCashMovementRequest{
		RegisterID:      report.ID,
		MovementType:    "income",
		Amount:          dec("50"),
		PaymentMethodID: cashMethod.ID.String(),
		Description:     "too late",
	})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCloseRegister_ReconcilesAndSnapshots(t *testing.T) {
	svc, _, dispatcher := newRegisterFixture()
	actor := uuid.New()
	ctx := context.Background()

	report, err := svc.Open(ctx, actor, dto.OpenRegisterRequest{OpeningAmount: dec("1000")})
	require.NoError(t, err)
	_, err = svc.RecordMovement(ctx, actor, dto.RecordCashMovementRequest{
		RegisterID:      report.ID,
		MovementType:    "income",
		Amount:          dec("500"),
		PaymentMethodID: cashMethod.ID.String(),
		Description:     "counter sales",
	})
	require.NoError(t, err)
	_, err = svc.RecordMovement(ctx, actor, dto.RecordCashMovementRequest{
		RegisterID:      report.ID,
		MovementType:    "expense",
		Amount:          dec("200"),
		PaymentMethodID: cashMethod.ID.String(),
		Description:     "supplier petty cash",
	})
	require.NoError(t, err)

	summary, err := svc.Close(ctx, actor, dto.CloseRegisterRequest{
		CountedAmounts: map[string]decimal.Decimal{"cash": dec("1300")},
	})
	require.NoError(t, err)

	assert.Equal(t, "closed", summary.Status)
	assert.True(t, summary.ExpectedTotal.Equal(dec("1300")))
	assert.True(t, summary.CountedTotal.Equal(dec("1300")))
	assert.True(t, summary.TotalDifference.IsZero())
	assert.Equal(t, VarianceNormal, summary.Classification)

	closed, err := svc.FindByID(ctx, uuid.MustParse(report.ID))
	require.NoError(t, err)
	require.NotNil(t, closed.ExpectedAmount)
	require.NotNil(t, closed.ActualAmount)
	assert.True(t, closed.ExpectedAmount.Equal(dec("1300")))
	assert.True(t, closed.ActualAmount.Equal(dec("1300")))
	assert.NotNil(t, closed.ClosedAt)
	assert.NotNil(t, closed.ClosedBy)

	require.Len(t, dispatcher.reportJobs, 1)
	assert.Equal(t, report.ID, dispatcher.reportJobs[0].RegisterID)
	assert.False(t, dispatcher.reportJobs[0].Critical)
}

func TestCloseRegister_CriticalVarianceRequiresNotes(t *testing.T) {
	svc, _, dispatcher := newRegisterFixture()
	actor := uuid.New()
	ctx := context.Background()

	_, err := svc.Open(ctx, actor, dto.OpenRegisterRequest{OpeningAmount: dec("1000")})
	require.NoError(t, err)

	// 20% shortage with no notes
	_, err = svc.Close(ctx, actor, dto.CloseRegisterRequest{
		CountedAmounts: map[string]decimal.Decimal{"cash": dec("800")},
	})
	assert.ErrorIs(t, err, ErrClosingNotesRequired)

	notes := "drawer was robbed, police report filed"
	summary, err := svc.Close(ctx, actor, dto.CloseRegisterRequest{
		CountedAmounts: map[string]decimal.Decimal{"cash": dec("800")},
		ClosingNotes:   &notes,
	})
	require.NoError(t, err)
	assert.Equal(t, VarianceCritical, summary.Classification)

	require.Len(t, dispatcher.reportJobs, 1)
	assert.True(t, dispatcher.reportJobs[0].Critical)
}

func TestCloseRegister_NoOpenSession(t *testing.T) {
	svc, _, _ := newRegisterFixture()

	_, err := svc.Close(context.Background(), uuid.New(), dto.CloseRegisterRequest{
		CountedAmounts: map[string]decimal.Decimal{"cash": dec("0")},
	})
	assert.ErrorIs(t, err, ErrConflict)
}

func TestReopen_SameDayRestoresSession(t *testing.T) {
	svc, _, _ := newRegisterFixture()
	actor := uuid.New()
	ctx := context.Background()

	report, err := svc.Open(ctx, actor, dto.OpenRegisterRequest{OpeningAmount: dec("500")})
	require.NoError(t, err)
	_, err = svc.Close(ctx, actor, dto.CloseRegisterRequest{
		CountedAmounts: map[string]decimal.Decimal{"cash": dec("500")},
	})
	require.NoError(t, err)

	reopened, err := svc.Reopen(ctx, actor, uuid.MustParse(report.ID))
	require.NoError(t, err)

	assert.Equal(t, "open", reopened.Status)
	assert.Nil(t, reopened.ClosedAt)
	assert.Nil(t, reopened.ExpectedAmount)
	assert.Nil(t, reopened.ActualAmount)
	for _, mt := range reopened.Totals {
		assert.Nil(t, mt.ActualAmount, "closing snapshot must be discarded")
	}
}

func TestReopen_PreviousDayRejected(t *testing.T) {
	svc, repo, _ := newRegisterFixture()
	actor := uuid.New()
	ctx := context.Background()

	report, err := svc.Open(ctx, actor, dto.OpenRegisterRequest{OpeningAmount: dec("500")})
	require.NoError(t, err)
	_, err = svc.Close(ctx, actor, dto.CloseRegisterRequest{
		CountedAmounts: map[string]decimal.Decimal{"cash": dec("500")},
	})
	require.NoError(t, err)

	// Age the session one day.
	regID := uuid.MustParse(report.ID)
	repo.registers[regID].BusinessDate = repo.registers[regID].BusinessDate.AddDate(0, 0, -1)

	_, err = svc.Reopen(ctx, actor, regID)
	assert.ErrorIs(t, err, ErrConflict)
}

func TestSuggestedOpeningAmount_UsesPreviousCountedCash(t *testing.T) {
	svc, _, _ := newRegisterFixture()
	actor := uuid.New()
	ctx := context.Background()

	// No history yet
	suggested, err := svc.SuggestedOpeningAmount(ctx)
	require.NoError(t, err)
	assert.True(t, suggested.Suggested.IsZero())

	_, err = svc.Open(ctx, actor, dto.OpenRegisterRequest{OpeningAmount: dec("1000")})
	require.NoError(t, err)
	_, err = svc.Close(ctx, actor, dto.CloseRegisterRequest{
		CountedAmounts: map[string]decimal.Decimal{"cash": dec("995")},
	})
	require.NoError(t, err)

	suggested, err = svc.SuggestedOpeningAmount(ctx)
	require.NoError(t, err)
	assert.True(t, suggested.Suggested.Equal(dec("995")), "suggest what was physically counted, not the expected amount")
}

func TestStatus_ReportsPreviousDayCarryOver(t *testing.T) {
	svc, repo, _ := newRegisterFixture()
	actor := uuid.New()
	ctx := context.Background()

	status, err := svc.Status(ctx)
	require.NoError(t, err)
	assert.False(t, status.HasOpenRegister)

	report, err := svc.Open(ctx, actor, dto.OpenRegisterRequest{OpeningAmount: dec("100")})
	require.NoError(t, err)

	status, err = svc.Status(ctx)
	require.NoError(t, err)
	assert.True(t, status.HasOpenRegister)
	assert.False(t, status.IsFromPreviousDay)

	regID := uuid.MustParse(report.ID)
	repo.registers[regID].BusinessDate = repo.registers[regID].BusinessDate.AddDate(0, 0, -1)

	status, err = svc.Status(ctx)
	require.NoError(t, err)
	assert.True(t, status.IsFromPreviousDay)
}
