package repository

import (
	"context"
	"errors"
	"time"

	"posledger/internal/model"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// MethodSums is the recomputed income/expense aggregate for one payment
// method, derived directly from the movement log.
type MethodSums struct {
	Income  decimal.Decimal
	Expense decimal.Decimal
}

// RegisterRepository is the append-only store for cash register sessions,
// movements and the per-method totals cache. Movements are immutable — there
// is deliberately no update or delete for them.
type RegisterRepository interface {
	// Transaction runs fn inside one atomic unit of work. Tx-suffixed methods
	// must only be called with the *gorm.DB handed to fn.
	Transaction(ctx context.Context, fn func(tx *gorm.DB) error) error

	CreateTx(tx *gorm.DB, r *model.CashRegister) error
	FindOpen(ctx context.Context) (*model.CashRegister, error)
	FindOpenForUpdate(tx *gorm.DB) (*model.CashRegister, error)
	FindByID(ctx context.Context, id uuid.UUID) (*model.CashRegister, error)
	FindByIDForUpdate(tx *gorm.DB, id uuid.UUID) (*model.CashRegister, error)
	FindByBusinessDate(ctx context.Context, date time.Time) (*model.CashRegister, error)
	FindLastClosed(ctx context.Context) (*model.CashRegister, error)
	UpdateTx(tx *gorm.DB, r *model.CashRegister) error
	List(ctx context.Context, from, to *time.Time, page, limit int) ([]model.CashRegister, int64, error)

	CreateMovementTx(tx *gorm.DB, m *model.CashMovement) error
	ListMovements(ctx context.Context, registerID uuid.UUID) ([]model.CashMovement, error)
	SumMovementsByMethod(ctx context.Context, registerID uuid.UUID) (map[uuid.UUID]MethodSums, error)

	CreateTotalsTx(tx *gorm.DB, t *model.CashRegisterTotals) error
	// ApplyToTotalsTx locks the (register, method) totals row and applies the
	// income/expense delta plus the expected-amount recomputation as a single
	// in-database update, eliminating read-modify-write lost updates.
	ApplyToTotalsTx(tx *gorm.DB, registerID, paymentMethodID uuid.UUID, income, expense decimal.Decimal) error
	ListTotals(ctx context.Context, registerID uuid.UUID) ([]model.CashRegisterTotals, error)
	ListTotalsForUpdate(tx *gorm.DB, registerID uuid.UUID) ([]model.CashRegisterTotals, error)
	SaveTotalsTx(tx *gorm.DB, t *model.CashRegisterTotals) error
}

type registerRepo struct{ db *gorm.DB }

func NewRegisterRepository(db *gorm.DB) RegisterRepository { return &registerRepo{db: db} }

func (r *registerRepo) Transaction(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return translatePgError(r.db.WithContext(ctx).Transaction(fn))
}

func (r *registerRepo) CreateTx(tx *gorm.DB, reg *model.CashRegister) error {
	return translatePgError(tx.Create(reg).Error)
}

func (r *registerRepo) FindOpen(ctx context.Context) (*model.CashRegister, error) {
	var reg model.CashRegister
	err := r.db.WithContext(ctx).
		Preload("Totals").Preload("Totals.PaymentMethod").
		Where("status = ?", model.RegisterOpen).
		First(&reg).Error
	if err != nil {
		return nil, err
	}
	return &reg, nil
}

func (r *registerRepo) FindOpenForUpdate(tx *gorm.DB) (*model.CashRegister, error) {
	var reg model.CashRegister
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("status = ?", model.RegisterOpen).
		First(&reg).Error
	if err != nil {
		return nil, translatePgError(err)
	}
	return &reg, nil
}

func (r *registerRepo) FindByID(ctx context.Context, id uuid.UUID) (*model.CashRegister, error) {
	var reg model.CashRegister
	err := r.db.WithContext(ctx).
		Preload("Totals").Preload("Totals.PaymentMethod").
		First(&reg, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &reg, nil
}

func (r *registerRepo) FindByIDForUpdate(tx *gorm.DB, id uuid.UUID) (*model.CashRegister, error) {
	var reg model.CashRegister
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&reg, "id = ?", id).Error
	if err != nil {
		return nil, translatePgError(err)
	}
	return &reg, nil
}

func (r *registerRepo) FindByBusinessDate(ctx context.Context, date time.Time) (*model.CashRegister, error) {
	var reg model.CashRegister
	err := r.db.WithContext(ctx).
		Where("business_date = ?", date.Format("2006-01-02")).
		First(&reg).Error
	if err != nil {
		return nil, err
	}
	return &reg, nil
}

func (r *registerRepo) FindLastClosed(ctx context.Context) (*model.CashRegister, error) {
	var reg model.CashRegister
	err := r.db.WithContext(ctx).
		Where("status = ?", model.RegisterClosed).
		Order("closed_at DESC").
		First(&reg).Error
	if err != nil {
		return nil, err
	}
	return &reg, nil
}

func (r *registerRepo) UpdateTx(tx *gorm.DB, reg *model.CashRegister) error {
	return translatePgError(tx.Save(reg).Error)
}

func (r *registerRepo) List(ctx context.Context, from, to *time.Time, page, limit int) ([]model.CashRegister, int64, error) {
	q := r.db.WithContext(ctx).Model(&model.CashRegister{})
	if from != nil && to != nil {
		q = q.Where("business_date BETWEEN ? AND ?", from.Format("2006-01-02"), to.Format("2006-01-02"))
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var regs []model.CashRegister
	err := q.Preload("Totals").Preload("Totals.PaymentMethod").
		Order("business_date DESC").
		Offset((page - 1) * limit).Limit(limit).
		Find(&regs).Error
	return regs, total, err
}

func (r *registerRepo) CreateMovementTx(tx *gorm.DB, m *model.CashMovement) error {
	return translatePgError(tx.Create(m).Error)
}

func (r *registerRepo) ListMovements(ctx context.Context, registerID uuid.UUID) ([]model.CashMovement, error) {
	var movs []model.CashMovement
	err := r.db.WithContext(ctx).
		Preload("PaymentMethod").
		Where("register_id = ?", registerID).
		Order("created_at ASC").
		Find(&movs).Error
	return movs, err
}

func (r *registerRepo) SumMovementsByMethod(ctx context.Context, registerID uuid.UUID) (map[uuid.UUID]MethodSums, error) {
	type row struct {
		PaymentMethodID uuid.UUID
		MovementType    model.CashMovementType
		Total           decimal.Decimal
	}
	var rows []row
	err := r.db.WithContext(ctx).
		Model(&model.CashMovement{}).
		Select("payment_method_id, movement_type, COALESCE(SUM(amount), 0) AS total").
		Where("register_id = ?", registerID).
		Group("payment_method_id, movement_type").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	sums := make(map[uuid.UUID]MethodSums, len(rows))
	for _, rw := range rows {
		s := sums[rw.PaymentMethodID]
		switch rw.MovementType {
		case model.CashIncome:
			s.Income = s.Income.Add(rw.Total)
		case model.CashExpense:
			s.Expense = s.Expense.Add(rw.Total)
		}
		sums[rw.PaymentMethodID] = s
	}
	return sums, nil
}

func (r *registerRepo) CreateTotalsTx(tx *gorm.DB, t *model.CashRegisterTotals) error {
	return translatePgError(tx.Create(t).Error)
}

func (r *registerRepo) ApplyToTotalsTx(tx *gorm.DB, registerID, paymentMethodID uuid.UUID, income, expense decimal.Decimal) error {
	// Lock the row first so concurrent movements on the same method serialize.
	var t model.CashRegisterTotals
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("register_id = ? AND payment_method_id = ?", registerID, paymentMethodID).
		First(&t).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		// Payment method activated after the register was opened: create the
		// row on first use.
		t = model.CashRegisterTotals{
			RegisterID:      registerID,
			PaymentMethodID: paymentMethodID,
		}
		if err := tx.Create(&t).Error; err != nil {
			return translatePgError(err)
		}
	} else if err != nil {
		return translatePgError(err)
	}

	res := tx.Model(&model.CashRegisterTotals{}).
		Where("id = ?", t.ID).
		Updates(map[string]interface{}{
			"total_income":    gorm.Expr("total_income + ?", income),
			"total_expense":   gorm.Expr("total_expense + ?", expense),
			"expected_amount": gorm.Expr("initial_amount + total_income + ? - total_expense - ?", income, expense),
		})
	return translatePgError(res.Error)
}

func (r *registerRepo) ListTotals(ctx context.Context, registerID uuid.UUID) ([]model.CashRegisterTotals, error) {
	var totals []model.CashRegisterTotals
	err := r.db.WithContext(ctx).
		Preload("PaymentMethod").
		Where("register_id = ?", registerID).
		Find(&totals).Error
	return totals, err
}

func (r *registerRepo) ListTotalsForUpdate(tx *gorm.DB, registerID uuid.UUID) ([]model.CashRegisterTotals, error) {
	var totals []model.CashRegisterTotals
	err := tx.Clauses(clause.Locking{Strength: "UPDATE", Table: clause.Table{Name: "cash_register_totals"}}).
		Preload("PaymentMethod").
		Where("register_id = ?", registerID).
		Find(&totals).Error
	return totals, translatePgError(err)
}

func (r *registerRepo) SaveTotalsTx(tx *gorm.DB, t *model.CashRegisterTotals) error {
	return translatePgError(tx.Save(t).Error)
}
