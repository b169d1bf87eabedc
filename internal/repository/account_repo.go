package repository

import (
	"context"
	"time"

	"posledger/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// AccountMovementFilters narrow the movement listing.
type AccountMovementFilters struct {
	MovementType *model.AccountMovementType
	From, To     *time.Time
	Page, Limit  int
}

// AccountFilters narrow the account listing.
type AccountFilters struct {
	Status      *model.AccountStatus
	HasDebt     bool
	IsOverdue   bool
	Page, Limit int
}

// AccountRepository is the append-only store for customer accounts and their
// ledger. AccountMovement rows are immutable; the uniqueness of
// (account_id, reference_type, reference_id) is enforced by a partial index
// and surfaced as ErrDuplicateReference.
type AccountRepository interface {
	Transaction(ctx context.Context, fn func(tx *gorm.DB) error) error

	Create(ctx context.Context, a *model.CustomerAccount) error
	FindByCustomerID(ctx context.Context, customerID uuid.UUID) (*model.CustomerAccount, error)
	FindByIDForUpdate(tx *gorm.DB, id uuid.UUID) (*model.CustomerAccount, error)
	SaveTx(tx *gorm.DB, a *model.CustomerAccount) error
	Save(ctx context.Context, a *model.CustomerAccount) error
	List(ctx context.Context, f AccountFilters) ([]model.CustomerAccount, int64, error)
	ListDebtors(ctx context.Context) ([]model.CustomerAccount, error)
	ListOverdue(ctx context.Context) ([]model.CustomerAccount, error)
	ListAll(ctx context.Context) ([]model.CustomerAccount, error)

	CreateMovementTx(tx *gorm.DB, m *model.AccountMovement) error
	FindMovementByReferenceTx(tx *gorm.DB, accountID uuid.UUID, refType string, refID uuid.UUID) (*model.AccountMovement, error)
	FindMovementByReference(ctx context.Context, accountID uuid.UUID, refType string, refID uuid.UUID) (*model.AccountMovement, error)
	FindLatestMovementTx(tx *gorm.DB, accountID uuid.UUID) (*model.AccountMovement, error)
	ListMovements(ctx context.Context, accountID uuid.UUID, f AccountMovementFilters) ([]model.AccountMovement, int64, error)
}

type accountRepo struct{ db *gorm.DB }

func NewAccountRepository(db *gorm.DB) AccountRepository { return &accountRepo{db: db} }

func (r *accountRepo) Transaction(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return translatePgError(r.db.WithContext(ctx).Transaction(fn))
}

func (r *accountRepo) Create(ctx context.Context, a *model.CustomerAccount) error {
	return translatePgError(r.db.WithContext(ctx).Create(a).Error)
}

func (r *accountRepo) FindByCustomerID(ctx context.Context, customerID uuid.UUID) (*model.CustomerAccount, error) {
	var a model.CustomerAccount
	err := r.db.WithContext(ctx).Where("customer_id = ?", customerID).First(&a).Error
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *accountRepo) FindByIDForUpdate(tx *gorm.DB, id uuid.UUID) (*model.CustomerAccount, error) {
	var a model.CustomerAccount
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&a, "id = ?", id).Error
	if err != nil {
		return nil, translatePgError(err)
	}
	return &a, nil
}

func (r *accountRepo) SaveTx(tx *gorm.DB, a *model.CustomerAccount) error {
	return translatePgError(tx.Save(a).Error)
}

func (r *accountRepo) Save(ctx context.Context, a *model.CustomerAccount) error {
	return translatePgError(r.db.WithContext(ctx).Save(a).Error)
}

func (r *accountRepo) List(ctx context.Context, f AccountFilters) ([]model.CustomerAccount, int64, error) {
	q := r.db.WithContext(ctx).Model(&model.CustomerAccount{})
	if f.Status != nil {
		q = q.Where("status = ?", *f.Status)
	}
	if f.HasDebt {
		q = q.Where("balance > 0")
	}
	if f.IsOverdue {
		q = q.Where("days_overdue > 0")
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var accounts []model.CustomerAccount
	err := q.Order("balance DESC").
		Offset((f.Page - 1) * f.Limit).Limit(f.Limit).
		Find(&accounts).Error
	return accounts, total, err
}

func (r *accountRepo) ListDebtors(ctx context.Context) ([]model.CustomerAccount, error) {
	var accounts []model.CustomerAccount
	err := r.db.WithContext(ctx).
		Where("balance > 0").
		Order("balance DESC").
		Find(&accounts).Error
	return accounts, err
}

func (r *accountRepo) ListOverdue(ctx context.Context) ([]model.CustomerAccount, error) {
	var accounts []model.CustomerAccount
	err := r.db.WithContext(ctx).
		Where("balance > 0 AND days_overdue > 0").
		Order("days_overdue DESC").
		Find(&accounts).Error
	return accounts, err
}

func (r *accountRepo) ListAll(ctx context.Context) ([]model.CustomerAccount, error) {
	var accounts []model.CustomerAccount
	err := r.db.WithContext(ctx).Find(&accounts).Error
	return accounts, err
}

func (r *accountRepo) CreateMovementTx(tx *gorm.DB, m *model.AccountMovement) error {
	return translatePgError(tx.Create(m).Error)
}

func (r *accountRepo) FindMovementByReferenceTx(tx *gorm.DB, accountID uuid.UUID, refType string, refID uuid.UUID) (*model.AccountMovement, error) {
	var m model.AccountMovement
	err := tx.Where("account_id = ? AND reference_type = ? AND reference_id = ?", accountID, refType, refID).
		First(&m).Error
	if err != nil {
		return nil, translatePgError(err)
	}
	return &m, nil
}

func (r *accountRepo) FindMovementByReference(ctx context.Context, accountID uuid.UUID, refType string, refID uuid.UUID) (*model.AccountMovement, error) {
	return r.FindMovementByReferenceTx(r.db.WithContext(ctx), accountID, refType, refID)
}

func (r *accountRepo) FindLatestMovementTx(tx *gorm.DB, accountID uuid.UUID) (*model.AccountMovement, error) {
	var m model.AccountMovement
	err := tx.Where("account_id = ?", accountID).
		Order("created_at DESC").
		First(&m).Error
	if err != nil {
		return nil, translatePgError(err)
	}
	return &m, nil
}

func (r *accountRepo) ListMovements(ctx context.Context, accountID uuid.UUID, f AccountMovementFilters) ([]model.AccountMovement, int64, error) {
	q := r.db.WithContext(ctx).Model(&model.AccountMovement{}).Where("account_id = ?", accountID)
	if f.MovementType != nil {
		q = q.Where("movement_type = ?", *f.MovementType)
	}
	if f.From != nil {
		q = q.Where("created_at >= ?", *f.From)
	}
	if f.To != nil {
		q = q.Where("created_at < ?", f.To.AddDate(0, 0, 1))
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var movs []model.AccountMovement
	err := q.Order("created_at DESC").
		Offset((f.Page - 1) * f.Limit).Limit(f.Limit).
		Find(&movs).Error
	return movs, total, err
}
