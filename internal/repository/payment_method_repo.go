package repository

import (
	"context"

	"posledger/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type PaymentMethodRepository interface {
	ListActive(ctx context.Context) ([]model.PaymentMethod, error)
	FindByID(ctx context.Context, id uuid.UUID) (*model.PaymentMethod, error)
	FindByCode(ctx context.Context, code string) (*model.PaymentMethod, error)
}

type paymentMethodRepo struct{ db *gorm.DB }

func NewPaymentMethodRepository(db *gorm.DB) PaymentMethodRepository {
	return &paymentMethodRepo{db: db}
}

func (r *paymentMethodRepo) ListActive(ctx context.Context) ([]model.PaymentMethod, error) {
	var methods []model.PaymentMethod
	err := r.db.WithContext(ctx).Where("is_active = true").Order("code ASC").Find(&methods).Error
	return methods, err
}

func (r *paymentMethodRepo) FindByID(ctx context.Context, id uuid.UUID) (*model.PaymentMethod, error) {
	var m model.PaymentMethod
	err := r.db.WithContext(ctx).First(&m, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *paymentMethodRepo) FindByCode(ctx context.Context, code string) (*model.PaymentMethod, error) {
	var m model.PaymentMethod
	err := r.db.WithContext(ctx).First(&m, "code = ?", code).Error
	if err != nil {
		return nil, err
	}
	return &m, nil
}
