package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"posledger/internal/dto"
	"posledger/internal/repository"
)

// JobDispatcher enqueues async work (payment echo into the register,
// post-close reporting). Implemented by the redis-backed worker dispatcher;
// nil-safe wiring is the caller's job, services treat a nil dispatcher as
// "async disabled".
type JobDispatcher interface {
	EnqueueCashSync(ctx context.Context, job dto.CashSyncJob) error
	EnqueueClosingReport(ctx context.Context, job dto.ClosingReportJob) error
}

// BalanceCache is a read-through cache for account balances. The engine only
// invalidates; reads go through GetBalance.
type BalanceCache interface {
	Get(ctx context.Context, customerID string) (decimal.Decimal, bool)
	Set(ctx context.Context, customerID string, balance decimal.Decimal)
	Invalidate(ctx context.Context, customerID string)
}

// mapStoreErr translates store-layer errors into the service taxonomy.
// Unique-violation handling stays operation-specific and is NOT done here.
func mapStoreErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrLockContention):
		return fmt.Errorf("%w: %v", ErrRetryable, err)
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	default:
		return err
	}
}
