package worker

// cashsync_worker.go
// Echoes customer account payments into the open cash register. The account
// write already committed; this keeps the drawer totals in sync without the
// payment request waiting on the register lock.

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"posledger/internal/dto"
	"posledger/internal/service"
)

const cashSyncReferenceType = "account_payment"

// CashSyncWorker processes jobs from QueueCashSync.
type CashSyncWorker struct {
	registers service.RegisterService
}

func NewCashSyncWorker(registers service.RegisterService) *CashSyncWorker {
	return &CashSyncWorker{registers: registers}
}

func (w *CashSyncWorker) Process(ctx context.Context, raw json.RawMessage) error {
	var job dto.CashSyncJob
	if err := json.Unmarshal(raw, &job); err != nil {
		return fmt.Errorf("cash_sync: invalid payload: %w", err)
	}

	actorID, err := uuid.Parse(job.CreatedBy)
	if err != nil {
		return fmt.Errorf("cash_sync: invalid created_by %q: %w", job.CreatedBy, err)
	}

	reg, err := w.registers.GetOpen(ctx)
	if errors.Is(err, service.ErrNotFound) || errors.Is(err, service.ErrConflict) {
		// No open register: the payment stays on the account ledger only.
		log.Warn().
			Str("account_movement_id", job.AccountMovementID).
			Msg("cash_sync: no open register, skipping echo")
		return nil
	}
	if err != nil {
		return fmt.Errorf("%w: %v", service.ErrRetryable, err)
	}

	refType := cashSyncReferenceType
	refID := job.AccountMovementID
	_, err = w.registers.RecordMovement(ctx, actorID, dto.RecordCashMovementRequest{
		RegisterID:      reg.ID,
		MovementType:    "income",
		Amount:          job.Amount,
		PaymentMethodID: job.PaymentMethodID,
		ReferenceType:   &refType,
		ReferenceID:     &refID,
		Description:     job.Description,
	})
	if err != nil {
		// The register may have closed between GetOpen and the insert.
		if errors.Is(err, service.ErrNotFound) {
			log.Warn().
				Str("account_movement_id", job.AccountMovementID).
				Msg("cash_sync: register closed before echo, skipping")
			return nil
		}
		return err
	}

	log.Info().
		Str("register_id", reg.ID).
		Str("account_movement_id", job.AccountMovementID).
		Str("amount", job.Amount.StringFixed(2)).
		Msg("cash_sync: payment echoed into register")
	return nil
}
