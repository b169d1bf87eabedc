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

// RegisterService drives the cash register session lifecycle: open, record
// movements, close with blind reconciliation, same-day reopen.
type RegisterService interface {
	Open(ctx context.Context, actorID uuid.UUID, req dto.OpenRegisterRequest) (*dto.RegisterReport, error)
	RecordMovement(ctx context.Context, actorID uuid.UUID, req dto.RecordCashMovementRequest) (*dto.CashMovementResponse, error)
	Close(ctx context.Context, actorID uuid.UUID, req dto.CloseRegisterRequest) (*dto.ClosingSummary, error)
	Reopen(ctx context.Context, actorID uuid.UUID, registerID uuid.UUID) (*dto.RegisterReport, error)

	GetOpen(ctx context.Context) (*dto.RegisterReport, error)
	Status(ctx context.Context) (*dto.RegisterStatus, error)
	SuggestedOpeningAmount(ctx context.Context) (*dto.SuggestedOpeningAmount, error)
	FindByID(ctx context.Context, id uuid.UUID) (*dto.RegisterReport, error)
	History(ctx context.Context, from, to *time.Time, page, limit int) ([]dto.RegisterReport, int64, error)
	Stats(ctx context.Context, from, to *time.Time) (*dto.RegisterStats, error)
}

type registerService struct {
	repo       repository.RegisterRepository
	methods    repository.PaymentMethodRepository
	dispatcher JobDispatcher
}

func NewRegisterService(repo repository.RegisterRepository, methods repository.PaymentMethodRepository, dispatcher JobDispatcher) RegisterService {
	return &registerService{repo: repo, methods: methods, dispatcher: dispatcher}
}

// businessDate truncates t to the local calendar day. Register identity is
// the business date, not the opening instant.
func businessDate(t time.Time) time.Time {
	y, m, d := t.Local().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.Local)
}

func (s *registerService) Open(ctx context.Context, actorID uuid.UUID, req dto.OpenRegisterRequest) (*dto.RegisterReport, error) {
	if _, err := s.repo.FindOpen(ctx); err == nil {
		return nil, fmt.Errorf("%w: a register is already open", ErrConflict)
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	today := businessDate(time.Now())
	if _, err := s.repo.FindByBusinessDate(ctx, today); err == nil {
		return nil, fmt.Errorf("%w: a register already exists for %s, reopen it instead", ErrConflict, today.Format("2006-01-02"))
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	if req.ManuallyAdjusted {
		reason := ""
		if req.AdjustmentReason != nil {
			reason = *req.AdjustmentReason
		}
		log.Warn().
			Str("opened_by", actorID.String()).
			Str("opening_amount", req.OpeningAmount.StringFixed(2)).
			Str("reason", reason).
			Msg("opening amount manually adjusted away from the suggested carry-over")
	}

	activeMethods, err := s.methods.ListActive(ctx)
	if err != nil {
		return nil, err
	}

	reg := &model.CashRegister{
		BusinessDate:  today,
		OpenedAt:      time.Now(),
		OpeningAmount: req.OpeningAmount,
		Status:        model.RegisterOpen,
		OpeningNotes:  req.OpeningNotes,
		OpenedBy:      actorID,
	}

	err = s.repo.Transaction(ctx, func(tx *gorm.DB) error {
		if err := s.repo.CreateTx(tx, reg); err != nil {
			return err
		}
		// One totals row per active method; only physical cash starts with the
		// drawer float, card/transfer methods start at zero.
		for _, m := range activeMethods {
			t := &model.CashRegisterTotals{
				RegisterID:      reg.ID,
				PaymentMethodID: m.ID,
			}
			if m.Code == model.PaymentMethodCash {
				t.InitialAmount = req.OpeningAmount
				t.ExpectedAmount = req.OpeningAmount
			}
			if err := s.repo.CreateTotalsTx(tx, t); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, repository.ErrUniqueViolation) {
			return nil, fmt.Errorf("%w: a register was opened concurrently", ErrConflict)
		}
		return nil, mapStoreErr(err)
	}

	log.Info().
		Str("register_id", reg.ID.String()).
		Str("business_date", today.Format("2006-01-02")).
		Str("opening_amount", req.OpeningAmount.StringFixed(2)).
		Msg("cash register opened")

	return s.buildReport(ctx, reg.ID, false)
}

func (s *registerService) RecordMovement(ctx context.Context, actorID uuid.UUID, req dto.RecordCashMovementRequest) (*dto.CashMovementResponse, error) {
	registerID, err := uuid.Parse(req.RegisterID)
	if err != nil {
		return nil, fmt.Errorf("%w: register %q", ErrNotFound, req.RegisterID)
	}
	methodID, err := uuid.Parse(req.PaymentMethodID)
	if err != nil {
		return nil, fmt.Errorf("%w: payment method %q", ErrNotFound, req.PaymentMethodID)
	}

	var refID *uuid.UUID
	if req.ReferenceID != nil {
		id, err := uuid.Parse(*req.ReferenceID)
		if err != nil {
			return nil, fmt.Errorf("%w: reference id %q", ErrNotFound, *req.ReferenceID)
		}
		refID = &id
	}

	mov := &model.CashMovement{
		RegisterID:      registerID,
		MovementType:    model.CashMovementType(req.MovementType),
		Amount:          req.Amount,
		PaymentMethodID: methodID,
		ReferenceType:   req.ReferenceType,
		ReferenceID:     refID,
		Description:     req.Description,
		CreatedBy:       actorID,
	}

	err = s.repo.Transaction(ctx, func(tx *gorm.DB) error {
		reg, err := s.repo.FindByIDForUpdate(tx, registerID)
		if err != nil {
			return err
		}
		if reg.Status != model.RegisterOpen {
			return fmt.Errorf("%w: register %s is not open", ErrNotFound, registerID)
		}

		if err := s.repo.CreateMovementTx(tx, mov); err != nil {
			return err
		}

		income, expense := decimal.Zero, decimal.Zero
		switch mov.MovementType {
		case model.CashIncome:
			income = mov.Amount
			reg.TotalIncome = reg.TotalIncome.Add(mov.Amount)
		case model.CashExpense:
			expense = mov.Amount
			reg.TotalExpense = reg.TotalExpense.Add(mov.Amount)
		}

		if err := s.repo.ApplyToTotalsTx(tx, registerID, methodID, income, expense); err != nil {
			return err
		}
		return s.repo.UpdateTx(tx, reg)
	})
	if err != nil {
		return nil, mapStoreErr(err)
	}

	log.Info().
		Str("register_id", registerID.String()).
		Str("movement_id", mov.ID.String()).
		Str("type", req.MovementType).
		Str("amount", req.Amount.StringFixed(2)).
		Msg("cash movement recorded")

	resp := toCashMovementResponse(*mov)
	return &resp, nil
}

func (s *registerService) Close(ctx context.Context, actorID uuid.UUID, req dto.CloseRegisterRequest) (*dto.ClosingSummary, error) {
	var (
		reg *model.CashRegister
		rec Reconciliation
	)

	err := s.repo.Transaction(ctx, func(tx *gorm.DB) error {
		var err error
		reg, err = s.repo.FindOpenForUpdate(tx)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: no open register to close", ErrConflict)
			}
			return err
		}

		totals, err := s.repo.ListTotalsForUpdate(tx, reg.ID)
		if err != nil {
			return err
		}

		rec = Reconcile(totals, req.CountedAmounts)

		if rec.Classification == VarianceCritical &&
			(req.ClosingNotes == nil || *req.ClosingNotes == "") {
			return ErrClosingNotesRequired
		}

		byID := make(map[string]MethodReconciliation, len(rec.ByMethod))
		for _, m := range rec.ByMethod {
			byID[m.PaymentMethodID] = m
		}
		for i := range totals {
			m, ok := byID[totals[i].PaymentMethodID.String()]
			if !ok {
				continue
			}
			actual, diff := m.ActualAmount, m.Difference
			totals[i].ActualAmount = &actual
			totals[i].Difference = &diff
			totals[i].ExpectedAmount = m.ExpectedAmount
			if err := s.repo.SaveTotalsTx(tx, &totals[i]); err != nil {
				return err
			}
		}

		now := time.Now()
		expected, counted, diff := rec.ExpectedTotal, rec.CountedTotal, rec.TotalDifference
		reg.Status = model.RegisterClosed
		reg.ClosedAt = &now
		reg.ClosedBy = &actorID
		reg.ClosingNotes = req.ClosingNotes
		reg.ExpectedAmount = &expected
		reg.ActualAmount = &counted
		reg.Difference = &diff
		return s.repo.UpdateTx(tx, reg)
	})
	if err != nil {
		return nil, mapStoreErr(err)
	}

	evt := log.Info()
	if rec.Classification == VarianceCritical {
		evt = log.Warn()
	}
	evt.
		Str("register_id", reg.ID.String()).
		Str("expected", rec.ExpectedTotal.StringFixed(2)).
		Str("counted", rec.CountedTotal.StringFixed(2)).
		Str("difference", rec.TotalDifference.StringFixed(2)).
		Str("classification", rec.Classification).
		Msg("cash register closed")

	if s.dispatcher != nil {
		job := dto.ClosingReportJob{
			RegisterID: reg.ID.String(),
			Critical:   rec.Classification == VarianceCritical,
		}
		if err := s.dispatcher.EnqueueClosingReport(ctx, job); err != nil {
			log.Error().Err(err).Str("register_id", reg.ID.String()).Msg("could not enqueue closing report")
		}
	}

	summary := &dto.ClosingSummary{
		RegisterID:      reg.ID.String(),
		ClosedAt:        *reg.ClosedAt,
		ByMethod:        make([]dto.MethodTotal, 0, len(rec.ByMethod)),
		ExpectedTotal:   rec.ExpectedTotal,
		CountedTotal:    rec.CountedTotal,
		TotalDifference: rec.TotalDifference,
		VariancePct:     rec.VariancePct,
		Classification:  rec.Classification,
		Status:          string(model.RegisterClosed),
	}
	for _, m := range rec.ByMethod {
		actual, diff := m.ActualAmount, m.Difference
		summary.ByMethod = append(summary.ByMethod, dto.MethodTotal{
			PaymentMethodID: m.PaymentMethodID,
			Code:            m.Code,
			Name:            m.Name,
			InitialAmount:   m.InitialAmount,
			TotalIncome:     m.TotalIncome,
			TotalExpense:    m.TotalExpense,
			ExpectedAmount:  m.ExpectedAmount,
			ActualAmount:    &actual,
			Difference:      &diff,
		})
	}
	return summary, nil
}

func (s *registerService) Reopen(ctx context.Context, actorID uuid.UUID, registerID uuid.UUID) (*dto.RegisterReport, error) {
	err := s.repo.Transaction(ctx, func(tx *gorm.DB) error {
		reg, err := s.repo.FindByIDForUpdate(tx, registerID)
		if err != nil {
			return err
		}
		if reg.Status == model.RegisterOpen {
			return fmt.Errorf("%w: register %s is already open", ErrConflict, registerID)
		}
		if !businessDate(reg.BusinessDate).Equal(businessDate(time.Now())) {
			return fmt.Errorf("%w: only the current business date can be reopened", ErrConflict)
		}
		if _, err := s.repo.FindOpenForUpdate(tx); err == nil {
			return fmt.Errorf("%w: another register is open", ErrConflict)
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		// Discard the closing snapshot; movements and running totals stand.
		totals, err := s.repo.ListTotalsForUpdate(tx, reg.ID)
		if err != nil {
			return err
		}
		for i := range totals {
			totals[i].ActualAmount = nil
			totals[i].Difference = nil
			if err := s.repo.SaveTotalsTx(tx, &totals[i]); err != nil {
				return err
			}
		}

		reg.Status = model.RegisterOpen
		reg.ClosedAt = nil
		reg.ClosedBy = nil
		reg.ClosingNotes = nil
		reg.ExpectedAmount = nil
		reg.ActualAmount = nil
		reg.Difference = nil
		return s.repo.UpdateTx(tx, reg)
	})
	if err != nil {
		if errors.Is(err, repository.ErrUniqueViolation) {
			return nil, fmt.Errorf("%w: another register is open", ErrConflict)
		}
		return nil, mapStoreErr(err)
	}

	log.Info().
		Str("register_id", registerID.String()).
		Str("reopened_by", actorID.String()).
		Msg("cash register reopened")

	return s.buildReport(ctx, registerID, false)
}

func (s *registerService) GetOpen(ctx context.Context) (*dto.RegisterReport, error) {
	reg, err := s.repo.FindOpen(ctx)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	return s.buildReport(ctx, reg.ID, true)
}

func (s *registerService) Status(ctx context.Context) (*dto.RegisterStatus, error) {
	reg, err := s.repo.FindOpen(ctx)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &dto.RegisterStatus{}, nil
	}
	if err != nil {
		return nil, err
	}

	report, err := s.buildReport(ctx, reg.ID, false)
	if err != nil {
		return nil, err
	}
	return &dto.RegisterStatus{
		HasOpenRegister:   true,
		IsFromPreviousDay: businessDate(reg.BusinessDate).Before(businessDate(time.Now())),
		Register:          report,
	}, nil
}

func (s *registerService) SuggestedOpeningAmount(ctx context.Context) (*dto.SuggestedOpeningAmount, error) {
	last, err := s.repo.FindLastClosed(ctx)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &dto.SuggestedOpeningAmount{}, nil
	}
	if err != nil {
		return nil, err
	}

	// Suggest the physically counted cash of the previous close, not the
	// expected amount: the drawer contains what was counted.
	suggested := decimal.Zero
	totals, err := s.repo.ListTotals(ctx, last.ID)
	if err != nil {
		return nil, err
	}
	for _, t := range totals {
		if t.PaymentMethod != nil && t.PaymentMethod.Code == model.PaymentMethodCash && t.ActualAmount != nil {
			suggested = *t.ActualAmount
		}
	}

	date := last.BusinessDate.Format("2006-01-02")
	return &dto.SuggestedOpeningAmount{
		Suggested:      suggested,
		PreviousDate:   &date,
		PreviousActual: suggested,
	}, nil
}

func (s *registerService) FindByID(ctx context.Context, id uuid.UUID) (*dto.RegisterReport, error) {
	return s.buildReport(ctx, id, true)
}

func (s *registerService) History(ctx context.Context, from, to *time.Time, page, limit int) ([]dto.RegisterReport, int64, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}
	regs, total, err := s.repo.List(ctx, from, to, page, limit)
	if err != nil {
		return nil, 0, err
	}

	reports := make([]dto.RegisterReport, 0, len(regs))
	for _, reg := range regs {
		reports = append(reports, toRegisterReport(reg, nil))
	}
	return reports, total, nil
}

func (s *registerService) Stats(ctx context.Context, from, to *time.Time) (*dto.RegisterStats, error) {
	regs, _, err := s.repo.List(ctx, from, to, 1, 500)
	if err != nil {
		return nil, err
	}

	stats := &dto.RegisterStats{TotalRegisters: len(regs)}
	for _, reg := range regs {
		stats.TotalIncome = stats.TotalIncome.Add(reg.TotalIncome)
		stats.TotalExpense = stats.TotalExpense.Add(reg.TotalExpense)
		switch reg.Status {
		case model.RegisterOpen:
			stats.OpenRegisters++
		case model.RegisterClosed:
			stats.ClosedRegisters++
			if reg.Difference != nil {
				stats.TotalDifferences = stats.TotalDifferences.Add(*reg.Difference)
			}
		}
	}
	stats.NetCashFlow = stats.TotalIncome.Sub(stats.TotalExpense)
	if stats.ClosedRegisters > 0 {
		stats.AverageDifference = stats.TotalDifferences.
			Div(decimal.NewFromInt(int64(stats.ClosedRegisters))).
			Round(2)
	}
	return stats, nil
}

func (s *registerService) buildReport(ctx context.Context, id uuid.UUID, withMovements bool) (*dto.RegisterReport, error) {
	reg, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, mapStoreErr(err)
	}

	var movements []model.CashMovement
	if withMovements {
		movements, err = s.repo.ListMovements(ctx, id)
		if err != nil {
			return nil, err
		}
	}

	report := toRegisterReport(*reg, movements)
	return &report, nil
}

func toRegisterReport(reg model.CashRegister, movements []model.CashMovement) dto.RegisterReport {
	report := dto.RegisterReport{
		ID:             reg.ID.String(),
		BusinessDate:   reg.BusinessDate.Format("2006-01-02"),
		Status:         string(reg.Status),
		OpeningAmount:  reg.OpeningAmount,
		TotalIncome:    reg.TotalIncome,
		TotalExpense:   reg.TotalExpense,
		ExpectedAmount: reg.ExpectedAmount,
		ActualAmount:   reg.ActualAmount,
		Difference:     reg.Difference,
		OpeningNotes:   reg.OpeningNotes,
		ClosingNotes:   reg.ClosingNotes,
		OpenedBy:       reg.OpenedBy.String(),
		OpenedAt:       reg.OpenedAt,
		ClosedAt:       reg.ClosedAt,
		Totals:         make([]dto.MethodTotal, 0, len(reg.Totals)),
	}
	if reg.ClosedBy != nil {
		cb := reg.ClosedBy.String()
		report.ClosedBy = &cb
	}

	for _, t := range reg.Totals {
		mt := dto.MethodTotal{
			PaymentMethodID: t.PaymentMethodID.String(),
			InitialAmount:   t.InitialAmount,
			TotalIncome:     t.TotalIncome,
			TotalExpense:    t.TotalExpense,
			ExpectedAmount:  t.ExpectedAmount,
			ActualAmount:    t.ActualAmount,
			Difference:      t.Difference,
		}
		if t.PaymentMethod != nil {
			mt.Code = t.PaymentMethod.Code
			mt.Name = t.PaymentMethod.Name
		}
		report.Totals = append(report.Totals, mt)
	}

	for _, m := range movements {
		report.Movements = append(report.Movements, toCashMovementResponse(m))
	}
	return report
}

func toCashMovementResponse(m model.CashMovement) dto.CashMovementResponse {
	resp := dto.CashMovementResponse{
		ID:              m.ID.String(),
		RegisterID:      m.RegisterID.String(),
		MovementType:    string(m.MovementType),
		Amount:          m.Amount,
		PaymentMethodID: m.PaymentMethodID.String(),
		ReferenceType:   m.ReferenceType,
		Description:     m.Description,
		CreatedBy:       m.CreatedBy.String(),
		CreatedAt:       m.CreatedAt,
	}
	if m.ReferenceID != nil {
		rid := m.ReferenceID.String()
		resp.ReferenceID = &rid
	}
	return resp
}
