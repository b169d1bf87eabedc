package worker

// report_worker.go
// Generates the closing report PDF after a register close and, when the
// variance was classified critical, mails it to the supervision mailbox.

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"posledger/internal/dto"
	"posledger/internal/infra"
	"posledger/internal/service"
)

// ReportWorker processes jobs from QueueReport.
type ReportWorker struct {
	registers   service.RegisterService
	mailer      *infra.Mailer
	storagePath string
	alertEmail  string
}

func NewReportWorker(registers service.RegisterService, mailer *infra.Mailer, storagePath, alertEmail string) *ReportWorker {
	return &ReportWorker{
		registers:   registers,
		mailer:      mailer,
		storagePath: storagePath,
		alertEmail:  alertEmail,
	}
}

func (w *ReportWorker) Process(ctx context.Context, raw json.RawMessage) error {
	var job dto.ClosingReportJob
	if err := json.Unmarshal(raw, &job); err != nil {
		return fmt.Errorf("report: invalid payload: %w", err)
	}

	registerID, err := uuid.Parse(job.RegisterID)
	if err != nil {
		return fmt.Errorf("report: invalid register id %q: %w", job.RegisterID, err)
	}

	report, err := w.registers.FindByID(ctx, registerID)
	if err != nil {
		return fmt.Errorf("%w: load register %s: %v", service.ErrRetryable, registerID, err)
	}

	pdfPath, err := infra.GenerateClosingReportPDF(report, w.storagePath)
	if err != nil {
		return err
	}
	log.Info().Str("register_id", job.RegisterID).Str("path", pdfPath).Msg("report: closing PDF generated")

	if !job.Critical {
		return nil
	}
	if w.mailer == nil || w.alertEmail == "" {
		log.Warn().Str("register_id", job.RegisterID).Msg("report: critical variance but no alert mailbox configured")
		return nil
	}

	subject := fmt.Sprintf("Critical cash variance on %s", report.BusinessDate)
	body := fmt.Sprintf("The register closed on %s with a critical variance. The reconciliation report is attached.", report.BusinessDate)
	if err := w.mailer.SendClosingAlert(w.alertEmail, subject, body, pdfPath); err != nil {
		return fmt.Errorf("report: send alert: %w", err)
	}

	log.Info().Str("register_id", job.RegisterID).Str("to", w.alertEmail).Msg("report: critical variance alert sent")
	return nil
}
