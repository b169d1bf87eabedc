package infra

// pdf.go — closing report generation using go-pdf/fpdf. One A4 page per
// register close: session header, per-method reconciliation table and the
// aggregate difference. The output file is saved to
// storagePath/closing_{business_date}.pdf.

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-pdf/fpdf"
	"github.com/shopspring/decimal"

	"posledger/internal/dto"
)

// GenerateClosingReportPDF renders the reconciliation report for a closed
// register session. Returns the absolute path of the written file.
func GenerateClosingReportPDF(report *dto.RegisterReport, storagePath string) (string, error) {
	if err := os.MkdirAll(storagePath, 0755); err != nil {
		return "", fmt.Errorf("pdf: create storage dir: %w", err)
	}

	fileName := fmt.Sprintf("closing_%s.pdf", report.BusinessDate)
	filePath := filepath.Join(storagePath, fileName)

	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(15, 15, 15)
	pdf.AddPage()

	pageW, _ := pdf.GetPageSize()
	contentW := pageW - 30

	// ── Header ───────────────────────────────────────────────────────────────
	pdf.SetFont("Helvetica", "B", 16)
	pdf.CellFormat(contentW, 9, "Cash Register Closing Report", "", 1, "C", false, 0, "")

	pdf.SetFont("Helvetica", "", 10)
	pdf.CellFormat(contentW, 6, fmt.Sprintf("Business date: %s", report.BusinessDate), "", 1, "C", false, 0, "")
	if report.ClosedAt != nil {
		pdf.CellFormat(contentW, 6, fmt.Sprintf("Closed at: %s", report.ClosedAt.Format("2006-01-02 15:04")), "", 1, "C", false, 0, "")
	}
	pdf.Ln(4)

	// ── Session summary ──────────────────────────────────────────────────────
	pdf.SetFont("Helvetica", "", 10)
	pdf.CellFormat(contentW, 6, fmt.Sprintf("Opening amount: $%s", report.OpeningAmount.StringFixed(2)), "", 1, "L", false, 0, "")
	pdf.CellFormat(contentW, 6, fmt.Sprintf("Total income: $%s", report.TotalIncome.StringFixed(2)), "", 1, "L", false, 0, "")
	pdf.CellFormat(contentW, 6, fmt.Sprintf("Total expense: $%s", report.TotalExpense.StringFixed(2)), "", 1, "L", false, 0, "")
	pdf.Ln(4)

	// ── Per-method table ─────────────────────────────────────────────────────
	col1 := contentW * 0.28 // method
	colN := contentW * 0.18 // numeric columns

	pdf.SetFont("Helvetica", "B", 9)
	pdf.CellFormat(col1, 7, "Payment method", "B", 0, "L", false, 0, "")
	pdf.CellFormat(colN, 7, "Expected", "B", 0, "R", false, 0, "")
	pdf.CellFormat(colN, 7, "Counted", "B", 0, "R", false, 0, "")
	pdf.CellFormat(colN, 7, "Difference", "B", 1, "R", false, 0, "")

	pdf.SetFont("Helvetica", "", 9)
	for _, t := range report.Totals {
		counted, diff := "-", "-"
		if t.ActualAmount != nil {
			counted = "$" + t.ActualAmount.StringFixed(2)
		}
		if t.Difference != nil {
			diff = "$" + t.Difference.StringFixed(2)
		}
		pdf.CellFormat(col1, 6, t.Name, "", 0, "L", false, 0, "")
		pdf.CellFormat(colN, 6, "$"+t.ExpectedAmount.StringFixed(2), "", 0, "R", false, 0, "")
		pdf.CellFormat(colN, 6, counted, "", 0, "R", false, 0, "")
		pdf.CellFormat(colN, 6, diff, "", 1, "R", false, 0, "")
	}

	pdf.Ln(2)
	pdf.Line(15, pdf.GetY(), pageW-15, pdf.GetY())
	pdf.Ln(2)

	// ── Aggregate ────────────────────────────────────────────────────────────
	pdf.SetFont("Helvetica", "B", 11)
	diff := decimal.Zero
	if report.Difference != nil {
		diff = *report.Difference
	}
	pdf.CellFormat(col1+colN, 7, "TOTAL DIFFERENCE:", "", 0, "L", false, 0, "")
	pdf.CellFormat(colN*2, 7, "$"+diff.StringFixed(2), "", 1, "R", false, 0, "")

	if report.ClosingNotes != nil && *report.ClosingNotes != "" {
		pdf.Ln(4)
		pdf.SetFont("Helvetica", "I", 9)
		pdf.MultiCell(contentW, 5, "Notes: "+*report.ClosingNotes, "", "L", false)
	}

	if err := pdf.OutputFileAndClose(filePath); err != nil {
		return "", fmt.Errorf("pdf: write file: %w", err)
	}

	return filePath, nil
}
