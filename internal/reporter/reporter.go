// Package reporter renders stored validation results as a CSV audit report.
package reporter

import (
	"encoding/csv"
	"io"
	"strconv"

	"trade-validation-service/internal/models"
	apperrors "trade-validation-service/pkg/errors"
)

// ReportFilename is the download name for the validation report.
const ReportFilename = "trs_validation_report.csv"

// reportHeaders is the fixed column order of the report. Downstream audit
// tooling keys on these names; do not reorder.
var reportHeaders = []string{
	"validation_id",
	"document_id",
	"machine_status",
	"checker_decision",
	"system_trade_id",
	"party_a",
	"party_b",
	"trade_date",
	"effective_date",
	"scheduled_termination_date",
	"local_currency",
	"notional_amount",
	"machine_confidence",
	"auto_passed",
	"checked_at",
	"checker_comment",
	"created_at",
}

// WriteReport writes all validation results as CSV to w in the given order.
func WriteReport(w io.Writer, results []models.ValidationResult) error {
	writer := csv.NewWriter(w)

	if err := writer.Write(reportHeaders); err != nil {
		return apperrors.InternalError("report_write", err)
	}
	for i := range results {
		if err := writer.Write(reportRow(&results[i])); err != nil {
			return apperrors.InternalError("report_write", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return apperrors.InternalError("report_write", err)
	}
	return nil
}

func reportRow(r *models.ValidationResult) []string {
	return []string{
		r.ID,
		r.DocumentID,
		string(r.Status),
		string(r.CheckerDecision),
		r.SystemTradeID,
		r.PartyA,
		r.PartyB,
		r.TradeDate,
		r.EffectiveDate,
		r.ScheduledTerminationDate,
		r.LocalCurrency,
		formatFloat(r.NotionalAmount),
		formatFloat(r.MachineConfidence),
		strconv.FormatBool(r.AutoPassed),
		r.CheckedAt,
		r.CheckerComment,
		r.CreatedAt,
	}
}

// formatFloat renders an optional numeric column, empty when absent.
func formatFloat(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}
