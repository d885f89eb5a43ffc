package quiz

import (
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"
)

const (
	attemptsSheet = "Attempts"
	summarySheet  = "Summary"
)

// ExportResults writes an xlsx workbook with one row per attempt and a
// summary sheet.
func ExportResults(w io.Writer, ev Evaluation, attempts []Attempt, summary ResultsSummary) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", attemptsSheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	if _, err := f.NewSheet(summarySheet); err != nil {
		return fmt.Errorf("new sheet: %w", err)
	}

	header := []any{"User", "Attempt", "Started", "Submitted", "Score", "Total", "Percentage", "Reviewed %", "Passed", "Late"}
	rows := [][]any{header}
	for _, a := range attempts {
		rows = append(rows, []any{
			a.UserID,
			a.AttemptNumber,
			a.StartedAt.Format(time.RFC3339),
			submittedCell(a),
			a.Score,
			a.TotalPoints,
			a.Percentage,
			a.EffectivePercentage(),
			yesNo(a.IsPassed),
			yesNo(a.LateSubmission),
		})
	}
	if err := writeRows(f, attemptsSheet, rows); err != nil {
		return err
	}

	limit := "none"
	if ev.TimeLimitMinutes != nil {
		limit = fmt.Sprintf("%d min", *ev.TimeLimitMinutes)
	}
	if err := writeRows(f, summarySheet, [][]any{
		{"Evaluation", ev.Title},
		{"Passing score", ev.PassingScore},
		{"Max attempts", ev.MaxAttempts},
		{"Time limit", limit},
		{"Participants", summary.Participants},
		{"Submitted attempts", summary.SubmittedAttempts},
		{"Passed", summary.Passed},
		{"Failed", summary.Failed},
		{"Min %", summary.MinPercentage},
		{"Avg %", summary.AvgPercentage},
		{"Max %", summary.MaxPercentage},
	}); err != nil {
		return err
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("new style: %w", err)
	}
	end, _ := excelize.CoordinatesToCellName(len(header), 1)
	_ = f.SetCellStyle(attemptsSheet, "A1", end, bold)
	_ = f.AutoFilter(attemptsSheet, "A1:"+end, nil)
	_ = f.SetColWidth(attemptsSheet, "A", "D", 22)
	_ = f.SetCellStyle(summarySheet, "A1", "A11", bold)
	_ = f.SetColWidth(summarySheet, "A", "A", 20)

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func writeRows(f *excelize.File, sheet string, rows [][]any) error {
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("set row %s!%s: %w", sheet, cell, err)
		}
	}
	return nil
}

func submittedCell(a Attempt) string {
	if a.SubmittedAt == nil {
		return "in progress"
	}
	return a.SubmittedAt.Format(time.RFC3339)
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}
