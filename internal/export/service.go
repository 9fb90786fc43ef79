package export

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/resume-ingest/constants"
	"github.com/joseph-ayodele/resume-ingest/internal/entity"
)

// FailureLister is the read side of the failure registry.
type FailureLister interface {
	List() []entity.FailureRecord
	ErrorKinds() map[constants.ErrorKind]int
}

// Service produces XLSX bytes for failure reports.
type Service struct {
	failures FailureLister
	logger   *slog.Logger
}

func NewService(failures FailureLister, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{failures: failures, logger: logger}
}

const (
	failuresSheet = "Failures"
	summarySheet  = "Summary"
)

// ExportFailuresXLSX returns a workbook with one row per open failure and a
// summary sheet. totals may be nil.
func (s *Service) ExportFailuresXLSX(ctx context.Context, totals *entity.SessionTotals) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	start := time.Now()
	recs := s.failures.List()

	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	// the default sheet becomes the failures sheet
	if err := f.SetSheetName(f.GetSheetName(0), failuresSheet); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}
	if _, err := f.NewSheet(summarySheet); err != nil {
		return nil, fmt.Errorf("add summary sheet: %w", err)
	}
	f.SetActiveSheet(0)

	headers := []string{
		"File",
		"Error Kind",
		"Error Message",
		"Retries",
		"First Failed (UTC)",
		"Last Failed (UTC)",
		"Source",
	}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(failuresSheet, cell, h)
	}

	for i, r := range recs {
		row := i + 2
		write := func(col int, v any) {
			cell, _ := excelize.CoordinatesToCellName(col, row)
			_ = f.SetCellValue(failuresSheet, cell, v)
		}
		write(1, r.DisplayName)
		write(2, string(r.ErrorKind))
		write(3, truncate(r.ErrorMessage, 200))
		write(4, r.RetryCount)
		write(5, r.CreatedAt.Format(time.DateTime))
		write(6, r.UpdatedAt.Format(time.DateTime))
		write(7, r.SourceURI())
	}

	_ = f.SetColWidth(failuresSheet, "A", "A", 32) // file
	_ = f.SetColWidth(failuresSheet, "B", "B", 12) // kind
	_ = f.SetColWidth(failuresSheet, "C", "C", 60) // message
	_ = f.SetColWidth(failuresSheet, "D", "D", 8)
	_ = f.SetColWidth(failuresSheet, "E", "F", 20) // timestamps
	_ = f.SetColWidth(failuresSheet, "G", "G", 60) // source

	writeSummary(f, len(recs), s.failures.ErrorKinds(), totals)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}

	s.logger.Info("export.xlsx.ok",
		"rows", len(recs),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}

func writeSummary(f *excelize.File, open int, byKind map[constants.ErrorKind]int, totals *entity.SessionTotals) {
	kinds := make([]string, 0, len(byKind))
	for k := range byKind {
		kinds = append(kinds, string(k))
	}
	sort.Strings(kinds)

	rows := [][]any{{"Metric", "Value"}, {"Open failures", open}}
	for _, k := range kinds {
		rows = append(rows, []any{"Failures: " + k, byKind[constants.ErrorKind(k)]})
	}
	if totals != nil {
		rows = append(rows,
			[]any{"Batches", totals.Batches},
			[]any{"New uploads", totals.Successful},
			[]any{"Updated", totals.Updated},
			[]any{"Failed attempts", totals.Failed},
			[]any{"Retries", totals.Retried},
			[]any{"Recovered by retry", totals.Recovered},
		)
	}
	for i, row := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		_ = f.SetSheetRow(summarySheet, cell, &row)
	}
	_ = f.SetColWidth(summarySheet, "A", "A", 28)
}

func truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	if n <= 1 {
		return s[:n]
	}
	return s[:n-1] + "…"
}
