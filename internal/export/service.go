// Package export produces XLSX workbooks from stored results.
package export

import (
	"context"
	"log/slog"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/carnetocr/carnetocr/internal/common"
	"github.com/carnetocr/carnetocr/internal/results"
)

// Service is a tiny façade over the result store that renders exports.
type Service struct {
	store  results.Store
	logger *slog.Logger
}

func NewService(store results.Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, logger: logger}
}

// ResultsXLSX returns a workbook (as bytes) with one row per stored result.
func (s *Service) ResultsXLSX(ctx context.Context) ([]byte, error) {
	start := time.Now()

	recs, err := s.store.List(ctx)
	if err != nil {
		return nil, common.WrapError(err, "query results")
	}

	f := excelize.NewFile()
	const sheet = "Results"
	if index, _ := f.GetSheetIndex(sheet); index == -1 {
		if _, err := f.NewSheet(sheet); err != nil {
			return nil, err
		}
	}
	activeIndex, _ := f.GetSheetIndex(sheet)
	f.SetActiveSheet(activeIndex)

	headers := []string{
		"Job ID",
		"Status",
		"Nombre",
		"Código Estudiante",
		"Carrera",
		"Institución",
		"Processed At",
		"Error",
	}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}

	row := 2
	for _, r := range recs {
		processedAt := ""
		if r.ProcessedAt != nil {
			processedAt = r.ProcessedAt.UTC().Format(time.RFC3339)
		}

		write := func(col int, v any) {
			cell, _ := excelize.CoordinatesToCellName(col, row)
			_ = f.SetCellValue(sheet, cell, v)
		}
		write(1, r.JobID)
		write(2, string(r.Status))
		write(3, r.Name)
		write(4, r.StudentCode)
		write(5, r.Program)
		write(6, r.Institution)
		write(7, processedAt)
		write(8, r.Error)
		row++
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, common.WrapError(err, "render workbook")
	}

	s.logger.Info("export.results_xlsx",
		"rows", len(recs),
		"bytes", buf.Len(),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}
