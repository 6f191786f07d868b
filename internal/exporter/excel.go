package exporter

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/xuri/excelize/v2"

	"sfcli/internal/reconcile"
	"sfcli/internal/validation"
)

// ExcelReport builds the human-facing evaluation workbook: one sheet with
// per-method, per-level reconciliation metrics and one with the
// cross-validation fold breakdown.
type ExcelReport struct {
	Evaluation []reconcile.LevelMetrics
	CV         *validation.CVResult
	BestMethod string
}

const (
	evaluationSheet = "Reconciliation"
	cvSheet         = "CrossValidation"
)

// Write renders the workbook to disk
func (r *ExcelReport) Write(filePath string) error {
	if len(r.Evaluation) == 0 {
		return fmt.Errorf("cannot write a report without evaluation results")
	}
	if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := r.writeEvaluationSheet(f); err != nil {
		return err
	}
	if r.CV != nil {
		if err := r.writeCVSheet(f); err != nil {
			return err
		}
	}

	// Drop the default sheet excelize creates
	f.DeleteSheet("Sheet1")

	if err := f.SaveAs(filePath); err != nil {
		return fmt.Errorf("failed to save report: %w", err)
	}

	slog.Info("Wrote evaluation report",
		slog.String("file_path", filePath),
		slog.Int("methods_evaluated", len(r.Evaluation)),
		slog.String("best_method", r.BestMethod))
	return nil
}

func (r *ExcelReport) writeEvaluationSheet(f *excelize.File) error {
	if _, err := f.NewSheet(evaluationSheet); err != nil {
		return fmt.Errorf("failed to create sheet: %w", err)
	}

	headers := []string{"Method", "Level", "RMSE", "MAE", "MAPE", "Samples"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(evaluationSheet, cell, h); err != nil {
			return fmt.Errorf("failed to write header: %w", err)
		}
	}

	for row, m := range r.Evaluation {
		values := []interface{}{m.Method, string(m.Level), m.RMSE, m.MAE, m.MAPE, m.N}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row+2)
			if err := f.SetCellValue(evaluationSheet, cell, v); err != nil {
				return fmt.Errorf("failed to write evaluation row %d: %w", row, err)
			}
		}
	}

	if r.BestMethod != "" {
		cell, _ := excelize.CoordinatesToCellName(1, len(r.Evaluation)+3)
		if err := f.SetCellValue(evaluationSheet, cell, fmt.Sprintf("Best method: %s", r.BestMethod)); err != nil {
			return fmt.Errorf("failed to write best method: %w", err)
		}
	}
	return nil
}

func (r *ExcelReport) writeCVSheet(f *excelize.File) error {
	if _, err := f.NewSheet(cvSheet); err != nil {
		return fmt.Errorf("failed to create sheet: %w", err)
	}

	headers := []string{"Fold", "RMSLE", "RMSE", "MAE", "MAPE", "Samples"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(cvSheet, cell, h); err != nil {
			return fmt.Errorf("failed to write header: %w", err)
		}
	}

	for row, fm := range r.CV.FoldMetrics {
		values := []interface{}{fm.Fold, fm.RMSLE, fm.RMSE, fm.MAE, fm.MAPE, fm.N}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row+2)
			if err := f.SetCellValue(cvSheet, cell, v); err != nil {
				return fmt.Errorf("failed to write fold row %d: %w", row, err)
			}
		}
	}

	summaryRow := len(r.CV.FoldMetrics) + 3
	summary := [][]interface{}{
		{"Mean RMSLE", r.CV.MeanRMSLE},
		{"Std RMSLE", r.CV.StdRMSLE},
		{"Pooled RMSLE", r.CV.Aggregate.RMSLE},
		{"Skipped folds", r.CV.SkippedFolds},
	}
	for i, pair := range summary {
		for col, v := range pair {
			cell, _ := excelize.CoordinatesToCellName(col+1, summaryRow+i)
			if err := f.SetCellValue(cvSheet, cell, v); err != nil {
				return fmt.Errorf("failed to write summary: %w", err)
			}
		}
	}
	return nil
}
