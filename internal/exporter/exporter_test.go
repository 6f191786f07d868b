package exporter

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"sfcli/internal/hierarchy"
	"sfcli/internal/reconcile"
	"sfcli/internal/validation"
)

func testFrame() *reconcile.Frame {
	f := reconcile.NewFrame("bottom_up", "min_trace_ols")
	date := time.Date(2017, 8, 1, 0, 0, 0, 0, time.UTC)
	f.Append("Total", date, map[string]float64{"bottom_up": 100, "min_trace_ols": 99.5})
	f.Append("1_DAIRY", date, map[string]float64{"bottom_up": 40, "min_trace_ols": 39.75})
	f.Append("1_GROCERY I", date, map[string]float64{"bottom_up": 60, "min_trace_ols": 59.75})
	return f
}

func readCSVFile(t *testing.T, path string) [][]string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)

	// Strip the BOM before parsing
	content := strings.TrimPrefix(string(data), "\xEF\xBB\xBF")
	records, err := csv.NewReader(strings.NewReader(content)).ReadAll()
	require.NoError(t, err)
	return records
}

func TestWriteForecastCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reports", "forecast.csv")
	w := NewCSVWriter()

	require.NoError(t, w.WriteForecastCSV(path, testFrame()))

	records := readCSVFile(t, path)
	require.Len(t, records, 4)
	assert.Equal(t, []string{"unique_id", "date", "bottom_up", "min_trace_ols"}, records[0])
	assert.Equal(t, "Total", records[1][0])
	assert.Equal(t, "2017-08-01", records[1][1])
	assert.Equal(t, "100.000000", records[1][2])
	assert.Equal(t, "39.750000", records[2][3])
}

func TestWriteForecastCSVEmptyFrame(t *testing.T) {
	w := NewCSVWriter()
	err := w.WriteForecastCSV(filepath.Join(t.TempDir(), "f.csv"), reconcile.NewFrame("m"))
	require.Error(t, err)
}

func TestLoadForecastCSVRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "forecast.csv")
	w := NewCSVWriter()
	require.NoError(t, w.WriteForecastCSV(path, testFrame()))

	frame, err := LoadForecastCSV(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"bottom_up", "min_trace_ols"}, frame.Columns)
	require.Len(t, frame.Rows, 3)
	assert.Equal(t, "Total", frame.Rows[0].SeriesID)
	assert.Equal(t, 100.0, frame.Rows[0].Values["bottom_up"])
	assert.Equal(t, 39.75, frame.Rows[1].Values["min_trace_ols"])
}

func TestLoadForecastCSVMissingFile(t *testing.T) {
	_, err := LoadForecastCSV(filepath.Join(t.TempDir(), "absent.csv"))
	require.Error(t, err)
}

func TestWriteEvaluationCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "evaluation.csv")
	w := NewCSVWriter()

	results := []reconcile.LevelMetrics{
		{Method: "bottom_up", Level: hierarchy.LevelTotal, RMSE: 12.5, MAE: 10, MAPE: 0.08, N: 90},
		{Method: "bottom_up", Level: hierarchy.LevelBottom, RMSE: 3.2, MAE: 2.1, MAPE: 0.15, N: 900},
	}
	require.NoError(t, w.WriteEvaluationCSV(path, results))

	records := readCSVFile(t, path)
	require.Len(t, records, 3)
	assert.Equal(t, []string{"method", "level", "rmse", "mae", "mape", "n_samples"}, records[0])
	assert.Equal(t, "Total", records[1][1])
	assert.Equal(t, "900", records[2][5])
}

func TestSaveAndLoadCVResult(t *testing.T) {
	path := filepath.Join(t.TempDir(), "metrics", "cv.json")

	result := &validation.CVResult{
		RunID:     "run-1",
		Model:     "seasonal_naive_7",
		MeanRMSLE: 0.42,
		StdRMSLE:  0.03,
		NSplits:   3,
		FoldMetrics: []validation.FoldMetrics{
			{Fold: 0, Summary: validation.Summary{RMSLE: 0.4, N: 91}},
		},
		Aggregate: validation.Summary{RMSLE: 0.41, N: 273},
	}
	require.NoError(t, SaveMetrics(path, result))

	loaded, err := LoadCVResult(path)
	require.NoError(t, err)
	assert.Equal(t, result.RunID, loaded.RunID)
	assert.Equal(t, result.MeanRMSLE, loaded.MeanRMSLE)
	require.Len(t, loaded.FoldMetrics, 1)
	assert.Equal(t, 91, loaded.FoldMetrics[0].N)
}

func TestLoadCVResultMissingFile(t *testing.T) {
	_, err := LoadCVResult(filepath.Join(t.TempDir(), "absent.json"))
	require.Error(t, err)
}

func TestExcelReport(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reports", "evaluation.xlsx")

	report := &ExcelReport{
		Evaluation: []reconcile.LevelMetrics{
			{Method: "bottom_up", Level: hierarchy.LevelTotal, RMSE: 12.5, MAE: 10, MAPE: 0.08, N: 90},
			{Method: "min_trace_shrink", Level: hierarchy.LevelTotal, RMSE: 9.1, MAE: 7.4, MAPE: 0.06, N: 90},
		},
		CV: &validation.CVResult{
			FoldMetrics: []validation.FoldMetrics{
				{Fold: 0, Summary: validation.Summary{RMSLE: 0.4, RMSE: 11, N: 91}},
				{Fold: 1, Summary: validation.Summary{RMSLE: 0.44, RMSE: 12, N: 91}},
			},
			MeanRMSLE: 0.42,
			StdRMSLE:  0.02,
			Aggregate: validation.Summary{RMSLE: 0.41, N: 182},
		},
		BestMethod: "min_trace_shrink",
	}
	require.NoError(t, report.Write(path))

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	got, err := f.GetCellValue("Reconciliation", "A2")
	require.NoError(t, err)
	assert.Equal(t, "bottom_up", got)

	got, err = f.GetCellValue("Reconciliation", "A5")
	require.NoError(t, err)
	assert.Equal(t, "Best method: min_trace_shrink", got)

	got, err = f.GetCellValue("CrossValidation", "B2")
	require.NoError(t, err)
	assert.Equal(t, "0.4", got)
}

func TestExcelReportRequiresEvaluation(t *testing.T) {
	report := &ExcelReport{}
	require.Error(t, report.Write(filepath.Join(t.TempDir(), "r.xlsx")))
}
