package exporter

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"sfcli/internal/reconcile"
)

// CSVWriter provides CSV export functionality
type CSVWriter struct{}

// NewCSVWriter creates a new CSV writer instance
func NewCSVWriter() *CSVWriter {
	return &CSVWriter{}
}

// WriteOptions configures CSV writing behavior
type WriteOptions struct {
	Headers   []string
	Records   [][]string
	Append    bool
	BOMPrefix bool // Add UTF-8 BOM for Excel compatibility
}

// WriteCSV writes data to a CSV file with the given options
func (w *CSVWriter) WriteCSV(filePath string, options WriteOptions) error {
	slog.Info("Writing CSV file",
		slog.String("file_path", filePath),
		slog.Int("record_count", len(options.Records)))

	if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	flags := os.O_CREATE | os.O_WRONLY
	if options.Append {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}

	file, err := os.OpenFile(filePath, flags, 0644)
	if err != nil {
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	// BOM helps Excel recognize UTF-8
	if options.BOMPrefix && !options.Append {
		if _, err := file.Write([]byte{0xEF, 0xBB, 0xBF}); err != nil {
			return fmt.Errorf("failed to write BOM: %w", err)
		}
	}

	writer := csv.NewWriter(file)
	defer writer.Flush()

	if !options.Append && len(options.Headers) > 0 {
		if err := writer.Write(options.Headers); err != nil {
			return fmt.Errorf("failed to write headers: %w", err)
		}
	}

	for i, record := range options.Records {
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("failed to write record %d: %w", i, err)
		}
	}

	return writer.Error()
}

// WriteForecastCSV exports a reconciled forecast frame as long-format CSV
// with one column per reconciliation method, rows ordered as the frame is
func (w *CSVWriter) WriteForecastCSV(filePath string, frame *reconcile.Frame) error {
	if frame == nil || len(frame.Rows) == 0 {
		return fmt.Errorf("cannot export an empty forecast frame")
	}

	headers := append([]string{"unique_id", "date"}, frame.Columns...)
	records := make([][]string, 0, len(frame.Rows))
	for _, row := range frame.Rows {
		record := make([]string, 0, len(headers))
		record = append(record, row.SeriesID, row.Date.Format("2006-01-02"))
		for _, col := range frame.Columns {
			record = append(record, strconv.FormatFloat(row.Values[col], 'f', 6, 64))
		}
		records = append(records, record)
	}

	return w.WriteCSV(filePath, WriteOptions{
		Headers:   headers,
		Records:   records,
		BOMPrefix: true,
	})
}

// LoadForecastCSV reads a forecast frame previously written by
// WriteForecastCSV. Rows that fail to parse are skipped with a warning.
func LoadForecastCSV(filePath string) (*reconcile.Frame, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open forecast file: %w", err)
	}
	defer file.Close()

	reader := bufio.NewReader(file)
	// Skip the BOM if present
	if bom, err := reader.Peek(3); err == nil && bytes.Equal(bom, []byte{0xEF, 0xBB, 0xBF}) {
		reader.Discard(3)
	}

	records, err := csv.NewReader(reader).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse forecast file: %w", err)
	}
	if len(records) < 2 {
		return nil, fmt.Errorf("forecast file %s has no data rows", filePath)
	}

	header := records[0]
	if len(header) < 3 || header[0] != "unique_id" || header[1] != "date" {
		return nil, fmt.Errorf("forecast file %s has unexpected header %v", filePath, header)
	}

	frame := reconcile.NewFrame(header[2:]...)
	skipped := 0
	for _, record := range records[1:] {
		if len(record) != len(header) {
			skipped++
			continue
		}
		date, err := time.Parse("2006-01-02", record[1])
		if err != nil {
			skipped++
			continue
		}
		values := make(map[string]float64, len(frame.Columns))
		ok := true
		for i, col := range frame.Columns {
			v, err := strconv.ParseFloat(record[i+2], 64)
			if err != nil {
				ok = false
				break
			}
			values[col] = v
		}
		if !ok {
			skipped++
			continue
		}
		frame.Append(record[0], date.UTC(), values)
	}

	if skipped > 0 {
		slog.Warn("Skipped malformed forecast rows",
			slog.String("file_path", filePath),
			slog.Int("skipped", skipped))
	}
	if len(frame.Rows) == 0 {
		return nil, fmt.Errorf("forecast file %s contained no usable rows", filePath)
	}
	return frame, nil
}

// WriteEvaluationCSV exports per-method, per-level evaluation metrics
func (w *CSVWriter) WriteEvaluationCSV(filePath string, results []reconcile.LevelMetrics) error {
	if len(results) == 0 {
		return fmt.Errorf("cannot export empty evaluation results")
	}

	records := make([][]string, 0, len(results))
	for _, r := range results {
		records = append(records, []string{
			r.Method,
			string(r.Level),
			strconv.FormatFloat(r.RMSE, 'f', 6, 64),
			strconv.FormatFloat(r.MAE, 'f', 6, 64),
			strconv.FormatFloat(r.MAPE, 'f', 6, 64),
			strconv.Itoa(r.N),
		})
	}

	return w.WriteCSV(filePath, WriteOptions{
		Headers:   []string{"method", "level", "rmse", "mae", "mape", "n_samples"},
		Records:   records,
		BOMPrefix: true,
	})
}
