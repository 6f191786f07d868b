package features

import (
	"context"
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// RequiredColumnError reports a column whose absence makes the input
// unusable. Optional columns degrade to skipped features instead.
type RequiredColumnError struct {
	Column string
	File   string
}

// Error implements the error interface
func (e *RequiredColumnError) Error() string {
	return fmt.Sprintf("required column %q missing from %s", e.Column, e.File)
}

// Raw dataset filenames expected under the raw data directory
const (
	TrainFile        = "train.csv"
	OilFile          = "oil.csv"
	HolidaysFile     = "holidays_events.csv"
	StoresFile       = "stores.csv"
	TransactionsFile = "transactions.csv"
)

const dateLayout = "2006-01-02"

// oilRecord is one daily oil price observation
type oilRecord struct {
	Date  time.Time
	Price float64
}

// storeRecord is the store metadata row merged onto the panel
type storeRecord struct {
	StoreNbr int
	Cluster  int
}

// LoadTrainPanel reads train.csv into a panel. Malformed records are
// logged and skipped rather than failing the whole load; missing key
// columns are fatal.
func LoadTrainPanel(ctx context.Context, rawDir string) (*Panel, error) {
	path := filepath.Join(rawDir, TrainFile)
	records, header, err := readCSV(path)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", TrainFile, err)
	}

	cols, err := columnIndex(header, path, "date", "store_nbr", "family", "sales")
	if err != nil {
		return nil, err
	}
	promoCol, hasPromo := findColumn(header, "onpromotion")

	panel := &Panel{}
	skipped := 0

	for i, record := range records {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("context cancelled during data loading: %w", ctx.Err())
		default:
		}

		row, err := parseTrainRecord(record, cols, promoCol, hasPromo)
		if err != nil {
			skipped++
			slog.Warn("failed to parse train record",
				"file", TrainFile,
				"line", i+2,
				"error", err,
			)
			continue
		}
		panel.Rows = append(panel.Rows, row)
	}

	if len(panel.Rows) == 0 {
		return nil, fmt.Errorf("no valid rows loaded from %s", path)
	}
	if hasPromo {
		panel.AuxColumns = append(panel.AuxColumns, "onpromotion")
	}

	slog.InfoContext(ctx, "loaded training panel",
		"file", path,
		"rows", len(panel.Rows),
		"skipped", skipped,
	)

	return panel, nil
}

func parseTrainRecord(record []string, cols map[string]int, promoCol int, hasPromo bool) (Row, error) {
	need := []int{cols["date"], cols["store_nbr"], cols["family"], cols["sales"]}
	if hasPromo {
		need = append(need, promoCol)
	}
	if shortRecord(record, need...) {
		return Row{}, fmt.Errorf("truncated record: %d fields", len(record))
	}

	date, err := time.Parse(dateLayout, strings.TrimSpace(record[cols["date"]]))
	if err != nil {
		return Row{}, fmt.Errorf("parse date: %w", err)
	}

	storeNbr, err := strconv.Atoi(strings.TrimSpace(record[cols["store_nbr"]]))
	if err != nil {
		return Row{}, fmt.Errorf("parse store_nbr: %w", err)
	}

	family := strings.TrimSpace(record[cols["family"]])
	if family == "" {
		return Row{}, fmt.Errorf("empty family")
	}

	sales, err := strconv.ParseFloat(strings.TrimSpace(record[cols["sales"]]), 64)
	if err != nil {
		return Row{}, fmt.Errorf("parse sales: %w", err)
	}

	row := Row{
		StoreNbr: storeNbr,
		Family:   family,
		Date:     date,
		Target:   sales,
		Aux:      make(map[string]float64),
	}

	if hasPromo {
		promoStr := strings.TrimSpace(record[promoCol])
		if promoStr != "" {
			promo, err := strconv.ParseFloat(promoStr, 64)
			if err != nil {
				return Row{}, fmt.Errorf("parse onpromotion: %w", err)
			}
			row.Aux["onpromotion"] = promo
		} else {
			// Promotion absence is a valid default
			row.Aux["onpromotion"] = 0
		}
	}

	return row, nil
}

// loadOilPrices reads oil.csv, skipping dates with a missing price so the
// merge step can forward fill them
func loadOilPrices(rawDir string) ([]oilRecord, error) {
	path := filepath.Join(rawDir, OilFile)
	records, header, err := readCSV(path)
	if err != nil {
		return nil, err
	}

	cols, err := columnIndex(header, path, "date", "dcoilwtico")
	if err != nil {
		return nil, err
	}

	var out []oilRecord
	for i, record := range records {
		if shortRecord(record, cols["date"], cols["dcoilwtico"]) {
			slog.Warn("skipping truncated oil record", "line", i+2, "fields", len(record))
			continue
		}
		date, err := time.Parse(dateLayout, strings.TrimSpace(record[cols["date"]]))
		if err != nil {
			slog.Warn("failed to parse oil record", "line", i+2, "error", err)
			continue
		}
		priceStr := strings.TrimSpace(record[cols["dcoilwtico"]])
		if priceStr == "" {
			continue
		}
		price, err := strconv.ParseFloat(priceStr, 64)
		if err != nil {
			slog.Warn("failed to parse oil price", "line", i+2, "error", err)
			continue
		}
		out = append(out, oilRecord{Date: date, Price: price})
	}

	return out, nil
}

// loadNationalHolidays reads holidays_events.csv and returns the set of
// national holiday dates
func loadNationalHolidays(rawDir string) (map[time.Time]bool, error) {
	path := filepath.Join(rawDir, HolidaysFile)
	records, header, err := readCSV(path)
	if err != nil {
		return nil, err
	}

	cols, err := columnIndex(header, path, "date", "locale")
	if err != nil {
		return nil, err
	}

	holidays := make(map[time.Time]bool)
	for i, record := range records {
		if shortRecord(record, cols["date"], cols["locale"]) {
			slog.Warn("skipping truncated holiday record", "line", i+2, "fields", len(record))
			continue
		}
		if !strings.EqualFold(strings.TrimSpace(record[cols["locale"]]), "National") {
			continue
		}
		date, err := time.Parse(dateLayout, strings.TrimSpace(record[cols["date"]]))
		if err != nil {
			slog.Warn("failed to parse holiday record", "line", i+2, "error", err)
			continue
		}
		holidays[date] = true
	}

	return holidays, nil
}

// loadStoreMetadata reads stores.csv and returns the per-store cluster
func loadStoreMetadata(rawDir string) (map[int]storeRecord, error) {
	path := filepath.Join(rawDir, StoresFile)
	records, header, err := readCSV(path)
	if err != nil {
		return nil, err
	}

	cols, err := columnIndex(header, path, "store_nbr", "cluster")
	if err != nil {
		return nil, err
	}

	stores := make(map[int]storeRecord)
	for i, record := range records {
		if shortRecord(record, cols["store_nbr"], cols["cluster"]) {
			slog.Warn("skipping truncated store record", "line", i+2, "fields", len(record))
			continue
		}
		storeNbr, err := strconv.Atoi(strings.TrimSpace(record[cols["store_nbr"]]))
		if err != nil {
			slog.Warn("failed to parse store record", "line", i+2, "error", err)
			continue
		}
		cluster, err := strconv.Atoi(strings.TrimSpace(record[cols["cluster"]]))
		if err != nil {
			slog.Warn("failed to parse store cluster", "line", i+2, "error", err)
			continue
		}
		stores[storeNbr] = storeRecord{StoreNbr: storeNbr, Cluster: cluster}
	}

	return stores, nil
}

// readCSV reads a whole CSV file, returning the data records and header row
func readCSV(path string) ([][]string, []string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open CSV file: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1

	all, err := reader.ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("read CSV records: %w", err)
	}
	if len(all) == 0 {
		return nil, nil, fmt.Errorf("empty CSV file: %s", path)
	}

	return all[1:], all[0], nil
}

// columnIndex resolves required header columns, returning a
// RequiredColumnError naming the first missing one
func columnIndex(header []string, path string, required ...string) (map[string]int, error) {
	idx := make(map[string]int, len(required))
	for _, name := range required {
		col, ok := findColumn(header, name)
		if !ok {
			return nil, &RequiredColumnError{Column: name, File: filepath.Base(path)}
		}
		idx[name] = col
	}
	return idx, nil
}

// shortRecord reports whether the record lacks any of the given column
// positions. The reader does not enforce a fixed field count, so truncated
// lines surface here instead of as index panics.
func shortRecord(record []string, cols ...int) bool {
	for _, c := range cols {
		if c >= len(record) {
			return true
		}
	}
	return false
}

func findColumn(header []string, name string) (int, bool) {
	for i, h := range header {
		if strings.EqualFold(strings.TrimSpace(h), name) {
			return i, true
		}
	}
	return 0, false
}
