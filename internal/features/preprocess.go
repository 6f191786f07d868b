package features

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"
)

// Preprocess loads the raw CSV bundle and produces a cleaned panel with
// external features merged: negative sales clipped to zero (required for
// RMSLE), oil prices forward-filled with a median fallback, a national
// holiday flag, and store cluster metadata. Missing external files degrade
// to warnings; the training file itself is required.
func Preprocess(ctx context.Context, rawDir string) (*Panel, error) {
	logger := slog.Default()

	panel, err := LoadTrainPanel(ctx, rawDir)
	if err != nil {
		return nil, fmt.Errorf("load training data: %w", err)
	}

	clipped := clipNegativeSales(panel)
	if clipped > 0 {
		logger.WarnContext(ctx, "clipped negative sales values", "count", clipped)
	}

	// External files are independent; load them concurrently
	var (
		oil          []oilRecord
		holidaySet   map[time.Time]bool
		storeRecords map[int]storeRecord
	)

	g, _ := errgroup.WithContext(ctx)

	g.Go(func() error {
		if !fileExists(filepath.Join(rawDir, OilFile)) {
			logger.WarnContext(ctx, "oil prices unavailable, skipping oil feature", "file", OilFile)
			return nil
		}
		records, err := loadOilPrices(rawDir)
		if err != nil {
			return fmt.Errorf("load oil prices: %w", err)
		}
		oil = records
		return nil
	})

	g.Go(func() error {
		if !fileExists(filepath.Join(rawDir, HolidaysFile)) {
			logger.WarnContext(ctx, "holidays unavailable, skipping holiday feature", "file", HolidaysFile)
			return nil
		}
		set, err := loadNationalHolidays(rawDir)
		if err != nil {
			return fmt.Errorf("load holidays: %w", err)
		}
		holidaySet = set
		return nil
	})

	g.Go(func() error {
		if !fileExists(filepath.Join(rawDir, StoresFile)) {
			logger.WarnContext(ctx, "store metadata unavailable, skipping cluster feature", "file", StoresFile)
			return nil
		}
		records, err := loadStoreMetadata(rawDir)
		if err != nil {
			return fmt.Errorf("load store metadata: %w", err)
		}
		storeRecords = records
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}

	if len(oil) > 0 {
		mergeOilPrices(panel, oil)
		panel.AuxColumns = append(panel.AuxColumns, "oil_price")
		logger.InfoContext(ctx, "merged oil prices", "observations", len(oil))
	}
	if holidaySet != nil {
		mergeHolidays(panel, holidaySet)
		panel.AuxColumns = append(panel.AuxColumns, "is_holiday")
		logger.InfoContext(ctx, "merged national holidays", "count", len(holidaySet))
	}
	if storeRecords != nil {
		mergeStoreMetadata(panel, storeRecords)
		panel.AuxColumns = append(panel.AuxColumns, "cluster")
		logger.InfoContext(ctx, "merged store metadata", "stores", len(storeRecords))
	}

	return panel, nil
}

// clipNegativeSales clamps negative target values to zero and returns the
// number of rows affected
func clipNegativeSales(panel *Panel) int {
	clipped := 0
	for i := range panel.Rows {
		if panel.Rows[i].Target < 0 {
			panel.Rows[i].Target = 0
			clipped++
		}
	}
	return clipped
}

// mergeOilPrices joins daily oil prices onto the panel, forward-filling
// gaps and filling leading nulls with the series median
func mergeOilPrices(panel *Panel, oil []oilRecord) {
	sort.Slice(oil, func(i, j int) bool { return oil[i].Date.Before(oil[j].Date) })

	prices := make([]float64, len(oil))
	byDate := make(map[time.Time]float64, len(oil))
	for i, rec := range oil {
		prices[i] = rec.Price
		byDate[dayKey(rec.Date)] = rec.Price
	}
	median := medianOf(prices)

	// Forward fill over the panel's own date axis so panel dates missing
	// from the oil series inherit the last observed price
	dates := distinctDates(panel)
	filled := make(map[time.Time]float64, len(dates))
	last := median
	for _, d := range dates {
		if price, ok := byDate[d]; ok {
			last = price
		}
		filled[d] = last
	}

	for i := range panel.Rows {
		panel.Rows[i].Aux["oil_price"] = filled[dayKey(panel.Rows[i].Date)]
	}
}

func mergeHolidays(panel *Panel, holidays map[time.Time]bool) {
	for i := range panel.Rows {
		if holidays[dayKey(panel.Rows[i].Date)] {
			panel.Rows[i].Aux["is_holiday"] = 1
		} else {
			panel.Rows[i].Aux["is_holiday"] = 0
		}
	}
}

func mergeStoreMetadata(panel *Panel, stores map[int]storeRecord) {
	for i := range panel.Rows {
		if rec, ok := stores[panel.Rows[i].StoreNbr]; ok {
			panel.Rows[i].Aux["cluster"] = float64(rec.Cluster)
		}
	}
}

// dayKey normalizes a timestamp to midnight UTC so dates parsed from
// different sources compare equal as map keys
func dayKey(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// distinctDates returns the panel's distinct observation dates ascending
func distinctDates(panel *Panel) []time.Time {
	seen := make(map[time.Time]struct{})
	var dates []time.Time
	for _, row := range panel.Rows {
		key := dayKey(row.Date)
		if _, ok := seen[key]; !ok {
			seen[key] = struct{}{}
			dates = append(dates, key)
		}
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	return dates
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func medianOf(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}
