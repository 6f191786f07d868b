package validation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sfcli/internal/features"
)

// dailyPanel builds a single-series panel with one row per day
func dailyPanel(t *testing.T, days int) *features.Panel {
	t.Helper()
	start := time.Date(2016, 1, 1, 0, 0, 0, 0, time.UTC)
	panel := &features.Panel{}
	for i := 0; i < days; i++ {
		panel.Rows = append(panel.Rows, features.Row{
			StoreNbr: 1,
			Family:   "GROCERY I",
			Date:     start.AddDate(0, 0, i),
			Target:   float64(i),
		})
	}
	return panel
}

func TestSplitterGeneratesOrderedFolds(t *testing.T) {
	panel := dailyPanel(t, 600)
	s := Splitter{TrainDays: 365, ValidDays: 90, GapDays: 0, NSplits: 3, StepDays: 30}

	result, err := s.Split(context.Background(), panel)
	require.NoError(t, err)
	require.Len(t, result.Folds, 3)
	assert.Zero(t, result.Skipped)

	_, maxDate, err := panel.DateRange()
	require.NoError(t, err)

	for i, fold := range result.Folds {
		assert.Equal(t, i, fold.Index)
		// Walking backward in step increments from the latest date
		assert.Equal(t, maxDate.AddDate(0, 0, -i*30), fold.ValidEnd)
		assert.Equal(t, fold.ValidEnd.AddDate(0, 0, -90), fold.ValidStart)
		assert.Equal(t, fold.TrainEnd.AddDate(0, 0, -365), fold.TrainStart)

		// Train strictly precedes validation
		assert.False(t, fold.TrainEnd.After(fold.ValidStart))
		for _, row := range fold.Train.Rows {
			assert.True(t, row.Date.Before(fold.ValidStart))
		}
	}

	// Most recent fold first
	assert.True(t, result.Folds[0].ValidEnd.After(result.Folds[1].ValidEnd))
	assert.True(t, result.Folds[1].ValidEnd.After(result.Folds[2].ValidEnd))
}

func TestSplitterRespectsGap(t *testing.T) {
	panel := dailyPanel(t, 700)
	gap := 14
	s := Splitter{TrainDays: 365, ValidDays: 90, GapDays: gap, NSplits: 2, StepDays: 30}

	result, err := s.Split(context.Background(), panel)
	require.NoError(t, err)
	require.NotEmpty(t, result.Folds)

	for _, fold := range result.Folds {
		actualGap := int(fold.ValidStart.Sub(fold.TrainEnd).Hours() / 24)
		assert.GreaterOrEqual(t, actualGap, gap)

		// Half-open training window: no training row on or past train_end
		for _, row := range fold.Train.Rows {
			assert.True(t, row.Date.Before(fold.TrainEnd))
		}
		// Inclusive validation window
		last := fold.Valid.Rows[len(fold.Valid.Rows)-1]
		assert.True(t, last.Date.Equal(fold.ValidEnd))
	}
}

func TestSplitterSkipsInsufficientHistory(t *testing.T) {
	// 500 days: fold 0 needs 455 days back, fold 1 needs 485, fold 2 needs
	// 515 and is skipped
	panel := dailyPanel(t, 500)
	s := Splitter{TrainDays: 365, ValidDays: 90, GapDays: 0, NSplits: 3, StepDays: 30}

	result, err := s.Split(context.Background(), panel)
	require.NoError(t, err)
	assert.Len(t, result.Folds, 2)
	assert.Equal(t, 1, result.Skipped)
}

func TestSplitterParameterValidation(t *testing.T) {
	tests := []struct {
		name string
		s    Splitter
	}{
		{"zero train days", Splitter{TrainDays: 0, ValidDays: 90, NSplits: 1, StepDays: 30}},
		{"negative gap", Splitter{TrainDays: 365, ValidDays: 90, GapDays: -1, NSplits: 1, StepDays: 30}},
		{"zero splits", Splitter{TrainDays: 365, ValidDays: 90, NSplits: 0, StepDays: 30}},
		{"zero step", Splitter{TrainDays: 365, ValidDays: 90, NSplits: 1, StepDays: 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.s.Split(context.Background(), dailyPanel(t, 600))
			require.Error(t, err)
		})
	}
}

func TestSplitterEmptyPanel(t *testing.T) {
	s := Splitter{TrainDays: 365, ValidDays: 90, NSplits: 1, StepDays: 30}
	_, err := s.Split(context.Background(), &features.Panel{})
	require.Error(t, err)
}
