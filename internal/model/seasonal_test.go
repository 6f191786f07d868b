package model

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sfcli/internal/features"
)

func testPanel(rows []features.Row) *features.Panel {
	return &features.Panel{Rows: rows}
}

func row(store int, family string, day int, target float64) features.Row {
	return features.Row{
		StoreNbr: store,
		Family:   family,
		Date:     time.Date(2017, 1, day, 0, 0, 0, 0, time.UTC),
		Target:   target,
	}
}

func TestSeasonalNaiveUsesLagFeature(t *testing.T) {
	m := NewSeasonalNaive("sales")
	assert.Equal(t, "seasonal_naive_7", m.Name())

	train := testPanel([]features.Row{
		row(1, "DAIRY", 1, 10),
		row(1, "DAIRY", 2, 20),
	})
	pred, err := m.Train(context.Background(), train, nil)
	require.NoError(t, err)

	valid := testPanel([]features.Row{row(1, "DAIRY", 10, 99)})
	valid.Rows[0].SetFeature("sales_lag_7", 42)

	got, err := pred.Predict(context.Background(), valid)
	require.NoError(t, err)
	assert.Equal(t, []float64{42}, got)
}

func TestSeasonalNaiveFallbacks(t *testing.T) {
	m := NewSeasonalNaive("sales")
	train := testPanel([]features.Row{
		row(1, "DAIRY", 1, 10),
		row(1, "DAIRY", 2, 20),
		row(2, "DAIRY", 1, 100),
		row(2, "DAIRY", 2, 200),
	})
	pred, err := m.Train(context.Background(), train, nil)
	require.NoError(t, err)

	// No lag feature set: series mean, then the global mean for an
	// unseen series
	valid := testPanel([]features.Row{
		row(1, "DAIRY", 10, 0),
		row(9, "BREAD", 10, 0),
	})
	got, err := pred.Predict(context.Background(), valid)
	require.NoError(t, err)
	assert.Equal(t, 15.0, got[0])
	assert.Equal(t, 82.5, got[1])
}

func TestSeasonalNaiveEmptyTrain(t *testing.T) {
	m := NewSeasonalNaive("sales")
	_, err := m.Train(context.Background(), testPanel(nil), nil)
	require.Error(t, err)
}
