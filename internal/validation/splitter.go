package validation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"sfcli/internal/features"
)

// Splitter generates walk-forward cross-validation folds, walking backward
// from the latest observation date in step_days increments.
type Splitter struct {
	TrainDays int
	ValidDays int
	GapDays   int
	NSplits   int
	StepDays  int
}

// Fold is one train/validation pair. The training window is half-open,
// [TrainStart, TrainEnd); the validation window includes both endpoints.
type Fold struct {
	Index int

	TrainStart time.Time
	TrainEnd   time.Time
	ValidStart time.Time
	ValidEnd   time.Time

	Train *features.Panel
	Valid *features.Panel
}

// SplitResult carries the generated folds plus the count of candidate
// folds skipped for insufficient history
type SplitResult struct {
	Folds   []Fold
	Skipped int
}

func (s Splitter) validate() error {
	if s.TrainDays < 1 || s.ValidDays < 1 {
		return fmt.Errorf("train and validation windows must be positive, got train=%d valid=%d", s.TrainDays, s.ValidDays)
	}
	if s.GapDays < 0 {
		return fmt.Errorf("gap days cannot be negative, got %d", s.GapDays)
	}
	if s.NSplits < 1 {
		return fmt.Errorf("at least one split is required, got %d", s.NSplits)
	}
	if s.StepDays < 1 {
		return fmt.Errorf("step days must be positive, got %d", s.StepDays)
	}
	return nil
}

// Split slices the panel into folds, most recent fold first. Candidate
// folds whose training window would precede the panel's earliest date are
// skipped with a warning and counted, never fatal.
func (s Splitter) Split(ctx context.Context, panel *features.Panel) (SplitResult, error) {
	if err := s.validate(); err != nil {
		return SplitResult{}, err
	}

	minDate, maxDate, err := panel.DateRange()
	if err != nil {
		return SplitResult{}, fmt.Errorf("split panel: %w", err)
	}

	logger := slog.Default()
	var result SplitResult

	for i := 0; i < s.NSplits; i++ {
		validEnd := maxDate.AddDate(0, 0, -i*s.StepDays)
		validStart := validEnd.AddDate(0, 0, -s.ValidDays)
		trainEnd := validStart.AddDate(0, 0, -s.GapDays)
		trainStart := trainEnd.AddDate(0, 0, -s.TrainDays)

		if trainStart.Before(minDate) {
			result.Skipped++
			logger.WarnContext(ctx, "skipping fold with insufficient history",
				"fold", i,
				"train_start", trainStart.Format("2006-01-02"),
				"min_date", minDate.Format("2006-01-02"),
			)
			continue
		}

		train := panel.FilterDateRange(trainStart, trainEnd, false)
		valid := panel.FilterDateRange(validStart, validEnd, true)
		if len(train.Rows) == 0 || len(valid.Rows) == 0 {
			result.Skipped++
			logger.WarnContext(ctx, "skipping fold with an empty window",
				"fold", i,
				"train_rows", len(train.Rows),
				"valid_rows", len(valid.Rows),
			)
			continue
		}

		result.Folds = append(result.Folds, Fold{
			Index:      i,
			TrainStart: trainStart,
			TrainEnd:   trainEnd,
			ValidStart: validStart,
			ValidEnd:   validEnd,
			Train:      train,
			Valid:      valid,
		})

		logger.InfoContext(ctx, "generated fold",
			"fold", i,
			"train", fmt.Sprintf("%s to %s", trainStart.Format("2006-01-02"), trainEnd.Format("2006-01-02")),
			"valid", fmt.Sprintf("%s to %s", validStart.Format("2006-01-02"), validEnd.Format("2006-01-02")),
			"train_rows", len(train.Rows),
			"valid_rows", len(valid.Rows),
		)
	}

	return result, nil
}
