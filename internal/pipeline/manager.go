package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// DefaultStepTimeout bounds a single step's execution
const DefaultStepTimeout = 30 * time.Minute

// Manager executes registered steps sequentially, failing the run on the
// first step error
type Manager struct {
	registry    *Registry
	logger      *slog.Logger
	stepTimeout time.Duration
}

// NewManager creates a pipeline manager
func NewManager(registry *Registry, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		registry:    registry,
		logger:      logger.With(slog.String("component", "pipeline")),
		stepTimeout: DefaultStepTimeout,
	}
}

// SetStepTimeout overrides the per-step timeout
func (m *Manager) SetStepTimeout(d time.Duration) {
	if d > 0 {
		m.stepTimeout = d
	}
}

// Run executes all registered steps in order against a fresh run state
func (m *Manager) Run(ctx context.Context) (*RunState, error) {
	state := NewRunState()
	logger := m.logger.With(slog.String("run_id", state.RunID))

	ids := m.registry.IDs()
	if len(ids) == 0 {
		return nil, fmt.Errorf("no steps registered")
	}

	logger.InfoContext(ctx, "pipeline run started", slog.Int("steps", len(ids)))

	for i, id := range ids {
		step, err := m.registry.Get(id)
		if err != nil {
			return state, err
		}

		stepState := state.StepState(step.ID(), step.Name())

		if err := step.Validate(state); err != nil {
			stepState.Fail(err)
			logger.ErrorContext(ctx, "step validation failed",
				slog.String("step", step.ID()),
				slog.String("error", err.Error()))
			return state, fmt.Errorf("step %s validation: %w", step.ID(), err)
		}

		stepState.Start()
		logger.InfoContext(ctx, "step started",
			slog.String("step", step.ID()),
			slog.Int("position", i+1),
			slog.Int("total", len(ids)))

		stepCtx, cancel := context.WithTimeout(ctx, m.stepTimeout)
		err = step.Execute(stepCtx, state)
		cancel()

		if err != nil {
			stepState.Fail(err)
			logger.ErrorContext(ctx, "step failed",
				slog.String("step", step.ID()),
				slog.Duration("duration", stepState.Duration()),
				slog.String("error", err.Error()))
			return state, fmt.Errorf("step %s: %w", step.ID(), err)
		}

		stepState.Complete("")
		logger.InfoContext(ctx, "step completed",
			slog.String("step", step.ID()),
			slog.Duration("duration", stepState.Duration()))
	}

	logger.InfoContext(ctx, "pipeline run completed",
		slog.Duration("duration", time.Since(state.StartTime)),
		slog.String("best_method", state.BestMethod))
	return state, nil
}
