package pipeline

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"sfcli/internal/features"
	"sfcli/internal/hierarchy"
	"sfcli/internal/reconcile"
	"sfcli/internal/validation"
)

// RunState carries the artifacts produced and consumed by pipeline steps
// during one run
type RunState struct {
	RunID     string
	StartTime time.Time

	mu    sync.RWMutex
	steps map[string]*StepState
	order []string

	// Artifacts, populated in step order
	Panel        *features.Panel
	FeaturePanel *features.Panel
	Spec         *hierarchy.Spec
	Matrix       *hierarchy.SummingMatrix
	CVResult     *validation.CVResult
	Reconciled   *reconcile.Frame
	Actuals      *reconcile.Frame
	Evaluation   []reconcile.LevelMetrics
	BestMethod   string
}

// NewRunState creates run state with a fresh run id
func NewRunState() *RunState {
	return &RunState{
		RunID:     uuid.New().String(),
		StartTime: time.Now(),
		steps:     make(map[string]*StepState),
	}
}

// StepState returns the state record for a step, creating it on first use
func (r *RunState) StepState(id, name string) *StepState {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.steps[id]; ok {
		return s
	}
	s := NewStepState(id, name)
	r.steps[id] = s
	r.order = append(r.order, id)
	return s
}

// Steps returns the step states in execution order
func (r *RunState) Steps() []*StepState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*StepState, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.steps[id])
	}
	return out
}
