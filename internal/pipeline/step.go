package pipeline

import (
	"context"
	"sync"
	"time"
)

// Step is a single unit of pipeline work
type Step interface {
	// ID returns the unique identifier for this step
	ID() string

	// Name returns the human-readable name for this step
	Name() string

	// Validate checks whether the step can run against the current state
	Validate(state *RunState) error

	// Execute runs the step, reading and writing shared state
	Execute(ctx context.Context, state *RunState) error
}

// StepStatus represents the current status of a step
type StepStatus string

const (
	StepStatusPending   StepStatus = "pending"
	StepStatusActive    StepStatus = "active"
	StepStatusCompleted StepStatus = "completed"
	StepStatusFailed    StepStatus = "failed"
)

// StepState is the runtime record of one step in a run
type StepState struct {
	mu        sync.RWMutex
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Status    StepStatus `json:"status"`
	StartTime *time.Time `json:"start_time,omitempty"`
	EndTime   *time.Time `json:"end_time,omitempty"`
	Message   string     `json:"message,omitempty"`
	Err       error      `json:"-"`
}

// NewStepState creates a pending step state
func NewStepState(id, name string) *StepState {
	return &StepState{ID: id, Name: name, Status: StepStatusPending}
}

// Start marks the step active
func (s *StepState) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	s.StartTime = &now
	s.Status = StepStatusActive
}

// Complete marks the step completed
func (s *StepState) Complete(message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	s.EndTime = &now
	s.Status = StepStatusCompleted
	s.Message = message
}

// Fail marks the step failed
func (s *StepState) Fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	s.EndTime = &now
	s.Status = StepStatusFailed
	s.Err = err
	if err != nil {
		s.Message = err.Error()
	}
}

// Duration returns the elapsed step time, zero until started
func (s *StepState) Duration() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.StartTime == nil {
		return 0
	}
	if s.EndTime == nil {
		return time.Since(*s.StartTime)
	}
	return s.EndTime.Sub(*s.StartTime)
}

// CurrentStatus returns the step status under the lock
func (s *StepState) CurrentStatus() StepStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Status
}
