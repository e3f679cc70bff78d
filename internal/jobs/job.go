package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bayneri/slareport/internal/analyze"
)

type Status string

const (
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

var (
	ErrNotFound         = errors.New("job not found")
	ErrAlreadyFinalized = errors.New("job already finalized")
	ErrDuplicateID      = errors.New("job id already exists")
)

// Job is one asynchronous report run. It is created processing and
// finalized exactly once.
type Job struct {
	ID         string                  `json:"id"`
	Status     Status                  `json:"status"`
	StartedAt  time.Time               `json:"startedAt"`
	FinishedAt *time.Time              `json:"finishedAt,omitempty"`
	WindowDays int                     `json:"windowDays"`
	Window     analyze.Window          `json:"window"`
	Data       []analyze.ProjectResult `json:"data,omitempty"`
	Error      string                  `json:"error,omitempty"`
}

// Outcome is the terminal state written by Finalize.
type Outcome struct {
	Status     Status
	FinishedAt time.Time
	Data       []analyze.ProjectResult
	Error      string
}

func Completed(data []analyze.ProjectResult, at time.Time) Outcome {
	return Outcome{Status: StatusCompleted, FinishedAt: at, Data: data}
}

func Failed(message string, at time.Time) Outcome {
	return Outcome{Status: StatusFailed, FinishedAt: at, Error: message}
}

func (o Outcome) validate() error {
	if !o.Status.Terminal() {
		return fmt.Errorf("finalize with non-terminal status %q", o.Status)
	}
	return nil
}

// apply moves a processing job to its terminal state.
func (j *Job) apply(o Outcome) error {
	if j.Status != StatusProcessing {
		return fmt.Errorf("%w: %s is %s", ErrAlreadyFinalized, j.ID, j.Status)
	}
	finished := o.FinishedAt.UTC()
	j.Status = o.Status
	j.FinishedAt = &finished
	j.Data = o.Data
	j.Error = o.Error
	return nil
}

// Store persists job records. Implementations must be safe for concurrent
// use by many running jobs.
type Store interface {
	Create(ctx context.Context, job Job) error
	Finalize(ctx context.Context, id string, outcome Outcome) error
	Get(ctx context.Context, id string) (Job, error)
	// List returns up to limit jobs, most recently started first.
	List(ctx context.Context, limit int) ([]Job, error)
}
