package jobs

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/bayneri/slareport/internal/analyze"
	"github.com/bayneri/slareport/internal/spec"
)

const finalizeTimeout = 10 * time.Second

// defaultFinalizeBackoff is the pause before each retry of a failed
// Finalize. Its length bounds the number of attempts.
var defaultFinalizeBackoff = []time.Duration{200 * time.Millisecond, time.Second, 3 * time.Second}

type Orchestrator interface {
	Run(ctx context.Context, req spec.Spec, window analyze.Window) ([]analyze.ProjectResult, error)
}

type Recorder interface {
	RecordJobSubmitted()
	RecordJobFinished(status string, duration time.Duration)
}

type nopRecorder struct{}

func (nopRecorder) RecordJobSubmitted()                      {}
func (nopRecorder) RecordJobFinished(string, time.Duration) {}

// Task is the handle of one background job. Done closes once the job has
// been finalized in the store.
type Task struct {
	ID     string
	done   chan struct{}
	status Status
	err    error
}

func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Status is the status recorded in the store, valid after Done has closed.
// It stays processing when the terminal state could not be stored.
func (t *Task) Status() Status {
	return t.status
}

// Err is the error that kept the terminal state out of the store, if any.
func (t *Task) Err() error {
	return t.err
}

// Runner drives jobs from submission to their terminal state. Jobs run
// detached from the submitting request and cannot be cancelled.
type Runner struct {
	store        Store
	orchestrator Orchestrator
	logger       *zap.Logger
	recorder     Recorder
	now          func() time.Time
	backoff      []time.Duration
	wg           sync.WaitGroup
}

func NewRunner(store Store, orchestrator Orchestrator, recorder Recorder, logger *zap.Logger) *Runner {
	if recorder == nil {
		recorder = nopRecorder{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		store:        store,
		orchestrator: orchestrator,
		logger:       logger,
		recorder:     recorder,
		now:          time.Now,
		backoff:      defaultFinalizeBackoff,
	}
}

// Submit records a processing job and starts it in the background. The
// request must already be normalized and validated.
func (r *Runner) Submit(ctx context.Context, req spec.Spec) (*Task, error) {
	started := r.now().UTC()
	job := Job{
		ID:         uuid.NewString(),
		Status:     StatusProcessing,
		StartedAt:  started,
		WindowDays: req.WindowDays,
		Window:     analyze.WindowFor(req.WindowDays, started),
	}
	if err := r.store.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}
	r.recorder.RecordJobSubmitted()
	r.logger.Info("job accepted",
		zap.String("job_id", job.ID),
		zap.Int("projects", len(req.Projects)),
		zap.Int("services", req.ServiceCount()),
		zap.Int("window_days", req.WindowDays),
	)

	task := &Task{ID: job.ID, done: make(chan struct{})}
	r.wg.Add(1)
	go r.run(task, job, req)
	return task, nil
}

// Wait blocks until every submitted job has been finalized or ctx ends.
func (r *Runner) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Runner) run(task *Task, job Job, req spec.Spec) {
	defer r.wg.Done()
	defer close(task.done)

	data, err := r.execute(req, job.Window)
	outcome := Completed(data, r.now())
	if err != nil {
		outcome = Failed(err.Error(), r.now())
		r.logger.Error("job failed", zap.String("job_id", job.ID), zap.Error(err))
	}

	task.status = StatusProcessing
	if err := r.finalize(job.ID, outcome); err != nil {
		task.err = err
		r.logger.Error("job finalize failed, record left processing",
			zap.String("job_id", job.ID), zap.Error(err))
		return
	}
	task.status = outcome.Status

	duration := outcome.FinishedAt.Sub(job.StartedAt)
	r.recorder.RecordJobFinished(string(outcome.Status), duration)
	r.logger.Info("job finalized",
		zap.String("job_id", job.ID),
		zap.String("status", string(outcome.Status)),
		zap.Duration("duration", duration),
	)
}

// finalize stores the outcome, retrying transient store failures with
// backoff. ErrNotFound and ErrAlreadyFinalized are final.
func (r *Runner) finalize(id string, outcome Outcome) error {
	attempt := 0
	for {
		attempt++
		ctx, cancel := context.WithTimeout(context.Background(), finalizeTimeout)
		err := r.store.Finalize(ctx, id, outcome)
		cancel()
		if err == nil {
			return nil
		}
		if errors.Is(err, ErrNotFound) || errors.Is(err, ErrAlreadyFinalized) {
			return err
		}
		if attempt > len(r.backoff) {
			return fmt.Errorf("finalize after %d attempts: %w", attempt, err)
		}
		wait := r.backoff[attempt-1]
		r.logger.Warn("job finalize failed, retrying",
			zap.String("job_id", id),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", wait),
			zap.Error(err))
		time.Sleep(wait)
	}
}

func (r *Runner) execute(req spec.Spec, window analyze.Window) (data []analyze.ProjectResult, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("job panicked", zap.Any("panic", rec), zap.ByteString("stack", debug.Stack()))
			data = nil
			err = fmt.Errorf("%w: %v", analyze.ErrOrchestratorFault, rec)
		}
	}()
	return r.orchestrator.Run(context.Background(), req, window)
}
