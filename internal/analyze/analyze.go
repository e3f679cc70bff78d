package analyze

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/bayneri/slareport/internal/planner"
	"github.com/bayneri/slareport/internal/spec"
)

// ErrOrchestratorFault marks a failure that escaped per-service isolation.
// It is the only error that fails a whole report.
var ErrOrchestratorFault = errors.New("orchestrator fault")

type ServiceFetcher interface {
	Fetch(ctx context.Context, projectID string, svc spec.Service, window Window) ServiceResult
}

type Orchestrator struct {
	fetcher       ServiceFetcher
	maxWorkersCap int
	logger        *zap.Logger
}

func NewOrchestrator(fetcher ServiceFetcher, maxWorkersCap int, logger *zap.Logger) *Orchestrator {
	if maxWorkersCap <= 0 {
		maxWorkersCap = spec.MaxWorkersCap
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{fetcher: fetcher, maxWorkersCap: maxWorkersCap, logger: logger}
}

// Run evaluates every service of the request over window and returns the
// results grouped by project in request order. Workers write into slots
// reserved up front, so completion order never leaks into the output.
func (o *Orchestrator) Run(ctx context.Context, req spec.Spec, window Window) ([]ProjectResult, error) {
	plan := planner.Build(req.Projects)
	results := make([]ProjectResult, len(plan.Projects))
	for i, p := range plan.Projects {
		results[i] = ProjectResult{ProjectID: p.ID, Services: make([]ServiceResult, p.Services)}
	}
	if len(plan.Items) == 0 {
		return results, nil
	}

	workers := planner.PoolSize(req.MaxWorkers, o.maxWorkersCap, len(plan.Items))
	o.logger.Debug("report started",
		zap.Int("projects", len(plan.Projects)),
		zap.Int("services", len(plan.Items)),
		zap.Int("workers", workers),
		zap.Time("start", window.Start),
		zap.Time("end", window.End),
	)
	began := time.Now()

	var g errgroup.Group
	g.SetLimit(workers)
	for _, item := range plan.Items {
		item := item
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					o.logger.Error("service evaluation panicked",
						zap.String("project", item.ProjectID),
						zap.String("service", item.Service.Name),
						zap.Any("panic", r),
						zap.ByteString("stack", debug.Stack()),
					)
					err = fmt.Errorf("%w: %s/%s: %v", ErrOrchestratorFault, item.ProjectID, item.Service.Name, r)
				}
			}()
			results[item.ProjectIndex].Services[item.ServiceIndex] = o.fetcher.Fetch(ctx, item.ProjectID, item.Service, window)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	o.logger.Debug("report finished", zap.Duration("elapsed", time.Since(began)))
	return results, nil
}
