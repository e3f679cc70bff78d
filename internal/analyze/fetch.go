package analyze

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/bayneri/slareport/internal/monitoring"
	"github.com/bayneri/slareport/internal/spec"
)

const DefaultFetchTimeout = 60 * time.Second

// Recorder observes per-service outcomes. The metrics package implements it.
type Recorder interface {
	ObserveFetch(serviceType, status string, elapsed time.Duration)
}

type nopRecorder struct{}

func (nopRecorder) ObserveFetch(string, string, time.Duration) {}

type FetcherConfig struct {
	// Timeout bounds each provider call. Zero means DefaultFetchTimeout.
	Timeout  time.Duration
	Logger   *zap.Logger
	Recorder Recorder
}

// Fetcher turns one service into one ServiceResult. It never returns an
// error: every failure is folded into the result.
type Fetcher struct {
	provider monitoring.Provider
	types    spec.TypeLookup
	timeout  time.Duration
	logger   *zap.Logger
	recorder Recorder
}

func NewFetcher(provider monitoring.Provider, types spec.TypeLookup, cfg FetcherConfig) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultFetchTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Recorder == nil {
		cfg.Recorder = nopRecorder{}
	}
	return &Fetcher{
		provider: provider,
		types:    types,
		timeout:  cfg.Timeout,
		logger:   cfg.Logger,
		recorder: cfg.Recorder,
	}
}

func (f *Fetcher) Fetch(ctx context.Context, projectID string, svc spec.Service, window Window) ServiceResult {
	began := time.Now()
	result := f.fetch(ctx, projectID, svc, window)
	f.recorder.ObserveFetch(svc.Type, result.Status, time.Since(began))
	f.logger.Debug("service fetched",
		zap.String("project", projectID),
		zap.String("service", svc.Name),
		zap.String("status", result.Status),
	)
	return result
}

func (f *Fetcher) fetch(ctx context.Context, projectID string, svc spec.Service, window Window) ServiceResult {
	result := ServiceResult{
		Service:   svc.Name,
		Type:      svc.Type,
		Threshold: svc.Threshold,
	}

	st, err := f.types.Lookup(svc.Type)
	if err != nil {
		return failed(result, err)
	}
	totalFilter, outcomeFilter := st.Filters(svc)

	total, err := f.query(ctx, projectID, totalFilter, window)
	if monitoring.IsNotFound(err) {
		var zero int64
		result.Status = StatusNoData
		result.DowntimeMinutes = &zero
		result.Note = NoDataNote
		return result
	}
	if err != nil {
		f.logger.Warn("total series query failed",
			zap.String("project", projectID), zap.String("service", svc.Name), zap.Error(err))
		return failed(result, err)
	}

	// A missing outcome series means no errors (or no successes) were ever
	// recorded, so it reads as an empty series.
	outcome, err := f.query(ctx, projectID, outcomeFilter, window)
	if err != nil && !monitoring.IsNotFound(err) {
		f.logger.Warn("outcome series query failed",
			zap.String("project", projectID), zap.String("service", svc.Name), zap.Error(err))
		return failed(result, err)
	}

	uptime, err := ComputeUptime(total, outcome, window.Start.Unix(), window.End.Unix(), st.Mode)
	if err != nil {
		return failed(result, err)
	}
	result.Status = StatusOK
	result.UptimePct = &uptime.Percent
	result.DowntimeMinutes = &uptime.DowntimeMinutes
	result.Compliant = uptime.Percent >= svc.Threshold
	return result
}

func (f *Fetcher) query(ctx context.Context, projectID, filter string, window Window) (monitoring.TimeSeries, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()
	return f.provider.Query(ctx, monitoring.Query{
		Project: projectID,
		Filter:  filter,
		Start:   window.Start,
		End:     window.End,
	})
}

func failed(result ServiceResult, err error) ServiceResult {
	result.Status = StatusError
	result.Compliant = false
	result.Error = err.Error()
	return result
}
