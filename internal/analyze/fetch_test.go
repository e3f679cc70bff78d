package analyze

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/bayneri/slareport/internal/monitoring"
	"github.com/bayneri/slareport/internal/spec"
)

type providerFunc func(ctx context.Context, q monitoring.Query) (monitoring.TimeSeries, error)

func (f providerFunc) Query(ctx context.Context, q monitoring.Query) (monitoring.TimeSeries, error) {
	return f(ctx, q)
}

func isOutcome(q monitoring.Query) bool {
	return strings.Contains(q.Filter, "metric.labels.")
}

func tenMinutes() Window {
	start := time.Unix(base, 0).UTC()
	return Window{Start: start, End: start.Add(10 * time.Minute)}
}

func runService(threshold float64) spec.Service {
	return spec.Service{Name: "api", Type: "cloud_run_revision", Threshold: threshold}
}

type fetchRecorder struct {
	statuses []string
}

func (r *fetchRecorder) ObserveFetch(_ string, status string, _ time.Duration) {
	r.statuses = append(r.statuses, status)
}

func TestFetchComputesCompliance(t *testing.T) {
	provider := providerFunc(func(_ context.Context, q monitoring.Query) (monitoring.TimeSeries, error) {
		if q.Project != "proj" {
			t.Fatalf("unexpected project %q", q.Project)
		}
		if isOutcome(q) {
			return monitoring.TimeSeries{base + 3*60: 200}, nil
		}
		return minutes(10, 200), nil
	})

	cases := []struct {
		threshold float64
		compliant bool
	}{
		{threshold: 99.9, compliant: false},
		{threshold: 90, compliant: true},
	}
	for _, tc := range cases {
		result := NewFetcher(provider, spec.DefaultTypes(), FetcherConfig{}).Fetch(context.Background(), "proj", runService(tc.threshold), tenMinutes())
		if result.Status != StatusOK {
			t.Fatalf("expected ok, got %+v", result)
		}
		if result.UptimePct == nil || *result.UptimePct != 90 {
			t.Fatalf("expected 90%% uptime, got %+v", result.UptimePct)
		}
		if result.DowntimeMinutes == nil || *result.DowntimeMinutes != 1 {
			t.Fatalf("expected 1 downtime minute, got %+v", result.DowntimeMinutes)
		}
		if result.Compliant != tc.compliant {
			t.Fatalf("threshold %v: expected compliant=%v", tc.threshold, tc.compliant)
		}
	}
}

func TestFetchNotFoundIsNoData(t *testing.T) {
	provider := providerFunc(func(context.Context, monitoring.Query) (monitoring.TimeSeries, error) {
		return nil, monitoring.ErrNotFound
	})
	recorder := &fetchRecorder{}
	fetcher := NewFetcher(provider, spec.DefaultTypes(), FetcherConfig{Recorder: recorder})

	result := fetcher.Fetch(context.Background(), "proj", runService(99), tenMinutes())
	if result.Status != StatusNoData {
		t.Fatalf("expected no_data, got %q", result.Status)
	}
	if result.UptimePct != nil {
		t.Fatalf("expected no uptime, got %v", *result.UptimePct)
	}
	if result.DowntimeMinutes == nil || *result.DowntimeMinutes != 0 {
		t.Fatalf("expected zero downtime minutes")
	}
	if result.Compliant {
		t.Fatalf("no data must not be compliant")
	}
	if result.Note != NoDataNote || result.Error != "" {
		t.Fatalf("unexpected note/error: %q %q", result.Note, result.Error)
	}
	if len(recorder.statuses) != 1 || recorder.statuses[0] != StatusNoData {
		t.Fatalf("unexpected recorded statuses %v", recorder.statuses)
	}
}

func TestFetchOutcomeNotFoundIsEmptySeries(t *testing.T) {
	provider := providerFunc(func(_ context.Context, q monitoring.Query) (monitoring.TimeSeries, error) {
		if isOutcome(q) {
			return nil, monitoring.ErrNotFound
		}
		return minutes(10, 5), nil
	})
	result := NewFetcher(provider, spec.DefaultTypes(), FetcherConfig{}).Fetch(context.Background(), "proj", runService(99.9), tenMinutes())
	if result.Status != StatusOK || result.UptimePct == nil || *result.UptimePct != 100 {
		t.Fatalf("expected 100%% uptime, got %+v", result)
	}
}

func TestFetchProviderErrorIsContained(t *testing.T) {
	provider := providerFunc(func(_ context.Context, q monitoring.Query) (monitoring.TimeSeries, error) {
		return nil, &monitoring.ProviderError{Filter: q.Filter, Err: errors.New("permission denied")}
	})
	result := NewFetcher(provider, spec.DefaultTypes(), FetcherConfig{}).Fetch(context.Background(), "proj", runService(99), tenMinutes())
	if result.Status != StatusError {
		t.Fatalf("expected error status, got %q", result.Status)
	}
	if !strings.Contains(result.Error, "permission denied") {
		t.Fatalf("unexpected error %q", result.Error)
	}
	if result.Compliant || result.UptimePct != nil {
		t.Fatalf("failed service must not report uptime: %+v", result)
	}
}

func TestFetchOutcomeErrorIsContained(t *testing.T) {
	provider := providerFunc(func(_ context.Context, q monitoring.Query) (monitoring.TimeSeries, error) {
		if isOutcome(q) {
			return nil, errors.New("quota exceeded")
		}
		return minutes(10, 5), nil
	})
	result := NewFetcher(provider, spec.DefaultTypes(), FetcherConfig{}).Fetch(context.Background(), "proj", runService(99), tenMinutes())
	if result.Status != StatusError || !strings.Contains(result.Error, "quota exceeded") {
		t.Fatalf("unexpected result %+v", result)
	}
}

func TestFetchUnknownType(t *testing.T) {
	provider := providerFunc(func(context.Context, monitoring.Query) (monitoring.TimeSeries, error) {
		t.Fatalf("provider must not be called")
		return nil, nil
	})
	svc := spec.Service{Name: "db", Type: "cloud_sql", Threshold: 99}
	result := NewFetcher(provider, spec.DefaultTypes(), FetcherConfig{}).Fetch(context.Background(), "proj", svc, tenMinutes())
	if result.Status != StatusError || !strings.Contains(result.Error, "type must be one of") {
		t.Fatalf("unexpected result %+v", result)
	}
}

func TestFetchInvalidWindow(t *testing.T) {
	provider := providerFunc(func(context.Context, monitoring.Query) (monitoring.TimeSeries, error) {
		return monitoring.TimeSeries{}, nil
	})
	start := time.Unix(base, 0).UTC()
	result := NewFetcher(provider, spec.DefaultTypes(), FetcherConfig{}).Fetch(context.Background(), "proj", runService(99), Window{Start: start, End: start})
	if result.Status != StatusError || !strings.Contains(result.Error, ErrInvalidWindow.Error()) {
		t.Fatalf("unexpected result %+v", result)
	}
}

func TestFetchTimeout(t *testing.T) {
	provider := providerFunc(func(ctx context.Context, _ monitoring.Query) (monitoring.TimeSeries, error) {
		<-ctx.Done()
		return nil, &monitoring.ProviderError{Err: ctx.Err()}
	})
	fetcher := NewFetcher(provider, spec.DefaultTypes(), FetcherConfig{Timeout: 20 * time.Millisecond})

	began := time.Now()
	result := fetcher.Fetch(context.Background(), "proj", runService(99), tenMinutes())
	if time.Since(began) > 5*time.Second {
		t.Fatalf("fetch did not honour its timeout")
	}
	if result.Status != StatusError || !strings.Contains(result.Error, "deadline exceeded") {
		t.Fatalf("unexpected result %+v", result)
	}
}

func TestFetchUsesMetricPathOverride(t *testing.T) {
	var filters []string
	provider := providerFunc(func(_ context.Context, q monitoring.Query) (monitoring.TimeSeries, error) {
		filters = append(filters, q.Filter)
		return monitoring.TimeSeries{}, nil
	})
	svc := runService(99)
	svc.MetricPath = "custom.googleapis.com/requests"
	NewFetcher(provider, spec.DefaultTypes(), FetcherConfig{}).Fetch(context.Background(), "proj", svc, tenMinutes())
	if len(filters) != 2 {
		t.Fatalf("expected 2 queries, got %d", len(filters))
	}
	for _, f := range filters {
		if !strings.Contains(f, `metric.type="custom.googleapis.com/requests"`) {
			t.Fatalf("override not applied: %s", f)
		}
	}
}
