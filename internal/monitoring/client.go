package monitoring

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// AlignmentPeriod is the bucket width every provider query is aligned to.
const AlignmentPeriod = 60 * time.Second

// ErrNotFound reports that the queried metric has never been emitted for the
// filter. It is an expected outcome, not a failure.
var ErrNotFound = errors.New("metric not found")

// TimeSeries maps a minute-aligned unix timestamp to the summed counter value
// for that minute. Missing minutes mean no data.
type TimeSeries map[int64]float64

// Query selects one counter series over a half-open time range.
type Query struct {
	Project string
	Filter  string
	Start   time.Time
	End     time.Time
}

type Provider interface {
	Query(ctx context.Context, q Query) (TimeSeries, error)
}

// ProviderError wraps any provider failure other than ErrNotFound.
type ProviderError struct {
	Filter string
	Err    error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("query %s: %v", e.Filter, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// IsNotFound reports whether err means the metric has no data.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// AlignMinute floors a unix timestamp to its minute boundary.
func AlignMinute(ts int64) int64 {
	return ts - ts%60
}

func (s TimeSeries) add(ts int64, value float64) {
	s[AlignMinute(ts)] += value
}
