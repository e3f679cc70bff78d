package monitoring

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// WithRateLimit throttles queries to stay under the provider's read quota.
// The wait honours the caller's deadline.
func WithRateLimit(p Provider, qps float64, burst int) Provider {
	if qps <= 0 {
		return p
	}
	if burst <= 0 {
		burst = 1
	}
	return &limitedProvider{next: p, limiter: rate.NewLimiter(rate.Limit(qps), burst)}
}

type limitedProvider struct {
	next    Provider
	limiter *rate.Limiter
}

func (p *limitedProvider) Query(ctx context.Context, q Query) (TimeSeries, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, &ProviderError{Filter: q.Filter, Err: fmt.Errorf("rate limit: %w", err)}
	}
	return p.next.Query(ctx, q)
}

type BreakerSettings struct {
	Name string
	// ConsecutiveFailures trips the breaker; zero disables it.
	ConsecutiveFailures uint32
	OpenTimeout         time.Duration
}

// WithBreaker stops hammering a failing provider. ErrNotFound counts as a
// successful call and never trips the breaker.
func WithBreaker(p Provider, settings BreakerSettings, logger *zap.Logger) Provider {
	if settings.ConsecutiveFailures == 0 {
		return p
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	name := settings.Name
	if name == "" {
		name = "metrics-provider"
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    name,
		Timeout: settings.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= settings.ConsecutiveFailures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || IsNotFound(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("provider circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})
	return &breakerProvider{next: p, cb: cb}
}

type breakerProvider struct {
	next Provider
	cb   *gobreaker.CircuitBreaker
}

func (p *breakerProvider) Query(ctx context.Context, q Query) (TimeSeries, error) {
	out, err := p.cb.Execute(func() (interface{}, error) {
		return p.next.Query(ctx, q)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, &ProviderError{Filter: q.Filter, Err: err}
		}
		return nil, err
	}
	series, _ := out.(TimeSeries)
	return series, nil
}
