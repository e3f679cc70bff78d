package analyze

import (
	"errors"
	"fmt"
	"math"

	"github.com/bayneri/slareport/internal/monitoring"
	"github.com/bayneri/slareport/internal/spec"
)

var ErrInvalidWindow = errors.New("invalid window")

type Uptime struct {
	Percent         float64
	DowntimeMinutes int64
	TotalMinutes    int64
}

// ComputeUptime scans every minute in [start, end) and counts a minute as
// down only when all of its requests failed. Minutes without traffic are
// skipped, but the percentage is taken over the full wall-clock window.
func ComputeUptime(total, outcome monitoring.TimeSeries, start, end int64, mode spec.Mode) (Uptime, error) {
	start = monitoring.AlignMinute(start)
	end = monitoring.AlignMinute(end)
	totalMinutes := (end - start) / 60
	if totalMinutes <= 0 {
		return Uptime{}, fmt.Errorf("%w: %d minutes between %d and %d", ErrInvalidWindow, totalMinutes, start, end)
	}
	if mode != spec.ModeErrorBased && mode != spec.ModeSuccessBased {
		return Uptime{}, fmt.Errorf("unknown mode %q", mode)
	}

	var down int64
	for m := start; m < end; m += 60 {
		requests := total[m]
		if requests <= 0 {
			continue
		}
		failures := outcome[m]
		if mode == spec.ModeSuccessBased {
			failures = requests - outcome[m]
		}
		if failures/requests >= 1.0 {
			down++
		}
	}

	pct := float64(totalMinutes-down) / float64(totalMinutes) * 100
	return Uptime{
		Percent:         round4(pct),
		DowntimeMinutes: down,
		TotalMinutes:    totalMinutes,
	}, nil
}

func round4(value float64) float64 {
	return math.Round(value*10000) / 10000
}
