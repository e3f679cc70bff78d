package analyze

import (
	"fmt"
	"time"
)

// ResolveWindow picks the report window from explicit RFC3339 bounds or,
// when both are empty, the last days ending at now. Both ends are floored
// to the minute.
func ResolveWindow(start, end string, days int, now time.Time) (Window, error) {
	if start == "" && end == "" {
		if days <= 0 {
			return Window{}, fmt.Errorf("--days must be positive")
		}
		return WindowFor(days, now), nil
	}
	if start == "" || end == "" {
		return Window{}, fmt.Errorf("--start and --end must be set together")
	}
	parsedStart, err := time.Parse(time.RFC3339, start)
	if err != nil {
		return Window{}, fmt.Errorf("invalid --start: %w", err)
	}
	parsedEnd, err := time.Parse(time.RFC3339, end)
	if err != nil {
		return Window{}, fmt.Errorf("invalid --end: %w", err)
	}
	window := Window{Start: floorMinute(parsedStart.UTC()), End: floorMinute(parsedEnd.UTC())}
	if !window.End.After(window.Start) {
		return Window{}, fmt.Errorf("--end must be at least one minute after --start")
	}
	return window, nil
}

// WindowFor returns the days-long window ending at now.
func WindowFor(days int, now time.Time) Window {
	last := floorMinute(now.UTC())
	return Window{Start: last.AddDate(0, 0, -days), End: last}
}

func floorMinute(t time.Time) time.Time {
	return t.Truncate(time.Minute)
}
