package explain

import (
	"fmt"
	"sort"
)

const UptimeFormula = "uptimePct = round((windowMinutes - downtimeMinutes) / windowMinutes * 100, 4)"

var topics = map[string]string{
	"uptime": `Uptime is measured over the full wall-clock window, one minute at a time.

` + UptimeFormula + `

windowMinutes is the length of the window, with both ends floored to the minute. A minute only counts as downtime when it carried traffic and every request in it failed. Partial failures never count, and minutes without traffic are neither up nor down.

A long window with very little traffic can therefore report a high uptime even though few minutes were actually verified. Read a high percentage together with the traffic you expect.`,

	"modes": `Each service type reads its failures one of two ways.

error-based:   failures = errors counted by the type's outcome filter
success-based: failures = total - successes counted by the outcome filter

In success-based mode a minute with traffic but no recorded successes is a full outage.`,

	"no-data": `A service whose total metric has never been emitted reports no data: uptime is absent, downtime is 0 and the service is not compliant.

This is an expected outcome and never fails the report. A provider error is different: it is recorded on that one service and the rest of the report still completes.`,
}

// Topic returns the text for name.
func Topic(name string) (string, error) {
	text, ok := topics[name]
	if !ok {
		return "", fmt.Errorf("unknown explain topic %q (topics: %v)", name, Topics())
	}
	return text, nil
}

func Topics() []string {
	names := make([]string, 0, len(topics))
	for name := range topics {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
