package analyze

import "time"

// Service result statuses. Every unit of work resolves to exactly one.
const (
	StatusOK     = "ok"
	StatusNoData = "no_data"
	StatusError  = "error"
)

const NoDataNote = "no data available"

type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Minutes is the wall-clock length of the window in whole minutes.
func (w Window) Minutes() int64 {
	return (w.End.Unix() - w.Start.Unix()) / 60
}

func (w Window) String() string {
	return w.Start.Format(time.RFC3339) + " to " + w.End.Format(time.RFC3339)
}

type ServiceResult struct {
	Service         string   `json:"service"`
	Type            string   `json:"type"`
	Status          string   `json:"status"`
	UptimePct       *float64 `json:"uptimePct"`
	DowntimeMinutes *int64   `json:"downtimeMinutes"`
	Threshold       float64  `json:"threshold"`
	Compliant       bool     `json:"compliant"`
	Note            string   `json:"note,omitempty"`
	Error           string   `json:"error,omitempty"`
}

type ProjectResult struct {
	ProjectID string          `json:"projectId"`
	Services  []ServiceResult `json:"services"`
}
