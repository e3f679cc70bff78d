package report

import (
	"fmt"

	"github.com/bayneri/slareport/internal/analyze"
)

const SchemaVersion = "1.0"

// Overall report statuses, in increasing severity.
const (
	StatusOK      = "ok"
	StatusPartial = "partial"
	StatusBreach  = "breach"
)

type Report struct {
	SchemaVersion string                  `json:"schemaVersion"`
	JobID         string                  `json:"jobId,omitempty"`
	Status        string                  `json:"status"`
	Window        analyze.Window          `json:"window"`
	Summary       Summary                 `json:"summary"`
	Projects      []analyze.ProjectResult `json:"projects"`
	Errors        []string                `json:"errors,omitempty"`
}

type Summary struct {
	Services     int `json:"services"`
	Compliant    int `json:"compliant"`
	NonCompliant int `json:"nonCompliant"`
	NoData       int `json:"noData"`
	Errors       int `json:"errors"`
}

func Build(projects []analyze.ProjectResult, window analyze.Window) Report {
	return Report{
		SchemaVersion: SchemaVersion,
		Status:        OverallStatus(projects),
		Window:        window,
		Summary:       Summarize(projects),
		Projects:      projects,
		Errors:        Failures(projects),
	}
}

// Summarize counts results. NonCompliant covers only services that were
// measured and fell below their threshold.
func Summarize(projects []analyze.ProjectResult) Summary {
	var s Summary
	for _, project := range projects {
		for _, svc := range project.Services {
			s.Services++
			switch {
			case svc.Status == analyze.StatusError:
				s.Errors++
			case svc.Status == analyze.StatusNoData:
				s.NoData++
			case svc.Compliant:
				s.Compliant++
			default:
				s.NonCompliant++
			}
		}
	}
	return s
}

// Failures lists every service that could not be measured.
func Failures(projects []analyze.ProjectResult) []string {
	var out []string
	for _, project := range projects {
		for _, svc := range project.Services {
			if svc.Status == analyze.StatusError {
				out = append(out, fmt.Sprintf("%s/%s: %s", project.ProjectID, svc.Service, svc.Error))
			}
		}
	}
	return out
}

func OverallStatus(projects []analyze.ProjectResult) string {
	status := StatusOK
	for _, project := range projects {
		for _, svc := range project.Services {
			status = mergeStatus(status, serviceStatus(svc))
		}
	}
	return status
}

func serviceStatus(svc analyze.ServiceResult) string {
	switch {
	case svc.Status == analyze.StatusError || svc.Status == analyze.StatusNoData:
		return StatusPartial
	case !svc.Compliant:
		return StatusBreach
	default:
		return StatusOK
	}
}

func mergeStatus(a, b string) string {
	score := func(value string) int {
		switch value {
		case StatusBreach:
			return 3
		case StatusPartial:
			return 2
		case StatusOK:
			return 1
		default:
			return 0
		}
	}
	if score(b) > score(a) {
		return b
	}
	return a
}
