package report

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/bayneri/slareport/internal/analyze"
)

func ReadReports(paths []string) ([]Report, error) {
	var reports []Report
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		var r Report
		if err := json.Unmarshal(data, &r); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
		if r.SchemaVersion == "" {
			return nil, fmt.Errorf("missing schemaVersion in %s", path)
		}
		reports = append(reports, r)
	}
	return reports, nil
}

// Merge combines reports from separate runs into one. Projects keep the
// order they first appear in; a project seen twice gets its services
// appended. Warnings cover window mismatches and repeated services.
func Merge(reports []Report, inputs []string) (Report, []string, error) {
	if len(reports) == 0 {
		return Report{}, nil, errors.New("no reports to merge")
	}

	var (
		warnings []string
		projects []analyze.ProjectResult
	)
	index := map[string]int{}
	seen := map[string]string{}
	window := reports[0].Window

	for i, r := range reports {
		input := fmt.Sprintf("input %d", i+1)
		if len(inputs) > i {
			input = inputs[i]
		}
		if !r.Window.Start.Equal(window.Start) || !r.Window.End.Equal(window.End) {
			warnings = append(warnings, fmt.Sprintf("%s: window %s differs from %s", input, r.Window, window))
		}
		for _, project := range r.Projects {
			pos, ok := index[project.ProjectID]
			if !ok {
				pos = len(projects)
				index[project.ProjectID] = pos
				projects = append(projects, analyze.ProjectResult{ProjectID: project.ProjectID})
			}
			for _, svc := range project.Services {
				key := project.ProjectID + "/" + svc.Service
				if first, dup := seen[key]; dup {
					warnings = append(warnings, fmt.Sprintf("%s: %s already reported by %s", input, key, first))
				} else {
					seen[key] = input
				}
				projects[pos].Services = append(projects[pos].Services, svc)
			}
		}
	}

	merged := Build(projects, window)
	if len(warnings) > 0 {
		merged.Status = mergeStatus(merged.Status, StatusPartial)
	}
	return merged, warnings, nil
}
