package spec

import (
	"errors"
	"fmt"
	"strings"
)

const (
	DefaultWindowDays = 30
	DefaultMaxWorkers = 5
	MaxWorkersCap     = 32
)

// Spec is one report request: the projects and services to evaluate, the
// lookback window and the worker pool size.
type Spec struct {
	Projects     []Project `yaml:"projects" json:"projects"`
	WindowDays   int       `yaml:"windowDays" json:"windowDays"`
	MaxWorkers   int       `yaml:"maxWorkers" json:"maxWorkers"`
	ServiceTypes Types     `yaml:"serviceTypes,omitempty" json:"-"`
}

type Project struct {
	ID       string    `yaml:"id" json:"id"`
	Services []Service `yaml:"services" json:"services"`
}

type Service struct {
	Name string `yaml:"name" json:"name"`
	Type string `yaml:"type" json:"type"`
	// Threshold is the minimum uptime percentage, in (0,100].
	Threshold float64 `yaml:"threshold" json:"threshold"`
	// MetricPath replaces the type's total metric when set.
	MetricPath string `yaml:"metricPath,omitempty" json:"metricPath,omitempty"`
}

type Defaults struct {
	WindowDays int
	MaxWorkers int
}

func (s *Spec) Normalize(defaults Defaults) {
	if s.WindowDays == 0 {
		s.WindowDays = defaults.WindowDays
		if s.WindowDays == 0 {
			s.WindowDays = DefaultWindowDays
		}
	}
	if s.MaxWorkers == 0 {
		s.MaxWorkers = defaults.MaxWorkers
		if s.MaxWorkers == 0 {
			s.MaxWorkers = DefaultMaxWorkers
		}
	}
}

// ServiceCount is the number of (project, service) units in the request.
func (s Spec) ServiceCount() int {
	n := 0
	for _, p := range s.Projects {
		n += len(p.Services)
	}
	return n
}

func (s Spec) Validate(types TypeLookup, maxWorkersCap int) error {
	if maxWorkersCap <= 0 {
		maxWorkersCap = MaxWorkersCap
	}
	var errs []string
	if len(s.Projects) == 0 {
		errs = append(errs, "at least one project is required")
	}
	if s.WindowDays <= 0 {
		errs = append(errs, "windowDays must be positive")
	}
	if s.MaxWorkers <= 0 || s.MaxWorkers > maxWorkersCap {
		errs = append(errs, fmt.Sprintf("maxWorkers must be between 1 and %d", maxWorkersCap))
	}
	for i, project := range s.Projects {
		prefix := fmt.Sprintf("projects[%d]", i)
		if strings.TrimSpace(project.ID) == "" {
			errs = append(errs, fmt.Sprintf("%s.id is required", prefix))
		}
		if len(project.Services) == 0 {
			errs = append(errs, fmt.Sprintf("%s.services must not be empty", prefix))
		}
		for j, svc := range project.Services {
			for _, err := range validateService(svc, types) {
				errs = append(errs, fmt.Sprintf("%s.services[%d]: %s", prefix, j, err))
			}
		}
	}
	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

func validateService(svc Service, types TypeLookup) []string {
	var errs []string
	if strings.TrimSpace(svc.Name) == "" {
		errs = append(errs, "name is required")
	}
	if strings.TrimSpace(svc.Type) == "" {
		errs = append(errs, "type is required")
	} else if types != nil {
		if _, err := types.Lookup(svc.Type); err != nil {
			errs = append(errs, err.Error())
		}
	}
	if svc.Threshold <= 0 || svc.Threshold > 100 {
		errs = append(errs, "threshold must be in (0,100]")
	}
	return errs
}
