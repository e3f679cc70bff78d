package spec

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Mode selects how a service's failure signal is derived.
type Mode string

const (
	// ModeErrorBased reads failures from an explicit error counter.
	ModeErrorBased Mode = "error-based"
	// ModeSuccessBased derives failures as total minus successes.
	ModeSuccessBased Mode = "success-based"
)

// ServiceType describes how to query one kind of monitored resource.
type ServiceType struct {
	Name         string `yaml:"-" json:"name"`
	ResourceType string `yaml:"resourceType" json:"resourceType"`
	TotalMetric  string `yaml:"totalMetric" json:"totalMetric"`
	// NameLabel is the resource label matched against the service name.
	// Empty means the metric is scoped to the whole project.
	NameLabel string `yaml:"nameLabel" json:"nameLabel,omitempty"`
	Mode      Mode   `yaml:"mode" json:"mode"`
	// OutcomeFilter selects errors in error-based mode, successes otherwise.
	OutcomeFilter string `yaml:"outcomeFilter" json:"outcomeFilter"`
	Description   string `yaml:"description" json:"description,omitempty"`
}

type Types map[string]ServiceType

type TypeLookup interface {
	Lookup(name string) (ServiceType, error)
}

var defaultTypes = Types{
	"cloud_run_revision": {
		ResourceType:  "cloud_run_revision",
		TotalMetric:   "run.googleapis.com/request_count",
		NameLabel:     "service_name",
		Mode:          ModeErrorBased,
		OutcomeFilter: `metric.labels.response_code_class="5xx"`,
		Description:   "Cloud Run service requests; 5xx responses are errors",
	},
	"gcs_bucket": {
		ResourceType:  "gcs_bucket",
		TotalMetric:   "storage.googleapis.com/api/request_count",
		NameLabel:     "bucket_name",
		Mode:          ModeErrorBased,
		OutcomeFilter: `metric.labels.response_code=starts_with("5")`,
		Description:   "Cloud Storage bucket API requests",
	},
	"bigquery_project": {
		ResourceType:  "bigquery_project",
		TotalMetric:   "bigquery.googleapis.com/query/count",
		Mode:          ModeSuccessBased,
		OutcomeFilter: `metric.labels.statement_status="ok"`,
		Description:   "BigQuery queries for the whole project; failures are total minus ok",
	},
	"cloud_function": {
		ResourceType:  "cloud_function",
		TotalMetric:   "cloudfunctions.googleapis.com/function/execution_count",
		NameLabel:     "function_name",
		Mode:          ModeSuccessBased,
		OutcomeFilter: `metric.labels.status="ok"`,
		Description:   "Cloud Functions executions; failures are total minus ok",
	},
	"https_lb_rule": {
		ResourceType:  "https_lb_rule",
		TotalMetric:   "loadbalancing.googleapis.com/https/request_count",
		NameLabel:     "url_map_name",
		Mode:          ModeErrorBased,
		OutcomeFilter: `metric.labels.response_code_class=500`,
		Description:   "External HTTPS load balancer requests",
	},
}

// DefaultTypes returns a copy of the built-in type table.
func DefaultTypes() Types {
	return Types{}.Merge(defaultTypes)
}

func (t Types) Lookup(name string) (ServiceType, error) {
	if st, ok := t[name]; ok {
		st.Name = name
		return st, nil
	}
	return ServiceType{}, fmt.Errorf("type must be one of %v", t.Names())
}

func (t Types) Names() []string {
	keys := make([]string, 0, len(t))
	for k := range t {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Merge returns a new table with overrides replacing entries of t.
func (t Types) Merge(overrides Types) Types {
	out := make(Types, len(t)+len(overrides))
	for k, v := range t {
		v.Name = k
		out[k] = v
	}
	for k, v := range overrides {
		v.Name = k
		out[k] = v
	}
	return out
}

func (t Types) Validate() error {
	var errs []string
	for _, name := range t.Names() {
		st := t[name]
		prefix := fmt.Sprintf("serviceTypes.%s", name)
		if strings.TrimSpace(st.ResourceType) == "" {
			errs = append(errs, prefix+".resourceType is required")
		}
		if strings.TrimSpace(st.TotalMetric) == "" {
			errs = append(errs, prefix+".totalMetric is required")
		}
		if st.Mode != ModeErrorBased && st.Mode != ModeSuccessBased {
			errs = append(errs, fmt.Sprintf("%s.mode must be %q or %q", prefix, ModeErrorBased, ModeSuccessBased))
		}
		if strings.TrimSpace(st.OutcomeFilter) == "" {
			errs = append(errs, prefix+".outcomeFilter is required")
		}
	}
	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

// Filters builds the total and outcome filter expressions for one service.
func (st ServiceType) Filters(svc Service) (total, outcome string) {
	metric := st.TotalMetric
	if strings.TrimSpace(svc.MetricPath) != "" {
		metric = svc.MetricPath
	}
	total = fmt.Sprintf("metric.type=%q AND resource.type=%q", metric, st.ResourceType)
	if st.NameLabel != "" {
		total = fmt.Sprintf("%s AND resource.labels.%s=%q", total, st.NameLabel, svc.Name)
	}
	return total, fmt.Sprintf("%s AND %s", total, st.OutcomeFilter)
}
