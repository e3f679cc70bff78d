package planner

import "github.com/bayneri/slareport/internal/spec"

// Plan is the flattened work list of a report request.
type Plan struct {
	Projects []ProjectPlan
	Items    []Item
}

type ProjectPlan struct {
	ID       string
	Services int
}

// Item is one (project, service) unit of work. The indices locate its
// result in the assembled report.
type Item struct {
	ProjectIndex int
	ServiceIndex int
	ProjectID    string
	Service      spec.Service
}

func Build(projects []spec.Project) Plan {
	plan := Plan{Projects: make([]ProjectPlan, 0, len(projects))}
	for p, project := range projects {
		plan.Projects = append(plan.Projects, ProjectPlan{ID: project.ID, Services: len(project.Services)})
		for s, svc := range project.Services {
			plan.Items = append(plan.Items, Item{
				ProjectIndex: p,
				ServiceIndex: s,
				ProjectID:    project.ID,
				Service:      svc,
			})
		}
	}
	return plan
}

// PoolSize bounds the worker count by the cap and the amount of work.
func PoolSize(requested, limit, units int) int {
	size := requested
	if limit > 0 && size > limit {
		size = limit
	}
	if size > units {
		size = units
	}
	if size < 1 {
		size = 1
	}
	return size
}
