package planner

import (
	"fmt"
	"io"

	"github.com/bayneri/slareport/internal/spec"
)

func Render(w io.Writer, plan Plan, types spec.TypeLookup) {
	fmt.Fprintf(w, "Projects: %d\n", len(plan.Projects))
	fmt.Fprintf(w, "Services: %d\n", len(plan.Items))

	current := -1
	for _, item := range plan.Items {
		if item.ProjectIndex != current {
			current = item.ProjectIndex
			fmt.Fprintln(w, "")
			fmt.Fprintf(w, "Project %s:\n", item.ProjectID)
		}
		st, err := types.Lookup(item.Service.Type)
		if err != nil {
			fmt.Fprintf(w, "- %s (%s): %v\n", item.Service.Name, item.Service.Type, err)
			continue
		}
		total, outcome := st.Filters(item.Service)
		fmt.Fprintf(w, "- %s (%s, %s, threshold %.4f%%)\n", item.Service.Name, item.Service.Type, st.Mode, item.Service.Threshold)
		fmt.Fprintf(w, "    total:   %s\n", total)
		fmt.Fprintf(w, "    outcome: %s\n", outcome)
	}
}
