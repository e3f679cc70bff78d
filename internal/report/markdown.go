package report

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bayneri/slareport/internal/analyze"
	"github.com/bayneri/slareport/internal/explain"
)

const (
	LabelCompliant    = "COMPLIANT"
	LabelNonCompliant = "NON-COMPLIANT"
)

type Options struct {
	Explain  bool
	Timezone *time.Location
}

func RenderMarkdown(w io.Writer, r Report, opts Options) error {
	if opts.Timezone == nil {
		opts.Timezone = time.UTC
	}
	var b bytes.Buffer
	windowStart := r.Window.Start.In(opts.Timezone).Format(time.RFC3339)
	windowEnd := r.Window.End.In(opts.Timezone).Format(time.RFC3339)

	fmt.Fprintf(&b, "# SLA compliance report\n\n")
	if r.JobID != "" {
		fmt.Fprintf(&b, "- Job: %s\n", r.JobID)
	}
	fmt.Fprintf(&b, "- Window: %s to %s\n", windowStart, windowEnd)
	fmt.Fprintf(&b, "- Duration: %s\n", r.Window.End.Sub(r.Window.Start))
	fmt.Fprintf(&b, "- Status: %s\n", r.Status)
	fmt.Fprintf(&b, "- Services: %d (compliant %d, non-compliant %d, no data %d, errors %d)\n",
		r.Summary.Services, r.Summary.Compliant, r.Summary.NonCompliant, r.Summary.NoData, r.Summary.Errors)

	for _, project := range r.Projects {
		fmt.Fprintf(&b, "\n## %s\n\n", project.ProjectID)
		fmt.Fprintf(&b, "| Service | Type | Uptime | Downtime (min) | Threshold | Result | Notes |\n")
		fmt.Fprintf(&b, "| --- | --- | --- | --- | --- | --- | --- |\n")
		for _, svc := range project.Services {
			fmt.Fprintf(&b, "| %s | %s | %s | %s | %.4f%% | %s | %s |\n",
				cell(svc.Service), cell(svc.Type), formatUptime(svc.UptimePct), formatDowntime(svc.DowntimeMinutes),
				svc.Threshold, complianceLabel(svc), cell(notes(svc)))
		}
	}

	if len(r.Errors) > 0 {
		fmt.Fprintf(&b, "\n## Errors\n")
		for _, err := range r.Errors {
			fmt.Fprintf(&b, "- %s\n", cell(err))
		}
	}

	if opts.Explain {
		fmt.Fprintf(&b, "\n## How computed\n")
		fmt.Fprintf(&b, "\nFormula: %s\n", explain.UptimeFormula)
		fmt.Fprintf(&b, "\nA minute is downtime only when it carried traffic and every request failed. Minutes without traffic count toward the window but are never downtime.\n")
	}

	_, err := w.Write(b.Bytes())
	return err
}

func WriteMarkdownSummary(path string, r Report, opts Options) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := RenderMarkdown(f, r, opts); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func complianceLabel(svc analyze.ServiceResult) string {
	if svc.Compliant {
		return LabelCompliant
	}
	return LabelNonCompliant
}

func formatUptime(pct *float64) string {
	if pct == nil {
		return "n/a"
	}
	return fmt.Sprintf("%.4f%%", *pct)
}

func formatDowntime(minutes *int64) string {
	if minutes == nil {
		return "-"
	}
	return fmt.Sprintf("%d", *minutes)
}

var cellReplacer = strings.NewReplacer("|", `\|`, "\r\n", " ", "\n", " ", "\r", " ")

// cell keeps provider text on one table row.
func cell(value string) string {
	return cellReplacer.Replace(value)
}

func notes(svc analyze.ServiceResult) string {
	if svc.Error != "" {
		return svc.Error
	}
	return svc.Note
}
