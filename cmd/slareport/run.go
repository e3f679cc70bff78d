package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"google.golang.org/api/option"

	"github.com/bayneri/slareport/internal/analyze"
	"github.com/bayneri/slareport/internal/logging"
	"github.com/bayneri/slareport/internal/monitoring"
	"github.com/bayneri/slareport/internal/report"
)

type runOptions struct {
	days          int
	start         string
	end           string
	out           string
	format        string
	explain       bool
	timezone      string
	failOnPartial bool
	failOnBreach  bool
	timeout       time.Duration
	qps           float64
	burst         int
	credentials   string
}

func runReport(args []string) error {
	fs, base := baseFlags("run")
	opts := &runOptions{}
	fs.IntVar(&opts.days, "days", 0, "lookback window in days (defaults to windowDays in the report file)")
	fs.StringVar(&opts.start, "start", "", "RFC3339 start time")
	fs.StringVar(&opts.end, "end", "", "RFC3339 end time")
	fs.StringVar(&opts.out, "out", "", "output directory")
	fs.StringVar(&opts.format, "format", "md,json", "comma-separated output formats")
	fs.BoolVar(&opts.explain, "explain", false, "include the uptime formula in the markdown report")
	fs.StringVar(&opts.timezone, "timezone", "UTC", "IANA timezone for reports")
	fs.BoolVar(&opts.failOnPartial, "fail-on-partial", false, "exit 2 if any service has no data or failed")
	fs.BoolVar(&opts.failOnBreach, "fail-on-breach", false, "exit 3 if any service is non-compliant")
	fs.DurationVar(&opts.timeout, "timeout", analyze.DefaultFetchTimeout, "timeout for each metrics query")
	fs.Float64Var(&opts.qps, "qps", 5, "metrics queries per second, 0 disables throttling")
	fs.IntVar(&opts.burst, "burst", 10, "metrics query burst")
	fs.StringVar(&opts.credentials, "credentials", "", "service account key file (defaults to application default credentials)")

	if err := fs.Parse(args); err != nil {
		return err
	}

	req, types, err := loadRequest(base)
	if err != nil {
		return err
	}
	days := req.WindowDays
	if opts.days > 0 {
		days = opts.days
	}
	window, err := analyze.ResolveWindow(opts.start, opts.end, days, time.Now())
	if err != nil {
		return err
	}
	loc, err := time.LoadLocation(opts.timezone)
	if err != nil {
		return fmt.Errorf("invalid timezone: %w", err)
	}

	logger := logging.NewCLI(base.verbose)
	defer logger.Sync()

	ctx := context.Background()
	var clientOpts []option.ClientOption
	if opts.credentials != "" {
		clientOpts = append(clientOpts, option.WithCredentialsFile(opts.credentials))
	}
	gcp, err := monitoring.NewGCPProvider(ctx, clientOpts...)
	if err != nil {
		return err
	}
	defer gcp.Close()

	provider := monitoring.WithBreaker(
		monitoring.WithRateLimit(gcp, opts.qps, opts.burst),
		monitoring.BreakerSettings{Name: "cloud-monitoring", ConsecutiveFailures: 5, OpenTimeout: 30 * time.Second},
		logger,
	)
	fetcher := analyze.NewFetcher(provider, types, analyze.FetcherConfig{Timeout: opts.timeout, Logger: logger})
	orchestrator := analyze.NewOrchestrator(fetcher, 0, logger)

	projects, err := orchestrator.Run(ctx, req, window)
	if err != nil {
		return err
	}
	result := report.Build(projects, window)

	outDir := opts.out
	if outDir == "" {
		outDir = filepath.Join("out", window.End.UTC().Format("20060102T1504Z"))
	}
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	formats := parseFormat(opts.format)
	if includesFormat(formats, "md") {
		if err := report.WriteMarkdownSummary(filepath.Join(outDir, "summary.md"), result, report.Options{Explain: opts.explain, Timezone: loc}); err != nil {
			return err
		}
	}
	if includesFormat(formats, "json") {
		if err := report.WriteSummaryJSON(filepath.Join(outDir, "summary.json"), result); err != nil {
			return err
		}
	}
	if len(result.Errors) > 0 {
		if err := report.WriteErrorsMarkdown(filepath.Join(outDir, "errors.md"), result.Errors); err != nil {
			return err
		}
	}

	fmt.Fprintf(os.Stdout, "Wrote report to %s (status %s)\n", outDir, result.Status)
	return exitFor(result, opts.failOnPartial, opts.failOnBreach)
}

// exitFor maps the report status onto the process exit code. A breach
// outranks a partial report.
func exitFor(r report.Report, failOnPartial, failOnBreach bool) error {
	if failOnBreach && r.Summary.NonCompliant > 0 {
		return exitError{code: exitBreach, err: errors.New("sla breach")}
	}
	if failOnPartial && (r.Summary.NoData > 0 || r.Summary.Errors > 0) {
		return exitError{code: exitPartial, err: errors.New("partial report")}
	}
	if r.Status != report.StatusOK {
		fmt.Fprintf(os.Stdout, "Report status %s: %d non-compliant, %d without data, %d failed.\n",
			r.Status, r.Summary.NonCompliant, r.Summary.NoData, r.Summary.Errors)
	}
	return nil
}

func parseFormat(input string) []string {
	if strings.TrimSpace(input) == "" {
		return []string{"md", "json"}
	}
	parts := strings.Split(input, ",")
	var out []string
	for _, part := range parts {
		trimmed := strings.ToLower(strings.TrimSpace(part))
		if trimmed == "" {
			continue
		}
		out = append(out, trimmed)
	}
	if len(out) == 0 {
		return []string{"md", "json"}
	}
	return out
}

func includesFormat(formats []string, value string) bool {
	for _, format := range formats {
		if format == value {
			return true
		}
	}
	return false
}
