package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bayneri/slareport/internal/report"
)

func runMerge(args []string) error {
	fs := flag.NewFlagSet("merge", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	inputs := fs.String("inputs", "", "comma-separated list of run summary.json files")
	outDir := fs.String("out", "out/merged", "output directory")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(*inputs) == "" {
		return errors.New("--inputs is required")
	}

	paths := splitCSV(*inputs)
	reports, err := report.ReadReports(paths)
	if err != nil {
		return err
	}
	merged, warnings, err := report.Merge(reports, paths)
	if err != nil {
		return err
	}

	if err := report.WriteSummaryJSON(filepath.Join(*outDir, "summary.json"), merged); err != nil {
		return err
	}
	if err := report.WriteMarkdownSummary(filepath.Join(*outDir, "summary.md"), merged, report.Options{}); err != nil {
		return err
	}
	if len(warnings) > 0 {
		if err := report.WriteErrorsMarkdown(filepath.Join(*outDir, "errors.md"), warnings); err != nil {
			return err
		}
	}
	fmt.Fprintf(os.Stdout, "Wrote merged report to %s\n", *outDir)
	if len(warnings) > 0 {
		return exitError{code: exitPartial, err: errors.New("partial report")}
	}
	return nil
}

func splitCSV(input string) []string {
	parts := strings.Split(input, ",")
	var out []string
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
