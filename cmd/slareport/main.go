package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/bayneri/slareport/internal/explain"
	"github.com/bayneri/slareport/internal/planner"
	"github.com/bayneri/slareport/internal/spec"
)

const version = "0.2.0"

type commandOptions struct {
	file      string
	typesFile string
	verbose   bool
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(os.Args[2:])
	case "run":
		err = runReport(os.Args[2:])
	case "plan":
		err = runPlan(os.Args[2:])
	case "validate":
		err = runValidate(os.Args[2:])
	case "types":
		err = runTypes(os.Args[2:])
	case "merge":
		err = runMerge(os.Args[2:])
	case "explain":
		err = runExplain(os.Args[2:])
	case "version":
		fmt.Println(version)
	default:
		usage()
		os.Exit(1)
	}
	if err != nil {
		fail(err)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "slareport - SLA compliance reports from Cloud Monitoring")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Usage:")
	fmt.Fprintln(os.Stderr, "  slareport serve")
	fmt.Fprintln(os.Stderr, "  slareport run      -f sla.yaml [--days 30 | --start ... --end ...]")
	fmt.Fprintln(os.Stderr, "  slareport plan     -f sla.yaml")
	fmt.Fprintln(os.Stderr, "  slareport validate -f sla.yaml")
	fmt.Fprintln(os.Stderr, "  slareport types    list")
	fmt.Fprintln(os.Stderr, "  slareport merge    --inputs a/summary.json,b/summary.json")
	fmt.Fprintln(os.Stderr, "  slareport explain  uptime")
}

func baseFlags(cmd string) (*flag.FlagSet, *commandOptions) {
	fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	opts := &commandOptions{}
	fs.StringVar(&opts.file, "f", "", "path to SLA report file")
	fs.StringVar(&opts.typesFile, "types", "", "service types file overriding the built-in table")
	fs.BoolVar(&opts.verbose, "verbose", false, "verbose output")
	return fs, opts
}

func runPlan(args []string) error {
	fs, opts := baseFlags("plan")
	if err := fs.Parse(args); err != nil {
		return err
	}
	req, types, err := loadRequest(opts)
	if err != nil {
		return err
	}
	planner.Render(os.Stdout, planner.Build(req.Projects), types)
	return nil
}

func runValidate(args []string) error {
	fs, opts := baseFlags("validate")
	if err := fs.Parse(args); err != nil {
		return err
	}
	req, _, err := loadRequest(opts)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "Spec is valid: %d projects, %d services.\n", len(req.Projects), req.ServiceCount())
	return nil
}

func runExplain(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("explain requires a topic: %s", strings.Join(explain.Topics(), ", "))
	}
	text, err := explain.Topic(args[0])
	if err != nil {
		return err
	}
	fmt.Fprintln(os.Stdout, text)
	return nil
}

// loadRequest reads, normalizes and validates the report file named by -f. The
// type table is the built-in one, then --types, then the file's own
// serviceTypes section.
func loadRequest(opts *commandOptions) (spec.Spec, spec.Types, error) {
	if strings.TrimSpace(opts.file) == "" {
		return spec.Spec{}, nil, errors.New("-f is required")
	}
	types, err := loadTypes(opts.typesFile)
	if err != nil {
		return spec.Spec{}, nil, err
	}
	req, err := spec.Load(opts.file)
	if err != nil {
		return spec.Spec{}, nil, err
	}
	if len(req.ServiceTypes) > 0 {
		if err := req.ServiceTypes.Validate(); err != nil {
			return spec.Spec{}, nil, err
		}
		types = types.Merge(req.ServiceTypes)
	}
	req.Normalize(spec.Defaults{})
	if err := req.Validate(types, spec.MaxWorkersCap); err != nil {
		return spec.Spec{}, nil, err
	}
	return req, types, nil
}

func loadTypes(path string) (spec.Types, error) {
	if strings.TrimSpace(path) == "" {
		return spec.DefaultTypes(), nil
	}
	return spec.LoadTypes(path)
}

func fail(err error) {
	fmt.Fprintln(os.Stderr, "error:", err)
	type exitCoder interface {
		ExitCode() int
	}
	var coded exitCoder
	if errors.As(err, &coded) {
		os.Exit(coded.ExitCode())
	}
	os.Exit(exitFailure)
}
