package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"
)

func runTypes(args []string) error {
	if len(args) == 0 {
		return errors.New("types requires a subcommand: list")
	}
	switch args[0] {
	case "list":
		return runTypesList(args[1:])
	default:
		return fmt.Errorf("unknown types subcommand %q", args[0])
	}
}

func runTypesList(args []string) error {
	fs := flag.NewFlagSet("types list", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	typesFile := fs.String("types", "", "service types file overriding the built-in table")
	if err := fs.Parse(args); err != nil {
		return err
	}

	types, err := loadTypes(*typesFile)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TYPE\tMODE\tRESOURCE\tMETRIC\tNAME_LABEL")
	for _, name := range types.Names() {
		st := types[name]
		label := st.NameLabel
		if label == "" {
			label = "(project)"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", name, st.Mode, st.ResourceType, st.TotalMetric, label)
	}
	return w.Flush()
}
