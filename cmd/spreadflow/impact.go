package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/vogtb/go-spreadflow/packages/spreadsheet"
	"github.com/vogtb/go-spreadflow/packages/store"
)

type impactOptions struct {
	db    string
	input string
}

func newImpactCmd(root *rootOptions) *cobra.Command {
	opts := &impactOptions{}

	cmd := &cobra.Command{
		Use:   "impact <location>",
		Short: "List the egress cells that read a location",
		Long: `List the egress cells whose call tree contains the formula at a location,
i.e. what stops updating when that cell breaks.

The answer comes from a database written by "analyze --db", or from a fresh
analysis of --input.

Examples:
  spreadflow impact --db ./flow.db "'Sheet1'!A1"
  spreadflow impact --input model.xlsx --sheet Sheet1 A1`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImpact(cmd, root, opts, args[0])
		},
	}

	cmd.Flags().StringVar(&opts.db, "db", "",
		"Database written by analyze --db")
	cmd.Flags().StringVar(&opts.input, "input", "",
		"Analyze this workbook or text model instead of reading a database")
	cmd.MarkFlagsMutuallyExclusive("db", "input")
	cmd.MarkFlagsOneRequired("db", "input")
	return cmd
}

func runImpact(cmd *cobra.Command, root *rootOptions, opts *impactOptions, arg string) error {
	ctx := cmd.Context()

	loc, err := spreadsheet.ParseLocation(arg, root.sheet)
	if err != nil {
		return inputError("location %q: %v", arg, err)
	}
	if loc.Sheet == "" {
		return inputError("location %q has no sheet; qualify it or pass --sheet", arg)
	}

	var consumers []spreadsheet.Location
	if opts.db != "" {
		if _, err := os.Stat(opts.db); err != nil {
			return inputError("database %s: %v", opts.db, err)
		}
		s, err := store.Open(store.Config{Path: opts.db})
		if err != nil {
			return err
		}
		defer s.Close()

		consumers, err = s.Consumers(ctx, loc)
		if errors.Is(err, store.ErrNotFound) {
			return inputError("no formula at %s", loc)
		}
		if err != nil {
			return err
		}
	} else {
		p, _, _, err := root.analyze(cmd, opts.input)
		if err != nil {
			return err
		}
		consumers, err = p.Impact(loc)
		if errors.Is(err, spreadsheet.ErrNotFound) {
			return inputError("no formula at %s", loc)
		}
		if err != nil {
			return err
		}
	}

	w := cmd.OutOrStdout()
	if len(consumers) == 0 {
		fmt.Fprintf(w, "no egress cell reads %s\n", loc)
		return nil
	}
	for _, c := range consumers {
		fmt.Fprintln(w, c)
	}
	return nil
}
