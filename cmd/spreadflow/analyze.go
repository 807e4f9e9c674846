package main

import (
	"encoding/json"
	"fmt"
	"io"
	"runtime"
	"strings"

	"github.com/spf13/cobra"

	"github.com/vogtb/go-spreadflow/packages/logging"
	"github.com/vogtb/go-spreadflow/packages/spreadsheet"
	"github.com/vogtb/go-spreadflow/packages/store"
)

type analyzeOptions struct {
	json             bool
	workers          int
	maxVisits        int
	db               string
	failOnUnresolved bool
}

func newAnalyzeCmd(root *rootOptions) *cobra.Command {
	opts := &analyzeOptions{}

	cmd := &cobra.Command{
		Use:   "analyze <input>",
		Short: "Find every cell between ingress and egress",
		Long: `Load a workbook or text model, classify its formulas and walk back from
every egress cell. Prints one call tree per egress cell followed by the
egress cells each ingress cell feeds.

Use --db to keep the result for later impact queries.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAnalyze(cmd, root, opts, args[0])
		},
	}

	cmd.Flags().BoolVar(&opts.json, "json", false,
		"Output as JSON for scripting")
	cmd.Flags().IntVar(&opts.workers, "workers", runtime.GOMAXPROCS(0),
		"Egress cells traversed at once")
	cmd.Flags().IntVar(&opts.maxVisits, "max-visits", 0,
		"Records one egress cell may visit (0 = no limit)")
	cmd.Flags().StringVar(&opts.db, "db", "",
		"Store the result in this database directory")
	cmd.Flags().BoolVar(&opts.failOnUnresolved, "fail-on-unresolved", false,
		"Exit 3 if any reference names nothing")
	return cmd
}

// analysis is the --json output
type analysis struct {
	Formulas    int                `json:"formulas"`
	Aliases     int                `json:"aliases"`
	Values      int                `json:"values"`
	Egress      []store.TreeRecord `json:"egress"`
	Ingress     []ingressCell      `json:"ingress"`
	Diagnostics []string           `json:"diagnostics,omitempty"`
	Errors      []string           `json:"errors,omitempty"`
}

type ingressCell struct {
	Location  string   `json:"location"`
	Consumers []string `json:"consumers"`
}

func runAnalyze(cmd *cobra.Command, root *rootOptions, opts *analyzeOptions, input string) error {
	ctx := cmd.Context()

	p, loaded, report, err := root.analyze(cmd, input,
		spreadsheet.WithWorkers(opts.workers),
		spreadsheet.WithVisitBudget(opts.maxVisits))
	if err != nil {
		return err
	}

	if opts.db != "" {
		s, err := store.Open(store.DefaultConfig(opts.db))
		if err != nil {
			return err
		}
		defer s.Close()
		if err := s.SaveReport(ctx, p, report); err != nil {
			return err
		}
		run, err := s.LastRun(ctx)
		if err != nil {
			return err
		}
		logging.FromContext(ctx).Info("analysis stored", "db", opts.db, "run", run.ID)
	}

	result := summarize(p, loaded, report)
	if opts.json {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if err := enc.Encode(result); err != nil {
			return err
		}
	} else {
		printAnalysis(cmd.OutOrStdout(), result, report)
	}

	if n := len(report.Unresolved()); opts.failOnUnresolved && n > 0 {
		return &ExitError{Code: ExitUnresolved, Message: fmt.Sprintf("%d unresolved references", n)}
	}
	return nil
}

func summarize(p *spreadsheet.Program, loaded *spreadsheet.LoadReport, report *spreadsheet.Report) *analysis {
	result := &analysis{
		Formulas: loaded.Formulas,
		Aliases:  loaded.Aliases,
		Values:   loaded.Values,
		Egress:   make([]store.TreeRecord, 0, len(report.Trees)),
		Ingress:  []ingressCell{},
	}
	for _, tree := range report.Trees {
		result.Egress = append(result.Egress, store.NewTreeRecord(tree))
	}
	for _, f := range p.Ingress() {
		cell := ingressCell{Location: f.Location().String(), Consumers: []string{}}
		for _, loc := range f.Outputs() {
			cell.Consumers = append(cell.Consumers, loc.String())
		}
		result.Ingress = append(result.Ingress, cell)
	}
	for _, diag := range loaded.Diagnostics {
		result.Diagnostics = append(result.Diagnostics, diag.Error())
	}
	for _, err := range report.Errors {
		result.Errors = append(result.Errors, err.Error())
	}
	return result
}

func printAnalysis(w io.Writer, result *analysis, report *spreadsheet.Report) {
	fmt.Fprintf(w, "loaded %d formulas, %d aliases, %d values (%d diagnostics)\n",
		result.Formulas, result.Aliases, result.Values, len(result.Diagnostics))

	for i, tree := range result.Egress {
		suffix := ""
		if tree.Truncated {
			suffix = " (truncated)"
		}
		fmt.Fprintf(w, "egress %s: %d records%s\n", tree.Root, len(tree.Records), suffix)
		for _, rec := range tree.Records {
			fmt.Fprintf(w, "  %s\n", rec)
		}
		for _, u := range report.Trees[i].Unresolved {
			fmt.Fprintf(w, "  unresolved: %s\n", u)
		}
	}

	for _, cell := range result.Ingress {
		if len(cell.Consumers) == 0 {
			fmt.Fprintf(w, "ingress %s -> (none)\n", cell.Location)
			continue
		}
		fmt.Fprintf(w, "ingress %s -> %s\n", cell.Location, strings.Join(cell.Consumers, ", "))
	}
}
