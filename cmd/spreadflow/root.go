package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/vogtb/go-spreadflow/packages/config"
	"github.com/vogtb/go-spreadflow/packages/logging"
	"github.com/vogtb/go-spreadflow/packages/spreadsheet"
	"github.com/vogtb/go-spreadflow/packages/xlsx"
)

// rootOptions are the persistent flags shared by every command
type rootOptions struct {
	logLevel   string
	logFormat  string
	configPath string
	sheet      string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "spreadflow",
		Short: "Trace data flow through spreadsheet models",
		Long: `spreadflow compiles every formula of a workbook and follows references
from the cells that push data out (egress) back to the cells that pull data
in (ingress), without evaluating anything.

Inputs:
  .xlsx, .xlsm   Excel workbooks
  anything else  the text format, one statement per line:
                   'Sheet1'!A1 @= RTGET("feed")
                   'Sheet1'!B1 @: 42
                   rate := 'Inputs'!$B$2

Examples:
  spreadflow analyze model.xlsx
  spreadflow analyze --json --db ./flow.db model.xlsx
  spreadflow impact --db ./flow.db "'Sheet1'!A1"
  spreadflow compile "'Sheet1'!C1 @= RTC(A1*B1)"`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			logger := logging.New(opts.logLevel, opts.logFormat, cmd.ErrOrStderr())
			cmd.SetContext(logging.WithLogger(ctx, logger))
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn",
		"Log level: debug, info, warn, error")
	cmd.PersistentFlags().StringVar(&opts.logFormat, "log-format", "text",
		"Log format: text or json")
	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "",
		"Classification config (.yaml or .hcl); built-in defaults when empty")
	cmd.PersistentFlags().StringVar(&opts.sheet, "sheet", "",
		"Sheet that unqualified targets belong to")

	cmd.AddCommand(newAnalyzeCmd(opts), newImpactCmd(opts), newCompileCmd(opts))
	return cmd
}

// classifier loads the configured function sets
func (o *rootOptions) classifier(ctx context.Context) (*spreadsheet.Classifier, error) {
	cls := config.Default()
	if o.configPath != "" {
		var err error
		if cls, err = config.Load(ctx, o.configPath); err != nil {
			return nil, inputError("load config: %v", err)
		}
	}
	c, err := cls.Classifier()
	if err != nil {
		return nil, inputError("config %s: %v", o.configPath, err)
	}
	return c, nil
}

// load reads a workbook or a text model into a new program. "-" reads the
// text format from stdin.
func (o *rootOptions) load(cmd *cobra.Command, input string) (*spreadsheet.Program, *spreadsheet.LoadReport, error) {
	ctx := cmd.Context()
	p := spreadsheet.NewProgram()
	loader := spreadsheet.NewLoader(p, spreadsheet.WithDefaultSheet(o.sheet))

	var (
		report *spreadsheet.LoadReport
		err    error
	)
	switch ext := strings.ToLower(filepath.Ext(input)); {
	case input == "-":
		report, err = loader.LoadText(ctx, cmd.InOrStdin())
	case ext == ".xlsx" || ext == ".xlsm":
		wb, openErr := xlsx.Open(input)
		if openErr != nil {
			return nil, nil, inputError("%v", openErr)
		}
		defer wb.Close()
		report, err = wb.Feed(ctx, loader)
	default:
		f, openErr := os.Open(input)
		if openErr != nil {
			return nil, nil, inputError("%v", openErr)
		}
		defer f.Close()
		report, err = loader.LoadText(ctx, f)
	}
	if err != nil {
		return nil, nil, inputError("load %s: %v", input, err)
	}
	return p, report, nil
}

// analyze loads, classifies and traverses input
func (o *rootOptions) analyze(cmd *cobra.Command, input string, engineOpts ...spreadsheet.EngineOption) (*spreadsheet.Program, *spreadsheet.LoadReport, *spreadsheet.Report, error) {
	ctx := cmd.Context()
	classifier, err := o.classifier(ctx)
	if err != nil {
		return nil, nil, nil, err
	}

	p, loaded, err := o.load(cmd, input)
	if err != nil {
		return nil, nil, nil, err
	}
	ingress, egress := p.Classify(classifier)
	logging.FromContext(ctx).Info("classified", "formulas", p.Len(), "ingress", ingress, "egress", egress)

	report, err := spreadsheet.NewEngine(p, engineOpts...).Run(ctx)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("traverse %s: %w", input, err)
	}
	return p, loaded, report, nil
}
