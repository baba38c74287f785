package app

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"urioracle/internal/compare"
	config "urioracle/internal/config"
	"urioracle/internal/parser"
	"urioracle/internal/report"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

type compareOptions struct {
	Run      string
	Report   string
	OutDir   string
	Targets  []string
	Baseline string
}

func newCompareCommand(root *rootOptions) *cobra.Command {
	opts := &compareOptions{}
	cmd := &cobra.Command{
		Use:   "compare",
		Short: "Compare the recorded outcomes of one run and write a discrepancy report",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnvironment(cmd, root, func(v *viper.Viper) int {
				fs := cmd.Flags()
				if !fs.Changed("out-dir") && v.IsSet("out-dir") {
					opts.OutDir = v.GetString("out-dir")
				}
				if !fs.Changed("baseline") && v.IsSet("baseline") {
					opts.Baseline = v.GetString("baseline")
				}
				ids, err := targetIDs(opts.Targets)
				if err != nil {
					logError(err.Error())
					return 1
				}
				return runCompare(cmd.OutOrStdout(), opts.OutDir, opts.Run, ids, opts.Baseline, opts.Report)
			})
		},
	}

	fs := cmd.Flags()
	fs.StringVar(&opts.Run, "run", "", "Run id to compare (required)")
	fs.StringVarP(&opts.Report, "report", "r", "", "Report file to write (required)")
	fs.StringVar(&opts.OutDir, "out-dir", config.DefaultOutDir, "Directory holding <implementation>/<run>/ records")
	fs.StringSliceVarP(&opts.Targets, "target", "t", nil, "Implementations to compare (default: every one with records)")
	fs.StringVar(&opts.Baseline, "baseline", "", "Compare every implementation against this one only")
	_ = cmd.MarkFlagRequired("run")
	_ = cmd.MarkFlagRequired("report")
	return cmd
}

// targetIDs accepts the same specs as dispatch and keeps only the ids.
func targetIDs(specs []string) ([]string, error) {
	out := make([]string, 0, len(specs))
	for _, spec := range specs {
		name, _, _ := strings.Cut(spec, "=")
		id := strings.ToLower(strings.TrimSpace(name))
		if err := config.ValidateTargetID(id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, nil
}

func runCompare(out io.Writer, outDir, run string, implementations []string, baseline, reportPath string) int {
	results, err := parser.LoadRuns(outDir, run, implementations, logWarn)
	if err != nil {
		logError(fmt.Sprintf("load run %s: %v", run, err))
		return 1
	}

	res, err := compare.Compare(results, compare.Options{Baseline: baseline, WarnFn: logWarn})
	if err != nil {
		logError(fmt.Sprintf("compare: %v", err))
		return 1
	}

	if err := report.Write(reportPath, res.Discrepancies); err != nil {
		var we *report.WriteError
		if errors.As(err, &we) {
			logError(fmt.Sprintf("cannot write report: %v", we))
		} else {
			logError(fmt.Sprintf("report: %v", err))
		}
		return 1
	}

	fmt.Fprintln(out, report.Summarize(res))
	fmt.Fprintf(out, "Report: %s (%d discrepancies)\n", reportPath, len(res.Discrepancies))
	logInfo(fmt.Sprintf("Run %s: %d discrepancies written to %s", run, len(res.Discrepancies), reportPath))
	return 0
}
