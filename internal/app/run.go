package app

import (
	config "urioracle/internal/config"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newRunCommand(root *rootOptions) *cobra.Command {
	cfg := &config.Config{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Dispatch a corpus, then compare the run and write its report",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnvironment(cmd, root, func(v *viper.Viper) int {
				applyViper(cmd.Flags(), v, cfg)
				ctx, stop := signalContext(cmd.Context())
				defer stop()

				implementations, code := runDispatch(ctx, cmd.OutOrStdout(), cfg)
				if code != 0 {
					return code
				}
				return runCompare(cmd.OutOrStdout(), cfg.OutDir, cfg.Run, implementations, cfg.Baseline, cfg.Report)
			})
		},
	}

	fs := cmd.Flags()
	bindDispatchFlags(fs, cfg)
	fs.StringVarP(&cfg.Report, "report", "r", "", "Report file to write (required)")
	fs.StringVar(&cfg.Baseline, "baseline", "", "Compare every implementation against this one only")
	_ = cmd.MarkFlagRequired("corpus")
	_ = cmd.MarkFlagRequired("report")
	return cmd
}
