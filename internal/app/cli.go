package app

import (
	"errors"
	"fmt"
	"io"
	"os"

	"urioracle/internal/backend"
	config "urioracle/internal/config"
	ilogger "urioracle/internal/logger"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	version = "0.3.0"
	exitFn  = os.Exit
)

type exitError struct {
	code int
}

func (e exitError) Error() string {
	return fmt.Sprintf("exit %d", e.code)
}

type rootOptions struct {
	ConfigFile string
	Verbose    bool
}

// Run is the program entrypoint for cmd/urioracle/main.go.
func Run() {
	exitFn(run(os.Args[1:]))
}

func run(args []string) int {
	cmd := newRootCommand()
	cmd.SetArgs(args)
	if err := cmd.Execute(); err != nil {
		var ee exitError
		if errors.As(err, &ee) {
			return ee.code
		}
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		return 1
	}
	return 0
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           ilogger.ToolName,
		Short:         "Differential testing of URI resolution across HTTP server implementations",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	cmd.CompletionOptions.DisableDefaultCmd = true

	fs := cmd.PersistentFlags()
	fs.StringVar(&opts.ConfigFile, "config", "", "Config file path (default: $HOME/.urioracle/config.*)")
	fs.BoolVarP(&opts.Verbose, "verbose", "V", false, "Mirror log entries to stderr")

	cmd.AddCommand(
		newGenerateCommand(opts),
		newPathsCommand(opts),
		newDispatchCommand(opts),
		newCompareCommand(opts),
		newRunCommand(opts),
		newVersionCommand(),
		newCleanupCommand(),
	)
	return cmd
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "%s version %s\n", ilogger.ToolName, version)
			return nil
		},
	}
}

func newCleanupCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Remove log files left by finished runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return asExit(runCleanupMode(cmd.OutOrStdout(), cmd.ErrOrStderr()))
		},
	}
}

// withEnvironment runs fn with a process logger installed and viper loaded.
func withEnvironment(cmd *cobra.Command, opts *rootOptions, fn func(v *viper.Viper) int) error {
	verbose := opts.Verbose
	if !cmd.Flags().Changed("verbose") {
		verbose = config.ParseBoolFlag(os.Getenv("URIORACLE_VERBOSE"), verbose)
	}
	return asExit(runWithLoggerAndCleanup(cmd.ErrOrStderr(), verbose, func() int {
		v, err := config.NewViper(opts.ConfigFile)
		if err != nil {
			logError(fmt.Sprintf("load config: %v", err))
			return 1
		}
		return fn(v)
	}))
}

func asExit(code int) error {
	if code == 0 {
		return nil
	}
	return exitError{code: code}
}

func runWithLoggerAndCleanup(stderr io.Writer, verbose bool, fn func() int) (exitCode int) {
	logger, err := ilogger.NewLogger()
	if err != nil {
		fmt.Fprintf(stderr, "ERROR: failed to initialize logger: %v\n", err)
		return 1
	}
	if verbose {
		logger.WithConsole(stderr, zerolog.DebugLevel)
	}
	ilogger.SetLogger(logger)
	backend.SetLogFuncs(ilogger.LogWarn, ilogger.LogError, ilogger.LogDebug)

	defer func() {
		backend.SetLogFuncs(nil, nil, nil)
		logger.Flush()
		if err := ilogger.CloseLogger(); err != nil {
			fmt.Fprintf(stderr, "ERROR: failed to close logger: %v\n", err)
		}
		if exitCode != 0 {
			if entries := logger.ExtractRecentErrors(10); len(entries) > 0 {
				fmt.Fprintln(stderr, "\n=== Recent Errors ===")
				for _, entry := range entries {
					fmt.Fprintln(stderr, entry)
				}
			}
			fmt.Fprintf(stderr, "Log file: %s\n", logger.Path())
			return
		}
		_ = logger.RemoveLogFile()
	}()

	scheduleStartupCleanup()
	return fn()
}

func logDebug(msg string) { ilogger.LogDebug(msg) }

func logInfo(msg string) { ilogger.LogInfo(msg) }

func logWarn(msg string) { ilogger.LogWarn(msg) }

func logError(msg string) { ilogger.LogError(msg) }
