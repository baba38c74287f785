package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"urioracle/internal/backend"
	config "urioracle/internal/config"
	"urioracle/internal/corpus"
	"urioracle/internal/executor"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

var (
	newRunID         = uuid.NewString
	readinessTimeout = 30 * time.Second
	readinessPoll    = 500 * time.Millisecond

	newLifecycleFn = func(cfg backend.DockerConfig) backend.Lifecycle {
		return backend.NewDockerLifecycle(cfg)
	}
)

func newDispatchCommand(root *rootOptions) *cobra.Command {
	cfg := &config.Config{}
	cmd := &cobra.Command{
		Use:   "dispatch",
		Short: "Send a corpus to every implementation and record the outcomes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnvironment(cmd, root, func(v *viper.Viper) int {
				applyViper(cmd.Flags(), v, cfg)
				ctx, stop := signalContext(cmd.Context())
				defer stop()
				_, code := runDispatch(ctx, cmd.OutOrStdout(), cfg)
				return code
			})
		},
	}
	bindDispatchFlags(cmd.Flags(), cfg)
	_ = cmd.MarkFlagRequired("corpus")
	return cmd
}

func bindDispatchFlags(fs *pflag.FlagSet, cfg *config.Config) {
	fs.StringSliceVarP(&cfg.CorpusFiles, "corpus", "c", nil, "Corpus files or ** globs")
	fs.StringVar(&cfg.Run, "run", "", "Run id (default: a new UUID)")
	fs.StringVar(&cfg.OutDir, "out-dir", config.DefaultOutDir, "Directory receiving <implementation>/<run>/ records")
	fs.StringSliceVarP(&cfg.Targets, "target", "t", nil, "Implementation id or id=base-uri (repeatable)")
	fs.DurationVar(&cfg.Timeout, "timeout", 0, "Per-request timeout (default from URIORACLE_REQUEST_TIMEOUT or 10s)")
	fs.Float64Var(&cfg.RequestsPerSecond, "rps", 0, "Per-implementation request rate limit; 0 disables it")
	fs.IntVar(&cfg.MaxRedirects, "max-redirects", 0, "Redirects to follow before recording a redirect error (0 uses the default, negative disables following)")
	fs.BoolVar(&cfg.HTTP2, "http2", false, "Speak HTTP/2 (h2c on plain http)")
	fs.BoolVar(&cfg.Insecure, "insecure", false, "Skip TLS certificate verification")
	fs.BoolVar(&cfg.WithFragment, "with-fragment", false, "Keep the fragment in the request-target")
	fs.BoolVar(&cfg.AbsoluteForm, "absolute-form", false, "Send scheme://authority/path targets so scheme mutants reach the server")
	fs.BoolVar(&cfg.Resume, "resume", false, "Continue an existing run, skipping recorded test cases")
	fs.BoolVar(&cfg.SkipPreflight, "skip-preflight", false, "Dispatch without probing targets first")
	fs.BoolVar(&cfg.Containers, "containers", false, "Start each implementation's Docker image for the run")
	fs.BoolVar(&cfg.Pull, "pull", false, "Pull images before starting containers")
	fs.StringVar(&cfg.DockerHost, "docker-host", "", "Docker daemon address (default from DOCKER_HOST)")
}

// applyViper fills every setting whose flag was not given from the config
// file or URIORACLE_* environment.
func applyViper(fs *pflag.FlagSet, v *viper.Viper, cfg *config.Config) {
	use := func(name string) bool { return !fs.Changed(name) && v.IsSet(name) }

	if use("out-dir") {
		cfg.OutDir = v.GetString("out-dir")
	}
	if use("target") {
		cfg.Targets = v.GetStringSlice("target")
	}
	if use("max-redirects") {
		cfg.MaxRedirects = v.GetInt("max-redirects")
	}
	if use("http2") {
		cfg.HTTP2 = v.GetBool("http2")
	}
	if use("insecure") {
		cfg.Insecure = v.GetBool("insecure")
	}
	if use("with-fragment") {
		cfg.WithFragment = v.GetBool("with-fragment")
	}
	if use("absolute-form") {
		cfg.AbsoluteForm = v.GetBool("absolute-form")
	}
	if use("containers") {
		cfg.Containers = v.GetBool("containers")
	}
	if use("pull") {
		cfg.Pull = v.GetBool("pull")
	}
	if use("docker-host") {
		cfg.DockerHost = v.GetString("docker-host")
	}
	if fs.Lookup("baseline") != nil && use("baseline") {
		cfg.Baseline = v.GetString("baseline")
	}

	if !fs.Changed("timeout") {
		if v.IsSet("timeout") {
			cfg.Timeout = v.GetDuration("timeout")
		}
		if cfg.Timeout <= 0 {
			cfg.Timeout = config.ResolveRequestTimeout()
		}
	}
	if !fs.Changed("rps") {
		if v.IsSet("rps") {
			cfg.RequestsPerSecond = v.GetFloat64("rps")
		} else {
			cfg.RequestsPerSecond = config.ResolveRequestsPerSecond()
		}
	}
	if strings.TrimSpace(cfg.OutDir) == "" {
		cfg.OutDir = config.DefaultOutDir
	}
}

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

// runDispatch executes one dispatch and returns the ids of the
// implementations that received the corpus.
func runDispatch(ctx context.Context, out io.Writer, cfg *config.Config) ([]string, int) {
	files, err := corpus.ExpandPatterns(cfg.CorpusFiles)
	if err != nil {
		logError(err.Error())
		return nil, 1
	}
	cases, err := corpus.Load(files, logWarn)
	if err != nil {
		logError(fmt.Sprintf("load corpus: %v", err))
		return nil, 1
	}
	if len(cases) == 0 {
		logError("corpus is empty")
		return nil, 1
	}

	backends, err := config.ResolveTargets(cfg.Targets)
	if err != nil {
		logError(err.Error())
		return nil, 1
	}
	if len(backends) == 0 {
		logError(executor.ErrNoTargets.Error())
		return nil, 1
	}

	if strings.TrimSpace(cfg.Run) == "" {
		cfg.Run = newRunID()
	}
	fmt.Fprintf(out, "Run: %s\n", cfg.Run)
	logInfo(fmt.Sprintf("Run %s: %d test cases, %d implementations", cfg.Run, len(cases), len(backends)))

	if cfg.Containers {
		lc := newLifecycleFn(backend.DockerConfig{Host: cfg.DockerHost, Pull: cfg.Pull})
		if closer, ok := lc.(io.Closer); ok {
			defer closer.Close()
		}
		handles, err := backend.StartAll(ctx, lc, backends)
		if err != nil {
			logError(fmt.Sprintf("start containers: %v", err))
			return nil, 1
		}
		defer func() {
			if err := backend.StopAll(context.WithoutCancel(ctx), lc, handles); err != nil {
				logError(fmt.Sprintf("stop containers: %v", err))
			}
		}()
	}

	targets := make([]executor.Target, len(backends))
	for i, b := range backends {
		targets[i] = executor.Target{ID: b.Name, BaseURI: b.BaseURI()}
	}

	client := executor.NewHTTPClient(executor.ClientConfig{
		Timeout:            cfg.Timeout,
		MaxRedirects:       cfg.MaxRedirects,
		ForceHTTP2:         cfg.HTTP2,
		InsecureSkipVerify: cfg.Insecure,
	})
	defer client.CloseIdleConnections()

	if !cfg.SkipPreflight {
		wait := time.Duration(0)
		if cfg.Containers {
			wait = readinessTimeout
		}
		targets = awaitReachable(ctx, targets, wait)
		if len(targets) == 0 {
			logError(executor.ErrNoReachableTargets.Error())
			return nil, 1
		}
	}

	summaries, err := executor.Dispatch(ctx, cases, targets, executor.Options{
		OutDir:            cfg.OutDir,
		Run:               cfg.Run,
		Timeout:           cfg.Timeout,
		RequestsPerSecond: cfg.RequestsPerSecond,
		Resume:            cfg.Resume,
		WithFragment:      cfg.WithFragment,
		AbsoluteForm:      cfg.AbsoluteForm,
		Client:            client,
	})
	if len(summaries) > 0 {
		fmt.Fprintln(out, executor.FormatSummaries(summaries))
	}
	if errors.Is(ctx.Err(), context.Canceled) {
		logWarn("dispatch interrupted")
		return nil, 130
	}
	if err != nil {
		logError(fmt.Sprintf("dispatch: %v", err))
		return nil, 1
	}

	var dispatched []string
	for _, s := range summaries {
		if s.Err == nil {
			dispatched = append(dispatched, s.Implementation)
		}
	}
	sort.Strings(dispatched)
	return dispatched, 0
}

// awaitReachable repeats preflight until every target answers or wait
// elapses. It returns the targets that answered.
func awaitReachable(ctx context.Context, targets []executor.Target, wait time.Duration) []executor.Target {
	deadline := time.Now().Add(wait)
	for {
		reachable, failed := executor.Preflight(ctx, nil, targets, 0)
		if len(failed) == 0 || !time.Now().Before(deadline) || ctx.Err() != nil {
			return reachable
		}
		logDebug(fmt.Sprintf("%d of %d targets not ready yet", len(failed), len(targets)))
		select {
		case <-ctx.Done():
		case <-time.After(readinessPoll):
		}
	}
}
