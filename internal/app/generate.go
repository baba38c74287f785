package app

import (
	"fmt"
	"strings"

	"urioracle/internal/corpus"
	"urioracle/internal/grammar"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

type generateOptions struct {
	Out            string
	Seed           int64
	Axes           []string
	Grammar        string
	Baseline       string
	ViolationsOnly bool
}

func newGenerateCommand(root *rootOptions) *cobra.Command {
	opts := &generateOptions{}
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate a component-mutation corpus",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnvironment(cmd, root, func(v *viper.Viper) int {
				if !cmd.Flags().Changed("seed") && v.IsSet("seed") {
					opts.Seed = v.GetInt64("seed")
				}
				if !cmd.Flags().Changed("grammar") && v.IsSet("grammar") {
					opts.Grammar = v.GetString("grammar")
				}
				return runGenerate(cmd, opts)
			})
		},
	}

	fs := cmd.Flags()
	fs.StringVarP(&opts.Out, "out", "o", "", "Corpus file to write (required)")
	fs.Int64Var(&opts.Seed, "seed", 1, "Random seed; the same seed yields the same corpus")
	fs.StringSliceVar(&opts.Axes, "axes", kindNames(), "Component kinds to mutate")
	fs.StringVar(&opts.Grammar, "grammar", "", "YAML grammar table overriding the built-in grammars")
	fs.StringVar(&opts.Baseline, "baseline", "", "Absolute URI to mutate instead of a generated one")
	fs.BoolVar(&opts.ViolationsOnly, "violations-only", false, "Drop mutants that still match their grammar")
	_ = cmd.MarkFlagRequired("out")
	return cmd
}

func runGenerate(cmd *cobra.Command, opts *generateOptions) int {
	set, err := loadGrammars(opts.Grammar)
	if err != nil {
		logError(err.Error())
		return 1
	}

	axes := make([]grammar.Kind, 0, len(opts.Axes))
	for _, raw := range opts.Axes {
		if strings.TrimSpace(raw) == "" {
			continue
		}
		kind, err := grammar.ParseKind(raw)
		if err != nil {
			logError(fmt.Sprintf("--axes: %v", err))
			return 1
		}
		axes = append(axes, kind)
	}
	if len(axes) == 0 {
		logError("--axes: at least one component kind is required")
		return 1
	}

	cfg := corpus.Config{Seed: opts.Seed, Axes: axes, Grammars: set, ViolationsOnly: opts.ViolationsOnly}
	if raw := strings.TrimSpace(opts.Baseline); raw != "" {
		base := corpus.FromURI(raw)
		cfg.Baseline = &base
	}

	cases, err := corpus.Build(cfg)
	if err != nil {
		logError(fmt.Sprintf("build corpus: %v", err))
		return 1
	}
	return saveCorpus(cmd, opts.Out, cases)
}

type pathsOptions struct {
	Out      string
	Root     string
	Segments []string
	Depth    int
	BaseURI  string
	MaxPaths int
}

func newPathsCommand(root *rootOptions) *cobra.Command {
	opts := &pathsOptions{}
	cmd := &cobra.Command{
		Use:   "paths",
		Short: "Generate a combinatorial path corpus",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnvironment(cmd, root, func(v *viper.Viper) int {
				return runPaths(cmd, opts)
			})
		},
	}

	fs := cmd.Flags()
	fs.StringVarP(&opts.Out, "out", "o", "", "Corpus file to write (required)")
	fs.StringVar(&opts.Root, "root", "", "Directory whose file and directory names become path segments")
	fs.StringSliceVar(&opts.Segments, "segments", nil, "Path segments to combine")
	fs.IntVar(&opts.Depth, "depth", 2, fmt.Sprintf("Maximum path depth (1..%d)", corpus.MaxPathDepth))
	fs.StringVar(&opts.BaseURI, "base-uri", corpus.DefaultPathBase, "Base URI each path resolves against")
	fs.IntVar(&opts.MaxPaths, "max-paths", corpus.DefaultMaxPaths, "Refuse to emit more than this many paths")
	_ = cmd.MarkFlagRequired("out")
	cmd.MarkFlagsMutuallyExclusive("root", "segments")
	return cmd
}

func runPaths(cmd *cobra.Command, opts *pathsOptions) int {
	segments := opts.Segments
	if opts.Root != "" {
		found, err := corpus.PathSegments(opts.Root)
		if err != nil {
			logError(fmt.Sprintf("scan %s: %v", opts.Root, err))
			return 1
		}
		segments = found
	}

	cases, err := corpus.Build(corpus.Config{Paths: &corpus.PathConfig{
		Segments: segments,
		Depth:    opts.Depth,
		BaseURI:  opts.BaseURI,
		MaxPaths: opts.MaxPaths,
	}})
	if err != nil {
		logError(fmt.Sprintf("build path corpus: %v", err))
		return 1
	}
	return saveCorpus(cmd, opts.Out, cases)
}

func saveCorpus(cmd *cobra.Command, path string, cases []corpus.TestCase) int {
	if err := corpus.Save(path, cases); err != nil {
		logError(fmt.Sprintf("write corpus: %v", err))
		return 1
	}
	logInfo(fmt.Sprintf("Wrote %d test cases to %s", len(cases), path))
	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d test cases to %s\n", len(cases), path)
	return 0
}

func loadGrammars(path string) (*grammar.Set, error) {
	if strings.TrimSpace(path) == "" {
		return grammar.Default(), nil
	}
	table, err := grammar.LoadTable(path)
	if err != nil {
		return nil, fmt.Errorf("load grammar table: %w", err)
	}
	set, err := grammar.NewSet(table)
	if err != nil {
		return nil, fmt.Errorf("grammar table %s: %w", path, err)
	}
	return set, nil
}

func kindNames() []string {
	kinds := grammar.Kinds()
	out := make([]string, len(kinds))
	for i, k := range kinds {
		out[i] = string(k)
	}
	return out
}
