package corpus

import (
	"errors"
	"fmt"
	"io/fs"
	"math/rand"
	"path/filepath"
	"sort"
	"strings"

	"urioracle/internal/grammar"
	"urioracle/internal/mutate"
)

const (
	// MaxPathDepth is the hard ceiling on combinatorial path depth.
	MaxPathDepth = 6
	// DefaultMaxPaths caps the number of combinatorial paths in one corpus.
	DefaultMaxPaths = 200000
	// DefaultPathBase is the base URI paired with generated paths.
	DefaultPathBase = "http://localhost/"
)

var (
	ErrPathDepth    = errors.New("path depth out of range")
	ErrTooManyPaths = errors.New("path corpus exceeds limit")
	ErrNoSegments   = errors.New("no path segments")
)

// PathConfig describes a combinatorial path corpus.
type PathConfig struct {
	Segments []string
	Depth    int
	BaseURI  string
	MaxPaths int
}

// Config selects what Build emits. Axes lists the component kinds to mutate;
// an empty list disables the component-mutation corpus.
type Config struct {
	Seed     int64
	Axes     []grammar.Kind
	Grammars *grammar.Set
	Baseline *TestCase
	Paths    *PathConfig

	// ViolationsOnly drops catalog mutants that still satisfy their grammar,
	// such as "./" turned into "../" or a trailing "&". They are emitted with
	// a "<kind> variant:" reason otherwise.
	ViolationsOnly bool
}

// Build assembles the corpus: component mutations first (in canonical kind
// order), then combinatorial paths. Indices follow output order, so the same
// Config always yields the same index mapping.
func Build(cfg Config) ([]TestCase, error) {
	var out []TestCase

	if len(cfg.Axes) > 0 {
		cases, err := componentCorpus(cfg)
		if err != nil {
			return nil, err
		}
		out = append(out, cases...)
	}

	if cfg.Paths != nil {
		cases, err := pathCorpus(*cfg.Paths)
		if err != nil {
			return nil, err
		}
		out = append(out, cases...)
	}

	for i := range out {
		out[i].Index = i
	}
	return out, nil
}

// Baseline returns a valid test case drawn from the grammars with seed.
func Baseline(set *grammar.Set, seed int64) (TestCase, error) {
	if set == nil {
		set = grammar.Default()
	}
	rng := rand.New(rand.NewSource(seed))
	var tc TestCase
	for _, kind := range grammar.Kinds() {
		v, err := set.Generate(kind, rng)
		if err != nil {
			return TestCase{}, err
		}
		tc = tc.WithComponent(kind, v)
	}
	return tc, nil
}

func componentCorpus(cfg Config) ([]TestCase, error) {
	set := cfg.Grammars
	if set == nil {
		set = grammar.Default()
	}

	var base TestCase
	if cfg.Baseline != nil {
		base = *cfg.Baseline
		base.Index = 0
		base.Reason = ""
		base.BaseURI = ""
		base.RelativeURI = ""
		for _, kind := range grammar.Kinds() {
			if v := base.Component(kind); !set.Validate(kind, v) {
				return nil, fmt.Errorf("baseline %s %q does not satisfy its grammar", kind, v)
			}
		}
	} else {
		var err error
		base, err = Baseline(set, cfg.Seed)
		if err != nil {
			return nil, err
		}
	}

	axes := orderedAxes(cfg.Axes)
	var out []TestCase
	for _, kind := range axes {
		tc := base
		tc.Reason = fmt.Sprintf("%s baseline", kind)
		out = append(out, tc)

		for _, m := range mutate.Mutate(base.Component(kind), kind) {
			valid := set.Validate(kind, m.Value)
			if valid && cfg.ViolationsOnly {
				continue
			}
			tc := base.WithComponent(kind, m.Value)
			if valid {
				tc.Reason = fmt.Sprintf("%s variant: %s", kind, m.Description)
			} else {
				tc.Reason = fmt.Sprintf("%s violation: %s", kind, m.Description)
			}
			out = append(out, tc)
		}
	}
	return out, nil
}

// orderedAxes de-duplicates axes and puts them in canonical kind order.
func orderedAxes(axes []grammar.Kind) []grammar.Kind {
	want := make(map[grammar.Kind]bool, len(axes))
	for _, k := range axes {
		want[k] = true
	}
	var out []grammar.Kind
	for _, k := range grammar.Kinds() {
		if want[k] {
			out = append(out, k)
		}
	}
	return out
}

func pathCorpus(cfg PathConfig) ([]TestCase, error) {
	base := strings.TrimSpace(cfg.BaseURI)
	if base == "" {
		base = DefaultPathBase
	}
	maxPaths := cfg.MaxPaths
	if maxPaths <= 0 {
		maxPaths = DefaultMaxPaths
	}

	paths, err := PathCombinations(cfg.Segments, cfg.Depth, maxPaths)
	if err != nil {
		return nil, err
	}

	out := make([]TestCase, 0, len(paths))
	for _, p := range paths {
		tc := resolvePair(TestCase{BaseURI: base, RelativeURI: p})
		tc.Reason = fmt.Sprintf("path combination depth %d", strings.Count(p, "/")+1)
		out = append(out, tc)
	}
	return out, nil
}

// PathLevels returns the sorted, de-duplicated segment alphabet used for
// combinations, always including "." and "..".
func PathLevels(segments []string) []string {
	seen := map[string]bool{".": true, "..": true}
	levels := []string{".", ".."}
	for _, s := range segments {
		if s == "" || s == ".DS_Store" || seen[s] {
			continue
		}
		seen[s] = true
		levels = append(levels, s)
	}
	sort.Strings(levels)
	return levels
}

// PathCombinations enumerates every sequence of levels of length 1 through
// depth, shortest first and lexicographically within a length, joined by "/".
func PathCombinations(segments []string, depth, maxPaths int) ([]string, error) {
	if depth < 1 || depth > MaxPathDepth {
		return nil, fmt.Errorf("%w: %d (want 1..%d)", ErrPathDepth, depth, MaxPathDepth)
	}
	levels := PathLevels(segments)

	total := 0
	per := 1
	for d := 1; d <= depth; d++ {
		per *= len(levels)
		total += per
		if maxPaths > 0 && total > maxPaths {
			return nil, fmt.Errorf("%w: %d levels to depth %d exceeds %d paths", ErrTooManyPaths, len(levels), depth, maxPaths)
		}
	}

	out := make([]string, 0, total)
	for d := 1; d <= depth; d++ {
		idx := make([]int, d)
		parts := make([]string, d)
		for {
			for i, j := range idx {
				parts[i] = levels[j]
			}
			out = append(out, strings.Join(parts, "/"))

			pos := d - 1
			for pos >= 0 {
				idx[pos]++
				if idx[pos] < len(levels) {
					break
				}
				idx[pos] = 0
				pos--
			}
			if pos < 0 {
				break
			}
		}
	}
	return out, nil
}

// PathSegments lists the names of every file and directory below root.
func PathSegments(root string) ([]string, error) {
	seen := make(map[string]bool)
	var out []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == root {
			return nil
		}
		name := d.Name()
		if name == ".DS_Store" || seen[name] {
			return nil
		}
		seen[name] = true
		out = append(out, name)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", root, err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w under %s", ErrNoSegments, root)
	}
	sort.Strings(out)
	return out, nil
}
