package corpus

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"urioracle/internal/grammar"
)

func TestPathCombinationsDepthTwoOverTwoSegments(t *testing.T) {
	paths, err := PathCombinations([]string{"x", "y"}, 2, 0)
	if err != nil {
		t.Fatalf("PathCombinations() error = %v", err)
	}
	if len(paths) != 4+16 {
		t.Fatalf("len(paths) = %d, want 20", len(paths))
	}
	wantHead := []string{".", "..", "x", "y", "./.", "./..", "./x", "./y", "../."}
	if !reflect.DeepEqual(paths[:len(wantHead)], wantHead) {
		t.Fatalf("paths head = %v, want %v", paths[:len(wantHead)], wantHead)
	}
	if paths[len(paths)-1] != "y/y" {
		t.Fatalf("last path = %q, want y/y", paths[len(paths)-1])
	}
	seen := make(map[string]bool)
	for _, p := range paths {
		if seen[p] {
			t.Fatalf("duplicate path %q", p)
		}
		seen[p] = true
	}
}

func TestPathCombinationsRejectsBadDepth(t *testing.T) {
	for _, depth := range []int{0, -1, MaxPathDepth + 1} {
		if _, err := PathCombinations([]string{"a"}, depth, 0); !errors.Is(err, ErrPathDepth) {
			t.Fatalf("depth %d: error = %v, want ErrPathDepth", depth, err)
		}
	}
}

func TestPathCombinationsEnforcesLimit(t *testing.T) {
	_, err := PathCombinations([]string{"a", "b", "c"}, 4, 100)
	if !errors.Is(err, ErrTooManyPaths) {
		t.Fatalf("error = %v, want ErrTooManyPaths", err)
	}
}

func TestPathLevelsDropsNoise(t *testing.T) {
	got := PathLevels([]string{"b", ".DS_Store", "a", "b", "", ".."})
	want := []string{".", "..", "a", "b"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("PathLevels() = %v, want %v", got, want)
	}
}

func TestPathSegmentsWalksTree(t *testing.T) {
	root := t.TempDir()
	for _, p := range []string{"a/b/index.html", "a/.DS_Store", "c.txt"} {
		full := filepath.Join(root, p)
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(full, []byte("x"), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	got, err := PathSegments(root)
	if err != nil {
		t.Fatalf("PathSegments() error = %v", err)
	}
	want := []string{"a", "b", "c.txt", "index.html"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("PathSegments() = %v, want %v", got, want)
	}
}

func TestPathSegmentsEmptyTree(t *testing.T) {
	if _, err := PathSegments(t.TempDir()); !errors.Is(err, ErrNoSegments) {
		t.Fatalf("error = %v, want ErrNoSegments", err)
	}
}

func TestBuildIsolatesOneComponentPerCase(t *testing.T) {
	cases, err := Build(Config{Seed: 3, Axes: grammar.Kinds()})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if len(cases) == 0 {
		t.Fatalf("Build() returned no cases")
	}

	var base *TestCase
	for i := range cases {
		if cases[i].Reason == "scheme baseline" {
			base = &cases[i]
			break
		}
	}
	if base == nil {
		t.Fatalf("no scheme baseline case")
	}

	set := grammar.Default()
	for _, tc := range cases {
		diff := Components(*base, tc)
		switch {
		case strings.HasSuffix(tc.Reason, " baseline"):
			if len(diff) != 0 {
				t.Fatalf("baseline case %d differs in %v", tc.Index, diff)
			}
		default:
			if len(diff) != 1 {
				t.Fatalf("case %d (%s) differs in %v, want exactly one component", tc.Index, tc.Reason, diff)
			}
			valid := set.Validate(diff[0], tc.Component(diff[0]))
			want := string(diff[0]) + " violation: "
			if valid {
				want = string(diff[0]) + " variant: "
			}
			if !strings.HasPrefix(tc.Reason, want) {
				t.Fatalf("case %d reason %q, want prefix %q", tc.Index, tc.Reason, want)
			}
		}
	}
}

func TestBuildIndicesAreStable(t *testing.T) {
	cfg := Config{
		Seed:  11,
		Axes:  []grammar.Kind{grammar.Query, grammar.Scheme},
		Paths: &PathConfig{Segments: []string{"x"}, Depth: 2},
	}
	first, err := Build(cfg)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	second, err := Build(cfg)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("Build() not reproducible")
	}
	for i, tc := range first {
		if tc.Index != i {
			t.Fatalf("case %d has index %d", i, tc.Index)
		}
	}
	if first[0].Reason != "scheme baseline" {
		t.Fatalf("first reason = %q, want scheme axis before query", first[0].Reason)
	}
}

func TestBuildWithSuppliedBaseline(t *testing.T) {
	base := FromURI("http://example.com/a/b?x=1")
	cases, err := Build(Config{Axes: []grammar.Kind{grammar.Path}, Baseline: &base})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if cases[0].URI() != "http://example.com/a/b?x=1" {
		t.Fatalf("baseline URI = %q", cases[0].URI())
	}
	for _, tc := range cases[1:] {
		if tc.Authority != "example.com" || tc.Query != "x=1" || tc.Scheme != "http" {
			t.Fatalf("case %d leaked into other components: %+v", tc.Index, tc)
		}
	}
}

func TestBuildRejectsInvalidBaseline(t *testing.T) {
	base := FromURI("1http://example.com/a")
	if _, err := Build(Config{Axes: []grammar.Kind{grammar.Path}, Baseline: &base}); err == nil {
		t.Fatalf("Build() expected error for invalid baseline scheme")
	}
}

func TestBuildKeepsGrammarValidMutants(t *testing.T) {
	base := FromURI("http://example.com/a/./b?x=1")
	cases, err := Build(Config{Axes: []grammar.Kind{grammar.Path, grammar.Query}, Baseline: &base})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	want := map[string]string{
		`path variant: "./" replaced with "../"`:           "/a/../b",
		"path variant: deep dot-dot after every separator": "/../../../../../../../../a/../../../../../../../../" + "./../../../../../../../../b",
		"path variant: deep dot-dot escape to /etc/passwd": "/a/./b/../../../../../../../../etc/passwd",
		`query variant: trailing "&"`:                      "x=1&",
	}
	for _, tc := range cases {
		value, ok := want[tc.Reason]
		if !ok {
			continue
		}
		got := tc.Path
		if strings.HasPrefix(tc.Reason, "query") {
			got = tc.Query
		}
		if got != value {
			t.Errorf("%s: got %q, want %q", tc.Reason, got, value)
		}
		delete(want, tc.Reason)
	}
	for reason := range want {
		t.Errorf("missing case %q", reason)
	}
}

func TestBuildViolationsOnlyDropsVariants(t *testing.T) {
	base := FromURI("http://example.com/a/./b?x=1")
	cases, err := Build(Config{Axes: []grammar.Kind{grammar.Path, grammar.Query}, Baseline: &base, ViolationsOnly: true})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	for _, tc := range cases {
		if strings.Contains(tc.Reason, " variant: ") {
			t.Fatalf("case %d %q kept with ViolationsOnly", tc.Index, tc.Reason)
		}
	}
}

func TestPathCorpusResolvesAgainstBase(t *testing.T) {
	cases, err := Build(Config{Paths: &PathConfig{Segments: []string{"x"}, Depth: 1, BaseURI: "http://localhost:8080/root/"}})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	got := make([]string, len(cases))
	for i, tc := range cases {
		got[i] = tc.RequestTarget(false)
		if tc.Authority != "localhost:8080" {
			t.Fatalf("authority = %q", tc.Authority)
		}
	}
	want := []string{"/root/.", "/root/..", "/root/x"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("targets = %v, want %v", got, want)
	}
}

func TestURIRoundTrip(t *testing.T) {
	tc := TestCase{Scheme: "http", Authority: "example.com:80", Path: "/a/b", Query: "x=1", Fragment: "f"}
	back := FromURI(tc.URI())
	if back.RequestTarget(true) != tc.RequestTarget(true) {
		t.Fatalf("round trip target %q != %q", back.RequestTarget(true), tc.RequestTarget(true))
	}
	if back.Authority != tc.Authority || back.Scheme != tc.Scheme {
		t.Fatalf("round trip = %+v", back)
	}
	if got := tc.RequestTarget(false); got != "/a/b?x=1" {
		t.Fatalf("RequestTarget(false) = %q", got)
	}
	if got := (TestCase{}).RequestTarget(false); got != "/" {
		t.Fatalf("empty RequestTarget = %q", got)
	}
}

func TestAbsoluteTargetKeepsMalformedScheme(t *testing.T) {
	tc := TestCase{Scheme: "1http", Authority: "example.com", Path: "/a", Query: "x=1", Fragment: "f"}
	if got := tc.AbsoluteTarget(false); got != "1http://example.com/a?x=1" {
		t.Fatalf("AbsoluteTarget(false) = %q", got)
	}
	if got := tc.AbsoluteTarget(true); got != "1http://example.com/a?x=1#f" {
		t.Fatalf("AbsoluteTarget(true) = %q", got)
	}
	if got := (TestCase{Authority: "h"}).AbsoluteTarget(false); got != "://h/" {
		t.Fatalf("empty scheme AbsoluteTarget = %q", got)
	}
}

func TestResolvePair(t *testing.T) {
	tests := []struct {
		base, rel string
		want      string
	}{
		{"http://h/a/b", "c", "/a/c"},
		{"http://h", "c", "/c"},
		{"http://h/a/", "../c?q", "/a/../c?q"},
		{"http://h/a", "/abs", "/abs"},
		{"http://h/a?x", "", "/a?x"},
		{"http://h/a?x", "?y", "/a?y"},
		{"http://h/a", "//other/p", "/p"},
	}
	for _, tt := range tests {
		got := resolvePair(TestCase{BaseURI: tt.base, RelativeURI: tt.rel})
		if got.RequestTarget(false) != tt.want {
			t.Errorf("resolvePair(%q, %q) target = %q, want %q", tt.base, tt.rel, got.RequestTarget(false), tt.want)
		}
	}
}

func TestSaveLoadAcceptsBothShapes(t *testing.T) {
	dir := t.TempDir()
	first := filepath.Join(dir, "components.json")
	second := filepath.Join(dir, "pairs.json")

	if err := Save(first, []TestCase{{Index: 0, Scheme: "http", Authority: "h", Path: "/a", Reason: "one"}}); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	pairs := `[
    {"index": 7, "base_uri": "http://h/dir/", "relative_uri": "../x", "reason": "pair"},
    {"uri": "http://h/u?q=1", "reason": "whole"}
]`
	if err := os.WriteFile(second, []byte(pairs), 0o644); err != nil {
		t.Fatalf("write pairs: %v", err)
	}

	var warnings []string
	cases, err := Load([]string{first, second}, func(msg string) { warnings = append(warnings, msg) })
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(cases) != 3 {
		t.Fatalf("len(cases) = %d, want 3", len(cases))
	}
	for i, tc := range cases {
		if tc.Index != i {
			t.Fatalf("case %d index = %d", i, tc.Index)
		}
	}
	if got := cases[1].RequestTarget(false); got != "/dir/../x" {
		t.Fatalf("pair target = %q", got)
	}
	if got := cases[2].RequestTarget(false); got != "/u?q=1" {
		t.Fatalf("uri target = %q", got)
	}
	if len(warnings) != 1 || !strings.Contains(warnings[0], "stored index 7") {
		t.Fatalf("warnings = %v", warnings)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load([]string{filepath.Join(t.TempDir(), "missing.json")}, nil); err == nil {
		t.Fatalf("Load() expected error for missing file")
	}
}

func TestExpandPatterns(t *testing.T) {
	dir := t.TempDir()
	for _, p := range []string{"a/one.json", "a/b/two.json", "three.txt"} {
		full := filepath.Join(dir, p)
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(full, []byte("[]"), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	got, err := ExpandPatterns([]string{filepath.Join(dir, "**", "*.json"), "literal.json"})
	if err != nil {
		t.Fatalf("ExpandPatterns() error = %v", err)
	}
	want := []string{filepath.Join(dir, "a", "b", "two.json"), filepath.Join(dir, "a", "one.json"), "literal.json"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("ExpandPatterns() = %v, want %v", got, want)
	}
	if _, err := ExpandPatterns([]string{filepath.Join(dir, "*.none")}); err == nil {
		t.Fatalf("expected error for empty match")
	}
}
