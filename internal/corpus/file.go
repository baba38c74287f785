package corpus

import (
	"fmt"
	"os"
	"sort"

	"urioracle/internal/utils"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/goccy/go-json"
)

// entry is the on-disk shape. A corpus file may hold component tuples,
// base/relative pairs or whole URIs; Load folds all three into TestCase.
type entry struct {
	Index       *int   `json:"index,omitempty"`
	URI         string `json:"uri,omitempty"`
	Scheme      string `json:"scheme,omitempty"`
	Authority   string `json:"authority,omitempty"`
	Path        string `json:"path,omitempty"`
	Query       string `json:"query,omitempty"`
	Fragment    string `json:"fragment,omitempty"`
	BaseURI     string `json:"base_uri,omitempty"`
	RelativeURI string `json:"relative_uri,omitempty"`
	Reason      string `json:"reason"`
}

func (e entry) testCase() TestCase {
	tc := TestCase{
		Scheme:      e.Scheme,
		Authority:   e.Authority,
		Path:        e.Path,
		Query:       e.Query,
		Fragment:    e.Fragment,
		BaseURI:     e.BaseURI,
		RelativeURI: e.RelativeURI,
	}
	switch {
	case e.URI != "":
		tc = FromURI(e.URI)
	case e.RelativeURI != "" || (e.BaseURI != "" && e.Path == ""):
		tc = resolvePair(tc)
	}
	tc.Reason = e.Reason
	return tc
}

// Save writes cases as an indented JSON array, atomically.
func Save(path string, cases []TestCase) error {
	if cases == nil {
		cases = []TestCase{}
	}
	data, err := json.MarshalIndent(cases, "", "    ")
	if err != nil {
		return fmt.Errorf("encode corpus: %w", err)
	}
	data = append(data, '\n')
	if err := utils.WriteFileAtomic(path, data, 0o644); err != nil {
		return fmt.Errorf("write corpus %s: %w", path, err)
	}
	return nil
}

// Load reads corpus files in order and renumbers their cases by position in
// the concatenation. A stored index that disagrees is reported through
// warnFn and replaced.
func Load(paths []string, warnFn func(string)) ([]TestCase, error) {
	if warnFn == nil {
		warnFn = func(string) {}
	}

	var out []TestCase
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read corpus: %w", err)
		}
		var entries []entry
		if err := json.Unmarshal(data, &entries); err != nil {
			return nil, fmt.Errorf("parse corpus %s: %w", path, err)
		}
		for i, e := range entries {
			tc := e.testCase()
			tc.Index = len(out)
			if e.Index != nil && *e.Index != tc.Index {
				warnFn(fmt.Sprintf("corpus %s entry %d: stored index %d replaced by %d", path, i, *e.Index, tc.Index))
			}
			out = append(out, tc)
		}
	}
	return out, nil
}

// ExpandPatterns resolves doublestar globs. Arguments without glob syntax
// pass through unchanged so a missing file is reported by Load.
func ExpandPatterns(patterns []string) ([]string, error) {
	seen := make(map[string]bool)
	var out []string
	for _, p := range patterns {
		if !hasMeta(p) {
			if !seen[p] {
				seen[p] = true
				out = append(out, p)
			}
			continue
		}
		matches, err := doublestar.FilepathGlob(p)
		if err != nil {
			return nil, fmt.Errorf("expand %q: %w", p, err)
		}
		if len(matches) == 0 {
			return nil, fmt.Errorf("pattern %q matched no corpus files", p)
		}
		sort.Strings(matches)
		for _, m := range matches {
			if !seen[m] {
				seen[m] = true
				out = append(out, m)
			}
		}
	}
	return out, nil
}

func hasMeta(p string) bool {
	for i := 0; i < len(p); i++ {
		switch p[i] {
		case '*', '?', '[', '{':
			return true
		}
	}
	return false
}
