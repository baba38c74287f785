package report

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"urioracle/internal/compare"
	"urioracle/internal/utils"

	"github.com/goccy/go-json"
)

// WriteError means the discrepancy report could not be persisted. It is
// fatal to a run.
type WriteError struct {
	Path string
	Err  error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("write report %s: %v", e.Path, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// Encode renders discrepancies as an indented JSON array. An empty input
// renders as [] rather than null.
func Encode(ds []compare.Discrepancy) ([]byte, error) {
	if ds == nil {
		ds = []compare.Discrepancy{}
	}
	data, err := json.MarshalIndent(ds, "", "    ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// Write persists the report atomically at path, creating parent directories.
func Write(path string, ds []compare.Discrepancy) error {
	data, err := Encode(ds)
	if err != nil {
		return &WriteError{Path: path, Err: err}
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return &WriteError{Path: path, Err: err}
		}
	}
	if err := utils.WriteFileAtomic(path, data, 0o644); err != nil {
		return &WriteError{Path: path, Err: err}
	}
	return nil
}

// Summarize renders a short human-readable digest of a comparison.
func Summarize(res compare.Result) string {
	var sb strings.Builder
	sb.WriteString("=== Comparison Summary ===\n")
	fmt.Fprintf(&sb, "%d implementations | %d test cases | %d discrepancies | %d gaps\n",
		len(res.Implementations), len(res.Indices), len(res.Discrepancies), len(res.Gaps))

	type pairKey struct{ a, b string }
	type counts struct{ status, path int }
	byPair := make(map[pairKey]*counts)
	var keys []pairKey
	for _, d := range res.Discrepancies {
		k := pairKey{d.ImplementationA, d.ImplementationB}
		c, ok := byPair[k]
		if !ok {
			c = &counts{}
			byPair[k] = c
			keys = append(keys, k)
		}
		if d.Axis == compare.AxisStatusCode {
			c.status++
		} else {
			c.path++
		}
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].a != keys[j].a {
			return keys[i].a < keys[j].a
		}
		return keys[i].b < keys[j].b
	})
	for _, k := range keys {
		c := byPair[k]
		fmt.Fprintf(&sb, "  %s vs %s: %d status_code, %d resolved_path\n", k.a, k.b, c.status, c.path)
	}

	if len(res.Gaps) > 0 {
		missing := make(map[string]int)
		for _, g := range res.Gaps {
			missing[g.Implementation]++
		}
		ids := make([]string, 0, len(missing))
		for id := range missing {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		sb.WriteString("Coverage gaps:\n")
		for _, id := range ids {
			fmt.Fprintf(&sb, "  %s: %d missing records\n", id, missing[id])
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}
