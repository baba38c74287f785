// Package compare finds disagreements between implementations over the same
// corpus.
package compare

import (
	"fmt"
	"sort"

	"urioracle/internal/record"
)

type Axis string

const (
	AxisStatusCode   Axis = "status_code"
	AxisResolvedPath Axis = "resolved_path"
)

// Discrepancy is one disagreement between two implementations on one test
// case. ImplementationA sorts before ImplementationB, except in baseline mode
// where A is always the baseline. A nil value means the side had no status.
type Discrepancy struct {
	TestIndex       int    `json:"test_index"`
	ImplementationA string `json:"implementation_a"`
	ImplementationB string `json:"implementation_b"`
	Axis            Axis   `json:"axis"`
	ValueA          any    `json:"value_a"`
	ValueB          any    `json:"value_b"`
}

// Gap is a test case an implementation has no record for.
type Gap struct {
	TestIndex      int
	Implementation string
}

type Options struct {
	// Baseline, when set, compares every implementation against it alone
	// instead of against each other.
	Baseline string
	// WarnFn receives one message per gap.
	WarnFn func(string)
}

type Result struct {
	Implementations []string
	Indices         []int
	Discrepancies   []Discrepancy
	Gaps            []Gap
}

// Compare walks every test index seen in any result set, in ascending order,
// and compares each implementation pair holding a record for it. The output
// depends only on the input values.
func Compare(results map[string]map[int]record.Parsed, opts Options) (Result, error) {
	warnFn := opts.WarnFn
	if warnFn == nil {
		warnFn = func(string) {}
	}

	ids := make([]string, 0, len(results))
	for id := range results {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	pairs, err := pairsFor(ids, opts.Baseline)
	if err != nil {
		return Result{}, err
	}

	seen := make(map[int]struct{})
	for _, byIndex := range results {
		for idx := range byIndex {
			seen[idx] = struct{}{}
		}
	}
	indices := make([]int, 0, len(seen))
	for idx := range seen {
		indices = append(indices, idx)
	}
	sort.Ints(indices)

	res := Result{Implementations: ids, Indices: indices}
	for _, idx := range indices {
		for _, id := range ids {
			if _, ok := results[id][idx]; !ok {
				res.Gaps = append(res.Gaps, Gap{TestIndex: idx, Implementation: id})
				warnFn(fmt.Sprintf("Implementation %s has no record for test case %d", id, idx))
			}
		}
		for _, pr := range pairs {
			a, okA := results[pr[0]][idx]
			b, okB := results[pr[1]][idx]
			if !okA || !okB {
				continue
			}
			res.Discrepancies = append(res.Discrepancies, comparePair(idx, pr[0], pr[1], a, b)...)
		}
	}
	return res, nil
}

func pairsFor(ids []string, baseline string) ([][2]string, error) {
	var pairs [][2]string
	if baseline != "" {
		found := false
		for _, id := range ids {
			if id == baseline {
				found = true
				continue
			}
			pairs = append(pairs, [2]string{baseline, id})
		}
		if !found {
			return nil, fmt.Errorf("baseline implementation %q has no results", baseline)
		}
		return pairs, nil
	}
	for i := 0; i < len(ids); i++ {
		for j := i + 1; j < len(ids); j++ {
			pairs = append(pairs, [2]string{ids[i], ids[j]})
		}
	}
	return pairs, nil
}

func comparePair(idx int, idA, idB string, a, b record.Parsed) []Discrepancy {
	var out []Discrepancy
	if !sameStatus(a.StatusCode, b.StatusCode) {
		out = append(out, Discrepancy{
			TestIndex:       idx,
			ImplementationA: idA,
			ImplementationB: idB,
			Axis:            AxisStatusCode,
			ValueA:          intValue(a.StatusCode),
			ValueB:          intValue(b.StatusCode),
		})
	}

	// Paths are undefined, not equal, when either side errored.
	if !comparable(a) || !comparable(b) {
		return out
	}
	pathA, pathB := "", ""
	if a.ResolvedPath != nil {
		pathA = *a.ResolvedPath
	}
	if b.ResolvedPath != nil {
		pathB = *b.ResolvedPath
	}
	if pathA != pathB {
		out = append(out, Discrepancy{
			TestIndex:       idx,
			ImplementationA: idA,
			ImplementationB: idB,
			Axis:            AxisResolvedPath,
			ValueA:          pathA,
			ValueB:          pathB,
		})
	}
	return out
}

func comparable(p record.Parsed) bool {
	return p.StatusCode != nil && *p.StatusCode < 400
}

func sameStatus(a, b *int) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func intValue(p *int) any {
	if p == nil {
		return nil
	}
	return *p
}
