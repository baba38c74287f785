package parser

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"

	"urioracle/internal/record"
)

var recordFileName = regexp.MustCompile(`^(\d+)\.json$`)

// LoadRun parses every <index>.json record in dir. The file name is the join
// key; a "Test case" line that disagrees with it is reported and overridden.
func LoadRun(dir string, warnFn func(string)) (map[int]record.Parsed, error) {
	if warnFn == nil {
		warnFn = func(string) {}
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read run directory: %w", err)
	}

	out := make(map[int]record.Parsed, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		m := recordFileName.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		index, err := strconv.Atoi(m[1])
		if err != nil {
			warnFn(fmt.Sprintf("Skipping record %s: %v", e.Name(), err))
			continue
		}

		path := filepath.Join(dir, e.Name())
		f, err := os.Open(path)
		if err != nil {
			warnFn(fmt.Sprintf("Skipping record %s: %v", path, err))
			continue
		}
		p, err := Parse(f, func(msg string) { warnFn(path + ": " + msg) })
		_ = f.Close()
		if err != nil {
			warnFn(fmt.Sprintf("Skipping record %s: %v", path, err))
			continue
		}
		if p.TestIndex != NoIndex && p.TestIndex != index {
			warnFn(fmt.Sprintf("%s: test case line says %d, file name says %d", path, p.TestIndex, index))
		}
		p.TestIndex = index
		out[index] = p
	}
	return out, nil
}

// LoadRuns loads one run for each implementation under outDir. With no
// implementations given, every directory under outDir holding the run is
// used. An implementation without a run directory contributes an empty set so
// its absence shows up as coverage gaps.
func LoadRuns(outDir, run string, implementations []string, warnFn func(string)) (map[string]map[int]record.Parsed, error) {
	if warnFn == nil {
		warnFn = func(string) {}
	}
	if len(implementations) == 0 {
		entries, err := os.ReadDir(outDir)
		if err != nil {
			return nil, fmt.Errorf("read output directory: %w", err)
		}
		for _, e := range entries {
			if !e.IsDir() {
				continue
			}
			if info, err := os.Stat(record.RunDir(outDir, e.Name(), run)); err == nil && info.IsDir() {
				implementations = append(implementations, e.Name())
			}
		}
		sort.Strings(implementations)
	}
	if len(implementations) == 0 {
		return nil, fmt.Errorf("no records for run %q under %s", run, outDir)
	}

	out := make(map[string]map[int]record.Parsed, len(implementations))
	for _, impl := range implementations {
		results, err := LoadRun(record.RunDir(outDir, impl, run), warnFn)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				warnFn(fmt.Sprintf("No records for implementation %s in run %s", impl, run))
				out[impl] = map[int]record.Parsed{}
				continue
			}
			return nil, err
		}
		out[impl] = results
	}
	return out, nil
}
