package record

import (
	"path/filepath"
	"strconv"
)

// RunDir is the directory holding one implementation's records for a run.
func RunDir(outDir, implementation, run string) string {
	return filepath.Join(outDir, implementation, run)
}

// FileName is the record file name for a test index.
func FileName(index int) string {
	return strconv.Itoa(index) + ".json"
}
