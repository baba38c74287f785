package executor

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"urioracle/internal/record"
	"urioracle/internal/utils"

	"github.com/gofrs/flock"
)

var (
	// ErrRunLocked means another process is writing the same run.
	ErrRunLocked = errors.New("run is locked by another process")
	// ErrRunExists means the run already holds records and resume was not requested.
	ErrRunExists = errors.New("run already has records")
)

var recordName = regexp.MustCompile(`^\d+\.json$`)

// namespace is one implementation's record directory for one run. Only its
// owning worker writes to it.
type namespace struct {
	dir  string
	lock *flock.Flock
}

func openNamespace(outDir, implementation, run string, resume bool) (*namespace, error) {
	dir := record.RunDir(outDir, implementation, run)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create run directory: %w", err)
	}

	lock := flock.New(filepath.Join(filepath.Dir(dir), run+".lock"))
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("lock run %s/%s: %w", implementation, run, err)
	}
	if !ok {
		return nil, fmt.Errorf("%s/%s: %w", implementation, run, ErrRunLocked)
	}

	if !resume {
		entries, err := os.ReadDir(dir)
		if err != nil {
			_ = lock.Close()
			return nil, fmt.Errorf("read run directory: %w", err)
		}
		for _, e := range entries {
			if recordName.MatchString(e.Name()) {
				_ = lock.Close()
				return nil, fmt.Errorf("%s: %w", dir, ErrRunExists)
			}
		}
	}
	return &namespace{dir: dir, lock: lock}, nil
}

func (n *namespace) path(index int) string {
	return filepath.Join(n.dir, record.FileName(index))
}

func (n *namespace) has(index int) bool {
	_, err := os.Lstat(n.path(index))
	return err == nil
}

// write stores rec once. Existing records are never replaced.
func (n *namespace) write(rec record.Record) error {
	return utils.WriteFileOnce(n.path(rec.TestIndex), rec.Encode(), 0o644)
}

func (n *namespace) close() error {
	if n == nil || n.lock == nil {
		return nil
	}
	return n.lock.Close()
}
