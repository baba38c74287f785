package logger

import (
	"errors"
	"fmt"
	"hash/fnv"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

const (
	maxErrorEntries = 100
	pidReuseMaxAge  = 7 * 24 * time.Hour
)

var (
	processRunningCheck = isProcessRunning
	processStartTimeFn  = getProcessStartTime
	removeLogFileFn     = os.Remove
	globLogFiles        = filepath.Glob
	fileStatFn          = os.Lstat
	evalSymlinksFn      = filepath.EvalSymlinks
)

// Logger writes leveled JSON lines to a per-process file in the temp
// directory and keeps the most recent warnings and errors in memory.
type Logger struct {
	path    string
	file    *os.File
	zl      zerolog.Logger
	console *zerolog.Logger

	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error

	mu           sync.Mutex
	errorEntries []string
}

// CleanupStats reports what CleanupOldLogs did.
type CleanupStats struct {
	Scanned      int
	Deleted      int
	Kept         int
	Errors       int
	DeletedFiles []string
	KeptFiles    []string
}

func NewLogger() (*Logger, error) { return NewLoggerWithSuffix("") }

// NewLoggerWithSuffix creates $TMPDIR/urioracle-<pid>[-suffix].log.
func NewLoggerWithSuffix(suffix string) (*Logger, error) {
	name := fmt.Sprintf("%s-%d", PrimaryLogPrefix(), os.Getpid())
	if suffix != "" {
		name += "-" + SanitizeLogSuffix(suffix)
	}
	path := filepath.Join(os.TempDir(), name+".log")

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}

	zl := zerolog.New(zerolog.SyncWriter(f)).
		Level(zerolog.DebugLevel).
		With().Timestamp().Int("pid", os.Getpid()).Logger()
	return &Logger{path: path, file: f, zl: zl}, nil
}

// WithConsole mirrors entries at or above level to w in human-readable form.
func (l *Logger) WithConsole(w io.Writer, level zerolog.Level) *Logger {
	if l == nil || w == nil {
		return l
	}
	c := zerolog.New(zerolog.ConsoleWriter{Out: w, TimeFormat: time.TimeOnly}).
		Level(level).With().Timestamp().Logger()
	l.console = &c
	return l
}

func (l *Logger) Path() string {
	if l == nil {
		return ""
	}
	return l.path
}

func (l *Logger) Debug(msg string) { l.log(zerolog.DebugLevel, msg) }

func (l *Logger) Info(msg string) { l.log(zerolog.InfoLevel, msg) }

func (l *Logger) Warn(msg string) { l.log(zerolog.WarnLevel, msg) }

func (l *Logger) Error(msg string) { l.log(zerolog.ErrorLevel, msg) }

func (l *Logger) log(level zerolog.Level, msg string) {
	if l == nil || l.closed.Load() {
		return
	}
	if level >= zerolog.WarnLevel {
		l.mu.Lock()
		if len(l.errorEntries) >= maxErrorEntries {
			l.errorEntries = append(l.errorEntries[:0], l.errorEntries[1:]...)
		}
		l.errorEntries = append(l.errorEntries, msg)
		l.mu.Unlock()
	}
	l.zl.WithLevel(level).Msg(msg)
	if l.console != nil {
		l.console.WithLevel(level).Msg(msg)
	}
}

// Flush commits written entries to disk.
func (l *Logger) Flush() {
	if l == nil || l.file == nil || l.closed.Load() {
		return
	}
	_ = l.file.Sync()
}

// Close flushes and closes the file. The file itself is kept for inspection.
func (l *Logger) Close() error {
	if l == nil || l.file == nil {
		return nil
	}
	l.closeOnce.Do(func() {
		l.closed.Store(true)
		_ = l.file.Sync()
		l.closeErr = l.file.Close()
	})
	return l.closeErr
}

func (l *Logger) RemoveLogFile() error {
	if l == nil || l.path == "" {
		return nil
	}
	if err := os.Remove(l.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// ExtractRecentErrors returns up to n of the latest warning and error
// messages, oldest first.
func (l *Logger) ExtractRecentErrors(n int) []string {
	if l == nil || n <= 0 {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.errorEntries) == 0 {
		return nil
	}
	start := 0
	if len(l.errorEntries) > n {
		start = len(l.errorEntries) - n
	}
	out := make([]string, len(l.errorEntries)-start)
	copy(out, l.errorEntries[start:])
	return out
}

// SanitizeLogSuffix maps raw onto a file-name-safe suffix. Inputs that need
// rewriting get a short hash so distinct inputs stay distinct.
func SanitizeLogSuffix(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			b.WriteRune(r)
		default:
			b.WriteByte('-')
		}
	}
	cleaned := strings.Trim(b.String(), "-.")
	if cleaned == raw && cleaned != "" {
		return cleaned
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(raw))
	sum := strconv.FormatUint(uint64(h.Sum32()), 16)
	if cleaned == "" {
		return "log-" + sum
	}
	return cleaned + "-" + sum
}

// CleanupOldLogs removes log files left behind by processes that are no
// longer running. Files that look unsafe to delete are kept.
func CleanupOldLogs() (CleanupStats, error) { return cleanupOldLogs() }

func cleanupOldLogs() (CleanupStats, error) {
	var stats CleanupStats
	tempDir := os.TempDir()

	var errs []error
	for _, prefix := range LogPrefixes() {
		matches, err := globLogFiles(filepath.Join(tempDir, prefix+"-*.log"))
		if err != nil {
			return stats, fmt.Errorf("list log files: %w", err)
		}
		for _, path := range matches {
			stats.Scanned++
			if unsafe, _ := isUnsafeFile(path, tempDir); unsafe {
				stats.keep(path)
				continue
			}
			pid, ok := parsePIDFromLog(path)
			if !ok {
				stats.keep(path)
				continue
			}
			if processRunningCheck(pid) && !isPIDReused(path, pid) {
				stats.keep(path)
				continue
			}
			if err := removeLogFileFn(path); err != nil {
				stats.Errors++
				errs = append(errs, fmt.Errorf("remove %s: %w", path, err))
				continue
			}
			stats.Deleted++
			stats.DeletedFiles = append(stats.DeletedFiles, path)
		}
	}
	return stats, errors.Join(errs...)
}

func (s *CleanupStats) keep(path string) {
	s.Kept++
	s.KeptFiles = append(s.KeptFiles, path)
}

// isPIDReused reports whether pid now belongs to a process started after the
// log file was last written.
func isPIDReused(path string, pid int) bool {
	info, err := fileStatFn(path)
	if err != nil {
		return false
	}
	start := processStartTimeFn(pid)
	if start.IsZero() {
		return time.Since(info.ModTime()) > pidReuseMaxAge
	}
	return start.After(info.ModTime())
}

func isUnsafeFile(path, tempDir string) (bool, string) {
	info, err := fileStatFn(path)
	if err != nil {
		return true, fmt.Sprintf("stat failed: %v", err)
	}
	if info.Mode()&os.ModeSymlink != 0 {
		return true, "refusing to delete symlink"
	}

	resolved, err := evalSymlinksFn(path)
	if err != nil {
		return true, fmt.Sprintf("path resolution failed: %v", err)
	}
	base, err := filepath.EvalSymlinks(tempDir)
	if err != nil {
		if base, err = filepath.Abs(tempDir); err != nil {
			return true, fmt.Sprintf("temp dir resolution failed: %v", err)
		}
	}
	rel, err := filepath.Rel(base, resolved)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return true, "file is outside tempDir"
	}
	return false, ""
}

func parsePIDFromLog(path string) (int, bool) {
	name := filepath.Base(path)
	for _, prefix := range LogPrefixes() {
		if !strings.HasPrefix(name, prefix+"-") || !strings.HasSuffix(name, ".log") {
			continue
		}
		core := strings.TrimSuffix(strings.TrimPrefix(name, prefix+"-"), ".log")
		pidPart, _, _ := strings.Cut(core, "-")
		if pidPart == "" {
			return 0, false
		}
		pid, err := strconv.Atoi(pidPart)
		if err != nil || pid <= 0 {
			return 0, false
		}
		return pid, true
	}
	return 0, false
}
