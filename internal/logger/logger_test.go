package logger

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestLoggerCreatesFileWithPID(t *testing.T) {
	tempDir := setTempDirEnv(t, t.TempDir())

	logger, err := NewLogger()
	if err != nil {
		t.Fatalf("NewLogger() error = %v", err)
	}
	defer logger.Close()

	expectedPath := filepath.Join(tempDir, fmt.Sprintf("urioracle-%d.log", os.Getpid()))
	if logger.Path() != expectedPath {
		t.Fatalf("logger path = %s, want %s", logger.Path(), expectedPath)
	}
	if _, err := os.Stat(expectedPath); err != nil {
		t.Fatalf("log file not created: %v", err)
	}
}

func TestLoggerWritesLevels(t *testing.T) {
	setTempDirEnv(t, t.TempDir())

	logger, err := NewLogger()
	if err != nil {
		t.Fatalf("NewLogger() error = %v", err)
	}
	defer logger.Close()

	logger.Info("info message")
	logger.Warn("warn message")
	logger.Debug("debug message")
	logger.Error("error message")
	logger.Flush()

	data, err := os.ReadFile(logger.Path())
	if err != nil {
		t.Fatalf("failed to read log file: %v", err)
	}
	content := string(data)
	for _, c := range []string{"info message", "warn message", "debug message", "error message", `"level":"warn"`} {
		if !strings.Contains(content, c) {
			t.Fatalf("log file missing %q, content: %s", c, content)
		}
	}
}

func TestLoggerConsoleMirror(t *testing.T) {
	setTempDirEnv(t, t.TempDir())

	var console bytes.Buffer
	logger, err := NewLogger()
	if err != nil {
		t.Fatalf("NewLogger() error = %v", err)
	}
	defer logger.Close()
	logger.WithConsole(&console, zerolog.WarnLevel)

	logger.Info("quiet")
	logger.Warn("loud")

	out := console.String()
	if strings.Contains(out, "quiet") || !strings.Contains(out, "loud") {
		t.Fatalf("console output = %q", out)
	}
}

func TestLoggerCloseKeepsFile(t *testing.T) {
	setTempDirEnv(t, t.TempDir())

	logger, err := NewLogger()
	if err != nil {
		t.Fatalf("NewLogger() error = %v", err)
	}
	logger.Info("before close")
	if err := logger.Close(); err != nil {
		t.Fatalf("Close() returned error: %v", err)
	}
	if err := logger.Close(); err != nil {
		t.Fatalf("second Close() returned error: %v", err)
	}
	logger.Info("after close is dropped")

	data, err := os.ReadFile(logger.Path())
	if err != nil {
		t.Fatalf("log file should exist after Close: %v", err)
	}
	if strings.Contains(string(data), "after close") {
		t.Fatalf("entry written after Close: %s", data)
	}
}

func TestLoggerConcurrentWritesSafe(t *testing.T) {
	setTempDirEnv(t, t.TempDir())

	logger, err := NewLogger()
	if err != nil {
		t.Fatalf("NewLogger() error = %v", err)
	}
	defer logger.Close()

	const goroutines = 10
	const perGoroutine = 50

	var wg sync.WaitGroup
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func(id int) {
			defer wg.Done()
			for j := 0; j < perGoroutine; j++ {
				logger.Debug(fmt.Sprintf("g%d-%d", id, j))
			}
		}(i)
	}
	wg.Wait()
	logger.Flush()

	f, err := os.Open(logger.Path())
	if err != nil {
		t.Fatalf("failed to open log file: %v", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	count := 0
	for scanner.Scan() {
		count++
	}
	if count != goroutines*perGoroutine {
		t.Fatalf("unexpected log line count: got %d, want %d", count, goroutines*perGoroutine)
	}
}

func TestLoggerCleanupOldLogsRemovesOrphans(t *testing.T) {
	tempDir := setTempDirEnv(t, t.TempDir())

	orphan1 := createTempLog(t, tempDir, "urioracle-111.log")
	orphan2 := createTempLog(t, tempDir, "urioracle-222-dispatch.log")
	running := createTempLog(t, tempDir, "urioracle-333.log")
	untouched := createTempLog(t, tempDir, "unrelated.log")

	stubProcessRunning(t, func(pid int) bool { return pid == 333 })
	stubProcessStartTime(t, func(pid int) time.Time {
		if pid == 333 {
			return time.Now().Add(-time.Hour)
		}
		return time.Time{}
	})

	stats, err := cleanupOldLogs()
	if err != nil {
		t.Fatalf("cleanupOldLogs() unexpected error: %v", err)
	}
	if stats.Scanned != 3 || stats.Deleted != 2 || stats.Kept != 1 || len(stats.DeletedFiles) != 2 {
		t.Fatalf("cleanup stats = %+v", stats)
	}
	for _, p := range []string{orphan1, orphan2} {
		if _, err := os.Stat(p); !os.IsNotExist(err) {
			t.Fatalf("expected orphan %s to be removed, err=%v", p, err)
		}
	}
	for _, p := range []string{running, untouched} {
		if _, err := os.Stat(p); err != nil {
			t.Fatalf("expected %s to remain, err=%v", p, err)
		}
	}
}

func TestLoggerCleanupOldLogsErrors(t *testing.T) {
	tempDir := setTempDirEnv(t, t.TempDir())

	createTempLog(t, tempDir, "urioracle-.log")
	target := createTempLog(t, tempDir, "urioracle-555-extra.log")

	stubProcessRunning(t, func(int) bool { return false })
	stubProcessStartTime(t, func(int) time.Time { return time.Time{} })
	removeErr := errors.New("remove failure")
	stubRemoveLogFile(t, func(path string) error {
		if path == target {
			return removeErr
		}
		return os.Remove(path)
	})

	stats, err := cleanupOldLogs()
	if !errors.Is(err, removeErr) {
		t.Fatalf("cleanupOldLogs error = %v, want %v", err, removeErr)
	}
	if stats.Scanned != 2 || stats.Kept != 1 || stats.Errors != 1 {
		t.Fatalf("cleanup stats = %+v", stats)
	}
}

func TestLoggerCleanupOldLogsHandlesGlobFailures(t *testing.T) {
	stubProcessRunning(t, func(int) bool {
		t.Fatalf("process check should not run when glob fails")
		return false
	})
	globErr := errors.New("glob failure")
	stubGlobLogFiles(t, func(string) ([]string, error) { return nil, globErr })

	stats, err := cleanupOldLogs()
	if !errors.Is(err, globErr) {
		t.Fatalf("cleanupOldLogs error = %v, want %v", err, globErr)
	}
	if stats.Scanned != 0 {
		t.Fatalf("cleanup stats = %+v, want zero", stats)
	}
}

func TestLoggerIsPIDReusedScenarios(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name      string
		statErr   error
		modTime   time.Time
		startTime time.Time
		want      bool
	}{
		{"stat error", errors.New("stat failed"), time.Time{}, time.Time{}, false},
		{"old file unknown start", nil, now.Add(-8 * 24 * time.Hour), time.Time{}, true},
		{"recent file unknown start", nil, now.Add(-2 * time.Hour), time.Time{}, false},
		{"pid reused", nil, now.Add(-2 * time.Hour), now.Add(-30 * time.Minute), true},
		{"pid active", nil, now.Add(-30 * time.Minute), now.Add(-2 * time.Hour), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stubFileStat(t, func(string) (os.FileInfo, error) {
				if tt.statErr != nil {
					return nil, tt.statErr
				}
				return fakeFileInfo{modTime: tt.modTime}, nil
			})
			stubProcessStartTime(t, func(int) time.Time { return tt.startTime })
			if got := isPIDReused("log", 1234); got != tt.want {
				t.Fatalf("isPIDReused() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestLoggerIsUnsafeFile(t *testing.T) {
	tempDir := t.TempDir()

	t.Run("symlink", func(t *testing.T) {
		stubFileStat(t, func(string) (os.FileInfo, error) {
			return fakeFileInfo{mode: os.ModeSymlink}, nil
		})
		unsafe, reason := isUnsafeFile(filepath.Join(tempDir, "urioracle-1.log"), tempDir)
		if !unsafe || reason != "refusing to delete symlink" {
			t.Fatalf("got unsafe=%v reason=%q", unsafe, reason)
		}
	})

	t.Run("outside temp dir", func(t *testing.T) {
		stubFileStat(t, func(string) (os.FileInfo, error) { return fakeFileInfo{}, nil })
		otherDir := t.TempDir()
		stubEvalSymlinks(t, func(string) (string, error) {
			return filepath.Join(otherDir, "urioracle-9.log"), nil
		})
		unsafe, reason := isUnsafeFile(filepath.Join(otherDir, "urioracle-9.log"), tempDir)
		if !unsafe || reason != "file is outside tempDir" {
			t.Fatalf("got unsafe=%v reason=%q", unsafe, reason)
		}
	})
}

func TestLoggerPathAndRemove(t *testing.T) {
	setTempDirEnv(t, t.TempDir())

	logger, err := NewLoggerWithSuffix("compare")
	if err != nil {
		t.Fatalf("NewLoggerWithSuffix() error = %v", err)
	}
	path := logger.Path()
	if !strings.HasSuffix(path, "-compare.log") {
		t.Fatalf("Path() = %q", path)
	}
	_ = logger.Close()
	if err := logger.RemoveLogFile(); err != nil {
		t.Fatalf("RemoveLogFile() error = %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("expected log file to be removed, err=%v", err)
	}

	var nilLogger *Logger
	if nilLogger.Path() != "" || nilLogger.RemoveLogFile() != nil {
		t.Fatalf("nil logger should be inert")
	}
}

func TestLoggerParsePIDFromLog(t *testing.T) {
	hugePID := strconv.FormatInt(math.MaxInt64, 10) + "0"
	tests := []struct {
		name string
		pid  int
		ok   bool
	}{
		{"urioracle-123.log", 123, true},
		{"urioracle-999-dispatch.log", 999, true},
		{"urioracle-.log", 0, false},
		{"invalid-name.log", 0, false},
		{"urioracle--5.log", 0, false},
		{"urioracle-0.log", 0, false},
		{fmt.Sprintf("urioracle-%s.log", hugePID), 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := parsePIDFromLog(filepath.Join("/tmp", tt.name))
			if ok != tt.ok || (ok && got != tt.pid) {
				t.Fatalf("parsePIDFromLog = (%d, %v), want (%d, %v)", got, ok, tt.pid, tt.ok)
			}
		})
	}
}

func TestLoggerExtractRecentErrors(t *testing.T) {
	setTempDirEnv(t, t.TempDir())

	logger, err := NewLoggerWithSuffix("extract")
	if err != nil {
		t.Fatalf("NewLoggerWithSuffix() error = %v", err)
	}
	defer logger.Close()

	logger.Info("started")
	if got := logger.ExtractRecentErrors(10); got != nil {
		t.Fatalf("no warnings yet, got %v", got)
	}
	for i := 1; i <= 150; i++ {
		if i%2 == 0 {
			logger.Error(fmt.Sprintf("error-%03d", i))
		} else {
			logger.Warn(fmt.Sprintf("warn-%03d", i))
		}
	}

	if got := logger.ExtractRecentErrors(0); got != nil {
		t.Fatalf("ExtractRecentErrors(0) = %v, want nil", got)
	}
	got := logger.ExtractRecentErrors(3)
	if len(got) != 3 || got[0] != "error-148" || got[2] != "error-150" {
		t.Fatalf("ExtractRecentErrors(3) = %v", got)
	}
	all := logger.ExtractRecentErrors(200)
	if len(all) != maxErrorEntries || !strings.Contains(all[0], "051") {
		t.Fatalf("cache holds %d entries starting %q", len(all), all[0])
	}

	var nilLogger *Logger
	if nilLogger.ExtractRecentErrors(10) != nil {
		t.Fatalf("nil logger should return nil")
	}
}

func TestSanitizeLogSuffixNoDuplicates(t *testing.T) {
	seen := make(map[string]string)
	for _, input := range []string{"task", "task.", ".task", "-task", "task-", "--task--", "..task..", "a/b", "a:b", ""} {
		result := SanitizeLogSuffix(input)
		if result == "" {
			t.Fatalf("SanitizeLogSuffix(%q) returned empty string", input)
		}
		if prev, exists := seen[result]; exists {
			t.Fatalf("collision: %q and %q both produce %q", input, prev, result)
		}
		seen[result] = input
		if strings.ContainsAny(result, "/\\:*?\"<>|") {
			t.Fatalf("SanitizeLogSuffix(%q) = %q contains unsafe characters", input, result)
		}
	}
}

func TestActiveLoggerHelpers(t *testing.T) {
	setTempDirEnv(t, t.TempDir())

	logger, err := NewLogger()
	if err != nil {
		t.Fatalf("NewLogger() error = %v", err)
	}
	SetLogger(logger)
	LogWarn("through the active logger")
	if ActiveLogger() != logger {
		t.Fatalf("ActiveLogger() did not return the installed logger")
	}
	if err := CloseLogger(); err != nil {
		t.Fatalf("CloseLogger() error = %v", err)
	}
	if ActiveLogger() != nil {
		t.Fatalf("active logger should be cleared")
	}
	LogError("dropped without a logger")

	if got := logger.ExtractRecentErrors(5); len(got) != 1 {
		t.Fatalf("ExtractRecentErrors() = %v", got)
	}
}

func createTempLog(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("test"), 0o644); err != nil {
		t.Fatalf("failed to create temp log %s: %v", path, err)
	}
	return path
}

func setTempDirEnv(t *testing.T, dir string) string {
	t.Helper()
	resolved := dir
	if eval, err := filepath.EvalSymlinks(dir); err == nil {
		resolved = eval
	}
	t.Setenv("TMPDIR", resolved)
	t.Setenv("TEMP", resolved)
	t.Setenv("TMP", resolved)
	return resolved
}

func stubProcessRunning(t *testing.T, fn func(int) bool) {
	t.Helper()
	t.Cleanup(SetProcessRunningCheck(fn))
}

func stubProcessStartTime(t *testing.T, fn func(int) time.Time) {
	t.Helper()
	t.Cleanup(SetProcessStartTimeFn(fn))
}

func stubRemoveLogFile(t *testing.T, fn func(string) error) {
	t.Helper()
	t.Cleanup(SetRemoveLogFileFn(fn))
}

func stubGlobLogFiles(t *testing.T, fn func(string) ([]string, error)) {
	t.Helper()
	t.Cleanup(SetGlobLogFilesFn(fn))
}

func stubFileStat(t *testing.T, fn func(string) (os.FileInfo, error)) {
	t.Helper()
	t.Cleanup(SetFileStatFn(fn))
}

func stubEvalSymlinks(t *testing.T, fn func(string) (string, error)) {
	t.Helper()
	t.Cleanup(SetEvalSymlinksFn(fn))
}

type fakeFileInfo struct {
	modTime time.Time
	mode    os.FileMode
}

func (f fakeFileInfo) Name() string       { return "fake" }
func (f fakeFileInfo) Size() int64        { return 0 }
func (f fakeFileInfo) Mode() os.FileMode  { return f.mode }
func (f fakeFileInfo) ModTime() time.Time { return f.modTime }
func (f fakeFileInfo) IsDir() bool        { return false }
func (f fakeFileInfo) Sys() interface{}   { return nil }
