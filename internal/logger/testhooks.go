package logger

import (
	"os"
	"path/filepath"
	"time"
)

// Each setter swaps one package hook and returns a func restoring the
// previous value. A nil fn reinstalls the production default.

func install[T any](dst *T, fn, fallback T, use bool) (restore func()) {
	prev := *dst
	if use {
		*dst = fn
	} else {
		*dst = fallback
	}
	return func() { *dst = prev }
}

func SetProcessRunningCheck(fn func(int) bool) (restore func()) {
	return install(&processRunningCheck, fn, isProcessRunning, fn != nil)
}

func SetProcessStartTimeFn(fn func(int) time.Time) (restore func()) {
	return install(&processStartTimeFn, fn, getProcessStartTime, fn != nil)
}

func SetRemoveLogFileFn(fn func(string) error) (restore func()) {
	return install(&removeLogFileFn, fn, os.Remove, fn != nil)
}

func SetGlobLogFilesFn(fn func(string) ([]string, error)) (restore func()) {
	return install(&globLogFiles, fn, filepath.Glob, fn != nil)
}

func SetFileStatFn(fn func(string) (os.FileInfo, error)) (restore func()) {
	return install(&fileStatFn, fn, os.Lstat, fn != nil)
}

func SetEvalSymlinksFn(fn func(string) (string, error)) (restore func()) {
	return install(&evalSymlinksFn, fn, filepath.EvalSymlinks, fn != nil)
}
