package logger

import "sync/atomic"

// active backs the package-level Log* helpers. They are no-ops while unset.
var active atomic.Pointer[Logger]

func SetLogger(l *Logger) { active.Store(l) }

// CloseLogger detaches and closes the active logger.
func CloseLogger() error {
	l := active.Swap(nil)
	if l == nil {
		return nil
	}
	return l.Close()
}

func ActiveLogger() *Logger { return active.Load() }

func LogDebug(msg string) { ActiveLogger().Debug(msg) }

func LogInfo(msg string) { ActiveLogger().Info(msg) }

func LogWarn(msg string) { ActiveLogger().Warn(msg) }

func LogError(msg string) { ActiveLogger().Error(msg) }
