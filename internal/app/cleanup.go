package app

import (
	"fmt"
	"io"

	config "urioracle/internal/config"
	ilogger "urioracle/internal/logger"
)

var cleanupLogsFn = ilogger.CleanupOldLogs

func runCleanupMode(stdout, stderr io.Writer) int {
	stats, err := cleanupLogsFn()
	if err != nil {
		fmt.Fprintf(stderr, "Cleanup failed: %v\n", err)
		return 1
	}
	fmt.Fprintln(stdout, "Cleanup completed")
	fmt.Fprintf(stdout, "Files scanned: %d\n", stats.Scanned)
	fmt.Fprintf(stdout, "Files deleted: %d\n", stats.Deleted)
	for _, f := range stats.DeletedFiles {
		fmt.Fprintf(stdout, "  - %s\n", f)
	}
	fmt.Fprintf(stdout, "Files kept: %d\n", stats.Kept)
	if stats.Errors > 0 {
		fmt.Fprintf(stdout, "Deletion errors: %d\n", stats.Errors)
	}
	return 0
}

// scheduleStartupCleanup removes stale logs before a command runs. Failures
// are logged and never stop the command.
func scheduleStartupCleanup() {
	if config.EnvFlagEnabled("URIORACLE_SKIP_LOG_CLEANUP") {
		return
	}
	stats, err := cleanupLogsFn()
	if err != nil {
		logWarn(fmt.Sprintf("stale log cleanup: %v", err))
		return
	}
	if stats.Deleted > 0 {
		logDebug(fmt.Sprintf("removed %d stale log files", stats.Deleted))
	}
}
