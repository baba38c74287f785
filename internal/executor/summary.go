package executor

import (
	"fmt"
	"strings"
	"time"

	"urioracle/internal/utils"
)

const summaryErrorWidth = 120

// FormatSummaries renders one line per worker, failures last.
func FormatSummaries(summaries []Summary) string {
	var sb strings.Builder
	sb.WriteString("=== Dispatch Summary ===\n")
	var failed []Summary
	for _, s := range summaries {
		if s.Err != nil {
			failed = append(failed, s)
			continue
		}
		fmt.Fprintf(&sb, "%s: %d sent, %d skipped | %d ok, %d http error, %d transport error (%s)\n",
			s.Implementation, s.Dispatched, s.Skipped, s.Succeeded, s.HTTPErrors, s.TransportErrors, s.Duration.Round(time.Millisecond))
	}
	for _, s := range failed {
		fmt.Fprintf(&sb, "%s: FAILED after %d sent: %s\n",
			s.Implementation, s.Dispatched, utils.SafeTruncate(s.Err.Error(), summaryErrorWidth))
	}
	return sb.String()
}
