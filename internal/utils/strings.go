package utils

import "strings"

// SafeTruncate shortens s to at most maxLen runes. The cut is marked with
// "..." when maxLen leaves room for it.
func SafeTruncate(s string, maxLen int) string {
	runes := []rune(s)
	switch {
	case maxLen <= 0:
		return ""
	case len(runes) <= maxLen:
		return s
	case maxLen < 4:
		return string(runes[:1])
	default:
		return string(runes[:maxLen-3]) + "..."
	}
}

// SanitizeOutput drops ANSI CSI sequences and every control byte except
// newline and tab, so container output can be logged as plain text.
func SanitizeOutput(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == 0x1b && i+1 < len(s) && s[i+1] == '[' {
			i += 2
			for i < len(s) && !isCSIFinal(s[i]) {
				i++
			}
			continue
		}
		if c == '\n' || c == '\t' || (c >= 0x20 && c != 0x7f) {
			b.WriteByte(c)
		}
	}
	return b.String()
}

func isCSIFinal(c byte) bool { return c >= 0x40 && c <= 0x7e }
