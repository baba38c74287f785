package logger

// ToolName prefixes every log file this tool writes.
const ToolName = "urioracle"

// LogPrefixes returns the log file name prefixes cleanup looks for.
func LogPrefixes() []string { return []string{ToolName} }

func PrimaryLogPrefix() string { return ToolName }
