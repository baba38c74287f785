package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds the resolved settings for a dispatch or run.
type Config struct {
	CorpusFiles       []string
	Run               string
	OutDir            string
	Targets           []string
	Timeout           time.Duration
	RequestsPerSecond float64
	MaxRedirects      int
	HTTP2             bool
	Insecure          bool
	WithFragment      bool
	AbsoluteForm      bool
	Resume            bool
	SkipPreflight     bool
	Containers        bool
	Pull              bool
	DockerHost        string
	Report            string
	Baseline          string
}

const (
	DefaultOutDir         = "out"
	DefaultRequestTimeout = 10 * time.Second
	maxRequestTimeout     = 10 * time.Minute
	maxRequestsPerSecond  = 10000
)

// EnvFlagEnabled returns true when the environment variable exists and is not
// explicitly set to a falsey value ("0/false/no/off").
func EnvFlagEnabled(key string) bool {
	val, ok := os.LookupEnv(key)
	if !ok {
		return false
	}
	switch strings.TrimSpace(strings.ToLower(val)) {
	case "", "0", "false", "no", "off":
		return false
	default:
		return true
	}
}

func ParseBoolFlag(val string, defaultValue bool) bool {
	switch strings.TrimSpace(strings.ToLower(val)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return defaultValue
	}
}

// ValidateTargetID accepts ids usable as directory names.
func ValidateTargetID(id string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("target id is empty")
	}
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
		case r == '-', r == '_', r == '.':
		default:
			return fmt.Errorf("target id %q contains invalid character %q", id, r)
		}
	}
	if id == "." || id == ".." {
		return fmt.Errorf("target id %q is reserved", id)
	}
	return nil
}

// ResolveRequestTimeout reads URIORACLE_REQUEST_TIMEOUT as a Go duration or
// a number of seconds. Invalid or non-positive values fall back to the default.
func ResolveRequestTimeout() time.Duration {
	raw := strings.TrimSpace(os.Getenv("URIORACLE_REQUEST_TIMEOUT"))
	if raw == "" {
		return DefaultRequestTimeout
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		secs, convErr := strconv.Atoi(raw)
		if convErr != nil {
			return DefaultRequestTimeout
		}
		d = time.Duration(secs) * time.Second
	}
	if d <= 0 {
		return DefaultRequestTimeout
	}
	if d > maxRequestTimeout {
		return maxRequestTimeout
	}
	return d
}

// ResolveRequestsPerSecond reads URIORACLE_RPS. It returns 0 for "unlimited".
func ResolveRequestsPerSecond() float64 {
	raw := strings.TrimSpace(os.Getenv("URIORACLE_RPS"))
	if raw == "" {
		return 0
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || v < 0 {
		return 0
	}
	if v > maxRequestsPerSecond {
		return maxRequestsPerSecond
	}
	return v
}
