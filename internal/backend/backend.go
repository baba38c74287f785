package backend

import (
	"fmt"
	"strings"
)

const DefaultContainerPort = 80

// Backend is one HTTP server implementation under test: where to reach it,
// and which image serves it when the harness manages containers.
type Backend struct {
	Name string
	// URL overrides the base URI derived from HostPort.
	URL           string
	Image         string
	HostPort      int
	ContainerPort int
}

// BaseURI is the scheme and authority requests are sent to.
func (b Backend) BaseURI() string {
	if u := strings.TrimSpace(b.URL); u != "" {
		return strings.TrimRight(u, "/")
	}
	return fmt.Sprintf("http://localhost:%d", b.HostPort)
}

func (b Backend) containerPort() int {
	if b.ContainerPort > 0 {
		return b.ContainerPort
	}
	return DefaultContainerPort
}

var (
	logWarnFn  = func(string) {}
	logErrorFn = func(string) {}
	logDebugFn = func(string) {}
)

// SetLogFuncs configures optional logging hooks. Passing nil disables a hook.
func SetLogFuncs(warnFn, errorFn, debugFn func(string)) {
	logWarnFn = orNop(warnFn)
	logErrorFn = orNop(errorFn)
	logDebugFn = orNop(debugFn)
}

func orNop(fn func(string)) func(string) {
	if fn == nil {
		return func(string) {}
	}
	return fn
}
