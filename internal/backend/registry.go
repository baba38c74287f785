package backend

import (
	"fmt"
	"strings"
)

var defaultOrder = []string{"nginx", "apache", "caddy", "h2o", "lighttpd"}

var registry = map[string]Backend{
	"nginx":    {Name: "nginx", Image: "nginx:latest", HostPort: 8080},
	"apache":   {Name: "apache", Image: "httpd:latest", HostPort: 8081},
	"caddy":    {Name: "caddy", Image: "caddy:latest", HostPort: 8082},
	"h2o":      {Name: "h2o", Image: "lkwg82/h2o-http2-server:latest", HostPort: 8083},
	"lighttpd": {Name: "lighttpd", Image: "sebp/lighttpd:latest", HostPort: 8084},
}

// Registry exposes the built-in implementations. Callers must not mutate it.
func Registry() map[string]Backend {
	return registry
}

// Names lists the built-in implementations in their port order.
func Names() []string {
	return append([]string(nil), defaultOrder...)
}

func Select(name string) (Backend, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if b, ok := registry[key]; ok {
		return b, nil
	}
	return Backend{}, fmt.Errorf("unknown implementation %q", name)
}
