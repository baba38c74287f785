package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"urioracle/internal/backend"
	ilogger "urioracle/internal/logger"

	"github.com/goccy/go-json"
)

// TargetConfig overrides or adds one implementation. Zero fields keep the
// built-in value.
type TargetConfig struct {
	URL           string `json:"url,omitempty"`
	Image         string `json:"image,omitempty"`
	Port          int    `json:"port,omitempty"`
	ContainerPort int    `json:"container_port,omitempty"`
}

// TargetsConfig is the shape of $HOME/.urioracle/targets.json.
type TargetsConfig struct {
	// Default lists the targets used when none are named on the command line.
	Default []string                `json:"default,omitempty"`
	Targets map[string]TargetConfig `json:"targets,omitempty"`
}

type targetRegistry struct {
	order    []string
	backends map[string]backend.Backend
}

var (
	targetsOnce   sync.Once
	targetsCached *targetRegistry
)

func targets() *targetRegistry {
	targetsOnce.Do(func() {
		targetsCached = loadTargets()
	})
	return targetsCached
}

func builtinTargets() *targetRegistry {
	reg := &targetRegistry{order: backend.Names(), backends: make(map[string]backend.Backend)}
	for name, b := range backend.Registry() {
		reg.backends[name] = b
	}
	return reg
}

func loadTargets() *targetRegistry {
	reg := builtinTargets()

	home, err := os.UserHomeDir()
	if err != nil || strings.TrimSpace(home) == "" {
		return reg
	}
	configDir := filepath.Clean(filepath.Join(home, ".urioracle"))
	configPath := filepath.Join(configDir, "targets.json")

	data, err := os.ReadFile(configPath) // #nosec G304 -- fixed file under the user's home
	if err != nil {
		if !os.IsNotExist(err) {
			ilogger.LogWarn(fmt.Sprintf("Failed to read targets config %s: %v; using defaults", configPath, err))
		}
		return reg
	}

	var cfg TargetsConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		ilogger.LogWarn(fmt.Sprintf("Failed to parse targets config %s: %v; using defaults", configPath, err))
		return reg
	}
	return mergeTargets(reg, cfg)
}

// mergeTargets applies cfg over reg. Keys are case-insensitive; invalid ids
// are dropped with a warning.
func mergeTargets(reg *targetRegistry, cfg TargetsConfig) *targetRegistry {
	keys := make([]string, 0, len(cfg.Targets))
	for k := range cfg.Targets {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		id := strings.ToLower(strings.TrimSpace(k))
		if err := ValidateTargetID(id); err != nil {
			ilogger.LogWarn(fmt.Sprintf("Ignoring target %q in targets config: %v", k, err))
			continue
		}
		over := cfg.Targets[k]
		b, known := reg.backends[id]
		if !known {
			b = backend.Backend{Name: id}
			reg.order = append(reg.order, id)
		}
		if u := strings.TrimSpace(over.URL); u != "" {
			b.URL = u
		}
		if img := strings.TrimSpace(over.Image); img != "" {
			b.Image = img
		}
		if over.Port > 0 {
			b.HostPort = over.Port
		}
		if over.ContainerPort > 0 {
			b.ContainerPort = over.ContainerPort
		}
		reg.backends[id] = b
	}

	if len(cfg.Default) > 0 {
		var order []string
		for _, name := range cfg.Default {
			id := strings.ToLower(strings.TrimSpace(name))
			if _, ok := reg.backends[id]; !ok {
				ilogger.LogWarn(fmt.Sprintf("Ignoring unknown default target %q in targets config", name))
				continue
			}
			order = append(order, id)
		}
		if len(order) > 0 {
			reg.order = order
		}
	}
	return reg
}

// ResolveTargets maps --target specs onto implementations. A spec is either
// a known id or "id=base-uri". No specs selects the default set.
func ResolveTargets(specs []string) ([]backend.Backend, error) {
	reg := targets()
	if len(specs) == 0 {
		out := make([]backend.Backend, 0, len(reg.order))
		for _, id := range reg.order {
			out = append(out, reg.backends[id])
		}
		return out, nil
	}

	seen := make(map[string]bool, len(specs))
	out := make([]backend.Backend, 0, len(specs))
	for _, spec := range specs {
		b, err := resolveTarget(reg, spec)
		if err != nil {
			return nil, err
		}
		if seen[b.Name] {
			return nil, fmt.Errorf("target %q given more than once", b.Name)
		}
		seen[b.Name] = true
		out = append(out, b)
	}
	return out, nil
}

func resolveTarget(reg *targetRegistry, spec string) (backend.Backend, error) {
	name, rawURL, inline := strings.Cut(strings.TrimSpace(spec), "=")
	id := strings.ToLower(strings.TrimSpace(name))
	if err := ValidateTargetID(id); err != nil {
		return backend.Backend{}, err
	}

	b, known := reg.backends[id]
	if !inline {
		if !known {
			return backend.Backend{}, fmt.Errorf("unknown target %q (use id=http://host:port)", name)
		}
		return b, nil
	}

	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return backend.Backend{}, fmt.Errorf("target %q: base URI %q must be absolute", id, rawURL)
	}
	if !known {
		b = backend.Backend{Name: id}
	}
	b.URL = strings.TrimSpace(rawURL)
	return b, nil
}

func ResetTargetsCacheForTest() {
	targetsCached = nil
	targetsOnce = sync.Once{}
}
