package executor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	ilogger "urioracle/internal/logger"

	"github.com/sourcegraph/conc/pool"
)

const defaultPreflightTimeout = 3 * time.Second

// ErrNoReachableTargets is returned when preflight rejects every target.
var ErrNoReachableTargets = errors.New("no implementation target is reachable")

// Preflight requests "/" from every target and splits them into reachable and
// unreachable sets. Any HTTP response counts as reachable. Order of the
// reachable slice follows targets.
func Preflight(ctx context.Context, client Client, targets []Target, timeout time.Duration) ([]Target, map[string]error) {
	if timeout <= 0 {
		timeout = defaultPreflightTimeout
	}
	if client == nil {
		client = newClientFn(ClientConfig{Timeout: timeout, MaxRedirects: -1})
	}

	var mu sync.Mutex
	failed := make(map[string]error)
	p := pool.New().WithMaxGoroutines(len(targets) + 1)
	for _, target := range targets {
		target := target
		p.Go(func() {
			reqCtx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			if _, err := client.Get(reqCtx, Request{BaseURI: target.BaseURI, Target: "/"}); err != nil {
				mu.Lock()
				failed[target.ID] = err
				mu.Unlock()
			}
		})
	}
	p.Wait()

	reachable := make([]Target, 0, len(targets))
	for _, t := range targets {
		if err, ok := failed[t.ID]; ok {
			ilogger.LogWarn(fmt.Sprintf("[%s] unreachable at %s, skipping: %v", t.ID, t.BaseURI, err))
			continue
		}
		reachable = append(reachable, t)
	}
	return reachable, failed
}
