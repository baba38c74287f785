package executor

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	"urioracle/internal/corpus"
	ilogger "urioracle/internal/logger"
	"urioracle/internal/record"

	"github.com/sourcegraph/conc/pool"
	"golang.org/x/time/rate"
)

var (
	ErrNoTargets        = errors.New("no implementation targets")
	ErrAllTargetsFailed = errors.New("every implementation target failed")
)

// Target is one server implementation reachable at BaseURI.
type Target struct {
	ID      string
	BaseURI string
}

type Options struct {
	OutDir string
	Run    string
	// Timeout bounds each request. Zero means the client default.
	Timeout time.Duration
	// RequestsPerSecond throttles each target independently. Zero disables.
	RequestsPerSecond float64
	// Resume skips test cases that already have a record in the run.
	Resume bool
	// WithFragment appends "#fragment" to the request-target.
	WithFragment bool
	// AbsoluteForm sends "scheme://authority/path?query" instead of the
	// origin-form target, so scheme mutants reach the server.
	AbsoluteForm bool
	Client       Client
}

// Summary describes one worker's run.
type Summary struct {
	Implementation  string
	Dispatched      int
	Skipped         int
	Succeeded       int
	HTTPErrors      int
	TransportErrors int
	Duration        time.Duration
	Err             error
}

// Dispatch sends every test case to every target. Each target gets its own
// worker that walks the corpus in order and writes exactly one record per
// test case, transport failures included. A failing worker never stops the
// others; an error is returned only when all of them failed.
func Dispatch(ctx context.Context, cases []corpus.TestCase, targets []Target, opts Options) ([]Summary, error) {
	if len(targets) == 0 {
		return nil, ErrNoTargets
	}
	seen := make(map[string]bool, len(targets))
	for _, t := range targets {
		if strings.TrimSpace(t.ID) == "" {
			return nil, fmt.Errorf("target with base URI %q has no id", t.BaseURI)
		}
		if seen[t.ID] {
			return nil, fmt.Errorf("duplicate target id %q", t.ID)
		}
		seen[t.ID] = true
	}
	if strings.TrimSpace(opts.Run) == "" {
		return nil, errors.New("run id is required")
	}

	client := opts.Client
	if client == nil {
		client = newClientFn(ClientConfig{Timeout: opts.Timeout})
	}

	summaries := make([]Summary, len(targets))
	p := pool.New().WithMaxGoroutines(len(targets))
	for i, target := range targets {
		i, target := i, target
		p.Go(func() {
			summaries[i] = runTarget(ctx, client, cases, target, opts)
		})
	}
	p.Wait()

	var errs []error
	for _, s := range summaries {
		if s.Err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.Implementation, s.Err))
		}
	}
	if len(errs) == len(targets) {
		return summaries, fmt.Errorf("%w: %w", ErrAllTargetsFailed, errors.Join(errs...))
	}
	return summaries, nil
}

func runTarget(ctx context.Context, client Client, cases []corpus.TestCase, target Target, opts Options) (sum Summary) {
	sum.Implementation = target.ID
	start := time.Now()
	defer func() { sum.Duration = time.Since(start) }()

	ns, err := openNamespace(opts.OutDir, target.ID, opts.Run, opts.Resume)
	if err != nil {
		ilogger.LogError(fmt.Sprintf("[%s] cannot open run namespace: %v", target.ID, err))
		sum.Err = err
		return sum
	}
	defer func() {
		if err := ns.close(); err != nil {
			ilogger.LogWarn(fmt.Sprintf("[%s] release run lock: %v", target.ID, err))
		}
	}()

	var limiter *rate.Limiter
	if opts.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 1)
	}

	targetHost := hostOf(target.BaseURI)
	ilogger.LogInfo(fmt.Sprintf("[%s] dispatching %d test cases to %s", target.ID, len(cases), target.BaseURI))

	for _, tc := range cases {
		if err := ctx.Err(); err != nil {
			sum.Err = err
			return sum
		}
		if opts.Resume && ns.has(tc.Index) {
			sum.Skipped++
			continue
		}
		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				sum.Err = err
				return sum
			}
		}

		rec := sendCase(ctx, client, tc, target, targetHost, opts)
		if _, failed := rec.Outcome.(record.TransportError); failed && ctx.Err() != nil {
			// Interrupted, not answered: leave the index for --resume.
			sum.Err = ctx.Err()
			return sum
		}
		switch rec.Outcome.(type) {
		case record.Success:
			sum.Succeeded++
		case record.HTTPError:
			sum.HTTPErrors++
		case record.TransportError:
			sum.TransportErrors++
		}

		if err := ns.write(rec); err != nil {
			ilogger.LogError(fmt.Sprintf("[%s] write record %d: %v", target.ID, tc.Index, err))
			sum.Err = fmt.Errorf("write record %d: %w", tc.Index, err)
			return sum
		}
		sum.Dispatched++
	}

	ilogger.LogInfo(fmt.Sprintf("[%s] done: %d dispatched, %d skipped, %d ok, %d http errors, %d transport errors",
		target.ID, sum.Dispatched, sum.Skipped, sum.Succeeded, sum.HTTPErrors, sum.TransportErrors))
	return sum
}

// sendCase issues one request and folds the result into a record. It never
// fails: transport problems become TransportError outcomes.
func sendCase(ctx context.Context, client Client, tc corpus.TestCase, target Target, targetHost string, opts Options) record.Record {
	rec := record.Record{ImplementationID: target.ID, TestIndex: tc.Index, URI: tc.URI()}

	req := Request{BaseURI: target.BaseURI, Target: tc.RequestTarget(opts.WithFragment)}
	if opts.AbsoluteForm {
		req.Target = tc.AbsoluteTarget(opts.WithFragment)
	}
	switch {
	case tc.Authority == "" && tc.Scheme != "":
		req.EmptyHost = true
	case tc.Authority != "" && !strings.EqualFold(tc.Authority, targetHost):
		req.Host = tc.Authority
	}

	reqCtx := ctx
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	resp, err := client.Get(reqCtx, req)
	if err != nil {
		rec.Outcome = classify(err)
		ilogger.LogDebug(fmt.Sprintf("[%s] test case %d: %v", target.ID, tc.Index, err))
		return rec
	}
	if resp.StatusCode < 400 {
		rec.Outcome = record.Success{
			StatusCode:  resp.StatusCode,
			ResolvedURI: resp.ResolvedURI,
			BodyPrefix:  bodyPrefix(resp.Body, bodyPrefixRunes),
		}
	} else {
		rec.Outcome = record.HTTPError{StatusCode: resp.StatusCode, ResolvedURI: resp.ResolvedURI}
	}
	return rec
}

func classify(err error) record.TransportError {
	msg := err.Error()
	var netErr net.Error
	var urlErr *url.Error
	switch {
	case errors.Is(err, ErrTooManyRedirects):
		return record.TransportError{Kind: record.TransportRedirects, Message: msg}
	case errors.Is(err, context.DeadlineExceeded), errors.As(err, &netErr) && netErr.Timeout():
		return record.TransportError{Kind: record.TransportTimeout, Message: msg}
	case errors.As(err, &urlErr), errors.As(err, &netErr):
		return record.TransportError{Kind: record.TransportFailed, Message: msg}
	default:
		return record.TransportError{Kind: record.TransportUnexpected, Message: msg}
	}
}

func hostOf(baseURI string) string {
	u, err := url.Parse(strings.TrimSpace(baseURI))
	if err != nil {
		return ""
	}
	return u.Host
}
