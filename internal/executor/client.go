package executor

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/http2"
)

const (
	defaultRequestTimeout = 10 * time.Second
	defaultMaxRedirects   = 30
	bodyReadLimit         = 64 * 1024
	bodyPrefixRunes       = 200
	userAgent             = "urioracle"
)

// ErrTooManyRedirects is returned by the redirect policy once the limit is hit.
var ErrTooManyRedirects = errors.New("too many redirects")

// Request is one GET. Target is the request-target and is sent verbatim;
// Host, when set, replaces the Host header derived from BaseURI. EmptyHost
// sends "Host:" with no value, as for a URI whose authority is empty.
type Request struct {
	BaseURI   string
	Target    string
	Host      string
	EmptyHost bool
}

type Response struct {
	StatusCode  int
	ResolvedURI string
	Body        []byte
}

// Client is the transport collaborator used by the harness.
type Client interface {
	Get(ctx context.Context, req Request) (Response, error)
}

type ClientConfig struct {
	Timeout time.Duration
	// MaxRedirects bounds followed redirects. Zero means the default; a
	// negative value disables following.
	MaxRedirects       int
	ForceHTTP2         bool
	InsecureSkipVerify bool
}

// HTTPClient is the net/http implementation of Client. Requests net/http
// will not write are sent over a plain connection instead (see getOverConn).
type HTTPClient struct {
	client    *http.Client
	dialer    *net.Dialer
	tlsConfig *tls.Config
	timeout   time.Duration
}

// NewHTTPClient returns a Client that never rewrites the request-target.
func NewHTTPClient(cfg ClientConfig) *HTTPClient {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultRequestTimeout
	}
	if cfg.MaxRedirects == 0 {
		cfg.MaxRedirects = defaultMaxRedirects
	}

	tlsConfig := &tls.Config{InsecureSkipVerify: cfg.InsecureSkipVerify} // #nosec G402 -- servers under test commonly use self-signed certificates
	d := &net.Dialer{Timeout: cfg.Timeout}

	var transport http.RoundTripper
	if cfg.ForceHTTP2 {
		transport = &http2Transport{
			t2: &http2.Transport{TLSClientConfig: tlsConfig},
			t2c: &http2.Transport{
				AllowHTTP: true,
				DialTLSContext: func(ctx context.Context, network, addr string, _ *tls.Config) (net.Conn, error) {
					return d.DialContext(ctx, network, addr)
				},
				TLSClientConfig: tlsConfig,
			},
		}
	} else {
		transport = &http.Transport{
			TLSClientConfig:     tlsConfig,
			DialContext:         d.DialContext,
			TLSHandshakeTimeout: cfg.Timeout,
			Proxy:               nil,
			DisableCompression:  true,
		}
	}

	return &HTTPClient{
		client: &http.Client{
			Timeout:       cfg.Timeout,
			Transport:     transport,
			CheckRedirect: redirectFunc(cfg.MaxRedirects),
		},
		dialer:    d,
		tlsConfig: tlsConfig,
		timeout:   cfg.Timeout,
	}
}

type http2Transport struct {
	t2  *http2.Transport
	t2c *http2.Transport
}

func (t *http2Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.URL.Scheme == "https" {
		return t.t2.RoundTrip(req)
	}
	return t.t2c.RoundTrip(req)
}

func (t *http2Transport) CloseIdleConnections() {
	t.t2.CloseIdleConnections()
	t.t2c.CloseIdleConnections()
}

func redirectFunc(limit int) func(*http.Request, []*http.Request) error {
	if limit < 0 {
		return func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }
	}
	return func(_ *http.Request, via []*http.Request) error {
		if len(via) > limit {
			return ErrTooManyRedirects
		}
		return nil
	}
}

// CloseIdleConnections releases pooled connections.
func (c *HTTPClient) CloseIdleConnections() { c.client.CloseIdleConnections() }

func (c *HTTPClient) Get(ctx context.Context, r Request) (Response, error) {
	if needsConnWrite(r) {
		return c.getOverConn(ctx, r)
	}
	req, err := newRawRequest(ctx, r)
	if err != nil {
		return Response{}, err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return Response{}, err
	}
	defer resp.Body.Close()

	body, err := readHead(resp.Body)
	if err != nil {
		return Response{}, err
	}
	return Response{
		StatusCode:  resp.StatusCode,
		ResolvedURI: resolvedURI(resp.Request.URL),
		Body:        body,
	}, nil
}

func readHead(body io.Reader) ([]byte, error) {
	var head headBuffer
	head.limit = bodyReadLimit
	if _, err := io.Copy(&head, io.LimitReader(body, bodyReadLimit)); err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(body, bodyReadLimit))
	return head.Bytes(), nil
}

func parseBase(raw string) (*url.URL, error) {
	base, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, fmt.Errorf("parse base URI %q: %w", raw, err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("base URI %q must be absolute", raw)
	}
	return base, nil
}

// opaqueTarget prefixes an origin-form target with the base path. A target
// starting with "//" would be read as an authority, so it is put in absolute
// form instead.
func opaqueTarget(base *url.URL, target string) string {
	if target == "" {
		target = "/"
	}
	prefix := strings.TrimRight(base.EscapedPath(), "/")
	if prefix != "" && strings.HasPrefix(target, "/") {
		target = prefix + target
	}
	if strings.HasPrefix(target, "//") {
		return "//" + base.Host + target
	}
	return target
}

// newRawRequest builds a GET whose request-target is written exactly as
// given, by carrying it in URL.Opaque.
func newRawRequest(ctx context.Context, r Request) (*http.Request, error) {
	base, err := parseBase(r.BaseURI)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base.Scheme+"://"+base.Host+"/", nil)
	if err != nil {
		return nil, err
	}
	req.URL.Opaque = opaqueTarget(base, r.Target)
	req.URL.Path = ""
	req.URL.RawPath = ""
	req.URL.RawQuery = ""

	if r.Host != "" && r.Host != base.Host {
		req.Host = r.Host
	}
	req.Header.Set("User-Agent", userAgent)
	return req, nil
}

// resolvedURI renders the URL a response came from, including requests whose
// target was carried in Opaque.
func resolvedURI(u *url.URL) string {
	if u == nil {
		return ""
	}
	if u.Opaque == "" {
		return u.String()
	}
	out := u.Opaque
	switch {
	case isAbsoluteTarget(out):
	case strings.HasPrefix(out, "//"):
		out = u.Scheme + ":" + out
	default:
		out = u.Scheme + "://" + u.Host + out
	}
	if u.RawQuery != "" {
		out += "?" + u.RawQuery
	}
	return out
}

// isAbsoluteTarget reports whether target is in absolute form: a scheme,
// possibly empty or malformed, followed by "://".
func isAbsoluteTarget(target string) bool {
	i := strings.Index(target, "://")
	return i >= 0 && !strings.ContainsAny(target[:i], "/?#")
}
