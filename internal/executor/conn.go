package executor

import (
	"bufio"
	"context"
	"crypto/tls"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/net/http/httpguts"
)

// needsConnWrite reports whether net/http would refuse r. It rejects control
// bytes in the request-target and invalid Host values, and it never sends an
// empty Host header.
func needsConnWrite(r Request) bool {
	if r.EmptyHost || hasCTL(r.Target) {
		return true
	}
	return r.Host != "" && !httpguts.ValidHostHeader(r.Host)
}

func hasCTL(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < 0x20 || s[i] == 0x7f {
			return true
		}
	}
	return false
}

// getOverConn sends one HTTP/1.1 GET on a fresh connection, writing the
// request line and Host header byte for byte, and parses the reply with
// http.ReadResponse. Redirects are not followed on this path and HTTP/2 is
// never negotiated.
func (c *HTTPClient) getOverConn(ctx context.Context, r Request) (Response, error) {
	base, err := parseBase(r.BaseURI)
	if err != nil {
		return Response{}, err
	}
	target := opaqueTarget(base, r.Target)
	host := base.Host
	switch {
	case r.EmptyHost:
		host = ""
	case r.Host != "":
		host = r.Host
	}

	conn, err := c.dial(ctx, base)
	if err != nil {
		return Response{}, connError(ctx, base, err)
	}
	defer conn.Close()

	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = conn.SetDeadline(deadline)
	stop := context.AfterFunc(ctx, func() { _ = conn.SetDeadline(time.Now()) })
	defer stop()

	head := "GET " + target + " HTTP/1.1\r\n" +
		"Host: " + host + "\r\n" +
		"User-Agent: " + userAgent + "\r\n" +
		"Connection: close\r\n\r\n"
	if _, err := io.WriteString(conn, head); err != nil {
		return Response{}, connError(ctx, base, err)
	}

	resp, err := http.ReadResponse(bufio.NewReader(conn), &http.Request{Method: http.MethodGet})
	if err != nil {
		return Response{}, connError(ctx, base, err)
	}
	defer resp.Body.Close()

	body, err := readHead(resp.Body)
	if err != nil {
		return Response{}, connError(ctx, base, err)
	}
	return Response{
		StatusCode:  resp.StatusCode,
		ResolvedURI: resolvedURI(&url.URL{Scheme: base.Scheme, Host: base.Host, Opaque: target}),
		Body:        body,
	}, nil
}

func (c *HTTPClient) dial(ctx context.Context, base *url.URL) (net.Conn, error) {
	addr := base.Host
	if base.Port() == "" {
		port := "80"
		if base.Scheme == "https" {
			port = "443"
		}
		addr = net.JoinHostPort(base.Hostname(), port)
	}
	if base.Scheme == "https" {
		d := &tls.Dialer{NetDialer: c.dialer, Config: c.tlsConfig}
		return d.DialContext(ctx, "tcp", addr)
	}
	return c.dialer.DialContext(ctx, "tcp", addr)
}

// connError shapes failures like the ones http.Client returns so classify
// treats both paths alike. A cancelled context wins over the deadline error
// it provoked.
func connError(ctx context.Context, base *url.URL, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		err = ctxErr
	}
	return &url.Error{Op: "Get", URL: base.Scheme + "://" + base.Host, Err: err}
}
