// Package record defines the per-request execution record written by the
// dispatch harness and the comparable projection read back by the analyzer.
package record

import (
	"fmt"
	"strconv"
	"strings"

	"urioracle/internal/normalize"
)

// Outcome is the closed set of request results: Success, HTTPError or
// TransportError.
type Outcome interface {
	isOutcome()
}

// Success is a response with status below 400.
type Success struct {
	StatusCode  int
	ResolvedURI string
	BodyPrefix  string
}

// HTTPError is a response with status 400 or above.
type HTTPError struct {
	StatusCode  int
	ResolvedURI string
}

type TransportKind string

const (
	TransportFailed     TransportKind = "failed"
	TransportTimeout    TransportKind = "timed out"
	TransportRedirects  TransportKind = "too many redirects"
	TransportUnexpected TransportKind = "unexpected"
)

// TransportError is a request that produced no response. Kind is for
// diagnostics only; comparison treats all kinds alike.
type TransportError struct {
	Kind    TransportKind
	Message string
}

func (Success) isOutcome()        {}
func (HTTPError) isOutcome()      {}
func (TransportError) isOutcome() {}

// Record is the result of one test case against one implementation.
type Record struct {
	ImplementationID string
	TestIndex        int
	URI              string
	Outcome          Outcome
}

// Parsed is the comparable view of a Record. ResolvedPath is only ever set
// alongside a status below 400.
type Parsed struct {
	TestIndex    int
	StatusCode   *int
	ResolvedPath *string
}

// NewParsed builds a Parsed value. The resolved URI is normalized and kept
// only when status is present and below 400.
func NewParsed(index int, status *int, resolvedURI *string) Parsed {
	p := Parsed{TestIndex: index}
	if status != nil {
		code := *status
		p.StatusCode = &code
	}
	if status != nil && *status < 400 && resolvedURI != nil {
		path := normalize.Path(*resolvedURI)
		p.ResolvedPath = &path
	}
	return p
}

// Project maps a Record onto its comparable view.
func Project(r Record) Parsed {
	switch o := r.Outcome.(type) {
	case Success:
		return NewParsed(r.TestIndex, &o.StatusCode, &o.ResolvedURI)
	case HTTPError:
		return NewParsed(r.TestIndex, &o.StatusCode, &o.ResolvedURI)
	case TransportError:
		return NewParsed(r.TestIndex, nil, nil)
	case nil:
		return NewParsed(r.TestIndex, nil, nil)
	default:
		panic(fmt.Sprintf("record: unhandled outcome %T", o))
	}
}

// Encode renders r in the line vocabulary the parser reads. URIs and bodies
// are Go-quoted so control bytes and spaces in malformed URIs survive.
func (r Record) Encode() []byte {
	var b strings.Builder
	uri := strconv.Quote(r.URI)

	fmt.Fprintf(&b, "Test case %d: %s\n", r.TestIndex, uri)
	if r.ImplementationID != "" {
		fmt.Fprintf(&b, "Implementation: %s\n", r.ImplementationID)
	}

	switch o := r.Outcome.(type) {
	case Success:
		fmt.Fprintf(&b, "Request to %s completed with status code: %d\n", uri, o.StatusCode)
		fmt.Fprintf(&b, "Resolved URI: %s\n", strconv.Quote(o.ResolvedURI))
		fmt.Fprintf(&b, "Response content from %s: %s\n", uri, strconv.Quote(o.BodyPrefix))
	case HTTPError:
		fmt.Fprintf(&b, "Request to %s returned error: %d\n", uri, o.StatusCode)
		fmt.Fprintf(&b, "Resolved URL: %s\n", strconv.Quote(o.ResolvedURI))
	case TransportError:
		msg := oneLine(o.Message)
		switch o.Kind {
		case TransportTimeout:
			fmt.Fprintf(&b, "Request to %s timed out: %s\n", uri, msg)
		case TransportRedirects:
			fmt.Fprintf(&b, "Request to %s failed due to too many redirects\n", uri)
		case TransportUnexpected:
			fmt.Fprintf(&b, "An unexpected error occurred with %s: %s\n", uri, msg)
		default:
			fmt.Fprintf(&b, "Request to %s failed: %s\n", uri, msg)
		}
	}
	return []byte(b.String())
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
