package corpus

import (
	"regexp"
	"strings"

	"urioracle/internal/grammar"
)

// TestCase is one request in a corpus. Index is assigned by corpus order and
// joins generation, dispatch and comparison.
type TestCase struct {
	Index       int    `json:"index"`
	Scheme      string `json:"scheme,omitempty"`
	Authority   string `json:"authority,omitempty"`
	Path        string `json:"path,omitempty"`
	Query       string `json:"query,omitempty"`
	Fragment    string `json:"fragment,omitempty"`
	BaseURI     string `json:"base_uri,omitempty"`
	RelativeURI string `json:"relative_uri,omitempty"`
	Reason      string `json:"reason"`
}

// RFC 3986 Appendix B. It never rejects input.
var uriSplit = regexp.MustCompile(`^(?:([^:/?#]+):)?(?://([^/?#]*))?([^?#]*)(?:\?([^#]*))?(?:#(.*))?$`)

// Parts holds the five components of a URI as split by Appendix B, with
// presence flags for the optional ones.
type Parts struct {
	Scheme       string
	Authority    string
	Path         string
	Query        string
	Fragment     string
	HasAuthority bool
	HasQuery     bool
	HasFragment  bool
}

// Split decomposes raw into its components without validating them.
func Split(raw string) Parts {
	m := uriSplit.FindStringSubmatchIndex(raw)
	if m == nil {
		return Parts{Path: raw}
	}
	group := func(i int) (string, bool) {
		if m[2*i] < 0 {
			return "", false
		}
		return raw[m[2*i]:m[2*i+1]], true
	}
	var p Parts
	p.Scheme, _ = group(1)
	p.Authority, p.HasAuthority = group(2)
	p.Path, _ = group(3)
	p.Query, p.HasQuery = group(4)
	p.Fragment, p.HasFragment = group(5)
	return p
}

// FromURI builds a test case from a full URI string.
func FromURI(raw string) TestCase {
	p := Split(raw)
	return TestCase{
		Scheme:    p.Scheme,
		Authority: p.Authority,
		Path:      p.Path,
		Query:     p.Query,
		Fragment:  p.Fragment,
	}
}

// Component returns the value of one component.
func (tc TestCase) Component(kind grammar.Kind) string {
	switch kind {
	case grammar.Scheme:
		return tc.Scheme
	case grammar.Authority:
		return tc.Authority
	case grammar.Path:
		return tc.Path
	case grammar.Query:
		return tc.Query
	case grammar.Fragment:
		return tc.Fragment
	}
	return ""
}

// WithComponent returns a copy of tc with one component replaced.
func (tc TestCase) WithComponent(kind grammar.Kind, value string) TestCase {
	switch kind {
	case grammar.Scheme:
		tc.Scheme = value
	case grammar.Authority:
		tc.Authority = value
	case grammar.Path:
		tc.Path = value
	case grammar.Query:
		tc.Query = value
	case grammar.Fragment:
		tc.Fragment = value
	}
	return tc
}

// URI assembles the full URI string.
func (tc TestCase) URI() string {
	var b strings.Builder
	b.WriteString(tc.Scheme)
	b.WriteString("://")
	b.WriteString(tc.Authority)
	b.WriteString(tc.Path)
	if tc.Query != "" {
		b.WriteByte('?')
		b.WriteString(tc.Query)
	}
	if tc.Fragment != "" {
		b.WriteByte('#')
		b.WriteString(tc.Fragment)
	}
	return b.String()
}

// RequestTarget is the origin-form target sent on the wire. The fragment is
// client-side only and is included solely when withFragment is set.
func (tc TestCase) RequestTarget(withFragment bool) string {
	target := tc.Path
	if target == "" {
		target = "/"
	}
	if tc.Query != "" {
		target += "?" + tc.Query
	}
	if withFragment && tc.Fragment != "" {
		target += "#" + tc.Fragment
	}
	return target
}

// AbsoluteTarget is the absolute-form target: scheme and authority followed by
// RequestTarget. The scheme is written as is, malformed or empty.
func (tc TestCase) AbsoluteTarget(withFragment bool) string {
	return tc.Scheme + "://" + tc.Authority + tc.RequestTarget(withFragment)
}

// Components lists the kinds whose values differ between a and b.
func Components(a, b TestCase) []grammar.Kind {
	var out []grammar.Kind
	for _, k := range grammar.Kinds() {
		if a.Component(k) != b.Component(k) {
			out = append(out, k)
		}
	}
	return out
}

// resolvePair folds a base/relative pair into components. Relative paths are
// merged per RFC 3986 section 5.2.3 but dot segments are left for the server
// to resolve.
func resolvePair(tc TestCase) TestCase {
	base := Split(tc.BaseURI)
	rel := Split(tc.RelativeURI)

	out := tc
	out.Scheme = base.Scheme
	out.Authority = base.Authority
	out.Query = ""
	out.Fragment = ""

	switch {
	case rel.Scheme != "":
		out.Scheme = rel.Scheme
		out.Authority = rel.Authority
		out.Path = rel.Path
		out.Query = rel.Query
	case rel.HasAuthority:
		out.Authority = rel.Authority
		out.Path = rel.Path
		out.Query = rel.Query
	case rel.Path == "":
		out.Path = base.Path
		out.Query = base.Query
		if rel.HasQuery {
			out.Query = rel.Query
		}
	case strings.HasPrefix(rel.Path, "/"):
		out.Path = rel.Path
		out.Query = rel.Query
	default:
		out.Path = mergePaths(base, rel.Path)
		out.Query = rel.Query
	}
	out.Fragment = rel.Fragment
	return out
}

func mergePaths(base Parts, rel string) string {
	if base.HasAuthority && base.Path == "" {
		return "/" + rel
	}
	i := strings.LastIndexByte(base.Path, '/')
	if i < 0 {
		return rel
	}
	return base.Path[:i+1] + rel
}
