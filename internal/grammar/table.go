package grammar

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

const (
	alpha  = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"
	digit  = "0123456789"
	hexdig = "0123456789ABCDEFabcdef"

	defaultMaxRepeat = 8
)

// Table is the configurable character-set layer under the component
// grammars. Servers disagree on reserved versus unreserved handling, so the
// sets are data rather than code. Nil fields take the RFC 3986 value.
type Table struct {
	Unreserved      *string `yaml:"unreserved,omitempty"`
	SubDelims       *string `yaml:"sub_delims,omitempty"`
	PcharExtra      *string `yaml:"pchar_extra,omitempty"`
	QueryExtra      *string `yaml:"query_extra,omitempty"`
	SchemeExtra     *string `yaml:"scheme_extra,omitempty"`
	PercentEncoding *bool   `yaml:"percent_encoding,omitempty"`
	MaxRepeat       int     `yaml:"max_repeat,omitempty"`
}

// DefaultTable returns the RFC 3986 character sets.
func DefaultTable() Table {
	return Table{}.withDefaults()
}

// LoadTable reads a YAML grammar table. Missing keys keep their RFC 3986
// defaults.
func LoadTable(path string) (Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Table{}, fmt.Errorf("read grammar table: %w", err)
	}
	return ParseTable(data)
}

func ParseTable(data []byte) (Table, error) {
	var t Table
	if err := yaml.Unmarshal(data, &t); err != nil {
		return Table{}, fmt.Errorf("parse grammar table: %w", err)
	}
	if t.MaxRepeat < 0 {
		return Table{}, fmt.Errorf("parse grammar table: max_repeat must be >= 0, got %d", t.MaxRepeat)
	}
	return t.withDefaults(), nil
}

func strPtr(s string) *string { return &s }

func (t Table) withDefaults() Table {
	if t.Unreserved == nil {
		t.Unreserved = strPtr(alpha + digit + "-._~")
	}
	if t.SubDelims == nil {
		t.SubDelims = strPtr("!$&'()*+,;=")
	}
	if t.PcharExtra == nil {
		t.PcharExtra = strPtr(":@")
	}
	if t.QueryExtra == nil {
		t.QueryExtra = strPtr("/?")
	}
	if t.SchemeExtra == nil {
		t.SchemeExtra = strPtr("+-.")
	}
	if t.PercentEncoding == nil {
		enabled := true
		t.PercentEncoding = &enabled
	}
	if t.MaxRepeat == 0 {
		t.MaxRepeat = defaultMaxRepeat
	}
	return t
}

// productions builds the production tree of every component kind.
func (t Table) productions() map[Kind]Node {
	t = t.withDefaults()

	withPct := func(c Class) Node {
		if !*t.PercentEncoding {
			return c
		}
		pct := Seq{Literal("%"), NewClass(hexdig), NewClass(hexdig)}
		return Alt{c, pct}
	}

	pchar := withPct(NewClass(*t.Unreserved, *t.SubDelims, *t.PcharExtra))
	queryChar := Alt{pchar, NewClass(*t.QueryExtra)}

	scheme := Seq{
		NewClass(alpha),
		Star(NewClass(alpha, digit, *t.SchemeExtra)),
	}

	userinfo := Star(withPct(NewClass(*t.Unreserved, *t.SubDelims, ":")))
	h16 := Repeat{Node: NewClass(hexdig), Min: 1, Max: 4}
	ipLiteral := Seq{
		Literal("["),
		h16,
		Repeat{Node: Seq{Literal(":"), h16}, Min: 7, Max: 7},
		Literal("]"),
	}
	decOctet := Alt{
		Seq{Literal("25"), NewClass("012345")},
		Seq{Literal("2"), NewClass("01234"), NewClass(digit)},
		Seq{Literal("1"), NewClass(digit), NewClass(digit)},
		Seq{NewClass("123456789"), NewClass(digit)},
		NewClass(digit),
	}
	ipv4 := Seq{
		decOctet, Literal("."), decOctet, Literal("."), decOctet, Literal("."), decOctet,
	}
	regName := Star(withPct(NewClass(*t.Unreserved, *t.SubDelims)))
	authority := Seq{
		Opt(Seq{userinfo, Literal("@")}),
		Alt{ipLiteral, ipv4, regName},
		Opt(Seq{Literal(":"), Star(NewClass(digit))}),
	}

	path := Repeat{Node: Seq{Literal("/"), Star(pchar)}, Min: 1, Max: -1}

	return map[Kind]Node{
		Scheme:    scheme,
		Authority: authority,
		Path:      path,
		Query:     Star(queryChar),
		Fragment:  Star(queryChar),
	}
}
