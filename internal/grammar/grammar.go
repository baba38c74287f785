package grammar

import (
	"errors"
	"fmt"
	"math/rand"
	"regexp"
	"strings"
)

// Kind names one structural piece of a URI.
type Kind string

const (
	Scheme    Kind = "scheme"
	Authority Kind = "authority"
	Path      Kind = "path"
	Query     Kind = "query"
	Fragment  Kind = "fragment"
)

// Kinds returns every component kind in canonical URI order.
func Kinds() []Kind {
	return []Kind{Scheme, Authority, Path, Query, Fragment}
}

// ParseKind accepts a kind name, case-insensitively.
func ParseKind(raw string) (Kind, error) {
	key := Kind(strings.ToLower(strings.TrimSpace(raw)))
	for _, k := range Kinds() {
		if k == key {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown component kind %q", raw)
}

// ErrUnsatisfiable reports a grammar that cannot produce any valid string.
// It is a configuration error and callers should not retry.
var ErrUnsatisfiable = errors.New("grammar is unsatisfiable")

// MaxAttempts bounds how many candidates Generate tries before giving up.
const MaxAttempts = 16

// Grammar is a compiled production tree for one component kind.
type Grammar struct {
	kind      Kind
	root      Node
	re        *regexp.Regexp
	maxRepeat int
}

// New compiles root into a Grammar. The validation expression is rendered
// from root itself.
func New(kind Kind, root Node, maxRepeat int) (*Grammar, error) {
	if root == nil || !root.satisfiable() {
		return nil, fmt.Errorf("%s: %w", kind, ErrUnsatisfiable)
	}
	if maxRepeat < 0 {
		maxRepeat = 0
	}

	var b strings.Builder
	b.WriteString("^(?:")
	root.pattern(&b)
	b.WriteString(")$")

	re, err := regexp.Compile(b.String())
	if err != nil {
		return nil, fmt.Errorf("%s: compile validation pattern: %w", kind, err)
	}
	return &Grammar{kind: kind, root: root, re: re, maxRepeat: maxRepeat}, nil
}

func (g *Grammar) Kind() Kind { return g.kind }

// Pattern returns the anchored validation expression.
func (g *Grammar) Pattern() string { return g.re.String() }

// Validate reports whether value belongs to the grammar's language.
func (g *Grammar) Validate(value string) bool { return g.re.MatchString(value) }

// Generate walks the production tree with rng and returns a value accepted by
// Validate.
func (g *Grammar) Generate(rng *rand.Rand) (string, error) {
	for attempt := 0; attempt < MaxAttempts; attempt++ {
		var b strings.Builder
		g.root.emit(rng, g.maxRepeat, &b)
		if candidate := b.String(); g.Validate(candidate) {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("%s: no valid value after %d attempts: %w", g.kind, MaxAttempts, ErrUnsatisfiable)
}

// Set holds one grammar per component kind.
type Set struct {
	table    Table
	grammars map[Kind]*Grammar
}

// NewSet compiles every component grammar described by table.
func NewSet(table Table) (*Set, error) {
	table = table.withDefaults()
	roots := table.productions()

	set := &Set{table: table, grammars: make(map[Kind]*Grammar, len(roots))}
	for _, kind := range Kinds() {
		g, err := New(kind, roots[kind], table.MaxRepeat)
		if err != nil {
			return nil, err
		}
		set.grammars[kind] = g
	}
	return set, nil
}

// Default returns the RFC 3986 grammar set.
func Default() *Set {
	set, err := NewSet(DefaultTable())
	if err != nil {
		panic(err)
	}
	return set
}

func (s *Set) Table() Table { return s.table }

func (s *Set) Grammar(kind Kind) (*Grammar, bool) {
	g, ok := s.grammars[kind]
	return g, ok
}

func (s *Set) Generate(kind Kind, rng *rand.Rand) (string, error) {
	g, ok := s.grammars[kind]
	if !ok {
		return "", fmt.Errorf("no grammar for component kind %q", kind)
	}
	return g.Generate(rng)
}

func (s *Set) Validate(kind Kind, value string) bool {
	g, ok := s.grammars[kind]
	if !ok {
		return false
	}
	return g.Validate(value)
}
