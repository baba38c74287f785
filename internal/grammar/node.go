package grammar

import (
	"fmt"
	"math/rand"
	"regexp"
	"sort"
	"strings"
)

// Node is one production in a component grammar. A node can both emit a
// random member of its language and render itself as a regular expression,
// so generation and validation always describe the same language.
type Node interface {
	emit(rng *rand.Rand, maxRepeat int, b *strings.Builder)
	pattern(b *strings.Builder)
	satisfiable() bool
}

// Literal matches exactly its text.
type Literal string

func (l Literal) emit(_ *rand.Rand, _ int, b *strings.Builder) { b.WriteString(string(l)) }

func (l Literal) pattern(b *strings.Builder) { b.WriteString(regexp.QuoteMeta(string(l))) }

func (l Literal) satisfiable() bool { return true }

// Class matches any single rune of the set.
type Class []rune

// NewClass builds a sorted, de-duplicated class from the given sets.
func NewClass(sets ...string) Class {
	seen := make(map[rune]struct{})
	var out Class
	for _, set := range sets {
		for _, r := range set {
			if _, ok := seen[r]; ok {
				continue
			}
			seen[r] = struct{}{}
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (c Class) emit(rng *rand.Rand, _ int, b *strings.Builder) {
	if len(c) == 0 {
		return
	}
	b.WriteRune(c[rng.Intn(len(c))])
}

func (c Class) pattern(b *strings.Builder) {
	if len(c) == 0 {
		b.WriteString(`[^\x00-\x{10FFFF}]`)
		return
	}
	b.WriteByte('[')
	for _, r := range c {
		fmt.Fprintf(b, `\x{%x}`, r)
	}
	b.WriteByte(']')
}

func (c Class) satisfiable() bool { return len(c) > 0 }

// Seq matches its children in order.
type Seq []Node

func (s Seq) emit(rng *rand.Rand, maxRepeat int, b *strings.Builder) {
	for _, n := range s {
		n.emit(rng, maxRepeat, b)
	}
}

func (s Seq) pattern(b *strings.Builder) {
	b.WriteString("(?:")
	for _, n := range s {
		n.pattern(b)
	}
	b.WriteByte(')')
}

func (s Seq) satisfiable() bool {
	for _, n := range s {
		if !n.satisfiable() {
			return false
		}
	}
	return true
}

// Alt matches any one of its children. Unsatisfiable branches are never chosen.
type Alt []Node

func (a Alt) emit(rng *rand.Rand, maxRepeat int, b *strings.Builder) {
	live := make([]Node, 0, len(a))
	for _, n := range a {
		if n.satisfiable() {
			live = append(live, n)
		}
	}
	if len(live) == 0 {
		return
	}
	live[rng.Intn(len(live))].emit(rng, maxRepeat, b)
}

func (a Alt) pattern(b *strings.Builder) {
	if len(a) == 0 {
		Class(nil).pattern(b)
		return
	}
	b.WriteString("(?:")
	for i, n := range a {
		if i > 0 {
			b.WriteByte('|')
		}
		n.pattern(b)
	}
	b.WriteByte(')')
}

func (a Alt) satisfiable() bool {
	for _, n := range a {
		if n.satisfiable() {
			return true
		}
	}
	return false
}

// Repeat matches Node between Min and Max times. Max < 0 means unbounded;
// generation then caps the count at Min plus the grammar's repeat limit.
type Repeat struct {
	Node Node
	Min  int
	Max  int
}

func (r Repeat) count(rng *rand.Rand, maxRepeat int) int {
	upper := r.Max
	if upper < 0 {
		upper = r.Min + maxRepeat
	}
	if upper <= r.Min {
		return r.Min
	}
	return r.Min + rng.Intn(upper-r.Min+1)
}

func (r Repeat) emit(rng *rand.Rand, maxRepeat int, b *strings.Builder) {
	n := r.count(rng, maxRepeat)
	if !r.Node.satisfiable() {
		return
	}
	for i := 0; i < n; i++ {
		r.Node.emit(rng, maxRepeat, b)
	}
}

func (r Repeat) pattern(b *strings.Builder) {
	b.WriteString("(?:")
	r.Node.pattern(b)
	b.WriteByte(')')
	switch {
	case r.Max < 0 && r.Min == 0:
		b.WriteByte('*')
	case r.Max < 0 && r.Min == 1:
		b.WriteByte('+')
	case r.Max < 0:
		fmt.Fprintf(b, "{%d,}", r.Min)
	case r.Min == r.Max:
		fmt.Fprintf(b, "{%d}", r.Min)
	default:
		fmt.Fprintf(b, "{%d,%d}", r.Min, r.Max)
	}
}

func (r Repeat) satisfiable() bool {
	if r.Max >= 0 && r.Max < r.Min {
		return false
	}
	if r.Min == 0 {
		return true
	}
	return r.Node != nil && r.Node.satisfiable()
}

// Opt matches Node zero or one time.
func Opt(n Node) Repeat { return Repeat{Node: n, Min: 0, Max: 1} }

// Star matches Node zero or more times.
func Star(n Node) Repeat { return Repeat{Node: n, Min: 0, Max: -1} }
