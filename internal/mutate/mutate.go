// Package mutate derives grammar-violating variants from a valid URI
// component. Every operator is applied to the original value on its own;
// operators are never composed.
package mutate

import (
	"fmt"
	"hash/fnv"
	"strings"

	"urioracle/internal/grammar"
)

type Operator string

const (
	OpInsert    Operator = "insert"
	OpEncoding  Operator = "encoding"
	OpTraversal Operator = "traversal"
	OpScheme    Operator = "scheme"
	OpQuery     Operator = "query"
	OpAuthority Operator = "authority"
)

// Mutation is one variant of a component value.
type Mutation struct {
	Value       string
	Operator    Operator
	Description string
}

type insertion struct {
	text string
	name string
}

// insertions is the catalog of characters inserted into every component.
var insertions = []insertion{
	{" ", "space"},
	{"\t", "tab"},
	{"%00", "encoded NUL"},
	{"\x00", "raw NUL"},
	{"\\", "backslash"},
	{"`", "backtick"},
	{"^", "caret"},
	{"/", "slash"},
	{"é", "non-ASCII e-acute"},
	{"Σ", "non-ASCII sigma"},
	{"€", "non-ASCII euro sign"},
	{"$", "dollar"},
	{"%25", "encoded percent"},
	{"%", "bare percent"},
	{"?", "question mark"},
	{"@", "at sign"},
	{"#", "hash"},
	{"-", "hyphen"},
}

// Insertions returns the inserted character catalog in application order.
func Insertions() []string {
	out := make([]string, len(insertions))
	for i, ins := range insertions {
		out[i] = ins.text
	}
	return out
}

// Mutate returns the variants of value for kind. The result is a fresh slice
// and depends only on its inputs. Variants equal to value, or to an earlier
// variant, are dropped.
func Mutate(value string, kind grammar.Kind) []Mutation {
	var s sequence
	s.baseline = value

	for _, ins := range insertions {
		pos := insertPosition(value, ins.text)
		s.add(Mutation{
			Value:       insertAt(value, pos, ins.text),
			Operator:    OpInsert,
			Description: fmt.Sprintf("inserted %s at rune %d", ins.name, pos),
		})
	}

	s.add(Mutation{
		Value:       strings.ReplaceAll(value, "%", "%Z"),
		Operator:    OpEncoding,
		Description: "percent sign replaced with invalid escape %Z",
	})
	s.add(Mutation{
		Value:       truncateEscape(value),
		Operator:    OpEncoding,
		Description: "percent escape truncated to one hex digit",
	})

	switch kind {
	case grammar.Scheme:
		schemeMutations(&s, value)
	case grammar.Authority:
		authorityMutations(&s, value)
	case grammar.Path:
		traversalMutations(&s, value)
	case grammar.Query:
		queryMutations(&s, value)
	}
	return s.out
}

type sequence struct {
	baseline string
	seen     map[string]struct{}
	out      []Mutation
}

func (s *sequence) add(m Mutation) {
	if m.Value == s.baseline {
		return
	}
	if s.seen == nil {
		s.seen = make(map[string]struct{})
	}
	if _, dup := s.seen[m.Value]; dup {
		return
	}
	s.seen[m.Value] = struct{}{}
	s.out = append(s.out, m)
}

// insertPosition picks a rune offset in [0, len(runes)] from an FNV-1a hash of
// the value and the inserted text, so each character lands somewhere
// different yet reproducibly.
func insertPosition(value, text string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(value))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(text))
	n := len([]rune(value)) + 1
	return int(h.Sum32() % uint32(n))
}

func insertAt(value string, pos int, text string) string {
	runes := []rune(value)
	if pos < 0 {
		pos = 0
	}
	if pos > len(runes) {
		pos = len(runes)
	}
	return string(runes[:pos]) + text + string(runes[pos:])
}

// truncateEscape cuts the first %XX escape down to %X.
func truncateEscape(value string) string {
	for i := 0; i+2 < len(value); i++ {
		if value[i] == '%' && isHex(value[i+1]) && isHex(value[i+2]) {
			return value[:i+2] + value[i+3:]
		}
	}
	return value
}

func isHex(c byte) bool {
	switch {
	case c >= '0' && c <= '9', c >= 'a' && c <= 'f', c >= 'A' && c <= 'F':
		return true
	}
	return false
}
