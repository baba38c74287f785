package grammar

import (
	"errors"
	"math/rand"
	"os"
	"path/filepath"
	"testing"
)

func TestGenerateRoundTripsThroughValidate(t *testing.T) {
	set := Default()
	for _, kind := range Kinds() {
		t.Run(string(kind), func(t *testing.T) {
			rng := rand.New(rand.NewSource(42))
			for i := 0; i < 500; i++ {
				value, err := set.Generate(kind, rng)
				if err != nil {
					t.Fatalf("Generate(%s) error = %v", kind, err)
				}
				if !set.Validate(kind, value) {
					t.Fatalf("Validate(%s, %q) = false, want true", kind, value)
				}
			}
		})
	}
}

func TestGenerateIsReproducibleForSeed(t *testing.T) {
	set := Default()
	draw := func() []string {
		rng := rand.New(rand.NewSource(7))
		var out []string
		for _, kind := range Kinds() {
			v, err := set.Generate(kind, rng)
			if err != nil {
				t.Fatalf("Generate(%s) error = %v", kind, err)
			}
			out = append(out, v)
		}
		return out
	}
	first, second := draw(), draw()
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("draw %d differs: %q vs %q", i, first[i], second[i])
		}
	}
}

func TestValidateKnownValues(t *testing.T) {
	set := Default()
	tests := []struct {
		kind  Kind
		value string
		want  bool
	}{
		{Scheme, "http", true},
		{Scheme, "svn+ssh", true},
		{Scheme, "1http", false},
		{Scheme, "-http", false},
		{Scheme, "", false},
		{Authority, "example.com", true},
		{Authority, "user:pw@example.com:8080", true},
		{Authority, "192.168.0.1", true},
		{Authority, "[2001:db8:0:0:0:0:0:1]", true},
		{Authority, "example.com::80", false},
		{Authority, "exa mple.com", false},
		{Authority, "", true},
		{Path, "/a/b", true},
		{Path, "/", true},
		{Path, "/a%2Fb", true},
		{Path, "a/b", false},
		{Path, "/a b", false},
		{Path, "/a%Zb", false},
		{Path, "/a\\b", false},
		{Query, "x=1&y=2", true},
		{Query, "a/b?c", true},
		{Query, "x#y", false},
		{Fragment, "section-1", true},
		{Fragment, "a^b", false},
	}
	for _, tt := range tests {
		if got := set.Validate(tt.kind, tt.value); got != tt.want {
			t.Errorf("Validate(%s, %q) = %v, want %v", tt.kind, tt.value, got, tt.want)
		}
	}
}

func TestNewRejectsUnsatisfiableGrammars(t *testing.T) {
	tests := []struct {
		name string
		root Node
	}{
		{"nil root", nil},
		{"empty class", Class{}},
		{"empty alternation", Alt{}},
		{"sequence with empty class", Seq{Literal("a"), Class{}}},
		{"required repeat of empty class", Repeat{Node: Class{}, Min: 1, Max: 3}},
		{"inverted bounds", Repeat{Node: Literal("a"), Min: 3, Max: 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(Path, tt.root, 4)
			if !errors.Is(err, ErrUnsatisfiable) {
				t.Fatalf("New() error = %v, want ErrUnsatisfiable", err)
			}
		})
	}
}

func TestAltSkipsDeadBranches(t *testing.T) {
	g, err := New(Path, Alt{Class{}, Literal("/only")}, 4)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 20; i++ {
		v, err := g.Generate(rng)
		if err != nil {
			t.Fatalf("Generate() error = %v", err)
		}
		if v != "/only" {
			t.Fatalf("Generate() = %q, want /only", v)
		}
	}
}

func TestParseKind(t *testing.T) {
	k, err := ParseKind(" Path ")
	if err != nil || k != Path {
		t.Fatalf("ParseKind() = %q, %v; want path", k, err)
	}
	if _, err := ParseKind("port"); err == nil {
		t.Fatalf("ParseKind(port) expected error")
	}
}

func TestLoadTableOverridesAndDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "grammar.yaml")
	data := "sub_delims: \"\"\npercent_encoding: false\nmax_repeat: 3\n"
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("write table: %v", err)
	}

	table, err := LoadTable(path)
	if err != nil {
		t.Fatalf("LoadTable() error = %v", err)
	}
	if *table.SubDelims != "" {
		t.Fatalf("sub_delims = %q, want empty", *table.SubDelims)
	}
	if *table.PercentEncoding {
		t.Fatalf("percent_encoding = true, want false")
	}
	if table.MaxRepeat != 3 {
		t.Fatalf("max_repeat = %d, want 3", table.MaxRepeat)
	}
	if *table.PcharExtra != ":@" {
		t.Fatalf("pchar_extra = %q, want default", *table.PcharExtra)
	}

	set, err := NewSet(table)
	if err != nil {
		t.Fatalf("NewSet() error = %v", err)
	}
	if set.Validate(Path, "/a%20b") {
		t.Fatalf("percent escape accepted with percent_encoding disabled")
	}
	if set.Validate(Path, "/a;b") {
		t.Fatalf("sub-delim accepted with empty sub_delims")
	}
	if !set.Validate(Path, "/a:b") {
		t.Fatalf("pchar extra rejected")
	}
}

func TestParseTableRejectsNegativeRepeat(t *testing.T) {
	if _, err := ParseTable([]byte("max_repeat: -1\n")); err == nil {
		t.Fatalf("ParseTable() expected error for negative max_repeat")
	}
}
