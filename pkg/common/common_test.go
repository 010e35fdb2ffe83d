package common

import "testing"

func TestNodeIDRoundTrip(t *testing.T) {
	cases := []struct {
		name string
		uri  string
		pos  Position
	}{
		{"file uri", "file:///repo/src/a.ts", Position{Line: 10, Character: 2}},
		{"relative path", "src/a.ts", Position{Line: 0, Character: 0}},
		{"windows drive", "file:///C:/repo/a.ts", Position{Line: 3, Character: 7}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			id := NodeID(tc.uri, tc.pos)
			uri, pos, ok := ParseNodeID(id)
			if !ok {
				t.Fatalf("expected %q to parse", id)
			}
			if uri != tc.uri {
				t.Errorf("expected uri %q, got %q", tc.uri, uri)
			}
			if pos != tc.pos {
				t.Errorf("expected position %+v, got %+v", tc.pos, pos)
			}
		})
	}
}

func TestParseNodeID_Malformed(t *testing.T) {
	for _, id := range []string{"", "src/a.ts", "src/a.ts:10", "src/a.ts:x:y"} {
		if _, _, ok := ParseNodeID(id); ok {
			t.Errorf("expected %q to fail parsing", id)
		}
	}
}

func TestRangeContains(t *testing.T) {
	r := Range{Start: Position{Line: 2, Character: 4}, End: Position{Line: 5, Character: 1}}

	cases := []struct {
		name string
		pos  Position
		want bool
	}{
		{"inside", Position{Line: 3, Character: 0}, true},
		{"at start", Position{Line: 2, Character: 4}, true},
		{"before start character", Position{Line: 2, Character: 3}, false},
		{"at end is exclusive", Position{Line: 5, Character: 1}, false},
		{"before end character", Position{Line: 5, Character: 0}, true},
		{"line above", Position{Line: 1, Character: 9}, false},
		{"line below", Position{Line: 6, Character: 0}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := r.Contains(tc.pos); got != tc.want {
				t.Errorf("Contains(%+v) = %v, want %v", tc.pos, got, tc.want)
			}
		})
	}
}

func TestRangeContainsRange(t *testing.T) {
	outer := Range{Start: Position{Line: 0, Character: 0}, End: Position{Line: 10, Character: 0}}
	inner := Range{Start: Position{Line: 2, Character: 0}, End: Position{Line: 4, Character: 5}}

	if !outer.ContainsRange(inner) {
		t.Error("expected outer to contain inner")
	}
	if inner.ContainsRange(outer) {
		t.Error("expected inner not to contain outer")
	}
	if !outer.ContainsRange(outer) {
		t.Error("expected a range to contain itself")
	}
}

func TestSymbolKindClasses(t *testing.T) {
	for _, k := range []SymbolKind{SymbolKindFunction, SymbolKindMethod, SymbolKindConstructor} {
		if !k.Callable() {
			t.Errorf("expected kind %d to be callable", k)
		}
		if k.Container() {
			t.Errorf("expected kind %d not to be a container", k)
		}
	}
	for _, k := range []SymbolKind{SymbolKindClass, SymbolKindInterface, SymbolKindNamespace, SymbolKindObject, SymbolKindStruct} {
		if !k.Container() {
			t.Errorf("expected kind %d to be a container", k)
		}
		if k.Callable() {
			t.Errorf("expected kind %d not to be callable", k)
		}
	}
	if SymbolKindVariable.Callable() || SymbolKindVariable.Container() {
		t.Error("expected variables to be neither callable nor containers")
	}
}

func TestSliceRange(t *testing.T) {
	text := "line zero\nline one\nline two\nline three"

	cases := []struct {
		name string
		rng  Range
		want string
	}{
		{
			name: "single line span",
			rng:  Range{Start: Position{Line: 1, Character: 5}, End: Position{Line: 1, Character: 8}},
			want: "one",
		},
		{
			name: "multi line span",
			rng:  Range{Start: Position{Line: 0, Character: 5}, End: Position{Line: 2, Character: 4}},
			want: "zero\nline one\nline",
		},
		{
			name: "full text",
			rng:  Range{Start: Position{Line: 0, Character: 0}, End: Position{Line: 3, Character: 10}},
			want: text,
		},
		{
			name: "end clamps past line length",
			rng:  Range{Start: Position{Line: 3, Character: 0}, End: Position{Line: 3, Character: 99}},
			want: "line three",
		},
		{
			name: "start beyond text",
			rng:  Range{Start: Position{Line: 9, Character: 0}, End: Position{Line: 9, Character: 5}},
			want: "",
		},
		{
			name: "empty range",
			rng:  Range{Start: Position{Line: 1, Character: 3}, End: Position{Line: 1, Character: 3}},
			want: "",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := SliceRange(text, tc.rng); got != tc.want {
				t.Errorf("SliceRange(%+v) = %q, want %q", tc.rng, got, tc.want)
			}
		})
	}
}
