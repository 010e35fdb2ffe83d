package util

import "testing"

func TestIsNodeRef(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want bool
	}{
		{"plain ref", "src/auth/session.ts:42:2", true},
		{"root file", "main.ts:0:0", true},
		{"nested path", "src/db/adapters/pg.ts:103:4", true},
		{"missing character", "src/a.ts:42", false},
		{"missing positions", "src/a.ts", false},
		{"non numeric line", "src/a.ts:foo:2", false},
		{"embedded space", "src /a.ts:1:0", false},
		{"label prefix", "file, src/a.ts:1:0", false},
		{"empty", "", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := isNodeRef(tc.in); got != tc.want {
				t.Errorf("isNodeRef(%q) = %v, want %v", tc.in, got, tc.want)
			}
		})
	}
}

func TestExtractNodeRef(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"bare ref", "src/a.ts:10:2", "src/a.ts:10:2"},
		{"comma label", "file, src/a.ts:10:2", "src/a.ts:10:2"},
		{"space label", "see src/a.ts:10:2", "src/a.ts:10:2"},
		{"pipe label", "ref|src/a.ts:10:2", "src/a.ts:10:2"},
		{"semicolon label", "source; src/a.ts:10:2", "src/a.ts:10:2"},
		{"no ref present", "just prose", ""},
		{"ref not at end", "src/a.ts:10:2 trailing", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := NodeRef(tc.in); got != tc.want {
				t.Errorf("NodeRef(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestNormalizeNodeRefs(t *testing.T) {
	ref1 := "src/auth/session.ts:42:2"
	ref2 := "src/db/query.ts:7:0"

	cases := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "already normalized",
			in:   "Auth lives in [[" + ref1 + "]].",
			want: "Auth lives in [[" + ref1 + "]].",
		},
		{
			name: "single bracket upgraded",
			in:   "See [" + ref1 + "] for details.",
			want: "See [[" + ref1 + "]] for details.",
		},
		{
			name: "bold double stripped",
			in:   "**[[" + ref1 + "]]**",
			want: "[[" + ref1 + "]]",
		},
		{
			name: "bold single stripped and upgraded",
			in:   "**[" + ref1 + "]**",
			want: "[[" + ref1 + "]]",
		},
		{
			name: "bold with inner spaces",
			in:   "** [[" + ref1 + "]] **",
			want: "[[" + ref1 + "]]",
		},
		{
			name: "markdown link untouched",
			in:   "[docs](https://example.com) and [" + ref1 + "]",
			want: "[docs](https://example.com) and [[" + ref1 + "]]",
		},
		{
			name: "double bracket before paren untouched",
			in:   "[[" + ref1 + "]](note)",
			want: "[[" + ref1 + "]](note)",
		},
		{
			name: "nested brackets kept",
			in:   "matrix [a[0]:1:2] stays",
			want: "matrix [a[0]:1:2] stays",
		},
		{
			name: "bracketed prose kept",
			in:   "pass the [force] flag",
			want: "pass the [force] flag",
		},
		{
			name: "dangling open bracket kept",
			in:   "unclosed [" + ref1,
			want: "unclosed [" + ref1,
		},
		{
			name: "label prefix stripped",
			in:   "[[file, " + ref1 + "]]",
			want: "[[" + ref1 + "]]",
		},
		{
			name: "label prefix in single bracket",
			in:   "[see " + ref1 + "]",
			want: "[[" + ref1 + "]]",
		},
		{
			name: "token without ref kept",
			in:   "[[sources]]",
			want: "[[sources]]",
		},
		{
			name: "tight duplicates collapse",
			in:   "[[" + ref1 + "]][[" + ref1 + "]]",
			want: "[[" + ref1 + "]]",
		},
		{
			name: "spaced duplicates collapse",
			in:   "[[" + ref1 + "]]  [[" + ref1 + "]]",
			want: "[[" + ref1 + "]]",
		},
		{
			name: "triple run collapses",
			in:   "[[" + ref1 + "]] [[" + ref1 + "]] [[" + ref1 + "]]",
			want: "[[" + ref1 + "]]",
		},
		{
			name: "different refs kept",
			in:   "[[" + ref1 + "]] [[" + ref2 + "]]",
			want: "[[" + ref1 + "]] [[" + ref2 + "]]",
		},
		{
			name: "no dedupe across punctuation",
			in:   "[[" + ref1 + "]]. [[" + ref1 + "]]",
			want: "[[" + ref1 + "]]. [[" + ref1 + "]]",
		},
		{
			name: "dedupe across line break at line start",
			in:   "[[" + ref1 + "]]\n[[" + ref1 + "]]",
			want: "[[" + ref1 + "]]",
		},
		{
			name: "no dedupe across line break mid sentence",
			in:   "handled by [[" + ref1 + "]]\n[[" + ref1 + "]]",
			want: "handled by [[" + ref1 + "]]\n[[" + ref1 + "]]",
		},
		{
			name: "adjacent tokens get single space",
			in:   "[[" + ref1 + "]]   [[" + ref2 + "]]",
			want: "[[" + ref1 + "]] [[" + ref2 + "]]",
		},
		{
			name: "mixed repair then dedupe",
			in:   "[[file, " + ref1 + "]] [[" + ref1 + "]]",
			want: "[[" + ref1 + "]]",
		},
		{
			name: "empty input",
			in:   "",
			want: "",
		},
		{
			name: "plain prose untouched",
			in:   "no references here",
			want: "no references here",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := NormalizeNodeRefs(tc.in)
			if got != tc.want {
				t.Errorf("NormalizeNodeRefs(%q) = %q, want %q", tc.in, got, tc.want)
			}
			if again := NormalizeNodeRefs(got); again != got {
				t.Errorf("NormalizeNodeRefs not stable: %q then %q", got, again)
			}
		})
	}
}
