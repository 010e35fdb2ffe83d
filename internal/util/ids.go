package util

import (
	"regexp"
	"strings"
	"unicode"
)

var (
	reBoldDouble = regexp.MustCompile(`\*\*\s*\[\[([^][]+)\]\]\s*\*\*`)
	reBoldSingle = regexp.MustCompile(`\*\*\s*\[([^][]+)\]\s*\*\*`)
	reToken      = regexp.MustCompile(`\[\[([^][]+)\]\]`)
	reTokenSep   = regexp.MustCompile(`\]\][\t ]+\[\[`)
	reNodeRef    = regexp.MustCompile(`[^\s\[\],;|]+:[0-9]+:[0-9]+$`)
)

// NormalizeNodeRefs cleans up the [[path:line:character]] reference tokens a
// model emits when citing indexed fragments. Bold wrappers are stripped,
// single-bracket and label-prefixed variants are repaired, and immediately
// repeated references collapse into one. Plain bracketed prose is left
// alone. The result is stable under repeated application.
func NormalizeNodeRefs(s string) string {
	s = reBoldDouble.ReplaceAllString(s, "[[$1]]")
	s = reBoldSingle.ReplaceAllString(s, "[$1]")

	s = upgradeSingleRefs(s)
	s = repairTokenPrefixes(s)
	s = dedupeAdjacentRefs(s)

	s = reTokenSep.ReplaceAllString(s, "]] [[")

	return s
}

// ExtractNodeRefs returns the node references cited in text as
// [[path:line:character]] tokens, in order of first appearance, without
// duplicates. Tokens that do not hold a node reference are ignored.
func ExtractNodeRefs(text string) []string {
	matches := reToken.FindAllStringSubmatch(text, -1)
	refs := make([]string, 0, len(matches))
	seen := make(map[string]struct{}, len(matches))
	for _, match := range matches {
		ref := NodeRef(match[1])
		if ref == "" {
			continue
		}
		if _, ok := seen[ref]; ok {
			continue
		}
		seen[ref] = struct{}{}
		refs = append(refs, ref)
	}
	return refs
}

func isNodeRef(s string) bool {
	return reNodeRef.FindString(s) == s
}

// NodeRef pulls a trailing node reference out of token content a
// model padded with a label, as in "file, src/a.ts:3:0". Returns "" when the
// content holds no reference.
func NodeRef(s string) string {
	return reNodeRef.FindString(s)
}

// upgradeSingleRefs rewrites [ref] to [[ref]] for bracketed node references
// while skipping markdown links, nested brackets, and bracketed prose.
func upgradeSingleRefs(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); {
		if s[i] != '[' {
			b.WriteByte(s[i])
			i++
			continue
		}
		if i+1 < len(s) && s[i+1] == '[' {
			b.WriteString("[[")
			i += 2
			continue
		}
		j := i + 1
		hasInnerBracket := false
		for j < len(s) && s[j] != ']' {
			if s[j] == '[' {
				hasInnerBracket = true
			}
			j++
		}
		if j >= len(s) {
			b.WriteByte(s[i])
			i++
			continue
		}

		if j+1 < len(s) && s[j+1] == '(' {
			b.WriteString(s[i : j+1])
			i = j + 1
			continue
		}
		content := s[i+1 : j]
		if hasInnerBracket || NodeRef(content) == "" {
			b.WriteString(s[i : j+1])
			i = j + 1
			continue
		}
		b.WriteString("[[")
		b.WriteString(content)
		b.WriteString("]]")
		i = j + 1
	}
	return b.String()
}

// repairTokenPrefixes strips label prefixes inside [[..]] tokens so only the
// node reference itself remains. Tokens without a recognizable reference are
// kept untouched.
func repairTokenPrefixes(s string) string {
	return reToken.ReplaceAllStringFunc(s, func(token string) string {
		content := token[2 : len(token)-2]
		if isNodeRef(content) {
			return token
		}
		if ref := NodeRef(content); ref != "" {
			return "[[" + ref + "]]"
		}
		return token
	})
}

// dedupeAdjacentRefs collapses runs of the same [[ref]] token separated only
// by whitespace. A run may span a line break only when the first token
// itself starts a line, so references attached to different sentences stay
// distinct.
func dedupeAdjacentRefs(s string) string {
	matches := reToken.FindAllStringSubmatchIndex(s, -1)
	if len(matches) == 0 {
		return s
	}

	var b strings.Builder
	b.Grow(len(s))
	cursor := 0

	for mi := 0; mi < len(matches); mi++ {
		m := matches[mi]
		start, end := m[0], m[1]
		ref := s[m[2]:m[3]]

		b.WriteString(s[cursor:start])

		dupEnd := end
		next := mi + 1
		initialAtLineStart := isLineStart(s, start)

		for next < len(matches) {
			nextStart := matches[next][0]
			sep := s[dupEnd:nextStart]

			if !onlyWhitespace(sep) {
				break
			}
			if containsLineBreak(sep) && !initialAtLineStart {
				break
			}

			nextRef := s[matches[next][2]:matches[next][3]]
			if nextRef != ref {
				break
			}
			dupEnd = matches[next][1]
			next++
		}

		b.WriteString(s[start:end])

		cursor = dupEnd
		mi = next - 1
	}

	if cursor < len(s) {
		b.WriteString(s[cursor:])
	}
	return b.String()
}

func onlyWhitespace(s string) bool {
	for _, r := range s {
		if !unicode.IsSpace(r) {
			return false
		}
	}
	return true
}

func containsLineBreak(s string) bool {
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '\n', '\r':
			return true
		}
	}
	return false
}

func isLineStart(s string, idx int) bool {
	if idx <= 0 {
		return true
	}
	prev := s[idx-1]
	return prev == '\n' || prev == '\r'
}
