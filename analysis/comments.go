// Package analysis is the dependency-aware parser/rewriter over Lean
// source: header extraction, declaration extraction, dependency discovery,
// isolated per-lemma verification, subproblem synthesis, and lemma fixing.
package analysis

import "strings"

// StripComments removes Lean comments from s: nested block comments
// (/- ... -/, stripped to depth) and line comments (-- to end of line).
// String literals are left untouched so a "/-" or "--" inside a string is
// never mistaken for a comment marker.
func StripComments(s string) string {
	var out strings.Builder
	runes := []rune(s)
	depth := 0
	inString := false

	for i := 0; i < len(runes); i++ {
		c := runes[i]

		if inString {
			out.WriteRune(c)
			if c == '\\' && i+1 < len(runes) {
				i++
				out.WriteRune(runes[i])
				continue
			}
			if c == '"' {
				inString = false
			}
			continue
		}

		if depth == 0 && c == '"' {
			inString = true
			out.WriteRune(c)
			continue
		}

		if c == '/' && i+1 < len(runes) && runes[i+1] == '-' {
			depth++
			i++
			continue
		}
		if depth > 0 && c == '-' && i+1 < len(runes) && runes[i+1] == '/' {
			depth--
			i++
			continue
		}
		if depth > 0 {
			continue
		}

		if c == '-' && i+1 < len(runes) && runes[i+1] == '-' {
			j := i
			for j < len(runes) && runes[j] != '\n' {
				j++
			}
			i = j - 1
			continue
		}

		out.WriteRune(c)
	}
	return out.String()
}

// RemoveCommentsAndAxiomsFromProof ports the original's literal behavior:
// strip comments, then brute-force split on the literal substring "lemma"
// (or "theorem" if no "lemma" substring is present), discarding everything
// up to (but not including) the first occurrence of the marker itself. It
// is intentionally not declaration-aware: this is what the reference
// implementation actually does, edge cases included.
func RemoveCommentsAndAxiomsFromProof(s string) string {
	stripped := strings.TrimSpace(StripComments(s))

	marker := "lemma"
	idx := strings.Index(stripped, marker)
	if idx < 0 {
		marker = "theorem"
		idx = strings.Index(stripped, marker)
	}
	if idx < 0 {
		return stripped
	}
	return stripped[idx:]
}
