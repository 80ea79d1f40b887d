package analysis

import (
	"regexp"
	"strings"

	"github.com/leanmesh/leanmesh/types"
)

var declHeadRE = regexp.MustCompile(`^\s*(axiom|lemma|theorem|def)\s+([\w.]+)`)

// ExtractDeclarations scans source line by line for top-level declaration
// headers. A declaration's end line is the start line of the next match, or
// end-of-file. Order of the returned slice is source order.
func ExtractDeclarations(source string) []*types.Declaration {
	lines := strings.Split(source, "\n")

	type match struct {
		line int
		kind types.DeclKind
		name string
	}
	var matches []match
	for i, line := range lines {
		m := declHeadRE.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		matches = append(matches, match{line: i, kind: types.DeclKind(m[1]), name: m[2]})
	}

	decls := make([]*types.Declaration, 0, len(matches))
	for i, m := range matches {
		end := len(lines)
		if i+1 < len(matches) {
			end = matches[i+1].line
		}
		fullText := strings.Join(lines[m.line:end], "\n")
		hasProof := (m.kind == types.DeclLemma || m.kind == types.DeclTheorem) && strings.Contains(fullText, ":=")

		decls = append(decls, &types.Declaration{
			Name:      m.name,
			Kind:      m.kind,
			StartLine: m.line,
			EndLine:   end,
			FullText:  fullText,
			HasProof:  hasProof,
		})
	}
	return decls
}

func isIdentChar(b byte) bool {
	return b == '_' || b == '.' || b == '\'' ||
		(b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || (b >= '0' && b <= '9')
}

// ContainsWholeWord reports whether name occurs in haystack as a whole
// word: neither the character before nor after the match (if any) is an
// identifier character.
func ContainsWholeWord(haystack, name string) bool {
	if name == "" {
		return false
	}
	start := 0
	for {
		i := strings.Index(haystack[start:], name)
		if i < 0 {
			return false
		}
		pos := start + i
		leftOK := pos == 0 || !isIdentChar(haystack[pos-1])
		after := pos + len(name)
		rightOK := after >= len(haystack) || !isIdentChar(haystack[after])
		if leftOK && rightOK {
			return true
		}
		start = pos + 1
	}
}

// ProofBodySubstring returns the substring of fullText after ":= by" (or
// after ":=" if no "by" follows it), the scope dependency computation
// searches for proof-only dependencies. Returns "" if neither marker is
// present.
func ProofBodySubstring(fullText string) string {
	if idx := strings.Index(fullText, ":= by"); idx >= 0 {
		return fullText[idx+len(":= by"):]
	}
	if idx := strings.Index(fullText, ":="); idx >= 0 {
		return fullText[idx+len(":="):]
	}
	return ""
}

// ComputeDependencies populates each declaration's Dependencies set with
// the whole-word occurrences of every other declaration's name anywhere in
// its FullText.
func ComputeDependencies(decls []*types.Declaration) {
	for _, d := range decls {
		d.Dependencies = make(map[string]struct{})
		for _, other := range decls {
			if other.Name == d.Name {
				continue
			}
			if ContainsWholeWord(d.FullText, other.Name) {
				d.Dependencies[other.Name] = struct{}{}
			}
		}
	}
}

// ProofDependencies returns the subset of candidateNames that occur as
// whole words within d's proof body only (the substring after ":= by" or
// ":="), in the order candidateNames was given.
func ProofDependencies(d *types.Declaration, candidateNames []string) []string {
	body := ProofBodySubstring(d.FullText)
	var deps []string
	for _, name := range candidateNames {
		if ContainsWholeWord(body, name) {
			deps = append(deps, name)
		}
	}
	return deps
}
