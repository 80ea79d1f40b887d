package analysis

import "strings"

// DefaultImportBlock is the canonicalization target of SplitImportAndBody:
// just the two Mathlib/Aesop import lines, not the full header (that's
// prompt.DefaultHeader, which also carries the set_option/open lines).
const DefaultImportBlock = "import Mathlib\nimport Aesop"

func isHeaderLine(line string) bool {
	t := strings.TrimSpace(line)
	if t == "" {
		return true
	}
	return strings.HasPrefix(t, "import") || strings.HasPrefix(t, "open") || strings.HasPrefix(t, "set_option")
}

func importLinesOf(block string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, line := range strings.Split(block, "\n") {
		t := strings.TrimSpace(line)
		if strings.HasPrefix(t, "import") {
			set[t] = struct{}{}
		}
	}
	return set
}

var defaultImportLines = importLinesOf(DefaultImportBlock)

// ExtractHeader returns the longest prefix of lines each of which is blank
// or begins (after whitespace) with import, open, or set_option, plus the
// remaining body verbatim. This is the literal extraction used by
// declaration extraction and subproblem synthesis; it performs no
// canonicalization (contrast SplitImportAndBody).
func ExtractHeader(source string) (header, body string) {
	lines := strings.Split(source, "\n")
	i := 0
	for i < len(lines) && isHeaderLine(lines[i]) {
		i++
	}
	header = strings.Join(lines[:i], "\n")
	if header != "" {
		header += "\n"
	}
	return header, strings.Join(lines[i:], "\n")
}

// SplitImportAndBody is the normalizing header/body split used by the
// compile worker's reported header field (SUPPLEMENTED FEATURE #1). The
// source defines two versions of this helper with the same name; the
// second (shadowing) definition is the one actually executed, and is the
// one ported here: only lines beginning with "import" count as the header,
// collected until the first non-import line seen after at least one import
// (everything from that line on, including any later import lines, is
// body); lines before the first import are body too. The header then
// canonicalizes to DefaultImportBlock whenever every collected import line
// is one of DefaultImportBlock's, including the empty-import case (a file
// with no import lines at all canonicalizes to DefaultImportBlock, mirroring
// the original's "empty set is a subset of anything").
func SplitImportAndBody(source string) (header, body string) {
	lines := strings.Split(source, "\n")

	var importLines []string
	var bodyLines []string
	sawImport := false

scan:
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(trimmed, "import"):
			sawImport = true
			importLines = append(importLines, trimmed)
		case sawImport:
			bodyLines = append([]string{}, lines[i:]...)
			break scan
		default:
			bodyLines = append(bodyLines, line)
		}
	}

	collected := make(map[string]struct{}, len(importLines))
	for _, l := range importLines {
		collected[l] = struct{}{}
	}
	subset := true
	for l := range collected {
		if _, ok := defaultImportLines[l]; !ok {
			subset = false
			break
		}
	}

	if subset {
		header = DefaultImportBlock
	} else {
		header = strings.Join(importLines, "\n")
	}
	return header, strings.Join(bodyLines, "\n")
}
