package prompt

import (
	"regexp"
	"strings"

	"github.com/leanmesh/leanmesh/analysis"
)

// DefaultHeader is the canonical header prepended to a normalized proof
// when the problem statement carries no open line of its own.
const DefaultHeader = "import Mathlib\nimport Aesop\n\nset_option maxHeartbeats 0\n\nopen BigOperators Real Nat Topology Rat\n\n"

const defaultHeaderNoOpen = "import Mathlib\nimport Aesop\n\nset_option maxHeartbeats 0\n\n"

var (
	leanFencedRE    = regexp.MustCompile(`(?s)` + "```lean4" + `(.*?)` + "```")
	leanFencedAltRE = regexp.MustCompile(`(?s)` + "```lean" + `(.*?)` + "```")
	statementKwRE   = regexp.MustCompile(`\b(axiom|lemma|theorem)\b`)
)

// ExtractLeanBlock returns the content of the last fenced ```lean4``` block
// in output, else the last fenced ```lean``` block, else output itself,
// trimmed.
func ExtractLeanBlock(output string) string {
	if ms := leanFencedRE.FindAllStringSubmatch(output, -1); len(ms) > 0 {
		return strings.TrimSpace(ms[len(ms)-1][1])
	}
	if ms := leanFencedAltRE.FindAllStringSubmatch(output, -1); len(ms) > 0 {
		return strings.TrimSpace(ms[len(ms)-1][1])
	}
	return strings.TrimSpace(output)
}

// SplitProofAtFirstStatement splits proof at the first whole-word
// occurrence of axiom/lemma/theorem; after starts with the matched
// keyword. If none is found, before is the whole string and after is "".
func SplitProofAtFirstStatement(proof string) (before, after string) {
	loc := statementKwRE.FindStringIndex(proof)
	if loc == nil {
		return proof, ""
	}
	return proof[:loc[0]], proof[loc[0]:]
}

// RemoveImportsFromProof drops everything up to the first
// axiom/lemma/theorem keyword.
func RemoveImportsFromProof(proof string) string {
	_, body := SplitProofAtFirstStatement(proof)
	return strings.TrimSpace(body)
}

// SubstituteFinalTheorem replaces the signature of the last top-level
// theorem in leanProof (everything before ":=") with the signature taken
// from problemStatement, keeping leanProof's own proof body intact.
func SubstituteFinalTheorem(leanProof, problemStatement string) string {
	proof := strings.TrimSpace(leanProof)
	problem := strings.TrimSpace(problemStatement)

	lastTheoremIndex := strings.LastIndex(proof, "\ntheorem ")
	if lastTheoremIndex == -1 && strings.HasPrefix(proof, "theorem ") {
		lastTheoremIndex = 0
	}
	if lastTheoremIndex == -1 {
		return proof + "\n\n" + problem
	}

	proofPrefix := proof[:lastTheoremIndex]
	finalTheoremBlock := proof[lastTheoremIndex:]

	proofStartIndex := strings.Index(finalTheoremBlock, ":=")
	if proofStartIndex == -1 {
		return strings.TrimSpace(proofPrefix) + "\n\n" + problem
	}
	originalProofPart := finalTheoremBlock[proofStartIndex:]

	problemTheoremStart := strings.LastIndex(problem, "\ntheorem ")
	if problemTheoremStart == -1 && strings.HasPrefix(problem, "theorem ") {
		problemTheoremStart = 0
	}
	if problemTheoremStart == -1 {
		return strings.TrimSpace(proofPrefix) + "\n\n" + problem
	}

	signatureEnd := strings.LastIndex(problem, ":=")
	if signatureEnd == -1 {
		return strings.TrimSpace(proofPrefix) + "\n\n" + problem
	}

	newSignature := problem[problemTheoremStart:signatureEnd]
	return strings.TrimSpace(proofPrefix) + "\n\n" + strings.TrimSpace(newSignature) + " " + strings.TrimSpace(originalProofPart)
}

// ExtractOpenLine returns the first line of header that begins (after
// whitespace) with "open".
func ExtractOpenLine(header string) (string, bool) {
	for _, line := range strings.Split(header, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "open") {
			return line, true
		}
	}
	return "", false
}

// ProcessImportPart returns the canonical header, substituting in the
// problem's own open line when it has one.
func ProcessImportPart(header string) string {
	line, ok := ExtractOpenLine(header)
	if !ok {
		return DefaultHeader
	}
	return defaultHeaderNoOpen + line + "\n\n"
}

// ProcessOutput turns raw LLM output into a compilable Lean file: extract
// the last fenced block, strip comments and any axiom preamble, substitute
// in statement's theorem signature, reject adversarial output (apply?,
// exact?, admit, a new axiom) by falling back to statement, prepend the
// canonical header (preserving statement's own open line), and splice in
// facts verbatim when supplied.
func ProcessOutput(output, statement string, facts []string) string {
	useFacts := len(facts) > 0
	var axiomsStr string
	if useFacts {
		axiomsStr = strings.Join(facts, "\n\n")
	}

	block := ExtractLeanBlock(output)
	importsAndOpens, _ := SplitProofAtFirstStatement(statement)

	candidate := RemoveImportsFromProof(analysis.RemoveCommentsAndAxiomsFromProof(block))
	candidate = SubstituteFinalTheorem(candidate, statement)
	candidate = strings.TrimSpace(candidate)

	if reject, _ := analysis.ShouldReject(candidate, nil); reject {
		return statement
	}

	header := ProcessImportPart(importsAndOpens)
	if useFacts {
		return header + "\n\n" + axiomsStr + "\n\n" + candidate
	}
	return header + candidate
}
