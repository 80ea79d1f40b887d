package analysis

import (
	"strings"

	"github.com/leanmesh/leanmesh/types"
)

// RejectionRule inspects a candidate proof body and reports whether it
// should be rejected outright (replaced by the original problem statement)
// rather than fed to the compiler. Kept pluggable per the design notes: the
// fenced-block/apply? rules are adversarial filters against the LLM, not
// structural guarantees, and may be tightened without touching search.
type RejectionRule func(candidate string) (reject bool, reason string)

// DefaultRejectionRules is the closed set of heuristics from section 4.6:
// a candidate containing apply?, exact?, admit, or declaring a new axiom is
// rejected.
var DefaultRejectionRules = []RejectionRule{
	rejectSubstring("apply?"),
	rejectSubstring("exact?"),
	rejectSubstring("admit"),
	rejectNewAxiom,
}

func rejectSubstring(needle string) RejectionRule {
	return func(candidate string) (bool, string) {
		if strings.Contains(candidate, needle) {
			return true, "contains " + needle
		}
		return false, ""
	}
}

func rejectNewAxiom(candidate string) (bool, string) {
	for _, d := range ExtractDeclarations(candidate) {
		if d.Kind == types.DeclAxiom {
			return true, "introduces a new axiom"
		}
	}
	return false, ""
}

// ShouldReject runs rules in order and returns the first match, or
// (false, "") if none fire.
func ShouldReject(candidate string, rules []RejectionRule) (bool, string) {
	if rules == nil {
		rules = DefaultRejectionRules
	}
	for _, rule := range rules {
		if reject, reason := rule(candidate); reject {
			return reject, reason
		}
	}
	return false, ""
}
