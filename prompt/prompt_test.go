package prompt

import (
	"strings"
	"testing"

	"github.com/leanmesh/leanmesh/types"
	"github.com/stretchr/testify/assert"
)

func TestFormatInferenceInputFactsNilVsEmpty(t *testing.T) {
	nilFacts := FormatInferenceInput("theorem t : True := by sorry", nil)
	assert.Contains(t, nilFacts, "```\n```")

	emptyFacts := FormatInferenceInput("theorem t : True := by sorry", []string{})
	assert.Contains(t, emptyFacts, "proved facts")
	assert.NotEqual(t, nilFacts, emptyFacts)
}

func TestFormatRevisionInputNilAndEmptyAreEquivalent(t *testing.T) {
	errs := []types.ErrorMessage{{Severity: "error", Pos: types.Position{Line: 1, Column: 0}, Data: "boom"}}
	withNil := FormatRevisionInput("theorem t : True := by sorry", "theorem t : True := by x", errs, nil)
	withEmpty := FormatRevisionInput("theorem t : True := by sorry", "theorem t : True := by x", errs, []string{})
	assert.Equal(t, withNil, withEmpty)

	withFacts := FormatRevisionInput("theorem t : True := by sorry", "theorem t : True := by x", errs, []string{"axiom f : True"})
	assert.NotEqual(t, withNil, withFacts)
	assert.Contains(t, withFacts, "axiom f : True")
}

func TestFormatErrorsSingleLineMarksSpan(t *testing.T) {
	code := "theorem t (n : Nat) : n = n := by\n  exact rfl\n"
	errs := []types.ErrorMessage{{
		Severity: "error",
		Pos:      types.Position{Line: 2, Column: 2},
		EndPos:   &types.Position{Line: 2, Column: 11},
		Data:     "unsolved goals",
	}}
	out := FormatErrors(code, errs, true)
	assert.Contains(t, out, "<error>")
	assert.Contains(t, out, "</error>")
	assert.Contains(t, out, "Error Message: unsolved goals")
}

func TestFormatErrorsOmitsBeyondLimit(t *testing.T) {
	code := strings.Repeat("line\n", 5)
	var errs []types.ErrorMessage
	for i := 0; i < 10; i++ {
		errs = append(errs, types.ErrorMessage{Severity: "error", Pos: types.Position{Line: 1, Column: 0}, Data: "e"})
	}
	out := FormatErrors(code, errs, true)
	assert.Contains(t, out, "[Omitted 2 more errors]")
}

func TestExtractLeanBlockPrefersLean4Fence(t *testing.T) {
	output := "blah ```lean theorem x := by sorry``` more ```lean4\ntheorem y := by rfl\n```"
	assert.Contains(t, ExtractLeanBlock(output), "theorem y")
}

func TestProcessOutputRejectsApplyQuestionMark(t *testing.T) {
	statement := "theorem t : True := by sorry"
	output := "```lean4\ntheorem t : True := by apply?\n```"
	assert.Equal(t, statement, ProcessOutput(output, statement, nil))
}

func TestProcessOutputSubstitutesStatementAndPrependsHeader(t *testing.T) {
	statement := "open Nat\n\ntheorem t (n : Nat) : n = n := by sorry"
	output := "```lean4\ntheorem t (n : Nat) : n = n := by rfl\n```"
	got := ProcessOutput(output, statement, nil)
	assert.Contains(t, got, "theorem t (n : Nat) : n = n := by rfl")
	assert.Contains(t, got, "open Nat")
}

func TestProcessOutputSplicesFacts(t *testing.T) {
	statement := "theorem t : True := by sorry"
	output := "```lean4\ntheorem t : True := by trivial\n```"
	got := ProcessOutput(output, statement, []string{"axiom f : True"})
	assert.Contains(t, got, "axiom f : True")
	assert.Contains(t, got, "theorem t : True := by trivial")
}
