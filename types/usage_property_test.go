package types

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// Usage.Add is plain field-wise accumulation, so folding a sequence of
// Usage values into an accumulator one at a time must equal summing each
// field independently, regardless of fold order.
func TestUsageAddIsOrderIndependentSum(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("folding usages in any order yields the same totals", prop.ForAll(
		func(prompts, completions, totals []int) bool {
			n := len(prompts)
			if len(completions) < n {
				n = len(completions)
			}
			if len(totals) < n {
				n = len(totals)
			}
			usages := make([]Usage, n)
			for i := 0; i < n; i++ {
				usages[i] = Usage{PromptTokens: prompts[i], CompletionTokens: completions[i], TotalTokens: totals[i]}
			}

			forward := &Usage{}
			for _, u := range usages {
				forward.Add(u)
			}

			backward := &Usage{}
			for i := len(usages) - 1; i >= 0; i-- {
				backward.Add(usages[i])
			}

			var wantPrompt, wantCompletion, wantTotal int
			for _, u := range usages {
				wantPrompt += u.PromptTokens
				wantCompletion += u.CompletionTokens
				wantTotal += u.TotalTokens
			}

			if forward.PromptTokens != wantPrompt || forward.CompletionTokens != wantCompletion || forward.TotalTokens != wantTotal {
				t.Logf("forward fold mismatch: got %+v, want prompt=%d completion=%d total=%d", forward, wantPrompt, wantCompletion, wantTotal)
				return false
			}
			if backward.PromptTokens != wantPrompt || backward.CompletionTokens != wantCompletion || backward.TotalTokens != wantTotal {
				t.Logf("backward fold mismatch: got %+v, want prompt=%d completion=%d total=%d", backward, wantPrompt, wantCompletion, wantTotal)
				return false
			}
			return true
		},
		gen.SliceOf(gen.IntRange(0, 100_000)),
		gen.SliceOf(gen.IntRange(0, 100_000)),
		gen.SliceOf(gen.IntRange(0, 100_000)),
	))

	properties.TestingRun(t)
}

// Add returns its receiver so call sites can chain; verify that invariant
// holds independent of the values involved.
func TestUsageAddReturnsReceiver(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50

	properties := gopter.NewProperties(parameters)

	properties.Property("Add returns a pointer to the same accumulator", prop.ForAll(
		func(a, b, c int) bool {
			u := &Usage{PromptTokens: a}
			other := Usage{PromptTokens: b, CompletionTokens: c}
			got := u.Add(other)
			return got == u
		},
		gen.Int(), gen.Int(), gen.Int(),
	))

	properties.TestingRun(t)
}
