package search

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/leanmesh/leanmesh/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleStatement = "theorem t (n : Nat) : n = n := by sorry"

// fakeInferencer returns content by calling a user function, counting
// submissions so tests can assert on call volume.
type fakeInferencer struct {
	mu    sync.Mutex
	calls int
	fn    func(ctx context.Context, task types.InferenceTask, priority int64) (types.InferenceResult, error)
}

func (f *fakeInferencer) Submit(ctx context.Context, task types.InferenceTask, priority int64) (types.InferenceResult, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	return f.fn(ctx, task, priority)
}

// fakeCompileScheduler compiles by calling a user function with the number
// of prior calls across all task names.
type fakeCompileScheduler struct {
	mu    sync.Mutex
	calls []types.CompileTask
	fn    func(task types.CompileTask, callIndex int) types.CompilationResult
}

func (f *fakeCompileScheduler) Submit(ctx context.Context, task types.CompileTask) (types.CompilationResult, error) {
	f.mu.Lock()
	idx := len(f.calls)
	f.calls = append(f.calls, task)
	f.mu.Unlock()
	return f.fn(task, idx), nil
}

func completeResult() types.CompilationResult {
	return types.CompilationResult{Pass: true, Complete: true}
}

func failingResult(msg string) types.CompilationResult {
	return types.CompilationResult{
		Pass: false, Complete: false,
		Errors: []types.ErrorMessage{{Severity: "error", Pos: types.Position{Line: 1, Column: 0}, Data: msg}},
	}
}

func TestLightweightSearchSucceedsOnFirstAttempt(t *testing.T) {
	infer := &fakeInferencer{fn: func(ctx context.Context, task types.InferenceTask, priority int64) (types.InferenceResult, error) {
		return types.InferenceResult{
			Content: "```lean4\ntheorem t (n : Nat) : n = n := by rfl\n```",
			Usage:   types.Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
		}, nil
	}}
	compiler := &fakeCompileScheduler{fn: func(task types.CompileTask, idx int) types.CompilationResult {
		return completeResult()
	}}

	cfg := LightweightConfig{Model: "m", NumRevisions: 2, NumPasses: 1, ProblemIndex: 1}
	res := LightweightSearch(context.Background(), infer, compiler, cfg, "p1", sampleStatement, nil)

	require.True(t, res.CompilationResult.Complete)
	assert.Equal(t, "p1", res.Name)
	assert.Equal(t, 15, res.Usage.TotalTokens)
	assert.Equal(t, 1, infer.calls)
}

func TestLightweightSearchRevisesUntilComplete(t *testing.T) {
	infer := &fakeInferencer{fn: func(ctx context.Context, task types.InferenceTask, priority int64) (types.InferenceResult, error) {
		return types.InferenceResult{
			Content: "```lean4\ntheorem t (n : Nat) : n = n := by rfl\n```",
			Usage:   types.Usage{PromptTokens: 1, CompletionTokens: 1, TotalTokens: 2},
		}, nil
	}}
	compiler := &fakeCompileScheduler{fn: func(task types.CompileTask, idx int) types.CompilationResult {
		if idx < 2 {
			return failingResult("unsolved goals")
		}
		return completeResult()
	}}

	cfg := LightweightConfig{Model: "m", NumRevisions: 3, NumPasses: 1, ProblemIndex: 1}
	res := LightweightSearch(context.Background(), infer, compiler, cfg, "p1", sampleStatement, nil)

	require.True(t, res.CompilationResult.Complete)
	assert.Equal(t, 3, infer.calls)
	assert.Equal(t, 6, res.Usage.TotalTokens)
}

func TestLightweightSearchExhaustsRevisionsAndReturnsLast(t *testing.T) {
	infer := &fakeInferencer{fn: func(ctx context.Context, task types.InferenceTask, priority int64) (types.InferenceResult, error) {
		return types.InferenceResult{Content: "```lean4\ntheorem t (n : Nat) : n = n := by rfl\n```"}, nil
	}}
	compiler := &fakeCompileScheduler{fn: func(task types.CompileTask, idx int) types.CompilationResult {
		return failingResult("still broken")
	}}

	cfg := LightweightConfig{Model: "m", NumRevisions: 2, NumPasses: 1, ProblemIndex: 1}
	res := LightweightSearch(context.Background(), infer, compiler, cfg, "p1", sampleStatement, nil)

	assert.False(t, res.CompilationResult.Complete)
	assert.Equal(t, 3, infer.calls) // initial + 2 revisions
}

func TestLightweightSearchFirstCompletePassCancelsSiblings(t *testing.T) {
	var fastDone int32
	infer := &fakeInferencer{fn: func(ctx context.Context, task types.InferenceTask, priority int64) (types.InferenceResult, error) {
		return types.InferenceResult{
			Content: "```lean4\ntheorem t (n : Nat) : n = n := by rfl\n```",
			Usage:   types.Usage{TotalTokens: 1},
		}, nil
	}}
	compiler := &fakeCompileScheduler{fn: func(task types.CompileTask, idx int) types.CompilationResult {
		atomic.AddInt32(&fastDone, 1)
		return completeResult()
	}}

	cfg := LightweightConfig{Model: "m", NumRevisions: 1, NumPasses: 5, ProblemIndex: 1}
	res := LightweightSearch(context.Background(), infer, compiler, cfg, "p1", sampleStatement, nil)

	require.True(t, res.CompilationResult.Complete)
	assert.Equal(t, "p1", res.Name)
	assert.GreaterOrEqual(t, res.Usage.TotalTokens, 1)
}

func TestLightweightSearchInitialInferenceErrorConsumesRevisionBudget(t *testing.T) {
	calls := 0
	infer := &fakeInferencer{fn: func(ctx context.Context, task types.InferenceTask, priority int64) (types.InferenceResult, error) {
		calls++
		if calls <= 2 {
			return types.InferenceResult{}, assert.AnError
		}
		return types.InferenceResult{Content: "```lean4\ntheorem t (n : Nat) : n = n := by rfl\n```"}, nil
	}}
	compiler := &fakeCompileScheduler{fn: func(task types.CompileTask, idx int) types.CompilationResult {
		return completeResult()
	}}

	cfg := LightweightConfig{Model: "m", NumRevisions: 2, NumPasses: 1, ProblemIndex: 1}
	res := LightweightSearch(context.Background(), infer, compiler, cfg, "p1", sampleStatement, nil)

	require.True(t, res.CompilationResult.Complete)
	assert.Equal(t, 3, calls)
}

func TestLightweightSearchInitialInferenceFailsAfterBudgetExhausted(t *testing.T) {
	infer := &fakeInferencer{fn: func(ctx context.Context, task types.InferenceTask, priority int64) (types.InferenceResult, error) {
		return types.InferenceResult{}, assert.AnError
	}}
	compiler := &fakeCompileScheduler{fn: func(task types.CompileTask, idx int) types.CompilationResult {
		return completeResult()
	}}

	cfg := LightweightConfig{Model: "m", NumRevisions: 1, NumPasses: 1, ProblemIndex: 1}
	res := LightweightSearch(context.Background(), infer, compiler, cfg, "p1", sampleStatement, nil)

	assert.False(t, res.CompilationResult.Complete)
	require.Len(t, res.CompilationResult.Errors, 1)
	assert.Contains(t, res.CompilationResult.Errors[0].Data, "initial inference failed")
}

func TestLightweightSearchPriorityDecreasesAcrossRevisions(t *testing.T) {
	var priorities []int64
	var mu sync.Mutex
	infer := &fakeInferencer{fn: func(ctx context.Context, task types.InferenceTask, priority int64) (types.InferenceResult, error) {
		mu.Lock()
		priorities = append(priorities, priority)
		mu.Unlock()
		return types.InferenceResult{Content: "```lean4\ntheorem t (n : Nat) : n = n := by rfl\n```"}, nil
	}}
	compiler := &fakeCompileScheduler{fn: func(task types.CompileTask, idx int) types.CompilationResult {
		return failingResult("nope")
	}}

	cfg := LightweightConfig{Model: "m", NumRevisions: 2, NumPasses: 1, ProblemIndex: 2}
	LightweightSearch(context.Background(), infer, compiler, cfg, "p1", sampleStatement, nil)

	require.Len(t, priorities, 3)
	assert.Equal(t, int64(32), priorities[0]) // problemIndex(2) * 16
	assert.Equal(t, int64(31), priorities[1])
	assert.Equal(t, int64(30), priorities[2])
}
