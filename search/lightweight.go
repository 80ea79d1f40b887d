// Package search implements the lightweight and mediumweight proof search
// strategies: generate-compile-revise loops over the inference and
// compilation schedulers, and (for mediumweight) lemma-level decomposition
// via the analysis package.
package search

import (
	"context"
	"fmt"
	"sync"

	"github.com/leanmesh/leanmesh/internal/pool"
	"github.com/leanmesh/leanmesh/prompt"
	"github.com/leanmesh/leanmesh/types"
)

// Inferencer is the subset of the inference scheduler's interface search
// needs. Satisfied by *scheduler.InferenceScheduler without either package
// importing the other.
type Inferencer interface {
	Submit(ctx context.Context, task types.InferenceTask, priority int64) (types.InferenceResult, error)
}

// Compiler is the subset of the compilation scheduler's interface search
// needs. Satisfied by *scheduler.CompileScheduler.
type Compiler interface {
	Submit(ctx context.Context, task types.CompileTask) (types.CompilationResult, error)
}

// priorityInitial is the base multiplier applied to a problem's index to
// derive its initial-attempt priority: later problems get a larger (lower
// priority) number, and a revision of the same problem always outranks a
// later problem's initial attempt under the same scale.
const priorityInitial = 16

// LightweightConfig configures one lightweight search orchestration.
type LightweightConfig struct {
	Model        string
	NumRevisions int
	NumPasses    int
	ProblemIndex int64
	MaxTokens    int
	Temperature  float64
	TopP         float64
}

// LightweightResult is the outcome of a lightweight search: the best code
// found, its compilation result, and token usage accumulated across every
// pass, including passes cancelled after a sibling succeeded.
type LightweightResult struct {
	Name              string
	Code              string
	CompilationResult types.CompilationResult
	Usage             types.Usage
}

type usageAccumulator struct {
	mu    sync.Mutex
	total types.Usage
}

func (a *usageAccumulator) add(u types.Usage) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.total.Add(u)
}

func (a *usageAccumulator) snapshot() types.Usage {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.total
}

// LightweightSearch runs cfg.NumPasses concurrent generate-then-revise
// attempts at statement, all sharing one token accumulator. The first pass
// to produce a complete proof cancels the rest; its usage and every
// sibling's usage up to cancellation are both reflected in the returned
// Usage. If no pass completes, the first pass to finish at all (by whatever
// order passes happen to return) is reported.
func LightweightSearch(ctx context.Context, infer Inferencer, compiler Compiler, cfg LightweightConfig, name, statement string, facts []string) LightweightResult {
	if cfg.NumPasses <= 0 {
		cfg.NumPasses = 1
	}

	usage := &usageAccumulator{}
	passCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	// A GoroutinePool bounds the passes to exactly cfg.NumPasses concurrent
	// workers (rather than cfg.NumPasses unmanaged goroutines) and recovers
	// a panicking pass instead of crashing the process.
	gpCfg := pool.DefaultGoroutinePoolConfig()
	gpCfg.MaxWorkers = cfg.NumPasses
	gpCfg.QueueSize = cfg.NumPasses
	gp := pool.NewGoroutinePool(gpCfg)
	defer gp.Close()

	results := make(chan LightweightResult, cfg.NumPasses)
	for i := 0; i < cfg.NumPasses; i++ {
		passName := fmt.Sprintf("%s_pass%d", name, i)
		if err := gp.Submit(passCtx, func(ctx context.Context) error {
			results <- lightweightSinglePass(ctx, infer, compiler, cfg, passName, statement, facts, usage)
			return nil
		}); err != nil {
			results <- lightweightSinglePass(passCtx, infer, compiler, cfg, passName, statement, facts, usage)
		}
	}

	var first *LightweightResult
	for i := 0; i < cfg.NumPasses; i++ {
		r := <-results
		if first == nil {
			rc := r
			first = &rc
		}
		if r.CompilationResult.Complete {
			cancel()
			for j := 0; j < cfg.NumPasses-i-1; j++ {
				<-results
			}
			out := r
			out.Name = name
			out.Usage = usage.snapshot()
			return out
		}
	}

	if first == nil {
		return LightweightResult{
			Name:              name,
			CompilationResult: types.CompilationResult{Pass: false, Complete: false},
			Usage:             usage.snapshot(),
		}
	}
	out := *first
	out.Name = name
	out.Usage = usage.snapshot()
	return out
}

// lightweightSinglePass runs one generate-compile-revise chain. It mirrors
// the reference implementation's exception handling: an error on the
// initial inference step consumes a revision from the budget and retries,
// failing outright only once the budget is exhausted; an error on a later
// step just falls through to the next revision round, carrying the
// previous code and errors forward, unless it was the final round.
func lightweightSinglePass(ctx context.Context, infer Inferencer, compiler Compiler, cfg LightweightConfig, passName, statement string, facts []string, usage *usageAccumulator) LightweightResult {
	basePriority := cfg.ProblemIndex * priorityInitial
	extra := map[string]any{"max_tokens": cfg.MaxTokens, "temperature": cfg.Temperature, "top_p": cfg.TopP}

	revisionsLeft := cfg.NumRevisions
	var code string
	for {
		select {
		case <-ctx.Done():
			return LightweightResult{Name: passName}
		default:
		}

		input := prompt.FormatInferenceInput(statement, facts)
		res, err := infer.Submit(ctx, types.InferenceTask{Model: cfg.Model, Prompt: types.TextPrompt(input), ExtraParams: extra}, basePriority)
		if err != nil {
			if ctx.Err() != nil {
				return LightweightResult{Name: passName}
			}
			revisionsLeft--
			if revisionsLeft < 0 {
				return LightweightResult{
					Name: passName,
					CompilationResult: types.CompilationResult{
						Errors: []types.ErrorMessage{{Data: fmt.Sprintf("initial inference failed: %v", err)}},
					},
				}
			}
			continue
		}
		usage.add(res.Usage)
		code = prompt.ProcessOutput(res.Content, statement, facts)
		break
	}

	compileResult := compileOrFailure(ctx, compiler, passName, code)
	if compileResult.Complete {
		return LightweightResult{Name: passName, Code: code, CompilationResult: compileResult}
	}

	lastCode := code
	lastErrors := compileResult.Errors

	for round := 0; round < revisionsLeft; round++ {
		if ctx.Err() != nil {
			return LightweightResult{Name: passName, Code: lastCode, CompilationResult: compileResult}
		}

		revisionInput := prompt.FormatRevisionInput(statement, lastCode, lastErrors, facts)
		priority := basePriority - int64(round) - 1

		res, err := infer.Submit(ctx, types.InferenceTask{Model: cfg.Model, Prompt: types.TextPrompt(revisionInput), ExtraParams: extra}, priority)
		if err != nil {
			if ctx.Err() != nil {
				return LightweightResult{Name: passName, Code: lastCode, CompilationResult: compileResult}
			}
			if round != revisionsLeft-1 {
				continue
			}
			return LightweightResult{
				Name: passName,
				CompilationResult: types.CompilationResult{
					Errors: []types.ErrorMessage{{Data: fmt.Sprintf("revision inference failed: %v", err)}},
				},
			}
		}
		usage.add(res.Usage)
		if res.Content == "" {
			continue
		}
		code = prompt.ProcessOutput(res.Content, statement, facts)

		compileResult = compileOrFailure(ctx, compiler, passName, code)
		if compileResult.Complete {
			return LightweightResult{Name: passName, Code: code, CompilationResult: compileResult}
		}
		lastCode = code
		lastErrors = compileResult.Errors
	}

	return LightweightResult{Name: passName, Code: lastCode, CompilationResult: compileResult}
}

// compileOrFailure submits code for compilation and normalizes a transport
// or scheduler error into a ChildProcessFailure result rather than
// propagating it, so a revision round can still run.
func compileOrFailure(ctx context.Context, compiler Compiler, name, code string) types.CompilationResult {
	result, err := compiler.Submit(ctx, types.CompileTask{Name: name, Code: code})
	if err != nil {
		return types.ChildProcessFailure(fmt.Sprintf("compilation failed: %v", err))
	}
	return result
}
