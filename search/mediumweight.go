package search

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/leanmesh/leanmesh/analysis"
	"github.com/leanmesh/leanmesh/internal/pool"
	"github.com/leanmesh/leanmesh/types"
)

// MediumweightConfig configures one mediumweight search orchestration. The
// embedded LightweightConfig is reused verbatim for both the initial
// single-shot attempt and every per-lemma subproblem fix.
type MediumweightConfig struct {
	LightweightConfig
}

// CorrectLemma is one lemma known to be fully correct, tagged with where
// that knowledge came from: the initial attempt, or the subproblem fix for
// a named failing lemma.
type CorrectLemma struct {
	Name               string
	Kind               types.DeclKind
	Statement          string
	Source             string
	Dependencies       []string
	DirectDependencies []string
}

// MediumweightResult is the outcome of one mediumweight search pass.
type MediumweightResult struct {
	Name              string
	Code              string
	CompilationResult types.CompilationResult
	Usage             types.Usage
	CorrectLemmas     []CorrectLemma
	Report            *types.AnalysisReport
	ExecutionLog      []string
}

// MediumweightSearch runs an initial full-proof attempt; if it fails with
// recoverable errors, it decomposes the proof into per-lemma subproblems via
// ProofAnalysis, fixes each concurrently with a lightweight search, splices
// the fixes back in, and recompiles. One failed subproblem aborts the whole
// pass with the patched-but-broken state rather than guessing.
func MediumweightSearch(ctx context.Context, infer Inferencer, compiler Compiler, cfg MediumweightConfig, name, statement string, facts []string) MediumweightResult {
	log := func(r *MediumweightResult, format string, args ...any) {
		r.ExecutionLog = append(r.ExecutionLog, fmt.Sprintf(format, args...))
	}

	result := MediumweightResult{Name: name}
	log(&result, "[%s] starting initial full proof generation", name)

	single := cfg.LightweightConfig
	single.NumPasses = 1
	initial := LightweightSearch(ctx, infer, compiler, single, name+"_initial", statement, facts)
	result.Usage.Add(initial.Usage)
	result.Code = initial.Code
	result.CompilationResult = initial.CompilationResult

	if initial.CompilationResult.Complete {
		log(&result, "[%s] success on first attempt", name)
		return result
	}

	if len(initial.CompilationResult.Errors) == 0 {
		log(&result, "WARN [%s] initial proof incomplete but carries no errors, cannot proceed", name)
		return result
	}

	log(&result, "[%s] initial proof has errors, decomposing into subproblems", name)
	proof := analysis.New(initial.Code)
	_ = proof.VerifyAllLemmas(ctx, compilerAdapter{compiler})
	if ctx.Err() != nil {
		log(&result, "[%s] cancelled during lemma verification", name)
		r := proof.Report()
		result.Report = &r
		return result
	}

	for _, lemma := range proof.FullyCorrectLemmas() {
		result.CorrectLemmas = append(result.CorrectLemmas, CorrectLemma{
			Name:               lemma.Name,
			Kind:               lemma.Kind,
			Statement:          lemma.Statement,
			Source:             "initial_attempt_correct",
			Dependencies:       lemma.Dependencies,
			DirectDependencies: lemma.DirectDependencies,
		})
	}

	errorLemmas := proof.ErrorDeclarations()
	// ErrorDeclarations is alphabetical; fixes are launched in source order.
	sort.SliceStable(errorLemmas, func(i, j int) bool {
		di, _ := proof.Declaration(errorLemmas[i])
		dj, _ := proof.Declaration(errorLemmas[j])
		return di.StartLine < dj.StartLine
	})
	if len(errorLemmas) == 0 {
		log(&result, "WARN [%s] compilation failed but no specific error lemmas were identified", name)
		r := proof.Report()
		result.Report = &r
		return result
	}
	log(&result, "[%s] identified %d faulty lemmas to fix in parallel", name, len(errorLemmas))

	type fixOutcome struct {
		lemmaName  string
		subproblem string
		res        LightweightResult
		ok         bool
	}

	var wg sync.WaitGroup
	outcomes := make([]fixOutcome, 0, len(errorLemmas))
	var outcomesMu sync.Mutex

	// Every faulty lemma gets its own bounded worker: the pool caps
	// concurrent fix attempts at len(errorLemmas) rather than leaving the
	// fan-out unmanaged, and recovers a panicking fix instead of losing the
	// whole mediumweight pass to it.
	gpCfg := pool.DefaultGoroutinePoolConfig()
	gpCfg.MaxWorkers = len(errorLemmas)
	gpCfg.QueueSize = len(errorLemmas)
	gp := pool.NewGoroutinePool(gpCfg)

	for _, lemmaName := range errorLemmas {
		subproblem, err := proof.ConstructSubproblem(lemmaName)
		if err != nil {
			log(&result, "ERROR [%s] could not construct subproblem for %s: %v", name, lemmaName, err)
			continue
		}

		combinedFacts := append(append([]string{}, facts...), subproblem.Facts...)
		subName := fmt.Sprintf("%s_fix_%s", name, lemmaName)

		fixTask := func(lemmaName, subName, subStatement string, subFacts []string) func(context.Context) error {
			return func(ctx context.Context) error {
				defer wg.Done()
				sub := LightweightSearch(ctx, infer, compiler, cfg.LightweightConfig, subName, subStatement, subFacts)
				outcomesMu.Lock()
				outcomes = append(outcomes, fixOutcome{lemmaName: lemmaName, subproblem: subStatement, res: sub, ok: sub.CompilationResult.Complete})
				outcomesMu.Unlock()
				return nil
			}
		}(lemmaName, subName, subproblem.Code, combinedFacts)

		wg.Add(1)
		if err := gp.Submit(ctx, fixTask); err != nil {
			_ = fixTask(ctx)
		}
	}
	wg.Wait()
	gp.Close()

	allSuccessful := true
	for _, o := range outcomes {
		result.Usage.Add(o.res.Usage)
		if !o.ok {
			allSuccessful = false
			log(&result, "failed to fix lemma %q: lightweight search did not find a complete proof", o.lemmaName)
			continue
		}
		log(&result, "successfully fixed lemma %q", o.lemmaName)
		if err := proof.FixLemma(o.lemmaName, o.subproblem, o.res.Code); err != nil {
			allSuccessful = false
			log(&result, "ERROR splicing fix for %q: %v", o.lemmaName, err)
			continue
		}

		fixedAnalysis := analysis.New(o.res.Code)
		for _, lemma := range fixedAnalysis.FullyCorrectLemmas() {
			result.CorrectLemmas = append(result.CorrectLemmas, CorrectLemma{
				Name:               lemma.Name,
				Kind:               lemma.Kind,
				Statement:          lemma.Statement,
				Source:             "fixed_subproblem_" + o.lemmaName,
				Dependencies:       lemma.Dependencies,
				DirectDependencies: lemma.DirectDependencies,
			})
		}
	}

	if !allSuccessful {
		log(&result, "aborting mediumweight search: one or more subproblems failed to fix")
		result.Code = proof.CurrentCode()
		result.CompilationResult = types.CompilationResult{Pass: false, Complete: false}
		r := proof.Report()
		result.Report = &r
		return result
	}

	log(&result, "[%s] all faulty lemmas patched, performing final verification", name)
	finalCode := proof.CurrentCode()
	final := compileOrFailure(ctx, compiler, name+"_final", finalCode)

	result.Code = finalCode
	result.CompilationResult = final
	r := proof.Report()
	result.Report = &r
	if final.Complete {
		log(&result, "[%s] mediumweight search successful", name)
	} else {
		log(&result, "WARN [%s] mediumweight search finished without a correct final proof", name)
	}
	return result
}

// compilerAdapter narrows search.Compiler down to analysis.Compiler's
// identical method set; both packages declare the interface at their own
// point of use rather than sharing a type.
type compilerAdapter struct{ c Compiler }

func (a compilerAdapter) Submit(ctx context.Context, task types.CompileTask) (types.CompilationResult, error) {
	return a.c.Submit(ctx, task)
}

// PassLemmas is one mediumweight pass's contribution to a lemma_collection
// summary: every correct lemma it found, whether or not the pass as a whole
// succeeded, tagged with the pass that produced it.
type PassLemmas struct {
	PassIndex             int
	PassName              string
	Lemmas                []CorrectLemma
	CompilationSuccessful bool
}

// LemmaCollection summarizes correct-lemma yield across every pass of a
// MediumweightOrchestrate run, including passes cancelled after a sibling
// succeeded.
type LemmaCollection struct {
	TotalPasses     int
	CompletedPasses int
	PassesWithLemmas []PassLemmas
	AllPasses       []PassLemmas
}

// MediumweightOrchestrate runs numPasses parallel MediumweightSearch
// attempts, returning the first complete proof (cancelling the rest) or,
// failing that, the first pass to finish. Every pass's correct-lemma yield
// is aggregated into the returned LemmaCollection regardless of outcome.
func MediumweightOrchestrate(ctx context.Context, infer Inferencer, compiler Compiler, cfg MediumweightConfig, numPasses int, name, statement string, facts []string) (MediumweightResult, LemmaCollection) {
	if numPasses <= 0 {
		numPasses = 1
	}

	passCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	type indexed struct {
		index int
		res   MediumweightResult
	}
	gpCfg := pool.DefaultGoroutinePoolConfig()
	gpCfg.MaxWorkers = numPasses
	gpCfg.QueueSize = numPasses
	gp := pool.NewGoroutinePool(gpCfg)
	defer gp.Close()

	results := make(chan indexed, numPasses)
	for i := 0; i < numPasses; i++ {
		passName := fmt.Sprintf("%s_pass%d", name, i)
		passTask := func(i int, passName string) func(context.Context) error {
			return func(ctx context.Context) error {
				results <- indexed{index: i, res: MediumweightSearch(ctx, infer, compiler, cfg, passName, statement, facts)}
				return nil
			}
		}(i, passName)
		if err := gp.Submit(passCtx, passTask); err != nil {
			_ = passTask(passCtx)
		}
	}

	collection := LemmaCollection{TotalPasses: numPasses}
	var successful *MediumweightResult
	var first *MediumweightResult
	var totalUsage types.Usage

	for i := 0; i < numPasses; i++ {
		r := <-results
		collection.CompletedPasses++
		totalUsage.Add(r.res.Usage)

		pl := PassLemmas{
			PassIndex:             r.index,
			PassName:              r.res.Name,
			Lemmas:                r.res.CorrectLemmas,
			CompilationSuccessful: r.res.CompilationResult.Complete,
		}
		collection.AllPasses = append(collection.AllPasses, pl)
		if len(pl.Lemmas) > 0 {
			collection.PassesWithLemmas = append(collection.PassesWithLemmas, pl)
		}

		if first == nil {
			rc := r.res
			first = &rc
		}
		if r.res.CompilationResult.Complete && successful == nil {
			rc := r.res
			successful = &rc
			cancel()
		}
	}

	var out MediumweightResult
	if successful != nil {
		out = *successful
	} else if first != nil {
		out = *first
	} else {
		out = MediumweightResult{CompilationResult: types.CompilationResult{Pass: false, Complete: false}}
	}
	out.Name = name
	out.Usage = totalUsage
	return out, collection
}
