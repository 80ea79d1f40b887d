package analysis

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/leanmesh/leanmesh/types"
	"golang.org/x/sync/errgroup"
)

// Compiler is the subset of the compilation scheduler's interface that
// proof analysis needs: submit one file and get back a result. Satisfied
// by *scheduler.CompileScheduler without either package importing the
// other.
type Compiler interface {
	Submit(ctx context.Context, task types.CompileTask) (types.CompilationResult, error)
}

var keywordRE = regexp.MustCompile(`^(\s*)(lemma|theorem)\b`)

// ProofAnalysis is the mutable model of one candidate proof: the header,
// a name->Declaration table, the set of declarations with a failed
// isolated verification, and the history of repairs applied via FixLemma.
type ProofAnalysis struct {
	mu sync.Mutex

	originalCode string
	currentCode  string
	header       string

	decls map[string]*types.Declaration
	order []string // source order of decl names, kept in sync with currentCode

	errorDecls   map[string]struct{}
	verification map[string]types.CompilationResult
	fixHistory   map[string]types.FixRecord
	verifiedOnce bool
}

// New parses source into a ProofAnalysis: header extraction, declaration
// extraction, and dependency computation.
func New(source string) *ProofAnalysis {
	header, _ := ExtractHeader(source)
	decls := ExtractDeclarations(source)
	ComputeDependencies(decls)

	a := &ProofAnalysis{
		originalCode: source,
		currentCode:  source,
		header:       header,
		decls:        make(map[string]*types.Declaration, len(decls)),
		fixHistory:   make(map[string]types.FixRecord),
		verification: make(map[string]types.CompilationResult),
		errorDecls:   make(map[string]struct{}),
	}
	for _, d := range decls {
		a.decls[d.Name] = d
		a.order = append(a.order, d.Name)
	}
	return a
}

// Header returns the extracted import/open/set_option prefix.
func (a *ProofAnalysis) Header() string { a.mu.Lock(); defer a.mu.Unlock(); return a.header }

// CurrentCode returns the current (possibly repaired) source.
func (a *ProofAnalysis) CurrentCode() string { a.mu.Lock(); defer a.mu.Unlock(); return a.currentCode }

// Declaration returns the declaration named name, if any.
func (a *ProofAnalysis) Declaration(name string) (*types.Declaration, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	d, ok := a.decls[name]
	return d, ok
}

// ErrorDeclarations returns the names with a failed isolated verification,
// sorted for determinism.
func (a *ProofAnalysis) ErrorDeclarations() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.sortedErrorDecls()
}

func (a *ProofAnalysis) sortedErrorDecls() []string {
	names := make([]string, 0, len(a.errorDecls))
	for n := range a.errorDecls {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// VerifyAllLemmas builds an isolated verification file for every
// lemma/theorem with a proof and submits them to compiler concurrently.
// A lemma is IsVerified iff its verification file compiled complete;
// ErrorDeclarations is populated from the ones that did not.
func (a *ProofAnalysis) VerifyAllLemmas(ctx context.Context, compiler Compiler) error {
	a.mu.Lock()
	var targets []*types.Declaration
	for _, name := range a.order {
		d := a.decls[name]
		if d.HasProof {
			targets = append(targets, d)
		}
	}
	files := make([]string, len(targets))
	for i, d := range targets {
		files[i] = a.buildVerificationFile(d)
	}
	a.mu.Unlock()

	results := make([]types.CompilationResult, len(targets))
	g, gctx := errgroup.WithContext(ctx)
	for i := range targets {
		i := i
		g.Go(func() error {
			res, err := compiler.Submit(gctx, types.CompileTask{Name: targets[i].Name, Code: files[i]})
			if err != nil {
				// Transport/protocol failure on this lemma's verification
				// is recorded as incomplete, not propagated: one failed
				// verification must not abort the others.
				res = types.CompilationResult{}
			}
			results[i] = res
			return nil
		})
	}
	_ = g.Wait()

	a.mu.Lock()
	defer a.mu.Unlock()
	a.verification = make(map[string]types.CompilationResult, len(targets))
	a.errorDecls = make(map[string]struct{})
	for i, d := range targets {
		res := results[i]
		a.verification[d.Name] = res
		d.IsVerified = res.Complete
		if !res.Complete {
			a.errorDecls[d.Name] = struct{}{}
		}
	}
	a.verifiedOnce = true
	return nil
}

// buildVerificationFile assembles the header, every def verbatim, the
// other lemmas/theorems/axioms referenced from d's proof body (lemmas and
// theorems downgraded to axiom form), then d itself with its original
// proof intact. Caller holds a.mu.
func (a *ProofAnalysis) buildVerificationFile(d *types.Declaration) string {
	proofDeps := a.proofBodyDependencyNames(d)

	var blocks []string
	for _, name := range a.order {
		if a.decls[name].Kind == types.DeclDef {
			blocks = append(blocks, a.decls[name].FullText)
		}
	}
	for _, name := range a.order {
		if name == d.Name || !containsInList(proofDeps, name) {
			continue
		}
		dep := a.decls[name]
		switch dep.Kind {
		case types.DeclAxiom:
			blocks = append(blocks, dep.FullText)
		case types.DeclLemma, types.DeclTheorem:
			blocks = append(blocks, downgradeToAxiom(dep.FullText))
		}
	}
	blocks = append(blocks, d.FullText)

	return assemble(a.header, blocks)
}

func (a *ProofAnalysis) proofBodyDependencyNames(d *types.Declaration) []string {
	body := ProofBodySubstring(d.FullText)
	var names []string
	for _, name := range a.order {
		if name != d.Name && ContainsWholeWord(body, name) {
			names = append(names, name)
		}
	}
	return names
}

func containsInList(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func assemble(header string, blocks []string) string {
	var b strings.Builder
	b.WriteString(header)
	for _, blk := range blocks {
		b.WriteString("\n")
		b.WriteString(blk)
		b.WriteString("\n")
	}
	return b.String()
}

func downgradeToAxiom(fullText string) string {
	sig := fullText
	if idx := strings.Index(fullText, ":="); idx >= 0 {
		sig = fullText[:idx]
	}
	sig = keywordRE.ReplaceAllString(sig, "${1}axiom")
	return strings.TrimRight(sig, " \t\n")
}

func coerceKeyword(fullText string, kind types.DeclKind) string {
	return regexp.MustCompile(`^(\s*)(axiom|lemma|theorem|def)\b`).ReplaceAllString(fullText, "${1}"+string(kind))
}

// FullyCorrectLemmas returns every lemma/theorem whose own verification
// completed and whose every transitive proof dependency is also fully
// correct. Cycles in the dependency graph (defensive: the graph is
// expected to be acyclic) are treated as "not fully correct" rather than
// looped over.
func (a *ProofAnalysis) FullyCorrectLemmas() []types.FullyCorrectLemma {
	a.mu.Lock()
	defer a.mu.Unlock()

	memo := make(map[string]bool)
	visiting := make(map[string]bool)

	var isFullyCorrect func(name string) bool
	isFullyCorrect = func(name string) bool {
		if v, ok := memo[name]; ok {
			return v
		}
		if visiting[name] {
			return false
		}
		visiting[name] = true
		defer delete(visiting, name)

		d, ok := a.decls[name]
		if !ok {
			memo[name] = false
			return false
		}
		if d.Kind != types.DeclLemma && d.Kind != types.DeclTheorem {
			memo[name] = true
			return true
		}
		res, ok := a.verification[name]
		if !ok || !res.Complete {
			memo[name] = false
			return false
		}
		for dep := range d.Dependencies {
			if !isFullyCorrect(dep) {
				memo[name] = false
				return false
			}
		}
		memo[name] = true
		return true
	}

	var out []types.FullyCorrectLemma
	for _, name := range a.order {
		d := a.decls[name]
		if d.Kind != types.DeclLemma && d.Kind != types.DeclTheorem {
			continue
		}
		if !isFullyCorrect(name) {
			continue
		}
		out = append(out, types.FullyCorrectLemma{
			Name:               name,
			Kind:               d.Kind,
			Statement:          d.FullText,
			Dependencies:       a.transitiveDeps(name),
			DirectDependencies: d.DependencyNames(),
			CompilationResult:  a.verification[name],
			Source:             "initial_attempt_correct",
		})
	}
	return out
}

func (a *ProofAnalysis) transitiveDeps(name string) []string {
	seen := make(map[string]struct{})
	var visit func(string)
	visit = func(n string) {
		d, ok := a.decls[n]
		if !ok {
			return
		}
		for dep := range d.Dependencies {
			if _, ok := seen[dep]; ok {
				continue
			}
			seen[dep] = struct{}{}
			visit(dep)
		}
	}
	visit(name)
	names := make([]string, 0, len(seen))
	for n := range seen {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// ConstructSubproblem builds a self-contained Lean file for name: the
// header, the referenced defs verbatim (needed for the target's signature
// to parse), then the target coerced to a theorem with its proof replaced
// by sorry. Verified lemmas/theorems and axioms referenced from the proof
// body are NOT inlined into the code — they are returned as a separate
// ordered facts list for the caller to pass to prompt templates.
func (a *ProofAnalysis) ConstructSubproblem(name string) (types.Subproblem, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	d, ok := a.decls[name]
	if !ok {
		return types.Subproblem{}, fmt.Errorf("analysis: unknown declaration %q", name)
	}

	proofDeps := a.proofBodyDependencyNames(d)

	var defBlocks []string
	var facts []string
	for _, depName := range a.order {
		if depName == name || !containsInList(proofDeps, depName) {
			continue
		}
		dep := a.decls[depName]
		switch dep.Kind {
		case types.DeclDef:
			defBlocks = append(defBlocks, dep.FullText)
		case types.DeclAxiom:
			facts = append(facts, dep.FullText)
		case types.DeclLemma, types.DeclTheorem:
			if dep.IsVerified {
				facts = append(facts, downgradeToAxiom(dep.FullText))
			}
		}
	}

	target := coerceKeyword(stripProof(d.FullText), types.DeclTheorem) + " := by sorry"

	return types.Subproblem{Code: assemble(a.header, append(defBlocks, target)), Facts: facts}, nil
}

func stripProof(fullText string) string {
	if idx := strings.Index(fullText, ":="); idx >= 0 {
		return strings.TrimRight(fullText[:idx], " \t\n")
	}
	return strings.TrimRight(fullText, " \t\n")
}

// FixLemma splices a verified replacement for targetName into the current
// code. The replacement must contain a declaration named targetName; any
// other lemma/theorem it introduces is a new helper, renamed to a fresh
// base_k (minimal free k, whole-word renamed throughout replacementCode)
// if its name collides with one already in the analysis. The target's
// keyword is coerced back to its original kind, the newly inserted
// declarations are marked IsVerified (trusted from the lightweight
// pipeline that produced them), and the repair is recorded in fix_history.
func (a *ProofAnalysis) FixLemma(targetName, originalSubproblem, replacementCode string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	original, ok := a.decls[targetName]
	if !ok {
		return fmt.Errorf("analysis: unknown declaration %q", targetName)
	}

	replacementDecls := ExtractDeclarations(replacementCode)
	if findByName(replacementDecls, targetName) == nil {
		return fmt.Errorf("analysis: replacement for %q does not contain it", targetName)
	}

	renamings := make(map[string]string)
	for _, rd := range replacementDecls {
		if rd.Name == targetName || (rd.Kind != types.DeclLemma && rd.Kind != types.DeclTheorem) {
			continue
		}
		if _, exists := a.decls[rd.Name]; exists {
			renamings[rd.Name] = a.freshName(rd.Name)
		}
	}
	if len(renamings) > 0 {
		replacementCode = renameWholeWordAll(replacementCode, renamings)
		replacementDecls = ExtractDeclarations(replacementCode)
	}

	targetDecl := findByName(replacementDecls, targetName)
	fixedTargetText := coerceKeyword(stripProofPreserved(targetDecl.FullText), original.Kind)

	var blocks []string
	for _, rd := range replacementDecls {
		if rd.Name == targetName {
			blocks = append(blocks, fixedTargetText)
		} else {
			blocks = append(blocks, rd.FullText)
		}
	}
	spliceText := strings.Join(blocks, "\n\n")

	lines := strings.Split(a.currentCode, "\n")
	newLines := append([]string{}, lines[:original.StartLine]...)
	newLines = append(newLines, strings.Split(spliceText, "\n")...)
	newLines = append(newLines, lines[original.EndLine:]...)
	a.currentCode = strings.Join(newLines, "\n")

	prevDecls := a.decls
	prevVerification := a.verification

	newDecls := ExtractDeclarations(a.currentCode)
	ComputeDependencies(newDecls)

	a.decls = make(map[string]*types.Declaration, len(newDecls))
	a.order = a.order[:0]
	for _, d := range newDecls {
		if old, ok := prevDecls[d.Name]; ok && d.Name != targetName {
			d.WasFixed = old.WasFixed
			d.IsVerified = old.IsVerified
			d.AddedFor = old.AddedFor
			d.RenamedFrom = old.RenamedFrom
		}
		a.decls[d.Name] = d
		a.order = append(a.order, d.Name)
	}

	td := a.decls[targetName]
	td.WasFixed = true
	td.IsVerified = true
	delete(a.errorDecls, targetName)

	for oldName, newName := range renamings {
		if hd, ok := a.decls[newName]; ok {
			hd.IsVerified = true
			hd.AddedFor = targetName
			hd.RenamedFrom = oldName
		}
	}
	for _, rd := range replacementDecls {
		if rd.Name == targetName {
			continue
		}
		if _, renamed := renamings[rd.Name]; renamed {
			continue
		}
		if hd, ok := a.decls[rd.Name]; ok {
			hd.IsVerified = true
			hd.AddedFor = targetName
		}
	}

	a.verification = make(map[string]types.CompilationResult, len(a.decls))
	for name, res := range prevVerification {
		if _, ok := a.decls[name]; ok {
			a.verification[name] = res
		}
	}
	a.verification[targetName] = types.CompilationResult{Pass: true, Complete: true}

	a.fixHistory[targetName] = types.FixRecord{
		OriginalSubproblem: originalSubproblem,
		FixedSubproblem:    replacementCode,
		Renamings:          renamings,
	}
	return nil
}

func findByName(decls []*types.Declaration, name string) *types.Declaration {
	for _, d := range decls {
		if d.Name == name {
			return d
		}
	}
	return nil
}

// stripProofPreserved returns fullText unchanged, proof included: unlike
// stripProof it drops nothing and forces neither theorem nor sorry. It is
// used when restoring the target's original keyword, so the proof the fix
// supplied survives.
func stripProofPreserved(fullText string) string {
	return fullText
}

func (a *ProofAnalysis) freshName(base string) string {
	k := 1
	for {
		candidate := fmt.Sprintf("%s_%d", base, k)
		if _, exists := a.decls[candidate]; !exists {
			return candidate
		}
		k++
	}
}

func renameWholeWord(code, old, newName string) string {
	var out strings.Builder
	i := 0
	for i < len(code) {
		idx := strings.Index(code[i:], old)
		if idx < 0 {
			out.WriteString(code[i:])
			break
		}
		pos := i + idx
		leftOK := pos == 0 || !isIdentChar(code[pos-1])
		after := pos + len(old)
		rightOK := after >= len(code) || !isIdentChar(code[after])
		out.WriteString(code[i:pos])
		if leftOK && rightOK {
			out.WriteString(newName)
		} else {
			out.WriteString(old)
		}
		i = after
	}
	return out.String()
}

func renameWholeWordAll(code string, renamings map[string]string) string {
	for old, newName := range renamings {
		code = renameWholeWord(code, old, newName)
	}
	return code
}

// Report produces a JSON-snapshottable view sufficient to reconstruct the
// analysis state.
func (a *ProofAnalysis) Report() types.AnalysisReport {
	a.mu.Lock()
	defer a.mu.Unlock()

	declsCopy := make(map[string]*types.Declaration, len(a.decls))
	for k, v := range a.decls {
		declsCopy[k] = v
	}
	fixCopy := make(map[string]types.FixRecord, len(a.fixHistory))
	for k, v := range a.fixHistory {
		fixCopy[k] = v
	}
	verificationCopy := make(map[string]types.CompilationResult, len(a.verification))
	for k, v := range a.verification {
		verificationCopy[k] = v
	}

	return types.AnalysisReport{
		CurrentCode:         a.currentCode,
		OriginalCode:        a.originalCode,
		Header:              a.header,
		Declarations:        declsCopy,
		ErrorDeclarations:   a.sortedErrorDecls(),
		FixHistory:          fixCopy,
		VerificationResults: verificationCopy,
		IsProofCorrect:      a.verifiedOnce && len(a.errorDecls) == 0,
	}
}
