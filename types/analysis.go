package types

// FixRecord is one entry in a ProofAnalysis's fix history: the isolated
// subproblem that was sent out for repair, the replacement that came back,
// and any helper-name collisions that were resolved by renaming.
type FixRecord struct {
	OriginalSubproblem string            `json:"original_subproblem"`
	FixedSubproblem    string            `json:"fixed_subproblem"`
	Renamings          map[string]string `json:"renamings,omitempty"`
}

// VerificationSummary tallies isolated per-lemma verification outcomes.
type VerificationSummary struct {
	TotalLemmas    int `json:"total_lemmas"`
	Verified       int `json:"verified"`
	Failed         int `json:"failed"`
}

// AnalysisReport is the JSON-snapshottable state of a ProofAnalysis,
// sufficient to reconstruct it.
type AnalysisReport struct {
	CurrentCode         string                        `json:"current_code"`
	OriginalCode        string                        `json:"original_code"`
	Header              string                        `json:"header"`
	Declarations        map[string]*Declaration       `json:"declarations"`
	ErrorDeclarations   []string                      `json:"error_declarations"`
	FixHistory          map[string]FixRecord          `json:"fix_history"`
	VerificationResults map[string]CompilationResult  `json:"verification_summary"`
	IsProofCorrect      bool                          `json:"is_proof_correct"`
}

// FullyCorrectLemma is one entry returned by ProofAnalysis.FullyCorrectLemmas:
// a lemma whose own verification completed and whose every transitive
// dependency is also fully correct.
type FullyCorrectLemma struct {
	Name               string
	Kind               DeclKind
	Statement          string
	Dependencies       []string // transitive closure
	DirectDependencies []string
	CompilationResult  CompilationResult
	Source             string // e.g. "initial_attempt_correct", "fixed_subproblem_<name>"
}

// Subproblem is a self-contained Lean file synthesized for one target
// lemma, plus the ordered list of axiom-form facts kept separately for
// prompt insertion.
type Subproblem struct {
	Code  string
	Facts []string
}
