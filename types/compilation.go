package types

// Position is a location in a Lean source file: 1-indexed line, 0-indexed
// column.
type Position struct {
	Line   int `json:"line"`
	Column int `json:"column"`
}

// ErrorMessage is one diagnostic reported by the Lean compiler.
type ErrorMessage struct {
	Severity string    `json:"severity"`
	Pos      Position  `json:"pos"`
	EndPos   *Position `json:"endPos,omitempty"`
	Data     string    `json:"data"`
}

// CompilationResult is the outcome of one Lean compilation attempt.
//
// Invariant: Complete implies Pass, len(Errors) == 0, and len(Sorries) == 0.
type CompilationResult struct {
	Pass         bool           `json:"pass"`
	Complete     bool           `json:"complete"`
	Errors       []ErrorMessage `json:"errors"`
	Sorries      []any          `json:"sorries"`
	SystemErrors string         `json:"system_errors,omitempty"`
}

// NewCompilationResult derives Pass and Complete from the supplied errors
// and sorries, matching the compilation scheduler's response normalization.
func NewCompilationResult(errors []ErrorMessage, sorries []any) CompilationResult {
	if errors == nil {
		errors = []ErrorMessage{}
	}
	if sorries == nil {
		sorries = []any{}
	}
	return CompilationResult{
		Pass:     len(errors) == 0,
		Complete: len(errors) == 0 && len(sorries) == 0,
		Errors:   errors,
		Sorries:  sorries,
	}
}

// ChildProcessFailure builds the result a compilation child process reports
// when it crashes, times out, or emits non-JSON output.
func ChildProcessFailure(trace string) CompilationResult {
	return CompilationResult{Pass: false, Complete: false, SystemErrors: trace}
}
