package types

import "sort"

// DeclKind is the closed set of top-level Lean declaration keywords this
// system understands.
type DeclKind string

const (
	DeclAxiom   DeclKind = "axiom"
	DeclLemma   DeclKind = "lemma"
	DeclTheorem DeclKind = "theorem"
	DeclDef     DeclKind = "def"
)

// Declaration is one top-level declaration extracted from a Lean source
// file.
type Declaration struct {
	Name         string
	Kind         DeclKind
	StartLine    int // 0-indexed, inclusive
	EndLine      int // 0-indexed, exclusive
	FullText     string
	HasProof     bool
	Dependencies map[string]struct{}

	IsVerified   bool
	WasFixed     bool
	AddedFor     string // name this declaration was introduced to repair
	RenamedFrom  string
}

// DependencyNames returns d's dependencies as a sorted slice.
func (d *Declaration) DependencyNames() []string {
	names := make([]string, 0, len(d.Dependencies))
	for n := range d.Dependencies {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
