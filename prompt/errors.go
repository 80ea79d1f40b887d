// Package prompt builds and parses the LLM-facing text for lightweight and
// mediumweight search: inference/revision prompt templates, abridged error
// reports, and output normalization back into compilable Lean source.
package prompt

import (
	"fmt"
	"strings"

	"github.com/leanmesh/leanmesh/types"
)

// FormatErrors renders errors against code for a revision prompt: up to 8
// errors when thresholded (else all), +-4 lines of context, <error>/</error>
// markers around the reported span, spans over 6 lines truncated with
// "... --[Truncated]-- ..." at the last shown line's indentation, a
// trailing context line, and an omitted-count summary when errors were
// dropped.
func FormatErrors(code string, errors []types.ErrorMessage, thresholded bool) string {
	var b strings.Builder
	codeLines := strings.Split(code, "\n")

	limit := len(errors)
	if thresholded && limit > 8 {
		limit = 8
	}

	for i := 0; i < limit; i++ {
		err := errors[i]
		startLine := err.Pos.Line - 1
		startCol := err.Pos.Column

		var endLine, endCol int
		if err.EndPos == nil {
			endLine = startLine
			endCol = len(codeLines[startLine])
		} else {
			endLine = err.EndPos.Line - 1
			endCol = err.EndPos.Column
		}

		fmt.Fprintf(&b, "\nError %d:\n", i+1)
		b.WriteString("\nCorresponding Code:\n```lean4\n")

		for ii := -4; ii < 0; ii++ {
			if startLine+ii >= 0 {
				fmt.Fprintf(&b, "%s\n", codeLines[startLine+ii])
			}
		}

		if startLine != endLine {
			b.WriteString(codeLines[startLine][:startCol] + "<error>" + codeLines[startLine][startCol:] + "\n")

			lastJ := startLine + 1
			if !thresholded {
				for ; lastJ < endLine; lastJ++ {
					fmt.Fprintf(&b, "%s\n", codeLines[lastJ])
				}
			} else {
				const showLine = 6
				limitJ := endLine
				if startLine+showLine < limitJ {
					limitJ = startLine + showLine
				}
				for ; lastJ < limitJ; lastJ++ {
					fmt.Fprintf(&b, "%s\n", codeLines[lastJ])
				}
				if endLine > startLine+showLine {
					ref := codeLines[lastJ-1]
					leading := len(ref) - len(strings.TrimLeft(ref, " "))
					b.WriteString("\n" + strings.Repeat(" ", leading) + "... --[Truncated]-- ...\n")
				}
			}

			b.WriteString(codeLines[endLine][:endCol] + "</error>" + codeLines[endLine][endCol:] + "\n")
		} else {
			b.WriteString(codeLines[startLine][:startCol] + "<error>" + codeLines[startLine][startCol:endCol] + "</error>" + codeLines[startLine][endCol:] + "\n")
		}

		if endLine+1 < len(codeLines) {
			fmt.Fprintf(&b, "%s\n", codeLines[endLine+1])
		}

		b.WriteString("\n```\n")
		fmt.Fprintf(&b, "\nError Message: %s\n", err.Data)
	}

	if len(errors) > limit {
		fmt.Fprintf(&b, "\n... [Omitted %d more errors] ...\n", len(errors)-limit)
	}

	return b.String()
}
