// Package compileworker runs the per-machine pool of Lean compilation
// child processes behind a compilation gateway: HTTP handlers, a
// restartable process pool, and the lake exe repl child protocol.
package compileworker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/leanmesh/leanmesh/analysis"
	"github.com/leanmesh/leanmesh/types"
)

// ChildRunner compiles one Lean source file and classifies the result.
// processRunner is the production implementation; tests substitute a fake.
type ChildRunner interface {
	Compile(ctx context.Context, code string) types.CompilationResult
}

// ReplConfig configures the lake exe repl child invocation.
type ReplConfig struct {
	LakePath      string
	LeanWorkspace string
	ImportTimeout time.Duration
	ProofTimeout  time.Duration
}

// processRunner invokes `lake exe repl` as a fresh child process per
// compile, per the worker's child protocol: write {"cmd": code} to a temp
// file, feed it as the child's stdin, and parse the JSON reply.
type processRunner struct {
	cfg ReplConfig
}

func NewProcessRunner(cfg ReplConfig) ChildRunner {
	return &processRunner{cfg: cfg}
}

type replCommand struct {
	Cmd string `json:"cmd"`
}

type replReply struct {
	Messages []types.ErrorMessage `json:"messages"`
	Sorries  []any                `json:"sorries"`
}

func (r *processRunner) Compile(ctx context.Context, code string) types.CompilationResult {
	timeout := r.cfg.ImportTimeout + r.cfg.ProofTimeout
	if timeout <= 0 {
		timeout = 300 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	f, err := os.CreateTemp("", "leanmesh-repl-*.json")
	if err != nil {
		return types.ChildProcessFailure(fmt.Sprintf("create temp file: %v", err))
	}
	defer os.Remove(f.Name())

	payload, err := json.Marshal(replCommand{Cmd: code})
	if err != nil {
		f.Close()
		return types.ChildProcessFailure(fmt.Sprintf("marshal repl command: %v", err))
	}
	if _, err := f.Write(append(payload, '\n')); err != nil {
		f.Close()
		return types.ChildProcessFailure(fmt.Sprintf("write temp file: %v", err))
	}
	if _, err := f.Seek(0, 0); err != nil {
		f.Close()
		return types.ChildProcessFailure(fmt.Sprintf("seek temp file: %v", err))
	}

	lakePath := r.cfg.LakePath
	if lakePath == "" {
		lakePath = "lake"
	}
	cmd := exec.CommandContext(ctx, lakePath, "exe", "repl")
	cmd.Dir = r.cfg.LeanWorkspace
	cmd.Stdin = f

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	f.Close()

	if ctx.Err() == context.DeadlineExceeded {
		return types.ChildProcessFailure("lake exe repl timed out")
	}
	if runErr != nil {
		return types.ChildProcessFailure(fmt.Sprintf("lake exe repl: %v: %s", runErr, stderr.String()))
	}

	var reply replReply
	if err := json.Unmarshal(stdout.Bytes(), &reply); err != nil {
		return types.ChildProcessFailure(fmt.Sprintf("parse repl reply: %v: %s", err, stdout.String()))
	}

	var errs []types.ErrorMessage
	for _, m := range reply.Messages {
		if m.Severity == "error" {
			errs = append(errs, m)
		}
	}
	return types.NewCompilationResult(errs, reply.Sorries)
}

// headerOf returns the normalized import block analysis would split out of
// code, used to populate the header field of a batch result entry.
func headerOf(code string) string {
	header, _ := analysis.SplitImportAndBody(code)
	return header
}
