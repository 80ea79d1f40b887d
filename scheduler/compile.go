package scheduler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/leanmesh/leanmesh/internal/metrics"
	"github.com/leanmesh/leanmesh/types"
	"go.uber.org/zap"
)

// CompileConfig configures a CompileScheduler.
type CompileConfig struct {
	GatewayURL string
	Workers    int
	Timeout    time.Duration
}

// CompileScheduler serializes concurrent compilation requests onto a
// bounded pool of HTTP streams toward the compilation gateway. Unlike the
// inference scheduler it has no priority concept: every task is enqueued at
// priority 0, which degenerates the shared priorityQueue to strict FIFO by
// submission sequence.
type CompileScheduler struct {
	cfg     CompileConfig
	queue   *priorityQueue[types.CompileTask]
	client  *http.Client
	logger  *zap.Logger
	metrics *metrics.Collector
	done    chan struct{}
}

// NewCompileScheduler builds a scheduler and starts cfg.Workers worker
// loops. Call Stop to drain and exit them.
func NewCompileScheduler(cfg CompileConfig, logger *zap.Logger, m *metrics.Collector) *CompileScheduler {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	s := &CompileScheduler{
		cfg:     cfg,
		queue:   newPriorityQueue[types.CompileTask](),
		client:  &http.Client{Timeout: cfg.Timeout},
		logger:  logger.With(zap.String("component", "compile_scheduler")),
		metrics: m,
		done:    make(chan struct{}),
	}
	for i := 0; i < cfg.Workers; i++ {
		go s.workerLoop()
	}
	return s
}

// Submit enqueues a compilation task and blocks until it is dispatched and
// completes, ctx is cancelled, or the caller abandons it.
func (s *CompileScheduler) Submit(ctx context.Context, task types.CompileTask) (types.CompilationResult, error) {
	t := s.queue.enqueue(task, 0)
	if s.metrics != nil {
		s.metrics.SchedulerQueueDepth("compile", s.queue.depth())
	}

	v, err := t.Await(ctx)
	if err != nil {
		return types.CompilationResult{}, err
	}
	if res, ok := v.(types.CompilationResult); ok {
		return res, nil
	}
	return types.CompilationResult{}, fmt.Errorf("compile scheduler: unexpected result type")
}

// Stop wakes all worker loops so they exit after draining in-flight work.
func (s *CompileScheduler) Stop() {
	close(s.done)
	s.queue.close()
}

func (s *CompileScheduler) workerLoop() {
	for {
		select {
		case <-s.done:
			return
		default:
		}

		t := s.queue.dequeue()
		if t == nil {
			return
		}
		if s.metrics != nil {
			s.metrics.SchedulerQueueDepth("compile", s.queue.depth())
			s.metrics.SchedulerInFlightDelta("compile", 1)
		}

		result, err := s.dispatch(t.Payload)

		if s.metrics != nil {
			s.metrics.SchedulerInFlightDelta("compile", -1)
			s.metrics.SchedulerDispatched("compile")
		}
		t.Complete(result, err)
	}
}

type compileRequest struct {
	Name string `json:"name"`
	Code string `json:"code"`
}

type compileResponse struct {
	Header       string               `json:"header"`
	Errors       []types.ErrorMessage `json:"errors"`
	Sorries      []any                `json:"sorries"`
	SystemErrors string               `json:"system_errors"`
}

// dispatch performs the single HTTP round-trip to the compilation gateway's
// /api/v1/compile_one endpoint and normalizes the reply into a
// CompilationResult: complete iff there are neither errors nor sorries.
func (s *CompileScheduler) dispatch(task types.CompileTask) (types.CompilationResult, error) {
	start := time.Now()

	body, err := json.Marshal(compileRequest{Name: task.Name, Code: task.Code})
	if err != nil {
		return types.CompilationResult{}, types.NewError(types.ErrProtocol, "encode request").WithCause(err)
	}

	req, err := http.NewRequest(http.MethodPost, s.cfg.GatewayURL+"/api/v1/compile_one", bytes.NewReader(body))
	if err != nil {
		return types.CompilationResult{}, types.NewError(types.ErrProtocol, "build request").WithCause(err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if s.metrics != nil {
		s.metrics.SchedulerRPCObserved("compile", time.Since(start).Seconds(), err)
	}
	if err != nil {
		return types.CompilationResult{}, types.NewError(types.ErrTransport, "compilation gateway unreachable").WithCause(err).WithRetryable(false)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return types.CompilationResult{}, types.NewError(types.ErrTransport, "read response").WithCause(err)
	}
	if resp.StatusCode != http.StatusOK {
		return types.CompilationResult{}, types.NewError(types.ErrTransport, fmt.Sprintf("gateway returned %d: %s", resp.StatusCode, raw)).WithHTTPStatus(resp.StatusCode)
	}

	var parsed compileResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return types.CompilationResult{}, types.NewError(types.ErrProtocol, "decode response").WithCause(err)
	}
	// The compilation worker nests the outcome under compilation_result.
	var wrapped struct {
		CompilationResult *compileResponse `json:"compilation_result"`
	}
	if err := json.Unmarshal(raw, &wrapped); err == nil && wrapped.CompilationResult != nil {
		parsed = *wrapped.CompilationResult
	}
	if parsed.SystemErrors != "" {
		return types.ChildProcessFailure(parsed.SystemErrors), nil
	}
	return types.NewCompilationResult(parsed.Errors, parsed.Sorries), nil
}
