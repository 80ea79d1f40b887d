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

// InferenceConfig configures an InferenceScheduler.
type InferenceConfig struct {
	GatewayURL string
	Workers    int
	Timeout    time.Duration
}

// InferenceScheduler serializes concurrent logical requests onto a bounded
// pool of HTTP streams toward the LLM gateway, honoring caller-supplied
// priorities. Dispatch order is lexicographic (priority, submission
// sequence); the scheduler performs no retry of its own.
type InferenceScheduler struct {
	cfg     InferenceConfig
	queue   *priorityQueue[types.InferenceTask]
	client  *http.Client
	logger  *zap.Logger
	metrics *metrics.Collector
	done    chan struct{}
}

// NewInferenceScheduler builds a scheduler and starts cfg.Workers worker
// loops. Call Stop to drain and exit them.
func NewInferenceScheduler(cfg InferenceConfig, logger *zap.Logger, m *metrics.Collector) *InferenceScheduler {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	s := &InferenceScheduler{
		cfg:     cfg,
		queue:   newPriorityQueue[types.InferenceTask](),
		client:  &http.Client{Timeout: cfg.Timeout},
		logger:  logger.With(zap.String("component", "inference_scheduler")),
		metrics: m,
		done:    make(chan struct{}),
	}
	for i := 0; i < cfg.Workers; i++ {
		go s.workerLoop()
	}
	return s
}

// Submit enqueues an inference task at the given priority and blocks until
// it is dispatched and completes or ctx is cancelled. On cancellation Submit
// returns ctx.Err() at once; the task stays in the queue, is still
// dispatched when dequeued, and its result is dropped. An in-flight HTTP
// request is not aborted.
func (s *InferenceScheduler) Submit(ctx context.Context, task types.InferenceTask, priority int64) (types.InferenceResult, error) {
	t := s.queue.enqueue(task, priority)
	if s.metrics != nil {
		s.metrics.SchedulerQueueDepth("inference", s.queue.depth())
	}

	v, err := t.Await(ctx)
	if err != nil {
		return types.InferenceResult{}, err
	}
	if res, ok := v.(types.InferenceResult); ok {
		return res, nil
	}
	return types.InferenceResult{}, fmt.Errorf("inference scheduler: unexpected result type")
}

// Stop wakes all worker loops so they exit after draining in-flight work.
func (s *InferenceScheduler) Stop() {
	close(s.done)
	s.queue.close()
}

func (s *InferenceScheduler) workerLoop() {
	for {
		select {
		case <-s.done:
			return
		default:
		}

		t := s.queue.dequeue()
		if t == nil {
			return // queue closed
		}
		if s.metrics != nil {
			s.metrics.SchedulerQueueDepth("inference", s.queue.depth())
			s.metrics.SchedulerInFlightDelta("inference", 1)
		}

		result, err := s.dispatch(t.Payload)

		if s.metrics != nil {
			s.metrics.SchedulerInFlightDelta("inference", -1)
			s.metrics.SchedulerDispatched("inference")
		}
		t.Complete(result, err)
	}
}

type chatRequest struct {
	Model    string         `json:"model"`
	Messages []types.ChatTurn `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage types.Usage `json:"usage"`
}

// dispatch performs the single HTTP round-trip to the LLM gateway. There is
// no scheduler-level retry: the gateway's own forwarding failure already
// carries the transport error kind.
func (s *InferenceScheduler) dispatch(task types.InferenceTask) (types.InferenceResult, error) {
	start := time.Now()

	body, err := json.Marshal(chatRequest{Model: task.Model, Messages: task.Prompt.Turns()})
	if err != nil {
		return types.InferenceResult{}, types.NewError(types.ErrProtocol, "encode request").WithCause(err)
	}

	req, err := http.NewRequest(http.MethodPost, s.cfg.GatewayURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return types.InferenceResult{}, types.NewError(types.ErrProtocol, "build request").WithCause(err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if s.metrics != nil {
		s.metrics.SchedulerRPCObserved("inference", time.Since(start).Seconds(), err)
	}
	if err != nil {
		return types.InferenceResult{}, types.NewError(types.ErrTransport, "gateway unreachable").WithCause(err).WithRetryable(false)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return types.InferenceResult{}, types.NewError(types.ErrTransport, "read response").WithCause(err)
	}
	if resp.StatusCode != http.StatusOK {
		return types.InferenceResult{}, types.NewError(types.ErrTransport, fmt.Sprintf("gateway returned %d: %s", resp.StatusCode, raw)).WithHTTPStatus(resp.StatusCode)
	}

	var parsed chatResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return types.InferenceResult{}, types.NewError(types.ErrProtocol, "decode response").WithCause(err)
	}
	content := ""
	if len(parsed.Choices) > 0 {
		content = parsed.Choices[0].Message.Content
	}

	return types.InferenceResult{Content: content, Usage: parsed.Usage}, nil
}
