package compileworker

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/leanmesh/leanmesh/internal/metrics"
	"github.com/leanmesh/leanmesh/types"
)

// State is a position in the process pool's lifecycle:
// Starting -> Ready -> Restarting -> Ready -> ... -> Stopping -> Stopped.
// Compiles are accepted only in Ready.
type State int32

const (
	StateStarting State = iota
	StateReady
	StateRestarting
	StateStopping
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateReady:
		return "ready"
	case StateRestarting:
		return "restarting"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

type envelope struct {
	task    types.CompileTask
	index   int
	batchID string
}

type resultEntry struct {
	index  int
	result types.CompilationResult
}

// Pool is a restartable set of P compilation child processes sharing one
// envelope queue. Restart is exclusive against in-flight batches via a
// RWMutex: RunBatch holds the read side (batches may run concurrently with
// each other), Restart holds the write side (draining and exclusive of
// every batch).
type Pool struct {
	mu sync.RWMutex

	numProcesses int
	child        ChildRunner
	logger       *zap.Logger
	metrics      *metrics.Collector

	state State

	ch chan envelope
	wg sync.WaitGroup

	resultsMu sync.Mutex
	results   map[string][]resultEntry
}

// NewPool starts numProcesses workers pulling from a shared envelope queue
// and immediately transitions to Ready.
func NewPool(numProcesses int, child ChildRunner, logger *zap.Logger, m *metrics.Collector) *Pool {
	if numProcesses < 1 {
		numProcesses = 1
	}
	p := &Pool{
		numProcesses: numProcesses,
		child:        child,
		logger:       logger,
		metrics:      m,
		state:        StateStarting,
		results:      make(map[string][]resultEntry),
	}
	p.ch = p.spawn()
	p.setState(StateReady)
	return p
}

func (p *Pool) setState(s State) {
	atomic.StoreInt32((*int32)(&p.state), int32(s))
}

// State returns the pool's current lifecycle state.
func (p *Pool) State() State {
	return State(atomic.LoadInt32((*int32)(&p.state)))
}

func (p *Pool) spawn() chan envelope {
	ch := make(chan envelope, p.numProcesses*4)
	for i := 0; i < p.numProcesses; i++ {
		p.wg.Add(1)
		go p.worker(ch)
	}
	return ch
}

func (p *Pool) worker(ch <-chan envelope) {
	defer p.wg.Done()
	for env := range ch {
		res := p.child.Compile(context.Background(), env.task.Code)
		p.resultsMu.Lock()
		p.results[env.batchID] = append(p.results[env.batchID], resultEntry{index: env.index, result: res})
		p.resultsMu.Unlock()
	}
}

// RunBatch enqueues one envelope per task under a fresh batch id and
// spin-waits until every task in the batch has a recorded result, then
// returns the results sorted by submission index.
func (p *Pool) RunBatch(ctx context.Context, tasks []types.CompileTask) ([]types.CompilationResult, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.State() != StateReady {
		return nil, types.NewError(types.ErrTransport, fmt.Sprintf("pool not ready: %s", p.State())).WithHTTPStatus(503)
	}

	if p.metrics != nil {
		start := time.Now()
		p.metrics.WorkerBatchesActiveDelta(1)
		defer p.metrics.WorkerBatchesActiveDelta(-1)
		defer func() { p.metrics.WorkerBatchObserved(time.Since(start).Seconds()) }()
	}

	batchID := uuid.NewString()
	ch := p.ch

	for i, t := range tasks {
		select {
		case ch <- envelope{task: t, index: i, batchID: batchID}:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()
	for {
		p.resultsMu.Lock()
		entries := p.results[batchID]
		done := len(entries) == len(tasks)
		if done {
			delete(p.results, batchID)
		}
		p.resultsMu.Unlock()

		if done {
			sort.Slice(entries, func(i, j int) bool { return entries[i].index < entries[j].index })
			out := make([]types.CompilationResult, len(entries))
			for i, e := range entries {
				out[i] = e.result
			}
			return out, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// QueueDepth reports how many envelopes are waiting for a free worker.
func (p *Pool) QueueDepth() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.ch)
}

// Restart drains the current worker set (letting queued envelopes finish),
// swaps in a fresh set of numProcesses workers, and returns to Ready.
// Exclusive against every in-flight RunBatch via the write side of mu.
func (p *Pool) Restart() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.setState(StateRestarting)
	close(p.ch)
	p.wg.Wait()

	p.ch = p.spawn()
	p.setState(StateReady)
	if p.metrics != nil {
		p.metrics.WorkerPoolRestarted()
	}
	if p.logger != nil {
		p.logger.Info("compilation pool restarted", zap.Int("num_processes", p.numProcesses))
	}
}

// Stop transitions the pool to Stopping, drains remaining work, and
// marks it Stopped. No further RunBatch calls will be accepted.
func (p *Pool) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.setState(StateStopping)
	close(p.ch)
	p.wg.Wait()
	p.setState(StateStopped)
}

// RunQueueMonitor logs and records the queue depth every interval until
// ctx is cancelled.
func (p *Pool) RunQueueMonitor(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			depth := p.QueueDepth()
			if p.metrics != nil {
				p.metrics.WorkerQueueDepth(depth)
			}
			if p.logger != nil {
				p.logger.Info("compile worker queue depth", zap.Int("depth", depth))
			}
		}
	}
}

// RunRestartLoop calls Restart every interval until ctx is cancelled.
func (p *Pool) RunRestartLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Restart()
		}
	}
}
