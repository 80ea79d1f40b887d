// Package scheduler multiplexes many concurrent logical tasks onto bounded
// pools of remote HTTP workers, honoring caller-supplied priorities for
// inference and strict FIFO for compilation.
package scheduler

import (
	"container/heap"
	"sync"

	"github.com/leanmesh/leanmesh/types"
)

// taskHeap orders *types.Task[P] lexicographically by (Priority, Sequence):
// a strictly lower priority always sorts first; equal priorities fall back
// to submission order.
type taskHeap[P any] []*types.Task[P]

func (h taskHeap[P]) Len() int { return len(h) }

func (h taskHeap[P]) Less(i, j int) bool {
	if h[i].Priority != h[j].Priority {
		return h[i].Priority < h[j].Priority
	}
	return h[i].Sequence < h[j].Sequence
}

func (h taskHeap[P]) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *taskHeap[P]) Push(x any) { *h = append(*h, x.(*types.Task[P])) }

func (h *taskHeap[P]) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}

// priorityQueue is a min-heap over (priority, sequence) guarded by one
// mutex, with a condition variable to let dequeuers block until work
// arrives. Both schedulers are built on this: the compilation scheduler
// always submits priority 0, which degenerates the ordering to strict
// FIFO by sequence.
type priorityQueue[P any] struct {
	mu      sync.Mutex
	cond    *sync.Cond
	heap    taskHeap[P]
	seq     uint64
	closed  bool
}

func newPriorityQueue[P any]() *priorityQueue[P] {
	q := &priorityQueue[P]{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// enqueue assigns the next sequence number and adds t to the heap, waking
// one blocked dequeuer.
func (q *priorityQueue[P]) enqueue(payload P, priority int64) *types.Task[P] {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.seq++
	t := types.NewTask(payload, priority, q.seq)
	heap.Push(&q.heap, t)
	q.cond.Signal()
	return t
}

// dequeue blocks until a task is available or the queue is closed, in
// which case it returns nil.
func (q *priorityQueue[P]) dequeue() *types.Task[P] {
	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.heap) == 0 && !q.closed {
		q.cond.Wait()
	}
	if len(q.heap) == 0 {
		return nil
	}
	return heap.Pop(&q.heap).(*types.Task[P])
}

// depth returns the number of tasks currently queued.
func (q *priorityQueue[P]) depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.heap)
}

// close wakes every blocked dequeuer so worker loops can exit.
func (q *priorityQueue[P]) close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.cond.Broadcast()
}
