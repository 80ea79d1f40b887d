package scheduler

import (
	"sort"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// Dequeue order must match (Priority, Sequence) lexicographic order: a
// strictly lower priority always comes out first, and equal priorities
// preserve submission order.
func TestPriorityQueueDequeueOrder(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("dequeue order matches (priority, sequence) ordering", prop.ForAll(
		func(priorities []int64) bool {
			q := newPriorityQueue[int]()

			type submission struct {
				seq      uint64
				priority int64
			}
			var submitted []submission
			for i, p := range priorities {
				task := q.enqueue(i, p)
				submitted = append(submitted, submission{seq: task.Sequence, priority: p})
			}

			sort.SliceStable(submitted, func(i, j int) bool {
				if submitted[i].priority != submitted[j].priority {
					return submitted[i].priority < submitted[j].priority
				}
				return submitted[i].seq < submitted[j].seq
			})

			for _, want := range submitted {
				got := q.dequeue()
				if got == nil {
					t.Logf("queue emptied early, expected sequence %d", want.seq)
					return false
				}
				if got.Sequence != want.seq || got.Priority != want.priority {
					t.Logf("dequeue order mismatch: got (priority=%d, seq=%d), want (priority=%d, seq=%d)",
						got.Priority, got.Sequence, want.priority, want.seq)
					return false
				}
			}
			return q.depth() == 0
		},
		gen.SliceOf(gen.Int64Range(-5, 5)),
	))

	properties.TestingRun(t)
}

// The queue assigns sequence numbers on enqueue: every enqueue gets a
// strictly larger sequence than the last, regardless of priority.
func TestPriorityQueueSequenceIsMonotonic(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("sequence numbers increase monotonically across enqueues", prop.ForAll(
		func(priorities []int64) bool {
			q := newPriorityQueue[int]()
			var last uint64
			for i, p := range priorities {
				task := q.enqueue(i, p)
				if i > 0 && task.Sequence <= last {
					t.Logf("sequence did not increase: prev=%d, got=%d", last, task.Sequence)
					return false
				}
				last = task.Sequence
			}
			return true
		},
		gen.SliceOf(gen.Int64Range(-5, 5)),
	))

	properties.TestingRun(t)
}
