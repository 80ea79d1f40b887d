package types

import "context"

// ChatTurn is one message in a chat-style prompt.
type ChatTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Prompt is either a single user turn (Text) or an ordered list of chat
// turns; the list takes precedence when set. Schedulers never interpret the
// prompt contents; they only forward it.
type Prompt struct {
	Text  string     `json:"-"`
	turns []ChatTurn
}

// TextPrompt wraps s as a single user turn.
func TextPrompt(s string) Prompt { return Prompt{Text: s} }

// TurnsPrompt wraps an ordered list of chat turns.
func TurnsPrompt(turns []ChatTurn) Prompt { return Prompt{turns: turns} }

// Turns returns the prompt as an ordered list of chat turns, wrapping a
// bare text prompt as a single user turn.
func (p Prompt) Turns() []ChatTurn {
	if p.turns != nil {
		return p.turns
	}
	return []ChatTurn{{Role: "user", Content: p.Text}}
}

// InferenceTask is the payload of a Task submitted to the inference
// scheduler.
type InferenceTask struct {
	Model       string
	Prompt      Prompt
	ExtraParams map[string]any
}

// CompileTask is the payload of a Task submitted to the compilation
// scheduler.
type CompileTask struct {
	Name string
	Code string
}

// Task is a unit of work multiplexed onto a bounded pool of remote workers
// by a scheduler. Priority is compared numerically: lower values dispatch
// first. Sequence breaks ties between equal priorities (FIFO).
//
// Task is generic over its payload type P: InferenceTask or CompileTask,
// depending on which scheduler owns the task. Each scheduler keeps its own
// queue of its own payload type.
type Task[P any] struct {
	Payload  P
	Sequence uint64
	Priority int64
	result   chan Result[any]
}

// Result is the single-shot outcome of a Task: exactly one of Value or Err
// is set, and the slot completes exactly once.
type Result[T any] struct {
	Value T
	Err   error
}

// NewTask builds a task with a fresh result slot.
func NewTask[P any](payload P, priority int64, sequence uint64) *Task[P] {
	return &Task[P]{Payload: payload, Priority: priority, Sequence: sequence, result: make(chan Result[any], 1)}
}

// Complete delivers the task's outcome. It must be called at most once.
func (t *Task[P]) Complete(value any, err error) {
	t.result <- Result[any]{Value: value, Err: err}
}

// Await blocks until the task completes or ctx is cancelled.
func (t *Task[P]) Await(ctx context.Context) (any, error) {
	select {
	case r := <-t.result:
		return r.Value, r.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
