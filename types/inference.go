package types

// Usage is token accounting for one LLM call.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Add accumulates other into u in place and returns u, so that a shared
// accumulator can be updated under a lock with a single call:
// usage.Add(other).
func (u *Usage) Add(other Usage) *Usage {
	u.PromptTokens += other.PromptTokens
	u.CompletionTokens += other.CompletionTokens
	u.TotalTokens += other.TotalTokens
	return u
}

// InferenceResult is the parsed outcome of one LLM call.
type InferenceResult struct {
	Content string `json:"content"`
	Usage   Usage  `json:"usage"`
}
