package scheduler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/leanmesh/leanmesh/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestInferenceScheduler_DispatchesAndParsesResult(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "gpt-x", body["model"])
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"theorem foo := by trivial"}}],"usage":{"prompt_tokens":10,"completion_tokens":5,"total_tokens":15}}`))
	}))
	defer srv.Close()

	s := NewInferenceScheduler(InferenceConfig{GatewayURL: srv.URL, Workers: 2, Timeout: 5 * time.Second}, zap.NewNop(), nil)
	defer s.Stop()

	res, err := s.Submit(context.Background(), types.InferenceTask{Model: "gpt-x", Prompt: types.TextPrompt("prove it")}, 0)
	require.NoError(t, err)
	assert.Equal(t, "theorem foo := by trivial", res.Content)
	assert.Equal(t, 15, res.Usage.TotalTokens)
}

func TestInferenceScheduler_PriorityOrdering(t *testing.T) {
	var mu sync.Mutex
	var order []string

	release := make(chan struct{})
	var once sync.Once

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		// Block the very first request so every other task queues up behind
		// it, then let the priority ordering among the queued tasks decide
		// the remaining dispatch order.
		once.Do(func() { <-release })

		mu.Lock()
		order = append(order, body["model"].(string))
		mu.Unlock()
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"x"}}],"usage":{}}`))
	}))
	defer srv.Close()

	s := NewInferenceScheduler(InferenceConfig{GatewayURL: srv.URL, Workers: 1, Timeout: 5 * time.Second}, zap.NewNop(), nil)
	defer s.Stop()

	var wg sync.WaitGroup
	submit := func(model string, priority int64) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = s.Submit(context.Background(), types.InferenceTask{Model: model, Prompt: types.TextPrompt("p")}, priority)
		}()
	}

	submit("blocker", 5)
	time.Sleep(50 * time.Millisecond) // let the blocker dequeue and stall the single worker
	submit("low", 10)
	submit("high", 0)
	time.Sleep(50 * time.Millisecond) // let both queue up behind the blocker
	close(release)
	wg.Wait()

	require.Len(t, order, 3)
	assert.Equal(t, "blocker", order[0])
	assert.Equal(t, "high", order[1])
	assert.Equal(t, "low", order[2])
}

func TestInferenceScheduler_TransportErrorSurfaces(t *testing.T) {
	s := NewInferenceScheduler(InferenceConfig{GatewayURL: "http://127.0.0.1:1", Workers: 1, Timeout: time.Second}, zap.NewNop(), nil)
	defer s.Stop()

	_, err := s.Submit(context.Background(), types.InferenceTask{Model: "m", Prompt: types.TextPrompt("p")}, 0)
	require.Error(t, err)
	assert.Equal(t, types.ErrTransport, types.KindOf(err))
}
