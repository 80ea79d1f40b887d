package llmgateway

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/leanmesh/leanmesh/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newGateway(t *testing.T) *Gateway {
	t.Helper()
	return New(Config{HealthInterval: time.Hour, HealthTimeout: time.Second, RequestTimeout: 5 * time.Second}, zap.NewNop(), nil)
}

func fakeWorker(t *testing.T, model string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			w.WriteHeader(http.StatusOK)
			return
		}
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"ok from ` + model + `"}}],"usage":{}}`))
	}))
}

func TestAlternatingDispatch(t *testing.T) {
	a := fakeWorker(t, "A")
	defer a.Close()
	b := fakeWorker(t, "B")
	defer b.Close()

	g := newGateway(t)
	g.Register(types.LLMWorker{URL: a.URL, ModelName: "m", ModelPath: "m-a"})
	g.Register(types.LLMWorker{URL: b.URL, ModelName: "m", ModelPath: "m-b"})

	srv := httptest.NewServer(g)
	defer srv.Close()

	var hits []string
	for i := 0; i < 5; i++ {
		body, _ := json.Marshal(map[string]any{"model": "m"})
		resp, err := http.Post(srv.URL+"/v1/chat/completions", "application/json", bytes.NewReader(body))
		require.NoError(t, err)
		raw := map[string]any{}
		_ = json.NewDecoder(resp.Body).Decode(&raw)
		resp.Body.Close()
		content := raw["choices"].([]any)[0].(map[string]any)["message"].(map[string]any)["content"].(string)
		if content == "ok from A" {
			hits = append(hits, "A")
		} else {
			hits = append(hits, "B")
		}
	}
	assert.Equal(t, []string{"A", "B", "A", "B", "A"}, hits)
}

func TestHealthEviction(t *testing.T) {
	a := fakeWorker(t, "A")
	defer a.Close()

	g := newGateway(t)
	g.Register(types.LLMWorker{URL: a.URL, ModelName: "m", ModelPath: "m-a"})
	a.Close() // now unreachable

	g.checkAll(context.Background())
	time.Sleep(20 * time.Millisecond) // health checks dispatch asynchronously

	assert.Empty(t, g.Workers()["m"])
}

func TestForwardUnknownModel(t *testing.T) {
	g := newGateway(t)
	srv := httptest.NewServer(g)
	defer srv.Close()

	body, _ := json.Marshal(map[string]any{"model": "nope"})
	resp, err := http.Post(srv.URL+"/v1/chat/completions", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestForwardMissingModel(t *testing.T) {
	g := newGateway(t)
	srv := httptest.NewServer(g)
	defer srv.Close()

	body, _ := json.Marshal(map[string]any{"foo": "bar"})
	resp, err := http.Post(srv.URL+"/v1/chat/completions", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRoundRobinCursorResetOnShrink(t *testing.T) {
	a := fakeWorker(t, "A")
	defer a.Close()
	b := fakeWorker(t, "B")

	g := newGateway(t)
	g.Register(types.LLMWorker{URL: a.URL, ModelName: "m", ModelPath: "m-a"})
	g.Register(types.LLMWorker{URL: b.URL, ModelName: "m", ModelPath: "m-b"})

	_, _ = g.next("m") // cursor now at 1 (B next)
	b.Close()
	g.evict(b.URL)

	w, ok := g.next("m")
	require.True(t, ok)
	assert.Equal(t, a.URL, w.URL)
}

func TestRegisterDeduplicatesByURL(t *testing.T) {
	g := newGateway(t)
	g.Register(types.LLMWorker{URL: "http://x", ModelName: "m", ModelPath: "p"})
	g.Register(types.LLMWorker{URL: "http://x", ModelName: "m", ModelPath: "p"})
	assert.Len(t, g.Workers()["m"], 1)
}
