// Package llmgateway fronts many LLM worker backends, grouped by friendly
// model name: registration, round-robin forwarding per model, and health
// eviction.
package llmgateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/leanmesh/leanmesh/internal/metrics"
	"github.com/leanmesh/leanmesh/types"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

// probeBurst bounds how many health probes a single tick may fire before
// the rate limiter starts pacing them out.
const probeBurst = 50

// pool is one model name's worker set plus its own round-robin cursor.
type pool struct {
	workers []types.LLMWorker
	cursor  int
}

// Config configures the gateway's health loop and upstream HTTP client.
type Config struct {
	HealthInterval  time.Duration
	HealthTimeout   time.Duration
	RequestTimeout  time.Duration
	MaxConnsPerHost int
}

// Gateway holds the process-wide pool table as an explicit server-owned
// value (never a package global) so it can be constructed fresh per test.
type Gateway struct {
	mu     sync.Mutex
	pools  map[string]*pool // model_name -> pool
	cfg    Config
	client *http.Client
	logger *zap.Logger
	metric *metrics.Collector

	healthGroup  singleflight.Group
	probeLimiter *rate.Limiter
	stopHealth   chan struct{}
}

// New builds a Gateway with an empty pool table.
func New(cfg Config, logger *zap.Logger, m *metrics.Collector) *Gateway {
	if cfg.MaxConnsPerHost <= 0 {
		cfg.MaxConnsPerHost = 800
	}
	return &Gateway{
		pools: make(map[string]*pool),
		cfg:   cfg,
		client: &http.Client{
			Timeout: cfg.RequestTimeout,
			Transport: &http.Transport{
				MaxConnsPerHost: cfg.MaxConnsPerHost,
			},
		},
		logger:       logger.With(zap.String("component", "llm_gateway")),
		metric:       m,
		probeLimiter: rate.NewLimiter(rate.Limit(probeBurst), probeBurst),
		stopHealth:   make(chan struct{}),
	}
}

// Register inserts w into its model's pool if (url) is not already present.
// The first registration for a model name creates a fresh pool with its
// cursor at zero.
func (g *Gateway) Register(w types.LLMWorker) {
	g.mu.Lock()
	defer g.mu.Unlock()

	p, ok := g.pools[w.ModelName]
	if !ok {
		p = &pool{}
		g.pools[w.ModelName] = p
	}
	for _, existing := range p.workers {
		if existing.URL == w.URL {
			return
		}
	}
	p.workers = append(p.workers, w)
	if g.metric != nil {
		g.metric.GatewayPoolSize("llm", w.ModelName, len(p.workers))
	}
}

// Workers returns a snapshot of the current pool map, keyed by model name.
func (g *Gateway) Workers() map[string][]types.LLMWorkerView {
	g.mu.Lock()
	defer g.mu.Unlock()

	out := make(map[string][]types.LLMWorkerView, len(g.pools))
	for name, p := range g.pools {
		views := make([]types.LLMWorkerView, len(p.workers))
		for i, w := range p.workers {
			views[i] = types.LLMWorkerView{URL: w.URL, Path: w.ModelPath}
		}
		out[name] = views
	}
	return out
}

// next round-robins within model's pool, resetting the cursor to 0 if the
// pool has shrunk since it was last saved. Returns ok=false for an unknown
// or empty pool.
func (g *Gateway) next(model string) (types.LLMWorker, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	p, ok := g.pools[model]
	if !ok || len(p.workers) == 0 {
		return types.LLMWorker{}, false
	}
	if p.cursor >= len(p.workers) {
		p.cursor = 0
	}
	w := p.workers[p.cursor]
	p.cursor = (p.cursor + 1) % len(p.workers)
	return w, true
}

// evict removes url from every pool it appears in, dropping any pool that
// becomes empty (cursor included, since it is owned by the pool struct).
func (g *Gateway) evict(url string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	for name, p := range g.pools {
		kept := p.workers[:0]
		for _, w := range p.workers {
			if w.URL != url {
				kept = append(kept, w)
			}
		}
		p.workers = kept
		if len(p.workers) == 0 {
			delete(g.pools, name)
		} else if g.metric != nil {
			g.metric.GatewayPoolSize("llm", name, len(p.workers))
		}
	}
	if g.metric != nil {
		g.metric.GatewayHealthEviction("llm")
	}
}

// allURLs returns every distinct worker URL across all pools.
func (g *Gateway) allURLs() []string {
	g.mu.Lock()
	defer g.mu.Unlock()

	seen := make(map[string]struct{})
	var urls []string
	for _, p := range g.pools {
		for _, w := range p.workers {
			if _, ok := seen[w.URL]; !ok {
				seen[w.URL] = struct{}{}
				urls = append(urls, w.URL)
			}
		}
	}
	return urls
}

// RunHealthLoop probes GET {url}/health for every known URL every
// cfg.HealthInterval, evicting any URL that returns a non-200 or fails to
// connect. It blocks until ctx is cancelled or Stop is called.
func (g *Gateway) RunHealthLoop(ctx context.Context) {
	ticker := time.NewTicker(g.cfg.HealthInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-g.stopHealth:
			return
		case <-ticker.C:
			g.checkAll(ctx)
		}
	}
}

// Stop ends a running health loop.
func (g *Gateway) Stop() {
	close(g.stopHealth)
}

// checkAll probes every registered URL in its own goroutine. Dispatch is
// paced in this loop by the shared rate.Limiter: the first probeBurst
// probes of a tick go out at once, later ones at probeBurst per second.
func (g *Gateway) checkAll(ctx context.Context) {
	for _, url := range g.allURLs() {
		url := url
		if err := g.probeLimiter.Wait(ctx); err != nil {
			return
		}
		// singleflight dedupes a health probe against the same URL if a
		// prior tick is still in flight when the next timer fires.
		go func() {
			_, _, _ = g.healthGroup.Do(url, func() (any, error) {
				if !g.probe(ctx, url) {
					g.evict(url)
					g.logger.Warn("evicted unhealthy llm worker", zap.String("url", url))
				}
				return nil, nil
			})
		}()
	}
}

func (g *Gateway) probe(ctx context.Context, url string) bool {
	probeCtx, cancel := context.WithTimeout(ctx, g.cfg.HealthTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, http.MethodGet, url+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := g.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// registerRequest is the body of POST /register.
type registerRequest struct {
	URL       string `json:"url"`
	ModelName string `json:"model_name"`
	ModelPath string `json:"model_path"`
}

// ServeHTTP dispatches /register, /workers, and /v1/* by path prefix.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.URL.Path == "/register" && r.Method == http.MethodPost:
		g.handleRegister(w, r)
	case r.URL.Path == "/workers" && r.Method == http.MethodGet:
		g.handleWorkers(w, r)
	case len(r.URL.Path) > len("/v1/") && r.URL.Path[:4] == "/v1/":
		g.handleForward(w, r)
	default:
		http.NotFound(w, r)
	}
}

func (g *Gateway) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.URL == "" || req.ModelName == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid registration body"})
		return
	}
	g.Register(types.LLMWorker{URL: req.URL, ModelName: req.ModelName, ModelPath: req.ModelPath})
	writeJSON(w, http.StatusOK, map[string]string{"message": "registered"})
}

func (g *Gateway) handleWorkers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"worker_pool": g.Workers()})
}

// handleForward parses the body as JSON, reads the friendly model name,
// round-robins a worker for that model, rewrites model to the worker's
// model_path, re-encodes, and streams the upstream response back.
func (g *Gateway) handleForward(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "read body"})
		return
	}

	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		if g.metric != nil {
			g.metric.GatewayForwardError("llm", "bad_json")
		}
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json body"})
		return
	}
	model, ok := payload["model"].(string)
	if !ok || model == "" {
		if g.metric != nil {
			g.metric.GatewayForwardError("llm", "missing_model")
		}
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing model"})
		return
	}

	worker, ok := g.next(model)
	if !ok {
		if g.metric != nil {
			g.metric.GatewayForwardError("llm", "unknown_model")
		}
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown model or empty pool"})
		return
	}

	payload["model"] = worker.ModelPath
	body, err := json.Marshal(payload)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "re-encode body"})
		return
	}

	upstreamURL := worker.URL + r.URL.Path
	req, err := http.NewRequestWithContext(r.Context(), r.Method, upstreamURL, bytes.NewReader(body))
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "build upstream request"})
		return
	}
	for k, v := range r.Header {
		if k == "Host" || k == "Content-Length" {
			continue
		}
		req.Header[k] = v
	}
	req.Header.Set("Content-Length", fmt.Sprint(len(body)))
	req.ContentLength = int64(len(body))

	resp, err := g.client.Do(req)
	if err != nil {
		if g.metric != nil {
			g.metric.GatewayForwardError("llm", "connect_failure")
		}
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": "upstream connect failure"})
		return
	}
	defer resp.Body.Close()

	for k, v := range resp.Header {
		w.Header()[k] = v
	}
	w.WriteHeader(resp.StatusCode)
	_, _ = io.Copy(w, resp.Body)

	if g.metric != nil {
		g.metric.GatewayForwarded("llm")
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
