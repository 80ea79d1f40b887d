// Package compilegateway fronts a flat pool of compilation workers:
// registration, round-robin forwarding to /api/v1/compile and
// /api/v1/compile_one, and health eviction.
package compilegateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
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

// Config configures the gateway's health loop and upstream HTTP client.
type Config struct {
	HealthInterval time.Duration
	HealthTimeout  time.Duration
	RequestTimeout time.Duration
}

// Gateway holds a single flat pool of compilation worker URLs with one
// round-robin cursor, as an explicit server-owned value.
type Gateway struct {
	mu      sync.Mutex
	workers []types.CompileWorker
	cursor  int

	cfg    Config
	client *http.Client
	logger *zap.Logger
	metric *metrics.Collector

	healthGroup  singleflight.Group
	probeLimiter *rate.Limiter
	stopHealth   chan struct{}
}

// New builds a Gateway with an empty pool.
func New(cfg Config, logger *zap.Logger, m *metrics.Collector) *Gateway {
	return &Gateway{
		cfg:          cfg,
		client:       &http.Client{Timeout: cfg.RequestTimeout},
		logger:       logger.With(zap.String("component", "compile_gateway")),
		metric:       m,
		probeLimiter: rate.NewLimiter(rate.Limit(probeBurst), probeBurst),
		stopHealth:   make(chan struct{}),
	}
}

// Register appends url to the pool if not already present.
func (g *Gateway) Register(w types.CompileWorker) {
	g.mu.Lock()
	defer g.mu.Unlock()

	for _, existing := range g.workers {
		if existing.URL == w.URL {
			return
		}
	}
	g.workers = append(g.workers, w)
	if g.metric != nil {
		g.metric.GatewayPoolSize("compile", "_flat", len(g.workers))
	}
}

// Workers returns the active worker URLs.
func (g *Gateway) Workers() []string {
	g.mu.Lock()
	defer g.mu.Unlock()

	urls := make([]string, len(g.workers))
	for i, w := range g.workers {
		urls[i] = w.URL
	}
	return urls
}

func (g *Gateway) next() (types.CompileWorker, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if len(g.workers) == 0 {
		return types.CompileWorker{}, false
	}
	if g.cursor >= len(g.workers) {
		g.cursor = 0
	}
	w := g.workers[g.cursor]
	g.cursor = (g.cursor + 1) % len(g.workers)
	return w, true
}

func (g *Gateway) evict(url string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	kept := g.workers[:0]
	for _, w := range g.workers {
		if w.URL != url {
			kept = append(kept, w)
		}
	}
	g.workers = kept
	if g.metric != nil {
		g.metric.GatewayPoolSize("compile", "_flat", len(g.workers))
		g.metric.GatewayHealthEviction("compile")
	}
}

// RunHealthLoop probes {url}/health for every known worker every
// cfg.HealthInterval, evicting on failure.
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
	for _, url := range g.Workers() {
		url := url
		if err := g.probeLimiter.Wait(ctx); err != nil {
			return
		}
		go func() {
			_, _, _ = g.healthGroup.Do(url, func() (any, error) {
				if !g.probe(ctx, url) {
					g.evict(url)
					g.logger.Warn("evicted unhealthy compilation worker", zap.String("url", url))
				}
				return nil, nil
			})
		}()
	}
}

func (g *Gateway) probe(ctx context.Context, u string) bool {
	probeCtx, cancel := context.WithTimeout(ctx, g.cfg.HealthTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, http.MethodGet, u+"/health", nil)
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

type registerRequest struct {
	URL string `json:"url"`
}

// ServeHTTP dispatches /register, /workers, /api/v1/compile, and
// /api/v1/compile_one.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.URL.Path == "/register" && r.Method == http.MethodPost:
		g.handleRegister(w, r)
	case r.URL.Path == "/workers" && r.Method == http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]any{"active_workers": g.Workers()})
	case r.URL.Path == "/api/v1/compile" && r.Method == http.MethodPost:
		g.forward(w, r, "/compile")
	case r.URL.Path == "/api/v1/compile_one" && r.Method == http.MethodPost:
		g.forward(w, r, "/compile_one")
	default:
		http.NotFound(w, r)
	}
}

func (g *Gateway) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.URL == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid registration body"})
		return
	}
	g.Register(types.CompileWorker{URL: req.URL})
	writeJSON(w, http.StatusOK, map[string]string{"message": "registered"})
}

// forward round-robins a worker and forwards the request body and headers
// (minus Host) to {worker}{upstreamPath}, streaming the response back.
func (g *Gateway) forward(w http.ResponseWriter, r *http.Request, upstreamPath string) {
	worker, ok := g.next()
	if !ok {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "empty worker pool"})
		return
	}

	raw, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "read body"})
		return
	}

	req, err := http.NewRequestWithContext(r.Context(), http.MethodPost, worker.URL+upstreamPath, bytes.NewReader(raw))
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "build upstream request"})
		return
	}
	for k, v := range r.Header {
		if k == "Host" {
			continue
		}
		req.Header[k] = v
	}

	resp, err := g.client.Do(req)
	if err != nil {
		status := http.StatusBadGateway
		reason := "connect_failure"
		var urlErr *url.Error
		if errors.As(err, &urlErr) && urlErr.Timeout() {
			status = http.StatusGatewayTimeout
			reason = "upstream_timeout"
		}
		if g.metric != nil {
			g.metric.GatewayForwardError("compile", reason)
		}
		writeJSON(w, status, map[string]string{"error": reason})
		return
	}
	defer resp.Body.Close()

	for k, v := range resp.Header {
		w.Header()[k] = v
	}
	w.WriteHeader(resp.StatusCode)
	_, _ = io.Copy(w, resp.Body)

	if g.metric != nil {
		g.metric.GatewayForwarded("compile")
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
