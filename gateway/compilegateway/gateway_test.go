package compilegateway

import (
	"bytes"
	"context"
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

func TestEmptyPoolReturns503(t *testing.T) {
	g := newGateway(t)
	srv := httptest.NewServer(g)
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/api/v1/compile_one", "application/json", bytes.NewReader([]byte(`{}`)))
	require.NoError(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestForwardsToWorkerCompileOne(t *testing.T) {
	worker := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/compile_one", r.URL.Path)
		_, _ = w.Write([]byte(`{"errors":[],"sorries":[]}`))
	}))
	defer worker.Close()

	g := newGateway(t)
	g.Register(types.CompileWorker{URL: worker.URL})
	srv := httptest.NewServer(g)
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/api/v1/compile_one", "application/json", bytes.NewReader([]byte(`{"name":"x","code":"y"}`)))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestHealthEvictionRemovesWorker(t *testing.T) {
	worker := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	g := newGateway(t)
	g.Register(types.CompileWorker{URL: worker.URL})
	worker.Close()

	g.checkAll(context.Background())
	time.Sleep(20 * time.Millisecond)

	assert.Empty(t, g.Workers())
}

func TestConnectFailureReturns502(t *testing.T) {
	g := newGateway(t)
	g.Register(types.CompileWorker{URL: "http://127.0.0.1:1"})
	srv := httptest.NewServer(g)
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/api/v1/compile", "application/json", bytes.NewReader([]byte(`[]`)))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
}
