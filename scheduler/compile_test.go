package scheduler

import (
	"context"
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

func TestCompileScheduler_CompleteWhenNoErrorsOrSorries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"header":"import Mathlib\n","errors":[],"sorries":[]}`))
	}))
	defer srv.Close()

	s := NewCompileScheduler(CompileConfig{GatewayURL: srv.URL, Workers: 2, Timeout: 5 * time.Second}, zap.NewNop(), nil)
	defer s.Stop()

	res, err := s.Submit(context.Background(), types.CompileTask{Name: "foo", Code: "theorem foo : True := trivial"})
	require.NoError(t, err)
	assert.True(t, res.Complete)
	assert.True(t, res.Pass)
}

func TestCompileScheduler_IncompleteWithSorry(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"errors":[],"sorries":[{"pos":{"line":1,"column":0}}]}`))
	}))
	defer srv.Close()

	s := NewCompileScheduler(CompileConfig{GatewayURL: srv.URL, Workers: 1, Timeout: 5 * time.Second}, zap.NewNop(), nil)
	defer s.Stop()

	res, err := s.Submit(context.Background(), types.CompileTask{Name: "foo", Code: "theorem foo : True := by sorry"})
	require.NoError(t, err)
	assert.True(t, res.Pass)
	assert.False(t, res.Complete)
}

func TestCompileScheduler_ChildProcessFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"system_errors":"REPL crashed: traceback..."}`))
	}))
	defer srv.Close()

	s := NewCompileScheduler(CompileConfig{GatewayURL: srv.URL, Workers: 1, Timeout: 5 * time.Second}, zap.NewNop(), nil)
	defer s.Stop()

	res, err := s.Submit(context.Background(), types.CompileTask{Name: "foo", Code: "bad"})
	require.NoError(t, err)
	assert.False(t, res.Pass)
	assert.False(t, res.Complete)
	assert.Contains(t, res.SystemErrors, "traceback")
}

func TestCompileScheduler_FIFOOrdering(t *testing.T) {
	var mu sync.Mutex
	var order []string

	release := make(chan struct{})
	var once sync.Once

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body := make([]byte, r.ContentLength)
		_, _ = r.Body.Read(body)
		once.Do(func() { <-release })

		mu.Lock()
		order = append(order, string(body))
		mu.Unlock()
		_, _ = w.Write([]byte(`{"errors":[],"sorries":[]}`))
	}))
	defer srv.Close()

	s := NewCompileScheduler(CompileConfig{GatewayURL: srv.URL, Workers: 1, Timeout: 5 * time.Second}, zap.NewNop(), nil)
	defer s.Stop()

	var wg sync.WaitGroup
	submit := func(name string) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = s.Submit(context.Background(), types.CompileTask{Name: name, Code: name})
		}()
	}

	submit("first")
	time.Sleep(50 * time.Millisecond)
	submit("second")
	submit("third")
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	require.Len(t, order, 3)
	assert.Contains(t, order[0], "first")
	assert.Contains(t, order[1], "second")
	assert.Contains(t, order[2], "third")
}
