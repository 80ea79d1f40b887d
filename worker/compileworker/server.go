package compileworker

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/leanmesh/leanmesh/types"
)

// Server exposes the compilation worker's HTTP surface over a Pool:
// health, batched/single compile, and token-gated pool restart.
type Server struct {
	pool         *Pool
	restartToken string
	logger       *zap.Logger
}

func NewServer(pool *Pool, restartToken string, logger *zap.Logger) *Server {
	return &Server{pool: pool, restartToken: restartToken, logger: logger}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/health":
		s.handleHealth(w, r)
	case "/compile":
		s.handleCompile(w, r)
	case "/compile_one":
		s.handleCompileOne(w, r)
	case "/restart_pool":
		s.handleRestartPool(w, r)
	default:
		http.NotFound(w, r)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type taskEnvelope struct {
	Name string `json:"name"`
	Code string `json:"code"`
}

type taskResult struct {
	Name              string                  `json:"name"`
	Code              string                  `json:"code"`
	Header            string                  `json:"header"`
	CompilationResult types.CompilationResult `json:"compilation_result"`
}

func (s *Server) handleCompile(w http.ResponseWriter, r *http.Request) {
	var tasksIn []taskEnvelope
	if err := json.NewDecoder(r.Body).Decode(&tasksIn); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid task list"})
		return
	}

	tasks := make([]types.CompileTask, len(tasksIn))
	for i, t := range tasksIn {
		tasks[i] = types.CompileTask{Name: t.Name, Code: t.Code}
	}

	results, err := s.pool.RunBatch(r.Context(), tasks)
	if err != nil {
		writePoolError(w, err)
		return
	}

	out := make([]taskResult, len(tasksIn))
	for i, t := range tasksIn {
		out[i] = taskResult{Name: t.Name, Code: t.Code, Header: headerOf(t.Code), CompilationResult: results[i]}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCompileOne(w http.ResponseWriter, r *http.Request) {
	var t taskEnvelope
	if err := json.NewDecoder(r.Body).Decode(&t); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid task"})
		return
	}

	results, err := s.pool.RunBatch(r.Context(), []types.CompileTask{{Name: t.Name, Code: t.Code}})
	if err != nil {
		writePoolError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, taskResult{Name: t.Name, Code: t.Code, Header: headerOf(t.Code), CompilationResult: results[0]})
}

func (s *Server) handleRestartPool(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("token") != s.restartToken || s.restartToken == "" {
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "forbidden"})
		return
	}
	s.pool.Restart()
	writeJSON(w, http.StatusOK, map[string]string{"status": "pool_restarted"})
}

func writePoolError(w http.ResponseWriter, err error) {
	status := http.StatusServiceUnavailable
	if kerr, ok := err.(*types.Error); ok && kerr.HTTPStatus != 0 {
		status = kerr.HTTPStatus
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
