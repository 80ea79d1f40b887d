// Command compile-worker runs a machine-local pool of Lean compilation
// child processes behind an HTTP server, and registers itself with a
// compilation gateway on startup.
//
// Usage:
//
//	compile-worker -config config.yaml
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/leanmesh/leanmesh/config"
	"github.com/leanmesh/leanmesh/internal/logging"
	"github.com/leanmesh/leanmesh/internal/metrics"
	"github.com/leanmesh/leanmesh/internal/server"
	"github.com/leanmesh/leanmesh/internal/telemetry"
	"github.com/leanmesh/leanmesh/worker/compileworker"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	cfg := config.MustLoad(*configPath)

	logger, err := logging.New(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	providers, err := telemetry.Init(cfg.Telemetry, logger)
	if err != nil {
		logger.Warn("failed to initialize telemetry", zap.Error(err))
	}

	collector := metrics.NewCollector("leanmesh_compile_worker", logger)

	runner := compileworker.NewProcessRunner(compileworker.ReplConfig{
		LakePath:      cfg.CompileWorker.LakePath,
		LeanWorkspace: cfg.CompileWorker.LeanWorkspace,
		ImportTimeout: cfg.CompileWorker.ImportTimeout,
		ProofTimeout:  cfg.CompileWorker.ProofTimeout,
	})
	pool := compileworker.NewPool(cfg.CompileWorker.NumProcesses, runner, logger, collector)

	lifecycle, cancelLifecycle := context.WithCancel(context.Background())
	defer cancelLifecycle()
	if cfg.CompileWorker.QueueMonitorEvery > 0 {
		go pool.RunQueueMonitor(lifecycle, cfg.CompileWorker.QueueMonitorEvery)
	}
	if cfg.CompileWorker.RestartInterval > 0 {
		go pool.RunRestartLoop(lifecycle, cfg.CompileWorker.RestartInterval)
	}

	handler := compileworker.NewServer(pool, cfg.CompileWorker.RestartToken, logger)

	mgr := server.NewManager(handler, server.Config{
		Addr:            cfg.Server.Addr,
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		IdleTimeout:     cfg.Server.IdleTimeout,
		MaxHeaderBytes:  cfg.Server.MaxHeaderBytes,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
		MaxConnections:  cfg.Server.MaxConnections,
	}, logger)

	if err := mgr.Start(); err != nil {
		logger.Fatal("failed to start compile worker", zap.Error(err))
	}
	logger.Info("compile worker listening", zap.String("addr", mgr.Addr()))

	go registerWithGateway(lifecycle, logger, cfg.CompileWorker)

	mgr.WaitForShutdown()
	cancelLifecycle()
	pool.Stop()

	if providers != nil {
		shutdownCtx := context.Background()
		if err := providers.Shutdown(shutdownCtx); err != nil {
			logger.Warn("telemetry shutdown error", zap.Error(err))
		}
	}

	logger.Info("compile worker stopped")
}

// registerWithGateway posts this worker's URL to the compilation gateway's
// /register endpoint, retrying forever at cfg.RegisterRetry until the
// gateway accepts it or ctx is cancelled. The rate limiter caps attempts at
// one per RegisterRetry interval regardless of how quickly each attempt
// fails, so a gateway that is merely slow to answer never gets hammered.
func registerWithGateway(ctx context.Context, logger *zap.Logger, cfg config.CompileWorkerConfig) {
	retry := cfg.RegisterRetry
	if retry <= 0 {
		retry = 5 * time.Second
	}
	limiter := rate.NewLimiter(rate.Every(retry), 1)
	client := &http.Client{Timeout: retry}

	body, err := json.Marshal(map[string]string{"url": cfg.WorkerURL})
	if err != nil {
		logger.Error("failed to encode registration body", zap.Error(err))
		return
	}

	for {
		if err := limiter.Wait(ctx); err != nil {
			return
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.GatewayURL+"/register", bytes.NewReader(body))
		if err != nil {
			logger.Error("failed to build registration request", zap.Error(err))
			return
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := client.Do(req)
		if err != nil {
			logger.Warn("registration attempt failed, retrying", zap.Error(err), zap.Duration("retry_in", retry))
			continue
		}
		resp.Body.Close()

		if resp.StatusCode == http.StatusOK {
			logger.Info("registered with compilation gateway", zap.String("gateway", cfg.GatewayURL), zap.String("worker", cfg.WorkerURL))
			return
		}
		logger.Warn("registration rejected, retrying", zap.Int("status", resp.StatusCode), zap.Duration("retry_in", retry))
	}
}
