// Command llm-gateway fronts a set of LLM backend workers, grouped by
// friendly model name, with round-robin forwarding and health eviction.
//
// Usage:
//
//	llm-gateway -config config.yaml
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/leanmesh/leanmesh/config"
	"github.com/leanmesh/leanmesh/gateway/llmgateway"
	"github.com/leanmesh/leanmesh/internal/logging"
	"github.com/leanmesh/leanmesh/internal/metrics"
	"github.com/leanmesh/leanmesh/internal/server"
	"github.com/leanmesh/leanmesh/internal/telemetry"
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

	collector := metrics.NewCollector("leanmesh_llm_gateway", logger)

	gw := llmgateway.New(llmgateway.Config{
		HealthInterval:  cfg.LLMGateway.HealthInterval,
		HealthTimeout:   cfg.LLMGateway.HealthTimeout,
		RequestTimeout:  cfg.LLMGateway.RequestTimeout,
		MaxConnsPerHost: cfg.LLMGateway.MaxConnsPerHost,
	}, logger, collector)

	healthCtx, stopHealth := context.WithCancel(context.Background())
	defer stopHealth()
	go gw.RunHealthLoop(healthCtx)

	mgr := server.NewManager(gw, server.Config{
		Addr:            cfg.Server.Addr,
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		IdleTimeout:     cfg.Server.IdleTimeout,
		MaxHeaderBytes:  cfg.Server.MaxHeaderBytes,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
		MaxConnections:  cfg.Server.MaxConnections,
	}, logger)

	if err := mgr.Start(); err != nil {
		logger.Fatal("failed to start llm gateway", zap.Error(err))
	}
	logger.Info("llm gateway listening", zap.String("addr", mgr.Addr()))

	mgr.WaitForShutdown()
	gw.Stop()
	stopHealth()

	if providers != nil {
		shutdownCtx := context.Background()
		if err := providers.Shutdown(shutdownCtx); err != nil {
			logger.Warn("telemetry shutdown error", zap.Error(err))
		}
	}

	logger.Info("llm gateway stopped")
}
