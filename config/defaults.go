package config

import "time"

// DefaultConfig returns a Config populated with sensible defaults for
// local development. Production deployments override via YAML/env.
func DefaultConfig() *Config {
	return &Config{
		Server:         DefaultServerConfig(),
		LLMGateway:     DefaultLLMGatewayConfig(),
		CompileGateway: DefaultCompileGatewayConfig(),
		CompileWorker:  DefaultCompileWorkerConfig(),
		Scheduler:      DefaultSchedulerConfig(),
		Search:         DefaultSearchConfig(),
		Log:            DefaultLogConfig(),
		Telemetry:      DefaultTelemetryConfig(),
	}
}

// DefaultServerConfig returns the default HTTP server settings.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Addr:            ":8080",
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    30 * time.Second,
		IdleTimeout:     120 * time.Second,
		MaxHeaderBytes:  1 << 20,
		ShutdownTimeout: 15 * time.Second,
		MaxConnections:  1024,
	}
}

// DefaultLLMGatewayConfig returns the default LLM gateway settings,
// matching the 60s health loop from the component design.
func DefaultLLMGatewayConfig() LLMGatewayConfig {
	return LLMGatewayConfig{
		HealthInterval:  60 * time.Second,
		HealthTimeout:   10 * time.Second,
		RequestTimeout:  900 * time.Second,
		MaxConnsPerHost: 800,
	}
}

// DefaultCompileGatewayConfig returns the default compilation gateway
// settings, matching the 30s health loop from the component design.
func DefaultCompileGatewayConfig() CompileGatewayConfig {
	return CompileGatewayConfig{
		HealthInterval: 30 * time.Second,
		HealthTimeout:  5 * time.Second,
		RequestTimeout: 600 * time.Second,
	}
}

// DefaultCompileWorkerConfig returns the default compilation worker
// settings.
func DefaultCompileWorkerConfig() CompileWorkerConfig {
	return CompileWorkerConfig{
		GatewayURL:        "http://localhost:8100",
		WorkerURL:         "http://localhost:8200",
		NumProcesses:      4,
		LakePath:          "lake",
		LeanWorkspace:     ".",
		RestartToken:      "",
		ImportTimeout:     100 * time.Second,
		ProofTimeout:      200 * time.Second,
		RestartInterval:   3 * time.Minute,
		QueueMonitorEvery: 60 * time.Second,
		RegisterRetry:     5 * time.Second,
	}
}

// DefaultSchedulerConfig returns the default scheduler settings.
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		LLMGatewayURL:     "http://localhost:8000",
		CompileGatewayURL: "http://localhost:8100",
		InferenceWorkers:  256,
		CompileWorkers:    64,
		InferenceTimeout:  900 * time.Second,
		CompileTimeout:    600 * time.Second,
		MaxRetryAttempts:  1,
	}
}

// DefaultSearchConfig returns the default search strategy parameters.
func DefaultSearchConfig() SearchConfig {
	return SearchConfig{
		LightweightPasses:    4,
		LightweightRevisions: 3,
		MediumweightPasses:   4,
	}
}

// DefaultLogConfig returns the default logging settings.
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "json",
		OutputPaths:      []string{"stdout"},
		EnableCaller:     true,
		EnableStacktrace: false,
	}
}

// DefaultTelemetryConfig returns the default telemetry settings.
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "leanmesh",
		SampleRate:   0.1,
	}
}
