// Package config loads control-plane configuration from YAML plus
// environment-variable overrides.
//
// Usage:
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("config.yaml").
//	    WithEnvPrefix("LEANMESH").
//	    Load()
//
// Precedence: defaults -> YAML file -> environment variables.
package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete configuration for any of the three services
// (LLM gateway, compilation gateway, compilation worker) plus the shared
// scheduler and search settings. Each binary reads only the sections it
// needs.
type Config struct {
	Server        ServerConfig        `yaml:"server" env:"SERVER"`
	LLMGateway    LLMGatewayConfig    `yaml:"llm_gateway" env:"LLM_GATEWAY"`
	CompileGateway CompileGatewayConfig `yaml:"compile_gateway" env:"COMPILE_GATEWAY"`
	CompileWorker CompileWorkerConfig `yaml:"compile_worker" env:"COMPILE_WORKER"`
	Scheduler     SchedulerConfig     `yaml:"scheduler" env:"SCHEDULER"`
	Search        SearchConfig        `yaml:"search" env:"SEARCH"`
	Log           LogConfig           `yaml:"log" env:"LOG"`
	Telemetry     TelemetryConfig     `yaml:"telemetry" env:"TELEMETRY"`
}

// ServerConfig configures the HTTP listener common to all three services.
type ServerConfig struct {
	Addr            string        `yaml:"addr" env:"ADDR"`
	ReadTimeout     time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" env:"IDLE_TIMEOUT"`
	MaxHeaderBytes  int           `yaml:"max_header_bytes" env:"MAX_HEADER_BYTES"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
	MaxConnections  int           `yaml:"max_connections" env:"MAX_CONNECTIONS"`
}

// LLMGatewayConfig configures the LLM gateway's health loop and HTTP
// client.
type LLMGatewayConfig struct {
	HealthInterval time.Duration `yaml:"health_interval" env:"HEALTH_INTERVAL"`
	HealthTimeout  time.Duration `yaml:"health_timeout" env:"HEALTH_TIMEOUT"`
	RequestTimeout time.Duration `yaml:"request_timeout" env:"REQUEST_TIMEOUT"`
	MaxConnsPerHost int          `yaml:"max_conns_per_host" env:"MAX_CONNS_PER_HOST"`
}

// CompileGatewayConfig configures the compilation gateway's health loop and
// HTTP client.
type CompileGatewayConfig struct {
	HealthInterval time.Duration `yaml:"health_interval" env:"HEALTH_INTERVAL"`
	HealthTimeout  time.Duration `yaml:"health_timeout" env:"HEALTH_TIMEOUT"`
	RequestTimeout time.Duration `yaml:"request_timeout" env:"REQUEST_TIMEOUT"`
}

// CompileWorkerConfig configures one compilation worker's process pool.
type CompileWorkerConfig struct {
	GatewayURL        string        `yaml:"gateway_url" env:"GATEWAY_URL"`
	WorkerURL         string        `yaml:"worker_url" env:"WORKER_URL"`
	NumProcesses      int           `yaml:"num_processes" env:"NUM_PROCESSES"`
	LakePath          string        `yaml:"lake_path" env:"LAKE_PATH"`
	LeanWorkspace     string        `yaml:"lean_workspace" env:"LEAN_WORKSPACE"`
	RestartToken      string        `yaml:"restart_token" env:"RESTART_TOKEN"`
	ImportTimeout     time.Duration `yaml:"import_timeout" env:"IMPORT_TIMEOUT"`
	ProofTimeout      time.Duration `yaml:"proof_timeout" env:"PROOF_TIMEOUT"`
	RestartInterval   time.Duration `yaml:"restart_interval" env:"RESTART_INTERVAL"`
	QueueMonitorEvery time.Duration `yaml:"queue_monitor_every" env:"QUEUE_MONITOR_EVERY"`
	RegisterRetry     time.Duration `yaml:"register_retry" env:"REGISTER_RETRY"`
}

// SchedulerConfig configures both the inference and the compilation
// scheduler.
type SchedulerConfig struct {
	LLMGatewayURL      string        `yaml:"llm_gateway_url" env:"LLM_GATEWAY_URL"`
	CompileGatewayURL  string        `yaml:"compile_gateway_url" env:"COMPILE_GATEWAY_URL"`
	InferenceWorkers   int           `yaml:"inference_workers" env:"INFERENCE_WORKERS"`
	CompileWorkers     int           `yaml:"compile_workers" env:"COMPILE_WORKERS"`
	InferenceTimeout   time.Duration `yaml:"inference_timeout" env:"INFERENCE_TIMEOUT"`
	CompileTimeout     time.Duration `yaml:"compile_timeout" env:"COMPILE_TIMEOUT"`
	MaxRetryAttempts   int           `yaml:"max_retry_attempts" env:"MAX_RETRY_ATTEMPTS"`
}

// SearchConfig configures the lightweight and mediumweight search
// strategies.
type SearchConfig struct {
	LightweightPasses    int `yaml:"lightweight_passes" env:"LIGHTWEIGHT_PASSES"`
	LightweightRevisions int `yaml:"lightweight_revisions" env:"LIGHTWEIGHT_REVISIONS"`
	MediumweightPasses   int `yaml:"mediumweight_passes" env:"MEDIUMWEIGHT_PASSES"`
}

// LogConfig configures the zap logger.
type LogConfig struct {
	Level            string   `yaml:"level" env:"LEVEL"`
	Format           string   `yaml:"format" env:"FORMAT"`
	OutputPaths      []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
	EnableCaller     bool     `yaml:"enable_caller" env:"ENABLE_CALLER"`
	EnableStacktrace bool     `yaml:"enable_stacktrace" env:"ENABLE_STACKTRACE"`
}

// TelemetryConfig configures OpenTelemetry tracing.
type TelemetryConfig struct {
	Enabled      bool    `yaml:"enabled" env:"ENABLED"`
	OTLPEndpoint string  `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	ServiceName  string  `yaml:"service_name" env:"SERVICE_NAME"`
	SampleRate   float64 `yaml:"sample_rate" env:"SAMPLE_RATE"`
}

// Loader loads a Config from defaults, an optional YAML file, and
// environment variables, in that order of increasing precedence.
type Loader struct {
	configPath string
	envPrefix  string
	validators []func(*Config) error
}

// NewLoader creates a loader with the default environment prefix.
func NewLoader() *Loader {
	return &Loader{
		envPrefix:  "LEANMESH",
		validators: make([]func(*Config) error, 0),
	}
}

// WithConfigPath sets the YAML config file path.
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix overrides the environment variable prefix.
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithValidator registers a validation function run after loading.
func (l *Loader) WithValidator(v func(*Config) error) *Loader {
	l.validators = append(l.validators, v)
	return l
}

// Load builds a Config from defaults, the YAML file if any, then
// environment overrides, and runs all registered validators.
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	if err := l.loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	for _, v := range l.validators {
		if err := v(cfg); err != nil {
			return nil, fmt.Errorf("config validation failed: %w", err)
		}
	}

	return cfg, nil
}

func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

func (l *Loader) loadFromEnv(cfg *Config) error {
	return l.setFieldsFromEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix)
}

func (l *Loader) setFieldsFromEnv(v reflect.Value, prefix string) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		envTag := fieldType.Tag.Get("env")
		if envTag == "" || envTag == "-" {
			continue
		}

		envKey := prefix + "_" + envTag

		if field.Kind() == reflect.Struct {
			if err := l.setFieldsFromEnv(field, envKey); err != nil {
				return err
			}
			continue
		}

		envValue := os.Getenv(envKey)
		if envValue == "" {
			continue
		}

		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("failed to set %s: %w", envKey, err)
		}
	}

	return nil
}

func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return err
			}
			field.SetInt(i)
		}

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return err
		}
		field.SetUint(u)

	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)

	case reflect.Slice:
		if field.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(value, ",")
			for i := range parts {
				parts[i] = strings.TrimSpace(parts[i])
			}
			field.Set(reflect.ValueOf(parts))
		}
	}

	return nil
}

// MustLoad loads config from path, panicking on failure. Intended for
// cmd/ entrypoints where a bad config is a fatal startup error.
func MustLoad(path string) *Config {
	cfg, err := NewLoader().WithConfigPath(path).Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}
