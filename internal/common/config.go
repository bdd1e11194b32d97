package common

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	App      AppConfig
	Server   ServerConfig
	Database DatabaseConfig
	Blob     BlobConfig
	Analyzer AnalyzerConfig
	Agents   AgentConfig
	Pipeline PipelineConfig
	Ingest   IngestConfig
}

// AppConfig holds application-level configuration
type AppConfig struct {
	Env      string
	LogLevel string
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	HTTPAddr        string
	ShutdownTimeout time.Duration
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
	DialTimeout     time.Duration
}

// BlobConfig holds attachment storage configuration
type BlobConfig struct {
	Dir string
}

// AnalyzerConfig holds the document analyzer service configuration.
// When Endpoint is empty the extractor falls back to local parsing.
type AnalyzerConfig struct {
	Endpoint string
	APIKey   string
	Timeout  time.Duration
}

// AgentConfig holds the remote agent endpoints for the standardization and
// invoice stages. Empty URLs mean the local simulator handles the stage.
type AgentConfig struct {
	StageBURL                 string
	StageBKey                 string
	StageCURL                 string
	StageCKey                 string
	CallTimeout               time.Duration
	RetryDelay                time.Duration
	DisableSimulationFallback bool
}

// PipelineConfig holds orchestration parameters
type PipelineConfig struct {
	ChainCooldown  time.Duration
	CodeMappings   string
	DispatcherIdle time.Duration
}

// IngestConfig holds the drop-directory watcher configuration
type IngestConfig struct {
	WatchDir    string
	SettleDelay time.Duration
}

// LoadConfig loads configuration from the environment. A .env file in the
// working directory is read first when present; real environment variables
// win over file values.
func LoadConfig() *Config {
	_ = godotenv.Load()

	return &Config{
		App: AppConfig{
			Env:      getEnv("APP_ENV", "dev"),
			LogLevel: getEnv("LOG_LEVEL", "info"),
		},
		Server: ServerConfig{
			HTTPAddr:        getEnv("HTTP_ADDR", ":8080"),
			ShutdownTimeout: getEnvAsDuration("SHUTDOWN_TIMEOUT", 15*time.Second),
		},
		Database: DatabaseConfig{
			DSN:             getEnv("DB_URL", ""),
			MaxConns:        getEnvAsInt32("DB_MAX_CONNS", 20),
			MinConns:        getEnvAsInt32("DB_MIN_CONNS", 5),
			MaxConnLifetime: getEnvAsDuration("DB_MAX_CONN_LIFETIME", 30*time.Minute),
			MaxConnIdleTime: getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 5*time.Minute),
			DialTimeout:     getEnvAsDuration("DB_DIAL_TIMEOUT", 3*time.Second),
		},
		Blob: BlobConfig{
			Dir: getEnv("BLOB_DIR", "./data/blobs"),
		},
		Analyzer: AnalyzerConfig{
			Endpoint: getEnv("ANALYZER_ENDPOINT", ""),
			APIKey:   getEnv("ANALYZER_KEY", ""),
			Timeout:  getEnvAsDuration("ANALYZER_TIMEOUT", 60*time.Second),
		},
		Agents: AgentConfig{
			StageBURL:                 ensureAgentPath(getEnv("STAGE_B_FUNCTION_URL", ""), "/api/process-ticket"),
			StageBKey:                 getEnv("STAGE_B_FUNCTION_KEY", ""),
			StageCURL:                 ensureAgentPath(getEnv("STAGE_C_FUNCTION_URL", ""), "/api/process-invoice"),
			StageCKey:                 getEnv("STAGE_C_FUNCTION_KEY", ""),
			CallTimeout:               getEnvAsDuration("AGENT_CALL_TIMEOUT", 240*time.Second),
			RetryDelay:                getEnvAsDuration("AGENT_RETRY_DELAY", 10*time.Second),
			DisableSimulationFallback: getEnvAsBool("DISABLE_SIMULATION_FALLBACK", false),
		},
		Pipeline: PipelineConfig{
			ChainCooldown:  getEnvAsDuration("CHAIN_COOLDOWN", 30*time.Second),
			CodeMappings:   getEnv("CODE_MAPPINGS_PATH", ""),
			DispatcherIdle: getEnvAsDuration("DISPATCHER_IDLE", time.Minute),
		},
		Ingest: IngestConfig{
			WatchDir:    getEnv("WATCH_DIR", ""),
			SettleDelay: getEnvAsDuration("WATCH_SETTLE_DELAY", 2*time.Second),
		},
	}
}

// IsDev reports whether the app runs against local development defaults.
func (c *Config) IsDev() bool {
	return strings.EqualFold(c.App.Env, "dev") || strings.EqualFold(c.App.Env, "development")
}

// ensureAgentPath normalizes a configured agent base URL so it always ends
// with the well-known function route. Operators commonly set just the host.
func ensureAgentPath(base, route string) string {
	if base == "" {
		return ""
	}
	trimmed := strings.TrimRight(base, "/")
	if strings.HasSuffix(trimmed, route) {
		return trimmed
	}
	return trimmed + route
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt32(key string, defaultValue int32) int32 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 32); err == nil {
			return int32(intVal)
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// Validate validates the loaded configuration
func (c *Config) Validate() error {
	if c.Server.HTTPAddr == "" {
		return NewAppError("CONFIG_ERROR", "HTTP_ADDR is required", ErrInvalidInput)
	}
	if c.Blob.Dir == "" {
		return NewAppError("CONFIG_ERROR", "BLOB_DIR is required", ErrInvalidInput)
	}
	if c.Agents.DisableSimulationFallback && c.Agents.StageBURL == "" && c.Agents.StageCURL == "" {
		return NewAppError("CONFIG_ERROR",
			"DISABLE_SIMULATION_FALLBACK requires at least one agent URL", ErrInvalidInput)
	}
	return nil
}
