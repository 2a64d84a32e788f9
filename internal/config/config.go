// Package config provides configuration management for the studio service.
// Configuration is loaded from environment variables with sensible defaults.
// A .env file (and .env.local) in the working directory is loaded first when
// present; variables already set in the process environment win.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

const (
	// Default values
	DefaultPort     = 8790
	DefaultLogLevel = "info"
	DefaultDataDir  = ".reelsmith"

	// Environment variable names
	EnvPort     = "STUDIO_PORT"
	EnvLogLevel = "STUDIO_LOG_LEVEL"
	EnvDataDir  = "STUDIO_DATA_DIR"

	// Rendering backend
	EnvEngineURL       = "STUDIO_ENGINE_URL"
	EnvEngineTimeout   = "STUDIO_ENGINE_TIMEOUT_SECONDS"
	EnvWorkflowsFile   = "STUDIO_WORKFLOWS_FILE"
	EnvMaxRetries      = "STUDIO_GEN_MAX_RETRIES"
	EnvRetryDelayMs    = "STUDIO_GEN_RETRY_DELAY_MS"
	EnvPollIntervalMs  = "STUDIO_GEN_POLL_INTERVAL_MS"
	EnvWorkers         = "STUDIO_DISPATCH_WORKERS"
	EnvSweepIntervalMs = "STUDIO_SWEEP_INTERVAL_MS"

	// Media CLI
	EnvFFmpegBin  = "STUDIO_FFMPEG_BIN"
	EnvFFprobeBin = "STUDIO_FFPROBE_BIN"

	// LLM backend
	EnvLLMBaseURL = "STUDIO_LLM_BASE_URL"
	EnvLLMAPIKey  = "STUDIO_LLM_API_KEY"
	EnvLLMModel   = "STUDIO_LLM_MODEL"

	// Events and object storage
	EnvNATSURL     = "STUDIO_NATS_URL"
	EnvS3Endpoint  = "STUDIO_S3_ENDPOINT"
	EnvS3Region    = "STUDIO_S3_REGION"
	EnvS3Bucket    = "STUDIO_S3_BUCKET"
	EnvS3AccessKey = "STUDIO_S3_ACCESS_KEY"
	EnvS3SecretKey = "STUDIO_S3_SECRET_KEY"

	// Database filename
	DBFilename = "studio.db"

	DefaultEngineURL            = "http://127.0.0.1:8188"
	DefaultEngineTimeoutSeconds = 300
	DefaultMaxRetries           = 3
	DefaultRetryDelayMs         = 2000
	DefaultPollIntervalMs       = 2000
	DefaultWorkers              = 2
	DefaultFFmpegBin            = "ffmpeg"
	DefaultFFprobeBin           = "ffprobe"
	DefaultLLMBaseURL           = "https://api.openai.com/v1"
	DefaultLLMModel             = "gpt-4o-mini"
	DefaultS3Region             = "us-east-1"
)

// EnvConfig reads configuration from environment variables
type EnvConfig struct {
	port     int
	logLevel string
	dataDir  string

	engineURL      string
	engineTimeout  int
	workflowsFile  string
	maxRetries     int
	retryDelayMs   int
	pollIntervalMs int
	workers        int
	sweepInterval  int

	ffmpegBin  string
	ffprobeBin string

	llmBaseURL string
	llmAPIKey  string
	llmModel   string

	natsURL     string
	s3Endpoint  string
	s3Region    string
	s3Bucket    string
	s3AccessKey string
	s3SecretKey string
}

// New creates a new EnvConfig with defaults and environment variable overrides
func New() (*EnvConfig, error) {
	// Missing files are fine; Load never overrides variables already set.
	_ = godotenv.Load(".env.local")
	_ = godotenv.Load(".env")

	cfg := &EnvConfig{
		port:           DefaultPort,
		logLevel:       DefaultLogLevel,
		dataDir:        defaultDataDir(),
		engineURL:      DefaultEngineURL,
		engineTimeout:  DefaultEngineTimeoutSeconds,
		maxRetries:     DefaultMaxRetries,
		retryDelayMs:   DefaultRetryDelayMs,
		pollIntervalMs: DefaultPollIntervalMs,
		workers:        DefaultWorkers,
		ffmpegBin:      DefaultFFmpegBin,
		ffprobeBin:     DefaultFFprobeBin,
		llmBaseURL:     DefaultLLMBaseURL,
		llmModel:       DefaultLLMModel,
		s3Region:       DefaultS3Region,
	}

	if p := os.Getenv(EnvPort); p != "" {
		port, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", EnvPort, err)
		}
		if port < 1 || port > 65535 {
			return nil, fmt.Errorf("invalid %s: port must be between 1 and 65535", EnvPort)
		}
		cfg.port = port
	}

	ints := []struct {
		name string
		dst  *int
		min  int
	}{
		{EnvEngineTimeout, &cfg.engineTimeout, 1},
		{EnvMaxRetries, &cfg.maxRetries, 0},
		{EnvRetryDelayMs, &cfg.retryDelayMs, 0},
		{EnvPollIntervalMs, &cfg.pollIntervalMs, 1},
		{EnvWorkers, &cfg.workers, 1},
		{EnvSweepIntervalMs, &cfg.sweepInterval, 0},
	}
	for _, v := range ints {
		if err := readInt(v.name, v.dst, v.min); err != nil {
			return nil, err
		}
	}

	strs := []struct {
		name string
		dst  *string
	}{
		{EnvLogLevel, &cfg.logLevel},
		{EnvDataDir, &cfg.dataDir},
		{EnvEngineURL, &cfg.engineURL},
		{EnvWorkflowsFile, &cfg.workflowsFile},
		{EnvFFmpegBin, &cfg.ffmpegBin},
		{EnvFFprobeBin, &cfg.ffprobeBin},
		{EnvLLMBaseURL, &cfg.llmBaseURL},
		{EnvLLMAPIKey, &cfg.llmAPIKey},
		{EnvLLMModel, &cfg.llmModel},
		{EnvNATSURL, &cfg.natsURL},
		{EnvS3Endpoint, &cfg.s3Endpoint},
		{EnvS3Region, &cfg.s3Region},
		{EnvS3Bucket, &cfg.s3Bucket},
		{EnvS3AccessKey, &cfg.s3AccessKey},
		{EnvS3SecretKey, &cfg.s3SecretKey},
	}
	for _, v := range strs {
		if s := os.Getenv(v.name); s != "" {
			*v.dst = s
		}
	}

	return cfg, nil
}

func readInt(name string, dst *int, min int) error {
	s := os.Getenv(name)
	if s == "" {
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", name, err)
	}
	if n < min {
		return fmt.Errorf("invalid %s: must be >= %d", name, min)
	}
	*dst = n
	return nil
}

// Port returns the HTTP server port
func (c *EnvConfig) Port() int {
	return c.port
}

// LogLevel returns the log level (debug, info, warn, error)
func (c *EnvConfig) LogLevel() string {
	return c.logLevel
}

// DataDir returns the data directory path
func (c *EnvConfig) DataDir() string {
	return c.dataDir
}

// DBPath returns the full path to the SQLite database file
func (c *EnvConfig) DBPath() string {
	return filepath.Join(c.dataDir, DBFilename)
}

// OutputDir is where downloaded keyframes and clips are stored.
func (c *EnvConfig) OutputDir() string {
	return filepath.Join(c.dataDir, "outputs")
}

// FrameCacheDir is where extracted first/last frames are cached.
func (c *EnvConfig) FrameCacheDir() string {
	return filepath.Join(c.dataDir, "cache", "frames")
}

func (c *EnvConfig) EngineURL() string {
	return c.engineURL
}

// EngineTimeout is the per-HTTP-call deadline for the rendering backend.
func (c *EnvConfig) EngineTimeout() time.Duration {
	return time.Duration(c.engineTimeout) * time.Second
}

// WorkflowsFile is an optional YAML workflow registry. Empty means the
// built-in registry.
func (c *EnvConfig) WorkflowsFile() string {
	return c.workflowsFile
}

func (c *EnvConfig) MaxRetries() int {
	return c.maxRetries
}

func (c *EnvConfig) RetryDelay() time.Duration {
	return time.Duration(c.retryDelayMs) * time.Millisecond
}

func (c *EnvConfig) PollInterval() time.Duration {
	return time.Duration(c.pollIntervalMs) * time.Millisecond
}

// Workers is the dispatcher pool size.
func (c *EnvConfig) Workers() int {
	return c.workers
}

// SweepInterval is the status sweeper period; zero disables the sweeper.
func (c *EnvConfig) SweepInterval() time.Duration {
	return time.Duration(c.sweepInterval) * time.Millisecond
}

func (c *EnvConfig) FFmpegBin() string {
	return c.ffmpegBin
}

func (c *EnvConfig) FFprobeBin() string {
	return c.ffprobeBin
}

func (c *EnvConfig) LLMBaseURL() string {
	return c.llmBaseURL
}

func (c *EnvConfig) LLMAPIKey() string {
	return c.llmAPIKey
}

func (c *EnvConfig) LLMModel() string {
	return c.llmModel
}

// LLMEnabled reports whether prompt refinement through the LLM is configured.
func (c *EnvConfig) LLMEnabled() bool {
	return c.llmAPIKey != ""
}

// NATSURL is empty when event publishing is disabled.
func (c *EnvConfig) NATSURL() string {
	return c.natsURL
}

func (c *EnvConfig) S3Endpoint() string {
	return c.s3Endpoint
}

func (c *EnvConfig) S3Region() string {
	return c.s3Region
}

func (c *EnvConfig) S3Bucket() string {
	return c.s3Bucket
}

func (c *EnvConfig) S3AccessKey() string {
	return c.s3AccessKey
}

func (c *EnvConfig) S3SecretKey() string {
	return c.s3SecretKey
}

// S3Enabled reports whether completed outputs are mirrored to object storage.
func (c *EnvConfig) S3Enabled() bool {
	return c.s3Bucket != ""
}

// defaultDataDir returns the default data directory path
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		// Fallback to current directory if home is not available
		return DefaultDataDir
	}
	return filepath.Join(home, DefaultDataDir)
}

// Version information (set at build time via ldflags)
var (
	Version   = "0.1.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)
