/**
 * Configuration for the transcript worker
 *
 * Environment variables cover connections and limits; the recognition
 * engine roster optionally comes from a YAML file so deployments can
 * reorder or trim providers without a rebuild.
 */

package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/landreg/transcript-worker/internal/engine"
)

// Config holds worker configuration.
type Config struct {
	// Redis configuration (queue and result cache)
	RedisURL string

	// PostgreSQL configuration
	DatabaseURL string

	// Queue configuration
	QueueName         string
	WorkerConcurrency int
	ProcessingTimeout time.Duration

	// Upload limits
	MaxFileSize int64

	// Preprocessing
	RenderDPI        int
	QualityThreshold float64

	// Recognition
	EngineRosterPath string
	EngineRoster     []engine.VLMSpec
	EngineTimeout    time.Duration
	TesseractEnabled bool
	Language         string

	// Cache
	CacheTTL time.Duration

	// Worker identity stamped into records
	WorkerName string
	Version    string
}

// LoadConfig loads configuration from environment variables and, when
// ENGINE_ROSTER_FILE is set, the YAML roster file.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		RedisURL:          getEnvOrDefault("REDIS_URL", "redis://localhost:6379"),
		DatabaseURL:       getEnvOrDefault("DATABASE_URL", ""),
		QueueName:         getEnvOrDefault("QUEUE_NAME", "transcripts"),
		WorkerConcurrency: getEnvAsIntOrDefault("WORKER_CONCURRENCY", 4),
		ProcessingTimeout: getEnvAsDurationOrDefault("PROCESSING_TIMEOUT", 5*time.Minute),
		MaxFileSize:       getEnvAsInt64OrDefault("MAX_FILE_SIZE", 52428800), // 50MB
		RenderDPI:         getEnvAsIntOrDefault("RENDER_DPI", 300),
		QualityThreshold:  getEnvAsFloatOrDefault("QUALITY_THRESHOLD", 0.5),
		EngineRosterPath:  getEnvOrDefault("ENGINE_ROSTER_FILE", ""),
		EngineTimeout:     getEnvAsDurationOrDefault("ENGINE_TIMEOUT", 2*time.Minute),
		TesseractEnabled:  getEnvAsBoolOrDefault("TESSERACT_ENABLED", true),
		Language:          getEnvOrDefault("RECOGNITION_LANGUAGE", "zh-TW"),
		CacheTTL:          getEnvAsDurationOrDefault("CACHE_TTL", 24*time.Hour),
		WorkerName:        getEnvOrDefault("WORKER_NAME", "transcript-worker"),
		Version:           getEnvOrDefault("WORKER_VERSION", "dev"),
	}

	roster, err := loadRoster(cfg.EngineRosterPath)
	if err != nil {
		return nil, fmt.Errorf("loading engine roster: %w", err)
	}
	cfg.EngineRoster = roster

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks if configuration is valid.
func (c *Config) Validate() error {
	if c.RedisURL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	if c.WorkerConcurrency < 1 || c.WorkerConcurrency > 100 {
		return fmt.Errorf("WORKER_CONCURRENCY must be between 1 and 100, got %d", c.WorkerConcurrency)
	}

	if c.MaxFileSize < 1024 || c.MaxFileSize > 1073741824 { // 1KB to 1GB
		return fmt.Errorf("MAX_FILE_SIZE must be between 1KB and 1GB, got %d", c.MaxFileSize)
	}

	if c.RenderDPI < 72 || c.RenderDPI > 1200 {
		return fmt.Errorf("RENDER_DPI must be between 72 and 1200, got %d", c.RenderDPI)
	}

	if c.QualityThreshold < 0 || c.QualityThreshold > 1 {
		return fmt.Errorf("QUALITY_THRESHOLD must be between 0 and 1, got %g", c.QualityThreshold)
	}

	if len(c.EngineRoster) == 0 && !c.TesseractEnabled {
		return fmt.Errorf("no recognition engines configured")
	}

	return nil
}

// DefaultRoster is the built-in failover order: cost-effective vision
// models with strong Chinese first, global backups after.
func DefaultRoster() []engine.VLMSpec {
	return []engine.VLMSpec{
		{Provider: engine.ProviderDeepSeek, Model: "deepseek-chat"},
		{Provider: engine.ProviderGrok, Model: "grok-2-vision-1212"},
		{Provider: engine.ProviderOpenAI, Model: "gpt-4o"},
		{Provider: engine.ProviderAnthropic, Model: "claude-3-5-sonnet-20240620"},
		{Provider: engine.ProviderGoogle, Model: "gemini-1.5-pro-latest"},
		{Provider: engine.ProviderDashScope, Model: "qwen-vl-max"},
	}
}

// rosterFile is the YAML roster layout.
type rosterFile struct {
	Engines []engine.VLMSpec `yaml:"engines"`
}

func loadRoster(path string) ([]engine.VLMSpec, error) {
	if path == "" {
		return DefaultRoster(), nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	var file rosterFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if len(file.Engines) == 0 {
		return nil, fmt.Errorf("%s declares no engines", path)
	}

	for i, spec := range file.Engines {
		if spec.Provider == "" || spec.Model == "" {
			return nil, fmt.Errorf("%s: engine %d is missing provider or model", path, i)
		}
	}

	return file.Engines, nil
}

// getEnvOrDefault gets environment variable or returns default.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsIntOrDefault gets environment variable as int or returns default.
func getEnvAsIntOrDefault(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

// getEnvAsInt64OrDefault gets environment variable as int64 or returns default.
func getEnvAsInt64OrDefault(key string, defaultValue int64) int64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseInt(valueStr, 10, 64)
	if err != nil {
		return defaultValue
	}

	return value
}

// getEnvAsFloatOrDefault gets environment variable as float64 or returns default.
func getEnvAsFloatOrDefault(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}

	return value
}

// getEnvAsBoolOrDefault gets environment variable as bool or returns default.
func getEnvAsBoolOrDefault(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

// getEnvAsDurationOrDefault gets environment variable as duration or
// returns default. Bare integers are taken as milliseconds.
func getEnvAsDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	if ms, err := strconv.ParseInt(valueStr, 10, 64); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	return defaultValue
}
