// Package config loads kindred configuration from the environment with an
// optional YAML file overlay.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration values.
type Config struct {
	// SurrealDB connection
	SurrealDBURL       string `yaml:"surrealdb_url"`
	SurrealDBNamespace string `yaml:"surrealdb_namespace"`
	SurrealDBDatabase  string `yaml:"surrealdb_database"`
	SurrealDBUser      string `yaml:"surrealdb_user"`
	SurrealDBPass      string `yaml:"surrealdb_pass"`
	SurrealDBAuthLevel string `yaml:"surrealdb_auth_level"`

	// HTTP server
	ServerPort     string `yaml:"server_port"`
	WebhookBaseURL string `yaml:"webhook_base_url"`

	// Profile scraper service
	ScraperURL    string `yaml:"scraper_url"`
	ScraperAPIKey string `yaml:"scraper_api_key"`

	// Vision / LLM (primary extractor and image captioner)
	VisionProvider string `yaml:"vision_provider"` // "openai", "anthropic" or "ollama"
	VisionModel    string `yaml:"vision_model"`
	VisionAPIKey   string `yaml:"vision_api_key"`
	OllamaHost     string `yaml:"ollama_host"`

	// Bedrock fallback extractor
	BedrockRegion string `yaml:"bedrock_region"`
	BedrockModel  string `yaml:"bedrock_model"`

	// Research task vendor
	ResearchBaseURL string `yaml:"research_base_url"`
	ResearchAPIKey  string `yaml:"research_api_key"`

	// Speech-to-text vendor
	STTBaseURL string `yaml:"stt_base_url"`
	STTAPIKey  string `yaml:"stt_api_key"`

	// Hard caps
	MaxPostsDefault   int `yaml:"max_posts_default"`
	MaxPostsHardLimit int `yaml:"max_posts_hard_limit"`
	TopInterests      int `yaml:"top_interests"`
	ImageConcurrency  int `yaml:"image_concurrency"`
	JobWorkers        int `yaml:"job_workers"`

	// Retry / timeouts
	APITimeout      time.Duration `yaml:"api_timeout"`
	MaxRetries      int           `yaml:"max_retries"`
	RetryMultiplier float64       `yaml:"retry_multiplier"`
	RetryMaxWait    time.Duration `yaml:"retry_max_wait"`

	// Reconciler
	PollInterval   time.Duration `yaml:"poll_interval"`
	StaleThreshold time.Duration `yaml:"stale_threshold"`

	// Cooldown
	IngestCooldown time.Duration `yaml:"ingest_cooldown"`

	// Logging
	LogFile  string     `yaml:"log_file"`
	LogLevel slog.Level `yaml:"-"`
}

// Load reads configuration from environment variables, then overlays values
// from the YAML file named by KINDRED_CONFIG if set.
func Load() (Config, error) {
	cfg := Config{
		SurrealDBURL:       getEnv("SURREALDB_URL", "ws://localhost:8000/rpc"),
		SurrealDBNamespace: getEnv("SURREALDB_NAMESPACE", "kindred"),
		SurrealDBDatabase:  getEnv("SURREALDB_DATABASE", "graph"),
		SurrealDBUser:      getEnv("SURREALDB_USER", "root"),
		SurrealDBPass:      getEnv("SURREALDB_PASS", "root"),
		SurrealDBAuthLevel: getEnv("SURREALDB_AUTH_LEVEL", "root"),

		ServerPort:     getEnv("KINDRED_SERVER_PORT", "8484"),
		WebhookBaseURL: getEnv("KINDRED_WEBHOOK_BASE_URL", "http://localhost:8484"),

		ScraperURL:    getEnv("KINDRED_SCRAPER_URL", "http://localhost:8090"),
		ScraperAPIKey: getEnv("KINDRED_SCRAPER_API_KEY", ""),

		VisionProvider: getEnv("KINDRED_VISION_PROVIDER", "openai"),
		VisionModel:    getEnv("KINDRED_VISION_MODEL", "gpt-4o-mini"),
		VisionAPIKey:   getEnv("KINDRED_VISION_API_KEY", ""),
		OllamaHost:     getEnv("OLLAMA_HOST", "http://localhost:11434"),

		BedrockRegion: getEnv("KINDRED_BEDROCK_REGION", "us-east-1"),
		BedrockModel:  getEnv("KINDRED_BEDROCK_MODEL", "anthropic.claude-3-haiku-20240307-v1:0"),

		ResearchBaseURL: getEnv("KINDRED_RESEARCH_URL", "https://api.yutori.com/v1"),
		ResearchAPIKey:  getEnv("KINDRED_RESEARCH_API_KEY", ""),

		STTBaseURL: getEnv("KINDRED_STT_URL", "https://modulate-developer-apis.com"),
		STTAPIKey:  getEnv("KINDRED_STT_API_KEY", ""),

		MaxPostsDefault:   getEnvInt("KINDRED_MAX_POSTS", 10),
		MaxPostsHardLimit: getEnvInt("KINDRED_MAX_POSTS_HARD_LIMIT", 25),
		TopInterests:      getEnvInt("KINDRED_TOP_INTERESTS", 3),
		ImageConcurrency:  getEnvInt("KINDRED_IMAGE_CONCURRENCY", 2),
		JobWorkers:        getEnvInt("KINDRED_JOB_WORKERS", 4),

		APITimeout:      getEnvDuration("KINDRED_API_TIMEOUT", 20*time.Second),
		MaxRetries:      getEnvInt("KINDRED_MAX_RETRIES", 3),
		RetryMultiplier: getEnvFloat("KINDRED_RETRY_MULTIPLIER", 1.0),
		RetryMaxWait:    getEnvDuration("KINDRED_RETRY_MAX_WAIT", 30*time.Second),

		PollInterval:   getEnvDuration("KINDRED_POLL_INTERVAL", 5*time.Minute),
		StaleThreshold: getEnvDuration("KINDRED_STALE_THRESHOLD", 10*time.Minute),

		IngestCooldown: getEnvDuration("KINDRED_INGEST_COOLDOWN", 5*time.Minute),

		LogFile:  getEnv("KINDRED_LOG_FILE", ""),
		LogLevel: parseLogLevel(getEnv("KINDRED_LOG_LEVEL", "INFO")),
	}

	if path := os.Getenv("KINDRED_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	return cfg, nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
