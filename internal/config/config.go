package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the worker.
type Config struct {
	ComfyUIURL     string
	WorkflowPath   string
	DefaultTimeout time.Duration
	ListenAddr     string

	LogLevel  string
	LogFormat string

	// Optional async queue backend. Empty disables /run.
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	ResultTTL     time.Duration

	// Optional storage backend for return_format=url.
	SupabaseURL        string
	SupabaseServiceKey string
	SupabaseBucket     string
	WebPQuality        float32
}

// Load reads configuration from the environment, with a best-effort .env file.
func Load() *Config {
	// .env is optional; env vars win in deployment
	_ = godotenv.Load()

	cfg := &Config{
		ComfyUIURL:         getEnv("COMFYUI_URL", "http://127.0.0.1:8188"),
		WorkflowPath:       getEnv("WORKFLOW_PATH", "workflow.json"),
		DefaultTimeout:     getDurationSeconds("DEFAULT_TIMEOUT", 300),
		ListenAddr:         getEnv("LISTEN_ADDR", ":8000"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		LogFormat:          getEnv("LOG_FORMAT", "json"),
		RedisAddr:          os.Getenv("REDIS_ADDR"),
		RedisPassword:      os.Getenv("REDIS_PASSWORD"),
		RedisDB:            getInt("REDIS_DB", 0),
		ResultTTL:          getDurationSeconds("RESULT_TTL", 3600),
		SupabaseURL:        os.Getenv("SUPABASE_URL"),
		SupabaseServiceKey: os.Getenv("SUPABASE_SERVICE_KEY"),
		SupabaseBucket:     getEnv("SUPABASE_BUCKET", "generated-images"),
		WebPQuality:        float32(getInt("WEBP_QUALITY", 90)),
	}

	return cfg
}

// StorageConfigured reports whether the Supabase uploader can be used.
func (c *Config) StorageConfigured() bool {
	return c.SupabaseURL != "" && c.SupabaseServiceKey != ""
}

// QueueConfigured reports whether the redis-backed async queue can be used.
func (c *Config) QueueConfigured() bool {
	return c.RedisAddr != ""
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return v
	}
	return fallback
}

func getDurationSeconds(key string, fallback int) time.Duration {
	return time.Duration(getInt(key, fallback)) * time.Second
}
