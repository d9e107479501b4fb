package config

import (
	"log"
	"os"
	"strconv"
)

// Config holds application configuration
type Config struct {
	Port             int
	MaxUploadMB      int
	TargetSizeKB     int
	MaxConcurrent    int
	RateLimitPerSec  int
	RateLimitBurst   int
	WorkerCount      int
	MaxAnalyzePixels int
	EnableGzip       bool
}

// Load loads configuration from environment variables with defaults
func Load() *Config {
	cfg := &Config{
		Port:             getEnvInt("PORT", 8080),
		MaxUploadMB:      getEnvInt("MAX_UPLOAD_MB", 10),
		TargetSizeKB:     getEnvInt("TARGET_SIZE_KB", 500),
		MaxConcurrent:    getEnvInt("MAX_CONCURRENT", 50),
		RateLimitPerSec:  getEnvInt("RATE_LIMIT", 10),
		RateLimitBurst:   getEnvInt("RATE_LIMIT_BURST", 20),
		WorkerCount:      getEnvInt("WORKER_COUNT", 10),
		MaxAnalyzePixels: getEnvInt("MAX_ANALYZE_PIXELS", 4_000_000),
		EnableGzip:       getEnvBool("GZIP", true),
	}
	return cfg
}

func getEnvInt(key string, defaultValue int) int {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			return intVal
		}
		log.Printf("Ignoring invalid %s=%q, using %d", key, val, defaultValue)
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
		log.Printf("Ignoring invalid %s=%q, using %t", key, val, defaultValue)
	}
	return defaultValue
}
