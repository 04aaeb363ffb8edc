package config

import (
	"fmt"
	"net"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Host                    string
	Port                    string
	ModelPath               string
	MetadataPath            string
	OnnxRuntimeLib          string
	ResampleFilter          string
	MaxRequestBodySize      int64
	MaxImageDimension       int64
	RequestTimeout          time.Duration
	ShutdownTimeout         time.Duration
	MaxConcurrentInferences int64
	RedisAddr               string
	CacheTTL                time.Duration
	LogLevel                string
}

func (c *Config) ServerAddress() string {
	return net.JoinHostPort(strings.TrimSpace(c.Host), strings.TrimSpace(c.Port))
}

// CacheEnabled reports whether predictions should be cached in Redis.
func (c *Config) CacheEnabled() bool {
	return c.RedisAddr != ""
}

// Load reads an optional .env file from the working directory and then the environment.
// Variables already present in the environment are not overridden by the file.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read .env: %w", err)
	}
	return LoadFromEnv()
}

func LoadFromEnv() (*Config, error) {
	cfg := &Config{
		Host:           getEnvOrDefault("HOST", "0.0.0.0"),
		Port:           getEnvOrDefault("PORT", "5000"),
		ModelPath:      getEnvOrDefault("MODEL_PATH", "models/mnist.onnx"),
		MetadataPath:   getEnvOrDefault("METADATA_PATH", "models/mnist_metadata.json"),
		OnnxRuntimeLib: os.Getenv("ONNXRUNTIME_LIB"),
		ResampleFilter: strings.ToLower(getEnvOrDefault("RESAMPLE_FILTER", "bicubic")),
		RedisAddr:      strings.TrimSpace(os.Getenv("REDIS_ADDR")),
		LogLevel:       strings.ToLower(getEnvOrDefault("LOG_LEVEL", "info")),
	}

	p, err := strconv.Atoi(strings.TrimSpace(cfg.Port))
	if err != nil || p < 1 || p > 65535 {
		return nil, fmt.Errorf("invalid PORT: %q", cfg.Port)
	}

	if cfg.MaxRequestBodySize, err = parsePositiveInt("MAX_REQUEST_BODY_SIZE", 10*1024*1024); err != nil {
		return nil, err
	}
	if cfg.MaxImageDimension, err = parsePositiveInt("MAX_IMAGE_DIMENSION", 4096); err != nil {
		return nil, err
	}
	if cfg.MaxConcurrentInferences, err = parsePositiveInt("MAX_CONCURRENT_INFERENCES", int64(runtime.NumCPU())); err != nil {
		return nil, err
	}
	if cfg.RequestTimeout, err = parsePositiveDuration("REQUEST_TIMEOUT", 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.ShutdownTimeout, err = parsePositiveDuration("SHUTDOWN_TIMEOUT", 15*time.Second); err != nil {
		return nil, err
	}
	if cfg.CacheTTL, err = parsePositiveDuration("CACHE_TTL", 10*time.Minute); err != nil {
		return nil, err
	}

	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return nil, fmt.Errorf("invalid LOG_LEVEL: %q", cfg.LogLevel)
	}
	return cfg, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

// parsePositiveDuration returns defaultValue when key is unset and an error when it is
// set to anything other than a positive duration.
func parsePositiveDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue, nil
	}
	duration, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %q: %w", key, value, err)
	}
	if duration <= 0 {
		return 0, fmt.Errorf("%s must be > 0 (got %s)", key, duration)
	}
	return duration, nil
}

func parsePositiveInt(key string, defaultValue int64) (int64, error) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue, nil
	}
	intValue, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %q: %w", key, value, err)
	}
	if intValue <= 0 {
		return 0, fmt.Errorf("%s must be > 0 (got %d)", key, intValue)
	}
	return intValue, nil
}
