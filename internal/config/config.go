package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

const defaultGroqURL = "https://api.groq.com/openai/v1/chat/completions"

// Config contains all runtime settings for the NOVA chat proxy.
type Config struct {
	BindAddr         string
	ShutdownTimeout  time.Duration
	MetricsNamespace string

	GroqAPIKey string
	GroqURL    string

	// UpstreamIdleTimeout aborts a completion stream when no frame arrives
	// for this long; total stream duration stays unbounded.
	UpstreamIdleTimeout time.Duration

	// IdentityIdleTimeout is how long an identity's conversation history may
	// sit untouched before the janitor evicts it.
	IdentityIdleTimeout time.Duration

	// RateLimitIdentityCap bounds how many distinct identities the rate
	// limiter tracks at once; the least recently seen window is evicted.
	RateLimitIdentityCap int
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:             envOrDefault("APP_BIND_ADDR", ":8080"),
		MetricsNamespace:     envOrDefault("APP_METRICS_NAMESPACE", "nova"),
		GroqAPIKey:           stringsTrimSpace("GROQ_API_KEY"),
		GroqURL:              envOrDefault("GROQ_URL", defaultGroqURL),
		ShutdownTimeout:      15 * time.Second,
		UpstreamIdleTimeout:  60 * time.Second,
		IdentityIdleTimeout:  30 * time.Minute,
		RateLimitIdentityCap: 4096,
	}
	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.UpstreamIdleTimeout, err = durationFromEnv("APP_UPSTREAM_IDLE_TIMEOUT", cfg.UpstreamIdleTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.IdentityIdleTimeout, err = durationFromEnv("APP_IDENTITY_IDLE_TIMEOUT", cfg.IdentityIdleTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.RateLimitIdentityCap, err = intFromEnv("APP_RATE_LIMIT_IDENTITY_CAP", cfg.RateLimitIdentityCap)
	if err != nil {
		return Config{}, err
	}

	if cfg.GroqAPIKey == "" {
		return Config{}, fmt.Errorf("GROQ_API_KEY is required")
	}
	if cfg.GroqURL == "" {
		return Config{}, fmt.Errorf("GROQ_URL must not be empty")
	}
	if cfg.UpstreamIdleTimeout < time.Second {
		return Config{}, fmt.Errorf("APP_UPSTREAM_IDLE_TIMEOUT must be at least 1s")
	}
	if cfg.IdentityIdleTimeout < time.Minute {
		return Config{}, fmt.Errorf("APP_IDENTITY_IDLE_TIMEOUT must be at least 1m")
	}
	if cfg.RateLimitIdentityCap <= 0 {
		return Config{}, fmt.Errorf("APP_RATE_LIMIT_IDENTITY_CAP must be positive")
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func stringsTrimSpace(key string) string {
	return trimSpace(os.Getenv(key))
}

func trimSpace(v string) string {
	for len(v) > 0 && (v[0] == ' ' || v[0] == '\n' || v[0] == '\t' || v[0] == '\r') {
		v = v[1:]
	}
	for len(v) > 0 {
		c := v[len(v)-1]
		if c == ' ' || c == '\n' || c == '\t' || c == '\r' {
			v = v[:len(v)-1]
			continue
		}
		break
	}
	return v
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}
