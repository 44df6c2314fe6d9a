// Package server provides configuration helpers that define runtime defaults,
// validation, and rate-limiting parameters for the chat relay.
package server

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// RateLimitConfig defines the parameters for per-connection message rate limiting.
type RateLimitConfig struct {
	Burst          int
	RefillInterval time.Duration
}

// SessionConfig selects and tunes the session persistence collaborator.
// An empty ValkeyAddr keeps sessions in memory.
type SessionConfig struct {
	ValkeyAddr     string
	ValkeyPassword string
	TTL            time.Duration
	IPHashSalt     string
}

// Config holds the server configuration settings including security controls.
type Config struct {
	Port            string
	AllowedOrigins  []string
	MaxMessageSize  int64
	SendBufferSize  int
	RateLimit       RateLimitConfig
	Session         SessionConfig
	ShutdownTimeout time.Duration
	LogLevel        string
}

func defaultConfig() Config {
	return Config{
		Port: ":8080",
		AllowedOrigins: []string{
			"http://localhost:3000",
			"http://localhost:8080",
		},
		MaxMessageSize: 4096,
		SendBufferSize: 256,
		RateLimit: RateLimitConfig{
			Burst:          5,
			RefillInterval: time.Second,
		},
		Session: SessionConfig{
			TTL: 24 * time.Hour,
		},
		ShutdownTimeout: 10 * time.Second,
		LogLevel:        "info",
	}
}

// sanitizeConfig replaces unusable values with defaults.
func sanitizeConfig(cfg Config) Config {
	def := defaultConfig()

	cfg.Port = normalizePort(cfg.Port)
	if cfg.Port == "" {
		cfg.Port = def.Port
	}
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = def.MaxMessageSize
	}
	if cfg.SendBufferSize <= 0 {
		cfg.SendBufferSize = def.SendBufferSize
	}
	if cfg.RateLimit.Burst <= 0 {
		cfg.RateLimit.Burst = def.RateLimit.Burst
	}
	if cfg.RateLimit.RefillInterval <= 0 {
		cfg.RateLimit.RefillInterval = def.RateLimit.RefillInterval
	}
	if cfg.Session.TTL <= 0 {
		cfg.Session.TTL = def.Session.TTL
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = def.ShutdownTimeout
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = def.LogLevel
	}
	cfg.AllowedOrigins = append([]string(nil), cfg.AllowedOrigins...)
	return cfg
}

// NewConfig creates a Config instance populated with default values for all settings.
func NewConfig() *Config {
	cfg := defaultConfig()
	return &cfg
}

// envBindings maps config keys to the environment variables that may set them.
var envBindings = map[string][]string{
	"port":                       {"SERVER_PORT", "PORT"},
	"allowed_origins":            {"ALLOWED_ORIGINS"},
	"max_message_size":           {"MAX_MESSAGE_SIZE"},
	"send_buffer_size":           {"SEND_BUFFER_SIZE"},
	"rate_limit_burst":           {"RATE_LIMIT_BURST"},
	"rate_limit_refill_interval": {"RATE_LIMIT_REFILL_INTERVAL"},
	"valkey_addr":                {"VALKEY_ADDR"},
	"valkey_password":            {"VALKEY_PASSWORD"},
	"session_ttl":                {"SESSION_TTL"},
	"ip_hash_salt":               {"IP_HASH_SALT"},
	"shutdown_timeout":           {"SHUTDOWN_TIMEOUT"},
	"log_level":                  {"LOG_LEVEL"},
}

// LoadConfig reads configuration from an optional YAML file and the environment.
// Environment variables win over the file. An empty path looks for hoodchat.yaml
// in the working directory and ignores its absence; an explicit path must exist.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("hoodchat")
		v.AddConfigPath(".")
	}

	for key, envs := range envBindings {
		if err := v.BindEnv(append([]string{key}, envs...)...); err != nil {
			return nil, fmt.Errorf("bind %s: %w", key, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	cfg := defaultConfig()

	if port := v.GetString("port"); port != "" {
		cfg.Port = port
	}
	if origins := originsValue(v.Get("allowed_origins")); origins != nil {
		cfg.AllowedOrigins = origins
	}
	if maxSize := v.GetString("max_message_size"); maxSize != "" {
		cfg.MaxMessageSize = parseMaxMessageSize(maxSize, cfg.MaxMessageSize)
	}
	if size := v.GetString("send_buffer_size"); size != "" {
		cfg.SendBufferSize = parseIntValue(size, cfg.SendBufferSize)
	}
	if burst := v.GetString("rate_limit_burst"); burst != "" {
		cfg.RateLimit.Burst = parseIntValue(burst, cfg.RateLimit.Burst)
	}
	if interval := v.GetString("rate_limit_refill_interval"); interval != "" {
		cfg.RateLimit.RefillInterval = parseDuration(interval, cfg.RateLimit.RefillInterval)
	}
	cfg.Session.ValkeyAddr = v.GetString("valkey_addr")
	cfg.Session.ValkeyPassword = v.GetString("valkey_password")
	cfg.Session.IPHashSalt = v.GetString("ip_hash_salt")
	if ttl := v.GetString("session_ttl"); ttl != "" {
		cfg.Session.TTL = parseDuration(ttl, cfg.Session.TTL)
	}
	if timeout := v.GetString("shutdown_timeout"); timeout != "" {
		cfg.ShutdownTimeout = parseDuration(timeout, cfg.ShutdownTimeout)
	}
	if level := v.GetString("log_level"); level != "" {
		cfg.LogLevel = strings.ToLower(level)
	}

	sanitized := sanitizeConfig(cfg)
	return &sanitized, nil
}

// originsValue accepts either a comma separated string or a YAML list.
func originsValue(raw any) []string {
	switch val := raw.(type) {
	case nil:
		return nil
	case string:
		if strings.TrimSpace(val) == "" {
			return nil
		}
		return parseOrigins(val)
	case []any:
		out := make([]string, 0, len(val))
		for _, item := range val {
			out = append(out, strings.TrimSpace(fmt.Sprint(item)))
		}
		return out
	case []string:
		return append([]string(nil), val...)
	default:
		return nil
	}
}

func parseOrigins(origins string) []string {
	parts := strings.Split(origins, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

// normalizePort turns a bare port number into a listen address.
func normalizePort(port string) string {
	port = strings.TrimSpace(port)
	if port == "" || strings.Contains(port, ":") {
		return port
	}
	return ":" + port
}

func parseMaxMessageSize(value string, defaultValue int64) int64 {
	if size, err := strconv.ParseInt(value, 10, 64); err == nil && size > 0 {
		return size
	}
	return defaultValue
}

func parseIntValue(value string, defaultValue int) int {
	if parsed, err := strconv.Atoi(value); err == nil && parsed > 0 {
		return parsed
	}
	return defaultValue
}

// parseDuration accepts whole seconds ("5") or a Go duration ("24h").
func parseDuration(value string, defaultValue time.Duration) time.Duration {
	if seconds, err := strconv.Atoi(value); err == nil {
		if seconds > 0 {
			return time.Duration(seconds) * time.Second
		}
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil && d > 0 {
		return d
	}
	return defaultValue
}
