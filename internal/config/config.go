// Package config holds the clawgate runtime configuration. Values come from
// defaults, an optional JSON config file, then environment variables, in that
// order of increasing precedence.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"dario.cat/mergo"
)

// Config represents the merged clawgate configuration
type Config struct {
	Server  ServerConfig  `json:"server"`
	Timeout TimeoutConfig `json:"timeouts"`
	Trace   TraceConfig   `json:"trace"`

	// DefaultModel is used when a request omits the model field.
	DefaultModel string `json:"defaultModel"`

	// LogLevel is one of trace, debug, info, warn, error, fatal.
	LogLevel string `json:"logLevel"`

	// ModelsFile is the path of the custom model catalog (models.json).
	ModelsFile string `json:"modelsFile"`

	// AnthropicOAuthToken seeds a long-term token in headless mode.
	AnthropicOAuthToken string `json:"-"`

	// TokenFile overrides the Anthropic token file location.
	TokenFile string `json:"tokenFile"`
}

type ServerConfig struct {
	Bind string `json:"bind"`
	Port int    `json:"port"`
}

// TimeoutConfig holds upstream HTTP timeouts, in seconds.
type TimeoutConfig struct {
	Connect int `json:"connect"`
	Read    int `json:"read"`
	Request int `json:"request"`
	Stream  int `json:"stream"`
}

type TraceConfig struct {
	Enabled  bool   `json:"enabled"`
	Dir      string `json:"dir"`
	MaxBytes int64  `json:"maxBytes"`
}

// Defaults returns the built-in configuration.
func Defaults() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		Server: ServerConfig{
			Bind: "0.0.0.0",
			Port: 8081,
		},
		Timeout: TimeoutConfig{
			Connect: 10,
			Read:    60,
			Request: 120,
			Stream:  600,
		},
		Trace: TraceConfig{
			Dir:      filepath.Join(os.TempDir(), "clawgate-traces"),
			MaxBytes: 256 * 1024,
		},
		DefaultModel: "sonnet-4-5",
		LogLevel:     "info",
		ModelsFile:   filepath.Join(home, ".clawgate", "models.json"),
	}
}

// Load builds the configuration: defaults, then ~/.clawgate/clawgate.json if
// present, then environment variables.
func Load() (*Config, error) {
	cfg := Defaults()

	home, _ := os.UserHomeDir()
	path := filepath.Join(home, ".clawgate", "clawgate.json")
	if data, err := os.ReadFile(path); err == nil {
		var file Config
		if err := json.Unmarshal(data, &file); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
		if err := mergo.Merge(cfg, &file, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("merge config: %w", err)
		}
	}

	cfg.applyEnv()
	return cfg, nil
}

// applyEnv overlays recognized environment variables.
func (c *Config) applyEnv() {
	if v := os.Getenv("BIND_ADDRESS"); v != "" {
		c.Server.Bind = v
	}
	if v := os.Getenv("PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Server.Port = n
		}
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("DEFAULT_MODEL"); v != "" {
		c.DefaultModel = v
	}
	if v := os.Getenv("CONNECT_TIMEOUT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Timeout.Connect = n
		}
	}
	if v := os.Getenv("READ_TIMEOUT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Timeout.Read = n
		}
	}
	if v := os.Getenv("REQUEST_TIMEOUT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Timeout.Request = n
		}
	}
	if v := os.Getenv("STREAM_TIMEOUT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Timeout.Stream = n
		}
	}
	if v := os.Getenv("STREAM_TRACE_ENABLED"); v != "" {
		c.Trace.Enabled = v == "1" || v == "true" || v == "yes"
	}
	if v := os.Getenv("STREAM_TRACE_DIR"); v != "" {
		c.Trace.Dir = v
	}
	if v := os.Getenv("STREAM_TRACE_MAX_BYTES"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			c.Trace.MaxBytes = n
		}
	}
	if v := os.Getenv("MODELS_FILE"); v != "" {
		c.ModelsFile = v
	}
	if v := os.Getenv("ANTHROPIC_OAUTH_TOKEN"); v != "" {
		c.AnthropicOAuthToken = v
	}
	if v := os.Getenv("TOKEN_FILE"); v != "" {
		c.TokenFile = v
	}
}

// ConnectTimeout returns the connect timeout as a duration.
func (c *Config) ConnectTimeout() time.Duration { return time.Duration(c.Timeout.Connect) * time.Second }

// ReadTimeout returns the between-chunk read timeout as a duration.
func (c *Config) ReadTimeout() time.Duration { return time.Duration(c.Timeout.Read) * time.Second }

// RequestTimeout returns the whole-request timeout as a duration.
func (c *Config) RequestTimeout() time.Duration { return time.Duration(c.Timeout.Request) * time.Second }

// StreamTimeout returns the whole-stream timeout as a duration.
func (c *Config) StreamTimeout() time.Duration { return time.Duration(c.Timeout.Stream) * time.Second }

// ListenAddr returns the bind address in host:port form.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Bind, c.Server.Port)
}
