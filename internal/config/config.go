package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultPath is used when no --config flag is given.
const DefaultPath = "webvnc.yaml"

// Config represents the server configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Transport TransportConfig `yaml:"transport"`
	Capture   CaptureConfig   `yaml:"capture"`
	Input     InputConfig     `yaml:"input"`
	Logging   LoggingConfig   `yaml:"logging"`
	Events    EventsConfig    `yaml:"events"`
	Users     []UserConfig    `yaml:"users"`
}

type ServerConfig struct {
	Listen       string `yaml:"listen"`
	HTTPListen   string `yaml:"http_listen"`
	WebRoot      string `yaml:"web_root"`
	CORSOrigin   string `yaml:"cors_origin"`
	HealthPath   string `yaml:"health_path"`
	CacheControl string `yaml:"cache_control"`
}

type TransportConfig struct {
	PollInterval     time.Duration `yaml:"poll_interval"`
	ReadTimeout      time.Duration `yaml:"read_timeout"`
	WriteTimeout     time.Duration `yaml:"write_timeout"`
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`
	MaxPayload       int64         `yaml:"max_payload"`
}

type CaptureConfig struct {
	Interval time.Duration `yaml:"interval"`
	Format   string        `yaml:"format"`
	Quality  int           `yaml:"quality"`
	MaxWidth int           `yaml:"max_width"`
}

type InputConfig struct {
	PointerInterval time.Duration `yaml:"pointer_interval"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

type EventsConfig struct {
	File string `yaml:"file"`
}

type UserConfig struct {
	Name     string `yaml:"name"`
	Password string `yaml:"password"`
	Control  bool   `yaml:"control"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Listen:     ":5900",
			HTTPListen: ":8080",
			WebRoot:    "web",
			CORSOrigin: "*",
			HealthPath: "/healthz",
		},
		Transport: TransportConfig{
			PollInterval:     100 * time.Millisecond,
			ReadTimeout:      30 * time.Second,
			WriteTimeout:     30 * time.Second,
			HandshakeTimeout: 10 * time.Second,
			MaxPayload:       16 << 20,
		},
		Capture: CaptureConfig{
			Interval: 20 * time.Millisecond,
			Format:   "png",
			Quality:  80,
		},
		Input: InputConfig{
			PointerInterval: 2 * time.Millisecond,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from a file over the defaults. An empty path
// yields the defaults. Environment overrides are applied before
// validation.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("WEBVNC_LISTEN"); v != "" {
		c.Server.Listen = v
	}
	if v, ok := os.LookupEnv("WEBVNC_HTTP_LISTEN"); ok {
		c.Server.HTTPListen = v
	}
	if v := os.Getenv("WEBVNC_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Listen == "" {
		return errors.New("server.listen is required")
	}
	if c.Server.HTTPListen != "" && c.Server.WebRoot == "" {
		return errors.New("server.web_root is required when server.http_listen is set")
	}
	if c.Server.HealthPath != "" && !strings.HasPrefix(c.Server.HealthPath, "/") {
		return errors.New("server.health_path must start with '/'")
	}

	durations := []struct {
		key string
		d   time.Duration
	}{
		{"transport.poll_interval", c.Transport.PollInterval},
		{"transport.read_timeout", c.Transport.ReadTimeout},
		{"transport.write_timeout", c.Transport.WriteTimeout},
		{"transport.handshake_timeout", c.Transport.HandshakeTimeout},
		{"capture.interval", c.Capture.Interval},
		{"input.pointer_interval", c.Input.PointerInterval},
	}
	for _, d := range durations {
		if d.d <= 0 {
			return fmt.Errorf("%s must be positive", d.key)
		}
	}
	if c.Transport.MaxPayload <= 0 {
		return errors.New("transport.max_payload must be positive")
	}

	switch c.Capture.Format {
	case "png", "jpeg":
	default:
		return fmt.Errorf("capture.format must be 'png' or 'jpeg', got %q", c.Capture.Format)
	}
	if c.Capture.Quality < 1 || c.Capture.Quality > 100 {
		return fmt.Errorf("capture.quality must be between 1 and 100, got %d", c.Capture.Quality)
	}
	if c.Capture.MaxWidth < 0 {
		return errors.New("capture.max_width must not be negative")
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("logging.level must be one of debug, info, warn, error, got %q", c.Logging.Level)
	}

	seen := make(map[string]bool, len(c.Users))
	for i, u := range c.Users {
		key := strings.ToLower(strings.TrimSpace(u.Name))
		if key == "" {
			return fmt.Errorf("users[%d].name is required", i)
		}
		if seen[key] {
			return fmt.Errorf("users[%d].name %q is a duplicate", i, u.Name)
		}
		seen[key] = true
	}
	return nil
}
