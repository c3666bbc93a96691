// Package config provides YAML-based configuration loading for Peakwatch.
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the top-level Peakwatch configuration, loaded from peakwatch.yaml.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	DB      DBConfig      `yaml:"db"`
	Fetcher FetcherConfig `yaml:"fetcher"`
	Poll    PollConfig    `yaml:"poll"`
	Notify  NotifyConfig  `yaml:"notify"`
	Digest  DigestConfig  `yaml:"digest"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// DBConfig selects and configures the session store backend.
// Driver is "sqlite" (default, file-based) or "mysql".
type DBConfig struct {
	Driver   string `yaml:"driver"`
	Path     string `yaml:"path"` // sqlite file path
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
}

// FetcherConfig controls the stream metadata fetcher subprocess.
type FetcherConfig struct {
	Binary         string `yaml:"binary"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// PollConfig holds polling defaults applied when a tracking request does not
// specify an interval.
type PollConfig struct {
	DefaultInterval int `yaml:"default_interval"` // seconds
}

// NotifyConfig configures report delivery backends. A backend is enabled
// when its credentials are present.
type NotifyConfig struct {
	Slack   SlackConfig   `yaml:"slack"`
	Discord DiscordConfig `yaml:"discord"`
	Email   EmailConfig   `yaml:"email"`
}

// SlackConfig holds the Slack bot token for report delivery.
type SlackConfig struct {
	BotToken string `yaml:"bot_token"`
}

// DiscordConfig holds the Discord bot token for report delivery.
type DiscordConfig struct {
	BotToken string `yaml:"bot_token"`
}

// EmailConfig holds SMTP settings for emailed reports.
type EmailConfig struct {
	SMTPHost string `yaml:"smtp_host"`
	SMTPPort int    `yaml:"smtp_port"`
	Sender   string `yaml:"sender"`
	Password string `yaml:"password"`
}

// DigestConfig schedules a periodic summary of completed sessions.
// Schedule is a standard 5-field cron expression; empty disables the digest.
type DigestConfig struct {
	Schedule string `yaml:"schedule"`
	Target   string `yaml:"target"` // e.g. "slack:C0123456", "mailto:ops@example.com"
}

// Load reads a YAML config file from path and returns a validated Config.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse unmarshals YAML bytes into a validated Config.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns a config with all defaults applied, used when no config
// file is present.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// applyDefaults fills in derived and default values.
func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 5050
	}
	if c.DB.Driver == "" {
		c.DB.Driver = "sqlite"
	}
	if c.DB.Path == "" {
		c.DB.Path = "data/peakwatch.db"
	}
	if c.DB.Host == "" {
		c.DB.Host = "127.0.0.1"
	}
	if c.DB.Port == 0 {
		c.DB.Port = 3306
	}
	if c.DB.User == "" {
		c.DB.User = "root"
	}
	if c.DB.Database == "" {
		c.DB.Database = "peakwatch"
	}
	if c.Fetcher.Binary == "" {
		c.Fetcher.Binary = "yt-dlp"
	}
	if c.Fetcher.TimeoutSeconds == 0 {
		c.Fetcher.TimeoutSeconds = 30
	}
	if c.Poll.DefaultInterval == 0 {
		c.Poll.DefaultInterval = 30
	}
	if c.Notify.Email.SMTPPort == 0 {
		c.Notify.Email.SMTPPort = 587
	}
}

// validate checks that all required fields are present and consistent.
func (c *Config) validate() error {
	var errs []string
	switch c.DB.Driver {
	case "sqlite", "mysql":
	default:
		errs = append(errs, fmt.Sprintf("db.driver must be sqlite or mysql, got %q", c.DB.Driver))
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server.port %d out of range", c.Server.Port))
	}
	if c.Digest.Schedule != "" && c.Digest.Target == "" {
		errs = append(errs, "digest.target is required when digest.schedule is set")
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}
