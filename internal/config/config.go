// Package config loads triage server and client configuration.
package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// Config is the top-level triage configuration.
type Config struct {
	Server   ServerConfig   `json:"server" yaml:"server"`
	Analysis AnalysisConfig `json:"analysis" yaml:"analysis"`
	Slack    *SlackConfig   `json:"slack,omitempty" yaml:"slack,omitempty"`
	Client   ClientConfig   `json:"client" yaml:"client"`
}

// ServerConfig holds REST server and storage settings.
type ServerConfig struct {
	Host      string `json:"host" yaml:"host"`
	Port      int    `json:"port" yaml:"port"`
	APIKey    string `json:"api_key,omitempty" yaml:"api_key,omitempty"`
	DataDir   string `json:"data_dir" yaml:"data_dir"`
	LogBuffer int    `json:"log_buffer,omitempty" yaml:"log_buffer,omitempty"` // entries kept for /api/logs
}

// AnalysisConfig holds analyzer settings.
type AnalysisConfig struct {
	Concurrency int             `json:"concurrency" yaml:"concurrency"`
	Schedule    string          `json:"schedule,omitempty" yaml:"schedule,omitempty"` // cron expression, empty disables
	Provider    *ProviderConfig `json:"provider,omitempty" yaml:"provider,omitempty"` // nil means keyword rules only
}

// ProviderConfig holds LLM provider settings.
type ProviderConfig struct {
	Type    string `json:"type,omitempty" yaml:"type,omitempty"` // "openai" (default) or "anthropic"
	APIKey  string `json:"api_key" yaml:"api_key"`
	BaseURL string `json:"base_url,omitempty" yaml:"base_url,omitempty"`
	Model   string `json:"model,omitempty" yaml:"model,omitempty"`
}

// SlackConfig holds settings for posting run summaries.
type SlackConfig struct {
	BotToken string `json:"bot_token" yaml:"bot_token"`
	Channel  string `json:"channel" yaml:"channel"`
}

// ClientConfig holds settings for the CLI and TUI.
type ClientConfig struct {
	APIURL           string `json:"api_url" yaml:"api_url"`
	APIKey           string `json:"api_key,omitempty" yaml:"api_key,omitempty"`
	TimeoutSeconds   int    `json:"timeout_seconds" yaml:"timeout_seconds"`
	PendingPageSize  int    `json:"pending_page_size" yaml:"pending_page_size"`
	AnalyzedPageSize int    `json:"analyzed_page_size" yaml:"analyzed_page_size"`
	NotificationMS   int    `json:"notification_ms" yaml:"notification_ms"`
}

// Timeout returns the client request timeout.
func (c ClientConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// NotificationDuration returns how long a notification stays visible.
// Zero selects the queue default.
func (c ClientConfig) NotificationDuration() time.Duration {
	return time.Duration(c.NotificationMS) * time.Millisecond
}

// Default returns a configuration with every field at its default.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:      "0.0.0.0",
			Port:      8000,
			DataDir:   "data",
			LogBuffer: 1000,
		},
		Analysis: AnalysisConfig{
			Concurrency: 5,
		},
		Client: ClientConfig{
			APIURL:           "http://localhost:8000",
			TimeoutSeconds:   30,
			PendingPageSize:  5,
			AnalyzedPageSize: 3,
			NotificationMS:   5000,
		},
	}
}

// DBPath is the SQLite database location inside the data directory.
func (c *Config) DBPath() string {
	return filepath.Join(c.Server.DataDir, "triage.db")
}

// Load reads configuration from a JSON (comments allowed) or YAML file.
// Fields absent from the file keep their defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	cfg, err := Parse(data, formatOf(path))
	if err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Format names a configuration encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

func formatOf(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	}
	return FormatJSON
}

// Parse decodes data over the defaults without validating.
func Parse(data []byte, format Format) (*Config, error) {
	cfg := Default()
	switch format {
	case FormatYAML:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	default:
		if err := json.Unmarshal(jsonc.ToJSON(data), cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// LoadFromEnv builds a config from environment variables with TRIAGE_ prefix.
func LoadFromEnv() (*Config, error) {
	cfg := Default()
	cfg.Server.Host = getenv("TRIAGE_HOST", cfg.Server.Host)
	cfg.Server.Port = getenvInt("TRIAGE_PORT", cfg.Server.Port)
	cfg.Server.APIKey = os.Getenv("TRIAGE_API_KEY")
	cfg.Server.DataDir = getenv("TRIAGE_DATA_DIR", cfg.Server.DataDir)
	cfg.Analysis.Concurrency = getenvInt("TRIAGE_CONCURRENCY", cfg.Analysis.Concurrency)
	cfg.Analysis.Schedule = os.Getenv("TRIAGE_SCHEDULE")

	// Default provider from env
	if apiKey := os.Getenv("TRIAGE_ANTHROPIC_API_KEY"); apiKey != "" {
		cfg.Analysis.Provider = &ProviderConfig{
			Type:   "anthropic",
			APIKey: apiKey,
			Model:  os.Getenv("TRIAGE_MODEL"),
		}
	} else if apiKey := os.Getenv("TRIAGE_OPENAI_API_KEY"); apiKey != "" {
		cfg.Analysis.Provider = &ProviderConfig{
			Type:    "openai",
			APIKey:  apiKey,
			BaseURL: os.Getenv("TRIAGE_OPENAI_BASE_URL"),
			Model:   os.Getenv("TRIAGE_MODEL"),
		}
	}

	if token := os.Getenv("TRIAGE_SLACK_BOT_TOKEN"); token != "" {
		cfg.Slack = &SlackConfig{
			BotToken: token,
			Channel:  os.Getenv("TRIAGE_SLACK_CHANNEL"),
		}
	}

	cfg.Client.APIURL = getenv("TRIAGE_API_URL", cfg.Client.APIURL)
	cfg.Client.APIKey = getenv("TRIAGE_CLIENT_API_KEY", cfg.Server.APIKey)
	cfg.Client.TimeoutSeconds = getenvInt("TRIAGE_TIMEOUT", cfg.Client.TimeoutSeconds)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks every section and reports all problems at once.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server.port %d is out of range", c.Server.Port))
	}
	if c.Server.DataDir == "" {
		errs = append(errs, "server.data_dir is required")
	}
	if c.Server.LogBuffer < 0 {
		errs = append(errs, "server.log_buffer must not be negative")
	}

	if c.Analysis.Concurrency < 1 {
		errs = append(errs, "analysis.concurrency must be at least 1")
	}
	if c.Analysis.Schedule != "" {
		if _, err := cron.ParseStandard(c.Analysis.Schedule); err != nil {
			errs = append(errs, fmt.Sprintf("analysis.schedule: %v", err))
		}
	}
	if p := c.Analysis.Provider; p != nil {
		switch p.Type {
		case "", "openai", "anthropic":
		default:
			errs = append(errs, fmt.Sprintf("analysis.provider.type %q is not supported", p.Type))
		}
		if p.APIKey == "" {
			errs = append(errs, "analysis.provider.api_key is required")
		}
	}

	if c.Slack != nil {
		if c.Slack.BotToken == "" {
			errs = append(errs, "slack.bot_token is required")
		}
		if c.Slack.Channel == "" {
			errs = append(errs, "slack.channel is required")
		}
	}

	if u, err := url.Parse(c.Client.APIURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Sprintf("client.api_url %q is not an absolute URL", c.Client.APIURL))
	}
	if c.Client.TimeoutSeconds < 1 {
		errs = append(errs, "client.timeout_seconds must be at least 1")
	}
	if c.Client.PendingPageSize < 1 {
		errs = append(errs, "client.pending_page_size must be at least 1")
	}
	if c.Client.AnalyzedPageSize < 1 {
		errs = append(errs, "client.analyzed_page_size must be at least 1")
	}
	if c.Client.NotificationMS < 0 {
		errs = append(errs, "client.notification_ms must not be negative")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
