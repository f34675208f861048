package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const validJSON = `{
  // comments are allowed
  "server": {
    "host": "127.0.0.1",
    "port": 9000,
    "api_key": "server-key",
    "data_dir": "/tmp/triage-test",
  },
  "analysis": {
    "concurrency": 3,
    "schedule": "@every 1h",
    "provider": {"type": "anthropic", "api_key": "sk-ant"}
  },
  "slack": {"bot_token": "xoxb-1", "channel": "C42"},
  "client": {"pending_page_size": 10}
}`

const validYAML = `
server:
  port: 9100
  data_dir: /tmp/triage-yaml
analysis:
  concurrency: 2
  provider:
    type: openai
    api_key: sk-openai
    base_url: http://localhost:11434/v1
    model: llama3
client:
  api_url: http://triage.internal:9100
  notification_ms: 0
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadJSONC(t *testing.T) {
	cfg, err := Load(writeFile(t, "triage.json", validJSON))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Host != "127.0.0.1" || cfg.Server.Port != 9000 {
		t.Errorf("server = %+v", cfg.Server)
	}
	if cfg.Analysis.Provider == nil || cfg.Analysis.Provider.Type != "anthropic" {
		t.Errorf("provider = %+v", cfg.Analysis.Provider)
	}
	if cfg.Slack == nil || cfg.Slack.Channel != "C42" {
		t.Errorf("slack = %+v", cfg.Slack)
	}
	// Unset fields keep their defaults.
	if cfg.Client.PendingPageSize != 10 || cfg.Client.AnalyzedPageSize != 3 {
		t.Errorf("page sizes = %d/%d", cfg.Client.PendingPageSize, cfg.Client.AnalyzedPageSize)
	}
	if cfg.Server.LogBuffer != 1000 {
		t.Errorf("log_buffer = %d", cfg.Server.LogBuffer)
	}
	if cfg.DBPath() != filepath.Join("/tmp/triage-test", "triage.db") {
		t.Errorf("DBPath = %q", cfg.DBPath())
	}
}

func TestLoadYAML(t *testing.T) {
	cfg, err := Load(writeFile(t, "triage.yml", validYAML))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 9100 || cfg.Server.Host != "0.0.0.0" {
		t.Errorf("server = %+v", cfg.Server)
	}
	if cfg.Analysis.Provider.Model != "llama3" {
		t.Errorf("model = %q", cfg.Analysis.Provider.Model)
	}
	if cfg.Client.APIURL != "http://triage.internal:9100" {
		t.Errorf("api_url = %q", cfg.Client.APIURL)
	}
	if cfg.Client.NotificationDuration() != 0 {
		t.Errorf("notification duration = %v", cfg.Client.NotificationDuration())
	}
	if cfg.Slack != nil {
		t.Errorf("slack should be nil, got %+v", cfg.Slack)
	}
}

func TestLoad_FileNotFound(t *testing.T) {
	if _, err := Load("/nonexistent/triage.json"); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestLoad_InvalidJSON(t *testing.T) {
	_, err := Load(writeFile(t, "bad.json", "{not json"))
	if err == nil || !strings.Contains(err.Error(), "config: parse") {
		t.Errorf("err = %v", err)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	if _, err := Load(writeFile(t, "bad.yaml", "server: [unclosed")); err == nil {
		t.Error("expected error for invalid YAML")
	}
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if cfg.Client.Timeout().Seconds() != 30 {
		t.Errorf("timeout = %v", cfg.Client.Timeout())
	}
}

func TestValidateAggregates(t *testing.T) {
	cfg := Default()
	cfg.Server.Port = 0
	cfg.Analysis.Concurrency = 0
	cfg.Analysis.Schedule = "every tuesday"
	cfg.Analysis.Provider = &ProviderConfig{Type: "gemini"}
	cfg.Slack = &SlackConfig{}
	cfg.Client.APIURL = "localhost"
	cfg.Client.AnalyzedPageSize = 0

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error")
	}
	for _, want := range []string{
		"server.port 0 is out of range",
		"analysis.concurrency must be at least 1",
		"analysis.schedule",
		`analysis.provider.type "gemini" is not supported`,
		"analysis.provider.api_key is required",
		"slack.bot_token is required",
		"slack.channel is required",
		`client.api_url "localhost" is not an absolute URL`,
		"client.analyzed_page_size must be at least 1",
	} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error missing %q:\n%v", want, err)
		}
	}
}

func TestValidateSchedule(t *testing.T) {
	for _, sched := range []string{"@daily", "@every 30m", "0 9 * * 1-5"} {
		cfg := Default()
		cfg.Analysis.Schedule = sched
		if err := cfg.Validate(); err != nil {
			t.Errorf("schedule %q: %v", sched, err)
		}
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("TRIAGE_PORT", "9090")
	t.Setenv("TRIAGE_DATA_DIR", "/env/data")
	t.Setenv("TRIAGE_API_KEY", "env-key")
	t.Setenv("TRIAGE_OPENAI_API_KEY", "sk-env")
	t.Setenv("TRIAGE_MODEL", "gpt-4o-mini")
	t.Setenv("TRIAGE_SCHEDULE", "@hourly")
	t.Setenv("TRIAGE_SLACK_BOT_TOKEN", "xoxb-env")
	t.Setenv("TRIAGE_SLACK_CHANNEL", "C1")

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv: %v", err)
	}

	if cfg.Server.Port != 9090 || cfg.Server.DataDir != "/env/data" {
		t.Errorf("server = %+v", cfg.Server)
	}
	if cfg.Analysis.Provider == nil || cfg.Analysis.Provider.Type != "openai" || cfg.Analysis.Provider.Model != "gpt-4o-mini" {
		t.Errorf("provider = %+v", cfg.Analysis.Provider)
	}
	if cfg.Analysis.Schedule != "@hourly" {
		t.Errorf("schedule = %q", cfg.Analysis.Schedule)
	}
	if cfg.Slack == nil || cfg.Slack.BotToken != "xoxb-env" {
		t.Errorf("slack = %+v", cfg.Slack)
	}
	// The client reuses the server key unless told otherwise.
	if cfg.Client.APIKey != "env-key" {
		t.Errorf("client api_key = %q", cfg.Client.APIKey)
	}
}

func TestLoadFromEnvInvalid(t *testing.T) {
	t.Setenv("TRIAGE_SLACK_BOT_TOKEN", "xoxb-env")
	if _, err := LoadFromEnv(); err == nil {
		t.Error("expected error for slack token without channel")
	}
}
