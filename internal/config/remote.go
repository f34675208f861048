package config

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"
)

// RemoteOptions holds parameters for fetching configuration over HTTP.
type RemoteOptions struct {
	URL     string
	APIKey  string        // sent as a Bearer token when set
	DataDir string        // overrides server.data_dir when set
	Timeout time.Duration // default 30s
}

// LoadRemote fetches configuration from a URL. YAML is detected from the
// Content-Type header or the URL path; anything else is parsed as JSON.
func LoadRemote(ctx context.Context, opts RemoteOptions) (*Config, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, opts.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("config: remote: create request: %w", err)
	}
	if opts.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+opts.APIKey)
	}

	client := &http.Client{Timeout: opts.Timeout}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("config: remote: fetch: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("config: remote: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("config: remote: HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	format := formatOf(path.Base(req.URL.Path))
	if strings.Contains(resp.Header.Get("Content-Type"), "yaml") {
		format = FormatYAML
	}
	cfg, err := Parse(body, format)
	if err != nil {
		return nil, fmt.Errorf("config: remote: parse: %w", err)
	}

	// The data directory is always local to the process.
	if opts.DataDir != "" {
		cfg.Server.DataDir = opts.DataDir
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: remote: %w", err)
	}
	return cfg, nil
}
