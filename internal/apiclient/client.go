// Package apiclient talks to the triage REST server. Client satisfies the
// service interfaces of the ticket store and the analysis reconciler.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/triagekit/triage/internal/logbuf"
	"github.com/triagekit/triage/pkg/protocol"
)

const (
	DefaultBaseURL = "http://localhost:8000"
	DefaultTimeout = 30 * time.Second
)

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Code   int
	Detail string
}

func (e *StatusError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("HTTP %d", e.Code)
	}
	return fmt.Sprintf("HTTP %d: %s", e.Code, e.Detail)
}

// Option configures a Client.
type Option func(*Client)

// WithAPIKey sends key as a bearer token.
func WithAPIKey(key string) Option {
	return func(c *Client) { c.apiKey = key }
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// Client is a REST client for the ticket and analysis endpoints.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// New creates a Client for baseURL. Empty baseURL uses DefaultBaseURL.
func New(baseURL string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: DefaultTimeout},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// BaseURL returns the server address.
func (c *Client) BaseURL() string { return c.baseURL }

// Health checks that the server is reachable.
func (c *Client) Health(ctx context.Context) (string, error) {
	var out struct {
		Status string `json:"status"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/health", nil, &out); err != nil {
		return "", err
	}
	return out.Status, nil
}

// CreateTickets creates records and returns the created tickets in order.
func (c *Client) CreateTickets(ctx context.Context, records []protocol.TicketCreate) ([]protocol.Ticket, error) {
	var out []protocol.Ticket
	req := protocol.CreateTicketsRequest{Tickets: records}
	if err := c.do(ctx, http.MethodPost, "/api/tickets/", req, &out); err != nil {
		return nil, fmt.Errorf("apiclient: create tickets: %w", err)
	}
	return out, nil
}

// ListTickets returns every ticket.
func (c *Client) ListTickets(ctx context.Context) ([]protocol.Ticket, error) {
	return c.ListTicketsByStatus(ctx, "")
}

// ListTicketsByStatus returns tickets with the given status, or all tickets
// when status is empty.
func (c *Client) ListTicketsByStatus(ctx context.Context, status protocol.TicketStatus) ([]protocol.Ticket, error) {
	path := "/api/tickets/"
	if status != "" {
		path += "?" + url.Values{"status": {string(status)}}.Encode()
	}
	var out []protocol.Ticket
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, fmt.Errorf("apiclient: list tickets: %w", err)
	}
	return out, nil
}

// RunAnalysis starts an analysis and waits for the finished run.
func (c *Client) RunAnalysis(ctx context.Context, req protocol.AnalysisRequest) (*protocol.AnalysisRun, error) {
	var out protocol.AnalysisRun
	if err := c.do(ctx, http.MethodPost, "/api/analysis/", req, &out); err != nil {
		return nil, fmt.Errorf("apiclient: run analysis: %w", err)
	}
	return &out, nil
}

// LatestAnalysis returns the most recent run, or nil when none exists.
func (c *Client) LatestAnalysis(ctx context.Context) (*protocol.AnalysisRun, error) {
	var out protocol.AnalysisRun
	err := c.do(ctx, http.MethodGet, "/api/analysis/latest", nil, &out)
	var se *StatusError
	if errors.As(err, &se) && se.Code == http.StatusNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("apiclient: latest analysis: %w", err)
	}
	return &out, nil
}

// GetAnalysis returns the run with the given id.
func (c *Client) GetAnalysis(ctx context.Context, id int64) (*protocol.AnalysisRun, error) {
	var out protocol.AnalysisRun
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/analysis/%d", id), nil, &out); err != nil {
		return nil, fmt.Errorf("apiclient: get analysis %d: %w", id, err)
	}
	return &out, nil
}

// LogQuery filters GET /api/logs. Zero fields are not sent.
type LogQuery struct {
	Level     string
	Component string
	Contains  string
	Limit     int
	Since     time.Time
}

// Logs returns recent server log entries, oldest first.
func (c *Client) Logs(ctx context.Context, q LogQuery) ([]logbuf.Entry, error) {
	v := url.Values{}
	if q.Level != "" {
		v.Set("level", q.Level)
	}
	if q.Component != "" {
		v.Set("component", q.Component)
	}
	if q.Contains != "" {
		v.Set("q", q.Contains)
	}
	if q.Limit > 0 {
		v.Set("limit", strconv.Itoa(q.Limit))
	}
	if !q.Since.IsZero() {
		v.Set("since", strconv.FormatInt(q.Since.UnixMilli(), 10))
	}
	path := "/api/logs"
	if len(v) > 0 {
		path += "?" + v.Encode()
	}
	var out []logbuf.Entry
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, fmt.Errorf("apiclient: logs: %w", err)
	}
	return out, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		se := &StatusError{Code: resp.StatusCode}
		var er protocol.ErrorResponse
		if json.Unmarshal(data, &er) == nil && er.Detail != "" {
			se.Detail = er.Detail
		} else {
			se.Detail = strings.TrimSpace(string(data))
		}
		return se
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	return nil
}
