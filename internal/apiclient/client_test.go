package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/triagekit/triage/pkg/protocol"
)

func TestCreateTickets(t *testing.T) {
	var got protocol.CreateTicketsRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/tickets/" {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer k" {
			t.Errorf("missing bearer token")
		}
		json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode([]protocol.Ticket{
			{ID: 1, Title: "A", Status: protocol.TicketPending},
			{ID: 2, Title: "B", Status: protocol.TicketPending},
		})
	}))
	defer srv.Close()

	c := New(srv.URL, WithAPIKey("k"))
	tickets, err := c.CreateTickets(context.Background(), []protocol.TicketCreate{
		{Title: "A", Description: "a"}, {Title: "B", Description: "b"},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if len(got.Tickets) != 2 || got.Tickets[0].Title != "A" {
		t.Errorf("unexpected request body %+v", got)
	}
	if len(tickets) != 2 || tickets[1].ID != 2 {
		t.Errorf("unexpected response %+v", tickets)
	}
}

func TestListTicketsByStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("status") != "analyzed" {
			t.Errorf("expected status query, got %q", r.URL.RawQuery)
		}
		json.NewEncoder(w).Encode([]protocol.Ticket{})
	}))
	defer srv.Close()

	tickets, err := New(srv.URL).ListTicketsByStatus(context.Background(), protocol.TicketAnalyzed)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(tickets) != 0 {
		t.Errorf("expected no tickets, got %d", len(tickets))
	}
}

func TestRunAnalysisOmitsEmptyIDs(t *testing.T) {
	var raw map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&raw)
		json.NewEncoder(w).Encode(protocol.AnalysisRun{ID: 9, Summary: "s"})
	}))
	defer srv.Close()

	run, err := New(srv.URL).RunAnalysis(context.Background(), protocol.AnalysisRequest{})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if _, ok := raw["ticket_ids"]; ok {
		t.Errorf("ticket_ids should be omitted, got %v", raw)
	}
	if run.ID != 9 {
		t.Errorf("expected run 9, got %d", run.ID)
	}
}

func TestLatestAnalysisNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(protocol.ErrorResponse{Detail: "No analysis runs found"})
	}))
	defer srv.Close()

	run, err := New(srv.URL).LatestAnalysis(context.Background())
	if err != nil || run != nil {
		t.Fatalf("expected nil, nil; got %v, %v", run, err)
	}
}

func TestStatusErrorCarriesDetail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(protocol.ErrorResponse{Detail: "at least one ticket is required"})
	}))
	defer srv.Close()

	_, err := New(srv.URL).CreateTickets(context.Background(), nil)
	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("expected StatusError, got %v", err)
	}
	if se.Code != http.StatusBadRequest || se.Detail != "at least one ticket is required" {
		t.Errorf("unexpected status error %+v", se)
	}
}

func TestHealth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"ok"}`))
	}))
	defer srv.Close()

	status, err := New(srv.URL + "/").Health(context.Background())
	if err != nil || status != "ok" {
		t.Fatalf("health: %q %v", status, err)
	}
}

func TestLogsQuery(t *testing.T) {
	since := time.UnixMilli(1700000000000)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if r.URL.Path != "/api/logs" || q.Get("level") != "warn" || q.Get("component") != "analyzer" ||
			q.Get("limit") != "10" || q.Get("since") != "1700000000000" || q.Has("q") {
			t.Errorf("unexpected request %s", r.URL.String())
		}
		w.Write([]byte(`[{"time":"2024-01-01T00:00:00Z","level":"WARN","component":"analyzer","message":"llm classification failed"}]`))
	}))
	defer srv.Close()

	entries, err := New(srv.URL).Logs(context.Background(), LogQuery{Level: "warn", Component: "analyzer", Limit: 10, Since: since})
	if err != nil {
		t.Fatalf("Logs: %v", err)
	}
	if len(entries) != 1 || entries[0].Component != "analyzer" || entries[0].Level != "WARN" {
		t.Errorf("unexpected entries %+v", entries)
	}
}
