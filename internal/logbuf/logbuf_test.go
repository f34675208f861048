package logbuf

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"
)

func fill(buf *Buffer, n int, level, component string) time.Time {
	now := time.Now()
	for i := 0; i < n; i++ {
		buf.Write(Entry{
			Time:      now.Add(time.Duration(i) * time.Second),
			Level:     level,
			Component: component,
			Message:   "msg",
			Attrs:     map[string]any{"i": i},
		})
	}
	return now
}

func TestBufferWriteAndQuery(t *testing.T) {
	buf := New(5)
	fill(buf, 3, "INFO", "")

	entries := buf.Query(Query{MinLevel: slog.LevelDebug})
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	if buf.Len() != 3 {
		t.Errorf("expected Len 3, got %d", buf.Len())
	}
}

func TestBufferRingOverwrite(t *testing.T) {
	buf := New(3)
	fill(buf, 5, "INFO", "")

	entries := buf.Query(Query{MinLevel: slog.LevelDebug})
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries (ring buffer size), got %d", len(entries))
	}
	// Should be entries 2, 3, 4 (oldest first)
	if entries[0].Attrs["i"] != 2 {
		t.Fatalf("expected first entry i=2, got %v", entries[0].Attrs["i"])
	}
	if entries[2].Attrs["i"] != 4 {
		t.Fatalf("expected last entry i=4, got %v", entries[2].Attrs["i"])
	}
}

func TestBufferQuerySince(t *testing.T) {
	buf := New(10)
	now := fill(buf, 5, "INFO", "")

	entries := buf.Query(Query{Since: now.Add(3 * time.Second)})
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries since t+3s, got %d", len(entries))
	}
}

func TestBufferQueryLevel(t *testing.T) {
	buf := New(10)
	now := time.Now()

	buf.Write(Entry{Time: now, Level: "DEBUG", Message: "debug"})
	buf.Write(Entry{Time: now, Level: "INFO", Message: "info"})
	buf.Write(Entry{Time: now, Level: "WARN", Message: "warn"})
	buf.Write(Entry{Time: now, Level: "ERROR", Message: "error"})

	entries := buf.Query(Query{MinLevel: slog.LevelWarn})
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries at WARN+, got %d", len(entries))
	}
	if entries[0].Message != "warn" || entries[1].Message != "error" {
		t.Fatalf("unexpected entries: %v", entries)
	}
	if got := buf.Query(Query{}); len(got) != 3 {
		t.Errorf("zero MinLevel should drop debug, got %d entries", len(got))
	}
}

func TestBufferQueryLimit(t *testing.T) {
	buf := New(10)
	fill(buf, 8, "INFO", "")

	entries := buf.Query(Query{Limit: 3})
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries with limit, got %d", len(entries))
	}
	if entries[2].Attrs["i"] != 7 {
		t.Errorf("limit should keep the newest entries, got %v", entries[2].Attrs["i"])
	}
}

func TestBufferQueryComponentAndText(t *testing.T) {
	buf := New(10)
	now := time.Now()
	buf.Write(Entry{Time: now, Level: "INFO", Component: "analyzer", Message: "Analysis started"})
	buf.Write(Entry{Time: now, Level: "INFO", Component: "api", Message: "tickets created"})
	buf.Write(Entry{Time: now, Level: "WARN", Component: "analyzer", Message: "llm classification failed"})

	if got := buf.Query(Query{Component: "analyzer"}); len(got) != 2 {
		t.Errorf("expected 2 analyzer entries, got %d", len(got))
	}
	got := buf.Query(Query{Component: "analyzer", Contains: "ANALYSIS"})
	if len(got) != 1 || got[0].Message != "Analysis started" {
		t.Errorf("unexpected text match %v", got)
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"INFO":  slog.LevelInfo,
		"Warn":  slog.LevelWarn,
		"ERROR": slog.LevelError,
		"bogus": slog.LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestHandlerCaptures(t *testing.T) {
	buf := New(10)
	inner := slog.NewTextHandler(&discardWriter{}, nil)
	logger := slog.New(NewHandler(inner, buf))

	logger.Info("hello", "key", "value")
	logger.Warn("warning")

	entries := buf.Query(Query{MinLevel: slog.LevelDebug})
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Message != "hello" {
		t.Fatalf("expected 'hello', got %q", entries[0].Message)
	}
	if entries[0].Attrs["key"] != "value" {
		t.Fatalf("expected attr key=value, got %v", entries[0].Attrs)
	}
	if entries[1].Level != "WARN" {
		t.Fatalf("expected WARN level, got %q", entries[1].Level)
	}
}

func TestHandlerLiftsComponent(t *testing.T) {
	buf := New(10)
	inner := slog.NewTextHandler(&discardWriter{}, nil)
	logger := slog.New(NewHandler(inner, buf)).With("component", "session")

	logger.Info("msg", "run", 3)

	entries := buf.Query(Query{})
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if entries[0].Component != "session" {
		t.Fatalf("expected component=session, got %q", entries[0].Component)
	}
	if _, ok := entries[0].Attrs["component"]; ok {
		t.Error("component should not be duplicated in attrs")
	}
	if entries[0].Attrs["run"] != int64(3) {
		t.Errorf("expected run=3, got %v", entries[0].Attrs["run"])
	}
}

func TestHandlerCapturesAllLevels(t *testing.T) {
	buf := New(10)
	// Inner handler only allows WARN+
	inner := slog.NewTextHandler(&discardWriter{}, &slog.HandlerOptions{Level: slog.LevelWarn})
	handler := NewHandler(inner, buf)
	logger := slog.New(handler)

	if !handler.Enabled(context.Background(), slog.LevelDebug) {
		t.Fatal("expected DEBUG to be enabled (buffer captures all)")
	}

	logger.Debug("debug msg")
	logger.Info("info msg")
	logger.Warn("warn msg")

	entries := buf.Query(Query{MinLevel: slog.LevelDebug})
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries in buffer, got %d", len(entries))
	}
}

func TestHandlerFlattensGroups(t *testing.T) {
	buf := New(10)
	logger := slog.New(NewHandler(slog.NewTextHandler(&discardWriter{}, nil), buf)).
		With("component", "analyzer").
		WithGroup("run").
		With("id", 7)

	logger.Warn("classification failed",
		"error", errors.New("provider timeout"),
		"elapsed", 1500*time.Millisecond,
		slog.Group("ticket", "id", 3, "source", "keyword"),
	)

	entries := buf.Query(Query{})
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	e := entries[0]
	if e.Component != "analyzer" {
		t.Errorf("component = %q", e.Component)
	}
	want := map[string]any{
		"run.id":            int64(7),
		"run.error":         "provider timeout",
		"run.elapsed":       "1.5s",
		"run.ticket.id":     int64(3),
		"run.ticket.source": "keyword",
	}
	if len(e.Attrs) != len(want) {
		t.Errorf("attrs = %v", e.Attrs)
	}
	for k, v := range want {
		if e.Attrs[k] != v {
			t.Errorf("attrs[%q] = %v, want %v", k, e.Attrs[k], v)
		}
	}
}

func TestHandlerWithAttrsDoesNotLeak(t *testing.T) {
	buf := New(10)
	base := slog.New(NewHandler(slog.NewTextHandler(&discardWriter{}, nil), buf))
	a := base.With("run", 1)
	b := base.With("run", 2)

	a.Info("first")
	b.Info("second")
	base.Info("third")

	entries := buf.Query(Query{})
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	if entries[0].Attrs["run"] != int64(1) || entries[1].Attrs["run"] != int64(2) {
		t.Errorf("attrs = %v, %v", entries[0].Attrs, entries[1].Attrs)
	}
	if entries[2].Attrs != nil {
		t.Errorf("base logger picked up attrs: %v", entries[2].Attrs)
	}
}

type discardWriter struct{}

func (d *discardWriter) Write(p []byte) (int, error) { return len(p), nil }
