package main

import (
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/x/ansi"

	"github.com/triagekit/triage/internal/logbuf"
	"github.com/triagekit/triage/internal/notify"
	"github.com/triagekit/triage/pkg/protocol"
)

func TestRunMarkdown(t *testing.T) {
	run := &protocol.AnalysisRun{
		ID:        3,
		Summary:   "Two billing issues.",
		CreatedAt: time.Date(2025, 1, 2, 3, 4, 0, 0, time.UTC),
		TicketAnalyses: []protocol.TicketAnalysis{
			{TicketID: 1, Category: "billing", Priority: protocol.PriorityHigh, Notes: "refund",
				Ticket: &protocol.Ticket{ID: 1, Title: "Payment failed"}},
			{TicketID: 2, Category: "billing", Priority: protocol.PriorityLow},
			{TicketID: 4, Category: "bug", Priority: protocol.PriorityHigh},
		},
	}
	md := runMarkdown(run)
	for _, want := range []string{
		"# Analysis run #3",
		"Two billing issues.",
		"- billing: 2\n- bug: 1\n",
		"- high: 2\n- low: 1\n",
		"- **#1 Payment failed** (billing, high): refund\n",
		"- **#2** (billing, low)\n",
	} {
		if !strings.Contains(md, want) {
			t.Errorf("markdown missing %q:\n%s", want, md)
		}
	}
	if strings.Contains(md, "medium") {
		t.Errorf("zero-count priority rendered:\n%s", md)
	}

	out := ansi.Strip(runReport(run, 80))
	if !strings.Contains(out, "Analysis run #3") || strings.Contains(out, "# Analysis") {
		t.Errorf("report not rendered:\n%s", out)
	}
}

func TestRunMarkdownEmpty(t *testing.T) {
	md := runMarkdown(&protocol.AnalysisRun{ID: 1, Summary: "No tickets to analyze."})
	if strings.Contains(md, "## Categories") {
		t.Errorf("empty run rendered sections:\n%s", md)
	}
	if !strings.Contains(md, "No tickets to analyze.") {
		t.Errorf("summary missing:\n%s", md)
	}
}

func TestTicketTable(t *testing.T) {
	out := ansi.Strip(ticketTable([]protocol.Ticket{
		{ID: 7, Title: "Login broken", Status: protocol.TicketPending},
		{ID: 8, Title: "Refund", Status: protocol.TicketAnalyzed, Category: "billing", Priority: protocol.PriorityHigh},
	}))
	for _, want := range []string{"ID", "TITLE", "Login broken", "pending", "billing", "high"} {
		if !strings.Contains(out, want) {
			t.Errorf("table missing %q:\n%s", want, out)
		}
	}
	if got := ansi.Strip(ticketTable(nil)); got != "No tickets" {
		t.Errorf("empty table = %q", got)
	}
}

func TestLogLine(t *testing.T) {
	e := logbuf.Entry{
		Time:      time.Date(2025, 1, 2, 3, 4, 5, 0, time.Local),
		Level:     "warn",
		Component: "analyzer",
		Message:   "provider failed",
		Attrs:     map[string]any{"ticket": 4, "attempt": 2},
	}
	want := "03:04:05.000 WARN  [analyzer] provider failed attempt=2 ticket=4"
	if got := logLine(e); got != want {
		t.Errorf("logLine = %q, want %q", got, want)
	}
}

func TestNoteLineAndTruncate(t *testing.T) {
	if got := noteLine(notify.Notification{Kind: notify.Warning, Message: "No valid tickets found in input"}); got != "[warning] No valid tickets found in input" {
		t.Errorf("noteLine = %q", got)
	}
	if got := truncate("abcdef", 4); got != "abc…" {
		t.Errorf("truncate = %q", got)
	}
	if got := truncate("abc", 4); got != "abc" {
		t.Errorf("truncate = %q", got)
	}
}
