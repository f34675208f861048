package main

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"golang.org/x/term"

	"github.com/triagekit/triage/internal/logbuf"
	"github.com/triagekit/triage/internal/markdown"
	"github.com/triagekit/triage/internal/notify"
	"github.com/triagekit/triage/pkg/protocol"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#565f89"))
)

// terminalWidth is the stdout width, or markdown.DefaultWidth when stdout is
// not a terminal.
func terminalWidth() int {
	fd := int(os.Stdout.Fd())
	if !term.IsTerminal(fd) {
		return markdown.DefaultWidth
	}
	w, _, err := term.GetSize(fd)
	if err != nil || w <= 0 {
		return markdown.DefaultWidth
	}
	return w
}

// ticketTable renders tickets as a bordered table.
func ticketTable(tickets []protocol.Ticket) string {
	if len(tickets) == 0 {
		return dimStyle.Render("No tickets")
	}
	rows := make([][]string, 0, len(tickets))
	for _, t := range tickets {
		rows = append(rows, []string{
			strconv.FormatInt(t.ID, 10),
			truncate(t.Title, 48),
			string(t.Status),
			dash(t.Category),
			dash(string(t.Priority)),
			t.CreatedAt.Local().Format("2006-01-02 15:04"),
		})
	}
	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(dimStyle).
		Headers("ID", "TITLE", "STATUS", "CATEGORY", "PRIORITY", "CREATED").
		Rows(rows...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		}).
		String()
}

// runMarkdown formats a run as markdown: the summary, category and priority
// counts, and one entry per classified ticket.
func runMarkdown(run *protocol.AnalysisRun) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Analysis run #%d\n\n", run.ID)
	fmt.Fprintf(&b, "_%s · %d tickets_\n\n", run.CreatedAt.Local().Format("2006-01-02 15:04"), len(run.TicketAnalyses))
	if s := strings.TrimSpace(run.Summary); s != "" {
		b.WriteString(s)
		b.WriteString("\n\n")
	}
	if len(run.TicketAnalyses) == 0 {
		return b.String()
	}

	categories := map[string]int{}
	priorities := map[protocol.Priority]int{}
	for _, ta := range run.TicketAnalyses {
		categories[ta.Category]++
		priorities[ta.Priority]++
	}
	names := make([]string, 0, len(categories))
	for c := range categories {
		names = append(names, c)
	}
	sort.Strings(names)
	b.WriteString("## Categories\n\n")
	for _, c := range names {
		fmt.Fprintf(&b, "- %s: %d\n", c, categories[c])
	}
	b.WriteString("\n## Priorities\n\n")
	for _, p := range protocol.Priorities {
		if n := priorities[p]; n > 0 {
			fmt.Fprintf(&b, "- %s: %d\n", p, n)
		}
	}

	b.WriteString("\n## Tickets\n\n")
	for _, ta := range run.TicketAnalyses {
		title := fmt.Sprintf("#%d", ta.TicketID)
		if ta.Ticket != nil {
			title += " " + ta.Ticket.Title
		}
		fmt.Fprintf(&b, "- **%s** (%s, %s)", title, ta.Category, ta.Priority)
		if ta.Notes != "" {
			fmt.Fprintf(&b, ": %s", ta.Notes)
		}
		b.WriteString("\n")
	}
	return b.String()
}

func logLine(e logbuf.Entry) string {
	var b strings.Builder
	b.WriteString(e.Time.Local().Format("15:04:05.000"))
	b.WriteString(" ")
	fmt.Fprintf(&b, "%-5s", strings.ToUpper(e.Level))
	if e.Component != "" {
		fmt.Fprintf(&b, " [%s]", e.Component)
	}
	b.WriteString(" ")
	b.WriteString(e.Message)

	keys := make([]string, 0, len(e.Attrs))
	for k := range e.Attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%v", k, e.Attrs[k])
	}
	return b.String()
}

func noteLine(n notify.Notification) string {
	return fmt.Sprintf("[%s] %s", n.Kind, n.Message)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
