package tui

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/triagekit/triage/internal/view"
	"github.com/triagekit/triage/pkg/protocol"
)

func (m *Model) View() string {
	f := m.coord.Frame()
	m.clampCursors()

	sections := []string{m.header(f)}
	if notes := m.renderNotes(); notes != "" {
		sections = append(sections, notes)
	}
	sections = append(sections,
		m.pane(CreatePane, "New tickets", m.renderCreate(f)),
		m.pane(PendingPane, "Pending", m.renderPending(f)),
		m.pane(AnalyzedPane, "Analyzed", m.renderAnalyzed(f)),
		m.pane(LatestPane, "Latest analysis", m.renderLatest(f)),
		m.help.View(keys),
	)
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m *Model) header(f view.Frame) string {
	status := fmt.Sprintf("%d pending · %d analyzed", f.Pending.Total, f.AnalyzedTotal)
	switch {
	case f.Analyzing:
		status = m.spinner.View() + " analyzing…"
	case f.Loading.Creating:
		status = m.spinner.View() + " creating…"
	case f.Loading.Tickets:
		status = m.spinner.View() + " loading…"
	}
	return titleStyle.Render("triage") + "  " + dimStyle.Render(status)
}

func (m *Model) renderNotes() string {
	list := m.notes.List()
	lines := make([]string, 0, len(list))
	for _, n := range list {
		lines = append(lines, noteStyle(n.Kind).Render(fmt.Sprintf("[%s] %s", n.Kind, n.Message)))
	}
	return strings.Join(lines, "\n")
}

func (m *Model) pane(p Pane, title, body string) string {
	style := paneStyle
	if m.focus == p {
		style = focusedPaneStyle
	}
	if m.width > 0 {
		style = style.Width(m.width - 2)
	}
	return style.Render(titleStyle.Render(title) + "\n" + body)
}

func (m *Model) renderCreate(f view.Frame) string {
	if f.Loading.Creating {
		return m.input.View() + "\n" + dimStyle.Render("creating…")
	}
	return m.input.View()
}

func (m *Model) renderPending(f view.Frame) string {
	lv := f.Pending
	if lv.Total == 0 {
		return dimStyle.Render("No pending tickets")
	}
	var b strings.Builder
	for i, t := range lv.Tickets {
		line := fmt.Sprintf("#%d %s", t.ID, t.Title)
		b.WriteString(m.item(PendingPane, view.PendingList, i, line))
		if contains(f.Expanded, t.ID) {
			b.WriteString("\n    " + dimStyle.Render(t.Description))
		}
		b.WriteString("\n")
	}
	b.WriteString(pageLine(lv, "pending"))
	if f.Analyzing {
		b.WriteString("  " + dimStyle.Render("(analysis in progress)"))
	}
	return b.String()
}

func (m *Model) renderAnalyzed(f view.Frame) string {
	filters := dimStyle.Render(fmt.Sprintf("category: %s  priority: %s", f.CategoryFilter, f.PriorityFilter))
	lv := f.Analyzed
	if lv.Total == 0 {
		if f.AnalyzedTotal == 0 {
			return dimStyle.Render("No analyzed tickets")
		}
		return filters + "\n" + dimStyle.Render("No tickets match the filters")
	}

	var b strings.Builder
	b.WriteString(filters + "\n")
	for i, t := range lv.Tickets {
		tag := priorityStyle(t.Priority).Render(fmt.Sprintf("[%s/%s]", t.Category, t.Priority))
		b.WriteString(m.item(AnalyzedPane, view.AnalyzedList, i, fmt.Sprintf("#%d %s %s", t.ID, tag, t.Title)))
		if contains(f.Expanded, t.ID) {
			b.WriteString("\n    " + dimStyle.Render(t.Description))
			if t.Notes != "" {
				b.WriteString("\n    " + dimStyle.Render("notes: "+t.Notes))
			}
		}
		b.WriteString("\n")
	}
	b.WriteString(pageLine(lv, "analyzed"))
	return b.String()
}

func (m *Model) renderLatest(f view.Frame) string {
	run := f.Latest
	if run == nil {
		return dimStyle.Render("No analysis yet")
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Run #%d · %d tickets · %s\n", run.ID, len(run.TicketAnalyses), run.CreatedAt.Local().Format("2006-01-02 15:04"))

	cats := make([]string, 0, len(f.LatestCategories))
	for c := range f.LatestCategories {
		cats = append(cats, c)
	}
	sort.Strings(cats)
	parts := make([]string, 0, len(cats)+len(protocol.Priorities))
	for _, c := range cats {
		parts = append(parts, fmt.Sprintf("%s %d", c, f.LatestCategories[c]))
	}
	for _, p := range protocol.Priorities {
		if n := f.LatestPriorities[p]; n > 0 {
			parts = append(parts, priorityStyle(p).Render(fmt.Sprintf("%s %d", p, n)))
		}
	}
	if len(parts) > 0 {
		b.WriteString(strings.Join(parts, " · ") + "\n")
	}
	if summary := m.md.Render(run.Summary); summary != "" {
		b.WriteString("\n" + summary)
	}
	return strings.TrimRight(b.String(), "\n")
}

func (m *Model) item(p Pane, l view.List, i int, line string) string {
	if m.focus == p && m.cursor[l] == i {
		return selectedStyle.Render("> " + line)
	}
	return "  " + line
}

func pageLine(lv view.ListView, noun string) string {
	s := fmt.Sprintf("Page %d/%d · %d %s", lv.Page, lv.TotalPages, lv.Total, noun)
	return dimStyle.Render(s)
}

func contains(ids []int64, id int64) bool {
	for _, x := range ids {
		if x == id {
			return true
		}
	}
	return false
}
