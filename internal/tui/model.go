// Package tui is the terminal dashboard: a ticket entry pane, the pending
// and analyzed lists, and the latest analysis run.
package tui

import (
	"context"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/triagekit/triage/internal/markdown"
	"github.com/triagekit/triage/internal/notify"
	"github.com/triagekit/triage/internal/view"
	"github.com/triagekit/triage/pkg/protocol"
)

// Pane identifies a focusable area of the screen.
type Pane int

const (
	CreatePane Pane = iota
	PendingPane
	AnalyzedPane
	LatestPane
	paneCount
)

// Actions are the user operations the dashboard triggers.
// *session.Session satisfies it.
type Actions interface {
	Start(ctx context.Context) error
	Refresh(ctx context.Context) error
	SubmitText(ctx context.Context, text string) ([]protocol.Ticket, error)
	Analyze(ctx context.Context, ids ...int64) (*protocol.AnalysisRun, error)
}

// Notes lists and dismisses notifications. *notify.Queue satisfies it.
type Notes interface {
	List() []notify.Notification
	Dismiss(id string)
}

// opDoneMsg reports that a background operation returned. Failures have
// already been turned into notifications.
type opDoneMsg struct {
	op  string
	err error
}

// notesChangedMsg is sent when the notification queue changes.
type notesChangedMsg struct{}

// Model is the bubbletea model for the dashboard.
type Model struct {
	ctx     context.Context
	actions Actions
	coord   *view.Coordinator
	notes   Notes
	changes <-chan struct{}

	input   textarea.Model
	spinner spinner.Model
	help    help.Model
	md      *markdown.Renderer

	focus  Pane
	cursor [2]int // per list, index within the visible page
	width  int
	height int
}

// NewModel creates the dashboard. changes receives a value whenever the
// notification queue changes; it may be nil.
func NewModel(ctx context.Context, actions Actions, coord *view.Coordinator, notes Notes, changes <-chan struct{}) *Model {
	ta := textarea.New()
	ta.Placeholder = "Title|Description, one ticket per line"
	ta.ShowLineNumbers = false
	ta.SetHeight(4)
	ta.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	return &Model{
		ctx:     ctx,
		actions: actions,
		coord:   coord,
		notes:   notes,
		changes: changes,
		input:   ta,
		spinner: sp,
		help:    help.New(),
		md:      markdown.New(markdown.DefaultWidth, markdown.DefaultStyles()),
		focus:   CreatePane,
	}
}

// Focus returns the focused pane.
func (m *Model) Focus() Pane { return m.focus }

func (m *Model) Init() tea.Cmd {
	return tea.Batch(
		textarea.Blink,
		m.spinner.Tick,
		m.run("start", func(ctx context.Context) error { return m.actions.Start(ctx) }),
		m.waitForChange(),
	)
}

// run executes fn off the UI goroutine.
func (m *Model) run(op string, fn func(ctx context.Context) error) tea.Cmd {
	ctx := m.ctx
	return func() tea.Msg {
		return opDoneMsg{op: op, err: fn(ctx)}
	}
}

func (m *Model) waitForChange() tea.Cmd {
	if m.changes == nil {
		return nil
	}
	ch := m.changes
	return func() tea.Msg {
		if _, ok := <-ch; !ok {
			return nil
		}
		return notesChangedMsg{}
	}
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.input.SetWidth(max(msg.Width-6, 20))
		m.md = markdown.New(max(msg.Width-6, 20), markdown.DefaultStyles())
		m.help.Width = msg.Width
		return m, nil

	case notesChangedMsg:
		return m, m.waitForChange()

	case opDoneMsg:
		m.clampCursors()
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		return m, m.handleKey(msg)
	}

	if m.focus == CreatePane {
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *Model) handleKey(msg tea.KeyMsg) tea.Cmd {
	switch {
	case msg.Type == tea.KeyCtrlC:
		return tea.Quit
	case key.Matches(msg, keys.NextPane):
		m.setFocus((m.focus + 1) % paneCount)
		return nil
	case m.focus == CreatePane && msg.Type == tea.KeyEsc:
		m.setFocus(PendingPane)
		return nil
	case key.Matches(msg, keys.Submit):
		return m.submit()
	}

	// Everything else is text while the entry pane has focus.
	if m.focus == CreatePane {
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return cmd
	}

	switch {
	case key.Matches(msg, keys.Quit):
		return tea.Quit
	case key.Matches(msg, keys.Up):
		m.moveCursor(-1)
	case key.Matches(msg, keys.Down):
		m.moveCursor(1)
	case key.Matches(msg, keys.NextPage):
		if l, ok := m.focusedList(); ok {
			m.coord.NextPage(l)
			m.cursor[l] = 0
		}
	case key.Matches(msg, keys.PrevPage):
		if l, ok := m.focusedList(); ok {
			m.coord.PrevPage(l)
			m.cursor[l] = 0
		}
	case key.Matches(msg, keys.Expand):
		if t, ok := m.selected(); ok {
			m.coord.ToggleExpanded(t.ID)
		}
	case key.Matches(msg, keys.AnalyzeAll):
		return m.analyze()
	case key.Matches(msg, keys.AnalyzeOne):
		if t, ok := m.selected(); ok && m.focus == PendingPane {
			return m.analyze(t.ID)
		}
	case key.Matches(msg, keys.Category):
		m.cycleCategory()
	case key.Matches(msg, keys.Priority):
		m.cyclePriority()
	case key.Matches(msg, keys.Clear):
		m.coord.ClearFilters()
	case key.Matches(msg, keys.Refresh):
		return m.run("refresh", func(ctx context.Context) error { return m.actions.Refresh(ctx) })
	case key.Matches(msg, keys.Dismiss):
		if list := m.notes.List(); len(list) > 0 {
			m.notes.Dismiss(list[0].ID)
		}
	}
	return nil
}

func (m *Model) setFocus(p Pane) {
	m.focus = p
	if p == CreatePane {
		m.input.Focus()
	} else {
		m.input.Blur()
	}
}

func (m *Model) submit() tea.Cmd {
	text := m.input.Value()
	if m.coord.Frame().Loading.Creating {
		return nil
	}
	m.input.Reset()
	return m.run("create", func(ctx context.Context) error {
		_, err := m.actions.SubmitText(ctx, text)
		return err
	})
}

// analyze starts a run unless one is already in flight.
func (m *Model) analyze(ids ...int64) tea.Cmd {
	if m.coord.Frame().Analyzing {
		return nil
	}
	return m.run("analyze", func(ctx context.Context) error {
		_, err := m.actions.Analyze(ctx, ids...)
		return err
	})
}

func (m *Model) focusedList() (view.List, bool) {
	switch m.focus {
	case PendingPane:
		return view.PendingList, true
	case AnalyzedPane:
		return view.AnalyzedList, true
	}
	return 0, false
}

func (m *Model) visible(l view.List) []protocol.Ticket {
	f := m.coord.Frame()
	if l == view.PendingList {
		return f.Pending.Tickets
	}
	return f.Analyzed.Tickets
}

func (m *Model) selected() (protocol.Ticket, bool) {
	l, ok := m.focusedList()
	if !ok {
		return protocol.Ticket{}, false
	}
	tickets := m.visible(l)
	if len(tickets) == 0 {
		return protocol.Ticket{}, false
	}
	return tickets[min(m.cursor[l], len(tickets)-1)], true
}

func (m *Model) moveCursor(delta int) {
	l, ok := m.focusedList()
	if !ok {
		return
	}
	n := len(m.visible(l))
	c := m.cursor[l] + delta
	if c >= n {
		c = n - 1
	}
	if c < 0 {
		c = 0
	}
	m.cursor[l] = c
}

func (m *Model) clampCursors() {
	for _, l := range []view.List{view.PendingList, view.AnalyzedList} {
		if n := len(m.visible(l)); m.cursor[l] >= n {
			m.cursor[l] = max(n-1, 0)
		}
	}
}

// cycleCategory steps the category filter through all and each known
// category.
func (m *Model) cycleCategory() {
	f := m.coord.Frame()
	options := append([]string{view.All}, f.Categories...)
	m.coord.SetCategoryFilter(next(options, f.CategoryFilter))
	m.cursor[view.AnalyzedList] = 0
}

func (m *Model) cyclePriority() {
	options := []string{view.All}
	for _, p := range protocol.Priorities {
		options = append(options, string(p))
	}
	_, current := m.coord.Filters()
	m.coord.SetPriorityFilter(next(options, current))
	m.cursor[view.AnalyzedList] = 0
}

func next(options []string, current string) string {
	for i, o := range options {
		if o == current {
			return options[(i+1)%len(options)]
		}
	}
	return options[0]
}
