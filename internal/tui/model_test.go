package tui

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/x/ansi"

	"github.com/triagekit/triage/internal/analysis"
	"github.com/triagekit/triage/internal/notify"
	"github.com/triagekit/triage/internal/session"
	"github.com/triagekit/triage/internal/ticketstore"
	"github.com/triagekit/triage/internal/view"
	"github.com/triagekit/triage/pkg/protocol"
)

// fakeAPI is an in-memory service that marks every analyzed ticket as
// billing/high. A non-nil gate blocks RunAnalysis until it is closed.
type fakeAPI struct {
	mu      sync.Mutex
	tickets []protocol.Ticket
	runs    int64
	gate    chan struct{}
	entered chan struct{}
}

func (f *fakeAPI) CreateTickets(_ context.Context, records []protocol.TicketCreate) ([]protocol.Ticket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []protocol.Ticket
	for _, r := range records {
		t := protocol.Ticket{ID: int64(len(f.tickets) + 1), Title: r.Title, Description: r.Description, Status: protocol.TicketPending}
		f.tickets = append(f.tickets, t)
		out = append(out, t)
	}
	return out, nil
}

func (f *fakeAPI) ListTickets(context.Context) ([]protocol.Ticket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]protocol.Ticket(nil), f.tickets...), nil
}

func (f *fakeAPI) RunAnalysis(_ context.Context, req protocol.AnalysisRequest) (*protocol.AnalysisRun, error) {
	if f.gate != nil {
		close(f.entered)
		<-f.gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs++
	run := &protocol.AnalysisRun{ID: f.runs, Summary: "## Done\n\n- billing: all", CreatedAt: time.Now()}
	for i := range f.tickets {
		t := &f.tickets[i]
		if t.IsAnalyzed() || (len(req.TicketIDs) > 0 && !containsID(req.TicketIDs, t.ID)) {
			continue
		}
		t.Status, t.Category, t.Priority, t.Notes = protocol.TicketAnalyzed, "billing", protocol.PriorityHigh, "refund"
		run.TicketAnalyses = append(run.TicketAnalyses, protocol.TicketAnalysis{
			TicketID: t.ID, Category: t.Category, Priority: t.Priority, Notes: t.Notes,
		})
	}
	return run, nil
}

func (f *fakeAPI) LatestAnalysis(context.Context) (*protocol.AnalysisRun, error) {
	return nil, nil
}

func containsID(ids []int64, id int64) bool {
	for _, x := range ids {
		if x == id {
			return true
		}
	}
	return false
}

type harness struct {
	api   *fakeAPI
	sess  *session.Session
	notes *notify.Queue
	model *Model
}

func newHarness(t *testing.T, seed int) *harness {
	t.Helper()
	api := &fakeAPI{}
	for i := 1; i <= seed; i++ {
		api.CreateTickets(context.Background(), []protocol.TicketCreate{{Title: fmt.Sprintf("Ticket %d", i), Description: fmt.Sprintf("desc %d", i)}})
	}
	notes := notify.New(notify.WithDefaultDuration(time.Minute))
	t.Cleanup(notes.Close)

	tickets := ticketstore.New(api, nil)
	runs := analysis.New(api, tickets, nil)
	sess := session.New(tickets, runs, notes, nil)
	coord := view.New(tickets, runs, sess)
	m := NewModel(context.Background(), sess, coord, notes, nil)

	if err := sess.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	return &harness{api: api, sess: sess, notes: notes, model: m}
}

func (h *harness) press(k tea.KeyMsg) tea.Cmd {
	_, cmd := h.model.Update(k)
	return cmd
}

// exec runs a command synchronously and feeds its message back.
func (h *harness) exec(t *testing.T, cmd tea.Cmd) {
	t.Helper()
	if cmd == nil {
		t.Fatal("expected a command")
	}
	msg := cmd()
	if _, ok := msg.(opDoneMsg); !ok {
		t.Fatalf("unexpected message %T", msg)
	}
	h.model.Update(msg)
}

func (h *harness) screen() string {
	return ansi.Strip(h.model.View())
}

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

var tab = tea.KeyMsg{Type: tea.KeyTab}

func TestInitialScreen(t *testing.T) {
	h := newHarness(t, 2)
	out := h.screen()
	for _, want := range []string{"2 pending · 0 analyzed", "#1 Ticket 1", "#2 Ticket 2", "Page 1/1 · 2 pending", "No analyzed tickets", "No analysis yet"} {
		if !strings.Contains(out, want) {
			t.Errorf("screen missing %q:\n%s", want, out)
		}
	}
}

func TestCreateFromInput(t *testing.T) {
	h := newHarness(t, 0)
	if h.model.Focus() != CreatePane {
		t.Fatalf("focus = %v", h.model.Focus())
	}
	h.model.input.SetValue("Refund|Charged twice\nLogin|Cannot sign in")

	h.exec(t, h.press(tea.KeyMsg{Type: tea.KeyCtrlS}))

	if h.model.input.Value() != "" {
		t.Error("input should be cleared after submit")
	}
	out := h.screen()
	for _, want := range []string{"[success] Created 2 tickets", "#1 Refund", "#2 Login"} {
		if !strings.Contains(out, want) {
			t.Errorf("screen missing %q:\n%s", want, out)
		}
	}
}

func TestSubmitEmptyInputWarns(t *testing.T) {
	h := newHarness(t, 0)
	h.exec(t, h.press(tea.KeyMsg{Type: tea.KeyCtrlS}))
	if !strings.Contains(h.screen(), "[warning] "+session.MsgNoValidTickets) {
		t.Errorf("expected warning:\n%s", h.screen())
	}
}

func TestTypingStaysInInput(t *testing.T) {
	h := newHarness(t, 1)
	if cmd := h.press(runes("q")); cmd != nil {
		if _, quit := cmd().(tea.QuitMsg); quit {
			t.Fatal("q must not quit while typing")
		}
	}
	if h.model.input.Value() != "q" {
		t.Errorf("input = %q", h.model.input.Value())
	}

	h.press(tab)
	cmd := h.press(runes("q"))
	if cmd == nil {
		t.Fatal("expected quit command")
	}
	if _, quit := cmd().(tea.QuitMsg); !quit {
		t.Error("q should quit outside the input")
	}
}

func TestAnalyzeSelected(t *testing.T) {
	h := newHarness(t, 3)
	h.press(tab) // pending
	h.press(runes("j"))

	h.exec(t, h.press(runes("x")))

	out := h.screen()
	if !strings.Contains(out, "#2 [billing/high] Ticket 2") {
		t.Errorf("ticket 2 should be analyzed:\n%s", out)
	}
	if !strings.Contains(out, "2 pending · 1 analyzed") {
		t.Errorf("unexpected counts:\n%s", out)
	}
	if !strings.Contains(out, "Run #1 · 1 tickets") || !strings.Contains(out, "billing 1") {
		t.Errorf("latest run missing:\n%s", out)
	}
}

func TestAnalyzeDisabledWhileRunning(t *testing.T) {
	h := newHarness(t, 1)
	h.api.gate = make(chan struct{})
	h.api.entered = make(chan struct{})

	done := make(chan struct{})
	go func() {
		defer close(done)
		h.sess.Analyze(context.Background())
	}()
	<-h.api.entered

	h.press(tab)
	if cmd := h.press(runes("a")); cmd != nil {
		t.Error("analysis trigger should be disabled while a run is in flight")
	}
	if !strings.Contains(h.screen(), "analyzing") {
		t.Errorf("expected analyzing status:\n%s", h.screen())
	}

	close(h.api.gate)
	<-done
	h.api.gate = nil
	if h.press(runes("a")) == nil {
		t.Error("analysis trigger should be enabled again")
	}
}

func TestPagingAndExpand(t *testing.T) {
	h := newHarness(t, 7)
	h.press(tab)

	if !strings.Contains(h.screen(), "Page 1/2 · 7 pending") {
		t.Fatalf("unexpected paging:\n%s", h.screen())
	}
	h.press(runes("l"))
	out := h.screen()
	if !strings.Contains(out, "Page 2/2") || !strings.Contains(out, "#6 Ticket 6") || strings.Contains(out, "#1 Ticket 1") {
		t.Fatalf("second page expected:\n%s", out)
	}

	h.press(tea.KeyMsg{Type: tea.KeyEnter})
	if !strings.Contains(h.screen(), "desc 6") {
		t.Errorf("expanded ticket should show its description:\n%s", h.screen())
	}
	h.press(tea.KeyMsg{Type: tea.KeyEnter})
	if strings.Contains(h.screen(), "desc 6") {
		t.Error("second toggle should collapse")
	}
}

func TestFilters(t *testing.T) {
	h := newHarness(t, 2)
	h.exec(t, h.model.analyze())

	h.press(tab)
	h.press(tab) // analyzed
	h.press(runes("c"))
	if !strings.Contains(h.screen(), "category: billing  priority: all") {
		t.Errorf("category filter not applied:\n%s", h.screen())
	}
	h.press(runes("p"))
	h.press(runes("p")) // high -> medium
	out := h.screen()
	if !strings.Contains(out, "priority: medium") || !strings.Contains(out, "No tickets match the filters") {
		t.Errorf("priority filter not applied:\n%s", out)
	}
	h.press(runes("f"))
	if !strings.Contains(h.screen(), "category: all  priority: all") {
		t.Errorf("filters not cleared:\n%s", h.screen())
	}
}

func TestDismissNotification(t *testing.T) {
	h := newHarness(t, 0)
	h.notes.Info("hello")
	h.press(tab)
	h.press(runes("d"))
	if h.notes.Len() != 0 {
		t.Errorf("notifications left = %d", h.notes.Len())
	}
}
