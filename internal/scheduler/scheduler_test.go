package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/triagekit/triage/pkg/protocol"
)

type fakeAnalyzer struct {
	mu    sync.Mutex
	calls int
	run   *protocol.AnalysisRun
	err   error
}

func (f *fakeAnalyzer) Run(_ context.Context, ids []int64) (*protocol.AnalysisRun, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if ids != nil {
		return nil, errors.New("scheduled runs must not filter ids")
	}
	return f.run, f.err
}

func (f *fakeAnalyzer) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeNotifier struct {
	mu   sync.Mutex
	runs []int64
	err  error
}

func (n *fakeNotifier) NotifyRun(_ context.Context, run *protocol.AnalysisRun) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.runs = append(n.runs, run.ID)
	return n.err
}

func runWith(n int) *protocol.AnalysisRun {
	run := &protocol.AnalysisRun{ID: 7, Summary: "done"}
	for i := 0; i < n; i++ {
		run.TicketAnalyses = append(run.TicketAnalyses, protocol.TicketAnalysis{TicketID: int64(i + 1), Category: "bug"})
	}
	return run
}

func TestAddJobFires(t *testing.T) {
	a := &fakeAnalyzer{run: runWith(1)}
	n := &fakeNotifier{}
	sched := New(a, n, nil)

	if err := sched.AddJob("nightly", "@every 1s"); err != nil {
		t.Fatalf("AddJob: %v", err)
	}
	if sched.JobCount() != 1 {
		t.Errorf("JobCount = %d", sched.JobCount())
	}

	// Start cron and wait for it to fire
	sched.cron.Start()
	time.Sleep(1500 * time.Millisecond)
	<-sched.cron.Stop().Done()

	if a.Calls() == 0 {
		t.Error("expected at least one analysis run")
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.runs) == 0 || n.runs[0] != 7 {
		t.Errorf("notified runs = %v", n.runs)
	}
}

func TestInvalidSchedule(t *testing.T) {
	sched := New(&fakeAnalyzer{}, nil, nil)
	if err := sched.AddJob("bad", "invalid-cron"); err == nil {
		t.Error("expected error for invalid schedule")
	}
	if sched.JobCount() != 0 {
		t.Errorf("JobCount = %d after failed add", sched.JobCount())
	}
}

func TestAddJobReplacesByName(t *testing.T) {
	sched := New(&fakeAnalyzer{}, nil, nil)
	sched.AddJob("nightly", "@every 1h")
	sched.AddJob("nightly", "@every 2h")
	sched.AddJob("hourly", "@hourly")

	if sched.JobCount() != 2 {
		t.Fatalf("JobCount = %d", sched.JobCount())
	}
	if len(sched.cron.Entries()) != 2 {
		t.Errorf("cron entries = %d", len(sched.cron.Entries()))
	}
	names := sched.Jobs()
	if len(names) != 2 || names[0] != "hourly" || names[1] != "nightly" {
		t.Errorf("Jobs = %v", names)
	}
}

func TestRemoveJob(t *testing.T) {
	sched := New(&fakeAnalyzer{}, nil, nil)
	sched.AddJob("nightly", "@every 1h")
	sched.RemoveJob("nightly")
	sched.RemoveJob("missing")

	if sched.JobCount() != 0 {
		t.Errorf("JobCount = %d after remove", sched.JobCount())
	}
}

func TestTriggerSkipsNotifyWhenEmpty(t *testing.T) {
	n := &fakeNotifier{}
	sched := New(&fakeAnalyzer{run: runWith(0)}, n, nil)

	run, err := sched.Trigger(context.Background())
	if err != nil {
		t.Fatalf("Trigger: %v", err)
	}
	if run.ID != 7 {
		t.Errorf("run = %+v", run)
	}
	if len(n.runs) != 0 {
		t.Errorf("notifier called for an empty run: %v", n.runs)
	}
}

func TestTriggerReportsAnalysisError(t *testing.T) {
	n := &fakeNotifier{}
	sched := New(&fakeAnalyzer{err: errors.New("db locked")}, n, nil)

	if _, err := sched.Trigger(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if len(n.runs) != 0 {
		t.Error("notifier called after a failed run")
	}
}

func TestTriggerIgnoresNotifierError(t *testing.T) {
	n := &fakeNotifier{err: errors.New("slack down")}
	sched := New(&fakeAnalyzer{run: runWith(2)}, n, nil)

	run, err := sched.Trigger(context.Background())
	if err != nil {
		t.Fatalf("Trigger: %v", err)
	}
	if len(run.TicketAnalyses) != 2 || len(n.runs) != 1 {
		t.Errorf("run = %+v, notified = %v", run, n.runs)
	}
}

func TestStartStopsOnCancel(t *testing.T) {
	sched := New(&fakeAnalyzer{}, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sched.Start(ctx) }()

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Start returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return after cancel")
	}
}
