package analysis

import (
	"context"
	"errors"
	"testing"

	"github.com/triagekit/triage/pkg/protocol"
)

type fakeAPI struct {
	run       *protocol.AnalysisRun
	runErr    error
	latest    *protocol.AnalysisRun
	latestErr error
	gotReq    protocol.AnalysisRequest
	block     chan struct{}
	entered   chan struct{}
}

func (f *fakeAPI) RunAnalysis(_ context.Context, req protocol.AnalysisRequest) (*protocol.AnalysisRun, error) {
	f.gotReq = req
	if f.block != nil {
		f.entered <- struct{}{}
		<-f.block
	}
	return f.run, f.runErr
}

func (f *fakeAPI) LatestAnalysis(_ context.Context) (*protocol.AnalysisRun, error) {
	if f.block != nil {
		f.entered <- struct{}{}
		<-f.block
	}
	return f.latest, f.latestErr
}

type recordingApplier struct {
	runs []*protocol.AnalysisRun
}

func (a *recordingApplier) ApplyAnalysis(run *protocol.AnalysisRun) {
	a.runs = append(a.runs, run)
}

func TestRunAppliesAndSetsLatest(t *testing.T) {
	run := &protocol.AnalysisRun{ID: 7, Summary: "ok", TicketAnalyses: []protocol.TicketAnalysis{{TicketID: 1}}}
	api := &fakeAPI{run: run}
	app := &recordingApplier{}
	r := New(api, app, nil)

	got, err := r.Run(context.Background(), 1, 2)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if got != run || r.Latest() != run {
		t.Errorf("latest not set to returned run")
	}
	if len(app.runs) != 1 || app.runs[0] != run {
		t.Errorf("expected run applied once, got %d", len(app.runs))
	}
	if len(api.gotReq.TicketIDs) != 2 {
		t.Errorf("expected ticket ids forwarded, got %v", api.gotReq.TicketIDs)
	}
	if r.Running() {
		t.Error("running flag not cleared")
	}
}

// latestAtApply records what Latest reported while the run was applied.
type latestAtApply struct {
	r    *Reconciler
	seen []*protocol.AnalysisRun
}

func (a *latestAtApply) ApplyAnalysis(*protocol.AnalysisRun) {
	a.seen = append(a.seen, a.r.Latest())
}

func TestRunAppliesBeforePublishing(t *testing.T) {
	run := &protocol.AnalysisRun{ID: 3, TicketAnalyses: []protocol.TicketAnalysis{{TicketID: 1}}}
	app := &latestAtApply{}
	r := New(&fakeAPI{run: run}, app, nil)
	app.r = r

	if _, err := r.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(app.seen) != 1 || app.seen[0] != nil {
		t.Errorf("Latest during apply = %v, want nil", app.seen)
	}
	if r.Latest() != run {
		t.Error("latest not published after apply")
	}
}

func TestRunWithoutIDsSendsEmptyRequest(t *testing.T) {
	api := &fakeAPI{run: &protocol.AnalysisRun{ID: 1}}
	r := New(api, &recordingApplier{}, nil)
	if _, err := r.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if api.gotReq.TicketIDs != nil {
		t.Errorf("expected nil ticket ids, got %v", api.gotReq.TicketIDs)
	}
}

func TestRunFailureLeavesStateUnchanged(t *testing.T) {
	prev := &protocol.AnalysisRun{ID: 1}
	api := &fakeAPI{latest: prev}
	app := &recordingApplier{}
	r := New(api, app, nil)
	r.LoadLatest(context.Background())

	api.runErr = errors.New("timeout")
	_, err := r.Run(context.Background())
	if !errors.Is(err, ErrAnalysisFailed) {
		t.Fatalf("expected ErrAnalysisFailed, got %v", err)
	}
	if r.Latest() != prev {
		t.Error("latest changed after failed run")
	}
	if len(app.runs) != 0 {
		t.Error("failed run was applied")
	}
	if r.Running() {
		t.Error("running flag not cleared after failure")
	}
}

func TestConcurrentRunFailsFast(t *testing.T) {
	api := &fakeAPI{
		run:     &protocol.AnalysisRun{ID: 3},
		block:   make(chan struct{}),
		entered: make(chan struct{}, 1),
	}
	r := New(api, &recordingApplier{}, nil)

	done := make(chan error, 1)
	go func() {
		_, err := r.Run(context.Background())
		done <- err
	}()
	<-api.entered

	if !r.Running() {
		t.Error("expected Running while first run is in flight")
	}
	if _, err := r.Run(context.Background()); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("expected ErrAlreadyRunning, got %v", err)
	}

	close(api.block)
	if err := <-done; err != nil {
		t.Fatalf("first run: %v", err)
	}
}

func TestLoadLatestAbsent(t *testing.T) {
	r := New(&fakeAPI{}, &recordingApplier{}, nil)
	run, err := r.LoadLatest(context.Background())
	if err != nil || run != nil {
		t.Fatalf("expected nil, nil; got %v, %v", run, err)
	}
	if r.Latest() != nil {
		t.Error("latest should stay nil")
	}
}

func TestLoadLatestError(t *testing.T) {
	r := New(&fakeAPI{latestErr: errors.New("503")}, &recordingApplier{}, nil)
	if _, err := r.LoadLatest(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if r.Latest() != nil {
		t.Error("latest should stay nil")
	}
}

func TestLoadLatestDoesNotApply(t *testing.T) {
	app := &recordingApplier{}
	r := New(&fakeAPI{latest: &protocol.AnalysisRun{ID: 4}}, app, nil)
	run, err := r.LoadLatest(context.Background())
	if err != nil || run == nil || run.ID != 4 {
		t.Fatalf("unexpected result %v, %v", run, err)
	}
	if len(app.runs) != 0 {
		t.Error("LoadLatest must not apply to the ticket store")
	}
}

func TestLoadLatestSupersededByRun(t *testing.T) {
	loadAPI := &fakeAPI{
		latest:  &protocol.AnalysisRun{ID: 1},
		block:   make(chan struct{}),
		entered: make(chan struct{}, 1),
	}
	r := New(loadAPI, &recordingApplier{}, nil)

	done := make(chan struct{})
	go func() {
		r.LoadLatest(context.Background())
		close(done)
	}()
	<-loadAPI.entered

	// Complete a run against a non-blocking API while the load is pending.
	fresh := &protocol.AnalysisRun{ID: 2}
	r.api = &fakeAPI{run: fresh}
	if _, err := r.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	close(loadAPI.block)
	<-done

	if r.Latest() != fresh {
		t.Errorf("older latest overwrote newer run: %+v", r.Latest())
	}
}
