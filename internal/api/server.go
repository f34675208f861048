// Package api is the REST surface of the triage server.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/triagekit/triage/internal/logbuf"
	"github.com/triagekit/triage/internal/metrics"
	"github.com/triagekit/triage/internal/ticket"
	"github.com/triagekit/triage/pkg/protocol"
)

const (
	maxTitleLen  = 255
	maxBodyBytes = 1 << 20
)

// LogQuerier abstracts log entry querying to avoid coupling to logbuf directly.
type LogQuerier interface {
	Query(q logbuf.Query) []logbuf.Entry
}

// Analyzer runs an analysis over pending tickets.
type Analyzer interface {
	Run(ctx context.Context, ids []int64) (*protocol.AnalysisRun, error)
}

// RunNotifier is told about every completed run.
type RunNotifier interface {
	NotifyRun(ctx context.Context, run *protocol.AnalysisRun) error
}

// Config holds API server configuration.
type Config struct {
	Host string
	Port int
	Key  string // API key for Bearer auth
}

// Option configures a Server.
type Option func(*Server)

// WithLogs exposes log entries on /api/logs.
func WithLogs(logs LogQuerier) Option {
	return func(s *Server) { s.logs = logs }
}

// WithRunNotifier forwards completed runs to n in the background.
func WithRunNotifier(n RunNotifier) Option {
	return func(s *Server) { s.notifier = n }
}

// Server is the triage REST API server.
type Server struct {
	store    ticket.Store
	analyzer Analyzer
	cfg      Config
	logger   *slog.Logger
	logs     LogQuerier
	notifier RunNotifier
	srv      *http.Server
}

// NewServer creates a new API server.
func NewServer(store ticket.Store, analyzer Analyzer, cfg Config, logger *slog.Logger, opts ...Option) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		store:    store,
		analyzer: analyzer,
		cfg:      cfg,
		logger:   logger.With("component", "api"),
	}
	for _, o := range opts {
		o(s)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /api/tickets", s.requireAuth(s.handleListTickets))
	mux.HandleFunc("GET /api/tickets/{$}", s.requireAuth(s.handleListTickets))
	mux.HandleFunc("POST /api/tickets", s.requireAuth(s.handleCreateTickets))
	mux.HandleFunc("POST /api/tickets/{$}", s.requireAuth(s.handleCreateTickets))
	mux.HandleFunc("GET /api/tickets/{id}", s.requireAuth(s.handleGetTicket))
	mux.HandleFunc("POST /api/analysis", s.requireAuth(s.handleRunAnalysis))
	mux.HandleFunc("POST /api/analysis/{$}", s.requireAuth(s.handleRunAnalysis))
	mux.HandleFunc("GET /api/analysis/latest", s.requireAuth(s.handleLatestAnalysis))
	mux.HandleFunc("GET /api/analysis/{id}", s.requireAuth(s.handleGetAnalysis))
	mux.HandleFunc("GET /api/logs", s.requireAuth(s.handleGetLogs))
	mux.Handle("GET /metrics", metrics.Handler())

	s.srv = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:           s.corsMiddleware(s.metricsMiddleware(mux)),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Start begins listening. Blocks until context is cancelled.
func (s *Server) Start(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.srv.Shutdown(shutCtx)
	}()

	s.logger.Info("api server starting", "addr", s.srv.Addr)
	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("api server: %w", err)
	}
	return nil
}

// Handler returns the underlying http.Handler for testing.
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

// --- Middleware ---

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		// The mux records the matched pattern on the request.
		endpoint := r.Pattern
		if endpoint == "" {
			endpoint = "unmatched"
		}
		metrics.APIRequestsTotal.WithLabelValues(r.Method, endpoint, strconv.Itoa(rec.status)).Inc()
		metrics.APIRequestDuration.WithLabelValues(r.Method, endpoint).Observe(time.Since(start).Seconds())
	})
}

func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.Key == "" {
			next(w, r)
			return
		}
		auth := r.Header.Get("Authorization")
		if !strings.HasPrefix(auth, "Bearer ") || strings.TrimPrefix(auth, "Bearer ") != s.cfg.Key {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next(w, r)
	}
}

// --- Handlers ---

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListTickets(w http.ResponseWriter, r *http.Request) {
	filter := ticket.Filter{}
	if status := r.URL.Query().Get("status"); status != "" {
		ts := protocol.TicketStatus(status)
		if !ts.Valid() {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid status %q", status))
			return
		}
		filter.Status = &ts
	}
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		n, err := strconv.Atoi(limitStr)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid limit %q", limitStr))
			return
		}
		filter.Limit = n
	}

	tickets, err := s.store.ListTickets(r.Context(), filter)
	if err != nil {
		s.logger.Error("list tickets failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list tickets")
		return
	}
	writeJSON(w, http.StatusOK, tickets)
}

func (s *Server) handleGetTicket(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	t, err := s.store.GetTicket(r.Context(), id)
	if errors.Is(err, ticket.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Ticket not found")
		return
	}
	if err != nil {
		s.logger.Error("get ticket failed", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load ticket")
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) handleCreateTickets(w http.ResponseWriter, r *http.Request) {
	var req protocol.CreateTicketsRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if msg := validateCreate(&req); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	created, err := s.store.CreateTickets(r.Context(), req.Tickets)
	if err != nil {
		s.logger.Error("create tickets failed", "count", len(req.Tickets), "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create tickets")
		return
	}
	metrics.TicketsCreatedTotal.Add(float64(len(created)))
	s.logger.Info("tickets created", "count", len(created))
	writeJSON(w, http.StatusOK, created)
}

// validateCreate trims the records in place and returns a message describing
// the first problem, or "" when the request is valid.
func validateCreate(req *protocol.CreateTicketsRequest) string {
	if len(req.Tickets) == 0 {
		return "at least one ticket is required"
	}
	for i := range req.Tickets {
		t := &req.Tickets[i]
		t.Title = strings.TrimSpace(t.Title)
		t.Description = strings.TrimSpace(t.Description)
		if t.Title == "" {
			return fmt.Sprintf("tickets[%d]: title is required", i)
		}
		if utf8.RuneCountInString(t.Title) > maxTitleLen {
			return fmt.Sprintf("tickets[%d]: title exceeds %d characters", i, maxTitleLen)
		}
		if t.Description == "" {
			return fmt.Sprintf("tickets[%d]: description is required", i)
		}
	}
	return ""
}

func (s *Server) handleRunAnalysis(w http.ResponseWriter, r *http.Request) {
	var req protocol.AnalysisRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON")
			return
		}
	}

	// A run is not aborted when the client goes away.
	run, err := s.analyzer.Run(context.WithoutCancel(r.Context()), req.TicketIDs)
	if err != nil {
		s.logger.Error("analysis failed", "error", err)
		writeError(w, http.StatusInternalServerError, "analysis failed")
		return
	}
	if s.notifier != nil && len(run.TicketAnalyses) > 0 {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := s.notifier.NotifyRun(ctx, run); err != nil {
				s.logger.Warn("run notification failed", "run", run.ID, "error", err)
			}
		}()
	}
	writeJSON(w, http.StatusOK, run)
}

func (s *Server) handleLatestAnalysis(w http.ResponseWriter, r *http.Request) {
	run, err := s.store.LatestRun(r.Context())
	if errors.Is(err, ticket.ErrNotFound) {
		writeError(w, http.StatusNotFound, "No analysis runs found")
		return
	}
	if err != nil {
		s.logger.Error("latest analysis failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load analysis")
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (s *Server) handleGetAnalysis(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	run, err := s.store.GetRun(r.Context(), id)
	if errors.Is(err, ticket.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Analysis run not found")
		return
	}
	if err != nil {
		s.logger.Error("get analysis failed", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load analysis")
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (s *Server) handleGetLogs(w http.ResponseWriter, r *http.Request) {
	if s.logs == nil {
		writeJSON(w, http.StatusOK, []logbuf.Entry{})
		return
	}

	q := logbuf.Query{
		MinLevel:  slog.LevelDebug,
		Limit:     200,
		Component: r.URL.Query().Get("component"),
		Contains:  r.URL.Query().Get("q"),
	}
	if l := r.URL.Query().Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 {
			q.Limit = n
		}
	}
	if lvl := r.URL.Query().Get("level"); lvl != "" {
		q.MinLevel = logbuf.ParseLevel(lvl)
	}
	if since := r.URL.Query().Get("since"); since != "" {
		if ms, err := strconv.ParseInt(since, 10, 64); err == nil {
			q.Since = time.UnixMilli(ms)
		}
	}

	writeJSON(w, http.StatusOK, s.logs.Query(q))
}

// --- Helpers ---

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid id")
		return 0, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, protocol.ErrorResponse{Detail: detail})
}
