package ticket

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/triagekit/triage/pkg/protocol"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteStore opens (or creates) a SQLite database and runs migrations.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	// Pragmas in the DSN apply to every pooled connection.
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("ticket store: open: %w", err)
	}

	// Enable WAL mode for better concurrent reads
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("ticket store: wal: %w", err)
	}

	s := &SQLiteStore{db: db, now: func() time.Time { return time.Now().UTC() }}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS tickets (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			title       TEXT NOT NULL,
			description TEXT NOT NULL,
			status      TEXT NOT NULL DEFAULT 'pending',
			category    TEXT NOT NULL DEFAULT '',
			priority    TEXT NOT NULL DEFAULT '',
			notes       TEXT NOT NULL DEFAULT '',
			created_at  TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS analysis_runs (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			summary    TEXT NOT NULL DEFAULT '',
			completed  INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS ticket_analyses (
			id              INTEGER PRIMARY KEY AUTOINCREMENT,
			analysis_run_id INTEGER NOT NULL REFERENCES analysis_runs(id),
			ticket_id       INTEGER NOT NULL REFERENCES tickets(id),
			category        TEXT NOT NULL,
			priority        TEXT NOT NULL,
			notes           TEXT NOT NULL DEFAULT '',
			created_at      TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_tickets_status ON tickets(status);
		CREATE INDEX IF NOT EXISTS idx_analyses_run ON ticket_analyses(analysis_run_id);
		CREATE INDEX IF NOT EXISTS idx_analyses_ticket ON ticket_analyses(ticket_id);
	`)
	if err != nil {
		return fmt.Errorf("ticket store: migrate: %w", err)
	}
	return nil
}

func (s *SQLiteStore) CreateTickets(ctx context.Context, records []protocol.TicketCreate) ([]protocol.Ticket, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("ticket store: create: begin: %w", err)
	}
	defer tx.Rollback()

	now := s.now()
	out := make([]protocol.Ticket, 0, len(records))
	for _, r := range records {
		res, err := tx.ExecContext(ctx,
			`INSERT INTO tickets (title, description, status, created_at) VALUES (?, ?, ?, ?)`,
			r.Title, r.Description, string(protocol.TicketPending), formatTime(now))
		if err != nil {
			return nil, fmt.Errorf("ticket store: create: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return nil, fmt.Errorf("ticket store: create: id: %w", err)
		}
		out = append(out, protocol.Ticket{
			ID:          id,
			Title:       r.Title,
			Description: r.Description,
			Status:      protocol.TicketPending,
			CreatedAt:   now,
		})
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("ticket store: create: commit: %w", err)
	}
	return out, nil
}

func (s *SQLiteStore) GetTicket(ctx context.Context, id int64) (*protocol.Ticket, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE id = ?`, id)
	t, err := scanTicket(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("ticket %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("ticket store: get: %w", err)
	}
	return t, nil
}

func (s *SQLiteStore) ListTickets(ctx context.Context, filter Filter) ([]protocol.Ticket, error) {
	where, args := filter.where()
	query := `SELECT ` + ticketColumns + ` FROM tickets` + where + ` ORDER BY id`
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ticket store: list: %w", err)
	}
	defer rows.Close()

	tickets := []protocol.Ticket{}
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, fmt.Errorf("ticket store: list scan: %w", err)
		}
		tickets = append(tickets, *t)
	}
	return tickets, rows.Err()
}

func (s *SQLiteStore) CountTickets(ctx context.Context, filter Filter) (int, error) {
	where, args := filter.where()
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM tickets`+where, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("ticket store: count: %w", err)
	}
	return count, nil
}

func (s *SQLiteStore) CreateRun(ctx context.Context, summary string) (*protocol.AnalysisRun, error) {
	now := s.now()
	res, err := s.db.ExecContext(ctx, `INSERT INTO analysis_runs (summary, created_at) VALUES (?, ?)`,
		summary, formatTime(now))
	if err != nil {
		return nil, fmt.Errorf("ticket store: create run: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("ticket store: create run: id: %w", err)
	}
	return &protocol.AnalysisRun{ID: id, Summary: summary, CreatedAt: now, TicketAnalyses: []protocol.TicketAnalysis{}}, nil
}

func (s *SQLiteStore) CompleteRun(ctx context.Context, runID int64, summary string, analyses []protocol.TicketAnalysis) (*protocol.AnalysisRun, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("ticket store: complete run: begin: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `UPDATE analysis_runs SET summary = ?, completed = 1 WHERE id = ?`, summary, runID)
	if err != nil {
		return nil, fmt.Errorf("ticket store: complete run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, fmt.Errorf("run %d: %w", runID, ErrNotFound)
	}

	now := formatTime(s.now())
	for _, a := range analyses {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO ticket_analyses (analysis_run_id, ticket_id, category, priority, notes, created_at)
			VALUES (?, ?, ?, ?, ?, ?)`,
			runID, a.TicketID, a.Category, string(a.Priority), a.Notes, now); err != nil {
			return nil, fmt.Errorf("ticket store: save analysis for ticket %d: %w", a.TicketID, err)
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE tickets SET status = ?, category = ?, priority = ?, notes = ? WHERE id = ?`,
			string(protocol.TicketAnalyzed), a.Category, string(a.Priority), a.Notes, a.TicketID); err != nil {
			return nil, fmt.Errorf("ticket store: mark ticket %d analyzed: %w", a.TicketID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("ticket store: complete run: commit: %w", err)
	}
	return s.GetRun(ctx, runID)
}

func (s *SQLiteStore) DeleteRun(ctx context.Context, id int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("ticket store: delete run: begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM ticket_analyses WHERE analysis_run_id = ?`, id); err != nil {
		return fmt.Errorf("ticket store: delete run analyses: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM analysis_runs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("ticket store: delete run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("run %d: %w", id, ErrNotFound)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("ticket store: delete run: commit: %w", err)
	}
	return nil
}

func (s *SQLiteStore) LatestRun(ctx context.Context) (*protocol.AnalysisRun, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, `SELECT id FROM analysis_runs WHERE completed = 1 ORDER BY id DESC LIMIT 1`).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("latest run: %w", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("ticket store: latest run: %w", err)
	}
	return s.GetRun(ctx, id)
}

func (s *SQLiteStore) GetRun(ctx context.Context, id int64) (*protocol.AnalysisRun, error) {
	var run protocol.AnalysisRun
	var createdAt string
	err := s.db.QueryRowContext(ctx, `SELECT id, summary, created_at FROM analysis_runs WHERE id = ?`, id).
		Scan(&run.ID, &run.Summary, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("ticket store: get run: %w", err)
	}
	run.CreatedAt = parseTime(createdAt)

	analyses, err := s.loadAnalyses(ctx, id)
	if err != nil {
		return nil, err
	}
	run.TicketAnalyses = analyses
	return &run, nil
}

// DB returns the underlying database connection (for testing or direct access).
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- helpers ---

const ticketColumns = `id, title, description, status, category, priority, notes, created_at`

func (f Filter) where() (string, []any) {
	var clauses []string
	var args []any
	if f.Status != nil {
		clauses = append(clauses, "status = ?")
		args = append(args, string(*f.Status))
	}
	if len(f.IDs) > 0 {
		marks := strings.TrimSuffix(strings.Repeat("?,", len(f.IDs)), ",")
		clauses = append(clauses, "id IN ("+marks+")")
		for _, id := range f.IDs {
			args = append(args, id)
		}
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func (s *SQLiteStore) loadAnalyses(ctx context.Context, runID int64) ([]protocol.TicketAnalysis, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT a.id, a.analysis_run_id, a.ticket_id, a.category, a.priority, a.notes, a.created_at,
		       t.id, t.title, t.description, t.status, t.category, t.priority, t.notes, t.created_at
		FROM ticket_analyses a
		JOIN tickets t ON t.id = a.ticket_id
		WHERE a.analysis_run_id = ?
		ORDER BY a.id`, runID)
	if err != nil {
		return nil, fmt.Errorf("ticket store: load analyses: %w", err)
	}
	defer rows.Close()

	analyses := []protocol.TicketAnalysis{}
	for rows.Next() {
		var a protocol.TicketAnalysis
		var t protocol.Ticket
		var aPriority, aCreated, tStatus, tPriority, tCreated string
		if err := rows.Scan(&a.ID, &a.AnalysisRunID, &a.TicketID, &a.Category, &aPriority, &a.Notes, &aCreated,
			&t.ID, &t.Title, &t.Description, &tStatus, &t.Category, &tPriority, &t.Notes, &tCreated); err != nil {
			return nil, fmt.Errorf("ticket store: scan analysis: %w", err)
		}
		a.Priority = protocol.Priority(aPriority)
		a.CreatedAt = parseTime(aCreated)
		t.Status = protocol.TicketStatus(tStatus)
		t.Priority = protocol.Priority(tPriority)
		t.CreatedAt = parseTime(tCreated)
		a.Ticket = &t
		analyses = append(analyses, a)
	}
	return analyses, rows.Err()
}

type scannable interface {
	Scan(dest ...any) error
}

func scanTicket(s scannable) (*protocol.Ticket, error) {
	var t protocol.Ticket
	var status, priority, createdAt string
	if err := s.Scan(&t.ID, &t.Title, &t.Description, &status, &t.Category, &priority, &t.Notes, &createdAt); err != nil {
		return nil, err
	}
	t.Status = protocol.TicketStatus(status)
	t.Priority = protocol.Priority(priority)
	t.CreatedAt = parseTime(createdAt)
	return &t, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}
