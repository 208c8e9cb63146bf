package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// Store provides SQLite-backed persistence for sessions, responses and
// saved council templates. Safe for concurrent use.
type Store struct {
	db *sql.DB
}

// NewStore opens the SQLite database at dbPath and creates tables if they don't exist.
// The parent directory is created if missing.
func NewStore(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}
	db, err := sql.Open("sqlite3", dbPath+"?_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// A single connection serialises writers from concurrent runs.
	db.SetMaxOpenConns(1)

	if err := createTables(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func createTables(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		prompt TEXT NOT NULL,
		current_prompt TEXT,
		chair_provider TEXT NOT NULL,
		chair_member_id TEXT,
		system_prompt TEXT,
		total_iterations INTEGER NOT NULL,
		current_iteration INTEGER NOT NULL DEFAULT 0,
		merge_template TEXT NOT NULL,
		preset TEXT NOT NULL,
		status TEXT NOT NULL,
		council_members TEXT NOT NULL,
		selected_providers TEXT NOT NULL,
		autopilot INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS responses (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		member_id TEXT,
		provider TEXT NOT NULL,
		model TEXT,
		iteration INTEGER NOT NULL,
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		input_tokens INTEGER DEFAULT 0,
		output_tokens INTEGER DEFAULT 0,
		estimated_cost REAL DEFAULT 0,
		response_time_ms INTEGER DEFAULT 0,
		error TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (session_id) REFERENCES sessions(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_responses_session ON responses(session_id, iteration);

	CREATE TABLE IF NOT EXISTS council_templates (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		description TEXT,
		council_members TEXT NOT NULL,
		iterations INTEGER NOT NULL,
		template TEXT NOT NULL,
		preset TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	`
	_, err := db.Exec(schema)
	return err
}

const sessionColumns = `id, prompt, COALESCE(current_prompt, ''), chair_provider, COALESCE(chair_member_id, ''),
	COALESCE(system_prompt, ''), total_iterations, current_iteration, merge_template, preset, status,
	council_members, selected_providers, autopilot, created_at, updated_at`

// CreateSession inserts sess, assigning an ID and timestamps when unset.
func (s *Store) CreateSession(ctx context.Context, sess *Session) error {
	if sess.ID == "" {
		sess.ID = uuid.New().String()
	}
	if sess.Status == "" {
		sess.Status = StatusPending
	}
	now := time.Now()
	sess.CreatedAt = now
	sess.UpdatedAt = now

	members, providers, err := encodeRoster(sess)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, prompt, current_prompt, chair_provider, chair_member_id, system_prompt,
		   total_iterations, current_iteration, merge_template, preset, status, council_members,
		   selected_providers, autopilot, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sess.ID, sess.Prompt, sess.CurrentPrompt, sess.ChairProvider, sess.ChairMemberID, sess.SystemPrompt,
		sess.TotalIterations, sess.CurrentIteration, sess.MergeTemplate, sess.Preset, string(sess.Status),
		members, providers, sess.Autopilot, now, now,
	)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// UpdateSession writes the mutable fields of an existing session.
func (s *Store) UpdateSession(ctx context.Context, sess *Session) error {
	sess.UpdatedAt = time.Now()

	members, providers, err := encodeRoster(sess)
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET current_prompt = ?, chair_provider = ?, chair_member_id = ?, system_prompt = ?,
		   total_iterations = ?, current_iteration = ?, merge_template = ?, preset = ?, status = ?,
		   council_members = ?, selected_providers = ?, autopilot = ?, updated_at = ?
		 WHERE id = ?`,
		sess.CurrentPrompt, sess.ChairProvider, sess.ChairMemberID, sess.SystemPrompt,
		sess.TotalIterations, sess.CurrentIteration, sess.MergeTemplate, sess.Preset, string(sess.Status),
		members, providers, sess.Autopilot, sess.UpdatedAt, sess.ID,
	)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("update session %s: %w", sess.ID, sql.ErrNoRows)
	}
	return nil
}

// GetSession retrieves a session by ID. It returns nil, nil when none exists.
func (s *Store) GetSession(ctx context.Context, id string) (*Session, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id)

	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return sess, nil
}

// ListSessions returns summaries of the most recently updated sessions.
func (s *Store) ListSessions(ctx context.Context, limit int) ([]Summary, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT s.id, s.prompt, s.status, s.total_iterations, s.current_iteration, s.updated_at,
		        COUNT(r.id) AS responses,
		        COALESCE(SUM(r.estimated_cost), 0) AS total_cost
		 FROM sessions s
		 LEFT JOIN responses r ON s.id = r.session_id
		 GROUP BY s.id
		 ORDER BY s.updated_at DESC
		 LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var summaries []Summary
	for rows.Next() {
		var sum Summary
		var status string
		if err := rows.Scan(&sum.ID, &sum.Prompt, &status, &sum.TotalIterations, &sum.CurrentIteration,
			&sum.UpdatedAt, &sum.Responses, &sum.TotalCost); err != nil {
			return nil, fmt.Errorf("scan summary: %w", err)
		}
		sum.Status = Status(status)
		summaries = append(summaries, sum)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	return summaries, nil
}

// DeleteSession removes a session and its responses. It reports whether the
// session existed.
func (s *Store) DeleteSession(ctx context.Context, id string) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin delete: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM responses WHERE session_id = ?`, id); err != nil {
		return false, fmt.Errorf("delete responses: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("check rows affected: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit delete: %w", err)
	}
	return n > 0, nil
}

// MarkInterrupted moves every session left in running status to paused.
// It is called at server start, when no run can own a session yet.
func (s *Store) MarkInterrupted(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET status = ?, updated_at = ? WHERE status = ?`,
		string(StatusPaused), time.Now(), string(StatusRunning),
	)
	if err != nil {
		return 0, fmt.Errorf("mark interrupted: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("check rows affected: %w", err)
	}
	return n, nil
}

// AddResponse appends a response, assigning an ID and timestamp when unset.
func (s *Store) AddResponse(ctx context.Context, r *Response) error {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO responses (id, session_id, member_id, provider, model, iteration, role, content,
		   input_tokens, output_tokens, estimated_cost, response_time_ms, error, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.SessionID, r.MemberID, r.Provider, r.Model, r.Iteration, r.Role, r.Content,
		r.InputTokens, r.OutputTokens, r.EstimatedCost, r.ResponseTimeMs, nullString(r.Error), r.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert response: %w", err)
	}
	return nil
}

// GetResponses retrieves all responses for a session in iteration order,
// then insertion order.
func (s *Store) GetResponses(ctx context.Context, sessionID string) ([]Response, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, COALESCE(member_id, ''), provider, COALESCE(model, ''), iteration, role, content,
		        input_tokens, output_tokens, estimated_cost, response_time_ms, COALESCE(error, ''), created_at
		 FROM responses
		 WHERE session_id = ?
		 ORDER BY iteration ASC, rowid ASC`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("query responses: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var responses []Response
	for rows.Next() {
		var r Response
		if err := rows.Scan(&r.ID, &r.SessionID, &r.MemberID, &r.Provider, &r.Model, &r.Iteration, &r.Role,
			&r.Content, &r.InputTokens, &r.OutputTokens, &r.EstimatedCost, &r.ResponseTimeMs, &r.Error,
			&r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan response: %w", err)
		}
		responses = append(responses, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	return responses, nil
}

// SaveTemplate inserts or replaces a saved council template.
func (s *Store) SaveTemplate(ctx context.Context, t *CouncilTemplate) error {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}
	members, err := json.Marshal(t.Members)
	if err != nil {
		return fmt.Errorf("encode members: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO council_templates (id, name, description, council_members, iterations, template, preset, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.Name, t.Description, string(members), t.Iterations, t.Template, t.Preset, t.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert council template: %w", err)
	}
	return nil
}

// ListTemplates returns saved council templates, newest first.
func (s *Store) ListTemplates(ctx context.Context) ([]CouncilTemplate, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, COALESCE(description, ''), council_members, iterations, template, preset, created_at
		 FROM council_templates
		 ORDER BY created_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("query council templates: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var templates []CouncilTemplate
	for rows.Next() {
		var t CouncilTemplate
		var members string
		if err := rows.Scan(&t.ID, &t.Name, &t.Description, &members, &t.Iterations, &t.Template, &t.Preset, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan council template: %w", err)
		}
		if err := json.Unmarshal([]byte(members), &t.Members); err != nil {
			return nil, fmt.Errorf("decode members of template %s: %w", t.ID, err)
		}
		templates = append(templates, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	return templates, nil
}

// DeleteTemplate removes a saved council template and reports whether it existed.
func (s *Store) DeleteTemplate(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM council_templates WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete council template: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("check rows affected: %w", err)
	}
	return n > 0, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner) (*Session, error) {
	var sess Session
	var status, members, providers string
	err := row.Scan(&sess.ID, &sess.Prompt, &sess.CurrentPrompt, &sess.ChairProvider, &sess.ChairMemberID,
		&sess.SystemPrompt, &sess.TotalIterations, &sess.CurrentIteration, &sess.MergeTemplate, &sess.Preset,
		&status, &members, &providers, &sess.Autopilot, &sess.CreatedAt, &sess.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scan session: %w", err)
	}
	sess.Status = Status(status)
	if err := json.Unmarshal([]byte(members), &sess.Members); err != nil {
		return nil, fmt.Errorf("decode council members: %w", err)
	}
	if err := json.Unmarshal([]byte(providers), &sess.SelectedProviders); err != nil {
		return nil, fmt.Errorf("decode selected providers: %w", err)
	}
	return &sess, nil
}

func encodeRoster(sess *Session) (members, providers string, err error) {
	m, err := json.Marshal(sess.Members)
	if err != nil {
		return "", "", fmt.Errorf("encode council members: %w", err)
	}
	p, err := json.Marshal(sess.SelectedProviders)
	if err != nil {
		return "", "", fmt.Errorf("encode selected providers: %w", err)
	}
	return string(m), string(p), nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
