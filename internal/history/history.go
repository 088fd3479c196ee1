// Package history keeps a small SQLite journal of the transfer sessions run
// on this machine: what ran, how it ended and how much it moved.
package history

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Status summarizes how a session ended
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
	StatusPartial Status = "partial"
)

// StatusFor derives the status from the exit code and the files moved
func StatusFor(exitCode, files int) Status {
	switch {
	case exitCode == 0:
		return StatusSuccess
	case files > 0:
		return StatusPartial
	default:
		return StatusFailed
	}
}

// Session is one recorded command invocation
type Session struct {
	ID        int64
	SessionID string
	Command   string
	Args      string
	StartTime time.Time
	EndTime   time.Time
	Status    Status
	ExitCode  int
	Files     int
	Bytes     int64
	Error     string
}

// Manager reads and writes the journal
type Manager struct {
	db *sql.DB
}

// DefaultPath returns the default journal location
func DefaultPath() string {
	if dataDir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(dataDir, "ferry", "history.db")
	}
	return filepath.Join(os.TempDir(), "ferry-history.db")
}

// Open opens or creates the journal at path
func Open(path string) (*Manager, error) {
	if path == "" {
		return nil, fmt.Errorf("history path cannot be empty")
	}

	// Ensure directory exists
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create history directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Two ferry processes may finish at the same time
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA journal_mode=WAL; PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode and busy timeout: %w", err)
	}

	m := &Manager{db: db}
	if err := m.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return m, nil
}

func (m *Manager) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		command TEXT NOT NULL,
		args TEXT NOT NULL DEFAULT '',
		start_time TIMESTAMP NOT NULL,
		end_time TIMESTAMP NOT NULL,
		status TEXT NOT NULL,
		exit_code INTEGER NOT NULL DEFAULT 0,
		files INTEGER DEFAULT 0,
		bytes INTEGER DEFAULT 0,
		error TEXT NOT NULL DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_sessions_command_time ON sessions(command, start_time DESC);
	`
	_, err := m.db.Exec(schema)
	return err
}

// Save records a finished session
func (m *Manager) Save(s Session) error {
	switch s.Status {
	case StatusSuccess, StatusFailed, StatusPartial:
	default:
		return fmt.Errorf("invalid status: %q", s.Status)
	}
	if s.Command == "" {
		return errors.New("session command cannot be empty")
	}

	_, err := m.db.Exec(`
		INSERT INTO sessions (session_id, command, args, start_time, end_time, status, exit_code, files, bytes, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.SessionID, s.Command, s.Args, s.StartTime, s.EndTime,
		string(s.Status), s.ExitCode, s.Files, s.Bytes, s.Error,
	)
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

// Recent returns the newest sessions first. An empty command matches all.
func (m *Manager) Recent(command string, limit int) ([]Session, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be positive, got %d", limit)
	}

	rows, err := m.db.Query(`
		SELECT id, session_id, command, args, start_time, end_time, status, exit_code, files, bytes, error
		FROM sessions
		WHERE ? = '' OR command = ?
		ORDER BY start_time DESC, id DESC
		LIMIT ?`, command, command, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		s, err := scan(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sessions: %w", err)
	}
	return sessions, nil
}

// LastSuccess returns the newest successful session of command, or nil
func (m *Manager) LastSuccess(command string) (*Session, error) {
	row := m.db.QueryRow(`
		SELECT id, session_id, command, args, start_time, end_time, status, exit_code, files, bytes, error
		FROM sessions
		WHERE command = ? AND status = 'success'
		ORDER BY start_time DESC, id DESC
		LIMIT 1`, command)

	s, err := scan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// Prune deletes everything but the newest keep sessions
func (m *Manager) Prune(keep int) (int64, error) {
	if keep < 0 {
		return 0, fmt.Errorf("keep cannot be negative, got %d", keep)
	}
	res, err := m.db.Exec(`
		DELETE FROM sessions WHERE id NOT IN (
			SELECT id FROM sessions ORDER BY start_time DESC, id DESC LIMIT ?
		)`, keep)
	if err != nil {
		return 0, fmt.Errorf("failed to prune history: %w", err)
	}
	return res.RowsAffected()
}

// Close closes the database connection
func (m *Manager) Close() error {
	if m.db != nil {
		return m.db.Close()
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scan(row scanner) (Session, error) {
	var s Session
	var status string
	err := row.Scan(
		&s.ID, &s.SessionID, &s.Command, &s.Args,
		&s.StartTime, &s.EndTime, &status, &s.ExitCode,
		&s.Files, &s.Bytes, &s.Error,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return s, err
	}
	if err != nil {
		return s, fmt.Errorf("failed to scan session: %w", err)
	}
	s.Status = Status(status)
	return s, nil
}
