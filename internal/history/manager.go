// Package history persists update-session outcomes to a local SQLite
// database so the host can show past updates and their results.
package history

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/updateguard/updateguard/internal/domain"
)

// Manager handles session persistence.
type Manager struct {
	db *sql.DB
}

// SessionRecord is one persisted update session.
type SessionRecord struct {
	ID            int64
	SessionID     string
	TargetVersion string
	Status        string
	BackupID      string
	StartTime     time.Time
	EndTime       time.Time
	Error         string
}

// NewManager opens (or creates) the history database under dataDir.
func NewManager(dataDir string) (*Manager, error) {
	if dataDir == "" {
		return nil, fmt.Errorf("data directory cannot be empty")
	}
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "updateguard.db")
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// One connection avoids "database is locked" under concurrent reads
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
		session_id TEXT NOT NULL UNIQUE,
		target_version TEXT NOT NULL,
		status TEXT NOT NULL,
		backup_id TEXT,
		start_time TIMESTAMP NOT NULL,
		end_time TIMESTAMP NOT NULL,
		error TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_sessions_start ON sessions(start_time DESC);
	CREATE INDEX IF NOT EXISTS idx_sessions_status ON sessions(status);
	`
	_, err := m.db.Exec(schema)
	return err
}

// SaveSession records a finished update session. Only terminal
// statuses are accepted.
func (m *Manager) SaveSession(session *domain.UpdateSession) error {
	if !session.Status.Terminal() {
		return fmt.Errorf("cannot persist non-terminal session status: %s", session.Status)
	}

	errMsg := ""
	if session.Report != nil {
		errMsg = session.Report.Message
	}

	query := `
		INSERT INTO sessions (session_id, target_version, status, backup_id, start_time, end_time, error)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	_, err := m.db.Exec(query,
		session.SessionID,
		session.TargetVersion,
		string(session.Status),
		session.BackupID,
		session.StartTime,
		session.EndTime,
		errMsg,
	)
	if err != nil {
		return fmt.Errorf("failed to save session record: %w", err)
	}
	return nil
}

// GetHistory retrieves the most recent sessions.
func (m *Manager) GetHistory(limit int) ([]SessionRecord, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be positive, got %d", limit)
	}

	query := `
		SELECT id, session_id, target_version, status, backup_id, start_time, end_time, error
		FROM sessions
		ORDER BY start_time DESC
		LIMIT ?
	`
	rows, err := m.db.Query(query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var records []SessionRecord
	for rows.Next() {
		var r SessionRecord
		if err := rows.Scan(&r.ID, &r.SessionID, &r.TargetVersion, &r.Status, &r.BackupID, &r.StartTime, &r.EndTime, &r.Error); err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating records: %w", err)
	}
	return records, nil
}

// GetLastSuccess retrieves the most recent successful session, or nil.
func (m *Manager) GetLastSuccess() (*SessionRecord, error) {
	query := `
		SELECT id, session_id, target_version, status, backup_id, start_time, end_time, error
		FROM sessions
		WHERE status = ?
		ORDER BY start_time DESC
		LIMIT 1
	`
	var r SessionRecord
	err := m.db.QueryRow(query, string(domain.StatusSuccess)).Scan(
		&r.ID, &r.SessionID, &r.TargetVersion, &r.Status, &r.BackupID, &r.StartTime, &r.EndTime, &r.Error,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query last success: %w", err)
	}
	return &r, nil
}

// Close closes the database connection.
func (m *Manager) Close() error {
	if m.db != nil {
		return m.db.Close()
	}
	return nil
}
