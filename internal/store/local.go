// Package store is the local SQLite archive. It is a write-behind supplement
// to the backend: transcripts and input history are recorded for offline
// inspection and prompt recall, but the visible conversation always comes
// from the server.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"moviechat/internal/logging"
)

// ArchivedTurn is one recorded conversation turn.
type ArchivedTurn struct {
	SessionID  string
	Sender     string
	Message    string
	RecordedAt time.Time
}

// LocalStore owns the SQLite archive database.
type LocalStore struct {
	db     *sql.DB
	mu     sync.RWMutex
	dbPath string
	log    *zap.Logger
}

// NewLocalStore initializes the SQLite database at the given path.
func NewLocalStore(path string) (*LocalStore, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &LocalStore{db: db, dbPath: path, log: logging.Get(logging.CategoryStore)}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// initialize creates the required tables.
func (s *LocalStore) initialize() error {
	transcriptTable := `
	CREATE TABLE IF NOT EXISTS transcript_archive (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		sender TEXT NOT NULL,
		message TEXT NOT NULL,
		recorded_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_transcript_session ON transcript_archive(session_id);
	`

	inputTable := `
	CREATE TABLE IF NOT EXISTS input_history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		input TEXT NOT NULL,
		entered_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	`

	for _, stmt := range []string{transcriptTable, inputTable} {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}
	return nil
}

// Record archives one conversation turn. Archive failures are logged and
// swallowed; the archive must never break the chat flow.
func (s *LocalStore) Record(sessionID, sender, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(
		`INSERT INTO transcript_archive (session_id, sender, message) VALUES (?, ?, ?)`,
		sessionID, sender, text)
	if err != nil {
		s.log.Warn("failed to archive turn", zap.String("session_id", sessionID), zap.Error(err))
	}
}

// Transcript returns the archived turns for a session, oldest first.
func (s *LocalStore) Transcript(sessionID string) ([]ArchivedTurn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(
		`SELECT session_id, sender, message, recorded_at
		 FROM transcript_archive WHERE session_id = ? ORDER BY id ASC`,
		sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query transcript: %w", err)
	}
	defer rows.Close()

	var turns []ArchivedTurn
	for rows.Next() {
		var t ArchivedTurn
		if err := rows.Scan(&t.SessionID, &t.Sender, &t.Message, &t.RecordedAt); err != nil {
			return nil, fmt.Errorf("failed to scan turn: %w", err)
		}
		turns = append(turns, t)
	}
	return turns, rows.Err()
}

// AppendInput records a submitted prompt for up-arrow recall.
func (s *LocalStore) AppendInput(text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`INSERT INTO input_history (input) VALUES (?)`, text)
	if err != nil {
		return fmt.Errorf("failed to record input: %w", err)
	}
	return nil
}

// RecentInputs returns up to limit most recent inputs, newest first.
func (s *LocalStore) RecentInputs(limit int) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(
		`SELECT input FROM input_history ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query input history: %w", err)
	}
	defer rows.Close()

	var inputs []string
	for rows.Next() {
		var in string
		if err := rows.Scan(&in); err != nil {
			return nil, fmt.Errorf("failed to scan input: %w", err)
		}
		inputs = append(inputs, in)
	}
	return inputs, rows.Err()
}

// Close closes the underlying database.
func (s *LocalStore) Close() error {
	return s.db.Close()
}
