package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// Agent event types
const (
	EventAgentLaunched     = "agent_launched"
	EventAgentLaunchFailed = "agent_launch_failed"
	EventAgentExited       = "agent_exited"
)

// Supervisor event types
const (
	EventSupervisorStart   = "supervisor_start"
	EventSupervisorStop    = "supervisor_stop"
	EventSupervisorRestart = "supervisor_restart"
	EventSupervisorKill    = "supervisor_kill"
)

// DB wraps the SQLite launch ledger
type DB struct {
	conn *sql.DB
	path string
}

// Open opens or creates the SQLite database at the specified path
func Open(path string) (*DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Reaper goroutines write concurrently; one connection serializes them
	conn.SetMaxOpenConns(1)

	// WAL lets "history" read while a supervisor is writing
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	db := &DB{
		conn: conn,
		path: path,
	}

	if err := db.initSchema(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return db, nil
}

// Path returns the database file path
func (db *DB) Path() string {
	return db.path
}

// Close closes the database connection
func (db *DB) Close() error {
	if db.conn != nil {
		// Checkpoint the WAL so the main file is complete on its own
		db.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
		return db.conn.Close()
	}
	return nil
}

func (db *DB) initSchema() error {
	schema := `
	-- Per-agent lifecycle events
	CREATE TABLE IF NOT EXISTS agent_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		identity TEXT NOT NULL,
		event_type TEXT NOT NULL,
		details TEXT,
		timestamp DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	-- Supervisor invocations
	CREATE TABLE IF NOT EXISTS supervisor_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		event_type TEXT NOT NULL,
		details TEXT,
		timestamp DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_agent_events_timestamp ON agent_events(timestamp);
	CREATE INDEX IF NOT EXISTS idx_agent_events_identity ON agent_events(identity);
	CREATE INDEX IF NOT EXISTS idx_supervisor_events_timestamp ON supervisor_events(timestamp);
	`

	_, err := db.conn.Exec(schema)
	return err
}

// AgentEvent is one row of the agent_events table
type AgentEvent struct {
	ID        int64
	Identity  string
	EventType string
	Details   string
	Timestamp time.Time
}

// SupervisorEvent is one row of the supervisor_events table
type SupervisorEvent struct {
	ID        int64
	EventType string
	Details   string
	Timestamp time.Time
}

// LogAgentEvent records an agent lifecycle event.
// Exit events arrive from reaper goroutines while other agents are still
// launching, so a locked database is retried briefly.
func (db *DB) LogAgentEvent(identity, eventType, details string) error {
	maxRetries := 3
	for i := 0; i < maxRetries; i++ {
		_, err := db.conn.Exec(
			`INSERT INTO agent_events (identity, event_type, details, timestamp)
			 VALUES (?, ?, ?, ?)`,
			identity, eventType, details, time.Now(),
		)
		if err == nil {
			return nil
		}
		if isBusy(err) {
			time.Sleep(5 * time.Millisecond)
			continue
		}
		return err
	}
	return fmt.Errorf("failed to log agent event after %d retries: database locked", maxRetries)
}

// LogSupervisorEvent records a supervisor invocation
func (db *DB) LogSupervisorEvent(eventType, details string) error {
	_, err := db.conn.Exec(
		`INSERT INTO supervisor_events (event_type, details, timestamp)
		 VALUES (?, ?, ?)`,
		eventType, details, time.Now(),
	)
	return err
}

func isBusy(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "SQLITE_BUSY")
}

// GetRecentAgentEvents retrieves the newest agent events first
func (db *DB) GetRecentAgentEvents(limit int) ([]AgentEvent, error) {
	rows, err := db.conn.Query(
		`SELECT id, identity, event_type, details, timestamp
		 FROM agent_events
		 ORDER BY id DESC
		 LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanAgentEvents(rows)
}

// GetLastAgentEventPerIdentity retrieves the most recent event for each agent
func (db *DB) GetLastAgentEventPerIdentity() ([]AgentEvent, error) {
	rows, err := db.conn.Query(
		`SELECT id, identity, event_type, details, timestamp
		 FROM agent_events
		 WHERE id IN (
			 SELECT MAX(id)
			 FROM agent_events
			 GROUP BY identity
		 )
		 ORDER BY identity`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanAgentEvents(rows)
}

func scanAgentEvents(rows *sql.Rows) ([]AgentEvent, error) {
	var events []AgentEvent
	for rows.Next() {
		var e AgentEvent
		var details sql.NullString
		if err := rows.Scan(&e.ID, &e.Identity, &e.EventType, &details, &e.Timestamp); err != nil {
			return nil, err
		}
		e.Details = details.String
		events = append(events, e)
	}
	return events, rows.Err()
}

// GetRecentSupervisorEvents retrieves the newest supervisor events first
func (db *DB) GetRecentSupervisorEvents(limit int) ([]SupervisorEvent, error) {
	rows, err := db.conn.Query(
		`SELECT id, event_type, details, timestamp
		 FROM supervisor_events
		 ORDER BY id DESC
		 LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []SupervisorEvent
	for rows.Next() {
		var e SupervisorEvent
		var details sql.NullString
		if err := rows.Scan(&e.ID, &e.EventType, &details, &e.Timestamp); err != nil {
			return nil, err
		}
		e.Details = details.String
		events = append(events, e)
	}
	return events, rows.Err()
}
