package jobs

import (
	"database/sql"
	"time"

	_ "modernc.org/sqlite"
)

// Event is one recorded job lifecycle transition. The history is
// observability only: the in-memory registry stays the source of truth and
// is not restored from it on restart.
type Event struct {
	ID        int64     `json:"id"`
	JobID     string    `json:"job_id"`
	Type      string    `json:"type"`
	Detail    string    `json:"detail,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// History persists job lifecycle events.
type History interface {
	// Init creates tables if they don't exist.
	Init() error

	// Close closes the store.
	Close() error

	// Append records one event.
	Append(e Event) error

	// Recent returns recent events, newest first.
	Recent(limit int) ([]Event, error)
}

// SQLiteHistory implements History using modernc.org/sqlite (pure Go).
type SQLiteHistory struct {
	db *sql.DB
}

// NewSQLiteHistory opens or creates a SQLite database at the given path.
func NewSQLiteHistory(path string) (*SQLiteHistory, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// Enable WAL mode for concurrent reads.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLiteHistory{db: db}, nil
}

// Init creates the schema tables.
func (h *SQLiteHistory) Init() error {
	schema := `
	CREATE TABLE IF NOT EXISTS job_events (
		id        INTEGER PRIMARY KEY AUTOINCREMENT,
		job_id    TEXT NOT NULL,
		type      TEXT NOT NULL,
		detail    TEXT NOT NULL DEFAULT '',
		timestamp DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_job_events_job ON job_events(job_id);
	CREATE INDEX IF NOT EXISTS idx_job_events_timestamp ON job_events(timestamp);
	`
	_, err := h.db.Exec(schema)
	return err
}

// Close closes the database.
func (h *SQLiteHistory) Close() error {
	return h.db.Close()
}

// Append records one event.
func (h *SQLiteHistory) Append(e Event) error {
	_, err := h.db.Exec(
		`INSERT INTO job_events (job_id, type, detail, timestamp) VALUES (?, ?, ?, ?)`,
		e.JobID, e.Type, e.Detail, e.Timestamp,
	)
	return err
}

// Recent returns recent events, newest first.
func (h *SQLiteHistory) Recent(limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := h.db.Query(
		`SELECT id, job_id, type, detail, timestamp
		 FROM job_events ORDER BY id DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.ID, &e.JobID, &e.Type, &e.Detail, &e.Timestamp); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
