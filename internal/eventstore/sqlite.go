package eventstore

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"git.home.luguber.info/inful/fwbuilder/internal/foundation/errors"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
	mu sync.RWMutex
}

// NewSQLiteStore opens (creating if needed) the event database at dbPath.
// Use ":memory:" for a transient store.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o750); err != nil {
			return nil, wrap(ErrDatabaseOpenFailed, err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, wrap(ErrDatabaseOpenFailed, err)
	}
	// A single connection keeps :memory: databases coherent and serializes
	// writers on file databases.
	db.SetMaxOpenConns(1)

	store := &SQLiteStore{db: db}
	if err := store.initialize(); err != nil {
		_ = db.Close()
		return nil, wrap(ErrInitializeSchemaFailed, err)
	}

	return store, nil
}

func (s *SQLiteStore) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		build_id TEXT NOT NULL,
		device TEXT NOT NULL,
		event_type TEXT NOT NULL,
		timestamp_ms INTEGER NOT NULL,
		payload BLOB NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_build_id ON events(build_id);
	CREATE INDEX IF NOT EXISTS idx_timestamp ON events(timestamp_ms);
	CREATE INDEX IF NOT EXISTS idx_device ON events(device);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Append adds a new event to the store.
func (s *SQLiteStore) Append(ctx context.Context, event Event) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ts := event.Timestamp()
	if ts.IsZero() {
		ts = time.Now()
	}
	payload := event.Payload()
	if payload == nil {
		payload = []byte("{}")
	}

	res, err := s.db.ExecContext(ctx,
		"INSERT INTO events (build_id, device, event_type, timestamp_ms, payload) VALUES (?, ?, ?, ?, ?)",
		event.BuildID(), event.Device(), event.Type(), ts.UnixMilli(), payload,
	)
	if err != nil {
		return 0, wrap(ErrEventAppendFailed, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, wrap(ErrEventAppendFailed, err)
	}
	return id, nil
}

// GetByBuildID retrieves all events for a specific build.
func (s *SQLiteStore) GetByBuildID(ctx context.Context, buildID string) ([]Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, build_id, device, event_type, timestamp_ms, payload FROM events WHERE build_id = ? ORDER BY id",
		buildID,
	)
	if err != nil {
		return nil, wrap(ErrEventQueryFailed, err)
	}
	defer func() { _ = rows.Close() }()

	return scanEvents(rows)
}

// GetRange retrieves events within a time range.
func (s *SQLiteStore) GetRange(ctx context.Context, start, end time.Time) ([]Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, build_id, device, event_type, timestamp_ms, payload FROM events WHERE timestamp_ms >= ? AND timestamp_ms <= ? ORDER BY id",
		start.UnixMilli(), end.UnixMilli(),
	)
	if err != nil {
		return nil, wrap(ErrEventQueryFailed, err)
	}
	defer func() { _ = rows.Close() }()

	return scanEvents(rows)
}

func scanEvents(rows *sql.Rows) ([]Event, error) {
	var events []Event
	for rows.Next() {
		var e BaseEvent
		var ms int64
		if err := rows.Scan(&e.EventID, &e.EventBuildID, &e.EventDevice, &e.EventType, &ms, &e.EventPayload); err != nil {
			return nil, wrap(ErrEventScanFailed, err)
		}
		e.EventTimestamp = time.UnixMilli(ms)
		events = append(events, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap(ErrEventScanFailed, err)
	}
	return events, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

func wrap(sentinel *errors.ClassifiedError, cause error) error {
	return errors.NewError(sentinel.Category(), sentinel.Message()).
		WithSeverity(sentinel.Severity()).
		WithCause(cause).
		Build()
}
