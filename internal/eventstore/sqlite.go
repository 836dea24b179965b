package eventstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/agentforge/agentcore/pkg/models"
)

const eventSchema = `
CREATE TABLE IF NOT EXISTS event_streams (
	stream_id TEXT PRIMARY KEY,
	status TEXT NOT NULL DEFAULT 'generating'
);

CREATE TABLE IF NOT EXISTS events (
	stream_id TEXT NOT NULL,
	id INTEGER NOT NULL,
	kind TEXT NOT NULL,
	data TEXT,
	event_time TIMESTAMP NOT NULL,
	PRIMARY KEY (stream_id, id)
);
`

// SQLiteStore persists event streams durably via modernc.org/sqlite.
// Per-stream id assignment is guarded by an in-process mutex keyed by
// stream id: SQLite serializes concurrent writers at the database level,
// but the mutex avoids a lost-update race between the MAX(id) read and the
// following insert for two goroutines appending to the SAME stream.
type SQLiteStore struct {
	db *sql.DB

	idLock map[string]*sync.Mutex
	idMuMu sync.Mutex
}

// OpenSQLiteStore opens (creating if absent) the database at path and
// ensures the schema exists.
func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(eventSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &SQLiteStore{db: db, idLock: make(map[string]*sync.Mutex)}, nil
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) streamLock(streamID string) *sync.Mutex {
	s.idMuMu.Lock()
	defer s.idMuMu.Unlock()
	l, ok := s.idLock[streamID]
	if !ok {
		l = &sync.Mutex{}
		s.idLock[streamID] = l
	}
	return l
}

func (s *SQLiteStore) Append(ctx context.Context, streamID string, event models.AgentEvent) (int64, error) {
	lock := s.streamLock(streamID)
	lock.Lock()
	defer lock.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO event_streams (stream_id, status) VALUES (?, 'generating')
		 ON CONFLICT(stream_id) DO NOTHING`, streamID); err != nil {
		return 0, fmt.Errorf("ensure stream row: %w", err)
	}

	var maxID sql.NullInt64
	if err := tx.QueryRowContext(ctx, `SELECT MAX(id) FROM events WHERE stream_id = ?`, streamID).Scan(&maxID); err != nil {
		return 0, fmt.Errorf("compute next id: %w", err)
	}
	nextID := maxID.Int64 + 1

	data, err := json.Marshal(event.Data)
	if err != nil {
		return 0, fmt.Errorf("marshal event data: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO events (stream_id, id, kind, data, event_time) VALUES (?, ?, ?, ?, ?)`,
		streamID, nextID, string(event.Kind), string(data), event.Time); err != nil {
		return 0, fmt.Errorf("insert event: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit append: %w", err)
	}
	return nextID, nil
}

func (s *SQLiteStore) Read(ctx context.Context, streamID string, afterID int64) ([]models.StoredEvent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, kind, data, event_time FROM events WHERE stream_id = ? AND id > ? ORDER BY id ASC`,
		streamID, afterID)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var out []models.StoredEvent
	for rows.Next() {
		var se models.StoredEvent
		var kind, data string
		se.StreamID = streamID
		if err := rows.Scan(&se.ID, &kind, &data, &se.Event.Time); err != nil {
			return nil, fmt.Errorf("scan event row: %w", err)
		}
		se.Event.Kind = models.EventKind(kind)
		if data != "" && data != "null" {
			se.Event.Data = json.RawMessage(data)
		}
		out = append(out, se)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Status(ctx context.Context, streamID string) (models.StreamStatus, error) {
	var status string
	row := s.db.QueryRowContext(ctx, `SELECT status FROM event_streams WHERE stream_id = ?`, streamID)
	if err := row.Scan(&status); err == sql.ErrNoRows {
		return models.StreamAbsent, nil
	} else if err != nil {
		return "", fmt.Errorf("query status: %w", err)
	}
	return models.StreamStatus(status), nil
}

func (s *SQLiteStore) MarkCompleted(ctx context.Context, streamID string) error {
	return s.setStatus(ctx, streamID, models.StreamCompleted)
}

func (s *SQLiteStore) MarkFailed(ctx context.Context, streamID string) error {
	return s.setStatus(ctx, streamID, models.StreamFailed)
}

func (s *SQLiteStore) setStatus(ctx context.Context, streamID string, status models.StreamStatus) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO event_streams (stream_id, status) VALUES (?, ?)
		 ON CONFLICT(stream_id) DO UPDATE SET status = excluded.status`,
		streamID, string(status))
	if err != nil {
		return fmt.Errorf("update stream status: %w", err)
	}
	return nil
}
