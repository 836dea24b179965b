package eventstore

import (
	"context"
	"sync"
	"time"

	"github.com/agentforge/agentcore/pkg/models"
)

// DefaultTTL is how long a stream survives with no new activity before
// MemoryStore treats it as absent, bounding memory for runs whose client
// never reconnects to drain them.
const DefaultTTL = 30 * time.Minute

type streamRecord struct {
	events       []models.StoredEvent
	status       models.StreamStatus
	lastActivity time.Time
}

// MemoryStore is a process-local Store with idle-TTL eviction, intended for
// tests and single-process deployments.
type MemoryStore struct {
	mu      sync.RWMutex
	streams map[string]*streamRecord
	ttl     time.Duration
	nowFunc func() time.Time
}

// NewMemoryStore returns a MemoryStore that evicts streams idle for longer
// than ttl. ttl<=0 uses DefaultTTL.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryStore{
		streams: make(map[string]*streamRecord),
		ttl:     ttl,
		nowFunc: time.Now,
	}
}

// SetNowFunc overrides the clock, for deterministic expiry tests.
func (m *MemoryStore) SetNowFunc(fn func() time.Time) {
	m.nowFunc = fn
}

func (m *MemoryStore) Append(ctx context.Context, streamID string, event models.AgentEvent) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec := m.liveRecordLocked(streamID)
	if rec == nil {
		rec = &streamRecord{status: models.StreamGenerating}
		m.streams[streamID] = rec
	}
	id := int64(len(rec.events)) + 1
	rec.events = append(rec.events, models.StoredEvent{ID: id, StreamID: streamID, Event: event})
	rec.lastActivity = m.nowFunc()
	return id, nil
}

func (m *MemoryStore) Read(ctx context.Context, streamID string, afterID int64) ([]models.StoredEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec := m.liveRecordLocked(streamID)
	if rec == nil {
		return nil, nil
	}
	var out []models.StoredEvent
	for _, e := range rec.events {
		if e.ID > afterID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *MemoryStore) Status(ctx context.Context, streamID string) (models.StreamStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec := m.liveRecordLocked(streamID)
	if rec == nil {
		return models.StreamAbsent, nil
	}
	return rec.status, nil
}

func (m *MemoryStore) MarkCompleted(ctx context.Context, streamID string) error {
	return m.setStatus(streamID, models.StreamCompleted)
}

func (m *MemoryStore) MarkFailed(ctx context.Context, streamID string) error {
	return m.setStatus(streamID, models.StreamFailed)
}

func (m *MemoryStore) setStatus(streamID string, status models.StreamStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec := m.liveRecordLocked(streamID)
	if rec == nil {
		rec = &streamRecord{}
		m.streams[streamID] = rec
	}
	rec.status = status
	rec.lastActivity = m.nowFunc()
	return nil
}

// liveRecordLocked returns streamID's record, evicting and returning nil
// if it has gone idle past the TTL. Callers must hold mu.
func (m *MemoryStore) liveRecordLocked(streamID string) *streamRecord {
	rec, ok := m.streams[streamID]
	if !ok {
		return nil
	}
	if !rec.lastActivity.IsZero() && m.nowFunc().Sub(rec.lastActivity) > m.ttl {
		delete(m.streams, streamID)
		return nil
	}
	return rec
}
