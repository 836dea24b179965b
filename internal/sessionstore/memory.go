package sessionstore

import (
	"context"
	"sync"
	"time"

	"github.com/agentforge/agentcore/pkg/models"
)

// record is one session's stored state.
type record struct {
	messages  []models.Message
	usage     models.UsageInfo
	createdAt time.Time
	updatedAt time.Time
}

// MemoryBackend is a process-local Backend, intended for tests and
// short-lived runs; nothing is persisted across process restarts.
type MemoryBackend struct {
	mu       sync.RWMutex
	sessions map[string]*record
}

// NewMemoryBackend returns an empty MemoryBackend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{sessions: make(map[string]*record)}
}

func (m *MemoryBackend) Load(ctx context.Context, sessionID string) ([]models.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.sessions[sessionID]
	if !ok {
		return nil, nil
	}
	out := make([]models.Message, len(rec.messages))
	copy(out, rec.messages)
	return out, nil
}

func (m *MemoryBackend) Save(ctx context.Context, sessionID string, messages []models.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec := m.getOrCreate(sessionID)
	rec.messages = make([]models.Message, len(messages))
	copy(rec.messages, messages)
	rec.updatedAt = time.Now()
	return nil
}

func (m *MemoryBackend) Reset(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec, ok := m.sessions[sessionID]; ok {
		rec.messages = nil
		rec.updatedAt = time.Now()
	}
	return nil
}

func (m *MemoryBackend) Delete(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, sessionID)
	return nil
}

func (m *MemoryBackend) ListSessions(ctx context.Context) ([]models.SessionSummary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.SessionSummary, 0, len(m.sessions))
	for id, rec := range m.sessions {
		out = append(out, models.SessionSummary{
			ID:           id,
			CreatedAt:    rec.createdAt,
			UpdatedAt:    rec.updatedAt,
			MessageCount: len(rec.messages),
		})
	}
	return out, nil
}

func (m *MemoryBackend) LoadUsage(ctx context.Context, sessionID string) (models.UsageInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.sessions[sessionID]
	if !ok {
		return models.UsageInfo{}, nil
	}
	return rec.usage, nil
}

func (m *MemoryBackend) SaveUsage(ctx context.Context, sessionID string, usage models.UsageInfo) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec := m.getOrCreate(sessionID)
	rec.usage = usage
	rec.updatedAt = time.Now()
	return nil
}

func (m *MemoryBackend) ResetUsage(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec, ok := m.sessions[sessionID]; ok {
		rec.usage = models.UsageInfo{}
		rec.updatedAt = time.Now()
	}
	return nil
}

// getOrCreate must be called with mu held for writing.
func (m *MemoryBackend) getOrCreate(sessionID string) *record {
	rec, ok := m.sessions[sessionID]
	if !ok {
		now := time.Now()
		rec = &record{createdAt: now, updatedAt: now}
		m.sessions[sessionID] = rec
	}
	return rec
}
