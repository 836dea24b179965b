// Package sessionstore implements the SessionBackend contract: durable
// message history and usage accounting, with in-memory, SQLite, and
// external-KV implementations sharing one interface.
package sessionstore

import (
	"context"

	"github.com/agentforge/agentcore/pkg/models"
)

// Backend is the storage contract every session implementation satisfies.
// Sessions are fully independent: no implementation may share state across
// ids, and load/save/delete must be safe for concurrent callers operating
// on distinct ids. Concurrent callers on the SAME id are the caller's
// responsibility to serialize.
type Backend interface {
	// Load returns the message history for sessionID, or an empty slice
	// for an id that has never been saved — a fresh conversation, not an
	// error.
	Load(ctx context.Context, sessionID string) ([]models.Message, error)
	Save(ctx context.Context, sessionID string, messages []models.Message) error
	Reset(ctx context.Context, sessionID string) error
	Delete(ctx context.Context, sessionID string) error
	ListSessions(ctx context.Context) ([]models.SessionSummary, error)

	LoadUsage(ctx context.Context, sessionID string) (models.UsageInfo, error)
	SaveUsage(ctx context.Context, sessionID string, usage models.UsageInfo) error
	ResetUsage(ctx context.Context, sessionID string) error
}
