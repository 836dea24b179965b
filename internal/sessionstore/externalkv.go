package sessionstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/agentforge/agentcore/pkg/models"
)

const (
	messagesPrefix = "agentcore/sessions/messages/"
	usagePrefix    = "agentcore/sessions/usage/"
	metaPrefix     = "agentcore/sessions/meta/"
)

// sessionMeta is the small envelope stored per session alongside its
// messages, so ListSessions doesn't need to fetch and decode every
// message blob.
type sessionMeta struct {
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	MessageCount int       `json:"message_count"`
}

// DefaultTTL is how long a session's keys survive in etcd with no new
// writes before the cluster reclaims them.
const DefaultTTL = 30 * time.Minute

// ExternalKVBackend persists sessions in an etcd cluster, for deployments
// that run agentcore across multiple processes sharing no local disk.
// Each session's history is stored as a single JSON blob keyed by id; etcd's
// linearized reads give the cross-process consistency Load/Save need. Every
// write grants a fresh lease covering that session's keys, so touching a
// session resets its TTL the same way eventstore.MemoryStore resets idle
// streams on activity.
type ExternalKVBackend struct {
	client *clientv3.Client
	ttl    time.Duration
}

// NewExternalKVBackend connects to the etcd cluster at the given endpoints.
// ttl<=0 uses DefaultTTL.
func NewExternalKVBackend(endpoints []string, dialTimeout, ttl time.Duration) (*ExternalKVBackend, error) {
	if dialTimeout <= 0 {
		dialTimeout = 5 * time.Second
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	client, err := clientv3.New(clientv3.Config{
		Endpoints:   endpoints,
		DialTimeout: dialTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to etcd: %w", err)
	}
	return &ExternalKVBackend{client: client, ttl: ttl}, nil
}

// grantLease requests a lease for the backend's configured TTL, used to
// attach an expiry to every key a write touches.
func (e *ExternalKVBackend) grantLease(ctx context.Context) (clientv3.LeaseID, error) {
	lease, err := e.client.Grant(ctx, int64(e.ttl/time.Second))
	if err != nil {
		return 0, fmt.Errorf("grant lease: %w", err)
	}
	return lease.ID, nil
}

// Close releases the underlying etcd client connection.
func (e *ExternalKVBackend) Close() error {
	return e.client.Close()
}

func (e *ExternalKVBackend) Load(ctx context.Context, sessionID string) ([]models.Message, error) {
	resp, err := e.client.Get(ctx, messagesPrefix+sessionID)
	if err != nil {
		return nil, fmt.Errorf("get messages: %w", err)
	}
	if len(resp.Kvs) == 0 {
		return nil, nil
	}
	var messages []models.Message
	if err := json.Unmarshal(resp.Kvs[0].Value, &messages); err != nil {
		return nil, fmt.Errorf("unmarshal messages: %w", err)
	}
	return messages, nil
}

func (e *ExternalKVBackend) Save(ctx context.Context, sessionID string, messages []models.Message) error {
	payload, err := json.Marshal(messages)
	if err != nil {
		return fmt.Errorf("marshal messages: %w", err)
	}

	meta, err := e.loadMeta(ctx, sessionID)
	if err != nil {
		return err
	}
	now := time.Now()
	if meta.CreatedAt.IsZero() {
		meta.CreatedAt = now
	}
	meta.UpdatedAt = now
	meta.MessageCount = len(messages)
	metaPayload, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("marshal session metadata: %w", err)
	}

	leaseID, err := e.grantLease(ctx)
	if err != nil {
		return err
	}

	txn := e.client.Txn(ctx).Then(
		clientv3.OpPut(messagesPrefix+sessionID, string(payload), clientv3.WithLease(leaseID)),
		clientv3.OpPut(metaPrefix+sessionID, string(metaPayload), clientv3.WithLease(leaseID)),
	)
	if _, err := txn.Commit(); err != nil {
		return fmt.Errorf("commit save transaction: %w", err)
	}
	return nil
}

func (e *ExternalKVBackend) Reset(ctx context.Context, sessionID string) error {
	return e.Save(ctx, sessionID, nil)
}

func (e *ExternalKVBackend) Delete(ctx context.Context, sessionID string) error {
	txn := e.client.Txn(ctx).Then(
		clientv3.OpDelete(messagesPrefix+sessionID),
		clientv3.OpDelete(usagePrefix+sessionID),
		clientv3.OpDelete(metaPrefix+sessionID),
	)
	if _, err := txn.Commit(); err != nil {
		return fmt.Errorf("commit delete transaction: %w", err)
	}
	return nil
}

func (e *ExternalKVBackend) ListSessions(ctx context.Context) ([]models.SessionSummary, error) {
	resp, err := e.client.Get(ctx, metaPrefix, clientv3.WithPrefix())
	if err != nil {
		return nil, fmt.Errorf("list session metadata: %w", err)
	}
	out := make([]models.SessionSummary, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		var meta sessionMeta
		if err := json.Unmarshal(kv.Value, &meta); err != nil {
			return nil, fmt.Errorf("unmarshal session metadata: %w", err)
		}
		id := string(kv.Key)[len(metaPrefix):]
		out = append(out, models.SessionSummary{
			ID:           id,
			CreatedAt:    meta.CreatedAt,
			UpdatedAt:    meta.UpdatedAt,
			MessageCount: meta.MessageCount,
		})
	}
	return out, nil
}

func (e *ExternalKVBackend) LoadUsage(ctx context.Context, sessionID string) (models.UsageInfo, error) {
	resp, err := e.client.Get(ctx, usagePrefix+sessionID)
	if err != nil {
		return models.UsageInfo{}, fmt.Errorf("get usage: %w", err)
	}
	if len(resp.Kvs) == 0 {
		return models.UsageInfo{}, nil
	}
	var usage models.UsageInfo
	if err := json.Unmarshal(resp.Kvs[0].Value, &usage); err != nil {
		return models.UsageInfo{}, fmt.Errorf("unmarshal usage: %w", err)
	}
	return usage, nil
}

func (e *ExternalKVBackend) SaveUsage(ctx context.Context, sessionID string, usage models.UsageInfo) error {
	payload, err := json.Marshal(usage)
	if err != nil {
		return fmt.Errorf("marshal usage: %w", err)
	}
	leaseID, err := e.grantLease(ctx)
	if err != nil {
		return err
	}
	if _, err := e.client.Put(ctx, usagePrefix+sessionID, string(payload), clientv3.WithLease(leaseID)); err != nil {
		return fmt.Errorf("put usage: %w", err)
	}
	return nil
}

func (e *ExternalKVBackend) ResetUsage(ctx context.Context, sessionID string) error {
	if _, err := e.client.Delete(ctx, usagePrefix+sessionID); err != nil {
		return fmt.Errorf("delete usage: %w", err)
	}
	return nil
}

// loadMeta returns the stored metadata envelope for sessionID, or a zero
// value if none exists yet.
func (e *ExternalKVBackend) loadMeta(ctx context.Context, sessionID string) (sessionMeta, error) {
	resp, err := e.client.Get(ctx, metaPrefix+sessionID)
	if err != nil {
		return sessionMeta{}, fmt.Errorf("get session metadata: %w", err)
	}
	if len(resp.Kvs) == 0 {
		return sessionMeta{}, nil
	}
	var meta sessionMeta
	if err := json.Unmarshal(resp.Kvs[0].Value, &meta); err != nil {
		return sessionMeta{}, fmt.Errorf("unmarshal session metadata: %w", err)
	}
	return meta, nil
}
