package models

import (
	"encoding/json"
	"time"
)

// EventKind identifies one of the eight wire-level event kinds the core
// emits from an agent run. These names are part of the public contract —
// front ends and the EventStore dispatch on them directly.
type EventKind string

const (
	EventToken       EventKind = "token"
	EventToolCall    EventKind = "tool_call"
	EventPreambleEnd EventKind = "preamble_end"
	EventRetry       EventKind = "retry"
	EventCompact     EventKind = "compact"
	EventDone        EventKind = "done"
	EventError       EventKind = "error"
	EventFileChange  EventKind = "file_change"
)

// AgentEvent is one event in the stream produced by a single
// Agent.StreamMessage call. Data carries the kind-specific JSON payload
// (TokenData, ToolCallData, ...); kinds with no payload (preamble_end, done)
// leave it nil.
type AgentEvent struct {
	Kind EventKind       `json:"kind"`
	Data json.RawMessage `json:"data,omitempty"`
	Time time.Time       `json:"time"`
}

// TokenData is the payload of a token event: a raw JSON-encoded string so
// newlines and control characters round-trip over the wire.
type TokenData struct {
	Delta string `json:"delta"`
}

// ToolCallStatus is the lifecycle status carried by a tool_call event.
type ToolCallStatus string

const (
	ToolCallStarted   ToolCallStatus = "started"
	ToolCallCompleted ToolCallStatus = "completed"
	ToolCallFailed    ToolCallStatus = "failed"
)

// ToolCallData is the payload of a tool_call event.
type ToolCallData struct {
	Name    string         `json:"name"`
	Status  ToolCallStatus `json:"status"`
	Summary string         `json:"summary"`
	Error   string         `json:"error,omitempty"`
}

// RetryData is the payload of a retry event.
type RetryData struct {
	Attempt    int    `json:"attempt"`
	MaxRetries int    `json:"max_retries"`
	ErrorKind  string `json:"error_kind"`
}

// CompactPhase identifies which compaction phase produced a compact event.
type CompactPhase string

const (
	CompactPhaseTruncate    CompactPhase = "truncate"
	CompactPhaseSummarize   CompactPhase = "summarize"
)

// CompactData is the payload of a compact event.
type CompactData struct {
	Phase        CompactPhase `json:"phase"`
	BeforeTokens int          `json:"before_tokens"`
	AfterTokens  int          `json:"after_tokens"`
}

// ErrorData is the payload of an error event.
type ErrorData struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// FileChangeData is the payload of a file_change event, passed through
// verbatim from a tool's side channel (e.g. an edit tool).
type FileChangeData struct {
	Path string `json:"path"`
	Diff string `json:"diff"`
}

// StreamStatus is the lifecycle state of a persisted event stream.
type StreamStatus string

const (
	StreamGenerating StreamStatus = "generating"
	StreamCompleted  StreamStatus = "completed"
	StreamFailed     StreamStatus = "failed"
	StreamAbsent     StreamStatus = "absent"
)

// StoredEvent is one row of the resumable event log: an AgentEvent tagged
// with its stream id and a strictly-increasing, per-stream offset.
type StoredEvent struct {
	ID       int64     `json:"id"`
	StreamID string    `json:"stream_id"`
	Event    AgentEvent `json:"event"`
}

// MustJSON marshals v to json.RawMessage, panicking on failure. Intended
// for the small, always-marshalable payload types above.
func MustJSON(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}
