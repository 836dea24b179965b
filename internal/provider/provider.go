package provider

import (
	"context"

	"github.com/agentforge/agentcore/pkg/models"
)

// ToolDef is the minimal shape a Provider needs to describe a tool to the
// backend LLM. The full ToolDefinition (with handler, source tag, ...)
// lives in internal/tools; this is the wire-facing subset.
type ToolDef struct {
	Name        string
	Description string
	InputSchema map[string]any
}

// StopReason is why a streaming completion ended.
type StopReason string

const (
	StopEndTurn   StopReason = "end_turn"
	StopToolUse   StopReason = "tool_use"
	StopMaxTokens StopReason = "max_tokens"
)

// StreamDelta is one incremental event from an in-flight stream: either a
// text delta or a complete tool_use block (providers emit tool calls
// atomically, never incrementally).
type StreamDelta struct {
	TextDelta string
	ToolUse   *models.ContentBlock // Type == BlockToolUse
}

// StreamFinal is delivered once a stream completes, carrying the full
// assistant turn content and usage.
type StreamFinal struct {
	Blocks     []models.ContentBlock
	StopReason StopReason
	Usage      models.UsageInfo
}

// Provider is one streaming LLM backend. Implementations must be safe for
// concurrent use — multiple goroutines may call Stream/Create/CountTokens
// simultaneously for different requests.
type Provider interface {
	// Stream issues one completion request and returns a channel of deltas
	// followed by exactly one StreamFinal (delivered via the returned
	// function once the channel closes). Cancelling ctx closes the
	// underlying stream and stops further sends.
	Stream(ctx context.Context, messages []models.Message, system string, tools []ToolDef, maxTokens int) (<-chan StreamDelta, func() (StreamFinal, error), error)

	// Create performs a non-streaming completion, used by the context
	// manager for summarization.
	Create(ctx context.Context, messages []models.Message, system string, maxTokens int) (StreamFinal, error)

	// CountTokens returns a token count for the given request, precise when
	// the backend exposes a counting endpoint, approximated otherwise.
	CountTokens(ctx context.Context, messages []models.Message, system string, tools []ToolDef) (int, error)

	// Name identifies the backend for logging and error messages.
	Name() string

	// SupportsPromptCaching reports whether cache-control hints should be
	// attached to the system prompt and tool definitions.
	SupportsPromptCaching() bool
}
