package agentcore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/agentforge/agentcore/internal/backoff"
	"github.com/agentforge/agentcore/internal/contextmgr"
	"github.com/agentforge/agentcore/internal/eventstore"
	"github.com/agentforge/agentcore/internal/metrics"
	"github.com/agentforge/agentcore/internal/provider"
	"github.com/agentforge/agentcore/internal/sessionstore"
	"github.com/agentforge/agentcore/internal/skills"
	"github.com/agentforge/agentcore/internal/tools"
	"github.com/agentforge/agentcore/pkg/models"
)

// eventBuffer sizes the channel StreamMessage returns; it bounds how far
// the producer can run ahead of a caller that has temporarily stopped
// pulling, without buffering unboundedly.
const eventBuffer = 64

// Agent ties the capabilities described in spec §4 together into the
// stream_message loop. The zero value is not usable; construct with New.
type Agent struct {
	Provider provider.Provider
	Tools    *tools.Registry
	Skills   *skills.Registry
	Context  *contextmgr.Manager
	Sessions sessionstore.Backend
	// Events is optional; when nil, no stream is persisted regardless of
	// whether StreamMessage is called with a non-empty streamID.
	Events eventstore.Store
	// Sandbox is passed down to subagents unexamined by the loop itself.
	Sandbox Sandbox
	// Metrics is optional; a nil value disables instrumentation.
	Metrics *metrics.Metrics

	Config Config
}

// New constructs an Agent from its required capabilities; Events and
// Sandbox may be left nil.
func New(prov provider.Provider, toolRegistry *tools.Registry, skillRegistry *skills.Registry, sessions sessionstore.Backend, cfg Config) *Agent {
	cfg = cfg.WithDefaults()
	return &Agent{
		Provider: prov,
		Tools:    toolRegistry,
		Skills:   skillRegistry,
		Context:  contextmgr.New(contextmgr.Config{ContextWindow: cfg.ContextWindow, TriggerThreshold: cfg.CompactThreshold}),
		Sessions: sessions,
		Config:   cfg,
	}
}

// StreamMessage is the Agent contract's sole entry point: it loads
// session history, appends the user turn, and drives the loop described
// in spec §4.1 until a terminal state, emitting every wire-level event
// along the way. The returned channel is closed when the loop ends; the
// returned error, available only after the channel closes, distinguishes
// MaxIterationsReachedError/CancellationError from a normal nil.
func (a *Agent) StreamMessage(ctx context.Context, sessionID string, input Input, streamID string) (<-chan models.AgentEvent, <-chan error) {
	events := make(chan models.AgentEvent, eventBuffer)
	errc := make(chan error, 1)

	if err := input.validate(); err != nil {
		close(events)
		errc <- err
		close(errc)
		return events, errc
	}

	go func() {
		defer close(events)
		defer close(errc)
		errc <- a.run(ctx, sessionID, input, streamID, events)
	}()

	return events, errc
}

func (a *Agent) run(ctx context.Context, sessionID string, input Input, streamID string, events chan<- models.AgentEvent) error {
	history, err := a.Sessions.Load(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("load session %s: %w", sessionID, err)
	}
	history = append(history, input.ToMessage())

	maxTokens := a.Config.MaxTokens
	prov := provider.WithRetry(a.Provider, provider.RetryConfig{
		MaxRetries: a.Config.Provider.MaxRetries,
		Policy:     backoff.DefaultPolicy(a.Config.Provider.InitialDelay),
		OnRetry: func(d models.RetryData) {
			a.emit(ctx, events, streamID, models.EventRetry, d)
			a.Metrics.RecordRetry(d.ErrorKind)
		},
	})

	for iteration := 0; ; iteration++ {
		if a.Context.ShouldCompact() {
			results, compacted, cerr := a.Context.Compact(ctx, history, prov, a.estimateTokens(ctx))
			if cerr != nil {
				return a.fail(ctx, sessionID, streamID, events, history, "", fmt.Errorf("compaction: %w", cerr))
			}
			history = compacted
			for _, r := range results {
				a.emit(ctx, events, streamID, models.EventCompact, models.CompactData{
					Phase: r.Phase, BeforeTokens: r.BeforeTokens, AfterTokens: r.AfterTokens,
				})
				a.Metrics.RecordCompaction(string(r.Phase))
			}
		}

		system := a.Skills.Compose(a.Config.SystemPrompt)
		toolDefs := convertToolDefs(a.Tools.Definitions())

		callStart := time.Now()
		deltas, wait, err := prov.Stream(ctx, history, system, toolDefs, maxTokens)
		if err != nil {
			a.Metrics.RecordProviderRequest(a.Provider.Name(), a.Config.Provider.Model, "error", time.Since(callStart).Seconds())
			return a.fail(ctx, sessionID, streamID, events, history, "", err)
		}

		accumulated, preambleEmitted := a.consumeDeltas(ctx, events, streamID, deltas)

		final, err := wait()
		if err != nil {
			a.Metrics.RecordProviderRequest(a.Provider.Name(), a.Config.Provider.Model, "error", time.Since(callStart).Seconds())
			return a.fail(ctx, sessionID, streamID, events, history, accumulated, err)
		}
		_ = preambleEmitted
		a.Metrics.RecordProviderRequest(a.Provider.Name(), a.Config.Provider.Model, "success", time.Since(callStart).Seconds())
		a.Metrics.RecordTokens(a.Provider.Name(), a.Config.Provider.Model, "input", final.Usage.InputTokens)
		a.Metrics.RecordTokens(a.Provider.Name(), a.Config.Provider.Model, "output", final.Usage.OutputTokens)
		a.Metrics.RecordTokens(a.Provider.Name(), a.Config.Provider.Model, "cache_creation", final.Usage.CacheCreationInputTokens)
		a.Metrics.RecordTokens(a.Provider.Name(), a.Config.Provider.Model, "cache_read", final.Usage.CacheReadInputTokens)
		a.Metrics.RecordCost(a.Provider.Name(), a.Config.Provider.Model, provider.EstimateCostUSD(a.Config.Provider.Model, final.Usage.InputTokens, final.Usage.OutputTokens))
		a.Context.RecordUsage(final.Usage)
		a.Metrics.RecordContextWindowUsage(a.Provider.Name(), a.Config.Provider.Model, a.Context.CurrentTokens())
		_ = a.Sessions.SaveUsage(ctx, sessionID, final.Usage)

		stopReason := final.StopReason
		toolUses := toolUseBlocks(final.Blocks)
		if stopReason == provider.StopMaxTokens && len(toolUses) == 0 {
			stopReason = provider.StopEndTurn
		}

		switch stopReason {
		case provider.StopEndTurn:
			history = append(history, models.Message{Role: models.RoleAssistant, Blocks: final.Blocks})
			if err := a.Sessions.Save(ctx, sessionID, history); err != nil {
				return fmt.Errorf("save session %s: %w", sessionID, err)
			}
			a.emit(ctx, events, streamID, models.EventDone, nil)
			a.markCompleted(ctx, streamID)
			return nil

		case provider.StopToolUse:
			assistantTurn := models.Message{Role: models.RoleAssistant, Blocks: final.Blocks}
			toolResultTurn := a.runTools(ctx, events, streamID, toolUses)
			history = append(history, assistantTurn, toolResultTurn)
			if err := a.Sessions.Save(ctx, sessionID, history); err != nil {
				return fmt.Errorf("save session %s: %w", sessionID, err)
			}

			if iteration+1 >= a.Config.MaxIterations {
				history = append(history, models.AssistantTurn("[max iterations reached]"))
				if err := a.Sessions.Save(ctx, sessionID, history); err != nil {
					return fmt.Errorf("save session %s: %w", sessionID, err)
				}
				a.emit(ctx, events, streamID, models.EventDone, nil)
				a.markCompleted(ctx, streamID)
				return &MaxIterationsReachedError{MaxIterations: a.Config.MaxIterations}
			}

		default:
			return a.fail(ctx, sessionID, streamID, events, history, accumulated, fmt.Errorf("unrecognized stop reason: %s", stopReason))
		}
	}
}

// consumeDeltas drains the delta channel, emitting token events and the
// single preamble_end boundary, and returns the accumulated assistant
// text so a fatal error afterward can still persist the partial turn.
func (a *Agent) consumeDeltas(ctx context.Context, events chan<- models.AgentEvent, streamID string, deltas <-chan provider.StreamDelta) (string, bool) {
	var accumulated strings.Builder
	preambleEmitted := false
	for delta := range deltas {
		if delta.TextDelta != "" {
			accumulated.WriteString(delta.TextDelta)
			a.emit(ctx, events, streamID, models.EventToken, models.TokenData{Delta: delta.TextDelta})
		}
		if delta.ToolUse != nil && accumulated.Len() > 0 && !preambleEmitted {
			a.emit(ctx, events, streamID, models.EventPreambleEnd, nil)
			preambleEmitted = true
		}
	}
	return accumulated.String(), preambleEmitted
}

// fail classifies a fatal Provider error, persists the partial assistant
// turn if the stream had already produced text, emits the terminal
// `error` event, and marks the EventStore stream failed.
func (a *Agent) fail(ctx context.Context, sessionID, streamID string, events chan<- models.AgentEvent, history []models.Message, partialText string, err error) error {
	if partialText != "" {
		history = append(history, models.AssistantTurn(partialText))
		_ = a.Sessions.Save(ctx, sessionID, history)
	}

	if errors.Is(err, context.Canceled) {
		a.markFailed(ctx, streamID)
		return &CancellationError{Cause: err}
	}

	errType := "ProviderError"
	if callErr, ok := provider.AsCallError(err); ok {
		switch callErr.Kind {
		case provider.KindAuth:
			errType = "ProviderAuthError"
		case provider.KindBadRequest:
			errType = "ProviderBadRequest"
		case provider.KindRateLimit:
			errType = "ProviderRateLimitError"
		case provider.KindServerError:
			errType = "ProviderServerError"
		case provider.KindTimeout:
			errType = "ProviderTimeoutError"
		case provider.KindConnection:
			errType = "ProviderConnectionError"
		}
	}

	a.emit(ctx, events, streamID, models.EventError, models.ErrorData{Type: errType, Message: err.Error()})
	a.markFailed(ctx, streamID)
	return err
}

// runTools fans out every tool_use block concurrently, emitting
// started/completed/failed tool_call events, and returns the aggregated
// user-role tool_result turn with results in call order regardless of
// completion order.
func (a *Agent) runTools(ctx context.Context, events chan<- models.AgentEvent, streamID string, toolUses []models.ContentBlock) models.Message {
	calls := make([]tools.Call, len(toolUses))
	for i, b := range toolUses {
		calls[i] = tools.Call{ID: b.ToolUseID, Name: b.ToolName, Input: b.ToolInput}
	}

	for _, c := range calls {
		a.emit(ctx, events, streamID, models.EventToolCall, models.ToolCallData{
			Name: c.Name, Status: models.ToolCallStarted, Summary: summarizeCall(c.Name, c.Input),
		})
	}

	results := make([]tools.CallResult, len(calls))
	type completion struct {
		index int
		call  tools.Call
	}
	done := make(chan completion, len(calls))
	var wg sync.WaitGroup
	for i, c := range calls {
		wg.Add(1)
		go func(i int, c tools.Call) {
			defer wg.Done()
			start := time.Now()
			result, _ := a.Tools.Execute(ctx, c.Name, c.Input)
			status := "success"
			if result.IsError {
				status = "error"
			}
			a.Metrics.RecordToolExecution(c.Name, status, time.Since(start).Seconds())
			results[i] = tools.CallResult{ID: c.ID, Content: result.Text(), IsError: result.IsError, Blocks: result.Blocks}
			done <- completion{index: i, call: c}
		}(i, c)
	}
	go func() { wg.Wait(); close(done) }()

	for comp := range done {
		r := results[comp.index]
		status := models.ToolCallCompleted
		errMsg := ""
		if r.IsError {
			status = models.ToolCallFailed
			errMsg = r.Content
		}
		a.emit(ctx, events, streamID, models.EventToolCall, models.ToolCallData{
			Name: comp.call.Name, Status: status, Summary: summarizeCall(comp.call.Name, comp.call.Input), Error: errMsg,
		})
	}

	blocks := make([]models.ContentBlock, len(results))
	for i, r := range results {
		blocks[i] = toolResultBlock(r)
	}
	return models.Message{Role: models.RoleUser, Blocks: blocks}
}

func toolResultBlock(r tools.CallResult) models.ContentBlock {
	if r.Blocks != nil {
		var blocks []models.ContentBlock
		if err := json.Unmarshal(r.Blocks, &blocks); err == nil {
			return models.ContentBlock{Type: models.BlockToolResult, ToolUseResultID: r.ID, ResultBlocks: blocks, IsError: r.IsError}
		}
	}
	return models.ToolResultBlock(r.ID, r.Content, r.IsError)
}

// summarizeCall renders a tool call as "name key=value key2=value2" from
// its decoded JSON object, sorted by key for determinism. Non-object
// inputs fall back to the bare name.
func summarizeCall(name string, input json.RawMessage) string {
	var obj map[string]any
	if err := json.Unmarshal(input, &obj); err != nil || len(obj) == 0 {
		return name
	}
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	b.WriteString(name)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%v", k, obj[k])
	}
	return b.String()
}

func toolUseBlocks(blocks []models.ContentBlock) []models.ContentBlock {
	var out []models.ContentBlock
	for _, b := range blocks {
		if b.Type == models.BlockToolUse {
			out = append(out, b)
		}
	}
	return out
}

func convertToolDefs(defs []tools.Definition) []provider.ToolDef {
	out := make([]provider.ToolDef, len(defs))
	for i, d := range defs {
		out[i] = provider.ToolDef{Name: d.Name, Description: d.Description, InputSchema: d.InputSchema}
	}
	return out
}

// estimateTokens returns the closure contextmgr.Compact uses to approximate
// a message list's token cost, backed by the Provider's own counting
// endpoint (or its local approximation) rather than a naive heuristic.
func (a *Agent) estimateTokens(ctx context.Context) func([]models.Message) int {
	return func(msgs []models.Message) int {
		n, err := a.Provider.CountTokens(ctx, msgs, "", nil)
		if err != nil {
			return 0
		}
		return n
	}
}

// emit sends an event to the caller's channel, appending it to the
// EventStore first (when configured) so persistence order matches
// emission order exactly. Returns false if ctx was cancelled before the
// event could be delivered.
func (a *Agent) emit(ctx context.Context, events chan<- models.AgentEvent, streamID string, kind models.EventKind, data any) bool {
	ev := models.AgentEvent{Kind: kind, Time: time.Now()}
	if data != nil {
		ev.Data = models.MustJSON(data)
	}
	if streamID != "" && a.Events != nil {
		_, _ = a.Events.Append(ctx, streamID, ev)
	}
	select {
	case events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

func (a *Agent) markCompleted(ctx context.Context, streamID string) {
	if streamID != "" && a.Events != nil {
		_ = a.Events.MarkCompleted(ctx, streamID)
	}
}

func (a *Agent) markFailed(ctx context.Context, streamID string) {
	if streamID != "" && a.Events != nil {
		_ = a.Events.MarkFailed(ctx, streamID)
	}
}
