package agentcore

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/agentforge/agentcore/internal/eventstore"
	"github.com/agentforge/agentcore/internal/provider"
	"github.com/agentforge/agentcore/internal/sessionstore"
	"github.com/agentforge/agentcore/internal/skills"
	"github.com/agentforge/agentcore/internal/tools"
	"github.com/agentforge/agentcore/pkg/models"
)

func newTestAgent(t *testing.T, prov *fakeProvider) (*Agent, eventstore.Store) {
	t.Helper()
	es := eventstore.NewMemoryStore(eventstore.DefaultTTL)
	a := New(prov, tools.New(tools.DefaultOptions()), skills.New(), sessionstore.NewMemoryBackend(), Config{
		Provider:      provider.Config{MaxRetries: 2, InitialDelay: time.Millisecond},
		ContextWindow: 100_000,
	})
	a.Events = es
	return a, es
}

func drain(t *testing.T, events <-chan models.AgentEvent, errc <-chan error) ([]models.AgentEvent, error) {
	t.Helper()
	var got []models.AgentEvent
	for ev := range events {
		got = append(got, ev)
	}
	return got, <-errc
}

// Scenario 1: a plain turn with no tool calls ends in a single `done`.
func TestStreamMessage_PlainTurn(t *testing.T) {
	prov := &fakeProvider{turns: []scriptedTurn{
		{textDeltas: []string{"Hello", ", world"}, stop: provider.StopEndTurn},
	}}
	a, _ := newTestAgent(t, prov)

	events, errc := a.StreamMessage(context.Background(), "s1", Input{Text: "hi"}, "")
	got, err := drain(t, events, errc)
	if err != nil {
		t.Fatalf("StreamMessage error: %v", err)
	}

	var kinds []models.EventKind
	for _, ev := range got {
		kinds = append(kinds, ev.Kind)
	}
	if len(kinds) < 3 || kinds[len(kinds)-1] != models.EventDone {
		t.Fatalf("expected token(s) then done, got %v", kinds)
	}

	history, _ := a.Sessions.Load(context.Background(), "s1")
	if len(history) != 2 {
		t.Fatalf("expected 2 persisted turns, got %d", len(history))
	}
}

// Scenario 2: a single tool call pairs tool_use with tool_result and the
// loop continues to a second Provider call that ends the turn.
func TestStreamMessage_SingleToolCall(t *testing.T) {
	echo := tools.Definition{
		Name:        "echo",
		Description: "echoes its input",
		Handler: func(ctx context.Context, input json.RawMessage) (tools.Result, error) {
			return tools.StringResult("echoed"), nil
		},
	}

	prov := &fakeProvider{turns: []scriptedTurn{
		{
			toolCalls: []models.ContentBlock{models.ToolUseBlock("call-1", "echo", toolUseInput("x", "1"))},
			stop:      provider.StopToolUse,
		},
		{textDeltas: []string{"done"}, stop: provider.StopEndTurn},
	}}
	a, _ := newTestAgent(t, prov)
	if err := a.Tools.Register(echo); err != nil {
		t.Fatal(err)
	}

	events, errc := a.StreamMessage(context.Background(), "s2", Input{Text: "run echo"}, "")
	got, err := drain(t, events, errc)
	if err != nil {
		t.Fatalf("StreamMessage error: %v", err)
	}

	var toolEvents int
	for _, ev := range got {
		if ev.Kind == models.EventToolCall {
			toolEvents++
		}
	}
	if toolEvents != 2 {
		t.Fatalf("expected started+completed tool_call events, got %d", toolEvents)
	}

	history, _ := a.Sessions.Load(context.Background(), "s2")
	assertToolPairing(t, history)
}

// Scenario 3: parallel tool calls run concurrently, not serially — wall
// clock stays close to a single tool's sleep rather than the sum.
func TestStreamMessage_ParallelToolsRunConcurrently(t *testing.T) {
	sleepy := tools.Definition{
		Name: "sleepy",
		Handler: func(ctx context.Context, input json.RawMessage) (tools.Result, error) {
			time.Sleep(40 * time.Millisecond)
			return tools.StringResult("ok"), nil
		},
	}

	prov := &fakeProvider{turns: []scriptedTurn{
		{
			toolCalls: []models.ContentBlock{
				models.ToolUseBlock("c1", "sleepy", toolUseInput()),
				models.ToolUseBlock("c2", "sleepy", toolUseInput()),
				models.ToolUseBlock("c3", "sleepy", toolUseInput()),
			},
			stop: provider.StopToolUse,
		},
		{textDeltas: []string{"done"}, stop: provider.StopEndTurn},
	}}
	a, _ := newTestAgent(t, prov)
	if err := a.Tools.Register(sleepy); err != nil {
		t.Fatal(err)
	}

	start := time.Now()
	events, errc := a.StreamMessage(context.Background(), "s3", Input{Text: "go"}, "")
	_, err := drain(t, events, errc)
	elapsed := time.Since(start)
	if err != nil {
		t.Fatalf("StreamMessage error: %v", err)
	}
	if elapsed > 180*time.Millisecond {
		t.Fatalf("expected concurrent tool execution, took %v", elapsed)
	}
}

// Scenario 4: an oversized tool result is paginated; the tool_result
// content carries the literal footer format.
func TestStreamMessage_OversizedResultIsPaginated(t *testing.T) {
	big := tools.Definition{
		Name: "dump",
		Handler: func(ctx context.Context, input json.RawMessage) (tools.Result, error) {
			return tools.StringResult(string(make([]byte, tools.DefaultMaxResultChars+100))), nil
		},
	}

	prov := &fakeProvider{turns: []scriptedTurn{
		{toolCalls: []models.ContentBlock{models.ToolUseBlock("c1", "dump", toolUseInput())}, stop: provider.StopToolUse},
		{textDeltas: []string{"done"}, stop: provider.StopEndTurn},
	}}
	a, _ := newTestAgent(t, prov)
	if err := a.Tools.Register(big); err != nil {
		t.Fatal(err)
	}

	events, errc := a.StreamMessage(context.Background(), "s4", Input{Text: "dump it"}, "")
	_, err := drain(t, events, errc)
	if err != nil {
		t.Fatalf("StreamMessage error: %v", err)
	}

	history, _ := a.Sessions.Load(context.Background(), "s4")
	found := false
	for _, msg := range history {
		for _, b := range msg.ToolResultBlocks() {
			if strings.Contains(b.ResultContent, "[Page 1/2]") {
				found = true
			}
		}
	}
	if !found {
		t.Fatal("expected a persisted tool_result block carrying the [Page 1/2] footer")
	}
}

// Scenario 5: crossing the compaction trigger threshold emits a compact
// event before the next Provider call, not after.
func TestStreamMessage_CompactionTriggersAtThreshold(t *testing.T) {
	noop := tools.Definition{
		Name: "noop",
		Handler: func(ctx context.Context, input json.RawMessage) (tools.Result, error) {
			return tools.StringResult("ok"), nil
		},
	}

	prov := &fakeProvider{turns: []scriptedTurn{
		{
			toolCalls: []models.ContentBlock{models.ToolUseBlock("c1", "noop", toolUseInput())},
			stop:      provider.StopToolUse,
			usage:     models.UsageInfo{InputTokens: 600},
		},
		{textDeltas: []string{"done"}, stop: provider.StopEndTurn},
	}}
	a := New(prov, tools.New(tools.DefaultOptions()), skills.New(), sessionstore.NewMemoryBackend(), Config{
		Provider:         provider.Config{MaxRetries: 2, InitialDelay: time.Millisecond},
		ContextWindow:    1000,
		CompactThreshold: 0.5,
	})
	if err := a.Tools.Register(noop); err != nil {
		t.Fatal(err)
	}

	events, errc := a.StreamMessage(context.Background(), "s5", Input{Text: "go"}, "")
	got, err := drain(t, events, errc)
	if err != nil {
		t.Fatalf("StreamMessage error: %v", err)
	}

	var compactEvents []models.CompactData
	for _, ev := range got {
		if ev.Kind == models.EventCompact {
			var d models.CompactData
			if err := json.Unmarshal(ev.Data, &d); err != nil {
				t.Fatal(err)
			}
			compactEvents = append(compactEvents, d)
		}
	}
	if len(compactEvents) == 0 {
		t.Fatal("expected at least one compact event after crossing the trigger threshold")
	}
	if compactEvents[0].Phase != models.CompactPhaseTruncate {
		t.Fatalf("expected truncate as the first compaction phase, got %s", compactEvents[0].Phase)
	}
}

// Scenario 6: a resumable stream serves only events after the requested
// id on replay.
func TestStreamMessage_ResumableStreamReadsSuffix(t *testing.T) {
	prov := &fakeProvider{turns: []scriptedTurn{
		{textDeltas: []string{"a", "b", "c", "d"}, stop: provider.StopEndTurn},
	}}
	a, es := newTestAgent(t, prov)

	events, errc := a.StreamMessage(context.Background(), "s6", Input{Text: "hi"}, "stream-1")
	_, err := drain(t, events, errc)
	if err != nil {
		t.Fatalf("StreamMessage error: %v", err)
	}

	all, err := es.Read(context.Background(), "stream-1", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) < 4 {
		t.Fatalf("expected at least 4 stored events, got %d", len(all))
	}

	resumed, err := es.Read(context.Background(), "stream-1", 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(resumed) != len(all)-3 {
		t.Fatalf("expected suffix of length %d, got %d", len(all)-3, len(resumed))
	}
	for i, ev := range resumed {
		if ev.ID != all[i+3].ID {
			t.Fatalf("resume mismatch at %d: got id %d, want %d", i, ev.ID, all[i+3].ID)
		}
	}

	status, err := es.Status(context.Background(), "stream-1")
	if err != nil {
		t.Fatal(err)
	}
	if status != models.StreamCompleted {
		t.Fatalf("expected stream marked completed, got %s", status)
	}
}

// Scenario 7: two rate-limit failures followed by success are retried
// transparently, surfacing as retry events rather than a terminal error.
func TestStreamMessage_RetriesTransientRateLimit(t *testing.T) {
	rateLimited := provider.NewCallError("fake", "m", nil).WithStatus(429)
	prov := &fakeProvider{turns: []scriptedTurn{
		{err: rateLimited},
		{err: rateLimited},
		{textDeltas: []string{"ok"}, stop: provider.StopEndTurn},
	}}
	a, _ := newTestAgent(t, prov)

	events, errc := a.StreamMessage(context.Background(), "s7", Input{Text: "hi"}, "")
	got, err := drain(t, events, errc)
	if err != nil {
		t.Fatalf("expected eventual success, got error: %v", err)
	}

	retries := 0
	for _, ev := range got {
		if ev.Kind == models.EventRetry {
			retries++
		}
	}
	if retries != 2 {
		t.Fatalf("expected 2 retry events, got %d", retries)
	}
}

// Scenario 8: an auth failure is not retried and surfaces exactly one
// error event.
func TestStreamMessage_AuthFailureDoesNotRetry(t *testing.T) {
	authErr := provider.NewCallError("fake", "m", nil).WithStatus(401)
	prov := &fakeProvider{turns: []scriptedTurn{{err: authErr}}}
	a, _ := newTestAgent(t, prov)

	events, errc := a.StreamMessage(context.Background(), "s8", Input{Text: "hi"}, "")
	got, err := drain(t, events, errc)
	if err == nil {
		t.Fatal("expected a terminal error")
	}

	errEvents := 0
	for _, ev := range got {
		if ev.Kind == models.EventError {
			errEvents++
		}
		if ev.Kind == models.EventRetry {
			t.Fatal("auth failures must not retry")
		}
	}
	if errEvents != 1 {
		t.Fatalf("expected exactly 1 error event, got %d", errEvents)
	}
	if prov.calls != 1 {
		t.Fatalf("expected exactly 1 provider call, got %d", prov.calls)
	}
}

// Invariant: empty input is rejected before any Provider call, with
// history left unchanged.
func TestStreamMessage_EmptyInputRejectedBeforeProviderCall(t *testing.T) {
	prov := &fakeProvider{turns: []scriptedTurn{{stop: provider.StopEndTurn}}}
	a, _ := newTestAgent(t, prov)

	events, errc := a.StreamMessage(context.Background(), "s9", Input{Text: "   "}, "")
	_, err := drain(t, events, errc)
	if _, ok := err.(*InvalidInputError); !ok {
		t.Fatalf("expected *InvalidInputError, got %T: %v", err, err)
	}
	if prov.calls != 0 {
		t.Fatalf("expected no provider calls for invalid input, got %d", prov.calls)
	}
}

// Invariant: the iteration cap forces a synthetic done rather than
// looping forever, and the final turn carries the sentinel text.
func TestStreamMessage_MaxIterationsForcesSyntheticDone(t *testing.T) {
	toolCall := models.ToolUseBlock("c1", "noop", toolUseInput())
	prov := &fakeProvider{turns: []scriptedTurn{
		{toolCalls: []models.ContentBlock{toolCall}, stop: provider.StopToolUse},
	}}
	a, _ := newTestAgent(t, prov)
	a.Config.MaxIterations = 2
	if err := a.Tools.Register(tools.Definition{
		Name: "noop",
		Handler: func(ctx context.Context, input json.RawMessage) (tools.Result, error) {
			return tools.StringResult("ok"), nil
		},
	}); err != nil {
		t.Fatal(err)
	}

	events, errc := a.StreamMessage(context.Background(), "s10", Input{Text: "loop"}, "")
	got, err := drain(t, events, errc)
	if _, ok := err.(*MaxIterationsReachedError); !ok {
		t.Fatalf("expected *MaxIterationsReachedError, got %T: %v", err, err)
	}

	last := got[len(got)-1]
	if last.Kind != models.EventDone {
		t.Fatalf("expected terminal done event, got %s", last.Kind)
	}

	history, _ := a.Sessions.Load(context.Background(), "s10")
	final := history[len(history)-1]
	if final.Text != "[max iterations reached]" {
		t.Fatalf("expected sentinel turn, got %q", final.Text)
	}
	assertToolPairing(t, history)
}

// Invariant: session histories are fully isolated between session ids.
func TestStreamMessage_SessionsAreIsolated(t *testing.T) {
	prov := &fakeProvider{turns: []scriptedTurn{{textDeltas: []string{"hi"}, stop: provider.StopEndTurn}}}
	a, _ := newTestAgent(t, prov)

	for _, id := range []string{"alpha", "beta"} {
		events, errc := a.StreamMessage(context.Background(), id, Input{Text: "hello " + id}, "")
		if _, err := drain(t, events, errc); err != nil {
			t.Fatal(err)
		}
	}

	alphaHistory, _ := a.Sessions.Load(context.Background(), "alpha")
	betaHistory, _ := a.Sessions.Load(context.Background(), "beta")
	if alphaHistory[0].Text == betaHistory[0].Text {
		t.Fatal("expected distinct session histories")
	}
}

// assertToolPairing verifies every tool_use block has a matching
// tool_result in the immediately following turn, and vice versa.
func assertToolPairing(t *testing.T, history []models.Message) {
	t.Helper()
	for i, msg := range history {
		uses := msg.ToolUseBlocks()
		if len(uses) == 0 {
			continue
		}
		if i+1 >= len(history) {
			t.Fatalf("turn %d has tool_use with no following turn", i)
		}
		results := history[i+1].ToolResultBlocks()
		if len(results) != len(uses) {
			t.Fatalf("turn %d: %d tool_use blocks but %d tool_result blocks", i, len(uses), len(results))
		}
		for j, u := range uses {
			if results[j].ToolUseResultID != u.ToolUseID {
				t.Fatalf("turn %d: tool_result[%d] id %q does not match tool_use[%d] id %q",
					i, j, results[j].ToolUseResultID, j, u.ToolUseID)
			}
		}
	}
}
