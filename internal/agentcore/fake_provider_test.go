package agentcore

import (
	"context"
	"encoding/json"
	"sync/atomic"

	"github.com/agentforge/agentcore/internal/provider"
	"github.com/agentforge/agentcore/pkg/models"
)

// scriptedTurn is one canned response a fakeProvider replays for one
// Stream call, in call order.
type scriptedTurn struct {
	textDeltas []string
	toolCalls  []models.ContentBlock // BlockToolUse blocks
	stop       provider.StopReason
	usage      models.UsageInfo
	err        error // returned from Stream itself, before any delta
	waitErr    error // returned from the final wait() call
}

// fakeProvider is a deterministic Provider test double: each call to
// Stream/Create consumes the next scriptedTurn, looping the last one
// forever once exhausted so a test doesn't need to script every
// iteration precisely.
type fakeProvider struct {
	turns   []scriptedTurn
	calls   int32
	counted int
}

func (f *fakeProvider) next() scriptedTurn {
	i := int(atomic.AddInt32(&f.calls, 1)) - 1
	if i >= len(f.turns) {
		i = len(f.turns) - 1
	}
	return f.turns[i]
}

func (f *fakeProvider) Stream(ctx context.Context, messages []models.Message, system string, tools []provider.ToolDef, maxTokens int) (<-chan provider.StreamDelta, func() (provider.StreamFinal, error), error) {
	turn := f.next()
	if turn.err != nil {
		return nil, nil, turn.err
	}

	ch := make(chan provider.StreamDelta, len(turn.textDeltas)+len(turn.toolCalls))
	for _, d := range turn.textDeltas {
		ch <- provider.StreamDelta{TextDelta: d}
	}
	for _, tc := range turn.toolCalls {
		block := tc
		ch <- provider.StreamDelta{ToolUse: &block}
	}
	close(ch)

	blocks := make([]models.ContentBlock, 0, len(turn.textDeltas)+len(turn.toolCalls))
	var text string
	for _, d := range turn.textDeltas {
		text += d
	}
	if text != "" {
		blocks = append(blocks, models.TextBlock(text))
	}
	blocks = append(blocks, turn.toolCalls...)

	wait := func() (provider.StreamFinal, error) {
		if turn.waitErr != nil {
			return provider.StreamFinal{}, turn.waitErr
		}
		return provider.StreamFinal{Blocks: blocks, StopReason: turn.stop, Usage: turn.usage}, nil
	}
	return ch, wait, nil
}

func (f *fakeProvider) Create(ctx context.Context, messages []models.Message, system string, maxTokens int) (provider.StreamFinal, error) {
	return provider.StreamFinal{
		Blocks:     []models.ContentBlock{models.TextBlock("summary")},
		StopReason: provider.StopEndTurn,
	}, nil
}

func (f *fakeProvider) CountTokens(ctx context.Context, messages []models.Message, system string, tools []provider.ToolDef) (int, error) {
	total := f.counted
	for _, m := range messages {
		total += len(m.Text)
		for _, b := range m.Blocks {
			total += len(b.Text) + len(b.ResultContent)
		}
	}
	return total, nil
}

func (f *fakeProvider) Name() string               { return "fake" }
func (f *fakeProvider) SupportsPromptCaching() bool { return false }

func toolUseInput(pairs ...string) json.RawMessage {
	obj := map[string]string{}
	for i := 0; i+1 < len(pairs); i += 2 {
		obj[pairs[i]] = pairs[i+1]
	}
	b, _ := json.Marshal(obj)
	return b
}
