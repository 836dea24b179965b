// Package contextmgr tracks token usage against a provider's context
// window and compacts history in two phases when a trigger threshold is
// crossed: tool-result truncation, then LLM-based summarization.
package contextmgr

import (
	"context"
	"fmt"

	"github.com/agentforge/agentcore/internal/provider"
	"github.com/agentforge/agentcore/pkg/models"
)

const truncatedPlaceholder = "[compacted: tool result omitted]"

// Config controls when and how compaction runs.
type Config struct {
	// ContextWindow is the provider's total token budget.
	ContextWindow int
	// TriggerThreshold is the usage_percent above which compaction runs,
	// checked before every provider call. Default 0.8.
	TriggerThreshold float64
	// KeepRecentTurnPairs is how many trailing user/assistant turn-pairs
	// phase 2 leaves unsummarized. Default 4.
	KeepRecentTurnPairs int
}

// DefaultConfig returns the spec's default trigger and window.
func DefaultConfig(contextWindow int) Config {
	return Config{
		ContextWindow:       contextWindow,
		TriggerThreshold:    0.8,
		KeepRecentTurnPairs: 4,
	}
}

// Manager tracks the most recently reported UsageInfo and performs
// compaction against a Provider for summarization.
type Manager struct {
	cfg   Config
	usage models.UsageInfo
}

// New constructs a Manager with defaulted zero fields.
func New(cfg Config) *Manager {
	if cfg.TriggerThreshold <= 0 {
		cfg.TriggerThreshold = 0.8
	}
	if cfg.KeepRecentTurnPairs <= 0 {
		cfg.KeepRecentTurnPairs = 4
	}
	return &Manager{cfg: cfg}
}

// RecordUsage stores the latest usage report from a provider call.
func (m *Manager) RecordUsage(u models.UsageInfo) {
	m.usage = u
}

// CurrentTokens is input+cache_creation+cache_read+output from the last
// recorded usage.
func (m *Manager) CurrentTokens() int {
	return m.usage.CurrentContextTokens()
}

// UsagePercent is CurrentTokens / ContextWindow, 0 when no window is set.
func (m *Manager) UsagePercent() float64 {
	if m.cfg.ContextWindow <= 0 {
		return 0
	}
	return float64(m.CurrentTokens()) / float64(m.cfg.ContextWindow)
}

// ShouldCompact reports whether usage has crossed the trigger threshold.
func (m *Manager) ShouldCompact() bool {
	return m.UsagePercent() >= m.cfg.TriggerThreshold
}

// CompactResult describes one compaction pass for event emission.
type CompactResult struct {
	Phase        models.CompactPhase
	BeforeTokens int
	AfterTokens  int
	History      []models.Message
}

// Compact runs phase 1 (truncation) and, if usage is still over threshold
// afterward, phase 2 (summarization via prov). estimateTokens approximates
// a message list's token cost for the post-truncation check, since the
// manager only has the provider's usage report for the whole conversation,
// not per-message costs.
func (m *Manager) Compact(ctx context.Context, history []models.Message, prov provider.Provider, estimateTokens func([]models.Message) int) ([]CompactResult, []models.Message, error) {
	var results []CompactResult

	beforeTokens := estimateTokens(history)
	truncated := truncateToolResults(history)
	afterTokens := estimateTokens(truncated)
	results = append(results, CompactResult{
		Phase:        models.CompactPhaseTruncate,
		BeforeTokens: beforeTokens,
		AfterTokens:  afterTokens,
		History:      truncated,
	})

	if m.cfg.ContextWindow <= 0 || float64(afterTokens)/float64(m.cfg.ContextWindow) < m.cfg.TriggerThreshold {
		return results, truncated, nil
	}

	summarized, err := m.summarize(ctx, truncated, prov)
	if err != nil {
		return results, truncated, fmt.Errorf("summarization: %w", err)
	}
	afterSummary := estimateTokens(summarized)
	results = append(results, CompactResult{
		Phase:        models.CompactPhaseSummarize,
		BeforeTokens: afterTokens,
		AfterTokens:  afterSummary,
		History:      summarized,
	})
	return results, summarized, nil
}

// truncateToolResults walks history oldest->newest and blanks every
// tool_result block's content except those belonging to the last
// turn-pair, keeping the matching tool_use blocks verbatim so the pairing
// invariant holds.
func truncateToolResults(history []models.Message) []models.Message {
	lastPairStart := lastTurnPairStart(history)

	out := make([]models.Message, len(history))
	for i, msg := range history {
		if i >= lastPairStart || len(msg.Blocks) == 0 {
			out[i] = msg
			continue
		}
		hasResult := false
		for _, b := range msg.Blocks {
			if b.Type == models.BlockToolResult {
				hasResult = true
				break
			}
		}
		if !hasResult {
			out[i] = msg
			continue
		}
		blocks := make([]models.ContentBlock, len(msg.Blocks))
		copy(blocks, msg.Blocks)
		for j, b := range blocks {
			if b.Type == models.BlockToolResult {
				b.ResultContent = truncatedPlaceholder
				b.ResultBlocks = nil
				blocks[j] = b
			}
		}
		cp := msg
		cp.Blocks = blocks
		out[i] = cp
	}
	return out
}

// lastTurnPairStart returns the index where the final user/assistant
// turn-pair begins, so truncation can exempt it. A turn-pair is a user
// turn followed by the assistant turn(s) that answer it; with no messages
// or a single trailing turn, the whole history is exempt.
func lastTurnPairStart(history []models.Message) int {
	if len(history) == 0 {
		return 0
	}
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == models.RoleUser {
			return i
		}
	}
	return 0
}

const summarizationSystemPrompt = "Summarize the conversation so far preserving: user goals, key facts discovered, and pending tasks. Omit tool chatter and full file contents."

// summarize partitions history into early/recent (recent = last
// KeepRecentTurnPairs turn-pairs), asks prov for a text summary of the
// early slice, and splices it back as exactly two turns.
func (m *Manager) summarize(ctx context.Context, history []models.Message, prov provider.Provider) ([]models.Message, error) {
	splitAt := recentSplitIndex(history, m.cfg.KeepRecentTurnPairs)
	early, recent := history[:splitAt], history[splitAt:]
	if len(early) == 0 {
		return history, nil
	}

	final, err := prov.Create(ctx, early, summarizationSystemPrompt, 1024)
	if err != nil {
		return nil, err
	}
	summary := blocksToText(final.Blocks)

	replaced := make([]models.Message, 0, 2+len(recent))
	replaced = append(replaced,
		models.UserTurn("[Conversation summary] "+summary),
		models.AssistantTurn("Understood. Continuing."),
	)
	replaced = append(replaced, recent...)
	return replaced, nil
}

// recentSplitIndex returns the index marking the start of the last
// keepPairs user-turn-initiated pairs.
func recentSplitIndex(history []models.Message, keepPairs int) int {
	userTurns := 0
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == models.RoleUser {
			userTurns++
			if userTurns == keepPairs {
				return i
			}
		}
	}
	return 0
}

func blocksToText(blocks []models.ContentBlock) string {
	var out string
	for _, b := range blocks {
		if b.Type == models.BlockText {
			out += b.Text
		}
	}
	return out
}
