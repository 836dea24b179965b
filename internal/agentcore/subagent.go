package agentcore

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/agentforge/agentcore/internal/sessionstore"
	"github.com/agentforge/agentcore/internal/skills"
	"github.com/agentforge/agentcore/internal/tools"
	"github.com/agentforge/agentcore/pkg/models"
)

// CreateSubagentToolName is the built-in tool name a parent Agent exposes
// for delegating a bounded sub-task to a disposable child run.
const CreateSubagentToolName = "create_subagent"

var subagentInputSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"task": map[string]any{
			"type":        "string",
			"description": "The task to hand to the subagent, in place of a user turn.",
		},
		"system_prompt": map[string]any{
			"type":        "string",
			"description": "Optional system prompt override for the subagent; defaults to the parent's.",
		},
	},
	"required": []string{"task"},
}

type subagentInput struct {
	Task         string `json:"task"`
	SystemPrompt string `json:"system_prompt"`
}

// RegisterSubagentTool adds create_subagent to parent.Tools. The child it
// spawns per call shares parent's Provider and Sandbox, inherits every
// other registered tool (never create_subagent itself, so nesting is
// bounded to one level), and runs against its own empty, throwaway
// history — nothing it does is visible to the parent's event stream or
// session except the final text it returns as the tool_result.
func RegisterSubagentTool(parent *Agent) error {
	return parent.Tools.Register(tools.Definition{
		Name:        CreateSubagentToolName,
		Description: "Delegate a bounded task to a fresh subagent and return its final answer.",
		InputSchema: subagentInputSchema,
		Source:      tools.SourceSubagent,
		Handler: func(ctx context.Context, raw json.RawMessage) (tools.Result, error) {
			var in subagentInput
			if err := json.Unmarshal(raw, &in); err != nil {
				return tools.ErrorResult(fmt.Sprintf("invalid create_subagent input: %v", err)), nil
			}
			text, err := runSubagent(ctx, parent, in)
			if err != nil {
				return tools.ErrorResult(err.Error()), nil
			}
			return tools.StringResult(text), nil
		},
	})
}

// runSubagent builds a child Agent inheriting parent's Provider, Sandbox,
// and every tool but create_subagent, runs it to completion on an
// isolated in-memory session, and returns the final assistant text.
func runSubagent(ctx context.Context, parent *Agent, in subagentInput) (string, error) {
	childTools := tools.New(tools.DefaultOptions())
	for _, def := range parent.Tools.Definitions() {
		if def.Name == CreateSubagentToolName {
			continue
		}
		if _, exists := childTools.Get(def.Name); exists {
			// read_more is auto-registered by tools.New itself.
			continue
		}
		if err := childTools.Register(def); err != nil {
			return "", fmt.Errorf("subagent tool setup: %w", err)
		}
	}

	systemPrompt := in.SystemPrompt
	if systemPrompt == "" {
		systemPrompt = parent.Config.SystemPrompt
	}

	childCfg := parent.Config
	childCfg.SystemPrompt = systemPrompt

	child := New(parent.Provider, childTools, skills.New(), sessionstore.NewMemoryBackend(), childCfg)
	child.Sandbox = parent.Sandbox

	sessionID := uuid.NewString()
	events, errc := child.StreamMessage(ctx, sessionID, Input{Text: in.Task}, "")

	// The subagent's own token/tool_call/done events never reach the
	// parent's stream; only its final answer, read back from history
	// below, crosses the tool-call boundary.
	for range events {
	}

	if err := <-errc; err != nil {
		if _, ok := err.(*MaxIterationsReachedError); !ok {
			return "", fmt.Errorf("subagent: %w", err)
		}
	}

	history, err := child.Sessions.Load(ctx, sessionID)
	if err != nil {
		return "", fmt.Errorf("subagent: load result: %w", err)
	}
	return lastAssistantText(history), nil
}

// lastAssistantText returns the concatenated text of the final assistant
// turn in history, the subagent's answer to its caller.
func lastAssistantText(history []models.Message) string {
	for i := len(history) - 1; i >= 0; i-- {
		msg := history[i]
		if msg.Role != models.RoleAssistant {
			continue
		}
		if msg.IsTextOnly() {
			return msg.Text
		}
		var out string
		for _, b := range msg.Blocks {
			if b.Type == models.BlockText {
				out += b.Text
			}
		}
		return out
	}
	return ""
}
