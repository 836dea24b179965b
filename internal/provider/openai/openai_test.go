package openai

import (
	"context"
	"encoding/json"
	"testing"

	openai "github.com/sashabaranov/go-openai"

	"github.com/agentforge/agentcore/internal/provider"
	"github.com/agentforge/agentcore/pkg/models"
)

func TestConvertMessages_TextOnly(t *testing.T) {
	messages := []models.Message{
		models.UserTurn("hello"),
		models.AssistantTurn("hi there"),
	}
	out := convertMessages(messages, "you are helpful")
	if len(out) != 3 {
		t.Fatalf("len(out) = %d, want 3 (system + 2 turns)", len(out))
	}
	if out[0].Role != openai.ChatMessageRoleSystem || out[0].Content != "you are helpful" {
		t.Errorf("out[0] = %+v, want system prompt first", out[0])
	}
	if out[1].Role != openai.ChatMessageRoleUser || out[1].Content != "hello" {
		t.Errorf("out[1] = %+v", out[1])
	}
	if out[2].Role != openai.ChatMessageRoleAssistant || out[2].Content != "hi there" {
		t.Errorf("out[2] = %+v", out[2])
	}
}

func TestConvertMessages_ToolUseAndResult(t *testing.T) {
	messages := []models.Message{
		{
			Role: models.RoleAssistant,
			Blocks: []models.ContentBlock{
				models.ToolUseBlock("call_1", "get_weather", json.RawMessage(`{"city":"NYC"}`)),
			},
		},
		{
			Role: models.RoleUser,
			Blocks: []models.ContentBlock{
				models.ToolResultBlock("call_1", "Sunny, 72F", false),
			},
		},
	}
	out := convertMessages(messages, "")
	if len(out) != 2 {
		t.Fatalf("len(out) = %d, want 2", len(out))
	}
	if len(out[0].ToolCalls) != 1 || out[0].ToolCalls[0].Function.Name != "get_weather" {
		t.Errorf("out[0].ToolCalls = %+v", out[0].ToolCalls)
	}
	if out[1].Role != openai.ChatMessageRoleTool || out[1].ToolCallID != "call_1" {
		t.Errorf("out[1] = %+v, want tool-role result", out[1])
	}
}

func TestConvertTools(t *testing.T) {
	tools := []provider.ToolDef{
		{Name: "search", Description: "search the web", InputSchema: map[string]any{"type": "object"}},
	}
	out := convertTools(tools)
	if len(out) != 1 {
		t.Fatalf("len(out) = %d, want 1", len(out))
	}
	if out[0].Function.Name != "search" {
		t.Errorf("Function.Name = %q, want search", out[0].Function.Name)
	}
}

func TestNew_RequiresAPIKey(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Error("New() with empty APIKey should error")
	}
}

func TestCountTokens_Approximates(t *testing.T) {
	p, err := New(Config{APIKey: "sk-test"})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	n, err := p.CountTokens(context.Background(), []models.Message{models.UserTurn("12345678")}, "", nil)
	if err != nil {
		t.Fatalf("CountTokens() error = %v", err)
	}
	if n != 2 {
		t.Errorf("CountTokens() = %d, want 2 (8 chars / 4)", n)
	}
}
