package models

import "testing"

func TestUsageInfo_CurrentContextTokens(t *testing.T) {
	tests := []struct {
		name string
		u    UsageInfo
		want int
	}{
		{"all zero", UsageInfo{}, 0},
		{"input and output only", UsageInfo{InputTokens: 10, OutputTokens: 5}, 15},
		{
			"all four fields",
			UsageInfo{InputTokens: 10, OutputTokens: 5, CacheCreationInputTokens: 2, CacheReadInputTokens: 3},
			20,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.u.CurrentContextTokens(); got != tt.want {
				t.Errorf("CurrentContextTokens() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestMessage_ToolUseAndResultBlocks(t *testing.T) {
	msg := Message{
		Role: RoleAssistant,
		Blocks: []ContentBlock{
			TextBlock("let me check"),
			ToolUseBlock("call-1", "read_file", nil),
			ToolUseBlock("call-2", "read_file", nil),
		},
	}

	uses := msg.ToolUseBlocks()
	if len(uses) != 2 {
		t.Fatalf("ToolUseBlocks() returned %d blocks, want 2", len(uses))
	}
	if uses[0].ToolUseID != "call-1" || uses[1].ToolUseID != "call-2" {
		t.Errorf("ToolUseBlocks() order mismatch: got %+v", uses)
	}

	resultMsg := Message{
		Role: RoleUser,
		Blocks: []ContentBlock{
			ToolResultBlock("call-1", "ok", false),
			ToolResultBlock("call-2", "boom", true),
		},
	}
	results := resultMsg.ToolResultBlocks()
	if len(results) != 2 {
		t.Fatalf("ToolResultBlocks() returned %d blocks, want 2", len(results))
	}
	if !results[1].IsError {
		t.Errorf("expected second tool_result to be an error")
	}
}

func TestMessage_IsTextOnly(t *testing.T) {
	if !UserTurn("hi").IsTextOnly() {
		t.Errorf("plain text turn should be IsTextOnly")
	}
	blocky := Message{Role: RoleAssistant, Blocks: []ContentBlock{TextBlock("hi")}}
	if blocky.IsTextOnly() {
		t.Errorf("block-carrying turn should not be IsTextOnly")
	}
}
