// Package models provides the domain types shared across agentcore:
// messages and content blocks, usage accounting, sessions, skills, and the
// wire-level event envelope.
package models

import "encoding/json"

// Role indicates the turn's author.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// BlockType discriminates the content block union.
type BlockType string

const (
	BlockText       BlockType = "text"
	BlockImage      BlockType = "image"
	BlockDocument   BlockType = "document"
	BlockToolUse    BlockType = "tool_use"
	BlockToolResult BlockType = "tool_result"
)

// Message is one turn in a conversation: a role and either plain text or an
// ordered list of content blocks.
type Message struct {
	Role    Role           `json:"role"`
	Text    string         `json:"text,omitempty"`
	Blocks  []ContentBlock `json:"blocks,omitempty"`
}

// IsTextOnly reports whether the turn's content is the single Text field
// rather than a block list.
func (m Message) IsTextOnly() bool {
	return len(m.Blocks) == 0
}

// ContentBlock is one element of a mixed-content turn. Exactly one of the
// payload fields is populated, selected by Type.
type ContentBlock struct {
	Type BlockType `json:"type"`

	// text
	Text string `json:"text,omitempty"`

	// image / document
	Source *BlockSource `json:"source,omitempty"`

	// tool_use
	ToolUseID   string          `json:"id,omitempty"`
	ToolName    string          `json:"name,omitempty"`
	ToolInput   json.RawMessage `json:"input,omitempty"`

	// tool_result
	ToolUseResultID string         `json:"tool_use_id,omitempty"`
	ResultContent   string         `json:"content,omitempty"`
	ResultBlocks    []ContentBlock `json:"content_blocks,omitempty"`
	IsError         bool           `json:"is_error,omitempty"`
}

// BlockSourceKind discriminates how an image/document block carries its bytes.
type BlockSourceKind string

const (
	SourceBase64 BlockSourceKind = "base64"
	SourceURL    BlockSourceKind = "url"
)

// BlockSource is the union of ways an image or document block may supply
// its data.
type BlockSource struct {
	Kind      BlockSourceKind `json:"kind"`
	MediaType string          `json:"media_type,omitempty"`
	Data      string          `json:"data,omitempty"` // base64, when Kind == SourceBase64
	URL       string          `json:"url,omitempty"`  // when Kind == SourceURL
}

// TextBlock builds a text content block.
func TextBlock(text string) ContentBlock {
	return ContentBlock{Type: BlockText, Text: text}
}

// ToolUseBlock builds a tool_use content block.
func ToolUseBlock(id, name string, input json.RawMessage) ContentBlock {
	return ContentBlock{Type: BlockToolUse, ToolUseID: id, ToolName: name, ToolInput: input}
}

// ToolResultBlock builds a tool_result content block with string content.
func ToolResultBlock(toolUseID, content string, isError bool) ContentBlock {
	return ContentBlock{Type: BlockToolResult, ToolUseResultID: toolUseID, ResultContent: content, IsError: isError}
}

// ToolUseBlocks returns every tool_use block in the turn, in order.
func (m Message) ToolUseBlocks() []ContentBlock {
	var out []ContentBlock
	for _, b := range m.Blocks {
		if b.Type == BlockToolUse {
			out = append(out, b)
		}
	}
	return out
}

// ToolResultBlocks returns every tool_result block in the turn, in order.
func (m Message) ToolResultBlocks() []ContentBlock {
	var out []ContentBlock
	for _, b := range m.Blocks {
		if b.Type == BlockToolResult {
			out = append(out, b)
		}
	}
	return out
}

// UserTurn builds a user-role turn from plain text.
func UserTurn(text string) Message {
	return Message{Role: RoleUser, Text: text}
}

// AssistantTurn builds an assistant-role turn from plain text.
func AssistantTurn(text string) Message {
	return Message{Role: RoleAssistant, Text: text}
}
