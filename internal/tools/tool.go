// Package tools implements the tool registry: registration with source
// tagging, concurrent execution preserving call order, oversized-result
// pagination via a scratch store, and JSON-Schema input validation.
package tools

import (
	"context"
	"encoding/json"
)

// Source identifies how a tool entered the registry.
type Source string

const (
	SourceNative   Source = "native"
	SourceMCP      Source = "mcp"
	SourceSkill    Source = "skill"
	SourceSubagent Source = "subagent"
)

// Result is what a handler returns: either a plain string (subject to
// pagination) or pre-built content blocks (never paginated).
type Result struct {
	Content json.RawMessage // string result, JSON-encoded
	Blocks  []byte          // block-structured result, pre-serialized; nil when Content is used
	IsError bool
}

// StringResult builds a successful plain-text Result.
func StringResult(s string) Result {
	b, _ := json.Marshal(s)
	return Result{Content: b}
}

// ErrorResult builds a failed Result carrying a message.
func ErrorResult(message string) Result {
	b, _ := json.Marshal(message)
	return Result{Content: b, IsError: true}
}

// IsBlockStructured reports whether this result bypasses pagination.
func (r Result) IsBlockStructured() bool {
	return r.Blocks != nil
}

// Text returns the string content, when Result is a plain string.
func (r Result) Text() string {
	var s string
	_ = json.Unmarshal(r.Content, &s)
	return s
}

// Handler executes a tool call given validated JSON input.
type Handler func(ctx context.Context, input json.RawMessage) (Result, error)

// Definition is one registered tool: its name, description, JSON-Schema
// input shape, handler, and provenance tag.
type Definition struct {
	Name        string
	Description string
	InputSchema map[string]any
	Handler     Handler
	Source      Source
}
