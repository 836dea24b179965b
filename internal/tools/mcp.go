package tools

import (
	"context"
	"encoding/json"
	"fmt"
)

// MCPTool is the subset of an MCP server's tool listing the adapter needs:
// a name, description, and JSON-Schema input shape, plus a way to invoke it.
type MCPTool struct {
	Name        string
	Description string
	InputSchema map[string]any
	Call        func(ctx context.Context, input json.RawMessage) (string, bool, error)
}

// MCPAdapter registers every tool from one MCP server into a Registry,
// prefixing each name with "<server>__" so tools from different servers
// never collide with each other. Registering the same server twice, or a
// native tool already named "<server>__name", fails with *DuplicateToolError.
type MCPAdapter struct {
	Server   string
	Registry *Registry
}

// RegisterAll binds every tool in tools into the adapter's registry under
// its prefixed name, tagged source "mcp".
func (a *MCPAdapter) RegisterAll(tools []MCPTool) error {
	for _, t := range tools {
		prefixed := fmt.Sprintf("%s__%s", a.Server, t.Name)
		call := t.Call
		def := Definition{
			Name:        prefixed,
			Description: t.Description,
			InputSchema: t.InputSchema,
			Source:      SourceMCP,
			Handler: func(ctx context.Context, input json.RawMessage) (Result, error) {
				text, isError, err := call(ctx, input)
				if err != nil {
					return ErrorResult(err.Error()), nil
				}
				if isError {
					return ErrorResult(text), nil
				}
				return StringResult(text), nil
			},
		}
		if err := a.Registry.Register(def); err != nil {
			return fmt.Errorf("mcp adapter %s: %w", a.Server, err)
		}
	}
	return nil
}
