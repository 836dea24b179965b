package agentcore

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/agentforge/agentcore/internal/tools"
)

// MCPToolDescriptor is one tool an MCPClient exposes, in listing form.
type MCPToolDescriptor struct {
	Name        string
	Description string
	InputSchema map[string]any
}

// MCPClient is the capability an MCP server connection exposes. The core
// never dials a server itself; callers construct one per server and pass
// it to ConnectMCPServer to bind its tools into a Registry.
type MCPClient interface {
	ServerName() string
	ListTools(ctx context.Context) ([]MCPToolDescriptor, error)
	CallTool(ctx context.Context, name string, args json.RawMessage) (result string, isError bool, err error)
	Close() error
}

// ConnectMCPServer lists client's tools and registers each one into
// registry under the "<server>__" prefix via tools.MCPAdapter, dispatching
// execute back through client.CallTool.
func ConnectMCPServer(ctx context.Context, registry *tools.Registry, client MCPClient) error {
	descriptors, err := client.ListTools(ctx)
	if err != nil {
		return fmt.Errorf("mcp server %s: list_tools: %w", client.ServerName(), err)
	}

	mcpTools := make([]tools.MCPTool, 0, len(descriptors))
	for _, d := range descriptors {
		d := d
		mcpTools = append(mcpTools, tools.MCPTool{
			Name:        d.Name,
			Description: d.Description,
			InputSchema: d.InputSchema,
			Call: func(ctx context.Context, input json.RawMessage) (string, bool, error) {
				return client.CallTool(ctx, d.Name, input)
			},
		})
	}

	adapter := &tools.MCPAdapter{Server: client.ServerName(), Registry: registry}
	return adapter.RegisterAll(mcpTools)
}
