package tools

import (
	"context"
	"encoding/json"
	"testing"
)

func TestMCPAdapter_PrefixesNamesAndTagsSource(t *testing.T) {
	r := New(DefaultOptions())
	adapter := &MCPAdapter{Server: "github", Registry: r}
	err := adapter.RegisterAll([]MCPTool{
		{
			Name: "search_issues",
			Call: func(ctx context.Context, input json.RawMessage) (string, bool, error) {
				return "found 3 issues", false, nil
			},
		},
	})
	if err != nil {
		t.Fatalf("RegisterAll() error = %v", err)
	}

	def, ok := r.Get("github__search_issues")
	if !ok {
		t.Fatal("expected tool registered as github__search_issues")
	}
	if def.Source != SourceMCP {
		t.Errorf("Source = %v, want SourceMCP", def.Source)
	}

	res, err := r.Execute(context.Background(), "github__search_issues", nil)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if res.Text() != "found 3 issues" {
		t.Errorf("Execute() = %q", res.Text())
	}
}

func TestMCPAdapter_DifferentServersDontCollide(t *testing.T) {
	r := New(DefaultOptions())
	tool := MCPTool{
		Name: "search",
		Call: func(ctx context.Context, input json.RawMessage) (string, bool, error) { return "ok", false, nil },
	}
	a1 := &MCPAdapter{Server: "github", Registry: r}
	a2 := &MCPAdapter{Server: "jira", Registry: r}
	if err := a1.RegisterAll([]MCPTool{tool}); err != nil {
		t.Fatalf("a1.RegisterAll() error = %v", err)
	}
	if err := a2.RegisterAll([]MCPTool{tool}); err != nil {
		t.Fatalf("a2.RegisterAll() error = %v (same unprefixed name on a different server should not collide)", err)
	}
}
