package tools

import (
	"context"
	"encoding/json"
	"testing"
)

func TestExecute_ValidatesInputAgainstSchema(t *testing.T) {
	r := New(DefaultOptions())
	_ = r.Register(Definition{
		Name: "search",
		InputSchema: map[string]any{
			"type":       "object",
			"properties": map[string]any{"query": map[string]any{"type": "string"}},
			"required":   []any{"query"},
		},
		Handler: func(ctx context.Context, input json.RawMessage) (Result, error) {
			return StringResult("ok"), nil
		},
	})

	res, err := r.Execute(context.Background(), "search", json.RawMessage(`{}`))
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !res.IsError {
		t.Error("Execute() with missing required field should return IsError result")
	}

	res, err = r.Execute(context.Background(), "search", json.RawMessage(`{"query":"go"}`))
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if res.IsError {
		t.Errorf("Execute() with valid input returned error: %q", res.Text())
	}
}

func TestExecute_NoSchemaAcceptsAnything(t *testing.T) {
	r := New(DefaultOptions())
	_ = r.Register(echoDef("noop"))
	res, err := r.Execute(context.Background(), "noop", json.RawMessage(`{"anything":true}`))
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if res.IsError {
		t.Errorf("Execute() with no schema returned error: %q", res.Text())
	}
}
