package tools

import (
	"context"
	"encoding/json"
)

// readMoreInput is the input shape for the auto-registered read_more tool.
type readMoreInput struct {
	ResultID string `json:"result_id"`
	Page     int    `json:"page"`
}

func (r *Registry) registerReadMore() {
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"result_id": map[string]any{"type": "string"},
			"page":      map[string]any{"type": "integer"},
		},
		"required": []any{"result_id", "page"},
	}
	r.tools["read_more"] = Definition{
		Name:        "read_more",
		Description: "Retrieve another page of a previous tool result that was too long to return in full.",
		InputSchema: schema,
		Source:      SourceNative,
		Handler:     r.readMore,
	}
}

func (r *Registry) readMore(ctx context.Context, input json.RawMessage) (Result, error) {
	var req readMoreInput
	if err := json.Unmarshal(input, &req); err != nil {
		return ErrorResult("invalid input: " + err.Error()), nil
	}

	r.pageMu.Lock()
	text, ok := r.pages[req.ResultID]
	r.pageMu.Unlock()
	if !ok {
		return ErrorResult("result not found or expired"), nil
	}

	total := totalPages(len(text), r.opts.MaxResultChars)
	if req.Page < 1 || req.Page > total {
		return ErrorResult("page out of range"), nil
	}

	return StringResult(paginateText(text, r.opts.MaxResultChars, req.Page, req.ResultID)), nil
}
