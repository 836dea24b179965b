// Package openai implements provider.Provider against the Chat Completions
// API via sashabaranov/go-openai.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/agentforge/agentcore/internal/provider"
	"github.com/agentforge/agentcore/pkg/models"
)

// Provider implements provider.Provider against OpenAI's chat completions
// endpoint. It does not retry internally; wrap it with provider.WithRetry.
type Provider struct {
	client *openai.Client
	model  string
}

// Config configures a new Provider.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
}

// New constructs a Provider.
func New(cfg Config) (*Provider, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai: API key is required")
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	model := cfg.Model
	if model == "" {
		model = openai.GPT4o
	}
	return &Provider{client: openai.NewClientWithConfig(clientCfg), model: model}, nil
}

func (p *Provider) Name() string               { return "openai" }
func (p *Provider) SupportsPromptCaching() bool { return false }

func (p *Provider) Stream(ctx context.Context, messages []models.Message, system string, tools []provider.ToolDef, maxTokens int) (<-chan provider.StreamDelta, func() (provider.StreamFinal, error), error) {
	req := openai.ChatCompletionRequest{
		Model:    p.model,
		Messages: convertMessages(messages, system),
		Stream:   true,
	}
	if maxTokens > 0 {
		req.MaxTokens = maxTokens
	}
	if len(tools) > 0 {
		req.Tools = convertTools(tools)
	}

	stream, err := p.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return nil, nil, classifyErr(p.model, err)
	}

	deltas := make(chan provider.StreamDelta)
	finalCh := make(chan provider.StreamFinal, 1)
	errCh := make(chan error, 1)

	go p.pump(stream, deltas, finalCh, errCh)

	wait := func() (provider.StreamFinal, error) {
		select {
		case final := <-finalCh:
			return final, nil
		case err := <-errCh:
			return provider.StreamFinal{}, err
		}
	}
	return deltas, wait, nil
}

func (p *Provider) pump(stream *openai.ChatCompletionStream, deltas chan<- provider.StreamDelta, finalCh chan<- provider.StreamFinal, errCh chan<- error) {
	defer close(deltas)
	defer stream.Close()

	type pendingCall struct {
		id, name string
		args     strings.Builder
	}
	calls := make(map[int]*pendingCall)
	var order []int
	var blocks []models.ContentBlock
	var textBuilder strings.Builder
	stopReason := provider.StopEndTurn

	for {
		resp, err := stream.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			errCh <- classifyErr(p.model, err)
			return
		}
		if len(resp.Choices) == 0 {
			continue
		}
		choice := resp.Choices[0]
		if choice.Delta.Content != "" {
			textBuilder.WriteString(choice.Delta.Content)
			deltas <- provider.StreamDelta{TextDelta: choice.Delta.Content}
		}
		for _, tc := range choice.Delta.ToolCalls {
			idx := 0
			if tc.Index != nil {
				idx = *tc.Index
			}
			pc, ok := calls[idx]
			if !ok {
				pc = &pendingCall{}
				calls[idx] = pc
				order = append(order, idx)
			}
			if tc.ID != "" {
				pc.id = tc.ID
			}
			if tc.Function.Name != "" {
				pc.name = tc.Function.Name
			}
			if tc.Function.Arguments != "" {
				pc.args.WriteString(tc.Function.Arguments)
			}
		}
		if choice.FinishReason == openai.FinishReasonToolCalls {
			stopReason = provider.StopToolUse
		} else if choice.FinishReason == openai.FinishReasonLength {
			stopReason = provider.StopMaxTokens
		}
	}

	if textBuilder.Len() > 0 {
		blocks = append(blocks, models.TextBlock(textBuilder.String()))
	}
	for _, idx := range order {
		pc := calls[idx]
		if pc.id == "" || pc.name == "" {
			continue
		}
		block := models.ToolUseBlock(pc.id, pc.name, json.RawMessage(pc.args.String()))
		blocks = append(blocks, block)
		deltas <- provider.StreamDelta{ToolUse: &block}
	}

	finalCh <- provider.StreamFinal{Blocks: blocks, StopReason: stopReason}
}

func (p *Provider) Create(ctx context.Context, messages []models.Message, system string, maxTokens int) (provider.StreamFinal, error) {
	req := openai.ChatCompletionRequest{
		Model:    p.model,
		Messages: convertMessages(messages, system),
	}
	if maxTokens > 0 {
		req.MaxTokens = maxTokens
	}
	resp, err := p.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return provider.StreamFinal{}, classifyErr(p.model, err)
	}
	if len(resp.Choices) == 0 {
		return provider.StreamFinal{}, provider.NewCallError(p.Name(), p.model, errors.New("empty choices in response"))
	}
	choice := resp.Choices[0]
	var blocks []models.ContentBlock
	if choice.Message.Content != "" {
		blocks = append(blocks, models.TextBlock(choice.Message.Content))
	}
	for _, tc := range choice.Message.ToolCalls {
		blocks = append(blocks, models.ToolUseBlock(tc.ID, tc.Function.Name, json.RawMessage(tc.Function.Arguments)))
	}
	stop := provider.StopEndTurn
	if choice.FinishReason == openai.FinishReasonToolCalls {
		stop = provider.StopToolUse
	} else if choice.FinishReason == openai.FinishReasonLength {
		stop = provider.StopMaxTokens
	}
	return provider.StreamFinal{
		Blocks:     blocks,
		StopReason: stop,
		Usage: models.UsageInfo{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
		},
	}, nil
}

// CountTokens has no dedicated OpenAI endpoint; approximate at ~4 chars per
// token, the ratio go-openai's own tokenizer helpers assume for English
// text when tiktoken tables aren't loaded.
func (p *Provider) CountTokens(ctx context.Context, messages []models.Message, system string, tools []provider.ToolDef) (int, error) {
	chars := len(system)
	for _, m := range messages {
		chars += len(m.Text)
		for _, b := range m.Blocks {
			chars += len(b.Text) + len(b.ResultContent) + len(b.ToolInput)
		}
	}
	for _, t := range tools {
		chars += len(t.Name) + len(t.Description)
	}
	return chars / 4, nil
}

func convertMessages(messages []models.Message, system string) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages)+1)
	if system != "" {
		out = append(out, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: system})
	}
	for _, msg := range messages {
		role := openai.ChatMessageRoleUser
		if msg.Role == models.RoleAssistant {
			role = openai.ChatMessageRoleAssistant
		}
		if msg.IsTextOnly() {
			out = append(out, openai.ChatCompletionMessage{Role: role, Content: msg.Text})
			continue
		}

		var text strings.Builder
		var toolCalls []openai.ToolCall
		for _, b := range msg.Blocks {
			switch b.Type {
			case models.BlockText:
				text.WriteString(b.Text)
			case models.BlockToolUse:
				toolCalls = append(toolCalls, openai.ToolCall{
					ID:   b.ToolUseID,
					Type: openai.ToolTypeFunction,
					Function: openai.FunctionCall{
						Name:      b.ToolName,
						Arguments: string(b.ToolInput),
					},
				})
			case models.BlockToolResult:
				out = append(out, openai.ChatCompletionMessage{
					Role:       openai.ChatMessageRoleTool,
					Content:    b.ResultContent,
					ToolCallID: b.ToolUseResultID,
				})
			}
		}
		if text.Len() > 0 || len(toolCalls) > 0 {
			out = append(out, openai.ChatCompletionMessage{
				Role:      role,
				Content:   text.String(),
				ToolCalls: toolCalls,
			})
		}
	}
	return out
}

func convertTools(tools []provider.ToolDef) []openai.Tool {
	out := make([]openai.Tool, len(tools))
	for i, t := range tools {
		out[i] = openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.InputSchema,
			},
		}
	}
	return out
}

func classifyErr(model string, err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return provider.NewCallError("openai", model, err).WithStatus(apiErr.HTTPStatusCode)
	}
	return provider.NewCallError("openai", model, err)
}
