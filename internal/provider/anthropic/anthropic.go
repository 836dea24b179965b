// Package anthropic implements provider.Provider against Anthropic's
// Messages API, using the official SDK's SSE streaming client.
package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"

	"github.com/agentforge/agentcore/internal/provider"
	"github.com/agentforge/agentcore/pkg/models"
)

// maxEmptyStreamEvents bounds consecutive no-op SSE events before a stream
// is treated as malformed and aborted.
const maxEmptyStreamEvents = 300

// Provider implements provider.Provider against the Anthropic Messages API.
// It does not retry internally; wrap it with provider.WithRetry.
type Provider struct {
	client anthropic.Client
	model  string
}

// Config configures a new Provider.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
}

// New constructs a Provider. Model is the default used when a call doesn't
// override it.
func New(cfg Config) (*Provider, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("anthropic: API key is required")
	}
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if strings.TrimSpace(cfg.BaseURL) != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	model := cfg.Model
	if model == "" {
		model = "claude-sonnet-4-20250514"
	}
	return &Provider{client: anthropic.NewClient(opts...), model: model}, nil
}

func (p *Provider) Name() string               { return "anthropic" }
func (p *Provider) SupportsPromptCaching() bool { return true }

func (p *Provider) Stream(ctx context.Context, messages []models.Message, system string, tools []provider.ToolDef, maxTokens int) (<-chan provider.StreamDelta, func() (provider.StreamFinal, error), error) {
	msgParams, err := convertMessages(messages)
	if err != nil {
		return nil, nil, provider.NewCallError(p.Name(), p.model, fmt.Errorf("converting messages: %w", err))
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(p.model),
		Messages:  msgParams,
		MaxTokens: int64(maxTokens),
	}
	if system != "" {
		block := anthropic.TextBlockParam{Type: "text", Text: system}
		block.CacheControl = anthropic.NewCacheControlEphemeralParam()
		params.System = []anthropic.TextBlockParam{block}
	}
	if len(tools) > 0 {
		converted, err := convertTools(tools)
		if err != nil {
			return nil, nil, provider.NewCallError(p.Name(), p.model, fmt.Errorf("converting tools: %w", err))
		}
		params.Tools = converted
	}

	stream := p.client.Messages.NewStreaming(ctx, params)

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

// pump drains the SSE stream, forwarding text deltas and accumulating
// tool_use and text blocks for the final turn.
func (p *Provider) pump(stream *ssestream.Stream[anthropic.MessageStreamEventUnion], deltas chan<- provider.StreamDelta, finalCh chan<- provider.StreamFinal, errCh chan<- error) {
	defer close(deltas)

	var blocks []models.ContentBlock
	var textBuilder strings.Builder
	var toolInput strings.Builder
	var currentToolID, currentToolName string
	inTool := false
	emptyEvents := 0

	var usage models.UsageInfo
	stopReason := provider.StopEndTurn

	flushText := func() {
		if textBuilder.Len() > 0 {
			blocks = append(blocks, models.TextBlock(textBuilder.String()))
			textBuilder.Reset()
		}
	}

	for stream.Next() {
		event := stream.Current()
		processed := false

		switch event.Type {
		case "message_start":
			ms := event.AsMessageStart()
			usage.InputTokens = int(ms.Message.Usage.InputTokens)
			usage.CacheCreationInputTokens = int(ms.Message.Usage.CacheCreationInputTokens)
			usage.CacheReadInputTokens = int(ms.Message.Usage.CacheReadInputTokens)
			processed = true

		case "content_block_start":
			cb := event.AsContentBlockStart().ContentBlock
			if cb.Type == "tool_use" {
				tu := cb.AsToolUse()
				currentToolID = tu.ID
				currentToolName = tu.Name
				toolInput.Reset()
				inTool = true
			}
			processed = true

		case "content_block_delta":
			delta := event.AsContentBlockDelta().Delta
			switch delta.Type {
			case "text_delta":
				if delta.Text != "" {
					textBuilder.WriteString(delta.Text)
					deltas <- provider.StreamDelta{TextDelta: delta.Text}
					processed = true
				}
			case "input_json_delta":
				if delta.PartialJSON != "" {
					toolInput.WriteString(delta.PartialJSON)
					processed = true
				}
			}

		case "content_block_stop":
			if inTool {
				flushText()
				block := models.ToolUseBlock(currentToolID, currentToolName, json.RawMessage(toolInput.String()))
				blocks = append(blocks, block)
				deltas <- provider.StreamDelta{ToolUse: &block}
				inTool = false
				stopReason = provider.StopToolUse
			}
			processed = true

		case "message_delta":
			md := event.AsMessageDelta()
			if md.Usage.OutputTokens > 0 {
				usage.OutputTokens = int(md.Usage.OutputTokens)
			}
			if md.Delta.StopReason == "max_tokens" {
				stopReason = provider.StopMaxTokens
			}
			processed = true

		case "message_stop":
			flushText()
			finalCh <- provider.StreamFinal{Blocks: blocks, StopReason: stopReason, Usage: usage}
			return

		case "error":
			errCh <- provider.NewCallError("anthropic", p.model, errors.New("stream error"))
			return
		}

		if processed {
			emptyEvents = 0
		} else {
			emptyEvents++
			if emptyEvents >= maxEmptyStreamEvents {
				errCh <- provider.NewCallError("anthropic", p.model, fmt.Errorf("stream appears malformed: %d consecutive empty events", emptyEvents))
				return
			}
		}
	}

	if err := stream.Err(); err != nil {
		errCh <- classifyStreamErr("anthropic", p.model, err)
		return
	}
	flushText()
	finalCh <- provider.StreamFinal{Blocks: blocks, StopReason: stopReason, Usage: usage}
}

func (p *Provider) Create(ctx context.Context, messages []models.Message, system string, maxTokens int) (provider.StreamFinal, error) {
	msgParams, err := convertMessages(messages)
	if err != nil {
		return provider.StreamFinal{}, provider.NewCallError(p.Name(), p.model, err)
	}
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(p.model),
		Messages:  msgParams,
		MaxTokens: int64(maxTokens),
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Type: "text", Text: system}}
	}

	msg, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return provider.StreamFinal{}, classifyStreamErr(p.Name(), p.model, err)
	}

	var blocks []models.ContentBlock
	for _, c := range msg.Content {
		switch c.Type {
		case "text":
			blocks = append(blocks, models.TextBlock(c.Text))
		case "tool_use":
			input, _ := json.Marshal(c.Input)
			blocks = append(blocks, models.ToolUseBlock(c.ID, c.Name, input))
		}
	}

	return provider.StreamFinal{
		Blocks:     blocks,
		StopReason: provider.StopReason(msg.StopReason),
		Usage: models.UsageInfo{
			InputTokens:              int(msg.Usage.InputTokens),
			OutputTokens:             int(msg.Usage.OutputTokens),
			CacheCreationInputTokens: int(msg.Usage.CacheCreationInputTokens),
			CacheReadInputTokens:     int(msg.Usage.CacheReadInputTokens),
		},
	}, nil
}

func (p *Provider) CountTokens(ctx context.Context, messages []models.Message, system string, tools []provider.ToolDef) (int, error) {
	msgParams, err := convertMessages(messages)
	if err != nil {
		return 0, provider.NewCallError(p.Name(), p.model, err)
	}
	params := anthropic.MessageCountTokensParams{
		Model:    anthropic.Model(p.model),
		Messages: msgParams,
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Type: "text", Text: system}}
	}
	if len(tools) > 0 {
		converted, err := convertTools(tools)
		if err == nil {
			countParams := make([]anthropic.ToolUnionParam, len(converted))
			copy(countParams, converted)
			params.Tools = countParams
		}
	}
	resp, err := p.client.Messages.CountTokens(ctx, params)
	if err != nil {
		return 0, classifyStreamErr(p.Name(), p.model, err)
	}
	return int(resp.InputTokens), nil
}

func convertMessages(messages []models.Message) ([]anthropic.MessageParam, error) {
	var out []anthropic.MessageParam
	for _, msg := range messages {
		var content []anthropic.ContentBlockParamUnion
		if msg.IsTextOnly() {
			if msg.Text != "" {
				content = append(content, anthropic.NewTextBlock(msg.Text))
			}
		} else {
			for _, b := range msg.Blocks {
				switch b.Type {
				case models.BlockText:
					content = append(content, anthropic.NewTextBlock(b.Text))
				case models.BlockToolUse:
					var input map[string]any
					if len(b.ToolInput) > 0 {
						if err := json.Unmarshal(b.ToolInput, &input); err != nil {
							return nil, fmt.Errorf("tool_use %s: invalid input json: %w", b.ToolName, err)
						}
					}
					content = append(content, anthropic.NewToolUseBlock(b.ToolUseID, input, b.ToolName))
				case models.BlockToolResult:
					content = append(content, anthropic.NewToolResultBlock(b.ToolUseResultID, b.ResultContent, b.IsError))
				case models.BlockImage:
					if blk, ok := imageBlockFromSource(b.Source); ok {
						content = append(content, blk)
					}
				case models.BlockDocument:
					if blk, ok := documentBlockFromSource(b.Source); ok {
						content = append(content, blk)
					}
				}
			}
		}
		if msg.Role == models.RoleAssistant {
			out = append(out, anthropic.NewAssistantMessage(content...))
		} else {
			out = append(out, anthropic.NewUserMessage(content...))
		}
	}
	return out, nil
}

// imageBlockFromSource converts an image block's source into the SDK's
// union type, handling both base64-encoded and URL-referenced images.
func imageBlockFromSource(src *models.BlockSource) (anthropic.ContentBlockParamUnion, bool) {
	if src == nil {
		return anthropic.ContentBlockParamUnion{}, false
	}
	switch src.Kind {
	case models.SourceBase64:
		return anthropic.NewImageBlockBase64(src.MediaType, src.Data), true
	case models.SourceURL:
		return anthropic.ContentBlockParamUnion{
			OfImage: &anthropic.ImageBlockParam{
				Source: anthropic.ImageBlockParamSourceUnion{
					OfURL: &anthropic.URLImageSourceParam{URL: src.URL},
				},
			},
		}, true
	default:
		return anthropic.ContentBlockParamUnion{}, false
	}
}

// documentBlockFromSource converts a document block's source (PDF only) into
// the SDK's union type, handling both base64-encoded and URL-referenced
// documents.
func documentBlockFromSource(src *models.BlockSource) (anthropic.ContentBlockParamUnion, bool) {
	if src == nil {
		return anthropic.ContentBlockParamUnion{}, false
	}
	switch src.Kind {
	case models.SourceBase64:
		return anthropic.ContentBlockParamUnion{
			OfDocument: &anthropic.DocumentBlockParam{
				Source: anthropic.DocumentBlockParamSourceUnion{
					OfBase64: &anthropic.Base64PDFSourceParam{Data: src.Data},
				},
			},
		}, true
	case models.SourceURL:
		return anthropic.ContentBlockParamUnion{
			OfDocument: &anthropic.DocumentBlockParam{
				Source: anthropic.DocumentBlockParamSourceUnion{
					OfURL: &anthropic.URLPDFSourceParam{URL: src.URL},
				},
			},
		}, true
	default:
		return anthropic.ContentBlockParamUnion{}, false
	}
}

func convertTools(tools []provider.ToolDef) ([]anthropic.ToolUnionParam, error) {
	out := make([]anthropic.ToolUnionParam, 0, len(tools))
	for i, t := range tools {
		schema := anthropic.ToolInputSchemaParam{}
		if props, ok := t.InputSchema["properties"]; ok {
			schema.Properties = props
		}
		if req, ok := t.InputSchema["required"]; ok {
			schema.ExtraFields = map[string]any{"required": req}
		}
		toolParam := anthropic.ToolParam{
			Name:        t.Name,
			Description: anthropic.String(t.Description),
			InputSchema: schema,
		}
		if i == len(tools)-1 {
			toolParam.CacheControl = anthropic.NewCacheControlEphemeralParam()
		}
		out = append(out, anthropic.ToolUnionParam{OfTool: &toolParam})
	}
	return out, nil
}

func classifyStreamErr(providerName, model string, err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return provider.NewCallError(providerName, model, err).WithStatus(apiErr.StatusCode)
	}
	return provider.NewCallError(providerName, model, err)
}
