package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicProvider implements Provider against the Anthropic Messages API.
type AnthropicProvider struct {
	client anthropic.Client
	config Config
}

// NewAnthropicProvider creates a provider that reads its API key from the
// ANTHROPIC_API_KEY environment variable.
func NewAnthropicProvider(cfg Config) *AnthropicProvider {
	cfg = withDefaults(cfg)
	return &AnthropicProvider{client: anthropic.NewClient(), config: cfg}
}

// NewAnthropicProviderWithKey creates a provider with an explicit API key,
// used when the key comes from Config rather than the environment.
func NewAnthropicProviderWithKey(apiKey string, cfg Config) *AnthropicProvider {
	cfg = withDefaults(cfg)
	return &AnthropicProvider{client: anthropic.NewClient(option.WithAPIKey(apiKey)), config: cfg}
}

func withDefaults(cfg Config) Config {
	d := DefaultConfig()
	if cfg.Model == "" {
		cfg.Model = d.Model
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = d.MaxTokens
	}
	return cfg
}

// Name implements Provider.
func (p *AnthropicProvider) Name() string { return "anthropic" }

// Model implements Provider.
func (p *AnthropicProvider) Model() string { return p.config.Model }

// Chat implements Provider.
func (p *AnthropicProvider) Chat(ctx context.Context, systemPrompt string, messages []Message, tools []ToolDefinition) (*Response, error) {
	anthropicMessages := make([]anthropic.MessageParam, 0, len(messages))
	for _, msg := range messages {
		anthropicMessages = append(anthropicMessages, p.convertMessage(msg))
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(p.config.Model),
		MaxTokens: int64(p.config.MaxTokens),
		Messages:  anthropicMessages,
	}
	params.Temperature = anthropic.Float(p.config.Temperature)
	if systemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Text: systemPrompt}}
	}
	if len(tools) > 0 {
		anthropicTools := make([]anthropic.ToolUnionParam, 0, len(tools))
		for _, t := range tools {
			anthropicTools = append(anthropicTools, p.convertToolDefinition(t))
		}
		params.Tools = anthropicTools
	}

	resp, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("anthropic chat call failed: %w", err)
	}
	return p.convertResponse(resp), nil
}

func (p *AnthropicProvider) convertMessage(msg Message) anthropic.MessageParam {
	blocks := make([]anthropic.ContentBlockParamUnion, 0, len(msg.ToolResult)+1+len(msg.ToolUse))

	for _, tr := range msg.ToolResult {
		blocks = append(blocks, anthropic.NewToolResultBlock(tr.ToolUseID, tr.Content, tr.IsError))
	}
	if msg.Content != "" && len(msg.ToolResult) == 0 {
		blocks = append(blocks, anthropic.NewTextBlock(msg.Content))
	}
	for _, tc := range msg.ToolUse {
		blocks = append(blocks, anthropic.NewToolUseBlock(tc.ID, tc.Input, tc.Name))
	}

	if msg.Role == RoleAssistant {
		return anthropic.NewAssistantMessage(blocks...)
	}
	return anthropic.NewUserMessage(blocks...)
}

func (p *AnthropicProvider) convertToolDefinition(t ToolDefinition) anthropic.ToolUnionParam {
	properties := t.InputSchema["properties"]
	required, _ := t.InputSchema["required"].([]string)

	return anthropic.ToolUnionParam{
		OfTool: &anthropic.ToolParam{
			Name:        t.Name,
			Description: anthropic.String(t.Description),
			InputSchema: anthropic.ToolInputSchemaParam{
				Properties: properties,
				Required:   required,
			},
		},
	}
}

func (p *AnthropicProvider) convertResponse(resp *anthropic.Message) *Response {
	response := &Response{
		Usage: Usage{
			InputTokens:  int(resp.Usage.InputTokens),
			OutputTokens: int(resp.Usage.OutputTokens),
		},
	}

	var textParts, thinkingParts []string
	for i := range resp.Content {
		block := &resp.Content[i]
		switch block.Type {
		case "text":
			textParts = append(textParts, block.Text)
		case "thinking":
			thinkingParts = append(thinkingParts, block.Thinking)
		case "tool_use":
			response.ToolCalls = append(response.ToolCalls, ToolCall{
				ID:    block.ID,
				Name:  block.Name,
				Input: block.Input,
			})
		}
	}
	response.Content = strings.Join(textParts, "")
	response.Thinking = strings.Join(thinkingParts, "")

	switch resp.StopReason {
	case anthropic.StopReasonEndTurn:
		response.StopReason = StopReasonEndTurn
	case anthropic.StopReasonToolUse:
		response.StopReason = StopReasonToolUse
	case anthropic.StopReasonMaxTokens:
		response.StopReason = StopReasonMaxTokens
	case anthropic.StopReasonStopSequence, anthropic.StopReasonPauseTurn, anthropic.StopReasonRefusal:
		response.StopReason = StopReasonEndTurn
	default:
		response.StopReason = StopReasonEndTurn
	}

	return response
}
