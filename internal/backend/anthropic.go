package backend

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const defaultMaxTokens int64 = 4096

// AnthropicAdapter implements Backend on the Anthropic Messages API.
// History maps one-to-one onto the request's message list.
type AnthropicAdapter struct {
	client    anthropic.Client
	model     anthropic.Model
	maxTokens int64
}

// NewAnthropicAdapter creates an API-backed adapter. An empty cfg.APIKey falls
// back to ANTHROPIC_API_KEY.
func NewAnthropicAdapter(cfg Config) (*AnthropicAdapter, error) {
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("ANTHROPIC_API_KEY environment variable is not set")
	}

	// Retries are owned by the scheduler's retry policy.
	opts := []option.RequestOption{option.WithAPIKey(apiKey), option.WithMaxRetries(0)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	model := anthropic.Model(cfg.Model)
	if model == "" {
		model = anthropic.ModelClaudeSonnet4_20250514
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	return &AnthropicAdapter{
		client:    anthropic.NewClient(opts...),
		model:     model,
		maxTokens: maxTokens,
	}, nil
}

// Send performs one Messages.New call.
func (a *AnthropicAdapter) Send(ctx context.Context, msg Message) (Response, error) {
	params := anthropic.MessageNewParams{
		Model:     a.model,
		MaxTokens: a.maxTokens,
		Messages:  toMessageParams(msg.History, msg.Content),
	}
	if msg.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: msg.System}}
	}

	resp, err := a.client.Messages.New(ctx, params)
	if err != nil {
		return Response{}, fmt.Errorf("anthropic request failed: %w", err)
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if variant, ok := block.AsAny().(anthropic.TextBlock); ok {
			text.WriteString(variant.Text)
		}
	}

	return msg.Reply(text.String(), Usage{
		InputTokens:  resp.Usage.InputTokens,
		OutputTokens: resp.Usage.OutputTokens,
	}), nil
}

// Close is a no-op; the SDK client holds no long-lived resources.
func (a *AnthropicAdapter) Close() error {
	return nil
}

func toMessageParams(history Conversation, content string) []anthropic.MessageParam {
	params := make([]anthropic.MessageParam, 0, len(history)+1)
	for _, turn := range history {
		block := anthropic.NewTextBlock(turn.Content)
		if turn.Role == TurnAssistant {
			params = append(params, anthropic.NewAssistantMessage(block))
		} else {
			params = append(params, anthropic.NewUserMessage(block))
		}
	}
	return append(params, anthropic.NewUserMessage(anthropic.NewTextBlock(content)))
}
