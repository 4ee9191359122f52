package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/jwebster45206/questline/pkg/chat"
)

// DefaultOpenAIModel is used when no model is configured.
const DefaultOpenAIModel = "gpt-4o-mini"

// OpenAIService implements LLMService with the official OpenAI SDK.
type OpenAIService struct {
	client *openai.Client
	opts   Options
}

var _ LLMService = (*OpenAIService)(nil)

// NewOpenAIService creates a client. BaseURL, when set, points the SDK at
// any OpenAI-compatible server.
func NewOpenAIService(opts Options) *OpenAIService {
	opts = opts.withDefaults()
	if opts.Model == "" {
		opts.Model = DefaultOpenAIModel
	}

	reqOpts := []option.RequestOption{option.WithAPIKey(opts.APIKey)}
	if opts.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(opts.BaseURL))
	}
	client := openai.NewClient(reqOpts...)

	return &OpenAIService{client: &client, opts: opts}
}

func (s *OpenAIService) Ping(ctx context.Context) error {
	if s.opts.APIKey == "" {
		return ErrMissingAPIKey
	}
	return nil
}

func (s *OpenAIService) Complete(ctx context.Context, messages []chat.ChatMessage) (reply string, err error) {
	ctx, span := startSpan(ctx, "openai", s.opts, len(messages))
	defer func() { endSpan(span, reply, err) }()

	params := openai.ChatCompletionNewParams{
		Model:               shared.ChatModel(s.opts.Model),
		Messages:            toOpenAIMessages(messages),
		MaxCompletionTokens: openai.Int(int64(s.opts.MaxTokens)),
		Temperature:         openai.Float(s.opts.Temperature),
		TopP:                openai.Float(s.opts.TopP),
	}

	resp, err := s.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}

	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return "", ErrInvalidResponse
	}

	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

func toOpenAIMessages(messages []chat.ChatMessage) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case chat.ChatRoleSystem:
			out = append(out, openai.SystemMessage(m.Content))
		case chat.ChatRoleAgent:
			out = append(out, openai.AssistantMessage(m.Content))
		default:
			out = append(out, openai.UserMessage(m.Content))
		}
	}
	return out
}
