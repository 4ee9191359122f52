package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/jwebster45206/questline/pkg/chat"
)

// DefaultGeminiModel is used when no model is configured.
const DefaultGeminiModel = "gemini-2.5-flash"

// GeminiService implements LLMService with the Gemini SDK.
type GeminiService struct {
	client *genai.Client
	opts   Options
}

var _ LLMService = (*GeminiService)(nil)

// NewGeminiService creates a Gemini client.
func NewGeminiService(ctx context.Context, opts Options) (*GeminiService, error) {
	if opts.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	opts = opts.withDefaults()
	if opts.Model == "" {
		opts.Model = DefaultGeminiModel
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(opts.APIKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	return &GeminiService{client: client, opts: opts}, nil
}

func (s *GeminiService) Ping(ctx context.Context) error {
	return nil
}

// Close releases the client.
func (s *GeminiService) Close() error {
	return s.client.Close()
}

// Complete sends the system messages as the system instruction, the
// history as chat turns and the final user message as the prompt.
func (s *GeminiService) Complete(ctx context.Context, messages []chat.ChatMessage) (reply string, err error) {
	ctx, span := startSpan(ctx, "gemini", s.opts, len(messages))
	defer func() { endSpan(span, reply, err) }()

	model := s.client.GenerativeModel(s.opts.Model)
	model.SetMaxOutputTokens(int32(s.opts.MaxTokens))
	model.SetTemperature(float32(s.opts.Temperature))
	model.SetTopP(float32(s.opts.TopP))

	system, history, prompt := splitForGemini(messages)
	if system != "" {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(system)}}
	}
	if prompt == "" {
		return "", fmt.Errorf("no user message to send")
	}

	cs := model.StartChat()
	cs.History = history

	resp, err := cs.SendMessage(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("gemini request failed: %w", err)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", ErrInvalidResponse
	}

	text, ok := resp.Candidates[0].Content.Parts[0].(genai.Text)
	if !ok {
		return "", ErrInvalidResponse
	}
	return strings.TrimSpace(string(text)), nil
}

// splitForGemini maps chat messages onto Gemini's shape. The last user
// message becomes the prompt.
func splitForGemini(messages []chat.ChatMessage) (string, []*genai.Content, string) {
	var (
		system  []string
		history []*genai.Content
		prompt  string
	)

	last := -1
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == chat.ChatRoleUser {
			last = i
			break
		}
	}

	for i, m := range messages {
		switch {
		case m.Role == chat.ChatRoleSystem:
			system = append(system, m.Content)
		case i == last:
			prompt = m.Content
		case m.Role == chat.ChatRoleAgent:
			history = append(history, &genai.Content{Role: "model", Parts: []genai.Part{genai.Text(m.Content)}})
		default:
			history = append(history, &genai.Content{Role: "user", Parts: []genai.Part{genai.Text(m.Content)}})
		}
	}

	return strings.Join(system, "\n\n"), history, prompt
}
