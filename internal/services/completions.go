package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/jwebster45206/questline/pkg/chat"
)

const (
	// DefaultCompletionsURL is the OpenRouter chat completions endpoint.
	DefaultCompletionsURL = "https://openrouter.ai/api/v1/chat/completions"
	DefaultModel          = "meta-llama/llama-3.1-8b-instruct"
)

// CompletionsService implements LLMService for any OpenAI-compatible chat
// completions endpoint, including the questline proxy.
type CompletionsService struct {
	opts       Options
	url        string
	referer    string
	title      string
	httpClient *http.Client
}

var _ LLMService = (*CompletionsService)(nil)

// CompletionsRequest represents the request body for chat completions
type CompletionsRequest struct {
	Model       string             `json:"model"`
	Messages    []chat.ChatMessage `json:"messages"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature float64            `json:"temperature"`
	TopP        float64            `json:"top_p"`
}

// CompletionsChoice represents a single choice in the response
type CompletionsChoice struct {
	Index   int `json:"index"`
	Message *struct {
		Role    string  `json:"role"`
		Content *string `json:"content"`
	} `json:"message"`
	FinishReason string `json:"finish_reason"`
}

// CompletionsResponse represents the response body for chat completions
type CompletionsResponse struct {
	ID      string              `json:"id"`
	Model   string              `json:"model"`
	Choices []CompletionsChoice `json:"choices"`
	Usage   struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage,omitempty"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    any    `json:"code"`
	} `json:"error,omitempty"`
}

// NewCompletionsService creates a new chat completions client. An empty
// BaseURL selects DefaultCompletionsURL.
func NewCompletionsService(opts Options) *CompletionsService {
	opts = opts.withDefaults()
	if opts.Model == "" {
		opts.Model = DefaultModel
	}
	url := opts.BaseURL
	if url == "" {
		url = DefaultCompletionsURL
	}
	return &CompletionsService{
		opts: opts,
		url:  url,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

// WithAttribution sets the HTTP-Referer and X-Title headers OpenRouter uses
// to attribute traffic.
func (s *CompletionsService) WithAttribution(referer, title string) *CompletionsService {
	s.referer = referer
	s.title = title
	return s
}

// Ping reports whether the client can send requests. The proxy holds the
// key itself, so a keyless client is fine when a base URL is set.
func (s *CompletionsService) Ping(ctx context.Context) error {
	if s.opts.APIKey == "" && s.opts.BaseURL == "" {
		return ErrMissingAPIKey
	}
	return nil
}

// Complete makes a chat completion request.
func (s *CompletionsService) Complete(ctx context.Context, messages []chat.ChatMessage) (reply string, err error) {
	ctx, span := startSpan(ctx, "openrouter", s.opts, len(messages))
	defer func() { endSpan(span, reply, err) }()

	reqBody, err := json.Marshal(CompletionsRequest{
		Model:       s.opts.Model,
		Messages:    messages,
		MaxTokens:   s.opts.MaxTokens,
		Temperature: s.opts.Temperature,
		TopP:        s.opts.TopP,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewBuffer(reqBody))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if s.opts.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.opts.APIKey)
	}
	if s.referer != "" {
		req.Header.Set("HTTP-Referer", s.referer)
	}
	if s.title != "" {
		req.Header.Set("X-Title", s.title)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to make request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, string(body))
	}

	var parsed CompletionsResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}

	if parsed.Error != nil {
		return "", fmt.Errorf("API error: %s", parsed.Error.Message)
	}

	if len(parsed.Choices) == 0 || parsed.Choices[0].Message == nil || parsed.Choices[0].Message.Content == nil {
		return "", ErrInvalidResponse
	}

	return strings.TrimSpace(*parsed.Choices[0].Message.Content), nil
}
