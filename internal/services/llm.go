package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jwebster45206/questline/pkg/chat"
)

// LLMService defines the interface for interacting with the LLM API
type LLMService interface {
	// Complete returns the assistant reply to messages.
	Complete(ctx context.Context, messages []chat.ChatMessage) (string, error)

	// Ping checks that the provider is configured and reachable.
	Ping(ctx context.Context) error
}

// Provider names accepted by NewLLMService.
const (
	ProviderCompletions = "completions"
	ProviderOpenAI      = "openai"
	ProviderGemini      = "gemini"
	ProviderMock        = "mock"
)

// Request defaults.
const (
	DefaultMaxTokens   = 150
	DefaultTemperature = 0.8
	DefaultTopP        = 0.9
)

var (
	// ErrInvalidResponse is returned when a reply carries no message content.
	ErrInvalidResponse = errors.New("invalid API response format")
	// ErrMissingAPIKey is returned when a provider that needs a key has none.
	ErrMissingAPIKey = errors.New("missing API key")
)

// Options are the request parameters shared by every provider.
type Options struct {
	APIKey      string
	BaseURL     string
	Model       string
	MaxTokens   int
	Temperature float64
	TopP        float64
}

func (o Options) withDefaults() Options {
	if o.MaxTokens <= 0 {
		o.MaxTokens = DefaultMaxTokens
	}
	if o.Temperature <= 0 {
		o.Temperature = DefaultTemperature
	}
	if o.TopP <= 0 {
		o.TopP = DefaultTopP
	}
	return o
}

// NewLLMService builds the provider named by provider.
func NewLLMService(ctx context.Context, provider string, opts Options) (LLMService, error) {
	switch strings.ToLower(provider) {
	case ProviderCompletions, "openrouter", "":
		return NewCompletionsService(opts), nil
	case ProviderOpenAI:
		return NewOpenAIService(opts), nil
	case ProviderGemini:
		g, err := NewGeminiService(ctx, opts)
		if err != nil {
			return nil, err
		}
		return g, nil
	case ProviderMock:
		return NewMockLLM(), nil
	}
	return nil, fmt.Errorf("unknown LLM provider %q", provider)
}

var tracer = otel.Tracer("questline/services")

// startSpan opens a client span carrying the GenAI request attributes.
func startSpan(ctx context.Context, system string, opts Options, messages int) (context.Context, trace.Span) {
	return tracer.Start(ctx, "llm.complete",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("gen_ai.operation.name", "chat"),
			attribute.String("gen_ai.system", system),
			attribute.String("gen_ai.request.model", opts.Model),
			attribute.Int("gen_ai.request.max_tokens", opts.MaxTokens),
			attribute.Float64("gen_ai.request.temperature", opts.Temperature),
			attribute.Float64("gen_ai.request.top_p", opts.TopP),
			attribute.Int("gen_ai.request.messages", messages),
		),
	)
}

func endSpan(span trace.Span, reply string, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetAttributes(attribute.Int("gen_ai.response.length", len(reply)))
	}
	span.End()
}
