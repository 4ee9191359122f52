package services

import (
	"context"
	"sync"

	"github.com/jwebster45206/questline/pkg/chat"
)

// MockLLM is a mock implementation of LLMService for testing
type MockLLM struct {
	CompleteFunc func(ctx context.Context, messages []chat.ChatMessage) (string, error)
	PingFunc     func(ctx context.Context) error

	// Track calls for testing
	CompleteCalls []CompleteCall
	PingCalls     int

	mu sync.Mutex // protects all fields above
}

// CompleteCall records one Complete invocation.
type CompleteCall struct {
	Messages []chat.ChatMessage
}

var _ LLMService = (*MockLLM)(nil)

// NewMockLLM creates a new mock LLM service
func NewMockLLM() *MockLLM {
	return &MockLLM{
		CompleteCalls: make([]CompleteCall, 0),
	}
}

// Complete mocks response generation
func (m *MockLLM) Complete(ctx context.Context, messages []chat.ChatMessage) (string, error) {
	m.mu.Lock()
	m.CompleteCalls = append(m.CompleteCalls, CompleteCall{Messages: messages})
	fn := m.CompleteFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, messages)
	}

	// Default behavior - a fixed reply
	return "Mock response", nil
}

// Ping mocks the health check
func (m *MockLLM) Ping(ctx context.Context) error {
	m.mu.Lock()
	m.PingCalls++
	fn := m.PingFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx)
	}
	return nil
}

// SetReply makes every Complete call return reply.
func (m *MockLLM) SetReply(reply string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CompleteFunc = func(context.Context, []chat.ChatMessage) (string, error) {
		return reply, nil
	}
}

// SetError makes every Complete call fail with err.
func (m *MockLLM) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CompleteFunc = func(context.Context, []chat.ChatMessage) (string, error) {
		return "", err
	}
}

// Calls returns a copy of the recorded Complete calls.
func (m *MockLLM) Calls() []CompleteCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]CompleteCall, len(m.CompleteCalls))
	copy(out, m.CompleteCalls)
	return out
}

// Reset clears all call tracking
func (m *MockLLM) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CompleteCalls = make([]CompleteCall, 0)
	m.PingCalls = 0
}
