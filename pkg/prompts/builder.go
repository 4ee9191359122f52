package prompts

import (
	"fmt"
	"strings"

	"github.com/jwebster45206/questline/pkg/chat"
	"github.com/jwebster45206/questline/pkg/content"
)

// DefaultHistoryLimit is the number of past exchanges sent with a request.
const DefaultHistoryLimit = 6

// Builder constructs chat messages for the oracle using a fluent interface.
type Builder struct {
	character    *content.Character
	history      []chat.Exchange
	historyLimit int
	userMessage  string
	hint         string
	messages     []chat.ChatMessage
}

// New creates a new prompt builder with default settings.
func New() *Builder {
	return &Builder{
		historyLimit: DefaultHistoryLimit,
		messages:     make([]chat.ChatMessage, 0),
	}
}

// WithCharacter sets the character whose persona answers.
func (b *Builder) WithCharacter(c content.Character) *Builder {
	b.character = &c
	return b
}

// WithHistory sets the character's transcript, oldest first.
func (b *Builder) WithHistory(history []chat.Exchange) *Builder {
	b.history = history
	return b
}

// WithHistoryLimit sets the history window size.
func (b *Builder) WithHistoryLimit(limit int) *Builder {
	b.historyLimit = limit
	return b
}

// WithUserMessage sets the player's message.
func (b *Builder) WithUserMessage(message string) *Builder {
	b.userMessage = message
	return b
}

// WithHint lets the character nudge the player toward keyword.
func (b *Builder) WithHint(keyword string) *Builder {
	b.hint = keyword
	return b
}

// Build constructs and returns the final message array for the oracle.
func (b *Builder) Build() ([]chat.ChatMessage, error) {
	if b.character == nil {
		return nil, fmt.Errorf("character is required")
	}
	if strings.TrimSpace(b.userMessage) == "" {
		return nil, fmt.Errorf("user message is required")
	}

	b.messages = make([]chat.ChatMessage, 0, 2+2*b.historyLimit)

	// 1. Persona and instructions
	b.messages = append(b.messages, chat.ChatMessage{
		Role:    chat.ChatRoleSystem,
		Content: SystemPrompt(*b.character, b.hint),
	})

	// 2. Windowed history
	b.messages = append(b.messages, chat.ToMessages(chat.Last(b.history, b.historyLimit))...)

	// 3. User message
	b.messages = append(b.messages, chat.ChatMessage{
		Role:    chat.ChatRoleUser,
		Content: b.userMessage,
	})

	return b.messages, nil
}
