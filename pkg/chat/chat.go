package chat

import (
	"fmt"
	"strings"
	"time"
)

// ChatRequest is a player message sent to the character currently in conversation.
type ChatRequest struct {
	Message string `json:"message"`
}

// ChatResponse is returned to the player after one exchange.
type ChatResponse struct {
	CharacterID string   `json:"character_id"`
	Message     string   `json:"message"`
	Fallback    bool     `json:"fallback,omitempty"` // oracle failed and filler text was used
	Unlocked    []string `json:"unlocked,omitempty"` // achievements unlocked by this response
	Transition  string   `json:"transition,omitempty"`
}

const (
	ChatRoleUser   = "user"      // Player
	ChatRoleAgent  = "assistant" // Character
	ChatRoleSystem = "system"    // Persona and instructions
)

// ChatMessage is a single message in the completions wire format.
type ChatMessage struct {
	Role    string `json:"role"` // "user", "assistant", "system"
	Content string `json:"content"`
}

// Exchange is one player/character round trip kept in a transcript.
type Exchange struct {
	Timestamp time.Time `json:"timestamp" yaml:"timestamp"`
	Player    string    `json:"player" yaml:"player"`
	Character string    `json:"character" yaml:"character"`
	Location  string    `json:"location,omitempty" yaml:"location,omitempty"`
	Level     int       `json:"level,omitempty" yaml:"level,omitempty"`
}

func (cr *ChatRequest) Validate() error {
	if strings.TrimSpace(cr.Message) == "" {
		return fmt.Errorf("message cannot be empty")
	}
	return nil
}

// AppendBounded appends ex and drops the oldest entries so that at most
// limit remain. A limit <= 0 means unbounded.
func AppendBounded(history []Exchange, ex Exchange, limit int) []Exchange {
	history = append(history, ex)
	if limit > 0 && len(history) > limit {
		trimmed := make([]Exchange, limit)
		copy(trimmed, history[len(history)-limit:])
		return trimmed
	}
	return history
}

// Last returns up to n of the most recent exchanges.
func Last(history []Exchange, n int) []Exchange {
	if n <= 0 || len(history) == 0 {
		return nil
	}
	if len(history) <= n {
		return history
	}
	return history[len(history)-n:]
}

// ToMessages expands exchanges into alternating user/assistant messages.
func ToMessages(history []Exchange) []ChatMessage {
	msgs := make([]ChatMessage, 0, len(history)*2)
	for _, ex := range history {
		msgs = append(msgs,
			ChatMessage{Role: ChatRoleUser, Content: ex.Player},
			ChatMessage{Role: ChatRoleAgent, Content: ex.Character},
		)
	}
	return msgs
}
