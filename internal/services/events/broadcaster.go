package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// EventType represents the type of event being broadcast
type EventType string

const (
	EventTypeAchievementUnlocked EventType = "achievement.unlocked"
	EventTypeLevelCompleted      EventType = "level.completed"
	EventTypeLevelStarted        EventType = "level.started"
	EventTypeVictory             EventType = "game.victory"
	EventTypeGameOver            EventType = "game.over"
	EventTypeConversationStarted EventType = "conversation.started"
	EventTypeConversationEnded   EventType = "conversation.ended"
	EventTypeCharacterUnlocked   EventType = "character.unlocked"
	EventTypeEnergyChanged       EventType = "energy.changed"
	EventTypeGameReset           EventType = "game.reset"
	EventTypeShowdownResolved    EventType = "showdown.resolved"
	EventTypeGameStateUpdated    EventType = "game.state_updated"
)

// DefaultStream names the channel a single-player server publishes on.
const DefaultStream = "questline"

// Event represents a generic event structure
type Event struct {
	Type   EventType      `json:"type"`
	GameID string         `json:"game_id,omitempty"`
	Time   time.Time      `json:"time"`
	Data   map[string]any `json:"data,omitempty"`
}

// Publisher delivers events to the presentation layer.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// Subscriber streams events. The returned cancel func releases the
// subscription; the channel is closed afterwards.
type Subscriber interface {
	Subscribe(ctx context.Context) (<-chan Event, func(), error)
}

// Bus both publishes and subscribes.
type Bus interface {
	Publisher
	Subscriber
}

// Channel returns the pub/sub channel name for a stream.
func Channel(stream string) string {
	return fmt.Sprintf("game-events:%s", stream)
}

// Broadcaster publishes events to Redis Pub/Sub for SSE distribution
type Broadcaster struct {
	redisClient *redis.Client
	channel     string
	logger      *slog.Logger
}

var _ Bus = (*Broadcaster)(nil)

// NewBroadcaster creates a new event broadcaster on stream.
func NewBroadcaster(redisClient *redis.Client, stream string, logger *slog.Logger) *Broadcaster {
	if stream == "" {
		stream = DefaultStream
	}
	return &Broadcaster{
		redisClient: redisClient,
		channel:     Channel(stream),
		logger:      logger,
	}
}

// Publish publishes an event to the stream channel
func (b *Broadcaster) Publish(ctx context.Context, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		b.logger.Error("Failed to marshal event", "error", err, "event_type", event.Type)
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if err := b.redisClient.Publish(ctx, b.channel, data).Err(); err != nil {
		b.logger.Error("Failed to publish event", "error", err, "channel", b.channel)
		return fmt.Errorf("failed to publish event: %w", err)
	}

	b.logger.Debug("Event published",
		"channel", b.channel,
		"event_type", event.Type,
	)

	return nil
}

// Subscribe forwards decoded events from the stream channel until ctx
// ends or cancel is called.
func (b *Broadcaster) Subscribe(ctx context.Context) (<-chan Event, func(), error) {
	pubsub := b.redisClient.Subscribe(ctx, b.channel)
	// Wait for the subscription to be confirmed so no publish is missed.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, nil, fmt.Errorf("failed to subscribe to %s: %w", b.channel, err)
	}

	ctx, cancel := context.WithCancel(ctx)
	out := make(chan Event, 16)
	msgChan := pubsub.Channel()

	go func() {
		defer close(out)
		defer func() {
			if err := pubsub.Close(); err != nil {
				b.logger.Error("Failed to close pubsub", "error", err)
			}
		}()

		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgChan:
				if !ok {
					return
				}
				var event Event
				if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
					b.logger.Error("Failed to unmarshal event", "error", err, "payload", msg.Payload)
					continue
				}
				select {
				case out <- event:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	b.logger.Debug("Subscribed to channel", "channel", b.channel)
	return out, cancel, nil
}
