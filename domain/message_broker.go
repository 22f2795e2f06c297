package domain

import (
	"context"
	"time"
)

// MessageBroker defines the interface for in-process event fan-out between
// the chat service and the websocket layer.
type MessageBroker interface {
	// Publish sends an event to a specific topic/channel with a routing key
	Publish(ctx context.Context, topic string, routingKey string, payload []byte) error

	// Subscribe listens for events on a specific topic/channel and routing key
	Subscribe(ctx context.Context, topic string, routingKey string) (<-chan Event, error)

	// Close closes the message broker connection
	Close() error
}

// Event represents an event received from the broker
type Event struct {
	Topic      string
	RoutingKey string
	Payload    []byte
	Timestamp  time.Time
}

// ChatUpdate is published whenever the chat service touches a session:
// session creation, the optimistic turn append, and every bot message patch
// while streaming. Origin names the connection that started the exchange so
// the websocket layer can route the event back to it.
type ChatUpdate struct {
	Origin    string    `json:"origin"`
	SessionID string    `json:"session_id"`
	Title     string    `json:"title,omitempty"`
	Messages  []Message `json:"messages,omitempty"`
}

// TranscriptionMessage represents a voice-input transcription result routed
// to the websocket client that uploaded the audio.
type TranscriptionMessage struct {
	Origin    string    `json:"origin"`
	UserID    string    `json:"user_id"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
	Success   bool      `json:"success"`
	Error     string    `json:"error,omitempty"`
}
