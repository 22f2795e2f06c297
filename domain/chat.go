package domain

import "time"

// Role identifies the author of a message. The store only knows about the
// two conversational roles; system instructions never enter a session.
type Role string

const (
	UserRole Role = "user"
	BotRole  Role = "bot"
)

// MessageStatus tracks a bot message through its lifetime. User messages
// carry no status; they are complete by construction.
type MessageStatus string

const (
	StatusStreaming MessageStatus = "streaming"
	StatusComplete  MessageStatus = "complete"
	StatusError     MessageStatus = "error"
)

// Message is one turn in a session.
type Message struct {
	ID       string        `json:"id"`
	Role     Role          `json:"role"`
	Content  string        `json:"content"`
	ImageURL string        `json:"image_url,omitempty"`
	Status   MessageStatus `json:"status,omitempty"`
}

// Session is one conversation thread. Messages are append-only except for
// in-place updates to the latest bot message while it streams.
type Session struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Timestamp time.Time `json:"timestamp"`
	Messages  []Message `json:"messages"`
}

// MessagePatch is a partial update applied to a bot message. Nil fields are
// left untouched.
type MessagePatch struct {
	Content  *string
	ImageURL *string
	Status   *MessageStatus
}
