package websocket

import (
	"time"

	"github.com/yuvalro/ivan/domain"
)

// Command is an inbound frame from the client.
type Command struct {
	Type      string `json:"type"`
	Text      string `json:"text,omitempty"`
	SessionID string `json:"session_id,omitempty"`
	ModelID   string `json:"model_id,omitempty"`
	Query     string `json:"query,omitempty"`
}

// Event is an outbound frame to the client.
type Event struct {
	Type      string           `json:"type"`
	ConnID    string           `json:"conn_id,omitempty"`
	SessionID string           `json:"session_id,omitempty"`
	Title     string           `json:"title,omitempty"`
	Messages  []domain.Message `json:"messages,omitempty"`
	Session   *domain.Session  `json:"session,omitempty"`
	Sessions  []SessionSummary `json:"sessions,omitempty"`
	Models    []domain.Model   `json:"models,omitempty"`
	ModelID   string           `json:"model_id,omitempty"`
	Busy      bool             `json:"busy"`
	Text      string           `json:"text,omitempty"`
	Code      string           `json:"code,omitempty"`
	Message   string           `json:"message,omitempty"`
}

// Inbound command types.
const (
	CmdSend          = "send"
	CmdNewChat       = "new_chat"
	CmdSelectSession = "select_session"
	CmdSelectModel   = "select_model"
	CmdListModels    = "list_models"
	CmdListSessions  = "list_sessions"
	CmdSearch        = "search"
)

// Outbound event types.
const (
	EventHello          = "hello"
	EventError          = "error"
	EventBusy           = "busy"
	EventNewChat        = "new_chat"
	EventSession        = "session"
	EventSessions       = "sessions"
	EventModels         = "models"
	EventModelSelected  = "model_selected"
	EventSessionStarted = "session_started"
	EventMessageUpdate  = "message_update"
	EventTranscription  = "transcription"
)

// SessionSummary is the history-panel shape of a session.
type SessionSummary struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Timestamp time.Time `json:"timestamp"`
}

func summarize(sessions []domain.Session) []SessionSummary {
	summaries := make([]SessionSummary, len(sessions))
	for i, session := range sessions {
		summaries[i] = SessionSummary{
			ID:        session.ID,
			Title:     session.Title,
			Timestamp: session.Timestamp,
		}
	}
	return summaries
}
