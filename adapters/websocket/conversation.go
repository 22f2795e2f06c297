package websocket

import (
	"context"
	"encoding/json"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/yuvalro/ivan/domain"
	"github.com/yuvalro/ivan/usecase"
	"github.com/yuvalro/ivan/utils/log"
)

// eventSender is the outbound side of a conversation; *Client satisfies it.
type eventSender interface {
	SendMessage(message []byte) error
}

// chatSender is the one-cycle-per-call contract of the chat service.
type chatSender interface {
	Send(ctx context.Context, origin, sessionID, modelID, text string) string
}

// Conversation holds the per-connection interaction state: the current
// session, the selected model tier and the busy flag gating sends. One
// request/response cycle may be in flight at a time; every other command
// stays responsive while it runs.
type Conversation struct {
	sender eventSender
	store  *usecase.SessionStore
	svc    chatSender
	origin string

	mu        sync.Mutex
	sessionID string
	model     domain.Model
	busy      bool
	inflight  sync.WaitGroup
}

func NewConversation(sender eventSender, store *usecase.SessionStore, svc chatSender, origin string) *Conversation {
	return &Conversation{
		sender: sender,
		store:  store,
		svc:    svc,
		origin: origin,
		model:  domain.DefaultModel(),
	}
}

// HandleCommand dispatches one inbound frame. Only send runs asynchronously;
// everything else answers inline.
func (c *Conversation) HandleCommand(ctx context.Context, raw []byte) {
	var cmd Command
	if err := json.Unmarshal(raw, &cmd); err != nil {
		c.sendError("bad_command", "frame is not a valid command")
		return
	}

	switch cmd.Type {
	case CmdSend:
		c.handleSend(ctx, cmd.Text)
	case CmdNewChat:
		c.mu.Lock()
		c.sessionID = ""
		c.mu.Unlock()
		c.sendEvent(Event{Type: EventNewChat})
	case CmdSelectSession:
		session, ok := c.store.Get(cmd.SessionID)
		if !ok {
			c.sendError("unknown_session", "no session with id "+cmd.SessionID)
			return
		}
		c.mu.Lock()
		c.sessionID = session.ID
		c.mu.Unlock()
		c.sendEvent(Event{Type: EventSession, Session: &session})
	case CmdSelectModel:
		model, ok := domain.ModelByID(cmd.ModelID)
		if !ok {
			c.sendError("unknown_model", "no model with id "+cmd.ModelID)
			return
		}
		c.mu.Lock()
		c.model = model
		c.mu.Unlock()
		c.sendEvent(Event{Type: EventModelSelected, ModelID: model.ID})
	case CmdListModels:
		c.sendEvent(Event{Type: EventModels, Models: domain.Models})
	case CmdListSessions:
		c.sendEvent(Event{Type: EventSessions, Sessions: summarize(c.store.ListSessions())})
	case CmdSearch:
		c.sendEvent(Event{Type: EventSessions, Sessions: summarize(c.store.Search(cmd.Query))})
	default:
		c.sendError("unknown_command", "unknown command type "+cmd.Type)
	}
}

// handleSend gates on empty input and the busy flag, then runs the cycle in
// the background so the read pump keeps serving history and menu commands.
func (c *Conversation) handleSend(ctx context.Context, text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		c.sendError("empty_input", "cannot send an empty message")
		return
	}

	c.mu.Lock()
	if c.busy {
		c.mu.Unlock()
		c.sendError("busy", "a request is already in flight")
		return
	}
	c.busy = true
	sessionID := c.sessionID
	modelID := c.model.ID
	c.mu.Unlock()

	c.sendEvent(Event{Type: EventBusy, Busy: true})

	c.inflight.Add(1)
	go func() {
		defer c.inflight.Done()

		targetID := c.svc.Send(ctx, c.origin, sessionID, modelID, text)

		c.mu.Lock()
		c.sessionID = targetID
		c.busy = false
		c.mu.Unlock()

		c.sendEvent(Event{Type: EventBusy, Busy: false, SessionID: targetID})
	}()
}

// SessionID returns the conversation's current session id.
func (c *Conversation) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

// Model returns the selected model tier.
func (c *Conversation) Model() domain.Model {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.model
}

// Busy reports whether a cycle is in flight.
func (c *Conversation) Busy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.busy
}

// Wait blocks until the in-flight cycle, if any, completes.
func (c *Conversation) Wait() {
	c.inflight.Wait()
}

func (c *Conversation) sendEvent(event Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		log.With(zap.Error(err)).Error("Failed to marshal event")
		return
	}
	c.sender.SendMessage(payload)
}

func (c *Conversation) sendError(code, message string) {
	c.sendEvent(Event{Type: EventError, Code: code, Message: message})
}
