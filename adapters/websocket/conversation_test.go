package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yuvalro/ivan/domain"
	"github.com/yuvalro/ivan/usecase"
)

// memorySender collects outbound events.
type memorySender struct {
	mu     sync.Mutex
	events []Event
}

func (s *memorySender) SendMessage(message []byte) error {
	var event Event
	if err := json.Unmarshal(message, &event); err != nil {
		return err
	}
	s.mu.Lock()
	s.events = append(s.events, event)
	s.mu.Unlock()
	return nil
}

func (s *memorySender) byType(eventType string) []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	var matched []Event
	for _, event := range s.events {
		if event.Type == eventType {
			matched = append(matched, event)
		}
	}
	return matched
}

// blockingSender is a chat service stand-in whose Send blocks until
// released.
type blockingSender struct {
	started  chan struct{}
	release  chan struct{}
	returned string
	calls    int
}

func newBlockingSender(sessionID string) *blockingSender {
	return &blockingSender{
		started:  make(chan struct{}, 1),
		release:  make(chan struct{}),
		returned: sessionID,
	}
}

func (f *blockingSender) Send(ctx context.Context, origin, sessionID, modelID, text string) string {
	f.calls++
	f.started <- struct{}{}
	<-f.release
	return f.returned
}

type archiveStub struct{}

func (archiveStub) Load(ctx context.Context) ([]domain.Session, error) { return nil, nil }
func (archiveStub) Save(ctx context.Context, sessions []domain.Session) error {
	return nil
}

type idStub struct{ n int }

func (g *idStub) NewID() string {
	g.n++
	return string(rune('a' + g.n))
}

func newTestConversation(svc chatSender) (*Conversation, *memorySender, *usecase.SessionStore) {
	sender := &memorySender{}
	store := usecase.NewSessionStore(context.Background(), archiveStub{}, &idStub{})
	return NewConversation(sender, store, svc, "conn-1"), sender, store
}

func command(t *testing.T, cmd Command) []byte {
	t.Helper()
	raw, err := json.Marshal(cmd)
	require.NoError(t, err)
	return raw
}

func TestSendRejectsEmptyInput(t *testing.T) {
	conversation, sender, _ := newTestConversation(newBlockingSender("s1"))

	conversation.HandleCommand(context.Background(), command(t, Command{Type: CmdSend, Text: "   "}))

	errors := sender.byType(EventError)
	require.Len(t, errors, 1)
	assert.Equal(t, "empty_input", errors[0].Code)
	assert.False(t, conversation.Busy())
}

func TestSendGatesOnBusy(t *testing.T) {
	svc := newBlockingSender("s1")
	conversation, sender, _ := newTestConversation(svc)
	ctx := context.Background()

	conversation.HandleCommand(ctx, command(t, Command{Type: CmdSend, Text: "first"}))
	<-svc.started
	assert.True(t, conversation.Busy())

	// second send while the first is in flight
	conversation.HandleCommand(ctx, command(t, Command{Type: CmdSend, Text: "second"}))

	errors := sender.byType(EventError)
	require.Len(t, errors, 1)
	assert.Equal(t, "busy", errors[0].Code)

	close(svc.release)
	conversation.Wait()

	assert.False(t, conversation.Busy())
	assert.Equal(t, 1, svc.calls)
	assert.Equal(t, "s1", conversation.SessionID())
}

func TestSendAdoptsCreatedSession(t *testing.T) {
	svc := newBlockingSender("fresh-session")
	conversation, _, _ := newTestConversation(svc)

	conversation.HandleCommand(context.Background(), command(t, Command{Type: CmdSend, Text: "שלום"}))
	<-svc.started
	close(svc.release)
	conversation.Wait()

	assert.Equal(t, "fresh-session", conversation.SessionID())
}

func TestNewChatClearsSession(t *testing.T) {
	svc := newBlockingSender("s1")
	conversation, sender, _ := newTestConversation(svc)
	ctx := context.Background()

	conversation.HandleCommand(ctx, command(t, Command{Type: CmdSend, Text: "hi"}))
	<-svc.started
	close(svc.release)
	conversation.Wait()
	require.Equal(t, "s1", conversation.SessionID())

	conversation.HandleCommand(ctx, command(t, Command{Type: CmdNewChat}))

	assert.Empty(t, conversation.SessionID())
	assert.Len(t, sender.byType(EventNewChat), 1)
}

func TestSelectSession(t *testing.T) {
	conversation, sender, store := newTestConversation(newBlockingSender("unused"))
	ctx := context.Background()

	sessionID := store.CreateSession(ctx, "old chat")

	conversation.HandleCommand(ctx, command(t, Command{Type: CmdSelectSession, SessionID: sessionID}))

	events := sender.byType(EventSession)
	require.Len(t, events, 1)
	require.NotNil(t, events[0].Session)
	assert.Equal(t, "old chat", events[0].Session.Title)
	assert.Equal(t, sessionID, conversation.SessionID())
}

func TestSelectSessionUnknown(t *testing.T) {
	conversation, sender, _ := newTestConversation(newBlockingSender("unused"))

	conversation.HandleCommand(context.Background(), command(t, Command{Type: CmdSelectSession, SessionID: "missing"}))

	errors := sender.byType(EventError)
	require.Len(t, errors, 1)
	assert.Equal(t, "unknown_session", errors[0].Code)
	assert.Empty(t, conversation.SessionID())
}

func TestSelectModel(t *testing.T) {
	conversation, sender, _ := newTestConversation(newBlockingSender("unused"))
	ctx := context.Background()

	require.Equal(t, domain.ModelFast, conversation.Model().ID)

	conversation.HandleCommand(ctx, command(t, Command{Type: CmdSelectModel, ModelID: domain.ModelSmart}))
	assert.Equal(t, domain.ModelSmart, conversation.Model().ID)
	require.Len(t, sender.byType(EventModelSelected), 1)

	conversation.HandleCommand(ctx, command(t, Command{Type: CmdSelectModel, ModelID: "bogus"}))
	assert.Equal(t, domain.ModelSmart, conversation.Model().ID)
	errors := sender.byType(EventError)
	require.Len(t, errors, 1)
	assert.Equal(t, "unknown_model", errors[0].Code)
}

func TestSearchAndListSessions(t *testing.T) {
	conversation, sender, store := newTestConversation(newBlockingSender("unused"))
	ctx := context.Background()

	store.CreateSession(ctx, "trip planning")
	store.CreateSession(ctx, "groceries")

	conversation.HandleCommand(ctx, command(t, Command{Type: CmdListSessions}))
	conversation.HandleCommand(ctx, command(t, Command{Type: CmdSearch, Query: "trip"}))

	events := sender.byType(EventSessions)
	require.Len(t, events, 2)
	assert.Len(t, events[0].Sessions, 2)
	require.Len(t, events[1].Sessions, 1)
	assert.Equal(t, "trip planning", events[1].Sessions[0].Title)
}

func TestUnknownCommand(t *testing.T) {
	conversation, sender, _ := newTestConversation(newBlockingSender("unused"))

	conversation.HandleCommand(context.Background(), command(t, Command{Type: "dance"}))

	errors := sender.byType(EventError)
	require.Len(t, errors, 1)
	assert.Equal(t, "unknown_command", errors[0].Code)
}

func TestMalformedFrame(t *testing.T) {
	conversation, sender, _ := newTestConversation(newBlockingSender("unused"))

	conversation.HandleCommand(context.Background(), []byte("{nope"))

	errors := sender.byType(EventError)
	require.Len(t, errors, 1)
	assert.Equal(t, "bad_command", errors[0].Code)
}
