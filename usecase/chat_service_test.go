package usecase

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yuvalro/ivan/domain"
)

// fakeLlm scripts both backend paths and records what it was asked for.
type fakeLlm struct {
	imageModel  string
	imagePrompt string
	imageParts  []domain.ReplyPart
	imageErr    error

	chatModel  string
	chatConfig domain.ChatConfig
	fragments  []domain.Fragment
	streamErr  error
}

func (f *fakeLlm) GenerateImage(ctx context.Context, modelKey string, prompt string) ([]domain.ReplyPart, error) {
	f.imageModel = modelKey
	f.imagePrompt = prompt
	return f.imageParts, f.imageErr
}

func (f *fakeLlm) StreamChat(ctx context.Context, modelKey string, config domain.ChatConfig, text string) (<-chan domain.Fragment, error) {
	f.chatModel = modelKey
	f.chatConfig = config
	if f.streamErr != nil {
		return nil, f.streamErr
	}
	out := make(chan domain.Fragment, len(f.fragments))
	for _, fragment := range f.fragments {
		out <- fragment
	}
	close(out)
	return out, nil
}

// nopBroker counts publishes and drops them.
type nopBroker struct {
	published int
}

func (b *nopBroker) Publish(ctx context.Context, topic, routingKey string, payload []byte) error {
	b.published++
	return nil
}

func (b *nopBroker) Subscribe(ctx context.Context, topic, routingKey string) (<-chan domain.Event, error) {
	return make(chan domain.Event), nil
}

func (b *nopBroker) Close() error { return nil }

func newTestService(llm *fakeLlm) (*ChatService, *SessionStore) {
	ids := &seqIDs{}
	store := NewSessionStore(context.Background(), &fakeArchive{}, ids)
	return NewChatService(store, llm, ids, &nopBroker{}), store
}

func lastTurn(t *testing.T, store *SessionStore, sessionID string) (domain.Message, domain.Message) {
	t.Helper()
	session, ok := store.Get(sessionID)
	require.True(t, ok)
	require.GreaterOrEqual(t, len(session.Messages), 2)
	return session.Messages[len(session.Messages)-2], session.Messages[len(session.Messages)-1]
}

func TestSendCreatesSessionWhenNoneActive(t *testing.T) {
	llm := &fakeLlm{fragments: []domain.Fragment{{Text: "שלום לך!"}}}
	svc, store := newTestService(llm)

	sessionID := svc.Send(context.Background(), "conn-1", "", domain.ModelFast, "שלום")

	session, ok := store.Get(sessionID)
	require.True(t, ok)
	assert.Equal(t, "שלום", session.Title)

	user, bot := lastTurn(t, store, sessionID)
	assert.Equal(t, domain.UserRole, user.Role)
	assert.Equal(t, "שלום", user.Content)
	assert.Equal(t, domain.BotRole, bot.Role)
	assert.Equal(t, "שלום לך!", bot.Content)
	assert.Equal(t, domain.StatusComplete, bot.Status)
}

func TestSendStreamedContentIsConcatenated(t *testing.T) {
	llm := &fakeLlm{fragments: []domain.Fragment{{Text: "Hel"}, {Text: "lo "}, {Text: "there"}}}
	svc, store := newTestService(llm)

	sessionID := svc.Send(context.Background(), "conn-1", "", domain.ModelFast, "hi")

	_, bot := lastTurn(t, store, sessionID)
	assert.Equal(t, "Hello there", bot.Content)
	assert.Equal(t, domain.StatusComplete, bot.Status)
}

func TestSendReusesActiveSession(t *testing.T) {
	llm := &fakeLlm{fragments: []domain.Fragment{{Text: "ok"}}}
	svc, store := newTestService(llm)

	first := svc.Send(context.Background(), "conn-1", "", domain.ModelFast, "hello")
	second := svc.Send(context.Background(), "conn-1", first, domain.ModelFast, "again")

	assert.Equal(t, first, second)
	session, _ := store.Get(first)
	assert.Len(t, session.Messages, 4)
	assert.Len(t, store.ListSessions(), 1)
}

func TestSendMidStreamFailure(t *testing.T) {
	llm := &fakeLlm{fragments: []domain.Fragment{
		{Text: "Hel"},
		{Err: fmt.Errorf("connection reset")},
	}}
	svc, store := newTestService(llm)

	sessionID := svc.Send(context.Background(), "conn-1", "", domain.ModelFast, "hi")

	user, bot := lastTurn(t, store, sessionID)
	assert.Equal(t, domain.StatusError, bot.Status)
	assert.Equal(t, "אירעה שגיאה: connection reset", bot.Content)

	// the user message is untouched by the failure
	assert.Equal(t, "hi", user.Content)
	assert.Equal(t, domain.UserRole, user.Role)
}

func TestSendStreamOpenFailure(t *testing.T) {
	llm := &fakeLlm{streamErr: fmt.Errorf("backend unavailable")}
	svc, store := newTestService(llm)

	sessionID := svc.Send(context.Background(), "conn-1", "", domain.ModelFast, "hi")

	_, bot := lastTurn(t, store, sessionID)
	assert.Equal(t, domain.StatusError, bot.Status)
	assert.Contains(t, bot.Content, "backend unavailable")
}

func TestSendImageIntentRoutesToImagePath(t *testing.T) {
	llm := &fakeLlm{imageParts: []domain.ReplyPart{
		{Kind: domain.ImagePart, MIMEType: "image/png", Data: []byte{1, 2, 3}},
	}}
	svc, store := newTestService(llm)

	// image trigger word with the fast tier selected
	sessionID := svc.Send(context.Background(), "conn-1", "", domain.ModelFast, "תצייר חתול")

	assert.Equal(t, defaultImageModel, llm.imageModel)
	assert.Equal(t, "תצייר חתול", llm.imagePrompt)

	_, bot := lastTurn(t, store, sessionID)
	assert.Equal(t, domain.StatusComplete, bot.Status)
	assert.Equal(t, "data:image/png;base64,AQID", bot.ImageURL)
	assert.Equal(t, imageReadyText, bot.Content)
}

func TestSendCreatorModelAlwaysTakesImagePath(t *testing.T) {
	llm := &fakeLlm{imageParts: []domain.ReplyPart{
		{Kind: domain.TextPart, Text: "הנה "},
		{Kind: domain.TextPart, Text: "משהו"},
	}}
	svc, store := newTestService(llm)

	sessionID := svc.Send(context.Background(), "conn-1", "", domain.ModelCreator, "something with no trigger words at all")

	assert.Equal(t, creatorImageModel, llm.imageModel)

	_, bot := lastTurn(t, store, sessionID)
	assert.Equal(t, domain.StatusComplete, bot.Status)
	assert.Equal(t, "הנה משהו", bot.Content)
	assert.Empty(t, bot.ImageURL)
}

func TestSendImagePathFallbackWhenEmpty(t *testing.T) {
	llm := &fakeLlm{}
	svc, store := newTestService(llm)

	sessionID := svc.Send(context.Background(), "conn-1", "", domain.ModelCreator, "nothing comes back")

	_, bot := lastTurn(t, store, sessionID)
	assert.Equal(t, domain.StatusComplete, bot.Status)
	assert.Equal(t, imageFallbackText, bot.Content)
	assert.Empty(t, bot.ImageURL)
}

func TestSendImagePathFailure(t *testing.T) {
	llm := &fakeLlm{imageErr: fmt.Errorf("blocked")}
	svc, store := newTestService(llm)

	sessionID := svc.Send(context.Background(), "conn-1", "", domain.ModelCreator, "צור תמונה")

	_, bot := lastTurn(t, store, sessionID)
	assert.Equal(t, domain.StatusError, bot.Status)
	assert.Contains(t, bot.Content, "blocked")
}

func TestSendPlusTierExtendsInstruction(t *testing.T) {
	llm := &fakeLlm{fragments: []domain.Fragment{{Text: "ok"}}}
	svc, _ := newTestService(llm)

	svc.Send(context.Background(), "conn-1", "", domain.ModelPlus, "hi")

	assert.Contains(t, llm.chatConfig.SystemInstruction, systemInstruction)
	assert.Contains(t, llm.chatConfig.SystemInstruction, plusInstructionSuffix)
	assert.Zero(t, llm.chatConfig.ThinkingBudget)
}

func TestSendSmartTierSetsThinkingBudget(t *testing.T) {
	llm := &fakeLlm{fragments: []domain.Fragment{{Text: "ok"}}}
	svc, _ := newTestService(llm)

	svc.Send(context.Background(), "conn-1", "", domain.ModelSmart, "hi")

	assert.Equal(t, int32(thinkingBudget), llm.chatConfig.ThinkingBudget)
	assert.Equal(t, systemInstruction, llm.chatConfig.SystemInstruction)
}

func TestSendUnknownModelFallsBackToDefault(t *testing.T) {
	llm := &fakeLlm{fragments: []domain.Fragment{{Text: "ok"}}}
	svc, _ := newTestService(llm)

	svc.Send(context.Background(), "conn-1", "", "bogus", "hi")

	assert.Equal(t, domain.DefaultModel().ModelKey, llm.chatModel)
}

func TestImageIntentDetection(t *testing.T) {
	tests := []struct {
		text string
		want bool
	}{
		{"תצייר חתול", true},
		{"תייצר תמונה של ים", true},
		{"generate image of a cat", true},
		{"send me a PICTURE", true},
		{"visualize the data", true},
		{"מה שלומך היום", false},
		{"tell me a story", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, isImageRequest(tt.text), "input %q", tt.text)
	}
}
