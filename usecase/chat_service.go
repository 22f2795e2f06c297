package usecase

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/yuvalro/ivan/domain"
	"github.com/yuvalro/ivan/utils/log"
)

const (
	// ChatUpdatesTopic carries session and message updates to the
	// websocket layer.
	ChatUpdatesTopic = "chat.updates"

	systemInstruction     = "אתה אייבן, עוזר אישי בעברית. ענה תמיד בעברית טבעית ומרגיעה. אל תשתמש ביותר מדי עיצוב טקסט, שמור על תשובות ברורות וקצרות אלא אם התבקשת אחרת."
	plusInstructionSuffix = " תן תשובות מפורטות, חכמות ומאוזנות יותר ממצב רגיל."

	imageReadyText    = "הנה התמונה שיצרתי עבורך:"
	imageFallbackText = "לא הצלחתי ליצור תמונה."
	errorPrefix       = "אירעה שגיאה: "

	creatorImageModel = "gemini-3-pro-image-preview"
	defaultImageModel = "gemini-2.5-flash-image"

	thinkingBudget = 1024
)

// imageIntentPattern routes a prompt to image generation regardless of the
// selected tier.
var imageIntentPattern = regexp.MustCompile(`(?i)תמונה|תצייר|תייצר תמונה|צייר|image|generate image|picture|תמונה אמיתית|צור|visualize`)

// ChatService executes one request/response cycle per Send invocation. The
// caller must not start a second cycle for the same conversation before the
// prior one returns; that discipline lives in the websocket conversation
// controller, not here.
type ChatService struct {
	store  *SessionStore
	llm    domain.Llm
	ids    domain.IDGenerator
	broker domain.MessageBroker
}

func NewChatService(store *SessionStore, llm domain.Llm, ids domain.IDGenerator, broker domain.MessageBroker) *ChatService {
	return &ChatService{
		store:  store,
		llm:    llm,
		ids:    ids,
		broker: broker,
	}
}

// Send runs the full cycle for one trimmed, non-empty user input: optimistic
// append of the user message and a streaming bot placeholder, then either
// the image path or the streaming text path. It returns the session id the
// turn landed in. Backend failures are not returned; they terminate in the
// bot message itself (status error).
func (s *ChatService) Send(ctx context.Context, origin, sessionID, modelID, text string) string {
	model, ok := domain.ModelByID(modelID)
	if !ok {
		model = domain.DefaultModel()
	}

	if sessionID == "" {
		sessionID = s.store.CreateSession(ctx, text)
		if session, found := s.store.Get(sessionID); found {
			s.publish(ctx, domain.ChatUpdate{Origin: origin, SessionID: sessionID, Title: session.Title})
		}
	}

	userMsg := domain.Message{ID: s.ids.NewID(), Role: domain.UserRole, Content: text}
	botMsg := domain.Message{ID: s.ids.NewID(), Role: domain.BotRole, Status: domain.StatusStreaming}
	s.store.AppendTurn(ctx, sessionID, userMsg, botMsg)
	s.publish(ctx, domain.ChatUpdate{Origin: origin, SessionID: sessionID, Messages: []domain.Message{userMsg, botMsg}})

	if model.ID == domain.ModelCreator || isImageRequest(text) {
		s.generateImage(ctx, origin, sessionID, model, botMsg, text)
	} else {
		s.streamText(ctx, origin, sessionID, model, botMsg, text)
	}
	return sessionID
}

// generateImage is the single-call path: one response, zero or more tagged
// parts, one terminal patch.
func (s *ChatService) generateImage(ctx context.Context, origin, sessionID string, model domain.Model, botMsg domain.Message, prompt string) {
	imageModel := defaultImageModel
	if model.ID == domain.ModelCreator {
		imageModel = creatorImageModel
	}

	parts, err := s.llm.GenerateImage(ctx, imageModel, prompt)
	if err != nil {
		s.fail(ctx, origin, sessionID, botMsg, err)
		return
	}

	var replyText strings.Builder
	var imageURL string
	for _, part := range parts {
		switch part.Kind {
		case domain.TextPart:
			replyText.WriteString(part.Text)
		case domain.ImagePart:
			imageURL = fmt.Sprintf("data:%s;base64,%s", part.MIMEType, base64.StdEncoding.EncodeToString(part.Data))
		}
	}

	content := replyText.String()
	if content == "" {
		if imageURL != "" {
			content = imageReadyText
		} else {
			content = imageFallbackText
		}
	}

	botMsg.Content = content
	botMsg.ImageURL = imageURL
	botMsg.Status = domain.StatusComplete
	s.patch(ctx, origin, sessionID, botMsg, domain.MessagePatch{
		Content:  &content,
		ImageURL: &imageURL,
		Status:   &botMsg.Status,
	})
}

// streamText is the streaming path: a config built from the tier, then one
// store update per fragment with the full buffer so far.
func (s *ChatService) streamText(ctx context.Context, origin, sessionID string, model domain.Model, botMsg domain.Message, text string) {
	config := domain.ChatConfig{SystemInstruction: systemInstruction}
	if model.Thinking {
		config.ThinkingBudget = thinkingBudget
	}
	if model.ID == domain.ModelPlus {
		config.SystemInstruction += plusInstructionSuffix
	}

	fragments, err := s.llm.StreamChat(ctx, model.ModelKey, config, text)
	if err != nil {
		s.fail(ctx, origin, sessionID, botMsg, err)
		return
	}

	var buffer strings.Builder
	for fragment := range fragments {
		if fragment.Err != nil {
			s.fail(ctx, origin, sessionID, botMsg, fragment.Err)
			return
		}
		buffer.WriteString(fragment.Text)
		content := buffer.String()
		botMsg.Content = content
		s.patch(ctx, origin, sessionID, botMsg, domain.MessagePatch{Content: &content})
	}

	botMsg.Status = domain.StatusComplete
	s.patch(ctx, origin, sessionID, botMsg, domain.MessagePatch{Status: &botMsg.Status})
}

// fail terminates the bot message with the error string. Partial streamed
// content is overwritten, matching the original behavior.
func (s *ChatService) fail(ctx context.Context, origin, sessionID string, botMsg domain.Message, cause error) {
	log.WithCtx(ctx).Error("Chat exchange failed",
		zap.String("session_id", sessionID),
		zap.Error(cause))

	content := errorPrefix + cause.Error()
	status := domain.StatusError
	botMsg.Content = content
	botMsg.ImageURL = ""
	botMsg.Status = status
	s.patch(ctx, origin, sessionID, botMsg, domain.MessagePatch{Content: &content, Status: &status})
}

func (s *ChatService) patch(ctx context.Context, origin, sessionID string, botMsg domain.Message, patch domain.MessagePatch) {
	s.store.UpdateBotMessage(ctx, sessionID, botMsg.ID, patch)
	s.publish(ctx, domain.ChatUpdate{Origin: origin, SessionID: sessionID, Messages: []domain.Message{botMsg}})
}

func (s *ChatService) publish(ctx context.Context, update domain.ChatUpdate) {
	payload, err := json.Marshal(update)
	if err != nil {
		log.WithCtx(ctx).Error("Failed to marshal chat update", zap.Error(err))
		return
	}
	if err := s.broker.Publish(ctx, ChatUpdatesTopic, "", payload); err != nil {
		log.WithCtx(ctx).Warn("Failed to publish chat update", zap.Error(err))
	}
}

func isImageRequest(text string) bool {
	return imageIntentPattern.MatchString(text)
}
