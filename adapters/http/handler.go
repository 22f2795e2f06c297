package http

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/yuvalro/ivan/adapters/speech"
	"github.com/yuvalro/ivan/adapters/tts"
	"github.com/yuvalro/ivan/domain"
	"github.com/yuvalro/ivan/usecase"
	"github.com/yuvalro/ivan/utils/log"
)

const (
	JWTExpiry = 24 * time.Hour

	MaxConcurrent    = 10
	MaxAudioDuration = 60 * time.Second

	TranscriptionTopic = "transcription.results"
)

// Demo identity returned by the mock Google sign-in.
const (
	demoUserID   = "yuval"
	demoUserName = "יובל"
	demoEmail    = "yuval@gmail.com"
)

type ChatHandler struct {
	store         *usecase.SessionStore
	ttsService    *tts.GoogleTTS
	speechService *speech.GoogleSpeech
	messageBroker domain.MessageBroker
	jwtSecret     []byte
}

type JWTClaims struct {
	UserID string `json:"user_id"`
	Name   string `json:"name"`
	Email  string `json:"email"`
	jwt.RegisteredClaims
}

type SessionSummary struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Timestamp time.Time `json:"timestamp"`
}

type Connection struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color"`
}

// connections mirrors the integrations panel of the client: every entry is
// mocked and gated behind sign-in.
var connections = []Connection{
	{ID: "gmail", Name: "Gmail", Color: "#ea4335"},
	{ID: "drive", Name: "Google Drive", Color: "#34a853"},
	{ID: "calendar", Name: "יומן גוגל", Color: "#4285f4"},
	{ID: "photos", Name: "גוגל תמונות", Color: "#ea4335"},
	{ID: "tasks", Name: "תזכורות גוגל", Color: "#4285f4"},
	{ID: "home", Name: "בית חכם", Color: "#34a853"},
	{ID: "docs", Name: "Google Docs", Color: "#4285f4"},
	{ID: "sheets", Name: "Google Sheets", Color: "#34a853"},
	{ID: "slides", Name: "Google Slides", Color: "#fbbc05"},
	{ID: "maps", Name: "גוגל מפות", Color: "#34a853"},
	{ID: "meet", Name: "Google Meet", Color: "#34a853"},
	{ID: "youtube", Name: "YouTube", Color: "#ff0000"},
}

func NewChatHandler(store *usecase.SessionStore, ttsService *tts.GoogleTTS, speechService *speech.GoogleSpeech, messageBroker domain.MessageBroker, jwtSecret []byte) *ChatHandler {
	return &ChatHandler{
		store:         store,
		ttsService:    ttsService,
		speechService: speechService,
		messageBroker: messageBroker,
		jwtSecret:     jwtSecret,
	}
}

// HealthCheck reports liveness.
func (h *ChatHandler) HealthCheck(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// Login is the mock Google sign-in: no real identity check, a fixed demo
// user signed into a JWT.
func (h *ChatHandler) Login(c echo.Context) error {
	claims := &JWTClaims{
		UserID: demoUserID,
		Name:   demoUserName,
		Email:  demoEmail,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(JWTExpiry)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			NotBefore: jwt.NewNumericDate(time.Now()),
			Issuer:    "ivan",
			Subject:   "chat",
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(h.jwtSecret)
	if err != nil {
		log.WithCtx(c.Request().Context()).Error("Error signing JWT", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to generate token")
	}

	return c.JSON(http.StatusOK, map[string]string{
		"token": tokenString,
		"type":  "Bearer",
		"name":  demoUserName,
		"email": demoEmail,
	})
}

// JWTMiddleware authenticates Bearer tokens and stores the identity on the
// echo context.
func (h *ChatHandler) JWTMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		authHeader := c.Request().Header.Get("Authorization")
		if authHeader == "" {
			return echo.NewHTTPError(http.StatusUnauthorized, "Missing authorization header")
		}

		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		if tokenString == authHeader {
			return echo.NewHTTPError(http.StatusUnauthorized, "Invalid authorization format")
		}

		token, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return h.jwtSecret, nil
		})
		if err != nil {
			return echo.NewHTTPError(http.StatusUnauthorized, "Invalid token")
		}

		claims, ok := token.Claims.(*JWTClaims)
		if !ok || !token.Valid {
			return echo.NewHTTPError(http.StatusUnauthorized, "Invalid token claims")
		}

		c.Set("user_id", claims.UserID)
		c.Set("user_name", claims.Name)
		return next(c)
	}
}

// RateLimitMiddleware bounds concurrent audio uploads.
func (h *ChatHandler) RateLimitMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	semaphore := make(chan struct{}, MaxConcurrent)
	return func(c echo.Context) error {
		select {
		case semaphore <- struct{}{}:
			defer func() { <-semaphore }()
			return next(c)
		default:
			return echo.NewHTTPError(http.StatusTooManyRequests, "Too many concurrent requests")
		}
	}
}

// ListModels returns the fixed tier catalog.
func (h *ChatHandler) ListModels(c echo.Context) error {
	return c.JSON(http.StatusOK, domain.Models)
}

// ListSessions returns the history panel, optionally filtered by ?q=.
func (h *ChatHandler) ListSessions(c echo.Context) error {
	query := c.QueryParam("q")
	var sessions []domain.Session
	if query == "" {
		sessions = h.store.ListSessions()
	} else {
		sessions = h.store.Search(query)
	}

	summaries := make([]SessionSummary, len(sessions))
	for i, session := range sessions {
		summaries[i] = SessionSummary{ID: session.ID, Title: session.Title, Timestamp: session.Timestamp}
	}
	return c.JSON(http.StatusOK, summaries)
}

// GetSession returns one full session.
func (h *ChatHandler) GetSession(c echo.Context) error {
	session, ok := h.store.Get(c.Param("id"))
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "Session not found")
	}
	return c.JSON(http.StatusOK, session)
}

// ListConnections returns the mocked integrations panel.
func (h *ChatHandler) ListConnections(c echo.Context) error {
	return c.JSON(http.StatusOK, connections)
}

type SpeakRequest struct {
	SessionID string `json:"session_id"`
	MessageID string `json:"message_id"`
}

// Speak synthesizes a completed bot message as MP3.
func (h *ChatHandler) Speak(c echo.Context) error {
	if h.ttsService == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "Speech synthesis is not configured")
	}

	var req SpeakRequest
	if err := json.NewDecoder(c.Request().Body).Decode(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body")
	}

	session, ok := h.store.Get(req.SessionID)
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "Session not found")
	}

	for _, message := range session.Messages {
		if message.ID != req.MessageID {
			continue
		}
		if message.Role != domain.BotRole || message.Status != domain.StatusComplete {
			return echo.NewHTTPError(http.StatusBadRequest, "Only completed bot messages can be spoken")
		}

		audio, err := h.ttsService.Synthesize(c.Request().Context(), message.Content)
		if err != nil {
			log.WithCtx(c.Request().Context()).Error("Speech synthesis failed", zap.Error(err))
			return echo.NewHTTPError(http.StatusInternalServerError, "Failed to synthesize speech")
		}
		return c.Blob(http.StatusOK, "audio/mpeg", audio)
	}

	return echo.NewHTTPError(http.StatusNotFound, "Message not found")
}

// StreamAudio handles chunked voice input. The transcript is published to
// the broker and routed to the caller's websocket (X-Conn-ID header) so the
// client can fill its input buffer, and also returned in the response.
func (h *ChatHandler) StreamAudio(c echo.Context) error {
	if h.speechService == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "Speech recognition is not configured")
	}

	contentType := c.Request().Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "audio/") && !strings.HasPrefix(contentType, "application/octet-stream") {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid content type. Expected audio/* or application/octet-stream")
	}

	userID, _ := c.Get("user_id").(string)
	origin := c.Request().Header.Get("X-Conn-ID")

	ctx, cancel := context.WithTimeout(c.Request().Context(), MaxAudioDuration)
	defer cancel()

	audioChunks := make(chan []byte, 100)

	type transcriptionResult struct {
		text string
		err  error
	}
	resultChan := make(chan transcriptionResult, 1)
	go func() {
		text, err := h.speechService.TranscribeStreaming(ctx, audioChunks)
		resultChan <- transcriptionResult{text, err}
	}()

	go func() {
		defer close(audioChunks)
		started := time.Now()

		for {
			chunk := make([]byte, 4096)
			n, err := c.Request().Body.Read(chunk)
			if n > 0 {
				select {
				case audioChunks <- chunk[:n]:
				case <-ctx.Done():
					return
				}
			}
			if err != nil {
				if err != io.EOF {
					log.WithCtx(ctx).Error("Error reading audio chunk", zap.Error(err))
				}
				return
			}
			if time.Since(started) > MaxAudioDuration {
				log.WithCtx(ctx).Warn("Audio stream exceeded max duration")
				return
			}
		}
	}()

	result := <-resultChan

	transcription := domain.TranscriptionMessage{
		Origin:    origin,
		UserID:    userID,
		Text:      result.text,
		Timestamp: time.Now(),
		Success:   result.err == nil,
	}
	if result.err != nil {
		transcription.Error = result.err.Error()
	}
	h.publishTranscription(ctx, transcription)

	if result.err != nil {
		log.WithCtx(ctx).Error("Streaming transcription failed", zap.Error(result.err))
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to transcribe audio")
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"success": true,
		"text":    result.text,
	})
}

func (h *ChatHandler) publishTranscription(ctx context.Context, transcription domain.TranscriptionMessage) {
	payload, err := json.Marshal(transcription)
	if err != nil {
		log.WithCtx(ctx).Error("Failed to marshal transcription message", zap.Error(err))
		return
	}
	if err := h.messageBroker.Publish(ctx, TranscriptionTopic, "", payload); err != nil {
		log.WithCtx(ctx).Warn("Failed to publish transcription", zap.Error(err))
	}
}
