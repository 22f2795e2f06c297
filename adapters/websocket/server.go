package websocket

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/yuvalro/ivan/domain"
	"github.com/yuvalro/ivan/usecase"
	"github.com/yuvalro/ivan/utils/log"
)

const (
	TranscriptionTopic = "transcription.results"
)

type Server struct {
	upgrader websocket.Upgrader
	store    *usecase.SessionStore
	svc      *usecase.ChatService
	broker   domain.MessageBroker
	ids      domain.IDGenerator
	hub      *Hub
}

func NewServer(store *usecase.SessionStore, svc *usecase.ChatService, broker domain.MessageBroker, ids domain.IDGenerator) *Server {
	server := &Server{
		upgrader: websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
		store:    store,
		svc:      svc,
		broker:   broker,
		ids:      ids,
		hub:      NewHub(),
	}

	go server.startChatUpdateListener()
	go server.startTranscriptionListener()

	return server
}

func (s *Server) RunWebsocketHub() {
	s.hub.Run()
}

func (s *Server) GetHub() *Hub {
	return s.hub
}

// startChatUpdateListener routes session and message updates published by
// the chat service back to the connection the exchange originated from.
func (s *Server) startChatUpdateListener() {
	ctx := context.Background()

	events, err := s.broker.Subscribe(ctx, usecase.ChatUpdatesTopic, "")
	if err != nil {
		log.WithCtx(ctx).Error("Failed to subscribe to chat updates", zap.Error(err))
		return
	}

	log.WithCtx(ctx).Info("WebSocket server listening to chat updates")

	for event := range events {
		var update domain.ChatUpdate
		if err := json.Unmarshal(event.Payload, &update); err != nil {
			log.WithCtx(ctx).Error("Failed to unmarshal chat update", zap.Error(err))
			continue
		}

		out := Event{
			Type:      EventMessageUpdate,
			SessionID: update.SessionID,
			Messages:  update.Messages,
		}
		if update.Title != "" && len(update.Messages) == 0 {
			out.Type = EventSessionStarted
			out.Title = update.Title
		}

		payload, err := json.Marshal(out)
		if err != nil {
			log.WithCtx(ctx).Error("Failed to marshal chat update event", zap.Error(err))
			continue
		}

		if err := s.hub.SendToConn(update.Origin, payload); err != nil {
			log.WithCtx(ctx).Debug("Chat update for gone connection",
				zap.String("origin", update.Origin), zap.Error(err))
		}
	}
}

// startTranscriptionListener routes voice-input transcriptions to the
// uploading connection so the client can fill its input buffer.
func (s *Server) startTranscriptionListener() {
	ctx := context.Background()

	events, err := s.broker.Subscribe(ctx, TranscriptionTopic, "")
	if err != nil {
		log.WithCtx(ctx).Error("Failed to subscribe to transcription topic", zap.Error(err))
		return
	}

	log.WithCtx(ctx).Info("WebSocket server listening to transcription results")

	for event := range events {
		var transcription domain.TranscriptionMessage
		if err := json.Unmarshal(event.Payload, &transcription); err != nil {
			log.WithCtx(ctx).Error("Failed to unmarshal transcription message", zap.Error(err))
			continue
		}

		out := Event{Type: EventTranscription, Text: transcription.Text}
		if !transcription.Success {
			out.Code = "transcription_failed"
			out.Message = transcription.Error
		}

		payload, err := json.Marshal(out)
		if err != nil {
			log.WithCtx(ctx).Error("Failed to marshal transcription event", zap.Error(err))
			continue
		}

		if err := s.hub.SendToConn(transcription.Origin, payload); err != nil {
			log.WithCtx(ctx).Debug("Transcription for gone connection",
				zap.String("origin", transcription.Origin), zap.Error(err))
		}
	}
}
