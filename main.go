package main

import (
	"context"
	"log"
	"os"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/subosito/gotenv"

	"github.com/yuvalro/ivan/adapters/hasher"
	handler "github.com/yuvalro/ivan/adapters/http"
	"github.com/yuvalro/ivan/adapters/id"
	"github.com/yuvalro/ivan/adapters/llm"
	"github.com/yuvalro/ivan/adapters/message_broker"
	"github.com/yuvalro/ivan/adapters/speech"
	"github.com/yuvalro/ivan/adapters/storage"
	"github.com/yuvalro/ivan/adapters/tts"
	"github.com/yuvalro/ivan/adapters/websocket"
	"github.com/yuvalro/ivan/usecase"
)

func main() {
	gotenv.Load()
	ctx := context.Background()

	dbPath := os.Getenv("IVAN_DB")
	if dbPath == "" {
		dbPath = "ivan.db"
	}
	jwtSecret := os.Getenv("IVAN_JWT_SECRET")
	if jwtSecret == "" {
		jwtSecret = "dev-only-secret"
	}
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	archive, err := storage.NewSQLiteArchive(dbPath, hasher.New())
	if err != nil {
		log.Fatalf("opening session archive: %v", err)
	}
	defer archive.Close()

	geminiLlm, err := llm.NewGeminiClient(ctx)
	if err != nil {
		log.Fatalf("creating gemini client: %v", err)
	}

	ids := id.New()
	broker := message_broker.NewChannelMessageBroker()
	defer broker.Close()

	store := usecase.NewSessionStore(ctx, archive, ids)
	svc := usecase.NewChatService(store, geminiLlm, ids, broker)

	// Voice features are optional; the chat works without Google Cloud
	// credentials.
	googleTTS, err := tts.NewGoogleTTS(ctx)
	if err != nil {
		log.Printf("speech synthesis disabled: %v", err)
	}
	googleSpeech, err := speech.NewGoogleSpeech(ctx)
	if err != nil {
		log.Printf("speech recognition disabled: %v", err)
	}

	server := websocket.NewServer(store, svc, broker, ids)
	server.RunWebsocketHub()

	chatHandler := handler.NewChatHandler(store, googleTTS, googleSpeech, broker, []byte(jwtSecret))

	e := echo.New()

	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.Secure())
	e.Use(middleware.RateLimiter(middleware.NewRateLimiterMemoryStore(20)))

	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{echo.GET, echo.POST, echo.PUT, echo.DELETE, echo.OPTIONS},
		AllowHeaders: []string{
			echo.HeaderOrigin,
			echo.HeaderContentType,
			echo.HeaderAccept,
			echo.HeaderAuthorization,
			"X-Conn-ID",
			"Content-Length",
		},
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	e.Use(middleware.BodyLimit("10MB"))

	// WebSocket chat channel (JWT auth, same tokens as HTTP)
	wsGroup := e.Group("/ws")
	wsGroup.Use(chatHandler.JWTMiddleware)
	wsGroup.GET("", server.Handler)

	api := e.Group("/api/v1")

	// Public endpoints
	api.GET("/health", chatHandler.HealthCheck)
	api.POST("/auth/login", chatHandler.Login)
	api.GET("/models", chatHandler.ListModels)

	// Authenticated endpoints
	authed := api.Group("")
	authed.Use(chatHandler.JWTMiddleware)
	authed.GET("/sessions", chatHandler.ListSessions)
	authed.GET("/sessions/:id", chatHandler.GetSession)
	authed.GET("/connections", chatHandler.ListConnections)
	authed.POST("/messages/speak", chatHandler.Speak)

	audio := authed.Group("/audio")
	audio.Use(chatHandler.RateLimitMiddleware)
	audio.POST("/stream", chatHandler.StreamAudio)

	log.Printf("Starting server on :%s", port)
	log.Fatal(e.Start(":" + port))
}
