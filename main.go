package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"messenger-service/internal/auth"
	"messenger-service/internal/db"
	"messenger-service/internal/handlers"
	"messenger-service/internal/middleware"
	"messenger-service/internal/observability"
	"messenger-service/internal/presence"
	"messenger-service/internal/rabbitmq"
	"messenger-service/internal/repositories"
	"messenger-service/internal/telemetry"
	"messenger-service/internal/ws"
)

const serviceName = "messenger-service"

func main() {
	database, err := db.Connect()
	if err != nil {
		log.Fatalf("failed to connect to db: %v", err)
	}

	shutdownTracing := observability.SetupTracing(context.Background(), serviceName)
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			log.Printf("tracing shutdown: %v", err)
		}
	}()

	amqpURL := getEnv("AMQP_URL", "")
	amqpExchange := getEnv("AMQP_EXCHANGE", "messenger_events")

	publisher := rabbitmq.NewPublisher(amqpURL, amqpExchange)
	defer publisher.Close()
	log.Printf("audit publisher mode=%s", rabbitmq.PublisherMode(publisher))

	if amqpURL != "" {
		eventsPublisher, err := observability.NewAMQPPublisher(amqpURL, amqpExchange)
		if err != nil {
			log.Printf("ws event publisher disabled: %v", err)
		} else {
			defer eventsPublisher.Close()
			observability.SetPublisher(eventsPublisher)
		}
	}

	auditEmitter := telemetry.NewAuditEmitter(publisher, "audit.messenger", serviceName, getEnv("ENVIRONMENT", "development"))

	tokens := auth.NewTokenService(
		getEnv("JWT_ACCESS_SECRET", "dev-access-secret"),
		getEnv("JWT_REFRESH_SECRET", "dev-refresh-secret"),
		getDurationEnv("JWT_ACCESS_TTL", 15*time.Minute),
		getDurationEnv("JWT_REFRESH_TTL", 7*24*time.Hour),
	)

	presenceCache := presence.NewCache(presence.OpenFromEnv())

	userRepo := repositories.NewUserRepo(database)
	chatRepo := repositories.NewChatRepo(database)
	messageRepo := repositories.NewMessageRepo(database)

	hub := ws.NewHub()
	presenceCoordinator := ws.NewPresenceCoordinator(hub, userRepo, presenceCache)
	wsHandler := ws.NewHandler(hub, presenceCoordinator, chatRepo, tokens)

	authHandler := handlers.NewAuthHandler(userRepo, tokens)
	userHandler := handlers.NewUserHandler(userRepo, presenceCache)
	chatHandler := handlers.NewChatHandler(chatRepo)
	messageHandler := handlers.NewMessageHandler(chatRepo, messageRepo, hub)

	router := gin.Default()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(serviceName))
	router.Use(observability.HTTPMetricsMiddleware())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	router.POST("/auth/register", authHandler.Register)
	router.POST("/auth/login", authHandler.Login)
	router.POST("/auth/refresh", authHandler.Refresh)

	authMiddleware := middleware.AuthMiddleware(tokens)

	router.GET("/users", authMiddleware, userHandler.ListUsers)
	router.GET("/users/:user_id/presence", authMiddleware, userHandler.GetPresence)

	router.POST("/chats", authMiddleware, chatHandler.StartChat)
	router.POST("/chats/group", authMiddleware, chatHandler.CreateGroupChat)
	router.GET("/chats", authMiddleware, chatHandler.ListChats)
	router.GET("/chats/:chat_id", authMiddleware, chatHandler.GetChat)
	router.PUT("/chats/:chat_id/name", authMiddleware, chatHandler.RenameGroup)

	router.POST("/messages", authMiddleware, messageHandler.SendMessage)
	router.GET("/messages/:chat_id", authMiddleware, messageHandler.GetMessages)
	router.PUT("/messages/:message_id/read", authMiddleware, messageHandler.MarkRead)

	router.GET("/ws", wsHandler.Handle)

	handlers.RegisterDebugRoutes(router, auditEmitter, getEnv("DEBUG_ROUTES", "") == "true")

	port := getEnv("PORT", "8080")
	if err := router.Run(":" + port); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}

func getDurationEnv(key string, fallback time.Duration) time.Duration {
	if val, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return fallback
}
