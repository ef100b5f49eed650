package main

import (
	"context"
	"log"
	"net/http"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"social-chat-service/internal/auth"
	"social-chat-service/internal/broker"
	"social-chat-service/internal/db"
	"social-chat-service/internal/handlers"
	"social-chat-service/internal/middleware"
	"social-chat-service/internal/observability"
	"social-chat-service/internal/presence"
	"social-chat-service/internal/rabbitmq"
	"social-chat-service/internal/repositories"
	"social-chat-service/internal/telemetry"
	"social-chat-service/internal/ws"
)

const serviceName = "social-chat-service"

func main() {
	database, err := db.Connect()
	if err != nil {
		log.Fatalf("failed to connect to db: %v", err)
	}

	shutdownTracing, err := telemetry.InitTracing(context.Background(), serviceName, getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""))
	if err != nil {
		log.Fatalf("failed to init tracing: %v", err)
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			log.Printf("tracing shutdown: %v", err)
		}
	}()

	publisher := rabbitmq.NewPublisher(getEnv("AMQP_URL", ""), getEnv("AMQP_EXCHANGE", "chat.events"))
	defer publisher.Close()
	log.Printf("event publisher mode=%s", rabbitmq.PublisherMode(publisher))
	observability.SetPublisher(publisher)

	audit := telemetry.NewAuditEmitter(publisher, "audit.chat", serviceName, getEnv("ENVIRONMENT", "dev"))

	userRepo := repositories.NewUserRepo(database)
	groupRepo := repositories.NewGroupRepo(database)
	messageRepo := repositories.NewMessageRepo(database)

	tokens := auth.NewTokenService()
	tracker := presence.NewTracker(presence.DefaultTypingTTL)
	hub := ws.NewHub()
	chatBroker := broker.New(hub, userRepo, groupRepo, messageRepo, tracker)

	authHandler := handlers.NewAuthHandler(userRepo, tokens)
	rosterHandler := handlers.NewRosterHandler(userRepo)
	groupHandler := handlers.NewGroupHandler(groupRepo, audit)
	messageHandler := handlers.NewMessageHandler(messageRepo, groupRepo)
	wsHandler := ws.NewHandler(hub, chatBroker, tokens)

	router := gin.Default()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(serviceName))
	router.Use(observability.HTTPMetricsMiddleware())

	router.POST("/login", authHandler.Login)
	router.GET("/healthz", func(c *gin.Context) {
		if err := database.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "error", "database": "disconnected"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "database": "connected"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	authMiddleware := middleware.AuthMiddleware(tokens)

	router.GET("/users", authMiddleware, rosterHandler.ListUsers)
	router.GET("/groups", authMiddleware, groupHandler.ListGroups)
	router.POST("/groups", authMiddleware, groupHandler.CreateGroup)
	router.GET("/messages/:user_id", authMiddleware, messageHandler.GetDirectMessages)
	router.GET("/messages/group/:group_id", authMiddleware, messageHandler.GetGroupMessages)

	router.GET("/ws", wsHandler.Handle)

	port := getEnv("PORT", "8083")
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
