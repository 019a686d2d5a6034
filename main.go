package main

import (
	"context"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"messenger/internal/auth"
	"messenger/internal/config"
	"messenger/internal/db"
	"messenger/internal/handlers"
	"messenger/internal/middleware"
	"messenger/internal/observability"
	"messenger/internal/presence"
	"messenger/internal/rabbitmq"
	"messenger/internal/repositories"
	"messenger/internal/services"
	"messenger/internal/telemetry"
	"messenger/internal/ws"
)

func main() {
	cfg := config.Load()

	database, err := db.Connect(cfg.DatabaseDSN)
	if err != nil {
		log.Fatalf("failed to connect to db: %v", err)
	}

	shutdownTracing, err := observability.InitTracing(context.Background(), "messenger", cfg.OTLPEndpoint)
	if err != nil {
		log.Printf("tracing disabled: %v", err)
	} else {
		defer func() {
			if err := shutdownTracing(context.Background()); err != nil {
				log.Printf("tracing shutdown: %v", err)
			}
		}()
	}

	if publisher, err := observability.NewAMQPPublisher(cfg.AMQPURL, cfg.AMQPExchange); err != nil {
		log.Printf("event publishing disabled: %v", err)
	} else {
		observability.SetPublisher(publisher)
		defer publisher.Close()
	}

	auditPublisher := rabbitmq.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange)
	defer auditPublisher.Close()
	audit := telemetry.NewAuditEmitter(auditPublisher, "audit.messenger", "messenger", cfg.Environment)

	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
	}

	var tracker presence.Tracker = presence.NoopTracker{}
	if redisClient != nil {
		tracker = presence.NewRedisTrackerWithClient(redisClient, cfg.PresenceTTL)
	}

	userRepo := repositories.NewUserRepo(database)
	chatRepo := repositories.NewChatRepo(database)
	messageRepo := repositories.NewMessageRepo(database)

	tokens := auth.NewTokenManager(cfg.JWTSecret, cfg.JWTLifetime)
	messageService := services.NewMessageService(chatRepo, messageRepo, userRepo, tracker, cfg.DefaultPageSize, cfg.MaxPageSize)
	chatService := services.NewChatService(chatRepo)

	hub := ws.NewHub()
	gateway := ws.NewGateway(hub, tokens, userRepo, chatRepo, messageService, tracker)

	authHandler := handlers.NewAuthHandler(userRepo, tokens, audit)
	userHandler := handlers.NewUserHandler(userRepo)
	chatHandler := handlers.NewChatHandler(chatService, audit)
	messageHandler := handlers.NewMessageHandler(messageService, chatRepo, hub, audit)

	router := gin.Default()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware("messenger"))
	router.Use(observability.HTTPMetricsMiddleware())

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/healthz", func(c *gin.Context) {
		if err := database.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "db unreachable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	handlers.RegisterDebugRoutes(router, audit, cfg.Environment != "production")

	authLimiter := middleware.NewRateLimiter(redisClient, cfg.AuthRateLimit, cfg.AuthRateWindow)
	authMiddleware := middleware.Auth(tokens)

	api := router.Group("/api/v1")
	api.POST("/auth/register", authLimiter.Middleware(), authHandler.Register)
	api.POST("/auth/login", authLimiter.Middleware(), authHandler.Login)

	api.GET("/users/:id", authMiddleware, userHandler.GetUser)
	api.PUT("/users/:id", authMiddleware, userHandler.UpdateUser)
	api.GET("/users/search/phone", authMiddleware, userHandler.SearchByPhone)
	api.GET("/users/search/name", authMiddleware, userHandler.SearchByName)

	api.POST("/chats", authMiddleware, chatHandler.CreateChat)
	api.GET("/chats/user/:userId", authMiddleware, chatHandler.ListUserChats)
	api.GET("/chats/unread/:userId/:chatId", authMiddleware, chatHandler.GetUnreadCount)
	api.GET("/chats/:chatId", authMiddleware, chatHandler.GetChat)

	api.POST("/messages", authMiddleware, messageHandler.SendMessage)
	api.GET("/messages/:chatId", authMiddleware, messageHandler.GetChatMessages)
	api.POST("/messages/:messageId/delivered", authMiddleware, messageHandler.MarkDelivered)
	api.POST("/messages/:messageId/read", authMiddleware, messageHandler.MarkRead)
	api.POST("/messages/read-up-to/:chatId", authMiddleware, messageHandler.MarkReadUpTo)
	api.DELETE("/messages/:messageId", authMiddleware, messageHandler.DeleteMessage)

	router.GET("/ws", gateway.Handle)

	if err := router.Run(":" + cfg.Port); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
