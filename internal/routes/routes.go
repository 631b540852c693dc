package routes

import (
	"context"
	"log"

	websocket "github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/Middle-FitnessApp/diplom-middle-fitnessApp-sub000/internal/config"
	"github.com/Middle-FitnessApp/diplom-middle-fitnessApp-sub000/internal/handlers"
	"github.com/Middle-FitnessApp/diplom-middle-fitnessApp-sub000/internal/middleware"
	"github.com/Middle-FitnessApp/diplom-middle-fitnessApp-sub000/internal/repository"
	"github.com/Middle-FitnessApp/diplom-middle-fitnessApp-sub000/internal/services"
	chatws "github.com/Middle-FitnessApp/diplom-middle-fitnessApp-sub000/internal/websocket"
)

func RegisterRoutes(app *fiber.App, cfg *config.Config, db *pgxpool.Pool) {
	userRepo := repository.NewUserRepository(db)
	relationshipRepo := repository.NewRelationshipRepository(db)
	chatRoomRepo := repository.NewChatRoomRepository(db)
	messageRepo := repository.NewMessageRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)

	hub := chatws.NewHub()
	if cfg.RedisEnabled() {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		bridge := chatws.NewRedisBridge(redisClient, hub)
		hub.SetBridge(bridge)
		go func() {
			if err := bridge.Run(context.Background()); err != nil {
				log.Printf("realtime bridge stopped: %v", err)
			}
		}()
	}
	go hub.Run()

	notificationService := services.NewNotificationService(notificationRepo, hub)
	relationshipService := services.NewRelationshipService(db, relationshipRepo, userRepo, notificationService, hub)
	chatService := services.NewChatService(db, chatRoomRepo, messageRepo, relationshipRepo, notificationService, hub)

	relationshipHandler := handlers.NewRelationshipHandler(relationshipService)
	chatHandler := handlers.NewChatHandler(chatService, hub, cfg.JWTSecret)
	notificationHandler := handlers.NewNotificationHandler(notificationService)

	api := app.Group("/api")

	// The ws endpoint authenticates itself (token query param or Bearer
	// header) and must be registered before the Bearer-only guard below,
	// or browser clients could never pass the upgrade.
	api.Use("/v1/ws", chatHandler.WebSocketAuth)
	api.Get("/v1/ws", websocket.New(chatHandler.HandleWebSocket))

	authProtected := api.Group("/v1", middleware.AuthRequired(cfg.JWTSecret))

	relationships := authProtected.Group("/relationships")
	relationships.Post("", relationshipHandler.RequestPairing)
	relationships.Get("", relationshipHandler.List)
	relationships.Get("/active", relationshipHandler.Active)
	relationships.Post("/:id/accept", relationshipHandler.Accept)
	relationships.Post("/:id/reject", relationshipHandler.Reject)
	relationships.Post("/:id/unpair", relationshipHandler.Unpair)

	authProtected.Post("/messages", chatHandler.SendMessage)

	chats := authProtected.Group("/chats")
	chats.Get("", chatHandler.ListRooms)
	chats.Get("/:id/messages", chatHandler.GetMessages)
	chats.Post("/:id/read", chatHandler.MarkRead)

	notifications := authProtected.Group("/notifications")
	notifications.Get("", notificationHandler.List)
	notifications.Patch("/mark-all-read", notificationHandler.MarkAllRead)
	notifications.Patch("/:id/read", notificationHandler.MarkRead)
}
