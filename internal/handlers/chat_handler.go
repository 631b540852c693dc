package handlers

import (
	"context"
	"errors"
	"strconv"
	"strings"

	websocket "github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5"

	"github.com/Middle-FitnessApp/diplom-middle-fitnessApp-sub000/internal/models"
	"github.com/Middle-FitnessApp/diplom-middle-fitnessApp-sub000/internal/services"
	chatws "github.com/Middle-FitnessApp/diplom-middle-fitnessApp-sub000/internal/websocket"
	"github.com/Middle-FitnessApp/diplom-middle-fitnessApp-sub000/pkg/utils"
)

type chatApplicationService interface {
	ListRooms(ctx context.Context, actorID int64, role string) ([]models.ChatRoomSummary, error)
	Send(ctx context.Context, senderID int64, role string, input services.SendMessageInput) (*services.ChatDelivery, error)
	ListMessages(ctx context.Context, actorID int64, role string, roomID int64, page int, limit int) ([]models.ChatMessage, int, error)
	MarkRead(ctx context.Context, actorID int64, role string, roomID int64) error
	RoomForParticipant(ctx context.Context, roomID int64, actorID int64) (*models.ChatRoom, error)
}

type ChatHandler struct {
	service   chatApplicationService
	hub       *chatws.Hub
	jwtSecret string
}

type sendMessageRequest struct {
	ChatRoomID    int64   `json:"chat_room_id"`
	RecipientID   int64   `json:"recipient_id"`
	Content       string  `json:"content"`
	AttachmentURL *string `json:"attachment_url"`
	CorrelationID string  `json:"correlation_id"`
}

func NewChatHandler(service chatApplicationService, hub *chatws.Hub, jwtSecret string) *ChatHandler {
	return &ChatHandler{
		service:   service,
		hub:       hub,
		jwtSecret: jwtSecret,
	}
}

func (h *ChatHandler) ListRooms(c *fiber.Ctx) error {
	role, ok := c.Locals("role").(string)
	if !ok || (role != models.RoleTrainee && role != models.RoleCoach) {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Forbidden"})
	}

	actorID, err := parseActorID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	rooms, err := h.service.ListRooms(c.Context(), actorID, role)
	if err != nil {
		return mapChatError(c, err)
	}

	return c.JSON(fiber.Map{"chats": rooms})
}

// SendMessage echoes the client's correlation id beside the persisted
// message, so a retried submit can be recognized without the store
// deduplicating anything.
func (h *ChatHandler) SendMessage(c *fiber.Ctx) error {
	role, ok := c.Locals("role").(string)
	if !ok || (role != models.RoleTrainee && role != models.RoleCoach) {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Forbidden"})
	}

	actorID, err := parseActorID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	var req sendMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	delivery, err := h.service.Send(c.Context(), actorID, role, services.SendMessageInput{
		ChatRoomID:    req.ChatRoomID,
		RecipientID:   req.RecipientID,
		Content:       req.Content,
		AttachmentURL: req.AttachmentURL,
		CorrelationID: req.CorrelationID,
	})
	if err != nil {
		return mapChatError(c, err)
	}

	response := fiber.Map{"message": delivery.Message}
	if delivery.CorrelationID != "" {
		response["correlation_id"] = delivery.CorrelationID
	}

	return c.Status(fiber.StatusCreated).JSON(response)
}

func (h *ChatHandler) GetMessages(c *fiber.Ctx) error {
	role, ok := c.Locals("role").(string)
	if !ok || (role != models.RoleTrainee && role != models.RoleCoach) {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Forbidden"})
	}

	actorID, err := parseActorID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	roomID, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil || roomID <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid chat room id"})
	}

	page := parsePositiveInt(c.Query("page"), 1)
	limit := parsePositiveInt(c.Query("limit"), defaultPageLimit)
	if limit > maxPageLimit {
		limit = maxPageLimit
	}

	messages, total, err := h.service.ListMessages(c.Context(), actorID, role, roomID, page, limit)
	if err != nil {
		return mapChatError(c, err)
	}

	return c.JSON(fiber.Map{
		"messages":   messages,
		"pagination": buildPaginationMeta(page, limit, total),
	})
}

func (h *ChatHandler) MarkRead(c *fiber.Ctx) error {
	role, ok := c.Locals("role").(string)
	if !ok || (role != models.RoleTrainee && role != models.RoleCoach) {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Forbidden"})
	}

	actorID, err := parseActorID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	roomID, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil || roomID <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid chat room id"})
	}

	if err := h.service.MarkRead(c.Context(), actorID, role, roomID); err != nil {
		return mapChatError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *ChatHandler) WebSocketAuth(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return c.Status(fiber.StatusUpgradeRequired).JSON(fiber.Map{"error": "WebSocket upgrade required"})
	}

	claims, err := h.parseWSClaims(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid or expired token"})
	}

	c.Locals("user_id", claims.UserID)
	c.Locals("role", claims.Role)
	return c.Next()
}

func (h *ChatHandler) HandleWebSocket(conn *websocket.Conn) {
	rawUserID, _ := conn.Locals("user_id").(string)
	role, _ := conn.Locals("role").(string)

	userID, err := strconv.ParseInt(rawUserID, 10, 64)
	if err != nil || userID <= 0 {
		_ = conn.Close()
		return
	}

	client := chatws.NewClient(h.hub, conn, userID, role)

	h.hub.Register(client)
	go client.WritePump()
	client.ReadPump(h.service)
}

func (h *ChatHandler) parseWSClaims(c *fiber.Ctx) (*utils.Claims, error) {
	tokenString := strings.TrimSpace(c.Query("token"))
	if tokenString == "" {
		authHeader := strings.TrimSpace(c.Get("Authorization"))
		if authHeader != "" {
			parts := strings.Split(authHeader, " ")
			if len(parts) == 2 && parts[0] == "Bearer" {
				tokenString = parts[1]
			}
		}
	}

	if tokenString == "" {
		return nil, errors.New("missing token")
	}

	return utils.ValidateToken(tokenString, h.jwtSecret)
}

func mapChatError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, services.ErrForbidden):
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Forbidden"})
	case errors.Is(err, services.ErrInvalidInput):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request"})
	case errors.Is(err, pgx.ErrNoRows):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Chat room not found"})
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to process chat request"})
	}
}
