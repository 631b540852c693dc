package handlers

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5"

	"github.com/Middle-FitnessApp/diplom-middle-fitnessApp-sub000/internal/models"
	"github.com/Middle-FitnessApp/diplom-middle-fitnessApp-sub000/internal/services"
)

type notificationApplicationService interface {
	List(ctx context.Context, userID int64, page int, limit int, isRead *bool) ([]models.Notification, int, int, error)
	MarkRead(ctx context.Context, userID int64, notificationID int64) (*models.Notification, error)
	MarkAllRead(ctx context.Context, userID int64) error
}

type NotificationHandler struct {
	service notificationApplicationService
}

func NewNotificationHandler(service notificationApplicationService) *NotificationHandler {
	return &NotificationHandler{service: service}
}

func (h *NotificationHandler) List(c *fiber.Ctx) error {
	actorID, err := parseActorID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	page := parsePositiveInt(c.Query("page"), 1)
	limit := parsePositiveInt(c.Query("limit"), defaultPageLimit)
	if limit > maxPageLimit {
		limit = maxPageLimit
	}

	var isRead *bool
	switch strings.ToLower(c.Query("is_read")) {
	case "true":
		value := true
		isRead = &value
	case "false":
		value := false
		isRead = &value
	}

	notifications, unread, total, err := h.service.List(c.Context(), actorID, page, limit, isRead)
	if err != nil {
		return mapNotificationError(c, err)
	}

	return c.JSON(fiber.Map{
		"notifications": notifications,
		"unread_count":  unread,
		"pagination":    buildPaginationMeta(page, limit, total),
	})
}

func (h *NotificationHandler) MarkRead(c *fiber.Ctx) error {
	actorID, err := parseActorID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	notificationID, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil || notificationID <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid notification id"})
	}

	notification, err := h.service.MarkRead(c.Context(), actorID, notificationID)
	if err != nil {
		return mapNotificationError(c, err)
	}

	return c.JSON(fiber.Map{"notification": notification})
}

func (h *NotificationHandler) MarkAllRead(c *fiber.Ctx) error {
	actorID, err := parseActorID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	if err := h.service.MarkAllRead(c.Context(), actorID); err != nil {
		return mapNotificationError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func mapNotificationError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, services.ErrInvalidInput):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request"})
	case errors.Is(err, pgx.ErrNoRows):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Notification not found"})
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to process notification request"})
	}
}
