package handlers

import (
	"context"
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5"

	"github.com/Middle-FitnessApp/diplom-middle-fitnessApp-sub000/internal/models"
	"github.com/Middle-FitnessApp/diplom-middle-fitnessApp-sub000/internal/services"
)

type relationshipApplicationService interface {
	Request(ctx context.Context, traineeID int64, role string, coachID int64) (*models.Relationship, error)
	Accept(ctx context.Context, coachID int64, role string, relationshipID int64) (*models.Relationship, error)
	Reject(ctx context.Context, coachID int64, role string, relationshipID int64) (*models.Relationship, error)
	Unpair(ctx context.Context, actorID int64, relationshipID int64) (*models.Relationship, error)
	ListForParticipant(ctx context.Context, actorID int64, role string) ([]models.Relationship, error)
	ActivePairing(ctx context.Context, traineeID int64, role string) (*models.Relationship, error)
}

type RelationshipHandler struct {
	service relationshipApplicationService
}

type requestPairingRequest struct {
	CoachID int64 `json:"coach_id"`
}

func NewRelationshipHandler(service relationshipApplicationService) *RelationshipHandler {
	return &RelationshipHandler{service: service}
}

func (h *RelationshipHandler) RequestPairing(c *fiber.Ctx) error {
	role, ok := c.Locals("role").(string)
	if !ok || role != models.RoleTrainee {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Forbidden"})
	}

	actorID, err := parseActorID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	var req requestPairingRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	relationship, err := h.service.Request(c.Context(), actorID, role, req.CoachID)
	if err != nil {
		return mapRelationshipError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"relationship": relationship})
}

func (h *RelationshipHandler) List(c *fiber.Ctx) error {
	role, ok := c.Locals("role").(string)
	if !ok || (role != models.RoleTrainee && role != models.RoleCoach) {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Forbidden"})
	}

	actorID, err := parseActorID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	relationships, err := h.service.ListForParticipant(c.Context(), actorID, role)
	if err != nil {
		return mapRelationshipError(c, err)
	}

	return c.JSON(fiber.Map{"relationships": relationships})
}

func (h *RelationshipHandler) Active(c *fiber.Ctx) error {
	role, ok := c.Locals("role").(string)
	if !ok || role != models.RoleTrainee {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Forbidden"})
	}

	actorID, err := parseActorID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	relationship, err := h.service.ActivePairing(c.Context(), actorID, role)
	if err != nil {
		return mapRelationshipError(c, err)
	}

	return c.JSON(fiber.Map{"relationship": relationship})
}

func (h *RelationshipHandler) Accept(c *fiber.Ctx) error {
	role, ok := c.Locals("role").(string)
	if !ok || role != models.RoleCoach {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Forbidden"})
	}

	actorID, err := parseActorID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	relationshipID, err := parseRelationshipID(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid relationship id"})
	}

	relationship, err := h.service.Accept(c.Context(), actorID, role, relationshipID)
	if err != nil {
		return mapRelationshipError(c, err)
	}

	return c.JSON(fiber.Map{"relationship": relationship})
}

func (h *RelationshipHandler) Reject(c *fiber.Ctx) error {
	role, ok := c.Locals("role").(string)
	if !ok || role != models.RoleCoach {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Forbidden"})
	}

	actorID, err := parseActorID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	relationshipID, err := parseRelationshipID(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid relationship id"})
	}

	relationship, err := h.service.Reject(c.Context(), actorID, role, relationshipID)
	if err != nil {
		return mapRelationshipError(c, err)
	}

	return c.JSON(fiber.Map{"relationship": relationship})
}

func (h *RelationshipHandler) Unpair(c *fiber.Ctx) error {
	role, ok := c.Locals("role").(string)
	if !ok || (role != models.RoleTrainee && role != models.RoleCoach) {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Forbidden"})
	}

	actorID, err := parseActorID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	relationshipID, err := parseRelationshipID(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid relationship id"})
	}

	relationship, err := h.service.Unpair(c.Context(), actorID, relationshipID)
	if err != nil {
		return mapRelationshipError(c, err)
	}

	return c.JSON(fiber.Map{"relationship": relationship})
}

func parseRelationshipID(c *fiber.Ctx) (int64, error) {
	relationshipID, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil || relationshipID <= 0 {
		return 0, errors.New("invalid relationship id")
	}
	return relationshipID, nil
}

// Conflict and invalid-state map to different statuses on purpose: 409 means
// the trainee is already paired with someone else, 400 means this invite was
// already handled.
func mapRelationshipError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, services.ErrForbidden):
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Forbidden"})
	case errors.Is(err, services.ErrConflict):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "Already paired"})
	case errors.Is(err, services.ErrInvalidState):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Request already handled"})
	case errors.Is(err, services.ErrInvalidInput):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request"})
	case errors.Is(err, services.ErrCoachNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Coach not found"})
	case errors.Is(err, pgx.ErrNoRows):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Relationship not found"})
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to process relationship request"})
	}
}
