package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5"

	"github.com/Middle-FitnessApp/diplom-middle-fitnessApp-sub000/internal/models"
	"github.com/Middle-FitnessApp/diplom-middle-fitnessApp-sub000/internal/services"
)

type stubRelationshipService struct {
	requestResult      *models.Relationship
	requestErr         error
	acceptResult       *models.Relationship
	acceptErr          error
	rejectResult       *models.Relationship
	rejectErr          error
	unpairResult       *models.Relationship
	unpairErr          error
	listResult         []models.Relationship
	listErr            error
	activeResult       *models.Relationship
	activeErr          error
	lastActorID        int64
	lastRole           string
	lastCoachID        int64
	lastRelationshipID int64
}

func (s *stubRelationshipService) Request(_ context.Context, traineeID int64, role string, coachID int64) (*models.Relationship, error) {
	s.lastActorID = traineeID
	s.lastRole = role
	s.lastCoachID = coachID
	return s.requestResult, s.requestErr
}

func (s *stubRelationshipService) Accept(_ context.Context, coachID int64, role string, relationshipID int64) (*models.Relationship, error) {
	s.lastActorID = coachID
	s.lastRole = role
	s.lastRelationshipID = relationshipID
	return s.acceptResult, s.acceptErr
}

func (s *stubRelationshipService) Reject(_ context.Context, coachID int64, role string, relationshipID int64) (*models.Relationship, error) {
	s.lastActorID = coachID
	s.lastRole = role
	s.lastRelationshipID = relationshipID
	return s.rejectResult, s.rejectErr
}

func (s *stubRelationshipService) Unpair(_ context.Context, actorID int64, relationshipID int64) (*models.Relationship, error) {
	s.lastActorID = actorID
	s.lastRelationshipID = relationshipID
	return s.unpairResult, s.unpairErr
}

func (s *stubRelationshipService) ListForParticipant(_ context.Context, actorID int64, role string) ([]models.Relationship, error) {
	s.lastActorID = actorID
	s.lastRole = role
	return s.listResult, s.listErr
}

func (s *stubRelationshipService) ActivePairing(_ context.Context, traineeID int64, role string) (*models.Relationship, error) {
	s.lastActorID = traineeID
	s.lastRole = role
	return s.activeResult, s.activeErr
}

func newRelationshipTestApp(service *stubRelationshipService, role string, userID string) *fiber.App {
	handler := NewRelationshipHandler(service)

	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		c.Locals("role", role)
		c.Locals("user_id", userID)
		return c.Next()
	})
	app.Post("/api/v1/relationships", handler.RequestPairing)
	app.Get("/api/v1/relationships", handler.List)
	app.Get("/api/v1/relationships/active", handler.Active)
	app.Post("/api/v1/relationships/:id/accept", handler.Accept)
	app.Post("/api/v1/relationships/:id/reject", handler.Reject)
	app.Post("/api/v1/relationships/:id/unpair", handler.Unpair)
	return app
}

func TestRequestPairingReturnsCreatedRelationship(t *testing.T) {
	service := &stubRelationshipService{
		requestResult: &models.Relationship{
			ID:        5,
			TraineeID: 42,
			CoachID:   7,
			Status:    models.RelationshipPending,
			CreatedAt: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
		},
	}
	app := newRelationshipTestApp(service, "trainee", "42")

	req := httptest.NewRequest(http.MethodPost, "/api/v1/relationships", strings.NewReader(`{"coach_id":7}`))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	if service.lastActorID != 42 || service.lastCoachID != 7 {
		t.Fatalf("unexpected forwarded args: actor=%d coach=%d", service.lastActorID, service.lastCoachID)
	}

	var body struct {
		Relationship models.Relationship `json:"relationship"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if body.Relationship.ID != 5 || body.Relationship.Status != models.RelationshipPending {
		t.Fatalf("unexpected response: %+v", body.Relationship)
	}
}

func TestRequestPairingRejectsCoachRole(t *testing.T) {
	service := &stubRelationshipService{}
	app := newRelationshipTestApp(service, "coach", "7")

	req := httptest.NewRequest(http.MethodPost, "/api/v1/relationships", strings.NewReader(`{"coach_id":7}`))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.StatusCode)
	}
	if service.lastActorID != 0 {
		t.Fatalf("service should not be reached, got actor %d", service.lastActorID)
	}
}

func TestAcceptReturnsAcceptedRelationship(t *testing.T) {
	acceptedAt := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	service := &stubRelationshipService{
		acceptResult: &models.Relationship{
			ID:         5,
			TraineeID:  42,
			CoachID:    7,
			Status:     models.RelationshipAccepted,
			AcceptedAt: &acceptedAt,
		},
	}
	app := newRelationshipTestApp(service, "coach", "7")

	req := httptest.NewRequest(http.MethodPost, "/api/v1/relationships/5/accept", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if service.lastActorID != 7 || service.lastRelationshipID != 5 {
		t.Fatalf("unexpected forwarded args: actor=%d relationship=%d", service.lastActorID, service.lastRelationshipID)
	}

	var body struct {
		Relationship models.Relationship `json:"relationship"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if body.Relationship.Status != models.RelationshipAccepted || body.Relationship.AcceptedAt == nil {
		t.Fatalf("unexpected response: %+v", body.Relationship)
	}
}

func TestAcceptMapsConflictToConflictStatus(t *testing.T) {
	service := &stubRelationshipService{acceptErr: services.ErrConflict}
	app := newRelationshipTestApp(service, "coach", "7")

	req := httptest.NewRequest(http.MethodPost, "/api/v1/relationships/5/accept", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409, got %d", resp.StatusCode)
	}
}

func TestAcceptMapsInvalidStateToBadRequest(t *testing.T) {
	service := &stubRelationshipService{acceptErr: services.ErrInvalidState}
	app := newRelationshipTestApp(service, "coach", "7")

	req := httptest.NewRequest(http.MethodPost, "/api/v1/relationships/5/accept", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestRejectMapsMissingRelationshipToNotFound(t *testing.T) {
	service := &stubRelationshipService{rejectErr: pgx.ErrNoRows}
	app := newRelationshipTestApp(service, "coach", "7")

	req := httptest.NewRequest(http.MethodPost, "/api/v1/relationships/99/reject", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestAcceptRejectsInvalidRelationshipID(t *testing.T) {
	service := &stubRelationshipService{}
	app := newRelationshipTestApp(service, "coach", "7")

	req := httptest.NewRequest(http.MethodPost, "/api/v1/relationships/abc/accept", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestUnpairAllowsEitherParty(t *testing.T) {
	endedAt := time.Date(2026, 3, 3, 8, 0, 0, 0, time.UTC)
	service := &stubRelationshipService{
		unpairResult: &models.Relationship{
			ID:        5,
			TraineeID: 42,
			CoachID:   7,
			Status:    models.RelationshipEnded,
			EndedAt:   &endedAt,
		},
	}
	app := newRelationshipTestApp(service, "trainee", "42")

	req := httptest.NewRequest(http.MethodPost, "/api/v1/relationships/5/unpair", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if service.lastActorID != 42 || service.lastRelationshipID != 5 {
		t.Fatalf("unexpected forwarded args: actor=%d relationship=%d", service.lastActorID, service.lastRelationshipID)
	}
}

func TestActiveReturnsCurrentPairing(t *testing.T) {
	service := &stubRelationshipService{
		activeResult: &models.Relationship{ID: 5, TraineeID: 42, CoachID: 7, Status: models.RelationshipAccepted},
	}
	app := newRelationshipTestApp(service, "trainee", "42")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/relationships/active", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var body struct {
		Relationship models.Relationship `json:"relationship"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if body.Relationship.CoachID != 7 {
		t.Fatalf("unexpected response: %+v", body.Relationship)
	}
}
