package services

import (
	"context"
	"errors"
	"log"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Middle-FitnessApp/diplom-middle-fitnessApp-sub000/internal/models"
	"github.com/Middle-FitnessApp/diplom-middle-fitnessApp-sub000/internal/repository"
)

var (
	ErrForbidden     = errors.New("forbidden")
	ErrConflict      = errors.New("conflict")
	ErrInvalidState  = errors.New("invalid state")
	ErrInvalidInput  = errors.New("invalid input")
	ErrCoachNotFound = errors.New("coach not found")
)

const uniqueViolationCode = "23505"

type userReader interface {
	GetByID(ctx context.Context, id int64) (*models.User, error)
}

// Notifier persists a notification and pushes it to connected sessions.
type Notifier interface {
	Notify(ctx context.Context, userID int64, notificationType string, message string) (*models.Notification, error)
}

// Pusher delivers transient events to connected sessions. Delivery is
// best-effort; a push to an offline participant is dropped.
type Pusher interface {
	PushToUser(userID int64, event any)
	PushToRoom(roomID int64, event any)
}

type RelationshipService struct {
	db               *pgxpool.Pool
	relationshipRepo *repository.RelationshipRepository
	userRepo         userReader
	notifier         Notifier
	pusher           Pusher
}

func NewRelationshipService(
	db *pgxpool.Pool,
	relationshipRepo *repository.RelationshipRepository,
	userRepo userReader,
	notifier Notifier,
	pusher Pusher,
) *RelationshipService {
	return &RelationshipService{
		db:               db,
		relationshipRepo: relationshipRepo,
		userRepo:         userRepo,
		notifier:         notifier,
		pusher:           pusher,
	}
}

func (s *RelationshipService) Request(
	ctx context.Context,
	traineeID int64,
	role string,
	coachID int64,
) (*models.Relationship, error) {
	if role != models.RoleTrainee {
		return nil, ErrForbidden
	}
	if coachID <= 0 || coachID == traineeID {
		return nil, ErrInvalidInput
	}

	coach, err := s.userRepo.GetByID(ctx, coachID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCoachNotFound
		}
		return nil, err
	}
	if coach.Role != models.RoleCoach {
		return nil, ErrInvalidInput
	}

	relationship, err := s.relationshipRepo.Create(ctx, traineeID, coachID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode {
			return nil, ErrConflict
		}
		return nil, err
	}

	s.dispatch(ctx, coachID, models.NotificationRelationshipChanged,
		"You have a new pairing request")

	return relationship, nil
}

// Accept runs the whole transition as one transaction. The advisory lock on
// the trainee id serializes every status change for that trainee's
// relationship set, so the no-other-accepted check and the pending cascade
// cannot interleave with a concurrent accept. A racing accept that loses
// gets ErrConflict while its row is still pending, or ErrInvalidState once
// the winner's cascade has already rejected it.
func (s *RelationshipService) Accept(
	ctx context.Context,
	coachID int64,
	role string,
	relationshipID int64,
) (*models.Relationship, error) {
	if role != models.RoleCoach {
		return nil, ErrForbidden
	}
	if relationshipID <= 0 {
		return nil, ErrInvalidInput
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	txRelationshipRepo := repository.NewRelationshipRepository(tx)

	relationship, err := txRelationshipRepo.GetByID(ctx, relationshipID)
	if err != nil {
		return nil, err
	}
	if relationship.CoachID != coachID {
		return nil, ErrForbidden
	}

	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", relationship.TraineeID); err != nil {
		return nil, err
	}

	// Re-read under the lock; the row may have flipped while we waited.
	relationship, err = txRelationshipRepo.GetByID(ctx, relationshipID)
	if err != nil {
		return nil, err
	}
	if relationship.Status != models.RelationshipPending {
		return nil, ErrInvalidState
	}

	acceptedCount, err := txRelationshipRepo.CountAcceptedForTraineeExcluding(
		ctx,
		relationship.TraineeID,
		relationshipID,
	)
	if err != nil {
		return nil, err
	}
	if acceptedCount > 0 {
		return nil, ErrConflict
	}

	accepted, err := txRelationshipRepo.MarkAccepted(ctx, relationshipID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrInvalidState
		}
		return nil, err
	}

	if err := txRelationshipRepo.RejectOtherPending(ctx, accepted.TraineeID, accepted.ID); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	s.dispatch(ctx, accepted.TraineeID, models.NotificationRelationshipChanged,
		"Your pairing request was accepted")
	s.pushChatUpdated(accepted.TraineeID, accepted.CoachID)

	return accepted, nil
}

func (s *RelationshipService) Reject(
	ctx context.Context,
	coachID int64,
	role string,
	relationshipID int64,
) (*models.Relationship, error) {
	if role != models.RoleCoach {
		return nil, ErrForbidden
	}
	if relationshipID <= 0 {
		return nil, ErrInvalidInput
	}

	relationship, err := s.relationshipRepo.GetByID(ctx, relationshipID)
	if err != nil {
		return nil, err
	}
	if relationship.CoachID != coachID {
		return nil, ErrForbidden
	}
	if relationship.Status != models.RelationshipPending {
		return nil, ErrInvalidState
	}

	rejected, err := s.relationshipRepo.MarkRejected(ctx, relationshipID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrInvalidState
		}
		return nil, err
	}

	s.dispatch(ctx, rejected.TraineeID, models.NotificationRelationshipChanged,
		"Your pairing request was declined")

	return rejected, nil
}

func (s *RelationshipService) Unpair(
	ctx context.Context,
	actorID int64,
	relationshipID int64,
) (*models.Relationship, error) {
	if relationshipID <= 0 {
		return nil, ErrInvalidInput
	}

	relationship, err := s.relationshipRepo.GetByID(ctx, relationshipID)
	if err != nil {
		return nil, err
	}
	if relationship.TraineeID != actorID && relationship.CoachID != actorID {
		return nil, ErrForbidden
	}
	if relationship.Status != models.RelationshipAccepted {
		return nil, ErrInvalidState
	}

	ended, err := s.relationshipRepo.MarkEnded(ctx, relationshipID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrInvalidState
		}
		return nil, err
	}

	counterpartID := ended.TraineeID
	if actorID == ended.TraineeID {
		counterpartID = ended.CoachID
	}
	s.dispatch(ctx, counterpartID, models.NotificationRelationshipChanged,
		"Your pairing has ended")
	s.pushChatUpdated(ended.TraineeID, ended.CoachID)

	return ended, nil
}

func (s *RelationshipService) ListForParticipant(
	ctx context.Context,
	actorID int64,
	role string,
) ([]models.Relationship, error) {
	if role != models.RoleTrainee && role != models.RoleCoach {
		return nil, ErrForbidden
	}

	return s.relationshipRepo.ListForParticipant(ctx, actorID)
}

func (s *RelationshipService) ActivePairing(
	ctx context.Context,
	traineeID int64,
	role string,
) (*models.Relationship, error) {
	if role != models.RoleTrainee {
		return nil, ErrForbidden
	}

	return s.relationshipRepo.GetAcceptedForTrainee(ctx, traineeID)
}

func (s *RelationshipService) dispatch(
	ctx context.Context,
	userID int64,
	notificationType string,
	message string,
) {
	if s.notifier == nil {
		return
	}
	if _, err := s.notifier.Notify(ctx, userID, notificationType, message); err != nil {
		log.Printf("relationship notify user %d: %v", userID, err)
	}
}

func (s *RelationshipService) pushChatUpdated(traineeID, coachID int64) {
	if s.pusher == nil {
		return
	}
	event := map[string]any{"type": "chat_updated"}
	s.pusher.PushToUser(traineeID, event)
	s.pusher.PushToUser(coachID, event)
}
