package services

import (
	"context"
	"errors"
	"log"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Middle-FitnessApp/diplom-middle-fitnessApp-sub000/internal/models"
	"github.com/Middle-FitnessApp/diplom-middle-fitnessApp-sub000/internal/repository"
)

type ChatService struct {
	db               *pgxpool.Pool
	chatRoomRepo     *repository.ChatRoomRepository
	messageRepo      *repository.MessageRepository
	relationshipRepo *repository.RelationshipRepository
	notifier         Notifier
	pusher           Pusher
}

type SendMessageInput struct {
	ChatRoomID    int64
	RecipientID   int64
	Content       string
	AttachmentURL *string
	CorrelationID string
}

type ChatDelivery struct {
	Room          *models.ChatRoom
	Message       *models.ChatMessage
	RecipientID   int64
	CorrelationID string
}

func NewChatService(
	db *pgxpool.Pool,
	chatRoomRepo *repository.ChatRoomRepository,
	messageRepo *repository.MessageRepository,
	relationshipRepo *repository.RelationshipRepository,
	notifier Notifier,
	pusher Pusher,
) *ChatService {
	return &ChatService{
		db:               db,
		chatRoomRepo:     chatRoomRepo,
		messageRepo:      messageRepo,
		relationshipRepo: relationshipRepo,
		notifier:         notifier,
		pusher:           pusher,
	}
}

func (s *ChatService) ListRooms(
	ctx context.Context,
	actorID int64,
	role string,
) ([]models.ChatRoomSummary, error) {
	if role != models.RoleTrainee && role != models.RoleCoach {
		return nil, ErrForbidden
	}

	return s.chatRoomRepo.ListForParticipant(ctx, actorID)
}

// RoomForParticipant is the membership check the gateway runs before honoring
// a join request.
func (s *ChatService) RoomForParticipant(
	ctx context.Context,
	roomID int64,
	actorID int64,
) (*models.ChatRoom, error) {
	if roomID <= 0 {
		return nil, ErrInvalidInput
	}
	return s.chatRoomRepo.GetByIDForParticipant(ctx, roomID, actorID)
}

// Send appends a message for the sender's accepted pairing, lazily creating
// the room on first use. The store never deduplicates: a retried submit
// creates a second row, and callers reconcile through the echoed
// correlation id instead.
func (s *ChatService) Send(
	ctx context.Context,
	senderID int64,
	role string,
	input SendMessageInput,
) (*ChatDelivery, error) {
	if role != models.RoleTrainee && role != models.RoleCoach {
		return nil, ErrForbidden
	}

	content := strings.TrimSpace(input.Content)
	if content == "" && input.AttachmentURL == nil {
		return nil, ErrInvalidInput
	}
	if input.ChatRoomID <= 0 && input.RecipientID <= 0 {
		return nil, ErrInvalidInput
	}

	room, recipientID, err := s.resolveRoom(ctx, senderID, role, input)
	if err != nil {
		return nil, err
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	txMessageRepo := repository.NewMessageRepository(tx)
	txChatRoomRepo := repository.NewChatRoomRepository(tx)

	message, err := txMessageRepo.Create(ctx, room.ID, senderID, content, input.AttachmentURL)
	if err != nil {
		return nil, err
	}

	if err := txChatRoomRepo.Touch(ctx, room.ID); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	delivery := &ChatDelivery{
		Room:          room,
		Message:       message,
		RecipientID:   recipientID,
		CorrelationID: input.CorrelationID,
	}
	s.fanOut(ctx, delivery)

	return delivery, nil
}

func (s *ChatService) resolveRoom(
	ctx context.Context,
	senderID int64,
	role string,
	input SendMessageInput,
) (*models.ChatRoom, int64, error) {
	if input.ChatRoomID > 0 {
		room, err := s.chatRoomRepo.GetByIDForParticipant(ctx, input.ChatRoomID, senderID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, 0, ErrForbidden
			}
			return nil, 0, err
		}
		if _, err := s.relationshipRepo.GetAcceptedBetween(ctx, room.TraineeID, room.CoachID); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, 0, ErrForbidden
			}
			return nil, 0, err
		}

		recipientID := room.TraineeID
		if senderID == room.TraineeID {
			recipientID = room.CoachID
		}
		return room, recipientID, nil
	}

	if input.RecipientID == senderID {
		return nil, 0, ErrInvalidInput
	}

	traineeID, coachID := senderID, input.RecipientID
	if role == models.RoleCoach {
		traineeID, coachID = input.RecipientID, senderID
	}

	if _, err := s.relationshipRepo.GetAcceptedBetween(ctx, traineeID, coachID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, 0, ErrForbidden
		}
		return nil, 0, err
	}

	room, err := s.chatRoomRepo.CreateOrGet(ctx, traineeID, coachID)
	if err != nil {
		return nil, 0, err
	}
	return room, input.RecipientID, nil
}

func (s *ChatService) ListMessages(
	ctx context.Context,
	actorID int64,
	role string,
	roomID int64,
	page int,
	limit int,
) ([]models.ChatMessage, int, error) {
	if role != models.RoleTrainee && role != models.RoleCoach {
		return nil, 0, ErrForbidden
	}
	if roomID <= 0 || page <= 0 || limit <= 0 {
		return nil, 0, ErrInvalidInput
	}

	_, err := s.chatRoomRepo.GetByIDForParticipant(ctx, roomID, actorID)
	if err != nil {
		return nil, 0, err
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, 0, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	txMessageRepo := repository.NewMessageRepository(tx)

	messages, total, err := txMessageRepo.ListByRoom(
		ctx,
		roomID,
		limit,
		(page-1)*limit,
	)
	if err != nil {
		return nil, 0, err
	}

	messageIDs := make([]int64, 0, len(messages))
	for _, message := range messages {
		messageIDs = append(messageIDs, message.ID)
	}

	if err := txMessageRepo.MarkMessagesRead(ctx, messageIDs, actorID); err != nil {
		return nil, 0, err
	}

	for i := range messages {
		if messages[i].SenderID != actorID {
			messages[i].IsRead = true
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, 0, err
	}

	return messages, total, nil
}

func (s *ChatService) MarkRead(
	ctx context.Context,
	actorID int64,
	role string,
	roomID int64,
) error {
	if role != models.RoleTrainee && role != models.RoleCoach {
		return ErrForbidden
	}
	if roomID <= 0 {
		return ErrInvalidInput
	}

	if _, err := s.chatRoomRepo.GetByIDForParticipant(ctx, roomID, actorID); err != nil {
		return err
	}

	return s.messageRepo.MarkRoomRead(ctx, roomID, actorID)
}

func (s *ChatService) fanOut(ctx context.Context, delivery *ChatDelivery) {
	if s.pusher != nil {
		event := map[string]any{
			"type":    "new_message",
			"message": delivery.Message,
		}
		if delivery.CorrelationID != "" {
			event["correlation_id"] = delivery.CorrelationID
		}
		s.pusher.PushToRoom(delivery.Room.ID, event)
	}

	if s.notifier != nil {
		_, err := s.notifier.Notify(ctx, delivery.RecipientID,
			models.NotificationNewMessage, "You have a new message")
		if err != nil {
			log.Printf("chat notify user %d: %v", delivery.RecipientID, err)
		}
	}
}
