package services

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Middle-FitnessApp/diplom-middle-fitnessApp-sub000/internal/models"
	"github.com/Middle-FitnessApp/diplom-middle-fitnessApp-sub000/internal/repository"
)

func newIntegrationChatService(pool *pgxpool.Pool) *ChatService {
	notifier := NewNotificationService(repository.NewNotificationRepository(pool), nil)
	return NewChatService(
		pool,
		repository.NewChatRoomRepository(pool),
		repository.NewMessageRepository(pool),
		repository.NewRelationshipRepository(pool),
		notifier,
		nil,
	)
}

func pairAccounts(t *testing.T, ctx context.Context, pool *pgxpool.Pool) (traineeID, coachID, relationshipID int64) {
	t.Helper()

	service := newIntegrationRelationshipService(pool)
	traineeID = createTestAccount(t, ctx, pool, models.RoleTrainee)
	coachID = createTestAccount(t, ctx, pool, models.RoleCoach)

	invite, err := service.Request(ctx, traineeID, models.RoleTrainee, coachID)
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	if _, err := service.Accept(ctx, coachID, models.RoleCoach, invite.ID); err != nil {
		t.Fatalf("Accept: %v", err)
	}
	return traineeID, coachID, invite.ID
}

func TestChatSendRequiresAcceptedPairing(t *testing.T) {
	ctx := context.Background()
	pool := integrationTestPool(t)
	service := newIntegrationChatService(pool)

	traineeID := createTestAccount(t, ctx, pool, models.RoleTrainee)
	coachID := createTestAccount(t, ctx, pool, models.RoleCoach)
	t.Cleanup(func() { cleanupTestUsers(t, ctx, pool, traineeID, coachID) })

	_, err := service.Send(ctx, traineeID, models.RoleTrainee, SendMessageInput{
		RecipientID: coachID,
		Content:     "hello",
	})
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden without pairing, got %v", err)
	}
}

func TestChatSendCreatesRoomAndListsAscending(t *testing.T) {
	ctx := context.Background()
	pool := integrationTestPool(t)
	service := newIntegrationChatService(pool)

	traineeID, coachID, _ := pairAccounts(t, ctx, pool)
	t.Cleanup(func() { cleanupTestUsers(t, ctx, pool, traineeID, coachID) })

	// First message addresses the recipient directly, the room does not
	// exist yet.
	first, err := service.Send(ctx, traineeID, models.RoleTrainee, SendMessageInput{
		RecipientID:   coachID,
		Content:       "how was the workout?",
		CorrelationID: "client-msg-1",
	})
	if err != nil {
		t.Fatalf("Send first: %v", err)
	}
	if first.Room == nil || first.Room.ID <= 0 {
		t.Fatalf("expected a lazily created room, got %+v", first.Room)
	}
	if first.CorrelationID != "client-msg-1" {
		t.Fatalf("expected correlation id echoed, got %q", first.CorrelationID)
	}
	if first.RecipientID != coachID {
		t.Fatalf("expected recipient %d, got %d", coachID, first.RecipientID)
	}

	// Reply targets the now-existing room by id.
	second, err := service.Send(ctx, coachID, models.RoleCoach, SendMessageInput{
		ChatRoomID: first.Room.ID,
		Content:    "pretty rough, honestly",
	})
	if err != nil {
		t.Fatalf("Send reply: %v", err)
	}
	if second.Room.ID != first.Room.ID {
		t.Fatalf("expected reply to reuse room %d, got %d", first.Room.ID, second.Room.ID)
	}
	if second.RecipientID != traineeID {
		t.Fatalf("expected recipient %d, got %d", traineeID, second.RecipientID)
	}

	messages, total, err := service.ListMessages(ctx, traineeID, models.RoleTrainee, first.Room.ID, 1, 10)
	if err != nil {
		t.Fatalf("ListMessages: %v", err)
	}
	if total != 2 || len(messages) != 2 {
		t.Fatalf("expected 2 messages, got len=%d total=%d", len(messages), total)
	}
	if messages[0].ID != first.Message.ID || messages[1].ID != second.Message.ID {
		t.Fatalf("expected ascending order [%d %d], got [%d %d]",
			first.Message.ID, second.Message.ID, messages[0].ID, messages[1].ID)
	}
	// Reading the page marks the counterpart's messages read.
	if !messages[1].IsRead {
		t.Fatalf("expected coach message marked read after trainee listed it")
	}
}

func TestChatMessagePaginationIsStableOnEqualTimestamps(t *testing.T) {
	ctx := context.Background()
	pool := integrationTestPool(t)
	service := newIntegrationChatService(pool)

	traineeID, coachID, _ := pairAccounts(t, ctx, pool)
	t.Cleanup(func() { cleanupTestUsers(t, ctx, pool, traineeID, coachID) })

	first, err := service.Send(ctx, traineeID, models.RoleTrainee, SendMessageInput{
		RecipientID: coachID,
		Content:     "one",
	})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	roomID := first.Room.ID

	// Force identical created_at so ordering falls back to the id tiebreak.
	var secondID int64
	if err := pool.QueryRow(ctx, `
		INSERT INTO messages (chat_room_id, sender_id, content, created_at)
		VALUES ($1, $2, $3, (SELECT created_at FROM messages WHERE id = $4))
		RETURNING id
	`, roomID, traineeID, "two", first.Message.ID).Scan(&secondID); err != nil {
		t.Fatalf("insert tie message: %v", err)
	}

	pageOne, total, err := service.ListMessages(ctx, coachID, models.RoleCoach, roomID, 1, 1)
	if err != nil {
		t.Fatalf("ListMessages page 1: %v", err)
	}
	pageTwo, _, err := service.ListMessages(ctx, coachID, models.RoleCoach, roomID, 2, 1)
	if err != nil {
		t.Fatalf("ListMessages page 2: %v", err)
	}
	if total != 2 || len(pageOne) != 1 || len(pageTwo) != 1 {
		t.Fatalf("expected one message per page over 2, got %d/%d of %d", len(pageOne), len(pageTwo), total)
	}
	if pageOne[0].ID != first.Message.ID || pageTwo[0].ID != secondID {
		t.Fatalf("expected id tiebreak order [%d %d], got [%d %d]",
			first.Message.ID, secondID, pageOne[0].ID, pageTwo[0].ID)
	}
}

func TestChatSendAfterUnpairForbidden(t *testing.T) {
	ctx := context.Background()
	pool := integrationTestPool(t)
	chatService := newIntegrationChatService(pool)
	relationshipService := newIntegrationRelationshipService(pool)

	traineeID, coachID, relationshipID := pairAccounts(t, ctx, pool)
	t.Cleanup(func() { cleanupTestUsers(t, ctx, pool, traineeID, coachID) })

	delivery, err := chatService.Send(ctx, traineeID, models.RoleTrainee, SendMessageInput{
		RecipientID: coachID,
		Content:     "still there?",
	})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}

	if _, err := relationshipService.Unpair(ctx, coachID, relationshipID); err != nil {
		t.Fatalf("Unpair: %v", err)
	}

	_, err = chatService.Send(ctx, traineeID, models.RoleTrainee, SendMessageInput{
		ChatRoomID: delivery.Room.ID,
		Content:    "hello?",
	})
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden after unpair, got %v", err)
	}

	// History stays readable for both participants.
	messages, total, err := chatService.ListMessages(ctx, coachID, models.RoleCoach, delivery.Room.ID, 1, 10)
	if err != nil {
		t.Fatalf("ListMessages after unpair: %v", err)
	}
	if total != 1 || len(messages) != 1 {
		t.Fatalf("expected history preserved, got len=%d total=%d", len(messages), total)
	}
}

func TestChatUnreadCountAndMarkRead(t *testing.T) {
	ctx := context.Background()
	pool := integrationTestPool(t)
	service := newIntegrationChatService(pool)

	traineeID, coachID, _ := pairAccounts(t, ctx, pool)
	t.Cleanup(func() { cleanupTestUsers(t, ctx, pool, traineeID, coachID) })

	for _, content := range []string{"one", "two", "three"} {
		if _, err := service.Send(ctx, coachID, models.RoleCoach, SendMessageInput{
			RecipientID: traineeID,
			Content:     content,
		}); err != nil {
			t.Fatalf("Send %q: %v", content, err)
		}
	}

	rooms, err := service.ListRooms(ctx, traineeID, models.RoleTrainee)
	if err != nil {
		t.Fatalf("ListRooms: %v", err)
	}
	if len(rooms) != 1 {
		t.Fatalf("expected one room, got %d", len(rooms))
	}
	if rooms[0].UnreadCount != 3 {
		t.Fatalf("expected 3 unread, got %d", rooms[0].UnreadCount)
	}
	if rooms[0].LastMessage == nil || rooms[0].LastMessage.Content != "three" {
		t.Fatalf("expected last message preview, got %+v", rooms[0].LastMessage)
	}

	if err := service.MarkRead(ctx, traineeID, models.RoleTrainee, rooms[0].ID); err != nil {
		t.Fatalf("MarkRead: %v", err)
	}
	// Idempotent on a second call.
	if err := service.MarkRead(ctx, traineeID, models.RoleTrainee, rooms[0].ID); err != nil {
		t.Fatalf("MarkRead twice: %v", err)
	}

	rooms, err = service.ListRooms(ctx, traineeID, models.RoleTrainee)
	if err != nil {
		t.Fatalf("ListRooms after read: %v", err)
	}
	if rooms[0].UnreadCount != 0 {
		t.Fatalf("expected 0 unread after mark read, got %d", rooms[0].UnreadCount)
	}

	// The sender's own view never counted those messages as unread.
	coachRooms, err := service.ListRooms(ctx, coachID, models.RoleCoach)
	if err != nil {
		t.Fatalf("ListRooms coach: %v", err)
	}
	if coachRooms[0].UnreadCount != 0 {
		t.Fatalf("expected sender unread 0, got %d", coachRooms[0].UnreadCount)
	}
}
