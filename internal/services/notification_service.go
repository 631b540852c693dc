package services

import (
	"context"

	"github.com/Middle-FitnessApp/diplom-middle-fitnessApp-sub000/internal/models"
	"github.com/Middle-FitnessApp/diplom-middle-fitnessApp-sub000/internal/repository"
)

type NotificationService struct {
	notificationRepo *repository.NotificationRepository
	pusher           Pusher
}

func NewNotificationService(
	notificationRepo *repository.NotificationRepository,
	pusher Pusher,
) *NotificationService {
	return &NotificationService{
		notificationRepo: notificationRepo,
		pusher:           pusher,
	}
}

// Notify persists first, then attempts push delivery. Persistence is
// authoritative: a failed or dropped push is only logged, the stored row is
// what the client resynchronizes from.
func (s *NotificationService) Notify(
	ctx context.Context,
	userID int64,
	notificationType string,
	message string,
) (*models.Notification, error) {
	if userID <= 0 || message == "" {
		return nil, ErrInvalidInput
	}
	switch notificationType {
	case models.NotificationRelationshipChanged,
		models.NotificationNewMessage,
		models.NotificationNewComment,
		models.NotificationNewPlan:
	default:
		return nil, ErrInvalidInput
	}

	notification, err := s.notificationRepo.Create(ctx, userID, notificationType, message)
	if err != nil {
		return nil, err
	}

	if s.pusher != nil {
		s.pusher.PushToUser(userID, map[string]any{
			"type":         "notification",
			"notification": notification,
		})
	}

	return notification, nil
}

func (s *NotificationService) List(
	ctx context.Context,
	userID int64,
	page int,
	limit int,
	isRead *bool,
) ([]models.Notification, int, int, error) {
	if page <= 0 || limit <= 0 {
		return nil, 0, 0, ErrInvalidInput
	}

	notifications, total, err := s.notificationRepo.ListByUser(
		ctx,
		userID,
		limit,
		(page-1)*limit,
		isRead,
	)
	if err != nil {
		return nil, 0, 0, err
	}

	unread, err := s.notificationRepo.CountUnread(ctx, userID)
	if err != nil {
		return nil, 0, 0, err
	}

	return notifications, unread, total, nil
}

func (s *NotificationService) MarkRead(
	ctx context.Context,
	userID int64,
	notificationID int64,
) (*models.Notification, error) {
	if notificationID <= 0 {
		return nil, ErrInvalidInput
	}

	return s.notificationRepo.MarkRead(ctx, notificationID, userID)
}

func (s *NotificationService) MarkAllRead(ctx context.Context, userID int64) error {
	return s.notificationRepo.MarkAllRead(ctx, userID)
}

// UnreadCount is always a live query; pushed counts are hints the client
// reconciles against this on reconnect.
func (s *NotificationService) UnreadCount(ctx context.Context, userID int64) (int, error) {
	return s.notificationRepo.CountUnread(ctx, userID)
}
