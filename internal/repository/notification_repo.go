package repository

import (
	"context"

	"github.com/Middle-FitnessApp/diplom-middle-fitnessApp-sub000/internal/models"
)

type NotificationRepository struct {
	db DBTX
}

func NewNotificationRepository(db DBTX) *NotificationRepository {
	return &NotificationRepository{db: db}
}

func (r *NotificationRepository) Create(
	ctx context.Context,
	userID int64,
	notificationType string,
	message string,
) (*models.Notification, error) {
	query := `
		INSERT INTO notifications (user_id, type, message, is_read)
		VALUES ($1, $2, $3, FALSE)
		RETURNING id, user_id, type, message, is_read, created_at
	`

	var notification models.Notification
	err := r.db.QueryRow(ctx, query, userID, notificationType, message).Scan(
		&notification.ID,
		&notification.UserID,
		&notification.Type,
		&notification.Message,
		&notification.IsRead,
		&notification.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	return &notification, nil
}

func (r *NotificationRepository) ListByUser(
	ctx context.Context,
	userID int64,
	limit int,
	offset int,
	isRead *bool,
) ([]models.Notification, int, error) {
	totalQuery := `
		SELECT COUNT(*)
		FROM notifications
		WHERE user_id = $1 AND ($2::boolean IS NULL OR is_read = $2)
	`

	var total int
	if err := r.db.QueryRow(ctx, totalQuery, userID, isRead).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `
		SELECT id, user_id, type, message, is_read, created_at
		FROM notifications
		WHERE user_id = $1 AND ($2::boolean IS NULL OR is_read = $2)
		ORDER BY created_at DESC, id DESC
		LIMIT $3 OFFSET $4
	`

	rows, err := r.db.Query(ctx, query, userID, isRead, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	notifications := make([]models.Notification, 0)
	for rows.Next() {
		var notification models.Notification
		if err := rows.Scan(
			&notification.ID,
			&notification.UserID,
			&notification.Type,
			&notification.Message,
			&notification.IsRead,
			&notification.CreatedAt,
		); err != nil {
			return nil, 0, err
		}

		notifications = append(notifications, notification)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	return notifications, total, nil
}

// CountUnread is the authoritative unread counter; no cached value is kept.
func (r *NotificationRepository) CountUnread(ctx context.Context, userID int64) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM notifications
		WHERE user_id = $1 AND is_read = FALSE
	`

	var count int
	if err := r.db.QueryRow(ctx, query, userID).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

// MarkRead returns pgx.ErrNoRows when the notification does not exist or
// belongs to another user. Re-marking an already-read row succeeds.
func (r *NotificationRepository) MarkRead(
	ctx context.Context,
	notificationID int64,
	userID int64,
) (*models.Notification, error) {
	query := `
		UPDATE notifications
		SET is_read = TRUE
		WHERE id = $1 AND user_id = $2
		RETURNING id, user_id, type, message, is_read, created_at
	`

	var notification models.Notification
	err := r.db.QueryRow(ctx, query, notificationID, userID).Scan(
		&notification.ID,
		&notification.UserID,
		&notification.Type,
		&notification.Message,
		&notification.IsRead,
		&notification.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	return &notification, nil
}

func (r *NotificationRepository) MarkAllRead(ctx context.Context, userID int64) error {
	_, err := r.db.Exec(ctx, `
		UPDATE notifications
		SET is_read = TRUE
		WHERE user_id = $1 AND is_read = FALSE
	`, userID)
	return err
}
