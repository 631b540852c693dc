package repository

import (
	"context"

	"github.com/Middle-FitnessApp/diplom-middle-fitnessApp-sub000/internal/models"
)

type MessageRepository struct {
	db DBTX
}

func NewMessageRepository(db DBTX) *MessageRepository {
	return &MessageRepository{db: db}
}

func (r *MessageRepository) Create(
	ctx context.Context,
	roomID int64,
	senderID int64,
	content string,
	attachmentURL *string,
) (*models.ChatMessage, error) {
	query := `
		INSERT INTO messages (chat_room_id, sender_id, content, attachment_url, is_read)
		VALUES ($1, $2, $3, $4, FALSE)
		RETURNING id, chat_room_id, sender_id, content, attachment_url, is_read, created_at
	`

	var message models.ChatMessage
	err := r.db.QueryRow(ctx, query, roomID, senderID, content, attachmentURL).Scan(
		&message.ID,
		&message.ChatRoomID,
		&message.SenderID,
		&message.Content,
		&message.AttachmentURL,
		&message.IsRead,
		&message.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	return &message, nil
}

// ListByRoom returns one page of the room's log in ascending (created_at, id)
// order, the order clients render history in.
func (r *MessageRepository) ListByRoom(
	ctx context.Context,
	roomID int64,
	limit int,
	offset int,
) ([]models.ChatMessage, int, error) {
	totalQuery := `
		SELECT COUNT(*)
		FROM messages
		WHERE chat_room_id = $1
	`

	var total int
	if err := r.db.QueryRow(ctx, totalQuery, roomID).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `
		SELECT id, chat_room_id, sender_id, content, attachment_url, is_read, created_at
		FROM messages
		WHERE chat_room_id = $1
		ORDER BY created_at ASC, id ASC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.db.Query(ctx, query, roomID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	messages := make([]models.ChatMessage, 0)
	for rows.Next() {
		var message models.ChatMessage
		if err := rows.Scan(
			&message.ID,
			&message.ChatRoomID,
			&message.SenderID,
			&message.Content,
			&message.AttachmentURL,
			&message.IsRead,
			&message.CreatedAt,
		); err != nil {
			return nil, 0, err
		}

		messages = append(messages, message)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	return messages, total, nil
}

func (r *MessageRepository) MarkRoomRead(
	ctx context.Context,
	roomID int64,
	readerID int64,
) error {
	_, err := r.db.Exec(ctx, `
		UPDATE messages
		SET is_read = TRUE
		WHERE chat_room_id = $1
		  AND sender_id <> $2
		  AND is_read = FALSE
	`, roomID, readerID)
	return err
}

func (r *MessageRepository) MarkMessagesRead(
	ctx context.Context,
	messageIDs []int64,
	readerID int64,
) error {
	if len(messageIDs) == 0 {
		return nil
	}
	_, err := r.db.Exec(ctx, `
		UPDATE messages
		SET is_read = TRUE
		WHERE id = ANY($1)
		  AND sender_id <> $2
		  AND is_read = FALSE
	`, messageIDs, readerID)
	return err
}
