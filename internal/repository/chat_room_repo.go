package repository

import (
	"context"
	"database/sql"

	"github.com/Middle-FitnessApp/diplom-middle-fitnessApp-sub000/internal/models"
)

type ChatRoomRepository struct {
	db DBTX
}

func NewChatRoomRepository(db DBTX) *ChatRoomRepository {
	return &ChatRoomRepository{db: db}
}

func (r *ChatRoomRepository) CreateOrGet(
	ctx context.Context,
	traineeID int64,
	coachID int64,
) (*models.ChatRoom, error) {
	query := `
		INSERT INTO chat_rooms (trainee_id, coach_id)
		VALUES ($1, $2)
		ON CONFLICT (trainee_id, coach_id)
		DO UPDATE SET updated_at = chat_rooms.updated_at
		RETURNING id, trainee_id, coach_id, created_at, updated_at
	`

	var room models.ChatRoom
	err := r.db.QueryRow(ctx, query, traineeID, coachID).Scan(
		&room.ID,
		&room.TraineeID,
		&room.CoachID,
		&room.CreatedAt,
		&room.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	return &room, nil
}

func (r *ChatRoomRepository) GetByID(ctx context.Context, roomID int64) (*models.ChatRoom, error) {
	query := `
		SELECT id, trainee_id, coach_id, created_at, updated_at
		FROM chat_rooms
		WHERE id = $1
	`

	var room models.ChatRoom
	err := r.db.QueryRow(ctx, query, roomID).Scan(
		&room.ID,
		&room.TraineeID,
		&room.CoachID,
		&room.CreatedAt,
		&room.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	return &room, nil
}

func (r *ChatRoomRepository) GetByIDForParticipant(
	ctx context.Context,
	roomID int64,
	participantID int64,
) (*models.ChatRoom, error) {
	query := `
		SELECT id, trainee_id, coach_id, created_at, updated_at
		FROM chat_rooms
		WHERE id = $1 AND (trainee_id = $2 OR coach_id = $2)
	`

	var room models.ChatRoom
	err := r.db.QueryRow(ctx, query, roomID, participantID).Scan(
		&room.ID,
		&room.TraineeID,
		&room.CoachID,
		&room.CreatedAt,
		&room.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	return &room, nil
}

func (r *ChatRoomRepository) ListForParticipant(
	ctx context.Context,
	participantID int64,
) ([]models.ChatRoomSummary, error) {
	query := `
		SELECT
			c.id,
			c.trainee_id,
			c.coach_id,
			c.created_at,
			c.updated_at,
			lm.id,
			lm.chat_room_id,
			lm.sender_id,
			lm.content,
			lm.attachment_url,
			lm.is_read,
			lm.created_at,
			COALESCE(uc.unread_count, 0)
		FROM chat_rooms c
		LEFT JOIN LATERAL (
			SELECT id, chat_room_id, sender_id, content, attachment_url, is_read, created_at
			FROM messages
			WHERE chat_room_id = c.id
			ORDER BY created_at DESC, id DESC
			LIMIT 1
		) lm ON TRUE
		LEFT JOIN LATERAL (
			SELECT COUNT(*) AS unread_count
			FROM messages
			WHERE chat_room_id = c.id
			  AND sender_id <> $1
			  AND is_read = FALSE
		) uc ON TRUE
		WHERE c.trainee_id = $1 OR c.coach_id = $1
		ORDER BY COALESCE(lm.created_at, c.updated_at, c.created_at) DESC, c.id DESC
	`

	rows, err := r.db.Query(ctx, query, participantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	summaries := make([]models.ChatRoomSummary, 0)
	for rows.Next() {
		var summary models.ChatRoomSummary
		var messageID sql.NullInt64
		var messageRoomID sql.NullInt64
		var messageSenderID sql.NullInt64
		var messageContent sql.NullString
		var messageAttachment sql.NullString
		var messageIsRead sql.NullBool
		var messageCreatedAt sql.NullTime

		if err := rows.Scan(
			&summary.ID,
			&summary.TraineeID,
			&summary.CoachID,
			&summary.CreatedAt,
			&summary.UpdatedAt,
			&messageID,
			&messageRoomID,
			&messageSenderID,
			&messageContent,
			&messageAttachment,
			&messageIsRead,
			&messageCreatedAt,
			&summary.UnreadCount,
		); err != nil {
			return nil, err
		}

		if messageID.Valid {
			last := &models.ChatMessage{
				ID:         messageID.Int64,
				ChatRoomID: messageRoomID.Int64,
				SenderID:   messageSenderID.Int64,
				Content:    messageContent.String,
				IsRead:     messageIsRead.Bool,
				CreatedAt:  messageCreatedAt.Time,
			}
			if messageAttachment.Valid {
				attachment := messageAttachment.String
				last.AttachmentURL = &attachment
			}
			summary.LastMessage = last
		}

		summaries = append(summaries, summary)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return summaries, nil
}

func (r *ChatRoomRepository) Touch(ctx context.Context, roomID int64) error {
	_, err := r.db.Exec(ctx, `
		UPDATE chat_rooms
		SET updated_at = NOW()
		WHERE id = $1
	`, roomID)
	return err
}
