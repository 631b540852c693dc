package models

import "time"

type ChatRoom struct {
	ID        int64     `json:"id"`
	TraineeID int64     `json:"trainee_id"`
	CoachID   int64     `json:"coach_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type ChatMessage struct {
	ID            int64     `json:"id"`
	ChatRoomID    int64     `json:"chat_room_id"`
	SenderID      int64     `json:"sender_id"`
	Content       string    `json:"content"`
	AttachmentURL *string   `json:"attachment_url,omitempty"`
	IsRead        bool      `json:"is_read"`
	CreatedAt     time.Time `json:"created_at"`
}

type ChatRoomSummary struct {
	ChatRoom
	LastMessage *ChatMessage `json:"last_message,omitempty"`
	UnreadCount int          `json:"unread_count"`
}
