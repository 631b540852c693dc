package models

import "time"

const (
	NotificationRelationshipChanged = "relationship_changed"
	NotificationNewMessage          = "new_message"
	NotificationNewComment          = "new_comment"
	NotificationNewPlan             = "new_plan"
)

type Notification struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	Type      string    `json:"type"`
	Message   string    `json:"message"`
	IsRead    bool      `json:"is_read"`
	CreatedAt time.Time `json:"created_at"`
}
