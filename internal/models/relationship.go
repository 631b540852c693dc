package models

import "time"

const (
	RelationshipPending  = "pending"
	RelationshipAccepted = "accepted"
	RelationshipRejected = "rejected"
	RelationshipEnded    = "ended"
)

type Relationship struct {
	ID         int64      `json:"id"`
	TraineeID  int64      `json:"trainee_id"`
	CoachID    int64      `json:"coach_id"`
	Status     string     `json:"status"`
	CreatedAt  time.Time  `json:"created_at"`
	AcceptedAt *time.Time `json:"accepted_at,omitempty"`
	EndedAt    *time.Time `json:"ended_at,omitempty"`
}
