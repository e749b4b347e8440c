package models

import "time"

// AuditLog records who changed the alert feed. System actions use ActorID 0.
type AuditLog struct {
	ID         int       `json:"id"`
	ActorID    int       `json:"actorId"`
	Action     string    `json:"action"`
	TargetType string    `json:"targetType"`
	TargetID   int64     `json:"targetId,omitempty"`
	Metadata   string    `json:"metadata,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}
