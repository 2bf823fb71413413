package models

import (
	"time"

	"gorm.io/datatypes"
)

// StatusEvent is an outbox row recorded whenever a proposal status changes.
// Delivery (mail, websocket, anything) belongs to an external collaborator
// that drains the outbox; the core only resolves recipients and appends the
// row in the same transaction as the status record.
type StatusEvent struct {
	ID           string         `gorm:"type:char(36);primaryKey"`
	ProposalID   uint64         `gorm:"not null;index"`
	Status       StatusCode     `gorm:"size:20;not null"`
	Recipients   datatypes.JSON `gorm:"type:json"` // array of user IDs
	Payload      datatypes.JSON `gorm:"type:json"`
	CreatedAt    time.Time
	DispatchedAt *time.Time `gorm:"index"`
}

// TableName overrides the table name for StatusEvent
func (StatusEvent) TableName() string {
	return "status_events"
}
