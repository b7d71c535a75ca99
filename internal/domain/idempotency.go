package domain

import "time"

// Idempotency records the outcome of a processed chat send, keyed by
// (user_id, scope, key). A retried request with the same Idempotency-Key
// replays the stored conversation and assistant reply instead of generating
// a new turn.
type Idempotency struct {
	ID             string    `gorm:"type:char(36);primaryKey"`
	UserID         string    `gorm:"type:varchar(64);not null;uniqueIndex:ux_user_scope_key,priority:1"`
	Scope          string    `gorm:"type:varchar(64);not null;uniqueIndex:ux_user_scope_key,priority:2"`
	Key            string    `gorm:"type:varchar(128);not null;uniqueIndex:ux_user_scope_key,priority:3"`
	ConversationID string    `gorm:"type:char(36);not null"`
	MessageID      string    `gorm:"type:char(36);not null"`
	Status         int       `gorm:"not null"`
	CreatedAt      time.Time `gorm:"not null;autoCreateTime"`
	ExpiresAt      time.Time `gorm:"not null;index"`
}

// TableName implements the GORM tabler interface.
func (Idempotency) TableName() string { return "idempotency" }
