// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the
// Conversation model.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions. They follow the "thin repository"
// approach: no business logic, only persistence and query composition.
//
// Error semantics:
//   - When a conversation is not found (or is owned by someone else),
//     functions return gorm.ErrRecordNotFound, exported as ErrNotFound.
//   - On DB errors the raw gorm error is propagated.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/tbourn/cycle-assessment-backend/internal/domain"
)

// EmptySnapshot is the snapshot stored for a conversation without an
// assessment.
func EmptySnapshot() datatypes.JSON { return datatypes.JSON(`{}`) }

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// CreateConversation inserts c, assigning an ID and UTC timestamps when they
// are empty.
func CreateConversation(ctx context.Context, db *gorm.DB, c *domain.Conversation) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = c.CreatedAt
	}
	if len(c.AssessmentSnapshot) == 0 {
		c.AssessmentSnapshot = EmptySnapshot()
	}
	return db.WithContext(ctx).Create(c).Error
}

// GetConversation fetches a conversation by id and owner, or ErrNotFound.
func GetConversation(ctx context.Context, db *gorm.DB, id, userID string) (*domain.Conversation, error) {
	var c domain.Conversation
	err := db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		First(&c).Error
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// ConversationExists reports whether a conversation with id exists,
// regardless of owner.
func ConversationExists(ctx context.Context, db *gorm.DB, id string) (bool, error) {
	var n int64
	err := db.WithContext(ctx).
		Model(&domain.Conversation{}).
		Where("id = ?", id).
		Count(&n).Error
	return n > 0, err
}

// ListConversations returns all conversations owned by userID, most recently
// active first.
func ListConversations(ctx context.Context, db *gorm.DB, userID string) ([]domain.Conversation, error) {
	var out []domain.Conversation
	err := db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("updated_at DESC, id DESC").
		Find(&out).Error
	return out, err
}

// UpdateConversationLinks replaces the assessment link, pattern and snapshot
// of a conversation owned by userID. Nil values clear the columns and an
// empty snapshot is stored as "{}". It returns ErrNotFound when no row
// matches.
func UpdateConversationLinks(ctx context.Context, db *gorm.DB, id, userID string, assessmentID, pattern *string, snapshot datatypes.JSON) error {
	if len(snapshot) == 0 {
		snapshot = EmptySnapshot()
	}
	res := db.WithContext(ctx).
		Model(&domain.Conversation{}).
		Where("id = ? AND user_id = ?", id, userID).
		UpdateColumns(map[string]any{
			"assessment_id":       assessmentID,
			"assessment_pattern":  pattern,
			"assessment_snapshot": snapshot,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// TouchConversation sets updated_at of conversation id to at.
func TouchConversation(ctx context.Context, db *gorm.DB, id string, at time.Time) error {
	res := db.WithContext(ctx).
		Model(&domain.Conversation{}).
		Where("id = ?", id).
		UpdateColumn("updated_at", at)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteConversation removes the conversation identified by id and userID.
// Messages are not touched; callers delete them first. It reports whether a
// row was removed.
func DeleteConversation(ctx context.Context, db *gorm.DB, id, userID string) (bool, error) {
	res := db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		Delete(&domain.Conversation{})
	return res.RowsAffected > 0, res.Error
}
