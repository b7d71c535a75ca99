// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Message
// model. Thread order is always (created_at, id).
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/cycle-assessment-backend/internal/domain"
)

// CreateMessage inserts m as given. Callers assign ID, CreatedAt and the
// parent link.
func CreateMessage(ctx context.Context, db *gorm.DB, m *domain.Message) error {
	return db.WithContext(ctx).Create(m).Error
}

// LatestMessage returns the most recent message of a conversation, or
// ErrNotFound when it has none.
func LatestMessage(ctx context.Context, db *gorm.DB, conversationID string) (*domain.Message, error) {
	var m domain.Message
	err := db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("created_at DESC, id DESC").
		First(&m).Error
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// ListMessages returns messages ordered deterministically (CreatedAt ASC, ID ASC).
func ListMessages(ctx context.Context, db *gorm.DB, conversationID string, limit int) ([]domain.Message, error) {
	var out []domain.Message
	q := db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("created_at ASC, id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&out).Error
	return out, err
}

// ListRecentMessages returns the last limit messages of a conversation in
// thread order.
func ListRecentMessages(ctx context.Context, db *gorm.DB, conversationID string, limit int) ([]domain.Message, error) {
	var out []domain.Message
	err := db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// GetMessage fetches a message by id within a conversation.
func GetMessage(ctx context.Context, db *gorm.DB, conversationID, id string) (*domain.Message, error) {
	var m domain.Message
	err := db.WithContext(ctx).
		Where("id = ? AND conversation_id = ?", id, conversationID).
		First(&m).Error
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// CountMessages returns the number of messages in a conversation.
func CountMessages(ctx context.Context, db *gorm.DB, conversationID string) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Model(&domain.Message{}).
		Where("conversation_id = ?", conversationID).
		Count(&total).Error
	return total, err
}

// DeleteMessages removes every message of a conversation and returns how
// many were removed.
func DeleteMessages(ctx context.Context, db *gorm.DB, conversationID string) (int64, error) {
	res := db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Delete(&domain.Message{})
	return res.RowsAffected, res.Error
}

// UpdateMessageContent replaces the content of message id in place and
// stamps edited_at. It returns ErrNotFound when no row matches.
func UpdateMessageContent(ctx context.Context, db *gorm.DB, conversationID, id, content string, editedAt time.Time) error {
	res := db.WithContext(ctx).
		Model(&domain.Message{}).
		Where("id = ? AND conversation_id = ?", id, conversationID).
		UpdateColumns(map[string]any{"content": content, "edited_at": editedAt})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListChildMessages returns the messages whose parent is parentID, in
// thread order. An empty role matches every role.
func ListChildMessages(ctx context.Context, db *gorm.DB, conversationID, parentID, role string) ([]domain.Message, error) {
	var out []domain.Message
	q := db.WithContext(ctx).
		Where("conversation_id = ? AND parent_message_id = ?", conversationID, parentID)
	if role != "" {
		q = q.Where("role = ?", role)
	}
	err := q.Order("created_at ASC, id ASC").Find(&out).Error
	return out, err
}
