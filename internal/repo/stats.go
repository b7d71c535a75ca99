// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides small aggregate queries used for
// conditional responses (ETag generation) in the HTTP layer.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/cycle-assessment-backend/internal/domain"
)

// AssessmentsStats returns the number of assessments owned by userID and
// the latest change time among them (the greater of created_at and
// updated_at). When the user has none, count is 0 and latest is nil.
func AssessmentsStats(ctx context.Context, db *gorm.DB, userID string) (count int64, latest *time.Time, err error) {
	base := func() *gorm.DB {
		return db.WithContext(ctx).Model(&domain.Assessment{}).Where("user_id = ?", userID)
	}
	if err = base().Count(&count).Error; err != nil {
		return 0, nil, err
	}
	if count == 0 {
		return 0, nil, nil
	}

	created, err := latestColumn(base(), "created_at")
	if err != nil {
		return 0, nil, err
	}
	updated, err := latestColumn(base().Where("updated_at IS NOT NULL"), "updated_at")
	if err != nil {
		return 0, nil, err
	}
	return count, laterOf(created, updated), nil
}

// ConversationsStats returns the number of conversations owned by userID
// and the greatest updated_at among them.
func ConversationsStats(ctx context.Context, db *gorm.DB, userID string) (count int64, latest *time.Time, err error) {
	q := db.WithContext(ctx).Model(&domain.Conversation{}).Where("user_id = ?", userID)
	if err = q.Count(&count).Error; err != nil {
		return 0, nil, err
	}
	if count == 0 {
		return 0, nil, nil
	}
	latest, err = latestColumn(db.WithContext(ctx).Model(&domain.Conversation{}).Where("user_id = ?", userID), "updated_at")
	return count, latest, err
}

// MessagesStats returns the number of messages in a conversation and the
// latest creation or edit time among them.
func MessagesStats(ctx context.Context, db *gorm.DB, conversationID string) (count int64, latest *time.Time, err error) {
	base := func() *gorm.DB {
		return db.WithContext(ctx).Model(&domain.Message{}).Where("conversation_id = ?", conversationID)
	}
	if err = base().Count(&count).Error; err != nil {
		return 0, nil, err
	}
	if count == 0 {
		return 0, nil, nil
	}
	created, err := latestColumn(base(), "created_at")
	if err != nil {
		return 0, nil, err
	}
	edited, err := latestColumn(base().Where("edited_at IS NOT NULL"), "edited_at")
	if err != nil {
		return 0, nil, err
	}
	return count, laterOf(created, edited), nil
}

// latestColumn reads the greatest value of a time column by ordering rather
// than MAX(), which SQLite returns as TEXT. It returns nil when q matches no
// rows.
func latestColumn(q *gorm.DB, column string) (*time.Time, error) {
	var rows []time.Time
	if err := q.Order(column+" DESC").Limit(1).Pluck(column, &rows).Error; err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

func laterOf(a, b *time.Time) *time.Time {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	case b.After(*a):
		return b
	default:
		return a
	}
}
