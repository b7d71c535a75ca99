// Package services – MessageThreader
//
// This file implements MessageThreader, which appends messages to a
// conversation as a single linear thread. Inserts into one conversation are
// serialized by a keyed lock; the parent of every new message is the
// conversation's latest message at insert time, whatever the caller
// suggested. Thread order is (created_at, id) and created_at is stamped
// strictly increasing per conversation.
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/text/unicode/norm"
	"gorm.io/gorm"

	"github.com/tbourn/cycle-assessment-backend/internal/domain"
	"github.com/tbourn/cycle-assessment-backend/internal/keylock"
	"github.com/tbourn/cycle-assessment-backend/internal/repo"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// NewMessage is the input to InsertMessage.
type NewMessage struct {
	Role    string
	Content string
	// UserID is the author; required for user messages.
	UserID *string
	// ParentMessageID is advisory only. It is logged when it disagrees
	// with the resolved parent.
	ParentMessageID *string
}

// MessageThreader persists messages in thread order.
type MessageThreader struct {
	DB    *gorm.DB
	Locks keylock.Locker

	// MaxRunes caps message content; 0 disables the check.
	MaxRunes int

	// Now is the clock; nil means time.Now.
	Now func() time.Time
}

// NewMessageThreader wires a threader. A nil locker means in-process locks;
// share the locker with ConversationService so deletes and inserts exclude
// each other.
func NewMessageThreader(db *gorm.DB, locks keylock.Locker) *MessageThreader {
	if locks == nil {
		locks = keylock.NewLocal()
	}
	return &MessageThreader{DB: db, Locks: locks}
}

func (t *MessageThreader) now() time.Time {
	now := time.Now
	if t.Now != nil {
		now = t.Now
	}
	// Postgres keeps microseconds.
	return now().UTC().Truncate(time.Microsecond)
}

// ResolveParent returns the id of the conversation's latest message, or nil
// when it has none. supplied never changes the result.
func (t *MessageThreader) ResolveParent(ctx context.Context, conversationID string, supplied *string) (*string, error) {
	return t.resolveParent(ctx, t.DB, conversationID, supplied)
}

func (t *MessageThreader) resolveParent(ctx context.Context, db *gorm.DB, conversationID string, supplied *string) (*string, error) {
	latest, err := repo.LatestMessage(ctx, db, conversationID)
	if err != nil && !errors.Is(err, repo.ErrNotFound) {
		return nil, err
	}
	return parentOf(ctx, conversationID, latest, supplied), nil
}

// parentOf returns latest's id, or nil for an empty thread, logging a
// supplied parent that disagrees.
func parentOf(ctx context.Context, conversationID string, latest *domain.Message, supplied *string) *string {
	s := deref(supplied)
	if latest == nil {
		if s != "" {
			zerolog.Ctx(ctx).Debug().Str("conversation_id", conversationID).Str("supplied_parent", s).
				Msg("ignoring parent for empty conversation")
		}
		return nil
	}
	if s != "" && s != latest.ID {
		zerolog.Ctx(ctx).Debug().Str("conversation_id", conversationID).Str("supplied_parent", s).
			Str("resolved_parent", latest.ID).Msg("replacing stale parent with latest message")
	}
	id := latest.ID
	return &id
}

// InsertMessage appends m to the conversation. Under the conversation lock
// and in one transaction it checks that the conversation still exists, that
// the first message is a user message, resolves the parent, stamps a
// created_at later than the previous message and bumps the conversation's
// updated_at.
func (t *MessageThreader) InsertMessage(ctx context.Context, conversationID string, m NewMessage) (*domain.Message, error) {
	tr := otel.Tracer("services/MessageThreader")
	ctx, span := tr.Start(ctx, "InsertMessage",
		trace.WithAttributes(
			attribute.String("conversation.id", conversationID),
			attribute.String("message.role", m.Role),
		),
	)
	defer span.End()

	unlock, err := lockConversation(ctx, t.Locks, conversationID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	msg, err := t.insertLocked(ctx, conversationID, m)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("message.id", msg.ID))
	return msg, nil
}

// insertLocked is InsertMessage for a caller that already holds the
// conversation lock.
func (t *MessageThreader) insertLocked(ctx context.Context, conversationID string, m NewMessage) (*domain.Message, error) {
	content, err := t.cleanContent(m.Content)
	if err != nil {
		return nil, err
	}
	switch m.Role {
	case domain.RoleUser:
		if deref(m.UserID) == "" {
			return nil, ErrInvalidRole
		}
	case domain.RoleAssistant:
	default:
		return nil, ErrInvalidRole
	}

	var msg *domain.Message
	err = t.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ok, err := repo.ConversationExists(ctx, tx, conversationID)
		if err != nil {
			return err
		}
		if !ok {
			return ErrConversationNotFound
		}

		latest, err := repo.LatestMessage(ctx, tx, conversationID)
		if err != nil && !errors.Is(err, repo.ErrNotFound) {
			return err
		}
		if latest == nil && m.Role != domain.RoleUser {
			return ErrThreadRootNotUser
		}
		parent := parentOf(ctx, conversationID, latest, m.ParentMessageID)

		createdAt := t.now()
		if latest != nil && !createdAt.After(latest.CreatedAt) {
			createdAt = latest.CreatedAt.Add(time.Microsecond)
		}
		id, err := uuid.NewV7()
		if err != nil {
			return err
		}

		msg = &domain.Message{
			ID:              id.String(),
			ConversationID:  conversationID,
			Role:            m.Role,
			Content:         content,
			ParentMessageID: parent,
			CreatedAt:       createdAt,
		}
		if m.Role == domain.RoleUser {
			uid := deref(m.UserID)
			msg.UserID = &uid
		}
		if err := repo.CreateMessage(ctx, tx, msg); err != nil {
			return fmt.Errorf("insert message: %w", err)
		}
		return repo.TouchConversation(ctx, tx, conversationID, createdAt)
	})
	if err != nil {
		return nil, err
	}
	return msg, nil
}

// GetOrderedThread returns every message of the conversation in thread
// order.
func (t *MessageThreader) GetOrderedThread(ctx context.Context, conversationID string) ([]domain.Message, error) {
	tr := otel.Tracer("services/MessageThreader")
	ctx, span := tr.Start(ctx, "GetOrderedThread", trace.WithAttributes(attribute.String("conversation.id", conversationID)))
	defer span.End()

	return repo.ListMessages(ctx, t.DB, conversationID, 0)
}

// RecentTurns returns the last limit messages in thread order.
func (t *MessageThreader) RecentTurns(ctx context.Context, conversationID string, limit int) ([]domain.Message, error) {
	if limit <= 0 {
		return t.GetOrderedThread(ctx, conversationID)
	}
	return repo.ListRecentMessages(ctx, t.DB, conversationID, limit)
}

// EditMessage replaces the content of one of userID's own user messages in
// place and stamps edited_at; id and position are unchanged. It returns the
// edited message and the assistant replies threaded directly off it.
func (t *MessageThreader) EditMessage(ctx context.Context, conversationID, userID, messageID, content string) (*domain.Message, []domain.Message, error) {
	tr := otel.Tracer("services/MessageThreader")
	ctx, span := tr.Start(ctx, "EditMessage",
		trace.WithAttributes(
			attribute.String("conversation.id", conversationID),
			attribute.String("message.id", messageID),
		),
	)
	defer span.End()

	content, err := t.cleanContent(content)
	if err != nil {
		return nil, nil, err
	}

	unlock, err := lockConversation(ctx, t.Locks, conversationID)
	if err != nil {
		return nil, nil, err
	}
	defer unlock()

	var (
		edited  *domain.Message
		replies []domain.Message
	)
	err = t.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := repo.GetConversation(ctx, tx, conversationID, userID); err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return ErrConversationNotFound
			}
			return err
		}
		m, err := repo.GetMessage(ctx, tx, conversationID, messageID)
		if errors.Is(err, repo.ErrNotFound) {
			return ErrMessageNotFound
		}
		if err != nil {
			return err
		}
		if m.Role != domain.RoleUser || deref(m.UserID) != userID {
			return ErrMessageNotFound
		}

		if err := repo.UpdateMessageContent(ctx, tx, conversationID, messageID, content, t.now()); err != nil {
			return err
		}
		if edited, err = repo.GetMessage(ctx, tx, conversationID, messageID); err != nil {
			return err
		}
		replies, err = repo.ListChildMessages(ctx, tx, conversationID, messageID, domain.RoleAssistant)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return edited, replies, nil
}

// UpdateReply replaces the content of an assistant message in place and
// stamps edited_at.
func (t *MessageThreader) UpdateReply(ctx context.Context, conversationID, messageID, content string) (*domain.Message, error) {
	tr := otel.Tracer("services/MessageThreader")
	ctx, span := tr.Start(ctx, "UpdateReply",
		trace.WithAttributes(
			attribute.String("conversation.id", conversationID),
			attribute.String("message.id", messageID),
		),
	)
	defer span.End()

	content = strings.TrimSpace(content)
	if content == "" {
		return nil, ErrEmptyMessage
	}

	unlock, err := lockConversation(ctx, t.Locks, conversationID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	m, err := repo.GetMessage(ctx, t.DB, conversationID, messageID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrMessageNotFound
	}
	if err != nil {
		return nil, err
	}
	if m.Role != domain.RoleAssistant {
		return nil, ErrMessageNotFound
	}
	if err := repo.UpdateMessageContent(ctx, t.DB, conversationID, messageID, content, t.now()); err != nil {
		return nil, err
	}
	return repo.GetMessage(ctx, t.DB, conversationID, messageID)
}

// cleanContent trims and NFC-normalizes content and enforces MaxRunes.
func (t *MessageThreader) cleanContent(s string) (string, error) {
	s = norm.NFC.String(strings.TrimSpace(s))
	if s == "" {
		return "", ErrEmptyMessage
	}
	if t.MaxRunes > 0 && utf8.RuneCountInString(s) > t.MaxRunes {
		return "", ErrMessageTooLong
	}
	return s, nil
}
