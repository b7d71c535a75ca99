// Package handlers exposes the REST API for assessments and assessment-anchored
// chat. Handlers are transport-thin: they bind input, read the caller from
// the Identity middleware, call a service and translate the result. The
// services are consumed through the narrow interfaces below.
package handlers

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/cycle-assessment-backend/internal/assessment"
	"github.com/tbourn/cycle-assessment-backend/internal/domain"
	"github.com/tbourn/cycle-assessment-backend/internal/services"
)

// AssessmentService is the assessment store as seen by the API.
type AssessmentService interface {
	Create(ctx context.Context, userID string, payload map[string]any) (*assessment.Assessment, error)
	FindForUser(ctx context.Context, id, userID string) (*assessment.Assessment, error)
	ListByUser(ctx context.Context, userID string) ([]assessment.Assessment, error)
	Update(ctx context.Context, id, userID string, payload map[string]any) (*assessment.Assessment, error)
	Delete(ctx context.Context, id, userID string) (bool, error)
}

// ConversationService manages the caller's conversations.
type ConversationService interface {
	Get(ctx context.Context, id, userID string) (*domain.Conversation, error)
	ListForUser(ctx context.Context, userID string) ([]services.ConversationSummary, error)
	Delete(ctx context.Context, id, userID string) (bool, error)
	UpdateAssessmentLinks(ctx context.Context, id, userID string, assessmentID, pattern *string) (bool, error)
}

// MessageReader reads a conversation's thread.
type MessageReader interface {
	GetOrderedThread(ctx context.Context, conversationID string) ([]domain.Message, error)
	RecentTurns(ctx context.Context, conversationID string, limit int) ([]domain.Message, error)
}

// ChatService runs the send and edit workflows.
type ChatService interface {
	Send(ctx context.Context, req services.SendRequest) (*services.SendResult, error)
	EditAndRegenerate(ctx context.Context, userID, conversationID, messageID, content string) (*services.EditResult, error)
}

// Deps wires Handlers.
type Deps struct {
	Assessments   AssessmentService
	Conversations ConversationService
	Messages      MessageReader
	Chat          ChatService

	// DB backs list ETags and idempotent chat sends; nil disables both.
	DB *gorm.DB
	// IdempotencyTTL is how long a chat send can be replayed; 0 means 24h.
	IdempotencyTTL time.Duration
}

// Handlers groups the HTTP endpoints.
type Handlers struct {
	assessments   AssessmentService
	conversations ConversationService
	messages      MessageReader
	chat          ChatService
	db            *gorm.DB
	idemTTL       time.Duration
}

const defaultIdempotencyTTL = 24 * time.Hour

// New constructs Handlers from d.
func New(d Deps) *Handlers {
	ttl := d.IdempotencyTTL
	if ttl <= 0 {
		ttl = defaultIdempotencyTTL
	}
	return &Handlers{
		assessments:   d.Assessments,
		conversations: d.Conversations,
		messages:      d.Messages,
		chat:          d.Chat,
		db:            d.DB,
		idemTTL:       ttl,
	}
}
