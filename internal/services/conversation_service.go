// Package services – ConversationService
//
// This file implements ConversationService, the registry of owner-scoped
// conversations. A conversation may be anchored to one assessment; the
// pattern and a JSON snapshot of the assessment are copied onto the
// conversation when the link is made.
package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/tbourn/cycle-assessment-backend/internal/assessment"
	"github.com/tbourn/cycle-assessment-backend/internal/domain"
	"github.com/tbourn/cycle-assessment-backend/internal/keylock"
	"github.com/tbourn/cycle-assessment-backend/internal/observability"
	"github.com/tbourn/cycle-assessment-backend/internal/repo"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	// NoMessagesPreview is shown for conversations without messages.
	NoMessagesPreview = "No messages yet"

	defaultPreviewRunes = 50
	previewWorkers      = 8
)

// ConversationSummary is one entry of a user's conversation history.
type ConversationSummary struct {
	ID                string    `json:"id"`
	AssessmentID      *string   `json:"assessment_id"`
	AssessmentPattern *string   `json:"assessment_pattern"`
	Preview           string    `json:"preview"`
	MessageCount      int64     `json:"message_count"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// ConversationService manages conversation lifecycle and assessment links.
type ConversationService struct {
	DB          *gorm.DB
	Assessments *AssessmentService
	Locks       keylock.Locker

	// PreviewRunes caps list previews; 0 means 50.
	PreviewRunes int
}

// NewConversationService wires a service. A nil locker means in-process
// locks.
func NewConversationService(db *gorm.DB, assessments *AssessmentService, locks keylock.Locker) *ConversationService {
	if locks == nil {
		locks = keylock.NewLocal()
	}
	return &ConversationService{DB: db, Assessments: assessments, Locks: locks, PreviewRunes: defaultPreviewRunes}
}

// Create starts a conversation for userID. With a non-empty assessmentID
// the assessment must exist and belong to the user, otherwise
// ErrNotOwnedOrNotFound is returned and nothing is stored.
func (s *ConversationService) Create(ctx context.Context, userID string, assessmentID *string) (*domain.Conversation, error) {
	tr := otel.Tracer("services/ConversationService")
	ctx, span := tr.Start(ctx, "Create", trace.WithAttributes(attribute.String("user.id", userID)))
	defer span.End()

	c := &domain.Conversation{UserID: userID, AssessmentSnapshot: repo.EmptySnapshot()}
	if id := deref(assessmentID); id != "" {
		a, err := s.Assessments.FindForUser(ctx, id, userID)
		if err != nil {
			return nil, err
		}
		if a == nil {
			return nil, ErrNotOwnedOrNotFound
		}
		snap, err := snapshotOf(a)
		if err != nil {
			return nil, err
		}
		c.AssessmentID = &a.ID
		c.AssessmentPattern = a.Pattern
		c.AssessmentSnapshot = snap
		span.SetAttributes(attribute.String("assessment.id", a.ID))
	}

	if err := repo.CreateConversation(ctx, s.DB, c); err != nil {
		return nil, fmt.Errorf("create conversation: %w", err)
	}
	return c, nil
}

// Get returns the conversation when it exists and belongs to userID, and
// (nil, nil) otherwise.
func (s *ConversationService) Get(ctx context.Context, id, userID string) (*domain.Conversation, error) {
	c, err := repo.GetConversation(ctx, s.DB, id, userID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, nil
	}
	return c, err
}

// ListForUser returns summaries of the user's conversations, most recently
// active first. Previews and counts are loaded concurrently.
func (s *ConversationService) ListForUser(ctx context.Context, userID string) ([]ConversationSummary, error) {
	tr := otel.Tracer("services/ConversationService")
	ctx, span := tr.Start(ctx, "ListForUser", trace.WithAttributes(attribute.String("user.id", userID)))
	defer span.End()

	convs, err := repo.ListConversations(ctx, s.DB, userID)
	if err != nil {
		return nil, err
	}
	out := make([]ConversationSummary, len(convs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(previewWorkers)
	for i, c := range convs {
		out[i] = ConversationSummary{
			ID:                c.ID,
			AssessmentID:      c.AssessmentID,
			AssessmentPattern: c.AssessmentPattern,
			Preview:           NoMessagesPreview,
			CreatedAt:         c.CreatedAt,
			UpdatedAt:         c.UpdatedAt,
		}
		g.Go(func() error {
			n, err := repo.CountMessages(gctx, s.DB, c.ID)
			if err != nil || n == 0 {
				return err
			}
			last, err := repo.LatestMessage(gctx, s.DB, c.ID)
			if err != nil {
				return err
			}
			out[i].MessageCount = n
			out[i].Preview = preview(last.Content, s.previewRunes())
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("load conversation previews: %w", err)
	}
	span.SetAttributes(attribute.Int("conversation.count", len(out)))
	return out, nil
}

// Delete removes a conversation and all its messages. It reports false,
// without error, when the conversation is missing or owned by someone else.
// Messages are removed first, under the conversation lock and in one
// transaction, so no insert can slip in between.
func (s *ConversationService) Delete(ctx context.Context, id, userID string) (bool, error) {
	tr := otel.Tracer("services/ConversationService")
	ctx, span := tr.Start(ctx, "Delete",
		trace.WithAttributes(
			attribute.String("conversation.id", id),
			attribute.String("user.id", userID),
		),
	)
	defer span.End()

	if c, err := s.Get(ctx, id, userID); err != nil || c == nil {
		return false, err
	}

	unlock, err := lockConversation(ctx, s.Locks, id)
	if err != nil {
		return false, err
	}
	defer unlock()

	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		n, err := repo.DeleteMessages(ctx, tx, id)
		if err != nil {
			return fmt.Errorf("delete messages: %w", err)
		}
		span.SetAttributes(attribute.Int64("messages.deleted", n))

		ok, err := repo.DeleteConversation(ctx, tx, id, userID)
		if err != nil {
			return fmt.Errorf("delete conversation: %w", err)
		}
		if !ok {
			return fmt.Errorf("delete conversation %s: %w", id, ErrConversationNotFound)
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	return true, nil
}

// UpdateAssessmentLinks relinks a conversation to another assessment of the
// same user, or unlinks it when assessmentID is nil or empty. pattern
// overrides the assessment's pattern. It reports false when the conversation
// is missing or not owned; an unusable assessment yields
// ErrNotOwnedOrNotFound.
func (s *ConversationService) UpdateAssessmentLinks(ctx context.Context, id, userID string, assessmentID, pattern *string) (bool, error) {
	tr := otel.Tracer("services/ConversationService")
	ctx, span := tr.Start(ctx, "UpdateAssessmentLinks",
		trace.WithAttributes(
			attribute.String("conversation.id", id),
			attribute.String("user.id", userID),
		),
	)
	defer span.End()

	if c, err := s.Get(ctx, id, userID); err != nil || c == nil {
		return false, err
	}

	var (
		linkID *string
		pat    = trimmed(pattern)
		snap   = repo.EmptySnapshot()
	)
	if aid := deref(assessmentID); aid != "" {
		a, err := s.Assessments.FindForUser(ctx, aid, userID)
		if err != nil {
			return false, err
		}
		if a == nil {
			return false, ErrNotOwnedOrNotFound
		}
		if snap, err = snapshotOf(a); err != nil {
			return false, err
		}
		linkID = &a.ID
		if pat == nil {
			pat = a.Pattern
		}
	}

	err := repo.UpdateConversationLinks(ctx, s.DB, id, userID, linkID, pat, snap)
	if errors.Is(err, repo.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("update conversation links: %w", err)
	}
	return true, nil
}

func (s *ConversationService) previewRunes() int {
	if s.PreviewRunes > 0 {
		return s.PreviewRunes
	}
	return defaultPreviewRunes
}

// lockConversation takes the per-conversation lock and records the wait.
func lockConversation(ctx context.Context, locks keylock.Locker, id string) (func(), error) {
	start := time.Now()
	unlock, err := locks.Lock(ctx, "conversation:"+id)
	observability.ObserveLockWait(time.Since(start))
	if err != nil {
		return nil, fmt.Errorf("lock conversation %s: %w", id, err)
	}
	return unlock, nil
}

func snapshotOf(a *assessment.Assessment) (datatypes.JSON, error) {
	b, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("snapshot assessment %s: %w", a.ID, err)
	}
	return datatypes.JSON(b), nil
}

// preview collapses whitespace and truncates s to max runes plus "…".
func preview(s string, max int) string {
	s = strings.Join(strings.Fields(s), " ")
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	return string([]rune(s)[:max]) + "…"
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(*s)
}

func trimmed(s *string) *string {
	v := deref(s)
	if v == "" {
		return nil
	}
	return &v
}
