// Package services – AssessmentService
//
// This file implements AssessmentService, which stores questionnaire results
// in either encoding and always hands back the canonical shape. Payload
// validation and encoding live in package assessment; this layer owns ids,
// timestamps, ownership and the pattern defaults.
package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/tbourn/cycle-assessment-backend/internal/assessment"
	"github.com/tbourn/cycle-assessment-backend/internal/domain"
	"github.com/tbourn/cycle-assessment-backend/internal/observability"
	"github.com/tbourn/cycle-assessment-backend/internal/repo"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Fields a create payload must carry.
var requiredOnCreate = []string{"age", "cycle_length"}

// AssessmentService persists and reads cycle assessments.
type AssessmentService struct {
	DB          *gorm.DB
	Transformer *assessment.Transformer

	// Now is the clock; nil means time.Now.
	Now func() time.Time
}

// NewAssessmentService wires a service with the given fallback logger.
func NewAssessmentService(db *gorm.DB, log zerolog.Logger) *AssessmentService {
	return &AssessmentService{DB: db, Transformer: assessment.NewTransformer(log)}
}

func (s *AssessmentService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

// Create validates payload, fills pattern and recommendations when the
// payload omits them, and stores it in the encoding the payload arrived in.
// Validation problems are returned as *ValidationError.
func (s *AssessmentService) Create(ctx context.Context, userID string, payload map[string]any) (*assessment.Assessment, error) {
	tr := otel.Tracer("services/AssessmentService")
	ctx, span := tr.Start(ctx, "Create", trace.WithAttributes(attribute.String("user.id", userID)))
	defer span.End()

	in, err := assessment.Parse(payload)
	if err != nil {
		return nil, asValidation(err)
	}
	if err := in.Require(requiredOnCreate...); err != nil {
		return nil, asValidation(err)
	}
	span.SetAttributes(attribute.String("assessment.format", string(in.Format)))

	if in, err = assessment.ApplyDefaults(in); err != nil {
		return nil, fmt.Errorf("apply assessment defaults: %w", err)
	}

	row := s.Transformer.ToStorage(in)
	row.UserID = userID
	row.CreatedAt = s.now()
	if err := repo.CreateAssessment(ctx, s.DB, &row); err != nil {
		return nil, fmt.Errorf("create assessment: %w", err)
	}
	observability.CountAssessment(string(in.Format))

	out, err := s.Transformer.ToAPI(ctx, &row)
	if err != nil {
		return nil, fmt.Errorf("read back assessment %s: %w", row.ID, err)
	}
	return &out, nil
}

// FindByID returns the assessment with id regardless of owner. Missing and
// malformed rows both yield (nil, nil).
func (s *AssessmentService) FindByID(ctx context.Context, id string) (*assessment.Assessment, error) {
	tr := otel.Tracer("services/AssessmentService")
	ctx, span := tr.Start(ctx, "FindByID", trace.WithAttributes(attribute.String("assessment.id", id)))
	defer span.End()

	row, err := repo.GetAssessment(ctx, s.DB, id)
	return s.readOne(ctx, row, err)
}

// FindForUser is FindByID restricted to assessments owned by userID.
func (s *AssessmentService) FindForUser(ctx context.Context, id, userID string) (*assessment.Assessment, error) {
	tr := otel.Tracer("services/AssessmentService")
	ctx, span := tr.Start(ctx, "FindForUser",
		trace.WithAttributes(
			attribute.String("assessment.id", id),
			attribute.String("user.id", userID),
		),
	)
	defer span.End()

	row, err := repo.GetAssessmentForUser(ctx, s.DB, id, userID)
	return s.readOne(ctx, row, err)
}

func (s *AssessmentService) readOne(ctx context.Context, row *domain.Assessment, err error) (*assessment.Assessment, error) {
	if errors.Is(err, repo.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	out, err := s.Transformer.ToAPI(ctx, row)
	if errors.Is(err, assessment.ErrMalformedRecord) {
		observability.CountAssessment(string(assessment.FormatUnknown))
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// ListByUser returns the user's assessments newest first. Malformed rows
// are logged and left out.
func (s *AssessmentService) ListByUser(ctx context.Context, userID string) ([]assessment.Assessment, error) {
	tr := otel.Tracer("services/AssessmentService")
	ctx, span := tr.Start(ctx, "ListByUser", trace.WithAttributes(attribute.String("user.id", userID)))
	defer span.End()

	rows, err := repo.ListAssessments(ctx, s.DB, userID)
	if err != nil {
		return nil, err
	}
	out := make([]assessment.Assessment, 0, len(rows))
	for i := range rows {
		a, err := s.Transformer.ToAPI(ctx, &rows[i])
		if err != nil {
			zerolog.Ctx(ctx).Warn().Err(err).Str("assessment_id", rows[i].ID).Msg("dropping malformed assessment")
			observability.CountAssessment(string(assessment.FormatUnknown))
			continue
		}
		out = append(out, a)
	}
	span.SetAttributes(attribute.Int("assessment.count", len(out)))
	return out, nil
}

// Update merges payload onto the stored assessment and saves the result in
// the current encoding. Fields the payload does not mention keep their
// value; explicit nulls clear them. The owner never changes.
func (s *AssessmentService) Update(ctx context.Context, id, userID string, payload map[string]any) (*assessment.Assessment, error) {
	tr := otel.Tracer("services/AssessmentService")
	ctx, span := tr.Start(ctx, "Update",
		trace.WithAttributes(
			attribute.String("assessment.id", id),
			attribute.String("user.id", userID),
		),
	)
	defer span.End()

	row, err := repo.GetAssessment(ctx, s.DB, id)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrAssessmentNotFound
	}
	if err != nil {
		return nil, err
	}
	if row.UserID != userID {
		return nil, ErrAssessmentForbidden
	}

	in, err := assessment.Parse(payload)
	if err != nil {
		return nil, asValidation(err)
	}

	// A malformed stored row is replaced wholesale by the payload.
	var base assessment.Fields
	if cur, err := s.Transformer.ToAPI(ctx, row); err == nil {
		base = cur.Fields
	} else if !errors.Is(err, assessment.ErrMalformedRecord) {
		return nil, err
	}
	merged := assessment.Merge(base, in)
	check := assessment.Input{Fields: merged}
	if err := check.Require(requiredOnCreate...); err != nil {
		return nil, asValidation(err)
	}

	cols := assessment.Columns(merged)
	if err := repo.UpdateAssessmentColumns(ctx, s.DB, id, userID, cols, s.now()); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrAssessmentNotFound
		}
		return nil, fmt.Errorf("update assessment %s: %w", id, err)
	}

	updated, err := repo.GetAssessmentForUser(ctx, s.DB, id, userID)
	if err != nil {
		return nil, fmt.Errorf("read back assessment %s: %w", id, err)
	}
	out, err := s.Transformer.ToAPI(ctx, updated)
	if err != nil {
		return nil, err
	}
	observability.CountAssessment(string(assessment.FormatCurrent))
	return &out, nil
}

// Delete removes an assessment owned by userID. It reports false, without
// error, when there was nothing of the user's to delete. Conversations that
// were linked keep their snapshot.
func (s *AssessmentService) Delete(ctx context.Context, id, userID string) (bool, error) {
	tr := otel.Tracer("services/AssessmentService")
	ctx, span := tr.Start(ctx, "Delete",
		trace.WithAttributes(
			attribute.String("assessment.id", id),
			attribute.String("user.id", userID),
		),
	)
	defer span.End()

	return repo.DeleteAssessment(ctx, s.DB, id, userID)
}

// ValidateOwnership reports whether id exists and belongs to userID.
func (s *AssessmentService) ValidateOwnership(ctx context.Context, id, userID string) (bool, error) {
	return repo.AssessmentExistsForUser(ctx, s.DB, id, userID)
}
