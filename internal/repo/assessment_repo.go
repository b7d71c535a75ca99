// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the
// Assessment model.
//
// Rows are stored exactly as given; choosing and decoding the encoding is
// the job of package assessment. Owner-scoped functions filter on user_id so
// a row that belongs to someone else looks the same as a missing one.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/cycle-assessment-backend/internal/domain"
)

// CreateAssessment inserts row, assigning an ID and a UTC CreatedAt when
// they are empty.
func CreateAssessment(ctx context.Context, db *gorm.DB, row *domain.Assessment) error {
	if row.ID == "" {
		row.ID = uuid.NewString()
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now().UTC()
	}
	return db.WithContext(ctx).Create(row).Error
}

// GetAssessment fetches a row by id regardless of owner, or ErrNotFound.
func GetAssessment(ctx context.Context, db *gorm.DB, id string) (*domain.Assessment, error) {
	var a domain.Assessment
	if err := db.WithContext(ctx).Where("id = ?", id).First(&a).Error; err != nil {
		return nil, err
	}
	return &a, nil
}

// GetAssessmentForUser fetches a row by id and owner, or ErrNotFound.
func GetAssessmentForUser(ctx context.Context, db *gorm.DB, id, userID string) (*domain.Assessment, error) {
	var a domain.Assessment
	err := db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		First(&a).Error
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// ListAssessments returns every row owned by userID, newest first.
func ListAssessments(ctx context.Context, db *gorm.DB, userID string) ([]domain.Assessment, error) {
	var out []domain.Assessment
	err := db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC, id DESC").
		Find(&out).Error
	return out, err
}

// UpdateAssessmentColumns overwrites every data column of the row identified
// by id and userID with the values in cols, NULLs included, and stamps
// updated_at. Identity columns are never touched. It returns ErrNotFound when
// no row matches.
func UpdateAssessmentColumns(ctx context.Context, db *gorm.DB, id, userID string, cols domain.Assessment, updatedAt time.Time) error {
	res := db.WithContext(ctx).
		Model(&domain.Assessment{}).
		Where("id = ? AND user_id = ?", id, userID).
		UpdateColumns(map[string]any{
			"assessment_data":    cols.AssessmentData,
			"age":                cols.Age,
			"pattern":            cols.Pattern,
			"cycle_length":       cols.CycleLength,
			"period_duration":    cols.PeriodDuration,
			"flow_heaviness":     cols.FlowHeaviness,
			"pain_level":         cols.PainLevel,
			"physical_symptoms":  cols.PhysicalSymptoms,
			"emotional_symptoms": cols.EmotionalSymptoms,
			"other_symptoms":     cols.OtherSymptoms,
			"recommendations":    cols.Recommendations,
			"updated_at":         updatedAt,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteAssessment removes the row identified by id and userID and reports
// whether a row was removed.
func DeleteAssessment(ctx context.Context, db *gorm.DB, id, userID string) (bool, error) {
	res := db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		Delete(&domain.Assessment{})
	return res.RowsAffected > 0, res.Error
}

// AssessmentExistsForUser reports whether id exists and belongs to userID.
func AssessmentExistsForUser(ctx context.Context, db *gorm.DB, id, userID string) (bool, error) {
	var n int64
	err := db.WithContext(ctx).
		Model(&domain.Assessment{}).
		Where("id = ? AND user_id = ?", id, userID).
		Count(&n).Error
	return n > 0, err
}
