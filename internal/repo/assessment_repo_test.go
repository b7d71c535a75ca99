package repo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tbourn/cycle-assessment-backend/internal/domain"
)

func sp(s string) *string { return &s }

func TestCreateAssessment_Error_NoTable(t *testing.T) {
	db := newRepoDB(t, false)
	if err := CreateAssessment(context.Background(), db, &domain.Assessment{UserID: "u1"}); err == nil {
		t.Fatalf("expected error creating without table")
	}
}

func TestCreateAndGetAssessment(t *testing.T) {
	db := newRepoDB(t, true)
	ctx := context.Background()

	row := &domain.Assessment{UserID: "u1", Age: sp("25"), PhysicalSymptoms: sp(`["cramps"]`)}
	if err := CreateAssessment(ctx, db, row); err != nil {
		t.Fatalf("CreateAssessment: %v", err)
	}
	if row.ID == "" || row.CreatedAt.IsZero() {
		t.Fatalf("id and created_at should be assigned: %+v", row)
	}

	got, err := GetAssessment(ctx, db, row.ID)
	if err != nil {
		t.Fatalf("GetAssessment: %v", err)
	}
	if got.UserID != "u1" || *got.Age != "25" || got.UpdatedAt != nil {
		t.Fatalf("unexpected row: %+v", got)
	}

	if _, err := GetAssessmentForUser(ctx, db, row.ID, "u2"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("other owner should look missing, got %v", err)
	}
	if _, err := GetAssessment(ctx, db, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListAssessments_NewestFirstAndFiltered(t *testing.T) {
	db := newRepoDB(t, true)
	ctx := context.Background()
	base := time.Now().UTC().Add(-time.Hour)

	for i, id := range []string{"a1", "a2", "a3"} {
		row := &domain.Assessment{ID: id, UserID: "u1", Age: sp("25"), CreatedAt: base.Add(time.Duration(i) * time.Minute)}
		if err := CreateAssessment(ctx, db, row); err != nil {
			t.Fatalf("create %s: %v", id, err)
		}
	}
	if err := CreateAssessment(ctx, db, &domain.Assessment{ID: "x", UserID: "u2", Age: sp("30")}); err != nil {
		t.Fatalf("create other: %v", err)
	}

	out, err := ListAssessments(ctx, db, "u1")
	if err != nil {
		t.Fatalf("ListAssessments: %v", err)
	}
	if len(out) != 3 || out[0].ID != "a3" || out[2].ID != "a1" {
		t.Fatalf("unexpected order: %+v", out)
	}
}

func TestUpdateAssessmentColumns_WritesNullsAndStamps(t *testing.T) {
	db := newRepoDB(t, true)
	ctx := context.Background()

	row := &domain.Assessment{ID: "a1", UserID: "u1", AssessmentData: sp(`{"age":"25"}`), Age: sp("25"), PainLevel: sp("mild")}
	if err := CreateAssessment(ctx, db, row); err != nil {
		t.Fatalf("create: %v", err)
	}

	at := time.Now().UTC()
	cols := domain.Assessment{Age: sp("26"), CycleLength: sp("28")}
	if err := UpdateAssessmentColumns(ctx, db, "a1", "u1", cols, at); err != nil {
		t.Fatalf("UpdateAssessmentColumns: %v", err)
	}
	got, _ := GetAssessment(ctx, db, "a1")
	if got.AssessmentData != nil || got.PainLevel != nil {
		t.Fatalf("nil columns should be cleared: %+v", got)
	}
	if *got.Age != "26" || *got.CycleLength != "28" || got.UpdatedAt == nil || got.UserID != "u1" {
		t.Fatalf("unexpected row after update: %+v", got)
	}

	if err := UpdateAssessmentColumns(ctx, db, "a1", "u2", cols, at); !errors.Is(err, ErrNotFound) {
		t.Fatalf("other owner update should be ErrNotFound, got %v", err)
	}
}

func TestDeleteAssessment_AndExists(t *testing.T) {
	db := newRepoDB(t, true)
	ctx := context.Background()
	if err := CreateAssessment(ctx, db, &domain.Assessment{ID: "a1", UserID: "u1", Age: sp("25")}); err != nil {
		t.Fatalf("create: %v", err)
	}

	if ok, err := AssessmentExistsForUser(ctx, db, "a1", "u2"); err != nil || ok {
		t.Fatalf("exists for other owner = %v, %v", ok, err)
	}
	if ok, err := DeleteAssessment(ctx, db, "a1", "u2"); err != nil || ok {
		t.Fatalf("delete by other owner = %v, %v", ok, err)
	}
	if ok, err := AssessmentExistsForUser(ctx, db, "a1", "u1"); err != nil || !ok {
		t.Fatalf("exists for owner = %v, %v", ok, err)
	}
	if ok, err := DeleteAssessment(ctx, db, "a1", "u1"); err != nil || !ok {
		t.Fatalf("delete by owner = %v, %v", ok, err)
	}
	if ok, _ := DeleteAssessment(ctx, db, "a1", "u1"); ok {
		t.Fatalf("second delete should report false")
	}
}
