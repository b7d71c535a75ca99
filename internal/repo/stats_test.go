package repo

import (
	"context"
	"testing"
	"time"

	"github.com/tbourn/cycle-assessment-backend/internal/domain"
)

func TestAssessmentsStats(t *testing.T) {
	db := newRepoDB(t, true)
	ctx := context.Background()

	if n, latest, err := AssessmentsStats(ctx, db, "u1"); err != nil || n != 0 || latest != nil {
		t.Fatalf("empty stats = %d, %v, %v", n, latest, err)
	}

	base := time.Now().UTC().Add(-time.Hour).Truncate(time.Second)
	for i, id := range []string{"a1", "a2"} {
		row := &domain.Assessment{ID: id, UserID: "u1", Age: sp("25"), CreatedAt: base.Add(time.Duration(i) * time.Minute)}
		if err := CreateAssessment(ctx, db, row); err != nil {
			t.Fatalf("create: %v", err)
		}
	}
	n, latest, err := AssessmentsStats(ctx, db, "u1")
	if err != nil || n != 2 || latest == nil || !latest.Equal(base.Add(time.Minute)) {
		t.Fatalf("stats = %d, %v, %v", n, latest, err)
	}

	updated := base.Add(30 * time.Minute)
	if err := UpdateAssessmentColumns(ctx, db, "a1", "u1", domain.Assessment{Age: sp("26")}, updated); err != nil {
		t.Fatalf("update: %v", err)
	}
	if _, latest, _ = AssessmentsStats(ctx, db, "u1"); latest == nil || !latest.Equal(updated) {
		t.Fatalf("latest should follow updated_at, got %v", latest)
	}
}

func TestAssessmentsStats_Error_NoTable(t *testing.T) {
	db := newRepoDB(t, false)
	if _, _, err := AssessmentsStats(context.Background(), db, "u1"); err == nil {
		t.Fatalf("expected error without table")
	}
}

func TestConversationsAndMessagesStats(t *testing.T) {
	db := newRepoDB(t, true)
	ctx := context.Background()

	if n, latest, err := ConversationsStats(ctx, db, "u1"); err != nil || n != 0 || latest != nil {
		t.Fatalf("empty conversation stats = %d, %v, %v", n, latest, err)
	}
	base := seedMessages(t, db, "m1", "m2")

	if n, latest, err := ConversationsStats(ctx, db, "u1"); err != nil || n != 1 || latest == nil {
		t.Fatalf("conversation stats = %d, %v, %v", n, latest, err)
	}

	n, latest, err := MessagesStats(ctx, db, "c1")
	if err != nil || n != 2 || latest == nil || !latest.Equal(base.Add(time.Second)) {
		t.Fatalf("message stats = %d, %v, %v", n, latest, err)
	}

	edited := time.Now().UTC()
	if err := UpdateMessageContent(ctx, db, "c1", "m1", "x", edited); err != nil {
		t.Fatalf("edit: %v", err)
	}
	if _, latest, _ = MessagesStats(ctx, db, "c1"); latest == nil || !latest.Equal(edited) {
		t.Fatalf("latest should follow edited_at, got %v want %v", latest, edited)
	}
}

func TestLaterOf(t *testing.T) {
	a := time.Unix(100, 0)
	b := time.Unix(200, 0)
	if laterOf(nil, nil) != nil || laterOf(&a, nil) != &a || laterOf(nil, &b) != &b || laterOf(&a, &b) != &b || laterOf(&b, &a) != &b {
		t.Fatalf("laterOf returned the wrong value")
	}
}
