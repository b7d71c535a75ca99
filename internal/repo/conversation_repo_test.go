package repo

import (
	"context"
	"errors"
	"testing"
	"time"

	"gorm.io/datatypes"

	"github.com/tbourn/cycle-assessment-backend/internal/domain"
)

func TestCreateConversation_Error_NoTable(t *testing.T) {
	db := newRepoDB(t, false)
	if err := CreateConversation(context.Background(), db, &domain.Conversation{UserID: "u1"}); err == nil {
		t.Fatalf("expected error creating without table")
	}
}

func TestCreateAndGetConversation(t *testing.T) {
	db := newRepoDB(t, true)
	ctx := context.Background()

	c := &domain.Conversation{UserID: "u1", AssessmentPattern: sp("regular")}
	if err := CreateConversation(ctx, db, c); err != nil {
		t.Fatalf("CreateConversation: %v", err)
	}
	if c.ID == "" || c.CreatedAt.IsZero() || !c.UpdatedAt.Equal(c.CreatedAt) {
		t.Fatalf("unexpected fields: %+v", c)
	}

	got, err := GetConversation(ctx, db, c.ID, "u1")
	if err != nil || *got.AssessmentPattern != "regular" {
		t.Fatalf("GetConversation = %+v, %v", got, err)
	}
	if _, err := GetConversation(ctx, db, c.ID, "u2"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("other owner should look missing, got %v", err)
	}
	if ok, err := ConversationExists(ctx, db, c.ID); err != nil || !ok {
		t.Fatalf("ConversationExists = %v, %v", ok, err)
	}
}

func TestListConversations_ByActivity(t *testing.T) {
	db := newRepoDB(t, true)
	ctx := context.Background()
	base := time.Now().UTC().Add(-time.Hour)

	for i, id := range []string{"c1", "c2", "c3"} {
		c := &domain.Conversation{ID: id, UserID: "u1", CreatedAt: base.Add(time.Duration(i) * time.Minute)}
		if err := CreateConversation(ctx, db, c); err != nil {
			t.Fatalf("create: %v", err)
		}
	}
	if err := TouchConversation(ctx, db, "c1", time.Now().UTC()); err != nil {
		t.Fatalf("TouchConversation: %v", err)
	}

	out, err := ListConversations(ctx, db, "u1")
	if err != nil {
		t.Fatalf("ListConversations: %v", err)
	}
	if len(out) != 3 || out[0].ID != "c1" || out[1].ID != "c3" {
		t.Fatalf("unexpected order: %v", []string{out[0].ID, out[1].ID, out[2].ID})
	}
	if err := TouchConversation(ctx, db, "missing", time.Now()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("touch missing: %v", err)
	}
}

func TestUpdateConversationLinks(t *testing.T) {
	db := newRepoDB(t, true)
	ctx := context.Background()

	c := &domain.Conversation{ID: "c1", UserID: "u1", AssessmentID: sp("a1"), AssessmentPattern: sp("regular"),
		AssessmentSnapshot: datatypes.JSON(`{"pattern":"regular"}`)}
	if err := CreateConversation(ctx, db, c); err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := UpdateConversationLinks(ctx, db, "c1", "u1", sp("a2"), sp("heavy"), datatypes.JSON(`{"pattern":"heavy"}`)); err != nil {
		t.Fatalf("relink: %v", err)
	}
	got, _ := GetConversation(ctx, db, "c1", "u1")
	if *got.AssessmentID != "a2" || *got.AssessmentPattern != "heavy" || string(got.AssessmentSnapshot) != `{"pattern":"heavy"}` {
		t.Fatalf("relink not applied: %+v", got)
	}

	if err := UpdateConversationLinks(ctx, db, "c1", "u1", nil, nil, nil); err != nil {
		t.Fatalf("unlink: %v", err)
	}
	got, _ = GetConversation(ctx, db, "c1", "u1")
	if got.AssessmentID != nil || got.AssessmentPattern != nil || string(got.AssessmentSnapshot) != `{}` {
		t.Fatalf("unlink not applied: %+v", got)
	}

	if err := UpdateConversationLinks(ctx, db, "c1", "u2", nil, nil, nil); !errors.Is(err, ErrNotFound) {
		t.Fatalf("other owner: %v", err)
	}
}

func TestDeleteConversation_OwnerScoped(t *testing.T) {
	db := newRepoDB(t, true)
	ctx := context.Background()
	if err := CreateConversation(ctx, db, &domain.Conversation{ID: "c1", UserID: "u1"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if ok, err := DeleteConversation(ctx, db, "c1", "u2"); err != nil || ok {
		t.Fatalf("delete by other owner = %v, %v", ok, err)
	}
	if ok, err := DeleteConversation(ctx, db, "c1", "u1"); err != nil || !ok {
		t.Fatalf("delete by owner = %v, %v", ok, err)
	}
}
