package repo

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestGetIdempotency_EmptyKey_ReturnsNotFound(t *testing.T) {
	db := newRepoDB(t, true)
	rec, err := GetIdempotency(context.Background(), db, "u1", "chat.send", "   ", time.Now().UTC())
	if rec != nil || !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected (nil, ErrNotFound), got (%v, %v)", rec, err)
	}
}

func TestCreateAndGetIdempotency(t *testing.T) {
	db := newRepoDB(t, true)
	ctx := context.Background()

	rec, err := CreateIdempotency(ctx, db, "u1", "chat.send", "k1", "c1", "m1", 200, time.Hour)
	if err != nil {
		t.Fatalf("CreateIdempotency: %v", err)
	}
	if rec.ID == "" || !rec.ExpiresAt.After(rec.CreatedAt) {
		t.Fatalf("unexpected record: %+v", rec)
	}

	got, err := GetIdempotency(ctx, db, "u1", "chat.send", "k1", time.Now().UTC())
	if err != nil || got.ConversationID != "c1" || got.MessageID != "m1" || got.Status != 200 {
		t.Fatalf("GetIdempotency = %+v, %v", got, err)
	}
	if _, err := GetIdempotency(ctx, db, "u2", "chat.send", "k1", time.Now().UTC()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("other user must not see the record: %v", err)
	}
	if _, err := GetIdempotency(ctx, db, "u1", "chat.send", "k1", time.Now().UTC().Add(2*time.Hour)); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expired record must not be returned: %v", err)
	}

	if _, err := CreateIdempotency(ctx, db, "u1", "chat.send", "k1", "c2", "m2", 200, time.Hour); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
}

func TestCreateIdempotency_ReusesExpiredKey(t *testing.T) {
	db := newRepoDB(t, true)
	ctx := context.Background()

	if _, err := CreateIdempotency(ctx, db, "u1", "chat.send", "k1", "c1", "m1", 200, time.Nanosecond); err != nil {
		t.Fatalf("first create: %v", err)
	}
	time.Sleep(5 * time.Millisecond)
	if _, err := CreateIdempotency(ctx, db, "u1", "chat.send", "k1", "c2", "m2", 200, time.Hour); err != nil {
		t.Fatalf("expired key should be reusable: %v", err)
	}
}

func TestCreateIdempotency_Error_NoTable(t *testing.T) {
	db := newRepoDB(t, false)
	if _, err := CreateIdempotency(context.Background(), db, "u1", "s", "k", "c", "m", 200, time.Hour); err == nil || errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected plain DB error, got %v", err)
	}
}
