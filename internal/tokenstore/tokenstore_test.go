package tokenstore

import (
	"context"
	"errors"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRecordAndVerify(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	rec := IssuedToken{
		ID:          "inv-1",
		ServiceID:   "matrix",
		UserID:      "@alice:example.com",
		UsesAllowed: 1,
		ExpiresAt:   time.Now().Add(time.Hour),
	}
	if err := s.Record(ctx, rec, "sekrit-token"); err != nil {
		t.Fatalf("Record: %v", err)
	}

	ok, err := s.Verify(ctx, "inv-1", "sekrit-token")
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if !ok {
		t.Error("Verify rejected the issued token")
	}

	ok, err = s.Verify(ctx, "inv-1", "wrong-token")
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if ok {
		t.Error("Verify accepted a wrong token")
	}
}

func TestVerifyUnknownID(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	_, err := s.Verify(context.Background(), "ghost", "x")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Verify error = %v, want ErrNotFound", err)
	}
}

func TestVerifyExpiredToken(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	rec := IssuedToken{
		ID:        "inv-old",
		ServiceID: "matrix",
		UserID:    "@bob:example.com",
		ExpiresAt: time.Now().Add(-time.Minute),
	}
	if err := s.Record(ctx, rec, "tok"); err != nil {
		t.Fatalf("Record: %v", err)
	}

	ok, err := s.Verify(ctx, "inv-old", "tok")
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if ok {
		t.Error("Verify accepted an expired token")
	}
}

func TestListForUser(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	for i, id := range []string{"inv-a", "inv-b"} {
		rec := IssuedToken{
			ID:        id,
			ServiceID: "matrix",
			UserID:    "@carol:example.com",
			CreatedAt: time.Now().Add(time.Duration(i) * time.Minute),
			ExpiresAt: time.Now().Add(time.Hour),
		}
		if err := s.Record(ctx, rec, "tok-"+id); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	recs, err := s.ListForUser(ctx, "matrix", "@carol:example.com")
	if err != nil {
		t.Fatalf("ListForUser: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("got %d records, want 2", len(recs))
	}
	if recs[0].ID != "inv-b" {
		t.Errorf("first record = %s, want inv-b (newest first)", recs[0].ID)
	}

	other, err := s.ListForUser(ctx, "matrix", "@nobody:example.com")
	if err != nil {
		t.Fatalf("ListForUser: %v", err)
	}
	if len(other) != 0 {
		t.Errorf("got %d records for unknown user, want 0", len(other))
	}
}
