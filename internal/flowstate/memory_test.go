package flowstate

import (
	"context"
	"testing"
	"time"
)

func TestSuppressionLifecycle(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	s, err := store.Suppression(ctx)
	if err != nil {
		t.Fatalf("suppression: %v", err)
	}
	if s != SuppressionNone {
		t.Fatalf("expected no suppression initially, got %q", s)
	}

	if err := store.SetSuppression(ctx, SuppressionChecking); err != nil {
		t.Fatalf("set: %v", err)
	}
	s, _ = store.Suppression(ctx)
	if s != SuppressionChecking {
		t.Fatalf("expected checking, got %q", s)
	}

	if err := store.ClearSuppression(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
	s, _ = store.Suppression(ctx)
	if s != SuppressionNone {
		t.Fatalf("expected cleared suppression, got %q", s)
	}
}

func TestVerificationLockExcludesSecondAcquirer(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	token, ok, err := store.AcquireVerification(ctx, time.Minute)
	if err != nil || !ok {
		t.Fatalf("first acquire: ok=%v err=%v", ok, err)
	}

	_, ok, err = store.AcquireVerification(ctx, time.Minute)
	if err != nil {
		t.Fatalf("second acquire: %v", err)
	}
	if ok {
		t.Fatal("expected second concurrent acquire to be rejected")
	}

	if err := store.ReleaseVerification(ctx, token); err != nil {
		t.Fatalf("release: %v", err)
	}
	_, ok, _ = store.AcquireVerification(ctx, time.Minute)
	if !ok {
		t.Fatal("expected acquire to succeed after release")
	}
}

func TestVerificationLockExpires(t *testing.T) {
	ctx := context.Background()
	now := time.Unix(1000, 0)
	store := &memoryStore{now: func() time.Time { return now }}

	if _, ok, _ := store.AcquireVerification(ctx, time.Minute); !ok {
		t.Fatal("expected initial acquire to succeed")
	}
	now = now.Add(2 * time.Minute)
	if _, ok, _ := store.AcquireVerification(ctx, time.Minute); !ok {
		t.Fatal("expected acquire to succeed after ttl expiry")
	}
}

func TestPurgeClearsEverything(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	_ = store.SetSuppression(ctx, SuppressionFirstSignIn)
	_ = store.SetBearerToken(ctx, "tok")
	_ = store.SaveResume(ctx, ResumeSnapshot{Email: "a@b.c", Step: "code_sent", CodeSentAt: time.Now()})

	if err := store.Purge(ctx); err != nil {
		t.Fatalf("purge: %v", err)
	}

	if s, _ := store.Suppression(ctx); s != SuppressionNone {
		t.Fatalf("expected purged suppression, got %q", s)
	}
	if _, ok, _ := store.BearerToken(ctx); ok {
		t.Fatal("expected purged bearer token")
	}
	if _, ok, _ := store.LoadResume(ctx); ok {
		t.Fatal("expected purged resume snapshot")
	}
}
