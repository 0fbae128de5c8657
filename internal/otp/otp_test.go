package otp

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"time"
)

func TestValidPhone(t *testing.T) {
	cases := map[string]bool{
		"9876543210":    true,
		"6000000000":    true,
		"5876543210":    false,
		"987654321":     false,
		"98765432100":   false,
		"+919876543210": false,
		"98765a3210":    false,
		"":              false,
	}
	for phone, want := range cases {
		if got := ValidPhone(phone); got != want {
			t.Errorf("ValidPhone(%q) = %v, want %v", phone, got, want)
		}
	}
}

func TestGenerateCodeRange(t *testing.T) {
	for i := 0; i < 500; i++ {
		code, err := GenerateCode()
		if err != nil {
			t.Fatalf("generate: %v", err)
		}
		n, err := strconv.Atoi(code)
		if err != nil {
			t.Fatalf("code %q is not numeric", code)
		}
		if len(code) != 6 || n < codeMin || n > codeMax {
			t.Fatalf("code %q out of range", code)
		}
	}
}

func TestSessionState(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	live := Session{ExpiresAt: now.Add(time.Minute)}

	if got := live.State(now); got != StatePending {
		t.Fatalf("expected pending, got %s", got)
	}
	if got := (Session{ExpiresAt: now}).State(now); got != StateExpired {
		t.Fatalf("expected expired at the expiry instant, got %s", got)
	}
	if got := (Session{ExpiresAt: now.Add(time.Minute), Verified: true}).State(now); got != StateVerified {
		t.Fatalf("expected verified, got %s", got)
	}
	if got := (Session{ExpiresAt: now.Add(time.Minute), Attempts: MaxAttempts}).State(now); got != StateExhausted {
		t.Fatalf("expected exhausted, got %s", got)
	}
	if got := (Session{ExpiresAt: now.Add(-time.Second), Verified: true, Attempts: MaxAttempts}).State(now); got != StateExpired {
		t.Fatalf("expected expiry to take precedence, got %s", got)
	}
}

func TestMemoryRepositoryDeleteExpiredUnverified(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	now := time.Now()

	stale, _ := repo.Create(ctx, Session{Phone: "9876543210", ExpiresAt: now.Add(-time.Minute)})
	used, _ := repo.Create(ctx, Session{Phone: "9876543210", ExpiresAt: now.Add(-time.Minute), Verified: true})
	live, _ := repo.Create(ctx, Session{Phone: "9876543210", ExpiresAt: now.Add(time.Minute)})
	other, _ := repo.Create(ctx, Session{Phone: "9123456789", ExpiresAt: now.Add(-time.Minute)})

	deleted, err := repo.DeleteExpiredUnverified(ctx, "9876543210", now)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if deleted != 1 {
		t.Fatalf("expected 1 deleted, got %d", deleted)
	}
	if _, err := repo.Get(ctx, stale.ID); err != ErrNotFound {
		t.Fatalf("expected stale session removed, got %v", err)
	}
	for _, id := range []int64{used.ID, live.ID, other.ID} {
		if _, err := repo.Get(ctx, id); err != nil {
			t.Fatalf("session %d should survive: %v", id, err)
		}
	}
}

func TestMemoryRepositoryDeletesSessionExpiringNow(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	now := time.Now()

	s, _ := repo.Create(ctx, Session{Phone: "9876543210", ExpiresAt: now})
	if got := s.State(now); got != StateExpired {
		t.Fatalf("expected expired at the expiry instant, got %s", got)
	}
	deleted, err := repo.DeleteExpiredUnverified(ctx, "9876543210", now)
	if err != nil || deleted != 1 {
		t.Fatalf("expected the session expiring now to be deleted, got %d (%v)", deleted, err)
	}
}

func TestMemoryRepositoryReleaseVerified(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	now := time.Now()
	s, _ := repo.Create(ctx, Session{Phone: "9876543210", ExpiresAt: now.Add(time.Minute)})

	if ok, _ := repo.MarkVerified(ctx, s.ID, now); !ok {
		t.Fatal("expected first MarkVerified to win")
	}
	if err := repo.ReleaseVerified(ctx, s.ID); err != nil {
		t.Fatalf("release: %v", err)
	}
	got, _ := repo.Get(ctx, s.ID)
	if got.State(now) != StatePending {
		t.Fatalf("expected pending after release, got %s", got.State(now))
	}
	if ok, _ := repo.MarkVerified(ctx, s.ID, now); !ok {
		t.Fatal("expected released session to verify again")
	}
	if err := repo.ReleaseVerified(ctx, s.ID+100); err != nil {
		t.Fatalf("release of unknown session: %v", err)
	}
}

func TestMemoryRepositoryAttemptsStopAtMax(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	s, _ := repo.Create(ctx, Session{Phone: "9876543210", ExpiresAt: time.Now().Add(time.Minute)})

	for i := 1; i <= MaxAttempts; i++ {
		attempts, ok, err := repo.RecordFailedAttempt(ctx, s.ID)
		if err != nil || !ok || attempts != i {
			t.Fatalf("attempt %d: attempts=%d ok=%v err=%v", i, attempts, ok, err)
		}
	}
	if _, ok, _ := repo.RecordFailedAttempt(ctx, s.ID); ok {
		t.Fatalf("expected no increment past %d", MaxAttempts)
	}
	if ok, _ := repo.MarkVerified(ctx, s.ID, time.Now()); ok {
		t.Fatalf("expected exhausted session to refuse verification")
	}
}

func TestMemoryRepositoryMarkVerifiedOnce(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	s, _ := repo.Create(ctx, Session{Phone: "9876543210", ExpiresAt: time.Now().Add(time.Minute)})

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := repo.MarkVerified(ctx, s.ID, time.Now())
			if err != nil {
				t.Errorf("mark verified: %v", err)
				return
			}
			if ok {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if wins != 1 {
		t.Fatalf("expected exactly one winner, got %d", wins)
	}
}
