package cooldown

import (
	"context"
	"sync"
	"testing"
	"time"
)

type memIPRepo struct {
	mu   sync.Mutex
	seen map[string]time.Time
}

func newMemIPRepo() *memIPRepo {
	return &memIPRepo{seen: make(map[string]time.Time)}
}

func (r *memIPRepo) Upsert(_ context.Context, sourceKey string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen[sourceKey] = at
	return nil
}

func (r *memIPRepo) ExistsSince(_ context.Context, sourceKey string, since time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	at, ok := r.seen[sourceKey]
	return ok && !at.Before(since), nil
}

func (r *memIPRepo) DeleteOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var removed int64
	for key, at := range r.seen {
		if at.Before(cutoff) {
			delete(r.seen, key)
			removed++
		}
	}
	return removed, nil
}

func newTestStore(repo IPRepository, window time.Duration, now *time.Time) *Store {
	store := NewStore(repo, window)
	store.now = func() time.Time { return *now }
	return store
}

func TestStore_TouchStartsCooldown(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := newTestStore(newMemIPRepo(), 30*time.Minute, &now)
	ctx := context.Background()

	inCooldown, err := store.InCooldown(ctx, "10.0.0.1")
	if err != nil {
		t.Fatalf("InCooldown: %v", err)
	}
	if inCooldown {
		t.Fatal("untouched source reported in cooldown")
	}

	if err := store.Touch(ctx, "10.0.0.1"); err != nil {
		t.Fatalf("Touch: %v", err)
	}

	inCooldown, err = store.InCooldown(ctx, "10.0.0.1")
	if err != nil {
		t.Fatalf("InCooldown: %v", err)
	}
	if !inCooldown {
		t.Error("touched source not in cooldown")
	}
}

func TestStore_CooldownExpires(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := newTestStore(newMemIPRepo(), 30*time.Minute, &now)
	ctx := context.Background()

	if err := store.Touch(ctx, "10.0.0.1"); err != nil {
		t.Fatalf("Touch: %v", err)
	}

	now = now.Add(31 * time.Minute)

	inCooldown, err := store.InCooldown(ctx, "10.0.0.1")
	if err != nil {
		t.Fatalf("InCooldown: %v", err)
	}
	if inCooldown {
		t.Error("source still in cooldown after the window elapsed")
	}
}

func TestStore_TouchRefreshesWindow(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := newTestStore(newMemIPRepo(), 30*time.Minute, &now)
	ctx := context.Background()

	if err := store.Touch(ctx, "10.0.0.1"); err != nil {
		t.Fatalf("Touch: %v", err)
	}

	now = now.Add(20 * time.Minute)
	if err := store.Touch(ctx, "10.0.0.1"); err != nil {
		t.Fatalf("Touch: %v", err)
	}

	// 25 minutes after the second touch, 45 after the first.
	now = now.Add(25 * time.Minute)

	inCooldown, err := store.InCooldown(ctx, "10.0.0.1")
	if err != nil {
		t.Fatalf("InCooldown: %v", err)
	}
	if !inCooldown {
		t.Error("second touch did not restart the window")
	}
}

func TestStore_SweepRemovesOnlyStale(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	repo := newMemIPRepo()
	store := newTestStore(repo, 30*time.Minute, &now)
	ctx := context.Background()

	if err := store.Touch(ctx, "stale"); err != nil {
		t.Fatalf("Touch: %v", err)
	}
	now = now.Add(40 * time.Minute)
	if err := store.Touch(ctx, "fresh"); err != nil {
		t.Fatalf("Touch: %v", err)
	}

	removed, err := store.Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}

	if in, _ := store.InCooldown(ctx, "fresh"); !in {
		t.Error("sweep removed a live source")
	}
	if _, ok := repo.seen["stale"]; ok {
		t.Error("stale source survived the sweep")
	}
}

func TestStore_EmptySourceKeyFallsBack(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	repo := newMemIPRepo()
	store := newTestStore(repo, 30*time.Minute, &now)
	ctx := context.Background()

	if err := store.Touch(ctx, ""); err != nil {
		t.Fatalf("Touch: %v", err)
	}
	if in, _ := store.InCooldown(ctx, ""); !in {
		t.Error("empty keys must share the fallback bucket")
	}
}

func TestSweeper_StartStop(t *testing.T) {
	now := time.Now().UTC()
	store := newTestStore(newMemIPRepo(), 30*time.Minute, &now)

	sweeper := NewSweeper(store, 10*time.Millisecond)
	sweeper.Start()
	time.Sleep(50 * time.Millisecond)

	done := make(chan struct{})
	go func() {
		sweeper.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop did not return")
	}
}
