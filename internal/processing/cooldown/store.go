package cooldown

import (
	"context"
	"time"
)

// IPRepository is the persistence port for per-source cooldown records.
// Upsert must be keyed by source so a racing sweep loses to a newer touch.
type IPRepository interface {
	Upsert(ctx context.Context, sourceKey string, at time.Time) error
	ExistsSince(ctx context.Context, sourceKey string, since time.Time) (bool, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// Store tracks last-seen timestamps for anonymous sources and answers
// whether a source is still inside the creation cooldown window.
type Store struct {
	repo   IPRepository
	window time.Duration
	now    func() time.Time
}

func NewStore(repo IPRepository, window time.Duration) *Store {
	if window <= 0 {
		window = 30 * time.Minute
	}
	return &Store{
		repo:   repo,
		window: window,
		now:    time.Now,
	}
}

func (s *Store) Touch(ctx context.Context, sourceKey string) error {
	if sourceKey == "" {
		sourceKey = "unknown"
	}
	return s.repo.Upsert(ctx, sourceKey, s.now().UTC())
}

func (s *Store) InCooldown(ctx context.Context, sourceKey string) (bool, error) {
	if sourceKey == "" {
		sourceKey = "unknown"
	}
	since := s.now().UTC().Add(-s.window)
	return s.repo.ExistsSince(ctx, sourceKey, since)
}

// Sweep removes records that fell out of the window. Idempotent and safe to
// interleave with Touch: the upsert wins any race on a live source.
func (s *Store) Sweep(ctx context.Context) (int64, error) {
	cutoff := s.now().UTC().Add(-s.window)
	return s.repo.DeleteOlderThan(ctx, cutoff)
}
