package progression

import "context"

// LeaderboardSource serves ordered profile pages.
type LeaderboardSource interface {
	// Ranked returns profiles ordered by metric descending, ties in creation
	// order, read from a single consistent snapshot, together with the total
	// profile count. A limit <= 0 returns everything from offset on.
	Ranked(ctx context.Context, metric Metric, offset, limit int) ([]Profile, int, error)
}

// RankUpdate is one row of the cached rank refresh.
type RankUpdate struct {
	Key      ProfileKey
	Global   int
	Category int
}

// RankCacheWriter stores cached ranks without touching profile versions.
type RankCacheWriter interface {
	UpdateRanks(ctx context.Context, updates []RankUpdate) error
}

// RankStore is what the leaderboard needs from storage.
type RankStore interface {
	LeaderboardSource
	RankCacheWriter
}

// ProfileStore persists profile documents keyed by (profile id, user class).
type ProfileStore interface {
	// Load returns a copy of the stored profile, or ErrProfileNotFound.
	Load(ctx context.Context, key ProfileKey) (*Profile, error)

	// Save commits p if the stored version still equals p.Version, then
	// increments p.Version. A zero version inserts a new profile. A stale
	// version, or an insert racing an existing profile, fails with
	// ErrVersionConflict and stores nothing.
	Save(ctx context.Context, p *Profile) error

	// Ping reports whether the backend is reachable.
	Ping(ctx context.Context) error

	RankStore
}
