package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/odin-market/progression/internal/progression"
)

// record is one stored profile plus its insertion sequence, which breaks
// leaderboard ties in creation order.
type record struct {
	Seq     int64                `json:"seq"`
	Profile *progression.Profile `json:"profile"`
}

// MemoryStore keeps profiles in process memory. An optional persist
// callback runs after every write with the full snapshot; if it fails the
// write is rolled back.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*record
	seq     int64
	persist func(seq int64, records []record) error
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]*record)}
}

func (s *MemoryStore) Load(ctx context.Context, key progression.ProfileKey) (*progression.Profile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.records[key.String()]
	if !ok {
		return nil, fmt.Errorf("%w: %s", progression.ErrProfileNotFound, key)
	}
	return r.Profile.Clone(), nil
}

func (s *MemoryStore) Save(ctx context.Context, p *progression.Profile) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	key := p.Key()
	k := key.String()

	s.mu.Lock()
	defer s.mu.Unlock()

	cur, exists := s.records[k]
	switch {
	case p.Version == 0 && exists:
		return fmt.Errorf("%w: %s already exists", progression.ErrVersionConflict, key)
	case p.Version != 0 && !exists:
		return fmt.Errorf("%w: %s is not stored", progression.ErrVersionConflict, key)
	case exists && cur.Profile.Version != p.Version:
		return fmt.Errorf("%w: %s at version %d, have %d", progression.ErrVersionConflict, key, cur.Profile.Version, p.Version)
	}

	next := p.Clone()
	next.Version = p.Version + 1
	rec := &record{Profile: next}
	if exists {
		rec.Seq = cur.Seq
		// The rank cache is owned by the leaderboard refresh.
		next.LeaderboardRank = cur.Profile.LeaderboardRank
		next.CategoryRank = cur.Profile.CategoryRank
	} else {
		s.seq++
		rec.Seq = s.seq
	}
	s.records[k] = rec

	if err := s.flushLocked(); err != nil {
		if exists {
			s.records[k] = cur
		} else {
			delete(s.records, k)
			s.seq--
		}
		return fmt.Errorf("persisting profile %s: %w", key, err)
	}

	p.Version = next.Version
	return nil
}

func (s *MemoryStore) Ping(ctx context.Context) error {
	return ctx.Err()
}

// Ranked sorts a snapshot taken under the read lock.
func (s *MemoryStore) Ranked(ctx context.Context, metric progression.Metric, offset, limit int) ([]progression.Profile, int, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	s.mu.RLock()
	profiles := make([]progression.Profile, 0, len(s.records))
	for _, r := range s.sortedLocked() {
		profiles = append(profiles, *r.Profile.Clone())
	}
	s.mu.RUnlock()

	progression.RankProfiles(profiles, metric)
	total := len(profiles)
	if offset < 0 {
		offset = 0
	}
	if offset >= total {
		return []progression.Profile{}, total, nil
	}
	profiles = profiles[offset:]
	if limit > 0 && limit < len(profiles) {
		profiles = profiles[:limit]
	}
	return profiles, total, nil
}

func (s *MemoryStore) UpdateRanks(ctx context.Context, updates []progression.RankUpdate) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	type prev struct{ global, category int }
	old := make(map[string]prev, len(updates))
	for _, u := range updates {
		r, ok := s.records[u.Key.String()]
		if !ok {
			continue
		}
		old[u.Key.String()] = prev{r.Profile.LeaderboardRank, r.Profile.CategoryRank}
		r.Profile.LeaderboardRank = u.Global
		r.Profile.CategoryRank = u.Category
	}

	if err := s.flushLocked(); err != nil {
		for k, o := range old {
			s.records[k].Profile.LeaderboardRank = o.global
			s.records[k].Profile.CategoryRank = o.category
		}
		return fmt.Errorf("persisting ranks: %w", err)
	}
	return nil
}

// Len returns the number of stored profiles.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

func (s *MemoryStore) Close() error { return nil }

func (s *MemoryStore) flushLocked() error {
	if s.persist == nil {
		return nil
	}
	sorted := s.sortedLocked()
	snapshot := make([]record, len(sorted))
	for i, r := range sorted {
		snapshot[i] = *r
	}
	return s.persist(s.seq, snapshot)
}

func (s *MemoryStore) sortedLocked() []*record {
	out := make([]*record, 0, len(s.records))
	for _, r := range s.records {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out
}
