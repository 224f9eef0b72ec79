package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/odin-market/progression/internal/config"
	"github.com/odin-market/progression/internal/progression"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testNow     = time.Date(2026, 3, 11, 14, 30, 0, 0, time.UTC)
	testCatalog = progression.DefaultCatalog()
)

type factory func(t *testing.T) Backend

func backends() map[string]factory {
	return map[string]factory{
		"memory": func(t *testing.T) Backend { return NewMemoryStore() },
		"file": func(t *testing.T) Backend {
			s, err := NewFileStore(t.TempDir())
			require.NoError(t, err)
			return s
		},
		"sqlite": func(t *testing.T) Backend {
			s, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "test.db"))
			require.NoError(t, err)
			t.Cleanup(func() { s.Close() })
			return s
		},
	}
}

func newProfile(id string, class progression.UserClass, xp, sales uint64, revenue float64) *progression.Profile {
	p := testCatalog.NewProfile(progression.ProfileKey{ID: id, Class: class}, testNow)
	p.XP.Total = xp
	p.Statistics.TotalSales = sales
	p.Statistics.TotalRevenue = revenue
	return p
}

func ids(profiles []progression.Profile) []string {
	out := make([]string, len(profiles))
	for i := range profiles {
		out[i] = profiles[i].ProfileID
	}
	return out
}

func TestStore_LoadMissing(t *testing.T) {
	for name, open := range backends() {
		t.Run(name, func(t *testing.T) {
			s := open(t)
			_, err := s.Load(context.Background(), progression.ProfileKey{ID: "ghost", Class: progression.ClassVendor})
			assert.ErrorIs(t, err, progression.ErrProfileNotFound)
		})
	}
}

func TestStore_InsertAndUpdate(t *testing.T) {
	for name, open := range backends() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := open(t)

			p := newProfile("v1", progression.ClassVendor, 60, 1, 1500)
			require.NoError(t, s.Save(ctx, p))
			assert.Equal(t, int64(1), p.Version)

			got, err := s.Load(ctx, p.Key())
			require.NoError(t, err)
			assert.Equal(t, int64(1), got.Version)
			assert.Equal(t, uint64(60), got.XP.Total)
			assert.Equal(t, 1500.0, got.Statistics.TotalRevenue)

			got.XP.Total = 120
			require.NoError(t, s.Save(ctx, got))
			assert.Equal(t, int64(2), got.Version)

			again, err := s.Load(ctx, p.Key())
			require.NoError(t, err)
			assert.Equal(t, uint64(120), again.XP.Total)
			assert.Equal(t, int64(2), again.Version)
		})
	}
}

func TestStore_Conflicts(t *testing.T) {
	for name, open := range backends() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := open(t)

			require.NoError(t, s.Save(ctx, newProfile("v1", progression.ClassVendor, 10, 0, 0)))

			// A second insert of the same key.
			dup := newProfile("v1", progression.ClassVendor, 999, 0, 0)
			assert.ErrorIs(t, s.Save(ctx, dup), progression.ErrVersionConflict)
			assert.Equal(t, int64(0), dup.Version)

			// Two writers from the same version: the second loses.
			a, err := s.Load(ctx, dup.Key())
			require.NoError(t, err)
			b, err := s.Load(ctx, dup.Key())
			require.NoError(t, err)
			a.XP.Total = 20
			b.XP.Total = 30
			require.NoError(t, s.Save(ctx, a))
			assert.ErrorIs(t, s.Save(ctx, b), progression.ErrVersionConflict)

			got, err := s.Load(ctx, dup.Key())
			require.NoError(t, err)
			assert.Equal(t, uint64(20), got.XP.Total)
			assert.Equal(t, int64(2), got.Version)

			// An update for a profile that was never stored.
			missing := newProfile("v2", progression.ClassVendor, 0, 0, 0)
			missing.Version = 3
			assert.ErrorIs(t, s.Save(ctx, missing), progression.ErrVersionConflict)
		})
	}
}

func TestStore_ClassesAreSeparate(t *testing.T) {
	for name, open := range backends() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := open(t)

			require.NoError(t, s.Save(ctx, newProfile("u1", progression.ClassVendor, 10, 0, 0)))
			require.NoError(t, s.Save(ctx, newProfile("u1", progression.ClassCustomer, 20, 0, 0)))

			v, err := s.Load(ctx, progression.ProfileKey{ID: "u1", Class: progression.ClassVendor})
			require.NoError(t, err)
			c, err := s.Load(ctx, progression.ProfileKey{ID: "u1", Class: progression.ClassCustomer})
			require.NoError(t, err)
			assert.Equal(t, uint64(10), v.XP.Total)
			assert.Equal(t, uint64(20), c.XP.Total)
		})
	}
}

func TestStore_ConcurrentInsertOneWins(t *testing.T) {
	for name, open := range backends() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := open(t)

			const writers = 8
			var (
				wg   sync.WaitGroup
				mu   sync.Mutex
				wins int
			)
			for i := 0; i < writers; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					if err := s.Save(ctx, newProfile("race", progression.ClassVendor, 1, 0, 0)); err == nil {
						mu.Lock()
						wins++
						mu.Unlock()
					} else {
						assert.ErrorIs(t, err, progression.ErrVersionConflict)
					}
				}()
			}
			wg.Wait()
			assert.Equal(t, 1, wins)
		})
	}
}

func TestStore_Ranked(t *testing.T) {
	for name, open := range backends() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := open(t)

			for _, p := range []*progression.Profile{
				newProfile("A", progression.ClassVendor, 100, 9, 50),
				newProfile("B", progression.ClassVendor, 300, 1, 900),
				newProfile("C", progression.ClassCustomer, 300, 5, 10),
				newProfile("D", progression.ClassVendor, 50, 5, 0),
			} {
				require.NoError(t, s.Save(ctx, p))
			}

			all, total, err := s.Ranked(ctx, progression.MetricXP, 0, 0)
			require.NoError(t, err)
			assert.Equal(t, 4, total)
			assert.Equal(t, []string{"B", "C", "A", "D"}, ids(all))

			page, total, err := s.Ranked(ctx, progression.MetricXP, 1, 2)
			require.NoError(t, err)
			assert.Equal(t, 4, total)
			assert.Equal(t, []string{"C", "A"}, ids(page))

			tail, _, err := s.Ranked(ctx, progression.MetricXP, 3, 0)
			require.NoError(t, err)
			assert.Equal(t, []string{"D"}, ids(tail))

			past, total, err := s.Ranked(ctx, progression.MetricXP, 10, 5)
			require.NoError(t, err)
			assert.Equal(t, 4, total)
			assert.Empty(t, past)

			sales, _, err := s.Ranked(ctx, progression.MetricSales, 0, 0)
			require.NoError(t, err)
			assert.Equal(t, []string{"A", "C", "D", "B"}, ids(sales))

			revenue, _, err := s.Ranked(ctx, progression.MetricRevenue, 0, 1)
			require.NoError(t, err)
			assert.Equal(t, []string{"B"}, ids(revenue))
		})
	}
}

func TestStore_RankCache(t *testing.T) {
	for name, open := range backends() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := open(t)

			p := newProfile("v1", progression.ClassVendor, 10, 0, 0)
			require.NoError(t, s.Save(ctx, p))

			// A writer loads before the refresh and commits after it.
			stale, err := s.Load(ctx, p.Key())
			require.NoError(t, err)

			require.NoError(t, s.UpdateRanks(ctx, []progression.RankUpdate{
				{Key: p.Key(), Global: 4, Category: 2},
				{Key: progression.ProfileKey{ID: "nobody", Class: progression.ClassVendor}, Global: 1, Category: 1},
			}))

			ranked, err := s.Load(ctx, p.Key())
			require.NoError(t, err)
			assert.Equal(t, 4, ranked.LeaderboardRank)
			assert.Equal(t, 2, ranked.CategoryRank)
			assert.Equal(t, int64(1), ranked.Version, "rank refresh must not bump the version")

			stale.XP.Total = 40
			require.NoError(t, s.Save(ctx, stale))

			after, err := s.Load(ctx, p.Key())
			require.NoError(t, err)
			assert.Equal(t, uint64(40), after.XP.Total)
			assert.Equal(t, 4, after.LeaderboardRank)
			assert.Equal(t, 2, after.CategoryRank)
		})
	}
}

func TestStore_Ping(t *testing.T) {
	for name, open := range backends() {
		t.Run(name, func(t *testing.T) {
			assert.NoError(t, open(t).Ping(context.Background()))
		})
	}
}

func TestStore_WithEngine(t *testing.T) {
	for name, open := range backends() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			engine := progression.NewEngine(open(t), testCatalog,
				progression.WithClock(func() time.Time { return testNow }))

			key := progression.ProfileKey{ID: "seller", Class: progression.ClassVendor}
			for i := 0; i < 3; i++ {
				_, err := engine.ProcessEvent(ctx, progression.Event{
					ProfileID: key.ID,
					Action:    "product_added",
				})
				require.NoError(t, err)
			}

			p, _, err := engine.GetProfile(ctx, key)
			require.NoError(t, err)
			assert.Equal(t, int64(3), p.Version)
			assert.Equal(t, uint64(15), p.XP.Total)
		})
	}
}

func TestFileStore_Reload(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	s, err := NewFileStore(dir)
	require.NoError(t, err)
	require.NoError(t, s.Save(ctx, newProfile("A", progression.ClassVendor, 10, 0, 0)))
	require.NoError(t, s.Save(ctx, newProfile("B", progression.ClassVendor, 10, 0, 0)))
	require.NoError(t, s.UpdateRanks(ctx, []progression.RankUpdate{
		{Key: progression.ProfileKey{ID: "B", Class: progression.ClassVendor}, Global: 1, Category: 1},
	}))
	assert.FileExists(t, filepath.Join(dir, profilesFileName))

	reopened, err := NewFileStore(dir)
	require.NoError(t, err)
	assert.Equal(t, 2, reopened.Len())

	b, err := reopened.Load(ctx, progression.ProfileKey{ID: "B", Class: progression.ClassVendor})
	require.NoError(t, err)
	assert.Equal(t, int64(1), b.Version)
	assert.Equal(t, 1, b.LeaderboardRank)

	// Insertion order survives the reload and keeps breaking ties.
	all, _, err := reopened.Ranked(ctx, progression.MetricXP, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, ids(all))

	require.NoError(t, reopened.Save(ctx, newProfile("C", progression.ClassVendor, 10, 0, 0)))
	all, _, err = reopened.Ranked(ctx, progression.MetricXP, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B", "C"}, ids(all))
}

func TestFileStore_RollsBackOnWriteFailure(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "data")

	s, err := NewFileStore(dir)
	require.NoError(t, err)
	require.NoError(t, s.Save(ctx, newProfile("A", progression.ClassVendor, 10, 0, 0)))

	// Replace the data dir with a plain file so the next write fails.
	require.NoError(t, os.RemoveAll(dir))
	require.NoError(t, os.WriteFile(dir, []byte("x"), 0o600))

	p := newProfile("B", progression.ClassVendor, 10, 0, 0)
	assert.Error(t, s.Save(ctx, p))
	assert.Equal(t, int64(0), p.Version)
	assert.Equal(t, 1, s.Len())

	a, err := s.Load(ctx, progression.ProfileKey{ID: "A", Class: progression.ClassVendor})
	require.NoError(t, err)
	a.XP.Total = 99
	assert.Error(t, s.Save(ctx, a))

	a, err = s.Load(ctx, a.Key())
	require.NoError(t, err)
	assert.Equal(t, uint64(10), a.XP.Total)
	assert.Equal(t, int64(1), a.Version)

	assert.Error(t, s.Ping(ctx))
}

func TestFileStore_RejectsNewerFormat(t *testing.T) {
	dir := t.TempDir()
	doc := fmt.Sprintf(`{"version": %d, "seq": 0, "profiles": []}`, fileFormatVersion+1)
	require.NoError(t, os.WriteFile(filepath.Join(dir, profilesFileName), []byte(doc), 0o600))

	_, err := NewFileStore(dir)
	assert.ErrorContains(t, err, "newer than supported")
}

func TestFileStore_DefaultDir(t *testing.T) {
	base := t.TempDir()
	t.Setenv("XDG_STATE_HOME", base)

	s, err := NewFileStore("")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(base, appDirName, profilesFileName), s.Path())
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	mem, err := Open(ctx, config.StorageConfig{Driver: config.DriverMemory})
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, mem)

	dir := t.TempDir()
	file, err := Open(ctx, config.StorageConfig{Driver: config.DriverFile, DataDir: dir})
	require.NoError(t, err)
	assert.IsType(t, &FileStore{}, file)

	db, err := Open(ctx, config.StorageConfig{Driver: config.DriverSQLite, DataDir: dir})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	assert.IsType(t, &GormStore{}, db)
	assert.FileExists(t, filepath.Join(dir, sqliteFileName))

	_, err = Open(ctx, config.StorageConfig{Driver: "cassandra"})
	assert.Error(t, err)
}
