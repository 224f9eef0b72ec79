package jobs

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRefresher struct {
	runs atomic.Int32
	err  error
}

func (f *fakeRefresher) RefreshRanks(context.Context) (int, error) {
	f.runs.Add(1)
	if f.err != nil {
		return 0, f.err
	}
	return 7, nil
}

type fakeRecorder struct {
	mu       sync.Mutex
	ok, bad  int
	profiles int
}

func (r *fakeRecorder) RankRefresh(_ time.Duration, profiles int, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err != nil {
		r.bad++
		return
	}
	r.ok++
	r.profiles = profiles
}

type fakeSweeper struct{ runs atomic.Int32 }

func (f *fakeSweeper) Sweep() int {
	f.runs.Add(1)
	return 1
}

func TestRefreshRanks(t *testing.T) {
	log, hook := test.NewNullLogger()
	rec := &fakeRecorder{}

	n, err := RefreshRanks(context.Background(), &fakeRefresher{}, rec, log)
	require.NoError(t, err)
	assert.Equal(t, 7, n)
	assert.Equal(t, 1, rec.ok)
	assert.Equal(t, 7, rec.profiles)
	assert.Equal(t, logrus.InfoLevel, hook.LastEntry().Level)

	_, err = RefreshRanks(context.Background(), &fakeRefresher{err: errors.New("db down")}, rec, log)
	assert.Error(t, err)
	assert.Equal(t, 1, rec.bad)
	assert.Equal(t, logrus.ErrorLevel, hook.LastEntry().Level)

	// A nil recorder is allowed.
	_, err = RefreshRanks(context.Background(), &fakeRefresher{}, nil, log)
	assert.NoError(t, err)
}

func TestScheduler_RunsJobs(t *testing.T) {
	log, _ := test.NewNullLogger()
	s, err := New(log)
	require.NoError(t, err)

	ranks := &fakeRefresher{}
	sweeper := &fakeSweeper{}
	require.NoError(t, s.ScheduleRankRefresh(ranks, time.Hour, &fakeRecorder{}))
	require.NoError(t, s.ScheduleSweep("limiter-sweep", sweeper, 20*time.Millisecond))

	s.Start()
	// The rank refresh starts immediately; the sweep waits one interval.
	assert.Eventually(t, func() bool { return ranks.runs.Load() == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.Eventually(t, func() bool { return sweeper.runs.Load() >= 2 }, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, s.Stop())

	assert.Equal(t, int32(1), ranks.runs.Load())
}
