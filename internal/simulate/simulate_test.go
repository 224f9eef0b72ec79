package simulate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/odin-market/progression/internal/progression"
	"github.com/odin-market/progression/internal/store"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	events []progression.Event
	fail   string
}

func (s *recordingSink) ProcessEvent(_ context.Context, ev progression.Event) (*progression.Result, error) {
	s.events = append(s.events, ev)
	if ev.Action == s.fail {
		return nil, errors.New("boom")
	}
	return &progression.Result{XPEarned: 1}, nil
}

func TestNewGenerator_Actors(t *testing.T) {
	log, _ := test.NewNullLogger()
	g := NewGenerator(&recordingSink{}, 8, 1, log)

	keys := g.Actors()
	require.Len(t, keys, 8)
	seen := map[string]bool{}
	for i, k := range keys {
		assert.False(t, seen[k.ID], "duplicate id %s", k.ID)
		seen[k.ID] = true
		if i%2 == 0 {
			assert.Equal(t, progression.ClassVendor, k.Class)
		} else {
			assert.Equal(t, progression.ClassCustomer, k.Class)
		}
	}
}

func TestStep_FirstTickLogsEveryoneIn(t *testing.T) {
	log, _ := test.NewNullLogger()
	sink := &recordingSink{}
	g := NewGenerator(sink, 4, 1, log)

	require.NoError(t, g.Step(context.Background()))
	require.Len(t, sink.events, 4)
	for _, ev := range sink.events {
		assert.Equal(t, progression.ActionLogin, ev.Action)
	}
	assert.Equal(t, Stats{Ticks: 1, Events: 4, XP: 4}, g.Stats())
}

func TestStep_SameSeedSameTraffic(t *testing.T) {
	log, _ := test.NewNullLogger()
	a, b := &recordingSink{}, &recordingSink{}
	ga, gb := NewGenerator(a, 8, 42, log), NewGenerator(b, 8, 42, log)
	for i := 0; i < 12; i++ {
		require.NoError(t, ga.Step(context.Background()))
		require.NoError(t, gb.Step(context.Background()))
	}
	require.Equal(t, len(a.events), len(b.events))
	for i := range a.events {
		assert.Equal(t, a.events[i].Action, b.events[i].Action)
		ja, _ := a.events[i].Payload.MarshalJSON()
		jb, _ := b.events[i].Payload.MarshalJSON()
		assert.JSONEq(t, string(ja), string(jb))
	}
}

func TestStep_CountsFailures(t *testing.T) {
	log, hook := test.NewNullLogger()
	sink := &recordingSink{fail: progression.ActionLogin}
	g := NewGenerator(sink, 2, 1, log)

	require.NoError(t, g.Step(context.Background()))
	assert.Equal(t, 2, g.Stats().Failed)
	assert.Len(t, hook.AllEntries(), 2)
}

func TestRun_AgainstEngine(t *testing.T) {
	log, _ := test.NewNullLogger()
	engine := progression.NewEngine(store.NewMemoryStore(), progression.DefaultCatalog(),
		progression.WithLogger(log))
	g := NewGenerator(engine, 8, 7, log)

	require.NoError(t, g.Run(context.Background(), time.Millisecond, 15))
	st := g.Stats()
	assert.Equal(t, 15, st.Ticks)
	assert.Zero(t, st.Failed)
	assert.Positive(t, st.XP)

	for _, key := range g.Actors() {
		p, _, err := engine.GetProfile(context.Background(), key)
		require.NoError(t, err)
		assert.Positive(t, p.XP.Total, "profile %s earned nothing", key.ID)
	}
}

func TestRun_StopsOnCancel(t *testing.T) {
	log, _ := test.NewNullLogger()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	g := NewGenerator(&recordingSink{}, 2, 1, log)
	assert.NoError(t, g.Run(ctx, time.Hour, 0))
}
