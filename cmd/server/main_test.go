package main

import (
	"context"
	"testing"

	"github.com/odin-market/progression/internal/config"
	"github.com/odin-market/progression/internal/metrics"
	"github.com/odin-market/progression/internal/progression"
	"github.com/odin-market/progression/internal/store"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func countMessages(hook *test.Hook, msg string) int {
	n := 0
	for _, e := range hook.AllEntries() {
		if e.Message == msg {
			n++
		}
	}
	return n
}

func TestNewEngine_LogsEachUnlockOnce(t *testing.T) {
	log, hook := test.NewNullLogger()
	engine := newEngine(config.Default(), store.NewMemoryStore(), progression.DefaultCatalog(), log, metrics.New())
	ctx := context.Background()

	unlocked, levelUps := 0, 0
	for i := 0; i < 200 && levelUps == 0; i++ {
		res, err := engine.ProcessEvent(ctx, progression.Event{
			ProfileID: "vendor-1",
			Action:    progression.ActionSaleCompleted,
			Payload:   progression.PayloadOf(map[string]any{"amount": 1500}),
		})
		require.NoError(t, err)
		unlocked += len(res.UnlockedAchievements)
		if res.LevelUp {
			levelUps++
		}
	}

	require.Equal(t, 1, levelUps, "vendor never levelled up")
	require.Positive(t, unlocked)
	assert.Equal(t, unlocked, countMessages(hook, "achievement unlocked"))
	assert.Equal(t, 1, countMessages(hook, "level up"))
}
