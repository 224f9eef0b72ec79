package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/odin-market/progression/internal/metrics"
	"github.com/odin-market/progression/internal/progression"
	"github.com/odin-market/progression/internal/store"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 3, 11, 14, 30, 0, 0, time.UTC)

type testEnvelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	log, _ := test.NewNullLogger()
	st := store.NewMemoryStore()
	catalog := progression.DefaultCatalog()
	clock := func() time.Time { return testNow }

	engine := progression.NewEngine(st, catalog,
		progression.WithLogger(log),
		progression.WithClock(clock),
		progression.WithRetryPolicy(progression.RetryPolicy{MaxAttempts: 3, BaseBackoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond}),
	)
	s := NewServer(engine, progression.NewLeaderboard(st, catalog, 50, 200), st, log)
	s.now = clock
	return s
}

func do(t *testing.T, h http.Handler, method, path, body string) (*httptest.ResponseRecorder, testEnvelope) {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var env testEnvelope
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), "body: %s", rec.Body.String())
	}
	return rec, env
}

func unlocked(list []progression.UnlockedAchievement, id string) bool {
	for _, a := range list {
		if a.ID == id {
			return true
		}
	}
	return false
}

func TestAddXP_FirstSale(t *testing.T) {
	h := newTestServer(t).Handler()

	rec, env := do(t, h, http.MethodPost, "/api/gamification/v1/xp",
		`{"action":"sale_completed","data":{"amount":1500}}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.True(t, env.Success)

	var res progression.Result
	require.NoError(t, json.Unmarshal(env.Data, &res))
	assert.Equal(t, uint64(60), res.XPEarned)
	assert.Equal(t, uint64(60), res.NewTotalXP)
	assert.Equal(t, uint32(1), res.Level)
	assert.False(t, res.LevelUp)
	assert.True(t, unlocked(res.UnlockedAchievements, "first_sale"), "unlocked: %+v", res.UnlockedAchievements)
	assert.NotEmpty(t, res.EventID)
}

func TestAddXP_BadRequests(t *testing.T) {
	h := newTestServer(t).Handler()

	tests := []struct {
		name string
		body string
	}{
		{"malformed json", `{"action":`},
		{"missing action", `{"data":{}}`},
		{"unknown user type", `{"action":"login","userType":"wholesaler"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, env := do(t, h, http.MethodPost, "/api/gamification/v1/xp", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.False(t, env.Success)
			assert.NotEmpty(t, env.Error)
		})
	}
}

func TestGetProfile(t *testing.T) {
	h := newTestServer(t).Handler()

	rec, env := do(t, h, http.MethodGet, "/api/gamification/shopper?userType=customer", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var view struct {
		ProfileID string                `json:"profileId"`
		UserClass string                `json:"userClass"`
		XP        progression.XP        `json:"xp"`
		LevelInfo progression.LevelInfo `json:"levelInfo"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &view))
	assert.Equal(t, "shopper", view.ProfileID)
	assert.Equal(t, "customer", view.UserClass)
	assert.Equal(t, uint64(0), view.XP.Total)
	assert.Equal(t, uint32(1), view.LevelInfo.Level)
	assert.NotEmpty(t, view.LevelInfo.Name)
}

func TestLeaderboard(t *testing.T) {
	h := newTestServer(t).Handler()

	events := map[string]int{"A": 1, "B": 3, "C": 2}
	for id, n := range events {
		for i := 0; i < n; i++ {
			rec, _ := do(t, h, http.MethodPost, "/api/gamification/"+id+"/xp", `{"action":"product_added"}`)
			require.Equal(t, http.StatusOK, rec.Code)
		}
	}

	rec, env := do(t, h, http.MethodGet, "/api/gamification/leaderboard?category=xp&page=1&limit=2", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var page progression.Page
	require.NoError(t, json.Unmarshal(env.Data, &page))
	assert.Equal(t, 3, page.Total)
	assert.Equal(t, 2, page.TotalPages)
	require.Len(t, page.Entries, 2)
	assert.Equal(t, "B", page.Entries[0].ProfileID)
	assert.Equal(t, 1, page.Entries[0].Rank)
	assert.Equal(t, "C", page.Entries[1].ProfileID)

	rec, env = do(t, h, http.MethodGet, "/api/gamification/leaderboard?page=2&limit=2", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(env.Data, &page))
	require.Len(t, page.Entries, 1)
	assert.Equal(t, "A", page.Entries[0].ProfileID)
	assert.Equal(t, 3, page.Entries[0].Rank)

	rec, _ = do(t, h, http.MethodGet, "/api/gamification/leaderboard?page=two", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestChallengeRoutes(t *testing.T) {
	h := newTestServer(t).Handler()

	rec, _ := do(t, h, http.MethodGet, "/api/gamification/v1/challenges/daily", "")
	assert.Equal(t, http.StatusNotFound, rec.Code, "challenges of an unknown profile")

	rec, _ = do(t, h, http.MethodGet, "/api/gamification/v1", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var list []progression.Challenge
	rec, env := do(t, h, http.MethodGet, "/api/gamification/v1/challenges/daily", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(env.Data, &list))
	assert.Len(t, list, 3)
	for _, ch := range list {
		assert.Equal(t, progression.ChallengeDaily, ch.Type)
	}

	rec, env = do(t, h, http.MethodGet, "/api/gamification/v1/challenges", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(env.Data, &list))
	assert.Len(t, list, 4)

	path := "/api/gamification/v1/challenges/daily_engagement_20260311"
	rec, env = do(t, h, http.MethodPut, path, `{"progress":10}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var upd progression.ChallengeUpdate
	require.NoError(t, json.Unmarshal(env.Data, &upd))
	assert.True(t, upd.Completed)
	require.NotNil(t, upd.Grant)
	assert.Equal(t, uint64(75), upd.Grant.Amount)

	rec, _ = do(t, h, http.MethodPut, path, `{"progress":12}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec, env = do(t, h, http.MethodPut, "/api/gamification/v1/challenges/nope", `{"progress":1}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Challenge not found", env.Error)

	rec, _ = do(t, h, http.MethodPut, "/api/gamification/v1/challenges/daily_sales_20260311", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = do(t, h, http.MethodPut, "/api/gamification/v1/challenges/daily_sales_20260311", `{"progress":-1}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAchievements(t *testing.T) {
	h := newTestServer(t).Handler()

	rec, env := do(t, h, http.MethodGet, "/api/gamification/ghost/achievements", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Gamification data not found", env.Error)

	rec, _ = do(t, h, http.MethodPost, "/api/gamification/v1/xp", `{"action":"sale_completed","data":{"amount":10}}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec, env = do(t, h, http.MethodGet, "/api/gamification/v1/achievements", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list []progression.UnlockedAchievement
	require.NoError(t, json.Unmarshal(env.Data, &list))
	assert.True(t, unlocked(list, "first_sale"), "achievements: %+v", list)
}

func TestUnknownRoute(t *testing.T) {
	h := newTestServer(t).Handler()
	rec, env := do(t, h, http.MethodGet, "/api/other", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.False(t, env.Success)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("%w: v1", progression.ErrProfileNotFound), http.StatusNotFound},
		{progression.ErrChallengeNotFound, http.StatusNotFound},
		{progression.ErrChallengeAlreadyCompleted, http.StatusConflict},
		{progression.ErrVersionConflict, http.StatusConflict},
		{progression.ErrConcurrentUpdateExhausted, http.StatusServiceUnavailable},
		{context.DeadlineExceeded, http.StatusServiceUnavailable},
		{progression.ErrInvalidEvent, http.StatusBadRequest},
		{progression.ErrInvalidProgress, http.StatusBadRequest},
		{errors.New("disk on fire"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.err), tt.err.Error())
	}
	assert.Equal(t, "internal error", messageFor(http.StatusInternalServerError, errors.New("disk on fire")))
}

func TestRateLimiter(t *testing.T) {
	s := newTestServer(t)
	log, _ := test.NewNullLogger()
	now := testNow
	rl := NewRateLimiter(2, time.Minute, log)
	rl.now = func() time.Time { return now }
	s.SetRateLimiter(rl)
	h := s.Handler()

	for i := 0; i < 2; i++ {
		rec, _ := do(t, h, http.MethodGet, "/api/gamification/leaderboard", "")
		require.Equal(t, http.StatusOK, rec.Code)
	}
	rec, env := do(t, h, http.MethodGet, "/api/gamification/leaderboard", "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "30", rec.Header().Get("Retry-After"))
	assert.False(t, env.Success)

	// Health sits outside the limited routes.
	rec, _ = do(t, h, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	// One request's worth refills after window/requests.
	now = now.Add(30 * time.Second)
	rec, _ = do(t, h, http.MethodGet, "/api/gamification/leaderboard", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, 1, rl.Clients())
	assert.Equal(t, 0, rl.Sweep())
	now = now.Add(2 * time.Minute)
	assert.Equal(t, 1, rl.Sweep())
	assert.Equal(t, 0, rl.Clients())
}

type flakyPinger struct{ err error }

func (p *flakyPinger) Ping(context.Context) error { return p.err }

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	pinger := &flakyPinger{}
	s.store = pinger
	h := s.Handler()

	health := func() (int, healthReport) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
		var report healthReport
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
		return rec.Code, report
	}

	code, report := health()
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, StatusHealthy, report.Status)
	assert.Equal(t, "connected", report.Database)
	require.NotNil(t, report.Memory)
	assert.NotZero(t, report.Memory.HeapAlloc)

	pinger.err = errors.New("connection refused")
	code, report = health()
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, StatusDegraded, report.Status)
	assert.Equal(t, "disconnected", report.Database)
	assert.Equal(t, "connection refused", report.LastError)

	health()
	_, report = health()
	assert.Equal(t, StatusFailed, report.Status)

	pinger.err = nil
	code, report = health()
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, StatusHealthy, report.Status)
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t)
	s.SetMetrics(metrics.New())
	h := s.Handler()

	rec, _ := do(t, h, http.MethodGet, "/api/gamification/leaderboard", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(),
		`progression_http_requests_total{method="GET",route="/api/gamification/leaderboard",status="200"} 1`)
}

func TestSecurityHeaders(t *testing.T) {
	h := newTestServer(t).Handler()
	rec, _ := do(t, h, http.MethodGet, "/api/gamification/leaderboard", "")
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
}
