// Package api serves the progression engine over HTTP. Routes live under
// /api/gamification and answer with a {success, data|error} envelope.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/odin-market/progression/internal/progression"
	"github.com/sirupsen/logrus"
)

// Progression is the part of the engine the API drives.
type Progression interface {
	ProcessEvent(ctx context.Context, ev progression.Event) (*progression.Result, error)
	GetProfile(ctx context.Context, key progression.ProfileKey) (*progression.Profile, progression.LevelInfo, error)
	GetChallenges(ctx context.Context, key progression.ProfileKey, now time.Time) ([]progression.Challenge, error)
	UpdateChallenge(ctx context.Context, key progression.ProfileKey, challengeID string, progress float64) (progression.ChallengeUpdate, error)
	GetAchievements(ctx context.Context, key progression.ProfileKey) ([]progression.UnlockedAchievement, error)
}

// Ranker serves leaderboard pages.
type Ranker interface {
	Rank(ctx context.Context, metric progression.Metric, page, pageSize int) (*progression.Page, error)
}

// Pinger reports backend reachability for /health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Instrumenter wraps handlers with request metrics and serves the scrape
// endpoint.
type Instrumenter interface {
	InstrumentHandler(next http.Handler) http.Handler
	Handler() http.Handler
}

const requestTimeout = 30 * time.Second

type Server struct {
	engine  Progression
	ranks   Ranker
	store   Pinger
	log     logrus.FieldLogger
	metrics Instrumenter
	limiter *RateLimiter
	health  storeHealth
	started time.Time
	now     func() time.Time
}

func NewServer(engine Progression, ranks Ranker, store Pinger, log logrus.FieldLogger) *Server {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Server{
		engine:  engine,
		ranks:   ranks,
		store:   store,
		log:     log,
		started: time.Now(),
		now:     time.Now,
	}
}

// SetMetrics enables request instrumentation and the /metrics endpoint.
func (s *Server) SetMetrics(m Instrumenter) { s.metrics = m }

// SetRateLimiter limits /api routes per client address.
func (s *Server) SetRateLimiter(l *RateLimiter) { s.limiter = l }

// Handler returns the chi router with all routes mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	if s.metrics != nil {
		r.Use(s.metrics.InstrumentHandler)
	}
	r.Use(requestLogger(s.log))
	r.Use(middleware.Recoverer)
	r.Use(securityHeaders)

	r.Get("/health", s.handleHealth)
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics.Handler())
	}

	r.Route("/api/gamification", func(r chi.Router) {
		r.Use(middleware.Timeout(requestTimeout))
		if s.limiter != nil {
			r.Use(s.limiter.Handler)
		}

		r.Get("/leaderboard", s.handleLeaderboard)
		r.Route("/{userId}", func(r chi.Router) {
			r.Get("/", s.handleGetProfile)
			r.Post("/xp", s.handleAddXP)
			r.Get("/challenges", s.handleChallenges)
			r.Get("/challenges/daily", s.handleDailyChallenges)
			r.Put("/challenges/{challengeId}", s.handleUpdateChallenge)
			r.Get("/achievements", s.handleAchievements)
		})
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	return r
}
