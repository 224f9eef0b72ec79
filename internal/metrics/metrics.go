// Package metrics exposes Prometheus collectors for the engine, the HTTP
// API and the background jobs.
package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/odin-market/progression/internal/progression"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "progression"

// Registry owns a private Prometheus registry. It implements
// progression.Recorder.
type Registry struct {
	reg *prometheus.Registry

	events         *prometheus.CounterVec
	eventDuration  *prometheus.HistogramVec
	xpGranted      *prometheus.CounterVec
	levelUps       *prometheus.CounterVec
	achievements   *prometheus.CounterVec
	challenges     *prometheus.CounterVec
	conflicts      prometheus.Counter
	rankRefreshes  *prometheus.CounterVec
	rankDuration   prometheus.Histogram
	rankedProfiles prometheus.Gauge

	httpInFlight prometheus.Gauge
	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
}

var _ progression.Recorder = (*Registry)(nil)

// New creates a registry with every collector registered.
func New() *Registry {
	r := &Registry{
		reg: prometheus.NewRegistry(),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "events_total",
			Help:      "Events processed, by action and outcome.",
		}, []string{"action", "outcome"}),
		eventDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "event_duration_seconds",
			Help:      "Time to process and commit an event.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 12),
		}, []string{"outcome"}),
		xpGranted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "xp_granted_total",
			Help:      "XP granted, by user class.",
		}, []string{"class"}),
		levelUps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "level_ups_total",
			Help:      "Level-ups, by user class.",
		}, []string{"class"}),
		achievements: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "achievements_unlocked_total",
			Help:      "Achievements unlocked, by achievement id.",
		}, []string{"achievement"}),
		challenges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "challenges_completed_total",
			Help:      "Challenges completed, by template id.",
		}, []string{"template"}),
		conflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "commit_conflicts_total",
			Help:      "Profile commits rejected by a version conflict.",
		}),
		rankRefreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "leaderboard",
			Name:      "rank_refreshes_total",
			Help:      "Rank cache refresh runs, by result.",
		}, []string{"result"}),
		rankDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "leaderboard",
			Name:      "rank_refresh_duration_seconds",
			Help:      "Duration of rank cache refreshes.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 10),
		}),
		rankedProfiles: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "leaderboard",
			Name:      "ranked_profiles",
			Help:      "Profiles ranked by the last successful refresh.",
		}),
		httpInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests handled.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
		}, []string{"method", "route"}),
	}

	r.reg.MustRegister(
		r.events, r.eventDuration, r.xpGranted, r.levelUps,
		r.achievements, r.challenges, r.conflicts,
		r.rankRefreshes, r.rankDuration, r.rankedProfiles,
		r.httpInFlight, r.httpRequests, r.httpDuration,
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)
	return r
}

// Gatherer exposes the underlying registry, mainly for tests.
func (r *Registry) Gatherer() prometheus.Gatherer { return r.reg }

// Handler serves the registry in the Prometheus text format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

func (r *Registry) EventProcessed(action, outcome string, elapsed time.Duration) {
	r.events.WithLabelValues(action, outcome).Inc()
	r.eventDuration.WithLabelValues(outcome).Observe(elapsed.Seconds())
}

func (r *Registry) XPGranted(class progression.UserClass, amount uint64) {
	if amount == 0 {
		return
	}
	r.xpGranted.WithLabelValues(string(class)).Add(float64(amount))
}

func (r *Registry) LevelUp(class progression.UserClass) {
	r.levelUps.WithLabelValues(string(class)).Inc()
}

func (r *Registry) AchievementUnlocked(id string) {
	r.achievements.WithLabelValues(id).Inc()
}

func (r *Registry) ChallengeCompleted(templateID string) {
	r.challenges.WithLabelValues(templateID).Inc()
}

func (r *Registry) CommitConflict() { r.conflicts.Inc() }

// RankRefresh records one run of the rank cache job.
func (r *Registry) RankRefresh(elapsed time.Duration, profiles int, err error) {
	if err != nil {
		r.rankRefreshes.WithLabelValues("error").Inc()
		return
	}
	r.rankRefreshes.WithLabelValues("ok").Inc()
	r.rankDuration.Observe(elapsed.Seconds())
	r.rankedProfiles.Set(float64(profiles))
}

// InstrumentHandler records request counts and latency. Requests are
// labeled with the matched chi route pattern so path parameters do not
// explode the label space.
func (r *Registry) InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if req.URL.Path == "/metrics" {
			next.ServeHTTP(w, req)
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		r.httpInFlight.Inc()
		defer r.httpInFlight.Dec()

		next.ServeHTTP(rec, req)

		route := "unmatched"
		if rctx := chi.RouteContext(req.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		method := strings.ToUpper(req.Method)
		r.httpRequests.WithLabelValues(method, route, strconv.Itoa(rec.status)).Inc()
		r.httpDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}
