// Package jobs runs the periodic maintenance tasks of the service on a
// gocron scheduler.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/sirupsen/logrus"
)

// runTimeout bounds a single run of any job.
const runTimeout = time.Minute

// RankRefresher recomputes the cached leaderboard ranks.
type RankRefresher interface {
	RefreshRanks(ctx context.Context) (int, error)
}

// RefreshRecorder receives the outcome of each rank refresh.
type RefreshRecorder interface {
	RankRefresh(elapsed time.Duration, profiles int, err error)
}

// Sweeper drops idle per-client state.
type Sweeper interface {
	Sweep() int
}

type Scheduler struct {
	sched  gocron.Scheduler
	log    logrus.FieldLogger
	ctx    context.Context
	cancel context.CancelFunc
}

func New(log logrus.FieldLogger) (*Scheduler, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	sched, err := gocron.NewScheduler(gocron.WithLocation(time.UTC))
	if err != nil {
		return nil, fmt.Errorf("creating scheduler: %w", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{sched: sched, log: log.WithField("component", "jobs"), ctx: ctx, cancel: cancel}, nil
}

// ScheduleRankRefresh refreshes ranks every interval, starting right away.
// A run still in progress when the next one is due is not overlapped.
func (s *Scheduler) ScheduleRankRefresh(ranks RankRefresher, every time.Duration, rec RefreshRecorder) error {
	_, err := s.sched.NewJob(
		gocron.DurationJob(every),
		gocron.NewTask(func() {
			ctx, cancel := context.WithTimeout(s.ctx, runTimeout)
			defer cancel()
			RefreshRanks(ctx, ranks, rec, s.log)
		}),
		gocron.WithName("rank-refresh"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		return fmt.Errorf("scheduling rank refresh: %w", err)
	}
	return nil
}

// ScheduleSweep runs sw.Sweep every interval.
func (s *Scheduler) ScheduleSweep(name string, sw Sweeper, every time.Duration) error {
	_, err := s.sched.NewJob(
		gocron.DurationJob(every),
		gocron.NewTask(func() {
			if n := sw.Sweep(); n > 0 {
				s.log.WithFields(logrus.Fields{"job": name, "removed": n}).Debug("sweep")
			}
		}),
		gocron.WithName(name),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("scheduling %s: %w", name, err)
	}
	return nil
}

func (s *Scheduler) Start() { s.sched.Start() }

// Stop cancels running jobs and waits for them to return.
func (s *Scheduler) Stop() error {
	s.cancel()
	return s.sched.Shutdown()
}

// RefreshRanks runs one rank refresh and reports it to rec, which may be
// nil.
func RefreshRanks(ctx context.Context, ranks RankRefresher, rec RefreshRecorder, log logrus.FieldLogger) (int, error) {
	start := time.Now()
	n, err := ranks.RefreshRanks(ctx)
	elapsed := time.Since(start)
	if rec != nil {
		rec.RankRefresh(elapsed, n, err)
	}
	if err != nil {
		log.WithError(err).Error("rank refresh failed")
		return 0, err
	}
	log.WithFields(logrus.Fields{
		"profiles":    n,
		"duration_ms": elapsed.Milliseconds(),
	}).Info("ranks refreshed")
	return n, nil
}
