package progression

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Event is one user action delivered to the engine. A zero Now means the
// engine's clock.
type Event struct {
	ProfileID string    `json:"profileId"`
	Class     UserClass `json:"userClass"`
	Action    string    `json:"action"`
	Payload   Payload   `json:"payload"`
	Now       time.Time `json:"now"`
}

func (ev Event) key() ProfileKey {
	return ProfileKey{ID: ev.ProfileID, Class: ev.Class}
}

// Result summarizes a committed event. XPEarned is the XP of the action
// itself; NewTotalXP also includes achievement and challenge payouts.
type Result struct {
	EventID              string                `json:"eventId"`
	XPEarned             uint64                `json:"xpEarned"`
	NewTotalXP           uint64                `json:"newTotalXp"`
	Level                uint32                `json:"level"`
	LevelUp              bool                  `json:"levelUp"`
	UnlockedAchievements []UnlockedAchievement `json:"unlockedAchievements"`
	CurrentStreak        uint32                `json:"currentStreak"`
	CompletedChallenges  []Challenge           `json:"completedChallenges,omitempty"`
}

// LevelChange is passed to the level-up hook.
type LevelChange struct {
	From uint32
	To   uint32
}

// AchievementHook is invoked for each newly unlocked achievement after the
// profile has been committed.
type AchievementHook func(key ProfileKey, a UnlockedAchievement)

// LevelUpHook is invoked after a committed change raised a profile's level.
type LevelUpHook func(key ProfileKey, change LevelChange)

// Recorder receives engine measurements.
type Recorder interface {
	EventProcessed(action, outcome string, elapsed time.Duration)
	XPGranted(class UserClass, amount uint64)
	LevelUp(class UserClass)
	AchievementUnlocked(id string)
	ChallengeCompleted(templateID string)
	CommitConflict()
}

type nopRecorder struct{}

func (nopRecorder) EventProcessed(string, string, time.Duration) {}
func (nopRecorder) XPGranted(UserClass, uint64)                  {}
func (nopRecorder) LevelUp(UserClass)                            {}
func (nopRecorder) AchievementUnlocked(string)                   {}
func (nopRecorder) ChallengeCompleted(string)                    {}
func (nopRecorder) CommitConflict()                              {}

// Event outcomes reported to the Recorder.
const (
	OutcomePersisted = "persisted"
	OutcomeAborted   = "aborted"
)

// UnknownActionLabel replaces actions the catalog has no rule for when
// they are reported to the Recorder, so callers cannot mint new series.
const UnknownActionLabel = "unknown"

// RetryPolicy bounds optimistic commit retries.
type RetryPolicy struct {
	MaxAttempts int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
}

// DefaultRetryPolicy allows five attempts with 10ms..250ms backoff.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 5, BaseBackoff: 10 * time.Millisecond, MaxBackoff: 250 * time.Millisecond}
}

// backoff returns the delay before retry attempt: BaseBackoff doubled per
// attempt and capped at MaxBackoff, then jittered into [d/2, d].
func (r RetryPolicy) backoff(attempt int) time.Duration {
	d := r.MaxBackoff
	if attempt <= 30 {
		if b := r.BaseBackoff << attempt; b > 0 && b < d {
			d = b
		}
	}
	if d <= 0 {
		return 0
	}
	return d/2 + rand.N(d/2+1)
}

// Option configures an Engine.
type Option func(*Engine)

func WithLogger(log logrus.FieldLogger) Option {
	return func(e *Engine) { e.log = log }
}

func WithRecorder(r Recorder) Option {
	return func(e *Engine) { e.rec = r }
}

func WithRetryPolicy(p RetryPolicy) Option {
	return func(e *Engine) { e.retry = p }
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.clock = now }
}

// Engine applies events to profiles. Events on different profiles run in
// parallel; events on the same profile are serialized by a per-profile lock
// in this process and by versioned commits across processes.
type Engine struct {
	store   ProfileStore
	catalog *Catalog
	locks   *keyedLocks
	retry   RetryPolicy
	clock   func() time.Time
	log     logrus.FieldLogger
	rec     Recorder

	onAchievement AchievementHook
	onLevelUp     LevelUpHook
}

// NewEngine creates an engine over store using catalog.
func NewEngine(store ProfileStore, catalog *Catalog, opts ...Option) *Engine {
	e := &Engine{
		store:   store,
		catalog: catalog,
		locks:   newKeyedLocks(),
		retry:   DefaultRetryPolicy(),
		clock:   time.Now,
		log:     logrus.StandardLogger(),
		rec:     nopRecorder{},
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.retry.MaxAttempts < 1 {
		e.retry.MaxAttempts = 1
	}
	return e
}

// OnAchievement registers the unlock hook. Must be called before the engine
// receives events.
func (e *Engine) OnAchievement(h AchievementHook) { e.onAchievement = h }

// OnLevelUp registers the level-up hook. Must be called before the engine
// receives events.
func (e *Engine) OnLevelUp(h LevelUpHook) { e.onLevelUp = h }

// Catalog returns the engine's catalog.
func (e *Engine) Catalog() *Catalog { return e.catalog }

// ProcessEvent runs an event through the pipeline and commits the result.
// The stages run in a fixed order on a private copy of the profile:
// XP for the action (and any level-up), streak and statistics, achievements,
// then challenges. The copy is committed in a single versioned write, so a
// failure at any point leaves the stored profile untouched. A profile seen
// for the first time is created.
func (e *Engine) ProcessEvent(ctx context.Context, ev Event) (*Result, error) {
	started := time.Now()
	ev.Action = strings.TrimSpace(ev.Action)
	if ev.Class == "" {
		ev.Class = ClassVendor
	}
	key := ev.key()
	if err := key.Validate(); err != nil {
		return nil, err
	}
	if ev.Action == "" {
		return nil, fmt.Errorf("%w: empty action", ErrInvalidEvent)
	}
	if ev.Now.IsZero() {
		ev.Now = e.clock()
	}
	ev.Now = ev.Now.UTC()

	eventID := uuid.NewString()
	log := e.log.WithFields(logrus.Fields{
		"event_id": eventID,
		"profile":  key.ID,
		"class":    key.Class,
		"action":   ev.Action,
	})

	label := ev.Action
	if !e.catalog.HasAction(label) {
		label = UnknownActionLabel
	}

	var (
		res        *Result
		startXP    uint64
		startLevel uint32
	)
	_, err := e.mutate(ctx, key, ev.Now, true, log, func(p *Profile) (bool, error) {
		startXP, startLevel = p.XP.Total, p.XP.Level
		res = e.applyEvent(p, ev, log)
		res.EventID = eventID
		return true, nil
	})
	if err != nil {
		e.rec.EventProcessed(label, OutcomeAborted, time.Since(started))
		log.WithError(err).Warn("event aborted")
		return nil, err
	}

	e.rec.EventProcessed(label, OutcomePersisted, time.Since(started))
	e.rec.XPGranted(key.Class, res.NewTotalXP-startXP)
	e.notify(key, startLevel, res.Level, res.UnlockedAchievements, res.CompletedChallenges, log)
	return res, nil
}

func (e *Engine) applyEvent(p *Profile, ev Event, log logrus.FieldLogger) *Result {
	startLevel := p.XP.Level

	// XP for the action. Daily login XP scales with the streak this login
	// lands on.
	streak := p.Streaks.Login
	if IsLoginAction(ev.Action) {
		streak = NextLoginStreak(p, ev.Now)
	}
	xp, err := e.catalog.XPFor(ev.Action, ev.Payload, p.UserClass, streak)
	if err != nil {
		log.WithError(err).Warn("no xp rule for action")
	}
	e.catalog.GrantXP(p, xp, ev.Action)

	UpdateStreak(p, ev.Action, ev.Now)
	ApplyStatistics(p, ev.Action, ev.Payload)

	unlocked := e.catalog.EvaluateAchievements(p, ev.Action, ev.Payload, ev.Now)

	e.catalog.EnsureChallenges(p, ev.Now)
	var completed []Challenge
	for _, upd := range e.catalog.TrackChallenges(p, ev.Action, ev.Payload, ev.Now) {
		completed = append(completed, upd.Challenge)
	}

	if unlocked == nil {
		unlocked = []UnlockedAchievement{}
	}
	return &Result{
		XPEarned:             xp,
		NewTotalXP:           p.XP.Total,
		Level:                p.XP.Level,
		LevelUp:              p.XP.Level > startLevel,
		UnlockedAchievements: unlocked,
		CurrentStreak:        p.Streaks.Login,
		CompletedChallenges:  completed,
	}
}

// GetProfile returns the profile for key, creating it on first sight, along
// with its position on the level curve.
func (e *Engine) GetProfile(ctx context.Context, key ProfileKey) (*Profile, LevelInfo, error) {
	if err := key.Validate(); err != nil {
		return nil, LevelInfo{}, err
	}
	p, err := e.store.Load(ctx, key)
	if errors.Is(err, ErrProfileNotFound) {
		p, err = e.mutate(ctx, key, e.clock().UTC(), true, e.log, func(p *Profile) (bool, error) {
			return p.Version == 0, nil
		})
	}
	if err != nil {
		return nil, LevelInfo{}, err
	}
	return p, e.catalog.LevelOf(p.XP.Total, p.UserClass), nil
}

// GetChallenges rotates the profile's challenges to the current period and
// returns the active set. A zero now means the engine's clock.
func (e *Engine) GetChallenges(ctx context.Context, key ProfileKey, now time.Time) ([]Challenge, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}
	if now.IsZero() {
		now = e.clock()
	}
	var out []Challenge
	_, err := e.mutate(ctx, key, now, false, e.log, func(p *Profile) (bool, error) {
		var changed bool
		out, changed = e.catalog.ensureChallenges(p, now)
		return changed, nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// UpdateChallenge sets the absolute progress of an active challenge.
func (e *Engine) UpdateChallenge(ctx context.Context, key ProfileKey, challengeID string, progress float64) (ChallengeUpdate, error) {
	if err := key.Validate(); err != nil {
		return ChallengeUpdate{}, err
	}
	now := e.clock().UTC()
	log := e.log.WithFields(logrus.Fields{"profile": key.ID, "class": key.Class, "challenge": challengeID})

	var (
		upd        ChallengeUpdate
		startLevel uint32
	)
	p, err := e.mutate(ctx, key, now, false, log, func(p *Profile) (bool, error) {
		startLevel = p.XP.Level
		var err error
		upd, err = e.catalog.ApplyProgress(p, challengeID, progress, now)
		return true, err
	})
	if err != nil {
		return ChallengeUpdate{}, err
	}

	if upd.Completed {
		if upd.Grant != nil {
			e.rec.XPGranted(key.Class, upd.Grant.Amount)
		}
		e.notify(key, startLevel, p.XP.Level, nil, []Challenge{upd.Challenge}, log)
	}
	return upd, nil
}

// GetAchievements returns the achievements unlocked by a profile.
func (e *Engine) GetAchievements(ctx context.Context, key ProfileKey) ([]UnlockedAchievement, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}
	p, err := e.store.Load(ctx, key)
	if err != nil {
		return nil, err
	}
	if p.Achievements == nil {
		return []UnlockedAchievement{}, nil
	}
	return p.Achievements, nil
}

// mutate runs fn on a fresh copy of the stored profile and commits the copy
// when fn reports a change. Version conflicts restart the whole sequence
// with capped exponential backoff until the retry budget is spent. With
// create set, a missing profile starts from a zeroed one.
func (e *Engine) mutate(ctx context.Context, key ProfileKey, now time.Time, create bool, log logrus.FieldLogger, fn func(p *Profile) (bool, error)) (*Profile, error) {
	unlock, err := e.locks.lock(ctx, key.String())
	if err != nil {
		return nil, err
	}
	defer unlock()

	for attempt := 0; ; attempt++ {
		current, err := e.store.Load(ctx, key)
		switch {
		case err == nil:
		case errors.Is(err, ErrProfileNotFound) && create:
			current = e.catalog.NewProfile(key, now)
		default:
			return nil, err
		}

		next := current.Clone()
		changed, err := fn(next)
		if err != nil {
			return nil, err
		}
		if !changed {
			return next, nil
		}

		next.UpdatedAt = now.UTC()
		err = e.store.Save(ctx, next)
		if err == nil {
			if current.Version == 0 {
				log.Info("profile created")
			}
			return next, nil
		}
		if !errors.Is(err, ErrVersionConflict) {
			return nil, fmt.Errorf("committing profile %s: %w", key, err)
		}

		e.rec.CommitConflict()
		log.WithField("attempt", attempt+1).Debug("profile version conflict")
		if attempt+1 >= e.retry.MaxAttempts {
			return nil, fmt.Errorf("%w: %s after %d attempts", ErrConcurrentUpdateExhausted, key, attempt+1)
		}
		if err := sleepCtx(ctx, e.retry.backoff(attempt)); err != nil {
			return nil, err
		}
	}
}

// notify reports unlocks, completions and level changes once they are
// committed. Hooks run outside the profile lock.
func (e *Engine) notify(key ProfileKey, from, to uint32, unlocked []UnlockedAchievement, completed []Challenge, log logrus.FieldLogger) {
	for _, a := range unlocked {
		e.rec.AchievementUnlocked(a.ID)
		log.WithField("achievement", a.ID).Info("achievement unlocked")
		if e.onAchievement != nil {
			e.onAchievement(key, a)
		}
	}
	for _, ch := range completed {
		e.rec.ChallengeCompleted(ch.TemplateID)
		log.WithField("challenge", ch.ID).Info("challenge completed")
	}
	if to > from {
		e.rec.LevelUp(key.Class)
		log.WithFields(logrus.Fields{"from": from, "to": to}).Info("level up")
		if e.onLevelUp != nil {
			e.onLevelUp(key, LevelChange{From: from, To: to})
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
