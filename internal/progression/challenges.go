package progression

import (
	"fmt"
	"math"
	"slices"
	"time"
)

// ChallengeType is the period a challenge is scoped to.
type ChallengeType string

const (
	ChallengeDaily   ChallengeType = "daily"
	ChallengeWeekly  ChallengeType = "weekly"
	ChallengeMonthly ChallengeType = "monthly"
	// ChallengeSpecial templates are never generated by rotation.
	ChallengeSpecial ChallengeType = "special"
)

func (t ChallengeType) valid() bool {
	switch t {
	case ChallengeDaily, ChallengeWeekly, ChallengeMonthly, ChallengeSpecial:
		return true
	}
	return false
}

// ChallengeMetric names what events advance a challenge.
type ChallengeMetric string

const (
	MetricSalesCount      ChallengeMetric = "sales"
	MetricRevenueAmount   ChallengeMetric = "revenue"
	MetricResponses       ChallengeMetric = "responses"
	MetricFiveStarReviews ChallengeMetric = "five_star_reviews"
)

func (m ChallengeMetric) valid() bool {
	switch m {
	case MetricSalesCount, MetricRevenueAmount, MetricResponses, MetricFiveStarReviews:
		return true
	}
	return false
}

// delta is how far an event moves a challenge tracking m.
func (m ChallengeMetric) delta(action string, payload Payload) float64 {
	switch m {
	case MetricSalesCount:
		if IsSaleAction(action) {
			return 1
		}
	case MetricRevenueAmount:
		if IsSaleAction(action) {
			if amount, ok := payload.Float("amount"); ok && amount > 0 {
				return amount
			}
		}
	case MetricResponses:
		if action == ActionResponseSent {
			return 1
		}
	case MetricFiveStarReviews:
		if action == ActionReviewReceived {
			if rating, ok := payload.Float("rating"); ok && rating == 5 {
				return 1
			}
		}
	}
	return 0
}

type Rewards struct {
	XP    uint64 `json:"xp" yaml:"xp"`
	Coins uint64 `json:"coins" yaml:"coins"`
	Gems  uint64 `json:"gems" yaml:"gems"`
}

// ChallengeTemplate is the catalog entry a challenge instance is cut from.
type ChallengeTemplate struct {
	ID          string          `yaml:"id"`
	Name        string          `yaml:"name"`
	Description string          `yaml:"description"`
	Type        ChallengeType   `yaml:"type"`
	Metric      ChallengeMetric `yaml:"metric"`
	Goal        float64         `yaml:"goal"`
	Rewards     Rewards         `yaml:"rewards"`
}

// Challenge is a time-boxed goal held by one profile. Period identifies the
// day, ISO week or month the instance belongs to.
type Challenge struct {
	ID          string          `json:"id"`
	TemplateID  string          `json:"templateId"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Type        ChallengeType   `json:"type"`
	Metric      ChallengeMetric `json:"metric"`
	Goal        float64         `json:"goal"`
	Progress    float64         `json:"progress"`
	Completed   bool            `json:"completed"`
	CompletedAt *time.Time      `json:"completedAt,omitempty"`
	Rewards     Rewards         `json:"rewards"`
	Period      string          `json:"period"`
	StartDate   time.Time       `json:"startDate"`
	EndDate     *time.Time      `json:"endDate,omitempty"`
}

func (ch Challenge) clone() Challenge {
	if ch.CompletedAt != nil {
		t := *ch.CompletedAt
		ch.CompletedAt = &t
	}
	if ch.EndDate != nil {
		t := *ch.EndDate
		ch.EndDate = &t
	}
	return ch
}

func (ch *Challenge) expired(now time.Time) bool {
	return ch.EndDate != nil && !now.Before(*ch.EndDate)
}

// ChallengeUpdate is the outcome of ApplyProgress.
type ChallengeUpdate struct {
	Challenge Challenge `json:"challenge"`
	Completed bool      `json:"completed"`
	Grant     *Grant    `json:"grant,omitempty"`
}

// weekStart returns Monday 00:00 UTC of t's ISO week.
func weekStart(t time.Time) time.Time {
	day := utcDay(t)
	offset := (int(day.Weekday()) + 6) % 7
	return day.AddDate(0, 0, -offset)
}

// period returns the key and bounds of the period containing now.
func period(typ ChallengeType, now time.Time) (key string, start, end time.Time, ok bool) {
	switch typ {
	case ChallengeDaily:
		start = utcDay(now)
		return start.Format("20060102"), start, start.AddDate(0, 0, 1), true
	case ChallengeWeekly:
		start = weekStart(now)
		y, w := start.ISOWeek()
		return fmt.Sprintf("%04dW%02d", y, w), start, start.AddDate(0, 0, 7), true
	case ChallengeMonthly:
		y, m, _ := now.UTC().Date()
		start = time.Date(y, m, 1, 0, 0, 0, 0, time.UTC)
		return start.Format("200601"), start, start.AddDate(0, 1, 0), true
	}
	return "", time.Time{}, time.Time{}, false
}

func challengeID(tpl ChallengeTemplate, periodKey string) string {
	return fmt.Sprintf("%s_%s_%s", tpl.Type, tpl.ID, periodKey)
}

// EnsureChallenges rotates the profile's challenges to the period containing
// now and returns the active set. Expired instances are dropped, and every
// template gets at most one instance per period: a template already
// represented for the period, active or completed, is not regenerated.
// Calling it again within the same period returns the same set.
func (c *Catalog) EnsureChallenges(p *Profile, now time.Time) []Challenge {
	out, _ := c.ensureChallenges(p, now)
	return out
}

func (c *Catalog) ensureChallenges(p *Profile, now time.Time) ([]Challenge, bool) {
	now = now.UTC()
	changed := false

	kept := make([]Challenge, 0, len(p.ActiveChallenges)+len(c.challenges))
	for _, ch := range p.ActiveChallenges {
		if ch.expired(now) {
			changed = true
			continue
		}
		kept = append(kept, ch)
	}

	for _, tpl := range c.challenges {
		key, _, end, ok := period(tpl.Type, now)
		if !ok {
			continue
		}
		id := challengeID(tpl, key)
		if containsChallenge(kept, id) || p.completedChallenge(id) {
			continue
		}
		endDate := end
		kept = append(kept, Challenge{
			ID:          id,
			TemplateID:  tpl.ID,
			Name:        tpl.Name,
			Description: tpl.Description,
			Type:        tpl.Type,
			Metric:      tpl.Metric,
			Goal:        tpl.Goal,
			Rewards:     tpl.Rewards,
			Period:      key,
			StartDate:   now,
			EndDate:     &endDate,
		})
		changed = true
	}

	p.ActiveChallenges = kept
	return cloneChallenges(kept), changed
}

func containsChallenge(list []Challenge, id string) bool {
	for i := range list {
		if list[i].ID == id {
			return true
		}
	}
	return false
}

// ApplyProgress sets a challenge's progress to an absolute value. Reaching
// the goal completes it: the XP reward goes through GrantXP, coins and gems
// are added, and the challenge moves from the active list to the completed
// list. A completed challenge cannot be paid twice.
func (c *Catalog) ApplyProgress(p *Profile, id string, progress float64, now time.Time) (ChallengeUpdate, error) {
	if progress < 0 || math.IsNaN(progress) || math.IsInf(progress, 0) {
		return ChallengeUpdate{}, fmt.Errorf("%w: %v", ErrInvalidProgress, progress)
	}
	now = now.UTC()

	idx := p.activeIndex(id)
	if idx < 0 {
		if p.completedChallenge(id) {
			return ChallengeUpdate{}, fmt.Errorf("%w: %s", ErrChallengeAlreadyCompleted, id)
		}
		return ChallengeUpdate{}, fmt.Errorf("%w: %s", ErrChallengeNotFound, id)
	}
	ch := &p.ActiveChallenges[idx]
	if ch.Completed {
		return ChallengeUpdate{}, fmt.Errorf("%w: %s", ErrChallengeAlreadyCompleted, id)
	}
	if ch.expired(now) {
		return ChallengeUpdate{}, fmt.Errorf("%w: %s expired", ErrChallengeNotFound, id)
	}

	ch.Progress = progress
	if progress < ch.Goal {
		return ChallengeUpdate{Challenge: ch.clone()}, nil
	}

	ch.Completed = true
	ch.CompletedAt = &now
	finished := ch.clone()

	grant := c.GrantXP(p, finished.Rewards.XP, "challenge: "+finished.Name)
	p.Currency.Coins = addSat(p.Currency.Coins, finished.Rewards.Coins)
	p.Currency.Gems = addSat(p.Currency.Gems, finished.Rewards.Gems)

	p.ActiveChallenges = slices.Delete(p.ActiveChallenges, idx, idx+1)
	p.CompletedChallenges = append(p.CompletedChallenges, finished)

	return ChallengeUpdate{Challenge: finished.clone(), Completed: true, Grant: &grant}, nil
}

// TrackChallenges advances active challenges whose metric the event feeds.
// It returns the updates that completed a challenge.
func (c *Catalog) TrackChallenges(p *Profile, action string, payload Payload, now time.Time) []ChallengeUpdate {
	type step struct {
		id       string
		progress float64
	}
	var steps []step
	for _, ch := range p.ActiveChallenges {
		if d := ch.Metric.delta(action, payload); d > 0 {
			steps = append(steps, step{id: ch.ID, progress: ch.Progress + d})
		}
	}

	var completed []ChallengeUpdate
	for _, s := range steps {
		upd, err := c.ApplyProgress(p, s.id, s.progress, now)
		if err != nil {
			continue
		}
		if upd.Completed {
			completed = append(completed, upd)
		}
	}
	return completed
}

// ChallengeTemplates returns a copy of the template catalog.
func (c *Catalog) ChallengeTemplates() []ChallengeTemplate {
	out := make([]ChallengeTemplate, len(c.challenges))
	copy(out, c.challenges)
	return out
}
