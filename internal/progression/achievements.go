package progression

import (
	"strings"
	"time"
)

// Tier represents an achievement's or badge's difficulty level.
type Tier string

const (
	TierBronze   Tier = "bronze"
	TierSilver   Tier = "silver"
	TierGold     Tier = "gold"
	TierPlatinum Tier = "platinum"
)

func (t Tier) valid() bool {
	switch t {
	case TierBronze, TierSilver, TierGold, TierPlatinum:
		return true
	}
	return false
}

// Category groups related achievements.
type Category string

const (
	CategorySales      Category = "sales"
	CategoryQuality    Category = "quality"
	CategoryEngagement Category = "engagement"
	CategoryGrowth     Category = "growth"
)

// Rule is one condition of an achievement. Metric names a profile value
// (see profileMetrics) or a payload field as "payload.<field>".
type Rule struct {
	Metric string  `yaml:"metric"`
	Op     Op      `yaml:"op"`
	Value  float64 `yaml:"value"`
}

const payloadMetricPrefix = "payload."

var profileMetrics = map[string]func(*Profile) float64{
	"total_sales":       func(p *Profile) float64 { return float64(p.Statistics.TotalSales) },
	"total_revenue":     func(p *Profile) float64 { return p.Statistics.TotalRevenue },
	"average_rating":    func(p *Profile) float64 { return p.Statistics.AverageRating },
	"review_count":      func(p *Profile) float64 { return float64(p.Statistics.ReviewCount) },
	"five_star_reviews": func(p *Profile) float64 { return float64(p.Statistics.FiveStarReviews) },
	"response_time":     func(p *Profile) float64 { return p.Statistics.ResponseTimeMinutes },
	"response_count":    func(p *Profile) float64 { return float64(p.Statistics.ResponseCount) },
	"completion_rate":   func(p *Profile) float64 { return p.Statistics.CompletionRate },
	"orders_fulfilled":  func(p *Profile) float64 { return float64(p.Statistics.OrdersFulfilled) },
	"orders_cancelled":  func(p *Profile) float64 { return float64(p.Statistics.OrdersCancelled) },
	"login_streak":      func(p *Profile) float64 { return float64(p.Streaks.Login) },
	"sales_streak":      func(p *Profile) float64 { return float64(p.Streaks.Sales) },
	"level":             func(p *Profile) float64 { return float64(p.XP.Level) },
	"total_xp":          func(p *Profile) float64 { return float64(p.XP.Total) },
}

func knownMetric(metric string) bool {
	if field, ok := strings.CutPrefix(metric, payloadMetricPrefix); ok {
		return field != ""
	}
	_, ok := profileMetrics[metric]
	return ok
}

func (r Rule) holds(p *Profile, payload Payload) bool {
	if field, ok := strings.CutPrefix(r.Metric, payloadMetricPrefix); ok {
		if r.Op == OpTrue {
			return payload.Bool(field)
		}
		v, ok := payload.Float(field)
		return ok && r.Op.compare(v, r.Value)
	}
	read, ok := profileMetrics[r.Metric]
	if !ok {
		return false
	}
	return r.Op.compare(read(p), r.Value)
}

// AchievementDef describes a single unlockable goal. All rules must hold.
// OnAction, when set, limits evaluation to events of that action.
type AchievementDef struct {
	ID          string      `yaml:"id"`
	Name        string      `yaml:"name"`
	Description string      `yaml:"description"`
	Category    Category    `yaml:"category"`
	Tier        Tier        `yaml:"tier"`
	XPReward    uint64      `yaml:"xp_reward"`
	Classes     []UserClass `yaml:"classes,omitempty"`
	OnAction    string      `yaml:"on_action,omitempty"`
	Rules       []Rule      `yaml:"rules"`
}

func (d AchievementDef) satisfied(p *Profile, action string, payload Payload) bool {
	if !classAllowed(d.Classes, p.UserClass) {
		return false
	}
	if d.OnAction != "" && d.OnAction != action {
		return false
	}
	for _, r := range d.Rules {
		if !r.holds(p, payload) {
			return false
		}
	}
	return true
}

// BadgeDef is a cosmetic awarded together with an achievement.
type BadgeDef struct {
	ID         string `yaml:"id"`
	Name       string `yaml:"name"`
	Tier       Tier   `yaml:"tier"`
	UnlockedBy string `yaml:"unlocked_by"`
}

// EvaluateAchievements unlocks every catalog achievement whose rules hold
// against the profile as it stands after the event's statistics update.
// Unlocked ids are skipped without re-checking their rules, so an
// achievement is granted once and never revoked. Each unlock pays its XP
// through GrantXP and awards linked badges; because that XP can satisfy
// further rules the pass repeats until nothing new unlocks.
func (c *Catalog) EvaluateAchievements(p *Profile, action string, payload Payload, now time.Time) []UnlockedAchievement {
	now = now.UTC()
	var unlocked []UnlockedAchievement
	for {
		progressed := false
		for _, def := range c.achievements {
			if p.HasAchievement(def.ID) || !def.satisfied(p, action, payload) {
				continue
			}
			ua := UnlockedAchievement{
				ID:         def.ID,
				Name:       def.Name,
				Category:   def.Category,
				Tier:       def.Tier,
				XPReward:   def.XPReward,
				UnlockedAt: now,
			}
			p.Achievements = append(p.Achievements, ua)
			if def.XPReward > 0 {
				c.GrantXP(p, def.XPReward, "achievement: "+def.Name)
			}
			c.awardBadges(p, def.ID, now)
			unlocked = append(unlocked, ua)
			progressed = true
		}
		if !progressed {
			return unlocked
		}
	}
}

func (c *Catalog) awardBadges(p *Profile, achievementID string, now time.Time) {
	for _, b := range c.badgesByAchievement[achievementID] {
		if p.HasBadge(b.ID) {
			continue
		}
		p.Badges = append(p.Badges, Badge{ID: b.ID, Name: b.Name, Tier: b.Tier, EarnedAt: now})
	}
}

// Achievements returns a copy of the achievement catalog.
func (c *Catalog) Achievements() []AchievementDef {
	out := make([]AchievementDef, len(c.achievements))
	copy(out, c.achievements)
	return out
}

// Badges returns a copy of the badge catalog.
func (c *Catalog) Badges() []BadgeDef {
	out := make([]BadgeDef, len(c.badges))
	copy(out, c.badges)
	return out
}
