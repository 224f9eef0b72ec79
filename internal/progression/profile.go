package progression

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// UserClass selects the level table and the rules that apply to a profile.
type UserClass string

const (
	ClassVendor   UserClass = "vendor"
	ClassCustomer UserClass = "customer"
)

// ParseUserClass maps a user type string to a UserClass. An empty string
// defaults to vendor.
func ParseUserClass(s string) (UserClass, error) {
	switch c := UserClass(strings.ToLower(strings.TrimSpace(s))); c {
	case "", ClassVendor:
		return ClassVendor, nil
	case ClassCustomer:
		return ClassCustomer, nil
	default:
		return "", fmt.Errorf("%w: unknown user class %q", ErrInvalidEvent, s)
	}
}

// Valid reports whether c is a known class.
func (c UserClass) Valid() bool {
	return c == ClassVendor || c == ClassCustomer
}

// ProfileKey identifies one profile document.
type ProfileKey struct {
	ID    string
	Class UserClass
}

func (k ProfileKey) String() string {
	return string(k.Class) + ":" + k.ID
}

// Validate checks that the key can address a profile.
func (k ProfileKey) Validate() error {
	if strings.TrimSpace(k.ID) == "" {
		return fmt.Errorf("%w: empty profile id", ErrInvalidEvent)
	}
	if !k.Class.Valid() {
		return fmt.Errorf("%w: unknown user class %q", ErrInvalidEvent, k.Class)
	}
	return nil
}

// XP is the experience state of a profile. Total never decreases; the other
// fields are derived from it through the level curve. At the top level
// NextLevelThreshold equals CurrentLevelFloor.
type XP struct {
	Total              uint64 `json:"total"`
	Level              uint32 `json:"level"`
	CurrentLevelFloor  uint64 `json:"currentLevelFloor"`
	NextLevelThreshold uint64 `json:"nextLevelThreshold"`
}

type Currency struct {
	Coins uint64 `json:"coins"`
	Gems  uint64 `json:"gems"`
}

type Streaks struct {
	Login    uint32 `json:"login"`
	Sales    uint32 `json:"sales"`
	Activity uint32 `json:"activity"`
}

// Statistics are the counters achievement rules and leaderboards read.
type Statistics struct {
	TotalSales          uint64  `json:"totalSales"`
	TotalRevenue        float64 `json:"totalRevenue"`
	AverageRating       float64 `json:"averageRating"`
	ReviewCount         uint64  `json:"reviewCount"`
	FiveStarReviews     uint64  `json:"fiveStarReviews"`
	ResponseTimeMinutes float64 `json:"responseTimeMinutes"`
	ResponseCount       uint64  `json:"responseCount"`
	CompletionRate      float64 `json:"completionRate"`
	OrdersFulfilled     uint64  `json:"ordersFulfilled"`
	OrdersCancelled     uint64  `json:"ordersCancelled"`
}

// UnlockedAchievement is a permanent record of an achievement grant.
type UnlockedAchievement struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Category   Category  `json:"category"`
	Tier       Tier      `json:"tier"`
	XPReward   uint64    `json:"xpReward"`
	UnlockedAt time.Time `json:"unlockedAt"`
}

type Badge struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	Tier     Tier      `json:"tier"`
	EarnedAt time.Time `json:"earnedAt"`
}

// Profile is the per-user progression document.
type Profile struct {
	ProfileID           string                `json:"profileId"`
	UserClass           UserClass             `json:"userClass"`
	XP                  XP                    `json:"xp"`
	Currency            Currency              `json:"currency"`
	Streaks             Streaks               `json:"streaks"`
	Achievements        []UnlockedAchievement `json:"achievements"`
	Badges              []Badge               `json:"badges"`
	ActiveChallenges    []Challenge           `json:"activeChallenges"`
	CompletedChallenges []Challenge           `json:"completedChallenges"`
	Statistics          Statistics            `json:"statistics"`
	LastActivity        time.Time             `json:"lastActivity"`

	// Rank cache, written only by the leaderboard refresh.
	LeaderboardRank int `json:"leaderboardRank"`
	CategoryRank    int `json:"categoryRank"`

	// Version is the optimistic concurrency token. Zero means not yet stored.
	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Key returns the profile's storage key.
func (p *Profile) Key() ProfileKey {
	return ProfileKey{ID: p.ProfileID, Class: p.UserClass}
}

// HasAchievement reports whether the achievement id is already unlocked.
func (p *Profile) HasAchievement(id string) bool {
	for _, a := range p.Achievements {
		if a.ID == id {
			return true
		}
	}
	return false
}

// HasBadge reports whether the badge id has been earned.
func (p *Profile) HasBadge(id string) bool {
	for _, b := range p.Badges {
		if b.ID == id {
			return true
		}
	}
	return false
}

func (p *Profile) activeIndex(id string) int {
	for i := range p.ActiveChallenges {
		if p.ActiveChallenges[i].ID == id {
			return i
		}
	}
	return -1
}

func (p *Profile) completedChallenge(id string) bool {
	for i := len(p.CompletedChallenges) - 1; i >= 0; i-- {
		if p.CompletedChallenges[i].ID == id {
			return true
		}
	}
	return false
}

// Clone returns a deep copy of p.
func (p *Profile) Clone() *Profile {
	cp := *p
	cp.Achievements = append([]UnlockedAchievement(nil), p.Achievements...)
	cp.Badges = append([]Badge(nil), p.Badges...)
	cp.ActiveChallenges = cloneChallenges(p.ActiveChallenges)
	cp.CompletedChallenges = cloneChallenges(p.CompletedChallenges)
	return &cp
}

func cloneChallenges(in []Challenge) []Challenge {
	if in == nil {
		return nil
	}
	out := make([]Challenge, len(in))
	for i, ch := range in {
		out[i] = ch.clone()
	}
	return out
}

// addSat adds without wrapping past the uint64 range.
func addSat(a, b uint64) uint64 {
	if math.MaxUint64-a < b {
		return math.MaxUint64
	}
	return a + b
}

func mulSat(a, b uint64) uint64 {
	if a != 0 && b > math.MaxUint64/a {
		return math.MaxUint64
	}
	return a * b
}
