package progression

import (
	"math"
	"sort"
)

// LevelDef is one row of a level table.
type LevelDef struct {
	Level     uint32   `yaml:"level"`
	Threshold uint64   `yaml:"threshold"`
	Name      string   `yaml:"name"`
	Color     string   `yaml:"color"`
	Icon      string   `yaml:"icon"`
	Rewards   []string `yaml:"rewards,omitempty"`
}

// LevelInfo describes where a total XP value sits on the level curve.
type LevelInfo struct {
	Level            uint32   `json:"level"`
	Name             string   `json:"name"`
	Color            string   `json:"color,omitempty"`
	Icon             string   `json:"icon,omitempty"`
	ProgressPercent  float64  `json:"progressPercent"`
	XPToNext         uint64   `json:"xpToNext"`
	CurrentThreshold uint64   `json:"currentThreshold"`
	NextThreshold    uint64   `json:"nextThreshold"`
	NextLevel        uint32   `json:"nextLevel"`
	Rewards          []string `json:"rewards,omitempty"`
}

// Grant is the outcome of one XP award.
type Grant struct {
	Amount   uint64 `json:"amount"`
	Reason   string `json:"reason"`
	LevelUp  bool   `json:"levelUp"`
	OldLevel uint32 `json:"oldLevel"`
	NewLevel uint32 `json:"newLevel"`
}

// LevelOf maps total XP to its level. Classes without a table use the
// vendor table.
func (c *Catalog) LevelOf(totalXP uint64, class UserClass) LevelInfo {
	table := c.levelTable(class)
	// Tables are validated non-empty with a zero first threshold.
	idx := sort.Search(len(table), func(i int) bool { return table[i].Threshold > totalXP }) - 1
	if idx < 0 {
		idx = 0
	}
	cur := table[idx]
	info := LevelInfo{
		Level:            cur.Level,
		Name:             cur.Name,
		Color:            cur.Color,
		Icon:             cur.Icon,
		CurrentThreshold: cur.Threshold,
		Rewards:          append([]string(nil), cur.Rewards...),
	}

	if idx == len(table)-1 {
		info.ProgressPercent = 100
		info.NextThreshold = cur.Threshold
		info.NextLevel = cur.Level
		return info
	}

	next := table[idx+1]
	span := float64(next.Threshold - cur.Threshold)
	pct := float64(totalXP-cur.Threshold) / span * 100
	info.ProgressPercent = math.Min(100, math.Max(0, pct))
	info.XPToNext = next.Threshold - totalXP
	info.NextThreshold = next.Threshold
	info.NextLevel = next.Level
	return info
}

// GrantXP is the single path through which XP reaches a profile. Events,
// achievements and challenge payouts all call it so that level changes are
// computed in one place.
func (c *Catalog) GrantXP(p *Profile, amount uint64, reason string) Grant {
	old := p.XP.Level
	p.XP.Total = addSat(p.XP.Total, amount)
	c.syncLevel(p)
	return Grant{
		Amount:   amount,
		Reason:   reason,
		LevelUp:  p.XP.Level > old,
		OldLevel: old,
		NewLevel: p.XP.Level,
	}
}

func (c *Catalog) syncLevel(p *Profile) {
	info := c.LevelOf(p.XP.Total, p.UserClass)
	p.XP.Level = info.Level
	p.XP.CurrentLevelFloor = info.CurrentThreshold
	p.XP.NextLevelThreshold = info.NextThreshold
}

func (c *Catalog) levelTable(class UserClass) []LevelDef {
	if t, ok := c.levels[class]; ok && len(t) > 0 {
		return t
	}
	return c.levels[ClassVendor]
}

// Levels returns a copy of the level table for class.
func (c *Catalog) Levels(class UserClass) []LevelDef {
	t := c.levelTable(class)
	out := make([]LevelDef, len(t))
	copy(out, t)
	return out
}
