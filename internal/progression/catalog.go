package progression

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/gosimple/slug"
	"gopkg.in/yaml.v3"
)

// Catalog is the static rule set of the engine: level tables, XP rules,
// achievements, badges and challenge templates. It is built once, validated,
// and never modified afterwards, so one Catalog can be shared by every
// goroutine.
type Catalog struct {
	levels              map[UserClass][]LevelDef
	xpRules             map[string]XPRule
	xpOrder             []string
	achievements        []AchievementDef
	badges              []BadgeDef
	badgesByAchievement map[string][]BadgeDef
	challenges          []ChallengeTemplate
}

// CatalogFile is the YAML shape of a catalog. Sections left out of a file
// keep their built-in defaults.
type CatalogFile struct {
	Levels       map[UserClass][]LevelDef `yaml:"levels"`
	Actions      []XPRule                 `yaml:"actions"`
	Achievements []AchievementDef         `yaml:"achievements"`
	Badges       []BadgeDef               `yaml:"badges"`
	Challenges   []ChallengeTemplate      `yaml:"challenges"`
}

// DefaultCatalog returns the built-in catalog.
func DefaultCatalog() *Catalog {
	c, err := NewCatalog(defaultCatalogFile())
	if err != nil {
		panic(fmt.Sprintf("built-in catalog: %v", err))
	}
	return c
}

// LoadCatalog reads a YAML catalog from path.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading catalog: %w", err)
	}
	return ParseCatalog(data)
}

// ParseCatalog builds a catalog from YAML, filling omitted sections from
// the defaults.
func ParseCatalog(data []byte) (*Catalog, error) {
	var f CatalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: parsing yaml: %v", ErrInvalidCatalog, err)
	}
	def := defaultCatalogFile()
	if len(f.Levels) == 0 {
		f.Levels = def.Levels
	}
	if f.Actions == nil {
		f.Actions = def.Actions
	}
	if f.Achievements == nil {
		f.Achievements = def.Achievements
		if f.Badges == nil {
			f.Badges = def.Badges
		}
	}
	if f.Challenges == nil {
		f.Challenges = def.Challenges
	}
	return NewCatalog(f)
}

// NewCatalog validates f and builds a Catalog from it.
func NewCatalog(f CatalogFile) (*Catalog, error) {
	c := &Catalog{
		levels:              make(map[UserClass][]LevelDef, len(f.Levels)),
		xpRules:             make(map[string]XPRule, len(f.Actions)),
		badgesByAchievement: make(map[string][]BadgeDef),
	}

	if len(f.Levels[ClassVendor]) == 0 {
		return nil, fmt.Errorf("%w: missing vendor level table", ErrInvalidCatalog)
	}
	for class, table := range f.Levels {
		if !class.Valid() {
			return nil, fmt.Errorf("%w: level table for unknown class %q", ErrInvalidCatalog, class)
		}
		if err := validateLevels(class, table); err != nil {
			return nil, err
		}
		c.levels[class] = cloneLevels(table)
	}

	for _, r := range f.Actions {
		if r.Action == "" {
			return nil, fmt.Errorf("%w: xp rule without action", ErrInvalidCatalog)
		}
		if _, dup := c.xpRules[r.Action]; dup {
			return nil, fmt.Errorf("%w: duplicate xp rule %q", ErrInvalidCatalog, r.Action)
		}
		for _, b := range r.Bonuses {
			if b.Field == "" || !b.Op.valid() {
				return nil, fmt.Errorf("%w: bad bonus %q on %q", ErrInvalidCatalog, b.Name, r.Action)
			}
		}
		r.Classes = append([]UserClass(nil), r.Classes...)
		r.Bonuses = append([]XPBonus(nil), r.Bonuses...)
		c.xpRules[r.Action] = r
		c.xpOrder = append(c.xpOrder, r.Action)
	}

	seen := make(map[string]bool)
	for _, a := range f.Achievements {
		a.ID = catalogID(a.ID, a.Name)
		if a.ID == "" || seen[a.ID] {
			return nil, fmt.Errorf("%w: missing or duplicate achievement id %q", ErrInvalidCatalog, a.ID)
		}
		seen[a.ID] = true
		if len(a.Rules) == 0 && a.OnAction == "" {
			return nil, fmt.Errorf("%w: achievement %q has no rules", ErrInvalidCatalog, a.ID)
		}
		if a.Tier == "" {
			a.Tier = TierBronze
		}
		if !a.Tier.valid() {
			return nil, fmt.Errorf("%w: achievement %q has tier %q", ErrInvalidCatalog, a.ID, a.Tier)
		}
		for _, r := range a.Rules {
			if !knownMetric(r.Metric) || !r.Op.valid() {
				return nil, fmt.Errorf("%w: achievement %q rule %s %s", ErrInvalidCatalog, a.ID, r.Metric, r.Op)
			}
		}
		a.Classes = append([]UserClass(nil), a.Classes...)
		a.Rules = append([]Rule(nil), a.Rules...)
		c.achievements = append(c.achievements, a)
	}

	badgeSeen := make(map[string]bool)
	for _, b := range f.Badges {
		b.ID = catalogID(b.ID, b.Name)
		if b.ID == "" || badgeSeen[b.ID] {
			return nil, fmt.Errorf("%w: missing or duplicate badge id %q", ErrInvalidCatalog, b.ID)
		}
		badgeSeen[b.ID] = true
		if !seen[b.UnlockedBy] {
			return nil, fmt.Errorf("%w: badge %q unlocked by unknown achievement %q", ErrInvalidCatalog, b.ID, b.UnlockedBy)
		}
		c.badges = append(c.badges, b)
		c.badgesByAchievement[b.UnlockedBy] = append(c.badgesByAchievement[b.UnlockedBy], b)
	}

	tplSeen := make(map[string]bool)
	for _, t := range f.Challenges {
		t.ID = catalogID(t.ID, t.Name)
		if t.ID == "" || tplSeen[t.ID] {
			return nil, fmt.Errorf("%w: missing or duplicate challenge id %q", ErrInvalidCatalog, t.ID)
		}
		tplSeen[t.ID] = true
		if !t.Type.valid() || !t.Metric.valid() || t.Goal <= 0 {
			return nil, fmt.Errorf("%w: challenge %q (type %q, metric %q, goal %v)", ErrInvalidCatalog, t.ID, t.Type, t.Metric, t.Goal)
		}
		c.challenges = append(c.challenges, t)
	}

	return c, nil
}

// NewProfile returns a zeroed profile for key, positioned on the first level.
func (c *Catalog) NewProfile(key ProfileKey, now time.Time) *Profile {
	p := &Profile{
		ProfileID: key.ID,
		UserClass: key.Class,
		CreatedAt: now.UTC(),
		UpdatedAt: now.UTC(),
	}
	c.syncLevel(p)
	return p
}

func validateLevels(class UserClass, table []LevelDef) error {
	if len(table) == 0 {
		return fmt.Errorf("%w: empty level table for %s", ErrInvalidCatalog, class)
	}
	if table[0].Threshold != 0 {
		return fmt.Errorf("%w: first %s level must start at 0 xp", ErrInvalidCatalog, class)
	}
	for i := 1; i < len(table); i++ {
		if table[i].Threshold <= table[i-1].Threshold || table[i].Level <= table[i-1].Level {
			return fmt.Errorf("%w: %s levels must increase (row %d)", ErrInvalidCatalog, class, i)
		}
	}
	return nil
}

func cloneLevels(in []LevelDef) []LevelDef {
	out := make([]LevelDef, len(in))
	for i, l := range in {
		l.Rewards = append([]string(nil), l.Rewards...)
		out[i] = l
	}
	return out
}

// catalogID keeps an explicit id or derives a snake_case one from name.
func catalogID(id, name string) string {
	if id = strings.TrimSpace(id); id != "" {
		return id
	}
	return strings.ReplaceAll(slug.Make(name), "-", "_")
}
