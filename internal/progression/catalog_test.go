package progression

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultCatalog(t *testing.T) {
	c := DefaultCatalog()
	if len(c.Levels(ClassVendor)) != 5 || len(c.Levels(ClassCustomer)) != 4 {
		t.Error("unexpected level table sizes")
	}
	if len(c.Badges()) == 0 || len(c.ChallengeTemplates()) != 4 {
		t.Error("default catalog incomplete")
	}
	for _, b := range c.Badges() {
		found := false
		for _, a := range c.Achievements() {
			if a.ID == b.UnlockedBy {
				found = true
			}
		}
		if !found {
			t.Errorf("badge %s points at unknown achievement %s", b.ID, b.UnlockedBy)
		}
	}
}

const sampleCatalog = `
levels:
  vendor:
    - {level: 1, threshold: 0, name: Start}
    - {level: 2, threshold: 100, name: Next}
achievements:
  - name: Top Seller
    category: sales
    xp_reward: 25
    rules:
      - {metric: total_sales, op: gte, value: 3}
  - id: whale
    name: Whale
    tier: gold
    on_action: sale_completed
    rules:
      - {metric: payload.amount, op: gt, value: 9000}
challenges:
  - name: Weekend Rush
    type: weekly
    metric: sales
    goal: 20
    rewards: {xp: 10, coins: 5}
`

func TestParseCatalog(t *testing.T) {
	c, err := ParseCatalog([]byte(sampleCatalog))
	if err != nil {
		t.Fatalf("ParseCatalog: %v", err)
	}

	if got := c.LevelOf(150, ClassVendor); got.Level != 2 || got.Name != "Next" {
		t.Errorf("LevelOf(150) = %+v", got)
	}
	// The customer table is not in the file, so customers use the vendor table.
	if got := c.LevelOf(150, ClassCustomer); got.Level != 2 {
		t.Errorf("customer LevelOf(150) = %+v", got)
	}

	achievements := c.Achievements()
	if len(achievements) != 2 || achievements[0].ID != "top_seller" || achievements[0].Tier != TierBronze {
		t.Errorf("achievements = %+v", achievements)
	}
	if achievements[1].Tier != TierGold || achievements[1].OnAction != ActionSaleCompleted {
		t.Errorf("whale = %+v", achievements[1])
	}
	if len(c.Badges()) != 0 {
		t.Error("default badges should not apply to a custom achievement list")
	}

	tpls := c.ChallengeTemplates()
	if len(tpls) != 1 || tpls[0].ID != "weekend_rush" || tpls[0].Rewards.Coins != 5 {
		t.Errorf("challenges = %+v", tpls)
	}

	// Actions were omitted and fall back to the built-in table.
	if xp, err := c.XPFor(ActionSaleCompleted, Payload{}, ClassVendor, 0); err != nil || xp != 10 {
		t.Errorf("XPFor(sale) = %d, %v", xp, err)
	}
}

func TestLoadCatalog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	if err := os.WriteFile(path, []byte(sampleCatalog), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadCatalog(path); err != nil {
		t.Fatalf("LoadCatalog: %v", err)
	}
	if _, err := LoadCatalog(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestParseCatalog_EmptyUsesDefaults(t *testing.T) {
	c, err := ParseCatalog([]byte("{}"))
	if err != nil {
		t.Fatalf("ParseCatalog: %v", err)
	}
	if len(c.Achievements()) != len(DefaultCatalog().Achievements()) || len(c.Badges()) == 0 {
		t.Error("empty file should yield the built-in catalog")
	}
}

func TestParseCatalog_Invalid(t *testing.T) {
	tests := map[string]string{
		"bad yaml": "levels: [",
		"first level not zero": `
levels:
  vendor:
    - {level: 1, threshold: 10, name: a}`,
		"levels not increasing": `
levels:
  vendor:
    - {level: 1, threshold: 0, name: a}
    - {level: 2, threshold: 0, name: b}`,
		"missing vendor table": `
levels:
  customer:
    - {level: 1, threshold: 0, name: a}`,
		"unknown class": `
levels:
  vendor:
    - {level: 1, threshold: 0, name: a}
  reseller:
    - {level: 1, threshold: 0, name: a}`,
		"duplicate action": `
actions:
  - {action: login, base: 1}
  - {action: login, base: 2}`,
		"bonus without field": `
actions:
  - action: login
    bonuses:
      - {name: x, op: gt, value: 1, xp: 1}`,
		"unknown metric": `
achievements:
  - id: a
    rules:
      - {metric: charisma, op: gte, value: 1}`,
		"bad op": `
achievements:
  - id: a
    rules:
      - {metric: total_sales, op: approx, value: 1}`,
		"no rules": `
achievements:
  - id: a`,
		"duplicate achievement": `
achievements:
  - {id: a, rules: [{metric: total_sales, op: gte, value: 1}]}
  - {id: a, rules: [{metric: total_sales, op: gte, value: 2}]}`,
		"badge for unknown achievement": `
badges:
  - {id: b, unlocked_by: ghost}`,
		"zero goal": `
challenges:
  - {id: c, type: daily, metric: sales, goal: 0}`,
		"unknown challenge metric": `
challenges:
  - {id: c, type: daily, metric: smiles, goal: 1}`,
	}

	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ParseCatalog([]byte(doc))
			if !errors.Is(err, ErrInvalidCatalog) {
				t.Errorf("err = %v, want ErrInvalidCatalog", err)
			}
		})
	}
}

func TestCatalogID(t *testing.T) {
	tests := []struct{ id, name, want string }{
		{"explicit", "Ignored Name", "explicit"},
		{"", "Top Seller", "top_seller"},
		{"", "Sell 10,000 This Week!", "sell_10_000_this_week"},
		{"  ", "  ", ""},
	}
	for _, tt := range tests {
		if got := catalogID(tt.id, tt.name); got != tt.want {
			t.Errorf("catalogID(%q, %q) = %q, want %q", tt.id, tt.name, got, tt.want)
		}
	}
}
