package progression

import (
	"testing"
	"time"
)

// testNow is a Wednesday afternoon.
var testNow = time.Date(2026, 3, 11, 14, 30, 0, 0, time.UTC)

func TestUpdateStreak_Login(t *testing.T) {
	tests := []struct {
		name         string
		lastActivity time.Time
		streak       uint32
		want         uint32
	}{
		{"yesterday extends", testNow.AddDate(0, 0, -1), 3, 4},
		{"yesterday just before midnight", time.Date(2026, 3, 10, 23, 59, 0, 0, time.UTC), 3, 4},
		{"today unchanged", testNow.Add(-6 * time.Hour), 3, 3},
		{"today after midnight unchanged", time.Date(2026, 3, 11, 0, 1, 0, 0, time.UTC), 5, 5},
		{"two days ago resets", testNow.AddDate(0, 0, -2), 9, 1},
		{"long gap resets", testNow.AddDate(0, -2, 0), 40, 1},
		{"no prior activity", time.Time{}, 0, 1},
		{"today with zero streak", testNow.Add(-time.Hour), 0, 1},
		{"future activity unchanged", testNow.Add(48 * time.Hour), 2, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &Profile{LastActivity: tt.lastActivity, Streaks: Streaks{Login: tt.streak}}
			got := UpdateStreak(p, ActionLogin, testNow)
			if got != tt.want {
				t.Errorf("UpdateStreak = %d, want %d", got, tt.want)
			}
			if p.Streaks.Login != tt.want {
				t.Errorf("Streaks.Login = %d, want %d", p.Streaks.Login, tt.want)
			}
			if !p.LastActivity.Equal(testNow) {
				t.Errorf("LastActivity = %v, want %v", p.LastActivity, testNow)
			}
		})
	}
}

func TestUpdateStreak_UsesUTCDays(t *testing.T) {
	riyadh := time.FixedZone("AST", 3*3600)
	// 01:00 local on the 11th is still the 10th in UTC.
	last := time.Date(2026, 3, 11, 1, 0, 0, 0, riyadh)
	p := &Profile{LastActivity: last, Streaks: Streaks{Login: 2}}
	if got := UpdateStreak(p, ActionDailyLogin, testNow); got != 3 {
		t.Errorf("UpdateStreak = %d, want 3", got)
	}
}

func TestUpdateStreak_SalesIncrementsEveryEvent(t *testing.T) {
	p := &Profile{LastActivity: testNow}
	for i := 1; i <= 3; i++ {
		if got := UpdateStreak(p, ActionSaleCompleted, testNow); got != uint32(i) {
			t.Errorf("sale %d: streak = %d, want %d", i, got, i)
		}
	}
	// A gap of a week does not reset the sales streak.
	if got := UpdateStreak(p, ActionSaleCompleted, testNow.AddDate(0, 0, 7)); got != 4 {
		t.Errorf("streak after gap = %d, want 4", got)
	}
	if p.Streaks.Login != 0 {
		t.Errorf("login streak = %d, want 0", p.Streaks.Login)
	}
}

func TestUpdateStreak_OtherActionsOnlyStampActivity(t *testing.T) {
	p := &Profile{Streaks: Streaks{Login: 4, Sales: 2}}
	got := UpdateStreak(p, ActionReviewReceived, testNow)
	if got != 4 {
		t.Errorf("returned %d, want login streak 4", got)
	}
	if p.Streaks.Sales != 2 || p.Streaks.Login != 4 {
		t.Errorf("streaks changed: %+v", p.Streaks)
	}
	if !p.LastActivity.Equal(testNow) {
		t.Error("LastActivity not stamped")
	}
}
