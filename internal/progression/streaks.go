package progression

import "time"

// IsLoginAction reports whether action drives the day-gated login streak.
func IsLoginAction(action string) bool {
	return action == ActionLogin || action == ActionDailyLogin
}

// IsSaleAction reports whether action drives the sales streak.
func IsSaleAction(action string) bool {
	return action == ActionSaleCompleted || action == ActionPurchaseCompleted
}

// utcDay truncates t to midnight UTC.
func utcDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// NextLoginStreak returns the login streak a login at now would produce,
// without modifying p. Days are compared in UTC: yesterday extends the
// streak, today keeps it, anything older or no prior activity restarts at 1.
func NextLoginStreak(p *Profile, now time.Time) uint32 {
	if p.LastActivity.IsZero() {
		return 1
	}
	last := utcDay(p.LastActivity)
	today := utcDay(now)
	switch {
	case !last.Before(today):
		if p.Streaks.Login == 0 {
			return 1
		}
		return p.Streaks.Login
	case last.AddDate(0, 0, 1).Equal(today):
		return p.Streaks.Login + 1
	default:
		return 1
	}
}

// UpdateStreak advances the streak the action belongs to and stamps
// LastActivity. It returns the value of that streak, or the login streak
// for actions that drive none.
//
// Sale actions bump the sales streak on every event with no day gating.
// The sales streak therefore counts consecutive sales rather than
// consecutive selling days, unlike the login streak.
func UpdateStreak(p *Profile, action string, now time.Time) uint32 {
	var v uint32
	switch {
	case IsLoginAction(action):
		p.Streaks.Login = NextLoginStreak(p, now)
		v = p.Streaks.Login
	case IsSaleAction(action):
		p.Streaks.Sales++
		v = p.Streaks.Sales
	default:
		v = p.Streaks.Login
	}
	p.LastActivity = now.UTC()
	return v
}
