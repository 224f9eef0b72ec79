package progression

import "fmt"

// Recognized actions.
const (
	ActionLogin             = "login"
	ActionDailyLogin        = "daily_login"
	ActionSaleCompleted     = "sale_completed"
	ActionPurchaseCompleted = "purchase_completed"
	ActionReviewReceived    = "review_received"
	ActionResponseSent      = "response_sent"
	ActionProductAdded      = "product_added"
	ActionProductUpdated    = "product_updated"
	ActionOrderFulfilled    = "order_fulfilled"
	ActionOrderCancelled    = "order_cancelled"
	ActionSocialShare       = "social_share"
	ActionReviewWritten     = "review_written"
	ActionQuestionAsked     = "question_asked"
	ActionAnswerGiven       = "answer_given"
	ActionFriendInvited     = "friend_invited"
)

// Op compares an observed value against a configured one.
type Op string

const (
	OpGT   Op = "gt"
	OpGTE  Op = "gte"
	OpLT   Op = "lt"
	OpLTE  Op = "lte"
	OpEQ   Op = "eq"
	OpTrue Op = "true"
)

func (o Op) valid() bool {
	switch o {
	case OpGT, OpGTE, OpLT, OpLTE, OpEQ, OpTrue:
		return true
	}
	return false
}

func (o Op) compare(got, want float64) bool {
	switch o {
	case OpGT:
		return got > want
	case OpGTE:
		return got >= want
	case OpLT:
		return got < want
	case OpLTE:
		return got <= want
	case OpEQ:
		return got == want
	case OpTrue:
		return got != 0
	}
	return false
}

// XPBonus adds XP when a payload field satisfies Op against Value.
type XPBonus struct {
	Name  string  `yaml:"name"`
	Field string  `yaml:"field"`
	Op    Op      `yaml:"op"`
	Value float64 `yaml:"value,omitempty"`
	XP    uint64  `yaml:"xp"`
}

func (b XPBonus) matches(payload Payload) bool {
	if b.Op == OpTrue {
		return payload.Bool(b.Field)
	}
	v, ok := payload.Float(b.Field)
	if !ok {
		return false
	}
	return b.Op.compare(v, b.Value)
}

// XPRule is the XP table entry for one action. PerStreakDay multiplies the
// login streak the event lands on.
type XPRule struct {
	Action       string      `yaml:"action"`
	Classes      []UserClass `yaml:"classes,omitempty"`
	Base         uint64      `yaml:"base"`
	PerStreakDay uint64      `yaml:"per_streak_day,omitempty"`
	Bonuses      []XPBonus   `yaml:"bonuses,omitempty"`
}

// XPFor computes the XP an action earns. streak is the login streak the
// event lands on; it only matters for rules with PerStreakDay. Unknown
// actions return zero together with ErrUnknownAction, which callers log
// and otherwise ignore. A known action that does not apply to class earns
// nothing.
func (c *Catalog) XPFor(action string, payload Payload, class UserClass, streak uint32) (uint64, error) {
	rule, ok := c.xpRules[action]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownAction, action)
	}
	if !classAllowed(rule.Classes, class) {
		return 0, nil
	}

	xp := rule.Base
	if rule.PerStreakDay > 0 {
		days := uint64(streak)
		if days == 0 {
			days = 1
		}
		xp = addSat(xp, mulSat(rule.PerStreakDay, days))
	}
	for _, b := range rule.Bonuses {
		if b.matches(payload) {
			xp = addSat(xp, b.XP)
		}
	}
	return xp, nil
}

// HasAction reports whether the catalog has an XP rule for action.
func (c *Catalog) HasAction(action string) bool {
	_, ok := c.xpRules[action]
	return ok
}

// XPRules returns the XP table in catalog order.
func (c *Catalog) XPRules() []XPRule {
	out := make([]XPRule, len(c.xpOrder))
	for i, a := range c.xpOrder {
		out[i] = c.xpRules[a]
	}
	return out
}

func classAllowed(classes []UserClass, class UserClass) bool {
	if len(classes) == 0 {
		return true
	}
	for _, c := range classes {
		if c == class {
			return true
		}
	}
	return false
}
