package progression

func defaultCatalogFile() CatalogFile {
	return CatalogFile{
		Levels:       defaultLevels(),
		Actions:      defaultXPRules(),
		Achievements: defaultAchievements(),
		Badges:       defaultBadges(),
		Challenges:   defaultChallenges(),
	}
}

func defaultLevels() map[UserClass][]LevelDef {
	return map[UserClass][]LevelDef{
		ClassVendor: {
			{Level: 1, Threshold: 0, Name: "Rookie Seller", Color: "#4CAF50", Icon: "🌱",
				Rewards: []string{"Basic platform access", "5 free product listings"}},
			{Level: 5, Threshold: 5000, Name: "Pro Seller", Color: "#2196F3", Icon: "⭐",
				Rewards: []string{"10% commission discount", "Advanced analytics", "Pro seller badge"}},
			{Level: 10, Threshold: 15000, Name: "Legendary Seller", Color: "#FF9800", Icon: "🏆",
				Rewards: []string{"20% commission discount", "Priority support", "Featured in search"}},
			{Level: 20, Threshold: 50000, Name: "Diamond Seller", Color: "#9C27B0", Icon: "💎",
				Rewards: []string{"40% commission discount", "Dedicated store manager", "Automated negotiation"}},
			{Level: 50, Threshold: 200000, Name: "Trade Emperor", Color: "#FF5722", Icon: "👑",
				Rewards: []string{"0% commission for 3 months", "Diamond business account", "24/7 support"}},
		},
		ClassCustomer: {
			{Level: 1, Threshold: 0, Name: "New Explorer", Color: "#4CAF50", Icon: "🎯",
				Rewards: []string{"10% welcome discount"}},
			{Level: 10, Threshold: 5000, Name: "Deal Hunter", Color: "#2196F3", Icon: "🎪",
				Rewards: []string{"Monthly prize draw", "Exclusive offers"}},
			{Level: 25, Threshold: 15000, Name: "Shopping Expert", Color: "#FF9800", Icon: "🛒",
				Rewards: []string{"Free shipping", "Premium care"}},
			{Level: 50, Threshold: 50000, Name: "Market Sultan", Color: "#9C27B0", Icon: "👑",
				Rewards: []string{"Personal shopping advisor", "Monthly gifts"}},
		},
	}
}

func defaultXPRules() []XPRule {
	vendor := []UserClass{ClassVendor}
	customer := []UserClass{ClassCustomer}
	return []XPRule{

		// ── Sales ───────────────────────────────────────────────────────────

		{Action: ActionSaleCompleted, Classes: vendor, Base: 10, Bonuses: []XPBonus{
			{Name: "large_sale", Field: "amount", Op: OpGT, Value: 1000, XP: 50},
			{Name: "repeat_customer", Field: "repeatCustomer", Op: OpTrue, XP: 25},
		}},
		{Action: ActionPurchaseCompleted, Classes: customer, Base: 10, Bonuses: []XPBonus{
			{Name: "large_purchase", Field: "amount", Op: OpGT, Value: 1000, XP: 30},
			{Name: "repeat_purchase", Field: "repeatPurchase", Op: OpTrue, XP: 20},
		}},

		// ── Quality ─────────────────────────────────────────────────────────

		{Action: ActionReviewReceived, Classes: vendor, Bonuses: []XPBonus{
			{Name: "five_star_rating", Field: "rating", Op: OpEQ, Value: 5, XP: 20},
			{Name: "positive_review", Field: "rating", Op: OpEQ, Value: 4, XP: 15},
		}},
		{Action: ActionOrderFulfilled, Classes: vendor, Bonuses: []XPBonus{
			{Name: "on_time_shipping", Field: "onTime", Op: OpTrue, XP: 10},
		}},
		{Action: ActionOrderCancelled, Classes: vendor},

		// ── Engagement ──────────────────────────────────────────────────────

		{Action: ActionDailyLogin, PerStreakDay: 5},
		{Action: ActionLogin, PerStreakDay: 5},
		{Action: ActionResponseSent, Classes: vendor, Bonuses: []XPBonus{
			{Name: "quick_reply", Field: "responseTime", Op: OpLTE, Value: 5, XP: 5},
		}},
		{Action: ActionProductUpdated, Classes: vendor, Base: 3},
		{Action: ActionSocialShare, Base: 3},

		// ── Growth ──────────────────────────────────────────────────────────

		{Action: ActionProductAdded, Classes: vendor, Base: 5},

		// ── Community ───────────────────────────────────────────────────────

		{Action: ActionReviewWritten, Classes: customer, Base: 15, Bonuses: []XPBonus{
			{Name: "photo_review", Field: "hasPhoto", Op: OpTrue, XP: 10},
		}},
		{Action: ActionQuestionAsked, Classes: customer, Base: 5},
		{Action: ActionAnswerGiven, Classes: customer, Base: 10},
		{Action: ActionFriendInvited, Classes: customer, Base: 50},
	}
}

func defaultAchievements() []AchievementDef {
	vendor := []UserClass{ClassVendor}
	customer := []UserClass{ClassCustomer}
	return []AchievementDef{

		// ── Sales ───────────────────────────────────────────────────────────

		{
			ID: "first_sale", Name: "First Sale",
			Description: "Complete your first sale",
			Category:    CategorySales, Tier: TierBronze, Classes: vendor,
			Rules: []Rule{{Metric: "total_sales", Op: OpGTE, Value: 1}},
		},
		{
			ID: "sales_10", Name: "Ten Sales",
			Description: "Complete 10 sales",
			Category:    CategorySales, Tier: TierBronze, XPReward: 100, Classes: vendor,
			Rules: []Rule{{Metric: "total_sales", Op: OpGTE, Value: 10}},
		},
		{
			ID: "sales_50", Name: "Fifty Sales",
			Description: "Complete 50 sales",
			Category:    CategorySales, Tier: TierSilver, XPReward: 500, Classes: vendor,
			Rules: []Rule{{Metric: "total_sales", Op: OpGTE, Value: 50}},
		},
		{
			ID: "sales_100", Name: "Hundred Sales",
			Description: "Complete 100 sales",
			Category:    CategorySales, Tier: TierGold, XPReward: 1000, Classes: vendor,
			Rules: []Rule{{Metric: "total_sales", Op: OpGTE, Value: 100}},
		},
		{
			ID: "sales_1000", Name: "Thousand Sales",
			Description: "Complete 1000 sales",
			Category:    CategorySales, Tier: TierPlatinum, XPReward: 1000, Classes: vendor,
			Rules: []Rule{{Metric: "total_sales", Op: OpGTE, Value: 1000}},
		},
		{
			ID: "big_deal", Name: "Big Deal",
			Description: "Close a single sale worth 5000 or more",
			Category:    CategorySales, Tier: TierSilver, XPReward: 150, Classes: vendor,
			OnAction: ActionSaleCompleted,
			Rules:    []Rule{{Metric: "payload.amount", Op: OpGTE, Value: 5000}},
		},
		{
			ID: "sales_streak_10", Name: "On a Roll",
			Description: "Reach a sales streak of 10",
			Category:    CategorySales, Tier: TierSilver, XPReward: 100, Classes: vendor,
			Rules: []Rule{{Metric: "sales_streak", Op: OpGTE, Value: 10}},
		},

		// ── Quality ─────────────────────────────────────────────────────────

		{
			ID: "first_five_star", Name: "First Five Stars",
			Description: "Receive your first five-star review",
			Category:    CategoryQuality, Tier: TierBronze, XPReward: 20, Classes: vendor,
			Rules: []Rule{{Metric: "five_star_reviews", Op: OpGTE, Value: 1}},
		},
		{
			ID: "five_star_rating", Name: "Five-Star Seller",
			Description: "Hold an average rating of 4.9 or more across 10 reviews",
			Category:    CategoryQuality, Tier: TierGold, XPReward: 200, Classes: vendor,
			Rules: []Rule{
				{Metric: "review_count", Op: OpGTE, Value: 10},
				{Metric: "average_rating", Op: OpGTE, Value: 4.9},
			},
		},
		{
			ID: "positive_90", Name: "Reliable Shipper",
			Description: "Fulfil at least 10 orders with a completion rate of 90% or more",
			Category:    CategoryQuality, Tier: TierGold, XPReward: 300, Classes: vendor,
			Rules: []Rule{
				{Metric: "orders_fulfilled", Op: OpGTE, Value: 10},
				{Metric: "completion_rate", Op: OpGTE, Value: 90},
			},
		},

		// ── Engagement ──────────────────────────────────────────────────────

		{
			ID: "quick_replier", Name: "Quick Replier",
			Description: "Keep an average response time of 5 minutes or less",
			Category:    CategoryEngagement, Tier: TierBronze, XPReward: 50, Classes: vendor,
			Rules: []Rule{
				{Metric: "response_count", Op: OpGTE, Value: 1},
				{Metric: "response_time", Op: OpLTE, Value: 5},
			},
		},
		{
			ID: "active_daily", Name: "Daily Regular",
			Description: "Log in 7 days in a row",
			Category:    CategoryEngagement, Tier: TierSilver, XPReward: 150,
			Rules: []Rule{{Metric: "login_streak", Op: OpGTE, Value: 7}},
		},
		{
			ID: "active_month", Name: "Month of Presence",
			Description: "Log in 30 days in a row",
			Category:    CategoryEngagement, Tier: TierGold, XPReward: 500,
			Rules: []Rule{{Metric: "login_streak", Op: OpGTE, Value: 30}},
		},

		// ── Growth ──────────────────────────────────────────────────────────

		{
			ID: "revenue_10k", Name: "Revenue 10K",
			Description: "Reach 10,000 in total revenue",
			Category:    CategoryGrowth, Tier: TierSilver, XPReward: 100, Classes: vendor,
			Rules: []Rule{{Metric: "total_revenue", Op: OpGTE, Value: 10000}},
		},
		{
			ID: "revenue_100k", Name: "Revenue 100K",
			Description: "Reach 100,000 in total revenue",
			Category:    CategoryGrowth, Tier: TierGold, XPReward: 1000, Classes: vendor,
			Rules: []Rule{{Metric: "total_revenue", Op: OpGTE, Value: 100000}},
		},

		// ── Shopping ────────────────────────────────────────────────────────

		{
			ID: "first_purchase", Name: "First Purchase",
			Description: "Complete your first purchase",
			Category:    CategorySales, Tier: TierBronze, Classes: customer,
			Rules: []Rule{{Metric: "total_sales", Op: OpGTE, Value: 1}},
		},
		{
			ID: "loyal_shopper", Name: "Loyal Shopper",
			Description: "Complete 10 purchases",
			Category:    CategorySales, Tier: TierSilver, XPReward: 100, Classes: customer,
			Rules: []Rule{{Metric: "total_sales", Op: OpGTE, Value: 10}},
		},
		{
			ID: "big_spender", Name: "Big Spender",
			Description: "Complete 50 purchases",
			Category:    CategorySales, Tier: TierGold, XPReward: 500, Classes: customer,
			Rules: []Rule{{Metric: "total_sales", Op: OpGTE, Value: 50}},
		},
	}
}

func defaultBadges() []BadgeDef {
	return []BadgeDef{
		{ID: "first_sale", Name: "First Sale 🎯", Tier: TierBronze, UnlockedBy: "first_sale"},
		{ID: "sales_100", Name: "100 Sales 🏆", Tier: TierGold, UnlockedBy: "sales_100"},
		{ID: "sales_1000", Name: "1000 Sales 💎", Tier: TierPlatinum, UnlockedBy: "sales_1000"},
		{ID: "rating_50", Name: "Five Stars ⭐", Tier: TierGold, UnlockedBy: "five_star_rating"},
		{ID: "positive_90", Name: "90% Satisfaction 😊", Tier: TierGold, UnlockedBy: "positive_90"},
		{ID: "quick_replier", Name: "Quick Reply ⚡", Tier: TierBronze, UnlockedBy: "quick_replier"},
		{ID: "active_daily", Name: "Active Daily 📅", Tier: TierSilver, UnlockedBy: "active_daily"},
	}
}

func defaultChallenges() []ChallengeTemplate {
	return []ChallengeTemplate{
		{
			ID: "sales", Name: "Complete 5 sales today",
			Description: "Complete 5 sales to earn a reward",
			Type:        ChallengeDaily, Metric: MetricSalesCount, Goal: 5,
			Rewards: Rewards{XP: 100, Coins: 50},
		},
		{
			ID: "engagement", Name: "Answer 10 inquiries",
			Description: "Reply to 10 customer inquiries",
			Type:        ChallengeDaily, Metric: MetricResponses, Goal: 10,
			Rewards: Rewards{XP: 75, Coins: 30},
		},
		{
			ID: "quality", Name: "Collect 3 five-star reviews",
			Description: "Receive 3 five-star reviews from customers",
			Type:        ChallengeDaily, Metric: MetricFiveStarReviews, Goal: 3,
			Rewards: Rewards{XP: 150, Coins: 75, Gems: 1},
		},
		{
			ID: "revenue", Name: "Sell 10,000 this week",
			Description: "Reach 10,000 in sales revenue within the week",
			Type:        ChallengeWeekly, Metric: MetricRevenueAmount, Goal: 10000,
			Rewards: Rewards{XP: 300, Coins: 150, Gems: 2},
		},
	}
}
