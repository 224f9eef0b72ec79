package progression

// ApplyStatistics folds an event into the profile counters. Fields the
// payload lacks are skipped.
func ApplyStatistics(p *Profile, action string, payload Payload) {
	s := &p.Statistics
	switch action {
	case ActionSaleCompleted, ActionPurchaseCompleted:
		s.TotalSales++
		if amount, ok := payload.Float("amount"); ok && amount > 0 {
			s.TotalRevenue += amount
		}

	case ActionReviewReceived:
		rating, ok := payload.Float("rating")
		if !ok || rating < 1 || rating > 5 {
			return
		}
		s.AverageRating = runningMean(s.AverageRating, s.ReviewCount, rating)
		s.ReviewCount++
		if rating == 5 {
			s.FiveStarReviews++
		}

	case ActionResponseSent:
		minutes, ok := payload.Float("responseTime")
		if !ok || minutes < 0 {
			return
		}
		s.ResponseTimeMinutes = runningMean(s.ResponseTimeMinutes, s.ResponseCount, minutes)
		s.ResponseCount++

	case ActionOrderFulfilled:
		s.OrdersFulfilled++
		s.CompletionRate = completionRate(s.OrdersFulfilled, s.OrdersCancelled)

	case ActionOrderCancelled:
		s.OrdersCancelled++
		s.CompletionRate = completionRate(s.OrdersFulfilled, s.OrdersCancelled)
	}
}

func runningMean(mean float64, n uint64, sample float64) float64 {
	return (mean*float64(n) + sample) / float64(n+1)
}

func completionRate(fulfilled, cancelled uint64) float64 {
	total := fulfilled + cancelled
	if total == 0 {
		return 0
	}
	return float64(fulfilled) / float64(total) * 100
}
