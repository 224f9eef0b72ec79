package progression

import (
	"cmp"
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
)

// Metric selects the leaderboard ordering.
type Metric string

const (
	MetricXP      Metric = "xp"
	MetricSales   Metric = "sales"
	MetricRevenue Metric = "revenue"
)

// ParseMetric maps a category name to a Metric. Unknown names rank by XP.
func ParseMetric(s string) Metric {
	switch m := Metric(strings.ToLower(strings.TrimSpace(s))); m {
	case MetricSales, MetricRevenue:
		return m
	default:
		return MetricXP
	}
}

func (m Metric) compare(a, b *Profile) int {
	switch m {
	case MetricSales:
		return cmp.Compare(a.Statistics.TotalSales, b.Statistics.TotalSales)
	case MetricRevenue:
		return cmp.Compare(a.Statistics.TotalRevenue, b.Statistics.TotalRevenue)
	default:
		return cmp.Compare(a.XP.Total, b.XP.Total)
	}
}

// RankProfiles sorts profiles by metric descending. The sort is stable, so
// profiles passed in creation order keep that order among ties.
func RankProfiles(profiles []Profile, metric Metric) {
	sort.SliceStable(profiles, func(i, j int) bool {
		return metric.compare(&profiles[i], &profiles[j]) > 0
	})
}

// Entry is one leaderboard row.
type Entry struct {
	Rank      int       `json:"rank"`
	ProfileID string    `json:"userId"`
	UserClass UserClass `json:"userType"`
	XP        uint64    `json:"xp"`
	Level     uint32    `json:"level"`
	LevelName string    `json:"levelName"`
	Sales     uint64    `json:"sales"`
	Revenue   float64   `json:"revenue"`
	Rating    float64   `json:"rating"`
}

// Page is one leaderboard page.
type Page struct {
	Metric     Metric  `json:"category"`
	Entries    []Entry `json:"leaderboard"`
	Total      int     `json:"total"`
	Page       int     `json:"page"`
	PageSize   int     `json:"limit"`
	TotalPages int     `json:"totalPages"`
}

const (
	DefaultPageSize = 50
	MaxPageSize     = 200
)

// Leaderboard ranks stored profiles. It never writes profile state; the
// rank refresh only touches the rank cache.
type Leaderboard struct {
	store       RankStore
	catalog     *Catalog
	defaultSize int
	maxSize     int
}

// NewLeaderboard creates a leaderboard. Non-positive sizes use the package
// defaults.
func NewLeaderboard(store RankStore, catalog *Catalog, defaultSize, maxSize int) *Leaderboard {
	if maxSize <= 0 {
		maxSize = MaxPageSize
	}
	if defaultSize <= 0 {
		defaultSize = DefaultPageSize
	}
	if defaultSize > maxSize {
		defaultSize = maxSize
	}
	return &Leaderboard{store: store, catalog: catalog, defaultSize: defaultSize, maxSize: maxSize}
}

// Rank returns one page of the leaderboard. Page numbers start at 1.
func (l *Leaderboard) Rank(ctx context.Context, metric Metric, page, pageSize int) (*Page, error) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = l.defaultSize
	}
	if pageSize > l.maxSize {
		pageSize = l.maxSize
	}
	// Pages past the last representable offset are empty; keeping the
	// offset below math.MaxInt-pageSize keeps every rank positive.
	offset := math.MaxInt - pageSize
	if page-1 <= offset/pageSize {
		offset = (page - 1) * pageSize
	}

	profiles, total, err := l.store.Ranked(ctx, metric, offset, pageSize)
	if err != nil {
		return nil, fmt.Errorf("ranking by %s: %w", metric, err)
	}

	entries := make([]Entry, len(profiles))
	for i := range profiles {
		p := &profiles[i]
		entries[i] = Entry{
			Rank:      offset + i + 1,
			ProfileID: p.ProfileID,
			UserClass: p.UserClass,
			XP:        p.XP.Total,
			Level:     p.XP.Level,
			LevelName: l.catalog.LevelOf(p.XP.Total, p.UserClass).Name,
			Sales:     p.Statistics.TotalSales,
			Revenue:   p.Statistics.TotalRevenue,
			Rating:    p.Statistics.AverageRating,
		}
	}

	return &Page{
		Metric:     metric,
		Entries:    entries,
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: (total + pageSize - 1) / pageSize,
	}, nil
}

// RefreshRanks recomputes the cached XP rank of every profile, globally
// and within its user class, and returns the number of profiles ranked.
func (l *Leaderboard) RefreshRanks(ctx context.Context) (int, error) {
	profiles, _, err := l.store.Ranked(ctx, MetricXP, 0, 0)
	if err != nil {
		return 0, fmt.Errorf("loading ranking snapshot: %w", err)
	}

	perClass := make(map[UserClass]int)
	updates := make([]RankUpdate, len(profiles))
	for i := range profiles {
		p := &profiles[i]
		perClass[p.UserClass]++
		updates[i] = RankUpdate{Key: p.Key(), Global: i + 1, Category: perClass[p.UserClass]}
	}
	if err := l.store.UpdateRanks(ctx, updates); err != nil {
		return 0, fmt.Errorf("writing ranks: %w", err)
	}
	return len(updates), nil
}
