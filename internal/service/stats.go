package service

import (
	"context"
	"fmt"
	"time"

	"guildstats/internal/models"
)

const (
	DefaultHistoryDays = 30
	DefaultTopLimit    = 10
	MaxTopLimit        = 25
)

// Overview is the set of windows shown on a profile card.
type Overview struct {
	AllTime models.Counters
	Day     models.Counters
	Week    models.Counters
	Month   models.Counters
}

// Stats answers read-only questions about the counters.
type Stats struct {
	repo StatsRepository
	loc  *time.Location
	now  Clock
}

func NewStats(repo StatsRepository, loc *time.Location, now Clock) *Stats {
	if loc == nil {
		loc = time.UTC
	}
	if now == nil {
		now = time.Now
	}
	return &Stats{repo: repo, loc: loc, now: now}
}

// UserStats returns the user's counters for the period. Users with no activity get zeros.
func (s *Stats) UserStats(ctx context.Context, userID string, period models.Period) (models.Counters, error) {
	since := period.Since(s.now(), s.loc)
	if since == nil {
		st, err := s.repo.GetUserStats(ctx, userID)
		if err != nil {
			return models.Counters{}, fmt.Errorf("failed to get user stats: %w", err)
		}
		if st == nil {
			return models.Counters{}, nil
		}
		return st.Counters, nil
	}

	c, err := s.repo.SumDailyStats(ctx, userID, *since)
	if err != nil {
		return models.Counters{}, fmt.Errorf("failed to sum daily stats: %w", err)
	}
	return c, nil
}

func (s *Stats) Overview(ctx context.Context, userID string) (Overview, error) {
	var (
		o   Overview
		err error
	)
	if o.AllTime, err = s.UserStats(ctx, userID, models.PeriodAll); err != nil {
		return o, err
	}
	if o.Day, err = s.UserStats(ctx, userID, models.PeriodDay); err != nil {
		return o, err
	}
	if o.Week, err = s.UserStats(ctx, userID, models.PeriodWeek); err != nil {
		return o, err
	}
	if o.Month, err = s.UserStats(ctx, userID, models.PeriodMonth); err != nil {
		return o, err
	}
	return o, nil
}

// History returns one bucket per day for the last days days, today included. Days
// without activity are zero-filled.
func (s *Stats) History(ctx context.Context, userID string, days int) ([]models.DailyStats, error) {
	if days <= 0 {
		days = DefaultHistoryDays
	}
	today := models.Day(s.now(), s.loc)
	start := today.AddDate(0, 0, -(days - 1))

	rows, err := s.repo.GetStatsHistory(ctx, userID, start)
	if err != nil {
		return nil, fmt.Errorf("failed to get stats history: %w", err)
	}

	byDay := make(map[time.Time]models.Counters, len(rows))
	for _, r := range rows {
		byDay[models.Day(r.Date, time.UTC)] = r.Counters
	}

	out := make([]models.DailyStats, 0, days)
	for d := start; !d.After(today); d = d.AddDate(0, 0, 1) {
		out = append(out, models.DailyStats{UserID: userID, Date: d, Counters: byDay[d]})
	}
	return out, nil
}

// Top ranks users by one counter within the period.
func (s *Stats) Top(ctx context.Context, activity models.ActivityType, period models.Period, limit int) ([]models.LeaderboardEntry, error) {
	if !activity.Valid() {
		return nil, ErrInvalidActivity
	}
	switch {
	case limit <= 0:
		limit = DefaultTopLimit
	case limit > MaxTopLimit:
		limit = MaxTopLimit
	}

	entries, err := s.repo.GetTopUsers(ctx, activity, period.Since(s.now(), s.loc), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get top users: %w", err)
	}
	return entries, nil
}
