package models

import (
	"fmt"
	"strings"
	"time"
)

// ActivityType is one of the three countable actions.
type ActivityType string

const (
	ActivityMessage ActivityType = "message"
	ActivityVoice   ActivityType = "voice"
	ActivityPartner ActivityType = "partner"
)

var activityAliases = map[string]ActivityType{
	"message": ActivityMessage,
	"mesaj":   ActivityMessage,
	"voice":   ActivityVoice,
	"ses":     ActivityVoice,
	"partner": ActivityPartner,
}

// ParseActivityType accepts the canonical names and their Turkish aliases.
func ParseActivityType(s string) (ActivityType, error) {
	if t, ok := activityAliases[strings.ToLower(strings.TrimSpace(s))]; ok {
		return t, nil
	}
	return "", fmt.Errorf("unknown activity type %q", s)
}

func (t ActivityType) Valid() bool {
	switch t {
	case ActivityMessage, ActivityVoice, ActivityPartner:
		return true
	}
	return false
}

// Column is the counter column backing this activity in user_stats and daily_stats.
func (t ActivityType) Column() string {
	switch t {
	case ActivityVoice:
		return "voice_minutes"
	case ActivityPartner:
		return "partner_count"
	default:
		return "message_count"
	}
}

func (t ActivityType) Label() string {
	switch t {
	case ActivityVoice:
		return "Voice"
	case ActivityPartner:
		return "Partner"
	default:
		return "Message"
	}
}

// Unit formats an amount of this activity for display.
func (t ActivityType) Unit(v int64) string {
	switch t {
	case ActivityVoice:
		return fmt.Sprintf("%d minutes", v)
	case ActivityPartner:
		return fmt.Sprintf("%d partners", v)
	default:
		return fmt.Sprintf("%d messages", v)
	}
}

// Period selects the window used by stats and leaderboard queries.
type Period string

const (
	PeriodAll   Period = "all"
	PeriodMonth Period = "month"
	PeriodWeek  Period = "week"
	PeriodDay   Period = "day"
)

var periodAliases = map[string]Period{
	"all": PeriodAll, "tüm": PeriodAll, "hepsi": PeriodAll,
	"month": PeriodMonth, "ay": PeriodMonth,
	"week": PeriodWeek, "hafta": PeriodWeek,
	"day": PeriodDay, "gün": PeriodDay, "bugün": PeriodDay, "today": PeriodDay,
}

// ParsePeriod falls back to PeriodAll for anything it does not recognise.
func ParsePeriod(s string) Period {
	if p, ok := periodAliases[strings.ToLower(strings.TrimSpace(s))]; ok {
		return p
	}
	return PeriodAll
}

func (p Period) Label() string {
	switch p {
	case PeriodMonth:
		return "Last 30 days"
	case PeriodWeek:
		return "Last 7 days"
	case PeriodDay:
		return "Today"
	default:
		return "All time"
	}
}

// Since returns the first daily bucket included in the period, or nil for PeriodAll.
func (p Period) Since(now time.Time, loc *time.Location) *time.Time {
	today := Day(now, loc)
	var start time.Time
	switch p {
	case PeriodDay:
		start = today
	case PeriodWeek:
		start = today.AddDate(0, 0, -7)
	case PeriodMonth:
		start = today.AddDate(0, 0, -30)
	default:
		return nil
	}
	return &start
}

// Day truncates t to the calendar day in loc, expressed as midnight UTC of that date
// so it maps one-to-one onto a DATE column.
func Day(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Counters groups the three activity counters.
type Counters struct {
	MessageCount int64 `db:"message_count"`
	VoiceMinutes int64 `db:"voice_minutes"`
	PartnerCount int64 `db:"partner_count"`
}

func (c Counters) Get(t ActivityType) int64 {
	switch t {
	case ActivityVoice:
		return c.VoiceMinutes
	case ActivityPartner:
		return c.PartnerCount
	default:
		return c.MessageCount
	}
}

func (c *Counters) Add(t ActivityType, amount int64) {
	switch t {
	case ActivityVoice:
		c.VoiceMinutes += amount
	case ActivityPartner:
		c.PartnerCount += amount
	default:
		c.MessageCount += amount
	}
}

// UserStats is the lifetime aggregate row for one user.
type UserStats struct {
	UserID string `db:"user_id"`
	Counters
	LastUpdated *time.Time `db:"last_updated"`
}

// DailyStats is one per-user per-day bucket.
type DailyStats struct {
	UserID string    `db:"user_id"`
	Date   time.Time `db:"date"`
	Counters
}

type LeaderboardEntry struct {
	UserID string `db:"user_id"`
	Value  int64  `db:"stat_value"`
}

// Task is an admin-defined goal.
type Task struct {
	ID           int64
	Type         ActivityType
	TargetAmount int64
	Description  string
	CreatedAt    time.Time
	ExpiresAt    time.Time
	Eligibility  Eligibility
	CreatedBy    string
}

func (t Task) ExpiredAt(now time.Time) bool {
	return !t.ExpiresAt.After(now)
}

// UserTaskProgress is one row per (user, task) pair that saw progress.
type UserTaskProgress struct {
	UserID      string     `db:"user_id"`
	TaskID      int64      `db:"task_id"`
	Progress    int64      `db:"progress"`
	Completed   bool       `db:"completed"`
	CompletedAt *time.Time `db:"completed_at"`
}

// UserTask is a task as seen by one user, with that user's progress.
type UserTask struct {
	Task
	Progress  int64
	Completed bool
}

// Participant is one user's outcome on a task.
type Participant struct {
	UserID    string
	Progress  int64
	Completed bool
}

// TaskReport is a task together with every participant's outcome.
type TaskReport struct {
	Task
	Participants []Participant
}

// ExpiredTask is a TaskReport whose deadline has passed.
type ExpiredTask = TaskReport

// Split separates completed and incomplete participants.
func (r TaskReport) Split() (completed, incomplete []Participant) {
	for _, p := range r.Participants {
		if p.Completed {
			completed = append(completed, p)
		} else {
			incomplete = append(incomplete, p)
		}
	}
	return completed, incomplete
}

// VoiceSession represents a user's voice channel session
type VoiceSession struct {
	UserID    string
	GuildID   string
	ChannelID string
	Roles     []string

	JoinedAt     time.Time
	SegmentStart time.Time
	LastFlush    time.Time
	// Banked is creditable time from segments closed by a mute/deaf change.
	Banked time.Duration

	Muted    bool
	Deafened bool
	AFK      bool
}

// Creditable reports whether time in the current segment counts toward voice minutes.
func (s *VoiceSession) Creditable() bool {
	return !s.AFK && !s.Muted && !s.Deafened
}
