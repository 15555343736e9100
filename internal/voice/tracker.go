package voice

import (
	"context"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"

	"guildstats/internal/models"
	"guildstats/internal/service"
)

// Recorder receives the voice minutes credited by the tracker.
type Recorder interface {
	RecordActivity(ctx context.Context, act service.Activity) ([]models.Task, error)
}

// Presence is a member's current voice state. An empty ChannelID means the member is
// not connected.
type Presence struct {
	UserID    string
	GuildID   string
	ChannelID string
	Roles     []string
	Muted     bool
	Deafened  bool
}

func key(guildID, userID string) string {
	return guildID + ":" + userID
}

// credit is a pending store write computed under the lock and applied after it.
type credit struct {
	userID  string
	roles   []string
	minutes int64
}

// Tracker owns the table of open voice sessions, keyed by guild and user.
type Tracker struct {
	mu       sync.Mutex
	sessions map[string]*models.VoiceSession

	recorder     Recorder
	afkChannelID string
	interval     time.Duration
	now          service.Clock
	log          *zap.Logger
}

func NewTracker(recorder Recorder, afkChannelID string, interval time.Duration, now service.Clock, log *zap.Logger) *Tracker {
	if now == nil {
		now = time.Now
	}
	return &Tracker{
		sessions:     make(map[string]*models.VoiceSession),
		recorder:     recorder,
		afkChannelID: afkChannelID,
		interval:     interval,
		now:          now,
		log:          log,
	}
}

// Update applies a voice state change: leaving, joining, moving or toggling mute.
// It returns the minutes credited by the change.
func (t *Tracker) Update(ctx context.Context, p Presence) int64 {
	if p.ChannelID == "" {
		return t.Leave(ctx, p.GuildID, p.UserID)
	}

	t.mu.Lock()
	s, ok := t.sessions[key(p.GuildID, p.UserID)]
	var channelID string
	if ok {
		channelID = s.ChannelID
	}
	t.mu.Unlock()

	switch {
	case !ok:
		t.Join(ctx, p)
		return 0
	case channelID != p.ChannelID:
		return t.Switch(ctx, p)
	default:
		t.UpdateMuteState(p)
		return 0
	}
}

// Join opens a session unless the member already has one.
func (t *Tracker) Join(_ context.Context, p Presence) {
	k := key(p.GuildID, p.UserID)
	now := t.now()

	t.mu.Lock()
	if _, ok := t.sessions[k]; ok {
		t.mu.Unlock()
		return
	}
	s := &models.VoiceSession{
		UserID:       p.UserID,
		GuildID:      p.GuildID,
		ChannelID:    p.ChannelID,
		Roles:        slices.Clone(p.Roles),
		JoinedAt:     now,
		SegmentStart: now,
		LastFlush:    now,
		Muted:        p.Muted,
		Deafened:     p.Deafened,
		AFK:          t.afkChannelID != "" && p.ChannelID == t.afkChannelID,
	}
	t.sessions[k] = s
	t.mu.Unlock()

	t.log.Debug("Voice session opened",
		zap.String("user_id", p.UserID),
		zap.String("channel_id", p.ChannelID),
		zap.Bool("afk", s.AFK))
}

// Leave closes the member's session and credits the whole minutes accrued since the
// last flush. The session is discarded even when the credit fails.
func (t *Tracker) Leave(ctx context.Context, guildID, userID string) int64 {
	k := key(guildID, userID)
	now := t.now()

	t.mu.Lock()
	s, ok := t.sessions[k]
	if !ok {
		t.mu.Unlock()
		return 0
	}
	delete(t.sessions, k)
	c := settle(s, now)
	t.mu.Unlock()

	t.log.Debug("Voice session closed",
		zap.String("user_id", userID),
		zap.String("channel_id", s.ChannelID),
		zap.Duration("duration", now.Sub(s.JoinedAt)))

	return t.apply(ctx, c)
}

// Switch moves the member to another channel: the old session is closed and a new one
// opened, with AFK taken from the destination.
func (t *Tracker) Switch(ctx context.Context, p Presence) int64 {
	credited := t.Leave(ctx, p.GuildID, p.UserID)
	t.Join(ctx, p)
	return credited
}

// UpdateMuteState starts a new segment when the mute or deafen flags change. Creditable
// time from the closed segment is kept in memory until the next flush or leave.
func (t *Tracker) UpdateMuteState(p Presence) {
	now := t.now()

	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.sessions[key(p.GuildID, p.UserID)]
	if !ok {
		return
	}
	if p.Roles != nil {
		s.Roles = slices.Clone(p.Roles)
	}
	if s.Muted == p.Muted && s.Deafened == p.Deafened {
		return
	}

	if s.Creditable() {
		s.Banked += now.Sub(s.SegmentStart)
	}
	s.SegmentStart = now
	s.Muted = p.Muted
	s.Deafened = p.Deafened
}

// Flush credits every session whose last flush is at least one interval old and
// returns the total minutes credited.
func (t *Tracker) Flush(ctx context.Context) int64 {
	return t.flush(ctx, false)
}

// FlushAll credits every open session regardless of when it was last flushed. It is
// meant for shutdown, when the sessions are about to be lost.
func (t *Tracker) FlushAll(ctx context.Context) int64 {
	return t.flush(ctx, true)
}

func (t *Tracker) flush(ctx context.Context, force bool) int64 {
	now := t.now()

	t.mu.Lock()
	var pending []credit
	for _, s := range t.sessions {
		if !force && now.Sub(s.LastFlush) < t.interval {
			continue
		}
		if c := settle(s, now); c.minutes > 0 {
			pending = append(pending, c)
		}
		s.SegmentStart = now
		s.LastFlush = now
		s.Banked = 0
	}
	t.mu.Unlock()

	var total int64
	for _, c := range pending {
		total += t.apply(ctx, c)
	}
	if total > 0 {
		t.log.Info("Voice minutes flushed",
			zap.Bool("forced", force),
			zap.Int("sessions", len(pending)),
			zap.Int64("minutes", total))
	}
	return total
}

// Reconcile brings the guild's sessions in line with the members actually in voice.
// Sessions of members no longer present are closed, and members in voice without a
// session get one.
func (t *Tracker) Reconcile(ctx context.Context, guildID string, present []Presence) (opened, closed int) {
	here := make(map[string]struct{}, len(present))
	for _, p := range present {
		here[p.UserID] = struct{}{}
	}

	t.mu.Lock()
	var stale []string
	for _, s := range t.sessions {
		if s.GuildID != guildID {
			continue
		}
		if _, ok := here[s.UserID]; !ok {
			stale = append(stale, s.UserID)
		}
	}
	t.mu.Unlock()

	for _, userID := range stale {
		t.Leave(ctx, guildID, userID)
		closed++
	}

	for _, p := range present {
		if p.ChannelID == "" {
			continue
		}
		p.GuildID = guildID
		if _, ok := t.Session(guildID, p.UserID); !ok {
			opened++
		}
		t.Update(ctx, p)
	}

	if opened > 0 || closed > 0 {
		t.log.Info("Voice sessions reconciled",
			zap.String("guild_id", guildID),
			zap.Int("opened", opened),
			zap.Int("closed", closed))
	}
	return opened, closed
}

// Session returns a copy of the member's open session.
func (t *Tracker) Session(guildID, userID string) (models.VoiceSession, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.sessions[key(guildID, userID)]
	if !ok {
		return models.VoiceSession{}, false
	}
	return *s, true
}

func (t *Tracker) size() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.sessions)
}

// settle computes the whole minutes a session has earned up to now. Fractions of a
// minute are dropped.
func settle(s *models.VoiceSession, now time.Time) credit {
	earned := s.Banked
	if s.Creditable() && now.After(s.SegmentStart) {
		earned += now.Sub(s.SegmentStart)
	}
	return credit{
		userID:  s.UserID,
		roles:   slices.Clone(s.Roles),
		minutes: int64(earned / time.Minute),
	}
}

func (t *Tracker) apply(ctx context.Context, c credit) int64 {
	if c.minutes <= 0 {
		return 0
	}
	_, err := t.recorder.RecordActivity(ctx, service.Activity{
		UserID: c.userID,
		Roles:  c.roles,
		Type:   models.ActivityVoice,
		Amount: c.minutes,
	})
	if err != nil {
		t.log.Error("Failed to credit voice minutes",
			zap.String("user_id", c.userID),
			zap.Int64("minutes", c.minutes),
			zap.Error(err))
		return 0
	}
	return c.minutes
}
