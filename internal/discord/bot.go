package discord

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"guildstats/internal/config"
	"guildstats/internal/models"
	"guildstats/internal/render"
	"guildstats/internal/service"
	"guildstats/internal/voice"
)

// Deps are the services the bot presents.
type Deps struct {
	Accounting   *service.Accounting
	Stats        *service.Stats
	Tasks        *service.Tasks
	Applications *service.Applications
	Tracker      *voice.Tracker
	Renderer     *render.Renderer
}

// Bot represents the Discord bot
type Bot struct {
	session *discordgo.Session
	cfg     *config.Config

	accounting *service.Accounting
	stats      *service.Stats
	tasks      *service.Tasks
	apps       *service.Applications
	tracker    *voice.Tracker
	renderer   *render.Renderer

	ctx context.Context
	log *zap.Logger
}

// NewSession creates a Discord session with the intents the bot needs
func NewSession(token string) (*discordgo.Session, error) {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("failed to create Discord session: %w", err)
	}

	session.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildVoiceStates |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsMessageContent

	return session, nil
}

// New creates the bot and registers its event handlers
func New(session *discordgo.Session, cfg *config.Config, deps Deps, log *zap.Logger) *Bot {
	bot := &Bot{
		session:    session,
		cfg:        cfg,
		accounting: deps.Accounting,
		stats:      deps.Stats,
		tasks:      deps.Tasks,
		apps:       deps.Applications,
		tracker:    deps.Tracker,
		renderer:   deps.Renderer,
		ctx:        context.Background(),
		log:        log,
	}

	session.AddHandler(bot.onReady)
	session.AddHandler(bot.onGuildCreate)
	session.AddHandler(bot.onVoiceStateUpdate)
	session.AddHandler(bot.onMessageCreate)
	session.AddHandler(bot.onInteractionCreate)

	return bot
}

// Start opens the gateway connection. Handlers run with ctx.
func (b *Bot) Start(ctx context.Context) error {
	b.ctx = ctx
	if err := b.session.Open(); err != nil {
		return fmt.Errorf("failed to open Discord connection: %w", err)
	}

	b.log.Info("Bot is running")
	return nil
}

// Stop leaves voice and closes the gateway connection
func (b *Bot) Stop() error {
	b.session.RLock()
	conns := make([]*discordgo.VoiceConnection, 0, len(b.session.VoiceConnections))
	for _, vc := range b.session.VoiceConnections {
		conns = append(conns, vc)
	}
	b.session.RUnlock()

	for _, vc := range conns {
		if err := vc.Disconnect(); err != nil {
			b.log.Warn("Failed to leave voice channel", zap.String("channel_id", vc.ChannelID), zap.Error(err))
		}
	}
	return b.session.Close()
}

// inScope reports whether events from the guild should be handled.
func (b *Bot) inScope(guildID string) bool {
	if guildID == "" {
		return false
	}
	return b.cfg.GuildID == "" || b.cfg.GuildID == guildID
}

func (b *Bot) onReady(s *discordgo.Session, r *discordgo.Ready) {
	b.log.Info("Connected to gateway",
		zap.String("user", r.User.Username),
		zap.Int("guilds", len(r.Guilds)))

	if err := b.registerCommands(s, r.User.ID); err != nil {
		b.log.Error("Failed to register slash commands", zap.Error(err))
	}
	if err := b.joinTargetChannel(s); err != nil {
		b.log.Error("Failed to join target voice channel",
			zap.String("channel_id", b.cfg.Voice.TargetChannelID),
			zap.Error(err))
	}
}

// joinTargetChannel connects the bot, muted and deafened, to TARGET_VOICE_CHANNEL_ID.
// The bot only sits there; it sends no audio.
func (b *Bot) joinTargetChannel(s *discordgo.Session) error {
	channelID := b.cfg.Voice.TargetChannelID
	if channelID == "" {
		return nil
	}

	channel, err := s.Channel(channelID)
	if err != nil {
		return fmt.Errorf("failed to fetch channel: %w", err)
	}
	if !isVoiceChannel(channel) {
		return fmt.Errorf("channel %s is not a voice channel", channelID)
	}
	if !b.inScope(channel.GuildID) {
		return fmt.Errorf("channel %s belongs to guild %s which is not served", channelID, channel.GuildID)
	}

	if _, err := s.ChannelVoiceJoin(channel.GuildID, channelID, true, true); err != nil {
		return fmt.Errorf("failed to join voice channel: %w", err)
	}
	b.log.Info("Joined target voice channel",
		zap.String("guild_id", channel.GuildID),
		zap.String("channel_id", channelID))
	return nil
}

func isVoiceChannel(c *discordgo.Channel) bool {
	return c.Type == discordgo.ChannelTypeGuildVoice || c.Type == discordgo.ChannelTypeGuildStageVoice
}

// onGuildCreate seeds the voice tracker with members already connected when the guild
// becomes available.
func (b *Bot) onGuildCreate(_ *discordgo.Session, g *discordgo.GuildCreate) {
	if !b.inScope(g.ID) {
		return
	}
	b.tracker.Reconcile(b.ctx, g.ID, b.presences(g.Guild))
}

// ReconcileVoice compares the tracker with the state cache of every guild in scope.
func (b *Bot) ReconcileVoice(ctx context.Context) error {
	snapshot := make(map[string][]voice.Presence)
	b.session.State.RLock()
	for _, g := range b.session.State.Guilds {
		if b.inScope(g.ID) {
			snapshot[g.ID] = b.presences(g)
		}
	}
	b.session.State.RUnlock()

	for guildID, present := range snapshot {
		b.tracker.Reconcile(ctx, guildID, present)
	}
	return nil
}

func (b *Bot) presences(g *discordgo.Guild) []voice.Presence {
	out := make([]voice.Presence, 0, len(g.VoiceStates))
	for _, vs := range g.VoiceStates {
		if vs.ChannelID == "" || b.isBotUser(vs) {
			continue
		}
		p := presenceOf(vs)
		p.GuildID = g.ID
		if p.Roles == nil {
			for _, m := range g.Members {
				if m.User != nil && m.User.ID == vs.UserID {
					p.Roles = m.Roles
					break
				}
			}
		}
		out = append(out, p)
	}
	return out
}

func (b *Bot) isBotUser(vs *discordgo.VoiceState) bool {
	if vs.Member != nil && vs.Member.User != nil {
		return vs.Member.User.Bot
	}
	return b.session.State.User != nil && vs.UserID == b.session.State.User.ID
}

func presenceOf(vs *discordgo.VoiceState) voice.Presence {
	p := voice.Presence{
		UserID:    vs.UserID,
		GuildID:   vs.GuildID,
		ChannelID: vs.ChannelID,
		Muted:     vs.Mute || vs.SelfMute,
		Deafened:  vs.Deaf || vs.SelfDeaf,
	}
	if vs.Member != nil {
		p.Roles = vs.Member.Roles
	}
	return p
}

// onVoiceStateUpdate feeds joins, leaves, moves and mute changes to the tracker
func (b *Bot) onVoiceStateUpdate(_ *discordgo.Session, vs *discordgo.VoiceStateUpdate) {
	if vs.VoiceState == nil || !b.inScope(vs.GuildID) || b.isBotUser(vs.VoiceState) {
		return
	}

	credited := b.tracker.Update(b.ctx, presenceOf(vs.VoiceState))
	if credited > 0 {
		b.log.Debug("Voice minutes credited",
			zap.String("user_id", vs.UserID),
			zap.Int64("minutes", credited))
	}
}

// onMessageCreate counts the message and runs prefix commands
func (b *Bot) onMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot || !b.inScope(m.GuildID) {
		return
	}

	var roles []string
	if m.Member != nil {
		roles = m.Member.Roles
	}

	_, err := b.accounting.RecordActivity(b.ctx, service.Activity{
		UserID: m.Author.ID,
		Roles:  roles,
		Type:   models.ActivityMessage,
		Amount: 1,
	})
	if err != nil {
		b.log.Error("Failed to record message", zap.String("user_id", m.Author.ID), zap.Error(err))
	}

	content := strings.TrimSpace(m.Content)
	if !strings.HasPrefix(content, b.cfg.CommandPrefix) {
		return
	}
	fields := strings.Fields(strings.TrimPrefix(content, b.cfg.CommandPrefix))
	if len(fields) == 0 {
		return
	}

	perms, err := s.UserChannelPermissions(m.Author.ID, m.ChannelID)
	if err != nil {
		b.log.Debug("Could not resolve member permissions", zap.String("user_id", m.Author.ID), zap.Error(err))
	}
	inv := invocation{
		GuildID:     m.GuildID,
		ChannelID:   m.ChannelID,
		User:        m.Author,
		Roles:       roles,
		Permissions: perms,
	}

	name, args := strings.ToLower(fields[0]), fields[1:]
	var r reply
	switch name {
	case "stats", "istatistik":
		r = b.statsPrefix(inv, args)
	case "top":
		r = b.topPrefix(args)
	case "task", "görev", "gorev":
		r = b.taskPrefix(inv, args)
	default:
		return
	}
	b.respondMessage(m, r)
}
