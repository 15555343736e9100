package discord

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"guildstats/internal/models"
	"guildstats/internal/service"
	"guildstats/pkg/utils"
)

func pngFile(name string, data []byte) *discordgo.File {
	return &discordgo.File{Name: name, ContentType: "image/png", Reader: bytes.NewReader(data)}
}

func displayName(u *discordgo.User) string {
	if u.GlobalName != "" {
		return u.GlobalName
	}
	return u.Username
}

// statsReply renders the profile card and, when asked, the daily history chart.
func (b *Bot) statsReply(ctx context.Context, guildID string, user *discordgo.User, chart bool) (reply, error) {
	overview, err := b.stats.Overview(ctx, user.ID)
	if err != nil {
		return reply{}, err
	}
	card, err := b.renderer.StatsCard(displayName(user), overview)
	if err != nil {
		return reply{}, err
	}

	summary := fmt.Sprintf("Messages: **%d**\nVoice: **%s**\nPartners: **%d**",
		overview.AllTime.MessageCount,
		utils.FormatMinutes(overview.AllTime.VoiceMinutes),
		overview.AllTime.PartnerCount)
	if session, ok := b.tracker.Session(guildID, user.ID); ok {
		summary += fmt.Sprintf("\nIn voice now: %s", utils.FormatDuration(int64(time.Since(session.JoinedAt).Seconds())))
	}
	r := reply{
		Embeds: []*discordgo.MessageEmbed{{
			Title:       fmt.Sprintf("Statistics of %s", displayName(user)),
			Color:       colorInfo,
			Description: summary,
			Image:       &discordgo.MessageEmbedImage{URL: "attachment://stats.png"},
		}},
		Files: []*discordgo.File{pngFile("stats.png", card)},
	}

	if chart {
		history, err := b.stats.History(ctx, user.ID, service.DefaultHistoryDays)
		if err != nil {
			return reply{}, err
		}
		img, err := b.renderer.HistoryChart(displayName(user), history)
		if err != nil {
			return reply{}, err
		}
		r.Embeds = append(r.Embeds, &discordgo.MessageEmbed{
			Title: fmt.Sprintf("Last %d days", len(history)),
			Color: colorInfo,
			Image: &discordgo.MessageEmbedImage{URL: "attachment://history.png"},
		})
		r.Files = append(r.Files, pngFile("history.png", img))
	}
	return r, nil
}

func (b *Bot) statsCommand(i *discordgo.InteractionCreate, inv invocation, opts options) {
	user := inv.User
	if id := opts.id("user"); id != "" {
		if res := i.ApplicationCommandData().Resolved; res != nil && res.Users[id] != nil {
			user = res.Users[id]
		}
	}

	if !b.deferInteraction(i, false) {
		return
	}
	r, err := b.statsReply(b.ctx, inv.GuildID, user, opts.bool("chart"))
	if err != nil {
		r = b.errorReply(err, b.log)
	}
	b.editInteraction(i, r)
}

// statsPrefix handles ".stats [@user] [chart]".
func (b *Bot) statsPrefix(inv invocation, args []string) reply {
	user := inv.User
	chart := false
	for _, arg := range args {
		switch {
		case utils.IsUserMention(arg):
			id := utils.ExtractUserIDFromMention(arg)
			u, err := b.session.User(id)
			if err != nil {
				return textReply("I could not find that user.")
			}
			user = u
		case strings.EqualFold(arg, "chart"), strings.EqualFold(arg, "grafik"):
			chart = true
		}
	}

	r, err := b.statsReply(b.ctx, inv.GuildID, user, chart)
	if err != nil {
		return b.errorReply(err, b.log)
	}
	return r
}

type topQuery struct {
	Activity models.ActivityType
	Period   models.Period
	Limit    int
}

// parseTopArgs reads "[type] [period] [limit]" in any order. Unknown words are errors so
// a typo does not silently show the wrong board.
func parseTopArgs(args []string) (topQuery, error) {
	q := topQuery{Activity: models.ActivityMessage, Period: models.PeriodAll, Limit: service.DefaultTopLimit}
	for _, arg := range args {
		if n, err := strconv.Atoi(arg); err == nil {
			q.Limit = n
			continue
		}
		if t, err := models.ParseActivityType(arg); err == nil {
			q.Activity = t
			continue
		}
		if p := models.ParsePeriod(arg); p != models.PeriodAll || isAllAlias(arg) {
			q.Period = p
			continue
		}
		return q, fmt.Errorf("unknown option %q, use a type (message, voice, partner), a period (all, month, week, day) and a number", arg)
	}
	return q, nil
}

func isAllAlias(s string) bool {
	switch strings.ToLower(s) {
	case "all", "tüm", "hepsi":
		return true
	}
	return false
}

func (b *Bot) topReply(ctx context.Context, q topQuery) reply {
	entries, err := b.stats.Top(ctx, q.Activity, q.Period, q.Limit)
	if err != nil {
		return b.errorReply(err, b.log)
	}

	title := fmt.Sprintf("%s leaderboard: %s", q.Activity.Label(), q.Period.Label())
	if len(entries) == 0 {
		return embedReply(&discordgo.MessageEmbed{
			Title:       title,
			Color:       colorInfo,
			Description: "No activity recorded for this period yet.",
		})
	}

	lines := make([]string, 0, len(entries))
	for n, e := range entries {
		value := q.Activity.Unit(e.Value)
		if q.Activity == models.ActivityVoice {
			value = utils.FormatMinutes(e.Value)
		}
		lines = append(lines, utils.FormatLeaderboardEntry(n+1, utils.FormatUserMention(e.UserID), value))
	}
	return embedReply(&discordgo.MessageEmbed{
		Title:       title,
		Color:       colorInfo,
		Description: strings.Join(lines, "\n"),
	})
}

func (b *Bot) topCommand(i *discordgo.InteractionCreate, opts options) {
	q := topQuery{Activity: models.ActivityMessage, Period: models.PeriodAll, Limit: service.DefaultTopLimit}
	if v := opts.string("type"); v != "" {
		t, err := models.ParseActivityType(v)
		if err != nil {
			b.respondInteraction(i, textReply(err.Error()))
			return
		}
		q.Activity = t
	}
	if v := opts.string("period"); v != "" {
		q.Period = models.ParsePeriod(v)
	}
	if n, ok := opts.int("limit"); ok {
		q.Limit = int(n)
	}
	b.respondInteraction(i, b.topReply(b.ctx, q))
}

// topPrefix handles ".top [type] [period] [limit]".
func (b *Bot) topPrefix(args []string) reply {
	q, err := parseTopArgs(args)
	if err != nil {
		return textReply(err.Error())
	}
	return b.topReply(b.ctx, q)
}
