package discord

import (
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"guildstats/internal/service"
)

var (
	minTopLimit = 1.0
	minTarget   = 1.0
	minDays     = 0.0
	reviewOnly  = int64(discordgo.PermissionManageRoles)
)

func activityChoices() []*discordgo.ApplicationCommandOptionChoice {
	return []*discordgo.ApplicationCommandOptionChoice{
		{Name: "Messages", Value: "message"},
		{Name: "Voice minutes", Value: "voice"},
		{Name: "Partners", Value: "partner"},
	}
}

func periodChoices() []*discordgo.ApplicationCommandOptionChoice {
	return []*discordgo.ApplicationCommandOptionChoice{
		{Name: "All time", Value: "all"},
		{Name: "Last 30 days", Value: "month"},
		{Name: "Last 7 days", Value: "week"},
		{Name: "Today", Value: "day"},
	}
}

func slashCommands() []*discordgo.ApplicationCommand {
	return []*discordgo.ApplicationCommand{
		{
			Name:        "stats",
			Description: "Show activity statistics",
			Options: []*discordgo.ApplicationCommandOption{
				{Type: discordgo.ApplicationCommandOptionUser, Name: "user", Description: "Whose statistics to show"},
				{Type: discordgo.ApplicationCommandOptionBoolean, Name: "chart", Description: "Include the daily history chart"},
			},
		},
		{
			Name:        "top",
			Description: "Show the leaderboard",
			Options: []*discordgo.ApplicationCommandOption{
				{Type: discordgo.ApplicationCommandOptionString, Name: "type", Description: "Counter to rank by", Choices: activityChoices()},
				{Type: discordgo.ApplicationCommandOptionString, Name: "period", Description: "Time window", Choices: periodChoices()},
				{Type: discordgo.ApplicationCommandOptionInteger, Name: "limit", Description: "Number of users", MinValue: &minTopLimit, MaxValue: service.MaxTopLimit},
			},
		},
		{
			Name:        "task",
			Description: "Manage and view tasks",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "add",
					Description: "Create a task",
					Options: []*discordgo.ApplicationCommandOption{
						{Type: discordgo.ApplicationCommandOptionString, Name: "type", Description: "Activity to count", Required: true, Choices: activityChoices()},
						{Type: discordgo.ApplicationCommandOptionInteger, Name: "target", Description: "Amount to reach", Required: true, MinValue: &minTarget},
						{Type: discordgo.ApplicationCommandOptionString, Name: "description", Description: "What the task is about", Required: true, MaxLength: 256},
						{Type: discordgo.ApplicationCommandOptionUser, Name: "user", Description: "Assign to one user"},
						{Type: discordgo.ApplicationCommandOptionRole, Name: "role", Description: "Limit to holders of a role"},
						{Type: discordgo.ApplicationCommandOptionInteger, Name: "days", Description: "Days until the task expires", MinValue: &minDays},
					},
				},
				{Type: discordgo.ApplicationCommandOptionSubCommand, Name: "list", Description: "List active tasks"},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "delete",
					Description: "Delete a task",
					Options: []*discordgo.ApplicationCommandOption{
						{Type: discordgo.ApplicationCommandOptionInteger, Name: "id", Description: "Task id", Required: true, MinValue: &minTarget},
					},
				},
				{Type: discordgo.ApplicationCommandOptionSubCommand, Name: "show", Description: "Show your tasks and progress"},
				{Type: discordgo.ApplicationCommandOptionSubCommand, Name: "status", Description: "Show progress of every participant"},
			},
		},
		{
			Name:        "partner",
			Description: "Submit a partnership text",
		},
		{
			Name:                     "applications",
			Description:              "Manage staff applications",
			DefaultMemberPermissions: &reviewOnly,
			Options: []*discordgo.ApplicationCommandOption{
				{Type: discordgo.ApplicationCommandOptionSubCommand, Name: "open", Description: "Start accepting applications"},
				{Type: discordgo.ApplicationCommandOptionSubCommand, Name: "close", Description: "Stop accepting applications"},
				{Type: discordgo.ApplicationCommandOptionSubCommand, Name: "post", Description: "Post the application button"},
				{Type: discordgo.ApplicationCommandOptionSubCommand, Name: "pending", Description: "List pending applications"},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "history",
					Description: "Show a member's application history",
					Options: []*discordgo.ApplicationCommandOption{
						{Type: discordgo.ApplicationCommandOptionUser, Name: "user", Description: "Member to look up", Required: true},
					},
				},
			},
		},
	}
}

// registerCommands replaces the command set, per guild when GUILD_ID is set.
func (b *Bot) registerCommands(s *discordgo.Session, appID string) error {
	registered, err := s.ApplicationCommandBulkOverwrite(appID, b.cfg.GuildID, slashCommands())
	if err != nil {
		return fmt.Errorf("failed to register commands: %w", err)
	}
	b.log.Info("Slash commands registered",
		zap.Int("count", len(registered)),
		zap.String("guild_id", b.cfg.GuildID))
	return nil
}

func interactionInvocation(i *discordgo.InteractionCreate) invocation {
	inv := invocation{GuildID: i.GuildID, ChannelID: i.ChannelID}
	if i.Member != nil {
		inv.User = i.Member.User
		inv.Roles = i.Member.Roles
		inv.Permissions = i.Member.Permissions
	}
	return inv
}

func (b *Bot) onInteractionCreate(_ *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.GuildID == "" || i.Member == nil || i.Member.User == nil {
		if i.Type == discordgo.InteractionApplicationCommand {
			b.respondInteraction(i, textReply("This command only works in a server."))
		}
		return
	}
	if !b.inScope(i.GuildID) {
		return
	}

	inv := interactionInvocation(i)
	switch i.Type {
	case discordgo.InteractionApplicationCommand:
		b.handleCommand(i, inv)
	case discordgo.InteractionMessageComponent:
		b.handleComponent(i, inv)
	case discordgo.InteractionModalSubmit:
		b.handleModal(i, inv)
	}
}

func (b *Bot) handleCommand(i *discordgo.InteractionCreate, inv invocation) {
	data := i.ApplicationCommandData()
	b.log.Debug("Slash command",
		zap.String("command", data.Name),
		zap.String("user_id", inv.User.ID))

	switch data.Name {
	case "stats":
		b.statsCommand(i, inv, optionMap(data.Options))
	case "top":
		b.topCommand(i, optionMap(data.Options))
	case "task":
		name, opts := subcommand(data.Options)
		b.taskCommand(i, inv, name, opts)
	case "partner":
		b.partnerCommand(i)
	case "applications":
		name, opts := subcommand(data.Options)
		b.applicationsCommand(i, inv, name, opts)
	}
}

func (b *Bot) handleComponent(i *discordgo.InteractionCreate, inv invocation) {
	id := i.MessageComponentData().CustomID
	switch {
	case strings.HasPrefix(id, applicationPrefix):
		b.applicationComponent(i, inv, id)
	case strings.HasPrefix(id, taskComponentPrefix):
		b.taskComponent(i, inv, id)
	default:
		b.log.Debug("Unknown component", zap.String("custom_id", id))
	}
}

func (b *Bot) handleModal(i *discordgo.InteractionCreate, inv invocation) {
	data := i.ModalSubmitData()
	switch {
	case data.CustomID == partnerModalID:
		b.partnerSubmit(i, inv, modalValues(data))
	case strings.HasPrefix(data.CustomID, applicationPrefix):
		b.applicationModal(i, inv, data.CustomID, modalValues(data))
	default:
		b.log.Debug("Unknown modal", zap.String("custom_id", data.CustomID))
	}
}

type options map[string]*discordgo.ApplicationCommandInteractionDataOption

func optionMap(opts []*discordgo.ApplicationCommandInteractionDataOption) options {
	m := make(options, len(opts))
	for _, o := range opts {
		m[o.Name] = o
	}
	return m
}

// subcommand unwraps the first level of a command with subcommands.
func subcommand(opts []*discordgo.ApplicationCommandInteractionDataOption) (string, options) {
	if len(opts) == 0 || opts[0].Type != discordgo.ApplicationCommandOptionSubCommand {
		return "", options{}
	}
	return opts[0].Name, optionMap(opts[0].Options)
}

func (o options) string(name string) string {
	if v, ok := o[name]; ok {
		return v.StringValue()
	}
	return ""
}

func (o options) int(name string) (int64, bool) {
	if v, ok := o[name]; ok {
		return v.IntValue(), true
	}
	return 0, false
}

func (o options) bool(name string) bool {
	if v, ok := o[name]; ok {
		return v.BoolValue()
	}
	return false
}

// id returns the snowflake of a user, role or channel option.
func (o options) id(name string) string {
	if v, ok := o[name]; ok {
		if s, ok := v.Value.(string); ok {
			return s
		}
	}
	return ""
}
