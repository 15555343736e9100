package discord

import (
	"errors"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"guildstats/internal/service"
)

const (
	colorInfo    = 0x5865F2
	colorSuccess = 0x57F287
	colorWarning = 0xFEE75C
	colorError   = 0xED4245
)

const genericFailure = "Something went wrong while running that command. Please try again later."

// invocation is who ran a command and where, independent of prefix or slash form.
type invocation struct {
	GuildID     string
	ChannelID   string
	User        *discordgo.User
	Roles       []string
	Permissions int64
}

// reply is a command result that can be sent as a message or an interaction response.
type reply struct {
	Content    string
	Embeds     []*discordgo.MessageEmbed
	Files      []*discordgo.File
	Components []discordgo.MessageComponent
	Ephemeral  bool
}

func textReply(content string) reply {
	return reply{Content: content, Ephemeral: true}
}

func embedReply(embed *discordgo.MessageEmbed) reply {
	return reply{Embeds: []*discordgo.MessageEmbed{embed}}
}

// errorReply maps service errors to user-facing text. Unknown errors are logged and
// replaced by a generic message.
func (b *Bot) errorReply(err error, log *zap.Logger) reply {
	var (
		cooldown   *service.CooldownError
		validation *service.ValidationError
	)
	switch {
	case errors.Is(err, service.ErrInvalidActivity),
		errors.Is(err, service.ErrInvalidTarget),
		errors.Is(err, service.ErrInvalidDuration),
		errors.Is(err, service.ErrTaskNotFound),
		errors.Is(err, service.ErrApplicationsClosed),
		errors.Is(err, service.ErrNoDraft),
		errors.Is(err, service.ErrStepOutOfOrder),
		errors.Is(err, service.ErrApplicationNotFound),
		errors.Is(err, service.ErrAlreadyReviewed),
		errors.As(err, &cooldown),
		errors.As(err, &validation):
		return textReply(err.Error())
	}
	log.Error("Command failed", zap.Error(err))
	return textReply(genericFailure)
}

func (b *Bot) respondInteraction(i *discordgo.InteractionCreate, r reply) {
	data := &discordgo.InteractionResponseData{
		Content:         r.Content,
		Embeds:          r.Embeds,
		Files:           r.Files,
		Components:      r.Components,
		AllowedMentions: &discordgo.MessageAllowedMentions{},
	}
	if r.Ephemeral {
		data.Flags = discordgo.MessageFlagsEphemeral
	}
	err := b.session.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: data,
	})
	if err != nil {
		b.log.Warn("Failed to respond to interaction", zap.String("interaction_id", i.ID), zap.Error(err))
	}
}

// deferInteraction acknowledges a slow command; finish with editInteraction.
func (b *Bot) deferInteraction(i *discordgo.InteractionCreate, ephemeral bool) bool {
	data := &discordgo.InteractionResponseData{}
	if ephemeral {
		data.Flags = discordgo.MessageFlagsEphemeral
	}
	err := b.session.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
		Data: data,
	})
	if err != nil {
		b.log.Warn("Failed to defer interaction", zap.String("interaction_id", i.ID), zap.Error(err))
		return false
	}
	return true
}

func (b *Bot) editInteraction(i *discordgo.InteractionCreate, r reply) {
	edit := &discordgo.WebhookEdit{
		Content:         &r.Content,
		Files:           r.Files,
		AllowedMentions: &discordgo.MessageAllowedMentions{},
	}
	if r.Embeds != nil {
		edit.Embeds = &r.Embeds
	}
	if r.Components != nil {
		edit.Components = &r.Components
	}
	if _, err := b.session.InteractionResponseEdit(i.Interaction, edit); err != nil {
		b.log.Warn("Failed to edit interaction response", zap.String("interaction_id", i.ID), zap.Error(err))
	}
}

func (b *Bot) respondMessage(m *discordgo.MessageCreate, r reply) {
	_, err := b.session.ChannelMessageSendComplex(m.ChannelID, &discordgo.MessageSend{
		Content:         r.Content,
		Embeds:          r.Embeds,
		Files:           r.Files,
		Components:      r.Components,
		Reference:       m.Reference(),
		AllowedMentions: &discordgo.MessageAllowedMentions{},
	})
	if err != nil {
		b.log.Warn("Failed to reply to message", zap.String("channel_id", m.ChannelID), zap.Error(err))
	}
}

// respondModal opens a modal in response to a command or button.
func (b *Bot) respondModal(i *discordgo.InteractionCreate, customID, title string, inputs ...discordgo.TextInput) {
	rows := make([]discordgo.MessageComponent, 0, len(inputs))
	for _, in := range inputs {
		rows = append(rows, discordgo.ActionsRow{Components: []discordgo.MessageComponent{in}})
	}
	err := b.session.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseModal,
		Data: &discordgo.InteractionResponseData{
			CustomID:   customID,
			Title:      title,
			Components: rows,
		},
	})
	if err != nil {
		b.log.Warn("Failed to open modal", zap.String("custom_id", customID), zap.Error(err))
	}
}

// modalValues collects the text inputs of a submitted modal by custom id.
func modalValues(data discordgo.ModalSubmitInteractionData) map[string]string {
	out := make(map[string]string)
	for _, c := range data.Components {
		row, ok := c.(*discordgo.ActionsRow)
		if !ok {
			continue
		}
		for _, rc := range row.Components {
			if in, ok := rc.(*discordgo.TextInput); ok {
				out[in.CustomID] = in.Value
			}
		}
	}
	return out
}

// updateMessage replaces the message a component belongs to.
func (b *Bot) updateMessage(i *discordgo.InteractionCreate, r reply) {
	err := b.session.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseUpdateMessage,
		Data: &discordgo.InteractionResponseData{
			Content:         r.Content,
			Embeds:          r.Embeds,
			Components:      r.Components,
			AllowedMentions: &discordgo.MessageAllowedMentions{},
		},
	})
	if err != nil {
		b.log.Warn("Failed to update message", zap.String("interaction_id", i.ID), zap.Error(err))
	}
}
