package discord

import (
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"guildstats/internal/models"
	"guildstats/internal/service"
	"guildstats/pkg/utils"
)

const (
	partnerModalID = "partner:submit"
	partnerInputID = "partner:text"

	partnerMinLength = 10
	partnerMaxLength = 2000
)

func (b *Bot) partnerCommand(i *discordgo.InteractionCreate) {
	if b.cfg.Channels.PartnerChannelID == "" {
		b.respondInteraction(i, textReply("Partner submissions are not configured on this server."))
		return
	}
	b.respondModal(i, partnerModalID, "Partnership submission", discordgo.TextInput{
		CustomID:    partnerInputID,
		Label:       "Partnership text",
		Style:       discordgo.TextInputParagraph,
		Placeholder: "Paste the partnership text here",
		Required:    true,
		MinLength:   partnerMinLength,
		MaxLength:   partnerMaxLength,
	})
}

// partnerSubmit reposts the text in the partner channel and counts it for the user.
func (b *Bot) partnerSubmit(i *discordgo.InteractionCreate, inv invocation, values map[string]string) {
	text := strings.TrimSpace(values[partnerInputID])
	if n := len([]rune(text)); n < partnerMinLength || n > partnerMaxLength {
		b.respondInteraction(i, textReply(fmt.Sprintf("Partnership text must be between %d and %d characters.", partnerMinLength, partnerMaxLength)))
		return
	}

	log := b.log.With(zap.String("user_id", inv.User.ID))
	_, err := b.session.ChannelMessageSendComplex(b.cfg.Channels.PartnerChannelID, &discordgo.MessageSend{
		Content:         fmt.Sprintf("%s\n\nShared by %s", utils.NeutralizeMentions(text), utils.FormatUserMention(inv.User.ID)),
		AllowedMentions: &discordgo.MessageAllowedMentions{},
	})
	if err != nil {
		log.Error("Failed to post partnership", zap.Error(err))
		b.respondInteraction(i, textReply(genericFailure))
		return
	}

	completed, err := b.accounting.RecordActivity(b.ctx, service.Activity{
		UserID: inv.User.ID,
		Roles:  inv.Roles,
		Type:   models.ActivityPartner,
		Amount: 1,
	})
	if err != nil {
		log.Error("Failed to record partnership", zap.Error(err))
	}

	msg := fmt.Sprintf("Thanks, your partnership was posted in %s.", utils.FormatChannelMention(b.cfg.Channels.PartnerChannelID))
	for _, t := range completed {
		msg += fmt.Sprintf("\nTask completed: %s", taskHeadline(t))
	}
	b.respondInteraction(i, textReply(msg))
}
