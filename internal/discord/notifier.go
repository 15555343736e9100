package discord

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"guildstats/internal/models"
	"guildstats/pkg/utils"
)

// EmbedSender is the part of *discordgo.Session the notifier uses.
type EmbedSender interface {
	ChannelMessageSendEmbed(channelID string, embed *discordgo.MessageEmbed, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// TaskLogNotifier posts a summary of every expired task to the task log channel.
type TaskLogNotifier struct {
	sender    EmbedSender
	channelID string
	log       *zap.Logger
}

func NewTaskLogNotifier(sender EmbedSender, channelID string, log *zap.Logger) *TaskLogNotifier {
	return &TaskLogNotifier{sender: sender, channelID: channelID, log: log}
}

// ReportExpiredTask sends the report. Without a configured channel it only logs.
func (n *TaskLogNotifier) ReportExpiredTask(ctx context.Context, task models.ExpiredTask) error {
	if n.channelID == "" {
		n.log.Info("Task expired", zap.Int64("task_id", task.ID), zap.Int("participants", len(task.Participants)))
		return nil
	}
	if _, err := n.sender.ChannelMessageSendEmbed(n.channelID, expiredTaskEmbed(task), discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("failed to send expired task report: %w", err)
	}
	return nil
}

func expiredTaskEmbed(task models.ExpiredTask) *discordgo.MessageEmbed {
	embed := &discordgo.MessageEmbed{
		Title:       fmt.Sprintf("Task #%d expired", task.ID),
		Description: utils.TruncateString(task.Description, 2048),
		Color:       colorWarning,
		Timestamp:   task.ExpiresAt.Format(time.RFC3339),
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Type", Value: task.Type.Label(), Inline: true},
			{Name: "Target", Value: task.Type.Unit(task.TargetAmount), Inline: true},
			{Name: "For", Value: eligibilityText(task.Eligibility), Inline: true},
			{Name: "Expired", Value: fmt.Sprintf("<t:%d:f>", task.ExpiresAt.Unix()), Inline: true},
		},
	}

	if len(task.Participants) == 0 {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name:  "Participants",
			Value: "No participants.",
		})
		return embed
	}

	completed, incomplete := task.Split()
	embed.Fields = append(embed.Fields,
		&discordgo.MessageEmbedField{
			Name:  fmt.Sprintf("Completed (%d)", len(completed)),
			Value: participantList(completed, task.TargetAmount),
		},
		&discordgo.MessageEmbedField{
			Name:  fmt.Sprintf("Not completed (%d)", len(incomplete)),
			Value: participantList(incomplete, task.TargetAmount),
		},
	)
	return embed
}

func participantList(ps []models.Participant, target int64) string {
	if len(ps) == 0 {
		return "-"
	}
	lines := make([]string, 0, len(ps))
	for _, p := range ps {
		lines = append(lines, fmt.Sprintf("%s (%d/%d)", utils.FormatUserMention(p.UserID), p.Progress, target))
	}
	return utils.TruncateString(strings.Join(lines, "\n"), maxFieldValue)
}
