package discord

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"guildstats/internal/models"
	"guildstats/internal/service"
	"guildstats/pkg/utils"
)

const (
	applicationPrefix = "app:"

	maxInputLabel  = 45
	maxPendingRows = 5
)

var errBadCustomID = errors.New("malformed component id")

// applicationAction is a parsed "app:<action>:<args...>" custom id.
type applicationAction struct {
	Name  string
	AppID int64
	Step  int
}

// parseApplicationID understands:
//
//	app:start
//	app:continue:<step>
//	app:step:<step>
//	app:page:<appID>:<page>
//	app:approve:<appID>
//	app:reject:<appID>
func parseApplicationID(customID string) (applicationAction, error) {
	parts := strings.Split(strings.TrimPrefix(customID, applicationPrefix), ":")
	a := applicationAction{Name: parts[0]}

	var err error
	switch a.Name {
	case "start":
		if len(parts) != 1 {
			return a, errBadCustomID
		}
		return a, nil
	case "continue", "step":
		if len(parts) != 2 {
			return a, errBadCustomID
		}
		a.Step, err = strconv.Atoi(parts[1])
	case "page":
		if len(parts) != 3 {
			return a, errBadCustomID
		}
		if a.AppID, err = strconv.ParseInt(parts[1], 10, 64); err == nil {
			a.Step, err = strconv.Atoi(parts[2])
		}
	case "approve", "reject":
		if len(parts) != 2 {
			return a, errBadCustomID
		}
		a.AppID, err = strconv.ParseInt(parts[1], 10, 64)
	default:
		return a, errBadCustomID
	}
	if err != nil || a.Step < 0 || a.Step >= len(service.ApplicationSteps) {
		return a, errBadCustomID
	}
	return a, nil
}

func stepModal(step int) (string, string, []discordgo.TextInput) {
	s := service.ApplicationSteps[step]
	inputs := make([]discordgo.TextInput, 0, len(s.Questions))
	for _, q := range s.Questions {
		style := discordgo.TextInputShort
		if q.Long {
			style = discordgo.TextInputParagraph
		}
		inputs = append(inputs, discordgo.TextInput{
			CustomID:    q.ID,
			Label:       utils.TruncateString(q.Label, maxInputLabel),
			Style:       style,
			Placeholder: q.Placeholder,
			Required:    true,
			MinLength:   q.MinLength,
			MaxLength:   q.MaxLength,
		})
	}
	return fmt.Sprintf("%sstep:%d", applicationPrefix, step), s.Title, inputs
}

func continueButton(step int, label string) []discordgo.MessageComponent {
	return []discordgo.MessageComponent{
		discordgo.ActionsRow{Components: []discordgo.MessageComponent{
			discordgo.Button{
				Label:    label,
				Style:    discordgo.PrimaryButton,
				CustomID: fmt.Sprintf("%scontinue:%d", applicationPrefix, step),
			},
		}},
	}
}

// applicationEmbed renders one step of a submitted application.
func applicationEmbed(app *models.Application, page int) *discordgo.MessageEmbed {
	step := service.ApplicationSteps[page]

	color := colorWarning
	switch app.Status {
	case models.ApplicationApproved:
		color = colorSuccess
	case models.ApplicationRejected:
		color = colorError
	}

	embed := &discordgo.MessageEmbed{
		Title:       fmt.Sprintf("Application #%d: %s", app.ID, app.Username),
		Description: fmt.Sprintf("%s (%s)\n**%s**", utils.FormatUserMention(app.UserID), app.UserTag, step.Title),
		Color:       color,
		Timestamp:   app.SubmittedAt.Format(time.RFC3339),
		Footer: &discordgo.MessageEmbedFooter{
			Text: fmt.Sprintf("Page %d/%d · %s", page+1, len(service.ApplicationSteps), app.Status),
		},
	}
	for _, q := range step.Questions {
		answer := app.Answers[q.ID]
		if answer == "" {
			answer = "-"
		}
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name:  q.Label,
			Value: utils.TruncateString(answer, maxFieldValue),
		})
	}
	if app.ReviewedBy != nil {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name:  "Reviewed by",
			Value: utils.FormatUserMention(*app.ReviewedBy),
		})
	}
	return embed
}

// applicationControls are the paging and decision buttons under a review embed.
func applicationControls(app *models.Application, page int) []discordgo.MessageComponent {
	reviewed := app.Status != models.ApplicationPending
	return []discordgo.MessageComponent{
		discordgo.ActionsRow{Components: []discordgo.MessageComponent{
			discordgo.Button{
				Label:    "Previous",
				Style:    discordgo.SecondaryButton,
				CustomID: fmt.Sprintf("%spage:%d:%d", applicationPrefix, app.ID, max(page-1, 0)),
				Disabled: page == 0,
			},
			discordgo.Button{
				Label:    "Next",
				Style:    discordgo.SecondaryButton,
				CustomID: fmt.Sprintf("%spage:%d:%d", applicationPrefix, app.ID, min(page+1, len(service.ApplicationSteps)-1)),
				Disabled: page == len(service.ApplicationSteps)-1,
			},
			discordgo.Button{
				Label:    "Approve",
				Style:    discordgo.SuccessButton,
				CustomID: fmt.Sprintf("%sapprove:%d", applicationPrefix, app.ID),
				Disabled: reviewed,
			},
			discordgo.Button{
				Label:    "Reject",
				Style:    discordgo.DangerButton,
				CustomID: fmt.Sprintf("%sreject:%d", applicationPrefix, app.ID),
				Disabled: reviewed,
			},
		}},
	}
}

func (b *Bot) applicationsCommand(i *discordgo.InteractionCreate, inv invocation, action string, opts options) {
	if !b.canReviewApplications(inv) {
		b.respondInteraction(i, textReply(errNoPermission.Error()))
		return
	}

	switch action {
	case "open", "close":
		b.apps.SetOpen(action == "open")
		state := "closed"
		if b.apps.IsOpen() {
			state = "open"
		}
		b.respondInteraction(i, textReply(fmt.Sprintf("Staff applications are now %s.", state)))
	case "post":
		channelID := b.cfg.Applications.ChannelID
		if channelID == "" {
			channelID = inv.ChannelID
		}
		_, err := b.session.ChannelMessageSendComplex(channelID, &discordgo.MessageSend{
			Embeds: []*discordgo.MessageEmbed{{
				Title:       "Staff applications",
				Description: fmt.Sprintf("Press the button to apply. The form has %d short pages.", len(service.ApplicationSteps)),
				Color:       colorInfo,
			}},
			Components: []discordgo.MessageComponent{
				discordgo.ActionsRow{Components: []discordgo.MessageComponent{
					discordgo.Button{Label: "Apply", Style: discordgo.PrimaryButton, CustomID: applicationPrefix + "start"},
				}},
			},
		})
		if err != nil {
			b.log.Error("Failed to post application button", zap.String("channel_id", channelID), zap.Error(err))
			b.respondInteraction(i, textReply(genericFailure))
			return
		}
		b.respondInteraction(i, textReply(fmt.Sprintf("Application button posted in %s.", utils.FormatChannelMention(channelID))))
	case "pending":
		apps, err := b.apps.Pending(b.ctx)
		if err != nil {
			b.respondInteraction(i, b.errorReply(err, b.log))
			return
		}
		b.respondInteraction(i, pendingReply(apps))
	case "history":
		userID := opts.id("user")
		events, err := b.apps.History(b.ctx, userID)
		if err != nil {
			b.respondInteraction(i, b.errorReply(err, b.log))
			return
		}
		b.respondInteraction(i, historyReply(userID, events))
	}
}

func historyReply(userID string, events []models.ApplicationEvent) reply {
	embed := &discordgo.MessageEmbed{
		Title:       "Application history",
		Description: utils.FormatUserMention(userID) + " has no application history.",
		Color:       colorInfo,
	}
	if len(events) > 0 {
		lines := make([]string, 0, len(events))
		for _, e := range events {
			line := fmt.Sprintf("<t:%d:f> **%s**", e.Timestamp.Unix(), e.Action)
			if e.Details != nil {
				line += ": " + *e.Details
			}
			lines = append(lines, line)
		}
		embed.Description = utils.TruncateString(utils.FormatUserMention(userID)+"\n"+strings.Join(lines, "\n"), 4096)
	}
	return reply{Embeds: []*discordgo.MessageEmbed{embed}, Ephemeral: true}
}

func pendingReply(apps []models.Application) reply {
	embed := &discordgo.MessageEmbed{Title: "Pending applications", Color: colorInfo}
	if len(apps) == 0 {
		embed.Description = "There are no pending applications."
		return reply{Embeds: []*discordgo.MessageEmbed{embed}, Ephemeral: true}
	}

	lines := make([]string, 0, len(apps))
	var buttons []discordgo.MessageComponent
	for _, app := range apps {
		lines = append(lines, fmt.Sprintf("#%d %s submitted <t:%d:R>", app.ID, utils.FormatUserMention(app.UserID), app.SubmittedAt.Unix()))
		if len(buttons) < maxPendingRows {
			buttons = append(buttons, discordgo.Button{
				Label:    fmt.Sprintf("Review #%d", app.ID),
				Style:    discordgo.SecondaryButton,
				CustomID: fmt.Sprintf("%spage:%d:0", applicationPrefix, app.ID),
			})
		}
	}
	embed.Description = utils.TruncateString(strings.Join(lines, "\n"), 4096)
	return reply{
		Embeds:     []*discordgo.MessageEmbed{embed},
		Components: []discordgo.MessageComponent{discordgo.ActionsRow{Components: buttons}},
		Ephemeral:  true,
	}
}

func (b *Bot) applicationComponent(i *discordgo.InteractionCreate, inv invocation, customID string) {
	a, err := parseApplicationID(customID)
	if err != nil {
		b.log.Warn("Unknown application component", zap.String("custom_id", customID))
		return
	}

	switch a.Name {
	case "start":
		if _, err := b.apps.Start(b.ctx, inv.User.ID, inv.User.String(), displayName(inv.User)); err != nil {
			b.respondInteraction(i, b.errorReply(err, b.log))
			return
		}
		id, title, inputs := stepModal(0)
		b.respondModal(i, id, title, inputs...)
	case "continue":
		step, ok := b.apps.CurrentStep(inv.User.ID)
		switch {
		case !ok:
			b.respondInteraction(i, textReply(service.ErrNoDraft.Error()))
		case step != a.Step:
			b.respondInteraction(i, textReply(service.ErrStepOutOfOrder.Error()))
		default:
			id, title, inputs := stepModal(step)
			b.respondModal(i, id, title, inputs...)
		}
	case "page":
		if !b.canReviewApplications(inv) {
			b.respondInteraction(i, textReply(errNoPermission.Error()))
			return
		}
		app, err := b.apps.Application(b.ctx, a.AppID)
		if err != nil {
			b.respondInteraction(i, b.errorReply(err, b.log))
			return
		}
		b.updateMessage(i, reply{
			Embeds:     []*discordgo.MessageEmbed{applicationEmbed(app, a.Step)},
			Components: applicationControls(app, a.Step),
		})
	case "approve", "reject":
		if !b.canReviewApplications(inv) {
			b.respondInteraction(i, textReply(errNoPermission.Error()))
			return
		}
		b.decideApplication(i, inv, a.AppID, a.Name == "approve")
	}
}

func (b *Bot) applicationModal(i *discordgo.InteractionCreate, inv invocation, customID string, values map[string]string) {
	a, err := parseApplicationID(customID)
	if err != nil || a.Name != "step" {
		b.log.Warn("Unknown application modal", zap.String("custom_id", customID))
		return
	}

	next, app, err := b.apps.SubmitStep(b.ctx, inv.User.ID, a.Step, values)
	if err != nil {
		r := b.errorReply(err, b.log)
		var validation *service.ValidationError
		if errors.As(err, &validation) {
			r.Content = "Please fix these answers and try again:\n- " + strings.Join(validation.Problems, "\n- ")
			r.Components = continueButton(a.Step, "Try again")
		}
		b.respondInteraction(i, r)
		return
	}

	if app == nil {
		r := textReply(fmt.Sprintf("Page %d of %d saved.", next, len(service.ApplicationSteps)))
		r.Components = continueButton(next, "Continue")
		b.respondInteraction(i, r)
		return
	}

	b.respondInteraction(i, textReply("Your application was submitted. You will get a message once it is reviewed."))
	b.postForReview(app)
}

// postForReview sends a new application to the moderators' log channel.
func (b *Bot) postForReview(app *models.Application) {
	channelID := b.cfg.Applications.LogChannelID
	if channelID == "" {
		b.log.Warn("Application log channel not configured", zap.Int64("application_id", app.ID))
		return
	}
	_, err := b.session.ChannelMessageSendComplex(channelID, &discordgo.MessageSend{
		Embeds:          []*discordgo.MessageEmbed{applicationEmbed(app, 0)},
		Components:      applicationControls(app, 0),
		AllowedMentions: &discordgo.MessageAllowedMentions{},
	})
	if err != nil {
		b.log.Error("Failed to post application for review",
			zap.Int64("application_id", app.ID),
			zap.Error(err))
	}
}

func (b *Bot) decideApplication(i *discordgo.InteractionCreate, inv invocation, appID int64, approve bool) {
	app, err := b.apps.Decide(b.ctx, appID, inv.User.ID, approve, "")
	if err != nil {
		b.respondInteraction(i, b.errorReply(err, b.log))
		return
	}
	log := b.log.With(zap.Int64("application_id", app.ID), zap.String("user_id", app.UserID))

	message := "Your staff application was not accepted this time. Thank you for applying."
	if approve {
		message = "Congratulations, your staff application was accepted!"
		if roleID := b.cfg.Roles.StaffRoleID; roleID != "" {
			if err := b.session.GuildMemberRoleAdd(inv.GuildID, app.UserID, roleID); err != nil {
				log.Error("Failed to grant staff role", zap.Error(err))
			}
		}
	}
	b.notifyApplicant(app.UserID, message, log)

	b.updateMessage(i, reply{
		Embeds:     []*discordgo.MessageEmbed{applicationEmbed(app, 0)},
		Components: applicationControls(app, 0),
	})
}

func (b *Bot) notifyApplicant(userID, message string, log *zap.Logger) {
	ch, err := b.session.UserChannelCreate(userID)
	if err != nil {
		log.Warn("Failed to open DM with applicant", zap.Error(err))
		return
	}
	if _, err := b.session.ChannelMessageSend(ch.ID, message); err != nil {
		log.Warn("Failed to DM applicant", zap.Error(err))
	}
}
