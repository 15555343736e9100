package discord

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"guildstats/internal/models"
	"guildstats/internal/service"
	"guildstats/pkg/utils"
)

const (
	taskComponentPrefix = "task:"

	maxFieldValue = 1024
	progressWidth = 10

	tasksPerPage = 10
	// Status fields can be up to maxFieldValue long and an embed holds 6000 characters.
	statusPerPage = 4
)

const taskUsage = "Usage: `task add <message|voice|partner> <target> <description> [@user] [days]`, " +
	"`task list`, `task delete <id>`, `task show`, `task status`"

var (
	errNoPermission = errors.New("you do not have permission to do that")
	errUserAndRole  = &service.ValidationError{Problems: []string{"choose either a user or a role, not both"}}
)

var taskActions = map[string]string{
	"add": "add", "ekle": "add",
	"list": "list", "listele": "list",
	"delete": "delete", "sil": "delete",
	"show": "show", "göster": "show", "goster": "show",
	"status": "status", "durum": "status",
}

var taskViews = map[string]struct{}{"list": {}, "show": {}, "status": {}}

// parseTaskAdd reads "<type> <target> <description...> [@user|@role] [days]". Without a
// user or role mention the task gets fallback eligibility.
func parseTaskAdd(args []string, createdBy string, fallback models.Eligibility) (service.CreateTaskParams, error) {
	if len(args) < 3 {
		return service.CreateTaskParams{}, errors.New(taskUsage)
	}

	activity, err := models.ParseActivityType(args[0])
	if err != nil {
		return service.CreateTaskParams{}, service.ErrInvalidActivity
	}
	target, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil || target <= 0 {
		return service.CreateTaskParams{}, service.ErrInvalidTarget
	}

	p := service.CreateTaskParams{
		Type:        activity,
		Target:      target,
		Eligibility: fallback,
		CreatedBy:   createdBy,
	}

	rest := args[2:]
	if n := len(rest); n > 1 {
		if days, err := strconv.Atoi(rest[n-1]); err == nil {
			p.Days = &days
			rest = rest[:n-1]
		}
	}
	if n := len(rest); n > 1 {
		last := rest[n-1]
		switch {
		case strings.HasPrefix(last, "<@&") && strings.HasSuffix(last, ">"):
			p.Eligibility = models.RoleSet(strings.TrimSuffix(strings.TrimPrefix(last, "<@&"), ">"))
			rest = rest[:n-1]
		case utils.IsUserMention(last):
			p.Eligibility = models.SingleUser(utils.ExtractUserIDFromMention(last))
			rest = rest[:n-1]
		}
	}

	p.Description = strings.Join(rest, " ")
	if p.Description == "" {
		return service.CreateTaskParams{}, errors.New(taskUsage)
	}
	return p, nil
}

// taskParamsFromOptions builds task parameters from the slash command options.
func taskParamsFromOptions(opts options, createdBy string, fallback models.Eligibility) (service.CreateTaskParams, error) {
	activity, err := models.ParseActivityType(opts.string("type"))
	if err != nil {
		return service.CreateTaskParams{}, service.ErrInvalidActivity
	}
	target, _ := opts.int("target")

	p := service.CreateTaskParams{
		Type:        activity,
		Target:      target,
		Description: opts.string("description"),
		Eligibility: fallback,
		CreatedBy:   createdBy,
	}
	if days, ok := opts.int("days"); ok {
		d := int(days)
		p.Days = &d
	}

	userID, roleID := opts.id("user"), opts.id("role")
	switch {
	case userID != "" && roleID != "":
		return service.CreateTaskParams{}, errUserAndRole
	case userID != "":
		p.Eligibility = models.SingleUser(userID)
	case roleID != "":
		p.Eligibility = models.RoleSet(roleID)
	}
	return p, nil
}

// defaultEligibility limits unassigned tasks to the authorized roles and the special
// admin role. With none configured the task is open to everyone.
func (b *Bot) defaultEligibility() models.Eligibility {
	return models.RoleSet(b.cfg.TaskManagerRoles()...)
}

func eligibilityText(e models.Eligibility) string {
	switch e.Kind {
	case models.EligibleSingleUser:
		return utils.FormatUserMention(e.UserID)
	case models.EligibleRoleSet:
		roles := make([]string, 0, len(e.Roles))
		for _, r := range e.Roles {
			roles = append(roles, utils.FormatRoleMention(r))
		}
		return strings.Join(roles, ", ")
	}
	return "Everyone"
}

func taskHeadline(t models.Task) string {
	return fmt.Sprintf("#%d %s: %s", t.ID, t.Type.Label(), utils.TruncateString(t.Description, 200))
}

func (b *Bot) taskCommand(i *discordgo.InteractionCreate, inv invocation, action string, opts options) {
	var r reply
	switch action {
	case "add":
		if !b.canManageTasks(inv) {
			r = textReply(errNoPermission.Error())
			break
		}
		p, err := taskParamsFromOptions(opts, inv.User.ID, b.defaultEligibility())
		if err != nil {
			r = b.errorReply(err, b.log)
			break
		}
		r = b.taskAdd(b.ctx, p)
	case "delete":
		id, _ := opts.int("id")
		r = b.taskDelete(b.ctx, inv, id)
	default:
		r = b.taskView(b.ctx, inv, action, 0)
	}
	b.respondInteraction(i, r)
}

// taskPrefix handles ".task <action> ..." and its Turkish aliases.
func (b *Bot) taskPrefix(inv invocation, args []string) reply {
	if len(args) == 0 {
		return textReply(taskUsage)
	}
	action, ok := taskActions[strings.ToLower(args[0])]
	if !ok {
		return textReply(taskUsage)
	}
	args = args[1:]

	switch action {
	case "add":
		if !b.canManageTasks(inv) {
			return textReply(errNoPermission.Error())
		}
		p, err := parseTaskAdd(args, inv.User.ID, b.defaultEligibility())
		if err != nil {
			return textReply(err.Error())
		}
		return b.taskAdd(b.ctx, p)
	case "delete":
		if len(args) != 1 {
			return textReply(taskUsage)
		}
		id, err := strconv.ParseInt(strings.TrimPrefix(args[0], "#"), 10, 64)
		if err != nil {
			return textReply("Task id must be a number.")
		}
		return b.taskDelete(b.ctx, inv, id)
	}
	return b.taskView(b.ctx, inv, action, 0)
}

// taskAdd expects the caller to have checked canManageTasks.
func (b *Bot) taskAdd(ctx context.Context, p service.CreateTaskParams) reply {
	id, err := b.tasks.Create(ctx, p)
	if err != nil {
		return b.errorReply(err, b.log)
	}

	days := b.cfg.Tasks.DefaultDays
	if p.Days != nil {
		days = *p.Days
	}
	return embedReply(&discordgo.MessageEmbed{
		Title: fmt.Sprintf("Task #%d created", id),
		Color: colorSuccess,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Type", Value: p.Type.Label(), Inline: true},
			{Name: "Target", Value: p.Type.Unit(p.Target), Inline: true},
			{Name: "Duration", Value: fmt.Sprintf("%d days", days), Inline: true},
			{Name: "For", Value: eligibilityText(p.Eligibility)},
			{Name: "Description", Value: utils.TruncateString(p.Description, maxFieldValue)},
		},
	})
}

func (b *Bot) taskDelete(ctx context.Context, inv invocation, id int64) reply {
	if !b.canManageTasks(inv) {
		return textReply(errNoPermission.Error())
	}
	if err := b.tasks.Delete(ctx, id); err != nil {
		return b.errorReply(err, b.log)
	}
	b.log.Info("Task deleted by command", zap.Int64("task_id", id), zap.String("user_id", inv.User.ID))
	return textReply(fmt.Sprintf("Task #%d deleted.", id))
}

func (b *Bot) canRunTaskView(inv invocation, action string) bool {
	if action == "show" {
		return b.canViewTasks(inv)
	}
	return b.canManageTasks(inv)
}

// taskView runs the read-only actions: list, show and status. Long results are split
// into pages, page is clamped to the ones that exist.
func (b *Bot) taskView(ctx context.Context, inv invocation, action string, page int) reply {
	if _, ok := taskViews[action]; !ok {
		return textReply(taskUsage)
	}
	if !b.canRunTaskView(inv, action) {
		return textReply(errNoPermission.Error())
	}

	switch action {
	case "list":
		tasks, err := b.tasks.List(ctx)
		if err != nil {
			return b.errorReply(err, b.log)
		}
		page, pages := clampPage(page, len(tasks), tasksPerPage)
		return pagedReply(taskListEmbed(tasks, page), action, page, pages)
	case "show":
		tasks, err := b.tasks.UserTasks(ctx, inv.User.ID, inv.Roles)
		if err != nil {
			return b.errorReply(err, b.log)
		}
		page, pages := clampPage(page, len(tasks), tasksPerPage)
		r := pagedReply(userTasksEmbed(tasks, page), action, page, pages)
		r.Ephemeral = true
		return r
	default:
		reports, err := b.tasks.Status(ctx)
		if err != nil {
			return b.errorReply(err, b.log)
		}
		page, pages := clampPage(page, len(reports), statusPerPage)
		return pagedReply(taskStatusEmbed(reports, page), action, page, pages)
	}
}

// taskComponent turns the page of a task list, show or status message.
func (b *Bot) taskComponent(i *discordgo.InteractionCreate, inv invocation, customID string) {
	view, page, err := parseTaskPageID(customID)
	if err != nil {
		b.log.Debug("Bad task component", zap.String("custom_id", customID), zap.Error(err))
		return
	}
	if !b.canRunTaskView(inv, view) {
		b.respondInteraction(i, textReply(errNoPermission.Error()))
		return
	}

	r := b.taskView(b.ctx, inv, view, page)
	if len(r.Embeds) == 0 {
		b.respondInteraction(i, r)
		return
	}
	if r.Components == nil {
		r.Components = []discordgo.MessageComponent{}
	}
	b.updateMessage(i, r)
}

// parseTaskPageID reads "task:<list|show|status>:<page>".
func parseTaskPageID(customID string) (string, int, error) {
	parts := strings.Split(strings.TrimPrefix(customID, taskComponentPrefix), ":")
	if len(parts) != 2 {
		return "", 0, errBadCustomID
	}
	if _, ok := taskViews[parts[0]]; !ok {
		return "", 0, errBadCustomID
	}
	page, err := strconv.Atoi(parts[1])
	if err != nil || page < 0 {
		return "", 0, errBadCustomID
	}
	return parts[0], page, nil
}

// clampPage returns page limited to [0, pages) and the page count, at least one.
func clampPage(page, total, size int) (int, int) {
	pages := max((total+size-1)/size, 1)
	return min(max(page, 0), pages-1), pages
}

func pageOf[T any](items []T, page, size int) []T {
	start := min(page*size, len(items))
	return items[start:min(start+size, len(items))]
}

// pagedReply adds a page footer and previous/next buttons when there is more than one page.
func pagedReply(embed *discordgo.MessageEmbed, view string, page, pages int) reply {
	r := embedReply(embed)
	if pages <= 1 {
		return r
	}
	embed.Footer = &discordgo.MessageEmbedFooter{Text: fmt.Sprintf("Page %d/%d", page+1, pages)}
	r.Components = []discordgo.MessageComponent{
		discordgo.ActionsRow{Components: []discordgo.MessageComponent{
			discordgo.Button{
				Label:    "Previous",
				Style:    discordgo.SecondaryButton,
				CustomID: fmt.Sprintf("%s%s:%d", taskComponentPrefix, view, max(page-1, 0)),
				Disabled: page == 0,
			},
			discordgo.Button{
				Label:    "Next",
				Style:    discordgo.SecondaryButton,
				CustomID: fmt.Sprintf("%s%s:%d", taskComponentPrefix, view, min(page+1, pages-1)),
				Disabled: page == pages-1,
			},
		}},
	}
	return r
}

func taskListEmbed(tasks []models.Task, page int) *discordgo.MessageEmbed {
	embed := &discordgo.MessageEmbed{Title: "Active tasks", Color: colorInfo}
	if len(tasks) == 0 {
		embed.Description = "There are no active tasks."
		return embed
	}
	for _, t := range pageOf(tasks, page, tasksPerPage) {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name: utils.TruncateString(taskHeadline(t), 256),
			Value: fmt.Sprintf("Target: %s\nFor: %s\nExpires <t:%d:R>",
				t.Type.Unit(t.TargetAmount), eligibilityText(t.Eligibility), t.ExpiresAt.Unix()),
		})
	}
	return embed
}

func userTasksEmbed(tasks []models.UserTask, page int) *discordgo.MessageEmbed {
	embed := &discordgo.MessageEmbed{Title: "Your tasks", Color: colorInfo}
	if len(tasks) == 0 {
		embed.Description = "You have no active tasks."
		return embed
	}
	for _, t := range pageOf(tasks, page, tasksPerPage) {
		state := fmt.Sprintf("%s %d/%d", utils.ProgressBar(t.Progress, t.TargetAmount, progressWidth), t.Progress, t.TargetAmount)
		if t.Completed {
			state += " ✅"
		}
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name:  utils.TruncateString(taskHeadline(t.Task), 256),
			Value: fmt.Sprintf("%s\nExpires <t:%d:R>", state, t.ExpiresAt.Unix()),
		})
	}
	return embed
}

func participantLines(ps []models.Participant, target int64) string {
	lines := make([]string, 0, len(ps))
	for _, p := range ps {
		lines = append(lines, fmt.Sprintf("%s %d/%d", utils.FormatUserMention(p.UserID), p.Progress, target))
	}
	return strings.Join(lines, "\n")
}

func taskStatusEmbed(reports []models.TaskReport, page int) *discordgo.MessageEmbed {
	embed := &discordgo.MessageEmbed{Title: "Task status", Color: colorInfo}
	if len(reports) == 0 {
		embed.Description = "There are no active tasks."
		return embed
	}
	for _, r := range pageOf(reports, page, statusPerPage) {
		value := "No participants yet."
		if len(r.Participants) > 0 {
			completed, incomplete := r.Split()
			value = fmt.Sprintf("Completed: %d, in progress: %d", len(completed), len(incomplete))
			if len(completed) > 0 {
				value += "\n✅ " + participantLines(completed, r.TargetAmount)
			}
			if len(incomplete) > 0 {
				value += "\n⏳ " + participantLines(incomplete, r.TargetAmount)
			}
		}
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name:  utils.TruncateString(taskHeadline(r.Task), 256),
			Value: utils.TruncateString(value, maxFieldValue),
		})
	}
	return embed
}
