package discord

import (
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"guildstats/internal/config"
	"guildstats/internal/models"
	"guildstats/internal/service"
)

var staffOnly = models.RoleSet("mod", "helper", "special")

func TestParseTaskAdd(t *testing.T) {
	three := 3

	tests := []struct {
		name string
		args string
		want service.CreateTaskParams
		err  error
	}{
		{
			name: "authorized roles with default duration",
			args: "mesaj 50 Send fifty messages",
			want: service.CreateTaskParams{
				Type: models.ActivityMessage, Target: 50, Description: "Send fifty messages",
				Eligibility: staffOnly, CreatedBy: "admin",
			},
		},
		{
			name: "assigned user and days",
			args: "ses 120 Talk a lot <@!123> 3",
			want: service.CreateTaskParams{
				Type: models.ActivityVoice, Target: 120, Description: "Talk a lot", Days: &three,
				Eligibility: models.SingleUser("123"), CreatedBy: "admin",
			},
		},
		{
			name: "role",
			args: "partner 2 Grow the server <@&77>",
			want: service.CreateTaskParams{
				Type: models.ActivityPartner, Target: 2, Description: "Grow the server",
				Eligibility: models.RoleSet("77"), CreatedBy: "admin",
			},
		},
		{
			name: "lone number is the description",
			args: "message 5 7",
			want: service.CreateTaskParams{
				Type: models.ActivityMessage, Target: 5, Description: "7",
				Eligibility: staffOnly, CreatedBy: "admin",
			},
		},
		{name: "zero target", args: "message 0 nothing", err: service.ErrInvalidTarget},
		{name: "bad target", args: "message many nothing", err: service.ErrInvalidTarget},
		{name: "unknown type", args: "dance 5 moves", err: service.ErrInvalidActivity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseTaskAdd(strings.Fields(tt.args), "admin", staffOnly)
			if tt.err != nil {
				assert.ErrorIs(t, err, tt.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseTaskAdd_Usage(t *testing.T) {
	_, err := parseTaskAdd([]string{"message", "5"}, "admin", staffOnly)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Usage")
}

func stringOpt(name, v string) *discordgo.ApplicationCommandInteractionDataOption {
	return &discordgo.ApplicationCommandInteractionDataOption{Name: name, Type: discordgo.ApplicationCommandOptionString, Value: v}
}

func intOpt(name string, v int64) *discordgo.ApplicationCommandInteractionDataOption {
	return &discordgo.ApplicationCommandInteractionDataOption{Name: name, Type: discordgo.ApplicationCommandOptionInteger, Value: float64(v)}
}

func idOpt(name string, typ discordgo.ApplicationCommandOptionType, id string) *discordgo.ApplicationCommandInteractionDataOption {
	return &discordgo.ApplicationCommandInteractionDataOption{Name: name, Type: typ, Value: id}
}

func TestTaskParamsFromOptions(t *testing.T) {
	base := []*discordgo.ApplicationCommandInteractionDataOption{
		stringOpt("type", "voice"),
		intOpt("target", 60),
		stringOpt("description", "Hang out"),
	}

	t.Run("authorized roles by default", func(t *testing.T) {
		p, err := taskParamsFromOptions(optionMap(base), "admin", staffOnly)
		require.NoError(t, err)
		assert.Equal(t, models.ActivityVoice, p.Type)
		assert.Equal(t, int64(60), p.Target)
		assert.Nil(t, p.Days)
		assert.Equal(t, staffOnly, p.Eligibility)
	})

	t.Run("user and days", func(t *testing.T) {
		opts := append(base[:3:3], idOpt("user", discordgo.ApplicationCommandOptionUser, "42"), intOpt("days", 0))
		p, err := taskParamsFromOptions(optionMap(opts), "admin", staffOnly)
		require.NoError(t, err)
		assert.Equal(t, models.SingleUser("42"), p.Eligibility)
		require.NotNil(t, p.Days)
		assert.Zero(t, *p.Days)
	})

	t.Run("role", func(t *testing.T) {
		opts := append(base[:3:3], idOpt("role", discordgo.ApplicationCommandOptionRole, "r1"))
		p, err := taskParamsFromOptions(optionMap(opts), "admin", staffOnly)
		require.NoError(t, err)
		assert.Equal(t, models.RoleSet("r1"), p.Eligibility)
	})

	t.Run("user and role", func(t *testing.T) {
		opts := append(base[:3:3],
			idOpt("user", discordgo.ApplicationCommandOptionUser, "42"),
			idOpt("role", discordgo.ApplicationCommandOptionRole, "r1"))
		_, err := taskParamsFromOptions(optionMap(opts), "admin", staffOnly)
		var verr *service.ValidationError
		assert.ErrorAs(t, err, &verr)
	})
}

func TestDefaultEligibility(t *testing.T) {
	b := testBot()
	assert.Equal(t, staffOnly, b.defaultEligibility())

	b.cfg.Roles = config.RoleConfig{}
	assert.Equal(t, models.Everyone(), b.defaultEligibility(), "no configured roles leaves the task open")
}

func TestSubcommand(t *testing.T) {
	name, opts := subcommand([]*discordgo.ApplicationCommandInteractionDataOption{{
		Name:    "delete",
		Type:    discordgo.ApplicationCommandOptionSubCommand,
		Options: []*discordgo.ApplicationCommandInteractionDataOption{intOpt("id", 9)},
	}})
	assert.Equal(t, "delete", name)
	id, ok := opts.int("id")
	assert.True(t, ok)
	assert.Equal(t, int64(9), id)

	name, _ = subcommand(nil)
	assert.Empty(t, name)
}

func TestTaskStatusEmbed(t *testing.T) {
	reports := []models.TaskReport{
		{
			Task: models.Task{ID: 1, Type: models.ActivityMessage, TargetAmount: 10, Description: "Chat", ExpiresAt: time.Now().Add(time.Hour)},
			Participants: []models.Participant{
				{UserID: "a", Progress: 10, Completed: true},
				{UserID: "b", Progress: 4},
			},
		},
		{Task: models.Task{ID: 2, Type: models.ActivityVoice, TargetAmount: 30, Description: "Talk"}},
	}

	embed := taskStatusEmbed(reports, 0)
	require.Len(t, embed.Fields, 2)
	assert.Contains(t, embed.Fields[0].Value, "Completed: 1, in progress: 1")
	assert.Contains(t, embed.Fields[0].Value, "<@a> 10/10")
	assert.Contains(t, embed.Fields[0].Value, "<@b> 4/10")
	assert.Equal(t, "No participants yet.", embed.Fields[1].Value)

	assert.Equal(t, "There are no active tasks.", taskStatusEmbed(nil, 0).Description)
}

func TestUserTasksEmbed(t *testing.T) {
	embed := userTasksEmbed([]models.UserTask{
		{Task: models.Task{ID: 3, Type: models.ActivityPartner, TargetAmount: 4, Description: "Partners"}, Progress: 2},
		{Task: models.Task{ID: 4, Type: models.ActivityMessage, TargetAmount: 5, Description: "Done"}, Progress: 5, Completed: true},
	}, 0)
	require.Len(t, embed.Fields, 2)
	assert.Contains(t, embed.Fields[0].Value, "▰▰▰▰▰▱▱▱▱▱ 2/4")
	assert.Contains(t, embed.Fields[1].Value, "5/5 ✅")
}

func TestParseTaskPageID(t *testing.T) {
	view, page, err := parseTaskPageID("task:status:3")
	require.NoError(t, err)
	assert.Equal(t, "status", view)
	assert.Equal(t, 3, page)

	for _, id := range []string{"task:status", "task:add:1", "task:list:-1", "task:show:x", "task:list:1:2"} {
		_, _, err := parseTaskPageID(id)
		assert.ErrorIs(t, err, errBadCustomID, id)
	}
}

func TestClampPage(t *testing.T) {
	tests := []struct {
		page, total, size int
		want, pages       int
	}{
		{0, 0, 4, 0, 1},
		{0, 4, 4, 0, 1},
		{1, 5, 4, 1, 2},
		{9, 30, 4, 7, 8},
		{-2, 30, 4, 0, 8},
	}
	for _, tt := range tests {
		page, pages := clampPage(tt.page, tt.total, tt.size)
		assert.Equal(t, tt.want, page, "page %d of %d", tt.page, tt.total)
		assert.Equal(t, tt.pages, pages, "pages of %d", tt.total)
	}
}

func TestTaskStatusEmbed_Pages(t *testing.T) {
	reports := make([]models.TaskReport, 30)
	for n := range reports {
		reports[n] = models.TaskReport{Task: models.Task{ID: int64(n + 1), Type: models.ActivityMessage, TargetAmount: 5, Description: "Chat"}}
	}
	page, pages := clampPage(7, len(reports), statusPerPage)
	require.Equal(t, 8, pages)

	seen := 0
	for p := 0; p < pages; p++ {
		seen += len(taskStatusEmbed(reports, p).Fields)
	}
	assert.Equal(t, len(reports), seen, "every task appears on some page")

	last := taskStatusEmbed(reports, page)
	require.Len(t, last.Fields, 2)
	assert.True(t, strings.HasPrefix(last.Fields[1].Name, "#30 "))

	r := pagedReply(last, "status", page, pages)
	assert.Equal(t, "Page 8/8", last.Footer.Text)
	controls := buttons(t, r.Components)
	require.Len(t, controls, 2)
	assert.Equal(t, "task:status:6", controls[0].CustomID)
	assert.False(t, controls[0].Disabled)
	assert.True(t, controls[1].Disabled)
}

func TestPagedReply_SinglePage(t *testing.T) {
	embed := taskListEmbed([]models.Task{{ID: 1, Type: models.ActivityVoice, TargetAmount: 60, Description: "Talk"}}, 0)
	r := pagedReply(embed, "list", 0, 1)
	assert.Nil(t, r.Components)
	assert.Nil(t, embed.Footer)
}
