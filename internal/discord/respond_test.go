package discord

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"guildstats/internal/models"
	"guildstats/internal/service"
)

func TestErrorReply(t *testing.T) {
	b := testBot()

	tests := []struct {
		name string
		err  error
		want string
	}{
		{"sentinel", service.ErrTaskNotFound, service.ErrTaskNotFound.Error()},
		{"wrapped sentinel", fmt.Errorf("delete: %w", service.ErrApplicationsClosed), "delete: applications are currently closed"},
		{"cooldown", &service.CooldownError{Remaining: 2 * time.Hour}, "you already applied recently, try again in 2h0m0s"},
		{"validation", &service.ValidationError{Problems: []string{"a", "b"}}, "a; b"},
		{"unknown", errors.New("connection reset"), genericFailure},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := b.errorReply(tt.err, zap.NewNop())
			assert.Equal(t, tt.want, r.Content)
			assert.True(t, r.Ephemeral)
		})
	}
}

func TestModalValues(t *testing.T) {
	data := discordgo.ModalSubmitInteractionData{
		CustomID: partnerModalID,
		Components: []discordgo.MessageComponent{
			&discordgo.ActionsRow{Components: []discordgo.MessageComponent{
				&discordgo.TextInput{CustomID: partnerInputID, Value: "Join us"},
			}},
			&discordgo.ActionsRow{Components: []discordgo.MessageComponent{
				&discordgo.TextInput{CustomID: "other", Value: "x"},
			}},
		},
	}
	assert.Equal(t, map[string]string{partnerInputID: "Join us", "other": "x"}, modalValues(data))
}

func TestParseTopArgs(t *testing.T) {
	tests := []struct {
		args []string
		want topQuery
	}{
		{nil, topQuery{models.ActivityMessage, models.PeriodAll, service.DefaultTopLimit}},
		{[]string{"ses", "hafta"}, topQuery{models.ActivityVoice, models.PeriodWeek, service.DefaultTopLimit}},
		{[]string{"5", "partner", "today"}, topQuery{models.ActivityPartner, models.PeriodDay, 5}},
		{[]string{"tüm", "mesaj", "3"}, topQuery{models.ActivityMessage, models.PeriodAll, 3}},
	}
	for _, tt := range tests {
		got, err := parseTopArgs(tt.args)
		assert.NoError(t, err)
		assert.Equal(t, tt.want, got, "args %v", tt.args)
	}

	_, err := parseTopArgs([]string{"yesterday"})
	assert.ErrorContains(t, err, `unknown option "yesterday"`)
}
