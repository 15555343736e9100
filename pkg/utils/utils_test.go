package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatMinutes(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{0, "0m"},
		{42, "42m"},
		{60, "1h 00m"},
		{185, "3h 05m"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatMinutes(tt.in))
	}
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "1:01:05", FormatDuration(3665))
}

func TestMentions(t *testing.T) {
	assert.Equal(t, "123", ExtractUserIDFromMention("<@!123>"))
	assert.True(t, IsUserMention("<@123>"))
	assert.False(t, IsUserMention("<@&123>"), "role mentions are not user mentions")
	assert.False(t, IsUserMention("123"))
	assert.Equal(t, "<@&9>", FormatRoleMention("9"))
}

func TestNeutralizeMentions(t *testing.T) {
	out := NeutralizeMentions("hi @everyone and @here")
	assert.NotContains(t, out, "@everyone")
	assert.NotContains(t, out, "@here")
}

func TestTruncateString(t *testing.T) {
	assert.Equal(t, "short", TruncateString("short", 10))
	assert.Equal(t, "görev...", TruncateString("görevlerimiz", 8))
}

func TestProgressBar(t *testing.T) {
	assert.Equal(t, "▰▰▱▱▱", ProgressBar(2, 5, 5))
	assert.Equal(t, "▰▰▰▰▰", ProgressBar(9, 5, 5))
	assert.Empty(t, ProgressBar(1, 0, 5))
}
