package render

import (
	"bytes"
	"image/png"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"guildstats/internal/models"
	"guildstats/internal/service"
)

func TestStatsCard(t *testing.T) {
	r, err := New()
	require.NoError(t, err)

	out, err := r.StatsCard("ada", service.Overview{
		AllTime: models.Counters{MessageCount: 120, VoiceMinutes: 185, PartnerCount: 3},
		Day:     models.Counters{MessageCount: 4},
	})
	require.NoError(t, err)

	img, err := png.Decode(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, 900, img.Bounds().Dx())
	assert.Equal(t, 460, img.Bounds().Dy())
}

func TestHistoryChart(t *testing.T) {
	r, err := New()
	require.NoError(t, err)

	start := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	var history []models.DailyStats
	for i := 0; i < 30; i++ {
		history = append(history, models.DailyStats{
			Date:     start.AddDate(0, 0, i),
			Counters: models.Counters{MessageCount: int64(i * 3), VoiceMinutes: int64(i % 7 * 20)},
		})
	}

	tests := []struct {
		name    string
		history []models.DailyStats
	}{
		{"month", history},
		{"single day", history[:1]},
		{"empty", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := r.HistoryChart("ada", tt.history)
			require.NoError(t, err)
			img, err := png.Decode(bytes.NewReader(out))
			require.NoError(t, err)
			assert.Equal(t, 1000, img.Bounds().Dx())
		})
	}
}

func TestNiceCeil(t *testing.T) {
	tests := map[int64]int64{0: 4, 3: 4, 5: 5, 7: 10, 37: 50, 120: 200, 1000: 1000}
	for in, want := range tests {
		assert.Equal(t, want, niceCeil(in), "niceCeil(%d)", in)
	}
}
