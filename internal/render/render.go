package render

import (
	"bytes"
	"fmt"
	"image/color"
	"math"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/goregular"

	"guildstats/internal/models"
	"guildstats/internal/service"
	"guildstats/pkg/utils"
)

var (
	background = color.NRGBA{R: 0x23, G: 0x27, B: 0x2A, A: 0xFF}
	panel      = color.NRGBA{R: 0x2C, G: 0x2F, B: 0x33, A: 0xFF}
	muted      = color.NRGBA{R: 0x99, G: 0xAA, B: 0xB5, A: 0xFF}
	gridLine   = color.NRGBA{R: 0x40, G: 0x44, B: 0x4B, A: 0xFF}

	seriesColors = map[models.ActivityType]color.NRGBA{
		models.ActivityMessage: {R: 0x58, G: 0x65, B: 0xF2, A: 0xFF},
		models.ActivityVoice:   {R: 0x57, G: 0xF2, B: 0x87, A: 0xFF},
		models.ActivityPartner: {R: 0xFE, G: 0xE7, B: 0x5C, A: 0xFF},
	}
	seriesOrder = []models.ActivityType{models.ActivityMessage, models.ActivityVoice, models.ActivityPartner}
)

// Renderer draws stats images. Fonts are parsed once; faces are created per image
// because a truetype face is not safe for concurrent use.
type Renderer struct {
	regular *truetype.Font
	bold    *truetype.Font
}

func New() (*Renderer, error) {
	regular, err := truetype.Parse(goregular.TTF)
	if err != nil {
		return nil, fmt.Errorf("failed to parse regular font: %w", err)
	}
	bold, err := truetype.Parse(gobold.TTF)
	if err != nil {
		return nil, fmt.Errorf("failed to parse bold font: %w", err)
	}
	return &Renderer{regular: regular, bold: bold}, nil
}

func face(f *truetype.Font, size float64) font.Face {
	return truetype.NewFace(f, &truetype.Options{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingNone,
	})
}

func encode(dc *gg.Context) ([]byte, error) {
	var buf bytes.Buffer
	if err := dc.EncodePNG(&buf); err != nil {
		return nil, fmt.Errorf("failed to encode PNG: %w", err)
	}
	return buf.Bytes(), nil
}

// StatsCard draws the four-window profile card.
func (r *Renderer) StatsCard(username string, o service.Overview) ([]byte, error) {
	const (
		width  = 900
		height = 460
		pad    = 30.0
		gap    = 20.0
	)

	dc := gg.NewContext(width, height)
	dc.SetColor(background)
	dc.Clear()

	dc.SetFontFace(face(r.bold, 34))
	dc.SetColor(color.White)
	dc.DrawStringAnchored(username, pad, pad+20, 0, 0.5)

	boxes := []struct {
		title string
		c     models.Counters
	}{
		{models.PeriodAll.Label(), o.AllTime},
		{models.PeriodDay.Label(), o.Day},
		{models.PeriodWeek.Label(), o.Week},
		{models.PeriodMonth.Label(), o.Month},
	}

	top := pad + 60
	boxW := (width - 2*pad - gap) / 2
	boxH := (height - top - pad - gap) / 2
	titleFace := face(r.bold, 22)
	bodyFace := face(r.regular, 20)

	for i, b := range boxes {
		x := pad + float64(i%2)*(boxW+gap)
		y := top + float64(i/2)*(boxH+gap)

		dc.SetColor(panel)
		dc.DrawRoundedRectangle(x, y, boxW, boxH, 12)
		dc.Fill()

		dc.SetFontFace(titleFace)
		dc.SetColor(color.White)
		dc.DrawString(b.title, x+20, y+36)

		lines := []struct {
			t     models.ActivityType
			label string
		}{
			{models.ActivityMessage, fmt.Sprintf("Messages: %d", b.c.MessageCount)},
			{models.ActivityVoice, fmt.Sprintf("Voice: %s", utils.FormatMinutes(b.c.VoiceMinutes))},
			{models.ActivityPartner, fmt.Sprintf("Partners: %d", b.c.PartnerCount)},
		}
		dc.SetFontFace(bodyFace)
		for j, l := range lines {
			ly := y + 72 + float64(j)*30
			dc.SetColor(seriesColors[l.t])
			dc.DrawCircle(x+26, ly-6, 6)
			dc.Fill()
			dc.SetColor(muted)
			dc.DrawString(l.label, x+42, ly)
		}
	}

	return encode(dc)
}

// HistoryChart draws one line per counter over the given days, oldest on the left.
func (r *Renderer) HistoryChart(username string, history []models.DailyStats) ([]byte, error) {
	const (
		width  = 1000
		height = 500
		left   = 70.0
		right  = 30.0
		top    = 80.0
		bottom = 60.0
	)

	dc := gg.NewContext(width, height)
	dc.SetColor(background)
	dc.Clear()

	dc.SetFontFace(face(r.bold, 26))
	dc.SetColor(color.White)
	dc.DrawString(fmt.Sprintf("%s: last %d days", username, len(history)), left, 40)

	plotW := width - left - right
	plotH := height - top - bottom

	var peak int64
	for _, h := range history {
		for _, t := range seriesOrder {
			peak = max(peak, h.Get(t))
		}
	}
	scale := niceCeil(peak)

	small := face(r.regular, 14)
	dc.SetFontFace(small)

	// horizontal grid with value labels
	const gridLines = 4
	for i := 0; i <= gridLines; i++ {
		y := top + plotH - float64(i)*plotH/gridLines
		dc.SetColor(gridLine)
		dc.SetLineWidth(1)
		dc.DrawLine(left, y, left+plotW, y)
		dc.Stroke()
		dc.SetColor(muted)
		dc.DrawStringAnchored(fmt.Sprintf("%d", scale*int64(i)/gridLines), left-10, y, 1, 0.5)
	}

	n := len(history)
	xAt := func(i int) float64 {
		if n <= 1 {
			return left + plotW/2
		}
		return left + float64(i)*plotW/float64(n-1)
	}
	yAt := func(v int64) float64 {
		return top + plotH - float64(v)/float64(scale)*plotH
	}

	// date labels, at most about eight
	step := max(1, int(math.Ceil(float64(n)/8)))
	dc.SetColor(muted)
	for i := 0; i < n; i += step {
		dc.DrawStringAnchored(history[i].Date.Format("01-02"), xAt(i), top+plotH+20, 0.5, 0.5)
	}

	for _, t := range seriesOrder {
		dc.SetColor(seriesColors[t])
		dc.SetLineWidth(3)
		for i, h := range history {
			if i == 0 {
				dc.MoveTo(xAt(i), yAt(h.Get(t)))
			} else {
				dc.LineTo(xAt(i), yAt(h.Get(t)))
			}
		}
		dc.Stroke()
		for i, h := range history {
			dc.DrawCircle(xAt(i), yAt(h.Get(t)), 3)
		}
		dc.Fill()
	}

	// legend
	lx := float64(width) - right - 360
	for i, t := range seriesOrder {
		x := lx + float64(i)*120
		dc.SetColor(seriesColors[t])
		dc.DrawRectangle(x, 30, 14, 14)
		dc.Fill()
		dc.SetColor(muted)
		dc.DrawString(t.Label(), x+20, 43)
	}

	return encode(dc)
}

// niceCeil rounds v up to 1, 2 or 5 times a power of ten, with a minimum of 4 so the
// grid labels stay whole numbers.
func niceCeil(v int64) int64 {
	if v <= 4 {
		return 4
	}
	p := int64(1)
	for p*10 <= v {
		p *= 10
	}
	for _, m := range []int64{1, 2, 5, 10} {
		if m*p >= v {
			return m * p
		}
	}
	return 10 * p
}
