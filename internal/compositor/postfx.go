package compositor

import (
	"math"

	"github.com/arcaluminis/ledctl/internal/color"
)

// Budget configures the power-aware limiter, grounded on the same
// two-stage per-LED-cap / global-current-budget design: a per-LED
// channel-sum cap followed by a soft-knee global current scale-down.
type Budget struct {
	WhiteCap    float64 // per-LED sum-of-channels cap in [0,3]; 3 = no cap
	ChannelMA   float64 // mA per channel at full scale
	TotalMA     float64 // global budget; 0 disables the global stage
	Knee        float64 // fraction of budget where soft limiting begins
	ExposureEV  float64
	OutputGamma float64
}

// DefaultBudget mirrors the teacher's defaults: no hard white cap, a
// WS2812-class per-channel draw, and standard gamma.
func DefaultBudget() Budget {
	return Budget{WhiteCap: 3.0, ChannelMA: 20, TotalMA: 0, Knee: 0.9, ExposureEV: 0, OutputGamma: 2.2}
}

// ToneMap returns a ToneMap func bound to b's exposure/gamma settings.
// With ExposureEV=0 and OutputGamma=1 it is the identity.
func (b Budget) ToneMap() func([]color.Color) {
	gamma := b.OutputGamma
	if gamma <= 0 {
		gamma = 1
	}
	exposure := math.Pow(2, b.ExposureEV)
	return func(buf []color.Color) {
		if exposure == 1 && gamma == 1 {
			return
		}
		for i, c := range buf {
			r := scaleGamma(float64(c.R())/255, exposure, gamma)
			g := scaleGamma(float64(c.G())/255, exposure, gamma)
			bl := scaleGamma(float64(c.B())/255, exposure, gamma)
			buf[i] = color.RGBA(to8(r), to8(g), to8(bl), c.A())
		}
	}
}

func scaleGamma(v, exposure, gamma float64) float64 {
	v *= exposure
	if v < 0 {
		v = 0
	}
	if v > 1 {
		v = 1
	}
	if gamma != 1 {
		v = math.Pow(v, 1/gamma)
	}
	return v
}

func to8(v float64) uint8 {
	if v <= 0 {
		return 0
	}
	if v >= 1 {
		return 255
	}
	return uint8(v * 255)
}

// Limiter returns a Limiter func bound to b's power budget. With
// TotalMA=0 and WhiteCap>=3 it is the identity.
func (b Budget) Limiter() func([]color.Color) {
	whiteCap := b.WhiteCap
	if whiteCap <= 0 {
		whiteCap = 3.0
	}
	chanMA := b.ChannelMA
	if chanMA <= 0 {
		chanMA = 20
	}
	knee := b.Knee
	if knee <= 0 || knee >= 1 {
		knee = 0.9
	}
	budget := b.TotalMA

	return func(buf []color.Color) {
		for i, c := range buf {
			r, g, bl := float64(c.R())/255, float64(c.G())/255, float64(c.B())/255
			s := r + g + bl
			if s > whiteCap && s > 0 {
				scale := whiteCap / s
				buf[i] = color.RGBA(to8(r*scale), to8(g*scale), to8(bl*scale), c.A())
			}
		}

		if budget <= 0 {
			return
		}
		var total float64
		for _, c := range buf {
			total += (float64(c.R()) + float64(c.G()) + float64(c.B())) / 255 * chanMA
		}
		if total <= 0 {
			return
		}
		ratio := total / budget
		var scale float64 = 1
		switch {
		case ratio <= knee:
			return
		case ratio <= 1.0:
			minScale := budget / total
			t := (ratio - knee) / (1.0 - knee)
			scale = 1 - t*(1-minScale)
		default:
			scale = budget / total
		}
		for i, c := range buf {
			r := float64(c.R()) / 255 * scale
			g := float64(c.G()) / 255 * scale
			bl := float64(c.B()) / 255 * scale
			buf[i] = color.RGBA(to8(r), to8(g), to8(bl), c.A())
		}
	}
}
