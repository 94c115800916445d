package compositor

import (
	"testing"

	"github.com/arcaluminis/ledctl/internal/color"
)

func TestComposeIdentitySingleOpaqueLayer(t *testing.T) {
	in := []color.Color{color.RGB(10, 20, 30), color.RGB(40, 50, 60)}
	out := make([]color.Color, len(in))
	Compose(out, []Layer{{Frame: in, Enabled: true}}, 255)
	for i := range in {
		if out[i] != in[i] {
			t.Fatalf("index %d: expected %#08x got %#08x", i, uint32(in[i]), uint32(out[i]))
		}
	}
}

func TestComposeSkipsDisabledLayers(t *testing.T) {
	bottom := []color.Color{color.RGB(1, 2, 3)}
	top := []color.Color{color.RGB(9, 9, 9)}
	out := make([]color.Color, 1)
	Compose(out, []Layer{
		{Frame: bottom, Enabled: true},
		{Frame: top, Enabled: false},
	}, 255)
	if out[0] != bottom[0] {
		t.Fatalf("disabled layer should not blend: got %#08x", uint32(out[0]))
	}
}

func TestComposeAlphaOverBlendsBottomToTop(t *testing.T) {
	bottom := []color.Color{color.RGB(0, 0, 0)}
	top := []color.Color{color.RGBA(255, 0, 0, 128)}
	out := make([]color.Color, 1)
	Compose(out, []Layer{{Frame: bottom, Enabled: true}, {Frame: top, Enabled: true}}, 255)
	if out[0].R() < 100 || out[0].R() > 140 {
		t.Fatalf("expected roughly half-blended red, got %#x", out[0].R())
	}
}

func TestComposeBottomLayerPassesThroughUnblended(t *testing.T) {
	bottom := []color.Color{color.RGBA(255, 0, 0, 128)}
	out := make([]color.Color, 1)
	Compose(out, []Layer{{Frame: bottom, Enabled: true}}, 255)
	if out[0] != bottom[0] {
		t.Fatalf("bottom layer should pass through verbatim, expected %#08x got %#08x", uint32(bottom[0]), uint32(out[0]))
	}
	if out[0].R() != 255 {
		t.Fatalf("bottom layer's own alpha must not attenuate its RGB, expected R=255 got %d", out[0].R())
	}
}

func TestComposeAppliesBrightness(t *testing.T) {
	in := []color.Color{color.RGB(255, 255, 255)}
	out := make([]color.Color, 1)
	Compose(out, []Layer{{Frame: in, Enabled: true}}, 128)
	if out[0].R() > 0x81 || out[0].R() < 0x7E {
		t.Fatalf("expected ~half brightness, got %#x", out[0].R())
	}
}

func TestBudgetLimiterIdentityAtDefaults(t *testing.T) {
	b := Budget{WhiteCap: 3.0, ChannelMA: 20, TotalMA: 0}
	limiter := b.Limiter()
	in := color.RGB(255, 255, 255)
	buf := []color.Color{in}
	limiter(buf)
	if buf[0] != in {
		t.Fatalf("expected identity with zero budget, got %#08x", uint32(buf[0]))
	}
}

func TestBudgetLimiterClampsOverBudget(t *testing.T) {
	b := Budget{WhiteCap: 3.0, ChannelMA: 20, TotalMA: 10, Knee: 0.9}
	limiter := b.Limiter()
	buf := make([]color.Color, 100)
	for i := range buf {
		buf[i] = color.RGB(255, 255, 255)
	}
	limiter(buf)
	var total float64
	for _, c := range buf {
		total += (float64(c.R()) + float64(c.G()) + float64(c.B())) / 255 * 20
	}
	if total > 10.5 {
		t.Fatalf("expected total current near budget, got %v", total)
	}
}
