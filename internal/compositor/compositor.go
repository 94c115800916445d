// Package compositor implements the N-layer alpha-over blend and the
// optional tone-map/limiter post stage that runs after it.
package compositor

import "github.com/arcaluminis/ledctl/internal/color"

// Layer is one script instance's contribution: a frame buffer and
// whether it currently participates in the blend.
type Layer struct {
	Frame   []color.Color
	Enabled bool
}

// Compose blends layers bottom-to-top with alpha-over, then scales the
// result by brightness (0-255). len(out) must equal every enabled
// layer's frame length; callers validate this once at bind time (I1),
// never per tick. Disabled layers are skipped entirely. The first
// enabled layer to touch a pixel is copied through verbatim -- F[i] =
// L_0[i], not blended against black -- so a semi-transparent bottom
// layer keeps its own color and alpha instead of being attenuated by
// its own alpha a second time. With brightness=255 and a single
// fully-opaque layer, Compose is the identity on that layer's frame
// (Testable Property: compositor identity).
func Compose(out []color.Color, layers []Layer, brightness uint8) {
	written := make([]bool, len(out))
	for _, l := range layers {
		if !l.Enabled {
			continue
		}
		n := len(l.Frame)
		if n > len(out) {
			n = len(out)
		}
		for i := 0; i < n; i++ {
			if !written[i] {
				out[i] = l.Frame[i]
				written[i] = true
				continue
			}
			out[i] = l.Frame[i].Over(out[i])
		}
	}
	for i := range out {
		if !written[i] {
			out[i] = color.Black
		}
	}
	if brightness == 255 {
		return
	}
	for i := range out {
		out[i] = out[i].Scale(brightness)
	}
}

// PostPipeline is the optional stage run after Compose. With both
// stages nil, PostPipeline.Apply is a no-op and Compose's output is
// the final frame.
type PostPipeline struct {
	ToneMap func([]color.Color)
	Limiter func([]color.Color)
}

// Apply runs the tone-map stage then the limiter stage, in that order,
// each only if configured.
func (p PostPipeline) Apply(frame []color.Color) {
	if p.ToneMap != nil {
		p.ToneMap(frame)
	}
	if p.Limiter != nil {
		p.Limiter(frame)
	}
}
