package scripthost

import (
	"math"

	"github.com/dop251/goja"

	"github.com/arcaluminis/ledctl/internal/color"
	"github.com/arcaluminis/ledctl/internal/topology"
)

// installHostAPI builds the single `host` object scripts see. Every
// method here is the one surface through which a script can touch
// anything outside its own VM; there is no other global state.
func (inst *Instance) installHostAPI(topo *topology.Topology) {
	host := inst.vm.NewObject()

	_ = host.Set("getLedCount", func() int {
		return len(inst.frame)
	})

	_ = host.Set("getLedIndexForZone", func(name string) interface{} {
		idx, ok := topo.ZoneIndex(name)
		if !ok {
			return goja.Undefined()
		}
		return idx
	})

	_ = host.Set("zones", func() []string {
		return topo.Zones()
	})

	_ = host.Set("setColor", func(index int, argb int64) {
		if index < 0 || index >= len(inst.frame) {
			return
		}
		inst.frame[index] = color.Color(uint32(argb))
	})

	_ = host.Set("setColorRGBA", func(index int, r, g, b, a int) {
		if index < 0 || index >= len(inst.frame) {
			return
		}
		inst.frame[index] = color.RGBA(uint8(r), uint8(g), uint8(b), uint8(a))
	})

	_ = host.Set("setColorMap", func(argb []interface{}) {
		n := len(argb)
		if n > len(inst.frame) {
			n = len(inst.frame)
		}
		for i := 0; i < n; i++ {
			if v, ok := argb[i].(int64); ok {
				inst.frame[i] = color.Color(uint32(v))
			} else if v, ok := argb[i].(float64); ok {
				inst.frame[i] = color.Color(uint32(v))
			}
		}
	})

	_ = host.Set("clear", func() {
		for i := range inst.frame {
			inst.frame[i] = color.Black
		}
	})

	_ = host.Set("getColor", func(index int) int64 {
		if index < 0 || index >= len(inst.frame) {
			return 0
		}
		return int64(uint32(inst.frame[index]))
	})

	_ = host.Set("getParam", func(name string) interface{} {
		v, ok := inst.params[name]
		if !ok {
			return goja.Undefined()
		}
		return v
	})

	_ = host.Set("sensor", func(name string) interface{} {
		snap, ok := inst.sensors[name]
		if !ok {
			return goja.Undefined()
		}
		return map[string]interface{}{
			"value":   snap.Value,
			"vector":  snap.Vector,
			"version": snap.Version,
		}
	})

	_ = host.Set("rgba", func(r, g, b, a int) int64 {
		return int64(uint32(color.RGBA(uint8(r), uint8(g), uint8(b), uint8(a))))
	})

	_ = host.Set("hsl", func(h, s, l float64) int64 {
		r, g, b := hslToRGB(h, s, l)
		return int64(uint32(color.RGB(r, g, b)))
	})

	_ = host.Set("ease", easeApply)
	_ = host.Set("lerp", func(a, b, t float64) float64 {
		return a + (b-a)*clamp01(t)
	})

	inst.vm.Set("host", host)
}

func clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}

// easeApply mirrors the interpolation kinds a keyframe-driven script
// would want: linear, smoothstep, and a smoother quintic variant.
func easeApply(kind string, x float64) float64 {
	x = clamp01(x)
	switch kind {
	case "smooth":
		return x * x * (3 - 2*x)
	case "cubic":
		return x * x * x * (x*(x*6-15) + 10)
	default:
		return x
	}
}

// hslToRGB converts h in [0,360), s,l in [0,1] to 8-bit RGB, the one
// colorspace conversion scripts get for free instead of hand-rolling it.
func hslToRGB(h, s, l float64) (uint8, uint8, uint8) {
	h = math.Mod(h, 360)
	if h < 0 {
		h += 360
	}
	c := (1 - math.Abs(2*l-1)) * s
	x := c * (1 - math.Abs(math.Mod(h/60, 2)-1))
	m := l - c/2

	var r, g, b float64
	switch {
	case h < 60:
		r, g, b = c, x, 0
	case h < 120:
		r, g, b = x, c, 0
	case h < 180:
		r, g, b = 0, c, x
	case h < 240:
		r, g, b = 0, x, c
	case h < 300:
		r, g, b = x, 0, c
	default:
		r, g, b = c, 0, x
	}
	to8 := func(v float64) uint8 {
		v = (v + m) * 255
		if v < 0 {
			return 0
		}
		if v > 255 {
			return 255
		}
		return uint8(v)
	}
	return to8(r), to8(g), to8(b)
}
