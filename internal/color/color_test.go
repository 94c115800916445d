package color

import "testing"

func TestChannelRoundTrip(t *testing.T) {
	c := RGBA(0x11, 0x22, 0x33, 0x44)
	if c.R() != 0x11 || c.G() != 0x22 || c.B() != 0x33 || c.A() != 0x44 {
		t.Fatalf("channel mismatch: %#08x", uint32(c))
	}
}

func TestWithChannelIsolated(t *testing.T) {
	c := RGBA(0x11, 0x22, 0x33, 0x44)
	c2 := c.WithR(0xFF)
	if c2.R() != 0xFF || c2.G() != 0x22 || c2.B() != 0x33 || c2.A() != 0x44 {
		t.Fatalf("WithR touched other channels: %#08x", uint32(c2))
	}
}

func TestAddSaturates(t *testing.T) {
	c := RGBA(0xF0, 0x00, 0x00, 0xFF).Add(RGBA(0x20, 0x00, 0x00, 0x00))
	if c.R() != 0xFF {
		t.Fatalf("expected saturated red, got %#x", c.R())
	}
}

func TestSubFloorsAtZero(t *testing.T) {
	c := RGBA(0x05, 0x00, 0x00, 0x00).Sub(RGBA(0x10, 0x00, 0x00, 0x00))
	if c.R() != 0 {
		t.Fatalf("expected floor at zero, got %#x", c.R())
	}
}

func TestOverOpaqueTopWins(t *testing.T) {
	top := RGBA(0xFF, 0x00, 0x00, 0xFF)
	base := RGBA(0x00, 0xFF, 0x00, 0xFF)
	out := top.Over(base)
	if out.R() != 0xFF || out.G() != 0x00 {
		t.Fatalf("opaque top should fully replace base, got %#08x", uint32(out))
	}
}

func TestOverTransparentTopIsIdentity(t *testing.T) {
	top := RGBA(0xFF, 0x00, 0x00, 0x00)
	base := RGBA(0x00, 0xFF, 0x00, 0xFF)
	out := top.Over(base)
	if out.G() != 0xFF {
		t.Fatalf("fully transparent top should leave base unchanged, got %#08x", uint32(out))
	}
}

func TestOverAlphaIsMaxNotHardcodedOpaque(t *testing.T) {
	top := RGBA(0xFF, 0x00, 0x00, 0x00)
	base := RGBA(0x00, 0xFF, 0x00, 0x80)
	out := top.Over(base)
	if out.A() != 0x80 {
		t.Fatalf("expected alpha to carry through as max(top,base), got %#x", out.A())
	}
}

func TestScaleHalfBrightness(t *testing.T) {
	c := RGB(0xFF, 0xFF, 0xFF).Scale(0x80)
	if c.R() > 0x81 || c.R() < 0x7E {
		t.Fatalf("expected ~half brightness, got %#x", c.R())
	}
}
