// Package nrzled adapts NRZ-encoded addressable LED strips (the
// WS281x family) driven over a SPI bus through periph.io, for
// underglow and strip-style peripherals rather than per-key keyboards.
package nrzled

import (
	"fmt"
	"image"
	stdcolor "image/color"

	"periph.io/x/conn/v3/display"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/devices/v3/nrzled"
	"periph.io/x/host/v3"

	"github.com/arcaluminis/ledctl/internal/adapter"
	"github.com/arcaluminis/ledctl/internal/color"
	"github.com/arcaluminis/ledctl/internal/event"
	"github.com/arcaluminis/ledctl/internal/topology"
)

// Config describes one SPI-attached strip.
type Config struct {
	SPIBus    string // e.g. "/dev/spidev0.0" or "" for auto
	NumPixels int
	RefreshHz physic.Frequency
}

// Device drives one SPI LED strip. It has no input surface of its own;
// PollInput always returns nothing.
type Device struct {
	cfg    Config
	drawer display.Drawer
}

func New(cfg Config) *Device {
	if cfg.RefreshHz == 0 {
		cfg.RefreshHz = 800 * physic.KiloHertz
	}
	return &Device{cfg: cfg}
}

func (d *Device) Open() (*topology.Topology, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("nrzled: host init: %w", err)
	}

	port, err := spireg.Open(d.cfg.SPIBus)
	if err != nil {
		return nil, fmt.Errorf("nrzled: open SPI port %q: %w", d.cfg.SPIBus, err)
	}

	drawer, err := nrzled.NewSPI(port, &nrzled.Opts{
		NumPixels: d.cfg.NumPixels,
		Channels:  3,
		Freq:      d.cfg.RefreshHz,
	})
	if err != nil {
		return nil, fmt.Errorf("nrzled: init strip: %w", err)
	}
	d.drawer = drawer

	return topology.New(topology.Dim{X: d.cfg.NumPixels, Y: 1, Z: 1}, topology.Order{}, nil), nil
}

func (d *Device) PollInput() ([]event.Event, error) {
	return nil, nil
}

func (d *Device) WriteFrame(frame adapter.Frame) error {
	if d.drawer == nil {
		return adapter.ErrDeviceGone
	}
	img := image.NewNRGBA(image.Rect(0, 0, len(frame), 1))
	for x, c := range frame {
		img.SetNRGBA(x, 0, toNRGBA(c))
	}
	if err := d.drawer.Draw(d.drawer.Bounds(), img, image.Point{}); err != nil {
		return fmt.Errorf("nrzled: %w: %v", adapter.ErrDeviceGone, err)
	}
	return nil
}

func toNRGBA(c color.Color) stdcolor.NRGBA {
	return stdcolor.NRGBA{R: c.R(), G: c.G(), B: c.B(), A: c.A()}
}

func (d *Device) Close() error {
	if d.drawer == nil {
		return nil
	}
	err := d.drawer.Halt()
	d.drawer = nil
	return err
}
