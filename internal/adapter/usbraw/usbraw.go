// Package usbraw adapts devices that expose their RGB control plane on
// a raw USB bulk/interrupt interface instead of a HID report
// descriptor -- several keyboards ship their lighting control this way.
package usbraw

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/gousb"

	"github.com/arcaluminis/ledctl/internal/adapter"
	"github.com/arcaluminis/ledctl/internal/event"
	"github.com/arcaluminis/ledctl/internal/topology"
)

// pollTimeout bounds how long PollInput waits for an interrupt-IN
// transfer before reporting "nothing pending" rather than stalling the tick.
const pollTimeout = 2 * time.Millisecond

// Config identifies the device and its lighting interface.
type Config struct {
	VendorID  gousb.ID
	ProductID gousb.ID
	Interface int
	Dim       topology.Dim
	Order     topology.Order
	Zones     map[string]int
}

// Device drives one raw-USB RGB peripheral.
type Device struct {
	cfg Config

	ctx   *gousb.Context
	dev   *gousb.Device
	gcfg  *gousb.Config
	intf  *gousb.Interface
	inEp  *gousb.InEndpoint
	outEp *gousb.OutEndpoint

	pressed map[int]bool
}

func New(cfg Config) *Device {
	return &Device{cfg: cfg}
}

func (d *Device) Open() (*topology.Topology, error) {
	uctx := gousb.NewContext()

	dev, err := uctx.OpenDeviceWithVIDPID(d.cfg.VendorID, d.cfg.ProductID)
	if err != nil {
		uctx.Close()
		return nil, fmt.Errorf("usbraw: open: %w", err)
	}
	if dev == nil {
		uctx.Close()
		return nil, fmt.Errorf("usbraw: %w", adapter.ErrDeviceGone)
	}

	if err := dev.SetAutoDetach(true); err != nil {
		dev.Close()
		uctx.Close()
		return nil, fmt.Errorf("usbraw: auto-detach: %w", err)
	}

	cfgNum, err := dev.ActiveConfigNum()
	if err != nil {
		dev.Close()
		uctx.Close()
		return nil, fmt.Errorf("usbraw: active config: %w", err)
	}
	gcfg, err := dev.Config(cfgNum)
	if err != nil {
		dev.Close()
		uctx.Close()
		return nil, fmt.Errorf("usbraw: config: %w", err)
	}
	intf, err := gcfg.Interface(d.cfg.Interface, 0)
	if err != nil {
		gcfg.Close()
		dev.Close()
		uctx.Close()
		return nil, fmt.Errorf("usbraw: interface: %w", err)
	}

	var inEp *gousb.InEndpoint
	var outEp *gousb.OutEndpoint
	for _, ep := range intf.Setting.Endpoints {
		if ep.Direction == gousb.EndpointDirectionIn {
			inEp, err = intf.InEndpoint(ep.Number)
		} else {
			outEp, err = intf.OutEndpoint(ep.Number)
		}
		if err != nil {
			intf.Close()
			gcfg.Close()
			dev.Close()
			uctx.Close()
			return nil, fmt.Errorf("usbraw: endpoint: %w", err)
		}
	}
	if outEp == nil {
		intf.Close()
		gcfg.Close()
		dev.Close()
		uctx.Close()
		return nil, errors.New("usbraw: device has no OUT endpoint")
	}

	d.ctx, d.dev, d.gcfg, d.intf, d.inEp, d.outEp = uctx, dev, gcfg, intf, inEp, outEp
	d.pressed = make(map[int]bool)
	return topology.New(d.cfg.Dim, d.cfg.Order, d.cfg.Zones), nil
}

func (d *Device) PollInput() ([]event.Event, error) {
	if d.inEp == nil {
		return nil, nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), pollTimeout)
	defer cancel()

	buf := make([]byte, d.inEp.Desc.MaxPacketSize)
	n, err := d.inEp.ReadContext(ctx, buf)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, nil
		}
		return nil, fmt.Errorf("usbraw: %w", adapter.ErrDeviceGone)
	}
	if n <= 1 {
		return nil, nil
	}
	return d.decodeReport(buf[:n]), nil
}

// decodeReport diffs the report's bitmask against the previous one so
// a bit clearing to 0 produces a KeyUp rather than just a missing
// KeyDown.
func (d *Device) decodeReport(b []byte) []event.Event {
	var out []event.Event
	now := time.Now()
	seen := make(map[int]bool, len(d.pressed))
	for i, byteVal := range b[1:] {
		for bit := 0; bit < 8; bit++ {
			key := i*8 + bit
			if byteVal&(1<<bit) == 0 {
				continue
			}
			seen[key] = true
			if !d.pressed[key] {
				out = append(out, event.Event{Kind: event.KeyDown, Timestamp: now, KeyCode: key})
			}
		}
	}
	for key := range d.pressed {
		if !seen[key] {
			out = append(out, event.Event{Kind: event.KeyUp, Timestamp: now, KeyCode: key})
		}
	}
	d.pressed = seen
	return out
}

func (d *Device) WriteFrame(frame adapter.Frame) error {
	payload := make([]byte, 0, len(frame)*3)
	for _, c := range frame {
		payload = append(payload, c.Serialize()...)
	}

	ctx, cancel := context.WithTimeout(context.Background(), adapter.WriteTimeout)
	defer cancel()

	if _, err := d.outEp.WriteContext(ctx, payload); err != nil {
		return fmt.Errorf("usbraw: %w", adapter.ErrDeviceGone)
	}
	return nil
}

func (d *Device) Close() error {
	var errs error
	if d.intf != nil {
		d.intf.Close()
	}
	if d.gcfg != nil {
		errs = errors.Join(errs, d.gcfg.Close())
	}
	if d.dev != nil {
		errs = errors.Join(errs, d.dev.Close())
	}
	if d.ctx != nil {
		errs = errors.Join(errs, d.ctx.Close())
	}
	return errs
}
