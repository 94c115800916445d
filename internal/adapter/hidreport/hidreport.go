// Package hidreport adapts per-key RGB devices that are addressed over
// HID feature/input reports: wireless dongles and many keyboard/mouse
// control planes expose their lighting control this way rather than
// through a raw USB vendor interface.
package hidreport

import (
	"fmt"
	"time"

	hid "github.com/sstallion/go-hid"

	"github.com/arcaluminis/ledctl/internal/adapter"
	"github.com/arcaluminis/ledctl/internal/event"
	"github.com/arcaluminis/ledctl/internal/topology"
)

// Config identifies one device and the report layout it speaks.
type Config struct {
	VendorID   uint16
	ProductID  uint16
	Path       string // optional; overrides VendorID/ProductID lookup when set
	ReportID   byte
	LedCount   int
	Dim        topology.Dim
	Order      topology.Order
	Zones      map[string]int
	ChunkBytes int // max payload bytes per SendFeatureReport call
}

// Device drives one HID-addressed RGB peripheral.
type Device struct {
	cfg Config
	dev *hid.Device

	consecutiveFailures int
	pressed             map[int]bool
}

// New constructs a Device for the given configuration. Open performs
// the actual hardware handle acquisition.
func New(cfg Config) *Device {
	if cfg.ChunkBytes <= 0 {
		cfg.ChunkBytes = 60
	}
	return &Device{cfg: cfg}
}

func (d *Device) Open() (*topology.Topology, error) {
	var dev *hid.Device
	var err error

	if d.cfg.Path != "" {
		dev, err = hid.OpenPath(d.cfg.Path)
	} else {
		dev, err = hid.Open(d.cfg.VendorID, d.cfg.ProductID, "")
	}
	if err != nil {
		return nil, fmt.Errorf("hidreport: open: %w", err)
	}
	if err := dev.SetNonblock(true); err != nil {
		dev.Close()
		return nil, fmt.Errorf("hidreport: set nonblocking: %w", err)
	}

	d.dev = dev
	d.consecutiveFailures = 0
	d.pressed = make(map[int]bool)

	return topology.New(d.cfg.Dim, d.cfg.Order, d.cfg.Zones), nil
}

// PollInput reads queued input reports and decodes them into key
// events. The device handle is nonblocking (set at Open), so a read
// with nothing pending returns 0, nil rather than stalling the tick.
func (d *Device) PollInput() ([]event.Event, error) {
	if d.dev == nil {
		return nil, adapter.ErrDeviceGone
	}

	buf := make([]byte, 64)
	n, err := d.dev.Read(buf)
	if err != nil {
		return nil, d.ioFailure(err)
	}
	if n <= 1 {
		return nil, nil
	}
	return d.decodeInputReport(buf[:n]), nil
}

// decodeInputReport treats byte[0] as report id and the remaining
// bytes as a bitmask of currently-down key indices, the simplest
// encoding that lets a simulated or real keyboard exercise key events
// without a device-specific descriptor. It diffs against the bitmask
// from the previous report so a bit clearing to 0 produces a KeyUp,
// not just a missing KeyDown.
func (d *Device) decodeInputReport(b []byte) []event.Event {
	var out []event.Event
	now := time.Now()
	seen := make(map[int]bool, len(d.pressed))
	for i, byteVal := range b[1:] {
		for bit := 0; bit < 8; bit++ {
			key := i*8 + bit
			down := byteVal&(1<<bit) != 0
			if !down {
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

// WriteFrame sends the frame as one or more SendFeatureReport calls,
// each prefixed with the configured report id, chunked to ChunkBytes
// payload bytes since many controllers cap feature report length well
// below a full per-key frame.
func (d *Device) WriteFrame(frame adapter.Frame) error {
	if d.dev == nil {
		return adapter.ErrDeviceGone
	}

	payload := make([]byte, 0, len(frame)*3)
	for _, c := range frame {
		payload = append(payload, c.Serialize()...)
	}

	for off := 0; off < len(payload); off += d.cfg.ChunkBytes {
		end := off + d.cfg.ChunkBytes
		if end > len(payload) {
			end = len(payload)
		}
		report := make([]byte, 0, end-off+1)
		report = append(report, d.cfg.ReportID)
		report = append(report, payload[off:end]...)
		if _, err := d.dev.SendFeatureReport(report); err != nil {
			return d.ioFailure(err)
		}
	}
	d.consecutiveFailures = 0
	return nil
}

func (d *Device) ioFailure(err error) error {
	d.consecutiveFailures++
	if d.consecutiveFailures >= 3 {
		return adapter.ErrDeviceGone
	}
	return fmt.Errorf("hidreport: %w", err)
}

func (d *Device) Close() error {
	if d.dev == nil {
		return nil
	}
	err := d.dev.Close()
	d.dev = nil
	return err
}
