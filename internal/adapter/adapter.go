// Package adapter defines the Device contract each hardware transport
// implements and the shared error values the scheduler reacts to.
package adapter

import (
	"errors"
	"time"

	"github.com/arcaluminis/ledctl/internal/color"
	"github.com/arcaluminis/ledctl/internal/event"
	"github.com/arcaluminis/ledctl/internal/topology"
)

// Frame is one tick's worth of LED color, one entry per addressable LED.
type Frame []color.Color

// ErrDeviceGone signals a persistent I/O failure: the device should be
// quarantined by the caller rather than retried on the next tick.
var ErrDeviceGone = errors.New("adapter: device gone")

// Device is implemented by every hardware transport (HID, raw USB, SPI
// LED strips, and the in-memory simulator). A Device is owned by exactly
// one goroutine; none of its methods are safe to call concurrently.
type Device interface {
	// Open acquires the underlying handle and returns the device's
	// addressing scheme. It must be called before any other method.
	Open() (*topology.Topology, error)

	// PollInput drains any input events queued since the last call,
	// without blocking longer than the caller's deadline implies.
	// Returns nil, nil when nothing is pending.
	PollInput() ([]event.Event, error)

	// WriteFrame pushes one frame to hardware. len(frame) must equal
	// the LED count returned by Open. Implementations should treat
	// write as a fire-and-wait operation bounded by a short internal
	// timeout and return ErrDeviceGone on repeated failure.
	WriteFrame(frame Frame) error

	// Close releases the underlying handle. Idempotent.
	Close() error
}

// WriteTimeout is the default bound on a single WriteFrame call,
// roughly the tick period per the scheduler's resource model.
const WriteTimeout = 50 * time.Millisecond
