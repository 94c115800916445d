// Package sim implements an in-memory adapter.Device for tests and
// cmd/ledctl-sim: it never blocks and never fails, and it records the
// frames it receives (the most recent maxFrames of them, or all when
// maxFrames is 0) so callers can assert on emitted output.
package sim

import (
	"sync"

	"github.com/arcaluminis/ledctl/internal/adapter"
	"github.com/arcaluminis/ledctl/internal/event"
	"github.com/arcaluminis/ledctl/internal/topology"
)

// Device is a simulated RGB peripheral with a fixed LED count and an
// injectable input queue.
type Device struct {
	topo *topology.Topology

	mu        sync.Mutex
	injected  []event.Event
	frames    [][]byte
	maxFrames int
	closed    bool
}

// New constructs a simulated device over the given topology. maxFrames
// bounds how many emitted frames are retained (0 means unbounded).
func New(topo *topology.Topology, maxFrames int) *Device {
	return &Device{topo: topo, maxFrames: maxFrames}
}

func (d *Device) Open() (*topology.Topology, error) {
	return d.topo, nil
}

func (d *Device) PollInput() ([]event.Event, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := d.injected
	d.injected = nil
	return out, nil
}

// Inject queues an input event as if it came from hardware, for tests.
func (d *Device) Inject(ev event.Event) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.injected = append(d.injected, ev)
}

func (d *Device) WriteFrame(frame adapter.Frame) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	buf := make([]byte, 0, len(frame)*3)
	for _, c := range frame {
		buf = append(buf, c.Serialize()...)
	}
	d.frames = append(d.frames, buf)
	if d.maxFrames > 0 && len(d.frames) > d.maxFrames {
		d.frames = d.frames[len(d.frames)-d.maxFrames:]
	}
	return nil
}

// Frames returns every retained emitted frame, oldest first, GRB-packed.
func (d *Device) Frames() [][]byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([][]byte, len(d.frames))
	copy(out, d.frames)
	return out
}

// LastFrame returns the most recently emitted frame, or nil if none yet.
func (d *Device) LastFrame() []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.frames) == 0 {
		return nil
	}
	return d.frames[len(d.frames)-1]
}

func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

func (d *Device) Closed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}
