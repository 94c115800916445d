package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/arcaluminis/ledctl/internal/adapter"
	"github.com/arcaluminis/ledctl/internal/adapter/sim"
	"github.com/arcaluminis/ledctl/internal/color"
	"github.com/arcaluminis/ledctl/internal/compositor"
	"github.com/arcaluminis/ledctl/internal/diagnostics"
	"github.com/arcaluminis/ledctl/internal/event"
	"github.com/arcaluminis/ledctl/internal/profile"
	"github.com/arcaluminis/ledctl/internal/scripthost"
	"github.com/arcaluminis/ledctl/internal/topology"
)

func solidProfile(t *testing.T, topo *topology.Topology, gen uint64, c color.Color) *profile.Profile {
	t.Helper()
	src := `function onTick(){ for (var i=0;i<host.getLedCount();i++){ host.setColor(i, host.rgba(` +
		itoa(int(c.R())) + "," + itoa(int(c.G())) + "," + itoa(int(c.B())) + ",255)); } }"
	inst, err := scripthost.Load("solid", scripthost.Options{Source: src, Topo: topo, Budget: 20 * time.Millisecond})
	if err != nil {
		t.Fatal(err)
	}
	return &profile.Profile{
		Name:       "solid",
		Generation: gen,
		TickHz:     200,
		Brightness: 255,
		Layers:     []*profile.Layer{{Name: "solid", Enabled: true, Handle: inst}},
	}
}

// quitMarkerProfile builds a profile whose onTick paints LED 0 one
// color and whose onQuit paints it a different, distinguishable color,
// so a test can tell whether on_quit actually ran.
func quitMarkerProfile(t *testing.T, topo *topology.Topology, gen uint64) (*profile.Profile, *scripthost.Instance) {
	t.Helper()
	src := `
		function onTick() { host.setColor(0, host.rgba(10,20,30,255)); }
		function onQuit(reason) { host.setColor(0, host.rgba(99,88,77,255)); }
	`
	inst, err := scripthost.Load("marker", scripthost.Options{Source: src, Topo: topo, Budget: 20 * time.Millisecond})
	if err != nil {
		t.Fatal(err)
	}
	return &profile.Profile{
		Name:       "marker",
		Generation: gen,
		TickHz:     200,
		Brightness: 255,
		Layers:     []*profile.Layer{{Name: "marker", Enabled: true, Handle: inst}},
	}, inst
}

// goneDevice fails every WriteFrame with adapter.ErrDeviceGone, driving
// the worker into quarantine on its first tick.
type goneDevice struct {
	topo   *topology.Topology
	closed bool
}

func (d *goneDevice) Open() (*topology.Topology, error) { return d.topo, nil }
func (d *goneDevice) PollInput() ([]event.Event, error) { return nil, nil }
func (d *goneDevice) WriteFrame(adapter.Frame) error    { return adapter.ErrDeviceGone }
func (d *goneDevice) Close() error                      { d.closed = true; return nil }

func TestWorkerQuitsScriptsAndQuarantinesOnDeviceGone(t *testing.T) {
	topo := topology.New(topology.Dim{X: 4, Y: 1, Z: 1}, topology.Order{}, nil)
	dev := &goneDevice{topo: topo}

	p, inst := quitMarkerProfile(t, topo, 1)

	w := NewWorker("dev0", dev, diagnostics.NewRing(8))
	w.Post = compositor.PostPipeline{}
	w.SetProfile(p)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	time.Sleep(30 * time.Millisecond)

	if !w.quarantined() {
		t.Fatal("expected worker to have entered quarantine after device-gone")
	}
	if inst.Frame()[0] != color.RGBA(99, 88, 77, 255) {
		t.Fatalf("expected on_quit marker color after quarantine, got %#08x", uint32(inst.Frame()[0]))
	}
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	digits := []byte{}
	for n > 0 {
		digits = append([]byte{byte('0' + n%10)}, digits...)
		n /= 10
	}
	return string(digits)
}

func TestWorkerEmitsSolidColorFrame(t *testing.T) {
	topo := topology.New(topology.Dim{X: 4, Y: 1, Z: 1}, topology.Order{}, nil)
	dev := sim.New(topo, 64)

	p := solidProfile(t, topo, 1, color.RGB(10, 20, 30))

	w := NewWorker("dev0", dev, diagnostics.NewRing(8))
	w.Post = compositor.PostPipeline{}
	w.SetProfile(p)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	go w.Run(ctx)

	time.Sleep(50 * time.Millisecond)

	frames := dev.Frames()
	if len(frames) == 0 {
		t.Fatal("expected at least one emitted frame before shutdown")
	}
	last := frames[len(frames)-1]
	if last[0] != 20 || last[1] != 10 || last[2] != 30 {
		t.Fatalf("expected GRB(20,10,30), got %v", last[:3])
	}
}

// TestWorkerEmitsQuiescentFrameOnShutdown covers the cancellation
// path: once the tick loop exits, the worker writes one final all-off
// frame and quits its scripts before closing the device.
func TestWorkerEmitsQuiescentFrameOnShutdown(t *testing.T) {
	topo := topology.New(topology.Dim{X: 4, Y: 1, Z: 1}, topology.Order{}, nil)
	dev := sim.New(topo, 64)

	p := solidProfile(t, topo, 1, color.RGB(10, 20, 30))

	w := NewWorker("dev0", dev, diagnostics.NewRing(8))
	w.Post = compositor.PostPipeline{}
	w.SetProfile(p)

	ctx, cancel := context.WithCancel(context.Background())
	go w.Run(ctx)

	time.Sleep(30 * time.Millisecond)
	cancel()
	time.Sleep(20 * time.Millisecond)

	last := dev.LastFrame()
	if last == nil {
		t.Fatal("expected a final frame on shutdown")
	}
	if last[0] != 0 || last[1] != 0 || last[2] != 0 {
		t.Fatalf("expected quiescent all-off final frame, got %v", last[:3])
	}
	if !dev.Closed() {
		t.Fatal("expected device to be closed after shutdown")
	}
}
