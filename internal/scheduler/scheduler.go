// Package scheduler runs one tick loop per device: drain input,
// dispatch it to every script layer, composite the result, emit it to
// hardware, and sleep to the next tick boundary. It also owns hot-swap
// (atomic profile generation pointer), device quarantine on repeated
// I/O failure, and backpressure rate-halving when a tick overruns its
// deadline.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/arcaluminis/ledctl/internal/adapter"
	"github.com/arcaluminis/ledctl/internal/color"
	"github.com/arcaluminis/ledctl/internal/compositor"
	"github.com/arcaluminis/ledctl/internal/diagnostics"
	"github.com/arcaluminis/ledctl/internal/profile"
	"github.com/arcaluminis/ledctl/internal/scripthost"
	"github.com/arcaluminis/ledctl/internal/sensor"
	"github.com/arcaluminis/ledctl/internal/topology"
)

// quarantineBackoff is how long a device stays quarantined after
// WriteFrame or PollInput reports it gone, mirroring the short-term
// blacklist a real HID reconnect loop uses to avoid hot-looping probes
// against a path that just failed.
const quarantineBackoff = 90 * time.Second

// Worker owns one device's entire lifecycle: open, tick, quarantine,
// reopen, close. It is the only goroutine that touches its Device, and
// it owns its own profile pointer -- a Profile's script instances and
// output buffers belong to exactly one Worker, never shared across
// devices, so hot-swap on one device can never race a tick on another.
type Worker struct {
	DeviceID string
	Device   adapter.Device
	Post     compositor.PostPipeline
	Sink     diagnostics.Sink
	Sensors  *sensor.Hub

	profile     atomic.Pointer[profile.Profile]
	topo        *topology.Topology
	out         []color.Color
	lastGen     uint64
	quarantine  time.Time
	rateDivisor int

	stop chan struct{}
	wg   sync.WaitGroup
}

// NewWorker constructs a Worker with no bound profile. SetProfile
// publishes one once it's been bound for this device specifically.
func NewWorker(id string, dev adapter.Device, sink diagnostics.Sink) *Worker {
	return &Worker{
		DeviceID:    id,
		Device:      dev,
		Sink:        sink,
		rateDivisor: 1,
		stop:        make(chan struct{}),
	}
}

// SetProfile publishes p as this worker's current profile. The
// profile being replaced, if any, receives on_quit("replaced") before
// being dropped. Safe to call from any goroutine; the worker's own
// tick loop only ever Loads.
func (w *Worker) SetProfile(p *profile.Profile) {
	old := w.profile.Load()
	w.profile.Store(p)
	quitLayers(old, "replaced", w.Sink, w.DeviceID)
}

// Profile returns the worker's currently published profile, or nil
// before the first SetProfile.
func (w *Worker) Profile() *profile.Profile {
	return w.profile.Load()
}

// Run opens the device and ticks at the rate the current profile
// specifies until ctx is cancelled or Stop is called. It returns once
// the device has been closed, honoring the shutdown bound of at most
// one in-flight tick plus one blocking write.
func (w *Worker) Run(ctx context.Context) {
	w.wg.Add(1)
	defer w.wg.Done()

	for {
		if ctx.Err() != nil {
			return
		}
		if w.quarantined() {
			select {
			case <-ctx.Done():
				return
			case <-w.stop:
				return
			case <-time.After(time.Until(w.quarantine)):
			}
			continue
		}

		topo, err := w.Device.Open()
		if err != nil {
			w.enterQuarantine("open failed: " + err.Error())
			continue
		}
		w.topo = topo
		w.out = make([]color.Color, topo.Count())

		if !w.tickLoop(ctx) {
			w.shutdown()
			return
		}
		w.Device.Close()
	}
}

// shutdown runs the cancellation path from the resource model: quit
// every script with reason "shutdown", emit one final quiescent
// (all-off) frame, then close the device. Called once tickLoop has
// finished its current tick and returned false.
func (w *Worker) shutdown() {
	quitLayers(w.profile.Load(), "shutdown", w.Sink, w.DeviceID)
	if w.out != nil {
		for i := range w.out {
			w.out[i] = color.Black
		}
		_ = w.Device.WriteFrame(adapter.Frame(w.out))
	}
	w.Device.Close()
}

// tickLoop runs ticks until the device is quarantined (returns true,
// caller reopens) or ctx is done (returns false, caller exits for good).
func (w *Worker) tickLoop(ctx context.Context) bool {
	period := w.period()
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	ticksSincePeriodCheck := 0
	for {
		select {
		case <-ctx.Done():
			return false
		case <-w.stop:
			return false
		case <-ticker.C:
			deadline := time.Now().Add(period)
			if gone := w.tick(deadline); gone {
				w.enterQuarantine("device gone")
				return true
			}

			ticksSincePeriodCheck++
			if ticksSincePeriodCheck >= 8 {
				ticksSincePeriodCheck = 0
				if newPeriod := w.period(); newPeriod != period {
					period = newPeriod
					ticker.Reset(period)
				}
			}
		}
	}
}

// tick executes one Deadline/Drain/Dispatch/Composite/Emit cycle.
// Returns true if the device should be quarantined.
func (w *Worker) tick(deadline time.Time) bool {
	p := w.profile.Load()
	if p == nil {
		return false
	}

	if p.Generation != w.lastGen {
		w.lastGen = p.Generation
		w.Sink.Emit(diagnostics.Diagnostic{At: time.Now(), Severity: diagnostics.Info, Code: diagnostics.CodeHotSwap, Device: w.DeviceID, Summary: "profile generation advanced"})
	}

	events, err := w.Device.PollInput()
	if err != nil {
		return w.handleIOError(err)
	}

	// One sensor snapshot per tick, handed to every layer: two scripts
	// reading the same sensor within this tick see the same value
	// instead of each racing the hub's own sampling goroutines.
	var snap map[string]sensor.Snapshot
	if w.Sensors != nil {
		snap = w.Sensors.Snapshot()
	}
	for _, l := range p.Layers {
		l.Handle.(*scripthost.Instance).SetSensorSnapshot(snap)
	}

	overrun := false
	for tick := 0; tick < w.rateDivisor; tick++ {
		if tick == 0 {
			for _, ev := range events {
				for _, l := range p.Layers {
					inst := l.Handle.(*scripthost.Instance)
					if dispatchErr := inst.DispatchEvent(ev); dispatchErr != nil {
						w.reportScriptError(inst, dispatchErr)
					}
				}
			}
		}
		for _, l := range p.Layers {
			inst := l.Handle.(*scripthost.Instance)
			if err := inst.Dispatch(scripthost.HandlerTick); err != nil {
				w.reportScriptError(inst, err)
			}
		}
	}

	layers := make([]compositor.Layer, 0, len(p.Layers))
	for _, l := range p.Layers {
		inst := l.Handle.(*scripthost.Instance)
		layers = append(layers, compositor.Layer{Frame: inst.Frame(), Enabled: l.Enabled && inst.Enabled()})
	}
	compositor.Compose(w.out, layers, p.Brightness)
	w.Post.Apply(w.out)

	if err := w.Device.WriteFrame(adapter.Frame(w.out)); err != nil {
		return w.handleIOError(err)
	}

	if time.Now().After(deadline) {
		overrun = true
	}
	w.adjustRate(overrun)
	return false
}

func (w *Worker) reportScriptError(inst *scripthost.Instance, err error) {
	code := diagnostics.CodeScriptRuntime
	if inst.Strikes() >= scripthost.MaxStrikes {
		code = diagnostics.CodeScriptBudget
	}
	w.Sink.Emit(diagnostics.Diagnostic{At: time.Now(), Severity: diagnostics.Warn, Code: code, Device: w.DeviceID, Summary: "script error", Detail: err.Error()})
}

// quitLayers dispatches on_quit(reason) to every layer's script
// instance in p. Used on hot-swap (reason "replaced"), device
// quarantine (reason "quarantined"), and shutdown (reason "shutdown").
func quitLayers(p *profile.Profile, reason string, sink diagnostics.Sink, deviceID string) {
	if p == nil {
		return
	}
	for _, l := range p.Layers {
		inst, ok := l.Handle.(*scripthost.Instance)
		if !ok {
			continue
		}
		if err := inst.Dispatch(scripthost.HandlerQuit, reason); err != nil && sink != nil {
			sink.Emit(diagnostics.Diagnostic{At: time.Now(), Severity: diagnostics.Warn, Code: diagnostics.CodeScriptRuntime, Device: deviceID, Summary: "on_quit error", Detail: err.Error()})
		}
	}
}

func (w *Worker) handleIOError(err error) bool {
	if errors.Is(err, adapter.ErrDeviceGone) {
		w.Sink.Emit(diagnostics.Diagnostic{At: time.Now(), Severity: diagnostics.Error, Code: diagnostics.CodeDeviceGone, Device: w.DeviceID, Summary: "device reported gone"})
		return true
	}
	w.Sink.Emit(diagnostics.Diagnostic{At: time.Now(), Severity: diagnostics.Warn, Code: diagnostics.CodeAdapterIO, Device: w.DeviceID, Summary: "adapter I/O error", Detail: err.Error()})
	return false
}

// adjustRate halves the effective tick rate (down to 1/8) after a tick
// that overran its deadline and doubles it back toward the nominal
// rate after a tick that did not. A single overrun is enough to halve
// the rate; there is no consecutive-overrun threshold.
func (w *Worker) adjustRate(overrun bool) {
	if overrun {
		if w.rateDivisor < 8 {
			w.rateDivisor *= 2
			w.Sink.Emit(diagnostics.Diagnostic{At: time.Now(), Severity: diagnostics.Warn, Code: diagnostics.CodeBackpressure, Device: w.DeviceID, Summary: "tick overrun, halving rate"})
		}
		return
	}
	if w.rateDivisor > 1 {
		w.rateDivisor /= 2
	}
}

func (w *Worker) period() time.Duration {
	p := w.profile.Load()
	if p == nil || p.TickHz <= 0 {
		return time.Second / 30
	}
	return time.Duration(w.rateDivisor) * time.Second / time.Duration(p.TickHz)
}

func (w *Worker) quarantined() bool {
	return time.Now().Before(w.quarantine)
}

func (w *Worker) enterQuarantine(reason string) {
	w.quarantine = time.Now().Add(quarantineBackoff)
	quitLayers(w.profile.Load(), "quarantined", w.Sink, w.DeviceID)
	w.Sink.Emit(diagnostics.Diagnostic{At: time.Now(), Severity: diagnostics.Error, Code: diagnostics.CodeQuarantine, Device: w.DeviceID, Summary: "entering quarantine", Detail: reason})
}

// Stop requests the worker's tick loop exit at the next tick boundary.
// Combined with the device's WriteTimeout, this bounds shutdown to at
// most one in-flight tick plus one blocking write.
func (w *Worker) Stop() {
	close(w.stop)
	w.wg.Wait()
}
