// Package scripthost runs one sandboxed goja.Runtime per script
// instance and exposes the fixed host API described by the profile's
// manifest: topology, frame output, input, time, sensors, parameters.
package scripthost

import (
	"fmt"
	"time"

	"github.com/dop251/goja"

	"github.com/arcaluminis/ledctl/internal/color"
	"github.com/arcaluminis/ledctl/internal/event"
	"github.com/arcaluminis/ledctl/internal/sensor"
	"github.com/arcaluminis/ledctl/internal/topology"
)

// MaxStrikes is the number of consecutive budget overruns or uncaught
// errors a script instance tolerates before being permanently disabled.
const MaxStrikes = 3

// HostAPIVersion is the version of the `host` object surface this build
// exposes to scripts, checked against a manifest's min_supported_version.
const HostAPIVersion = 1

// Handler names the host probes for after loading a script. Absent
// handlers are treated as no-ops, never as errors.
const (
	HandlerTick       = "onTick"
	HandlerStartup    = "onStartup"
	HandlerQuit       = "onQuit"
	HandlerKeyDown    = "onKeyDown"
	HandlerKeyUp      = "onKeyUp"
	HandlerHidEvent   = "onHidEvent"
	HandlerAxisChange = "onAxisChange"
)

// Instance is one running script: its interpreter, output buffer, and
// the budget/strike bookkeeping that can permanently disable it.
type Instance struct {
	Name     string
	Budget   time.Duration
	vm       *goja.Runtime
	handlers map[string]bool
	frame    []color.Color
	enabled  bool
	strikes  int
	sensors  map[string]sensor.Snapshot
	params   map[string]interface{}
}

// Options configures a new Instance at load time.
type Options struct {
	Source string
	Topo   *topology.Topology
	Budget time.Duration
	Params map[string]interface{}
}

// Load installs the host API, then compiles source and runs top-level
// script code once (for global var/function declarations), and returns
// an Instance that is already enabled. It does not call onStartup; the
// caller does that via Dispatch so budget/strike accounting is uniform.
func Load(name string, opts Options) (*Instance, error) {
	vm := goja.New()
	inst := &Instance{
		Name:     name,
		Budget:   opts.Budget,
		vm:       vm,
		handlers: map[string]bool{},
		frame:    make([]color.Color, opts.Topo.Count()),
		enabled:  true,
		params:   opts.Params,
	}

	inst.installHostAPI(opts.Topo)

	if _, err := vm.RunString(opts.Source); err != nil {
		return nil, fmt.Errorf("scripthost: compiling %s: %w", name, err)
	}

	for _, h := range []string{HandlerTick, HandlerStartup, HandlerQuit, HandlerKeyDown, HandlerKeyUp, HandlerHidEvent, HandlerAxisChange} {
		if fn, ok := goja.AssertFunction(vm.Get(h)); ok {
			_ = fn // existence check only, re-fetched in Dispatch
			inst.handlers[h] = true
		}
	}

	return inst, nil
}

// SetSensorSnapshot installs the frozen sensor view this instance's
// handlers see until the next call. The caller (the device worker's
// tick) takes one sensor.Hub.Snapshot per tick and hands the identical
// map to every layer, so sensor reads are consistent within a tick
// instead of racing the hub's own sampling goroutines.
func (inst *Instance) SetSensorSnapshot(snap map[string]sensor.Snapshot) {
	inst.sensors = snap
}

// Enabled reports whether the instance still participates in composition.
func (inst *Instance) Enabled() bool { return inst.enabled }

// Frame returns the instance's current output buffer. The caller must
// not retain it across the next Dispatch call without copying.
func (inst *Instance) Frame() []color.Color { return inst.frame }

// Strikes returns the current consecutive-failure count.
func (inst *Instance) Strikes() int { return inst.strikes }

// Dispatch runs the named handler, if present, under the instance's
// time budget. A budget overrun or uncaught JS error counts as a
// strike; three strikes permanently disables the instance (I5,
// scenario S3). A successful run resets the strike counter to zero.
func (inst *Instance) Dispatch(handler string, args ...interface{}) error {
	if !inst.enabled {
		return nil
	}
	if !inst.handlers[handler] {
		return nil
	}
	fn, ok := goja.AssertFunction(inst.vm.Get(handler))
	if !ok {
		return nil
	}

	done := make(chan error, 1)
	timer := time.AfterFunc(inst.Budget, func() {
		inst.vm.Interrupt("budget exceeded")
	})

	gojaArgs := make([]goja.Value, len(args))
	for i, a := range args {
		gojaArgs[i] = inst.vm.ToValue(a)
	}

	go func() {
		_, err := fn(goja.Undefined(), gojaArgs...)
		done <- err
	}()

	err := <-done
	timer.Stop()

	if err != nil {
		inst.strikes++
		if inst.strikes >= MaxStrikes {
			inst.enabled = false
		}
		return fmt.Errorf("scripthost: %s.%s: %w", inst.Name, handler, err)
	}
	inst.strikes = 0
	return nil
}

// DispatchEvent routes one input event to the matching handler.
func (inst *Instance) DispatchEvent(ev event.Event) error {
	switch ev.Kind {
	case event.KeyDown:
		return inst.Dispatch(HandlerKeyDown, ev.KeyCode)
	case event.KeyUp:
		return inst.Dispatch(HandlerKeyUp, ev.KeyCode)
	case event.Axis:
		return inst.Dispatch(HandlerAxisChange, ev.AxisName, ev.Value)
	case event.HidRaw:
		return inst.Dispatch(HandlerHidEvent, ev.Raw)
	}
	return nil
}
