// Package pipeline wires the device adapters, sensor hub, and profile
// binder into the per-device scheduler coordinator, and owns the
// process-wide signal-driven lifecycle (startup, SIGHUP reload, and
// shutdown bound to one tick plus one blocking write per device).
package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/arcaluminis/ledctl/internal/adapter"
	"github.com/arcaluminis/ledctl/internal/compositor"
	"github.com/arcaluminis/ledctl/internal/diagnostics"
	"github.com/arcaluminis/ledctl/internal/profile"
	"github.com/arcaluminis/ledctl/internal/scheduler"
	"github.com/arcaluminis/ledctl/internal/sensor"
	"github.com/arcaluminis/ledctl/internal/topology"
)

// ScriptBudget is the default per-handler time budget, roughly half the
// nominal tick period per the resource model.
const ScriptBudget = 4 * time.Millisecond

// DeviceBinding pairs a concrete adapter with the name it's addressed
// by in profile descriptors.
type DeviceBinding struct {
	ID     string
	Device adapter.Device
}

// Pipeline is the coordinating layer: it owns the sensor hub, the
// scheduler coordinator, and the last-loaded profile path for reload.
type Pipeline struct {
	Coordinator *scheduler.Coordinator
	Sensors     *sensor.Hub
	Sink        diagnostics.Sink
	Budget      compositor.Budget

	mu          sync.Mutex
	devices     map[string]DeviceBinding
	topos       map[string]*topology.Topology
	lastDescPath string
}

// New constructs an idle Pipeline. Call AddDevice for each device, then
// Run with a profile descriptor path.
func New(sink diagnostics.Sink) *Pipeline {
	return &Pipeline{
		Coordinator: scheduler.NewCoordinator(sink),
		Sensors:     sensor.NewHub(),
		Sink:        sink,
		Budget:      compositor.DefaultBudget(),
		devices:     make(map[string]DeviceBinding),
		topos:       make(map[string]*topology.Topology),
	}
}

// AddDevice registers a device under id. Devices are opened lazily by
// their own scheduler.Worker, not here.
func (p *Pipeline) AddDevice(id string, dev adapter.Device) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.devices[id] = DeviceBinding{ID: id, Device: dev}
}

// RegisterSensor adds a sensor provider; call before Run.
func (p *Pipeline) RegisterSensor(prov sensor.Provider) {
	p.Sensors.Register(prov)
}

// bindDevices binds desc against every applicable device's own
// topology -- respecting desc.Devices scoping -- and publishes each
// result through the Coordinator. Each device gets its own Profile:
// its own script instances and output buffers, never shared with
// another device even when the same descriptor targets both. It
// returns an error only if every applicable device failed to bind.
func (p *Pipeline) bindDevices(desc *profile.Descriptor) error {
	p.mu.Lock()
	topos := make(map[string]*topology.Topology, len(p.topos))
	for id, t := range p.topos {
		topos[id] = t
	}
	p.mu.Unlock()

	var applicable, failed int
	for id, topo := range topos {
		if !desc.AppliesTo(id) {
			continue
		}
		applicable++

		prof, err := profile.Bind(desc, topo, p.Sensors, ScriptBudget)
		if err != nil {
			failed++
			p.Sink.Emit(diagnostics.Diagnostic{At: time.Now(), Severity: diagnostics.Error, Code: diagnostics.CodeProfileInvalid, Device: id, Summary: "bind failed", Detail: err.Error()})
			continue
		}
		if err := p.Coordinator.Swap(id, prof); err != nil {
			failed++
			p.Sink.Emit(diagnostics.Diagnostic{At: time.Now(), Severity: diagnostics.Error, Code: diagnostics.CodeProfileInvalid, Device: id, Summary: "swap failed", Detail: err.Error()})
		}
	}

	if applicable == 0 {
		return fmt.Errorf("pipeline: profile descriptor matches no registered device")
	}
	if failed == applicable {
		return fmt.Errorf("pipeline: bind failed for all %d applicable device(s)", applicable)
	}
	return nil
}

// Reload re-reads the descriptor at descPath and rebinds it against
// every device that has already opened, the SIGHUP reload path.
func (p *Pipeline) Reload(descPath string) error {
	desc, err := profile.LoadDescriptor(descPath)
	if err != nil {
		p.Sink.Emit(diagnostics.Diagnostic{At: time.Now(), Severity: diagnostics.Error, Code: diagnostics.CodeConfigInvalid, Summary: "reload failed", Detail: err.Error()})
		return err
	}

	if err := p.bindDevices(desc); err != nil {
		return err
	}
	p.lastDescPath = descPath
	return nil
}

// Run starts one scheduler.Worker per registered device, binds the
// given profile descriptor against each device that opens successfully
// (scoped by the descriptor's device selector), and blocks until ctx
// is cancelled.
func (p *Pipeline) Run(ctx context.Context, descPath string) error {
	p.Sensors.Run()
	defer p.Sensors.Stop()
	p.lastDescPath = descPath

	p.mu.Lock()
	bindings := make([]DeviceBinding, 0, len(p.devices))
	for _, b := range p.devices {
		bindings = append(bindings, b)
	}
	p.mu.Unlock()

	if len(bindings) == 0 {
		return fmt.Errorf("pipeline: no devices registered")
	}

	desc, err := profile.LoadDescriptor(descPath)
	if err != nil {
		return fmt.Errorf("pipeline: loading descriptor: %w", err)
	}

	post := compositor.PostPipeline{ToneMap: p.Budget.ToneMap(), Limiter: p.Budget.Limiter()}

	for _, b := range bindings {
		topo, err := probeTopology(b.Device)
		if err != nil {
			p.Sink.Emit(diagnostics.Diagnostic{At: time.Now(), Severity: diagnostics.Error, Code: diagnostics.CodeAdapterIO, Device: b.ID, Summary: "initial probe failed", Detail: err.Error()})
			continue
		}
		p.mu.Lock()
		p.topos[b.ID] = topo
		p.mu.Unlock()

		w := scheduler.NewWorker(b.ID, b.Device, p.Sink)
		w.Post = post
		w.Sensors = p.Sensors
		p.Coordinator.AddWorker(ctx, w)
	}

	if err := p.bindDevices(desc); err != nil {
		return fmt.Errorf("pipeline: initial bind failed: %w", err)
	}

	<-ctx.Done()
	p.Coordinator.StopAll()
	return nil
}

// probeTopology opens a device once just to learn its topology, then
// closes it; the scheduler.Worker for this device will reopen it for
// real on its own goroutine.
func probeTopology(dev adapter.Device) (*topology.Topology, error) {
	topo, err := dev.Open()
	if err != nil {
		return nil, err
	}
	dev.Close()
	return topo, nil
}
