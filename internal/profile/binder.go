package profile

import (
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/arcaluminis/ledctl/internal/scripthost"
	"github.com/arcaluminis/ledctl/internal/sensor"
	"github.com/arcaluminis/ledctl/internal/topology"
)

var generationCounter uint64

// nextGeneration returns a process-wide monotonically increasing
// generation id identifying one bind; a scheduler.Worker compares it
// each tick to notice that a new profile was published (I3).
func nextGeneration() uint64 {
	return atomic.AddUint64(&generationCounter, 1)
}

// Bind validates a descriptor's layers against their manifests,
// instantiates one script interpreter per layer, runs each instance's
// onStartup handler, and returns a ready-to-run Profile. On any
// failure it returns an error and no partial Profile -- the caller's
// currently running profile, if any, is left completely untouched.
func Bind(desc *Descriptor, topo *topology.Topology, sensors *sensor.Hub, budget time.Duration) (*Profile, error) {
	layers := make([]*Layer, 0, len(desc.Layers))

	for _, ld := range desc.Layers {
		layer, err := bindLayer(desc.ScriptDir, ld, topo, budget)
		if err != nil {
			return nil, fmt.Errorf("%w: layer %s: %v", ErrProfileInvalid, ld.Script, err)
		}
		layers = append(layers, layer)
	}

	p := &Profile{
		Name:       desc.Name,
		Generation: nextGeneration(),
		TickHz:     desc.TickHz,
		Brightness: desc.Brightness,
		Layers:     layers,
	}

	var snap map[string]sensor.Snapshot
	if sensors != nil {
		snap = sensors.Snapshot()
	}
	for _, l := range p.Layers {
		inst := l.Handle.(*scripthost.Instance)
		inst.SetSensorSnapshot(snap)
		if err := inst.Dispatch(scripthost.HandlerStartup); err != nil {
			return nil, fmt.Errorf("%w: %s onStartup: %v", ErrProfileInvalid, l.Name, err)
		}
	}

	return p, nil
}

func bindLayer(scriptDir string, ld LayerDescriptor, topo *topology.Topology, budget time.Duration) (*Layer, error) {
	scriptPath := filepath.Join(scriptDir, ld.Script)
	src, err := os.ReadFile(scriptPath)
	if err != nil {
		return nil, fmt.Errorf("reading script: %w", err)
	}

	params := ld.Params
	if ld.ManifestIn != "" {
		m, err := LoadManifest(filepath.Join(scriptDir, ld.ManifestIn))
		if err != nil {
			return nil, err
		}
		if err := m.VerifyChecksum(); err != nil {
			return nil, err
		}
		if err := m.CheckCompatibility(scripthost.HostAPIVersion); err != nil {
			return nil, err
		}
		if err := m.ValidateBindings(ld.Params); err != nil {
			return nil, err
		}
		merged := m.ParamDefaults()
		for k, v := range ld.Params {
			merged[k] = v
		}
		params = merged
	}

	inst, err := scripthost.Load(ld.Script, scripthost.Options{
		Source: string(src),
		Topo:   topo,
		Budget: budget,
		Params: params,
	})
	if err != nil {
		return nil, err
	}

	enabled := ld.Enabled
	return &Layer{Name: ld.Script, Enabled: enabled, Params: params, Handle: inst}, nil
}
