package profile

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Error kinds from spec.md §7, surfaced by Bind and reload.
var (
	ErrConfigInvalid  = errors.New("profile: config invalid")
	ErrProfileInvalid = errors.New("profile: invalid")
)

// LayerDescriptor binds one script to its position in the layer stack
// and the parameter values a profile descriptor supplies for it.
type LayerDescriptor struct {
	Script     string                 `yaml:"script"`
	ManifestIn string                 `yaml:"manifest"`
	Enabled    bool                   `yaml:"enabled"`
	Params     map[string]interface{} `yaml:"params"`
}

// Descriptor is the on-disk profile document: an ordered stack of
// script layers, global brightness, device bindings, and tick period.
type Descriptor struct {
	Name        string            `yaml:"name"`
	TickHz      int               `yaml:"tick_hz"`
	Brightness  uint8             `yaml:"brightness"`
	Devices     []string          `yaml:"devices"`
	Layers      []LayerDescriptor `yaml:"layers"`
	ScriptDir   string            `yaml:"script_dir"`
}

// LoadDescriptor reads and parses a profile descriptor YAML file.
func LoadDescriptor(path string) (*Descriptor, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("profile: reading descriptor %s: %w", path, err)
	}
	var d Descriptor
	if err := yaml.Unmarshal(b, &d); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrConfigInvalid, err)
	}
	if d.TickHz <= 0 {
		return nil, fmt.Errorf("%w: tick_hz must be positive", ErrConfigInvalid)
	}
	if len(d.Layers) == 0 {
		return nil, fmt.Errorf("%w: profile has no layers", ErrProfileInvalid)
	}
	return &d, nil
}

// AppliesTo reports whether this descriptor should be bound for the
// given device id. An empty Devices list applies to every registered
// device; a non-empty one scopes the profile to exactly those ids.
func (d *Descriptor) AppliesTo(deviceID string) bool {
	if len(d.Devices) == 0 {
		return true
	}
	for _, id := range d.Devices {
		if id == deviceID {
			return true
		}
	}
	return false
}

// Layer is one bound, loaded script instance ready to run. Its
// *scripthost.Instance is stored in the untyped Handle field, which
// Bind (in binder.go) sets and callers type-assert back.
type Layer struct {
	Name    string
	Enabled bool
	Params  map[string]interface{}
	Handle  interface{} // *scripthost.Instance, set by Bind
}

// Profile is the immutable, bound result of a Descriptor for one
// device: everything that device's scheduler.Worker needs to run one
// tick, with a monotonically increasing Generation identifying this
// exact bind (invariant I3). Each device gets its own Profile, with
// its own script instances and output buffers -- two devices never
// share a Layer.Handle.
type Profile struct {
	Name       string
	Generation uint64
	TickHz     int
	Brightness uint8
	Layers     []*Layer
}
