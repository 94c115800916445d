// Package profile implements the manifest schema, profile descriptor
// schema, and the bind procedure that turns a descriptor plus a set of
// script sources into a running, validated Profile.
package profile

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ParamType names the accepted value shapes for a manifest parameter.
type ParamType string

const (
	ParamNumber ParamType = "number"
	ParamBool   ParamType = "bool"
	ParamColor  ParamType = "color"
	ParamString ParamType = "string"
)

// Parameter declares one tunable a script exposes, matched by name
// against a profile descriptor's binding block.
type Parameter struct {
	Name        string      `yaml:"name"`
	Description string      `yaml:"description"`
	Type        ParamType   `yaml:"type"`
	Default     interface{} `yaml:"default"`
}

// Manifest is the sidecar descriptor for one script file: its identity
// (name, description, author, tags), its expected checksum, the
// parameters it accepts, and the host API version range it was
// written against.
type Manifest struct {
	Name                string      `yaml:"name"`
	Description         string      `yaml:"description"`
	Author              string      `yaml:"author"`
	Tags                []string    `yaml:"tags"`
	ScriptFile          string      `yaml:"script_file"`
	Checksum            string      `yaml:"checksum"`
	Version             int         `yaml:"version"`
	MinSupportedVersion int         `yaml:"min_supported_version"`
	Parameters          []Parameter `yaml:"parameters"`
}

// LoadManifest reads and parses a manifest YAML file.
func LoadManifest(path string) (*Manifest, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("profile: reading manifest %s: %w", path, err)
	}
	var m Manifest
	if err := yaml.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("profile: %w: %s", ErrConfigInvalid, err)
	}
	return &m, nil
}

// VerifyChecksum recomputes the SHA-1 of the manifest's script file and
// compares it against the recorded checksum, catching a script that
// drifted from the manifest that describes it.
func (m *Manifest) VerifyChecksum() error {
	if m.Checksum == "" {
		return nil
	}
	b, err := os.ReadFile(m.ScriptFile)
	if err != nil {
		return fmt.Errorf("profile: reading script %s: %w", m.ScriptFile, err)
	}
	sum := sha1.Sum(b)
	got := hex.EncodeToString(sum[:])
	if got != m.Checksum {
		return fmt.Errorf("%w: checksum mismatch for %s: manifest has %s, script is %s", ErrConfigInvalid, m.ScriptFile, m.Checksum, got)
	}
	return nil
}

// CheckCompatibility reports an error if the running host API version is
// older than the manifest's declared min_supported_version. A zero
// min_supported_version means the script declares no floor.
func (m *Manifest) CheckCompatibility(hostVersion int) error {
	if m.MinSupportedVersion > 0 && hostVersion < m.MinSupportedVersion {
		return fmt.Errorf("%w: %s requires host API >= %d, running %d", ErrConfigInvalid, m.ScriptFile, m.MinSupportedVersion, hostVersion)
	}
	return nil
}

// ParamDefaults collapses a manifest's declared parameters to a
// name->default map, the baseline a profile's bindings override.
func (m *Manifest) ParamDefaults() map[string]interface{} {
	out := make(map[string]interface{}, len(m.Parameters))
	for _, p := range m.Parameters {
		out[p.Name] = p.Default
	}
	return out
}

// ValidateBindings checks that every bound parameter name is declared
// by the manifest and roughly matches its declared type. It does not
// enforce that every declared parameter is bound; unbound ones fall
// back to their default.
func (m *Manifest) ValidateBindings(bound map[string]interface{}) error {
	declared := make(map[string]Parameter, len(m.Parameters))
	for _, p := range m.Parameters {
		declared[p.Name] = p
	}
	for name, val := range bound {
		p, ok := declared[name]
		if !ok {
			return fmt.Errorf("%w: %s binds unknown parameter %q", ErrConfigInvalid, m.ScriptFile, name)
		}
		if err := checkType(p, val); err != nil {
			return fmt.Errorf("%w: %s.%s: %v", ErrConfigInvalid, m.ScriptFile, name, err)
		}
	}
	return nil
}

func checkType(p Parameter, val interface{}) error {
	switch p.Type {
	case ParamNumber:
		switch val.(type) {
		case int, int64, float64:
			return nil
		}
		return fmt.Errorf("expected number, got %T", val)
	case ParamBool:
		if _, ok := val.(bool); !ok {
			return fmt.Errorf("expected bool, got %T", val)
		}
	case ParamColor:
		switch val.(type) {
		case int, int64, uint32, string:
			return nil
		}
		return fmt.Errorf("expected color, got %T", val)
	case ParamString:
		if _, ok := val.(string); !ok {
			return fmt.Errorf("expected string, got %T", val)
		}
	}
	return nil
}
