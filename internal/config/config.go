// Package config loads the daemon's process-level configuration: which
// devices to open, where the profile descriptor lives, and the IPC
// listen address. This is distinct from a profile descriptor, which
// internal/profile owns.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// DeviceConfig names one device to open at startup and which transport
// adapter to use for it.
type DeviceConfig struct {
	ID        string `yaml:"id"`
	Transport string `yaml:"transport"` // "hidreport" | "usbraw" | "nrzled" | "sim"
	VendorID  uint16 `yaml:"vendor_id"`
	ProductID uint16 `yaml:"product_id"`
	Path      string `yaml:"path,omitempty"`
	SPIBus    string `yaml:"spi_bus,omitempty"`
	NumPixels int    `yaml:"num_pixels,omitempty"`
	Cols      int    `yaml:"cols,omitempty"`
	Rows      int    `yaml:"rows,omitempty"`
}

// Config is the top-level daemon configuration document.
type Config struct {
	ProfilePath string         `yaml:"profile_path"`
	Devices     []DeviceConfig `yaml:"devices"`
	ListenAddr  string         `yaml:"listen_addr"`
	LogLevel    string         `yaml:"log_level"`
}

// Load reads and parses a Config from path.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	if c.ListenAddr == "" {
		c.ListenAddr = "127.0.0.1:8787"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	return &c, nil
}

// Save writes c to path as YAML.
func Save(path string, c *Config) error {
	b, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("config: marshaling: %w", err)
	}
	return os.WriteFile(path, b, 0644)
}
