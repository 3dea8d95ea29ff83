package config

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/mitchellh/go-homedir"

	"hvmidi/heavy"
)

// EngineType selects the engine implementation
type EngineType string

const (
	EngineWasm     EngineType = "wasm"
	EngineLoopback EngineType = "loopback"

	// EngineRecorder accepts everything and renders silence, for checking
	// ports and translation without a patch.
	EngineRecorder EngineType = "recorder"
)

// MidiConfig selects MIDI ports
type MidiConfig struct {
	// Inputs are case-insensitive substrings of port names. Empty
	// means every input.
	Inputs      []string `json:"inputs,omitempty"`
	Output      string   `json:"output,omitempty"`
	AutoConnect bool     `json:"autoConnect"`
}

// EngineConfig describes the patch to load
type EngineConfig struct {
	Type       EngineType `json:"type"`
	Module     string     `json:"module,omitempty"` // path to the .wasm build
	Patch      string     `json:"patch,omitempty"`  // name used in hv_<patch>_new
	SampleRate float64    `json:"sampleRate,omitempty"`
	BlockSize  int        `json:"blockSize,omitempty"`

	PoolKB        int `json:"poolKb,omitempty"`
	InputQueueKB  int `json:"inputQueueKb,omitempty"`
	OutputQueueKB int `json:"outputQueueKb,omitempty"`
}

// PatchConfig lists the receivers the patch exposes. Hashes are optional;
// missing ones are computed from the name.
type PatchConfig struct {
	Parameters map[string]uint32 `json:"parameters,omitempty"`
	Events     map[string]uint32 `json:"events,omitempty"`
	Tables     map[string]uint32 `json:"tables,omitempty"`
}

// UIConfig stores UI preferences
type UIConfig struct {
	Palette string `json:"palette,omitempty"` // GIMP .gpl file, built-in palette if empty
	LogSize int    `json:"logSize,omitempty"`
}

// Config is the main configuration structure
type Config struct {
	Midi   MidiConfig   `json:"midi"`
	Engine EngineConfig `json:"engine"`
	Patch  PatchConfig  `json:"patch,omitempty"`
	UI     UIConfig     `json:"ui,omitempty"`
	Debug  bool         `json:"debug,omitempty"`
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Midi: MidiConfig{
			AutoConnect: true,
		},
		Engine: EngineConfig{
			Type:       EngineLoopback,
			SampleRate: 48000,
			BlockSize:  128,
		},
		UI: UIConfig{
			LogSize: 200,
		},
	}
}

// ConfigDir returns the config directory path
func ConfigDir() (string, error) {
	home, err := homedir.Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "hvmidi"), nil
}

// ConfigPath returns the full path to config.json
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// Load reads the config from disk, or returns defaults if not found
func Load() (*Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return DefaultConfig(), nil
	}
	return LoadFile(path)
}

// LoadFile reads the config at path, or returns defaults if it doesn't exist.
// Unset fields keep their defaults.
func LoadFile(path string) (*Config, error) {
	p, err := homedir.Expand(path)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(p)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return nil, err
	}

	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the config to disk
func (c *Config) Save() error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	return c.SaveFile(path)
}

// SaveFile writes the config to path, creating its directory.
func (c *Config) SaveFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// ParameterTable returns the parameter receiver table
func (p PatchConfig) ParameterTable() heavy.Table { return table(p.Parameters) }

// EventTable returns the event receiver table
func (p PatchConfig) EventTable() heavy.Table { return table(p.Events) }

// TableNames returns the table receiver table
func (p PatchConfig) TableNames() heavy.Table { return table(p.Tables) }

func table(m map[string]uint32) heavy.Table {
	pairs := make(map[string]uint32, len(m))
	for name, hash := range m {
		if hash == 0 {
			hash = heavy.StringToHash(name)
		}
		pairs[name] = hash
	}
	return heavy.NewTableFromHashes(pairs)
}

// Names returns every declared receiver name and its hash, for resolving
// hashes back to names.
func (p PatchConfig) Names() heavy.Table {
	pairs := make(map[string]uint32)
	for _, m := range []map[string]uint32{p.Parameters, p.Events, p.Tables} {
		for name, hash := range m {
			if hash == 0 {
				hash = heavy.StringToHash(name)
			}
			pairs[name] = hash
		}
	}
	return heavy.NewTableFromHashes(pairs)
}
