// Package config persists the user's last metronome settings between
// runs. The engine itself never reads this; main loads it, feeds the
// engine, and saves on exit.
package config

import (
	"encoding/json"
	"os"
	"path/filepath"
)

// TempoConfig mirrors the engine's tempo spec in a serializable form.
type TempoConfig struct {
	BPM         float64 `json:"bpm"`
	BeatsPerBar int     `json:"beatsPerBar"`
	Subdivision int     `json:"subdivision"`
	Accents     []bool  `json:"accents,omitempty"`
}

// Config is the main configuration structure.
type Config struct {
	Tempo      TempoConfig `json:"tempo"`
	OutputName string      `json:"outputDevice,omitempty"` // preferred audio output
	MIDIPort   string      `json:"midiPort,omitempty"`
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Tempo: TempoConfig{
			BPM:         120,
			BeatsPerBar: 4,
			Subdivision: 1,
			Accents:     []bool{true, false, false, false},
		},
	}
}

// ConfigDir returns the config directory path.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "clave"), nil
}

// ConfigPath returns the full path to config.json.
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// Load reads the config from disk, or returns defaults if not found.
func Load() (*Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return DefaultConfig(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return nil, err
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Save writes the config to disk.
func (c *Config) Save() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	path, err := ConfigPath()
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
