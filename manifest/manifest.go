// Package manifest handles minigc.toml configuration.
package manifest

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/chazu/minigc/vm"
)

// FileName is the manifest file looked up by Load and FindAndLoad.
const FileName = "minigc.toml"

// Manifest represents a minigc.toml configuration.
type Manifest struct {
	VM      VMConfig      `toml:"vm"`
	Log     LogConfig     `toml:"log"`
	History HistoryConfig `toml:"history"`

	// Dir is the directory containing the minigc.toml file (set at load time).
	Dir string `toml:"-"`
}

// VMConfig configures the operand stack and collector.
type VMConfig struct {
	StackCapacity    int `toml:"stack-capacity"`
	InitialThreshold int `toml:"initial-threshold"`
}

// LogConfig configures commonlog output.
type LogConfig struct {
	Verbosity int    `toml:"verbosity"`
	File      string `toml:"file"`
}

// HistoryConfig configures the collection history database.
type HistoryConfig struct {
	Path string `toml:"path"`
}

// Default returns a manifest with the stock VM settings.
func Default() *Manifest {
	return &Manifest{
		VM: VMConfig{
			StackCapacity:    vm.DefaultStackCapacity,
			InitialThreshold: vm.DefaultInitialThreshold,
		},
	}
}

// Load parses a minigc.toml file from the given directory. Keys missing
// from the file keep their Default values.
func Load(dir string) (*Manifest, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	m := Default()
	if err := toml.Unmarshal(data, m); err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}

	m.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}

	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

// FindAndLoad walks up from startDir to find a minigc.toml file,
// then loads and returns the manifest. Returns nil if no manifest is found.
func FindAndLoad(startDir string) (*Manifest, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return Load(dir)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root
			return nil, nil
		}
		dir = parent
	}
}

// Write stores m as minigc.toml in dir.
func Write(dir string, m *Manifest) error {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(m); err != nil {
		return fmt.Errorf("cannot encode manifest: %w", err)
	}
	path := filepath.Join(dir, FileName)
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("cannot write %s: %w", path, err)
	}
	return nil
}

// Validate checks the VM settings.
func (m *Manifest) Validate() error {
	if m.VM.StackCapacity <= 0 {
		return fmt.Errorf("vm.stack-capacity must be positive, got %d", m.VM.StackCapacity)
	}
	if m.VM.InitialThreshold < 0 {
		return fmt.Errorf("vm.initial-threshold must not be negative, got %d", m.VM.InitialThreshold)
	}
	return nil
}

// VMConfig returns the constructor parameters for a VM.
func (m *Manifest) VMConfig() vm.Config {
	return vm.Config{
		StackCapacity:    m.VM.StackCapacity,
		InitialThreshold: m.VM.InitialThreshold,
	}
}

// HistoryPath returns the history database path, resolved against the
// manifest directory. Empty means history is disabled.
func (m *Manifest) HistoryPath() string {
	return m.resolve(m.History.Path)
}

// LogPath returns the log file path, or nil to log to stderr.
func (m *Manifest) LogPath() *string {
	if m.Log.File == "" {
		return nil
	}
	p := m.resolve(m.Log.File)
	return &p
}

func (m *Manifest) resolve(p string) string {
	if p == "" || filepath.IsAbs(p) || m.Dir == "" {
		return p
	}
	return filepath.Join(m.Dir, p)
}
