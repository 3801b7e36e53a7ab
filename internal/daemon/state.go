// Package daemon tracks a background API server through a state file that
// records its process id and listen address.
package daemon

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// State describes a running server.
type State struct {
	PID       int       `yaml:"pid"`
	Addr      string    `yaml:"addr"`
	StartedAt time.Time `yaml:"started_at"`
}

// StateFile manages the state file of one server.
type StateFile struct {
	Path string
}

// NewStateFile creates a StateFile manager for the given path.
func NewStateFile(path string) *StateFile {
	return &StateFile{Path: path}
}

// Write records the current process as serving on addr.
func (f *StateFile) Write(addr string) error {
	return f.Save(State{PID: os.Getpid(), Addr: addr, StartedAt: time.Now().UTC().Truncate(time.Second)})
}

// Save writes st to the file, creating its directory if needed.
func (f *StateFile) Save(st State) error {
	if err := os.MkdirAll(filepath.Dir(f.Path), 0o755); err != nil {
		return fmt.Errorf("create state directory: %w", err)
	}
	data, err := yaml.Marshal(st)
	if err != nil {
		return fmt.Errorf("encode server state: %w", err)
	}
	return os.WriteFile(f.Path, data, 0o644)
}

// Load reads the recorded state.
func (f *StateFile) Load() (*State, error) {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return nil, err
	}
	var st State
	if err := yaml.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("invalid state file content: %w", err)
	}
	if st.PID <= 0 {
		return nil, fmt.Errorf("invalid state file content: missing pid")
	}
	return &st, nil
}

// Remove deletes the state file.
func (f *StateFile) Remove() error {
	return os.Remove(f.Path)
}
