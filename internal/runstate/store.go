// Package runstate records the running daemon on disk so that other
// invocations of the CLI can find its control address.
package runstate

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"
)

// ErrNotRunning is returned by Load when no daemon record exists.
var ErrNotRunning = errors.New("motionwatch is not running")

// State describes one running daemon.
type State struct {
	ID          string    `json:"id"`
	PID         int       `json:"pid"`
	StartTime   time.Time `json:"start_time"`
	ControlAddr string    `json:"control_addr"`
	Source      string    `json:"source"`
}

// Alive reports whether the recorded process still exists.
func (s *State) Alive() bool {
	if s.PID <= 0 {
		return false
	}
	p, err := os.FindProcess(s.PID)
	if err != nil {
		return false
	}
	return p.Signal(syscall.Signal(0)) == nil
}

// Store persists the daemon record.
type Store interface {
	Save(s *State) error
	Load() (*State, error) // returns ErrNotRunning if none exists
	Delete() error
}

type diskStore struct {
	path string // full path to daemon.json
}

// NewStore returns a Store backed by the XDG state directory:
// $XDG_STATE_HOME/motionwatch/daemon.json or ~/.local/state/motionwatch/daemon.json.
func NewStore() (Store, error) {
	dir, err := stateDir()
	if err != nil {
		return nil, fmt.Errorf("resolving state directory: %w", err)
	}
	return NewStoreAt(filepath.Join(dir, "daemon.json"))
}

// NewStoreAt returns a Store writing to path, creating its directory.
func NewStoreAt(path string) (Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating state directory: %w", err)
	}
	return &diskStore{path: path}, nil
}

func stateDir() (string, error) {
	base := os.Getenv("XDG_STATE_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, ".local", "state")
	}
	return filepath.Join(base, "motionwatch"), nil
}

// Save writes s atomically via a temp file and rename.
func (d *diskStore) Save(s *State) (err error) {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to persist run state: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(d.path), "daemon-*.json.tmp")
	if err != nil {
		return fmt.Errorf("failed to persist run state: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			os.Remove(tmpName)
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to persist run state: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("failed to persist run state: %w", err)
	}
	if err = os.Rename(tmpName, d.path); err != nil {
		return fmt.Errorf("failed to persist run state: %w", err)
	}
	return nil
}

func (d *diskStore) Load() (*State, error) {
	data, err := os.ReadFile(d.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotRunning
		}
		return nil, fmt.Errorf("failed to read run state: %w", err)
	}

	var s State
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse run state %s: %w", d.path, err)
	}
	return &s, nil
}

func (d *diskStore) Delete() error {
	if err := os.Remove(d.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete run state: %w", err)
	}
	return nil
}
