package session

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Persister saves and restores a session between runs.
type Persister interface {
	// Load returns nil, nil when nothing is saved.
	Load() (*Snapshot, error)
	Save(snap *Snapshot) error
	Clear() error
}

// NopPersister keeps nothing.
type NopPersister struct{}

func (NopPersister) Load() (*Snapshot, error) { return nil, nil }
func (NopPersister) Save(*Snapshot) error     { return nil }
func (NopPersister) Clear() error             { return nil }

// FilePersister stores the session as YAML in a file readable only by its owner.
type FilePersister struct {
	Path string
}

// NewFilePersister creates a persister for path.
func NewFilePersister(path string) *FilePersister {
	return &FilePersister{Path: path}
}

// DefaultSessionPath is ~/.config/dirctl/session.yaml.
func DefaultSessionPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "dirctl", "session.yaml"), nil
}

func (p *FilePersister) Load() (*Snapshot, error) {
	data, err := os.ReadFile(p.Path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read session: %w", err)
	}

	var snap Snapshot
	if err := yaml.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("parse session %s: %w", p.Path, err)
	}
	if snap.Identity.ID == "" || snap.Tokens.AccessToken == "" {
		return nil, nil
	}
	return &snap, nil
}

func (p *FilePersister) Save(snap *Snapshot) error {
	if err := os.MkdirAll(filepath.Dir(p.Path), 0o700); err != nil {
		return fmt.Errorf("create session dir: %w", err)
	}
	data, err := yaml.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}

	tmp := p.Path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write session: %w", err)
	}
	return os.Rename(tmp, p.Path)
}

func (p *FilePersister) Clear() error {
	if err := os.Remove(p.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove session: %w", err)
	}
	return nil
}
