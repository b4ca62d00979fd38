// Package creds persists the identity this bridge presents to the relay.
// Platform keychain integration lives outside this repo; the engine only
// needs something that can produce a token and a stable device id.
package creds

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// Credentials is what the relay needs to accept a connection.
type Credentials struct {
	DeviceID   string `json:"device_id"`
	DeviceName string `json:"device_name"`
	Token      string `json:"token"`
	RelayURL   string `json:"relay_url,omitempty"`
}

// Store supplies and persists credentials.
type Store interface {
	Load() (Credentials, error)
	Save(Credentials) error
}

// FileStore keeps credentials as a JSON file. Load generates and persists a
// fresh device id on first run so the relay sees a stable identity.
type FileStore struct {
	path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// DefaultPath returns the standard credentials location under the user's
// config directory.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("resolve config dir: %w", err)
	}
	return filepath.Join(dir, "hubcast", "credentials.json"), nil
}

func (s *FileStore) Load() (Credentials, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		c := Credentials{DeviceID: uuid.NewString()}
		if hostname, herr := os.Hostname(); herr == nil {
			c.DeviceName = hostname
		}
		if err := s.Save(c); err != nil {
			return Credentials{}, err
		}
		return c, nil
	}
	if err != nil {
		return Credentials{}, fmt.Errorf("read credentials: %w", err)
	}

	var c Credentials
	if err := json.Unmarshal(data, &c); err != nil {
		return Credentials{}, fmt.Errorf("parse credentials %s: %w", s.path, err)
	}
	if c.DeviceID == "" {
		c.DeviceID = uuid.NewString()
		if err := s.Save(c); err != nil {
			return Credentials{}, err
		}
	}
	return c, nil
}

func (s *FileStore) Save(c Credentials) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("create credentials dir: %w", err)
	}
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	// Tokens live in here, keep the file private.
	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return fmt.Errorf("write credentials: %w", err)
	}
	return nil
}
