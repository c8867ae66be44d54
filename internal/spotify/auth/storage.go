package auth

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/x5uw/SyncRoom/internal/core"
)

const (
	// DefaultCredentialsFileName is the default name for the credentials file.
	DefaultCredentialsFileName = "credentials.json"
)

// CredentialsFile persists one principal's provider tokens on disk for CLI use.
type CredentialsFile struct {
	path string
}

// NewCredentialsFile creates credentials storage at the specified path.
// If path is empty, uses the default location (~/.config/syncroom/credentials.json).
func NewCredentialsFile(path string) (*CredentialsFile, error) {
	if path == "" {
		configDir, err := os.UserConfigDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get config directory: %w", err)
		}
		path = filepath.Join(configDir, "syncroom", DefaultCredentialsFileName)
	}

	return &CredentialsFile{path: path}, nil
}

// Save persists credentials to disk.
func (s *CredentialsFile) Save(creds *core.Credentials) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(creds, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal credentials: %w", err)
	}

	// Owner only
	if err := os.WriteFile(s.path, data, 0600); err != nil {
		return fmt.Errorf("failed to write credentials file: %w", err)
	}

	return nil
}

// Load reads credentials from disk. It returns nil, nil when none are stored.
func (s *CredentialsFile) Load() (*core.Credentials, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read credentials file: %w", err)
	}

	var creds core.Credentials
	if err := json.Unmarshal(data, &creds); err != nil {
		return nil, fmt.Errorf("failed to parse credentials file: %w", err)
	}

	return &creds, nil
}

// Delete removes the stored credentials.
func (s *CredentialsFile) Delete() error {
	err := os.Remove(s.path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete credentials file: %w", err)
	}
	return nil
}

// Exists returns true if a credentials file exists.
func (s *CredentialsFile) Exists() bool {
	_, err := os.Stat(s.path)
	return err == nil
}

// Path returns the path to the credentials file.
func (s *CredentialsFile) Path() string {
	return s.path
}
