package auth

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/x5uw/SyncRoom/internal/core"
)

func TestCredentialsFile(t *testing.T) {
	tmpDir := t.TempDir()
	credsPath := filepath.Join(tmpDir, "credentials.json")

	storage, err := NewCredentialsFile(credsPath)
	if err != nil {
		t.Fatalf("NewCredentialsFile() error = %v", err)
	}

	if storage.Exists() {
		t.Error("Exists() = true, want false for new storage")
	}

	creds, err := storage.Load()
	if err != nil {
		t.Errorf("Load() error = %v", err)
	}
	if creds != nil {
		t.Error("Load() should return nil for missing credentials")
	}

	want := &core.Credentials{
		PrincipalID:  "listener-1",
		AccessToken:  "access_123",
		RefreshToken: "refresh_456",
		UpdatedAt:    time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	if err := storage.Save(want); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	if !storage.Exists() {
		t.Error("Exists() = false after save, want true")
	}

	loaded, err := storage.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.PrincipalID != want.PrincipalID {
		t.Errorf("PrincipalID = %q, want %q", loaded.PrincipalID, want.PrincipalID)
	}
	if loaded.RefreshToken != want.RefreshToken {
		t.Errorf("RefreshToken = %q, want %q", loaded.RefreshToken, want.RefreshToken)
	}
	if !loaded.UpdatedAt.Equal(want.UpdatedAt) {
		t.Errorf("UpdatedAt = %v, want %v", loaded.UpdatedAt, want.UpdatedAt)
	}

	info, err := os.Stat(credsPath)
	if err != nil {
		t.Fatalf("Stat() error = %v", err)
	}
	if mode := info.Mode().Perm(); mode != 0600 {
		t.Errorf("File permissions = %o, want 0600", mode)
	}

	if err := storage.Delete(); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if storage.Exists() {
		t.Error("Exists() = true after delete, want false")
	}
}

func TestCredentialsFileNestedDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "credentials.json")

	storage, err := NewCredentialsFile(path)
	if err != nil {
		t.Fatalf("NewCredentialsFile() error = %v", err)
	}

	if err := storage.Save(&core.Credentials{RefreshToken: "rt"}); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if !storage.Exists() {
		t.Error("Credentials file not created in nested directory")
	}
}

func TestCredentialsFileCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.json")
	if err := os.WriteFile(path, []byte("{not json"), 0600); err != nil {
		t.Fatal(err)
	}

	storage, _ := NewCredentialsFile(path)
	if _, err := storage.Load(); err == nil {
		t.Error("Load() expected error for corrupt file")
	}
}

func TestCredentialsFileDeleteNonExistent(t *testing.T) {
	storage, err := NewCredentialsFile(filepath.Join(t.TempDir(), "nonexistent.json"))
	if err != nil {
		t.Fatalf("NewCredentialsFile() error = %v", err)
	}

	if err := storage.Delete(); err != nil {
		t.Errorf("Delete() on non-existent file error = %v", err)
	}
}

func TestCredentialsFilePath(t *testing.T) {
	path := "/custom/path/credentials.json"
	storage, err := NewCredentialsFile(path)
	if err != nil {
		t.Fatalf("NewCredentialsFile() error = %v", err)
	}

	if storage.Path() != path {
		t.Errorf("Path() = %q, want %q", storage.Path(), path)
	}
}
