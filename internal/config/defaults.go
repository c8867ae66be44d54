package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/x5uw/SyncRoom/internal/spotify/auth"
	"github.com/x5uw/SyncRoom/internal/spotify/client"
)

// Default returns a Config populated with sensible defaults.
func Default() *Config {
	return &Config{
		Spotify: SpotifyConfig{
			TokenURL:   auth.SpotifyTokenURL,
			APIBaseURL: client.BaseURL,
		},
		Server: ServerConfig{
			Addr:            "127.0.0.1:8080",
			ShutdownTimeout: 10,
		},
		Store: StoreConfig{
			Driver: "sqlite",
			DSN:    defaultSQLitePath(),
		},
		Broadcast: BroadcastConfig{
			Driver: "memory",
		},
		Sync: SyncConfig{
			PublishInterval: 1000,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "auto",
		},
	}
}

// ApplyDefaults fills in zero values with sensible defaults.
func (c *Config) ApplyDefaults() {
	d := Default()

	// Spotify
	if c.Spotify.TokenURL == "" {
		c.Spotify.TokenURL = d.Spotify.TokenURL
	}
	if c.Spotify.APIBaseURL == "" {
		c.Spotify.APIBaseURL = d.Spotify.APIBaseURL
	}

	// Server
	if c.Server.Addr == "" {
		c.Server.Addr = d.Server.Addr
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = d.Server.ShutdownTimeout
	}

	// Store
	if c.Store.Driver == "" {
		c.Store.Driver = d.Store.Driver
	}
	if c.Store.DSN == "" && c.Store.Driver == "sqlite" {
		c.Store.DSN = d.Store.DSN
	}

	// Broadcast
	if c.Broadcast.Driver == "" {
		c.Broadcast.Driver = d.Broadcast.Driver
	}

	// Sync
	if c.Sync.PublishInterval == 0 {
		c.Sync.PublishInterval = d.Sync.PublishInterval
	}

	// Log
	if c.Log.Level == "" {
		c.Log.Level = d.Log.Level
	}
	if c.Log.Format == "" {
		c.Log.Format = d.Log.Format
	}
}

// Interval returns the publish cadence as a duration.
func (c *SyncConfig) Interval() time.Duration {
	return time.Duration(c.PublishInterval) * time.Millisecond
}

// BroadcastURL returns the broadcast connection string. A postgres medium
// without its own url shares the store's database.
func (c *Config) BroadcastURL() string {
	if c.Broadcast.URL == "" && c.Broadcast.Driver == "postgres" && c.Store.Driver == "postgres" {
		return c.Store.DSN
	}
	return c.Broadcast.URL
}

// ShutdownGrace returns the shutdown timeout as a duration.
func (c *ServerConfig) ShutdownGrace() time.Duration {
	return time.Duration(c.ShutdownTimeout) * time.Second
}

func defaultSQLitePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "syncroom.db"
	}
	return filepath.Join(home, ".local", "share", "syncroom", "syncroom.db")
}
