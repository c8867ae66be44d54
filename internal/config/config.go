package config

import (
	"os"
	"path/filepath"
	"strconv"

	"github.com/BurntSushi/toml"
)

// Load reads configuration from standard locations with environment overrides.
// Search order: ~/.syncroomrc, $XDG_CONFIG_HOME/syncroom/config.toml, ~/.config/syncroom/config.toml
func Load() (*Config, error) {
	cfg := &Config{}

	// Try loading from file
	path := findConfigFile()
	if path != "" {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, err
		}
	}

	// Apply defaults, then environment variable overrides
	cfg.ApplyDefaults()
	applyEnvOverrides(cfg)

	return cfg, nil
}

// LoadFrom reads configuration from a specific file path.
func LoadFrom(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	cfg.ApplyDefaults()
	applyEnvOverrides(cfg)
	return cfg, nil
}

// findConfigFile returns the first existing config file path.
func findConfigFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	paths := []string{
		filepath.Join(home, ".syncroomrc"),
	}

	// XDG_CONFIG_HOME or default
	xdgConfig := os.Getenv("XDG_CONFIG_HOME")
	if xdgConfig == "" {
		xdgConfig = filepath.Join(home, ".config")
	}
	paths = append(paths, filepath.Join(xdgConfig, "syncroom", "config.toml"))

	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}

	return ""
}

// applyEnvOverrides applies environment variable overrides to the config.
func applyEnvOverrides(cfg *Config) {
	// Spotify
	if v := os.Getenv("SYNCROOM_SPOTIFY_CLIENT_ID"); v != "" {
		cfg.Spotify.ClientID = v
	}
	if v := os.Getenv("SYNCROOM_SPOTIFY_CLIENT_SECRET"); v != "" {
		cfg.Spotify.ClientSecret = v
	}
	if v := os.Getenv("SYNCROOM_SPOTIFY_TOKEN_URL"); v != "" {
		cfg.Spotify.TokenURL = v
	}
	if v := os.Getenv("SYNCROOM_SPOTIFY_API_BASE_URL"); v != "" {
		cfg.Spotify.APIBaseURL = v
	}

	// Server
	if v := os.Getenv("SYNCROOM_SERVER_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("SYNCROOM_SERVER_JWT_SECRET"); v != "" {
		cfg.Server.JWTSecret = v
	}
	if v := os.Getenv("SYNCROOM_SERVER_SHUTDOWN_TIMEOUT"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			cfg.Server.ShutdownTimeout = i
		}
	}

	// Store
	if v := os.Getenv("SYNCROOM_STORE_DRIVER"); v != "" {
		cfg.Store.Driver = v
	}
	if v := os.Getenv("SYNCROOM_STORE_DSN"); v != "" {
		cfg.Store.DSN = v
	}

	// Broadcast
	if v := os.Getenv("SYNCROOM_BROADCAST_DRIVER"); v != "" {
		cfg.Broadcast.Driver = v
	}
	if v := os.Getenv("SYNCROOM_BROADCAST_URL"); v != "" {
		cfg.Broadcast.URL = v
	}
	if v := os.Getenv("SYNCROOM_BROADCAST_PREFIX"); v != "" {
		cfg.Broadcast.Prefix = v
	}

	// Sync
	if v := os.Getenv("SYNCROOM_SYNC_PUBLISH_INTERVAL"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			cfg.Sync.PublishInterval = i
		}
	}

	// Log
	if v := os.Getenv("SYNCROOM_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("SYNCROOM_LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	if v := os.Getenv("SYNCROOM_LOG_FILE"); v != "" {
		cfg.Log.File = v
	}
}
