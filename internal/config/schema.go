package config

// Config is the root configuration structure.
type Config struct {
	Spotify   SpotifyConfig   `toml:"spotify"`
	Server    ServerConfig    `toml:"server"`
	Store     StoreConfig     `toml:"store"`
	Broadcast BroadcastConfig `toml:"broadcast"`
	Sync      SyncConfig      `toml:"sync"`
	Log       LogConfig       `toml:"log"`
}

// SpotifyConfig holds Spotify API settings.
type SpotifyConfig struct {
	ClientID     string `toml:"client_id"`
	ClientSecret string `toml:"client_secret"`
	TokenURL     string `toml:"token_url"`
	APIBaseURL   string `toml:"api_base_url"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr            string `toml:"addr"`
	JWTSecret       string `toml:"jwt_secret"`
	ShutdownTimeout int    `toml:"shutdown_timeout"` // seconds
}

// StoreConfig selects the persistence backend.
type StoreConfig struct {
	Driver string `toml:"driver"`
	DSN    string `toml:"dsn"`
}

// BroadcastConfig selects the packet fan-out medium.
type BroadcastConfig struct {
	Driver string `toml:"driver"`
	URL    string `toml:"url"`
	Prefix string `toml:"prefix"`
}

// SyncConfig holds publisher settings.
type SyncConfig struct {
	PublishInterval int `toml:"publish_interval"` // milliseconds
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level      string            `toml:"level"`
	Format     string            `toml:"format"`
	File       string            `toml:"file"`
	Subsystems map[string]string `toml:"subsystems"`
}
