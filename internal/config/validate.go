package config

import (
	"errors"
	"fmt"
	"net/url"

	serrors "github.com/x5uw/SyncRoom/internal/errors"
)

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if err := c.Spotify.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("spotify: %w", err))
	}
	if err := c.Server.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("server: %w", err))
	}
	if err := c.Store.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("store: %w", err))
	}
	if err := c.Broadcast.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("broadcast: %w", err))
	}
	if c.Broadcast.Driver == "postgres" && c.Broadcast.URL == "" && c.Store.Driver != "postgres" {
		errs = append(errs, errors.New("broadcast: url is required for the postgres driver unless the store is postgres"))
	}
	if err := c.Sync.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("sync: %w", err))
	}
	if err := c.Log.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("log: %w", err))
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("%w: %w", serrors.ErrInvalidConfig, err)
	}
	return nil
}

// Validate checks SpotifyConfig for errors.
func (c *SpotifyConfig) Validate() error {
	for name, raw := range map[string]string{"token_url": c.TokenURL, "api_base_url": c.APIBaseURL} {
		if raw == "" {
			continue
		}
		u, err := url.Parse(raw)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", name, err)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return fmt.Errorf("invalid %s: %s (must be http or https)", name, raw)
		}
	}
	if c.ClientSecret != "" && c.ClientID == "" {
		return errors.New("client_secret set without client_id")
	}
	return nil
}

// Validate checks ServerConfig for errors.
func (c *ServerConfig) Validate() error {
	if c.ShutdownTimeout < 0 {
		return errors.New("shutdown_timeout must be non-negative")
	}
	return nil
}

// Validate checks StoreConfig for errors.
func (c *StoreConfig) Validate() error {
	switch c.Driver {
	case "", "sqlite":
		// valid
	case "postgres":
		if c.DSN == "" {
			return errors.New("dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("invalid driver: %s (must be sqlite or postgres)", c.Driver)
	}
	return nil
}

// Validate checks BroadcastConfig for errors.
func (c *BroadcastConfig) Validate() error {
	switch c.Driver {
	case "", "memory", "postgres", "redis", "nats":
		// valid
	default:
		return fmt.Errorf("invalid driver: %s (must be memory, postgres, redis, or nats)", c.Driver)
	}
	return nil
}

// Validate checks SyncConfig for errors.
func (c *SyncConfig) Validate() error {
	if c.PublishInterval < 0 {
		return errors.New("publish_interval must be non-negative")
	}
	return nil
}

// Validate checks LogConfig for errors.
func (c *LogConfig) Validate() error {
	if err := validLevel(c.Level); err != nil {
		return err
	}
	switch c.Format {
	case "", "auto", "color", "text", "json":
		// valid
	default:
		return fmt.Errorf("invalid log format: %s (must be auto, color, text, or json)", c.Format)
	}
	for name, level := range c.Subsystems {
		if err := validLevel(level); err != nil {
			return fmt.Errorf("subsystem %s: %w", name, err)
		}
	}
	return nil
}

func validLevel(level string) error {
	switch level {
	case "", "debug", "info", "warn", "error":
		return nil
	default:
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", level)
	}
}
