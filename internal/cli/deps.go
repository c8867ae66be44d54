package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/x5uw/SyncRoom/internal/broadcast"
	"github.com/x5uw/SyncRoom/internal/roomsync"
	"github.com/x5uw/SyncRoom/internal/spotify/auth"
	"github.com/x5uw/SyncRoom/internal/spotify/client"
	"github.com/x5uw/SyncRoom/internal/spotify/player"
	"github.com/x5uw/SyncRoom/internal/store"
)

// runtimeDeps are the collaborators every room command shares.
type runtimeDeps struct {
	store   store.Store
	medium  broadcast.Medium
	broker  *auth.Broker
	client  *client.Client
	fetcher *player.Fetcher
	manager *roomsync.Manager
}

// openDeps connects the store and broadcast medium named in the config.
// onOutcome may be nil.
func openDeps(ctx context.Context, onOutcome func(roomID, principalID string, out roomsync.Outcome, err error)) (*runtimeDeps, error) {
	st, err := openStore(ctx)
	if err != nil {
		return nil, err
	}

	medium, err := openMedium(ctx, st)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	d := &runtimeDeps{
		store:  st,
		medium: medium,
		broker: auth.NewBroker(cfg.Spotify.ClientID, cfg.Spotify.ClientSecret, auth.WithTokenURL(cfg.Spotify.TokenURL)),
		client: client.New(client.WithBaseURL(cfg.Spotify.APIBaseURL)),
	}
	d.fetcher = player.NewFetcher(d.client)
	d.manager = roomsync.NewManager(roomsync.Config{
		Store:           st,
		Broker:          d.broker,
		Snapshots:       d.fetcher,
		Local:           d.fetcher,
		Forwarder:       player.NewForwarder(d.client),
		Medium:          medium,
		PublishInterval: cfg.Sync.Interval(),
		OnOutcome:       onOutcome,
	})
	return d, nil
}

func openStore(ctx context.Context) (store.Store, error) {
	if cfg.Store.Driver == "sqlite" && cfg.Store.DSN != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.Store.DSN), 0700); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}
	st, err := store.Open(ctx, cfg.Store.Driver, cfg.Store.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s store: %w", cfg.Store.Driver, err)
	}
	return st, nil
}

// openMedium shares the store's pool when both live in the same Postgres.
func openMedium(ctx context.Context, st store.Store) (broadcast.Medium, error) {
	if pg, ok := st.(*store.Postgres); ok && cfg.Broadcast.Driver == "postgres" && cfg.BroadcastURL() == cfg.Store.DSN {
		return broadcast.NewPostgres(ctx, pg.Pool())
	}
	medium, err := broadcast.Open(ctx, broadcast.Options{
		Driver: cfg.Broadcast.Driver,
		URL:    cfg.BroadcastURL(),
		Prefix: cfg.Broadcast.Prefix,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open %s broadcast: %w", cfg.Broadcast.Driver, err)
	}
	return medium, nil
}

// Close stops every loop and releases connections.
func (d *runtimeDeps) Close() {
	d.manager.Close()
	if err := d.medium.Close(); err != nil {
		log.Debugw("close broadcast", "err", err)
	}
	if err := d.store.Close(); err != nil {
		log.Debugw("close store", "err", err)
	}
}

// principalOrDefault falls back to the principal saved by "credentials set".
func principalOrDefault(principal string) (string, error) {
	if principal != "" {
		return principal, nil
	}
	file, err := auth.NewCredentialsFile("")
	if err != nil {
		return "", err
	}
	creds, err := file.Load()
	if err != nil {
		return "", err
	}
	if creds == nil || creds.PrincipalID == "" {
		return "", fmt.Errorf("no principal given; pass --principal or run 'syncroom credentials set'")
	}
	return creds.PrincipalID, nil
}
