package store

import (
	"context"
	"fmt"
	"time"

	logging "github.com/ipfs/go-log/v2"

	"github.com/x5uw/SyncRoom/internal/core"
)

var log = logging.Logger("store")

// Store persists room liveness and principal credentials.
type Store interface {
	// GetRoom returns errors.ErrRoomNotFound for unknown ids.
	GetRoom(ctx context.Context, roomID string) (*core.Room, error)

	// InitRoom makes room.HostID the host, stores the host's provider
	// tokens and stamps LastActiveAt. A room held by another host is left
	// untouched and errors.ErrForbidden is returned.
	InitRoom(ctx context.Context, room core.Room) error

	// TouchRoom sets last_active_at iff hostID is still the room's host.
	// It returns errors.ErrForbidden when no row matched a known room.
	TouchRoom(ctx context.Context, roomID, hostID string, at time.Time) error

	// SaveCredentials upserts a principal's provider tokens.
	SaveCredentials(ctx context.Context, creds core.Credentials) error

	// GetCredentials returns errors.ErrNoCredentials when nothing is stored.
	GetCredentials(ctx context.Context, principalID string) (*core.Credentials, error)

	Close() error
}

// Open connects to the backend named by driver.
func Open(ctx context.Context, driver, dsn string) (Store, error) {
	switch driver {
	case "", "sqlite":
		return OpenSQLite(dsn, SQLiteOptions{})
	case "postgres":
		return OpenPostgres(ctx, dsn)
	default:
		return nil, fmt.Errorf("unknown store driver %q", driver)
	}
}
