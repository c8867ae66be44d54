package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/x5uw/SyncRoom/internal/core"
	serrors "github.com/x5uw/SyncRoom/internal/errors"
)

// SQLite is a Store backed by a local SQLite database.
type SQLite struct {
	db *sql.DB
}

type SQLiteOptions struct {
	BusyTimeout time.Duration
}

// OpenSQLite opens (and creates if needed) the database at path.
func OpenSQLite(path string, options SQLiteOptions) (*SQLite, error) {
	if path == "" {
		path = ":memory:"
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	// Each connection to :memory: is its own database.
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	} else if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, err
	}

	busyTimeout := options.BusyTimeout
	if busyTimeout == 0 {
		busyTimeout = 5 * time.Second
	}
	if _, err := db.Exec(fmt.Sprintf("PRAGMA busy_timeout=%d", int(busyTimeout/time.Millisecond))); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLite{db: db}
	if err := s.EnsureSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	log.Debugw("sqlite store opened", "path", path)
	return s, nil
}

// EnsureSchema creates the tables if they do not exist.
func (s *SQLite) EnsureSchema() error {
	for _, stmt := range []string{schemaRoomsSQLite, schemaCredentialsSQLite} {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

func (s *SQLite) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLite) GetRoom(ctx context.Context, roomID string) (*core.Room, error) {
	var (
		room     core.Room
		activeMS int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, host_id, provider_token, provider_refresh_token, last_active_at
		FROM rooms
		WHERE id = ?`, roomID).
		Scan(&room.ID, &room.HostID, &room.ProviderToken, &room.ProviderRefreshToken, &activeMS)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, serrors.ErrRoomNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get room %s: %w", roomID, err)
	}
	room.LastActiveAt = time.UnixMilli(activeMS).UTC()
	return &room, nil
}

func (s *SQLite) InitRoom(ctx context.Context, room core.Room) error {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO rooms (id, host_id, provider_token, provider_refresh_token, last_active_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			host_id = excluded.host_id,
			provider_token = excluded.provider_token,
			provider_refresh_token = excluded.provider_refresh_token,
			last_active_at = excluded.last_active_at
		WHERE rooms.host_id = excluded.host_id OR rooms.host_id = ''`,
		room.ID, room.HostID, room.ProviderToken, room.ProviderRefreshToken, room.LastActiveAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("init room %s: %w", room.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("init room %s: %w", room.ID, err)
	}
	if n == 0 {
		return serrors.ErrForbidden
	}
	return nil
}

func (s *SQLite) TouchRoom(ctx context.Context, roomID, hostID string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE rooms SET last_active_at = ?
		WHERE id = ? AND host_id = ? AND host_id <> ''`,
		at.UnixMilli(), roomID, hostID)
	if err != nil {
		return fmt.Errorf("touch room %s: %w", roomID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("touch room %s: %w", roomID, err)
	}
	if n == 0 {
		return s.missOrForbidden(ctx, roomID)
	}
	return nil
}

func (s *SQLite) missOrForbidden(ctx context.Context, roomID string) error {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM rooms WHERE id = ?`, roomID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return serrors.ErrRoomNotFound
	}
	if err != nil {
		return fmt.Errorf("lookup room %s: %w", roomID, err)
	}
	return serrors.ErrForbidden
}

func (s *SQLite) SaveCredentials(ctx context.Context, creds core.Credentials) error {
	if creds.UpdatedAt.IsZero() {
		creds.UpdatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO credentials (principal_id, access_token, refresh_token, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(principal_id) DO UPDATE SET
			access_token = excluded.access_token,
			refresh_token = excluded.refresh_token,
			updated_at = excluded.updated_at`,
		creds.PrincipalID, creds.AccessToken, creds.RefreshToken, creds.UpdatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("save credentials for %s: %w", creds.PrincipalID, err)
	}
	return nil
}

func (s *SQLite) GetCredentials(ctx context.Context, principalID string) (*core.Credentials, error) {
	var (
		creds     core.Credentials
		updatedMS int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT principal_id, access_token, refresh_token, updated_at
		FROM credentials
		WHERE principal_id = ?`, principalID).
		Scan(&creds.PrincipalID, &creds.AccessToken, &creds.RefreshToken, &updatedMS)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, serrors.ErrNoCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("get credentials for %s: %w", principalID, err)
	}
	if creds.RefreshToken == "" {
		return nil, serrors.ErrNoCredentials
	}
	creds.UpdatedAt = time.UnixMilli(updatedMS).UTC()
	return &creds, nil
}

var _ Store = (*SQLite)(nil)
