package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/x5uw/SyncRoom/internal/core"
	serrors "github.com/x5uw/SyncRoom/internal/errors"
)

// Postgres is a Store backed by a PostgreSQL pool. The rooms table is
// compatible with a Supabase project's rooms table.
type Postgres struct {
	pool *pgxpool.Pool
}

// OpenPostgres connects to dsn, verifies the connection and ensures the schema.
func OpenPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := NewPostgres(pool)
	if err := s.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	log.Debug("postgres store connected")
	return s, nil
}

// NewPostgres wraps an existing pool.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// Pool exposes the underlying pool so the broadcast log can share it.
func (s *Postgres) Pool() *pgxpool.Pool {
	return s.pool
}

// EnsureSchema creates the tables if they do not exist.
func (s *Postgres) EnsureSchema(ctx context.Context) error {
	for _, stmt := range []string{schemaRoomsPostgres, schemaCredentialsPostgres} {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

func (s *Postgres) Close() error {
	s.pool.Close()
	return nil
}

func (s *Postgres) GetRoom(ctx context.Context, roomID string) (*core.Room, error) {
	var room core.Room
	err := s.pool.QueryRow(ctx, `
		SELECT id, host_id, provider_token, provider_refresh_token, last_active_at
		FROM rooms
		WHERE id = $1`, roomID).
		Scan(&room.ID, &room.HostID, &room.ProviderToken, &room.ProviderRefreshToken, &room.LastActiveAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, serrors.ErrRoomNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get room %s: %w", roomID, err)
	}
	return &room, nil
}

func (s *Postgres) InitRoom(ctx context.Context, room core.Room) error {
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO rooms (id, host_id, provider_token, provider_refresh_token, last_active_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			host_id = EXCLUDED.host_id,
			provider_token = EXCLUDED.provider_token,
			provider_refresh_token = EXCLUDED.provider_refresh_token,
			last_active_at = EXCLUDED.last_active_at
		WHERE rooms.host_id = EXCLUDED.host_id OR rooms.host_id = ''`,
		room.ID, room.HostID, room.ProviderToken, room.ProviderRefreshToken, room.LastActiveAt)
	if err != nil {
		return fmt.Errorf("init room %s: %w", room.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return serrors.ErrForbidden
	}
	return nil
}

func (s *Postgres) TouchRoom(ctx context.Context, roomID, hostID string, at time.Time) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE rooms SET last_active_at = $1
		WHERE id = $2 AND host_id = $3 AND host_id <> ''`,
		at, roomID, hostID)
	if err != nil {
		return fmt.Errorf("touch room %s: %w", roomID, err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	var exists bool
	if err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM rooms WHERE id = $1)`, roomID).Scan(&exists); err != nil {
		return fmt.Errorf("lookup room %s: %w", roomID, err)
	}
	if !exists {
		return serrors.ErrRoomNotFound
	}
	return serrors.ErrForbidden
}

func (s *Postgres) SaveCredentials(ctx context.Context, creds core.Credentials) error {
	if creds.UpdatedAt.IsZero() {
		creds.UpdatedAt = time.Now()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO credentials (principal_id, access_token, refresh_token, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (principal_id) DO UPDATE SET
			access_token = EXCLUDED.access_token,
			refresh_token = EXCLUDED.refresh_token,
			updated_at = EXCLUDED.updated_at`,
		creds.PrincipalID, creds.AccessToken, creds.RefreshToken, creds.UpdatedAt)
	if err != nil {
		return fmt.Errorf("save credentials for %s: %w", creds.PrincipalID, err)
	}
	return nil
}

func (s *Postgres) GetCredentials(ctx context.Context, principalID string) (*core.Credentials, error) {
	var creds core.Credentials
	err := s.pool.QueryRow(ctx, `
		SELECT principal_id, access_token, refresh_token, updated_at
		FROM credentials
		WHERE principal_id = $1`, principalID).
		Scan(&creds.PrincipalID, &creds.AccessToken, &creds.RefreshToken, &creds.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, serrors.ErrNoCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("get credentials for %s: %w", principalID, err)
	}
	if creds.RefreshToken == "" {
		return nil, serrors.ErrNoCredentials
	}
	return &creds, nil
}

var _ Store = (*Postgres)(nil)
