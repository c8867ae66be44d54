package broadcast

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/x5uw/SyncRoom/internal/core"
)

// notifyChannel is the single LISTEN/NOTIFY channel shared by all rooms.
const notifyChannel = "rooms_sync"

const schemaRoomsSync = `
CREATE TABLE IF NOT EXISTS rooms_sync (
	id BIGSERIAL PRIMARY KEY,
	room_id TEXT NOT NULL,
	payload JSONB NOT NULL,
	inserted_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_rooms_sync_room ON rooms_sync(room_id, id DESC);`

// envelope is the NOTIFY payload.
type envelope struct {
	RoomID string          `json:"room_id"`
	ID     int64           `json:"id"`
	Packet json.RawMessage `json:"payload"`
}

// Postgres appends every packet to the rooms_sync log and announces it with
// NOTIFY. One dedicated connection LISTENs and fans out through a local Hub.
type Postgres struct {
	pool    *pgxpool.Pool
	ownPool bool
	local   *Hub

	mu        sync.Mutex
	started   bool
	cancel    context.CancelFunc
	done      chan struct{}
	ready     chan struct{}
	readyOnce sync.Once
}

// OpenPostgres connects to dsn and ensures the rooms_sync table exists.
func OpenPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	p, err := NewPostgres(ctx, pool)
	if err != nil {
		pool.Close()
		return nil, err
	}
	p.ownPool = true
	return p, nil
}

// NewPostgres uses an existing pool, for instance the store's.
func NewPostgres(ctx context.Context, pool *pgxpool.Pool) (*Postgres, error) {
	if _, err := pool.Exec(ctx, schemaRoomsSync); err != nil {
		return nil, fmt.Errorf("ensure rooms_sync schema: %w", err)
	}
	return &Postgres{pool: pool, local: NewHub(), ready: make(chan struct{})}, nil
}

// Publish appends p to the log and notifies listeners when the insert commits.
func (m *Postgres) Publish(ctx context.Context, roomID string, p core.Packet) error {
	data, err := Encode(p)
	if err != nil {
		return err
	}

	tx, err := m.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin publish: %w", err)
	}
	defer tx.Rollback(ctx)

	var id int64
	if err := tx.QueryRow(ctx,
		`INSERT INTO rooms_sync (room_id, payload) VALUES ($1, $2) RETURNING id`,
		roomID, data).Scan(&id); err != nil {
		return fmt.Errorf("append packet: %w", err)
	}

	note, err := json.Marshal(envelope{RoomID: roomID, ID: id, Packet: data})
	if err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `SELECT pg_notify($1, $2)`, notifyChannel, string(note)); err != nil {
		return fmt.Errorf("notify: %w", err)
	}
	return tx.Commit(ctx)
}

// Subscribe registers h and starts the shared listener on first use. It
// returns once the listener is receiving notifications.
func (m *Postgres) Subscribe(ctx context.Context, roomID string, h Handler) (Unsubscribe, error) {
	if err := m.ensureListening(); err != nil {
		return nil, err
	}
	select {
	case <-m.ready:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return m.local.Subscribe(ctx, roomID, h)
}

// Latest returns the most recent packet logged for roomID, or nil.
func (m *Postgres) Latest(ctx context.Context, roomID string) (*core.Packet, error) {
	var data []byte
	err := m.pool.QueryRow(ctx,
		`SELECT payload FROM rooms_sync WHERE room_id = $1 ORDER BY id DESC LIMIT 1`,
		roomID).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest packet for %s: %w", roomID, err)
	}
	p, err := Decode(data)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// Prune deletes log entries older than before.
func (m *Postgres) Prune(ctx context.Context, before time.Time) (int64, error) {
	tag, err := m.pool.Exec(ctx, `DELETE FROM rooms_sync WHERE inserted_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("prune rooms_sync: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (m *Postgres) ensureListening() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.started {
		return nil
	}
	if m.done != nil {
		return ErrClosed
	}

	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.done = make(chan struct{})
	m.started = true
	go m.listen(ctx)
	return nil
}

// listen holds one connection in LISTEN mode, reconnecting until ctx ends.
func (m *Postgres) listen(ctx context.Context) {
	defer close(m.done)

	for ctx.Err() == nil {
		if err := m.listenOnce(ctx); err != nil && ctx.Err() == nil {
			log.Warnw("listen connection lost, retrying", "err", err)
			select {
			case <-ctx.Done():
			case <-time.After(time.Second):
			}
		}
	}
}

func (m *Postgres) listenOnce(ctx context.Context) error {
	conn, err := m.pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "LISTEN "+notifyChannel); err != nil {
		return err
	}
	log.Debug("listening for room packets")
	m.readyOnce.Do(func() { close(m.ready) })

	for {
		n, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			return err
		}
		var env envelope
		if err := json.Unmarshal([]byte(n.Payload), &env); err != nil {
			log.Warnw("dropping notification", "err", err)
			continue
		}
		m.local.deliver("postgres", env.RoomID, env.Packet)
	}
}

// Close stops the listener and, when it owns it, the pool.
func (m *Postgres) Close() error {
	m.mu.Lock()
	cancel, done := m.cancel, m.done
	m.started = false
	if done == nil {
		m.done = make(chan struct{})
		close(m.done)
	}
	m.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
	_ = m.local.Close()
	if m.ownPool {
		m.pool.Close()
	}
	return nil
}

var _ Medium = (*Postgres)(nil)
