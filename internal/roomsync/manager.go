package roomsync

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/x5uw/SyncRoom/internal/broadcast"
	"github.com/x5uw/SyncRoom/internal/core"
	serrors "github.com/x5uw/SyncRoom/internal/errors"
	"github.com/x5uw/SyncRoom/internal/liveness"
	"github.com/x5uw/SyncRoom/internal/store"
)

// Config wires a Manager to its collaborators.
type Config struct {
	Store     store.Store
	Broker    TokenBroker
	Snapshots SnapshotFetcher
	Local     LocalFetcher
	Forwarder CommandForwarder
	Medium    broadcast.Medium
	Clock     clock.Clock

	// PublishInterval defaults to core.DefaultPublishInterval.
	PublishInterval time.Duration

	// OnOutcome, when set, observes every follower reconciliation.
	OnOutcome func(roomID, principalID string, out Outcome, err error)
}

type followKey struct {
	roomID      string
	principalID string
}

// Manager owns at most one publisher per room and one follower per
// (room, listener), and implements the one-shot room operations.
type Manager struct {
	cfg        Config
	guard      *liveness.Guard
	reconciler *Reconciler

	mu         sync.Mutex
	publishers map[string]*Handle
	followers  map[followKey]*Handle
}

// NewManager creates a manager.
func NewManager(cfg Config) *Manager {
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	if cfg.PublishInterval <= 0 {
		cfg.PublishInterval = core.DefaultPublishInterval
	}
	return &Manager{
		cfg:        cfg,
		guard:      liveness.NewGuard(cfg.Store, cfg.Clock),
		reconciler: NewReconciler(cfg.Broker, cfg.Local, cfg.Forwarder, cfg.Clock),
		publishers: make(map[string]*Handle),
		followers:  make(map[followKey]*Handle),
	}
}

// Guard returns the liveness guard the manager checks rooms with.
func (m *Manager) Guard() *liveness.Guard {
	return m.guard
}

// InitRoom makes principalID the host of roomID using the principal's stored
// provider tokens, and announces the room with a room_init packet.
func (m *Manager) InitRoom(ctx context.Context, roomID, principalID string) (core.Packet, error) {
	if principalID == "" {
		return core.Packet{}, serrors.ErrNotAuthenticated
	}
	creds, err := m.cfg.Store.GetCredentials(ctx, principalID)
	if err != nil {
		return core.Packet{}, err
	}

	now := m.cfg.Clock.Now()
	if err := m.cfg.Store.InitRoom(ctx, core.Room{
		ID:                   roomID,
		HostID:               principalID,
		ProviderToken:        creds.AccessToken,
		ProviderRefreshToken: creds.RefreshToken,
		LastActiveAt:         now,
	}); err != nil {
		return core.Packet{}, err
	}

	// The announcement carries the host's current track when it can be read.
	var snap *core.Snapshot
	if token, err := m.cfg.Broker.Refresh(ctx, creds.RefreshToken); err != nil {
		log.Warnw("room init without snapshot", "room", roomID, "err", err)
	} else if snap, err = m.cfg.Snapshots.FetchCurrent(ctx, token); err != nil {
		log.Warnw("room init without snapshot", "room", roomID, "err", err)
		snap = nil
	}

	packet := core.NewRoomInitPacket(snap, now)
	if err := m.cfg.Medium.Publish(ctx, roomID, packet); err != nil {
		return packet, fmt.Errorf("announce room: %w", err)
	}
	log.Infow("room initialized", "room", roomID, "host", principalID)
	return packet, nil
}

// Touch records host activity for roomID.
func (m *Manager) Touch(ctx context.Context, roomID, principalID string) error {
	if principalID == "" {
		return serrors.ErrNotAuthenticated
	}
	return m.guard.Touch(ctx, roomID, principalID)
}

// HostPlayback returns the host's current playback, or nil when nothing plays.
func (m *Manager) HostPlayback(ctx context.Context, roomID string) (*core.Snapshot, error) {
	room, err := m.guard.Check(ctx, roomID)
	if err != nil {
		return nil, err
	}
	token, err := m.cfg.Broker.Refresh(ctx, room.ProviderRefreshToken)
	if err != nil {
		return nil, fmt.Errorf("refresh host token: %w", err)
	}
	return m.cfg.Snapshots.FetchCurrent(ctx, token)
}

// SyncNow starts the host's current context or track on the listener's
// device at the host's position.
func (m *Manager) SyncNow(ctx context.Context, roomID, principalID string) (core.Result, error) {
	if principalID == "" {
		return core.Result{}, serrors.ErrNotAuthenticated
	}
	room, err := m.guard.Check(ctx, roomID)
	if err != nil {
		return core.Result{}, err
	}
	creds, err := m.cfg.Store.GetCredentials(ctx, principalID)
	if err != nil {
		return core.Result{}, err
	}

	hostToken, err := m.cfg.Broker.Refresh(ctx, room.ProviderRefreshToken)
	if err != nil {
		return core.Result{}, fmt.Errorf("refresh host token: %w", err)
	}
	listenerToken, err := m.cfg.Broker.Refresh(ctx, creds.RefreshToken)
	if err != nil {
		return core.Result{}, fmt.Errorf("refresh listener token: %w", err)
	}

	snap, err := m.cfg.Snapshots.FetchCurrent(ctx, hostToken)
	if err != nil {
		return core.Result{}, fmt.Errorf("fetch host playback: %w", err)
	}
	if snap == nil || !snap.IsPlaying || !snap.HasTrack() {
		return core.Result{}, serrors.ErrHostNotPlaying
	}

	position := snap.ProgressMS
	cmd := core.Play([]string{snap.ItemURI}, "", &position)
	if snap.ContextURI != "" {
		cmd = core.Play(nil, snap.ContextURI, &position)
	}
	return m.cfg.Forwarder.Issue(ctx, cmd, listenerToken)
}

// Command forwards cmd for principalID. A non-empty bearer is used as is;
// otherwise the principal's stored refresh token is exchanged first.
func (m *Manager) Command(ctx context.Context, principalID, bearer string, cmd core.Command) (core.Result, error) {
	token := bearer
	if token == "" {
		if principalID == "" {
			return core.Result{}, serrors.ErrNotAuthenticated
		}
		creds, err := m.cfg.Store.GetCredentials(ctx, principalID)
		if err != nil {
			return core.Result{}, err
		}
		if token, err = m.cfg.Broker.Refresh(ctx, creds.RefreshToken); err != nil {
			return core.Result{}, err
		}
	}
	return m.cfg.Forwarder.Issue(ctx, cmd, token)
}

// SaveCredentials stores principalID's provider tokens.
func (m *Manager) SaveCredentials(ctx context.Context, creds core.Credentials) error {
	if creds.PrincipalID == "" {
		return serrors.ErrNotAuthenticated
	}
	if creds.RefreshToken == "" {
		return serrors.InvalidArgument("refresh_token is required")
	}
	creds.UpdatedAt = m.cfg.Clock.Now()
	return m.cfg.Store.SaveCredentials(ctx, creds)
}

// StartPublishing starts roomID's publish loop on behalf of principalID,
// who must be the host. It reports false when the loop was already running.
func (m *Manager) StartPublishing(ctx context.Context, roomID, principalID string) (bool, error) {
	room, err := m.guard.Check(ctx, roomID)
	if err != nil {
		return false, err
	}
	if !room.IsHost(principalID) {
		return false, serrors.ErrForbidden
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if h, ok := m.publishers[roomID]; ok {
		select {
		case <-h.Done():
		default:
			return false, nil
		}
	}

	pub := NewPublisher(roomID, m.guard, m.cfg.Broker, m.cfg.Snapshots, m.cfg.Medium,
		WithInterval(m.cfg.PublishInterval), WithPublisherClock(m.cfg.Clock))
	m.publishers[roomID] = pub.Start(context.WithoutCancel(ctx))
	return true, nil
}

// StopPublishing stops roomID's publish loop. Only the host may stop it.
func (m *Manager) StopPublishing(ctx context.Context, roomID, principalID string) (bool, error) {
	room, err := m.cfg.Store.GetRoom(ctx, roomID)
	if err != nil {
		return false, err
	}
	if !room.IsHost(principalID) {
		return false, serrors.ErrForbidden
	}

	m.mu.Lock()
	h, ok := m.publishers[roomID]
	delete(m.publishers, roomID)
	m.mu.Unlock()

	if ok {
		h.Stop()
	}
	return ok, nil
}

// Publishing reports whether roomID has a running publish loop.
func (m *Manager) Publishing(roomID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.publishers[roomID]
	if !ok {
		return false
	}
	select {
	case <-h.Done():
		return false
	default:
		return true
	}
}

// StartFollowing reconciles principalID's device with roomID's packets until
// stopped. It reports false when the listener was already following.
func (m *Manager) StartFollowing(ctx context.Context, roomID, principalID string) (bool, error) {
	if principalID == "" {
		return false, serrors.ErrNotAuthenticated
	}
	if _, err := m.cfg.Store.GetRoom(ctx, roomID); err != nil {
		return false, err
	}
	creds, err := m.cfg.Store.GetCredentials(ctx, principalID)
	if err != nil {
		return false, err
	}

	if m.Following(roomID, principalID) {
		return false, nil
	}

	var onOutcome OutcomeFunc
	if m.cfg.OnOutcome != nil {
		onOutcome = func(out Outcome, err error) {
			m.cfg.OnOutcome(roomID, principalID, out, err)
		}
	}
	listener := core.Listener{PrincipalID: principalID, RefreshToken: creds.RefreshToken}
	f := NewFollower(roomID, listener, m.guard, m.reconciler, m.cfg.Medium, onOutcome)
	h, err := f.Start(ctx)
	if err != nil {
		return false, err
	}

	// Subscribing may block on the medium, so it runs unlocked and a
	// concurrent start for the same listener loses here.
	key := followKey{roomID: roomID, principalID: principalID}
	m.mu.Lock()
	if _, ok := m.followers[key]; ok {
		m.mu.Unlock()
		h.Stop()
		return false, nil
	}
	m.followers[key] = h
	m.mu.Unlock()
	return true, nil
}

// StopFollowing stops principalID's follower for roomID.
func (m *Manager) StopFollowing(roomID, principalID string) bool {
	key := followKey{roomID: roomID, principalID: principalID}

	m.mu.Lock()
	h, ok := m.followers[key]
	delete(m.followers, key)
	m.mu.Unlock()

	if ok {
		h.Stop()
	}
	return ok
}

// Following reports whether principalID follows roomID.
func (m *Manager) Following(roomID, principalID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.followers[followKey{roomID: roomID, principalID: principalID}]
	return ok
}

// Reconciler returns the reconciler shared by the manager's followers.
func (m *Manager) Reconciler() *Reconciler {
	return m.reconciler
}

// Close stops every loop the manager owns.
func (m *Manager) Close() {
	m.mu.Lock()
	handles := make([]*Handle, 0, len(m.publishers)+len(m.followers))
	for _, h := range m.publishers {
		handles = append(handles, h)
	}
	for _, h := range m.followers {
		handles = append(handles, h)
	}
	m.publishers = make(map[string]*Handle)
	m.followers = make(map[followKey]*Handle)
	m.mu.Unlock()

	for _, h := range handles {
		h.Stop()
	}
}
