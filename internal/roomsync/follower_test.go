package roomsync

import (
	"context"
	"testing"
	"time"

	"github.com/x5uw/SyncRoom/internal/broadcast"
	"github.com/x5uw/SyncRoom/internal/core"
	serrors "github.com/x5uw/SyncRoom/internal/errors"
	"github.com/x5uw/SyncRoom/internal/liveness"
)

// stallingMedium accepts publishes but never finishes a subscription before
// the caller gives up.
type stallingMedium struct {
	*broadcast.Hub
	entered chan struct{}
}

func (m stallingMedium) Subscribe(ctx context.Context, _ string, _ broadcast.Handler) (broadcast.Unsubscribe, error) {
	select {
	case m.entered <- struct{}{}:
	default:
	}
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestFollowerSkipsExpiredRoom(t *testing.T) {
	s := newTestStore(t)
	mock := newMockClock()
	broker := &fakeBroker{}
	player := newFakePlayer(&core.LocalState{DeviceID: "d", TrackURI: "X", PositionMS: 30000, Paused: true})
	hub := broadcast.NewHub()
	errs := make(chan error, 4)

	f := NewFollower("room", core.Listener{PrincipalID: "listener", RefreshToken: "listener-rt"},
		liveness.NewGuard(s, mock), NewReconciler(broker, player, player, mock), hub,
		func(_ Outcome, err error) { errs <- err })
	h, err := f.Start(context.Background())
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer h.Stop()

	mock.Add(31 * time.Minute)
	p := core.Packet{Type: core.PacketSync, TrackURI: "Y", PositionMS: 1000, TS: mock.Now().UnixMilli()}
	if err := hub.Publish(context.Background(), "room", p); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	select {
	case err := <-errs:
		if !serrors.Is(err, serrors.ErrRoomExpired) {
			t.Errorf("outcome error = %v, want ErrRoomExpired", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no outcome observed")
	}
	if n := len(broker.Calls()); n != 0 {
		t.Errorf("broker called %d times, want 0", n)
	}
	if n := len(player.Issued()); n != 0 {
		t.Errorf("issued %d commands, want 0", n)
	}
}

func TestStartFollowingPendingSubscribeLeavesManagerUsable(t *testing.T) {
	medium := stallingMedium{Hub: broadcast.NewHub(), entered: make(chan struct{}, 1)}
	player := newFakePlayer(&core.LocalState{DeviceID: "d", TrackURI: "X"})
	m := NewManager(Config{
		Store:     newTestStore(t),
		Broker:    &fakeBroker{},
		Snapshots: &fakeSnapshots{},
		Local:     player,
		Forwarder: player,
		Medium:    medium,
		Clock:     newMockClock(),
	})
	t.Cleanup(m.Close)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	started := make(chan error, 1)
	go func() {
		_, err := m.StartFollowing(ctx, "room", "listener")
		started <- err
	}()

	select {
	case <-medium.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("subscription never attempted")
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		m.Publishing("room")
		m.Following("room", "host")
		m.StopFollowing("room", "host")
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("manager blocked behind a pending subscription")
	}

	cancel()
	select {
	case err := <-started:
		if !serrors.Is(err, context.Canceled) {
			t.Errorf("StartFollowing() error = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("StartFollowing() did not return after cancel")
	}
	if m.Following("room", "listener") {
		t.Error("Following() = true after a failed subscription")
	}
}
