package roomsync

import (
	"context"
	"testing"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/x5uw/SyncRoom/internal/broadcast"
	"github.com/x5uw/SyncRoom/internal/core"
	serrors "github.com/x5uw/SyncRoom/internal/errors"
	"github.com/x5uw/SyncRoom/internal/store"
)

type managerFixture struct {
	m         *Manager
	store     store.Store
	hub       *broadcast.Hub
	mock      *clock.Mock
	broker    *fakeBroker
	snapshots *fakeSnapshots
	player    *fakePlayer
	outcomes  chan Outcome
}

func newManagerFixture(t *testing.T) *managerFixture {
	t.Helper()

	f := &managerFixture{
		store:     newTestStore(t),
		hub:       broadcast.NewHub(),
		mock:      newMockClock(),
		broker:    &fakeBroker{},
		snapshots: &fakeSnapshots{},
		player:    newFakePlayer(&core.LocalState{DeviceID: "d", TrackURI: "X", PositionMS: 30000, Paused: true}),
		outcomes:  make(chan Outcome, 16),
	}
	f.m = NewManager(Config{
		Store:           f.store,
		Broker:          f.broker,
		Snapshots:       f.snapshots,
		Local:           f.player,
		Forwarder:       f.player,
		Medium:          f.hub,
		Clock:           f.mock,
		PublishInterval: time.Second,
		OnOutcome: func(roomID, principalID string, out Outcome, err error) {
			if err == nil {
				f.outcomes <- out
			}
		},
	})
	t.Cleanup(f.m.Close)
	return f
}

func (f *managerFixture) nextOutcome(t *testing.T) Outcome {
	t.Helper()
	select {
	case out := <-f.outcomes:
		return out
	case <-time.After(2 * time.Second):
		t.Fatal("no reconciliation observed")
		return Outcome{}
	}
}

func TestFollowerEndToEnd(t *testing.T) {
	f := newManagerFixture(t)
	ctx := context.Background()

	started, err := f.m.StartFollowing(ctx, "room", "listener")
	if err != nil || !started {
		t.Fatalf("StartFollowing() = %v, %v", started, err)
	}

	p := core.Packet{Type: core.PacketSync, TrackURI: "X", PositionMS: 30000, Paused: false, TS: epoch.UnixMilli()}
	if err := f.hub.Publish(ctx, "room", p); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	out := f.nextOutcome(t)

	if out.Packet != p {
		t.Errorf("Packet = %+v, want %+v", out.Packet, p)
	}
	cmds := f.player.Issued()
	if len(cmds) != 1 || cmds[0].cmd.Kind != core.CommandPlay {
		t.Fatalf("issued = %+v, want exactly one play", cmds)
	}
	if cmds[0].token != "access-listener-rt" {
		t.Errorf("play token = %q, want the listener's", cmds[0].token)
	}
	for _, rt := range f.broker.Calls() {
		if rt == "host-rt" {
			t.Error("host refresh token used while following")
		}
	}
}

func TestFollowerSkipsDuplicatePackets(t *testing.T) {
	f := newManagerFixture(t)
	ctx := context.Background()

	if _, err := f.m.StartFollowing(ctx, "room", "listener"); err != nil {
		t.Fatalf("StartFollowing() error = %v", err)
	}

	p := core.Packet{Type: core.PacketSync, TrackURI: "X", PositionMS: 30000, TS: epoch.UnixMilli()}
	if err := f.hub.Publish(ctx, "room", p); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	f.nextOutcome(t)

	if err := f.hub.Publish(ctx, "room", p); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	next := p
	next.TS++
	if err := f.hub.Publish(ctx, "room", next); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	out := f.nextOutcome(t)
	if out.Packet != next {
		t.Errorf("reconciled %+v, want the newer packet", out.Packet)
	}
	if n := len(f.broker.Calls()); n != 2 {
		t.Errorf("broker called %d times, want 2", n)
	}
}

func TestStopFollowingUnsubscribes(t *testing.T) {
	f := newManagerFixture(t)
	ctx := context.Background()

	if _, err := f.m.StartFollowing(ctx, "room", "listener"); err != nil {
		t.Fatalf("StartFollowing() error = %v", err)
	}
	if again, err := f.m.StartFollowing(ctx, "room", "listener"); err != nil || again {
		t.Errorf("second StartFollowing() = %v, %v, want false, nil", again, err)
	}
	if n := f.hub.Subscribers("room"); n != 1 {
		t.Fatalf("Subscribers() = %d, want 1", n)
	}

	if !f.m.StopFollowing("room", "listener") {
		t.Error("StopFollowing() = false")
	}
	if n := f.hub.Subscribers("room"); n != 0 {
		t.Errorf("Subscribers() after stop = %d, want 0", n)
	}
	if f.m.Following("room", "listener") {
		t.Error("Following() = true after stop")
	}
	if f.m.StopFollowing("room", "listener") {
		t.Error("second StopFollowing() = true")
	}
}

func TestStartFollowingErrors(t *testing.T) {
	f := newManagerFixture(t)
	ctx := context.Background()

	tests := []struct {
		name      string
		roomID    string
		principal string
		want      error
	}{
		{"anonymous", "room", "", serrors.ErrNotAuthenticated},
		{"unknown room", "nope", "listener", serrors.ErrRoomNotFound},
		{"no credentials", "room", "stranger", serrors.ErrNoCredentials},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := f.m.StartFollowing(ctx, tt.roomID, tt.principal); !serrors.Is(err, tt.want) {
				t.Errorf("StartFollowing() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestStartPublishing(t *testing.T) {
	f := newManagerFixture(t)
	ctx := context.Background()

	if _, err := f.m.StartPublishing(ctx, "room", "listener"); !serrors.Is(err, serrors.ErrForbidden) {
		t.Errorf("StartPublishing(listener) error = %v, want ErrForbidden", err)
	}

	started, err := f.m.StartPublishing(ctx, "room", "host")
	if err != nil || !started {
		t.Fatalf("StartPublishing(host) = %v, %v", started, err)
	}
	if again, _ := f.m.StartPublishing(ctx, "room", "host"); again {
		t.Error("second StartPublishing() started another loop")
	}
	if !f.m.Publishing("room") {
		t.Error("Publishing() = false")
	}

	if _, err := f.m.StopPublishing(ctx, "room", "listener"); !serrors.Is(err, serrors.ErrForbidden) {
		t.Errorf("StopPublishing(listener) error = %v, want ErrForbidden", err)
	}
	stopped, err := f.m.StopPublishing(ctx, "room", "host")
	if err != nil || !stopped {
		t.Errorf("StopPublishing(host) = %v, %v", stopped, err)
	}
	if f.m.Publishing("room") {
		t.Error("Publishing() = true after stop")
	}
}

func TestStartPublishingExpiredRoom(t *testing.T) {
	f := newManagerFixture(t)
	f.mock.Add(31 * time.Minute)

	if _, err := f.m.StartPublishing(context.Background(), "room", "host"); !serrors.Is(err, serrors.ErrRoomExpired) {
		t.Errorf("StartPublishing() error = %v, want ErrRoomExpired", err)
	}
}

func TestInitRoomAnnounces(t *testing.T) {
	f := newManagerFixture(t)
	ctx := context.Background()
	f.mock.Add(time.Hour)
	f.snapshots.set(&core.Snapshot{IsPlaying: true, ProgressMS: 1200, ItemURI: "spotify:track:a"}, nil)

	received := &packetLog{}
	unsub, err := f.hub.Subscribe(ctx, "fresh", received.add)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer unsub()

	packet, err := f.m.InitRoom(ctx, "fresh", "listener")
	if err != nil {
		t.Fatalf("InitRoom() error = %v", err)
	}
	if packet.Type != core.PacketRoomInit || packet.TrackURI != "spotify:track:a" || packet.Paused {
		t.Errorf("packet = %+v", packet)
	}
	if got := received.all(); len(got) != 1 || got[0] != packet {
		t.Errorf("subscriber got %+v", got)
	}

	room, err := f.store.GetRoom(ctx, "fresh")
	if err != nil {
		t.Fatalf("GetRoom() error = %v", err)
	}
	if room.HostID != "listener" || room.ProviderRefreshToken != "listener-rt" {
		t.Errorf("room = %+v", room)
	}
	if !room.LastActiveAt.Equal(f.mock.Now()) {
		t.Errorf("LastActiveAt = %v, want %v", room.LastActiveAt, f.mock.Now())
	}
}

func TestInitRoomWithoutPlayback(t *testing.T) {
	f := newManagerFixture(t)
	f.snapshots.set(nil, errBoom)

	packet, err := f.m.InitRoom(context.Background(), "fresh", "host")
	if err != nil {
		t.Fatalf("InitRoom() error = %v", err)
	}
	if packet.TrackURI != "" || !packet.Paused {
		t.Errorf("packet = %+v, want empty paused room_init", packet)
	}
}

func TestInitRoomRequiresCredentials(t *testing.T) {
	f := newManagerFixture(t)

	if _, err := f.m.InitRoom(context.Background(), "fresh", "stranger"); !serrors.Is(err, serrors.ErrNoCredentials) {
		t.Errorf("InitRoom() error = %v, want ErrNoCredentials", err)
	}
}

func TestInitRoomHeldByAnotherHost(t *testing.T) {
	f := newManagerFixture(t)
	ctx := context.Background()

	received := &packetLog{}
	unsub, err := f.hub.Subscribe(ctx, "room", received.add)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer unsub()

	if _, err := f.m.InitRoom(ctx, "room", "listener"); !serrors.Is(err, serrors.ErrForbidden) {
		t.Fatalf("InitRoom() error = %v, want ErrForbidden", err)
	}
	room, err := f.store.GetRoom(ctx, "room")
	if err != nil {
		t.Fatalf("GetRoom() error = %v", err)
	}
	if room.HostID != "host" || room.ProviderRefreshToken != "host-rt" {
		t.Errorf("room = %+v, want the original host", room)
	}
	if got := received.all(); len(got) != 0 {
		t.Errorf("announced %+v after a refused init", got)
	}
	if n := len(f.broker.Calls()); n != 0 {
		t.Errorf("broker called %d times, want 0", n)
	}

	if _, err := f.m.InitRoom(ctx, "room", "host"); err != nil {
		t.Errorf("InitRoom() by host error = %v", err)
	}
}

func TestTouch(t *testing.T) {
	f := newManagerFixture(t)
	ctx := context.Background()
	f.mock.Add(29 * time.Minute)

	if err := f.m.Touch(ctx, "room", "listener"); !serrors.Is(err, serrors.ErrForbidden) {
		t.Errorf("Touch(listener) error = %v, want ErrForbidden", err)
	}
	if err := f.m.Touch(ctx, "room", "host"); err != nil {
		t.Fatalf("Touch(host) error = %v", err)
	}

	f.mock.Add(29 * time.Minute)
	if _, err := f.m.Guard().Check(ctx, "room"); err != nil {
		t.Errorf("Check() after touch error = %v", err)
	}
}

func TestSyncNow(t *testing.T) {
	f := newManagerFixture(t)
	ctx := context.Background()
	f.snapshots.set(&core.Snapshot{IsPlaying: true, ProgressMS: 42000, ItemURI: "spotify:track:a", ContextURI: "spotify:album:b"}, nil)

	res, err := f.m.SyncNow(ctx, "room", "listener")
	if err != nil {
		t.Fatalf("SyncNow() error = %v", err)
	}
	if !res.OK {
		t.Error("Result.OK = false")
	}

	cmds := f.player.Issued()
	if len(cmds) != 1 {
		t.Fatalf("issued %d commands, want 1", len(cmds))
	}
	cmd := cmds[0]
	if cmd.cmd.ContextURI != "spotify:album:b" || *cmd.cmd.PositionMS != 42000 {
		t.Errorf("command = %+v", cmd.cmd)
	}
	if cmd.token != "access-listener-rt" {
		t.Errorf("token = %q, want the listener's", cmd.token)
	}
	if f.snapshots.tokens[0] != "access-host-rt" {
		t.Errorf("snapshot read with %q, want the host's token", f.snapshots.tokens[0])
	}
}

func TestSyncNowHostNotPlaying(t *testing.T) {
	f := newManagerFixture(t)
	f.snapshots.set(&core.Snapshot{IsPlaying: false, ItemURI: "spotify:track:a"}, nil)

	if _, err := f.m.SyncNow(context.Background(), "room", "listener"); !serrors.Is(err, serrors.ErrHostNotPlaying) {
		t.Errorf("SyncNow() error = %v, want ErrHostNotPlaying", err)
	}
	if n := len(f.player.Issued()); n != 0 {
		t.Errorf("issued %d commands, want 0", n)
	}
}

func TestSyncNowExpiredRoomMakesNoCalls(t *testing.T) {
	f := newManagerFixture(t)
	f.mock.Add(31 * time.Minute)

	if _, err := f.m.SyncNow(context.Background(), "room", "listener"); !serrors.Is(err, serrors.ErrRoomExpired) {
		t.Fatalf("SyncNow() error = %v, want ErrRoomExpired", err)
	}
	if n := len(f.broker.Calls()); n != 0 {
		t.Errorf("broker called %d times, want 0", n)
	}
	if n := f.snapshots.Calls(); n != 0 {
		t.Errorf("provider called %d times, want 0", n)
	}
}

func TestHostPlayback(t *testing.T) {
	f := newManagerFixture(t)
	f.snapshots.set(&core.Snapshot{IsPlaying: true, ProgressMS: 5, ItemURI: "spotify:track:a"}, nil)

	snap, err := f.m.HostPlayback(context.Background(), "room")
	if err != nil {
		t.Fatalf("HostPlayback() error = %v", err)
	}
	if snap == nil || snap.ItemURI != "spotify:track:a" {
		t.Errorf("HostPlayback() = %+v", snap)
	}
}

func TestCommand(t *testing.T) {
	f := newManagerFixture(t)
	ctx := context.Background()

	if _, err := f.m.Command(ctx, "listener", "", core.Pause()); err != nil {
		t.Fatalf("Command() error = %v", err)
	}
	if _, err := f.m.Command(ctx, "", "bearer", core.Pause()); err != nil {
		t.Fatalf("Command() with bearer error = %v", err)
	}
	if _, err := f.m.Command(ctx, "", "", core.Pause()); !serrors.Is(err, serrors.ErrNotAuthenticated) {
		t.Errorf("anonymous Command() error = %v, want ErrNotAuthenticated", err)
	}

	cmds := f.player.Issued()
	if len(cmds) != 2 || cmds[0].token != "access-listener-rt" || cmds[1].token != "bearer" {
		t.Errorf("issued = %+v", cmds)
	}
}

func TestSaveCredentials(t *testing.T) {
	f := newManagerFixture(t)
	ctx := context.Background()

	if err := f.m.SaveCredentials(ctx, core.Credentials{PrincipalID: "carol"}); !serrors.Is(err, serrors.ErrInvalidArgument) {
		t.Errorf("SaveCredentials() without refresh token error = %v, want ErrInvalidArgument", err)
	}
	if err := f.m.SaveCredentials(ctx, core.Credentials{PrincipalID: "carol", RefreshToken: "carol-rt"}); err != nil {
		t.Fatalf("SaveCredentials() error = %v", err)
	}
	creds, err := f.store.GetCredentials(ctx, "carol")
	if err != nil {
		t.Fatalf("GetCredentials() error = %v", err)
	}
	if creds.RefreshToken != "carol-rt" || !creds.UpdatedAt.Equal(f.mock.Now()) {
		t.Errorf("credentials = %+v", creds)
	}
}
