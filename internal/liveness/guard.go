package liveness

import (
	"context"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	logging "github.com/ipfs/go-log/v2"

	"github.com/x5uw/SyncRoom/internal/core"
	serrors "github.com/x5uw/SyncRoom/internal/errors"
	"github.com/x5uw/SyncRoom/internal/store"
)

var log = logging.Logger("liveness")

// Guard decides whether a room is still active and records host activity.
type Guard struct {
	store store.Store
	clock clock.Clock
}

// NewGuard creates a guard reading time from clk. A nil clock uses wall time.
func NewGuard(s store.Store, clk clock.Clock) *Guard {
	if clk == nil {
		clk = clock.New()
	}
	return &Guard{store: s, clock: clk}
}

// IsExpired reports whether more than core.RoomExpiry has passed since the
// room's last host activity. Exactly core.RoomExpiry counts as expired.
func (g *Guard) IsExpired(room *core.Room) bool {
	if room == nil {
		return true
	}
	return g.clock.Since(room.LastActiveAt) >= core.RoomExpiry
}

// Check loads the room and fails with errors.ErrRoomExpired when it is no
// longer live.
func (g *Guard) Check(ctx context.Context, roomID string) (*core.Room, error) {
	room, err := g.store.GetRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if g.IsExpired(room) {
		return room, fmt.Errorf("room %s: %w", roomID, serrors.ErrRoomExpired)
	}
	return room, nil
}

// Touch marks the room active now. Only the current host may touch a room;
// anyone else gets errors.ErrForbidden and the timestamp is left alone.
func (g *Guard) Touch(ctx context.Context, roomID, principalID string) error {
	room, err := g.store.GetRoom(ctx, roomID)
	if err != nil {
		return err
	}
	if !room.IsHost(principalID) {
		log.Debugw("touch rejected", "room", roomID, "principal", principalID)
		return fmt.Errorf("touch room %s: %w", roomID, serrors.ErrForbidden)
	}
	return g.store.TouchRoom(ctx, roomID, principalID, g.clock.Now())
}

// Now returns the guard's current time.
func (g *Guard) Now() time.Time {
	return g.clock.Now()
}
