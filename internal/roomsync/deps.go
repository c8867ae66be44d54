// Package roomsync keeps listeners' playback aligned with a room's host.
//
// A Publisher samples the host's player on a fixed cadence and emits sync
// packets to the broadcast medium. A Follower subscribes to those packets and
// steers one listener's device through a Reconciler. Every operation takes the
// room id and principal explicitly; nothing is looked up from ambient state.
package roomsync

import (
	"context"

	logging "github.com/ipfs/go-log/v2"

	"github.com/x5uw/SyncRoom/internal/core"
)

var log = logging.Logger("roomsync")

// TokenBroker exchanges a refresh token for a fresh access token.
type TokenBroker interface {
	Refresh(ctx context.Context, refreshToken string) (string, error)
}

// SnapshotFetcher reads the host's current playback. A nil snapshot means
// nothing is playing.
type SnapshotFetcher interface {
	FetchCurrent(ctx context.Context, accessToken string) (*core.Snapshot, error)
}

// LocalFetcher reads a listener's own player. A nil state means the listener
// has no active device.
type LocalFetcher interface {
	FetchLocal(ctx context.Context, accessToken string) (*core.LocalState, error)
}

// CommandForwarder issues play, pause and seek commands.
type CommandForwarder interface {
	Issue(ctx context.Context, cmd core.Command, accessToken string) (core.Result, error)
}

// Handle controls a running background loop.
type Handle struct {
	cancel context.CancelFunc
	done   chan struct{}
	stop   func()
}

func newHandle(cancel context.CancelFunc, stop func()) *Handle {
	return &Handle{cancel: cancel, done: make(chan struct{}), stop: stop}
}

// Stop cancels the loop and waits for it to exit. It is safe to call more
// than once.
func (h *Handle) Stop() {
	if h.stop != nil {
		h.stop()
	}
	h.cancel()
	<-h.done
}

// Done is closed once the loop has exited.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}
