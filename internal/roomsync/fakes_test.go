package roomsync

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/x5uw/SyncRoom/internal/core"
	serrors "github.com/x5uw/SyncRoom/internal/errors"
	"github.com/x5uw/SyncRoom/internal/store"
)

var epoch = time.Date(2026, 5, 1, 20, 0, 0, 0, time.UTC)

// fakeBroker maps refresh tokens to access tokens as "access-<rt>".
type fakeBroker struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (b *fakeBroker) Refresh(_ context.Context, rt string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls = append(b.calls, rt)
	if b.err != nil {
		return "", b.err
	}
	if rt == "" {
		return "", serrors.Upstream(serrors.ErrUpstreamAuth, 400, "missing refresh token")
	}
	return "access-" + rt, nil
}

func (b *fakeBroker) Calls() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.calls...)
}

// fakeSnapshots returns snap for every token, counting calls.
type fakeSnapshots struct {
	mu     sync.Mutex
	snap   *core.Snapshot
	err    error
	tokens []string

	// block, when set, holds FetchCurrent until it is closed.
	block   chan struct{}
	entered chan struct{}
}

func (f *fakeSnapshots) FetchCurrent(ctx context.Context, token string) (*core.Snapshot, error) {
	f.mu.Lock()
	f.tokens = append(f.tokens, token)
	snap, err, block, entered := f.snap, f.err, f.block, f.entered
	f.mu.Unlock()

	if entered != nil {
		entered <- struct{}{}
	}
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	if snap == nil {
		return nil, nil
	}
	cp := *snap
	return &cp, nil
}

func (f *fakeSnapshots) set(snap *core.Snapshot, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snap, f.err = snap, err
}

func (f *fakeSnapshots) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.tokens)
}

type issued struct {
	cmd   core.Command
	token string
}

// fakePlayer is a listener's device. Commands change its state the way the
// provider would, so a second reconciliation observes the first one's effect.
type fakePlayer struct {
	mu      sync.Mutex
	state   *core.LocalState
	issued  []issued
	reads   []string
	failCmd error
}

func newFakePlayer(state *core.LocalState) *fakePlayer {
	return &fakePlayer{state: state}
}

func (p *fakePlayer) FetchLocal(_ context.Context, token string) (*core.LocalState, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reads = append(p.reads, token)
	if p.state == nil {
		return nil, nil
	}
	cp := *p.state
	return &cp, nil
}

func (p *fakePlayer) Issue(_ context.Context, cmd core.Command, token string) (core.Result, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failCmd != nil {
		return core.Result{}, p.failCmd
	}
	p.issued = append(p.issued, issued{cmd: cmd, token: token})
	if p.state == nil {
		return core.Result{OK: true}, nil
	}

	switch cmd.Kind {
	case core.CommandPlay:
		if len(cmd.URIs) > 0 {
			p.state.TrackURI = cmd.URIs[0]
			p.state.ContextURI = ""
		} else if cmd.ContextURI != "" {
			// The provider reports the context's first item, not the context.
			p.state.TrackURI = firstItem
			p.state.ContextURI = cmd.ContextURI
		}
		if cmd.PositionMS != nil {
			p.state.PositionMS = *cmd.PositionMS
		}
		p.state.Paused = false
	case core.CommandPause:
		p.state.Paused = true
	case core.CommandSeek:
		p.state.PositionMS = *cmd.PositionMS
	}
	return core.Result{OK: true}, nil
}

func (p *fakePlayer) Issued() []issued {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]issued(nil), p.issued...)
}

func (p *fakePlayer) kinds() []core.CommandKind {
	var kinds []core.CommandKind
	for _, is := range p.Issued() {
		kinds = append(kinds, is.cmd.Kind)
	}
	return kinds
}

// newTestStore returns an in-memory store holding one room hosted by "host"
// whose last activity is epoch, plus credentials for "host" and "listener".
func newTestStore(t *testing.T) store.Store {
	t.Helper()

	s, err := store.OpenSQLite(":memory:", store.SQLiteOptions{})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	ctx := context.Background()
	if err := s.InitRoom(ctx, core.Room{
		ID:                   "room",
		HostID:               "host",
		ProviderToken:        "host-access",
		ProviderRefreshToken: "host-rt",
		LastActiveAt:         epoch,
	}); err != nil {
		t.Fatalf("init room: %v", err)
	}
	for _, creds := range []core.Credentials{
		{PrincipalID: "host", AccessToken: "host-access", RefreshToken: "host-rt", UpdatedAt: epoch},
		{PrincipalID: "listener", AccessToken: "listener-access", RefreshToken: "listener-rt", UpdatedAt: epoch},
	} {
		if err := s.SaveCredentials(ctx, creds); err != nil {
			t.Fatalf("save credentials: %v", err)
		}
	}
	return s
}

func newMockClock() *clock.Mock {
	mock := clock.NewMock()
	mock.Set(epoch)
	return mock
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

var errBoom = errors.New("boom")

// firstItem is what a context starts on when played from the top.
const firstItem = "spotify:track:first"
