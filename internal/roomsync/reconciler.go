package roomsync

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/x5uw/SyncRoom/internal/core"
	"github.com/x5uw/SyncRoom/internal/metrics"
)

// Outcome describes what one reconciliation observed and did.
type Outcome struct {
	Packet core.Packet

	// Ignored is set when the listener has no active player.
	Ignored bool

	Local    *core.LocalState
	Latency  time.Duration
	Expected int
	Drift    time.Duration

	TrackChanged bool
	Commands     []core.Command
}

// Acted reports whether any corrective command was issued.
func (o Outcome) Acted() bool {
	return len(o.Commands) > 0
}

// Reconciler steers a listener's device toward a sync packet. It keeps no
// state between packets: every application recomputes drift from scratch.
type Reconciler struct {
	broker    TokenBroker
	local     LocalFetcher
	forwarder CommandForwarder
	clock     clock.Clock
}

// NewReconciler creates a reconciler. A nil clock uses wall time.
func NewReconciler(broker TokenBroker, local LocalFetcher, forwarder CommandForwarder, clk clock.Clock) *Reconciler {
	if clk == nil {
		clk = clock.New()
	}
	return &Reconciler{broker: broker, local: local, forwarder: forwarder, clock: clk}
}

// ApplySync reconciles listener's device with p using the listener's own
// credentials. The host's tokens are never involved.
func (r *Reconciler) ApplySync(ctx context.Context, listener core.Listener, p core.Packet) (Outcome, error) {
	out := Outcome{Packet: p}

	token, err := r.broker.Refresh(ctx, listener.RefreshToken)
	if err != nil {
		return out, fmt.Errorf("refresh listener token: %w", err)
	}

	local, err := r.local.FetchLocal(ctx, token)
	if err != nil {
		return out, fmt.Errorf("read listener playback: %w", err)
	}
	if local == nil {
		out.Ignored = true
		return out, nil
	}
	out.Local = local

	out.Latency = Latency(r.clock.Now(), p.CapturedAt())
	out.Expected = ExpectedPosition(p, out.Latency)
	out.Drift = Drift(local.PositionMS, out.Expected)

	issue := func(cmd core.Command) error {
		cmd.DeviceID = local.DeviceID
		if _, err := r.forwarder.Issue(ctx, cmd, token); err != nil {
			return fmt.Errorf("%s: %w", cmd.Kind, err)
		}
		out.Commands = append(out.Commands, cmd)
		metrics.ReconcileCommands.WithLabelValues(string(cmd.Kind)).Inc()
		return nil
	}

	if p.TrackURI != "" && !local.Playing(p.TrackURI) {
		out.TrackChanged = true
		if err := issue(startCommand(p.TrackURI, out.Expected)); err != nil {
			return out, err
		}
		if p.Paused {
			if err := issue(core.Pause()); err != nil {
				return out, err
			}
		}
		return out, nil
	}

	// A packet naming only the context carries the host's position in an
	// item the listener cannot identify, so there is nothing to seek against.
	seekable := p.TrackURI != "" && p.TrackURI == local.TrackURI
	if seekable {
		metrics.Drift.Observe(out.Drift.Seconds())
	}

	if seekable && out.Drift > core.DriftThreshold {
		if err := issue(core.Seek(out.Expected)); err != nil {
			return out, err
		}
	}

	if local.Paused != p.Paused {
		cmd := core.Play(nil, "", nil)
		if p.Paused {
			cmd = core.Pause()
		}
		if err := issue(cmd); err != nil {
			return out, err
		}
	}

	return out, nil
}

// Latency estimates one-way delivery delay as half the age of the packet.
// A packet stamped in the future (sender clock ahead) counts as zero.
func Latency(now, capturedAt time.Time) time.Duration {
	age := now.Sub(capturedAt)
	if age < 0 {
		return 0
	}
	return age / 2
}

// ExpectedPosition is where the host should be by the time p is applied.
func ExpectedPosition(p core.Packet, latency time.Duration) int {
	return p.PositionMS + int(latency/time.Millisecond)
}

// Drift is the absolute distance between the listener and the expected position.
func Drift(localMS, expectedMS int) time.Duration {
	d := localMS - expectedMS
	if d < 0 {
		d = -d
	}
	return time.Duration(d) * time.Millisecond
}

// startCommand plays uri at positionMS. Track and episode URIs are started
// directly; anything else is treated as a context.
func startCommand(uri string, positionMS int) core.Command {
	if strings.HasPrefix(uri, "spotify:track:") || strings.HasPrefix(uri, "spotify:episode:") {
		return core.Play([]string{uri}, "", &positionMS)
	}
	return core.Play(nil, uri, nil)
}
