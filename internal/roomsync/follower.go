package roomsync

import (
	"context"
	"fmt"

	"github.com/mitchellh/hashstructure/v2"

	"github.com/x5uw/SyncRoom/internal/broadcast"
	"github.com/x5uw/SyncRoom/internal/core"
	"github.com/x5uw/SyncRoom/internal/liveness"
	"github.com/x5uw/SyncRoom/internal/metrics"
)

// OutcomeFunc observes each reconciliation a follower performs.
type OutcomeFunc func(Outcome, error)

// Follower subscribes one listener to one room and reconciles every packet.
// Reconciliations for the listener run one at a time; while one is in flight
// only the newest pending packet is kept. Packets for an expired room are
// dropped without touching the listener's tokens.
type Follower struct {
	roomID     string
	listener   core.Listener
	guard      *liveness.Guard
	reconciler *Reconciler
	medium     broadcast.Medium
	onOutcome  OutcomeFunc

	pending  chan core.Packet
	lastHash uint64
}

// NewFollower creates a follower. onOutcome may be nil.
func NewFollower(roomID string, listener core.Listener, guard *liveness.Guard, reconciler *Reconciler, medium broadcast.Medium, onOutcome OutcomeFunc) *Follower {
	return &Follower{
		roomID:     roomID,
		listener:   listener,
		guard:      guard,
		reconciler: reconciler,
		medium:     medium,
		onOutcome:  onOutcome,
		pending:    make(chan core.Packet, 1),
	}
}

// Start subscribes to the room. ctx bounds the subscription only; the loop
// runs until the handle is stopped, which also unsubscribes.
func (f *Follower) Start(ctx context.Context) (*Handle, error) {
	unsubscribe, err := f.medium.Subscribe(ctx, f.roomID, f.offer)
	if err != nil {
		return nil, fmt.Errorf("subscribe to room %s: %w", f.roomID, err)
	}

	ctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	h := newHandle(cancel, unsubscribe)

	go func() {
		defer close(h.done)
		defer unsubscribe()

		metrics.ActiveLoops.WithLabelValues("follower").Inc()
		defer metrics.ActiveLoops.WithLabelValues("follower").Dec()

		log.Infow("following", "room", f.roomID, "listener", f.listener.PrincipalID)
		defer log.Infow("stopped following", "room", f.roomID, "listener", f.listener.PrincipalID)

		for {
			select {
			case <-ctx.Done():
				return
			case p := <-f.pending:
				f.apply(ctx, p)
			}
		}
	}()

	return h, nil
}

// offer queues p, replacing any packet still waiting.
func (f *Follower) offer(p core.Packet) {
	for {
		select {
		case f.pending <- p:
			return
		default:
		}
		select {
		case old := <-f.pending:
			log.Debugw("superseded packet", "room", f.roomID, "ts", old.TS)
			metrics.PacketsDropped.WithLabelValues("superseded").Inc()
		default:
		}
	}
}

func (f *Follower) apply(ctx context.Context, p core.Packet) {
	hash, hashErr := hashstructure.Hash(p, hashstructure.FormatV2, nil)
	if hashErr == nil && hash == f.lastHash {
		log.Debugw("duplicate packet", "room", f.roomID, "ts", p.TS)
		metrics.PacketsDropped.WithLabelValues("duplicate").Inc()
		return
	}

	if _, err := f.guard.Check(ctx, f.roomID); err != nil {
		if ctx.Err() != nil {
			return
		}
		log.Infow("skipping packet", "room", f.roomID, "listener", f.listener.PrincipalID, "err", err)
		metrics.PacketsDropped.WithLabelValues("room_inactive").Inc()
		if f.onOutcome != nil {
			f.onOutcome(Outcome{Packet: p}, err)
		}
		return
	}

	out, err := f.reconciler.ApplySync(ctx, f.listener, p)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		metrics.ReconcileErrors.Inc()
		log.Warnw("reconcile failed", "room", f.roomID, "listener", f.listener.PrincipalID, "err", err)
	} else {
		if hashErr == nil {
			f.lastHash = hash
		}
		if out.Ignored {
			metrics.PacketsDropped.WithLabelValues("no_player").Inc()
		}
	}

	if f.onOutcome != nil {
		f.onOutcome(out, err)
	}
}
