package roomsync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/x5uw/SyncRoom/internal/broadcast"
	"github.com/x5uw/SyncRoom/internal/core"
	serrors "github.com/x5uw/SyncRoom/internal/errors"
	"github.com/x5uw/SyncRoom/internal/liveness"
	"github.com/x5uw/SyncRoom/internal/metrics"
)

// ErrCycleInFlight is returned when a cycle is requested while another one
// for the same room is still running.
var ErrCycleInFlight = errors.New("publish cycle already in flight")

// Publisher samples one room's host playback and broadcasts sync packets.
type Publisher struct {
	roomID   string
	guard    *liveness.Guard
	broker   TokenBroker
	fetcher  SnapshotFetcher
	medium   broadcast.Medium
	clock    clock.Clock
	interval time.Duration

	// cycle is held for the whole of a cycle so two never overlap.
	cycle sync.Mutex
}

// PublisherOption configures a Publisher.
type PublisherOption func(*Publisher)

// WithInterval sets the publish cadence.
func WithInterval(d time.Duration) PublisherOption {
	return func(p *Publisher) {
		if d > 0 {
			p.interval = d
		}
	}
}

// WithPublisherClock sets the clock used for ticks and packet timestamps.
func WithPublisherClock(c clock.Clock) PublisherOption {
	return func(p *Publisher) {
		if c != nil {
			p.clock = c
		}
	}
}

// NewPublisher creates a publisher for roomID.
func NewPublisher(roomID string, guard *liveness.Guard, broker TokenBroker, fetcher SnapshotFetcher, medium broadcast.Medium, opts ...PublisherOption) *Publisher {
	p := &Publisher{
		roomID:   roomID,
		guard:    guard,
		broker:   broker,
		fetcher:  fetcher,
		medium:   medium,
		clock:    clock.New(),
		interval: core.DefaultPublishInterval,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// RoomID returns the room this publisher serves.
func (p *Publisher) RoomID() string {
	return p.roomID
}

// Cycle runs one capture-and-publish pass. It returns the published packet,
// or nil when there was nothing to publish. An expired room fails with
// errors.ErrRoomExpired before any token or provider call.
func (p *Publisher) Cycle(ctx context.Context) (*core.Packet, error) {
	if !p.cycle.TryLock() {
		return nil, ErrCycleInFlight
	}
	defer p.cycle.Unlock()

	room, err := p.guard.Check(ctx, p.roomID)
	if err != nil {
		return nil, err
	}

	token, err := p.broker.Refresh(ctx, room.ProviderRefreshToken)
	if err != nil {
		return nil, fmt.Errorf("refresh host token: %w", err)
	}

	snap, err := p.fetcher.FetchCurrent(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("fetch host playback: %w", err)
	}
	if !snap.HasTrack() {
		return nil, nil
	}

	packet := core.NewSyncPacket(snap, p.clock.Now())
	if err := p.medium.Publish(ctx, p.roomID, packet); err != nil {
		return nil, fmt.Errorf("publish: %w", err)
	}
	return &packet, nil
}

// Start runs Cycle on every tick until the handle is stopped or ctx ends.
// A failing cycle is logged and the loop carries on.
func (p *Publisher) Start(ctx context.Context) *Handle {
	ctx, cancel := context.WithCancel(ctx)
	h := newHandle(cancel, nil)

	// Created before the goroutine so the first interval is never missed.
	ticker := p.clock.Ticker(p.interval)

	go func() {
		defer close(h.done)
		defer ticker.Stop()

		metrics.ActiveLoops.WithLabelValues("publisher").Inc()
		defer metrics.ActiveLoops.WithLabelValues("publisher").Dec()

		log.Infow("publishing", "room", p.roomID, "interval", p.interval)
		defer log.Infow("stopped publishing", "room", p.roomID)

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				p.runCycle(ctx)
			}
		}
	}()

	return h
}

func (p *Publisher) runCycle(ctx context.Context) {
	start := p.clock.Now()
	packet, err := p.Cycle(ctx)
	took := p.clock.Since(start)

	switch {
	case err == nil && packet != nil:
		metrics.ObserveCycle(metrics.CyclePublished, took)
		log.Debugw("published", "room", p.roomID, "track", packet.TrackURI, "position_ms", packet.PositionMS, "paused", packet.Paused)
	case err == nil:
		metrics.ObserveCycle(metrics.CycleIdle, took)
	case errors.Is(err, serrors.ErrRoomExpired):
		metrics.ObserveCycle(metrics.CycleExpired, took)
		log.Debugw("room expired, skipping cycle", "room", p.roomID)
	case errors.Is(err, ErrCycleInFlight):
		metrics.ObserveCycle(metrics.CycleSkipped, took)
	case ctx.Err() != nil:
	default:
		metrics.ObserveCycle(metrics.CycleFailed, took)
		log.Warnw("publish cycle failed", "room", p.roomID, "err", err)
	}
}
