// Package follow turns a listener's reconciliation outcomes into a stream of
// human-readable events.
package follow

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/x5uw/SyncRoom/internal/core"
	"github.com/x5uw/SyncRoom/internal/roomsync"
)

// EventType represents the kind of reconciliation event.
type EventType int

const (
	EventTrackChange EventType = iota
	EventSeek
	EventPause
	EventResume
	EventInSync
	EventNoPlayer
	EventError
)

// Event is one thing that happened while following a room.
type Event struct {
	Type        EventType
	Timestamp   time.Time
	RoomID      string
	PrincipalID string
	Outcome     roomsync.Outcome
	Err         error
}

// Watcher collects outcomes from a roomsync.Manager and emits events.
type Watcher struct {
	clock  clock.Clock
	events chan Event

	mu     sync.Mutex
	closed bool
}

// NewWatcher creates a watcher buffering up to size events. A nil clock uses
// wall time.
func NewWatcher(size int, clk clock.Clock) *Watcher {
	if size <= 0 {
		size = 16
	}
	if clk == nil {
		clk = clock.New()
	}
	return &Watcher{clock: clk, events: make(chan Event, size)}
}

// Events returns the channel of events. It is closed by Close.
func (w *Watcher) Events() <-chan Event {
	return w.events
}

// Observe has the shape of roomsync.Config.OnOutcome.
func (w *Watcher) Observe(roomID, principalID string, out roomsync.Outcome, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}

	for _, e := range Classify(out, err) {
		e.Timestamp = w.clock.Now()
		e.RoomID = roomID
		e.PrincipalID = principalID
		select {
		case w.events <- e:
		default:
			// Drop event if channel is full
		}
	}
}

// Close stops accepting outcomes and closes the event channel.
func (w *Watcher) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.closed {
		w.closed = true
		close(w.events)
	}
}

// Classify derives the events one reconciliation produced.
func Classify(out roomsync.Outcome, err error) []Event {
	if err != nil {
		return []Event{{Type: EventError, Outcome: out, Err: err}}
	}
	if out.Ignored {
		return []Event{{Type: EventNoPlayer, Outcome: out}}
	}
	if !out.Acted() {
		return []Event{{Type: EventInSync, Outcome: out}}
	}

	if out.TrackChanged {
		events := []Event{{Type: EventTrackChange, Outcome: out}}
		if out.Packet.Paused {
			events = append(events, Event{Type: EventPause, Outcome: out})
		}
		return events
	}

	var events []Event
	for _, cmd := range out.Commands {
		switch cmd.Kind {
		case core.CommandSeek:
			events = append(events, Event{Type: EventSeek, Outcome: out})
		case core.CommandPause:
			events = append(events, Event{Type: EventPause, Outcome: out})
		case core.CommandPlay:
			events = append(events, Event{Type: EventResume, Outcome: out})
		}
	}
	return events
}
