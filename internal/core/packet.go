package core

import (
	"fmt"
	"time"
)

// PacketType tags the variant of a sync packet.
type PacketType string

const (
	PacketSync     PacketType = "sync"
	PacketRoomInit PacketType = "room_init"
)

// Packet captures host playback at a point in time. Packets are write-once.
type Packet struct {
	Type       PacketType `json:"type"`
	TrackURI   string     `json:"track_uri"`
	PositionMS int        `json:"position_ms"`
	Paused     bool       `json:"paused"`
	TS         int64      `json:"ts"`
}

// NewSyncPacket builds a sync packet from a host snapshot captured at now.
func NewSyncPacket(s *Snapshot, now time.Time) Packet {
	return Packet{
		Type:       PacketSync,
		TrackURI:   s.TrackURI(),
		PositionMS: s.ProgressMS,
		Paused:     !s.IsPlaying,
		TS:         now.UnixMilli(),
	}
}

// NewRoomInitPacket builds the packet announcing a freshly initialized room.
// A nil snapshot yields an empty, paused packet.
func NewRoomInitPacket(s *Snapshot, now time.Time) Packet {
	p := Packet{Type: PacketRoomInit, Paused: true, TS: now.UnixMilli()}
	if s != nil {
		p.TrackURI = s.TrackURI()
		p.PositionMS = s.ProgressMS
		p.Paused = !s.IsPlaying
	}
	return p
}

// Validate rejects packets that must not reach reconciliation.
func (p Packet) Validate() error {
	switch p.Type {
	case PacketSync:
		if p.TrackURI == "" {
			return fmt.Errorf("sync packet without track_uri")
		}
	case PacketRoomInit:
	default:
		return fmt.Errorf("unknown packet type %q", p.Type)
	}
	if p.PositionMS < 0 {
		return fmt.Errorf("negative position_ms %d", p.PositionMS)
	}
	if p.TS <= 0 {
		return fmt.Errorf("missing ts")
	}
	return nil
}

// CapturedAt returns the sender-side capture time.
func (p Packet) CapturedAt() time.Time {
	return time.UnixMilli(p.TS)
}
