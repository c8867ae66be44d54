package core

import "time"

// Snapshot is the host's playback state as reported by the provider.
// It is fetched on demand and never persisted.
type Snapshot struct {
	IsPlaying  bool   `json:"is_playing"`
	ProgressMS int    `json:"progress_ms"`
	ItemURI    string `json:"item_uri,omitempty"`
	ContextURI string `json:"context_uri,omitempty"`
	Track      *Track `json:"track,omitempty"`
}

// TrackURI returns the canonical identifier of what is playing: the item when
// known, otherwise the surrounding context.
func (s *Snapshot) TrackURI() string {
	if s == nil {
		return ""
	}
	if s.ItemURI != "" {
		return s.ItemURI
	}
	return s.ContextURI
}

// HasTrack returns true if the snapshot identifies something to play.
func (s *Snapshot) HasTrack() bool {
	return s.TrackURI() != ""
}

// LocalState is a listener's own player state, read before reconciling.
type LocalState struct {
	DeviceID   string `json:"device_id"`
	TrackURI   string `json:"track_uri"`
	ContextURI string `json:"context_uri,omitempty"`
	PositionMS int    `json:"position_ms"`
	Paused     bool   `json:"paused"`
}

// Playing reports whether uri names the local item or its context.
func (s *LocalState) Playing(uri string) bool {
	if s == nil || uri == "" {
		return false
	}
	return uri == s.TrackURI || uri == s.ContextURI
}

// Progress returns the local position as a duration.
func (s *LocalState) Progress() time.Duration {
	if s == nil {
		return 0
	}
	return time.Duration(s.PositionMS) * time.Millisecond
}
