package client

// User represents a Spotify user profile.
type User struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Country     string `json:"country"`
	Product     string `json:"product"`
	URI         string `json:"uri"`
}

// Device represents a Spotify playback device.
type Device struct {
	ID               string `json:"id"`
	Name             string `json:"name"`
	Type             string `json:"type"`
	IsActive         bool   `json:"is_active"`
	IsRestricted     bool   `json:"is_restricted"`
	IsPrivateSession bool   `json:"is_private_session"`
	VolumePercent    *int   `json:"volume_percent"` // Nullable
}

// PlaybackState is the body of GET /me/player and GET /me/player/currently-playing.
// The currently-playing variant omits Device.
type PlaybackState struct {
	Device               *Device  `json:"device"`
	Timestamp            int64    `json:"timestamp"`
	ProgressMS           int      `json:"progress_ms"`
	IsPlaying            bool     `json:"is_playing"`
	Item                 *Track   `json:"item"`
	CurrentlyPlayingType string   `json:"currently_playing_type"` // track, episode, ad, unknown
	Context              *Context `json:"context"`
}

// Track represents a Spotify track.
type Track struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	URI        string   `json:"uri"`
	DurationMS int      `json:"duration_ms"`
	Artists    []Artist `json:"artists"`
	Album      Album    `json:"album"`
}

// Artist represents a Spotify artist.
type Artist struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	URI  string `json:"uri"`
}

// Album represents a Spotify album.
type Album struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	URI  string `json:"uri"`
}

// Context represents a playback context (album, artist, playlist).
type Context struct {
	Type string `json:"type"`
	URI  string `json:"uri"`
}
