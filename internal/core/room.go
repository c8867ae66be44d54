package core

import "time"

const (
	// RoomExpiry is how long a room stays active after the last host action.
	RoomExpiry = 30 * time.Minute

	// DriftThreshold is the hysteresis band below which listeners do not seek.
	DriftThreshold = 750 * time.Millisecond

	// DefaultPublishInterval is the reference publish cadence.
	DefaultPublishInterval = time.Second
)

// Room is the persisted session state of a listening room.
type Room struct {
	ID                   string    `json:"room_id"`
	HostID               string    `json:"host_id"`
	ProviderToken        string    `json:"-"`
	ProviderRefreshToken string    `json:"-"`
	LastActiveAt         time.Time `json:"last_active_at"`
}

// IsHost reports whether principalID currently controls the room.
func (r *Room) IsHost(principalID string) bool {
	return r != nil && principalID != "" && r.HostID == principalID
}

// Credentials are a principal's stored provider tokens.
type Credentials struct {
	PrincipalID  string    `json:"principal_id"`
	AccessToken  string    `json:"access_token,omitempty"`
	RefreshToken string    `json:"refresh_token"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Listener identifies the principal whose device a subscriber steers.
type Listener struct {
	PrincipalID  string
	RefreshToken string
}
