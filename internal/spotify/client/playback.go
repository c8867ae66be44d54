package client

import (
	"context"
	"strconv"
)

// PlayOptions configures a play request.
type PlayOptions struct {
	ContextURI string   `json:"context_uri,omitempty"`
	URIs       []string `json:"uris,omitempty"`
	PositionMS *int     `json:"position_ms,omitempty"`
}

// Play starts or resumes playback.
// If opts is nil, resumes current playback.
// If deviceID is empty, uses the currently active device.
func (c *Client) Play(ctx context.Context, token, deviceID string, opts *PlayOptions) (*Response, error) {
	path := "/me/player/play"
	if deviceID != "" {
		path = BuildURL(path, map[string]string{"device_id": deviceID})
	}
	// Spotify requires a JSON body even for resume
	body := opts
	if body == nil {
		body = &PlayOptions{}
	}
	return c.Put(ctx, token, path, body, nil)
}

// Pause pauses playback.
func (c *Client) Pause(ctx context.Context, token, deviceID string) (*Response, error) {
	path := "/me/player/pause"
	if deviceID != "" {
		path = BuildURL(path, map[string]string{"device_id": deviceID})
	}
	return c.Put(ctx, token, path, nil, nil)
}

// Seek seeks to a position in the current track.
func (c *Client) Seek(ctx context.Context, token string, positionMs int, deviceID string) (*Response, error) {
	params := map[string]string{
		"position_ms": strconv.Itoa(positionMs),
	}
	if deviceID != "" {
		params["device_id"] = deviceID
	}
	return c.Put(ctx, token, BuildURL("/me/player/seek", params), nil, nil)
}
