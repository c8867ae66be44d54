package client

import (
	"context"
)

// GetCurrentUser returns the profile of the token's owner.
func (c *Client) GetCurrentUser(ctx context.Context, token string) (*User, error) {
	var user User
	if _, err := c.Get(ctx, token, "/me", &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// GetPlaybackState returns the full playback state including the device.
// It returns nil when the user has no active device.
func (c *Client) GetPlaybackState(ctx context.Context, token string) (*PlaybackState, error) {
	return c.getState(ctx, token, "/me/player")
}

// GetCurrentlyPlaying returns what the user is playing right now.
// It returns nil when nothing is playing.
func (c *Client) GetCurrentlyPlaying(ctx context.Context, token string) (*PlaybackState, error) {
	return c.getState(ctx, token, "/me/player/currently-playing")
}

func (c *Client) getState(ctx context.Context, token, path string) (*PlaybackState, error) {
	var state PlaybackState
	resp, err := c.Get(ctx, token, path, &state)
	if err != nil {
		return nil, err
	}
	if resp.Empty() {
		return nil, nil
	}
	return &state, nil
}
