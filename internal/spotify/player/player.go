package player

import (
	"context"
	"time"

	"github.com/x5uw/SyncRoom/internal/core"
	serrors "github.com/x5uw/SyncRoom/internal/errors"
	"github.com/x5uw/SyncRoom/internal/spotify/client"
)

// Fetcher reads playback state on behalf of whoever owns the token.
type Fetcher struct {
	client *client.Client
}

// NewFetcher creates a snapshot fetcher.
func NewFetcher(c *client.Client) *Fetcher {
	return &Fetcher{client: c}
}

// FetchCurrent returns the host's current playback. It returns nil, nil when
// nothing is playing; that is not an error.
func (f *Fetcher) FetchCurrent(ctx context.Context, accessToken string) (*core.Snapshot, error) {
	state, err := f.client.GetCurrentlyPlaying(ctx, accessToken)
	if err != nil {
		return nil, err
	}
	return convertSnapshot(state), nil
}

// FetchLocal returns a listener's own player state. It returns nil, nil when
// the listener has no active device.
func (f *Fetcher) FetchLocal(ctx context.Context, accessToken string) (*core.LocalState, error) {
	state, err := f.client.GetPlaybackState(ctx, accessToken)
	if err != nil {
		return nil, err
	}
	if state == nil || state.Device == nil {
		return nil, nil
	}

	local := &core.LocalState{
		DeviceID:   state.Device.ID,
		PositionMS: state.ProgressMS,
		Paused:     !state.IsPlaying,
	}
	if state.Item != nil {
		local.TrackURI = state.Item.URI
	}
	if state.Context != nil {
		local.ContextURI = state.Context.URI
	}
	return local, nil
}

// Forwarder relays play, pause and seek commands to the provider.
type Forwarder struct {
	client *client.Client
}

// NewForwarder creates a command forwarder.
func NewForwarder(c *client.Client) *Forwarder {
	return &Forwarder{client: c}
}

// Issue validates cmd and forwards it with the given bearer token. An
// accepted command with no response body yields Result{OK: true}.
func (f *Forwarder) Issue(ctx context.Context, cmd core.Command, accessToken string) (core.Result, error) {
	if err := validate(cmd); err != nil {
		return core.Result{}, err
	}

	var (
		resp *client.Response
		err  error
	)
	switch cmd.Kind {
	case core.CommandPlay:
		var opts *client.PlayOptions
		if len(cmd.URIs) > 0 || cmd.ContextURI != "" || cmd.PositionMS != nil {
			opts = &client.PlayOptions{
				URIs:       cmd.URIs,
				ContextURI: cmd.ContextURI,
				PositionMS: cmd.PositionMS,
			}
		}
		resp, err = f.client.Play(ctx, accessToken, cmd.DeviceID, opts)
	case core.CommandPause:
		resp, err = f.client.Pause(ctx, accessToken, cmd.DeviceID)
	case core.CommandSeek:
		resp, err = f.client.Seek(ctx, accessToken, *cmd.PositionMS, cmd.DeviceID)
	}
	if err != nil {
		return core.Result{}, err
	}

	if resp.Empty() {
		return core.Result{OK: true}, nil
	}
	return core.Result{OK: true, Body: resp.Body}, nil
}

func validate(cmd core.Command) error {
	switch cmd.Kind {
	case core.CommandPlay, core.CommandPause:
	case core.CommandSeek:
		if cmd.PositionMS == nil {
			return serrors.InvalidArgument("seek requires position_ms")
		}
	default:
		return serrors.InvalidArgument("unknown command %q", cmd.Kind)
	}
	if cmd.PositionMS != nil && *cmd.PositionMS < 0 {
		return serrors.InvalidArgument("position_ms must be >= 0, got %d", *cmd.PositionMS)
	}
	return nil
}

// convertSnapshot converts a currently-playing response to a core snapshot.
func convertSnapshot(state *client.PlaybackState) *core.Snapshot {
	if state == nil {
		return nil
	}

	snap := &core.Snapshot{
		IsPlaying:  state.IsPlaying,
		ProgressMS: state.ProgressMS,
	}
	if state.Item != nil {
		snap.ItemURI = state.Item.URI
		snap.Track = convertTrack(state.Item)
	}
	if state.Context != nil {
		snap.ContextURI = state.Context.URI
	}
	return snap
}

// convertTrack converts a Spotify track to a core track.
func convertTrack(t *client.Track) *core.Track {
	if t == nil {
		return nil
	}

	artist := ""
	if len(t.Artists) > 0 {
		artist = t.Artists[0].Name
	}

	return &core.Track{
		ID:       t.ID,
		URI:      t.URI,
		Title:    t.Name,
		Artist:   artist,
		Album:    t.Album.Name,
		Duration: time.Duration(t.DurationMS) * time.Millisecond,
	}
}
