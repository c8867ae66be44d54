package core

// CommandKind names a playback command against a principal's player.
type CommandKind string

const (
	CommandPlay  CommandKind = "play"
	CommandPause CommandKind = "pause"
	CommandSeek  CommandKind = "seek"
)

// Command is a play, pause or seek request. PositionMS is optional for play
// and required for seek.
type Command struct {
	Kind       CommandKind `json:"kind"`
	URIs       []string    `json:"uris,omitempty"`
	ContextURI string      `json:"context_uri,omitempty"`
	PositionMS *int        `json:"position_ms,omitempty"`
	DeviceID   string      `json:"device_id,omitempty"`
}

// Play returns a resume command, or a start command when uris or a context are given.
func Play(uris []string, contextURI string, positionMS *int) Command {
	return Command{Kind: CommandPlay, URIs: uris, ContextURI: contextURI, PositionMS: positionMS}
}

// Pause returns a pause command.
func Pause() Command {
	return Command{Kind: CommandPause}
}

// Seek returns a seek command.
func Seek(positionMS int) Command {
	return Command{Kind: CommandSeek, PositionMS: &positionMS}
}

// Result is the normalized outcome of a forwarded command.
type Result struct {
	OK   bool   `json:"ok"`
	Body []byte `json:"-"`
}
