package follow

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
)

var (
	spotifyGreen = lipgloss.Color("#1DB954")
	warning      = lipgloss.Color("#F59E0B")
	danger       = lipgloss.Color("#EF4444")
	info         = lipgloss.Color("#3B82F6")
	textDim      = lipgloss.Color("#6B7280")

	playingStyle = lipgloss.NewStyle().Foreground(spotifyGreen)
	pausedStyle  = lipgloss.NewStyle().Foreground(warning)
	errorStyle   = lipgloss.NewStyle().Bold(true).Foreground(danger)
	seekStyle    = lipgloss.NewStyle().Foreground(info)
	dimStyle     = lipgloss.NewStyle().Foreground(textDim)
)

// Formatter formats events for output.
type Formatter struct {
	showEmoji     bool
	showTimestamp bool
	color         bool
	quiet         bool
	template      *template.Template
}

// FormatterOption configures a Formatter.
type FormatterOption func(*Formatter)

// WithEmoji enables emoji output.
func WithEmoji(enabled bool) FormatterOption {
	return func(f *Formatter) {
		f.showEmoji = enabled
	}
}

// WithTimestamp enables timestamp output.
func WithTimestamp(enabled bool) FormatterOption {
	return func(f *Formatter) {
		f.showTimestamp = enabled
	}
}

// WithColor styles lines with lipgloss.
func WithColor(enabled bool) FormatterOption {
	return func(f *Formatter) {
		f.color = enabled
	}
}

// WithQuiet suppresses in-sync and no-player events.
func WithQuiet(enabled bool) FormatterOption {
	return func(f *Formatter) {
		f.quiet = enabled
	}
}

// WithTemplate sets a custom format template.
func WithTemplate(tmpl string) FormatterOption {
	return func(f *Formatter) {
		if tmpl != "" {
			t, err := template.New("format").Parse(tmpl)
			if err == nil {
				f.template = t
			}
		}
	}
}

// NewFormatter creates a new formatter with the given options.
func NewFormatter(opts ...FormatterOption) *Formatter {
	f := &Formatter{
		showEmoji:     true,
		showTimestamp: false,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Format formats an event as a string. It returns "" for events the
// formatter is configured to hide.
func (f *Formatter) Format(e Event) string {
	if f.quiet && (e.Type == EventInSync || e.Type == EventNoPlayer) {
		return ""
	}
	if f.template != nil {
		return f.formatTemplate(e)
	}
	return f.formatLine(e)
}

// formatLine formats an event as a simple line.
func (f *Formatter) formatLine(e Event) string {
	var parts []string

	if f.showTimestamp {
		parts = append(parts, e.Timestamp.Format("15:04:05"))
	}

	if f.showEmoji {
		parts = append(parts, eventEmoji(e.Type))
	}

	parts = append(parts, f.style(e.Type).Render(eventDescription(e)))

	return strings.Join(parts, " ")
}

func (f *Formatter) style(t EventType) lipgloss.Style {
	if !f.color {
		return lipgloss.NewStyle()
	}
	switch t {
	case EventTrackChange, EventResume:
		return playingStyle
	case EventPause:
		return pausedStyle
	case EventSeek:
		return seekStyle
	case EventError:
		return errorStyle
	default:
		return dimStyle
	}
}

// formatTemplate formats an event using a custom template.
func (f *Formatter) formatTemplate(e Event) string {
	data := templateData{
		Type:       eventTypeName(e.Type),
		Emoji:      eventEmoji(e.Type),
		Timestamp:  e.Timestamp,
		Time:       e.Timestamp.Format("15:04:05"),
		Room:       e.RoomID,
		Track:      e.Outcome.Packet.TrackURI,
		PositionMS: e.Outcome.Expected,
		DriftMS:    e.Outcome.Drift.Milliseconds(),
		LatencyMS:  e.Outcome.Latency.Milliseconds(),
	}
	if e.Err != nil {
		data.Error = e.Err.Error()
	}

	var buf bytes.Buffer
	if err := f.template.Execute(&buf, data); err != nil {
		return f.formatLine(e)
	}
	return buf.String()
}

type templateData struct {
	Type       string
	Emoji      string
	Timestamp  time.Time
	Time       string
	Room       string
	Track      string
	PositionMS int
	DriftMS    int64
	LatencyMS  int64
	Error      string
}

// eventDescription returns a human-readable description of the event.
func eventDescription(e Event) string {
	out := e.Outcome
	switch e.Type {
	case EventTrackChange:
		return fmt.Sprintf("Now playing: %s at %s", out.Packet.TrackURI, position(out.Expected))

	case EventSeek:
		return fmt.Sprintf("Seeked to %s (drift %s)", position(out.Expected), driftString(out.Drift))

	case EventPause:
		return "Paused with host"

	case EventResume:
		return "Resumed with host"

	case EventInSync:
		return fmt.Sprintf("In sync (drift %s, latency %s)", driftString(out.Drift), driftString(out.Latency))

	case EventNoPlayer:
		return "No active player, open Spotify on a device"

	case EventError:
		return fmt.Sprintf("Sync failed: %v", e.Err)

	default:
		return "Unknown event"
	}
}

// position renders milliseconds as m:ss.
func position(ms int) string {
	if ms < 0 {
		ms = 0
	}
	s := ms / 1000
	return fmt.Sprintf("%d:%02d", s/60, s%60)
}

func driftString(d time.Duration) string {
	return humanize.Comma(d.Milliseconds()) + "ms"
}

// eventEmoji returns an emoji for the event type.
func eventEmoji(t EventType) string {
	switch t {
	case EventTrackChange:
		return "🎵"
	case EventSeek:
		return "⏩"
	case EventPause:
		return "⏸️"
	case EventResume:
		return "▶️"
	case EventInSync:
		return "✅"
	case EventNoPlayer:
		return "📱"
	case EventError:
		return "⚠️"
	default:
		return "❓"
	}
}

// eventTypeName returns the name of the event type.
func eventTypeName(t EventType) string {
	switch t {
	case EventTrackChange:
		return "track_change"
	case EventSeek:
		return "seek"
	case EventPause:
		return "pause"
	case EventResume:
		return "resume"
	case EventInSync:
		return "in_sync"
	case EventNoPlayer:
		return "no_player"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}
