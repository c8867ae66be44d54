package errors

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Error types for the sync protocol's failure scenarios.
var (
	ErrUpstreamAuth     = errors.New("provider rejected refresh token")
	ErrUpstreamPlayback = errors.New("provider playback request failed")
	ErrForbidden        = errors.New("caller is not the room host")
	ErrRoomExpired      = errors.New("room expired due to inactivity")
	ErrRoomNotFound     = errors.New("room not found")
	ErrInvalidArgument  = errors.New("invalid argument")
	ErrNotAuthenticated = errors.New("not authenticated")
	ErrNoCredentials    = errors.New("no provider credentials stored")
	ErrHostNotPlaying   = errors.New("host is not playing")
	ErrMalformedPacket  = errors.New("malformed sync packet")
	ErrInvalidConfig    = errors.New("invalid configuration")
)

// UpstreamError carries the status and body of a failed provider call.
type UpstreamError struct {
	Kind   error
	Status int
	Body   string
}

func (e *UpstreamError) Error() string {
	body := strings.TrimSpace(e.Body)
	if body == "" {
		return fmt.Sprintf("%s: status %d", e.Kind, e.Status)
	}
	return fmt.Sprintf("%s: status %d: %s", e.Kind, e.Status, body)
}

func (e *UpstreamError) Unwrap() error {
	return e.Kind
}

// Upstream builds an UpstreamError of the given kind.
func Upstream(kind error, status int, body string) error {
	return &UpstreamError{Kind: kind, Status: status, Body: body}
}

// InvalidArgument wraps ErrInvalidArgument with a description of the bad input.
func InvalidArgument(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}

// SyncError wraps an error with a user-friendly suggestion.
type SyncError struct {
	Err        error
	Suggestion string
}

func (e *SyncError) Error() string {
	return e.Err.Error()
}

func (e *SyncError) Unwrap() error {
	return e.Err
}

// WithSuggestion wraps an error with a helpful suggestion.
func WithSuggestion(err error, suggestion string) error {
	return &SyncError{
		Err:        err,
		Suggestion: suggestion,
	}
}

// GetSuggestion returns an actionable suggestion for the given error.
func GetSuggestion(err error) string {
	if err == nil {
		return ""
	}

	var syncErr *SyncError
	if errors.As(err, &syncErr) && syncErr.Suggestion != "" {
		return syncErr.Suggestion
	}

	switch {
	case errors.Is(err, ErrRoomExpired):
		return "The room went quiet for 30 minutes. The host needs to press play or re-host the room"
	case errors.Is(err, ErrUpstreamAuth), errors.Is(err, ErrNoCredentials):
		return "Log in to Spotify again to refresh your credentials"
	case errors.Is(err, ErrNotAuthenticated):
		return "Sign in before joining or hosting a room"
	case errors.Is(err, ErrForbidden):
		return "Only the room host can do that"
	case errors.Is(err, ErrHostNotPlaying):
		return "Wait for the host to start playback"
	case errors.Is(err, ErrRoomNotFound):
		return "Check the room link or code"
	}

	var upErr *UpstreamError
	if errors.As(err, &upErr) {
		switch {
		case upErr.Status == http.StatusNotFound:
			return "Open Spotify on a device and start playing"
		case upErr.Status == http.StatusForbidden:
			return "This feature requires Spotify Premium"
		case upErr.Status == http.StatusTooManyRequests:
			return "Too many requests. Wait a moment and try again"
		case upErr.Status >= 500:
			return "Spotify is having issues. Try again in a moment"
		}
	}

	return ""
}

// Format returns a formatted error message with suggestion if available.
func Format(err error) string {
	if err == nil {
		return ""
	}

	suggestion := GetSuggestion(err)
	if suggestion != "" {
		return fmt.Sprintf("Error: %s\n\nSuggestion: %s", err.Error(), suggestion)
	}

	return fmt.Sprintf("Error: %s", err.Error())
}

// HTTPStatus maps an error onto the status code returned to clients.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrInvalidArgument), errors.Is(err, ErrMalformedPacket):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotAuthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrRoomNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrNoCredentials), errors.Is(err, ErrHostNotPlaying):
		return http.StatusConflict
	case errors.Is(err, ErrRoomExpired):
		return http.StatusGone
	case errors.Is(err, ErrUpstreamAuth), errors.Is(err, ErrUpstreamPlayback):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Is, As and Join re-export the standard helpers so callers need one import.
var (
	Is   = errors.Is
	As   = errors.As
	Join = errors.Join
	New  = errors.New
)
