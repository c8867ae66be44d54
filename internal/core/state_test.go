package core

import "testing"

func TestLocalStatePlaying(t *testing.T) {
	local := &LocalState{TrackURI: "spotify:track:a", ContextURI: "spotify:playlist:p"}

	tests := []struct {
		uri  string
		want bool
	}{
		{"spotify:track:a", true},
		{"spotify:playlist:p", true},
		{"spotify:track:b", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := local.Playing(tt.uri); got != tt.want {
			t.Errorf("Playing(%q) = %v, want %v", tt.uri, got, tt.want)
		}
	}

	var none *LocalState
	if none.Playing("spotify:track:a") {
		t.Error("nil state reports playing")
	}
}
