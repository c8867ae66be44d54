package server

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/x5uw/SyncRoom/internal/core"
)

type credentialsRequest struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

func (s *Server) handlePutCredentials(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	err := s.manager.SaveCredentials(r.Context(), core.Credentials{
		PrincipalID:  Principal(r.Context()),
		AccessToken:  req.AccessToken,
		RefreshToken: req.RefreshToken,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleInit(w http.ResponseWriter, r *http.Request) {
	packet, err := s.manager.InitRoom(r.Context(), chi.URLParam(r, "roomID"), Principal(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"packet": packet})
}

func (s *Server) handleActivity(w http.ResponseWriter, r *http.Request) {
	if err := s.manager.Touch(r.Context(), chi.URLParam(r, "roomID"), Principal(r.Context())); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleHostPlayback(w http.ResponseWriter, r *http.Request) {
	snap, err := s.manager.HostPlayback(r.Context(), chi.URLParam(r, "roomID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"playback": snap})
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	res, err := s.manager.SyncNow(r.Context(), chi.URLParam(r, "roomID"), Principal(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeResult(w, res)
}

func (s *Server) handleStartPublishing(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "roomID")
	started, err := s.manager.StartPublishing(r.Context(), roomID, Principal(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"publishing": true, "started": started})
}

func (s *Server) handleStopPublishing(w http.ResponseWriter, r *http.Request) {
	stopped, err := s.manager.StopPublishing(r.Context(), chi.URLParam(r, "roomID"), Principal(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"publishing": false, "stopped": stopped})
}

func (s *Server) handleStartFollowing(w http.ResponseWriter, r *http.Request) {
	started, err := s.manager.StartFollowing(r.Context(), chi.URLParam(r, "roomID"), Principal(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"following": true, "started": started})
}

func (s *Server) handleStopFollowing(w http.ResponseWriter, r *http.Request) {
	stopped := s.manager.StopFollowing(chi.URLParam(r, "roomID"), Principal(r.Context()))
	writeJSON(w, http.StatusOK, map[string]bool{"following": false, "stopped": stopped})
}

type playRequest struct {
	URIs       []string `json:"uris,omitempty"`
	ContextURI string   `json:"context_uri,omitempty"`
	PositionMS *int     `json:"position_ms,omitempty"`
	DeviceID   string   `json:"device_id,omitempty"`
}

func (s *Server) handlePlay(w http.ResponseWriter, r *http.Request) {
	var req playRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	cmd := core.Play(req.URIs, req.ContextURI, req.PositionMS)
	cmd.DeviceID = req.DeviceID
	s.forward(w, r, cmd)
}

type deviceRequest struct {
	DeviceID string `json:"device_id,omitempty"`
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	var req deviceRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	cmd := core.Pause()
	cmd.DeviceID = req.DeviceID
	s.forward(w, r, cmd)
}

type seekRequest struct {
	PositionMS *int   `json:"position_ms"`
	DeviceID   string `json:"device_id,omitempty"`
}

func (s *Server) handleSeek(w http.ResponseWriter, r *http.Request) {
	var req seekRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	cmd := core.Command{Kind: core.CommandSeek, PositionMS: req.PositionMS, DeviceID: req.DeviceID}
	s.forward(w, r, cmd)
}

func (s *Server) forward(w http.ResponseWriter, r *http.Request, cmd core.Command) {
	ctx := r.Context()
	res, err := s.manager.Command(ctx, Principal(ctx), ProviderBearer(ctx), cmd)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeResult(w, res)
}

// writeResult answers {"ok":true} for empty provider successes and passes a
// JSON body through otherwise.
func writeResult(w http.ResponseWriter, res core.Result) {
	if len(res.Body) > 0 && json.Valid(res.Body) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(res.Body)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": res.OK})
}
