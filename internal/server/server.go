// Package server exposes rooms over HTTP.
package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	logging "github.com/ipfs/go-log/v2"

	"github.com/x5uw/SyncRoom/internal/broadcast"
	"github.com/x5uw/SyncRoom/internal/metrics"
	"github.com/x5uw/SyncRoom/internal/roomsync"
)

var log = logging.Logger("server")

// Server routes HTTP requests to a roomsync.Manager.
type Server struct {
	manager *roomsync.Manager
	medium  broadcast.Medium
	auth    *Authenticator
	router  chi.Router
}

// New creates a server. medium backs the packet stream and is usually the
// manager's own medium.
func New(manager *roomsync.Manager, medium broadcast.Medium, auth *Authenticator) *Server {
	s := &Server{manager: manager, medium: medium, auth: auth}
	s.router = s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLog)
	r.Use(s.auth.Middleware)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/spotify/player", func(r chi.Router) {
		r.Put("/play", s.handlePlay)
		r.Put("/pause", s.handlePause)
		r.Put("/seek", s.handleSeek)
	})

	r.Group(func(r chi.Router) {
		r.Use(RequirePrincipal)

		r.Put("/me/credentials", s.handlePutCredentials)

		r.Route("/room/{roomID}", func(r chi.Router) {
			r.Post("/init", s.handleInit)
			r.Post("/activity", s.handleActivity)
			r.Get("/host-playback", s.handleHostPlayback)
			r.Post("/sync", s.handleSync)

			r.Post("/publish", s.handleStartPublishing)
			r.Delete("/publish", s.handleStopPublishing)
			r.Post("/follow", s.handleStartFollowing)
			r.Delete("/follow", s.handleStopFollowing)

			r.Get("/stream", s.handleStream)
		})
	})

	return r
}

func requestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		log.Debugw("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"took", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()))
	})
}
