package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	gfshutdown "github.com/gelmium/graceful-shutdown"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/x5uw/SyncRoom/internal/broadcast"
	serrors "github.com/x5uw/SyncRoom/internal/errors"
	"github.com/x5uw/SyncRoom/internal/server"
)

var (
	serveAddr      string
	serveRetention time.Duration
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the SyncRoom HTTP server",
	Long: `Serve the room API: room init and activity, host playback, one-shot sync,
player pass-through, server-side publish and follow loops, and a WebSocket
packet stream per room.

Requests authenticate with an HS256 bearer token whose subject is the
principal id (server.jwt_secret).`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default: server.addr)")
	serveCmd.Flags().DurationVar(&serveRetention, "retention", time.Hour, "how long the postgres medium keeps logged packets (0 keeps them forever)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	if cfg.Server.JWTSecret == "" {
		return serrors.WithSuggestion(
			fmt.Errorf("%w: server.jwt_secret is not set", serrors.ErrInvalidConfig),
			"Set server.jwt_secret or SYNCROOM_SERVER_JWT_SECRET to your auth provider's JWT secret")
	}
	addr := cfg.Server.Addr
	if serveAddr != "" {
		addr = serveAddr
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	deps, err := openDeps(ctx, nil)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           server.New(deps.manager, deps.medium, server.NewAuthenticator(cfg.Server.JWTSecret)),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Infow("listening", "addr", addr, "store", cfg.Store.Driver, "broadcast", cfg.Broadcast.Driver)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	if pg, ok := deps.medium.(*broadcast.Postgres); ok && serveRetention > 0 {
		g.Go(func() error {
			pruneLoop(gctx, pg, serveRetention)
			return nil
		})
	}

	shutdown := func(ctx context.Context) error {
		err := srv.Shutdown(ctx)
		cancel()
		deps.Close()
		return err
	}

	wait := gfshutdown.GracefulShutdown(ctx, cfg.Server.ShutdownGrace(), map[string]gfshutdown.Operation{
		"server": shutdown,
	})

	errc := make(chan error, 1)
	go func() { errc <- g.Wait() }()

	select {
	case code := <-wait:
		<-errc
		if code != 0 {
			return fmt.Errorf("shutdown finished with exit code %d", code)
		}
		return nil
	case err := <-errc:
		sctx, scancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownGrace())
		defer scancel()
		_ = shutdown(sctx)
		return err
	}
}

// pruneLoop trims the rooms_sync log so it holds roughly one retention window.
func pruneLoop(ctx context.Context, pg *broadcast.Postgres, retention time.Duration) {
	ticker := time.NewTicker(retention / 4)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := pg.Prune(ctx, time.Now().Add(-retention))
			if err != nil {
				log.Warnw("prune rooms_sync", "err", err)
				continue
			}
			if n > 0 {
				log.Debugw("pruned rooms_sync", "rows", n)
			}
		}
	}
}
