package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/x5uw/SyncRoom/internal/follow"
)

var (
	listenRoom      string
	listenPrincipal string
	listenNoEmoji   bool
	listenTimestamp bool
	listenFormat    string
	listenQuiet     bool
	listenNoColor   bool
)

var listenCmd = &cobra.Command{
	Use:   "listen",
	Short: "Follow a room on your own device",
	Long: `Subscribe to a room's sync packets and keep your Spotify device aligned with
the host: track changes, seeks beyond 750ms of drift, pauses and resumes.
Each correction is printed as it happens.

Format template variables:
  {{.Type}}        Event type (track_change, seek, pause, resume, in_sync, no_player, error)
  {{.Emoji}}       Event emoji
  {{.Room}}        Room id
  {{.Track}}       Track URI from the packet
  {{.PositionMS}}  Expected position in milliseconds
  {{.DriftMS}}     Drift in milliseconds
  {{.LatencyMS}}   Packet latency in milliseconds
  {{.Error}}       Error text
  {{.Time}}        Timestamp (HH:MM:SS)

Examples:
  syncroom listen --room lobby
  syncroom listen --room lobby --timestamp --quiet
  syncroom listen --room lobby --format "{{.Time}} {{.Type}} {{.DriftMS}}"`,
	RunE: runListen,
}

func init() {
	listenCmd.Flags().StringVarP(&listenRoom, "room", "r", "", "room id")
	listenCmd.Flags().StringVarP(&listenPrincipal, "principal", "p", "", "listener principal id (default: from 'credentials set')")
	listenCmd.Flags().BoolVar(&listenNoEmoji, "no-emoji", false, "disable emoji in output")
	listenCmd.Flags().BoolVarP(&listenTimestamp, "timestamp", "t", false, "show timestamps")
	listenCmd.Flags().StringVarP(&listenFormat, "format", "f", "", "custom output format (Go template)")
	listenCmd.Flags().BoolVarP(&listenQuiet, "quiet", "q", false, "hide in-sync and no-player events")
	listenCmd.Flags().BoolVar(&listenNoColor, "no-color", false, "disable colored output")
	_ = listenCmd.MarkFlagRequired("room")
	rootCmd.AddCommand(listenCmd)
}

func runListen(cmd *cobra.Command, args []string) error {
	principal, err := principalOrDefault(listenPrincipal)
	if err != nil {
		return err
	}
	warnLocalMedium()

	color := !listenNoColor && isatty.IsTerminal(os.Stdout.Fd())
	formatter := follow.NewFormatter(
		follow.WithEmoji(!listenNoEmoji),
		follow.WithTimestamp(listenTimestamp),
		follow.WithColor(color),
		follow.WithQuiet(listenQuiet),
		follow.WithTemplate(listenFormat),
	)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	watcher := follow.NewWatcher(64, nil)
	defer watcher.Close()

	deps, err := openDeps(ctx, watcher.Observe)
	if err != nil {
		return err
	}
	defer deps.Close()

	if _, err := deps.manager.StartFollowing(ctx, listenRoom, principal); err != nil {
		return err
	}
	log.Infow("following", "room", listenRoom, "listener", principal)
	if !JSONOutput() {
		fmt.Printf("Following %s. Press Ctrl+C to stop.\n", listenRoom)
	}

	for {
		select {
		case <-ctx.Done():
			deps.manager.StopFollowing(listenRoom, principal)
			return nil
		case event, ok := <-watcher.Events():
			if !ok {
				return nil
			}
			if line := formatter.Format(event); line != "" {
				fmt.Println(line)
			}
		}
	}
}
