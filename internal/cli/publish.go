package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/x5uw/SyncRoom/internal/core"
)

var (
	publishRoom      string
	publishPrincipal string
	publishQuiet     bool
)

var publishCmd = &cobra.Command{
	Use:   "publish",
	Short: "Publish the host's playback to a room",
	Long: `Run the room's publish loop in the foreground: every interval the host's
Spotify playback is read and broadcast as a sync packet until interrupted.

The principal must be the room's host ('syncroom room init'). Listeners in
other processes only receive packets over a shared broadcast driver
(redis, nats or postgres).`,
	RunE: runPublish,
}

func init() {
	publishCmd.Flags().StringVarP(&publishRoom, "room", "r", "", "room id")
	publishCmd.Flags().StringVarP(&publishPrincipal, "principal", "p", "", "host principal id (default: from 'credentials set')")
	publishCmd.Flags().BoolVarP(&publishQuiet, "quiet", "q", false, "do not print packets")
	_ = publishCmd.MarkFlagRequired("room")
	rootCmd.AddCommand(publishCmd)
}

func runPublish(cmd *cobra.Command, args []string) error {
	principal, err := principalOrDefault(publishPrincipal)
	if err != nil {
		return err
	}
	warnLocalMedium()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	deps, err := openDeps(ctx, nil)
	if err != nil {
		return err
	}
	defer deps.Close()

	if !publishQuiet {
		enc := json.NewEncoder(os.Stdout)
		unsub, err := deps.medium.Subscribe(ctx, publishRoom, func(p core.Packet) {
			if JSONOutput() {
				_ = enc.Encode(p)
				return
			}
			fmt.Println(describePacket(p))
		})
		if err != nil {
			return fmt.Errorf("failed to watch room: %w", err)
		}
		defer unsub()
	}

	if _, err := deps.manager.StartPublishing(ctx, publishRoom, principal); err != nil {
		return err
	}
	log.Infow("publishing", "room", publishRoom, "host", principal, "interval", cfg.Sync.Interval())

	<-ctx.Done()
	if _, err := deps.manager.StopPublishing(context.WithoutCancel(ctx), publishRoom, principal); err != nil {
		log.Debugw("stop publishing", "err", err)
	}
	return nil
}

func describePacket(p core.Packet) string {
	state := "▶"
	if p.Paused {
		state = "⏸"
	}
	return fmt.Sprintf("%s %s %s %s", p.CapturedAt().Format("15:04:05"), state,
		FormatDuration(p.PositionMS/1000), TruncateString(p.TrackURI, 60))
}

// warnLocalMedium notes that the memory driver does not cross processes.
func warnLocalMedium() {
	if cfg.Broadcast.Driver == "memory" || cfg.Broadcast.Driver == "" {
		log.Warnw("broadcast driver is memory; packets stay inside this process")
	}
}
