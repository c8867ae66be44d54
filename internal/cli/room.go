package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/x5uw/SyncRoom/internal/broadcast"
	"github.com/x5uw/SyncRoom/internal/core"
)

var roomPrincipal string

var roomCmd = &cobra.Command{
	Use:   "room",
	Short: "Inspect and control rooms",
}

var roomStatusCmd = &cobra.Command{
	Use:   "status <room-id>",
	Short: "Show a room's host and liveness",
	Args:  cobra.ExactArgs(1),
	RunE:  runRoomStatus,
}

var roomInitCmd = &cobra.Command{
	Use:   "init <room-id>",
	Short: "Become the host of a room",
	Long: `Make the principal the room's host using their stored Spotify credentials,
and announce the room with a room_init packet.`,
	Args: cobra.ExactArgs(1),
	RunE: runRoomInit,
}

var roomTouchCmd = &cobra.Command{
	Use:   "touch <room-id>",
	Short: "Record host activity so the room does not expire",
	Args:  cobra.ExactArgs(1),
	RunE:  runRoomTouch,
}

func init() {
	for _, c := range []*cobra.Command{roomInitCmd, roomTouchCmd} {
		c.Flags().StringVarP(&roomPrincipal, "principal", "p", "", "principal id (default: from 'credentials set')")
	}
	roomCmd.AddCommand(roomStatusCmd)
	roomCmd.AddCommand(roomInitCmd)
	roomCmd.AddCommand(roomTouchCmd)
	rootCmd.AddCommand(roomCmd)
}

type roomStatus struct {
	Room    *core.Room   `json:"room"`
	Expired bool         `json:"expired"`
	Latest  *core.Packet `json:"latest,omitempty"`
}

func runRoomStatus(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
	defer cancel()

	deps, err := openDeps(ctx, nil)
	if err != nil {
		return err
	}
	defer deps.Close()

	room, err := deps.store.GetRoom(ctx, args[0])
	if err != nil {
		return err
	}
	status := roomStatus{Room: room, Expired: deps.manager.Guard().IsExpired(room)}

	if pg, ok := deps.medium.(*broadcast.Postgres); ok {
		if status.Latest, err = pg.Latest(ctx, room.ID); err != nil {
			log.Debugw("latest packet unavailable", "room", room.ID, "err", err)
		}
	}

	if JSONOutput() {
		return json.NewEncoder(os.Stdout).Encode(status)
	}

	t := NewTable("FIELD", "VALUE")
	t.Row("Room", room.ID)
	t.Row("Host", room.HostID)
	t.Row("Last active", humanize.Time(room.LastActiveAt))
	t.Row("State", StatusIcon(!status.Expired)+" "+liveLabel(status.Expired))
	if p := status.Latest; p != nil {
		state := "playing"
		if p.Paused {
			state = "paused"
		}
		t.Row("Latest", fmt.Sprintf("%s %s at %s (%s, %s)",
			p.Type, TruncateString(p.TrackURI, 48), FormatDuration(p.PositionMS/1000), state, humanize.Time(p.CapturedAt())))
	}
	t.Flush()
	return nil
}

func liveLabel(expired bool) string {
	if expired {
		return "expired"
	}
	return "live"
}

func runRoomInit(cmd *cobra.Command, args []string) error {
	principal, err := principalOrDefault(roomPrincipal)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	deps, err := openDeps(ctx, nil)
	if err != nil {
		return err
	}
	defer deps.Close()

	packet, err := deps.manager.InitRoom(ctx, args[0], principal)
	if err != nil {
		return err
	}

	if JSONOutput() {
		return json.NewEncoder(os.Stdout).Encode(packet)
	}
	fmt.Printf("%s now hosts %s\n", principal, args[0])
	if packet.TrackURI != "" {
		fmt.Printf("Announced %s at %s\n", packet.TrackURI, FormatDuration(packet.PositionMS/1000))
	}
	return nil
}

func runRoomTouch(cmd *cobra.Command, args []string) error {
	principal, err := principalOrDefault(roomPrincipal)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
	defer cancel()

	deps, err := openDeps(ctx, nil)
	if err != nil {
		return err
	}
	defer deps.Close()

	if err := deps.manager.Touch(ctx, args[0], principal); err != nil {
		return err
	}
	if JSONOutput() {
		return json.NewEncoder(os.Stdout).Encode(map[string]bool{"ok": true})
	}
	fmt.Printf("Touched %s\n", args[0])
	return nil
}
