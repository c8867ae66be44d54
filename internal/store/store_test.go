package store

import (
	"context"
	"testing"
	"time"

	"github.com/x5uw/SyncRoom/internal/core"
	serrors "github.com/x5uw/SyncRoom/internal/errors"
)

func newTestSQLite(t *testing.T) *SQLite {
	t.Helper()

	s, err := OpenSQLite(":memory:", SQLiteOptions{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})
	return s
}

// exerciseStore runs the behavior every backend must share.
func exerciseStore(t *testing.T, s Store, prefix string) {
	ctx := context.Background()
	roomID := prefix + "room-1"
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("unknown room", func(t *testing.T) {
		if _, err := s.GetRoom(ctx, prefix+"missing"); !serrors.Is(err, serrors.ErrRoomNotFound) {
			t.Errorf("GetRoom() error = %v, want ErrRoomNotFound", err)
		}
	})

	t.Run("init and get", func(t *testing.T) {
		err := s.InitRoom(ctx, core.Room{
			ID:                   roomID,
			HostID:               "host",
			ProviderToken:        "at",
			ProviderRefreshToken: "rt",
			LastActiveAt:         start,
		})
		if err != nil {
			t.Fatalf("InitRoom() error = %v", err)
		}

		room, err := s.GetRoom(ctx, roomID)
		if err != nil {
			t.Fatalf("GetRoom() error = %v", err)
		}
		if room.HostID != "host" || room.ProviderRefreshToken != "rt" || room.ProviderToken != "at" {
			t.Errorf("GetRoom() = %+v", room)
		}
		if !room.LastActiveAt.Equal(start) {
			t.Errorf("LastActiveAt = %v, want %v", room.LastActiveAt, start)
		}
	})

	t.Run("touch by host", func(t *testing.T) {
		later := start.Add(10 * time.Minute)
		if err := s.TouchRoom(ctx, roomID, "host", later); err != nil {
			t.Fatalf("TouchRoom() error = %v", err)
		}
		room, _ := s.GetRoom(ctx, roomID)
		if !room.LastActiveAt.Equal(later) {
			t.Errorf("LastActiveAt = %v, want %v", room.LastActiveAt, later)
		}
	})

	t.Run("touch by non-host leaves timestamp", func(t *testing.T) {
		before, _ := s.GetRoom(ctx, roomID)
		err := s.TouchRoom(ctx, roomID, "intruder", start.Add(time.Hour))
		if !serrors.Is(err, serrors.ErrForbidden) {
			t.Fatalf("TouchRoom() error = %v, want ErrForbidden", err)
		}
		after, _ := s.GetRoom(ctx, roomID)
		if !after.LastActiveAt.Equal(before.LastActiveAt) {
			t.Errorf("LastActiveAt changed from %v to %v", before.LastActiveAt, after.LastActiveAt)
		}
	})

	t.Run("touch unknown room", func(t *testing.T) {
		err := s.TouchRoom(ctx, prefix+"missing", "host", start)
		if !serrors.Is(err, serrors.ErrRoomNotFound) {
			t.Errorf("TouchRoom() error = %v, want ErrRoomNotFound", err)
		}
	})

	t.Run("re-init by another principal", func(t *testing.T) {
		before, _ := s.GetRoom(ctx, roomID)
		err := s.InitRoom(ctx, core.Room{ID: roomID, HostID: "intruder", ProviderRefreshToken: "rt-x", LastActiveAt: start.Add(time.Hour)})
		if !serrors.Is(err, serrors.ErrForbidden) {
			t.Fatalf("InitRoom() error = %v, want ErrForbidden", err)
		}
		after, _ := s.GetRoom(ctx, roomID)
		if after.HostID != "host" || after.ProviderRefreshToken != "rt" || !after.LastActiveAt.Equal(before.LastActiveAt) {
			t.Errorf("room changed to %+v", after)
		}
	})

	t.Run("re-init by host", func(t *testing.T) {
		later := start.Add(2 * time.Hour)
		if err := s.InitRoom(ctx, core.Room{ID: roomID, HostID: "host", ProviderRefreshToken: "rt2", LastActiveAt: later}); err != nil {
			t.Fatalf("InitRoom() error = %v", err)
		}
		room, _ := s.GetRoom(ctx, roomID)
		if room.ProviderRefreshToken != "rt2" || !room.LastActiveAt.Equal(later) {
			t.Errorf("GetRoom() = %+v", room)
		}
	})

	t.Run("credentials", func(t *testing.T) {
		principal := prefix + "listener"
		if _, err := s.GetCredentials(ctx, principal); !serrors.Is(err, serrors.ErrNoCredentials) {
			t.Errorf("GetCredentials() error = %v, want ErrNoCredentials", err)
		}

		for _, rt := range []string{"rt-1", "rt-2"} {
			if err := s.SaveCredentials(ctx, core.Credentials{PrincipalID: principal, RefreshToken: rt, UpdatedAt: start}); err != nil {
				t.Fatalf("SaveCredentials() error = %v", err)
			}
		}
		creds, err := s.GetCredentials(ctx, principal)
		if err != nil {
			t.Fatalf("GetCredentials() error = %v", err)
		}
		if creds.RefreshToken != "rt-2" {
			t.Errorf("RefreshToken = %q, want rt-2", creds.RefreshToken)
		}
		if !creds.UpdatedAt.Equal(start) {
			t.Errorf("UpdatedAt = %v, want %v", creds.UpdatedAt, start)
		}
	})
}

func TestSQLiteStore(t *testing.T) {
	exerciseStore(t, newTestSQLite(t), "")
}

func TestSQLiteEnsureSchemaIdempotent(t *testing.T) {
	s := newTestSQLite(t)
	if err := s.EnsureSchema(); err != nil {
		t.Fatalf("EnsureSchema() second run error = %v", err)
	}

	rows, err := s.db.Query(`SELECT name FROM sqlite_master WHERE type = 'table'`)
	if err != nil {
		t.Fatalf("query sqlite_master: %v", err)
	}
	defer rows.Close()

	found := map[string]bool{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			t.Fatalf("scan sqlite_master: %v", err)
		}
		found[name] = true
	}
	for _, table := range []string{"rooms", "credentials"} {
		if !found[table] {
			t.Errorf("table %s missing", table)
		}
	}
}

func TestSQLiteFileBacked(t *testing.T) {
	path := t.TempDir() + "/syncroom.db"
	ctx := context.Background()

	s, err := OpenSQLite(path, SQLiteOptions{})
	if err != nil {
		t.Fatalf("OpenSQLite() error = %v", err)
	}
	if err := s.InitRoom(ctx, core.Room{ID: "r", HostID: "h", LastActiveAt: time.UnixMilli(1000)}); err != nil {
		t.Fatalf("InitRoom() error = %v", err)
	}
	_ = s.Close()

	s, err = OpenSQLite(path, SQLiteOptions{})
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	defer s.Close()
	room, err := s.GetRoom(ctx, "r")
	if err != nil {
		t.Fatalf("GetRoom() after reopen error = %v", err)
	}
	if room.HostID != "h" {
		t.Errorf("HostID = %q, want h", room.HostID)
	}
}

func TestOpenUnknownDriver(t *testing.T) {
	if _, err := Open(context.Background(), "mongo", ""); err == nil {
		t.Error("Open() with unknown driver should fail")
	}
}
