package broadcast

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/x5uw/SyncRoom/internal/core"
	serrors "github.com/x5uw/SyncRoom/internal/errors"
	"github.com/x5uw/SyncRoom/internal/metrics"
)

func validPacket(ts int64) core.Packet {
	return core.Packet{
		Type:       core.PacketSync,
		TrackURI:   "spotify:track:X",
		PositionMS: 30000,
		Paused:     false,
		TS:         ts,
	}
}

// collector records delivered packets.
type collector struct {
	mu      sync.Mutex
	packets []core.Packet
	notify  chan struct{}
}

func newCollector() *collector {
	return &collector{notify: make(chan struct{}, 64)}
}

func (c *collector) handle(p core.Packet) {
	c.mu.Lock()
	c.packets = append(c.packets, p)
	c.mu.Unlock()
	select {
	case c.notify <- struct{}{}:
	default:
	}
}

func (c *collector) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.packets)
}

func (c *collector) waitFor(t *testing.T, n int) []core.Packet {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for c.count() < n {
		select {
		case <-c.notify:
		case <-deadline:
			t.Fatalf("timed out waiting for %d packets, got %d", n, c.count())
		}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]core.Packet(nil), c.packets...)
}

// exerciseMedium runs the behavior every backend must share.
func exerciseMedium(t *testing.T, m Medium, roomPrefix string) {
	ctx := context.Background()
	roomA, roomB := roomPrefix+"room-a", roomPrefix+"room-b"

	a, b := newCollector(), newCollector()
	unsubA, err := m.Subscribe(ctx, roomA, a.handle)
	if err != nil {
		t.Fatalf("Subscribe(a) error = %v", err)
	}
	unsubB, err := m.Subscribe(ctx, roomB, b.handle)
	if err != nil {
		t.Fatalf("Subscribe(b) error = %v", err)
	}
	defer unsubB()

	want := validPacket(1700000000000)
	if err := m.Publish(ctx, roomA, want); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	got := a.waitFor(t, 1)
	if got[0] != want {
		t.Errorf("delivered %+v, want %+v", got[0], want)
	}

	// Malformed packets never reach the wire.
	bad := want
	bad.TrackURI = ""
	if err := m.Publish(ctx, roomA, bad); !serrors.Is(err, serrors.ErrMalformedPacket) {
		t.Errorf("Publish(malformed) error = %v, want ErrMalformedPacket", err)
	}

	// Unsubscribed handlers stop receiving; other rooms are unaffected.
	unsubA()
	unsubA()
	if err := m.Publish(ctx, roomA, validPacket(1700000001000)); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if err := m.Publish(ctx, roomB, validPacket(1700000002000)); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	b.waitFor(t, 1)

	time.Sleep(100 * time.Millisecond)
	if n := a.count(); n != 1 {
		t.Errorf("room a received %d packets after unsubscribe, want 1", n)
	}
	if n := b.count(); n != 1 {
		t.Errorf("room b received %d packets, want 1", n)
	}
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		wantErr bool
	}{
		{"sync", `{"type":"sync","track_uri":"spotify:track:X","position_ms":30000,"paused":false,"ts":1700000000000}`, false},
		{"room init without track", `{"type":"room_init","track_uri":"","position_ms":0,"paused":true,"ts":1700000000000}`, false},
		{"extra fields tolerated", `{"type":"sync","track_uri":"x","position_ms":1,"paused":true,"ts":1,"dj":"host"}`, false},
		{"not json", `sync!`, true},
		{"unknown type", `{"type":"chat","track_uri":"x","position_ms":1,"ts":1}`, true},
		{"sync without track", `{"type":"sync","position_ms":1,"ts":1}`, true},
		{"negative position", `{"type":"sync","track_uri":"x","position_ms":-1,"ts":1}`, true},
		{"missing ts", `{"type":"sync","track_uri":"x","position_ms":1}`, true},
		{"position as string", `{"type":"sync","track_uri":"x","position_ms":"1","ts":1}`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.data))
			if tt.wantErr {
				if !serrors.Is(err, serrors.ErrMalformedPacket) {
					t.Errorf("Decode() error = %v, want ErrMalformedPacket", err)
				}
				return
			}
			if err != nil {
				t.Errorf("Decode() error = %v", err)
			}
		})
	}
}

func TestEncodeWireFormat(t *testing.T) {
	data, err := Encode(validPacket(1700000000000))
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	want := `{"type":"sync","track_uri":"spotify:track:X","position_ms":30000,"paused":false,"ts":1700000000000}`
	if string(data) != want {
		t.Errorf("Encode() = %s, want %s", data, want)
	}
}

func TestHub(t *testing.T) {
	exerciseMedium(t, NewHub(), "")
}

func TestHubSubscriberCount(t *testing.T) {
	h := NewHub()
	ctx := context.Background()

	unsub1, _ := h.Subscribe(ctx, "r", func(core.Packet) {})
	unsub2, _ := h.Subscribe(ctx, "r", func(core.Packet) {})
	if n := h.Subscribers("r"); n != 2 {
		t.Errorf("Subscribers() = %d, want 2", n)
	}
	unsub1()
	unsub2()
	if n := h.Subscribers("r"); n != 0 {
		t.Errorf("Subscribers() after unsubscribe = %d, want 0", n)
	}
}

func TestHubClosed(t *testing.T) {
	h := NewHub()
	_ = h.Close()

	if _, err := h.Subscribe(context.Background(), "r", func(core.Packet) {}); err != ErrClosed {
		t.Errorf("Subscribe() error = %v, want ErrClosed", err)
	}
	if err := h.Publish(context.Background(), "r", validPacket(1)); err != ErrClosed {
		t.Errorf("Publish() error = %v, want ErrClosed", err)
	}
}

func TestMalformedPacketsCounted(t *testing.T) {
	malformed := metrics.PacketsDropped.WithLabelValues("malformed")
	h := NewHub()
	received := 0
	unsub, _ := h.Subscribe(context.Background(), "r", func(core.Packet) { received++ })
	defer unsub()

	before := testutil.ToFloat64(malformed)
	h.deliver("test", "r", []byte(`{"type":"sync","position_ms":1,"ts":1}`))
	dispatch("test", "r", []byte(`sync!`), func(core.Packet) { received++ })

	if got := testutil.ToFloat64(malformed) - before; got != 2 {
		t.Errorf("malformed drops = %v, want 2", got)
	}
	if received != 0 {
		t.Errorf("handlers called %d times for malformed packets", received)
	}

	h.deliver("test", "r", []byte(`{"type":"sync","track_uri":"x","position_ms":1,"ts":1}`))
	if got := testutil.ToFloat64(malformed) - before; got != 2 {
		t.Errorf("malformed drops after a valid packet = %v, want 2", got)
	}
	if received != 1 {
		t.Errorf("handlers called %d times, want 1", received)
	}
}

func TestChannel(t *testing.T) {
	if got := Channel("prod:", "abc"); got != "prod:room-sync-abc" {
		t.Errorf("Channel() = %q", got)
	}
}

func TestOpenUnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), Options{Driver: "carrier-pigeon"})
	if err == nil || !strings.Contains(err.Error(), "carrier-pigeon") {
		t.Errorf("Open() error = %v, want unknown driver", err)
	}
}
