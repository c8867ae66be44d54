package broadcast

import (
	"context"
	"fmt"

	logging "github.com/ipfs/go-log/v2"

	"github.com/x5uw/SyncRoom/internal/core"
)

var log = logging.Logger("broadcast")

// Handler receives validated packets. Backends may call it from their own
// goroutines; it should hand work off rather than block.
type Handler func(core.Packet)

// Unsubscribe releases a subscription. It is safe to call more than once.
type Unsubscribe func()

// Medium fans sync packets out to every subscriber of a room. Delivery is
// at-least-once and ordering is not guaranteed.
type Medium interface {
	Publish(ctx context.Context, roomID string, p core.Packet) error
	Subscribe(ctx context.Context, roomID string, h Handler) (Unsubscribe, error)
	Close() error
}

// Options selects and configures a backend.
type Options struct {
	// Driver is one of memory, postgres, redis or nats.
	Driver string
	// URL is the backend's connection string.
	URL string
	// Prefix namespaces channel and subject names.
	Prefix string
}

// Open creates the backend named by opts.Driver.
func Open(ctx context.Context, opts Options) (Medium, error) {
	switch opts.Driver {
	case "", "memory":
		return NewHub(), nil
	case "postgres":
		return OpenPostgres(ctx, opts.URL)
	case "redis":
		return OpenRedis(ctx, opts.URL, opts.Prefix)
	case "nats":
		return OpenNATS(opts.URL, opts.Prefix)
	default:
		return nil, fmt.Errorf("unknown broadcast driver %q", opts.Driver)
	}
}

// Channel returns the per-room channel name.
func Channel(prefix, roomID string) string {
	return prefix + "room-sync-" + roomID
}
