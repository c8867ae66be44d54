package broadcast

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/x5uw/SyncRoom/internal/core"
)

// NATS fans packets out over core NATS subjects, one subject per room.
type NATS struct {
	nc     *nats.Conn
	prefix string
}

// OpenNATS connects to url.
func OpenNATS(url, prefix string) (*NATS, error) {
	if url == "" {
		url = nats.DefaultURL
	}
	nc, err := nats.Connect(url,
		nats.Name("syncroom"),
		nats.MaxReconnects(10),
		nats.ReconnectWait(time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warnw("nats disconnected", "err", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Infow("nats reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	log.Debugw("connected to nats", "url", url)
	return NewNATS(nc, prefix), nil
}

// NewNATS wraps an existing connection.
func NewNATS(nc *nats.Conn, prefix string) *NATS {
	return &NATS{nc: nc, prefix: prefix}
}

// Subject returns the NATS subject carrying roomID's packets.
func (m *NATS) Subject(roomID string) string {
	return m.prefix + "room-sync." + roomID
}

func (m *NATS) Publish(_ context.Context, roomID string, p core.Packet) error {
	data, err := Encode(p)
	if err != nil {
		return err
	}
	if err := m.nc.Publish(m.Subject(roomID), data); err != nil {
		return fmt.Errorf("nats publish: %w", err)
	}
	return nil
}

// Subscribe registers h on roomID's subject. The subscription is flushed to
// the server before Subscribe returns.
func (m *NATS) Subscribe(_ context.Context, roomID string, h Handler) (Unsubscribe, error) {
	sub, err := m.nc.Subscribe(m.Subject(roomID), func(msg *nats.Msg) {
		dispatch("nats", roomID, msg.Data, h)
	})
	if err != nil {
		return nil, fmt.Errorf("nats subscribe: %w", err)
	}
	if err := m.nc.Flush(); err != nil {
		_ = sub.Unsubscribe()
		return nil, fmt.Errorf("nats flush: %w", err)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			if err := sub.Unsubscribe(); err != nil && err != nats.ErrConnectionClosed {
				log.Debugw("nats unsubscribe", "err", err)
			}
		})
	}, nil
}

func (m *NATS) Close() error {
	m.nc.Close()
	return nil
}

var _ Medium = (*NATS)(nil)
