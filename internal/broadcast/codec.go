package broadcast

import (
	"encoding/json"
	"fmt"

	"github.com/x5uw/SyncRoom/internal/core"
	serrors "github.com/x5uw/SyncRoom/internal/errors"
	"github.com/x5uw/SyncRoom/internal/metrics"
)

// Encode validates p and returns its wire form.
func Encode(p core.Packet) ([]byte, error) {
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", serrors.ErrMalformedPacket, err)
	}
	return json.Marshal(p)
}

// Decode parses and validates a wire packet. Anything that would confuse
// reconciliation fails with errors.ErrMalformedPacket.
func Decode(data []byte) (core.Packet, error) {
	var p core.Packet
	if err := json.Unmarshal(data, &p); err != nil {
		return core.Packet{}, fmt.Errorf("%w: %v", serrors.ErrMalformedPacket, err)
	}
	if err := p.Validate(); err != nil {
		return core.Packet{}, fmt.Errorf("%w: %v", serrors.ErrMalformedPacket, err)
	}
	return p, nil
}

// dispatch decodes data and hands it to h, dropping malformed packets.
func dispatch(source, roomID string, data []byte, h Handler) {
	p, err := Decode(data)
	if err != nil {
		dropMalformed(source, roomID, err)
		return
	}
	h(p)
}

func dropMalformed(source, roomID string, err error) {
	metrics.PacketsDropped.WithLabelValues("malformed").Inc()
	log.Warnw("dropping packet", "source", source, "room", roomID, "err", err)
}
