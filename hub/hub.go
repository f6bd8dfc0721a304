package hub

import (
	"context"
	"sync"
	"time"

	"github.com/roomcast/roomcast/model"
	"github.com/rs/zerolog"
)

var sendTimeout = time.Second

// Hub tracks the wire of every open session and fans frames out to them.
// A send that cannot complete within sendTimeout is dropped so one dead
// endpoint never stalls delivery to the rest of the room.
type Hub struct {
	logger zerolog.Logger
	mx     *sync.RWMutex
	wires  map[string]model.Wire
}

func New(logger *zerolog.Logger) *Hub {
	return &Hub{
		logger: logger.With().Str("component", "hub").Logger(),
		mx:     &sync.RWMutex{},
		wires:  make(map[string]model.Wire),
	}
}

func (h *Hub) Connect(id string, wire model.Wire) {
	h.mx.Lock()
	h.wires[id] = wire
	h.mx.Unlock()

	h.logger.Debug().Str("session", id).Msg("session connected")
}

func (h *Hub) Disconnect(id string) {
	h.mx.Lock()
	delete(h.wires, id)
	h.mx.Unlock()

	h.logger.Debug().Str("session", id).Msg("session disconnected")
}

func (h *Hub) Count() int {
	h.mx.RLock()
	defer h.mx.RUnlock()

	return len(h.wires)
}

// Broadcast delivers a frame to every open session, the sender included.
// Fan-out always runs to completion: one recipient's failure, or the
// sender's own session ending, never withholds the frame from the rest.
func (h *Hub) Broadcast(frame []byte) {
	h.mx.RLock()
	targets := make(map[string]model.Wire, len(h.wires))
	for id, wire := range h.wires {
		targets[id] = wire
	}
	h.mx.RUnlock()

	for id, wire := range targets {
		h.send(id, frame, wire.TX)
	}
}

// Send delivers a frame to a single session and reports whether it was
// accepted.
func (h *Hub) Send(ctx context.Context, id string, frame []byte) bool {
	h.mx.RLock()
	wire, ok := h.wires[id]
	h.mx.RUnlock()

	if !ok {
		h.logger.Debug().Str("session", id).Msg("cannot send, session is gone")
		return false
	}

	t := time.NewTimer(sendTimeout)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		h.logger.Error().Str("session", id).Msg("dead endpoint, frame dropped")
		return false
	case wire.TX <- frame:
		return true
	}
}

func (h *Hub) send(id string, frame []byte, tx chan<- []byte) bool {
	t := time.NewTimer(sendTimeout)
	defer t.Stop()

	select {
	case <-t.C:
		h.logger.Error().Str("session", id).Msg("dead endpoint, frame dropped")
		return false
	case tx <- frame:
		return true
	}
}
