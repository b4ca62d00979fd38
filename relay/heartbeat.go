package relay

import (
	"context"
	"log/slog"

	"github.com/hubcast/hubcast/proto"
)

// ConfigListenersChanged is the config action carrying listener presence.
const ConfigListenersChanged = "listeners_changed"

// listenerKey is the payload field asserting remote listener presence.
const listenerKey = "webClientsListening"

// Heartbeat answers inbound pings and relays listener-presence signals to
// the observer. It never originates pings; the engine's ping loop does that.
type Heartbeat struct {
	send     func(proto.Message) error
	observer *Observer
}

func NewHeartbeat(send func(proto.Message) error, observer *Observer) *Heartbeat {
	return &Heartbeat{send: send, observer: observer}
}

// HandlePing answers a ping immediately with a pong and forwards any
// listener-presence flag carried in the ping payload.
func (h *Heartbeat) HandlePing(ctx context.Context, msg proto.Message) {
	if err := h.send(proto.Pong()); err != nil {
		slog.Warn("Failed to send pong", "error", err.Error())
	}
	if listening, ok := msg.Payload.Bool(listenerKey); ok {
		h.observer.Confirm(ctx, listening)
	}
}

// HandleConfig processes unsolicited config messages from the relay.
func (h *Heartbeat) HandleConfig(ctx context.Context, msg proto.Message) {
	switch msg.Action {
	case ConfigListenersChanged:
		if listening, ok := msg.Payload.Bool(listenerKey); ok {
			h.observer.Confirm(ctx, listening)
		}
	default:
		slog.Warn("Unhandled config action", "action", msg.Action)
	}
}
