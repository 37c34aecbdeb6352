package websocket

import (
	"context"
	"sort"

	wstypes "mnetifi-service/internal/domain/websocket"
)

// MessageHandler answers the client events it lists in SupportedEvents.
type MessageHandler interface {
	HandleMessage(ctx context.Context, client *Client, msg *wstypes.WSMessage) error
	SupportedEvents() []wstypes.EventType
}

// eventRouter maps inbound event types to handlers. A later registration
// for the same event replaces the earlier one.
type eventRouter map[wstypes.EventType]MessageHandler

func (r eventRouter) add(handler MessageHandler) {
	for _, ev := range handler.SupportedEvents() {
		r[ev] = handler
	}
}

func (r eventRouter) route(ev wstypes.EventType) (MessageHandler, bool) {
	h, ok := r[ev]
	return h, ok
}

// events lists the routed event types, sorted.
func (r eventRouter) events() []string {
	out := make([]string, 0, len(r))
	for ev := range r {
		out = append(out, string(ev))
	}
	sort.Strings(out)
	return out
}
