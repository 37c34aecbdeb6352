package handler

import (
	"context"
	"fmt"

	"mnetifi-service/internal/domain/resource"
	wstypes "mnetifi-service/internal/domain/websocket"
	"mnetifi-service/internal/service/invalidation"
	ws "mnetifi-service/internal/websocket"
)

// VersionSource reports the current invalidation version per entity.
type VersionSource interface {
	Versions(ctx context.Context, tenantID int64) (map[resource.Entity]int64, error)
}

// ResourceHandler answers resync requests from reconnecting dashboards: every
// entity whose version moved past what the client last saw is re-announced.
type ResourceHandler struct {
	versions VersionSource
}

func NewResourceHandler(versions VersionSource) *ResourceHandler {
	return &ResourceHandler{versions: versions}
}

func (h *ResourceHandler) SupportedEvents() []wstypes.EventType {
	return []wstypes.EventType{wstypes.EventTypeResourceResync}
}

func (h *ResourceHandler) HandleMessage(ctx context.Context, client *ws.Client, msg *wstypes.WSMessage) error {
	var req wstypes.ResyncRequest
	if err := msg.DecodeData(&req); err != nil {
		return fmt.Errorf("invalid resync request: %w", err)
	}

	tenantID := client.GetTenantID()
	current, err := h.versions.Versions(ctx, tenantID)
	if err != nil {
		return err
	}

	for _, e := range resource.All() {
		v := current[e]
		if v > req.Versions[e] {
			client.SendMessage(wstypes.NewMessage(wstypes.EventTypeResourceInvalidated,
				invalidation.Event(tenantID, e, v)))
		}
	}

	client.SendMessage(wstypes.NewMessage(wstypes.EventTypeResourceResync, wstypes.ResyncRequest{Versions: current}))
	return nil
}
