// Package invalidation tells connected dashboards which cached views went
// stale. Each write bumps a per-tenant version counter in Redis and publishes
// an event; every API instance relays events to its own websocket clients.
package invalidation

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"mnetifi-service/internal/domain/resource"
	wstypes "mnetifi-service/internal/domain/websocket"
)

// Channel is the Redis pub/sub channel shared by all API instances.
const Channel = "mnetifi:invalidations"

// Invalidator is what mutating services depend on.
type Invalidator interface {
	Invalidate(ctx context.Context, tenantID int64, entities ...resource.Entity)
}

// Broadcaster delivers a message to the websocket clients of a tenant.
type Broadcaster interface {
	BroadcastToTenant(tenantID int64, channel wstypes.ChannelType, msg *wstypes.WSMessage)
}

type Publisher struct {
	rdb    *redis.Client
	logger *zap.Logger
}

func NewPublisher(rdb *redis.Client, logger *zap.Logger) *Publisher {
	return &Publisher{rdb: rdb, logger: logger}
}

func versionKey(tenantID int64, e resource.Entity) string {
	return fmt.Sprintf("resver:%d:%s", tenantID, e)
}

// Invalidate never fails the caller: the write already committed, so a Redis
// outage only costs freshness and is logged.
func (p *Publisher) Invalidate(ctx context.Context, tenantID int64, entities ...resource.Entity) {
	for _, e := range entities {
		if !e.Valid() {
			p.logger.Warn("unknown resource entity", zap.String("entity", string(e)))
			continue
		}
		version, err := p.rdb.Incr(ctx, versionKey(tenantID, e)).Result()
		if err != nil {
			p.logger.Error("failed to bump resource version",
				zap.Int64("tenant_id", tenantID),
				zap.String("entity", string(e)),
				zap.Error(err),
			)
			continue
		}

		payload, err := json.Marshal(Event(tenantID, e, version))
		if err != nil {
			continue
		}
		if err := p.rdb.Publish(ctx, Channel, payload).Err(); err != nil {
			p.logger.Error("failed to publish invalidation",
				zap.Int64("tenant_id", tenantID),
				zap.String("entity", string(e)),
				zap.Error(err),
			)
		}
	}
}

// Event builds the wire event for entity e at version.
func Event(tenantID int64, e resource.Entity, version int64) wstypes.ResourceEvent {
	fams := resource.Families(e)
	paths := make([]string, 0, len(fams))
	for _, f := range fams {
		paths = append(paths, f.Path())
	}
	return wstypes.ResourceEvent{TenantID: tenantID, Entity: e, Version: version, Families: paths}
}

// Versions returns the current version of every entity for tenantID.
// Entities never written report 0.
func (p *Publisher) Versions(ctx context.Context, tenantID int64) (map[resource.Entity]int64, error) {
	all := resource.All()
	keys := make([]string, len(all))
	for i, e := range all {
		keys[i] = versionKey(tenantID, e)
	}

	vals, err := p.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read resource versions: %w", err)
	}

	out := make(map[resource.Entity]int64, len(all))
	for i, e := range all {
		out[e] = 0
		if s, ok := vals[i].(string); ok {
			if n, err := strconv.ParseInt(s, 10, 64); err == nil {
				out[e] = n
			}
		}
	}
	return out, nil
}

// Relay forwards published events to b until ctx is done.
func (p *Publisher) Relay(ctx context.Context, b Broadcaster) error {
	sub := p.rdb.Subscribe(ctx, Channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", Channel, err)
	}
	p.logger.Info("relaying resource invalidations", zap.String("channel", Channel))

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case m, ok := <-ch:
			if !ok {
				return nil
			}
			var ev wstypes.ResourceEvent
			if err := json.Unmarshal([]byte(m.Payload), &ev); err != nil {
				p.logger.Warn("invalid invalidation payload", zap.Error(err))
				continue
			}
			b.BroadcastToTenant(ev.TenantID, wstypes.ChannelResources,
				wstypes.NewMessage(wstypes.EventTypeResourceInvalidated, ev))
		}
	}
}

// Nop discards invalidations. Used by the worker when Redis pub/sub is not
// wanted and by tests.
type Nop struct{}

func (Nop) Invalidate(context.Context, int64, ...resource.Entity) {}
