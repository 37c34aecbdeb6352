package invalidation

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"mnetifi-service/internal/domain/resource"
	wstypes "mnetifi-service/internal/domain/websocket"
)

type captured struct {
	mu   sync.Mutex
	msgs []wstypes.ResourceEvent
}

func (c *captured) BroadcastToTenant(tenantID int64, channel wstypes.ChannelType, msg *wstypes.WSMessage) {
	var ev wstypes.ResourceEvent
	_ = msg.DecodeData(&ev)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, ev)
}

func (c *captured) events() []wstypes.ResourceEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]wstypes.ResourceEvent(nil), c.msgs...)
}

func newPublisher(t *testing.T) *Publisher {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return NewPublisher(rdb, zap.NewNop())
}

func TestInvalidateBumpsVersions(t *testing.T) {
	p := newPublisher(t)
	ctx := context.Background()

	p.Invalidate(ctx, 7, resource.Plan, resource.Plan, resource.Voucher)
	p.Invalidate(ctx, 8, resource.Plan)
	p.Invalidate(ctx, 7, resource.Entity("bogus"))

	v, err := p.Versions(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, int64(2), v[resource.Plan])
	assert.Equal(t, int64(1), v[resource.Voucher])
	assert.Equal(t, int64(0), v[resource.Ticket])

	other, err := p.Versions(ctx, 8)
	require.NoError(t, err)
	assert.Equal(t, int64(1), other[resource.Plan])
}

func TestEventFamilies(t *testing.T) {
	ev := Event(3, resource.Transaction, 9)
	assert.Equal(t, int64(3), ev.TenantID)
	assert.Contains(t, ev.Families, "/api/transactions")
	assert.Contains(t, ev.Families, "/api/loyalty")
}

func TestRelayForwardsToTenant(t *testing.T) {
	p := newPublisher(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sink := &captured{}
	done := make(chan error, 1)
	go func() { done <- p.Relay(ctx, sink) }()

	// wait for the subscription before publishing
	require.Eventually(t, func() bool {
		n, _ := p.rdb.PubSubNumSub(ctx, Channel).Result()
		return n[Channel] > 0
	}, 2*time.Second, 10*time.Millisecond)

	p.Invalidate(ctx, 42, resource.Ticket)

	require.Eventually(t, func() bool { return len(sink.events()) == 1 }, 2*time.Second, 10*time.Millisecond)
	ev := sink.events()[0]
	assert.Equal(t, int64(42), ev.TenantID)
	assert.Equal(t, resource.Ticket, ev.Entity)
	assert.Equal(t, int64(1), ev.Version)

	cancel()
	assert.NoError(t, <-done)
}
