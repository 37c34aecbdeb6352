package websocket

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	gws "github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"mnetifi-service/internal/domain/resource"
	wstypes "mnetifi-service/internal/domain/websocket"
	"mnetifi-service/internal/pkg/jwt"
	"mnetifi-service/internal/pkg/session"
	"mnetifi-service/internal/service/invalidation"
	ws "mnetifi-service/internal/websocket"
	"mnetifi-service/internal/websocket/handler"
)

type harness struct {
	srv       *httptest.Server
	hub       *ws.Hub
	gen       *jwt.Generator
	sessions  *session.Manager
	publisher *invalidation.Publisher
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	gin.SetMode(gin.TestMode)

	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	gen := jwt.NewGenerator(priv, "mnetifi", "mnetifi-dashboard", "k1", time.Hour)
	ver := jwt.NewVerifier(&priv.PublicKey, "mnetifi", "mnetifi-dashboard")

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	sessions := session.NewManager(rdb, nil, session.IdleTimeouts{}, zap.NewNop())
	hub := ws.NewHub(ver, sessions, zap.NewNop())
	publisher := invalidation.NewPublisher(rdb, zap.NewNop())
	hub.RegisterHandler(handler.NewResourceHandler(publisher))

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)

	r := gin.New()
	h := NewWebSocketHandler(hub, []string{"*"}, zap.NewNop())
	r.GET("/ws", h.HandleConnection)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	return &harness{srv: srv, hub: hub, gen: gen, sessions: sessions, publisher: publisher}
}

func (h *harness) login(t *testing.T, identityID, tenantID int64, roles ...string) string {
	t.Helper()
	tok, jti, err := h.gen.GenerateAccessToken(jwt.Subject{IdentityID: identityID, TenantID: tenantID, Roles: roles})
	require.NoError(t, err)
	now := time.Now()
	require.NoError(t, h.sessions.CreateSession(context.Background(), &session.SessionData{
		JTI: jti, IdentityID: identityID, TenantID: tenantID, Roles: roles,
		LoginAt: now, LastActivityAt: now, ExpiresAt: now.Add(time.Hour), IsActive: true,
	}))
	return tok
}

func (h *harness) dial(t *testing.T, token string) *gws.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(h.srv.URL, "http") + "/ws?token=" + token
	conn, _, err := gws.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

// next reads messages until one of type want arrives.
func next(t *testing.T, conn *gws.Conn, want wstypes.EventType) *wstypes.WSMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	for {
		_, data, err := conn.ReadMessage()
		require.NoError(t, err)
		msg, err := wstypes.ParseMessage(data)
		require.NoError(t, err)
		if msg.Type == want {
			return msg
		}
	}
}

func subscribe(t *testing.T, conn *gws.Conn, channels ...wstypes.ChannelType) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(wstypes.NewMessage(wstypes.EventTypeSubscribe, wstypes.SubscribeRequest{Channels: channels})))
	next(t, conn, wstypes.EventTypeSubscribe)
}

func TestRejectsMissingOrBadToken(t *testing.T) {
	h := newHarness(t)
	url := "ws" + strings.TrimPrefix(h.srv.URL, "http") + "/ws"

	_, resp, err := gws.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	assert.Equal(t, 401, resp.StatusCode)

	_, resp, err = gws.DefaultDialer.Dial(url+"?token=garbage", nil)
	require.Error(t, err)
	assert.Equal(t, 401, resp.StatusCode)
}

func TestTenantScopedBroadcast(t *testing.T) {
	h := newHarness(t)

	a := h.dial(t, h.login(t, 1, 10, jwt.RoleAdmin))
	next(t, a, wstypes.EventTypeConnected)
	subscribe(t, a, wstypes.ChannelResources)

	b := h.dial(t, h.login(t, 2, 20, jwt.RoleAdmin))
	next(t, b, wstypes.EventTypeConnected)
	subscribe(t, b, wstypes.ChannelResources)

	h.hub.BroadcastToTenant(20, wstypes.ChannelResources,
		wstypes.NewMessage(wstypes.EventTypeResourceInvalidated, invalidation.Event(20, resource.Plan, 1)))

	msg := next(t, b, wstypes.EventTypeResourceInvalidated)
	var ev wstypes.ResourceEvent
	require.NoError(t, msg.DecodeData(&ev))
	assert.Equal(t, int64(20), ev.TenantID)
	assert.Contains(t, ev.Families, "/api/plans")

	// tenant 10 must not see tenant 20's event; a ping proves the socket is idle
	require.NoError(t, a.WriteJSON(wstypes.NewMessage(wstypes.EventTypePing, nil)))
	require.NoError(t, a.SetReadDeadline(time.Now().Add(3*time.Second)))
	_, data, err := a.ReadMessage()
	require.NoError(t, err)
	first, err := wstypes.ParseMessage(data)
	require.NoError(t, err)
	assert.Equal(t, wstypes.EventTypePong, first.Type)

	assert.Equal(t, 2, h.hub.Stats().TotalConnections)
}

func TestResyncReportsChangedEntities(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.publisher.Invalidate(ctx, 10, resource.Plan, resource.Plan, resource.Ticket)

	conn := h.dial(t, h.login(t, 1, 10, jwt.RoleAdmin))
	next(t, conn, wstypes.EventTypeConnected)

	req := wstypes.ResyncRequest{Versions: map[resource.Entity]int64{resource.Plan: 2, resource.Ticket: 0}}
	require.NoError(t, conn.WriteJSON(wstypes.NewMessage(wstypes.EventTypeResourceResync, req)))

	msg := next(t, conn, wstypes.EventTypeResourceInvalidated)
	var ev wstypes.ResourceEvent
	require.NoError(t, msg.DecodeData(&ev))
	assert.Equal(t, resource.Ticket, ev.Entity)

	ack := next(t, conn, wstypes.EventTypeResourceResync)
	var versions wstypes.ResyncRequest
	require.NoError(t, ack.DecodeData(&versions))
	assert.Equal(t, int64(2), versions.Versions[resource.Plan])
}

func TestForceLogoutClosesSocket(t *testing.T) {
	h := newHarness(t)
	conn := h.dial(t, h.login(t, 5, 10, jwt.RoleAdmin))
	next(t, conn, wstypes.EventTypeConnected)

	require.Eventually(t, func() bool { return h.hub.IsUserConnected(5) }, time.Second, 10*time.Millisecond)
	h.hub.ForceLogout(5, "", "password changed")

	next(t, conn, wstypes.EventTypeForceLogout)
	require.Eventually(t, func() bool { return !h.hub.IsUserConnected(5) }, 2*time.Second, 10*time.Millisecond)
}
