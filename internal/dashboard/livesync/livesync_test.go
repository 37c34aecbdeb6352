package livesync

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mnetifi-service/internal/dashboard/querycache"
	"mnetifi-service/internal/domain/resource"
	wstypes "mnetifi-service/internal/domain/websocket"
)

type families struct {
	mu   sync.Mutex
	seen []string
}

func (f *families) InvalidateFamily(k querycache.Key) {
	f.mu.Lock()
	f.seen = append(f.seen, k.String())
	f.mu.Unlock()
}

func (f *families) list() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.seen...)
}

// fakeAPI plays the server side of /ws. Each connection gets its script.
type fakeAPI struct {
	t        *testing.T
	mu       sync.Mutex
	received [][]*wstypes.WSMessage
	scripts  []func(conn *websocket.Conn)
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("token") != "good" {
		http.Error(w, `{"success":false,"error":"invalid token"}`, http.StatusUnauthorized)
		return
	}
	conn, err := (&websocket.Upgrader{}).Upgrade(w, r, nil)
	if !assert.NoError(f.t, err) {
		return
	}
	defer conn.Close()

	f.mu.Lock()
	n := len(f.received)
	f.received = append(f.received, nil)
	script := func(*websocket.Conn) {}
	if n < len(f.scripts) {
		script = f.scripts[n]
	}
	f.mu.Unlock()

	go func() {
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			msg, err := wstypes.ParseMessage(data)
			if err != nil {
				continue
			}
			f.mu.Lock()
			f.received[n] = append(f.received[n], msg)
			f.mu.Unlock()
		}
	}()
	script(conn)
}

func (f *fakeAPI) messages(conn int) []*wstypes.WSMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	if conn >= len(f.received) {
		return nil
	}
	return append([]*wstypes.WSMessage(nil), f.received[conn]...)
}

func invalidated(tenantID int64, e resource.Entity, v int64) *wstypes.WSMessage {
	fams := resource.Families(e)
	paths := make([]string, 0, len(fams))
	for _, f := range fams {
		paths = append(paths, f.Path())
	}
	return wstypes.NewMessage(wstypes.EventTypeResourceInvalidated, wstypes.ResourceEvent{
		TenantID: tenantID, Entity: e, Version: v, Families: paths,
	})
}

func start(t *testing.T, api *fakeAPI, token string, cache Invalidator, onMessage func(*wstypes.WSMessage)) (*Syncer, chan error, context.CancelFunc) {
	t.Helper()
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)
	base, err := url.Parse(srv.URL)
	require.NoError(t, err)

	s := New(base, func() string { return token }, cache, Options{
		MinBackoff: 5 * time.Millisecond,
		MaxBackoff: 20 * time.Millisecond,
		OnMessage:  onMessage,
	})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	return s, done, cancel
}

func TestInvalidationEventsAndResyncOnReconnect(t *testing.T) {
	var notifications sync.WaitGroup
	notifications.Add(1)

	api := &fakeAPI{t: t}
	api.scripts = []func(*websocket.Conn){
		func(conn *websocket.Conn) {
			assert.NoError(t, conn.WriteJSON(invalidated(7, resource.Plan, 3)))
			assert.NoError(t, conn.WriteJSON(invalidated(7, resource.Transaction, 11)))
			time.Sleep(30 * time.Millisecond)
		},
		func(conn *websocket.Conn) {
			assert.NoError(t, conn.WriteJSON(wstypes.NewMessage(wstypes.EventTypeNotification, wstypes.NotificationData{ID: 1, Title: "Payment received"})))
			time.Sleep(time.Second)
		},
	}

	cache := &families{}
	_, done, cancel := start(t, api, "good", cache, func(m *wstypes.WSMessage) {
		if m.Type == wstypes.EventTypeNotification {
			notifications.Done()
		}
	})

	require.Eventually(t, func() bool { return len(api.messages(1)) >= 2 }, 2*time.Second, 5*time.Millisecond)
	notifications.Wait()
	cancel()
	require.NoError(t, <-done)

	assert.Subset(t, cache.list(), []string{"/api/plans", "/api/voucher-batches", "/api/wifi-users", "/api/transactions", "/api/loyalty", "/api/reports"})

	first := api.messages(0)
	require.NotEmpty(t, first)
	assert.Equal(t, wstypes.EventTypeSubscribe, first[0].Type)
	for _, m := range first {
		assert.NotEqual(t, wstypes.EventTypeResourceResync, m.Type)
	}

	second := api.messages(1)
	assert.Equal(t, wstypes.EventTypeSubscribe, second[0].Type)
	require.Equal(t, wstypes.EventTypeResourceResync, second[1].Type)
	var req wstypes.ResyncRequest
	require.NoError(t, second[1].DecodeData(&req))
	assert.Equal(t, int64(3), req.Versions[resource.Plan])
	assert.Equal(t, int64(11), req.Versions[resource.Transaction])
}

func TestResyncReplyUpdatesVersions(t *testing.T) {
	api := &fakeAPI{t: t}
	api.scripts = []func(*websocket.Conn){
		func(conn *websocket.Conn) {
			assert.NoError(t, conn.WriteJSON(wstypes.NewMessage(wstypes.EventTypeResourceResync, wstypes.ResyncRequest{
				Versions: map[resource.Entity]int64{resource.Ticket: 4, resource.Plan: 2},
			})))
			time.Sleep(time.Second)
		},
	}

	s, done, cancel := start(t, api, "good", &families{}, nil)
	require.Eventually(t, func() bool { return s.Versions()[resource.Ticket] == 4 }, time.Second, 5*time.Millisecond)
	assert.True(t, s.Connected())
	cancel()
	require.NoError(t, <-done)
	assert.False(t, s.Connected())
}

func TestRejectedTokenStops(t *testing.T) {
	_, done, cancel := start(t, &fakeAPI{t: t}, "bad", &families{}, nil)
	defer cancel()

	select {
	case err := <-done:
		require.Error(t, err)
		assert.Contains(t, err.Error(), "401")
	case <-time.After(2 * time.Second):
		t.Fatal("syncer kept retrying a rejected token")
	}
}

func TestWebsocketURL(t *testing.T) {
	base, _ := url.Parse("https://api.mnetifi.co.ke/base/")
	s := New(base, func() string { return "" }, &families{}, Options{})
	assert.Equal(t, "wss://api.mnetifi.co.ke/base/ws", s.wsURL)
}
