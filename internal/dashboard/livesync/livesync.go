// Package livesync keeps the dashboard cache in step with server writes. It
// listens on the API websocket for resource:invalidated events and, after a
// reconnect, asks the server to replay whatever changed while it was away.
package livesync

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"mnetifi-service/internal/dashboard/querycache"
	"mnetifi-service/internal/domain/resource"
	wstypes "mnetifi-service/internal/domain/websocket"
)

const writeWait = 10 * time.Second

type Invalidator interface {
	InvalidateFamily(prefix querycache.Key)
}

type Options struct {
	MinBackoff time.Duration
	MaxBackoff time.Duration
	Dialer     *websocket.Dialer
	Logger     *zap.Logger
	// OnMessage receives every message that is not a resource event.
	OnMessage func(*wstypes.WSMessage)
}

type Syncer struct {
	wsURL  string
	token  func() string
	cache  Invalidator
	opts   Options
	logger *zap.Logger

	mu        sync.Mutex
	versions  map[resource.Entity]int64
	connected bool
	sessions  int
}

// New derives the websocket URL from the API base URL (http→ws, https→wss).
func New(baseURL *url.URL, token func() string, cache Invalidator, opts Options) *Syncer {
	u := *baseURL
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws"
	u.RawQuery = ""

	if opts.MinBackoff <= 0 {
		opts.MinBackoff = time.Second
	}
	if opts.MaxBackoff < opts.MinBackoff {
		opts.MaxBackoff = 30 * time.Second
	}
	if opts.Dialer == nil {
		opts.Dialer = websocket.DefaultDialer
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Syncer{
		wsURL:    u.String(),
		token:    token,
		cache:    cache,
		opts:     opts,
		logger:   opts.Logger,
		versions: make(map[resource.Entity]int64),
	}
}

// Versions returns the last seen version per entity.
func (s *Syncer) Versions() map[resource.Entity]int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[resource.Entity]int64, len(s.versions))
	for e, v := range s.versions {
		out[e] = v
	}
	return out
}

func (s *Syncer) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

// Run connects and reconnects with exponential backoff until ctx is done.
// A rejected handshake (bad token) stops it.
func (s *Syncer) Run(ctx context.Context) error {
	backoff := s.opts.MinBackoff
	for {
		start := time.Now()
		err := s.session(ctx)
		if ctx.Err() != nil {
			return nil
		}
		var authErr *handshakeError
		if errors.As(err, &authErr) && authErr.status == 401 {
			return err
		}
		s.logger.Warn("live sync disconnected", zap.Error(err), zap.Duration("retry_in", backoff))

		if time.Since(start) > s.opts.MaxBackoff {
			backoff = s.opts.MinBackoff
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > s.opts.MaxBackoff {
			backoff = s.opts.MaxBackoff
		}
	}
}

type handshakeError struct {
	status int
	err    error
}

func (e *handshakeError) Error() string {
	return fmt.Sprintf("websocket handshake failed with status %d: %v", e.status, e.err)
}

func (s *Syncer) session(ctx context.Context) error {
	target := s.wsURL + "?token=" + url.QueryEscape(s.token())
	conn, resp, err := s.opts.Dialer.DialContext(ctx, target, nil)
	if err != nil {
		if resp != nil {
			return &handshakeError{status: resp.StatusCode, err: err}
		}
		return err
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	s.mu.Lock()
	s.connected = true
	s.sessions++
	reconnect := s.sessions > 1
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.connected = false
		s.mu.Unlock()
	}()

	if err := s.send(conn, wstypes.EventTypeSubscribe, wstypes.SubscribeRequest{
		Channels: []wstypes.ChannelType{wstypes.ChannelResources, wstypes.ChannelNotifications},
	}); err != nil {
		return err
	}
	if reconnect {
		if err := s.send(conn, wstypes.EventTypeResourceResync, wstypes.ResyncRequest{Versions: s.Versions()}); err != nil {
			return err
		}
		s.logger.Info("live sync reconnected, resync requested")
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		msg, err := wstypes.ParseMessage(data)
		if err != nil {
			s.logger.Debug("ignoring malformed websocket message", zap.Error(err))
			continue
		}
		s.handle(msg)
	}
}

func (s *Syncer) send(conn *websocket.Conn, t wstypes.EventType, data interface{}) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(wstypes.NewMessage(t, data))
}

func (s *Syncer) handle(msg *wstypes.WSMessage) {
	switch msg.Type {
	case wstypes.EventTypeResourceInvalidated:
		var ev wstypes.ResourceEvent
		if err := msg.DecodeData(&ev); err != nil {
			s.logger.Debug("bad resource event", zap.Error(err))
			return
		}
		s.observe(ev.Entity, ev.Version)
		families := ev.Families
		if len(families) == 0 {
			for _, f := range resource.Families(ev.Entity) {
				families = append(families, f.Path())
			}
		}
		for _, f := range families {
			s.cache.InvalidateFamily(querycache.ParseKey(f))
		}

	case wstypes.EventTypeResourceResync:
		var req wstypes.ResyncRequest
		if err := msg.DecodeData(&req); err != nil {
			return
		}
		for e, v := range req.Versions {
			s.observe(e, v)
		}

	default:
		if s.opts.OnMessage != nil {
			s.opts.OnMessage(msg)
		}
	}
}

func (s *Syncer) observe(e resource.Entity, v int64) {
	s.mu.Lock()
	if v > s.versions[e] {
		s.versions[e] = v
	}
	s.mu.Unlock()
}
