// internal/websocket/hub.go
package websocket

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	wstypes "mnetifi-service/internal/domain/websocket"
	xerrors "mnetifi-service/internal/pkg/errors"
	"mnetifi-service/internal/pkg/jwt"
	"mnetifi-service/internal/pkg/session"
)

type Hub struct {
	// Registered clients by identity ID
	clients map[int64]map[*Client]bool
	mu      sync.RWMutex

	Register   chan *Client
	unregister chan *Client

	broadcast chan *BroadcastMessage

	router eventRouter

	jwtVerifier    *jwt.Verifier
	sessionManager *session.Manager

	logger *zap.Logger
	gauge  prometheus.Gauge
}

// BroadcastMessage targets clients subscribed to Channel. A non-zero
// TenantID limits delivery to that tenant's admins plus super admins;
// IdentityIDs narrows it further to specific identities.
type BroadcastMessage struct {
	TenantID    int64
	IdentityIDs []int64
	Channel     wstypes.ChannelType
	Message     *wstypes.WSMessage
}

func NewHub(jwtVerifier *jwt.Verifier, sessionManager *session.Manager, logger *zap.Logger) *Hub {
	return &Hub{
		clients:        make(map[int64]map[*Client]bool),
		Register:       make(chan *Client),
		unregister:     make(chan *Client),
		broadcast:      make(chan *BroadcastMessage, 256),
		router:         eventRouter{},
		jwtVerifier:    jwtVerifier,
		sessionManager: sessionManager,
		logger:         logger,
	}
}

// WithGauge reports the connected client count to g.
func (h *Hub) WithGauge(g prometheus.Gauge) *Hub {
	h.gauge = g
	return h
}

// AuthenticateClient validates the access token and its live session.
// Rejections wrap xerrors.ErrUnauthorized; anything else is a store failure.
func (h *Hub) AuthenticateClient(ctx context.Context, token string) (*ClientAuth, error) {
	claims, err := h.jwtVerifier.VerifyAccessToken(token)
	if err != nil {
		return nil, fmt.Errorf("access token: %w", xerrors.ErrUnauthorized)
	}

	blacklisted, err := h.sessionManager.IsTokenBlacklisted(ctx, claims.ID)
	if err != nil {
		return nil, err
	}
	if blacklisted {
		return nil, fmt.Errorf("token revoked: %w", xerrors.ErrUnauthorized)
	}

	sessionData, err := h.sessionManager.GetSession(ctx, claims.IdentityID, claims.ID)
	if err != nil {
		return nil, fmt.Errorf("session %s: %w", claims.ID, xerrors.ErrUnauthorized)
	}

	return &ClientAuth{
		IdentityID: claims.IdentityID,
		TenantID:   claims.TenantID,
		SessionID:  claims.ID,
		Roles:      claims.Roles,
		Email:      sessionData.Email,
		Device:     claims.Device,
	}, nil
}

// RegisterHandler must be called before Run.
func (h *Hub) RegisterHandler(handler MessageHandler) {
	h.router.add(handler)
	h.logger.Debug("websocket events routed", zap.Strings("events", h.router.events()))
}

// HandleClientMessage delegates to the registered handler for msg.Type, if any.
func (h *Hub) HandleClientMessage(ctx context.Context, client *Client, msg *wstypes.WSMessage) error {
	handler, exists := h.router.route(msg.Type)
	if !exists {
		return nil
	}
	return handler.HandleMessage(ctx, client, msg)
}

func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return

		case client := <-h.Register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case msg := <-h.broadcast:
			h.deliver(msg)
		}
	}
}

func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.clients[client.identityID] == nil {
		h.clients[client.identityID] = make(map[*Client]bool)
	}
	h.clients[client.identityID][client] = true
	total := h.totalClients()
	h.setGauge(total)

	h.logger.Info("websocket client connected",
		zap.Int64("identity_id", client.identityID),
		zap.Int64("tenant_id", client.tenantID),
		zap.String("session_id", client.sessionID),
		zap.Int("total", total),
	)

	client.SendMessage(wstypes.NewMessage(wstypes.EventTypeConnected, map[string]interface{}{
		"identity_id": client.identityID,
		"tenant_id":   client.tenantID,
		"session_id":  client.sessionID,
		"roles":       client.roles,
		"device":      client.device,
	}))
}

func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients, ok := h.clients[client.identityID]
	if !ok {
		return
	}
	if _, exists := clients[client]; !exists {
		return
	}
	delete(clients, client)
	client.Close()
	if len(clients) == 0 {
		delete(h.clients, client.identityID)
	}
	total := h.totalClients()
	h.setGauge(total)

	h.logger.Info("websocket client disconnected",
		zap.Int64("identity_id", client.identityID),
		zap.String("session_id", client.sessionID),
		zap.Int("total", total),
	)
}

func (h *Hub) deliver(msg *BroadcastMessage) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	send := func(clients map[*Client]bool) {
		for client := range clients {
			if msg.TenantID != 0 && client.tenantID != msg.TenantID && !client.IsSuperAdmin() {
				continue
			}
			if client.IsSubscribed(msg.Channel) {
				client.SendMessage(msg.Message)
			}
		}
	}

	if msg.IdentityIDs == nil {
		for _, clients := range h.clients {
			send(clients)
		}
		return
	}
	for _, identityID := range msg.IdentityIDs {
		if clients, ok := h.clients[identityID]; ok {
			send(clients)
		}
	}
}

// Publish queues msg for delivery. A full queue drops the message rather
// than stalling the caller.
func (h *Hub) Publish(msg *BroadcastMessage) {
	select {
	case h.broadcast <- msg:
	default:
		h.logger.Warn("websocket broadcast queue full, dropping message",
			zap.String("type", string(msg.Message.Type)),
			zap.Int64("tenant_id", msg.TenantID),
		)
	}
}

func (h *Hub) GetConnectedClients(identityID int64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[identityID])
}

func (h *Hub) TotalClients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.totalClients()
}

// Stats is the connection summary shown to super admins.
type Stats struct {
	TotalConnections int           `json:"total_connections"`
	Identities       int           `json:"identities"`
	ByTenant         map[int64]int `json:"by_tenant"`
}

func (h *Hub) Stats() Stats {
	h.mu.RLock()
	defer h.mu.RUnlock()

	s := Stats{Identities: len(h.clients), ByTenant: make(map[int64]int)}
	for _, clients := range h.clients {
		for client := range clients {
			s.TotalConnections++
			s.ByTenant[client.tenantID]++
		}
	}
	return s
}

func (h *Hub) BroadcastNotification(identityID int64, notification *wstypes.NotificationData) {
	h.Publish(&BroadcastMessage{
		IdentityIDs: []int64{identityID},
		Channel:     wstypes.ChannelNotifications,
		Message:     wstypes.NewMessage(wstypes.EventTypeNotification, notification),
	})
}

func (h *Hub) BroadcastNotificationCount(identityID int64, count int64) {
	h.Publish(&BroadcastMessage{
		IdentityIDs: []int64{identityID},
		Channel:     wstypes.ChannelNotifications,
		Message: wstypes.NewMessage(wstypes.EventTypeNotificationCount, map[string]interface{}{
			"unread_count": count,
		}),
	})
}

// BroadcastToTenant sends msg to every subscribed admin of tenantID.
func (h *Hub) BroadcastToTenant(tenantID int64, channel wstypes.ChannelType, msg *wstypes.WSMessage) {
	h.Publish(&BroadcastMessage{TenantID: tenantID, Channel: channel, Message: msg})
}

func (h *Hub) BroadcastSystemAlert(message string, severity string) {
	h.Publish(&BroadcastMessage{
		Channel: wstypes.ChannelSystem,
		Message: wstypes.NewMessage(wstypes.EventTypeSystemAlert, map[string]string{
			"message":  message,
			"severity": severity,
		}),
	})
}

// ForceLogout tells the identity's sockets that sessionID ended and closes
// them. An empty sessionID closes every socket of the identity.
func (h *Hub) ForceLogout(identityID int64, sessionID string, reason string) {
	msg := wstypes.NewMessage(wstypes.EventTypeForceLogout, wstypes.SessionEventData{
		SessionID: sessionID,
		Reason:    reason,
		Message:   "You have been logged out",
	})

	h.mu.RLock()
	var targets []*Client
	for client := range h.clients[identityID] {
		if sessionID == "" || client.sessionID == sessionID {
			targets = append(targets, client)
		}
	}
	h.mu.RUnlock()

	for _, client := range targets {
		client.SendMessage(msg)
		client.closeAfterFlush()
	}
	if len(targets) > 0 {
		h.logger.Info("websocket sessions logged out",
			zap.Int64("identity_id", identityID),
			zap.String("reason", reason),
			zap.Int("connections", len(targets)),
		)
	}
}

func (h *Hub) IsUserConnected(identityID int64) bool {
	return h.GetConnectedClients(identityID) > 0
}

func (h *Hub) totalClients() int {
	total := 0
	for _, clients := range h.clients {
		total += len(clients)
	}
	return total
}

func (h *Hub) setGauge(n int) {
	if h.gauge != nil {
		h.gauge.Set(float64(n))
	}
}

func (h *Hub) shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, clients := range h.clients {
		for client := range clients {
			client.Close()
		}
	}
	h.clients = make(map[int64]map[*Client]bool)
	h.setGauge(0)
}
