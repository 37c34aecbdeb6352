// internal/domain/websocket/types.go
package websocket

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"mnetifi-service/internal/domain/resource"
)

// EventType represents different real-time event types
type EventType string

const (
	EventTypePing      EventType = "ping"
	EventTypePong      EventType = "pong"
	EventTypeConnected EventType = "connected"
	EventTypeError     EventType = "error"

	EventTypeSubscribe   EventType = "subscribe"
	EventTypeUnsubscribe EventType = "unsubscribe"

	// client -> server
	EventTypeNotificationRead    EventType = "notification:read"
	EventTypeNotificationReadAll EventType = "notification:read_all"
	EventTypeResourceResync      EventType = "resource:resync"

	// server -> client
	EventTypeNotification        EventType = "notification"
	EventTypeNotificationCount   EventType = "notification:count"
	EventTypeResourceInvalidated EventType = "resource:invalidated"
	EventTypeForceLogout         EventType = "session:force_logout"
	EventTypeSystemAlert         EventType = "system:alert"
)

// WSMessage is the universal message format
type WSMessage struct {
	Type      EventType              `json:"type"`
	Data      interface{}            `json:"data,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	ID        string                 `json:"id,omitempty"`
}

type ChannelType string

const (
	ChannelNotifications ChannelType = "notifications"
	ChannelResources     ChannelType = "resources"
	ChannelSystem        ChannelType = "system"
)

// SubscribeRequest sent by client to subscribe to or leave channels
type SubscribeRequest struct {
	Channels []ChannelType `json:"channels"`
}

type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

type NotificationData struct {
	ID        int64                  `json:"id"`
	Title     string                 `json:"title"`
	Message   string                 `json:"message"`
	Type      string                 `json:"type"`
	IsRead    bool                   `json:"is_read"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
}

// ResourceEvent announces that cached views of Entity are out of date.
type ResourceEvent struct {
	TenantID int64           `json:"tenant_id"`
	Entity   resource.Entity `json:"entity"`
	Version  int64           `json:"version"`
	Families []string        `json:"families"`
}

// ResyncRequest carries the versions a reconnecting client last saw.
type ResyncRequest struct {
	Versions map[resource.Entity]int64 `json:"versions"`
}

type SessionEventData struct {
	SessionID string `json:"session_id"`
	Reason    string `json:"reason"`
	Message   string `json:"message"`
}

func NewMessage(eventType EventType, data interface{}) *WSMessage {
	return &WSMessage{
		Type:      eventType,
		Data:      data,
		Timestamp: time.Now(),
		ID:        uuid.NewString(),
	}
}

func (m *WSMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func ParseMessage(data []byte) (*WSMessage, error) {
	var msg WSMessage
	err := json.Unmarshal(data, &msg)
	return &msg, err
}

// DecodeData re-decodes the loosely typed Data field into v.
func (m *WSMessage) DecodeData(v interface{}) error {
	raw, err := json.Marshal(m.Data)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, v)
}
