package websocket

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
)

// Message is a real-time sync notification.
type Message struct {
	Type   string         `json:"type"`
	Entity string         `json:"entity"`
	Action string         `json:"action"`
	ID     int64          `json:"id,omitempty"`
	Extra  map[string]any `json:"extra,omitempty"`
}

// NewMessage creates a Message with the Type field derived from entity and action.
func NewMessage(entity, action string, id int64, extra map[string]any) Message {
	return Message{
		Type:   fmt.Sprintf("%s_%s", entity, action),
		Entity: entity,
		Action: action,
		ID:     id,
		Extra:  extra,
	}
}

// ItemEvent announces a pantry item change to the item's household.
func ItemEvent(action string, itemID int64) Message {
	return NewMessage("item", action, itemID, nil)
}

// ShoppingEvent announces a shopping list change.
func ShoppingEvent(action string, itemID int64) Message {
	return NewMessage("shopping", action, itemID, nil)
}

// MemberEvent announces a membership change (joined, deactivated, removed).
func MemberEvent(action string, userID int64) Message {
	return NewMessage("member", action, userID, nil)
}

// NoticeEvent announces a new downgrade notice to its user.
func NoticeEvent(noticeID int64, householdName string) Message {
	return NewMessage("notice", "created", noticeID, map[string]any{"household_name": householdName})
}

// InviteEvent announces a household invitation to an existing account.
func InviteEvent(householdName string) Message {
	return NewMessage("invite", "received", 0, map[string]any{"household_name": householdName})
}

// EntitlementEvent announces that the user's entitlement changed and the
// client should re-fetch.
func EntitlementEvent(isActive bool) Message {
	return NewMessage("entitlement", "changed", 0, map[string]any{"is_active": isActive})
}

// Hub tracks connected clients and routes messages. Clients carry the user
// and household they authenticated as, so broadcasts can target a household
// or a single user.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}
	logger  *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		clients: make(map[*Client]struct{}),
		logger:  logger,
	}
}

// Register adds a client to the hub.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
}

// Unregister removes a client from the hub and closes its send channel.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

// BroadcastHousehold sends a message to every client in one household.
func (h *Hub) BroadcastHousehold(householdID int64, msg Message) {
	h.broadcast(msg, func(c *Client) bool { return c.householdID == householdID })
}

// BroadcastUser sends a message to every connection a user has open.
func (h *Hub) BroadcastUser(userID int64, msg Message) {
	h.broadcast(msg, func(c *Client) bool { return c.userID == userID })
}

func (h *Hub) broadcast(msg Message, match func(*Client) bool) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("marshal broadcast", "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.clients {
		if !match(c) {
			continue
		}
		select {
		case c.send <- data:
		default:
			// Client buffer full; drop rather than block the broadcaster.
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
