package ws

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"
)

// Hub tracks live websocket connections grouped by user. Delivery is
// best-effort: a slow or gone connection never blocks a publish.
type Hub struct {
	mu     sync.RWMutex
	groups map[string]map[*Client]bool
}

// MainHub is the global hub used by the HTTP layer and the reconciliation
// engine's fan-out.
var MainHub = NewHub()

func NewHub() *Hub {
	return &Hub{
		groups: make(map[string]map[*Client]bool),
	}
}

// GroupForUser names the connection group that receives one user's updates.
func GroupForUser(userID uint) string {
	return fmt.Sprintf("user_%d", userID)
}

// Register adds a client to a group.
func (h *Hub) Register(group string, client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.groups[group] == nil {
		h.groups[group] = make(map[*Client]bool)
	}
	h.groups[group][client] = true
	log.Printf("[WS] client %s joined group %s", client.ID, group)
}

// Unregister removes a client from its group and drops empty groups.
func (h *Hub) Unregister(group string, client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if clients, ok := h.groups[group]; ok {
		delete(clients, client)
		if len(clients) == 0 {
			delete(h.groups, group)
		}
	}
	log.Printf("[WS] client %s left group %s", client.ID, group)
}

// Publish sends a JSON payload to every connection in a group, fire and
// forget. Connections whose send buffer is full are skipped.
func (h *Hub) Publish(group string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Printf("[WS] failed to marshal payload for group %s: %v", group, err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.groups[group] {
		select {
		case client.send <- data:
		default:
			log.Printf("[WS] dropping update for slow client %s in group %s", client.ID, group)
		}
	}
}

// GroupSize reports how many connections a group currently has.
func (h *Hub) GroupSize(group string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.groups[group])
}
