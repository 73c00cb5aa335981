// Package hub fans bus events out to connected display clients, filtered by
// the station or service each client follows.
package hub

import (
	"encoding/json"
	"log"
	"sync"

	"qms/ticketing/internal/bus"
)

type Subscription struct {
	StationID string
	ServiceID string
}

type Client struct {
	ID           string
	Send         chan []byte
	Subscription Subscription
}

type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
}

type SubscribeMessage struct {
	Action    string `json:"action"`
	StationID string `json:"station_id"`
	ServiceID string `json:"service_id"`
}

func New() *Hub {
	return &Hub{clients: make(map[string]*Client)}
}

func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[client.ID] = client
}

func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[client.ID]; !ok {
		return
	}
	delete(h.clients, client.ID)
	close(client.Send)
}

func (h *Hub) UpdateSubscription(client *Client, sub Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	client.Subscription = sub
}

func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast queues payload for every client whose subscription matches meta.
// Slow clients lose messages instead of blocking the hub.
func (h *Hub) Broadcast(payload []byte, meta Subscription) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, client := range h.clients {
		if !match(client.Subscription, meta) {
			continue
		}
		select {
		case client.Send <- payload:
		default:
			log.Printf("drop message for client %s", client.ID)
		}
	}
}

// match treats an empty field on either side as a wildcard, so catalog
// events reach every client.
func match(sub Subscription, meta Subscription) bool {
	if sub.StationID != "" && meta.StationID != "" && meta.StationID != sub.StationID {
		return false
	}
	if sub.ServiceID != "" && meta.ServiceID != "" && meta.ServiceID != sub.ServiceID {
		return false
	}
	return true
}

func ParseSubscribe(data []byte) (SubscribeMessage, bool) {
	var msg SubscribeMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return SubscribeMessage{}, false
	}
	if msg.Action != "subscribe" && msg.Action != "unsubscribe" {
		return SubscribeMessage{}, false
	}
	return msg, true
}

// Subscriber is satisfied by *bus.Bus.
type Subscriber interface {
	On(t bus.Type, handler bus.Handler) bus.Subscription
}

// Relay broadcasts the wire form of every event on b.
func (h *Hub) Relay(b Subscriber) bus.Subscription {
	return b.On(bus.Wildcard, func(e bus.Event) {
		payload, err := json.Marshal(e)
		if err != nil {
			log.Printf("relay encode failed type=%s err=%v", e.Type, err)
			return
		}
		h.Broadcast(payload, metaFor(e))
	})
}

func metaFor(e bus.Event) Subscription {
	ticket, ok := bus.TicketOf(e.Data)
	if !ok {
		return Subscription{}
	}
	return Subscription{StationID: ticket.StationID, ServiceID: ticket.ServiceID}
}
