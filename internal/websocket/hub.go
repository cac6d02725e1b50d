// Package websocket pushes realtime sync events to operator dashboards
package websocket

import (
	"encoding/json"
	"log"
	"sync"
	"time"
)

// Event is the envelope broadcast for every sync write
type Event struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
	At   time.Time   `json:"at"`
}

// Hub maintains the set of listening clients and fans events out to them
type Hub struct {
	// Registered clients: client ID -> Client
	clients map[string]*Client

	register   chan *Client
	unregister chan *Client
	broadcast  chan []byte

	mu sync.RWMutex
}

// NewHub creates a new Hub instance
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan []byte, 256),
	}
}

// Run starts the hub's main loop
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.ID] = client
			h.mu.Unlock()
			log.Printf("📺 Sync feed listener connected: %s", client.ID)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client.ID]; ok {
				delete(h.clients, client.ID)
				close(client.send)
				log.Printf("📴 Sync feed listener disconnected: %s", client.ID)
			}
			h.mu.Unlock()

		case message := <-h.broadcast:
			h.mu.Lock()
			for id, client := range h.clients {
				select {
				case client.send <- message:
				default:
					// Slow listener: drop it rather than block the feed
					delete(h.clients, id)
					close(client.send)
				}
			}
			h.mu.Unlock()
		}
	}
}

// Publish queues an event for every listener. It never blocks the caller:
// when the broadcast buffer is full the event is dropped.
func (h *Hub) Publish(event string, data interface{}) {
	msg, err := json.Marshal(Event{Type: event, Data: data, At: time.Now().UTC()})
	if err != nil {
		log.Printf("Error marshaling %s event: %v", event, err)
		return
	}
	select {
	case h.broadcast <- msg:
	default:
		log.Printf("⚠️ Sync feed backlog full, dropping %s event", event)
	}
}

// ClientCount reports how many listeners are connected
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
