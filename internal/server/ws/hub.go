// Package ws is the real-time side of the server: one websocket client per
// authenticated user, a hub that routes frames between them, and an
// online_users broadcast on every join and leave.
package ws

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/voss-dev/forumsync/internal/protocol"
)

// Store is the slice of the storage layer the hub needs. Narrow so tests can
// substitute an in-memory fake.
type Store interface {
	SaveMessage(id string, senderID, receiverID int, content string) (time.Time, error)
	MarkMessageRead(messageID string, readerID int) (int, error)
}

type Hub struct {
	Store Store

	Register   chan *Client
	Unregister chan *Client

	mu      sync.RWMutex
	clients map[int]*Client // one connection per user id
}

func NewHub(store Store) *Hub {
	return &Hub{
		Store:      store,
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		clients:    make(map[int]*Client),
	}
}

// Run processes joins and leaves. Every membership change triggers an
// online_users broadcast so clients refresh their lists.
func (h *Hub) Run() {
	for {
		select {
		case c := <-h.Register:
			h.mu.Lock()
			if old, ok := h.clients[c.UserID]; ok {
				// A second login displaces the first connection. Its
				// Unregister will no longer match, so the write pump
				// must be released here.
				log.Printf("displacing connection of user %d", c.UserID)
				old.Conn.Close()
				close(old.Send)
			}
			h.clients[c.UserID] = c
			h.mu.Unlock()
			h.broadcastOnlineUsers()

		case c := <-h.Unregister:
			h.mu.Lock()
			if cur, ok := h.clients[c.UserID]; ok && cur == c {
				delete(h.clients, c.UserID)
				close(c.Send)
			}
			h.mu.Unlock()
			h.broadcastOnlineUsers()
		}
	}
}

// Online reports whether the user currently holds a connection.
func (h *Hub) Online(userID int) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.clients[userID]
	return ok
}

// SendTo delivers one frame to a user, a no-op when they are offline.
func (h *Hub) SendTo(userID int, frameType string, payload interface{}) {
	frame, err := protocol.NewFrame(frameType, payload)
	if err != nil {
		log.Printf("ws: building %s frame: %v", frameType, err)
		return
	}
	data, err := json.Marshal(frame)
	if err != nil {
		return
	}

	h.mu.RLock()
	c, ok := h.clients[userID]
	h.mu.RUnlock()
	if !ok {
		return
	}
	select {
	case c.Send <- data:
	default:
		// Slow consumer; dropping beats blocking the hub.
		log.Printf("ws: dropping %s frame for slow user %d", frameType, userID)
	}
}

func (h *Hub) broadcastOnlineUsers() {
	frame, _ := protocol.NewFrame(protocol.TypeOnlineUsers, nil)
	data, err := json.Marshal(frame)
	if err != nil {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		select {
		case c.Send <- data:
		default:
		}
	}
}
