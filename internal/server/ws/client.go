package ws

import (
	"encoding/json"
	"log"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/voss-dev/forumsync/internal/protocol"
	"github.com/voss-dev/forumsync/internal/server/ratelimit"
)

type Client struct {
	Hub      *Hub
	Conn     *websocket.Conn
	Send     chan []byte
	UserID   int
	Nickname string
	IP       string
	Limiter  *ratelimit.RateLimiter
}

func (c *Client) ReadPump() {
	defer func() {
		c.Hub.Unregister <- c
		c.Conn.Close()
	}()

	for {
		_, data, err := c.Conn.ReadMessage()
		if err != nil {
			break
		}

		var frame protocol.Frame
		if err := json.Unmarshal(data, &frame); err != nil {
			log.Printf("ws: malformed frame from user %d: %v", c.UserID, err)
			continue
		}

		c.ProcessFrame(frame)
	}
}

func (c *Client) WritePump() {
	defer c.Conn.Close()
	for msg := range c.Send {
		if err := c.Conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
}

func (c *Client) ProcessFrame(frame protocol.Frame) {
	switch frame.Type {
	case protocol.TypePrivateMessage:
		var p protocol.PrivateMessagePayload
		if err := json.Unmarshal(frame.Payload, &p); err != nil {
			return
		}
		if p.ReceiverID == 0 || p.ReceiverID == c.UserID || p.Content == "" {
			return
		}
		if !c.Limiter.CanMessage(c.UserID) {
			log.Printf("ws: user %d over message rate limit", c.UserID)
			return
		}

		id := uuid.NewString()
		createdAt, err := c.Hub.Store.SaveMessage(id, c.UserID, p.ReceiverID, p.Content)
		if err != nil {
			log.Printf("ws: saving message from %d to %d: %v", c.UserID, p.ReceiverID, err)
			return
		}

		// Confirm to the sender: their clientMessageId now has a server
		// identity.
		c.Hub.SendTo(c.UserID, protocol.TypeMessageConfirmation, protocol.ConfirmationPayload{
			ClientMessageID: p.MessageID,
			MessageID:       id,
			ReceiverID:      p.ReceiverID,
			IsRead:          false,
		})

		// Deliver to the receiver if they are online.
		c.Hub.SendTo(p.ReceiverID, protocol.TypePrivateMessage, protocol.PrivateMessagePayload{
			MessageID:  id,
			SenderID:   c.UserID,
			SenderName: c.Nickname,
			Content:    p.Content,
			Timestamp:  createdAt,
		})

	case protocol.TypeMarkRead:
		var p protocol.MarkReadPayload
		if err := json.Unmarshal(frame.Payload, &p); err != nil {
			return
		}
		senderID, err := c.Hub.Store.MarkMessageRead(p.MessageID, c.UserID)
		if err != nil {
			// Unknown id, already read, or not ours to mark.
			return
		}
		c.Hub.SendTo(senderID, protocol.TypeMessageRead, protocol.MessageReadPayload{
			MessageID: p.MessageID,
		})

	case protocol.TypeTyping, protocol.TypeStopTyping:
		var p protocol.TypingPayload
		if err := json.Unmarshal(frame.Payload, &p); err != nil {
			return
		}
		if p.ReceiverID == 0 || p.ReceiverID == c.UserID {
			return
		}
		c.Hub.SendTo(p.ReceiverID, frame.Type, protocol.TypingPayload{
			SenderID:   c.UserID,
			SenderName: c.Nickname,
		})

	default:
		// Unknown frame types are dropped.
	}
}
