// Package protocol defines the frame envelope and payload types exchanged
// over the chat websocket. Every frame is a tagged {type, payload} record;
// both client and server dispatch on Type.
package protocol

import (
	"encoding/json"
	"time"
)

// Frame types.
const (
	TypePrivateMessage      = "private_message"
	TypeMessageConfirmation = "message_confirmation"
	TypeMarkRead            = "mark_read"
	TypeMessageRead         = "message_read"
	TypeTyping              = "typing"
	TypeStopTyping          = "stop_typing"
	TypeOnlineUsers         = "online_users"
)

type Frame struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// NewFrame marshals payload into a Frame. A nil payload produces a bare
// frame, which is valid for types like online_users.
func NewFrame(frameType string, payload interface{}) (Frame, error) {
	f := Frame{Type: frameType}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return Frame{}, err
		}
		f.Payload = data
	}
	return f, nil
}

// PrivateMessagePayload travels in both directions. Outbound from a client it
// carries ReceiverID, Content and the client-generated MessageID; inbound it
// carries the sender identity and the server-assigned MessageID.
type PrivateMessagePayload struct {
	MessageID  string    `json:"messageId"`
	SenderID   int       `json:"senderId,omitempty"`
	SenderName string    `json:"senderName,omitempty"`
	ReceiverID int       `json:"receiverId,omitempty"`
	Content    string    `json:"content"`
	Timestamp  time.Time `json:"timestamp,omitempty"`
	IsRead     bool      `json:"isRead,omitempty"`
}

// ConfirmationPayload links a client-generated message id to the identity the
// server assigned when it persisted the message.
type ConfirmationPayload struct {
	ClientMessageID string `json:"clientMessageId"`
	MessageID       string `json:"messageId"`
	ReceiverID      int    `json:"receiverId"`
	IsRead          bool   `json:"isRead"`
}

type MarkReadPayload struct {
	SenderID  int    `json:"senderId"`
	MessageID string `json:"messageId"`
}

type MessageReadPayload struct {
	MessageID string `json:"messageId"`
}

// TypingPayload is used for both typing and stop_typing. Outbound frames set
// ReceiverID; the server rewrites the payload with the sender identity before
// relaying.
type TypingPayload struct {
	SenderID   int    `json:"senderId,omitempty"`
	SenderName string `json:"senderName,omitempty"`
	ReceiverID int    `json:"receiverId,omitempty"`
}
