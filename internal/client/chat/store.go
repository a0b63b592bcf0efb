package chat

import (
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/voss-dev/forumsync/internal/client/api"
	"github.com/voss-dev/forumsync/internal/protocol"
)

// PendingMessage exists only between "sent locally" and "confirmed or
// failed".
type PendingMessage struct {
	ClientID   string
	ReceiverID int
	Content    string
	Timestamp  time.Time
}

// MessageStore owns the optimistic send lifecycle and the visible history of
// the open conversation. Pending messages are app-level and survive
// conversation switches; the visible slice and its dedupe set are discarded
// on every switch. Methods are not locked: the Controller serializes access.
type MessageStore struct {
	app  *AppState
	send frameSender
	view View

	pending map[string]PendingMessage
	visible []ViewMessage
	seen    map[string]bool // server-confirmed ids already rendered
	now     func() time.Time
}

func NewMessageStore(app *AppState, send frameSender, view View) *MessageStore {
	return &MessageStore{
		app:     app,
		send:    send,
		view:    view,
		pending: make(map[string]PendingMessage),
		seen:    make(map[string]bool),
		now:     time.Now,
	}
}

// newClientID builds an id unique within the process lifetime: wall-clock
// millis plus a random suffix.
func newClientID(at time.Time) string {
	return strconv.FormatInt(at.UnixMilli(), 10) + "-" + uuid.NewString()[:8]
}

// Send records a pending message, renders it optimistically when the
// receiver is the open conversation, then transmits the private_message
// frame. A failed transmit rolls everything back; the content is not
// requeued.
func (s *MessageStore) Send(receiverID int, content string) (string, error) {
	ts := s.now().UTC()
	clientID := newClientID(ts)

	s.pending[clientID] = PendingMessage{
		ClientID:   clientID,
		ReceiverID: receiverID,
		Content:    content,
		Timestamp:  ts,
	}

	rendered := false
	if s.app.ActivePeer == receiverID {
		vm := ViewMessage{
			ID:         clientID,
			SenderID:   s.app.UserID,
			SenderName: s.app.Nickname,
			Content:    content,
			Timestamp:  ts,
			Mine:       true,
		}
		s.visible = append(s.visible, vm)
		s.view.AppendMessage(receiverID, vm)
		rendered = true
	}

	err := s.send.Send(protocol.TypePrivateMessage, protocol.PrivateMessagePayload{
		MessageID:  clientID,
		ReceiverID: receiverID,
		Content:    content,
	})
	if err != nil {
		delete(s.pending, clientID)
		if rendered {
			s.removeVisible(clientID)
			s.view.RetractMessage(receiverID, clientID)
		}
		return "", err
	}
	return clientID, nil
}

// Confirm reconciles a pending message with its server identity. Idempotent:
// an unknown clientId (already reconciled or never tracked) is ignored.
func (s *MessageStore) Confirm(p protocol.ConfirmationPayload) (PendingMessage, bool) {
	pm, ok := s.pending[p.ClientMessageID]
	if !ok {
		return PendingMessage{}, false
	}
	delete(s.pending, p.ClientMessageID)

	if s.app.ActivePeer == pm.ReceiverID {
		for i := range s.visible {
			if s.visible[i].ID == p.ClientMessageID {
				s.visible[i].ID = p.MessageID
				s.visible[i].IsRead = p.IsRead
				s.seen[p.MessageID] = true
				s.view.ConfirmMessage(pm.ReceiverID, p.ClientMessageID, p.MessageID, p.IsRead)
				break
			}
		}
	}
	return pm, true
}

// AppendIncoming renders a message received for the open conversation.
// Already-seen server ids are dropped (late echo after a history reload).
func (s *MessageStore) AppendIncoming(p protocol.PrivateMessagePayload) bool {
	if s.seen[p.MessageID] {
		return false
	}
	vm := ViewMessage{
		ID:         p.MessageID,
		SenderID:   p.SenderID,
		SenderName: p.SenderName,
		Content:    p.Content,
		Timestamp:  p.Timestamp,
		IsRead:     p.IsRead,
	}
	s.visible = append(s.visible, vm)
	s.seen[p.MessageID] = true
	s.view.AppendMessage(s.app.ActivePeer, vm)
	return true
}

// SetHistory replaces the visible history with a freshly fetched page and
// re-appends any still-pending messages addressed to this peer, so an
// optimistic message never disappears while its confirmation is in flight.
func (s *MessageStore) SetHistory(peerID int, msgs []api.Message) {
	s.visible = s.visible[:0]
	s.seen = make(map[string]bool)
	for _, m := range msgs {
		s.visible = append(s.visible, s.fromAPI(m))
		s.seen[m.ID] = true
	}
	for _, pm := range s.pending {
		if pm.ReceiverID != peerID {
			continue
		}
		s.visible = append(s.visible, ViewMessage{
			ID:         pm.ClientID,
			SenderID:   s.app.UserID,
			SenderName: s.app.Nickname,
			Content:    pm.Content,
			Timestamp:  pm.Timestamp,
			Mine:       true,
		})
	}
	s.view.RenderHistory(peerID, s.snapshot())
}

// PrependHistory puts an older page in front of the visible history,
// skipping ids already rendered (overlapping pages).
func (s *MessageStore) PrependHistory(peerID int, msgs []api.Message) {
	fresh := make([]ViewMessage, 0, len(msgs))
	for _, m := range msgs {
		if s.seen[m.ID] {
			continue
		}
		fresh = append(fresh, s.fromAPI(m))
		s.seen[m.ID] = true
	}
	if len(fresh) == 0 {
		return
	}
	s.visible = append(fresh, s.visible...)
	s.view.RenderHistory(peerID, s.snapshot())
}

// MarkRead flips the read indicator of a sent message after a message_read
// frame.
func (s *MessageStore) MarkRead(messageID string) {
	for i := range s.visible {
		if s.visible[i].ID == messageID {
			s.visible[i].IsRead = true
			s.view.MarkMessageRead(messageID)
			return
		}
	}
}

// ResetConversation discards the visible history and dedupe state. Pending
// messages are kept: they belong to the session, not the panel.
func (s *MessageStore) ResetConversation() {
	s.visible = nil
	s.seen = make(map[string]bool)
}

// ClearPending drops all pending messages. Only used on disconnect, where
// the whole client state is discarded anyway.
func (s *MessageStore) ClearPending() {
	s.pending = make(map[string]PendingMessage)
}

// PendingCount reports how many messages await confirmation.
func (s *MessageStore) PendingCount() int { return len(s.pending) }

// Visible returns a copy of the open conversation's view-model.
func (s *MessageStore) Visible() []ViewMessage { return s.snapshot() }

func (s *MessageStore) fromAPI(m api.Message) ViewMessage {
	return ViewMessage{
		ID:         m.ID,
		SenderID:   m.SenderID,
		SenderName: m.Sender,
		Content:    m.Content,
		Timestamp:  m.Timestamp,
		IsRead:     m.IsRead,
		Mine:       m.SenderID == s.app.UserID,
	}
}

func (s *MessageStore) snapshot() []ViewMessage {
	out := make([]ViewMessage, len(s.visible))
	copy(out, s.visible)
	return out
}

func (s *MessageStore) removeVisible(id string) {
	for i := range s.visible {
		if s.visible[i].ID == id {
			s.visible = append(s.visible[:i], s.visible[i+1:]...)
			return
		}
	}
}
