// Package chat is the state-update core of the messaging client: optimistic
// sends, history pagination, presence ordering, typing signals and session
// liveness. It owns no rendering; every visible effect goes through the View
// interface so the TUI (or a test fake) can consume a ready view-model.
package chat

import "time"

// AppState is the mutable client context shared by reference across the chat
// components: who we are, which session token we hold and which conversation
// is open. ActivePeer is zero when no conversation panel is open.
type AppState struct {
	UserID     int
	Nickname   string
	Token      string
	ActivePeer int
}

// ViewMessage is one renderable entry of the open conversation. ID is the
// client-generated id until the server confirms the message, then the
// server-assigned id; the two never coexist as separate entries.
type ViewMessage struct {
	ID         string
	SenderID   int
	SenderName string
	Content    string
	Timestamp  time.Time
	IsRead     bool
	Mine       bool
}

// UserEntry is one row of the ordered user list.
type UserEntry struct {
	ID              int
	Nickname        string
	Online          bool
	LatestMessageAt *time.Time
}

// View is the surface the core drives. Implementations must be cheap; they
// are called with the controller's lock held.
type View interface {
	// ShowConversation opens the panel for a peer, replacing any previous one.
	ShowConversation(peerID int)
	// RenderHistory replaces the visible history of the open conversation.
	RenderHistory(peerID int, msgs []ViewMessage)
	// AppendMessage adds one message to the end of the open conversation.
	AppendMessage(peerID int, msg ViewMessage)
	// RetractMessage removes an optimistic message after a failed send.
	RetractMessage(peerID int, id string)
	// ConfirmMessage swaps a message's identity from clientId to server id.
	ConfirmMessage(peerID int, oldID, newID string, isRead bool)
	// MarkMessageRead flips the read tick of one of our sent messages.
	MarkMessageRead(id string)
	RenderUserList(users []UserEntry)
	ShowTyping(peerID int, name string)
	ClearTyping(peerID int)
	// ShowError surfaces a recoverable failure inline in the given panel
	// ("users", "messages", "send", "session") without touching other state.
	ShowError(scope string, err error)
	// ForceLogout tears the UI back to the unauthenticated state.
	ForceLogout(reason string)
}
