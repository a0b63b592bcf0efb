package chat

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/voss-dev/forumsync/internal/client/api"
	"github.com/voss-dev/forumsync/internal/client/conn"
	"github.com/voss-dev/forumsync/internal/client/debug"
	"github.com/voss-dev/forumsync/internal/protocol"
)

// DefaultPageSize is the number of messages fetched per history page.
const DefaultPageSize = 10

// ErrNoConversation is returned when a send is attempted with no open panel.
var ErrNoConversation = errors.New("chat: no open conversation")

type frameSender interface {
	Send(frameType string, payload interface{}) error
}

// Connection is the slice of the connection manager the controller needs.
type Connection interface {
	frameSender
	Close()
}

type restClient interface {
	sessionResolver
	Users(ctx context.Context) ([]api.User, error)
	Messages(ctx context.Context, with, limit int, before time.Time) ([]api.Message, error)
	Logout(ctx context.Context) error
}

// Controller is the top-level orchestrator: it selects the active peer,
// drives backward pagination, and wires the store, presence tracker, typing
// coordinator and session guard together. It is the only component that
// knows which conversation is currently open.
//
// All I/O happens outside the lock; after every suspension point the result
// is applied only if the conversation it belongs to is still the active one.
type Controller struct {
	mu   sync.Mutex
	app  *AppState
	view View
	rest restClient
	conn Connection

	store    *MessageStore
	presence *PresenceTracker
	typing   *TypingCoordinator
	guard    *SessionGuard

	pageSize     int
	oldestLoaded time.Time // zero while nothing is loaded
	loadingOlder bool
	atStart      bool // an empty older page ends pagination for this panel
}

func NewController(app *AppState, view View, rest *api.Client, connection Connection) *Controller {
	return newController(app, view, rest, connection)
}

// newController takes the narrow interfaces so tests can substitute fakes.
func newController(app *AppState, view View, rest restClient, connection Connection) *Controller {
	c := &Controller{
		app:      app,
		view:     view,
		rest:     rest,
		conn:     connection,
		pageSize: DefaultPageSize,
	}
	c.store = NewMessageStore(app, connection, view)
	c.presence = NewPresenceTracker()
	c.typing = NewTypingCoordinator(connection, DefaultTypingIdle)
	c.guard = NewSessionGuard(app, rest,
		c.forceLogout,
		func(err error) { c.view.ShowError("session", err) },
	)
	return c
}

// Bind registers the inbound dispatch table and lifecycle hooks on the
// connection manager. Malformed payloads are dropped without effect.
func (c *Controller) Bind(m *conn.Manager) {
	m.Handle(protocol.TypePrivateMessage, func(raw json.RawMessage) {
		var p protocol.PrivateMessagePayload
		if json.Unmarshal(raw, &p) == nil {
			c.handlePrivateMessage(p)
		}
	})
	m.Handle(protocol.TypeMessageConfirmation, func(raw json.RawMessage) {
		var p protocol.ConfirmationPayload
		if json.Unmarshal(raw, &p) == nil {
			c.handleConfirmation(p)
		}
	})
	m.Handle(protocol.TypeMessageRead, func(raw json.RawMessage) {
		var p protocol.MessageReadPayload
		if json.Unmarshal(raw, &p) == nil {
			c.handleMessageRead(p)
		}
	})
	m.Handle(protocol.TypeTyping, func(raw json.RawMessage) {
		var p protocol.TypingPayload
		if json.Unmarshal(raw, &p) == nil {
			c.handleTyping(p, true)
		}
	})
	m.Handle(protocol.TypeStopTyping, func(raw json.RawMessage) {
		var p protocol.TypingPayload
		if json.Unmarshal(raw, &p) == nil {
			c.handleTyping(p, false)
		}
	})
	m.Handle(protocol.TypeOnlineUsers, func(json.RawMessage) {
		// Full refresh off the read loop; the frame itself carries nothing.
		go c.RefreshUsers(context.Background())
	})
	m.OnOpen(func() {
		go c.RefreshUsers(context.Background())
	})
	m.OnClose(c.handleDisconnect)
}

// OpenConversation tears down the previous panel, makes peerID active and
// loads the most recent page, then issues one mark_read frame per unread
// message from the peer.
func (c *Controller) OpenConversation(ctx context.Context, peerID int) error {
	c.mu.Lock()
	c.typing.Cancel()
	c.app.ActivePeer = peerID
	c.store.ResetConversation()
	c.oldestLoaded = time.Time{}
	c.loadingOlder = false
	c.atStart = false
	c.view.ShowConversation(peerID)
	c.view.ClearTyping(peerID)
	c.mu.Unlock()

	msgs, err := c.rest.Messages(ctx, peerID, c.pageSize, time.Time{})

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.app.ActivePeer != peerID {
		// The panel moved on while the fetch was in flight.
		return nil
	}
	if err != nil {
		c.view.ShowError("messages", err)
		return err
	}

	c.store.SetHistory(peerID, msgs)
	if len(msgs) > 0 {
		c.oldestLoaded = msgs[0].Timestamp
		c.presence.Touch(peerID, msgs[len(msgs)-1].Timestamp)
	}
	for _, m := range msgs {
		if m.SenderID == peerID && !m.IsRead {
			c.conn.Send(protocol.TypeMarkRead, protocol.MarkReadPayload{
				SenderID:  peerID,
				MessageID: m.ID,
			})
		}
	}
	return nil
}

// CloseConversation discards the panel state entirely; cursors do not carry
// over to the next peer.
func (c *Controller) CloseConversation() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.typing.Cancel()
	c.app.ActivePeer = 0
	c.store.ResetConversation()
	c.oldestLoaded = time.Time{}
	c.loadingOlder = false
	c.atStart = false
}

// LoadOlder fetches the page strictly older than the current cursor and
// prepends it. A no-op while a fetch is in flight, before anything is
// loaded, or once the beginning of history was reached.
func (c *Controller) LoadOlder(ctx context.Context) error {
	c.mu.Lock()
	if c.loadingOlder || c.oldestLoaded.IsZero() || c.atStart {
		c.mu.Unlock()
		return nil
	}
	peerID := c.app.ActivePeer
	before := c.oldestLoaded
	c.loadingOlder = true
	c.mu.Unlock()

	msgs, err := c.rest.Messages(ctx, peerID, c.pageSize, before)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.loadingOlder = false
	if c.app.ActivePeer != peerID {
		return nil
	}
	if err != nil {
		c.view.ShowError("messages", err)
		return err
	}
	if len(msgs) == 0 {
		c.atStart = true
		return nil
	}

	c.store.PrependHistory(peerID, msgs)
	if ts := msgs[0].Timestamp; ts.Before(c.oldestLoaded) {
		c.oldestLoaded = ts
	}
	return nil
}

// SendMessage runs the optimistic send for the open conversation. The
// session check races with the send on purpose.
func (c *Controller) SendMessage(ctx context.Context, content string) error {
	if content == "" {
		return nil
	}
	c.mu.Lock()
	peerID := c.app.ActivePeer
	c.mu.Unlock()
	if peerID == 0 {
		return ErrNoConversation
	}

	c.guard.CheckAsync(ctx)
	c.typing.Submitted(peerID)

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, err := c.store.Send(peerID, content); err != nil {
		debug.Log("controller: send to %d failed: %v", peerID, err)
		c.view.ShowError("send", err)
		return err
	}
	c.presence.Touch(peerID, time.Now().UTC())
	c.view.RenderUserList(c.presence.Sorted())
	return nil
}

// Keystroke feeds the typing coordinator for the open conversation.
func (c *Controller) Keystroke() {
	c.mu.Lock()
	peerID := c.app.ActivePeer
	c.mu.Unlock()
	if peerID == 0 {
		return
	}
	c.typing.Keystroke(peerID)
}

// RefreshUsers reloads the user list and recomputes the display order. The
// latest-message time of users never seen before is seeded with a one-message
// history probe and cached from then on.
func (c *Controller) RefreshUsers(ctx context.Context) error {
	users, err := c.rest.Users(ctx)
	if err != nil {
		c.view.ShowError("users", err)
		return err
	}

	filtered := users[:0]
	for _, u := range users {
		if u.ID != c.app.UserID {
			filtered = append(filtered, u)
		}
	}

	type probe struct {
		id int
		at time.Time
	}
	var probes []probe
	for _, u := range filtered {
		c.mu.Lock()
		known := c.presence.KnowsLatest(u.ID)
		c.mu.Unlock()
		if known {
			continue
		}
		page, err := c.rest.Messages(ctx, u.ID, 1, time.Time{})
		if err != nil || len(page) == 0 {
			continue
		}
		probes = append(probes, probe{id: u.ID, at: page[len(page)-1].Timestamp})
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.presence.SetUsers(filtered)
	for _, p := range probes {
		c.presence.Touch(p.id, p.at)
	}
	c.view.RenderUserList(c.presence.Sorted())
	return nil
}

// Logout is the user-initiated path: best-effort server logout, then the
// same teardown a disconnect causes.
func (c *Controller) Logout(ctx context.Context) {
	if err := c.rest.Logout(ctx); err != nil {
		debug.Log("controller: logout call failed: %v", err)
	}
	c.conn.Close()
}

// forceLogout is the session-mismatch path: closing the connection drives
// the full teardown through the OnClose hook.
func (c *Controller) forceLogout(reason string) {
	debug.Log("controller: forced logout: %s", reason)
	c.conn.Close()
}

// handleDisconnect treats any close as a logout-equivalent event: presence
// and conversation state are discarded, the view returns to the
// unauthenticated state.
func (c *Controller) handleDisconnect() {
	c.mu.Lock()
	c.typing.Cancel()
	c.presence.Clear()
	c.app.ActivePeer = 0
	c.store.ResetConversation()
	c.store.ClearPending()
	c.oldestLoaded = time.Time{}
	c.loadingOlder = false
	c.atStart = false
	c.mu.Unlock()
	c.view.ForceLogout("connection closed")
}

// --- Inbound frame handlers ---

func (c *Controller) handlePrivateMessage(p protocol.PrivateMessagePayload) {
	c.mu.Lock()
	active := c.app.ActivePeer
	if active != 0 && p.SenderID == active {
		if c.store.AppendIncoming(p) {
			c.conn.Send(protocol.TypeMarkRead, protocol.MarkReadPayload{
				SenderID:  p.SenderID,
				MessageID: p.MessageID,
			})
		}
	}
	c.presence.Touch(p.SenderID, p.Timestamp)
	list := c.presence.Sorted()
	c.mu.Unlock()
	c.view.RenderUserList(list)
}

func (c *Controller) handleConfirmation(p protocol.ConfirmationPayload) {
	c.mu.Lock()
	pm, ok := c.store.Confirm(p)
	if ok {
		c.presence.Touch(pm.ReceiverID, pm.Timestamp)
	}
	list := c.presence.Sorted()
	c.mu.Unlock()
	if ok {
		c.view.RenderUserList(list)
	}
}

func (c *Controller) handleMessageRead(p protocol.MessageReadPayload) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.store.MarkRead(p.MessageID)
}

// handleTyping covers typing and stop_typing; frames for any peer other than
// the active one are discarded without visible effect.
func (c *Controller) handleTyping(p protocol.TypingPayload, typing bool) {
	c.mu.Lock()
	active := c.app.ActivePeer
	c.mu.Unlock()
	if active == 0 || p.SenderID != active {
		return
	}
	if typing {
		c.view.ShowTyping(p.SenderID, p.SenderName)
	} else {
		c.view.ClearTyping(p.SenderID)
	}
}

// --- Introspection for the view layer ---

// ActivePeer returns the open conversation's peer id, zero if none.
func (c *Controller) ActivePeer() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.app.ActivePeer
}

// Users returns the current ordered user list.
func (c *Controller) Users() []UserEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.presence.Sorted()
}

// Messages returns the view-model of the open conversation.
func (c *Controller) Messages() []ViewMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.Visible()
}
