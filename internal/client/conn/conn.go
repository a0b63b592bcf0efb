// Package conn owns the lifecycle of the single persistent websocket
// connection. A Manager moves through Disconnected → Connecting → Open →
// Closed; Closed is terminal and a fresh Manager is required to reconnect. A
// dropped connection is treated as loss of authentication, never retried.
package conn

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/voss-dev/forumsync/internal/client/debug"
	"github.com/voss-dev/forumsync/internal/protocol"
)

type State int

const (
	Disconnected State = iota
	Connecting
	Open
	Closed
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Open:
		return "open"
	case Closed:
		return "closed"
	}
	return "unknown"
}

var (
	// ErrNotConnected is returned by Send when the connection is not Open.
	ErrNotConnected = errors.New("conn: not connected")
	// ErrClosed is returned by Open on a Manager that has already closed.
	ErrClosed = errors.New("conn: closed, new connection required")
)

// Handler consumes the payload of one inbound frame type.
type Handler func(payload json.RawMessage)

type Manager struct {
	url    string
	header http.Header

	mu    sync.Mutex
	state State
	ws    *websocket.Conn

	handlers map[string]Handler
	onOpen   func()
	onClose  func()
}

func New(url string, header http.Header) *Manager {
	return &Manager{
		url:      url,
		header:   header,
		state:    Disconnected,
		handlers: make(map[string]Handler),
	}
}

// Handle registers the handler for one frame type. Registration must happen
// before Open; inbound frames with no registered handler are dropped.
func (m *Manager) Handle(frameType string, h Handler) {
	m.handlers[frameType] = h
}

// OnOpen registers a hook invoked after the handshake succeeds, before any
// inbound frame is dispatched. Used for the initial presence refresh.
func (m *Manager) OnOpen(fn func()) { m.onOpen = fn }

// OnClose registers a hook invoked exactly once when the connection closes,
// whether peer-initiated or local.
func (m *Manager) OnClose(fn func()) { m.onClose = fn }

func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Open dials the server. A no-op when already Open or Connecting; an error
// once Closed.
func (m *Manager) Open() error {
	m.mu.Lock()
	switch m.state {
	case Open, Connecting:
		m.mu.Unlock()
		return nil
	case Closed:
		m.mu.Unlock()
		return ErrClosed
	}
	m.state = Connecting
	m.mu.Unlock()

	ws, _, err := websocket.DefaultDialer.Dial(m.url, m.header)
	if err != nil {
		m.mu.Lock()
		m.state = Disconnected
		m.mu.Unlock()
		return err
	}

	m.mu.Lock()
	if m.state == Closed {
		// Closed while the dial was in flight.
		m.mu.Unlock()
		ws.Close()
		return ErrClosed
	}
	m.ws = ws
	m.state = Open
	m.mu.Unlock()

	if m.onOpen != nil {
		m.onOpen()
	}
	go m.readLoop(ws)
	return nil
}

// Send serializes {type, payload} and transmits it. Fails with
// ErrNotConnected unless the state is Open.
func (m *Manager) Send(frameType string, payload interface{}) error {
	frame, err := protocol.NewFrame(frameType, payload)
	if err != nil {
		return err
	}
	data, err := json.Marshal(frame)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != Open {
		return ErrNotConnected
	}
	return m.ws.WriteMessage(websocket.TextMessage, data)
}

// Close transitions to Closed and fires the OnClose hook. Idempotent.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.state == Closed {
		m.mu.Unlock()
		return
	}
	ws := m.ws
	m.state = Closed
	m.ws = nil
	m.mu.Unlock()

	if ws != nil {
		ws.Close()
	}
	if m.onClose != nil {
		m.onClose()
	}
}

func (m *Manager) readLoop(ws *websocket.Conn) {
	defer m.Close()

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			return
		}
		if len(data) == 0 {
			continue
		}

		var frame protocol.Frame
		if err := json.Unmarshal(data, &frame); err != nil {
			debug.Log("conn: dropping malformed frame: %v", err)
			continue
		}

		h, ok := m.handlers[frame.Type]
		if !ok {
			// Unknown types are dropped for forward compatibility.
			debug.Log("conn: no handler for frame type %q", frame.Type)
			continue
		}
		h(frame.Payload)
	}
}
