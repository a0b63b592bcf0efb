package conn

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

var testUpgrader = websocket.Upgrader{}

// echoServer upgrades every request and writes the given raw frames to the
// client, then holds the connection open until the test finishes.
func echoServer(t *testing.T, frames ...string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		for _, f := range frames {
			ws.WriteMessage(websocket.TextMessage, []byte(f))
		}
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func waitFor(t *testing.T, cond func() bool, what string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestSendBeforeOpen(t *testing.T) {
	m := New("ws://127.0.0.1:0", nil)
	if err := m.Send("typing", nil); err != ErrNotConnected {
		t.Fatalf("Send() error = %v, want ErrNotConnected", err)
	}
}

func TestOpenDispatchesRegisteredFrames(t *testing.T) {
	srv := echoServer(t,
		`{"type":"typing","payload":{"senderId":2}}`,
		`not even json`,
		`{"type":"no_such_type","payload":{}}`,
		`{"type":"typing","payload":{"senderId":3}}`,
	)

	m := New(wsURL(srv), nil)
	var mu sync.Mutex
	var got []int
	m.Handle("typing", func(raw json.RawMessage) {
		var p struct {
			SenderID int `json:"senderId"`
		}
		if json.Unmarshal(raw, &p) == nil {
			mu.Lock()
			got = append(got, p.SenderID)
			mu.Unlock()
		}
	})

	if err := m.Open(); err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	defer m.Close()

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 2
	}, "both typing frames")

	mu.Lock()
	defer mu.Unlock()
	if got[0] != 2 || got[1] != 3 {
		t.Fatalf("dispatched senders = %v, want [2 3]", got)
	}
}

func TestOpenWhileOpenIsNoOp(t *testing.T) {
	srv := echoServer(t)

	opens := 0
	m := New(wsURL(srv), nil)
	m.OnOpen(func() { opens++ })

	if err := m.Open(); err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	defer m.Close()
	if err := m.Open(); err != nil {
		t.Fatalf("second Open() error: %v", err)
	}
	if opens != 1 {
		t.Fatalf("OnOpen fired %d times, want 1", opens)
	}
	if got := m.State(); got != Open {
		t.Fatalf("State() = %v, want open", got)
	}
}

func TestOpenAfterClose(t *testing.T) {
	m := New("ws://127.0.0.1:0", nil)
	m.Close()
	if err := m.Open(); err != ErrClosed {
		t.Fatalf("Open() after Close error = %v, want ErrClosed", err)
	}
}

func TestCloseFiresOnCloseOnce(t *testing.T) {
	srv := echoServer(t)

	var mu sync.Mutex
	closes := 0
	m := New(wsURL(srv), nil)
	m.OnClose(func() {
		mu.Lock()
		closes++
		mu.Unlock()
	})

	if err := m.Open(); err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	m.Close()
	m.Close()

	// The read loop also calls Close when the socket dies; give it time to
	// prove it does not fire the hook again.
	time.Sleep(50 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	if closes != 1 {
		t.Fatalf("OnClose fired %d times, want 1", closes)
	}
}

func TestPeerCloseIsTreatedAsLogout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		ws.Close()
	}))
	t.Cleanup(srv.Close)

	var mu sync.Mutex
	closed := false
	m := New(wsURL(srv), nil)
	m.OnClose(func() {
		mu.Lock()
		closed = true
		mu.Unlock()
	})

	if err := m.Open(); err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return closed
	}, "OnClose after peer hangup")
	if got := m.State(); got != Closed {
		t.Fatalf("State() = %v after peer hangup, want closed", got)
	}
	if err := m.Send("typing", nil); err != ErrNotConnected {
		t.Fatalf("Send() after hangup error = %v, want ErrNotConnected", err)
	}
}

func TestSendWritesEnvelope(t *testing.T) {
	received := make(chan []byte, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		_, data, err := ws.ReadMessage()
		if err != nil {
			return
		}
		received <- data
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)

	m := New(wsURL(srv), nil)
	if err := m.Open(); err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	defer m.Close()

	if err := m.Send("typing", map[string]int{"receiverId": 2}); err != nil {
		t.Fatalf("Send() error: %v", err)
	}

	select {
	case data := <-received:
		var frame struct {
			Type    string          `json:"type"`
			Payload json.RawMessage `json:"payload"`
		}
		if err := json.Unmarshal(data, &frame); err != nil {
			t.Fatalf("server received invalid JSON: %v", err)
		}
		if frame.Type != "typing" {
			t.Fatalf("frame type = %q, want typing", frame.Type)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("server never received the frame")
	}
}
