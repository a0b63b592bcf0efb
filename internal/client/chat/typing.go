package chat

import (
	"sync"
	"time"

	"github.com/voss-dev/forumsync/internal/protocol"
)

// DefaultTypingIdle is how long after the last keystroke stop_typing fires.
const DefaultTypingIdle = time.Second

// TypingCoordinator debounces local keystrokes into typing/stop_typing
// frames. Every keystroke sends typing immediately and restarts the idle
// timer; only the timer elapsing (or a submit) produces stop_typing. It has
// its own lock because the timer fires on its own goroutine.
type TypingCoordinator struct {
	mu    sync.Mutex
	send  frameSender
	idle  time.Duration
	timer *time.Timer
	peer  int
}

func NewTypingCoordinator(send frameSender, idle time.Duration) *TypingCoordinator {
	if idle <= 0 {
		idle = DefaultTypingIdle
	}
	return &TypingCoordinator{send: send, idle: idle}
}

// Keystroke reports local input addressed to the given peer.
func (t *TypingCoordinator) Keystroke(peerID int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.timer != nil {
		t.timer.Stop()
	}
	t.peer = peerID
	t.send.Send(protocol.TypeTyping, protocol.TypingPayload{ReceiverID: peerID})
	t.timer = time.AfterFunc(t.idle, func() { t.idleElapsed(peerID) })
}

func (t *TypingCoordinator) idleElapsed(peerID int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	// A conversation switch or submit may have won the race with the timer.
	if t.peer != peerID {
		return
	}
	t.timer = nil
	t.peer = 0
	t.send.Send(protocol.TypeStopTyping, protocol.TypingPayload{ReceiverID: peerID})
}

// Submitted reports that a message was sent: any pending timer is cancelled
// and stop_typing goes out immediately.
func (t *TypingCoordinator) Submitted(peerID int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	t.peer = 0
	t.send.Send(protocol.TypeStopTyping, protocol.TypingPayload{ReceiverID: peerID})
}

// Cancel silently drops any pending timer, without emitting stop_typing.
// Used on conversation teardown and disconnect.
func (t *TypingCoordinator) Cancel() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	t.peer = 0
}
