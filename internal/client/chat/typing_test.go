package chat

import (
	"testing"
	"time"

	"github.com/voss-dev/forumsync/internal/protocol"
)

func waitForFrames(t *testing.T, conn *fakeConn, frameType string, want int) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if conn.countType(frameType) >= want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("saw %d %s frames, want %d", conn.countType(frameType), frameType, want)
}

func TestKeystrokesDebounceIntoOneStop(t *testing.T) {
	conn := &fakeConn{}
	tc := NewTypingCoordinator(conn, 30*time.Millisecond)

	tc.Keystroke(2)
	tc.Keystroke(2)
	tc.Keystroke(2)

	if got := conn.countType(protocol.TypeTyping); got != 3 {
		t.Fatalf("sent %d typing frames, want one per keystroke", got)
	}
	if got := conn.countType(protocol.TypeStopTyping); got != 0 {
		t.Fatalf("stop_typing sent before the idle window elapsed")
	}

	waitForFrames(t, conn, protocol.TypeStopTyping, 1)
	time.Sleep(60 * time.Millisecond)
	if got := conn.countType(protocol.TypeStopTyping); got != 1 {
		t.Fatalf("sent %d stop_typing frames, want exactly 1", got)
	}
}

func TestSubmitStopsImmediately(t *testing.T) {
	conn := &fakeConn{}
	tc := NewTypingCoordinator(conn, time.Hour)

	tc.Keystroke(2)
	tc.Submitted(2)

	if got := conn.countType(protocol.TypeStopTyping); got != 1 {
		t.Fatalf("sent %d stop_typing frames after submit, want 1", got)
	}
}

func TestSubmitCancelsPendingTimer(t *testing.T) {
	conn := &fakeConn{}
	tc := NewTypingCoordinator(conn, 30*time.Millisecond)

	tc.Keystroke(2)
	tc.Submitted(2)

	time.Sleep(80 * time.Millisecond)
	if got := conn.countType(protocol.TypeStopTyping); got != 1 {
		t.Fatalf("timer fired after submit, %d stop_typing frames", got)
	}
}

func TestCancelIsSilent(t *testing.T) {
	conn := &fakeConn{}
	tc := NewTypingCoordinator(conn, 30*time.Millisecond)

	tc.Keystroke(2)
	tc.Cancel()

	time.Sleep(80 * time.Millisecond)
	if got := conn.countType(protocol.TypeStopTyping); got != 0 {
		t.Fatalf("Cancel leaked %d stop_typing frames", got)
	}
}

func TestKeystrokeForNewPeerSupersedesOld(t *testing.T) {
	conn := &fakeConn{}
	tc := NewTypingCoordinator(conn, 30*time.Millisecond)

	tc.Keystroke(2)
	tc.Keystroke(3)

	waitForFrames(t, conn, protocol.TypeStopTyping, 1)
	time.Sleep(60 * time.Millisecond)
	frames := conn.sent()
	stops := 0
	for _, f := range frames {
		if f.Type != protocol.TypeStopTyping {
			continue
		}
		stops++
		p := f.Payload.(protocol.TypingPayload)
		if p.ReceiverID != 3 {
			t.Fatalf("stop_typing addressed to %d, want 3", p.ReceiverID)
		}
	}
	if stops != 1 {
		t.Fatalf("sent %d stop_typing frames, want 1", stops)
	}
}
