package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestConnectionLimit(t *testing.T) {
	t.Setenv("MAX_CONNECTIONS_PER_IP", "2")
	rl := New()

	ip := "10.0.0.1"
	if !rl.CanConnect(ip) {
		t.Fatalf("CanConnect() = false with no connections")
	}
	rl.AddConnection(ip)
	rl.AddConnection(ip)
	if rl.CanConnect(ip) {
		t.Fatalf("CanConnect() = true at the cap")
	}
	rl.RemoveConnection(ip)
	if !rl.CanConnect(ip) {
		t.Fatalf("CanConnect() = false after a disconnect")
	}
	// Per-IP: another address is unaffected.
	if !rl.CanConnect("10.0.0.2") {
		t.Fatalf("connection cap leaked across IPs")
	}
}

func TestAuthAttemptLimit(t *testing.T) {
	t.Setenv("AUTH_ATTEMPTS_PER_MIN", "3")
	rl := New()

	ip := "10.0.0.1"
	for i := 0; i < 3; i++ {
		if !rl.CanAuth(ip) {
			t.Fatalf("CanAuth() = false on attempt %d", i+1)
		}
	}
	if rl.CanAuth(ip) {
		t.Fatalf("CanAuth() = true past the cap")
	}
	if !rl.CanAuth("10.0.0.2") {
		t.Fatalf("auth cap leaked across IPs")
	}
}

func TestMessageLimit(t *testing.T) {
	t.Setenv("MESSAGES_PER_MIN", "2")
	rl := New()

	for i := 0; i < 2; i++ {
		if !rl.CanMessage(1) {
			t.Fatalf("CanMessage() = false on message %d", i+1)
		}
	}
	if rl.CanMessage(1) {
		t.Fatalf("CanMessage() = true past the cap")
	}
	if !rl.CanMessage(2) {
		t.Fatalf("message cap leaked across users")
	}
}

func TestGetClientIP(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "192.168.1.5:4321"
	if got := GetClientIP(r); got != "192.168.1.5" {
		t.Fatalf("GetClientIP() = %q, want 192.168.1.5", got)
	}

	r.Header.Set("X-Real-IP", "203.0.113.9")
	if got := GetClientIP(r); got != "203.0.113.9" {
		t.Fatalf("GetClientIP() = %q, want X-Real-IP value", got)
	}

	r.Header.Set("X-Forwarded-For", "198.51.100.7")
	if got := GetClientIP(r); got != "198.51.100.7" {
		t.Fatalf("GetClientIP() = %q, want X-Forwarded-For value", got)
	}
}
