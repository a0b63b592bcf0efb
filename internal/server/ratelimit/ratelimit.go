package ratelimit

import (
	"net"
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"
)

// RateLimiter caps websocket connections per IP, auth attempts per IP and
// chat messages per user.
type RateLimiter struct {
	connections  map[string]int         // IP -> connection count
	authAttempts map[string][]time.Time // IP -> timestamps of auth attempts
	messages     map[int][]time.Time    // user id -> timestamps of sent messages
	mu           sync.RWMutex
	maxConns     int
	maxAuth      int
	maxMessages  int
}

func New() *RateLimiter {
	maxConns := envInt("MAX_CONNECTIONS_PER_IP", 10)
	maxAuth := envInt("AUTH_ATTEMPTS_PER_MIN", 5)
	maxMessages := envInt("MESSAGES_PER_MIN", 60)

	rl := &RateLimiter{
		connections:  make(map[string]int),
		authAttempts: make(map[string][]time.Time),
		messages:     make(map[int][]time.Time),
		maxConns:     maxConns,
		maxAuth:      maxAuth,
		maxMessages:  maxMessages,
	}

	// Cleanup old attempt windows every minute
	go func() {
		for {
			time.Sleep(time.Minute)
			rl.cleanup()
		}
	}()

	return rl
}

func envInt(name string, def int) int {
	if v := os.Getenv(name); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func (rl *RateLimiter) cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := time.Now().Add(-time.Minute)
	for ip, attempts := range rl.authAttempts {
		valid := keepAfter(attempts, cutoff)
		if len(valid) == 0 {
			delete(rl.authAttempts, ip)
		} else {
			rl.authAttempts[ip] = valid
		}
	}
	for userID, sent := range rl.messages {
		valid := keepAfter(sent, cutoff)
		if len(valid) == 0 {
			delete(rl.messages, userID)
		} else {
			rl.messages[userID] = valid
		}
	}
}

func keepAfter(times []time.Time, cutoff time.Time) []time.Time {
	var valid []time.Time
	for _, t := range times {
		if t.After(cutoff) {
			valid = append(valid, t)
		}
	}
	return valid
}

func (rl *RateLimiter) CanConnect(ip string) bool {
	rl.mu.RLock()
	defer rl.mu.RUnlock()
	return rl.connections[ip] < rl.maxConns
}

func (rl *RateLimiter) AddConnection(ip string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.connections[ip]++
}

func (rl *RateLimiter) RemoveConnection(ip string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.connections[ip]--
	if rl.connections[ip] <= 0 {
		delete(rl.connections, ip)
	}
}

// CanAuth records an auth attempt for the IP and reports whether it is still
// under the per-minute cap.
func (rl *RateLimiter) CanAuth(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := time.Now().Add(-time.Minute)
	recent := keepAfter(rl.authAttempts[ip], cutoff)
	rl.authAttempts[ip] = recent

	if len(recent) >= rl.maxAuth {
		return false
	}

	rl.authAttempts[ip] = append(rl.authAttempts[ip], time.Now())
	return true
}

// CanMessage records a chat message for the user and reports whether they
// are still under the per-minute cap.
func (rl *RateLimiter) CanMessage(userID int) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := time.Now().Add(-time.Minute)
	recent := keepAfter(rl.messages[userID], cutoff)
	rl.messages[userID] = recent

	if len(recent) >= rl.maxMessages {
		return false
	}

	rl.messages[userID] = append(rl.messages[userID], time.Now())
	return true
}

func GetClientIP(r *http.Request) string {
	// Check X-Forwarded-For header (for reverse proxies)
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return xff
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	ip, _, _ := net.SplitHostPort(r.RemoteAddr)
	return ip
}
