// Package handlers exposes the REST surface and the websocket upgrade. The
// session is an opaque token carried in the session_id cookie.
package handlers

import (
	"database/sql"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/crypto/bcrypt"

	"github.com/voss-dev/forumsync/internal/server/models"
	"github.com/voss-dev/forumsync/internal/server/ratelimit"
	"github.com/voss-dev/forumsync/internal/server/storage"
	"github.com/voss-dev/forumsync/internal/server/ws"
)

const sessionCookie = "session_id"

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

type API struct {
	Store   *storage.Store
	Hub     *ws.Hub
	Limiter *ratelimit.RateLimiter

	sessionTTL time.Duration
}

func New(store *storage.Store, hub *ws.Hub, limiter *ratelimit.RateLimiter) *API {
	ttl := 7 * 24 * time.Hour
	if v := os.Getenv("SESSION_TTL_HOURS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			ttl = time.Duration(n) * time.Hour
		}
	}
	return &API{Store: store, Hub: hub, Limiter: limiter, sessionTTL: ttl}
}

func (a *API) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/register", a.RegisterHandler)
	mux.HandleFunc("POST /api/login", a.LoginHandler)
	mux.HandleFunc("POST /api/logout", a.LogoutHandler)
	mux.HandleFunc("GET /api/users/me", a.MeHandler)
	mux.HandleFunc("GET /api/users", a.UsersHandler)
	mux.HandleFunc("GET /api/messages", a.MessagesHandler)
	mux.HandleFunc("GET /ws", a.WebSocketHandler)
	mux.HandleFunc("GET /healthz", HealthCheck)
	return mux
}

func HealthCheck(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

// --- Helpers ---

func respondJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		json.NewEncoder(w).Encode(v)
	}
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"error": msg})
}

// authenticate resolves the session cookie; it does not write a response.
func (a *API) authenticate(r *http.Request) (*models.User, error) {
	cookie, err := r.Cookie(sessionCookie)
	if err != nil || cookie.Value == "" {
		return nil, errors.New("no session")
	}
	userID, err := a.Store.SessionUser(cookie.Value)
	if err != nil {
		return nil, errors.New("invalid session")
	}
	return a.Store.GetUserByID(userID)
}

// --- Auth ---

func (a *API) RegisterHandler(w http.ResponseWriter, r *http.Request) {
	if !a.Limiter.CanAuth(ratelimit.GetClientIP(r)) {
		respondError(w, http.StatusTooManyRequests, "Too many attempts. Please wait a minute.")
		return
	}

	var reg models.Registration
	if err := json.NewDecoder(r.Body).Decode(&reg); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	reg.Nickname = strings.TrimSpace(reg.Nickname)
	reg.Email = strings.TrimSpace(strings.ToLower(reg.Email))
	if reg.Nickname == "" || reg.Email == "" || len(reg.Password) < 6 {
		respondError(w, http.StatusBadRequest, "Nickname, email and a password of at least 6 characters are required")
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(reg.Password), bcrypt.DefaultCost)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Registration failed")
		return
	}

	userID, err := a.Store.CreateUser(reg, string(hash))
	if err != nil {
		respondError(w, http.StatusConflict, "Nickname or email already taken")
		return
	}

	respondJSON(w, http.StatusCreated, map[string]interface{}{"id": userID})
}

func (a *API) LoginHandler(w http.ResponseWriter, r *http.Request) {
	if !a.Limiter.CanAuth(ratelimit.GetClientIP(r)) {
		respondError(w, http.StatusTooManyRequests, "Too many attempts. Please wait a minute.")
		return
	}

	var creds models.Credentials
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	user, err := a.Store.GetUserByIdentifier(strings.TrimSpace(creds.Identifier))
	if err != nil {
		respondError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(creds.Password)); err != nil {
		respondError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}

	token := uuid.NewString()
	if err := a.Store.CreateSession(token, user.ID, a.sessionTTL); err != nil {
		respondError(w, http.StatusInternalServerError, "Login failed")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Expires:  time.Now().Add(a.sessionTTL),
	})
	respondJSON(w, http.StatusOK, models.LoginResponse{User: *user, Token: token})
}

func (a *API) LogoutHandler(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(sessionCookie)
	if err == nil && cookie.Value != "" {
		a.Store.DeleteSession(cookie.Value)
	}
	http.SetCookie(w, &http.Cookie{
		Name:   sessionCookie,
		Value:  "",
		Path:   "/",
		MaxAge: -1,
	})
	respondJSON(w, http.StatusOK, map[string]string{"message": "logged out"})
}

// MeHandler resolves the session to its user; the client's session guard
// polls it before mutating actions.
func (a *API) MeHandler(w http.ResponseWriter, r *http.Request) {
	user, err := a.authenticate(r)
	if err != nil {
		respondError(w, http.StatusUnauthorized, "Authentication required")
		return
	}
	respondJSON(w, http.StatusOK, user)
}

// --- Users & messages ---

func (a *API) UsersHandler(w http.ResponseWriter, r *http.Request) {
	if _, err := a.authenticate(r); err != nil {
		respondError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	users, err := a.Store.ListUsers()
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to fetch users")
		return
	}
	for i := range users {
		users[i].IsOnline = a.Hub.Online(users[i].ID)
	}
	respondJSON(w, http.StatusOK, users)
}

// MessagesHandler returns one history page, oldest first. Query parameters:
// with (peer id, required), limit (default 10), and an optional RFC3339
// before cursor, in which case only strictly older messages are returned.
func (a *API) MessagesHandler(w http.ResponseWriter, r *http.Request) {
	user, err := a.authenticate(r)
	if err != nil {
		respondError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	withID, err := strconv.Atoi(r.URL.Query().Get("with"))
	if err != nil || withID <= 0 {
		respondError(w, http.StatusBadRequest, "Missing or invalid user id")
		return
	}

	limit := 10
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 100 {
			limit = n
		}
	}

	var before time.Time
	if v := r.URL.Query().Get("before"); v != "" {
		before, err = time.Parse(time.RFC3339Nano, v)
		if err != nil {
			respondError(w, http.StatusBadRequest, "Invalid before cursor")
			return
		}
	}

	messages, err := a.Store.MessagesBetween(user.ID, withID, limit, before)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		respondError(w, http.StatusInternalServerError, "Failed to fetch messages")
		return
	}
	if messages == nil {
		messages = []models.Message{}
	}
	respondJSON(w, http.StatusOK, messages)
}

// --- WebSocket ---

func (a *API) WebSocketHandler(w http.ResponseWriter, r *http.Request) {
	user, err := a.authenticate(r)
	if err != nil {
		respondError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	clientIP := ratelimit.GetClientIP(r)
	if !a.Limiter.CanConnect(clientIP) {
		respondError(w, http.StatusTooManyRequests, "Too many connections from your IP")
		log.Printf("rate limited connection from %s", clientIP)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Println("Upgrade error:", err)
		return
	}

	a.Limiter.AddConnection(clientIP)

	client := &ws.Client{
		Hub:      a.Hub,
		Conn:     conn,
		Send:     make(chan []byte, 256),
		UserID:   user.ID,
		Nickname: user.Nickname,
		IP:       clientIP,
		Limiter:  a.Limiter,
	}
	a.Hub.Register <- client

	// Writer goroutine
	go func() {
		defer a.Limiter.RemoveConnection(clientIP)
		client.WritePump()
	}()

	// Reader goroutine
	go client.ReadPump()
}
