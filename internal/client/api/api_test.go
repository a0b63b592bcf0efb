package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestLoginReturnsUserAndToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/login" {
			t.Fatalf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		var creds Credentials
		if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
			t.Fatalf("decoding credentials: %v", err)
		}
		if creds.Identifier != "alice" || creds.Password != "secret" {
			t.Fatalf("credentials = %+v", creds)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"user":  User{ID: 1, Nickname: "alice"},
			"token": "tok-123",
		})
	}))
	defer srv.Close()

	c := New(srv.URL, "")
	user, token, err := c.Login(context.Background(), Credentials{Identifier: "alice", Password: "secret"})
	if err != nil {
		t.Fatalf("Login() error: %v", err)
	}
	if user.ID != 1 || user.Nickname != "alice" {
		t.Fatalf("Login() user = %+v", user)
	}
	if token != "tok-123" {
		t.Fatalf("Login() token = %q, want tok-123", token)
	}
}

func TestLoginRejectedCredentials(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(map[string]string{"error": "invalid credentials"})
	}))
	defer srv.Close()

	c := New(srv.URL, "")
	_, _, err := c.Login(context.Background(), Credentials{Identifier: "alice", Password: "wrong"})
	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("Login() error = %v, want StatusError", err)
	}
	if se.Code != http.StatusUnauthorized {
		t.Fatalf("StatusError.Code = %d, want 401", se.Code)
	}
	if se.Message != "invalid credentials" {
		t.Fatalf("StatusError.Message = %q", se.Message)
	}
}

func TestMeSendsSessionCookie(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie("session_id")
		if err != nil || cookie.Value != "tok-123" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(User{ID: 1, Nickname: "alice", IsOnline: true})
	}))
	defer srv.Close()

	c := New(srv.URL, "tok-123")
	user, err := c.Me(context.Background())
	if err != nil {
		t.Fatalf("Me() error: %v", err)
	}
	if user.ID != 1 || !user.IsOnline {
		t.Fatalf("Me() user = %+v", user)
	}

	c = New(srv.URL, "wrong")
	_, err = c.Me(context.Background())
	var se *StatusError
	if !errors.As(err, &se) || se.Code != http.StatusUnauthorized {
		t.Fatalf("Me() with bad token error = %v, want 401 StatusError", err)
	}
}

func TestMessagesQueryParameters(t *testing.T) {
	before := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("with") != "2" {
			t.Fatalf("with = %q, want 2", q.Get("with"))
		}
		if q.Get("limit") != "10" {
			t.Fatalf("limit = %q, want 10", q.Get("limit"))
		}
		if q.Get("before") != before.Format(time.RFC3339Nano) {
			t.Fatalf("before = %q", q.Get("before"))
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode([]Message{
			{ID: "m1", SenderID: 2, Sender: "bob", Content: "hi", Timestamp: before.Add(-time.Hour)},
		})
	}))
	defer srv.Close()

	c := New(srv.URL, "tok")
	msgs, err := c.Messages(context.Background(), 2, 10, before)
	if err != nil {
		t.Fatalf("Messages() error: %v", err)
	}
	if len(msgs) != 1 || msgs[0].ID != "m1" {
		t.Fatalf("Messages() = %+v", msgs)
	}
}

func TestMessagesOmitsZeroCursor(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Has("before") {
			t.Fatalf("before param sent for the first page: %q", r.URL.RawQuery)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte("[]"))
	}))
	defer srv.Close()

	c := New(srv.URL, "tok")
	msgs, err := c.Messages(context.Background(), 2, 10, time.Time{})
	if err != nil {
		t.Fatalf("Messages() error: %v", err)
	}
	if len(msgs) != 0 {
		t.Fatalf("Messages() = %+v, want empty", msgs)
	}
}

func TestRegisterConflict(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		json.NewEncoder(w).Encode(map[string]string{"error": "nickname or email already taken"})
	}))
	defer srv.Close()

	c := New(srv.URL, "")
	err := c.Register(context.Background(), Registration{Nickname: "alice", Email: "a@b.c", Password: "pw"})
	var se *StatusError
	if !errors.As(err, &se) || se.Code != http.StatusConflict {
		t.Fatalf("Register() error = %v, want 409 StatusError", err)
	}
}
