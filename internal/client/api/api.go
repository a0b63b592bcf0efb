// Package api is the REST side of the client: user list, conversation
// history pages and session resolution. The websocket carries everything
// real-time; this package carries everything fetchable.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
)

const sessionCookie = "session_id"

type User struct {
	ID       int    `json:"id"`
	Nickname string `json:"nickname"`
	IsOnline bool   `json:"isOnline"`
}

type Message struct {
	ID        string    `json:"id"`
	SenderID  int       `json:"senderId"`
	Sender    string    `json:"sender"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	IsRead    bool      `json:"isRead"`
}

type Credentials struct {
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
}

type Registration struct {
	Nickname  string `json:"nickname"`
	Email     string `json:"email"`
	Password  string `json:"password"`
	Age       int    `json:"age"`
	Gender    string `json:"gender"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

type apiError struct {
	Error string `json:"error"`
}

// StatusError is returned for non-2xx responses so callers can distinguish
// an unauthenticated session (401) from a transport failure.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("api: %d %s", e.Code, e.Message)
	}
	return fmt.Sprintf("api: status %d", e.Code)
}

type Client struct {
	http *resty.Client
}

// New builds a client for baseURL. token may be empty (login/register only).
func New(baseURL, token string) *Client {
	c := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(10 * time.Second).
		SetHeader("Accept", "application/json")
	if token != "" {
		c.SetCookie(&http.Cookie{Name: sessionCookie, Value: token})
	}
	return &Client{http: c}
}

// SetToken replaces the session cookie after a fresh login.
func (c *Client) SetToken(token string) {
	c.http.SetCookie(&http.Cookie{Name: sessionCookie, Value: token})
}

func statusErr(resp *resty.Response) error {
	var body apiError
	// Best effort; the error body is JSON when the server produced it.
	_ = json.Unmarshal(resp.Body(), &body)
	return &StatusError{Code: resp.StatusCode(), Message: body.Error}
}

// Login exchanges credentials for a session. The token is returned in the
// session_id cookie and echoed in the response body.
func (c *Client) Login(ctx context.Context, creds Credentials) (User, string, error) {
	var out struct {
		User  User   `json:"user"`
		Token string `json:"token"`
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(creds).
		SetResult(&out).
		Post("/api/login")
	if err != nil {
		return User{}, "", err
	}
	if !resp.IsSuccess() {
		return User{}, "", statusErr(resp)
	}
	c.SetToken(out.Token)
	return out.User, out.Token, nil
}

func (c *Client) Register(ctx context.Context, reg Registration) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(reg).
		Post("/api/register")
	if err != nil {
		return err
	}
	if !resp.IsSuccess() {
		return statusErr(resp)
	}
	return nil
}

func (c *Client) Logout(ctx context.Context) error {
	resp, err := c.http.R().
		SetContext(ctx).
		Post("/api/logout")
	if err != nil {
		return err
	}
	if !resp.IsSuccess() {
		return statusErr(resp)
	}
	return nil
}

// Me resolves the session token to its user. A 401 means the session no
// longer points at anyone.
func (c *Client) Me(ctx context.Context) (User, error) {
	var u User
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&u).
		Get("/api/users/me")
	if err != nil {
		return User{}, err
	}
	if !resp.IsSuccess() {
		return User{}, statusErr(resp)
	}
	return u, nil
}

// Users fetches the full known-users list with online flags.
func (c *Client) Users(ctx context.Context) ([]User, error) {
	var users []User
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&users).
		Get("/api/users")
	if err != nil {
		return nil, err
	}
	if !resp.IsSuccess() {
		return nil, statusErr(resp)
	}
	return users, nil
}

// Messages fetches one page of the conversation with the given peer, oldest
// first. A zero before means the most recent page; otherwise only messages
// strictly older than before are returned.
func (c *Client) Messages(ctx context.Context, with, limit int, before time.Time) ([]Message, error) {
	req := c.http.R().
		SetContext(ctx).
		SetQueryParam("with", strconv.Itoa(with)).
		SetQueryParam("limit", strconv.Itoa(limit))
	if !before.IsZero() {
		req.SetQueryParam("before", before.UTC().Format(time.RFC3339Nano))
	}

	var msgs []Message
	resp, err := req.SetResult(&msgs).Get("/api/messages")
	if err != nil {
		return nil, err
	}
	if !resp.IsSuccess() {
		return nil, statusErr(resp)
	}
	return msgs, nil
}
