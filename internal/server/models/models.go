package models

import "time"

type User struct {
	ID           int       `json:"id"`
	Nickname     string    `json:"nickname"`
	Email        string    `json:"email,omitempty"`
	PasswordHash string    `json:"-"`
	IsOnline     bool      `json:"isOnline"`
	CreatedAt    time.Time `json:"created_at"`
}

type Message struct {
	ID         string    `json:"id"`
	SenderID   int       `json:"senderId"`
	Sender     string    `json:"sender"`
	ReceiverID int       `json:"receiverId,omitempty"`
	Content    string    `json:"content"`
	Timestamp  time.Time `json:"timestamp"`
	IsRead     bool      `json:"isRead"`
}

// REST payloads

type Credentials struct {
	Identifier string `json:"identifier"` // nickname or email
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

type LoginResponse struct {
	User  User   `json:"user"`
	Token string `json:"token"`
}
