package storage

import (
	"database/sql"
	"log"
	"os"
	"strconv"
	"time"

	_ "github.com/lib/pq"

	"github.com/voss-dev/forumsync/internal/server/models"
)

type Store struct {
	db *sql.DB
}

func New() *Store {
	connStr := os.Getenv("DATABASE_URL")
	if connStr == "" {
		connStr = "postgres://localhost/forumsync?sslmode=disable"
	}

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}

	if err = db.Ping(); err != nil {
		log.Fatal("Failed to ping database:", err)
	}

	log.Println("Connected to database")
	return &Store{db: db}
}

func (s *Store) Close() {
	s.db.Close()
}

// InitSchema creates the tables on first start. Idempotent.
func (s *Store) InitSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS users (
			id SERIAL PRIMARY KEY,
			nickname TEXT UNIQUE NOT NULL,
			email TEXT UNIQUE NOT NULL,
			password_hash TEXT NOT NULL,
			age INT,
			gender TEXT,
			first_name TEXT,
			last_name TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);

		CREATE TABLE IF NOT EXISTS sessions (
			token UUID PRIMARY KEY,
			user_id INT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			expires_at TIMESTAMPTZ NOT NULL
		);

		CREATE TABLE IF NOT EXISTS private_messages (
			id UUID PRIMARY KEY,
			sender_id INT NOT NULL REFERENCES users(id),
			receiver_id INT NOT NULL REFERENCES users(id),
			content TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			is_read BOOLEAN NOT NULL DEFAULT FALSE
		);

		CREATE INDEX IF NOT EXISTS idx_private_messages_pair
			ON private_messages (sender_id, receiver_id, created_at);
	`)
	return err
}

// User Methods

func (s *Store) CreateUser(reg models.Registration, passwordHash string) (int, error) {
	var userID int
	err := s.db.QueryRow(
		`INSERT INTO users (nickname, email, password_hash, age, gender, first_name, last_name)
		 VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`,
		reg.Nickname, reg.Email, passwordHash, reg.Age, reg.Gender, reg.FirstName, reg.LastName,
	).Scan(&userID)
	return userID, err
}

// GetUserByIdentifier resolves a login identifier, which may be either the
// nickname or the email.
func (s *Store) GetUserByIdentifier(identifier string) (*models.User, error) {
	var u models.User
	err := s.db.QueryRow(
		"SELECT id, nickname, password_hash FROM users WHERE nickname = $1 OR email = $1",
		identifier,
	).Scan(&u.ID, &u.Nickname, &u.PasswordHash)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *Store) GetUserByID(id int) (*models.User, error) {
	var u models.User
	err := s.db.QueryRow(
		"SELECT id, nickname FROM users WHERE id = $1",
		id,
	).Scan(&u.ID, &u.Nickname)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *Store) ListUsers() ([]models.User, error) {
	rows, err := s.db.Query("SELECT id, nickname FROM users ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		var u models.User
		if err := rows.Scan(&u.ID, &u.Nickname); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// Session Methods

func (s *Store) CreateSession(token string, userID int, ttl time.Duration) error {
	_, err := s.db.Exec(
		"INSERT INTO sessions (token, user_id, expires_at) VALUES ($1, $2, $3)",
		token, userID, time.Now().Add(ttl),
	)
	return err
}

// SessionUser resolves a session token to its user id. Expired or unknown
// tokens yield sql.ErrNoRows.
func (s *Store) SessionUser(token string) (int, error) {
	var userID int
	err := s.db.QueryRow(
		"SELECT user_id FROM sessions WHERE token = $1 AND expires_at > now()",
		token,
	).Scan(&userID)
	return userID, err
}

func (s *Store) DeleteSession(token string) error {
	_, err := s.db.Exec("DELETE FROM sessions WHERE token = $1", token)
	return err
}

// Message Methods

func (s *Store) SaveMessage(id string, senderID, receiverID int, content string) (time.Time, error) {
	var createdAt time.Time
	err := s.db.QueryRow(
		`INSERT INTO private_messages (id, sender_id, receiver_id, content)
		 VALUES ($1, $2, $3, $4) RETURNING created_at`,
		id, senderID, receiverID, content,
	).Scan(&createdAt)
	return createdAt, err
}

// MessagesBetween returns one page of the conversation between two users,
// oldest first. When before is non-zero only strictly older messages are
// considered. The newest matching rows are selected descending and then
// reversed, so the page is always the most recent slice under the cursor.
func (s *Store) MessagesBetween(userID, withID, limit int, before time.Time) ([]models.Message, error) {
	query := `
		SELECT m.id, m.sender_id, u.nickname, m.content, m.created_at, m.is_read
		FROM private_messages m
		JOIN users u ON u.id = m.sender_id
		WHERE ((m.sender_id = $1 AND m.receiver_id = $2)
		    OR (m.sender_id = $2 AND m.receiver_id = $1))`
	args := []interface{}{userID, withID}
	if !before.IsZero() {
		query += " AND m.created_at < $3"
		args = append(args, before)
	}
	query += " ORDER BY m.created_at DESC, m.id DESC LIMIT $" + strconv.Itoa(len(args)+1)
	args = append(args, limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []models.Message
	for rows.Next() {
		var m models.Message
		if err := rows.Scan(&m.ID, &m.SenderID, &m.Sender, &m.Content, &m.Timestamp, &m.IsRead); err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Reverse into chronological order.
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

// MarkMessageRead marks a message read on behalf of its receiver and returns
// the sender id so the read receipt can be relayed. Marking someone else's
// message, or one already read, yields sql.ErrNoRows.
func (s *Store) MarkMessageRead(messageID string, readerID int) (int, error) {
	var senderID int
	err := s.db.QueryRow(
		`UPDATE private_messages SET is_read = TRUE
		 WHERE id = $1 AND receiver_id = $2 AND is_read = FALSE
		 RETURNING sender_id`,
		messageID, readerID,
	).Scan(&senderID)
	return senderID, err
}
