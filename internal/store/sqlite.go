package store

import (
	"bytes"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/argon2"
	_ "modernc.org/sqlite"
)

// Argon2id parameters for password hashing.
const (
	argonTime    = 1
	argonMemory  = 64 * 1024
	argonThreads = 4
	argonKeyLen  = 32
)

// SQLiteStore persists credentials and the message archive in a SQLite
// database file.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens the database at path, creating it and the schema as
// needed.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite allows one writer at a time; a single pooled connection
	// keeps concurrent auth lookups and archive inserts from tripping
	// over SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	schema := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			username TEXT UNIQUE NOT NULL,
			password BLOB NOT NULL,
			created_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS messages (
			id TEXT PRIMARY KEY,
			sender TEXT NOT NULL,
			content TEXT NOT NULL,
			sent_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_sent_at ON messages(sent_at)`,
	}
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to create schema: %w", err)
		}
	}
	return &SQLiteStore{db: db}, nil
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// hashPassword derives an Argon2id key from the password, salted with the
// username so equal passwords hash differently per account.
func hashPassword(username, password string) []byte {
	return argon2.IDKey([]byte(password), []byte(username), argonTime, argonMemory, argonThreads, argonKeyLen)
}

// Authenticate implements Credentials.
func (s *SQLiteStore) Authenticate(username, password string) (bool, error) {
	var stored []byte
	err := s.db.QueryRow(`SELECT password FROM users WHERE username = ?`, username).Scan(&stored)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to query user %q: %w", username, err)
	}
	return bytes.Equal(stored, hashPassword(username, password)), nil
}

// CreateAccount implements Credentials.
func (s *SQLiteStore) CreateAccount(username, password string) (bool, error) {
	_, err := s.db.Exec(
		`INSERT INTO users (username, password, created_at) VALUES (?, ?, ?)`,
		username, hashPassword(username, password), time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return false, nil
		}
		return false, fmt.Errorf("failed to insert user %q: %w", username, err)
	}
	return true, nil
}

// StoreMessage implements Archive.
func (s *SQLiteStore) StoreMessage(msg Message) error {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.SentAt.IsZero() {
		msg.SentAt = time.Now()
	}
	_, err := s.db.Exec(
		`INSERT INTO messages (id, sender, content, sent_at) VALUES (?, ?, ?, ?)`,
		msg.ID, msg.Sender, msg.Content, msg.SentAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert message: %w", err)
	}
	return nil
}

// RecentMessages implements Archive.
func (s *SQLiteStore) RecentMessages(limit int) ([]Message, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := s.db.Query(
		`SELECT id, sender, content, sent_at FROM messages ORDER BY sent_at DESC, id DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	messages, err := scanMessages(rows)
	if err != nil {
		return nil, err
	}
	// The query returns newest first; flip to chronological order.
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

// MessagesBetween implements Archive.
func (s *SQLiteStore) MessagesBetween(start, end time.Time) ([]Message, error) {
	rows, err := s.db.Query(
		`SELECT id, sender, content, sent_at FROM messages WHERE sent_at >= ? AND sent_at <= ? ORDER BY sent_at, id`,
		start.UnixNano(), end.UnixNano(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()
	return scanMessages(rows)
}

func scanMessages(rows *sql.Rows) ([]Message, error) {
	var out []Message
	for rows.Next() {
		var msg Message
		var sentAt int64
		if err := rows.Scan(&msg.ID, &msg.Sender, &msg.Content, &sentAt); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		msg.SentAt = time.Unix(0, sentAt)
		out = append(out, msg)
	}
	return out, rows.Err()
}
