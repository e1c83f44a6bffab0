// Package store holds user credentials and the chat message archive. Two
// implementations exist: an in-memory store for tests and single-process
// runs, and a SQLite-backed store for persistence across restarts.
package store

import "time"

// Credentials answers authentication questions for the chat server. Errors
// are infrastructure failures; business outcomes (wrong password, duplicate
// username) are the boolean results.
type Credentials interface {
	// Authenticate reports whether an account with this username and
	// password exists.
	Authenticate(username, password string) (bool, error)

	// CreateAccount registers a new account. It returns false when the
	// username is already taken.
	CreateAccount(username, password string) (bool, error)
}

// Message is one archived chat line.
type Message struct {
	ID      string
	Sender  string
	Content string
	SentAt  time.Time
}

// Archive records relayed chat messages. The relay path only ever writes;
// reads serve operator tooling, never clients.
type Archive interface {
	// StoreMessage archives one message. A missing ID or SentAt is
	// filled in.
	StoreMessage(msg Message) error

	// RecentMessages returns the most recent limit messages in
	// chronological order.
	RecentMessages(limit int) ([]Message, error)

	// MessagesBetween returns the messages sent in [start, end], both
	// bounds inclusive, in chronological order.
	MessagesBetween(start, end time.Time) ([]Message, error)
}
