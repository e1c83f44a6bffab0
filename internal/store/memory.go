package store

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore keeps credentials and messages in process memory. It is safe
// for concurrent use.
type MemoryStore struct {
	mu       sync.Mutex
	users    map[string]string
	messages []Message
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{users: make(map[string]string)}
}

// Seed registers an account unconditionally, overwriting any previous
// password. Used to provision accounts at startup.
func (s *MemoryStore) Seed(username, password string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[username] = password
}

// Authenticate implements Credentials.
func (s *MemoryStore) Authenticate(username, password string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.users[username]
	return ok && stored == password, nil
}

// CreateAccount implements Credentials.
func (s *MemoryStore) CreateAccount(username, password string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.users[username]; exists {
		return false, nil
	}
	s.users[username] = password
	return true, nil
}

// AccountCount returns the number of registered accounts.
func (s *MemoryStore) AccountCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.users)
}

// StoreMessage implements Archive.
func (s *MemoryStore) StoreMessage(msg Message) error {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.SentAt.IsZero() {
		msg.SentAt = time.Now()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, msg)
	return nil
}

// RecentMessages implements Archive.
func (s *MemoryStore) RecentMessages(limit int) ([]Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if limit > len(s.messages) {
		limit = len(s.messages)
	}
	if limit <= 0 {
		return nil, nil
	}
	out := make([]Message, limit)
	copy(out, s.messages[len(s.messages)-limit:])
	return out, nil
}

// MessagesBetween implements Archive.
func (s *MemoryStore) MessagesBetween(start, end time.Time) ([]Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Message
	for _, msg := range s.messages {
		if !msg.SentAt.Before(start) && !msg.SentAt.After(end) {
			out = append(out, msg)
		}
	}
	return out, nil
}
