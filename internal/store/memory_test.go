package store_test

import (
	"testing"
	"time"

	"github.com/georgegerdin/chat-example/internal/store"
)

func TestMemoryStore_CreateAccount(t *testing.T) {
	s := store.NewMemoryStore()

	created, err := s.CreateAccount("bob", "x")
	if err != nil {
		t.Fatalf("CreateAccount() error = %v", err)
	}
	if !created {
		t.Fatal("CreateAccount() = false, want true for a new username")
	}

	created, err = s.CreateAccount("bob", "x")
	if err != nil {
		t.Fatalf("CreateAccount() error = %v", err)
	}
	if created {
		t.Error("CreateAccount() = true for duplicate username, want false")
	}
}

func TestMemoryStore_Authenticate(t *testing.T) {
	s := store.NewMemoryStore()
	if _, err := s.CreateAccount("alice", "password123"); err != nil {
		t.Fatalf("CreateAccount() error = %v", err)
	}

	tests := []struct {
		name     string
		username string
		password string
		want     bool
	}{
		{"correct credentials", "alice", "password123", true},
		{"wrong password", "alice", "nope", false},
		{"unknown user", "carol", "password123", false},
		{"empty password", "alice", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.Authenticate(tt.username, tt.password)
			if err != nil {
				t.Fatalf("Authenticate() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Authenticate(%q, %q) = %v, want %v", tt.username, tt.password, got, tt.want)
			}
		})
	}
}

func TestMemoryStore_Seed(t *testing.T) {
	s := store.NewMemoryStore()
	s.Seed("Alice", "password123")

	ok, err := s.Authenticate("Alice", "password123")
	if err != nil {
		t.Fatalf("Authenticate() error = %v", err)
	}
	if !ok {
		t.Error("Authenticate() = false for seeded account, want true")
	}
	if n := s.AccountCount(); n != 1 {
		t.Errorf("AccountCount() = %d, want 1", n)
	}
}

func TestMemoryStore_RecentMessages(t *testing.T) {
	s := store.NewMemoryStore()
	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	for i, text := range []string{"one", "two", "three"} {
		err := s.StoreMessage(store.Message{
			Sender:  "alice",
			Content: text,
			SentAt:  base.Add(time.Duration(i) * time.Second),
		})
		if err != nil {
			t.Fatalf("StoreMessage() error = %v", err)
		}
	}

	got, err := s.RecentMessages(2)
	if err != nil {
		t.Fatalf("RecentMessages() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("RecentMessages(2) returned %d messages, want 2", len(got))
	}
	if got[0].Content != "two" || got[1].Content != "three" {
		t.Errorf("RecentMessages(2) = [%q, %q], want [two, three]", got[0].Content, got[1].Content)
	}
	for _, msg := range got {
		if msg.ID == "" {
			t.Error("archived message has empty ID")
		}
	}

	all, err := s.RecentMessages(10)
	if err != nil {
		t.Fatalf("RecentMessages() error = %v", err)
	}
	if len(all) != 3 {
		t.Errorf("RecentMessages(10) returned %d messages, want 3", len(all))
	}
}

func TestMemoryStore_MessagesBetween(t *testing.T) {
	s := store.NewMemoryStore()
	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		err := s.StoreMessage(store.Message{
			Sender:  "alice",
			Content: "msg",
			SentAt:  base.Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatalf("StoreMessage() error = %v", err)
		}
	}

	// Bounds are inclusive on both ends.
	got, err := s.MessagesBetween(base.Add(1*time.Minute), base.Add(3*time.Minute))
	if err != nil {
		t.Fatalf("MessagesBetween() error = %v", err)
	}
	if len(got) != 3 {
		t.Errorf("MessagesBetween() returned %d messages, want 3", len(got))
	}
}
