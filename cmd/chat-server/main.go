package main

import (
	"flag"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/georgegerdin/chat-example/internal/server"
	"github.com/georgegerdin/chat-example/internal/store"
)

func main() {
	// Parse command-line flags
	addr := flag.String("addr", ":12345", "Address to listen on for both TCP and WebSocket (e.g., :12345)")
	dbPath := flag.String("db", "", "Path to the SQLite database (empty for in-memory accounts)")
	seed := flag.String("seed", "", "Account to create at startup, in user:pass form")
	closeOnAuthFailure := flag.Bool("close-on-auth-failure", false, "Disconnect clients after a failed login")
	flag.Parse()

	// Pick the backing store
	var (
		creds   store.Credentials
		archive store.Archive
	)
	if *dbPath != "" {
		st, err := store.OpenSQLite(*dbPath)
		if err != nil {
			log.Fatalf("Failed to open database: %v", err)
		}
		defer st.Close()
		creds, archive = st, st
		log.Printf("Using SQLite store at %s", *dbPath)
	} else {
		st := store.NewMemoryStore()
		creds, archive = st, st
		log.Printf("Using in-memory store, accounts are lost on exit")
	}

	if *seed != "" {
		username, password, ok := strings.Cut(*seed, ":")
		if !ok || username == "" {
			log.Fatal("Seed account must be in user:pass form. Use -seed user:pass")
		}
		created, err := creds.CreateAccount(username, password)
		if err != nil {
			log.Fatalf("Failed to seed account %q: %v", username, err)
		}
		if created {
			log.Printf("Seeded account %q", username)
		} else {
			log.Printf("Seed account %q already exists", username)
		}
	}

	srv := server.New(server.Config{
		Addr:               *addr,
		Store:              creds,
		Archive:            archive,
		CloseOnAuthFailure: *closeOnAuthFailure,
	})
	if err := srv.Start(); err != nil {
		log.Fatalf("Server error: %v", err)
	}

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	sig := <-sigChan
	log.Printf("Received signal %v, shutting down...", sig)
	srv.Stop()

	// Show what the room talked about while we were up
	if msgs, err := archive.RecentMessages(10); err == nil && len(msgs) > 0 {
		log.Printf("Last %d archived messages:", len(msgs))
		for _, m := range msgs {
			log.Printf("  %s [%s]: %s", m.SentAt.Format("15:04:05"), m.Sender, m.Content)
		}
	}

	log.Println("Chat server stopped")
}
