package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/georgegerdin/chat-example/internal/client"
)

func main() {
	// Parse command-line flags
	serverAddr := flag.String("server", "localhost:12345", "Server address (e.g., localhost:12345)")
	transport := flag.String("transport", "tcp", "Transport to use: tcp or ws")
	username := flag.String("user", "", "Username for chat")
	password := flag.String("pass", "", "Password for chat")
	register := flag.Bool("register", false, "Create the account before logging in")
	retry := flag.Duration("retry", 0, "Reconnect after this long when the connection drops (0 to exit)")
	flag.Parse()

	if *username == "" {
		log.Fatal("Username is required. Use -user flag")
	}

	var tr client.Transport
	switch *transport {
	case "tcp":
		tr = client.TransportTCP
	case "ws":
		tr = client.TransportWebSocket
	default:
		log.Fatalf("Unknown transport %q, want tcp or ws", *transport)
	}

	scanner := bufio.NewScanner(os.Stdin)
	createAccount := *register
	for {
		err := runSession(*serverAddr, tr, *username, *password, createAccount, scanner)
		if err == nil {
			// The user asked to quit.
			log.Println("Disconnected from server")
			return
		}
		log.Printf("Session ended: %v", err)
		if *retry <= 0 {
			os.Exit(1)
		}
		// The account exists after the first session, however it ended.
		createAccount = false
		log.Printf("Reconnecting in %v...", *retry)
		time.Sleep(*retry)
	}
}

// runSession drives one connection from dial to disconnect. It returns nil
// when the user quit, an error when the session ended any other way.
func runSession(addr string, tr client.Transport, username, password string, register bool, scanner *bufio.Scanner) error {
	c := client.New(addr, tr, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := c.Connect(ctx); err != nil {
		return err
	}
	defer c.Disconnect()
	if _, err := awaitEvent(c, client.EventConnected); err != nil {
		return err
	}
	log.Printf("Connected to %s as %s", addr, username)

	if register {
		c.CreateAccount(username, password)
		ev, err := awaitEvent(c, client.EventAccountResult)
		if err != nil {
			return err
		}
		if ev.OK {
			log.Printf("Account %q created", username)
		} else {
			log.Printf("Account %q already exists, logging in", username)
		}
	}

	c.Login(username, password)
	ev, err := awaitEvent(c, client.EventLoginResult)
	if err != nil {
		return err
	}
	if !ev.OK {
		log.Fatalf("Login failed for %q, check the password or use -register", username)
	}
	log.Printf("Logged in as %s", username)

	// Print everything the server sends while the user types
	disconnected := make(chan error, 1)
	go func() {
		for ev := range c.Events() {
			switch ev.Kind {
			case client.EventChatMessage:
				fmt.Printf("[%s]: %s\n", ev.Sender, ev.Message)
			case client.EventDisconnected:
				disconnected <- ev.Err
				return
			}
		}
	}()

	// Read from stdin and send messages
	fmt.Println("Type your messages (or 'quit' to exit):")
	for scanner.Scan() {
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		if text == "quit" || text == "exit" {
			return nil
		}

		select {
		case err := <-disconnected:
			return fmt.Errorf("connection lost: %w", err)
		default:
		}
		c.SendMessage(text)
	}
	if err := scanner.Err(); err != nil {
		log.Printf("Error reading input: %v", err)
	}
	return nil
}

// awaitEvent drains the event stream until kind shows up. Chat messages
// arriving in between are printed rather than dropped.
func awaitEvent(c *client.Client, kind client.EventKind) (client.Event, error) {
	for ev := range c.Events() {
		switch ev.Kind {
		case kind:
			return ev, nil
		case client.EventChatMessage:
			fmt.Printf("[%s]: %s\n", ev.Sender, ev.Message)
		case client.EventDisconnected:
			return ev, fmt.Errorf("connection lost: %w", ev.Err)
		}
	}
	return client.Event{}, fmt.Errorf("event stream ended")
}
