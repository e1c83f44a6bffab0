// Package auth bridges the chat server and its credential store. The
// gateway runs every store lookup off the caller's goroutine so the server
// event loop never blocks on store I/O, and delivers each result to its
// callback exactly once.
package auth

import (
	"log"

	"github.com/georgegerdin/chat-example/internal/store"
)

// Gateway wraps a credential store with asynchronous completion.
type Gateway struct {
	creds  store.Credentials
	logger *log.Logger
}

// NewGateway creates a Gateway over creds. A nil logger falls back to
// log.Default().
func NewGateway(creds store.Credentials, logger *log.Logger) *Gateway {
	if logger == nil {
		logger = log.Default()
	}
	return &Gateway{creds: creds, logger: logger}
}

// Authenticate checks the credentials on a new goroutine and calls done
// exactly once. A store failure is logged and reported as a failed login;
// it never reaches the peer as anything else.
func (g *Gateway) Authenticate(username, password string, done func(ok bool)) {
	go func() {
		ok, err := g.creds.Authenticate(username, password)
		if err != nil {
			g.logger.Printf("Failed to authenticate %q: %v", username, err)
			ok = false
		}
		done(ok)
	}()
}

// CreateAccount registers the account on a new goroutine and calls done
// exactly once, with false when the username is already taken. A store
// failure is logged and reported as false.
func (g *Gateway) CreateAccount(username, password string, done func(ok bool)) {
	go func() {
		ok, err := g.creds.CreateAccount(username, password)
		if err != nil {
			g.logger.Printf("Failed to create account %q: %v", username, err)
			ok = false
		}
		done(ok)
	}()
}
