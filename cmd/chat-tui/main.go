package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/jroimartin/gocui"

	"github.com/georgegerdin/chat-example/internal/client"
)

func main() {
	// Parse command-line flags
	serverAddr := flag.String("server", "localhost:12345", "Server address (e.g., localhost:12345)")
	transport := flag.String("transport", "tcp", "Transport to use: tcp or ws")
	username := flag.String("user", "", "Username for chat")
	password := flag.String("pass", "", "Password for chat")
	register := flag.Bool("register", false, "Create the account before logging in")
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

	// Connect and authenticate before taking over the terminal. Chat can
	// already be flowing while we log in; those lines are kept and shown
	// once the message view exists.
	c := client.New(*serverAddr, tr, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := c.Connect(ctx); err != nil {
		log.Fatalf("Failed to connect to server: %v", err)
	}
	defer c.Disconnect()
	var backlog []string
	if _, err := awaitEvent(c, client.EventConnected, &backlog); err != nil {
		log.Fatalf("Failed to connect to server: %v", err)
	}

	if *register {
		c.CreateAccount(*username, *password)
		ev, err := awaitEvent(c, client.EventAccountResult, &backlog)
		if err != nil {
			log.Fatalf("Failed to create account: %v", err)
		}
		if !ev.OK {
			log.Printf("Account %q already exists, logging in", *username)
		}
	}
	c.Login(*username, *password)
	ev, err := awaitEvent(c, client.EventLoginResult, &backlog)
	if err != nil {
		log.Fatalf("Failed to log in: %v", err)
	}
	if !ev.OK {
		log.Fatalf("Login failed for %q, check the password or use -register", *username)
	}

	g, err := gocui.NewGui(gocui.OutputNormal)
	if err != nil {
		log.Fatalf("Failed to initialize UI: %v", err)
	}
	defer g.Close()

	ui := &chatUI{gui: g, client: c, username: *username, backlog: backlog}
	g.SetManagerFunc(ui.layout)
	if err := ui.keybindings(); err != nil {
		log.Fatalf("Failed to set keybindings: %v", err)
	}

	go ui.pumpEvents()

	if err := g.MainLoop(); err != nil && err != gocui.ErrQuit {
		log.Fatalf("UI error: %v", err)
	}
}

// chatUI renders the chat in two views: a scrolling message pane and a
// single-line input box.
type chatUI struct {
	gui      *gocui.Gui
	client   *client.Client
	username string
	backlog  []string // chat lines received before the UI existed
}

func (ui *chatUI) layout(g *gocui.Gui) error {
	maxX, maxY := g.Size()

	// Messages view
	if v, err := g.SetView("messages", 0, 0, maxX-1, maxY-4); err != nil {
		if err != gocui.ErrUnknownView {
			return err
		}
		v.Title = "Chat"
		v.Wrap = true
		v.Autoscroll = true
		for _, line := range ui.backlog {
			fmt.Fprintln(v, line)
		}
	}

	// Input field
	if v, err := g.SetView("input", 0, maxY-3, maxX-1, maxY-1); err != nil {
		if err != gocui.ErrUnknownView {
			return err
		}
		v.Title = fmt.Sprintf("%s (Enter to send, Ctrl-C to quit)", ui.username)
		v.Editable = true
		v.Wrap = false

		if _, err := g.SetCurrentView("input"); err != nil {
			return err
		}
	}

	return nil
}

func (ui *chatUI) keybindings() error {
	if err := ui.gui.SetKeybinding("", gocui.KeyCtrlC, gocui.ModNone,
		func(_ *gocui.Gui, _ *gocui.View) error {
			return gocui.ErrQuit
		}); err != nil {
		return err
	}
	return ui.gui.SetKeybinding("input", gocui.KeyEnter, gocui.ModNone, ui.handleInput)
}

func (ui *chatUI) handleInput(g *gocui.Gui, v *gocui.View) error {
	text := strings.TrimSpace(v.Buffer())
	v.Clear()
	if err := v.SetCursor(0, 0); err != nil {
		return err
	}
	if text == "" {
		return nil
	}
	if text == "/quit" {
		return gocui.ErrQuit
	}

	ui.client.SendMessage(text)

	// Broadcasts skip the sender, so echo our own line locally
	mv, err := g.View("messages")
	if err != nil {
		return err
	}
	fmt.Fprintf(mv, "[%s]: %s\n", ui.username, text)
	return nil
}

// pumpEvents appends everything the server sends to the message view.
func (ui *chatUI) pumpEvents() {
	for ev := range ui.client.Events() {
		line := ""
		switch ev.Kind {
		case client.EventChatMessage:
			line = fmt.Sprintf("[%s]: %s", ev.Sender, ev.Message)
		case client.EventLoginResult:
			if !ev.OK {
				line = "*** login failed ***"
			}
		case client.EventDisconnected:
			line = "*** connection lost, Ctrl-C to exit ***"
		}
		if line == "" {
			continue
		}
		ui.appendLine(line)
	}
}

func (ui *chatUI) appendLine(line string) {
	ui.gui.Update(func(g *gocui.Gui) error {
		v, err := g.View("messages")
		if err != nil {
			return err
		}
		fmt.Fprintln(v, line)
		return nil
	})
}

// awaitEvent drains the event stream until kind shows up. Chat lines
// arriving in between are appended to backlog instead of dropped.
func awaitEvent(c *client.Client, kind client.EventKind, backlog *[]string) (client.Event, error) {
	for ev := range c.Events() {
		switch ev.Kind {
		case kind:
			return ev, nil
		case client.EventChatMessage:
			*backlog = append(*backlog, fmt.Sprintf("[%s]: %s", ev.Sender, ev.Message))
		case client.EventDisconnected:
			return ev, fmt.Errorf("connection lost: %w", ev.Err)
		}
	}
	return client.Event{}, fmt.Errorf("event stream ended")
}
