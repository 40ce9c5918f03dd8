package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mahaj/chat-relay/pkg/auth"
	"github.com/mahaj/chat-relay/pkg/model"
	"github.com/mahaj/chat-relay/pkg/relay"
	"github.com/samber/lo"
)

// mintToken signs a development token when no -token is given.
func mintToken(secret, userID, email string) (string, error) {
	if secret == "" {
		return "", fmt.Errorf("either -token or -secret (or JWT_SECRET) is required")
	}
	if email == "" {
		email = userID + "@example.com"
	}
	return auth.GenerateToken([]byte(secret), model.Identity{ID: userID, Email: email}, 24*time.Hour)
}

func frame(event string, data any) []byte {
	raw, _ := json.Marshal(data)
	out, _ := json.Marshal(relay.Frame{Event: event, Data: raw})
	return out
}

// parseLine turns one line of input into an outbound frame. "/image <url>"
// and friends set the message type; "/join <room>" switches rooms.
func parseLine(line, room string) (out []byte, newRoom string) {
	if cmd, rest, ok := strings.Cut(line, " "); ok && strings.HasPrefix(cmd, "/") {
		switch name := strings.TrimPrefix(cmd, "/"); name {
		case "join":
			newRoom = strings.TrimSpace(rest)
			return frame(relay.EventJoin, newRoom), newRoom
		case "text", "image", "file", "audio", "video":
			return frame(relay.EventMessage, relay.MessageRequest{RoomID: room, Content: rest, Type: lo.ToPtr(name)}), room
		}
	}
	return frame(relay.EventMessage, relay.MessageRequest{RoomID: room, Content: line}), room
}

func printFrame(raw []byte) {
	var f relay.Frame
	if err := json.Unmarshal(raw, &f); err != nil {
		log.Printf("Received raw: %s", raw)
		return
	}
	switch f.Event {
	case relay.EventChatHistory:
		var history []model.Message
		if err := json.Unmarshal(f.Data, &history); err != nil {
			log.Printf("bad history: %v", err)
			return
		}
		fmt.Printf("\r-- %d earlier messages --\n", len(history))
		for _, m := range history {
			printMessage(m)
		}
	case relay.EventMessage:
		var m model.Message
		if err := json.Unmarshal(f.Data, &m); err != nil {
			log.Printf("bad message: %v", err)
			return
		}
		printMessage(m)
	default:
		fmt.Printf("\r[%s] %s\n", f.Event, f.Data)
	}
	fmt.Print("> ")
}

func printMessage(m model.Message) {
	who := m.Sender.Username
	if who == "" {
		who = m.SenderID
	}
	prefix := ""
	if m.Type != model.TypeText {
		prefix = "[" + strings.ToLower(string(m.Type)) + "] "
	}
	fmt.Printf("\r%s #%s %s: %s%s\n", m.CreatedAt.Local().Format("15:04:05"), m.RoomID, who, prefix, m.Content)
}

func main() {
	serverAddr := flag.String("addr", "localhost:3001", "relay address")
	token := flag.String("token", "", "bearer token")
	secret := flag.String("secret", os.Getenv("JWT_SECRET"), "secret used to mint a token when -token is empty")
	userID := flag.String("user", "user1", "user id for a minted token")
	email := flag.String("email", "", "email for a minted token")
	room := flag.String("room", "general", "room to join")
	flag.Parse()

	if *token == "" {
		var err error
		if *token, err = mintToken(*secret, *userID, *email); err != nil {
			log.Fatal(err)
		}
	}

	u := url.URL{Scheme: "ws", Host: *serverAddr, Path: "/ws"}
	log.Printf("connecting to %s", u.String())

	header := http.Header{}
	header.Add("Authorization", "Bearer "+*token)
	c, resp, err := websocket.DefaultDialer.Dial(u.String(), header)
	if err != nil {
		if resp != nil {
			log.Fatalf("dial: %v (HTTP %d)", err, resp.StatusCode)
		}
		log.Fatal("dial:", err)
	}
	defer c.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			_, message, err := c.ReadMessage()
			if err != nil {
				log.Println("read:", err)
				return
			}
			printFrame(message)
		}
	}()

	// Only the main goroutine writes to the connection.
	outgoing := make(chan []byte)
	quit := make(chan struct{})
	go func() {
		defer close(quit)
		current := *room
		outgoing <- frame(relay.EventJoin, current)

		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			text := strings.TrimSpace(scanner.Text())
			switch text {
			case "":
				fmt.Print("> ")
				continue
			case "/quit":
				return
			}
			var out []byte
			out, current = parseLine(text, current)
			outgoing <- out
		}
	}()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)

	for {
		select {
		case <-done:
			return
		case out := <-outgoing:
			if err := c.WriteMessage(websocket.TextMessage, out); err != nil {
				log.Println("write:", err)
				return
			}
		case <-quit:
			closeConn(c, done)
			return
		case <-interrupt:
			log.Println("interrupt")
			closeConn(c, done)
			return
		}
	}
}

// closeConn sends a close frame and waits briefly for the server to close.
func closeConn(c *websocket.Conn, done <-chan struct{}) {
	err := c.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	if err != nil {
		log.Println("write close:", err)
		return
	}
	select {
	case <-done:
	case <-time.After(time.Second):
	}
}
