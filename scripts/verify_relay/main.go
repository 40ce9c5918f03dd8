package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/mahaj/chat-relay/pkg/auth"
	"github.com/mahaj/chat-relay/pkg/model"
	"github.com/mahaj/chat-relay/pkg/relay"
	"github.com/samber/lo"
)

// Smoke test against a running relay: health, websocket round trip, HTTP
// history and presence.
func main() {
	addr := flag.String("addr", "localhost:3001", "relay address")
	secret := flag.String("secret", os.Getenv("JWT_SECRET"), "JWT secret of the relay")
	flag.Parse()

	id := model.Identity{ID: "verify-" + uuid.NewString()[:8], Email: "verify@example.com"}
	token, err := auth.GenerateToken([]byte(*secret), id, time.Minute)
	if err != nil {
		log.Fatal(err)
	}
	room := "verify-" + uuid.NewString()[:8]
	base := "http://" + *addr

	// 1. Health
	resp, err := http.Get(base + "/healthz")
	if err != nil {
		log.Fatal("healthz:", err)
	}
	resp.Body.Close()
	log.Printf("healthz: %d", resp.StatusCode)

	// 2. Join and send over websocket
	u := url.URL{Scheme: "ws", Host: *addr, Path: "/ws", RawQuery: "token=" + url.QueryEscape(token)}
	c, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		log.Fatal("dial:", err)
	}
	defer c.Close()

	send := func(event string, data any) {
		raw, _ := json.Marshal(data)
		if err := c.WriteJSON(relay.Frame{Event: event, Data: raw}); err != nil {
			log.Fatal("write:", err)
		}
	}
	read := func() relay.Frame {
		_ = c.SetReadDeadline(time.Now().Add(5 * time.Second))
		var f relay.Frame
		if err := c.ReadJSON(&f); err != nil {
			log.Fatal("read:", err)
		}
		return f
	}

	send(relay.EventJoin, room)
	if f := read(); f.Event != relay.EventChatHistory {
		log.Fatalf("expected %s, got %s", relay.EventChatHistory, f.Event)
	}
	send(relay.EventMessage, relay.MessageRequest{RoomID: room, Content: "ping", Type: lo.ToPtr("text")})
	f := read()
	var echoed model.Message
	if err := json.Unmarshal(f.Data, &echoed); err != nil || f.Event != relay.EventMessage {
		log.Fatalf("unexpected frame %s: %v", f.Event, err)
	}
	log.Printf("Echoed message %s at %s", echoed.ID, echoed.CreatedAt.Format(time.RFC3339))

	// 3. History and presence over HTTP
	for _, path := range []string{"/rooms/" + room + "/messages", "/rooms/" + room + "/users"} {
		req, _ := http.NewRequest(http.MethodGet, base+path, nil)
		req.Header.Add("Authorization", "Bearer "+token)
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			log.Fatal(path, ": ", err)
		}
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		fmt.Printf("%s -> %d %s\n", path, resp.StatusCode, body)
	}
}
