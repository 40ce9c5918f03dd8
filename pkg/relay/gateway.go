package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/mahaj/chat-relay/pkg/model"
)

// ErrPersistence wraps any store failure seen while handling an event.
var ErrPersistence = errors.New("persistence failed")

type IdentityVerifier interface {
	Verify(token string) (model.Identity, error)
}

type MessageStore interface {
	Append(ctx context.Context, msg model.Message) (model.Message, error)
	ListActive(ctx context.Context, roomID string) ([]model.Message, error)
}

// Presence mirrors room membership outside the process.
type Presence interface {
	Joined(ctx context.Context, roomID, userID string) error
	Left(ctx context.Context, roomID, userID string) error
	Members(ctx context.Context, roomID string) ([]string, error)
}

// Publisher receives every stored message after it has been broadcast.
type Publisher interface {
	Publish(ctx context.Context, msg model.Message) error
}

type Option func(*Gateway)

func WithPresence(p Presence) Option {
	return func(g *Gateway) { g.presence = p }
}

func WithPublisher(p Publisher) Option {
	return func(g *Gateway) { g.publisher = p }
}

// WithPublishTimeout bounds each publish so a slow broker cannot stall the
// connection that sent the message.
func WithPublishTimeout(d time.Duration) Option {
	return func(g *Gateway) {
		if d > 0 {
			g.publishTimeout = d
		}
	}
}

const defaultPublishTimeout = 2 * time.Second

// Gateway owns sessions and runs the join, message and disconnect events
// against the registry and the store.
//
// Failures are never reported to clients: an invalid message type or a store
// error drops the event and is only logged. The methods still return those
// errors to their Go callers.
type Gateway struct {
	log       *slog.Logger
	verifier  IdentityVerifier
	store     MessageStore
	registry  *Registry
	router    *Router
	locks     *roomLocks
	presence  Presence
	publisher Publisher

	publishTimeout time.Duration

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewGateway(log *slog.Logger, verifier IdentityVerifier, store MessageStore, opts ...Option) *Gateway {
	registry := NewRegistry()
	g := &Gateway{
		log:      log,
		verifier: verifier,
		store:    store,
		registry: registry,
		router:   NewRouter(registry, log),
		locks:    newRoomLocks(),
		sessions: make(map[string]*Session),

		publishTimeout: defaultPublishTimeout,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *Gateway) Registry() *Registry { return g.registry }

func (g *Gateway) Authenticate(token string) (model.Identity, error) {
	id, err := g.verifier.Verify(token)
	if err != nil {
		g.log.Warn("handshake rejected", "err", err)
		return model.Identity{}, err
	}
	return id, nil
}

// Connect starts a session for an identity returned by Authenticate.
func (g *Gateway) Connect(id model.Identity, conn Conn) *Session {
	s := newSession(id, conn)

	g.mu.Lock()
	g.sessions[s.ID] = s
	total := len(g.sessions)
	g.mu.Unlock()

	g.log.Info("connected", "session", s.ID, "user", id.ID, "sessions", total)
	return s
}

// Dispatch handles one inbound frame to completion.
func (g *Gateway) Dispatch(ctx context.Context, s *Session, raw []byte) {
	var f Frame
	if err := json.Unmarshal(raw, &f); err != nil {
		g.log.Warn("frame dropped: malformed", "session", s.ID, "err", err)
		return
	}

	switch f.Event {
	case EventJoin:
		roomID, err := decodeRoomID(f.Data)
		if err != nil {
			g.log.Warn("join dropped", "session", s.ID, "err", err)
			return
		}
		if err := g.Join(ctx, s, roomID); err != nil {
			g.log.Error("join failed", "session", s.ID, "room", roomID, "err", err)
		}

	case EventMessage:
		var req MessageRequest
		if err := json.Unmarshal(f.Data, &req); err != nil {
			g.log.Warn("message dropped: malformed", "session", s.ID, "err", err)
			return
		}
		_, err := g.Message(ctx, s, req)
		switch {
		case err == nil:
		case errors.Is(err, model.ErrInvalidMessageType), errors.Is(err, ErrMissingRoom):
			g.log.Warn("message dropped", "session", s.ID, "room", req.RoomID, "err", err)
		default:
			g.log.Error("message dropped", "session", s.ID, "room", req.RoomID, "err", err)
		}

	default:
		g.log.Debug("frame ignored", "session", s.ID, "event", f.Event)
	}
}

// Join adds s to roomID and sends the room's history to s alone. Membership
// is kept even when the history query fails.
func (g *Gateway) Join(ctx context.Context, s *Session, roomID string) error {
	if strings.TrimSpace(roomID) == "" {
		return ErrMissingRoom
	}
	if _, err := s.join(roomID); err != nil {
		return err
	}
	if g.registry.Add(s, roomID) {
		g.log.Info("joined", "session", s.ID, "user", s.Identity.ID, "room", roomID)
		if g.presence != nil {
			if err := g.presence.Joined(ctx, roomID, s.Identity.ID); err != nil {
				g.log.Warn("presence join failed", "room", roomID, "user", s.Identity.ID, "err", err)
			}
		}
	}

	history, err := g.History(ctx, roomID)
	if err != nil {
		return err
	}
	if err := g.router.SendTo(s, EventChatHistory, history); err != nil {
		return fmt.Errorf("deliver history: %w", err)
	}
	return nil
}

// History returns the active messages of roomID, oldest first. It never
// returns a nil slice without an error.
func (g *Gateway) History(ctx context.Context, roomID string) ([]model.Message, error) {
	if strings.TrimSpace(roomID) == "" {
		return nil, ErrMissingRoom
	}
	history, err := g.store.ListActive(ctx, roomID)
	if err != nil {
		return nil, fmt.Errorf("%w: list %s: %w", ErrPersistence, roomID, err)
	}
	if history == nil {
		history = []model.Message{}
	}
	return history, nil
}

// Message validates, persists and broadcasts one message. Appends for the
// same room are serialized so the broadcast order is the append order. The
// append is not cancelled if ctx is.
func (g *Gateway) Message(ctx context.Context, s *Session, req MessageRequest) (model.Message, error) {
	if s.State() == StateClosed {
		return model.Message{}, ErrSessionClosed
	}
	if strings.TrimSpace(req.RoomID) == "" {
		return model.Message{}, ErrMissingRoom
	}
	msgType := model.TypeText
	if req.Type != nil {
		t, err := model.ParseMessageType(*req.Type)
		if err != nil {
			return model.Message{}, err
		}
		msgType = t
	}

	ctx = context.WithoutCancel(ctx)
	candidate := model.Message{
		RoomID:   req.RoomID,
		SenderID: s.Identity.ID,
		Content:  req.Content,
		Type:     msgType,
		Sender:   model.Sender{ID: s.Identity.ID, Email: s.Identity.Email},
	}

	unlock := g.locks.lock(req.RoomID)
	stored, err := g.store.Append(ctx, candidate)
	if err != nil {
		unlock()
		return model.Message{}, fmt.Errorf("%w: append: %w", ErrPersistence, err)
	}
	delivered := g.router.Broadcast(req.RoomID, EventMessage, stored)
	unlock()

	g.log.Debug("message relayed", "room", req.RoomID, "id", stored.ID, "delivered", delivered)

	if g.publisher != nil {
		pctx, cancel := context.WithTimeout(ctx, g.publishTimeout)
		err := g.publisher.Publish(pctx, stored)
		cancel()
		if err != nil {
			g.log.Warn("publish failed", "room", req.RoomID, "id", stored.ID, "err", err)
		}
	}
	return stored, nil
}

// Disconnect removes s from every room and forgets it. Safe to call twice.
func (g *Gateway) Disconnect(ctx context.Context, s *Session) {
	s.close()
	rooms := g.registry.RemoveAll(s.ID)

	if g.presence != nil {
		for _, roomID := range rooms {
			if err := g.presence.Left(ctx, roomID, s.Identity.ID); err != nil {
				g.log.Warn("presence leave failed", "room", roomID, "user", s.Identity.ID, "err", err)
			}
		}
	}

	g.mu.Lock()
	_, tracked := g.sessions[s.ID]
	delete(g.sessions, s.ID)
	g.mu.Unlock()

	if tracked {
		g.log.Info("disconnected", "session", s.ID, "user", s.Identity.ID, "rooms", rooms)
	}
}

// RoomUsers lists the users present in roomID.
func (g *Gateway) RoomUsers(ctx context.Context, roomID string) ([]string, error) {
	if g.presence != nil {
		return g.presence.Members(ctx, roomID)
	}
	return g.registry.UserIDs(roomID), nil
}

// Shutdown closes every live session. Transports notice the closed
// connection and run Disconnect themselves.
func (g *Gateway) Shutdown(ctx context.Context) {
	g.mu.Lock()
	sessions := make([]*Session, 0, len(g.sessions))
	for _, s := range g.sessions {
		sessions = append(sessions, s)
	}
	g.mu.Unlock()

	for _, s := range sessions {
		s.close()
	}
	g.log.InfoContext(ctx, "gateway closed sessions", "count", len(sessions))
}
