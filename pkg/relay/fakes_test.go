package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/mahaj/chat-relay/pkg/auth"
	"github.com/mahaj/chat-relay/pkg/model"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("relay-test-secret")

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeConn records every frame it is handed.
type fakeConn struct {
	mu     sync.Mutex
	frames [][]byte
	err    error
	closed bool
}

func (c *fakeConn) Send(frame []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.frames = append(c.frames, frame)
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeConn) received(t *testing.T) []Frame {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Frame, 0, len(c.frames))
	for _, b := range c.frames {
		var f Frame
		require.NoError(t, json.Unmarshal(b, &f))
		out = append(out, f)
	}
	return out
}

func (c *fakeConn) messages(t *testing.T) []model.Message {
	t.Helper()
	var out []model.Message
	for _, f := range c.received(t) {
		if f.Event != EventMessage {
			continue
		}
		var m model.Message
		require.NoError(t, json.Unmarshal(f.Data, &m))
		out = append(out, m)
	}
	return out
}

func (c *fakeConn) histories(t *testing.T) [][]model.Message {
	t.Helper()
	var out [][]model.Message
	for _, f := range c.received(t) {
		if f.Event != EventChatHistory {
			continue
		}
		var h []model.Message
		require.NoError(t, json.Unmarshal(f.Data, &h))
		out = append(out, h)
	}
	return out
}

// memStore is an in-process MessageStore.
type memStore struct {
	mu        sync.Mutex
	seq       int
	messages  []model.Message
	appendErr error
	listErr   error
	appended  int
}

func (s *memStore) Append(_ context.Context, msg model.Message) (model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.appendErr != nil {
		return model.Message{}, s.appendErr
	}
	s.seq++
	s.appended++
	msg.ID = fmt.Sprintf("m-%04d", s.seq)
	msg.CreatedAt = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(s.seq) * time.Millisecond)
	msg.IsEdited = false
	msg.IsDeleted = false
	s.messages = append(s.messages, msg)
	return msg, nil
}

func (s *memStore) ListActive(_ context.Context, roomID string) ([]model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return nil, s.listErr
	}
	out := []model.Message{}
	for _, m := range s.messages {
		if m.RoomID == roomID && !m.IsDeleted {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *memStore) markDeleted(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.messages {
		if s.messages[i].ID == id {
			s.messages[i].IsDeleted = true
		}
	}
}

func (s *memStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appended
}

// fakePresence counts joins and leaves per room and user.
type fakePresence struct {
	mu    sync.Mutex
	count map[string]int
	err   error
}

func newFakePresence() *fakePresence {
	return &fakePresence{count: make(map[string]int)}
}

func (p *fakePresence) Joined(_ context.Context, roomID, userID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.count[roomID+"/"+userID]++
	return p.err
}

func (p *fakePresence) Left(_ context.Context, roomID, userID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.count[roomID+"/"+userID]--
	return p.err
}

func (p *fakePresence) Members(_ context.Context, roomID string) ([]string, error) {
	return []string{"from-presence:" + roomID}, nil
}

func (p *fakePresence) get(roomID, userID string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.count[roomID+"/"+userID]
}

type fakePublisher struct {
	mu        sync.Mutex
	published []model.Message
}

func (p *fakePublisher) Publish(_ context.Context, msg model.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.published = append(p.published, msg)
	return nil
}

// stalledPublisher blocks until its context ends, like a write to an
// unreachable broker.
type stalledPublisher struct {
	done chan error
}

func (p *stalledPublisher) Publish(ctx context.Context, _ model.Message) error {
	<-ctx.Done()
	p.done <- ctx.Err()
	return ctx.Err()
}

var errStoreDown = errors.New("store down")

func newTestGateway(t *testing.T, store MessageStore, opts ...Option) *Gateway {
	t.Helper()
	v, err := auth.NewVerifier(testSecret)
	require.NoError(t, err)
	return NewGateway(discardLogger(), v, store, opts...)
}

func token(t *testing.T, id model.Identity, ttl time.Duration) string {
	t.Helper()
	tok, err := auth.GenerateToken(testSecret, id, ttl)
	require.NoError(t, err)
	return tok
}

func connect(t *testing.T, g *Gateway, userID string) (*Session, *fakeConn) {
	t.Helper()
	id, err := g.Authenticate(token(t, model.Identity{ID: userID, Email: userID + "@example.com"}, time.Hour))
	require.NoError(t, err)
	conn := &fakeConn{}
	return g.Connect(id, conn), conn
}
