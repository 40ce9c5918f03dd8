package relay

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mahaj/chat-relay/pkg/model"
)

var (
	ErrSessionClosed  = errors.New("session closed")
	ErrSendBufferFull = errors.New("send buffer full")
)

// Conn is the transport side of a session. Send must not block.
type Conn interface {
	Send(frame []byte) error
	Close() error
}

type State int

// There is no unauthenticated state on a Session: a connection only becomes a
// Session once its token has been verified.
const (
	StateAuthenticated State = iota + 1
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateAuthenticated:
		return "authenticated"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

type Session struct {
	ID          string
	Identity    model.Identity
	ConnectedAt time.Time

	conn Conn

	mu    sync.Mutex
	state State
	rooms map[string]struct{}
}

func newSession(id model.Identity, conn Conn) *Session {
	return &Session{
		ID:          uuid.NewString(),
		Identity:    id,
		ConnectedAt: time.Now().UTC(),
		conn:        conn,
		state:       StateAuthenticated,
		rooms:       make(map[string]struct{}),
	}
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// join records roomID and reports whether it is new for this session.
func (s *Session) join(roomID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateClosed {
		return false, ErrSessionClosed
	}
	if _, ok := s.rooms[roomID]; ok {
		return false, nil
	}
	s.rooms[roomID] = struct{}{}
	return true, nil
}

// Rooms returns the joined rooms, sorted.
func (s *Session) Rooms() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	rooms := make([]string, 0, len(s.rooms))
	for r := range s.rooms {
		rooms = append(rooms, r)
	}
	sort.Strings(rooms)
	return rooms
}

func (s *Session) Send(frame []byte) error {
	if s.State() == StateClosed {
		return ErrSessionClosed
	}
	return s.conn.Send(frame)
}

// close moves the session to StateClosed and reports whether this call did it.
func (s *Session) close() bool {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return false
	}
	s.state = StateClosed
	s.rooms = make(map[string]struct{})
	s.mu.Unlock()

	_ = s.conn.Close()
	return true
}
