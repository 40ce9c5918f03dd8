package relay

import (
	"log/slog"
)

// Router fans a frame out to the members of a room as seen by the registry
// at call time.
type Router struct {
	registry *Registry
	log      *slog.Logger
}

func NewRouter(registry *Registry, log *slog.Logger) *Router {
	return &Router{registry: registry, log: log}
}

// Broadcast returns the number of sessions the frame was handed to. A failed
// send to one member never stops delivery to the others.
func (rt *Router) Broadcast(roomID, event string, payload any) int {
	frame, err := encodeFrame(event, payload)
	if err != nil {
		rt.log.Error("broadcast encode failed", "room", roomID, "event", event, "err", err)
		return 0
	}

	delivered := 0
	for _, s := range rt.registry.Sessions(roomID) {
		if err := s.Send(frame); err != nil {
			rt.log.Warn("broadcast delivery failed",
				"room", roomID, "session", s.ID, "user", s.Identity.ID, "err", err)
			continue
		}
		delivered++
	}
	return delivered
}

// SendTo delivers a frame to one session only.
func (rt *Router) SendTo(s *Session, event string, payload any) error {
	frame, err := encodeFrame(event, payload)
	if err != nil {
		return err
	}
	return s.Send(frame)
}
