// Package store persists relay messages. Every backend assigns snowflake ids,
// derives createdAt from the id, and lists a room's non-deleted messages in
// ascending creation order with the sender block attached.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mahaj/chat-relay/pkg/db"
	"github.com/mahaj/chat-relay/pkg/model"
	"github.com/mahaj/chat-relay/pkg/snowflake"
	"github.com/samber/lo"
)

const (
	BackendScylla   = "scylla"
	BackendPostgres = "postgres"
	BackendBadger   = "badger"
)

var (
	ErrUnknownBackend = errors.New("unknown store backend")
	ErrEmptyRoom      = errors.New("room id is required")
)

type Store interface {
	Append(ctx context.Context, msg model.Message) (model.Message, error)
	ListActive(ctx context.Context, roomID string) ([]model.Message, error)
	EnsureSchema(ctx context.Context) error
	Close() error
}

type Config struct {
	Backend        string
	ScyllaHosts    []string
	ScyllaKeyspace string
	PostgresDSN    string
	BadgerPath     string
}

// Open connects the configured backend and makes sure its schema exists.
func Open(ctx context.Context, cfg Config, ids *snowflake.Node, log *slog.Logger) (Store, error) {
	backend := strings.ToLower(strings.TrimSpace(cfg.Backend))
	if backend == "" {
		backend = BackendBadger
	}

	var (
		s   Store
		err error
	)
	switch backend {
	case BackendScylla:
		if err = db.EnsureKeyspace(cfg.ScyllaHosts, cfg.ScyllaKeyspace, log); err != nil {
			return nil, err
		}
		var session *db.Session
		session, err = db.NewSession(cfg.ScyllaHosts, cfg.ScyllaKeyspace, log)
		if err == nil {
			s = NewScyllaStore(session, ids, log)
		}
	case BackendPostgres:
		s, err = OpenPostgres(ctx, cfg.PostgresDSN, ids)
	case BackendBadger:
		s, err = OpenBadger(cfg.BadgerPath, ids, log)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.Backend)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", backend, err)
	}

	if err := s.EnsureSchema(ctx); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("ensure %s schema: %w", backend, err)
	}
	log.Info("message store ready", "backend", backend)
	return s, nil
}

// SplitHosts parses a comma-separated host list, dropping blank entries.
func SplitHosts(raw string) []string {
	return lo.Compact(lo.Map(strings.Split(raw, ","), func(h string, _ int) string {
		return strings.TrimSpace(h)
	}))
}

// stamp assigns the store-owned fields of a new message.
func stamp(ids *snowflake.Node, msg model.Message) (model.Message, int64, error) {
	if msg.RoomID == "" {
		return model.Message{}, 0, ErrEmptyRoom
	}
	id := ids.Generate()
	msg.ID = snowflake.Format(id)
	msg.CreatedAt = snowflake.Time(id)
	msg.IsEdited = false
	msg.IsDeleted = false
	msg.Sender.ID = msg.SenderID
	return msg, id, nil
}
