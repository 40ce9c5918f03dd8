package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gocql/gocql"
	"github.com/mahaj/chat-relay/pkg/db"
	"github.com/mahaj/chat-relay/pkg/model"
	"github.com/mahaj/chat-relay/pkg/snowflake"
)

var scyllaSchema = []string{
	`CREATE TABLE IF NOT EXISTS messages (
		room_id text,
		id bigint,
		sender_id text,
		sender_email text,
		content text,
		type text,
		created_at timestamp,
		is_edited boolean,
		is_deleted boolean,
		PRIMARY KEY (room_id, id)
	) WITH CLUSTERING ORDER BY (id ASC)`,
	// Owned by the account system; created here so lookups never fail on a fresh cluster.
	`CREATE TABLE IF NOT EXISTS users (
		user_id text PRIMARY KEY,
		username text,
		email text
	)`,
}

type senderLookup func(ctx context.Context, senderID, fallbackEmail string) (model.Sender, error)

type ScyllaStore struct {
	db     *db.Session
	ids    *snowflake.Node
	log    *slog.Logger
	lookup senderLookup
}

func NewScyllaStore(session *db.Session, ids *snowflake.Node, log *slog.Logger) *ScyllaStore {
	s := &ScyllaStore{db: session, ids: ids, log: log}
	s.lookup = s.lookupSender
	return s
}

func (s *ScyllaStore) EnsureSchema(ctx context.Context) error {
	for _, stmt := range scyllaSchema {
		if err := s.db.Query(stmt).WithContext(ctx).Exec(); err != nil {
			return err
		}
	}
	return nil
}

func (s *ScyllaStore) Append(ctx context.Context, msg model.Message) (model.Message, error) {
	stored, id, err := stamp(s.ids, msg)
	if err != nil {
		return model.Message{}, err
	}

	query := `INSERT INTO messages (room_id, id, sender_id, sender_email, content, type, created_at, is_edited, is_deleted) VALUES (?, ?, ?, ?, ?, ?, ?, false, false)`
	if err := s.db.Query(query,
		stored.RoomID, id, stored.SenderID, stored.Sender.Email,
		stored.Content, string(stored.Type), stored.CreatedAt,
	).WithContext(ctx).Exec(); err != nil {
		return model.Message{}, fmt.Errorf("scylla append: %w", err)
	}

	// The row is written; a failed user lookup must not hide it from the room.
	stored.Sender = s.senderOrFallback(ctx, stored.SenderID, stored.Sender.Email)
	return stored, nil
}

// ListActive reads the room partition in clustering order (id ASC). Deleted
// rows are filtered here rather than with ALLOW FILTERING.
func (s *ScyllaStore) ListActive(ctx context.Context, roomID string) ([]model.Message, error) {
	iter := s.db.Query(`SELECT id, sender_id, sender_email, content, type, created_at, is_edited, is_deleted FROM messages WHERE room_id = ?`, roomID).
		WithContext(ctx).Iter()

	var (
		id                             int64
		senderID, senderEmail, content string
		msgType                        string
		createdAt                      time.Time
		isEdited, isDeleted            bool
	)
	messages := []model.Message{}
	for iter.Scan(&id, &senderID, &senderEmail, &content, &msgType, &createdAt, &isEdited, &isDeleted) {
		if isDeleted {
			continue
		}
		messages = append(messages, model.Message{
			ID:        snowflake.Format(id),
			RoomID:    roomID,
			SenderID:  senderID,
			Content:   content,
			Type:      model.MessageType(msgType),
			CreatedAt: createdAt.UTC(),
			IsEdited:  isEdited,
			Sender:    model.Sender{ID: senderID, Email: senderEmail},
		})
	}
	if err := iter.Close(); err != nil {
		return nil, fmt.Errorf("scylla list %s: %w", roomID, err)
	}

	senders := make(map[string]model.Sender)
	for i := range messages {
		m := &messages[i]
		sender, ok := senders[m.SenderID]
		if !ok {
			sender = s.senderOrFallback(ctx, m.SenderID, m.Sender.Email)
			senders[m.SenderID] = sender
		}
		m.Sender = sender
	}
	return messages, nil
}

// senderOrFallback resolves the sender block, degrading to {id, email} when
// the users table cannot be read.
func (s *ScyllaStore) senderOrFallback(ctx context.Context, senderID, fallbackEmail string) model.Sender {
	sender, err := s.lookup(ctx, senderID, fallbackEmail)
	if err != nil {
		s.log.Warn("sender lookup failed, using fallback", "sender", senderID, "err", err)
		return model.Sender{ID: senderID, Email: fallbackEmail}
	}
	return sender
}

func (s *ScyllaStore) lookupSender(ctx context.Context, senderID, fallbackEmail string) (model.Sender, error) {
	sender := model.Sender{ID: senderID, Email: fallbackEmail}
	var username, email string
	err := s.db.Query(`SELECT username, email FROM users WHERE user_id = ?`, senderID).
		WithContext(ctx).Scan(&username, &email)
	if errors.Is(err, gocql.ErrNotFound) {
		return sender, nil
	}
	if err != nil {
		return sender, fmt.Errorf("scylla sender %s: %w", senderID, err)
	}
	sender.Username = username
	if email != "" {
		sender.Email = email
	}
	return sender, nil
}

func (s *ScyllaStore) Close() error {
	s.db.Close()
	return nil
}
