package store

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/mahaj/chat-relay/pkg/model"
	"github.com/mahaj/chat-relay/pkg/snowflake"
)

type BadgerStore struct {
	db  *badger.DB
	ids *snowflake.Node
}

type diskMessage struct {
	ID          string    `json:"id"`
	RoomID      string    `json:"room_id"`
	SenderID    string    `json:"sender_id"`
	SenderEmail string    `json:"sender_email"`
	Content     string    `json:"content"`
	Type        string    `json:"type"`
	CreatedAt   time.Time `json:"created_at"`
	IsEdited    bool      `json:"is_edited"`
	IsDeleted   bool      `json:"is_deleted"`
}

type diskUser struct {
	Username string `json:"username"`
	Email    string `json:"email"`
}

// OpenBadger opens an embedded store at path, or an in-memory one when path is empty.
func OpenBadger(path string, ids *snowflake.Node, log *slog.Logger) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	if path == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	log.Debug("badger opened", "path", path, "in_memory", path == "")
	return NewBadgerStore(db, ids), nil
}

func NewBadgerStore(db *badger.DB, ids *snowflake.Node) *BadgerStore {
	return &BadgerStore{db: db, ids: ids}
}

// Room ids are hex encoded so that one room's prefix never matches another room.
func roomPrefix(roomID string) []byte {
	return []byte("msg:" + hex.EncodeToString([]byte(roomID)) + ":")
}

func messageKey(roomID string, id int64) []byte {
	return append(roomPrefix(roomID), snowflake.Format(id)...)
}

func userKey(userID string) []byte {
	return []byte("user:" + userID)
}

// EnsureSchema is a no-op: badger is schemaless.
func (s *BadgerStore) EnsureSchema(context.Context) error { return nil }

func (s *BadgerStore) Append(_ context.Context, msg model.Message) (model.Message, error) {
	stored, id, err := stamp(s.ids, msg)
	if err != nil {
		return model.Message{}, err
	}

	bytes, err := json.Marshal(diskMessage{
		ID:          stored.ID,
		RoomID:      stored.RoomID,
		SenderID:    stored.SenderID,
		SenderEmail: stored.Sender.Email,
		Content:     stored.Content,
		Type:        string(stored.Type),
		CreatedAt:   stored.CreatedAt,
	})
	if err != nil {
		return model.Message{}, err
	}

	var sender model.Sender
	err = s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(messageKey(stored.RoomID, id), bytes); err != nil {
			return err
		}
		var lookupErr error
		sender, lookupErr = lookupSender(txn, stored.SenderID, stored.Sender.Email)
		return lookupErr
	})
	if err != nil {
		return model.Message{}, fmt.Errorf("badger append: %w", err)
	}
	stored.Sender = sender
	return stored, nil
}

// ListActive scans the room prefix in key order, which is id order and
// therefore creation order.
func (s *BadgerStore) ListActive(_ context.Context, roomID string) ([]model.Message, error) {
	messages := []model.Message{}
	err := s.db.View(func(txn *badger.Txn) error {
		prefix := roomPrefix(roomID)
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		senders := make(map[string]model.Sender)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var dm diskMessage
			if err := it.Item().Value(func(v []byte) error {
				return json.Unmarshal(v, &dm)
			}); err != nil {
				return err
			}
			if dm.IsDeleted {
				continue
			}

			sender, ok := senders[dm.SenderID]
			if !ok {
				var err error
				if sender, err = lookupSender(txn, dm.SenderID, dm.SenderEmail); err != nil {
					return err
				}
				senders[dm.SenderID] = sender
			}
			messages = append(messages, dm.toModel(sender))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("badger list %s: %w", roomID, err)
	}
	return messages, nil
}

func (s *BadgerStore) Close() error {
	return s.db.Close()
}

// lookupSender resolves the account block written by the account system under
// user:{id}, falling back to the email the message was sent with.
func lookupSender(txn *badger.Txn, senderID, fallbackEmail string) (model.Sender, error) {
	sender := model.Sender{ID: senderID, Email: fallbackEmail}
	item, err := txn.Get(userKey(senderID))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return sender, nil
	}
	if err != nil {
		return sender, err
	}
	var u diskUser
	if err := item.Value(func(v []byte) error { return json.Unmarshal(v, &u) }); err != nil {
		return sender, err
	}
	sender.Username = u.Username
	if u.Email != "" {
		sender.Email = u.Email
	}
	return sender, nil
}

func (dm diskMessage) toModel(sender model.Sender) model.Message {
	return model.Message{
		ID:        dm.ID,
		RoomID:    dm.RoomID,
		SenderID:  dm.SenderID,
		Content:   dm.Content,
		Type:      model.MessageType(dm.Type),
		CreatedAt: dm.CreatedAt,
		IsEdited:  dm.IsEdited,
		IsDeleted: dm.IsDeleted,
		Sender:    sender,
	}
}
