package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mahaj/chat-relay/pkg/model"
	"github.com/mahaj/chat-relay/pkg/snowflake"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS users (
	id       TEXT PRIMARY KEY,
	username TEXT NOT NULL DEFAULT '',
	email    TEXT NOT NULL DEFAULT ''
);
CREATE TABLE IF NOT EXISTS messages (
	id           TEXT PRIMARY KEY,
	room_id      TEXT NOT NULL,
	sender_id    TEXT NOT NULL,
	sender_email TEXT NOT NULL DEFAULT '',
	content      TEXT NOT NULL,
	type         TEXT NOT NULL,
	created_at   TIMESTAMPTZ NOT NULL,
	is_edited    BOOLEAN NOT NULL DEFAULT FALSE,
	is_deleted   BOOLEAN NOT NULL DEFAULT FALSE
);
CREATE INDEX IF NOT EXISTS messages_room_created_idx ON messages (room_id, created_at, id);
`

const appendQuery = `
WITH inserted AS (
	INSERT INTO messages (id, room_id, sender_id, sender_email, content, type, created_at, is_edited, is_deleted)
	VALUES ($1, $2, $3, $4, $5, $6, $7, FALSE, FALSE)
	RETURNING id, room_id, sender_id, sender_email, content, type, created_at, is_edited, is_deleted
)
SELECT i.id, i.room_id, i.sender_id, i.content, i.type, i.created_at, i.is_edited, i.is_deleted,
       COALESCE(u.username, ''), COALESCE(NULLIF(u.email, ''), i.sender_email)
FROM inserted i
LEFT JOIN users u ON u.id = i.sender_id
`

const listActiveQuery = `
SELECT m.id, m.room_id, m.sender_id, m.content, m.type, m.created_at, m.is_edited, m.is_deleted,
       COALESCE(u.username, ''), COALESCE(NULLIF(u.email, ''), m.sender_email)
FROM messages m
LEFT JOIN users u ON u.id = m.sender_id
WHERE m.room_id = $1 AND NOT m.is_deleted
ORDER BY m.created_at ASC, m.id ASC
`

type PostgresStore struct {
	pool *pgxpool.Pool
	ids  *snowflake.Node
}

func OpenPostgres(ctx context.Context, dsn string, ids *snowflake.Node) (*PostgresStore, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	return NewPostgresStore(pool, ids), nil
}

func NewPostgresStore(pool *pgxpool.Pool, ids *snowflake.Node) *PostgresStore {
	return &PostgresStore{pool: pool, ids: ids}
}

func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresSchema)
	return err
}

func (s *PostgresStore) Append(ctx context.Context, msg model.Message) (model.Message, error) {
	stored, _, err := stamp(s.ids, msg)
	if err != nil {
		return model.Message{}, err
	}

	row := s.pool.QueryRow(ctx, appendQuery,
		stored.ID, stored.RoomID, stored.SenderID, stored.Sender.Email,
		stored.Content, string(stored.Type), stored.CreatedAt,
	)
	out, err := scanMessage(row)
	if err != nil {
		return model.Message{}, fmt.Errorf("postgres append: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) ListActive(ctx context.Context, roomID string) ([]model.Message, error) {
	rows, err := s.pool.Query(ctx, listActiveQuery, roomID)
	if err != nil {
		return nil, fmt.Errorf("postgres list %s: %w", roomID, err)
	}
	defer rows.Close()

	messages := []model.Message{}
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres list %s: %w", roomID, err)
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres list %s: %w", roomID, err)
	}
	return messages, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func scanMessage(row pgx.Row) (model.Message, error) {
	var (
		m       model.Message
		msgType string
	)
	if err := row.Scan(
		&m.ID, &m.RoomID, &m.SenderID, &m.Content, &msgType, &m.CreatedAt,
		&m.IsEdited, &m.IsDeleted, &m.Sender.Username, &m.Sender.Email,
	); err != nil {
		return model.Message{}, err
	}
	m.Type = model.MessageType(msgType)
	m.CreatedAt = m.CreatedAt.UTC()
	m.Sender.ID = m.SenderID
	return m, nil
}
