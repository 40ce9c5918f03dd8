package store

import (
	"context"
	"log/slog"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/mahaj/chat-relay/pkg/snowflake"
	"github.com/stretchr/testify/require"
)

// testStoreContract checks the behaviour every backend shares.
func testStoreContract(t *testing.T, s Store) {
	req := require.New(t)
	ctx := context.Background()
	room := "contract-" + uuid.NewString()

	// Given an empty room
	history, err := s.ListActive(ctx, room)
	req.NoError(err)
	req.NotNil(history)
	req.Empty(history)

	// When three messages are appended
	var ids []string
	for _, content := range []string{"one", "two", "three"} {
		m, err := s.Append(ctx, candidate(room, "alice", content))
		req.NoError(err)
		req.NotEmpty(m.ID)
		req.False(m.CreatedAt.IsZero())
		ids = append(ids, m.ID)
	}

	// Then they come back oldest first with the sender block
	history, err = s.ListActive(ctx, room)
	req.NoError(err)
	req.Len(history, 3)
	for i, m := range history {
		req.Equal(ids[i], m.ID)
		req.Equal(room, m.RoomID)
		req.Equal("alice", m.Sender.ID)
		req.False(m.IsDeleted)
	}
	req.Equal("three", history[2].Content)

	_, err = s.Append(ctx, candidate("", "alice", "nowhere"))
	req.ErrorIs(err, ErrEmptyRoom)
}

func TestContract_Badger(t *testing.T) {
	testStoreContract(t, newBadgerStore(t))
}

// Runs when TEST_POSTGRES_DSN points at a disposable database.
func TestContract_Postgres(t *testing.T) {
	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TEST_POSTGRES_DSN not set")
	}
	ids, err := snowflake.NewNode(2)
	require.NoError(t, err)

	s, err := Open(context.Background(), Config{Backend: BackendPostgres, PostgresDSN: dsn}, ids, slog.Default())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	testStoreContract(t, s)
}

// Runs when TEST_SCYLLA_HOSTS lists a reachable cluster.
func TestContract_Scylla(t *testing.T) {
	hosts := os.Getenv("TEST_SCYLLA_HOSTS")
	if hosts == "" {
		t.Skip("TEST_SCYLLA_HOSTS not set")
	}
	ids, err := snowflake.NewNode(3)
	require.NoError(t, err)

	s, err := Open(context.Background(), Config{
		Backend:        BackendScylla,
		ScyllaHosts:    SplitHosts(hosts),
		ScyllaKeyspace: "chat_test",
	}, ids, slog.Default())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	testStoreContract(t, s)
}
