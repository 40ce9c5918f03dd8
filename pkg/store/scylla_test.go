package store

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/mahaj/chat-relay/pkg/model"
	"github.com/stretchr/testify/require"
)

func TestScylla_SenderLookupFailureFallsBack(t *testing.T) {
	req := require.New(t)
	var logs bytes.Buffer
	lookupErr := errors.New("users table unavailable")

	// Given a users lookup that always fails
	s := &ScyllaStore{
		log: slog.New(slog.NewTextHandler(&logs, nil)),
		lookup: func(context.Context, string, string) (model.Sender, error) {
			return model.Sender{}, lookupErr
		},
	}

	// When the sender block is resolved
	sender := s.senderOrFallback(context.Background(), "alice", "alice@example.com")

	// Then the id and email are kept and the failure is logged
	req.Equal(model.Sender{ID: "alice", Email: "alice@example.com"}, sender)
	req.Contains(logs.String(), "sender lookup failed")
	req.Contains(logs.String(), "users table unavailable")
}

func TestScylla_SenderLookupSuccess(t *testing.T) {
	req := require.New(t)
	var logs bytes.Buffer

	s := &ScyllaStore{
		log: slog.New(slog.NewTextHandler(&logs, nil)),
		lookup: func(_ context.Context, id, _ string) (model.Sender, error) {
			return model.Sender{ID: id, Username: "Alice", Email: "alice@corp.example"}, nil
		},
	}

	sender := s.senderOrFallback(context.Background(), "alice", "alice@example.com")

	req.Equal("Alice", sender.Username)
	req.Equal("alice@corp.example", sender.Email)
	req.Empty(logs.String())
}

func TestSplitHosts(t *testing.T) {
	tests := []struct {
		raw  string
		want []string
	}{
		{raw: "", want: []string{}},
		{raw: "localhost:9042", want: []string{"localhost:9042"}},
		{raw: "db1:9042, db2:9042,", want: []string{"db1:9042", "db2:9042"}},
		{raw: " , ,db3", want: []string{"db3"}},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			require.Equal(t, tt.want, SplitHosts(tt.raw))
		})
	}
}
