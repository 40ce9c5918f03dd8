package db

import (
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"github.com/gocql/gocql"
)

var keyspacePattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]{0,47}$`)

type Session struct {
	*gocql.Session
}

func newCluster(hosts []string, keyspace string) *gocql.ClusterConfig {
	cluster := gocql.NewCluster(hosts...)
	cluster.Keyspace = keyspace
	cluster.Consistency = gocql.Quorum
	cluster.Timeout = 5 * time.Second
	cluster.ConnectTimeout = 5 * time.Second

	cluster.RetryPolicy = &gocql.ExponentialBackoffRetryPolicy{
		NumRetries: 3,
		Min:        100 * time.Millisecond,
		Max:        1 * time.Second,
	}
	return cluster
}

func NewSession(hosts []string, keyspace string, log *slog.Logger) (*Session, error) {
	if !keyspacePattern.MatchString(keyspace) {
		return nil, fmt.Errorf("invalid keyspace name %q", keyspace)
	}
	session, err := newCluster(hosts, keyspace).CreateSession()
	if err != nil {
		return nil, err
	}

	log.Info("connected to scylla cluster", "hosts", hosts, "keyspace", keyspace)
	return &Session{Session: session}, nil
}

// EnsureKeyspace creates keyspace through the system keyspace if it does not exist yet.
func EnsureKeyspace(hosts []string, keyspace string, log *slog.Logger) error {
	if !keyspacePattern.MatchString(keyspace) {
		return fmt.Errorf("invalid keyspace name %q", keyspace)
	}
	sys, err := newCluster(hosts, "system").CreateSession()
	if err != nil {
		return fmt.Errorf("connect system keyspace: %w", err)
	}
	defer sys.Close()

	stmt := fmt.Sprintf(`CREATE KEYSPACE IF NOT EXISTS %s WITH REPLICATION = { 'class' : 'SimpleStrategy', 'replication_factor' : 1 }`, keyspace)
	if err := sys.Query(stmt).Exec(); err != nil {
		return fmt.Errorf("create keyspace %s: %w", keyspace, err)
	}
	log.Debug("scylla keyspace ensured", "keyspace", keyspace)
	return nil
}
