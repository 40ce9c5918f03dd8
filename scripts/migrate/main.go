package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/mahaj/chat-relay/pkg/snowflake"
	"github.com/mahaj/chat-relay/pkg/store"
)

func envOr(getenv func(string) string, key, def string) string {
	if v := getenv(key); v != "" {
		return v
	}
	return def
}

// parseConfig reads flags, falling back to the same environment variables and
// defaults the relay uses.
func parseConfig(args []string, getenv func(string) string) (store.Config, error) {
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	backend := fs.String("backend", envOr(getenv, "STORE_BACKEND", store.BackendBadger), "scylla, postgres or badger")
	hosts := fs.String("scylla-hosts", envOr(getenv, "SCYLLA_HOSTS", "localhost:9042"), "comma-separated scylla hosts")
	keyspace := fs.String("keyspace", envOr(getenv, "SCYLLA_KEYSPACE", "chat"), "scylla keyspace")
	dsn := fs.String("postgres-dsn", getenv("POSTGRES_DSN"), "postgres connection string")
	badgerPath := fs.String("badger-path", getenv("BADGER_PATH"), "badger directory")
	if err := fs.Parse(args); err != nil {
		return store.Config{}, err
	}

	return store.Config{
		Backend:        *backend,
		ScyllaHosts:    store.SplitHosts(*hosts),
		ScyllaKeyspace: *keyspace,
		PostgresDSN:    *dsn,
		BadgerPath:     *badgerPath,
	}, nil
}

// Creates the message store schema for the configured backend.
func main() {
	_ = godotenv.Load()

	cfg, err := parseConfig(os.Args[1:], os.Getenv)
	if err != nil {
		log.Fatal(err)
	}

	ids, err := snowflake.NewNode(0)
	if err != nil {
		log.Fatal(err)
	}

	s, err := store.Open(context.Background(), cfg, ids, slog.Default())
	if err != nil {
		log.Fatal(err)
	}
	defer s.Close()

	log.Printf("Schema ready for %s", cfg.Backend)
}
