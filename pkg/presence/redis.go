// Package presence mirrors room membership into Redis so that other
// processes can answer "who is in this room" without asking the gateway.
package presence

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/redis/go-redis/v9"
)

// A user may be connected more than once. Each room hash keeps one field per
// user whose value is that user's connection count.
var luaLeave = redis.NewScript(`
  local n = redis.call('HINCRBY', KEYS[1], ARGV[1], -1)
  if n <= 0 then
    redis.call('HDEL', KEYS[1], ARGV[1])
  end
  return n
`)

type Redis struct {
	rdb redis.UniversalClient
}

func NewRedis(rdb redis.UniversalClient) *Redis {
	return &Redis{rdb: rdb}
}

// Dial connects to addr and checks the server answers.
func Dial(ctx context.Context, addr string, log *slog.Logger) (*Redis, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	log.Info("connected to redis", "addr", addr)
	return NewRedis(rdb), nil
}

func roomKey(roomID string) string {
	return "room:" + roomID + ":presence"
}

func (p *Redis) Joined(ctx context.Context, roomID, userID string) error {
	return p.rdb.HIncrBy(ctx, roomKey(roomID), userID, 1).Err()
}

func (p *Redis) Left(ctx context.Context, roomID, userID string) error {
	return luaLeave.Run(ctx, p.rdb, []string{roomKey(roomID)}, userID).Err()
}

// Members returns the users present in roomID, sorted.
func (p *Redis) Members(ctx context.Context, roomID string) ([]string, error) {
	users, err := p.rdb.HKeys(ctx, roomKey(roomID)).Result()
	if err != nil {
		return nil, err
	}
	sort.Strings(users)
	return users, nil
}

func (p *Redis) Close() error {
	return p.rdb.Close()
}
