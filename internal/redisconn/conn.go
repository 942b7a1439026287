// Package redisconn exposes the narrow Redis surface the dispatch fabric
// needs — LPUSH, BRPOP, SETEX, GET, DEL, EXPIRE, HSET, HGETALL, HDEL — behind
// an interface. Nothing outside this package talks to *redis.Client
// directly.
package redisconn

import (
	"context"
	"errors"
	"time"
)

// ErrNil is returned in place of redis.Nil: a BRPop timeout or a missing key
// on Get. Callers compare with errors.Is, never on the concrete redis driver
// error.
var ErrNil = errors.New("redisconn: nil")

// Conn is the Redis command subset the core depends on.
type Conn interface {
	LPush(ctx context.Context, key string, value []byte) error
	// BRPop blocks up to timeout across keys, first-match-wins, mirroring
	// Redis's own BRPOP semantics (listeners on the same key compete;
	// ordering across different keys is unspecified).
	BRPop(ctx context.Context, timeout time.Duration, keys ...string) (key string, value []byte, err error)
	SetEX(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, error)
	Del(ctx context.Context, keys ...string) error
	Expire(ctx context.Context, key string, ttl time.Duration) error
	HSet(ctx context.Context, key, field, value string) error
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	HDel(ctx context.Context, key string, fields ...string) error
}
