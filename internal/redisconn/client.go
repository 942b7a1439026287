package redisconn

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Client adapts a *redis.Client (go-redis v9) to Conn.
type Client struct {
	rdb *redis.Client
}

// NewClient wraps an existing go-redis client.
func NewClient(rdb *redis.Client) *Client {
	return &Client{rdb: rdb}
}

func (c *Client) LPush(ctx context.Context, key string, value []byte) error {
	return c.rdb.LPush(ctx, key, value).Err()
}

func (c *Client) BRPop(ctx context.Context, timeout time.Duration, keys ...string) (string, []byte, error) {
	res, err := c.rdb.BRPop(ctx, timeout, keys...).Result()
	if err == redis.Nil {
		return "", nil, ErrNil
	}
	if err != nil {
		return "", nil, err
	}
	// go-redis returns [key, value] for BRPOP.
	return res[0], []byte(res[1]), nil
}

func (c *Client) SetEX(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return c.rdb.SetEx(ctx, key, value, ttl).Err()
}

func (c *Client) Get(ctx context.Context, key string) ([]byte, error) {
	res, err := c.rdb.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, ErrNil
	}
	return res, err
}

func (c *Client) Del(ctx context.Context, keys ...string) error {
	return c.rdb.Del(ctx, keys...).Err()
}

func (c *Client) Expire(ctx context.Context, key string, ttl time.Duration) error {
	return c.rdb.Expire(ctx, key, ttl).Err()
}

func (c *Client) HSet(ctx context.Context, key, field, value string) error {
	return c.rdb.HSet(ctx, key, field, value).Err()
}

func (c *Client) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	return c.rdb.HGetAll(ctx, key).Result()
}

func (c *Client) HDel(ctx context.Context, key string, fields ...string) error {
	return c.rdb.HDel(ctx, key, fields...).Err()
}
