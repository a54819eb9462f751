package xredis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/tribes-lab/backend/pkg/xcontext"
)

// Client is the persisted key/value tier behind the in-process post cache.
// Values are JSON blobs; staleness is judged by the caller from the stored
// record, not by redis expiry, so a ttl of zero is a valid store.
type Client interface {
	Exist(ctx context.Context, key string) (bool, error)
	Del(ctx context.Context, key ...string) error

	SetObj(ctx context.Context, key string, obj any, ttl time.Duration) error
	GetObj(ctx context.Context, key string, v any) error
	MSet(ctx context.Context, kv map[string]any) error
}

// IsMiss reports whether err means the key was absent rather than the tier
// failing.
func IsMiss(err error) bool {
	return errors.Is(err, redis.Nil)
}

type client struct {
	redisClient *redis.Client
}

func NewClient(ctx context.Context) (*client, error) {
	cfg := xcontext.Configs(ctx).Redis
	redisClient := redis.NewClient(&redis.Options{
		Addr:            cfg.Addr,
		Password:        cfg.Password,
		MaxRetries:      5,
		MinRetryBackoff: 8 * time.Millisecond,
		MaxRetryBackoff: 512 * time.Millisecond,
		DialTimeout:     5 * time.Second,
		ReadTimeout:     5 * time.Second,
		WriteTimeout:    5 * time.Second,
		PoolSize:        5,
	})

	if err := redisClient.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return &client{redisClient: redisClient}, nil
}

func (c *client) Exist(ctx context.Context, key string) (bool, error) {
	n, err := c.redisClient.Exists(ctx, key).Uint64()
	if err != nil {
		return false, err
	}

	return n == 1, nil
}

func (c *client) Del(ctx context.Context, key ...string) error {
	if len(key) == 0 {
		return nil
	}

	if err := c.redisClient.Del(ctx, key...).Err(); err != nil && !IsMiss(err) {
		return err
	}

	return nil
}

func (c *client) SetObj(ctx context.Context, key string, obj any, ttl time.Duration) error {
	blob, err := json.Marshal(obj)
	if err != nil {
		return err
	}

	return c.redisClient.Set(ctx, key, blob, ttl).Err()
}

func (c *client) GetObj(ctx context.Context, key string, v any) error {
	blob, err := c.redisClient.Get(ctx, key).Bytes()
	if err != nil {
		return err
	}

	return json.Unmarshal(blob, v)
}

func (c *client) MSet(ctx context.Context, kv map[string]any) error {
	flat := map[string]string{}
	for k, v := range kv {
		blob, err := json.Marshal(v)
		if err != nil {
			return err
		}

		flat[k] = string(blob)
	}

	return c.redisClient.MSet(ctx, flat).Err()
}
