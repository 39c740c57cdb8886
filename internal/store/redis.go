package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis wraps a redis client shared by the session backend and the scan queue.
type Redis struct {
	Client *redis.Client
}

// NewRedis connects to redis with short timeouts.
func NewRedis(addr, password string) *Redis {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  1 * time.Second,
		WriteTimeout: 1 * time.Second,
	})
	return &Redis{Client: client}
}

// Healthy verifies redis connectivity.
func (r *Redis) Healthy(ctx context.Context) bool {
	if r == nil || r.Client == nil {
		return false
	}
	return r.Client.Ping(ctx).Err() == nil
}

// Close closes the underlying client.
func (r *Redis) Close() error {
	if r == nil || r.Client == nil {
		return nil
	}
	return r.Client.Close()
}

// RedisSessions keeps the two session keys under a common prefix.
type RedisSessions struct {
	client *redis.Client
	prefix string
}

// NewRedisSessions builds a session backend on client. Keys are
// "<prefix>:token" and "<prefix>:user".
func NewRedisSessions(client *redis.Client, prefix string) *RedisSessions {
	if prefix == "" {
		prefix = "campusconnect:session"
	}
	return &RedisSessions{client: client, prefix: prefix}
}

func (s *RedisSessions) tokenKey() string { return s.prefix + ":" + KeyToken }
func (s *RedisSessions) userKey() string  { return s.prefix + ":" + KeyUser }

// Write sets both keys in one MULTI/EXEC transaction.
func (s *RedisSessions) Write(ctx context.Context, token string, user []byte) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.tokenKey(), token, 0)
		pipe.Set(ctx, s.userKey(), user, 0)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis session write: %w", err)
	}
	return nil
}

// Read returns both keys; missing keys read as empty.
func (s *RedisSessions) Read(ctx context.Context) (string, []byte, error) {
	vals, err := s.client.MGet(ctx, s.tokenKey(), s.userKey()).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return "", nil, fmt.Errorf("redis session read: %w", err)
	}
	var token string
	var user []byte
	if len(vals) == 2 {
		if v, ok := vals[0].(string); ok {
			token = v
		}
		if v, ok := vals[1].(string); ok {
			user = []byte(v)
		}
	}
	return token, user, nil
}

// Delete removes both keys in one command.
func (s *RedisSessions) Delete(ctx context.Context) error {
	if err := s.client.Del(ctx, s.tokenKey(), s.userKey()).Err(); err != nil {
		return fmt.Errorf("redis session delete: %w", err)
	}
	return nil
}

// Close is a no-op; the client belongs to the Redis wrapper.
func (s *RedisSessions) Close() error { return nil }
