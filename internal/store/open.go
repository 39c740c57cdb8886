package store

import (
	"context"
	"fmt"
	"io"

	"campusconnect/internal/config"
)

// Sessions is a session backend owned by the process.
type Sessions interface {
	Write(ctx context.Context, token string, user []byte) error
	Read(ctx context.Context) (string, []byte, error)
	Delete(ctx context.Context) error
	io.Closer
}

var (
	_ Sessions = (*Memory)(nil)
	_ Sessions = (*SQLiteSessions)(nil)
	_ Sessions = (*RedisSessions)(nil)
)

// NeedsRedis reports whether cfg uses redis for sessions or the scan queue.
func NeedsRedis(cfg config.App) bool {
	return cfg.SessionBackend == "redis" || cfg.QueueBackend == "redis"
}

// OpenSessions opens the backend selected by cfg. rdb is required for the
// redis backend.
func OpenSessions(cfg config.App, rdb *Redis) (Sessions, error) {
	switch cfg.SessionBackend {
	case "memory":
		return NewMemory(), nil
	case "redis":
		if rdb == nil || rdb.Client == nil {
			return nil, fmt.Errorf("redis session backend needs a redis client")
		}
		return NewRedisSessions(rdb.Client, cfg.SessionKeyPrefix), nil
	case "sqlite", "":
		return OpenSQLite(cfg.SessionDBPath)
	default:
		return nil, fmt.Errorf("unknown session backend %q", cfg.SessionBackend)
	}
}
