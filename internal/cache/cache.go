// Package cache provides the key/value cache behind explanation reuse.
package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrCacheMiss indicates a cache miss.
var ErrCacheMiss = errors.New("cache miss")

// Client defines the cache interface.
type Client interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	DeleteByPrefix(ctx context.Context, prefix string) error
	Close() error
}

// Options selects and configures a cache driver.
type Options struct {
	Driver     string // none, memory or redis
	MaxEntries int
	Redis      RedisConfig
}

// New builds the client for the configured driver. The "none" driver
// returns a nil client and nil error.
func New(opts Options) (Client, error) {
	switch opts.Driver {
	case "", "none":
		return nil, nil
	case "memory":
		return NewMemoryClient(opts.MaxEntries), nil
	case "redis":
		client, err := NewRedisClient(opts.Redis)
		if err != nil {
			return nil, err
		}
		return client, nil
	default:
		return nil, fmt.Errorf("unknown cache driver: %s", opts.Driver)
	}
}

// Key generates a cache key from components.
func Key(parts ...string) string {
	return strings.Join(parts, ":")
}
