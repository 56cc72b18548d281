// Package kvstore provides the synchronous key-value stores that hold
// client-side state between runs: the active conversation id and the
// user's selected documents.
package kvstore

import (
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/zulandar/docchat/internal/config"
	"github.com/zulandar/docchat/internal/db"
)

// ErrClosed is returned by stores used after Close.
var ErrClosed = errors.New("kvstore: store closed")

// Store is a string key-value store. Implementations must be safe for
// concurrent use. Get reports ok=false for absent keys without an error.
type Store interface {
	Get(key string) (value string, ok bool, err error)
	Set(key, value string) error
	Delete(key string) error
	Close() error
}

// Open builds the store selected by cfg.Driver.
func Open(cfg config.StoreConfig) (Store, error) {
	switch cfg.Driver {
	case "memory":
		return NewMemory(), nil
	case "sqlite", "mysql":
		gormDB, err := db.Connect(cfg)
		if err != nil {
			return nil, fmt.Errorf("kvstore: open %s: %w", cfg.Driver, err)
		}
		return NewSQL(gormDB), nil
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			DB:       cfg.Redis.DB,
			Password: cfg.Redis.Password,
		})
		return NewRedis(client, cfg.Redis.Prefix), nil
	default:
		return nil, fmt.Errorf("kvstore: unknown driver %q", cfg.Driver)
	}
}
