// Package kv holds the durable string-keyed stores the storage service
// writes JSON text into.
package kv

import (
	"context"
	"errors"
	"fmt"

	"clinic-booking/internal/config"
)

// ErrNotFound is returned by Get when the key has no value.
var ErrNotFound = errors.New("kv: key not found")

// Backend is a durable key-value store. There are no transactions across
// keys. Remove on a missing key is not an error.
type Backend interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
	Clear(ctx context.Context) error
	Keys(ctx context.Context) ([]string, error)
	Close() error
}

// Open picks the backend named by cfg.Backend.
func Open(ctx context.Context, cfg *config.Config) (Backend, error) {
	var (
		b   Backend
		err error
	)
	switch cfg.Backend {
	case "sqlite":
		b, err = OpenSQLite(ctx, cfg.SQLitePath)
	case "postgres":
		b, err = OpenPostgres(ctx, cfg.DatabaseURL)
	case "redis":
		b, err = OpenRedis(ctx, cfg.RedisURL)
	case "memory":
		b = NewMemory()
	default:
		return nil, fmt.Errorf("kv: unknown backend %q", cfg.Backend)
	}
	if err != nil {
		return nil, err
	}
	return b, nil
}
