package cache

import (
	"context"
	"fmt"
)

// Backend names accepted by [Open].
const (
	BackendNone  = "none"
	BackendFile  = "file"
	BackendRedis = "redis"
	BackendMongo = "mongo"
)

// Options selects and configures a backend for [Open].
type Options struct {
	Backend       string
	Dir           string // file; empty means DefaultDir
	RedisAddr     string
	MongoURI      string
	MongoDatabase string
}

// Clearer is implemented by backends that can drop all their entries.
type Clearer interface {
	Clear(ctx context.Context) (int, error)
}

// Open returns the backend named by opts.Backend. An empty backend means none.
func Open(ctx context.Context, opts Options) (Cache, error) {
	switch opts.Backend {
	case "", BackendNone:
		return NewNullCache(), nil
	case BackendFile:
		dir := opts.Dir
		if dir == "" {
			d, err := DefaultDir()
			if err != nil {
				return nil, fmt.Errorf("cache dir: %w", err)
			}
			dir = d
		}
		return NewFileCache(dir)
	case BackendRedis:
		return NewRedisCache(ctx, RedisOptions{Addr: opts.RedisAddr, Prefix: "bactrack:"})
	case BackendMongo:
		return NewMongoCache(ctx, MongoOptions{URI: opts.MongoURI, Database: opts.MongoDatabase})
	}
	return nil, fmt.Errorf("unknown cache backend %q", opts.Backend)
}
