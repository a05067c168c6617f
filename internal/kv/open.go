package kv

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/livetemplate/composer/internal/logger"
)

// Options selects and configures a backend for Open.
type Options struct {
	Driver string // memory, file, sqlite, postgres, mysql, redis
	Path   string // directory for file, database file for sqlite
	DSN    string // postgres and mysql connection string
	Table  string
	Redis  RedisConfig
	// Logger receives circuit breaker transitions of network stores.
	Logger logger.Logger
}

// Drivers lists the names Open accepts.
var Drivers = []string{"memory", "file", "sqlite", "postgres", "mysql", "redis"}

// Open returns the store described by o. Network stores (redis, postgres,
// mysql) are wrapped in a ResilientStore with the default policies.
func Open(ctx context.Context, o Options) (Store, error) {
	switch o.Driver {
	case "", "memory":
		return NewMemoryStore(), nil
	case "file":
		dir := o.Path
		if dir == "" {
			dir = ".composer"
		}
		return NewFileStore(dir)
	case "sqlite":
		path := o.Path
		if path == "" {
			path = "composer.db"
		}
		if filepath.Ext(path) == "" {
			path = filepath.Join(path, "composer.db")
		}
		return OpenSQL(ctx, SQLite, path, o.Table)
	case "redis":
		s, err := NewRedisStore(ctx, o.Redis)
		if err != nil {
			return nil, err
		}
		return resilient(s, o.Logger), nil
	}
	if d, ok := DialectFor(o.Driver); ok {
		if o.DSN == "" {
			return nil, fmt.Errorf("%s store: dsn is required", d.Name)
		}
		s, err := OpenSQL(ctx, d, o.DSN, o.Table)
		if err != nil {
			return nil, err
		}
		return resilient(s, o.Logger), nil
	}
	return nil, fmt.Errorf("unknown storage driver %q", o.Driver)
}

func resilient(s Store, log logger.Logger) Store {
	return NewResilientStore(s, DefaultRetryConfig(), DefaultBreakerConfig(), log)
}
