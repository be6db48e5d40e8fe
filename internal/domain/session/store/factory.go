// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package store

import (
	"context"
	"fmt"
	"path/filepath"
)

// Config selects and parameterizes a backend.
type Config struct {
	Backend string // memory | sqlite | badger | mongo
	Path    string // sqlite file or badger directory
	Mongo   MongoConfig
}

// Open creates a Store based on the backend configuration.
func Open(ctx context.Context, cfg Config, opts ...Option) (Store, error) {
	backend := cfg.Backend
	if backend == "" {
		backend = "sqlite"
	}

	switch backend {
	case "memory":
		return NewMemoryStore(opts...), nil
	case "sqlite":
		path := cfg.Path
		if path == "" {
			path = "sessions.sqlite"
		}
		return NewSqliteStore(filepath.Clean(path), opts...)
	case "badger":
		if cfg.Path == "" {
			return nil, fmt.Errorf("badger backend requires a path")
		}
		return OpenBadgerStore(cfg.Path, opts...)
	case "mongo":
		return OpenMongoStore(ctx, cfg.Mongo, opts...)
	default:
		return nil, fmt.Errorf("unknown store backend: %s", backend)
	}
}
