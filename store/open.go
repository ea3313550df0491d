package store

import (
	"context"
	"fmt"
)

type Options struct {
	Backend    string // "postgres" or "sqlite"
	PersistDir string
	DSN        string
	Dimensions int
}

// Open connects the configured backend. Postgres tables are created on
// open; the SQLite file is created lazily by the first collection.
func Open(ctx context.Context, opts Options) (VectorStorer, error) {
	switch opts.Backend {
	case "postgres":
		pg, err := NewPostgresStore(ctx, opts.DSN, opts.Dimensions)
		if err != nil {
			return nil, err
		}
		if err := pg.Init(ctx); err != nil {
			pg.Close()
			return nil, fmt.Errorf("error to create tables: %w", err)
		}
		return pg, nil
	case "sqlite", "":
		return NewSQLiteStore(opts.PersistDir), nil
	default:
		return nil, fmt.Errorf("unknown vector backend %q", opts.Backend)
	}
}
