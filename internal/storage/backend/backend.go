// Package backend opens the audit storage backend named in configuration.
package backend

import (
	"context"
	"fmt"

	"github.com/FranksOps/llmsearch/internal/storage"
	"github.com/FranksOps/llmsearch/internal/storage/jsonbackend"
	"github.com/FranksOps/llmsearch/internal/storage/postgres"
	"github.com/FranksOps/llmsearch/internal/storage/sqlite"
)

const (
	None     = "none"
	SQLite   = "sqlite"
	Postgres = "postgres"
	JSONL    = "jsonl"
)

// Open returns the backend for kind. Kind "none" (or empty) returns nil and
// no error: callers treat a nil backend as "do not record".
func Open(ctx context.Context, kind, dsn string) (storage.Backend, error) {
	switch kind {
	case "", None:
		return nil, nil
	case SQLite:
		return sqlite.New(dsn)
	case Postgres:
		return postgres.New(ctx, dsn)
	case JSONL:
		return jsonbackend.New(dsn)
	default:
		return nil, fmt.Errorf("unknown audit backend %q", kind)
	}
}
