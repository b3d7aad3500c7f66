package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/FranksOps/llmsearch/internal/storage"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ensure postgresBackend implements storage.Backend
var _ storage.Backend = (*postgresBackend)(nil)

type postgresBackend struct {
	pool *pgxpool.Pool
}

const schema = `
CREATE TABLE IF NOT EXISTS crawl_records (
	id TEXT PRIMARY KEY,
	request_id TEXT NOT NULL,
	url TEXT NOT NULL,
	status_code INTEGER NOT NULL,
	content_type TEXT NOT NULL DEFAULT '',
	bytes BIGINT NOT NULL,
	duration_ms BIGINT NOT NULL,
	outcome TEXT NOT NULL,
	error_kind TEXT NOT NULL DEFAULT '',
	error TEXT NOT NULL DEFAULT '',
	detected_bot BOOLEAN NOT NULL,
	detection_src TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS crawl_records_url ON crawl_records (url);
CREATE INDEX IF NOT EXISTS crawl_records_created_at ON crawl_records (created_at);
`

// New creates a new Postgres-backed storage.Backend.
func New(ctx context.Context, dsn string) (storage.Backend, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("context: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("context: %w", err)
	}

	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("context: %w", err)
	}

	return &postgresBackend{pool: pool}, nil
}

func (b *postgresBackend) Save(ctx context.Context, rec *storage.CrawlRecord) error {
	query := `
	INSERT INTO crawl_records (
		id, request_id, url, status_code, content_type, bytes, duration_ms,
		outcome, error_kind, error, detected_bot, detection_src, created_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`

	_, err := b.pool.Exec(ctx, query,
		rec.ID,
		rec.RequestID,
		rec.URL,
		rec.StatusCode,
		rec.ContentType,
		rec.Bytes,
		rec.Duration.Milliseconds(),
		string(rec.Outcome),
		rec.ErrorKind,
		rec.Error,
		rec.DetectedBot,
		rec.DetectionSrc,
		rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("context: %w", err)
	}

	return nil
}

func (b *postgresBackend) Query(ctx context.Context, filter storage.Filter) ([]*storage.CrawlRecord, error) {
	query := `SELECT id, request_id, url, status_code, content_type, bytes, duration_ms,
		outcome, error_kind, error, detected_bot, detection_src, created_at
		FROM crawl_records WHERE 1=1`
	args := []any{}

	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.URL != "" {
		query += ` AND url = ` + arg(filter.URL)
	}
	if filter.RequestID != "" {
		query += ` AND request_id = ` + arg(filter.RequestID)
	}
	if filter.Outcome != "" {
		query += ` AND outcome = ` + arg(string(filter.Outcome))
	}
	if filter.Since != nil {
		query += ` AND created_at >= ` + arg(*filter.Since)
	}

	query += ` ORDER BY created_at DESC`

	if filter.Limit > 0 {
		query += ` LIMIT ` + arg(filter.Limit)
	}
	if filter.Offset > 0 {
		query += ` OFFSET ` + arg(filter.Offset)
	}

	rows, err := b.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("context: %w", err)
	}
	defer rows.Close()

	var records []*storage.CrawlRecord
	for rows.Next() {
		var r storage.CrawlRecord
		var outcome string
		var durationMs int64

		err := rows.Scan(
			&r.ID, &r.RequestID, &r.URL, &r.StatusCode, &r.ContentType, &r.Bytes, &durationMs,
			&outcome, &r.ErrorKind, &r.Error, &r.DetectedBot, &r.DetectionSrc, &r.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("context: %w", err)
		}

		r.Outcome = storage.Outcome(outcome)
		r.Duration = time.Duration(durationMs) * time.Millisecond
		records = append(records, &r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("context: %w", err)
	}

	return records, nil
}

func (b *postgresBackend) Close() error {
	b.pool.Close()
	return nil
}
