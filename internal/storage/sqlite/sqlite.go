package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/FranksOps/llmsearch/internal/storage"
	_ "modernc.org/sqlite"
)

// ensure sqliteBackend implements storage.Backend
var _ storage.Backend = (*sqliteBackend)(nil)

type sqliteBackend struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS crawl_records (
	id TEXT PRIMARY KEY,
	request_id TEXT NOT NULL,
	url TEXT NOT NULL,
	status_code INTEGER NOT NULL,
	content_type TEXT,
	bytes INTEGER NOT NULL,
	duration_ms INTEGER NOT NULL,
	outcome TEXT NOT NULL,
	error_kind TEXT,
	error TEXT,
	detected_bot BOOLEAN NOT NULL,
	detection_src TEXT,
	created_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS crawl_records_url ON crawl_records (url);
CREATE INDEX IF NOT EXISTS crawl_records_created_at ON crawl_records (created_at);
`

// New creates a new SQLite-backed storage.Backend.
func New(dsn string) (storage.Backend, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("context: %w", err)
	}
	// Crawler workers save concurrently; a single connection avoids
	// SQLITE_BUSY on file databases.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("context: %w", err)
	}

	return &sqliteBackend{db: db}, nil
}

func (b *sqliteBackend) Save(ctx context.Context, rec *storage.CrawlRecord) error {
	query := `
	INSERT INTO crawl_records (
		id, request_id, url, status_code, content_type, bytes, duration_ms,
		outcome, error_kind, error, detected_bot, detection_src, created_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := b.db.ExecContext(ctx, query,
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
		rec.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("context: %w", err)
	}

	return nil
}

func (b *sqliteBackend) Query(ctx context.Context, filter storage.Filter) ([]*storage.CrawlRecord, error) {
	query := `SELECT id, request_id, url, status_code, content_type, bytes, duration_ms,
		outcome, error_kind, error, detected_bot, detection_src, created_at
		FROM crawl_records WHERE 1=1`
	args := []any{}

	if filter.URL != "" {
		query += ` AND url = ?`
		args = append(args, filter.URL)
	}
	if filter.RequestID != "" {
		query += ` AND request_id = ?`
		args = append(args, filter.RequestID)
	}
	if filter.Outcome != "" {
		query += ` AND outcome = ?`
		args = append(args, string(filter.Outcome))
	}
	if filter.Since != nil {
		query += ` AND created_at >= ?`
		args = append(args, filter.Since.UTC())
	}

	query += ` ORDER BY created_at DESC`

	// SQLite requires LIMIT when OFFSET is present; -1 means no limit.
	if filter.Limit > 0 || filter.Offset > 0 {
		limit := filter.Limit
		if limit <= 0 {
			limit = -1
		}
		query += ` LIMIT ? OFFSET ?`
		args = append(args, limit, filter.Offset)
	}

	rows, err := b.db.QueryContext(ctx, query, args...)
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

func (b *sqliteBackend) Close() error {
	return b.db.Close()
}
