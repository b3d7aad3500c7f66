package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/FranksOps/llmsearch/internal/storage"
	"github.com/google/uuid"
)

func TestPostgresBackend(t *testing.T) {
	// Only run this test if LLM_SEARCH_TEST_PG_DSN is set
	dsn := os.Getenv("LLM_SEARCH_TEST_PG_DSN")
	if dsn == "" {
		t.Skip("Skipping Postgres backend test: LLM_SEARCH_TEST_PG_DSN not set")
	}

	ctx := context.Background()
	b, err := New(ctx, dsn)
	if err != nil {
		t.Fatalf("Failed to create Postgres backend: %v", err)
	}
	defer b.Close()

	now := time.Now().UTC()
	requestID := uuid.NewString()

	rec := &storage.CrawlRecord{
		ID:           uuid.NewString(),
		RequestID:    requestID,
		URL:          "https://example-pg.com",
		StatusCode:   403,
		Bytes:        512,
		Duration:     50 * time.Millisecond,
		Outcome:      storage.OutcomeFetchError,
		ErrorKind:    "blocked",
		Error:        "bot challenge from DataDome",
		DetectedBot:  true,
		DetectionSrc: "DataDome",
		CreatedAt:    now,
	}

	if err := b.Save(ctx, rec); err != nil {
		t.Fatalf("Failed to save record: %v", err)
	}

	results, err := b.Query(ctx, storage.Filter{RequestID: requestID})
	if err != nil {
		t.Fatalf("Failed to query records: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("Expected 1 result, got %d", len(results))
	}

	got := results[0]
	if got.ID != rec.ID {
		t.Errorf("Expected ID %s, got %s", rec.ID, got.ID)
	}
	if got.URL != rec.URL {
		t.Errorf("Expected URL %s, got %s", rec.URL, got.URL)
	}
	if got.Outcome != rec.Outcome || got.ErrorKind != rec.ErrorKind {
		t.Errorf("Expected %s/%s, got %s/%s", rec.Outcome, rec.ErrorKind, got.Outcome, got.ErrorKind)
	}
	if got.Duration != rec.Duration {
		t.Errorf("Expected Duration %v, got %v", rec.Duration, got.Duration)
	}
	if got.DetectionSrc != rec.DetectionSrc || !got.DetectedBot {
		t.Errorf("Expected detection by %s, got %+v", rec.DetectionSrc, got)
	}

	// Postgres keeps microseconds; comparing Unix seconds is enough here.
	if got.CreatedAt.Unix() != rec.CreatedAt.Unix() {
		t.Errorf("Expected CreatedAt %v, got %v", rec.CreatedAt, got.CreatedAt)
	}

	past := now.Add(-1 * time.Hour)
	resultsSince, err := b.Query(ctx, storage.Filter{URL: rec.URL, Since: &past, Limit: 5})
	if err != nil {
		t.Fatalf("Failed to query records with Since: %v", err)
	}
	if len(resultsSince) < 1 {
		t.Fatalf("Expected at least 1 result, got %d", len(resultsSince))
	}
}
