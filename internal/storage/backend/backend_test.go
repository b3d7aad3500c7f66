package backend

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/FranksOps/llmsearch/internal/storage"
)

func TestOpen_None(t *testing.T) {
	for _, kind := range []string{"", None} {
		b, err := Open(context.Background(), kind, "")
		if err != nil || b != nil {
			t.Errorf("kind %q: expected nil backend, got %v, %v", kind, b, err)
		}
	}
}

func TestOpen_Unknown(t *testing.T) {
	if _, err := Open(context.Background(), "mongo", "x"); err == nil {
		t.Fatal("expected error for unknown backend")
	}
}

func TestOpen_FileBackends(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		kind string
		dsn  string
	}{
		{SQLite, filepath.Join(dir, "audit.db")},
		{JSONL, filepath.Join(dir, "audit.jsonl")},
	}

	for _, tt := range tests {
		t.Run(tt.kind, func(t *testing.T) {
			ctx := context.Background()
			b, err := Open(ctx, tt.kind, tt.dsn)
			if err != nil {
				t.Fatalf("open: %v", err)
			}
			defer b.Close()

			rec := &storage.CrawlRecord{
				ID:        "rec-1",
				RequestID: "req-1",
				URL:       "https://example.com/",
				Outcome:   storage.OutcomeOK,
				CreatedAt: time.Now().UTC(),
			}
			if err := b.Save(ctx, rec); err != nil {
				t.Fatalf("save: %v", err)
			}

			got, err := b.Query(ctx, storage.Filter{RequestID: "req-1"})
			if err != nil {
				t.Fatalf("query: %v", err)
			}
			if len(got) != 1 || got[0].URL != rec.URL {
				t.Errorf("unexpected records: %+v", got)
			}
		})
	}
}
