package storage

import (
	"context"
	"time"
)

// Outcome classifies how a single crawl attempt ended.
type Outcome string

const (
	OutcomeOK              Outcome = "ok"
	OutcomeFetchError      Outcome = "fetch_error"
	OutcomeConversionError Outcome = "conversion_error"
	OutcomeDisallowed      Outcome = "robots_disallowed"
	OutcomeCanceled        Outcome = "canceled"
)

// CrawlRecord is the audit entry for one attempted result link. Page bodies
// are never stored.
type CrawlRecord struct {
	ID           string        `json:"id"`
	RequestID    string        `json:"request_id"`
	URL          string        `json:"url"`
	StatusCode   int           `json:"status_code"`
	ContentType  string        `json:"content_type,omitempty"`
	Bytes        int64         `json:"bytes"`
	Duration     time.Duration `json:"duration"`
	Outcome      Outcome       `json:"outcome"`
	ErrorKind    string        `json:"error_kind,omitempty"` // FetchError kind, empty on success
	Error        string        `json:"error,omitempty"`
	DetectedBot  bool          `json:"detected_bot"`
	DetectionSrc string        `json:"detection_src,omitempty"` // e.g. "Cloudflare", "Akamai"
	CreatedAt    time.Time     `json:"created_at"`
}

// Filter narrows a history query. Zero values match everything.
type Filter struct {
	URL       string
	RequestID string
	Outcome   Outcome
	Since     *time.Time
	Limit     int
	Offset    int
}

// Matches reports whether rec passes every set field of f. Limit and
// Offset are applied by the caller.
func (f Filter) Matches(rec *CrawlRecord) bool {
	if rec == nil {
		return false
	}
	if f.URL != "" && rec.URL != f.URL {
		return false
	}
	if f.RequestID != "" && rec.RequestID != f.RequestID {
		return false
	}
	if f.Outcome != "" && rec.Outcome != f.Outcome {
		return false
	}
	if f.Since != nil && rec.CreatedAt.Before(*f.Since) {
		return false
	}
	return true
}

// Recorder persists crawl attempts. Implementations must be safe for
// concurrent use; the crawler calls Save from its workers.
type Recorder interface {
	Save(ctx context.Context, rec *CrawlRecord) error
}

// Backend is a Recorder that can also be read back and closed.
type Backend interface {
	Recorder
	Query(ctx context.Context, filter Filter) ([]*CrawlRecord, error)
	Close() error
}
