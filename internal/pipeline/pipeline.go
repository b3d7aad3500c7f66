package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/FranksOps/llmsearch/internal/metrics"
	"github.com/FranksOps/llmsearch/internal/scraper"
	"github.com/FranksOps/llmsearch/internal/serp"
	"github.com/google/uuid"
)

// ErrValidation is matched by every *ValidationError.
var ErrValidation = errors.New("invalid search request")

// ValidationError reports a bad tool argument. Nothing is sent upstream.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// SearchRequest is one llm_search invocation.
type SearchRequest struct {
	Query    string
	Location string
	Start    int
	Crawl    bool
}

// Validate checks the request before any network work.
func (r SearchRequest) Validate() error {
	if strings.TrimSpace(r.Query) == "" {
		return &ValidationError{Field: "query", Reason: "must not be empty"}
	}
	if r.Start < 0 {
		return &ValidationError{Field: "start", Reason: "must be zero or greater"}
	}
	return nil
}

// ResultCrawler enriches organic results with page text.
type ResultCrawler interface {
	CrawlAll(ctx context.Context, results []serp.OrganicResult) []serp.OrganicResult
}

// Pipeline runs search, then optionally crawl, for one request at a time.
// It keeps no state between calls.
type Pipeline struct {
	provider serp.Provider
	crawler  ResultCrawler
	logger   *slog.Logger
}

// New creates a Pipeline. crawler may be nil if crawling is never requested.
func New(provider serp.Provider, crawler ResultCrawler, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{provider: provider, crawler: crawler, logger: logger}
}

// Run executes one search. Validation, auth and provider failures abort the
// call; crawl failures only leave text_content unset.
func (p *Pipeline) Run(ctx context.Context, req SearchRequest) (resp *serp.SearchResponse, err error) {
	start := time.Now()
	defer func() {
		metrics.RecordSearch(outcome(err), req.Crawl, time.Since(start))
	}()

	if err := req.Validate(); err != nil {
		return nil, err
	}
	if p.provider == nil {
		return nil, errors.New("context: search provider is nil")
	}

	requestID := scraper.RequestID(ctx)
	if requestID == "" {
		requestID = uuid.NewString()
		ctx = scraper.WithRequestID(ctx, requestID)
	}
	logger := p.logger.With("request_id", requestID)

	resp, err = p.provider.Search(ctx, serp.Query{
		Q:        req.Query,
		Location: req.Location,
		Start:    req.Start,
	})
	if err != nil {
		logger.Warn("search failed", "error", err)
		return nil, err
	}
	logger.Info("search completed",
		"results", len(resp.OrganicResults),
		"answer_box", resp.AnswerBox != nil,
		"start", req.Start,
	)

	if !req.Crawl || len(resp.OrganicResults) == 0 {
		return resp, nil
	}
	if p.crawler == nil {
		logger.Warn("crawl requested but no crawler configured")
		return resp, nil
	}

	resp.OrganicResults = p.crawler.CrawlAll(ctx, resp.OrganicResults)
	return resp, nil
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrValidation):
		return "validation_error"
	case errors.Is(err, serp.ErrAuth):
		return "auth_error"
	case errors.Is(err, serp.ErrProvider):
		return "provider_error"
	default:
		return "error"
	}
}
