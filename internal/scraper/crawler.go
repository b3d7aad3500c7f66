package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/FranksOps/llmsearch/internal/markdown"
	"github.com/FranksOps/llmsearch/internal/metrics"
	"github.com/FranksOps/llmsearch/internal/serp"
	"github.com/FranksOps/llmsearch/internal/storage"
	"github.com/FranksOps/llmsearch/pkg/httpclient"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultConcurrency = 10
	DefaultBudget      = 8 * time.Second
)

// Converter turns page HTML into Markdown.
type Converter interface {
	Convert(html, pageURL string) (string, error)
}

// CrawlConfig provides parameters for the result crawler.
type CrawlConfig struct {
	// Concurrency bounds the number of in-flight fetches.
	Concurrency int
	// Budget bounds one whole CrawlAll call.
	Budget time.Duration
	// RespectRobots checks robots.txt before each fetch.
	RespectRobots bool
	// RobotsClient fetches robots.txt files. Required when RespectRobots is set.
	RobotsClient *httpclient.Client
	// UserAgent selects the robots.txt group.
	UserAgent string
	// Recorder receives one audit record per attempted link. Optional.
	Recorder storage.Recorder
}

// Crawler enriches organic results with the Markdown text of their pages.
// It holds no per-call state and is safe for concurrent use.
type Crawler struct {
	cfg       CrawlConfig
	fetcher   PageFetcher
	converter Converter
	logger    *slog.Logger
}

type requestIDKey struct{}

// WithRequestID tags ctx so audit records can be grouped per tool call.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestID returns the id stored by WithRequestID, or "".
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// NewCrawler creates a Crawler.
func NewCrawler(cfg CrawlConfig, fetcher PageFetcher, converter Converter, logger *slog.Logger) *Crawler {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	if cfg.Budget <= 0 {
		cfg.Budget = DefaultBudget
	}
	if logger == nil {
		logger = slog.Default()
	}
	if converter == nil {
		converter = markdown.Converter{}
	}
	if cfg.RespectRobots && cfg.RobotsClient == nil {
		cfg.RobotsClient, _ = httpclient.New(httpclient.Config{Timeout: 3 * time.Second, MaxRedirects: DefaultMaxRedirects})
	}

	return &Crawler{
		cfg:       cfg,
		fetcher:   fetcher,
		converter: converter,
		logger:    logger,
	}
}

// CrawlAll fetches and converts every result link and returns a copy of
// results with TextContent filled in where that succeeded. Output order
// and length always match the input. Per-link failures are logged and
// recorded, never returned.
func (c *Crawler) CrawlAll(ctx context.Context, results []serp.OrganicResult) []serp.OrganicResult {
	out := make([]serp.OrganicResult, len(results))
	copy(out, results)
	if len(results) == 0 {
		return out
	}

	// Duplicate links are fetched once; every slot sharing the link gets
	// the same text.
	slots := make(map[string][]int, len(results))
	var links []string
	for i, r := range results {
		if _, seen := slots[r.Link]; !seen {
			links = append(links, r.Link)
		}
		slots[r.Link] = append(slots[r.Link], i)
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Budget)
	defer cancel()

	var robots *RobotsChecker
	if c.cfg.RespectRobots {
		robots = NewRobotsChecker(c.cfg.RobotsClient, c.cfg.UserAgent, c.logger)
	}

	texts := make([]string, len(links))

	// Workers never return an error, so the group context only ends with
	// the budget or the caller.
	var g errgroup.Group
	g.SetLimit(c.cfg.Concurrency)

	for i, link := range links {
		if ctx.Err() != nil {
			c.record(ctx, link, nil, &FetchError{Kind: classify(ctx.Err()), URL: link, Err: ctx.Err()}, 0)
			continue
		}
		g.Go(func() error {
			texts[i] = c.crawlOne(ctx, link, robots)
			return nil
		})
	}
	_ = g.Wait()

	enriched := 0
	for i, link := range links {
		if texts[i] == "" {
			continue
		}
		enriched++
		for _, slot := range slots[link] {
			out[slot].TextContent = texts[i]
		}
	}

	c.logger.Info("crawl finished",
		"request_id", RequestID(ctx),
		"results", len(results),
		"unique_links", len(links),
		"enriched", enriched,
	)
	return out
}

// crawlOne returns the Markdown for link, or "" on any failure.
func (c *Crawler) crawlOne(ctx context.Context, link string, robots *RobotsChecker) (text string) {
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("crawl worker panicked", "url", link, "panic", r)
			text = ""
		}
	}()

	if robots != nil {
		allowed, err := robots.IsAllowed(ctx, link)
		if err != nil {
			c.record(ctx, link, nil, &FetchError{Kind: KindInvalidURL, URL: link, Err: err}, time.Since(start))
			return ""
		}
		if !allowed {
			c.logger.Debug("url blocked by robots.txt", "url", link)
			c.record(ctx, link, nil, errDisallowed, time.Since(start))
			return ""
		}
	}

	page, err := c.fetcher.Fetch(ctx, link)
	if err != nil {
		c.logger.Warn("fetch failed", "url", link, "kind", KindOf(err), "error", err)
		c.record(ctx, link, nil, err, time.Since(start))
		return ""
	}

	md, err := c.converter.Convert(page.HTML, page.URL)
	if err != nil {
		c.logger.Warn("conversion failed", "url", link, "error", err)
		c.record(ctx, link, page, err, time.Since(start))
		return ""
	}

	c.record(ctx, link, page, nil, time.Since(start))
	return md
}

var errDisallowed = errors.New("disallowed by robots.txt")

// record reports one attempt to metrics and the audit recorder.
func (c *Crawler) record(ctx context.Context, link string, page *Page, err error, d time.Duration) {
	rec := &storage.CrawlRecord{
		ID:        uuid.NewString(),
		RequestID: RequestID(ctx),
		URL:       link,
		Duration:  d,
		Outcome:   storage.OutcomeOK,
		CreatedAt: time.Now().UTC(),
	}
	if page != nil {
		rec.StatusCode = page.StatusCode
		rec.ContentType = page.ContentType
		rec.Bytes = page.Bytes
	}

	if err != nil {
		rec.Error = err.Error()
		var fe *FetchError
		switch {
		case errors.Is(err, errDisallowed):
			rec.Outcome = storage.OutcomeDisallowed
		case errors.Is(err, markdown.ErrConversion):
			rec.Outcome = storage.OutcomeConversionError
		case errors.As(err, &fe):
			rec.Outcome = storage.OutcomeFetchError
			if fe.Kind == KindCanceled {
				rec.Outcome = storage.OutcomeCanceled
			}
			rec.ErrorKind = string(fe.Kind)
			rec.StatusCode = fe.StatusCode
			if fe.Kind == KindBlocked {
				rec.DetectedBot = true
				rec.DetectionSrc = fe.Vendor
			}
		default:
			rec.Outcome = storage.OutcomeFetchError
			rec.ErrorKind = string(KindNetwork)
		}
	}

	domain := ""
	if u, perr := url.Parse(link); perr == nil {
		domain = u.Hostname()
	}
	metrics.RecordCrawl(domain, rec)

	if c.cfg.Recorder == nil {
		return
	}
	// The crawl context may already be past its budget; the audit write
	// gets its own short deadline.
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	if err := c.cfg.Recorder.Save(saveCtx, rec); err != nil {
		c.logger.Error("failed to save crawl record", "url", link, "error", fmt.Errorf("context: %w", err))
	}
}
