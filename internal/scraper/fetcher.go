package scraper

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/FranksOps/llmsearch/internal/bypass"
	"github.com/FranksOps/llmsearch/internal/fingerprint"
	"github.com/FranksOps/llmsearch/internal/metrics"
	"github.com/FranksOps/llmsearch/pkg/httpclient"
	"github.com/FranksOps/llmsearch/pkg/proxy"
	"github.com/FranksOps/llmsearch/pkg/ratelimit"
	"github.com/FranksOps/llmsearch/pkg/useragent"
	"golang.org/x/net/html/charset"
)

const (
	DefaultPageTimeout  = 8 * time.Second
	DefaultMaxRedirects = 5
	DefaultMaxBodyBytes = 5 << 20
)

// Page is a successfully fetched HTML document.
type Page struct {
	URL         string // final URL after redirects
	StatusCode  int
	ContentType string
	HTML        string // decoded to UTF-8
	Bytes       int64  // raw bytes read off the wire
	Truncated   bool
	Duration    time.Duration
}

// PageFetcher retrieves the HTML of one URL. Failures are *FetchError.
type PageFetcher interface {
	Fetch(ctx context.Context, targetURL string) (*Page, error)
}

type contextKey string

const proxyKey contextKey = "proxy_url"

// FetchConfig configures the HTTP page fetcher. Zero values get defaults.
type FetchConfig struct {
	Timeout time.Duration
	// MaxRedirects caps redirect chains. Negative disables following.
	MaxRedirects int
	MaxBodyBytes int64
	ProxyPool    *proxy.Pool
	UAPool       *useragent.Pool
	Fingerprint  fingerprint.Profile
	Limiter      *ratelimit.Limiter
	Detectors    []bypass.Detector
	// InsecureSkipVerify disables certificate checks. Tests only.
	InsecureSkipVerify bool
}

// Fetcher performs single-page GETs for the crawler. It is safe for
// concurrent use; one instance shares its connection pool across calls.
type Fetcher struct {
	config FetchConfig
	client *httpclient.Client
	logger *slog.Logger
}

var _ PageFetcher = (*Fetcher)(nil)

// NewFetcher initializes a Fetcher with the given configuration.
func NewFetcher(cfg FetchConfig, logger *slog.Logger) (*Fetcher, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultPageTimeout
	}
	if cfg.MaxRedirects == 0 {
		cfg.MaxRedirects = DefaultMaxRedirects
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if cfg.UAPool == nil {
		cfg.UAPool = useragent.NewPool(nil)
	}
	if cfg.Detectors == nil {
		cfg.Detectors = bypass.DefaultDetectors()
	}
	if logger == nil {
		logger = slog.Default()
	}

	// One transport per fetcher keeps connection pooling; the proxy is
	// chosen per request through the request context.
	proxyFunc := func(req *http.Request) (*url.URL, error) {
		if u, ok := req.Context().Value(proxyKey).(*url.URL); ok && u != nil {
			return u, nil
		}
		return http.ProxyFromEnvironment(req)
	}

	transport, err := fingerprint.NewTransport(fingerprint.Options{
		Profile:            cfg.Fingerprint,
		Proxy:              proxyFunc,
		InsecureSkipVerify: cfg.InsecureSkipVerify,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to setup transport: %w", err)
	}

	client, err := httpclient.New(httpclient.Config{
		Timeout:      cfg.Timeout,
		MaxRedirects: cfg.MaxRedirects,
		Transport:    transport,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}

	return &Fetcher{config: cfg, client: client, logger: logger}, nil
}

// Fetch GETs targetURL and returns its HTML. Non-2xx responses, non-HTML
// content and bot challenge pages are failures.
func (f *Fetcher) Fetch(ctx context.Context, targetURL string) (*Page, error) {
	u, err := url.Parse(targetURL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		if err == nil {
			err = errors.New("absolute http(s) URL required")
		}
		return nil, &FetchError{Kind: KindInvalidURL, URL: targetURL, Err: err}
	}

	if err := f.config.Limiter.Wait(ctx); err != nil {
		return nil, &FetchError{Kind: classify(err), URL: targetURL, Err: fmt.Errorf("rate limiter: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, targetURL, nil)
	if err != nil {
		return nil, &FetchError{Kind: KindInvalidURL, URL: targetURL, Err: err}
	}

	var activeProxy *url.URL
	if f.config.ProxyPool != nil {
		if activeProxy = f.config.ProxyPool.Next(); activeProxy != nil {
			req = req.WithContext(context.WithValue(req.Context(), proxyKey, activeProxy))
		}
	}

	req.Header.Set("User-Agent", f.config.UAPool.Next())
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")

	start := time.Now()
	resp, err := f.client.Do(req.Context(), req)
	if err != nil {
		if activeProxy != nil && ctx.Err() == nil {
			_ = f.config.ProxyPool.Report(activeProxy, err)
			metrics.ProxyFailures.WithLabelValues(activeProxy.String()).Inc()
		}
		return nil, &FetchError{Kind: classify(err), URL: targetURL, Err: err}
	}
	defer resp.Body.Close()

	if activeProxy != nil {
		_ = f.config.ProxyPool.Report(activeProxy, nil)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, f.config.MaxBodyBytes+1))
	if err != nil {
		return nil, &FetchError{Kind: classify(err), URL: targetURL, StatusCode: resp.StatusCode, Err: fmt.Errorf("read body: %w", err)}
	}
	truncated := int64(len(raw)) > f.config.MaxBodyBytes
	if truncated {
		raw = raw[:f.config.MaxBodyBytes]
		f.logger.Debug("page body truncated", "url", targetURL, "limit", f.config.MaxBodyBytes)
	}

	if vendor := bypass.Analyze(&bypass.Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       raw,
	}, f.config.Detectors); vendor != "" {
		return nil, &FetchError{
			Kind:       KindBlocked,
			URL:        targetURL,
			StatusCode: resp.StatusCode,
			Vendor:     vendor,
			Err:        fmt.Errorf("bot challenge from %s", vendor),
		}
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = http.DetectContentType(raw)
	}
	if err := checkDocument(targetURL, resp.StatusCode, contentType); err != nil {
		return nil, err
	}

	html, err := decode(raw, contentType)
	if err != nil {
		f.logger.Debug("charset decode failed, using raw bytes", "url", targetURL, "error", err)
		html = string(raw)
	}

	return &Page{
		URL:         resp.Request.URL.String(),
		StatusCode:  resp.StatusCode,
		ContentType: contentType,
		HTML:        html,
		Bytes:       int64(len(raw)),
		Truncated:   truncated,
		Duration:    time.Since(start),
	}, nil
}

// checkDocument rejects responses that are not a successful HTML page.
func checkDocument(targetURL string, status int, contentType string) error {
	if status < 200 || status > 299 {
		return &FetchError{
			Kind:       KindBadStatus,
			URL:        targetURL,
			StatusCode: status,
			Err:        fmt.Errorf("status %d", status),
		}
	}
	if !isHTML(contentType) {
		return &FetchError{
			Kind:       KindNotHTML,
			URL:        targetURL,
			StatusCode: status,
			Err:        fmt.Errorf("content type %q", contentType),
		}
	}
	return nil
}

func isHTML(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mediaType == "text/html" || mediaType == "application/xhtml+xml"
}

// decode converts raw to UTF-8 using the declared or sniffed charset.
func decode(raw []byte, contentType string) (string, error) {
	r, err := charset.NewReader(bytes.NewReader(raw), contentType)
	if err != nil {
		return "", err
	}
	out, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// classify maps a transport error onto a fetch Kind.
func classify(err error) Kind {
	switch {
	case errors.Is(err, httpclient.ErrTooManyRedirects):
		return KindTooManyRedirects
	case errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	case errors.Is(err, context.Canceled):
		return KindCanceled
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTimeout
	}
	return KindNetwork
}
