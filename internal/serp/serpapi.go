package serp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/FranksOps/llmsearch/pkg/httpclient"
)

const (
	DefaultBaseURL = "https://serpapi.com/search"
	DefaultEngine  = "google_light"
	DefaultTimeout = 10 * time.Second

	maxResponseBytes = 10 << 20
)

// Config configures the SerpApi client. Optional search parameters are only
// sent when set.
type Config struct {
	APIKey  string
	BaseURL string
	Engine  string
	Timeout time.Duration

	Safe      string // "active" or "off"
	Device    string // "desktop", "tablet" or "mobile"
	Num       int
	NoCache   bool
	HL        string
	GL        string
	NFPR      bool   // exclude auto-corrected results
	Filter    string // "0" or "1"
	ZeroTrace bool
}

// SerpAPI is a Provider backed by serpapi.com.
type SerpAPI struct {
	cfg    Config
	client *httpclient.Client
	logger *slog.Logger
}

var _ Provider = (*SerpAPI)(nil)

// NewSerpAPI creates a client. A missing API key is not an error here; it
// surfaces as an *AuthError on the first Search.
func NewSerpAPI(cfg Config, logger *slog.Logger) (*SerpAPI, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Engine == "" {
		cfg.Engine = DefaultEngine
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}

	client, err := httpclient.New(httpclient.Config{
		Timeout:      cfg.Timeout,
		MaxRedirects: 3,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}

	return &SerpAPI{cfg: cfg, client: client, logger: logger}, nil
}

// params builds the query string for q.
func (s *SerpAPI) params(q Query) url.Values {
	v := url.Values{}
	v.Set("engine", s.cfg.Engine)
	v.Set("q", q.Q)
	v.Set("api_key", s.cfg.APIKey)
	v.Set("start", strconv.Itoa(q.Start))
	if q.Location != "" {
		v.Set("location", q.Location)
	}
	if s.cfg.Safe != "" {
		v.Set("safe", s.cfg.Safe)
	}
	if s.cfg.Device != "" {
		v.Set("device", s.cfg.Device)
	}
	if s.cfg.Num > 0 {
		v.Set("num", strconv.Itoa(s.cfg.Num))
	}
	if s.cfg.NoCache {
		v.Set("no_cache", "true")
	}
	if s.cfg.HL != "" {
		v.Set("hl", s.cfg.HL)
	}
	if s.cfg.GL != "" {
		v.Set("gl", s.cfg.GL)
	}
	if s.cfg.NFPR {
		v.Set("nfpr", "1")
	}
	if s.cfg.Filter != "" {
		v.Set("filter", s.cfg.Filter)
	}
	if s.cfg.ZeroTrace {
		v.Set("zero_trace", "true")
	}
	return v
}

type rawOrganic struct {
	Title   string `json:"title"`
	Link    string `json:"link"`
	Snippet string `json:"snippet"`
}

type rawResponse struct {
	Error          string          `json:"error"`
	AnswerBox      json.RawMessage `json:"answer_box"`
	OrganicResults []rawOrganic    `json:"organic_results"`
	Pagination     struct {
		Next string `json:"next"`
	} `json:"serpapi_pagination"`
}

// Search performs exactly one provider call. It never retries.
func (s *SerpAPI) Search(ctx context.Context, q Query) (*SearchResponse, error) {
	if strings.TrimSpace(s.cfg.APIKey) == "" {
		return nil, &AuthError{Err: ErrMissingAPIKey}
	}

	endpoint, err := url.Parse(s.cfg.BaseURL)
	if err != nil {
		return nil, &ProviderError{Err: fmt.Errorf("invalid base url: %w", err)}
	}
	endpoint.RawQuery = s.params(q).Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return nil, &ProviderError{Err: err}
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := s.client.Do(ctx, req)
	if err != nil {
		// The URL carries the api key; strip it from the error.
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			err = urlErr.Err
		}
		return nil, &ProviderError{Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, &ProviderError{StatusCode: resp.StatusCode, Err: fmt.Errorf("read body: %w", err)}
	}

	s.logger.Debug("serpapi response",
		"status", resp.StatusCode,
		"bytes", len(body),
		"duration", time.Since(start),
		"start", q.Start,
	)

	var raw rawResponse
	decodeErr := json.Unmarshal(body, &raw)

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		msg := raw.Error
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return nil, &AuthError{Err: errors.New(msg)}
	}

	if decodeErr == nil && raw.Error != "" {
		switch {
		case isNoResults(raw.Error):
			return &SearchResponse{OrganicResults: []OrganicResult{}, NextStart: -1}, nil
		case isAuthMessage(raw.Error):
			return nil, &AuthError{Err: errors.New(raw.Error)}
		default:
			return nil, &ProviderError{StatusCode: resp.StatusCode, Err: errors.New(raw.Error)}
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &ProviderError{StatusCode: resp.StatusCode, Err: errors.New(http.StatusText(resp.StatusCode))}
	}
	if decodeErr != nil {
		return nil, &ProviderError{StatusCode: resp.StatusCode, Err: fmt.Errorf("decode response: %w", decodeErr)}
	}

	return normalize(raw, s.logger), nil
}

func normalize(raw rawResponse, logger *slog.Logger) *SearchResponse {
	out := &SearchResponse{
		OrganicResults: make([]OrganicResult, 0, len(raw.OrganicResults)),
		NextStart:      nextStart(raw.Pagination.Next),
	}

	if len(raw.AnswerBox) > 0 && string(raw.AnswerBox) != "null" {
		out.AnswerBox = raw.AnswerBox
	}

	for _, r := range raw.OrganicResults {
		if !validLink(r.Link) {
			logger.Debug("dropping organic result with bad link", "link", r.Link, "title", r.Title)
			continue
		}
		out.OrganicResults = append(out.OrganicResults, OrganicResult{
			Title:   r.Title,
			Link:    r.Link,
			Snippet: r.Snippet,
		})
	}
	return out
}

func validLink(link string) bool {
	if link == "" {
		return false
	}
	u, err := url.Parse(link)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

func nextStart(next string) int {
	if next == "" {
		return -1
	}
	u, err := url.Parse(next)
	if err != nil {
		return -1
	}
	n, err := strconv.Atoi(u.Query().Get("start"))
	if err != nil {
		return -1
	}
	return n
}

func isNoResults(msg string) bool {
	return strings.Contains(strings.ToLower(msg), "hasn't returned any results")
}

func isAuthMessage(msg string) bool {
	m := strings.ToLower(msg)
	return strings.Contains(m, "api key") ||
		strings.Contains(m, "api_key") ||
		strings.Contains(m, "account")
}
