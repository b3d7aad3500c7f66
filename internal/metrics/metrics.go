package metrics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/FranksOps/llmsearch/internal/storage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	SearchRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llm_search_requests_total",
			Help: "Total number of llm_search tool invocations by outcome",
		},
		[]string{"outcome", "crawl"},
	)

	SearchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "llm_search_duration_seconds",
			Help:    "End-to-end duration of llm_search invocations in seconds",
			Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 20},
		},
		[]string{"crawl"},
	)

	CrawlAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llm_search_crawl_attempts_total",
			Help: "Total number of result pages the crawler attempted",
		},
		[]string{"domain", "outcome", "kind", "detection_src"},
	)

	FetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "llm_search_fetch_duration_seconds",
			Help:    "Duration of result page fetches in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 4, 8},
		},
		[]string{"domain"},
	)

	FetchBytesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llm_search_fetch_bytes_total",
			Help: "Total HTML bytes downloaded across all crawled pages",
		},
		[]string{"domain"},
	)

	ProxyFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llm_search_proxy_failures_total",
			Help: "Total number of proxy failures during crawls",
		},
		[]string{"proxy_url"},
	)
)

// RecordSearch counts one tool invocation.
func RecordSearch(outcome string, crawl bool, d time.Duration) {
	c := strconv.FormatBool(crawl)
	SearchRequestsTotal.WithLabelValues(outcome, c).Inc()
	SearchDuration.WithLabelValues(c).Observe(d.Seconds())
}

// RecordCrawl updates the crawl metrics from an audit record.
func RecordCrawl(domain string, rec *storage.CrawlRecord) {
	if rec == nil {
		return
	}

	CrawlAttemptsTotal.WithLabelValues(domain, string(rec.Outcome), rec.ErrorKind, rec.DetectionSrc).Inc()
	FetchDuration.WithLabelValues(domain).Observe(rec.Duration.Seconds())
	FetchBytesTotal.WithLabelValues(domain).Add(float64(rec.Bytes))
}

// Server encapsulates an HTTP server for Prometheus metrics.
type Server struct {
	srv *http.Server
	ln  net.Listener
}

// Start listens on port and serves /metrics in the background. Port 0 picks
// a free port; see Addr.
func Start(port int, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return nil, fmt.Errorf("context: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "error", err)
		}
	}()

	logger.Info("metrics server listening", "addr", ln.Addr().String())
	return &Server{srv: srv, ln: ln}, nil
}

// Addr returns the address the server is bound to.
func (s *Server) Addr() string {
	if s == nil || s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) error {
	if s == nil || s.srv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.srv.Shutdown(ctx)
}
