package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/FranksOps/llmsearch/internal/bypass"
	"github.com/FranksOps/llmsearch/internal/config"
	"github.com/FranksOps/llmsearch/internal/fingerprint"
	"github.com/FranksOps/llmsearch/internal/markdown"
	"github.com/FranksOps/llmsearch/internal/pipeline"
	"github.com/FranksOps/llmsearch/internal/scraper"
	"github.com/FranksOps/llmsearch/internal/serp"
	"github.com/FranksOps/llmsearch/internal/storage"
	"github.com/FranksOps/llmsearch/internal/storage/backend"
	"github.com/FranksOps/llmsearch/pkg/httpclient"
	"github.com/FranksOps/llmsearch/pkg/proxy"
	"github.com/FranksOps/llmsearch/pkg/ratelimit"
	"github.com/FranksOps/llmsearch/pkg/useragent"
)

// app holds the wired components shared by serve and search.
type app struct {
	pipeline *pipeline.Pipeline
	closers  []func() error
}

func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *app, err error) {
	a := &app{}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	provider, err := serp.NewSerpAPI(serp.Config{
		APIKey:    cfg.SerpAPI.APIKey,
		BaseURL:   cfg.SerpAPI.BaseURL,
		Engine:    cfg.SerpAPI.Engine,
		Timeout:   cfg.SerpAPI.Timeout,
		Safe:      cfg.SerpAPI.Safe,
		Device:    cfg.SerpAPI.Device,
		Num:       cfg.SerpAPI.Num,
		NoCache:   cfg.SerpAPI.NoCache,
		HL:        cfg.SerpAPI.HL,
		GL:        cfg.SerpAPI.GL,
		NFPR:      cfg.SerpAPI.NFPR,
		Filter:    cfg.SerpAPI.Filter,
		ZeroTrace: cfg.SerpAPI.ZeroTrace,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("search provider: %w", err)
	}
	if cfg.SerpAPI.APIKey == "" {
		logger.Warn("no SerpApi key configured; every search will fail with an authentication error")
	}

	fetcher, err := a.newFetcher(cfg.Crawl, logger)
	if err != nil {
		return nil, err
	}

	recorder, err := a.openRecorder(ctx, cfg.Audit)
	if err != nil {
		return nil, err
	}

	crawlCfg := scraper.CrawlConfig{
		Concurrency:   cfg.Crawl.Concurrency,
		Budget:        cfg.Crawl.Budget,
		RespectRobots: cfg.Crawl.RespectRobots,
		Recorder:      recorder,
	}
	if cfg.Crawl.RespectRobots {
		robotsClient, err := httpclient.New(httpclient.Config{
			Timeout:      cfg.Crawl.PageTimeout,
			MaxRedirects: cfg.Crawl.MaxRedirects,
		})
		if err != nil {
			return nil, fmt.Errorf("robots client: %w", err)
		}
		crawlCfg.RobotsClient = robotsClient
	}

	converter := markdown.Converter{Readability: cfg.Crawl.Readability}
	crawler := scraper.NewCrawler(crawlCfg, fetcher, converter, logger)

	a.pipeline = pipeline.New(provider, crawler, logger)
	return a, nil
}

func (a *app) newFetcher(cfg config.CrawlConfig, logger *slog.Logger) (scraper.PageFetcher, error) {
	uaPool := useragent.NewPool(cfg.UserAgents)
	limiter := ratelimit.NewLimiter(cfg.RequestsPerSecond, cfg.Jitter)

	if cfg.Renderer == "chrome" {
		renderer := scraper.NewChromeRenderer(scraper.ChromeConfig{
			ExecPath:  cfg.ChromePath,
			RemoteURL: cfg.ChromeURL,
			Timeout:   cfg.PageTimeout,
			UAPool:    uaPool,
			Limiter:   limiter,
		}, logger)
		a.closers = append(a.closers, renderer.Close)
		return renderer, nil
	}

	var proxies *proxy.Pool
	if cfg.ProxiesFile != "" {
		proxies = proxy.NewPool(proxy.Config{})
		if err := proxies.LoadFile(cfg.ProxiesFile); err != nil {
			return nil, fmt.Errorf("load proxies: %w", err)
		}
		logger.Info("loaded proxies", "count", proxies.Len())
	}

	profile, err := fingerprint.ParseProfile(cfg.Fingerprint)
	if err != nil {
		return nil, err
	}

	fetcher, err := scraper.NewFetcher(scraper.FetchConfig{
		Timeout:      cfg.PageTimeout,
		MaxRedirects: cfg.MaxRedirects,
		MaxBodyBytes: cfg.MaxBodyBytes,
		ProxyPool:    proxies,
		UAPool:       uaPool,
		Fingerprint:  profile,
		Limiter:      limiter,
		Detectors:    bypass.DefaultDetectors(),
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("page fetcher: %w", err)
	}
	return fetcher, nil
}

func (a *app) openRecorder(ctx context.Context, cfg config.AuditConfig) (storage.Recorder, error) {
	b, err := backend.Open(ctx, cfg.Backend, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("audit backend: %w", err)
	}
	if b == nil {
		return nil, nil
	}
	a.closers = append(a.closers, b.Close)
	return b, nil
}

func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
