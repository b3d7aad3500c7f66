package proxy

import (
	"bufio"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"
)

// ErrUnknownProxy is returned when reporting on a proxy the pool never handed out.
var ErrUnknownProxy = errors.New("proxy not found in pool")

// Config defines settings for the Proxy Pool.
type Config struct {
	// MaxFailures is the number of consecutive failures that puts a proxy
	// into cooldown.
	MaxFailures int
	// Cooldown is how long a proxy sits out after hitting MaxFailures.
	Cooldown time.Duration
}

type endpoint struct {
	url           *url.URL
	failures      int
	disabledUntil time.Time
}

// Pool rotates crawl requests across a list of proxies, benching ones that
// keep failing. It is safe for concurrent use.
type Pool struct {
	mu          sync.Mutex
	endpoints   []*endpoint
	byURL       map[string]*endpoint
	next        int
	maxFailures int
	cooldown    time.Duration
	now         func() time.Time
}

// NewPool creates an empty proxy pool. Zero config values get defaults.
func NewPool(cfg Config) *Pool {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 3
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 5 * time.Minute
	}
	return &Pool{
		byURL:       make(map[string]*endpoint),
		maxFailures: cfg.MaxFailures,
		cooldown:    cfg.Cooldown,
		now:         time.Now,
	}
}

// LoadFile reads proxies from a file, one URL per line. Blank lines and
// lines starting with '#' are ignored.
func (p *Pool) LoadFile(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("context: %w", err)
	}
	defer file.Close()

	var urls []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		urls = append(urls, line)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("context: %w", err)
	}

	return p.Add(urls...)
}

// Add parses raw proxy URLs and appends them to the rotation. Entries
// without a scheme are treated as http. Duplicates are ignored.
func (p *Pool) Add(rawURLs ...string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, raw := range rawURLs {
		if !strings.Contains(raw, "://") {
			raw = "http://" + raw
		}
		u, err := url.Parse(raw)
		if err != nil {
			return fmt.Errorf("context: %w", err)
		}
		key := u.String()
		if _, dup := p.byURL[key]; dup {
			continue
		}
		ep := &endpoint{url: u}
		p.endpoints = append(p.endpoints, ep)
		p.byURL[key] = ep
	}
	return nil
}

// Len reports the number of configured proxies, healthy or not.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.endpoints)
}

// Next returns the next proxy not in cooldown, or nil when the pool is
// empty or every proxy is benched.
func (p *Pool) Next() *url.URL {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	for range p.endpoints {
		ep := p.endpoints[p.next]
		p.next = (p.next + 1) % len(p.endpoints)

		if ep.disabledUntil.IsZero() {
			return ep.url
		}
		if now.After(ep.disabledUntil) {
			ep.disabledUntil = time.Time{}
			ep.failures = 0
			return ep.url
		}
	}
	return nil
}

// Report records the outcome of a request made through proxyURL. A nil
// failure resets the consecutive failure count.
func (p *Pool) Report(proxyURL *url.URL, failure error) error {
	if proxyURL == nil {
		return errors.New("context: proxyURL cannot be nil")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	ep, ok := p.byURL[proxyURL.String()]
	if !ok {
		return fmt.Errorf("context: %w", ErrUnknownProxy)
	}

	if failure == nil {
		ep.failures = 0
		return nil
	}

	ep.failures++
	if ep.failures >= p.maxFailures {
		ep.disabledUntil = p.now().Add(p.cooldown)
	}
	return nil
}
