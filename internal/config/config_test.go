package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// missingEnv points Load at a dotenv file that does not exist.
func missingEnv(t *testing.T) string {
	return filepath.Join(t.TempDir(), "absent.env")
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("SERP_API_KEY", "")
	cfg, err := Load(Options{EnvFile: missingEnv(t)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Transport != "stdio" {
		t.Errorf("expected stdio transport, got %s", cfg.Server.Transport)
	}
	if cfg.Crawl.Concurrency != 10 {
		t.Errorf("expected concurrency 10, got %d", cfg.Crawl.Concurrency)
	}
	if cfg.Crawl.Budget != 8*time.Second || cfg.Crawl.PageTimeout != 8*time.Second {
		t.Errorf("unexpected crawl timings: %v %v", cfg.Crawl.Budget, cfg.Crawl.PageTimeout)
	}
	if cfg.Crawl.MaxRedirects != 5 {
		t.Errorf("expected 5 redirects, got %d", cfg.Crawl.MaxRedirects)
	}
	if cfg.SerpAPI.Engine != "google_light" || cfg.SerpAPI.Timeout != 10*time.Second {
		t.Errorf("unexpected serpapi defaults: %+v", cfg.SerpAPI)
	}
	if cfg.Audit.Backend != "none" {
		t.Errorf("expected audit disabled by default, got %s", cfg.Audit.Backend)
	}
}

func TestLoad_YAMLFile(t *testing.T) {
	t.Setenv("SERP_API_KEY", "")
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
server:
  transport: http
  http_addr: "127.0.0.1:9000"
log:
  level: debug
  format: text
crawl:
  concurrency: 4
  budget: 3s
  user_agents:
    - "UA-One/1.0"
    - "UA-Two/2.0"
serpapi:
  nfpr: true
  filter: "0"
  zero_trace: true
audit:
  backend: sqlite
  dsn: /tmp/audit.db
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(Options{ConfigFile: path, EnvFile: missingEnv(t)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Transport != "http" || cfg.Server.HTTPAddr != "127.0.0.1:9000" {
		t.Errorf("unexpected server config: %+v", cfg.Server)
	}
	if cfg.Crawl.Concurrency != 4 || cfg.Crawl.Budget != 3*time.Second {
		t.Errorf("unexpected crawl config: %+v", cfg.Crawl)
	}
	if len(cfg.Crawl.UserAgents) != 2 || cfg.Crawl.UserAgents[1] != "UA-Two/2.0" {
		t.Errorf("unexpected user agents: %v", cfg.Crawl.UserAgents)
	}
	if !cfg.SerpAPI.NFPR || cfg.SerpAPI.Filter != "0" || !cfg.SerpAPI.ZeroTrace {
		t.Errorf("unexpected serpapi options: %+v", cfg.SerpAPI)
	}
	if cfg.Audit.Backend != "sqlite" || cfg.Audit.DSN != "/tmp/audit.db" {
		t.Errorf("unexpected audit config: %+v", cfg.Audit)
	}
	if level, _ := cfg.Log.SlogLevel(); level != slog.LevelDebug {
		t.Errorf("expected debug level, got %v", level)
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("crawl:\n  concurrency: 4\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("LLM_SEARCH_CRAWL_CONCURRENCY", "7")
	t.Setenv("LLM_SEARCH_CRAWL_RESPECT_ROBOTS", "true")
	t.Setenv("SERP_API_KEY", "from-env")

	cfg, err := Load(Options{ConfigFile: path, EnvFile: missingEnv(t)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Crawl.Concurrency != 7 {
		t.Errorf("expected env to win, got %d", cfg.Crawl.Concurrency)
	}
	if !cfg.Crawl.RespectRobots {
		t.Errorf("expected respect_robots from env")
	}
	if cfg.SerpAPI.APIKey != "from-env" {
		t.Errorf("expected SERP_API_KEY to populate the api key, got %q", cfg.SerpAPI.APIKey)
	}
}

func TestLoad_EnvFile(t *testing.T) {
	t.Setenv("SERP_API_KEY", "")
	os.Unsetenv("SERP_API_KEY")
	t.Cleanup(func() { os.Unsetenv("SERP_API_KEY") })

	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("SERP_API_KEY=dotenv-key\n"), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}

	cfg, err := Load(Options{EnvFile: path})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.SerpAPI.APIKey != "dotenv-key" {
		t.Errorf("expected key from .env, got %q", cfg.SerpAPI.APIKey)
	}
}

func TestLoad_MissingConfigFile(t *testing.T) {
	_, err := Load(Options{ConfigFile: filepath.Join(t.TempDir(), "nope.yaml"), EnvFile: missingEnv(t)})
	if err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func validConfig(t *testing.T) *Config {
	t.Helper()
	t.Setenv("SERP_API_KEY", "")
	cfg, err := Load(Options{EnvFile: missingEnv(t)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return cfg
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"bad transport", func(c *Config) { c.Server.Transport = "grpc" }, "server.transport"},
		{"http without addr", func(c *Config) { c.Server.Transport = "http"; c.Server.HTTPAddr = "" }, "server.http_addr"},
		{"bad level", func(c *Config) { c.Log.Level = "loud" }, "log.level"},
		{"bad format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
		{"zero concurrency", func(c *Config) { c.Crawl.Concurrency = 0 }, "crawl.concurrency"},
		{"zero budget", func(c *Config) { c.Crawl.Budget = 0 }, "crawl.budget"},
		{"negative redirects", func(c *Config) { c.Crawl.MaxRedirects = -1 }, "crawl.max_redirects"},
		{"bad fingerprint", func(c *Config) { c.Crawl.Fingerprint = "netscape" }, "crawl.fingerprint"},
		{"bad renderer", func(c *Config) { c.Crawl.Renderer = "lynx" }, "crawl.renderer"},
		{"bad filter", func(c *Config) { c.SerpAPI.Filter = "2" }, "serpapi.filter"},
		{"bad backend", func(c *Config) { c.Audit.Backend = "mongo" }, "audit.backend"},
		{"backend without dsn", func(c *Config) { c.Audit.Backend = "postgres" }, "audit.dsn"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig(t)
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("expected error mentioning %s, got %v", tt.want, err)
			}
		})
	}
}
