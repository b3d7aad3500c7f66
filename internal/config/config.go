package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"
	"time"

	"github.com/FranksOps/llmsearch/internal/fingerprint"
	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
)

const EnvPrefix = "LLM_SEARCH"

type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Log     LogConfig     `mapstructure:"log"`
	SerpAPI SerpAPIConfig `mapstructure:"serpapi"`
	Crawl   CrawlConfig   `mapstructure:"crawl"`
	Audit   AuditConfig   `mapstructure:"audit"`
}

type ServerConfig struct {
	Name        string `mapstructure:"name"`
	Transport   string `mapstructure:"transport"`
	HTTPAddr    string `mapstructure:"http_addr"`
	MetricsPort int    `mapstructure:"metrics_port"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type SerpAPIConfig struct {
	APIKey  string        `mapstructure:"api_key"`
	BaseURL string        `mapstructure:"base_url"`
	Engine  string        `mapstructure:"engine"`
	Timeout time.Duration `mapstructure:"timeout"`
	Safe    string        `mapstructure:"safe"`
	Device  string        `mapstructure:"device"`
	Num     int           `mapstructure:"num"`
	NoCache bool          `mapstructure:"no_cache"`
	HL      string        `mapstructure:"hl"`
	GL      string        `mapstructure:"gl"`
	// NFPR excludes results from an auto-corrected query.
	NFPR      bool   `mapstructure:"nfpr"`
	Filter    string `mapstructure:"filter"`
	ZeroTrace bool   `mapstructure:"zero_trace"`
}

type CrawlConfig struct {
	Concurrency       int           `mapstructure:"concurrency"`
	Budget            time.Duration `mapstructure:"budget"`
	PageTimeout       time.Duration `mapstructure:"page_timeout"`
	MaxRedirects      int           `mapstructure:"max_redirects"`
	MaxBodyBytes      int64         `mapstructure:"max_body_bytes"`
	UserAgents        []string      `mapstructure:"user_agents"`
	ProxiesFile       string        `mapstructure:"proxies_file"`
	Fingerprint       string        `mapstructure:"fingerprint"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	Jitter            float64       `mapstructure:"jitter"`
	RespectRobots     bool          `mapstructure:"respect_robots"`
	Readability       bool          `mapstructure:"readability"`
	Renderer          string        `mapstructure:"renderer"`
	ChromePath        string        `mapstructure:"chrome_path"`
	ChromeURL         string        `mapstructure:"chrome_url"`
}

// AuditConfig selects where crawl attempts are recorded. Backend "none"
// disables recording.
type AuditConfig struct {
	Backend string `mapstructure:"backend"`
	DSN     string `mapstructure:"dsn"`
}

// Options controls where Load looks for settings.
type Options struct {
	// ConfigFile is an optional YAML file. Empty skips it.
	ConfigFile string
	// EnvFile is a dotenv file; a missing file is ignored. Empty means ".env".
	EnvFile string
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.name", "llm-search")
	v.SetDefault("server.transport", "stdio")
	v.SetDefault("server.http_addr", ":8080")
	v.SetDefault("server.metrics_port", 0)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("serpapi.api_key", "")
	v.SetDefault("serpapi.base_url", "https://serpapi.com/search")
	v.SetDefault("serpapi.engine", "google_light")
	v.SetDefault("serpapi.timeout", 10*time.Second)
	v.SetDefault("serpapi.safe", "")
	v.SetDefault("serpapi.device", "")
	v.SetDefault("serpapi.num", 0)
	v.SetDefault("serpapi.no_cache", false)
	v.SetDefault("serpapi.hl", "")
	v.SetDefault("serpapi.gl", "")
	v.SetDefault("serpapi.nfpr", false)
	v.SetDefault("serpapi.filter", "")
	v.SetDefault("serpapi.zero_trace", false)

	v.SetDefault("crawl.concurrency", 10)
	v.SetDefault("crawl.budget", 8*time.Second)
	v.SetDefault("crawl.page_timeout", 8*time.Second)
	v.SetDefault("crawl.max_redirects", 5)
	v.SetDefault("crawl.max_body_bytes", int64(5<<20))
	v.SetDefault("crawl.user_agents", []string{})
	v.SetDefault("crawl.proxies_file", "")
	v.SetDefault("crawl.fingerprint", string(fingerprint.ProfileChrome))
	v.SetDefault("crawl.requests_per_second", 0.0)
	v.SetDefault("crawl.jitter", 0.0)
	v.SetDefault("crawl.respect_robots", false)
	v.SetDefault("crawl.readability", false)
	v.SetDefault("crawl.renderer", "http")
	v.SetDefault("crawl.chrome_path", "")
	v.SetDefault("crawl.chrome_url", "")

	v.SetDefault("audit.backend", "none")
	v.SetDefault("audit.dsn", "")
}

// Load layers defaults, the optional YAML file, the dotenv file and the
// environment, in that order. SERP_API_KEY is honoured for the credential.
func Load(opts Options) (*Config, error) {
	envFile := opts.EnvFile
	if envFile == "" {
		envFile = ".env"
	}
	if err := gotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load env file %s: %w", envFile, err)
	}

	v := viper.New()
	setDefaults(v)

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", opts.ConfigFile, err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("serpapi.api_key", EnvPrefix+"_SERPAPI_API_KEY", "SERP_API_KEY"); err != nil {
		return nil, fmt.Errorf("bind env: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings that cannot work. A missing API key is allowed;
// it is reported per call as an authentication error.
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	check(c.Server.Transport == "stdio" || c.Server.Transport == "http",
		"server.transport must be stdio or http, got %q", c.Server.Transport)
	check(c.Server.Transport != "http" || c.Server.HTTPAddr != "",
		"server.http_addr is required for the http transport")
	check(c.Server.MetricsPort >= 0 && c.Server.MetricsPort <= 65535,
		"server.metrics_port out of range: %d", c.Server.MetricsPort)

	_, err := c.Log.SlogLevel()
	check(err == nil, "log.level: %v", err)
	check(c.Log.Format == "json" || c.Log.Format == "text",
		"log.format must be json or text, got %q", c.Log.Format)

	check(c.SerpAPI.BaseURL != "", "serpapi.base_url is required")
	check(c.SerpAPI.Timeout > 0, "serpapi.timeout must be positive")
	check(c.SerpAPI.Num >= 0, "serpapi.num must not be negative")
	check(c.SerpAPI.Filter == "" || c.SerpAPI.Filter == "0" || c.SerpAPI.Filter == "1",
		"serpapi.filter must be 0 or 1, got %q", c.SerpAPI.Filter)

	check(c.Crawl.Concurrency >= 1, "crawl.concurrency must be at least 1, got %d", c.Crawl.Concurrency)
	check(c.Crawl.Budget > 0, "crawl.budget must be positive")
	check(c.Crawl.PageTimeout > 0, "crawl.page_timeout must be positive")
	check(c.Crawl.MaxRedirects >= 0, "crawl.max_redirects must not be negative")
	check(c.Crawl.MaxBodyBytes > 0, "crawl.max_body_bytes must be positive")
	check(c.Crawl.RequestsPerSecond >= 0, "crawl.requests_per_second must not be negative")
	check(c.Crawl.Jitter >= 0 && c.Crawl.Jitter <= 1, "crawl.jitter must be between 0 and 1")
	_, err = fingerprint.ParseProfile(c.Crawl.Fingerprint)
	check(err == nil, "crawl.fingerprint: %v", err)
	check(c.Crawl.Renderer == "http" || c.Crawl.Renderer == "chrome",
		"crawl.renderer must be http or chrome, got %q", c.Crawl.Renderer)

	switch c.Audit.Backend {
	case "none":
	case "sqlite", "postgres", "jsonl":
		check(c.Audit.DSN != "", "audit.dsn is required for the %s backend", c.Audit.Backend)
	default:
		errs = append(errs, fmt.Errorf("audit.backend must be none, sqlite, postgres or jsonl, got %q", c.Audit.Backend))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

func (l LogConfig) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return slog.LevelInfo, err
	}
	return level, nil
}
