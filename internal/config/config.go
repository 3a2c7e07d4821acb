// Package config loads and validates imgscout configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all configuration knobs loaded via Viper.
type Config struct {
	Site    SiteConfig    `mapstructure:"site"`
	Browser BrowserConfig `mapstructure:"browser"`
	Locator LocatorConfig `mapstructure:"locator"`
	Fetcher FetcherConfig `mapstructure:"fetcher"`
	Display DisplayConfig `mapstructure:"display"`
	Output  OutputConfig  `mapstructure:"output"`
	History HistoryConfig `mapstructure:"history"`
	Notify  NotifyConfig  `mapstructure:"notify"`
	Server  ServerConfig  `mapstructure:"server"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// SiteConfig describes the image-hosting site being searched.
type SiteConfig struct {
	SearchURLTemplate string `mapstructure:"search_url_template"`
	QuerySeparator    string `mapstructure:"query_separator"`
	Domain            string `mapstructure:"domain"`
	Referer           string `mapstructure:"referer"`
}

// BrowserConfig controls the browser session used by the locator.
type BrowserConfig struct {
	Provider          string `mapstructure:"provider"`
	Headless          bool   `mapstructure:"headless"`
	NoSandbox         bool   `mapstructure:"no_sandbox"`
	DisableGPU        bool   `mapstructure:"disable_gpu"`
	DisableDevShm     bool   `mapstructure:"disable_dev_shm"`
	WindowWidth       int    `mapstructure:"window_width"`
	WindowHeight      int    `mapstructure:"window_height"`
	UserAgent         string `mapstructure:"user_agent"`
	ExecPath          string `mapstructure:"exec_path"`
	NavTimeoutSeconds int    `mapstructure:"nav_timeout_seconds"`
	ScreenshotPath    string `mapstructure:"screenshot_path"`
}

// StrategyConfig is one selector strategy in evaluation order.
type StrategyConfig struct {
	Name      string `mapstructure:"name"`
	Selector  string `mapstructure:"selector"`
	Attribute string `mapstructure:"attribute"`
}

// LocatorConfig controls readiness polling and result bounds.
type LocatorConfig struct {
	MaxResults     int              `mapstructure:"max_results"`
	ReadyTimeoutMs int              `mapstructure:"ready_timeout_ms"`
	PollIntervalMs int              `mapstructure:"poll_interval_ms"`
	Strategies     []StrategyConfig `mapstructure:"strategies"`
}

// FetcherConfig configures image downloads.
type FetcherConfig struct {
	TimeoutSeconds int     `mapstructure:"timeout_seconds"`
	MaxBytes       int64   `mapstructure:"max_bytes"`
	UserAgent      string  `mapstructure:"user_agent"`
	RatePerSecond  float64 `mapstructure:"rate_per_second"`
	Burst          int     `mapstructure:"burst"`
}

// DisplayConfig controls the grid and the pause between fetches.
type DisplayConfig struct {
	Columns    int `mapstructure:"columns"`
	PauseMinMs int `mapstructure:"pause_min_ms"`
	PauseMaxMs int `mapstructure:"pause_max_ms"`
}

// OutputConfig sets where saved images go.
type OutputConfig struct {
	Backend     string `mapstructure:"backend"`
	Dir         string `mapstructure:"dir"`
	GCSBucket   string `mapstructure:"gcs_bucket"`
	Prefix      string `mapstructure:"prefix"`
	JPEGQuality int    `mapstructure:"jpeg_quality"`
}

// HistoryConfig selects the search history backend.
type HistoryConfig struct {
	Backend       string `mapstructure:"backend"`
	DSN           string `mapstructure:"dsn"`
	SearchesTable string `mapstructure:"searches_table"`
	SavesTable    string `mapstructure:"saves_table"`
}

// NotifyConfig holds metadata for publish-subscribe notifications.
type NotifyConfig struct {
	Backend   string `mapstructure:"backend"`
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// ServerConfig controls the HTTP API.
type ServerConfig struct {
	Port            int `mapstructure:"port"`
	RequestTimeoutS int `mapstructure:"request_timeout_seconds"`
	CacheSize       int `mapstructure:"cache_size"`
	CacheTTLMinutes int `mapstructure:"cache_ttl_minutes"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// DefaultUserAgent is a desktop Chrome user agent.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 " +
	"(KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// DefaultStrategies lists the Pixabay selectors from most to least specific.
func DefaultStrategies() []StrategyConfig {
	return []StrategyConfig{
		{Name: "grid-container", Selector: `div.container--wYO8e div.images--0AI\+S a img`, Attribute: "src"},
		{Name: "grid-results", Selector: "div.container--wYO8e div.results--mB75j div a img", Attribute: "src"},
		{Name: "flex-grid", Selector: ".flex-grid a picture img", Attribute: "src"},
		{Name: "photo-result", Selector: "img.photo-result__image", Attribute: "src"},
		{Name: "image-link", Selector: "a[href*='/images/'] img", Attribute: "src"},
		{Name: "site-src", Selector: "img[src*='pixabay.com']", Attribute: "src"},
		{Name: "any-img", Selector: "img", Attribute: "src"},
	}
}

var tableNamePattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Load builds a Config from defaults, an optional config file, and IMGSCOUT_*
// environment variables. With an empty path it looks for imgscout.yaml in the
// working directory and $HOME/.imgscout.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("IMGSCOUT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("imgscout")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.imgscout")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if len(cfg.Locator.Strategies) == 0 {
		cfg.Locator.Strategies = DefaultStrategies()
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("site.search_url_template", "https://pixabay.com/images/search/{query}/")
	v.SetDefault("site.query_separator", "+")
	v.SetDefault("site.domain", "pixabay.com")
	v.SetDefault("site.referer", "https://pixabay.com/")
	v.SetDefault("browser.provider", "chromedp")
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.no_sandbox", true)
	v.SetDefault("browser.disable_gpu", true)
	v.SetDefault("browser.disable_dev_shm", true)
	v.SetDefault("browser.window_width", 1920)
	v.SetDefault("browser.window_height", 1080)
	v.SetDefault("browser.user_agent", DefaultUserAgent)
	v.SetDefault("browser.nav_timeout_seconds", 30)
	v.SetDefault("locator.max_results", 20)
	v.SetDefault("locator.ready_timeout_ms", 10000)
	v.SetDefault("locator.poll_interval_ms", 250)
	v.SetDefault("fetcher.timeout_seconds", 10)
	v.SetDefault("fetcher.max_bytes", 20<<20)
	v.SetDefault("fetcher.user_agent", DefaultUserAgent)
	v.SetDefault("fetcher.rate_per_second", 0)
	v.SetDefault("fetcher.burst", 1)
	v.SetDefault("display.columns", 3)
	v.SetDefault("display.pause_min_ms", 200)
	v.SetDefault("display.pause_max_ms", 700)
	v.SetDefault("output.backend", "local")
	v.SetDefault("output.dir", "downloaded_images")
	v.SetDefault("output.jpeg_quality", 90)
	v.SetDefault("history.backend", "none")
	v.SetDefault("history.searches_table", "searches")
	v.SetDefault("history.saves_table", "saved_images")
	v.SetDefault("notify.backend", "log")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.request_timeout_seconds", 120)
	v.SetDefault("server.cache_size", 256)
	v.SetDefault("server.cache_ttl_minutes", 30)
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "info")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if !strings.Contains(c.Site.SearchURLTemplate, "{query}") {
		return fmt.Errorf("site.search_url_template must contain {query}")
	}
	if c.Site.Domain == "" {
		return fmt.Errorf("site.domain must be set")
	}
	switch c.Browser.Provider {
	case "chromedp", "static":
	default:
		return fmt.Errorf("browser.provider must be chromedp or static")
	}
	if c.Browser.WindowWidth <= 0 || c.Browser.WindowHeight <= 0 {
		return fmt.Errorf("browser.window_width and browser.window_height must be > 0")
	}
	if c.Browser.NavTimeoutSeconds <= 0 {
		return fmt.Errorf("browser.nav_timeout_seconds must be > 0")
	}
	if c.Locator.MaxResults <= 0 || c.Locator.MaxResults > 20 {
		return fmt.Errorf("locator.max_results must be between 1 and 20")
	}
	if c.Locator.PollIntervalMs <= 0 {
		return fmt.Errorf("locator.poll_interval_ms must be > 0")
	}
	if c.Locator.ReadyTimeoutMs < 0 {
		return fmt.Errorf("locator.ready_timeout_ms must be >= 0")
	}
	for i, s := range c.Locator.Strategies {
		if s.Selector == "" {
			return fmt.Errorf("locator.strategies[%d].selector must be set", i)
		}
	}
	if c.Fetcher.TimeoutSeconds <= 0 {
		return fmt.Errorf("fetcher.timeout_seconds must be > 0")
	}
	if c.Fetcher.MaxBytes <= 0 {
		return fmt.Errorf("fetcher.max_bytes must be > 0")
	}
	if c.Fetcher.RatePerSecond < 0 {
		return fmt.Errorf("fetcher.rate_per_second must be >= 0")
	}
	if c.Display.Columns <= 0 {
		return fmt.Errorf("display.columns must be > 0")
	}
	if c.Display.PauseMinMs < 0 || c.Display.PauseMaxMs < c.Display.PauseMinMs {
		return fmt.Errorf("display.pause_max_ms must be >= display.pause_min_ms >= 0")
	}
	switch c.Output.Backend {
	case "local":
		if c.Output.Dir == "" {
			return fmt.Errorf("output.dir must be set for the local backend")
		}
	case "gcs":
		if c.Output.GCSBucket == "" {
			return fmt.Errorf("output.gcs_bucket must be set for the gcs backend")
		}
	case "memory":
	default:
		return fmt.Errorf("output.backend must be local, gcs, or memory")
	}
	if c.Output.JPEGQuality < 1 || c.Output.JPEGQuality > 100 {
		return fmt.Errorf("output.jpeg_quality must be between 1 and 100")
	}
	switch c.History.Backend {
	case "none", "memory":
	case "sqlite", "postgres":
		if c.History.DSN == "" {
			return fmt.Errorf("history.dsn must be set for the %s backend", c.History.Backend)
		}
		if !tableNamePattern.MatchString(c.History.SearchesTable) || !tableNamePattern.MatchString(c.History.SavesTable) {
			return fmt.Errorf("history table names must match %s", tableNamePattern.String())
		}
	default:
		return fmt.Errorf("history.backend must be none, memory, sqlite, or postgres")
	}
	switch c.Notify.Backend {
	case "none", "log":
	case "pubsub":
		if c.Notify.Topic != "" && c.Notify.ProjectID == "" {
			return fmt.Errorf("notify.project_id must be set when notify.topic is set")
		}
	default:
		return fmt.Errorf("notify.backend must be none, log, or pubsub")
	}
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Server.CacheSize <= 0 {
		return fmt.Errorf("server.cache_size must be > 0")
	}
	return nil
}

// ReadyTimeout is the locator's maximum readiness wait.
func (c LocatorConfig) ReadyTimeout() time.Duration {
	return time.Duration(c.ReadyTimeoutMs) * time.Millisecond
}

// PollInterval is the delay between readiness probes.
func (c LocatorConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMs) * time.Millisecond
}

// Timeout converts the fetch timeout to a duration.
func (c FetcherConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// NavTimeout converts the navigation timeout to a duration.
func (c BrowserConfig) NavTimeout() time.Duration {
	return time.Duration(c.NavTimeoutSeconds) * time.Second
}

// PauseBounds returns the randomized pause window.
func (c DisplayConfig) PauseBounds() (time.Duration, time.Duration) {
	return time.Duration(c.PauseMinMs) * time.Millisecond, time.Duration(c.PauseMaxMs) * time.Millisecond
}

// CacheTTL converts the search cache lifetime to a duration.
func (c ServerConfig) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLMinutes) * time.Minute
}

// RequestTimeout bounds a single API request.
func (c ServerConfig) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutS) * time.Second
}
