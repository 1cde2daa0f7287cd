package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// PeriodLayout is the accepted format of the period start.
const PeriodLayout = "2006-01-02"

// DefaultPeriod is how far back the series starts when no period is given.
const DefaultPeriod = 60 * 24 * time.Hour

type Server struct {
	Enabled           bool   `json:"enabled" env:"ENABLED"`
	Addr              string `json:"addr" env:"ADDR"`
	RequestTimeoutSec int    `json:"request_timeout_sec" env:"REQUEST_TIMEOUT_SEC"`
	ShutdownSec       int    `json:"shutdown_sec" env:"SHUTDOWN_SEC"`
}

type Tracker struct {
	Symbols          []string `json:"symbols" env:"SYMBOLS" envSeparator:","`
	SymbolsFile      string   `json:"symbols_file" env:"SYMBOLS_FILE"`
	Period           string   `json:"period" env:"PERIOD"`
	CacheCapacity    int      `json:"cache_capacity" env:"CACHE_CAPACITY"`
	OutFile          string   `json:"out_file" env:"OUT_FILE"`
	Stdout           bool     `json:"stdout" env:"STDOUT"`
	PollIntervalSec  int      `json:"poll_interval_sec" env:"POLL_INTERVAL_SEC"`
	FlushIntervalSec int      `json:"flush_interval_sec" env:"FLUSH_INTERVAL_SEC"`
	StaggerMs        int      `json:"stagger_ms" env:"STAGGER_MS"`
	FetchTimeoutSec  int      `json:"fetch_timeout_sec" env:"FETCH_TIMEOUT_SEC"`
	RestartDelayMs   int      `json:"restart_delay_ms" env:"RESTART_DELAY_MS"`
	MailboxSize      int      `json:"mailbox_size" env:"MAILBOX_SIZE"`
}

type Yahoo struct {
	BaseURL    string `json:"base_url" env:"BASE_URL"`
	TimeoutSec int    `json:"timeout_sec" env:"TIMEOUT_SEC"`
}

type Alpaca struct {
	APIKey     string `json:"api_key" env:"API_KEY"`
	APISecret  string `json:"api_secret" env:"API_SECRET"`
	BaseURL    string `json:"base_url" env:"BASE_URL"`
	Feed       string `json:"feed" env:"FEED"`
	Currency   string `json:"currency" env:"CURRENCY"`
	TimeoutSec int    `json:"timeout_sec" env:"TIMEOUT_SEC"`
}

type Provider struct {
	// Name selects the quote source: "yahoo" or "alpaca".
	Name                 string `json:"name" env:"NAME"`
	MaxRequestsPerMinute int    `json:"max_requests_per_minute" env:"MAX_RPM"`
	MinRequestIntervalMs int    `json:"min_request_interval_ms" env:"MIN_INTERVAL_MS"`
	Burst                int    `json:"burst" env:"BURST"`
	// CacheTTLSec keeps a fetched series for that long; 0 disables the cache.
	CacheTTLSec   int    `json:"cache_ttl_sec" env:"CACHE_TTL_SEC"`
	CacheMaxItems int    `json:"cache_max_items" env:"CACHE_MAX_ITEMS"`
	Yahoo         Yahoo  `json:"yahoo" envPrefix:"YAHOO_"`
	Alpaca        Alpaca `json:"alpaca" envPrefix:"ALPACA_"`
}

type Redis struct {
	Enabled       bool   `json:"enabled" env:"ENABLED"`
	Addr          string `json:"addr" env:"ADDR"`
	Password      string `json:"password" env:"PASSWORD"`
	DB            int    `json:"db" env:"DB"`
	ChannelPrefix string `json:"channel_prefix" env:"CHANNEL_PREFIX"`
}

type Log struct {
	Level  string `json:"level" env:"LEVEL"`
	Format string `json:"format" env:"FORMAT"`
}

type Config struct {
	Server   Server   `json:"server" envPrefix:"SERVER_"`
	Tracker  Tracker  `json:"tracker" envPrefix:"TRACKER_"`
	Provider Provider `json:"provider" envPrefix:"PROVIDER_"`
	Redis    Redis    `json:"redis" envPrefix:"REDIS_"`
	Log      Log      `json:"log" envPrefix:"LOG_"`
}

func Default() Config {
	return Config{
		Server: Server{Enabled: true, Addr: "127.0.0.1:8081", RequestTimeoutSec: 10, ShutdownSec: 10},
		Tracker: Tracker{
			CacheCapacity:    100,
			PollIntervalSec:  30,
			FlushIntervalSec: 30,
			StaggerMs:        17,
			FetchTimeoutSec:  20,
			RestartDelayMs:   100,
			MailboxSize:      1024,
		},
		Provider: Provider{
			Name:                 "yahoo",
			MaxRequestsPerMinute: 120,
			Burst:                4,
			Yahoo:                Yahoo{BaseURL: "https://query1.finance.yahoo.com", TimeoutSec: 15},
			Alpaca:               Alpaca{Feed: "iex", Currency: "USD", TimeoutSec: 15},
		},
		Redis: Redis{Addr: "localhost:6379", ChannelPrefix: "ticks."},
		Log:   Log{Level: "info", Format: "json"},
	}
}

// Load reads JSON config from path. If path is empty, CONFIG_FILE and then
// ./config.json are tried; a missing file leaves the defaults. Environment
// variables, including those from an optional .env file, override the file.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		path = os.Getenv("CONFIG_FILE")
	}
	if path == "" {
		if _, err := os.Stat("config.json"); err == nil {
			path = "config.json"
		}
	}
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err == nil {
			if err := json.Unmarshal(b, &cfg); err != nil {
				return cfg, fmt.Errorf("parse config: %w", err)
			}
		}
	}

	_ = godotenv.Load()
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// Validate reports the first setting the tracker cannot run with.
func (c Config) Validate() error {
	switch {
	case len(c.Tracker.Symbols) == 0:
		return errors.New("no symbols to track")
	case c.Tracker.CacheCapacity <= 0:
		return fmt.Errorf("cache capacity must be positive, got %d", c.Tracker.CacheCapacity)
	case c.Tracker.PollIntervalSec <= 0:
		return fmt.Errorf("poll interval must be positive, got %ds", c.Tracker.PollIntervalSec)
	case c.Tracker.FlushIntervalSec <= 0:
		return fmt.Errorf("flush interval must be positive, got %ds", c.Tracker.FlushIntervalSec)
	case c.Tracker.StaggerMs < 0:
		return fmt.Errorf("stagger must not be negative, got %dms", c.Tracker.StaggerMs)
	case c.Provider.Name != "yahoo" && c.Provider.Name != "alpaca":
		return fmt.Errorf("unknown provider %q", c.Provider.Name)
	case c.Server.Enabled && c.Server.Addr == "":
		return errors.New("server enabled without an address")
	case c.Redis.Enabled && c.Redis.Addr == "":
		return errors.New("redis relay enabled without an address")
	}
	return nil
}

// From returns the start of the requested period. An empty or unparsable
// period falls back to DefaultPeriod before now; the latter also returns the
// parse error so the caller can warn about it.
func (t Tracker) From(now time.Time) (time.Time, error) {
	fallback := now.Add(-DefaultPeriod)
	if t.Period == "" {
		return fallback, nil
	}
	p, err := time.ParseInLocation(PeriodLayout, t.Period, time.UTC)
	if err != nil {
		return fallback, fmt.Errorf("period %q: %w", t.Period, err)
	}
	return p, nil
}

func (t Tracker) PollInterval() time.Duration  { return time.Duration(t.PollIntervalSec) * time.Second }
func (t Tracker) FlushInterval() time.Duration { return time.Duration(t.FlushIntervalSec) * time.Second }
func (t Tracker) Stagger() time.Duration       { return time.Duration(t.StaggerMs) * time.Millisecond }
func (t Tracker) FetchTimeout() time.Duration  { return time.Duration(t.FetchTimeoutSec) * time.Second }
func (t Tracker) RestartDelay() time.Duration  { return time.Duration(t.RestartDelayMs) * time.Millisecond }

// ReadSymbols reads a comma separated symbol list from path.
func ReadSymbols(path string) ([]string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read symbols: %w", err)
	}
	return SplitSymbols(string(b)), nil
}

// SplitSymbols splits s on commas and newlines, dropping blanks.
func SplitSymbols(s string) []string {
	parts := strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == '\n' || r == '\r' })
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
