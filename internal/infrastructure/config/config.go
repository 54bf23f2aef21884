package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Tor       TorConfig
	Browser   BrowserConfig
	Cache     CacheConfig
	Resolver  ResolverConfig
	Logging   LogConfig
	RateLimit RateLimitConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"3000"`
	Host string `envconfig:"HOST" default:"0.0.0.0"`
}

// TorConfig holds anonymity proxy and probe configuration.
type TorConfig struct {
	ProxyHost     string        `envconfig:"TOR_PROXY_HOST" default:"tor-proxy"`
	ProxyPort     int           `envconfig:"TOR_PROXY_PORT" default:"9050"`
	InitialWait   time.Duration `envconfig:"TOR_INITIAL_WAIT" default:"15s"`
	PortWait      time.Duration `envconfig:"TOR_PORT_WAIT" default:"120s"`
	PortRetry     time.Duration `envconfig:"TOR_PORT_RETRY" default:"2s"`
	DialTimeout   time.Duration `envconfig:"TOR_DIAL_TIMEOUT" default:"5s"`
	ProbeTimeout  time.Duration `envconfig:"TOR_PROBE_TIMEOUT" default:"60s"`
	MaxRetries    int           `envconfig:"TOR_MAX_RETRIES" default:"5"`
	BackoffBase   time.Duration `envconfig:"TOR_BACKOFF_BASE" default:"5s"`
	BackoffMax    time.Duration `envconfig:"TOR_BACKOFF_MAX" default:"30s"`
	CheckInterval time.Duration `envconfig:"TOR_CHECK_INTERVAL" default:"30s"`
	Endpoints     []string      `envconfig:"TOR_VERIFY_ENDPOINTS" default:"https://check.torproject.org/api/ip,https://am.i.mullvad.net/json,https://ident.me"`
}

// Address returns the proxy host:port pair.
func (t TorConfig) Address() string {
	return net.JoinHostPort(t.ProxyHost, strconv.Itoa(t.ProxyPort))
}

// BrowserConfig holds rendering engine and pool configuration.
type BrowserConfig struct {
	ExecPath      string        `envconfig:"CHROME_PATH"`
	Headless      bool          `envconfig:"BROWSER_HEADLESS" default:"true"`
	PoolSize      int           `envconfig:"BROWSER_POOL_SIZE" default:"2"`
	MaxActive     int           `envconfig:"BROWSER_MAX_ACTIVE" default:"4"`
	TimeoutDirect time.Duration `envconfig:"RENDER_TIMEOUT_DIRECT" default:"30s"`
	TimeoutTor    time.Duration `envconfig:"RENDER_TIMEOUT_TOR" default:"60s"`
	SettleMax     time.Duration `envconfig:"RENDER_SETTLE_MAX" default:"1500ms"`
	// AcquireTimeout bounds waiting for a pool slot; zero uses the render timeout
	AcquireTimeout time.Duration `envconfig:"BROWSER_ACQUIRE_TIMEOUT"`
}

// CacheConfig holds page cache configuration.
type CacheConfig struct {
	TTL           time.Duration `envconfig:"CACHE_TTL" default:"5m"`
	PruneInterval time.Duration `envconfig:"CACHE_PRUNE_INTERVAL" default:"60s"`
	MaxEntries    int           `envconfig:"CACHE_MAX_ENTRIES" default:"500"`
}

// ResolverConfig holds URL resolution configuration.
type ResolverConfig struct {
	OverridesFile string `envconfig:"DOMAIN_OVERRIDES_FILE"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
}

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"RATE_LIMIT_RPS" default:"20"`
	Burst             int  `envconfig:"RATE_LIMIT_BURST" default:"40"`
	Enabled           bool `envconfig:"RATE_LIMIT_ENABLED" default:"true"`
}

// Load loads configuration from a .env file (if present) and environment variables.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to read .env: %w", err)
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Validate rejects values the runtime cannot work with.
func (c *Config) Validate() error {
	if c.Tor.ProxyPort <= 0 || c.Tor.ProxyPort > 65535 {
		return fmt.Errorf("invalid TOR_PROXY_PORT: %d", c.Tor.ProxyPort)
	}
	if c.Browser.PoolSize < 0 {
		return fmt.Errorf("invalid BROWSER_POOL_SIZE: %d", c.Browser.PoolSize)
	}
	if c.Browser.MaxActive < 1 {
		return fmt.Errorf("invalid BROWSER_MAX_ACTIVE: %d", c.Browser.MaxActive)
	}
	if c.Cache.TTL <= 0 {
		return fmt.Errorf("invalid CACHE_TTL: %s", c.Cache.TTL)
	}
	if len(c.Tor.Endpoints) == 0 {
		return errors.New("TOR_VERIFY_ENDPOINTS must not be empty")
	}
	return nil
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port: "3000",
			Host: "0.0.0.0",
		},
		Tor: TorConfig{
			ProxyHost:     "tor-proxy",
			ProxyPort:     9050,
			InitialWait:   15 * time.Second,
			PortWait:      120 * time.Second,
			PortRetry:     2 * time.Second,
			DialTimeout:   5 * time.Second,
			ProbeTimeout:  60 * time.Second,
			MaxRetries:    5,
			BackoffBase:   5 * time.Second,
			BackoffMax:    30 * time.Second,
			CheckInterval: 30 * time.Second,
			Endpoints: []string{
				"https://check.torproject.org/api/ip",
				"https://am.i.mullvad.net/json",
				"https://ident.me",
			},
		},
		Browser: BrowserConfig{
			Headless:      true,
			PoolSize:      2,
			MaxActive:     4,
			TimeoutDirect: 30 * time.Second,
			TimeoutTor:    60 * time.Second,
			SettleMax:     1500 * time.Millisecond,
		},
		Cache: CacheConfig{
			TTL:           5 * time.Minute,
			PruneInterval: 60 * time.Second,
			MaxEntries:    500,
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 20,
			Burst:             40,
			Enabled:           true,
		},
	}
}
