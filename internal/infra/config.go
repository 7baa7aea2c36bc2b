package infra

import (
	"errors"
	"fmt"
	"os"

	"ledger_go/internal/domain"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultUserAgent is a browser-like user agent string to avoid bot detection
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

	// MinHistoryCap is the smallest admissible price history window.
	MinHistoryCap = 50
)

// AssetConfig seeds one asset into the registry at bootstrap.
type AssetConfig struct {
	Code          string          `yaml:"code"`
	Name          string          `yaml:"name"`
	Mode          string          `yaml:"mode"` // MARKET_TRACKED, ADMIN_DRIFT, SIMULATED
	TickerSymbol  string          `yaml:"ticker_symbol"`
	InitialPrice  decimal.Decimal `yaml:"initial_price"`
	DriftSpeed    decimal.Decimal `yaml:"drift_speed"`
	Direction     string          `yaml:"direction"`
	ReferenceCode string          `yaml:"reference_code"`
}

// Config holds every runtime setting. Loaded from YAML, then overridden by
// environment variables for deployment-sensitive values.
type Config struct {
	App struct {
		Name    string `yaml:"name"`
		Version string `yaml:"version"`
	} `yaml:"app"`

	Engine struct {
		IntervalMS int `yaml:"interval_ms"`
		HistoryCap int `yaml:"history_cap"`
		Precision  int `yaml:"precision"`
		CandleSec  int `yaml:"candle_interval_sec"`
		Feed       struct {
			URL        string `yaml:"url"`
			TimeoutSec int    `yaml:"timeout_sec"`
		} `yaml:"feed"`
	} `yaml:"engine"`

	Wallet struct {
		CacheTTLMS int `yaml:"cache_ttl_ms"`
	} `yaml:"wallet"`

	Broadcast struct {
		ListenAddr string `yaml:"listen_addr"`
	} `yaml:"broadcast"`

	API struct {
		ListenAddr string `yaml:"listen_addr"`
	} `yaml:"api"`

	Storage struct {
		Path string `yaml:"path"`
	} `yaml:"storage"`

	Assets []AssetConfig `yaml:"assets"`

	Logging struct {
		Level string `yaml:"level"`
	} `yaml:"logging"`
}

// LoadConfig reads and parses the configuration file, applies defaults,
// environment overrides and validation.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", domain.ErrConfigNotFound, path)
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()
	overrideWithEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Engine.IntervalMS == 0 {
		c.Engine.IntervalMS = 5000
	}
	if c.Engine.HistoryCap == 0 {
		c.Engine.HistoryCap = 500
	}
	if c.Engine.Precision == 0 {
		c.Engine.Precision = 8
	}
	if c.Engine.CandleSec == 0 {
		c.Engine.CandleSec = 60
	}
	if c.Engine.Feed.TimeoutSec == 0 {
		c.Engine.Feed.TimeoutSec = 5
	}
	if c.Wallet.CacheTTLMS == 0 {
		c.Wallet.CacheTTLMS = 8000
	}
	if c.Broadcast.ListenAddr == "" {
		c.Broadcast.ListenAddr = ":8090"
	}
	if c.API.ListenAddr == "" {
		c.API.ListenAddr = ":8080"
	}
}

// Validate checks configuration validity
func (c *Config) Validate() error {
	if c.Engine.IntervalMS <= 0 {
		return fmt.Errorf("engine interval must be positive, got %d", c.Engine.IntervalMS)
	}
	if c.Engine.HistoryCap < MinHistoryCap {
		return fmt.Errorf("history cap must be at least %d, got %d", MinHistoryCap, c.Engine.HistoryCap)
	}
	if c.Wallet.CacheTTLMS <= 0 {
		return fmt.Errorf("wallet cache TTL must be positive, got %d", c.Wallet.CacheTTLMS)
	}

	one := decimal.NewFromInt(1)
	for _, a := range c.Assets {
		if a.Code == "" {
			return fmt.Errorf("asset with empty code")
		}
		if !a.DriftSpeed.IsZero() {
			if !a.DriftSpeed.IsPositive() || a.DriftSpeed.GreaterThan(one) {
				return fmt.Errorf("asset %s: drift speed must be in (0,1], got %s", a.Code, a.DriftSpeed)
			}
		}
		if a.InitialPrice.IsNegative() {
			return fmt.Errorf("asset %s: initial price must be non-negative", a.Code)
		}
	}

	return nil
}

// overrideWithEnv applies environment variable overrides when present.
func overrideWithEnv(cfg *Config) {
	if path := os.Getenv("LEDGER_DB_PATH"); path != "" {
		cfg.Storage.Path = path
	}
	if url := os.Getenv("LEDGER_FEED_URL"); url != "" {
		cfg.Engine.Feed.URL = url
	}
	if addr := os.Getenv("LEDGER_WS_ADDR"); addr != "" {
		cfg.Broadcast.ListenAddr = addr
	}
}
