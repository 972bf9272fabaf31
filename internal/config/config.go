package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"BTCSentinel/internal/cache"
	"BTCSentinel/internal/swing"
)

// CurrentVersion is the only config layout this build understands.
const CurrentVersion = 1

// Bar venue names accepted in sources.chain.
var knownVenues = map[string]bool{"binance": true, "bybit": true, "okx": true, "kraken": true, "mock": true}

// Config holds all application configuration.
type Config struct {
	Version int    `yaml:"version"`
	Symbol  string `yaml:"symbol"`
	Proxy   string `yaml:"proxy"`

	Store struct {
		Dir          string    `yaml:"dir"`
		HistoryStart time.Time `yaml:"history_start"`
	} `yaml:"store"`

	Recorder struct {
		SQLitePath string `yaml:"sqlite_path"`
	} `yaml:"recorder"`

	HTTP struct {
		Timeout           time.Duration `yaml:"timeout"`
		RequestsPerSecond float64       `yaml:"requests_per_second"`
		Burst             int           `yaml:"burst"`
	} `yaml:"http"`

	Retry struct {
		MaxRetries int           `yaml:"max_retries"`
		BaseDelay  time.Duration `yaml:"base_delay"`
	} `yaml:"retry"`

	Health struct {
		Failures uint32        `yaml:"failures"`
		Cooldown time.Duration `yaml:"cooldown"`
	} `yaml:"health"`

	Sources struct {
		// Chain is the bar venue order after the local store.
		Chain              []string `yaml:"chain"`
		DeepHistory        string   `yaml:"deep_history"`
		BinanceURL         string   `yaml:"binance_url"`
		BinanceFuturesURL  string   `yaml:"binance_futures_url"`
		BybitURL           string   `yaml:"bybit_url"`
		OKXURL             string   `yaml:"okx_url"`
		KrakenURL          string   `yaml:"kraken_url"`
		DefiLlamaURL       string   `yaml:"defillama_url"`
		StablecoinsURL     string   `yaml:"stablecoins_url"`
		YieldsURL          string   `yaml:"yields_url"`
		FearGreedURL       string   `yaml:"fear_greed_url"`
		FREDURL            string   `yaml:"fred_url"`
		FREDSeries         []string `yaml:"fred_series"`
		FundingParallelism int      `yaml:"funding_parallelism"`
	} `yaml:"sources"`

	Cache struct {
		Backend string `yaml:"backend"`
		Redis   struct {
			Addr     string `yaml:"addr"`
			Password string `yaml:"password"`
			DB       int    `yaml:"db"`
		} `yaml:"redis"`
		TTL struct {
			Daily    time.Duration `yaml:"daily"`
			Realtime time.Duration `yaml:"realtime"`
			Rate     time.Duration `yaml:"rate"`
			Aux      time.Duration `yaml:"aux"`
		} `yaml:"ttl"`
	} `yaml:"cache"`

	Schedule struct {
		AppendCron string `yaml:"append_cron"`
		DailyCron  string `yaml:"daily_cron"`
		RunOnStart bool   `yaml:"run_on_start"`
	} `yaml:"schedule"`

	Swing     swing.Params `yaml:"swing"`
	Grid      swing.Grid   `yaml:"grid"`
	Objective string       `yaml:"objective"`

	Kelly struct {
		Equity      float64 `yaml:"equity"`
		Risk        float64 `yaml:"risk"`
		MaxLeverage float64 `yaml:"max_leverage"`
	} `yaml:"kelly"`

	Option struct {
		Days float64 `yaml:"days"`
	} `yaml:"option"`

	Metrics struct {
		Addr string `yaml:"addr"`
	} `yaml:"metrics"`

	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
		Output string `yaml:"output"`
		MaxAge int    `yaml:"max_age"`
	} `yaml:"log"`
}

// Default returns a config with every documented default filled in.
func Default() *Config {
	cfg := &Config{Version: CurrentVersion, Symbol: "BTCUSDT"}

	cfg.Store.Dir = "data/klines"
	cfg.Store.HistoryStart = time.Date(2013, 1, 1, 0, 0, 0, 0, time.UTC)
	cfg.Recorder.SQLitePath = "data/btc_sentinel.db"

	cfg.HTTP.Timeout = 30 * time.Second
	cfg.HTTP.RequestsPerSecond = 5
	cfg.HTTP.Burst = 5
	cfg.Retry.MaxRetries = 3
	cfg.Retry.BaseDelay = time.Second
	cfg.Health.Failures = 5
	cfg.Health.Cooldown = time.Minute

	cfg.Sources.Chain = []string{"binance", "bybit", "okx", "kraken"}
	cfg.Sources.DeepHistory = "kraken"
	cfg.Sources.BinanceFuturesURL = "https://fapi.binance.com"
	cfg.Sources.OKXURL = "https://www.okx.com"
	cfg.Sources.KrakenURL = "https://api.kraken.com"
	cfg.Sources.DefiLlamaURL = "https://api.llama.fi"
	cfg.Sources.StablecoinsURL = "https://stablecoins.llama.fi"
	cfg.Sources.YieldsURL = "https://yields.llama.fi"
	cfg.Sources.FearGreedURL = "https://api.alternative.me"
	cfg.Sources.FREDURL = "https://fred.stlouisfed.org"
	cfg.Sources.FREDSeries = []string{"WM2NS", "CPIAUCSL", "DEXJPUS"}
	cfg.Sources.FundingParallelism = 4

	cfg.Cache.Backend = "memory"
	cfg.Cache.Redis.Addr = "localhost:6379"
	cfg.Cache.TTL.Daily = 24 * time.Hour
	cfg.Cache.TTL.Realtime = 60 * time.Second
	cfg.Cache.TTL.Rate = time.Hour
	cfg.Cache.TTL.Aux = 6 * time.Hour

	cfg.Schedule.AppendCron = "0 1/15 * * * *"
	cfg.Schedule.DailyCron = "0 5 0 * * *"

	cfg.Swing = swing.DefaultParams()
	cfg.Grid = swing.DefaultGrid()
	cfg.Objective = string(swing.ObjectiveWinRate)

	cfg.Kelly.Equity = 10000
	cfg.Kelly.Risk = 0.02
	cfg.Kelly.MaxLeverage = 3

	cfg.Option.Days = 7
	cfg.Metrics.Addr = ":9090"

	cfg.Log.Level = "info"
	cfg.Log.Format = "json"
	cfg.Log.Output = "stdout"
	return cfg
}

// Load reads config from a YAML file over the defaults, then applies
// environment variable overrides. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	// Environment variable overrides
	if v := os.Getenv("STORE_DIR"); v != "" {
		cfg.Store.Dir = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Recorder.SQLitePath = v
	}
	if v := os.Getenv("HTTPS_PROXY"); v != "" {
		cfg.Proxy = v
	}
	if v := os.Getenv("BINANCE_BASE_URL"); v != "" {
		cfg.Sources.BinanceURL = v
	}
	if v := os.Getenv("CACHE_BACKEND"); v != "" {
		cfg.Cache.Backend = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Cache.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Cache.Redis.Password = v
	}
	if v := os.Getenv("REDIS_DB"); v != "" {
		if db, err := strconv.Atoi(v); err == nil {
			cfg.Cache.Redis.DB = db
		}
	}
	if v := os.Getenv("CRON_APPEND"); v != "" {
		cfg.Schedule.AppendCron = v
	}
	if v := os.Getenv("CRON_DAILY"); v != "" {
		cfg.Schedule.DailyCron = v
	}
	if v := os.Getenv("RUN_ON_START"); v != "" {
		cfg.Schedule.RunOnStart = v == "true"
	}
	if v := os.Getenv("METRICS_ADDR"); v != "" {
		cfg.Metrics.Addr = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	if v := os.Getenv("LOG_OUTPUT"); v != "" {
		cfg.Log.Output = v
	}

	return cfg, nil
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.Version != CurrentVersion {
		return fmt.Errorf("config version %d not supported (want %d)", c.Version, CurrentVersion)
	}
	if c.Symbol == "" {
		return fmt.Errorf("symbol is required")
	}
	if c.Store.Dir == "" {
		return fmt.Errorf("store.dir is required")
	}
	if len(c.Sources.Chain) == 0 {
		return fmt.Errorf("sources.chain must list at least one venue")
	}
	for _, v := range c.Sources.Chain {
		if !knownVenues[v] {
			return fmt.Errorf("sources.chain: unknown venue %q", v)
		}
	}
	if c.Sources.DeepHistory != "" && !knownVenues[c.Sources.DeepHistory] {
		return fmt.Errorf("sources.deep_history: unknown venue %q", c.Sources.DeepHistory)
	}
	if c.Retry.MaxRetries < 0 {
		return fmt.Errorf("retry.max_retries must be non-negative")
	}
	switch c.Cache.Backend {
	case "memory":
	case "redis":
		if c.Cache.Redis.Addr == "" {
			return fmt.Errorf("cache.redis.addr is required for the redis backend")
		}
	default:
		return fmt.Errorf("cache.backend %q not one of memory, redis", c.Cache.Backend)
	}
	if c.Swing.BandLow >= c.Swing.BandHigh {
		return fmt.Errorf("swing.band_low %.2f must be below swing.band_high %.2f", c.Swing.BandLow, c.Swing.BandHigh)
	}
	if !swing.ValidExitMA(c.Swing.ExitMA) {
		return fmt.Errorf("swing.exit_ma %q is not supported", c.Swing.ExitMA)
	}
	if !swing.ValidFundingPolicy(string(c.Swing.FundingPolicy)) {
		return fmt.Errorf("swing.funding_policy %q is not supported", c.Swing.FundingPolicy)
	}
	if err := c.Swing.Validate(); err != nil {
		return fmt.Errorf("swing: %w", err)
	}
	switch swing.Objective(c.Objective) {
	case swing.ObjectiveWinRate, swing.ObjectiveROI:
	default:
		return fmt.Errorf("objective %q not one of win_rate, roi", c.Objective)
	}
	if c.Kelly.Risk < swing.MinRisk || c.Kelly.Risk > swing.MaxRisk {
		return fmt.Errorf("kelly.risk %.4f outside [%.2f, %.2f]", c.Kelly.Risk, swing.MinRisk, swing.MaxRisk)
	}
	if c.Option.Days <= 0 {
		return fmt.Errorf("option.days must be positive")
	}
	return nil
}

// CacheTTLs returns the per-class cache lifetimes.
func (c *Config) CacheTTLs() map[cache.KeyClass]time.Duration {
	return map[cache.KeyClass]time.Duration{
		cache.ClassDaily:    c.Cache.TTL.Daily,
		cache.ClassRealtime: c.Cache.TTL.Realtime,
		cache.ClassRate:     c.Cache.TTL.Rate,
		cache.ClassAux:      c.Cache.TTL.Aux,
	}
}
