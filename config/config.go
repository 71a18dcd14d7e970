// Package config loads the agent configuration from a YAML file, an optional
// .env file, and environment overrides for secrets and infrastructure.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"cryptoagent/internal/model"
	"cryptoagent/internal/strategy"
)

// ErrInvalid marks a configuration that cannot be used.
var ErrInvalid = errors.New("invalid config")

// Config holds all application configuration. It is validated once at load
// and passed by value afterwards.
type Config struct {
	Credentials   Credentials        `yaml:"credentials"`
	TradesEnabled bool               `yaml:"trades_enabled"` // false: collect data only
	DebugEnabled  bool               `yaml:"debug_enabled"`  // true: paper broker + synthetic feed
	PaperBalance  float64            `yaml:"paper_balance"`  // starting cash of the paper broker
	Instruments   []model.Instrument `yaml:"instruments"`

	Strategies Strategies `yaml:"strategies"`
	Periods    Periods    `yaml:"periods"`

	BuyBelowMovingAverage float64      `yaml:"buy_below_moving_average"`
	ProfitPercentage      float64      `yaml:"profit_percentage"`
	RSIThreshold          RSIThreshold `yaml:"rsi_threshold"`

	BuyAmountPerTrade float64 `yaml:"buy_amount_per_trade"` // 0 spends all available cash
	MinTradeAmount    float64 `yaml:"min_trade_amount"`
	Reserve           float64 `yaml:"reserve"`
	StopLossThreshold float64 `yaml:"stop_loss_threshold"`

	UpdateInterval time.Duration `yaml:"update_interval"`
	CallTimeout    time.Duration `yaml:"call_timeout"`

	MaxDataRows           int `yaml:"max_data_rows"`
	StaleRepeatLimit      int `yaml:"stale_repeat_limit"`
	MinConsecutiveSamples int `yaml:"min_consecutive_samples"` // 0 derives it from the periods

	SaveCharts bool   `yaml:"save_charts"`
	ChartDir   string `yaml:"chart_dir"`

	Storage     Storage  `yaml:"storage"`
	MetricsAddr string   `yaml:"metrics_addr"`
	Notify      Notify   `yaml:"notify"`
	Advisory    Advisory `yaml:"advisory"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

// Credentials authenticate against the brokerage.
type Credentials struct {
	Username   string `yaml:"username,omitempty"`
	Password   string `yaml:"password,omitempty"`
	TOTPSecret string `yaml:"totp_secret,omitempty"`
}

// Strategies names the buy and sell rules.
type Strategies struct {
	Buy  string `yaml:"buy"`
	Sell string `yaml:"sell"`
}

// Periods are the indicator window lengths in samples.
type Periods struct {
	SMAFast    int `yaml:"sma_fast"`
	SMASlow    int `yaml:"sma_slow"`
	MACDFast   int `yaml:"macd_fast"`
	MACDSlow   int `yaml:"macd_slow"`
	MACDSignal int `yaml:"macd_signal"`
	RSI        int `yaml:"rsi"`
}

// RSIThreshold holds the RSI levels that trigger buys and sells.
type RSIThreshold struct {
	Buy  float64 `yaml:"buy"`
	Sell float64 `yaml:"sell"`
}

// Storage selects and configures the state backend.
type Storage struct {
	Backend       string `yaml:"backend"` // sqlite | redis | memory
	SQLitePath    string `yaml:"sqlite_path"`
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password,omitempty"`
	RedisDB       int    `yaml:"redis_db"`
	KeyPrefix     string `yaml:"key_prefix"`
}

// Notify configures outbound notifications. Empty fields disable a channel.
type Notify struct {
	TelegramToken  string `yaml:"telegram_token,omitempty"`
	TelegramChatID string `yaml:"telegram_chat_id,omitempty"`
	WebhookURL     string `yaml:"webhook_url,omitempty"`
}

// Advisory configures the external vote service.
type Advisory struct {
	Exchange string `yaml:"exchange"`
	Interval string `yaml:"interval"` // scanner resolution, e.g. "15m"
}

// Default returns the stock configuration.
func Default() Config {
	return Config{
		TradesEnabled: true,
		DebugEnabled:  true,
		PaperBalance:  1000,
		Instruments: []model.Instrument{
			{Pair: "XETHZUSD", Symbol: "ETH"},
			{Pair: "XXBTZUSD", Symbol: "BTC"},
		},
		Strategies: Strategies{
			Buy:  string(strategy.KindSMARSIThreshold),
			Sell: string(strategy.KindAboveBuy),
		},
		Periods: Periods{
			SMAFast:    24,
			SMASlow:    96,
			MACDFast:   24,
			MACDSlow:   52,
			MACDSignal: 14,
			RSI:        48,
		},
		BuyBelowMovingAverage: 0.0075,
		ProfitPercentage:      0.01,
		RSIThreshold:          RSIThreshold{Buy: 39.5, Sell: 60},
		MinTradeAmount:        1,
		Reserve:               5,
		StopLossThreshold:     0.05,
		UpdateInterval:        time.Minute,
		CallTimeout:           15 * time.Second,
		MaxDataRows:           10000,
		StaleRepeatLimit:      4,
		ChartDir:              "charts",
		Storage: Storage{
			Backend:    "sqlite",
			SQLitePath: "data/cryptoagent.db",
			RedisAddr:  "localhost:6379",
			KeyPrefix:  "cryptoagent:",
		},
		MetricsAddr: ":9090",
		Advisory:    Advisory{Exchange: "COINBASE", Interval: "15m"},
		LogLevel:    "info",
		LogFormat:   "json",
	}
}

// Load reads the YAML file at path on top of Default, loads .env if present,
// applies environment overrides and validates the result. An empty path uses
// the defaults plus environment.
func Load(path string) (Config, error) {
	cfg := Default()

	if err := loadDotEnv(".env"); err != nil {
		return Config{}, err
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := decode(data, &cfg); err != nil {
			return Config{}, err
		}
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func decode(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parse config: %w", err)
	}
	return nil
}

// loadDotEnv loads a .env file without overriding variables already set.
func loadDotEnv(path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func applyEnv(c *Config) {
	c.Credentials.Username = getEnv("CRYPTOAGENT_USERNAME", c.Credentials.Username)
	c.Credentials.Password = getEnv("CRYPTOAGENT_PASSWORD", c.Credentials.Password)
	c.Credentials.TOTPSecret = getEnv("CRYPTOAGENT_TOTP_SECRET", c.Credentials.TOTPSecret)

	c.Storage.RedisAddr = getEnv("REDIS_ADDR", c.Storage.RedisAddr)
	c.Storage.RedisPassword = getEnv("REDIS_PASSWORD", c.Storage.RedisPassword)
	c.Storage.SQLitePath = getEnv("SQLITE_PATH", c.Storage.SQLitePath)
	c.MetricsAddr = getEnv("METRICS_ADDR", c.MetricsAddr)

	c.Notify.TelegramToken = getEnv("TELEGRAM_BOT_TOKEN", c.Notify.TelegramToken)
	c.Notify.TelegramChatID = getEnv("TELEGRAM_CHAT_ID", c.Notify.TelegramChatID)
	c.Notify.WebhookURL = getEnv("WEBHOOK_URL", c.Notify.WebhookURL)

	if v, ok := getBool("CRYPTOAGENT_DEBUG"); ok {
		c.DebugEnabled = v
	}
	if v, ok := getBool("CRYPTOAGENT_TRADES_ENABLED"); ok {
		c.TradesEnabled = v
	}
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func getBool(key string) (bool, bool) {
	v := os.Getenv(key)
	if v == "" {
		return false, false
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, false
	}
	return b, true
}

// Validate reports every problem found, joined.
func (c Config) Validate() error {
	var errs []error
	bad := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalid}, args...)...))
	}

	if len(c.Instruments) == 0 {
		bad("at least one instrument is required")
	}
	seen := make(map[string]bool, len(c.Instruments))
	for _, in := range c.Instruments {
		if in.Pair == "" || in.Symbol == "" {
			bad("instrument needs both pair and symbol: %+v", in)
			continue
		}
		if seen[in.Pair] {
			bad("duplicate instrument %s", in.Pair)
		}
		seen[in.Pair] = true
	}

	if _, err := strategy.ParseBuy(c.Strategies.Buy); err != nil {
		errs = append(errs, fmt.Errorf("%w: strategies.buy: %w", ErrInvalid, err))
	}
	if _, err := strategy.ParseSell(c.Strategies.Sell); err != nil {
		errs = append(errs, fmt.Errorf("%w: strategies.sell: %w", ErrInvalid, err))
	}

	p := c.Periods
	for name, v := range map[string]int{
		"sma_fast": p.SMAFast, "sma_slow": p.SMASlow, "macd_fast": p.MACDFast,
		"macd_slow": p.MACDSlow, "macd_signal": p.MACDSignal, "rsi": p.RSI,
	} {
		if v <= 0 {
			bad("periods.%s must be positive", name)
		}
	}
	if p.SMAFast >= p.SMASlow {
		bad("periods.sma_fast must be shorter than periods.sma_slow")
	}
	if p.MACDFast >= p.MACDSlow {
		bad("periods.macd_fast must be shorter than periods.macd_slow")
	}

	if c.BuyBelowMovingAverage < 0 || c.BuyBelowMovingAverage >= 1 {
		bad("buy_below_moving_average must be in [0, 1)")
	}
	if c.ProfitPercentage < 0 {
		bad("profit_percentage must not be negative")
	}
	if c.RSIThreshold.Buy < 0 || c.RSIThreshold.Buy > 100 || c.RSIThreshold.Sell < 0 || c.RSIThreshold.Sell > 100 {
		bad("rsi_threshold values must be in [0, 100]")
	}
	if c.BuyAmountPerTrade < 0 || c.MinTradeAmount < 0 || c.Reserve < 0 {
		bad("buy_amount_per_trade, min_trade_amount and reserve must not be negative")
	}
	if c.StopLossThreshold <= 0 || c.StopLossThreshold >= 1 {
		bad("stop_loss_threshold must be in (0, 1)")
	}
	if c.UpdateInterval <= 0 {
		bad("update_interval must be positive")
	}
	if c.CallTimeout < 0 {
		bad("call_timeout must not be negative")
	}
	if c.MaxDataRows < 2 {
		bad("max_data_rows must be at least 2")
	}
	if c.StaleRepeatLimit < 0 || c.MinConsecutiveSamples < 0 {
		bad("stale_repeat_limit and min_consecutive_samples must not be negative")
	}
	if c.SaveCharts && c.ChartDir == "" {
		bad("chart_dir is required when save_charts is set")
	}

	switch strings.ToLower(c.Storage.Backend) {
	case "sqlite":
		if c.Storage.SQLitePath == "" {
			bad("storage.sqlite_path is required for the sqlite backend")
		}
	case "redis":
		if c.Storage.RedisAddr == "" {
			bad("storage.redis_addr is required for the redis backend")
		}
	case "memory":
	default:
		bad("storage.backend must be sqlite, redis or memory, got %q", c.Storage.Backend)
	}

	if (c.Notify.TelegramToken == "") != (c.Notify.TelegramChatID == "") {
		bad("notify.telegram_token and notify.telegram_chat_id must be set together")
	}

	if c.DebugEnabled && c.PaperBalance <= 0 {
		bad("paper_balance must be positive in debug mode")
	}
	if !c.DebugEnabled && (c.Credentials.Username == "" || c.Credentials.Password == "") {
		bad("credentials are required when debug_enabled is false")
	}

	return errors.Join(errs...)
}

// SaveToFile writes the configuration as YAML. Secrets are left out.
func (c Config) SaveToFile(path string) error {
	c.Credentials = Credentials{}
	c.Storage.RedisPassword = ""
	c.Notify = Notify{}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}
