// Package config exposes strongly typed application configuration structs loaded from YAML.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// App captures process-wide runtime settings such as name, environment, metrics, and logging levels.
type App struct {
	Name        string `yaml:"name"`
	Env         string `yaml:"env"`
	MetricsAddr string `yaml:"metrics_addr"`
	LogLevel    string `yaml:"log_level"`
}

// Exchange describes the public KuCoin surfaces the bot talks to and the
// instrument universe it may select from.
type Exchange struct {
	RESTBaseURL    string   `yaml:"rest_base_url"`
	QuoteCurrency  string   `yaml:"quote_currency"`
	MemeSymbols    []string `yaml:"meme_symbols"`
	NumInstruments int      `yaml:"num_instruments"`
	RetryAttempts  int      `yaml:"retry_attempts"`
	RetryDelayMs   int      `yaml:"retry_delay_ms"`
}

// Feed tunes the streaming client: token handshake retries, heartbeat,
// reconnection, and the fallback price poller.
type Feed struct {
	TokenRetryAttempts int `yaml:"token_retry_attempts"`
	TokenRetryDelayMs  int `yaml:"token_retry_delay_ms"`
	ReconnectDelayMs   int `yaml:"reconnect_delay_ms"`
	PingIntervalMs     int `yaml:"ping_interval_ms"`
	SubscribeStaggerMs int `yaml:"subscribe_stagger_ms"`
	PollIntervalMs     int `yaml:"poll_interval_ms"`
	ReadTimeoutMs      int `yaml:"read_timeout_ms"`
}

// Trading groups every simulation knob: bankroll, trade sizing, thresholds,
// fees, cooldown, and the reference-value window.
type Trading struct {
	InitialBalance       float64 `yaml:"initial_balance"`
	InitialBuyUSD        float64 `yaml:"initial_buy_usd"`
	TradeAmountUSD       float64 `yaml:"trade_amount_usd"`
	MaxAllocPerSymbol    float64 `yaml:"max_alloc_per_symbol"`
	BuyThresholdPct      float64 `yaml:"buy_threshold_pct"`
	SellThresholdBasePct float64 `yaml:"sell_threshold_base_pct"`
	SellThresholdHighPct float64 `yaml:"sell_threshold_high_pct"`
	ProfitHighMark       float64 `yaml:"profit_high_mark"`
	FeePct               float64 `yaml:"fee_pct"`
	CooldownMs           int     `yaml:"cooldown_ms"`
	ThresholdTolerance   float64 `yaml:"threshold_tolerance"`
	TickIntervalMs       int     `yaml:"tick_interval_ms"`
	HistoryWindow        int     `yaml:"history_window"`
	InitialRetryAttempts int     `yaml:"initial_retry_attempts"`
	InitialRetryDelayMs  int     `yaml:"initial_retry_delay_ms"`
}

// Config collects every configuration leaf for easy marshaling from YAML.
type Config struct {
	App      App      `yaml:"app"`
	Exchange Exchange `yaml:"exchange"`
	Feed     Feed     `yaml:"feed"`
	Trading  Trading  `yaml:"trading"`
}

// Default returns the configuration the simulation originally shipped with:
// $50 bankroll, $1 trades capped at $10 per coin, 0.1% fees, a 30-sample
// reference window, and 5s cooldown/reconnect delays.
func Default() *Config {
	return &Config{
		App: App{
			Name:        "meme-trader",
			Env:         "dev",
			MetricsAddr: ":9100",
			LogLevel:    "info",
		},
		Exchange: Exchange{
			RESTBaseURL:   "https://api.kucoin.com",
			QuoteCurrency: "USDT",
			MemeSymbols: []string{
				"DOGE", "SHIB", "PEPE", "BONK", "FLOKI", "WIF", "BRETT", "MOG",
				"CRO", "GME", "TRUMP", "BOME", "DEGEN", "MEW", "SLERF", "MYRO",
				"MAGA", "TURBO", "MOTHER", "KITTY",
			},
			NumInstruments: 5,
			RetryAttempts:  3,
			RetryDelayMs:   2000,
		},
		Feed: Feed{
			TokenRetryAttempts: 3,
			TokenRetryDelayMs:  2000,
			ReconnectDelayMs:   5000,
			PingIntervalMs:     10000,
			SubscribeStaggerMs: 100,
			PollIntervalMs:     15000,
			ReadTimeoutMs:      30000,
		},
		Trading: Trading{
			InitialBalance:       50.0,
			InitialBuyUSD:        1.0,
			TradeAmountUSD:       1.0,
			MaxAllocPerSymbol:    10.0,
			BuyThresholdPct:      0.005,
			SellThresholdBasePct: 0.005,
			SellThresholdHighPct: 0.025,
			ProfitHighMark:       0.5,
			FeePct:               0.001,
			CooldownMs:           5000,
			ThresholdTolerance:   0.0001,
			TickIntervalMs:       1000,
			HistoryWindow:        30,
			InitialRetryAttempts: 20,
			InitialRetryDelayMs:  2000,
		},
	}
}

// Load reads a YAML file from disk and hydrates a Config struct on top of
// the defaults, so partial files only override what they name.
func Load(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	config := Default()
	if err := yaml.NewDecoder(file).Decode(config); err != nil {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}
	return config, nil
}

// Save persists a Config struct to disk as YAML.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal yaml: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

func ms(v int) time.Duration { return time.Duration(v) * time.Millisecond }

// Duration accessors keep call sites free of unit conversions.

func (e Exchange) RetryDelay() time.Duration       { return ms(e.RetryDelayMs) }
func (f Feed) TokenRetryDelay() time.Duration      { return ms(f.TokenRetryDelayMs) }
func (f Feed) ReconnectDelay() time.Duration       { return ms(f.ReconnectDelayMs) }
func (f Feed) PingInterval() time.Duration         { return ms(f.PingIntervalMs) }
func (f Feed) SubscribeStagger() time.Duration     { return ms(f.SubscribeStaggerMs) }
func (f Feed) PollInterval() time.Duration         { return ms(f.PollIntervalMs) }
func (f Feed) ReadTimeout() time.Duration          { return ms(f.ReadTimeoutMs) }
func (t Trading) Cooldown() time.Duration          { return ms(t.CooldownMs) }
func (t Trading) TickInterval() time.Duration      { return ms(t.TickIntervalMs) }
func (t Trading) InitialRetryDelay() time.Duration { return ms(t.InitialRetryDelayMs) }
