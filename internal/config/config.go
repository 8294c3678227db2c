package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/vitos/pivot_alert_bot/internal/domain"
)

const (
	defaultTolerancePct  = 0.25
	minTolerancePct      = 0.15
	defaultCooldownMin   = 30
	defaultResolution    = "1"
	defaultCheckInterval = 60
	// Interval floors by resolution class: sub-minute candles may be
	// polled every 30s, minute candles no faster than once a minute.
	minIntervalSeconds       = 30
	minIntervalMinuteCandles = 60
)

type FyersConfig struct {
	AppID       string `yaml:"app_id"`
	AccessToken string `yaml:"access_token"`
	BaseURL     string `yaml:"base_url"`
}

type TelegramConfig struct {
	BotToken string `yaml:"bot_token"`
	ChatID   int64  `yaml:"chat_id"`
}

type MonitoringConfig struct {
	TolerancePercent     float64 `yaml:"tolerance_percent"`
	CooldownMinutes      int     `yaml:"cooldown_minutes"`
	Resolution           string  `yaml:"resolution"`
	CheckIntervalSeconds int     `yaml:"check_interval_seconds"`
}

type MarketHoursConfig struct {
	Start          string `yaml:"start"`
	End            string `yaml:"end"`
	PreMarketStart string `yaml:"pre_market_start"`
	PostMarketEnd  string `yaml:"post_market_end"`
}

type Config struct {
	LogLevel     string              `yaml:"log_level"`
	LogFile      string              `yaml:"log_file"`
	DatabasePath string              `yaml:"database_path"`
	WebPort      int                 `yaml:"web_port"`
	Fyers        FyersConfig         `yaml:"fyers"`
	Telegram     TelegramConfig      `yaml:"telegram"`
	Monitoring   MonitoringConfig    `yaml:"monitoring"`
	MarketHours  MarketHoursConfig   `yaml:"market_hours"`
	Stocks       []domain.Instrument `yaml:"stocks"`
}

func defaults() *Config {
	return &Config{
		LogLevel:     "info",
		DatabasePath: "data/alerts.db",
		WebPort:      8080,
		Monitoring: MonitoringConfig{
			TolerancePercent:     defaultTolerancePct,
			CooldownMinutes:      defaultCooldownMin,
			Resolution:           defaultResolution,
			CheckIntervalSeconds: defaultCheckInterval,
		},
		MarketHours: MarketHoursConfig{
			Start:          "09:15",
			End:            "15:30",
			PreMarketStart: "09:00",
			PostMarketEnd:  "15:45",
		},
	}
}

// Load reads the YAML file when present, applies environment overrides,
// clamps values to their floors and validates. A missing file is fine;
// missing credentials or an empty stock list are not.
func Load(path string) (*Config, error) {
	cfg := defaults()

	if data, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	cfg.applyEnv()
	cfg.applyFloors()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("FYERS_APP_ID"); v != "" {
		c.Fyers.AppID = v
	}
	if v := os.Getenv("FYERS_ACCESS_TOKEN"); v != "" {
		c.Fyers.AccessToken = v
	}
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		c.Telegram.BotToken = v
	}
	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.Telegram.ChatID = id
		}
	}
	if v := os.Getenv("STOCKS_CONFIG"); v != "" {
		if stocks := ParseStocksEnv(v); len(stocks) > 0 {
			c.Stocks = stocks
		}
	}
}

// ParseStocksEnv parses the compact "EXCHANGE:SYMBOL:Display Name"
// comma-separated instrument list. Malformed entries are skipped.
func ParseStocksEnv(raw string) []domain.Instrument {
	var out []domain.Instrument
	for _, entry := range strings.Split(raw, ",") {
		parts := strings.SplitN(strings.TrimSpace(entry), ":", 3)
		if len(parts) != 3 || parts[0] == "" || parts[1] == "" {
			continue
		}
		name := strings.TrimSpace(parts[2])
		if name == "" {
			name = parts[1]
		}
		out = append(out, domain.Instrument{
			Symbol: fmt.Sprintf("%s:%s-EQ", parts[0], parts[1]),
			Name:   name,
		})
	}
	return out
}

func (c *Config) applyFloors() {
	if c.Monitoring.TolerancePercent < minTolerancePct {
		c.Monitoring.TolerancePercent = minTolerancePct
	}
	if c.Monitoring.Resolution == "" {
		c.Monitoring.Resolution = defaultResolution
	}
	floor := minIntervalMinuteCandles
	if strings.HasSuffix(strings.ToUpper(c.Monitoring.Resolution), "S") {
		floor = minIntervalSeconds
	}
	if c.Monitoring.CheckIntervalSeconds < floor {
		c.Monitoring.CheckIntervalSeconds = floor
	}
}

func (c *Config) Validate() error {
	if c.Fyers.AppID == "" || c.Fyers.AccessToken == "" {
		return fmt.Errorf("fyers credentials missing (app_id/access_token)")
	}
	if c.Telegram.BotToken == "" || c.Telegram.ChatID == 0 {
		return fmt.Errorf("telegram credentials missing (bot_token/chat_id)")
	}
	if len(c.Stocks) == 0 {
		return fmt.Errorf("no stocks configured")
	}
	return nil
}
