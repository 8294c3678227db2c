package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitos/pivot_alert_bot/internal/config"
	"github.com/vitos/pivot_alert_bot/internal/domain"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const validYAML = `
fyers:
  app_id: app
  access_token: token
telegram:
  bot_token: bot
  chat_id: 42
stocks:
  - symbol: NSE:RELIANCE-EQ
    name: Reliance
`

func TestLoad_DefaultsApplied(t *testing.T) {
	cfg, err := config.Load(writeConfig(t, validYAML))
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 0.25, cfg.Monitoring.TolerancePercent)
	assert.Equal(t, 30, cfg.Monitoring.CooldownMinutes)
	assert.Equal(t, "1", cfg.Monitoring.Resolution)
	assert.Equal(t, 60, cfg.Monitoring.CheckIntervalSeconds)
	assert.Equal(t, "09:15", cfg.MarketHours.Start)
	assert.Equal(t, 8080, cfg.WebPort)
}

func TestLoad_ToleranceFloor(t *testing.T) {
	cfg, err := config.Load(writeConfig(t, validYAML+`
monitoring:
  tolerance_percent: 0.05
`))
	require.NoError(t, err)
	assert.Equal(t, 0.15, cfg.Monitoring.TolerancePercent)
}

func TestLoad_IntervalFloorByResolution(t *testing.T) {
	cfg, err := config.Load(writeConfig(t, validYAML+`
monitoring:
  resolution: "1"
  check_interval_seconds: 10
`))
	require.NoError(t, err)
	assert.Equal(t, 60, cfg.Monitoring.CheckIntervalSeconds)

	cfg, err = config.Load(writeConfig(t, validYAML+`
monitoring:
  resolution: "15S"
  check_interval_seconds: 10
`))
	require.NoError(t, err)
	assert.Equal(t, 30, cfg.Monitoring.CheckIntervalSeconds)
}

func TestLoad_MissingCredentialsFatal(t *testing.T) {
	_, err := config.Load(writeConfig(t, `
telegram:
  bot_token: bot
  chat_id: 42
stocks:
  - symbol: NSE:X-EQ
`))
	assert.ErrorContains(t, err, "fyers credentials")
}

func TestLoad_EmptyStocksFatal(t *testing.T) {
	_, err := config.Load(writeConfig(t, `
fyers:
  app_id: app
  access_token: token
telegram:
  bot_token: bot
  chat_id: 42
`))
	assert.ErrorContains(t, err, "no stocks")
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("FYERS_APP_ID", "env-app")
	t.Setenv("TELEGRAM_CHAT_ID", "99")
	t.Setenv("STOCKS_CONFIG", "NSE:TCS:Tata Consultancy, NSE:INFY:Infosys")

	cfg, err := config.Load(writeConfig(t, validYAML))
	require.NoError(t, err)

	assert.Equal(t, "env-app", cfg.Fyers.AppID)
	assert.Equal(t, int64(99), cfg.Telegram.ChatID)
	assert.Equal(t, []domain.Instrument{
		{Symbol: "NSE:TCS-EQ", Name: "Tata Consultancy"},
		{Symbol: "NSE:INFY-EQ", Name: "Infosys"},
	}, cfg.Stocks)
}

func TestParseStocksEnv_SkipsMalformed(t *testing.T) {
	stocks := config.ParseStocksEnv("NSE:TCS:TCS,garbage,:X:Y,NSE:SBIN:State Bank")
	assert.Equal(t, []domain.Instrument{
		{Symbol: "NSE:TCS-EQ", Name: "TCS"},
		{Symbol: "NSE:SBIN-EQ", Name: "State Bank"},
	}, stocks)
}

func TestLoad_MissingFileUsesDefaultsAndEnv(t *testing.T) {
	t.Setenv("FYERS_APP_ID", "env-app")
	t.Setenv("FYERS_ACCESS_TOKEN", "env-token")
	t.Setenv("TELEGRAM_BOT_TOKEN", "env-bot")
	t.Setenv("TELEGRAM_CHAT_ID", "7")
	t.Setenv("STOCKS_CONFIG", "NSE:TCS:TCS")

	cfg, err := config.Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "env-app", cfg.Fyers.AppID)
	require.Len(t, cfg.Stocks, 1)
}
