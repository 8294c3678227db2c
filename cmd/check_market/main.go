// Command check_market verifies API and Telegram connectivity: it pulls
// the latest candle for the first configured stock and sends a test
// message to the configured chat.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/joho/godotenv"

	"github.com/vitos/pivot_alert_bot/internal/config"
	"github.com/vitos/pivot_alert_bot/internal/infrastructure/logger"
	"github.com/vitos/pivot_alert_bot/internal/infrastructure/marketdata"
	"github.com/vitos/pivot_alert_bot/internal/infrastructure/notifier"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	skipTelegram := flag.Bool("skip-telegram", false, "only check market data")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	zlog, err := logger.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer zlog.Sync()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	market := marketdata.NewClient(marketdata.Config{
		AppID:       cfg.Fyers.AppID,
		AccessToken: cfg.Fyers.AccessToken,
		BaseURL:     cfg.Fyers.BaseURL,
	}, zlog)

	stock := cfg.Stocks[0]
	candle, err := market.GetLatestCandle(ctx, stock.Symbol, cfg.Monitoring.Resolution)
	if err != nil {
		log.Fatalf("market data check failed for %s: %v", stock.Symbol, err)
	}
	fmt.Printf("✅ market data OK: %s close=%.2f at %s\n", stock.Symbol, candle.Close, candle.TimeStr)

	if *skipTelegram {
		return
	}

	telegram, err := notifier.NewTelegram(cfg.Telegram.BotToken, cfg.Telegram.ChatID, 0, zlog)
	if err != nil {
		log.Fatalf("telegram init failed: %v", err)
	}
	text := fmt.Sprintf("🔧 Connectivity check OK\n%s close ₹%.2f", stock.Symbol, candle.Close)
	if err := telegram.SendMessage(ctx, text); err != nil {
		log.Fatalf("telegram check failed: %v", err)
	}
	fmt.Println("✅ telegram OK")
}
