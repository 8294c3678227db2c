package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/vitos/pivot_alert_bot/internal/config"
	"github.com/vitos/pivot_alert_bot/internal/infrastructure/logger"
	"github.com/vitos/pivot_alert_bot/internal/infrastructure/marketdata"
	"github.com/vitos/pivot_alert_bot/internal/infrastructure/notifier"
	"github.com/vitos/pivot_alert_bot/internal/infrastructure/storage"
	"github.com/vitos/pivot_alert_bot/internal/markethours"
	"github.com/vitos/pivot_alert_bot/internal/usecase"
	"github.com/vitos/pivot_alert_bot/internal/web"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	var zlog *zap.Logger
	if cfg.LogFile != "" {
		zlog, err = logger.NewFileLogger(cfg.LogFile, cfg.LogLevel)
	} else {
		zlog, err = logger.NewLogger(cfg.LogLevel)
	}
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer zlog.Sync()

	store, err := storage.NewSQLiteStore(cfg.DatabasePath)
	if err != nil {
		zlog.Fatal("storage init failed", zap.Error(err))
	}
	defer store.Close()

	cooldown := time.Duration(cfg.Monitoring.CooldownMinutes) * time.Minute
	telegram, err := notifier.NewTelegram(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cooldown, zlog)
	if err != nil {
		zlog.Fatal("telegram init failed", zap.Error(err))
	}

	hours, err := markethours.New(
		cfg.MarketHours.Start, cfg.MarketHours.End,
		cfg.MarketHours.PreMarketStart, cfg.MarketHours.PostMarketEnd)
	if err != nil {
		zlog.Fatal("market hours config invalid", zap.Error(err))
	}

	market := marketdata.NewClient(marketdata.Config{
		AppID:       cfg.Fyers.AppID,
		AccessToken: cfg.Fyers.AccessToken,
		BaseURL:     cfg.Fyers.BaseURL,
	}, zlog)

	monitor := usecase.NewMonitor(
		market, telegram, store,
		usecase.NewTouchDetector(cfg.Monitoring.TolerancePercent, zlog),
		usecase.NewCooldownTracker(cooldown, zlog),
		hours,
		usecase.MonitorConfig{
			Resolution:    cfg.Monitoring.Resolution,
			CheckInterval: time.Duration(cfg.Monitoring.CheckIntervalSeconds) * time.Second,
		},
		zlog,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	zlog.Info("computing daily levels", zap.Int("stocks", len(cfg.Stocks)))
	if err := monitor.InitializeDailyLevels(ctx, cfg.Stocks); err != nil {
		zlog.Fatal("daily level initialization failed", zap.Error(err))
	}

	startup := fmt.Sprintf(
		"🤖 *Pivot Alert Bot Started*\n\n📋 Watching %d stocks\n🕐 Market hours: %s - %s\n⏳ Cooldown: %s",
		len(cfg.Stocks), cfg.MarketHours.Start, cfg.MarketHours.End, cooldown)
	if err := telegram.SendMessage(ctx, startup); err != nil {
		zlog.Warn("startup message not delivered", zap.Error(err))
	}

	sched := usecase.NewScheduler(zlog)
	sched.DailyAt("daily-level-recompute", "08:00", func() {
		if err := monitor.InitializeDailyLevels(ctx, cfg.Stocks); err != nil {
			zlog.Error("daily level recompute failed", zap.Error(err))
		}
	})
	go sched.Start(ctx)

	server := web.NewServer(cfg.WebPort, store, monitor, zlog)
	go func() {
		if err := server.Start(); err != nil {
			zlog.Error("web server failed", zap.Error(err))
		}
	}()

	go monitor.Run(ctx)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	zlog.Info("shutting down")
	monitor.Stop()
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		zlog.Error("web server shutdown failed", zap.Error(err))
	}
}
