package domain

import (
	"context"
	"time"
)

// MarketData provides candle and historical OHLC values. Implementations
// never panic; any upstream failure surfaces as an error and the caller
// treats it as an absent result for this tick.
type MarketData interface {
	GetHistoricalOHLC(ctx context.Context, symbol string, date time.Time) (*OHLC, error)
	GetLatestCandle(ctx context.Context, symbol, resolution string) (*Candle, error)
}

// AlertSink delivers outbound notifications, returning synchronously.
type AlertSink interface {
	SendAlert(ctx context.Context, alert *Alert) error
	SendMessage(ctx context.Context, text string) error
}

// AlertRepository defines append-only storage for alerts and idempotent
// storage for daily level sets.
type AlertRepository interface {
	SaveAlert(ctx context.Context, symbol string, kind LevelKind, levelValue, touchPrice float64, timestamp int64) error
	SaveDailyLevels(ctx context.Context, rec *DailyLevels) error
	ListAlerts(ctx context.Context, limit int) ([]*StoredAlert, error)
}
