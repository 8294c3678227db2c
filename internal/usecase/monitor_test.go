package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vitos/pivot_alert_bot/internal/domain"
	"github.com/vitos/pivot_alert_bot/internal/markethours"
)

type stubMarket struct {
	candles    map[string][]*domain.Candle // consumed front to back
	ohlc       map[string]*domain.OHLC
	monitoring bool
}

func (s *stubMarket) GetHistoricalOHLC(_ context.Context, symbol string, _ time.Time) (*domain.OHLC, error) {
	if o, ok := s.ohlc[symbol]; ok {
		return o, nil
	}
	return nil, errors.New("no historical data")
}

func (s *stubMarket) GetLatestCandle(_ context.Context, symbol, _ string) (*domain.Candle, error) {
	q := s.candles[symbol]
	if len(q) == 0 {
		return nil, errors.New("no candle")
	}
	c := q[0]
	s.candles[symbol] = q[1:]
	return c, nil
}

func (s *stubMarket) SetMonitoringMode() { s.monitoring = true }

type stubSink struct {
	alerts   []*domain.Alert
	messages []string
	fail     bool
}

func (s *stubSink) SendAlert(_ context.Context, a *domain.Alert) error {
	if s.fail {
		return errors.New("delivery down")
	}
	s.alerts = append(s.alerts, a)
	return nil
}

func (s *stubSink) SendMessage(_ context.Context, text string) error {
	if s.fail {
		return errors.New("delivery down")
	}
	s.messages = append(s.messages, text)
	return nil
}

type stubRepo struct {
	alerts []*domain.StoredAlert
	levels []*domain.DailyLevels
}

func (r *stubRepo) SaveAlert(_ context.Context, symbol string, kind domain.LevelKind, levelValue, touchPrice float64, ts int64) error {
	r.alerts = append(r.alerts, &domain.StoredAlert{
		Symbol: symbol, Kind: kind, LevelValue: levelValue, TouchPrice: touchPrice, Timestamp: ts,
	})
	return nil
}

func (r *stubRepo) SaveDailyLevels(_ context.Context, rec *domain.DailyLevels) error {
	r.levels = append(r.levels, rec)
	return nil
}

func (r *stubRepo) ListAlerts(_ context.Context, _ int) ([]*domain.StoredAlert, error) {
	return r.alerts, nil
}

func newTestMonitor(t *testing.T, market *stubMarket, sink *stubSink, repo *stubRepo) (*Monitor, *time.Time) {
	t.Helper()
	hours, err := markethours.New("09:15", "15:30", "09:00", "15:45")
	require.NoError(t, err)

	// Monday during market hours.
	clock := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	m := NewMonitor(
		market, sink, repo,
		NewTouchDetector(0.25, zap.NewNop()),
		NewCooldownTracker(30*time.Minute, zap.NewNop()),
		hours,
		MonitorConfig{Resolution: "1", CheckInterval: time.Minute},
		zap.NewNop(),
	)
	m.now = func() time.Time { return clock }
	m.sleep = func(context.Context, time.Duration) {}
	return m, &clock
}

// testLevels puts R1 at 100.10, S1 at 99.90 and the pivot far away so a
// single candle can straddle both key levels.
func testLevels() domain.LevelSet {
	return domain.LevelSet{Pivot: 105, TC: 106, BC: 104, R1: 100.10, S1: 99.90}
}

func TestMonitor_AlertOnTouch(t *testing.T) {
	market := &stubMarket{candles: map[string][]*domain.Candle{
		"NSE:RELIANCE-EQ": {{Timestamp: 1000, Open: 100.05, High: 100.12, Low: 99.70, Close: 100.0}},
	}}
	sink := &stubSink{}
	repo := &stubRepo{}
	m, _ := newTestMonitor(t, market, sink, repo)
	m.Register("NSE:RELIANCE-EQ", "Reliance", testLevels(), domain.OHLC{Source: domain.SourceHistorical})

	m.ScanOnce(context.Background())

	require.Len(t, sink.alerts, 1)
	assert.Equal(t, domain.LevelR1, sink.alerts[0].Kind)
	assert.Equal(t, 1, sink.alerts[0].TotalTouches)
	require.Len(t, repo.alerts, 1)
	assert.Equal(t, int64(1000), repo.alerts[0].Timestamp)
}

func TestMonitor_PriorityPrefersR1(t *testing.T) {
	// Candle brackets both S1 and R1 within tolerance; R1 outranks S1.
	market := &stubMarket{candles: map[string][]*domain.Candle{
		"NSE:TCS-EQ": {{Timestamp: 1000, Open: 100, High: 100.15, Low: 99.86, Close: 100.0}},
	}}
	sink := &stubSink{}
	m, _ := newTestMonitor(t, market, sink, &stubRepo{})
	m.Register("NSE:TCS-EQ", "TCS", testLevels(), domain.OHLC{})

	m.ScanOnce(context.Background())

	require.Len(t, sink.alerts, 1)
	assert.Equal(t, domain.LevelR1, sink.alerts[0].Kind)
}

func TestMonitor_SecondaryTouchesBecomePending(t *testing.T) {
	// One candle brackets R1 and S1; the R1 alert is delivered and the
	// S1 touch must survive as a pending touch in the new window.
	market := &stubMarket{candles: map[string][]*domain.Candle{
		"NSE:SBIN-EQ": {{Timestamp: 1000, Open: 100, High: 100.15, Low: 99.86, Close: 100.0}},
	}}
	sink := &stubSink{}
	m, _ := newTestMonitor(t, market, sink, &stubRepo{})
	m.Register("NSE:SBIN-EQ", "State Bank", testLevels(), domain.OHLC{})

	m.ScanOnce(context.Background())

	require.Len(t, sink.alerts, 1)
	assert.Equal(t, domain.LevelR1, sink.alerts[0].Kind)

	count, kinds := m.cooldowns.PendingSummary("NSE:SBIN-EQ")
	assert.Equal(t, 1, count)
	assert.Equal(t, []domain.LevelKind{domain.LevelS1}, kinds)
	assert.Equal(t, 2, m.cooldowns.TotalTouches("NSE:SBIN-EQ"))
}

func TestMonitor_StaleCandleIgnored(t *testing.T) {
	market := &stubMarket{candles: map[string][]*domain.Candle{
		"NSE:TCS-EQ": {
			{Timestamp: 1000, Open: 100.05, High: 100.12, Low: 99.95, Close: 100.0},
			{Timestamp: 1000, Open: 100.05, High: 100.12, Low: 99.95, Close: 100.0},
			{Timestamp: 900, Open: 100.05, High: 100.12, Low: 99.95, Close: 100.0},
		},
	}}
	sink := &stubSink{}
	m, _ := newTestMonitor(t, market, sink, &stubRepo{})
	m.Register("NSE:TCS-EQ", "TCS", testLevels(), domain.OHLC{})

	m.ScanOnce(context.Background())
	m.ScanOnce(context.Background())
	m.ScanOnce(context.Background())

	assert.Len(t, sink.alerts, 1)
}

// dipCandle stays clear of every level; touchCandle reaches R1 from
// below so the directional confirmation against the preceding dip holds.
func dipCandle(ts int64) *domain.Candle {
	return &domain.Candle{Timestamp: ts, Open: 99.97, High: 100.00, Low: 99.96, Close: 99.98}
}

func touchCandle(ts int64) *domain.Candle {
	return &domain.Candle{Timestamp: ts, Open: 99.99, High: 100.12, Low: 99.98, Close: 100.08}
}

func TestMonitor_CooldownSuppressesAndFolds(t *testing.T) {
	market := &stubMarket{candles: map[string][]*domain.Candle{
		"NSE:INFY-EQ": {
			touchCandle(1000), // alert, opens the window
			dipCandle(1060), touchCandle(1120), // suppressed
			dipCandle(1180), touchCandle(1240), // suppressed
			dipCandle(3300), touchCandle(3360), // next alert
		},
	}}
	sink := &stubSink{}
	m, clock := newTestMonitor(t, market, sink, &stubRepo{})
	m.Register("NSE:INFY-EQ", "Infosys", testLevels(), domain.OHLC{})

	m.ScanOnce(context.Background())
	require.Len(t, sink.alerts, 1)

	*clock = clock.Add(5 * time.Minute)
	m.ScanOnce(context.Background()) // dip
	m.ScanOnce(context.Background()) // suppressed touch
	*clock = clock.Add(5 * time.Minute)
	m.ScanOnce(context.Background()) // dip
	m.ScanOnce(context.Background()) // suppressed touch
	require.Len(t, sink.alerts, 1)

	*clock = clock.Add(25 * time.Minute) // window elapsed
	m.ScanOnce(context.Background())     // dip
	m.ScanOnce(context.Background())     // touch
	require.Len(t, sink.alerts, 2)
	// 1 committed + 2 pending folded + this alert.
	assert.Equal(t, 4, sink.alerts[1].TotalTouches)
	assert.Equal(t, []domain.LevelKind{domain.LevelR1}, sink.alerts[1].PendingKinds)
}

func TestMonitor_DeliveryFailureKeepsWindowOpen(t *testing.T) {
	market := &stubMarket{candles: map[string][]*domain.Candle{
		"NSE:INFY-EQ": {{Timestamp: 1000, Open: 100.05, High: 100.12, Low: 99.95, Close: 100.0}},
	}}
	sink := &stubSink{fail: true}
	repo := &stubRepo{}
	m, clock := newTestMonitor(t, market, sink, repo)
	m.Register("NSE:INFY-EQ", "Infosys", testLevels(), domain.OHLC{})

	m.ScanOnce(context.Background())

	assert.Empty(t, sink.alerts)
	assert.Empty(t, repo.alerts, "failed deliveries are not persisted")
	// The cooldown record was written before the send attempt.
	assert.False(t, m.cooldowns.CanAlert("NSE:INFY-EQ", *clock))
}

func TestMonitor_InitializeDailyLevels(t *testing.T) {
	market := &stubMarket{
		candles: map[string][]*domain.Candle{},
		ohlc: map[string]*domain.OHLC{
			"NSE:RELIANCE-EQ": {Open: 99, High: 101, Low: 98, Close: 100, Source: domain.SourceHistorical},
		},
	}
	sink := &stubSink{}
	repo := &stubRepo{}
	m, _ := newTestMonitor(t, market, sink, repo)

	instruments := []domain.Instrument{
		{Symbol: "NSE:RELIANCE-EQ", Name: "Reliance"},
		{Symbol: "NSE:NODATA-EQ", Name: "No Data"},
	}
	err := m.InitializeDailyLevels(context.Background(), instruments)
	require.NoError(t, err)

	assert.Equal(t, []string{"NSE:RELIANCE-EQ"}, m.Symbols())
	require.Len(t, repo.levels, 1)
	assert.InDelta(t, 99.666, repo.levels[0].Levels.Pivot, 0.001)
	assert.True(t, market.monitoring, "fetcher switched to monitoring budget")
	require.Len(t, sink.messages, 1)
	assert.Contains(t, sink.messages[0], "1/2")
}

func TestMonitor_InitializeDailyLevels_AllFail(t *testing.T) {
	market := &stubMarket{candles: map[string][]*domain.Candle{}, ohlc: map[string]*domain.OHLC{}}
	m, _ := newTestMonitor(t, market, &stubSink{}, &stubRepo{})

	err := m.InitializeDailyLevels(context.Background(), []domain.Instrument{{Symbol: "NSE:X-EQ"}})
	assert.Error(t, err)
}

func TestMonitor_ResetDailyData(t *testing.T) {
	candle := &domain.Candle{Timestamp: 1000, Open: 100.05, High: 100.12, Low: 99.95, Close: 100.0}
	market := &stubMarket{candles: map[string][]*domain.Candle{
		"NSE:TCS-EQ": {candle, candle},
	}}
	sink := &stubSink{}
	m, clock := newTestMonitor(t, market, sink, &stubRepo{})
	m.Register("NSE:TCS-EQ", "TCS", testLevels(), domain.OHLC{})

	m.ScanOnce(context.Background())
	require.Len(t, sink.alerts, 1)

	m.ResetDailyData()
	*clock = clock.Add(time.Minute)

	// Same timestamp passes again after the watermark reset, and the
	// cooldown record is gone.
	m.ScanOnce(context.Background())
	assert.Len(t, sink.alerts, 2)
}

func TestMonitor_DedupGC(t *testing.T) {
	market := &stubMarket{candles: map[string][]*domain.Candle{
		"NSE:TCS-EQ": {touchCandle(1000), dipCandle(4940), touchCandle(5000)},
	}}
	sink := &stubSink{}
	m, clock := newTestMonitor(t, market, sink, &stubRepo{})
	m.Register("NSE:TCS-EQ", "TCS", testLevels(), domain.OHLC{})

	m.ScanOnce(context.Background())
	m.ScanOnce(context.Background()) // dip, no touch
	*clock = clock.Add(35 * time.Minute)
	m.ScanOnce(context.Background())
	require.Len(t, sink.alerts, 2)

	m.mu.Lock()
	st := m.states["NSE:TCS-EQ"]
	_, oldKept := st.alerted[buildAlertID("NSE:TCS-EQ", []domain.LevelKind{domain.LevelR1}, 1000)]
	_, freshKept := st.alerted[buildAlertID("NSE:TCS-EQ", []domain.LevelKind{domain.LevelR1}, 5000)]
	m.mu.Unlock()

	assert.False(t, oldKept, "entries older than the retention window are dropped")
	assert.True(t, freshKept)
}

func TestMonitor_StatusSnapshot(t *testing.T) {
	m, clock := newTestMonitor(t, &stubMarket{candles: map[string][]*domain.Candle{}}, &stubSink{}, &stubRepo{})
	m.Register("NSE:TCS-EQ", "TCS", testLevels(), domain.OHLC{Source: domain.SourceQuotesEstimate})

	report := m.Status(*clock)
	assert.Equal(t, "open", report.MarketStatus)
	assert.Equal(t, 1, report.SymbolCount)
	require.Len(t, report.Symbols, 1)
	assert.Equal(t, "TCS", report.Symbols[0].Name)
	assert.Equal(t, domain.SourceQuotesEstimate, report.Symbols[0].OHLCSource)
	assert.True(t, report.Symbols[0].Cooldown.CanAlert)
}

func TestMonitor_DailyResetRunsOncePerDay(t *testing.T) {
	m, clock := newTestMonitor(t, &stubMarket{candles: map[string][]*domain.Candle{}}, &stubSink{}, &stubRepo{})
	evening := time.Date(2026, 3, 2, 16, 0, 0, 0, time.UTC)
	*clock = evening

	assert.True(t, m.maybeDailyReset(evening))
	assert.False(t, m.maybeDailyReset(evening.Add(5*time.Minute)))
	assert.True(t, m.maybeDailyReset(evening.Add(24*time.Hour)))
}
