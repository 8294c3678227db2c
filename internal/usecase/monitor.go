package usecase

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vitos/pivot_alert_bot/internal/domain"
	"github.com/vitos/pivot_alert_bot/internal/markethours"
	"go.uber.org/zap"
)

const (
	candleRingSize     = 5
	alertGCWindow      = int64(3600) // seconds of dedup retention
	defaultBatchSize   = 25
	defaultSymbolDelay = 10 * time.Millisecond
	defaultBatchDelay  = 500 * time.Millisecond
	closedPollInterval = 5 * time.Minute
)

// levelPriority orders simultaneous touches; highest wins the message.
var levelPriority = map[domain.LevelKind]int{
	domain.LevelR1:    3,
	domain.LevelS1:    2,
	domain.LevelPivot: 1,
}

// modeSwitcher is implemented by fetchers that distinguish the bulk
// initialization budget from the steady monitoring budget.
type modeSwitcher interface {
	SetMonitoringMode()
}

// symbolState is the per-symbol runtime registry entry. All fields are
// guarded by the Monitor mutex.
type symbolState struct {
	name         string
	levels       domain.LevelSet
	source       domain.OHLC
	lastCandleTS int64
	recent       []domain.Candle
	alerted      map[string]int64 // alertID -> candle timestamp
}

// MonitorConfig tunes the scan loop. Zero values fall back to the
// defaults above; tests shrink the delays.
type MonitorConfig struct {
	Resolution       string
	CheckInterval    time.Duration
	BatchSize        int
	InterSymbolDelay time.Duration
	InterBatchDelay  time.Duration
}

// Monitor owns the symbol registry and drives the detection cycle:
// fetch, touch evaluation, dedup, cooldown gating, delivery, persistence.
type Monitor struct {
	market    domain.MarketData
	sink      domain.AlertSink
	repo      domain.AlertRepository
	detector  *TouchDetector
	cooldowns *CooldownTracker
	hours     *markethours.Checker
	logger    *zap.Logger
	cfg       MonitorConfig

	mu           sync.Mutex
	states       map[string]*symbolState
	lastResetDay string

	running atomic.Bool
	now     func() time.Time
	sleep   func(ctx context.Context, d time.Duration)
}

func NewMonitor(
	market domain.MarketData,
	sink domain.AlertSink,
	repo domain.AlertRepository,
	detector *TouchDetector,
	cooldowns *CooldownTracker,
	hours *markethours.Checker,
	cfg MonitorConfig,
	logger *zap.Logger,
) *Monitor {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	if cfg.InterSymbolDelay == 0 {
		cfg.InterSymbolDelay = defaultSymbolDelay
	}
	if cfg.InterBatchDelay == 0 {
		cfg.InterBatchDelay = defaultBatchDelay
	}
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = time.Minute
	}
	if cfg.Resolution == "" {
		cfg.Resolution = "1"
	}
	return &Monitor{
		market:    market,
		sink:      sink,
		repo:      repo,
		detector:  detector,
		cooldowns: cooldowns,
		hours:     hours,
		logger:    logger,
		cfg:       cfg,
		states:    make(map[string]*symbolState),
		now:       time.Now,
		sleep:     sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// Register adds or replaces a symbol's registry entry with fresh levels.
// Runtime state (watermark, ring, dedup) starts empty.
func (m *Monitor) Register(symbol, name string, levels domain.LevelSet, source domain.OHLC) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[symbol] = &symbolState{
		name:    name,
		levels:  levels,
		source:  source,
		alerted: make(map[string]int64),
	}
}

// Symbols returns the registered symbols in sorted order.
func (m *Monitor) Symbols() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.states))
	for s := range m.states {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// InitializeDailyLevels computes and registers the day's level sets for
// every instrument from the previous trading session's OHLC, persists
// them, then switches the fetcher to its monitoring budget and sends a
// summary. Symbols whose history cannot be fetched are skipped; the run
// fails only when nothing at all could be initialized.
func (m *Monitor) InitializeDailyLevels(ctx context.Context, instruments []domain.Instrument) error {
	prevDay := markethours.PreviousTradingDay(m.now())
	initialized := 0

	for _, inst := range instruments {
		ohlc, err := m.market.GetHistoricalOHLC(ctx, inst.Symbol, prevDay)
		if err != nil {
			m.logger.Warn("daily level init: no historical data",
				zap.String("symbol", inst.Symbol), zap.Error(err))
			continue
		}
		levels := domain.ComputeLevelSet(*ohlc)
		m.Register(inst.Symbol, inst.Name, levels, *ohlc)
		initialized++

		rec := &domain.DailyLevels{
			Symbol: inst.Symbol,
			Date:   m.now().Format("2006-01-02"),
			Levels: levels,
			Source: *ohlc,
		}
		if err := m.repo.SaveDailyLevels(ctx, rec); err != nil {
			m.logger.Error("daily level init: persist failed",
				zap.String("symbol", inst.Symbol), zap.Error(err))
		}
		m.logger.Info("daily levels ready",
			zap.String("symbol", inst.Symbol),
			zap.String("ohlc_source", ohlc.Source),
			zap.Float64("pivot", levels.Pivot),
			zap.Float64("r1", levels.R1),
			zap.Float64("s1", levels.S1))
	}

	if sw, ok := m.market.(modeSwitcher); ok {
		sw.SetMonitoringMode()
	}

	if initialized == 0 {
		return fmt.Errorf("daily level initialization failed for all %d instruments", len(instruments))
	}

	if err := m.sink.SendMessage(ctx, m.levelsSummary(initialized, len(instruments), prevDay)); err != nil {
		m.logger.Warn("daily levels summary not delivered", zap.Error(err))
	}
	return nil
}

func (m *Monitor) levelsSummary(ok, total int, prevDay time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "📊 *Daily Levels Ready*\n\n")
	fmt.Fprintf(&b, "Computed for %d/%d stocks from %s session\n",
		ok, total, prevDay.Format("02-Jan-2006"))
	fmt.Fprintf(&b, "Watching S1 / PIVOT / R1 touches\n")
	fmt.Fprintf(&b, "Cooldown per stock: %s", m.cooldowns.Duration())
	return b.String()
}

// Run drives the monitoring loop until ctx is cancelled or Stop is
// called. Outside market hours it idles; right after the session closes
// it performs the daily reset once.
func (m *Monitor) Run(ctx context.Context) {
	m.running.Store(true)
	m.logger.Info("monitoring loop started",
		zap.String("resolution", m.cfg.Resolution),
		zap.Duration("check_interval", m.cfg.CheckInterval))

	for m.running.Load() {
		if ctx.Err() != nil {
			break
		}
		now := m.now()
		switch m.hours.Status(now) {
		case markethours.StatusOpen:
			m.ScanOnce(ctx)
			m.sleep(ctx, m.cfg.CheckInterval)
		case markethours.StatusPostMarket, markethours.StatusClosed:
			if m.hours.AfterClose(now) && m.maybeDailyReset(now) {
				m.logger.Info("post-close daily reset complete")
			}
			m.sleep(ctx, closedPollInterval)
		default:
			m.sleep(ctx, m.cfg.CheckInterval)
		}
	}
	m.logger.Info("monitoring loop stopped")
}

// Stop requests loop termination; the current sleep still completes
// unless the context is cancelled too.
func (m *Monitor) Stop() {
	m.running.Store(false)
}

// maybeDailyReset runs the reset at most once per calendar day.
func (m *Monitor) maybeDailyReset(now time.Time) bool {
	day := now.Format("2006-01-02")
	m.mu.Lock()
	done := m.lastResetDay == day
	m.lastResetDay = day
	m.mu.Unlock()
	if done {
		return false
	}
	m.ResetDailyData()
	return true
}

// ResetDailyData clears all per-symbol runtime state and cooldown
// records; level sets stay until the next initialization replaces them.
func (m *Monitor) ResetDailyData() {
	m.mu.Lock()
	for sym, st := range m.states {
		st.lastCandleTS = 0
		st.recent = nil
		st.alerted = make(map[string]int64)
		m.cooldowns.Reset(sym)
	}
	n := len(m.states)
	m.mu.Unlock()
	m.logger.Info("daily data reset", zap.Int("symbols", n))
}

// ScanOnce walks the registry once in batches, pausing briefly between
// symbols and batches to spread the fetch load.
func (m *Monitor) ScanOnce(ctx context.Context) {
	symbols := m.Symbols()
	for i, sym := range symbols {
		if ctx.Err() != nil {
			return
		}
		m.checkSymbolSafe(ctx, sym)
		if i == len(symbols)-1 {
			break
		}
		if (i+1)%m.cfg.BatchSize == 0 {
			m.sleep(ctx, m.cfg.InterBatchDelay)
		} else {
			m.sleep(ctx, m.cfg.InterSymbolDelay)
		}
	}
}

// checkSymbolSafe isolates per-symbol panics so one bad symbol cannot
// take down the whole scan.
func (m *Monitor) checkSymbolSafe(ctx context.Context, symbol string) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("symbol check panicked",
				zap.String("symbol", symbol), zap.Any("panic", r))
		}
	}()
	m.checkSymbol(ctx, symbol)
}

func (m *Monitor) checkSymbol(ctx context.Context, symbol string) {
	candle, err := m.market.GetLatestCandle(ctx, symbol, m.cfg.Resolution)
	if err != nil {
		m.logger.Debug("no candle this tick",
			zap.String("symbol", symbol), zap.Error(err))
		return
	}

	m.mu.Lock()
	st, ok := m.states[symbol]
	if !ok {
		m.mu.Unlock()
		return
	}
	// Stale or duplicate candles never re-trigger evaluation.
	if candle.Timestamp <= st.lastCandleTS {
		m.mu.Unlock()
		return
	}
	st.lastCandleTS = candle.Timestamp
	st.recent = append(st.recent, *candle)
	if len(st.recent) > candleRingSize {
		st.recent = st.recent[len(st.recent)-candleRingSize:]
	}
	history := make([]domain.Candle, len(st.recent)-1)
	copy(history, st.recent[:len(st.recent)-1])
	levels := st.levels
	name := st.name
	m.mu.Unlock()

	var touched []domain.LevelKind
	for _, kind := range domain.KeyLevels {
		if m.detector.CheckLevelTouchWithFilters(*candle, levels.Value(kind), history, kind) {
			touched = append(touched, kind)
		}
	}
	if len(touched) == 0 {
		return
	}

	sort.Slice(touched, func(i, j int) bool { return touched[i] < touched[j] })
	alertID := buildAlertID(symbol, touched, candle.Timestamp)

	m.mu.Lock()
	if _, seen := st.alerted[alertID]; seen {
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()

	primary := touched[0]
	for _, k := range touched[1:] {
		if levelPriority[k] > levelPriority[primary] {
			primary = k
		}
	}

	now := m.now()
	if !m.cooldowns.CanAlert(symbol, now) {
		for _, k := range touched {
			m.cooldowns.RecordTouchDuringCooldown(symbol, k)
		}
		remaining, _ := m.cooldowns.Remaining(symbol, now)
		m.logger.Info("touch suppressed by cooldown",
			zap.String("symbol", symbol),
			zap.String("level", string(primary)),
			zap.Duration("remaining", remaining))
		return
	}

	pendingCount, pendingKinds := m.cooldowns.PendingSummary(symbol)
	m.cooldowns.RecordAlertSent(symbol, primary, now)
	total := m.cooldowns.TotalTouches(symbol)

	alert := &domain.Alert{
		Symbol:       symbol,
		Name:         name,
		Kind:         primary,
		Value:        levels.Value(primary),
		Candle:       *candle,
		TotalTouches: total,
		PendingKinds: pendingKinds,
	}

	if err := m.sink.SendAlert(ctx, alert); err != nil {
		// The cooldown window is already open and the watermark has
		// advanced past this candle, so the touch is lost; it is only
		// logged, never retried.
		m.logger.Error("alert delivery failed",
			zap.String("symbol", symbol),
			zap.String("level", string(primary)),
			zap.Error(err))
		return
	}

	m.mu.Lock()
	st.alerted[alertID] = candle.Timestamp
	gcAlertsLocked(st, candle.Timestamp)
	m.mu.Unlock()

	// Only the primary level made the message; the other levels this
	// candle touched count as suppressed touches in the fresh window.
	for _, k := range touched {
		if k != primary {
			m.cooldowns.RecordTouchDuringCooldown(symbol, k)
		}
	}

	if err := m.repo.SaveAlert(ctx, symbol, primary, levels.Value(primary), candle.Close, candle.Timestamp); err != nil {
		m.logger.Error("alert persistence failed",
			zap.String("symbol", symbol), zap.Error(err))
	}

	m.logger.Info("alert sent",
		zap.String("symbol", symbol),
		zap.String("level", string(primary)),
		zap.Float64("value", levels.Value(primary)),
		zap.Int("total_touches", total),
		zap.Int("pending_folded", pendingCount))
}

func buildAlertID(symbol string, kinds []domain.LevelKind, ts int64) string {
	parts := make([]string, 0, len(kinds)+2)
	parts = append(parts, symbol)
	for _, k := range kinds {
		parts = append(parts, string(k))
	}
	parts = append(parts, fmt.Sprintf("%d", ts))
	return strings.Join(parts, "_")
}

// gcAlertsLocked drops dedup entries older than the retention window
// relative to the newest candle. Caller holds the mutex.
func gcAlertsLocked(st *symbolState, latestTS int64) {
	threshold := latestTS - alertGCWindow
	for id, ts := range st.alerted {
		if ts < threshold {
			delete(st.alerted, id)
		}
	}
}

// SymbolStatus is one registry entry's externally visible state.
type SymbolStatus struct {
	Symbol       string          `json:"symbol"`
	Name         string          `json:"name"`
	Levels       domain.LevelSet `json:"levels"`
	OHLCSource   string          `json:"ohlc_source"`
	LastCandleTS int64           `json:"last_candle_ts"`
	Cooldown     CooldownStatus  `json:"cooldown"`
}

// StatusReport is the monitor snapshot served by the web layer.
type StatusReport struct {
	Running      bool               `json:"running"`
	MarketStatus string             `json:"market_status"`
	SymbolCount  int                `json:"symbol_count"`
	Symbols      []SymbolStatus     `json:"symbols"`
	GeneratedAt  time.Time          `json:"generated_at"`
}

// Status snapshots the registry for external consumers.
func (m *Monitor) Status(now time.Time) StatusReport {
	m.mu.Lock()
	symbols := make([]SymbolStatus, 0, len(m.states))
	for sym, st := range m.states {
		symbols = append(symbols, SymbolStatus{
			Symbol:       sym,
			Name:         st.name,
			Levels:       st.levels,
			OHLCSource:   st.source.Source,
			LastCandleTS: st.lastCandleTS,
		})
	}
	m.mu.Unlock()

	for i := range symbols {
		symbols[i].Cooldown = m.cooldowns.Status(symbols[i].Symbol, now)
	}
	sort.Slice(symbols, func(i, j int) bool { return symbols[i].Symbol < symbols[j].Symbol })

	return StatusReport{
		Running:      m.running.Load(),
		MarketStatus: string(m.hours.Status(now)),
		SymbolCount:  len(symbols),
		Symbols:      symbols,
		GeneratedAt:  now,
	}
}
