package usecase

import (
	"sort"
	"sync"
	"time"

	"github.com/vitos/pivot_alert_bot/internal/domain"
	"go.uber.org/zap"
)

// MinCooldown is the floor applied to any configured cooldown duration.
const MinCooldown = 20 * time.Minute

// cooldownRecord tracks one symbol's alert window and the touches that
// accrued while alerts were suppressed.
type cooldownRecord struct {
	lastAlertTime time.Time
	initialLevel  domain.LevelKind
	totalTouches  int
	pending       map[domain.LevelKind]int
}

// CooldownTracker is the per-symbol alert gate. At most one alert passes
// per symbol per cooldown window; every other detected touch in that
// window is recorded as pending and folded into the running total when
// the next alert fires.
type CooldownTracker struct {
	duration time.Duration
	logger   *zap.Logger

	mu      sync.Mutex
	records map[string]*cooldownRecord
}

func NewCooldownTracker(duration time.Duration, logger *zap.Logger) *CooldownTracker {
	if duration < MinCooldown {
		logger.Info("cooldown raised to minimum floor",
			zap.Duration("configured", duration),
			zap.Duration("effective", MinCooldown))
		duration = MinCooldown
	}
	return &CooldownTracker{
		duration: duration,
		logger:   logger,
		records:  make(map[string]*cooldownRecord),
	}
}

// Duration returns the effective cooldown window length.
func (t *CooldownTracker) Duration() time.Duration {
	return t.duration
}

// CanAlert reports whether the symbol's gate is open at now: either no
// record exists yet or the last alert is at least one window old.
func (t *CooldownTracker) CanAlert(symbol string, now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	rec, ok := t.records[symbol]
	if !ok {
		return true
	}
	return now.Sub(rec.lastAlertTime) >= t.duration
}

// RecordAlertSent opens a new window for the symbol. When a record
// already exists (the prior window had elapsed) the touches that were
// pending during it are folded into the committed total, so the counter
// keeps running across windows even though only one message fires per
// window.
func (t *CooldownTracker) RecordAlertSent(symbol string, kind domain.LevelKind, now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec, ok := t.records[symbol]
	if !ok {
		t.records[symbol] = &cooldownRecord{
			lastAlertTime: now,
			initialLevel:  kind,
			totalTouches:  1,
			pending:       make(map[domain.LevelKind]int),
		}
		return
	}

	pending := 0
	for _, n := range rec.pending {
		pending += n
	}
	rec.lastAlertTime = now
	rec.initialLevel = kind
	rec.totalTouches += 1 + pending
	rec.pending = make(map[domain.LevelKind]int)
}

// RecordTouchDuringCooldown counts a suppressed touch. A no-op for
// symbols with no record; a touch can only be suppressed inside a window.
func (t *CooldownTracker) RecordTouchDuringCooldown(symbol string, kind domain.LevelKind) {
	t.mu.Lock()
	defer t.mu.Unlock()
	rec, ok := t.records[symbol]
	if !ok {
		return
	}
	rec.pending[kind]++
}

// Reset clears the symbol's record entirely (daily rollover).
func (t *CooldownTracker) Reset(symbol string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.records, symbol)
}

// TotalTouches returns committed plus pending touches for the symbol.
func (t *CooldownTracker) TotalTouches(symbol string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	rec, ok := t.records[symbol]
	if !ok {
		return 0
	}
	total := rec.totalTouches
	for _, n := range rec.pending {
		total += n
	}
	return total
}

// PendingSummary returns the suppressed touch count and the sorted set of
// level kinds touched while suppressed.
func (t *CooldownTracker) PendingSummary(symbol string) (int, []domain.LevelKind) {
	t.mu.Lock()
	defer t.mu.Unlock()
	rec, ok := t.records[symbol]
	if !ok {
		return 0, nil
	}
	total := 0
	kinds := make([]domain.LevelKind, 0, len(rec.pending))
	for k, n := range rec.pending {
		total += n
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return total, kinds
}

// Remaining returns the time left in the symbol's active window, or zero
// and false when the gate is open.
func (t *CooldownTracker) Remaining(symbol string, now time.Time) (time.Duration, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	rec, ok := t.records[symbol]
	if !ok {
		return 0, false
	}
	elapsed := now.Sub(rec.lastAlertTime)
	if elapsed >= t.duration {
		return 0, false
	}
	return t.duration - elapsed, true
}

// CooldownStatus is the derived, read-only view of a symbol's gate.
type CooldownStatus struct {
	InCooldown    bool               `json:"in_cooldown"`
	CanAlert      bool               `json:"can_alert"`
	TimeRemaining time.Duration      `json:"time_remaining"`
	InitialLevel  domain.LevelKind   `json:"initial_level,omitempty"`
	TotalTouches  int                `json:"total_touches"`
	PendingKinds  []domain.LevelKind `json:"pending_levels,omitempty"`
}

// Status assembles the full derived view for one symbol.
func (t *CooldownTracker) Status(symbol string, now time.Time) CooldownStatus {
	remaining, active := t.Remaining(symbol, now)
	_, kinds := t.PendingSummary(symbol)

	t.mu.Lock()
	var initial domain.LevelKind
	if rec, ok := t.records[symbol]; ok {
		initial = rec.initialLevel
	}
	t.mu.Unlock()

	return CooldownStatus{
		InCooldown:    active,
		CanAlert:      !active,
		TimeRemaining: remaining,
		InitialLevel:  initial,
		TotalTouches:  t.TotalTouches(symbol),
		PendingKinds:  kinds,
	}
}
