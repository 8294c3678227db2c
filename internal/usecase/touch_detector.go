package usecase

import (
	"math"

	"github.com/vitos/pivot_alert_bot/internal/domain"
	"go.uber.org/zap"
)

const (
	// The proximity tolerance actually applied is capped regardless of the
	// configured value; looser settings would alert on every drift past a
	// level.
	toleranceCapPct = 0.05

	// Tighter tolerance used for the directional cross confirmation.
	crossTolerancePct = 0.02
)

// TouchDetector decides whether a candle genuinely touched a level.
// Stateless per call; history is supplied by the caller.
type TouchDetector struct {
	tolerancePct float64
	logger       *zap.Logger
}

func NewTouchDetector(tolerancePct float64, logger *zap.Logger) *TouchDetector {
	d := &TouchDetector{tolerancePct: tolerancePct, logger: logger}
	if tolerancePct > toleranceCapPct {
		logger.Info("touch tolerance capped for detection",
			zap.Float64("configured_pct", tolerancePct),
			zap.Float64("effective_pct", toleranceCapPct))
	}
	return d
}

// TolerancePct returns the configured (uncapped) tolerance percent.
func (d *TouchDetector) TolerancePct() float64 {
	return d.tolerancePct
}

func (d *TouchDetector) tolerance(level float64) float64 {
	pct := math.Min(d.tolerancePct, toleranceCapPct)
	return level * pct / 100
}

// CheckLevelTouch reports whether the candle's range brackets the level
// within tolerance. Near-zero-range candles are rejected: they would
// trivially satisfy proximity without representing real price action.
func (d *TouchDetector) CheckLevelTouch(candle domain.Candle, level float64) bool {
	tol := d.tolerance(level)

	if level < candle.Low-tol || level > candle.High+tol {
		return false
	}

	significance := math.Min(math.Abs(candle.Low-level), math.Abs(candle.High-level))
	return significance <= tol && candle.Range() > 2*tol
}

// CheckActualLevelCross confirms the price approached the level from the
// expected side, using the immediately preceding candle. S1 must be
// approached from above, R1 from below, and the pivot from either side.
// BC/TC have no rule; they are never alerted on.
func (d *TouchDetector) CheckActualLevelCross(current, previous domain.Candle, level float64, kind domain.LevelKind) bool {
	tol := level * crossTolerancePct / 100
	touches := current.Low-tol <= level && level <= current.High+tol

	switch kind {
	case domain.LevelS1:
		return previous.Low > level+tol && touches
	case domain.LevelR1:
		return previous.High < level-tol && touches
	case domain.LevelPivot:
		return (previous.Close > level+tol || previous.Close < level-tol) && touches
	}
	return false
}

// CheckLevelTouchWithFilters composes the proximity test with the
// directional confirmation. With no history yet the plain touch test
// stands alone; that weaker guarantee only applies to the first candle
// evaluated in a session.
func (d *TouchDetector) CheckLevelTouchWithFilters(candle domain.Candle, level float64, history []domain.Candle, kind domain.LevelKind) bool {
	if !d.CheckLevelTouch(candle, level) {
		return false
	}
	if len(history) == 0 {
		return true
	}
	return d.CheckActualLevelCross(candle, history[len(history)-1], level, kind)
}
