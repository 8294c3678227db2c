package marketdata

import (
	"sync"
	"time"
)

const (
	initCallsPerMinute    = 180
	monitorCallsPerMinute = 150
	minCallInterval       = 100 * time.Millisecond
)

// rateBudget is a per-minute call allowance with a minimum spacing
// between consecutive calls. Denial never sleeps; only the spacing
// correction does.
type rateBudget struct {
	mu           sync.Mutex
	callsMade    int
	windowStart  time.Time
	maxPerMinute int
	minInterval  time.Duration
	lastCall     time.Time

	now   func() time.Time
	sleep func(time.Duration)
}

func newRateBudget(maxPerMinute int) *rateBudget {
	return &rateBudget{
		maxPerMinute: maxPerMinute,
		minInterval:  minCallInterval,
		now:          time.Now,
		sleep:        time.Sleep,
	}
}

// acquire charges one call against the budget. It returns false without
// blocking when the window cap is reached; otherwise it sleeps just long
// enough to honor the minimum spacing and charges the call.
func (b *rateBudget) acquire() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	if b.windowStart.IsZero() || now.Sub(b.windowStart) >= time.Minute {
		b.windowStart = now
		b.callsMade = 0
	}
	if b.callsMade >= b.maxPerMinute {
		return false
	}
	if !b.lastCall.IsZero() {
		if wait := b.minInterval - now.Sub(b.lastCall); wait > 0 {
			b.sleep(wait)
			now = b.now()
		}
	}
	b.callsMade++
	b.lastCall = now
	return true
}

// setLimit switches the per-minute cap and starts a fresh window, so
// the new mode begins with its full allowance.
func (b *rateBudget) setLimit(maxPerMinute int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.maxPerMinute = maxPerMinute
	b.windowStart = b.now()
	b.callsMade = 0
}
