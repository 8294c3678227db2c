package notifier

import (
	"sync"
	"time"
)

const (
	minSendInterval = 5 * time.Second
	burstLimit      = 3
	burstWindow     = time.Minute
)

// pacer spaces outbound messages: at least minSendInterval between
// consecutive sends and at most burstLimit sends per burstWindow.
// wait blocks until both constraints allow another send.
type pacer struct {
	mu     sync.Mutex
	last   time.Time
	recent []time.Time

	now   func() time.Time
	sleep func(time.Duration)
}

func newPacer() *pacer {
	return &pacer{now: time.Now, sleep: time.Sleep}
}

func (p *pacer) wait() {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	var delay time.Duration
	if !p.last.IsZero() {
		if d := minSendInterval - now.Sub(p.last); d > delay {
			delay = d
		}
	}

	p.prune(now)
	if len(p.recent) >= burstLimit {
		if d := p.recent[0].Add(burstWindow).Sub(now); d > delay {
			delay = d
		}
	}

	if delay > 0 {
		p.sleep(delay)
		now = p.now()
		p.prune(now)
	}
	p.last = now
	p.recent = append(p.recent, now)
}

// prune drops send records older than the burst window. Caller holds
// the mutex.
func (p *pacer) prune(now time.Time) {
	cutoff := now.Add(-burstWindow)
	i := 0
	for i < len(p.recent) && !p.recent[i].After(cutoff) {
		i++
	}
	p.recent = p.recent[i:]
}
