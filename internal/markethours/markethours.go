package markethours

import (
	"fmt"
	"time"
)

// Status describes where the current time falls relative to the session.
type Status string

const (
	StatusOpen       Status = "open"
	StatusPreMarket  Status = "pre_market"
	StatusPostMarket Status = "post_market"
	StatusClosed     Status = "closed"
)

// Checker evaluates wall-clock time against a configured market session
// window. Weekends are always closed.
type Checker struct {
	start    int // minutes since midnight
	end      int
	preStart int
	postEnd  int
}

// New builds a Checker from "HH:MM" window boundaries.
func New(start, end, preMarketStart, postMarketEnd string) (*Checker, error) {
	c := &Checker{}
	var err error
	if c.start, err = parseHHMM(start); err != nil {
		return nil, fmt.Errorf("market start: %w", err)
	}
	if c.end, err = parseHHMM(end); err != nil {
		return nil, fmt.Errorf("market end: %w", err)
	}
	if c.preStart, err = parseHHMM(preMarketStart); err != nil {
		return nil, fmt.Errorf("pre-market start: %w", err)
	}
	if c.postEnd, err = parseHHMM(postMarketEnd); err != nil {
		return nil, fmt.Errorf("post-market end: %w", err)
	}
	return c, nil
}

func parseHHMM(s string) (int, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, err
	}
	return t.Hour()*60 + t.Minute(), nil
}

// Status returns the session status at t.
func (c *Checker) Status(t time.Time) Status {
	wd := t.Weekday()
	if wd == time.Saturday || wd == time.Sunday {
		return StatusClosed
	}
	hm := t.Hour()*60 + t.Minute()
	switch {
	case hm >= c.start && hm <= c.end:
		return StatusOpen
	case hm >= c.preStart && hm < c.start:
		return StatusPreMarket
	case hm > c.end && hm <= c.postEnd:
		return StatusPostMarket
	default:
		return StatusClosed
	}
}

// IsOpen reports whether the market session is open at t.
func (c *Checker) IsOpen(t time.Time) bool {
	return c.Status(t) == StatusOpen
}

// AfterClose reports whether t is past the session end on the same day.
func (c *Checker) AfterClose(t time.Time) bool {
	return t.Hour()*60+t.Minute() > c.end
}

// PreviousTradingDay returns the most recent weekday before ref.
// Holidays are not modeled; the fetch layer's range strategy absorbs them
// by accepting the closest available trading day.
func PreviousTradingDay(ref time.Time) time.Time {
	switch ref.Weekday() {
	case time.Monday:
		return ref.AddDate(0, 0, -3)
	case time.Sunday:
		return ref.AddDate(0, 0, -2)
	default:
		return ref.AddDate(0, 0, -1)
	}
}
