// Package ratecounter implements the sliding 60-second request-rate
// counter of spec §4.2: a plain count-since-epoch that resets on
// window roll, not a token bucket.
package ratecounter

import (
	"sync"
	"time"
)

const window = 60 * time.Second

// RateCounter tracks requests within the trailing 60-second epoch and
// exposes a throttle predicate. maxRate <= 0 disables throttling.
type RateCounter struct {
	mu             sync.Mutex
	epoch          time.Time
	rateWindowCount int
	totalCount     int64
	maxRate        int
	now            func() time.Time
}

// New builds a RateCounter with the given requests-per-minute ceiling.
func New(maxRate int) *RateCounter {
	return &RateCounter{maxRate: maxRate, epoch: time.Now().UTC(), now: time.Now}
}

// rollLocked resets the epoch if the window has elapsed or the clock
// moved backwards, per the RateCounter state invariant of spec §3.
func (r *RateCounter) rollLocked(now time.Time) {
	if now.Sub(r.epoch) >= window || now.Before(r.epoch) {
		r.epoch = now
		r.rateWindowCount = 0
	}
}

// CurrentRate returns the count observed in the current window,
// rolling the window forward first if it has expired.
func (r *RateCounter) CurrentRate() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rollLocked(r.now().UTC())
	return r.rateWindowCount
}

// IsThrottled evaluates the throttle predicate. When the request is
// allowed and incIfAllowed is true, the window and total counters are
// incremented atomically with the check.
func (r *RateCounter) IsThrottled(incIfAllowed bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.rollLocked(r.now().UTC())
	if r.maxRate > 0 && r.rateWindowCount >= r.maxRate {
		return true
	}

	if incIfAllowed {
		r.rateWindowCount++
		r.totalCount++
	}
	return false
}

// TotalCount returns the lifetime request count, for diagnostics.
func (r *RateCounter) TotalCount() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.totalCount
}
