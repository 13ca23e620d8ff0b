package payout

import (
	"sort"
	"sync"
	"time"

	"github.com/oddsforge/propline/internal/domain"
)

// maxSamplesPerKey bounds memory per (sport, prop_type) key; oldest samples
// are dropped first
const maxSamplesPerKey = 4096

type baselineKey struct {
	sport    domain.Sport
	propType domain.PropType
}

type sample struct {
	ts    time.Time
	value float64
}

// BaselineTracker maintains a rolling window of observed over-multipliers
// per (sport, prop_type) and serves the median used for boost detection.
type BaselineTracker struct {
	mu      sync.Mutex
	window  time.Duration
	samples map[baselineKey][]sample
	now     func() time.Time
}

// NewBaselineTracker creates a tracker with the given window (0 uses 24h)
func NewBaselineTracker(window time.Duration) *BaselineTracker {
	if window <= 0 {
		window = 24 * time.Hour
	}
	return &BaselineTracker{
		window:  window,
		samples: make(map[baselineKey][]sample),
		now:     time.Now,
	}
}

// Observe records an over multiplier observation
func (bt *BaselineTracker) Observe(sport domain.Sport, propType domain.PropType, value float64) {
	if value <= 0 {
		return
	}

	key := baselineKey{sport: sport, propType: propType}
	now := bt.now()

	bt.mu.Lock()
	defer bt.mu.Unlock()

	kept := bt.prune(bt.samples[key], now)
	kept = append(kept, sample{ts: now, value: value})
	if len(kept) > maxSamplesPerKey {
		kept = kept[len(kept)-maxSamplesPerKey:]
	}
	bt.samples[key] = kept
}

// Median returns the median over-multiplier within the window, and whether
// enough observations exist to be meaningful
func (bt *BaselineTracker) Median(sport domain.Sport, propType domain.PropType) (float64, bool) {
	key := baselineKey{sport: sport, propType: propType}
	now := bt.now()

	bt.mu.Lock()
	defer bt.mu.Unlock()

	kept := bt.prune(bt.samples[key], now)
	bt.samples[key] = kept

	if len(kept) < 3 {
		return 0, false
	}

	values := make([]float64, len(kept))
	for i, s := range kept {
		values[i] = s.value
	}
	sort.Float64s(values)

	mid := len(values) / 2
	if len(values)%2 == 1 {
		return values[mid], true
	}
	return (values[mid-1] + values[mid]) / 2, true
}

// prune drops samples older than the window; samples are append-ordered so
// the cutoff is a prefix
func (bt *BaselineTracker) prune(samples []sample, now time.Time) []sample {
	cutoff := now.Add(-bt.window)
	first := 0
	for first < len(samples) && samples[first].ts.Before(cutoff) {
		first++
	}
	return samples[first:]
}
