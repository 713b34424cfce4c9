// Package tracker maintains per-instrument price history and the smoothed
// reference value the trading rules compare against.
package tracker

import "sync"

// Quote is a read-only view of one instrument's tracked state. Change and
// Deviation are percentages; Deviation measures distance from the reference
// value, Change the step from the previous tick.
type Quote struct {
	Price     float64
	Change    float64
	Reference float64
	Deviation float64
}

type series struct {
	history   []float64
	price     float64
	change    float64
	reference float64
	deviation float64
}

// Tracker holds a bounded FIFO price window per symbol. The reference value
// is the arithmetic mean of the current window, recomputed on every sample.
type Tracker struct {
	mu     sync.RWMutex
	window int
	state  map[string]*series
}

// New creates a tracker with the given window size.
func New(window int) *Tracker {
	if window <= 0 {
		window = 30
	}
	return &Tracker{
		window: window,
		state:  make(map[string]*series),
	}
}

// Observe appends a price sample for the symbol, evicting the oldest sample
// once the window is full, and recomputes reference value and deviation.
// Samples must be applied in arrival order; callers are single goroutines
// per source so the mutex only orders across sources.
func (t *Tracker) Observe(symbol string, price float64) {
	if symbol == "" || price <= 0 {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	s := t.state[symbol]
	if s == nil {
		s = &series{history: make([]float64, 0, t.window)}
		t.state[symbol] = s
	}

	if s.price > 0 {
		s.change = (price - s.price) / s.price * 100
	}
	s.price = price

	if len(s.history) == t.window {
		copy(s.history, s.history[1:])
		s.history[len(s.history)-1] = price
	} else {
		s.history = append(s.history, price)
	}

	var sum float64
	for _, p := range s.history {
		sum += p
	}
	s.reference = sum / float64(len(s.history))
	if s.reference > 0 {
		s.deviation = (price - s.reference) / s.reference * 100
	} else {
		s.deviation = 0
	}
}

// Snapshot returns the current quote for a symbol; the zero Quote when the
// symbol has never been observed.
func (t *Tracker) Snapshot(symbol string) Quote {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s := t.state[symbol]
	if s == nil {
		return Quote{}
	}
	return Quote{Price: s.price, Change: s.change, Reference: s.reference, Deviation: s.deviation}
}

// Price returns the latest observed price, zero when none has arrived.
func (t *Tracker) Price(symbol string) float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s := t.state[symbol]
	if s == nil {
		return 0
	}
	return s.price
}

// All returns quotes for every observed symbol.
func (t *Tracker) All() map[string]Quote {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[string]Quote, len(t.state))
	for sym, s := range t.state {
		out[sym] = Quote{Price: s.price, Change: s.change, Reference: s.reference, Deviation: s.deviation}
	}
	return out
}

// HistoryLen reports the number of samples currently held for a symbol.
func (t *Tracker) HistoryLen(symbol string) int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s := t.state[symbol]
	if s == nil {
		return 0
	}
	return len(s.history)
}
