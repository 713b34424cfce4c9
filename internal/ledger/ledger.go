// Package ledger owns the simulated account: cash, positions, realized
// profit, the recent-trade log, and the only mutating trade primitive.
package ledger

import (
	"fmt"
	"sync"
	"time"
)

// Side enumerates trade directions.
type Side string

const (
	Buy  Side = "buy"
	Sell Side = "sell"
)

// Reject reasons surfaced by Execute. These are policy outcomes, not faults.
const (
	ReasonPriceNotLoaded       = "price not loaded"
	ReasonInsufficientFunds    = "insufficient funds"
	ReasonAllocationCap        = "allocation cap reached"
	ReasonInsufficientPosition = "insufficient position"
)

// RejectError reports a trade precondition failure. Callers log it and move
// on; it never indicates a broken invariant.
type RejectError struct {
	Symbol string
	Side   Side
	Reason string
}

func (e *RejectError) Error() string {
	return fmt.Sprintf("%s %s rejected: %s", e.Side, e.Symbol, e.Reason)
}

// TradeRecord describes one executed simulated trade. Profit is set on sells
// only.
type TradeRecord struct {
	Symbol   string    `json:"symbol"`
	Side     Side      `json:"side"`
	USD      float64   `json:"usd"`
	Fee      float64   `json:"fee"`
	Quantity float64   `json:"quantity"`
	Profit   float64   `json:"profit,omitempty"`
	Time     time.Time `json:"time"`
}

// EntrySnapshot is a read-only per-symbol view.
type EntrySnapshot struct {
	Quantity float64
	Invested float64
	Realized float64
}

// Snapshot is a consistent copy of the whole ledger for display.
type Snapshot struct {
	Cash         float64
	TotalProfit  float64
	TotalTrades  int
	Entries      map[string]EntrySnapshot
	RecentTrades []TradeRecord
}

type entry struct {
	quantity float64
	invested float64
	realized float64
}

const (
	epsilon        = 1e-9
	recentTradeCap = 10
)

// Ledger guards every balance behind one mutex: cash is a single scalar
// contended across all symbols, so per-symbol locking would not help.
type Ledger struct {
	mu          sync.Mutex
	cash        float64
	feePct      float64
	maxAlloc    float64 // 0 disables the per-symbol cap
	entries     map[string]*entry
	lastTrade   map[string]time.Time
	recent      []TradeRecord
	totalProfit float64
	totalTrades int
}

// New creates a funded ledger. maxAlloc of zero disables the allocation cap.
func New(initialCash, feePct, maxAlloc float64) *Ledger {
	return &Ledger{
		cash:      initialCash,
		feePct:    feePct,
		maxAlloc:  maxAlloc,
		entries:   make(map[string]*entry),
		lastTrade: make(map[string]time.Time),
		recent:    make([]TradeRecord, 0, recentTradeCap),
	}
}

// Execute runs the whole check-then-mutate sequence for one trade under the
// ledger mutex, so concurrent attempts on any symbol serialize. reference is
// the instrument's current reference value and feeds sell profit; it falls
// back to the trade price when unset. On success the trade is appended to
// the bounded recent log and the symbol's cooldown timer is stamped.
func (l *Ledger) Execute(symbol string, side Side, usd, price, reference float64, now time.Time) (TradeRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if price <= 0 {
		return TradeRecord{}, &RejectError{Symbol: symbol, Side: side, Reason: ReasonPriceNotLoaded}
	}
	quantity := usd / price
	fee := usd * l.feePct

	e := l.entries[symbol]
	if e == nil {
		e = &entry{}
		l.entries[symbol] = e
	}

	record := TradeRecord{Symbol: symbol, Side: side, USD: usd, Fee: fee, Quantity: quantity, Time: now}

	switch side {
	case Buy:
		if l.cash+epsilon < usd+fee {
			return TradeRecord{}, &RejectError{Symbol: symbol, Side: side, Reason: ReasonInsufficientFunds}
		}
		if l.maxAlloc > 0 && e.invested+usd > l.maxAlloc+epsilon {
			return TradeRecord{}, &RejectError{Symbol: symbol, Side: side, Reason: ReasonAllocationCap}
		}
		l.cash -= usd + fee
		e.quantity += quantity
		e.invested += usd

	case Sell:
		if e.quantity+epsilon < quantity {
			return TradeRecord{}, &RejectError{Symbol: symbol, Side: side, Reason: ReasonInsufficientPosition}
		}
		ref := reference
		if ref <= 0 {
			ref = price
		}
		profit := usd - quantity*ref - fee
		l.cash += usd - fee
		e.quantity -= quantity
		e.realized += profit
		l.totalProfit += profit
		record.Profit = profit

	default:
		return TradeRecord{}, fmt.Errorf("unknown trade side %q", side)
	}

	l.totalTrades++
	l.appendRecent(record)
	l.lastTrade[symbol] = now
	return record, nil
}

func (l *Ledger) appendRecent(record TradeRecord) {
	if len(l.recent) == recentTradeCap {
		copy(l.recent, l.recent[1:])
		l.recent[len(l.recent)-1] = record
		return
	}
	l.recent = append(l.recent, record)
}

// InCooldown reports whether the symbol traded within the last interval.
func (l *Ledger) InCooldown(symbol string, now time.Time, interval time.Duration) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	last, ok := l.lastTrade[symbol]
	if !ok {
		return false
	}
	return now.Sub(last) < interval
}

// SellThreshold picks the base or high sell threshold for a symbol: once
// realized profit exceeds the configured fraction of invested capital, the
// higher target applies.
func (l *Ledger) SellThreshold(symbol string, base, high, mark float64) float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	e := l.entries[symbol]
	if e != nil && e.invested > 0 && e.realized > e.invested*mark {
		return high
	}
	return base
}

// Cash returns the free simulated balance.
func (l *Ledger) Cash() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cash
}

// Position returns the held quantity for a symbol.
func (l *Ledger) Position(symbol string) float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	e := l.entries[symbol]
	if e == nil {
		return 0
	}
	return e.quantity
}

// Snapshot copies the full ledger state for read-only display.
func (l *Ledger) Snapshot() Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()

	entries := make(map[string]EntrySnapshot, len(l.entries))
	for sym, e := range l.entries {
		entries[sym] = EntrySnapshot{Quantity: e.quantity, Invested: e.invested, Realized: e.realized}
	}
	recent := make([]TradeRecord, len(l.recent))
	copy(recent, l.recent)

	return Snapshot{
		Cash:         l.cash,
		TotalProfit:  l.totalProfit,
		TotalTrades:  l.totalTrades,
		Entries:      entries,
		RecentTrades: recent,
	}
}

// Reset restores the initial balance, zeroes every entry and cooldown timer,
// and clears the trade log and totals.
func (l *Ledger) Reset(initialCash float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cash = initialCash
	l.entries = make(map[string]*entry)
	l.lastTrade = make(map[string]time.Time)
	l.recent = l.recent[:0]
	l.totalProfit = 0
	l.totalTrades = 0
}
