// Package engine runs the autonomous decision loop: it reads tracker
// deviations, applies the buy/sell policy, and instructs the ledger.
package engine

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/realMNohgee/meme-trader-bot/internal/config"
	"github.com/realMNohgee/meme-trader-bot/internal/ledger"
	"github.com/realMNohgee/meme-trader-bot/internal/market"
	"github.com/realMNohgee/meme-trader-bot/internal/metrics"
	"github.com/realMNohgee/meme-trader-bot/internal/tracker"
)

// InstrumentStatus combines tracked prices and ledger state for one
// instrument, for read-only display.
type InstrumentStatus struct {
	Instrument market.Instrument
	Quote      tracker.Quote
	Entry      ledger.EntrySnapshot
}

// Status is the consistent snapshot exposed to the presenter.
type Status struct {
	Cash         float64
	TotalProfit  float64
	TotalTrades  int
	Instruments  []InstrumentStatus
	RecentTrades []ledger.TradeRecord
}

// Engine evaluates every instrument on a fixed cadence and executes
// threshold-triggered trades, independent state per instrument.
type Engine struct {
	log         zerolog.Logger
	cfg         config.Trading
	instruments []market.Instrument
	tracker     *tracker.Tracker
	ledger      *ledger.Ledger
}

// New wires the engine to its collaborators.
func New(log zerolog.Logger, cfg config.Trading, instruments []market.Instrument, tr *tracker.Tracker, led *ledger.Ledger) *Engine {
	return &Engine{
		log:         log,
		cfg:         cfg,
		instruments: instruments,
		tracker:     tr,
		ledger:      led,
	}
}

// Run drives decision ticks until the context is canceled.
func (e *Engine) Run(ctx context.Context) error {
	ticker := time.NewTicker(e.cfg.TickInterval())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			e.Step(now)
		}
	}
}

// Step runs one decision pass. Exposed so tests can drive deterministic
// ticks without real sleeps.
func (e *Engine) Step(now time.Time) {
	tol := e.cfg.ThresholdTolerance
	for _, inst := range e.instruments {
		quote := e.tracker.Snapshot(inst.Symbol)
		if quote.Price <= 0 || quote.Reference <= 0 {
			continue
		}
		if e.ledger.InCooldown(inst.Symbol, now, e.cfg.Cooldown()) {
			continue
		}

		if quote.Deviation <= -e.cfg.BuyThresholdPct+tol {
			if e.execute(inst.Symbol, ledger.Buy, e.cfg.TradeAmountUSD, quote, now) {
				continue // trade entered cooldown; no sell this tick
			}
		}

		sellThreshold := e.ledger.SellThreshold(inst.Symbol, e.cfg.SellThresholdBasePct, e.cfg.SellThresholdHighPct, e.cfg.ProfitHighMark)
		if quote.Deviation >= sellThreshold-tol && e.ledger.Position(inst.Symbol) > e.cfg.TradeAmountUSD/quote.Price {
			e.execute(inst.Symbol, ledger.Sell, e.cfg.TradeAmountUSD, quote, now)
		}
	}
}

// execute runs one ledger trade and reports whether it succeeded. Policy
// rejections are warnings; anything else is a programming error worth an
// error log.
func (e *Engine) execute(symbol string, side ledger.Side, usd float64, quote tracker.Quote, now time.Time) bool {
	record, err := e.ledger.Execute(symbol, side, usd, quote.Price, quote.Reference, now)
	if err != nil {
		var reject *ledger.RejectError
		if errors.As(err, &reject) {
			metrics.TradeRejectsTotal.WithLabelValues(symbol, reject.Reason).Inc()
			e.log.Warn().Str("symbol", symbol).Str("side", string(side)).Str("reason", reject.Reason).Msg("trade rejected")
		} else {
			e.log.Error().Err(err).Str("symbol", symbol).Msg("trade failed")
		}
		return false
	}
	metrics.TradesTotal.WithLabelValues(symbol, string(side)).Inc()
	e.log.Info().
		Str("symbol", symbol).
		Str("side", string(side)).
		Float64("usd", record.USD).
		Float64("qty", record.Quantity).
		Float64("fee", record.Fee).
		Float64("profit", record.Profit).
		Float64("deviation_pct", quote.Deviation).
		Msg("trade executed")
	return true
}

// RunInitialFunding waits (bounded) for each instrument's first price and
// places one initial buy. Instruments that never load a price are skipped
// with a warning; nothing here is fatal.
func (e *Engine) RunInitialFunding(ctx context.Context) {
	for _, inst := range e.instruments {
		price := e.waitForPrice(ctx, inst.Symbol)
		if ctx.Err() != nil {
			return
		}
		if price <= 0 {
			e.log.Warn().Str("symbol", inst.Symbol).Msg("initial buy skipped: no price after retries")
			continue
		}
		if e.ledger.Cash() < e.cfg.InitialBuyUSD {
			e.log.Warn().Str("symbol", inst.Symbol).Msg("initial buy skipped: insufficient funds")
			continue
		}
		quote := e.tracker.Snapshot(inst.Symbol)
		e.execute(inst.Symbol, ledger.Buy, e.cfg.InitialBuyUSD, quote, time.Now())
	}
}

func (e *Engine) waitForPrice(ctx context.Context, symbol string) float64 {
	attempts := e.cfg.InitialRetryAttempts
	if attempts <= 0 {
		attempts = 1
	}
	for attempt := 0; attempt < attempts; attempt++ {
		if price := e.tracker.Price(symbol); price > 0 {
			return price
		}
		select {
		case <-time.After(e.cfg.InitialRetryDelay()):
		case <-ctx.Done():
			return 0
		}
	}
	return e.tracker.Price(symbol)
}

// Reset restores the ledger to the configured initial balance and re-runs
// initial funding. Price history is left intact.
func (e *Engine) Reset(ctx context.Context) {
	e.ledger.Reset(e.cfg.InitialBalance)
	e.log.Info().Float64("balance", e.cfg.InitialBalance).Msg("simulation reset")
	e.RunInitialFunding(ctx)
}

// Status assembles the read-only snapshot for the presenter.
func (e *Engine) Status() Status {
	snap := e.ledger.Snapshot()
	quotes := e.tracker.All()

	instruments := make([]InstrumentStatus, len(e.instruments))
	for i, inst := range e.instruments {
		instruments[i] = InstrumentStatus{
			Instrument: inst,
			Quote:      quotes[inst.Symbol],
			Entry:      snap.Entries[inst.Symbol],
		}
	}
	return Status{
		Cash:         snap.Cash,
		TotalProfit:  snap.TotalProfit,
		TotalTrades:  snap.TotalTrades,
		Instruments:  instruments,
		RecentTrades: snap.RecentTrades,
	}
}
