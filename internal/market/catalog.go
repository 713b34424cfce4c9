// Package market defines the tracked instrument universe and the one-shot
// top-volume selection that produces it at startup.
package market

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/realMNohgee/meme-trader-bot/internal/config"
)

// Instrument identifies one tracked coin. Immutable after selection.
type Instrument struct {
	Symbol string // base symbol, e.g. DOGE
	Pair   string // exchange pair id, e.g. DOGE-USDT
	Name   string
}

// Selector ranks candidate instruments by 24h quote volume using the public
// allTickers endpoint.
type Selector struct {
	log      zerolog.Logger
	client   *http.Client
	baseURL  string
	quote    string
	allow    map[string]struct{}
	limit    int
	attempts int
	delay    time.Duration
}

type allTickersResponse struct {
	Data struct {
		Ticker []tickerEntry `json:"ticker"`
	} `json:"data"`
}

type tickerEntry struct {
	Symbol     string `json:"symbol"`
	ChangeRate string `json:"changeRate"`
	VolValue   string `json:"volValue"`
}

type candidate struct {
	instrument Instrument
	volume     float64
	change24   float64
}

// NewSelector builds a selector from exchange configuration.
func NewSelector(log zerolog.Logger, cfg config.Exchange) *Selector {
	allow := make(map[string]struct{}, len(cfg.MemeSymbols))
	for _, sym := range cfg.MemeSymbols {
		sym = strings.ToUpper(strings.TrimSpace(sym))
		if sym != "" {
			allow[sym] = struct{}{}
		}
	}
	limit := cfg.NumInstruments
	if limit <= 0 {
		limit = 5
	}
	attempts := cfg.RetryAttempts
	if attempts <= 0 {
		attempts = 3
	}
	return &Selector{
		log:      log,
		client:   &http.Client{Timeout: 10 * time.Second},
		baseURL:  strings.TrimSuffix(cfg.RESTBaseURL, "/"),
		quote:    strings.ToUpper(cfg.QuoteCurrency),
		allow:    allow,
		limit:    limit,
		attempts: attempts,
		delay:    cfg.RetryDelay(),
	}
}

// SelectTop fetches all tickers with bounded retries, keeps pairs whose base
// is in the allow set and whose quote matches, and returns the top N by 24h
// quote volume. An error after retry exhaustion leaves the caller with an
// empty catalog; nothing else is fatal.
func (s *Selector) SelectTop(ctx context.Context) ([]Instrument, error) {
	var payload *allTickersResponse
	var err error
	for attempt := 1; attempt <= s.attempts; attempt++ {
		payload, err = s.fetchAll(ctx)
		if err == nil {
			break
		}
		s.log.Warn().Err(err).Int("attempt", attempt).Msg("allTickers fetch failed")
		if attempt < s.attempts {
			select {
			case <-time.After(s.delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}
	if err != nil {
		return nil, fmt.Errorf("fetch allTickers: %w", err)
	}

	suffix := "-" + s.quote
	candidates := make([]candidate, 0, len(s.allow))
	for _, entry := range payload.Data.Ticker {
		if !strings.HasSuffix(entry.Symbol, suffix) {
			continue
		}
		base := strings.TrimSuffix(entry.Symbol, suffix)
		if _, ok := s.allow[base]; !ok {
			continue
		}
		volume, _ := strconv.ParseFloat(entry.VolValue, 64)
		change, _ := strconv.ParseFloat(entry.ChangeRate, 64)
		candidates = append(candidates, candidate{
			instrument: Instrument{Symbol: base, Pair: entry.Symbol, Name: base},
			volume:     volume,
			change24:   change * 100,
		})
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].volume > candidates[j].volume
	})
	if len(candidates) > s.limit {
		candidates = candidates[:s.limit]
	}

	selected := make([]Instrument, len(candidates))
	symbols := make([]string, len(candidates))
	for i, cand := range candidates {
		selected[i] = cand.instrument
		symbols[i] = cand.instrument.Symbol
	}
	if len(selected) == 0 {
		s.log.Warn().Msg("no tracked instruments matched the configured set")
	} else {
		s.log.Info().Strs("symbols", symbols).Msg("selected top-volume instruments")
	}
	return selected, nil
}

func (s *Selector) fetchAll(ctx context.Context) (*allTickersResponse, error) {
	url := s.baseURL + "/api/v1/market/allTickers"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http do: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var payload allTickersResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(payload.Data.Ticker) == 0 {
		return nil, fmt.Errorf("empty ticker list")
	}
	return &payload, nil
}
