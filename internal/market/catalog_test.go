package market

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"

	"github.com/realMNohgee/meme-trader-bot/internal/config"
)

const allTickersBody = `{"code":"200000","data":{"ticker":[
	{"symbol":"DOGE-USDT","changeRate":"0.021","volValue":"9000000"},
	{"symbol":"PEPE-USDT","changeRate":"-0.013","volValue":"12000000"},
	{"symbol":"SHIB-USDT","changeRate":"0.002","volValue":"3000000"},
	{"symbol":"BTC-USDT","changeRate":"0.010","volValue":"99000000"},
	{"symbol":"DOGE-BTC","changeRate":"0.001","volValue":"500"}
]}}`

func testExchangeConfig(baseURL string) config.Exchange {
	return config.Exchange{
		RESTBaseURL:    baseURL,
		QuoteCurrency:  "USDT",
		MemeSymbols:    []string{"DOGE", "PEPE", "SHIB"},
		NumInstruments: 2,
		RetryAttempts:  2,
		RetryDelayMs:   10,
	}
}

func TestSelectTopRanksByVolume(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/market/allTickers" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(allTickersBody))
	}))
	defer server.Close()

	selector := NewSelector(zerolog.Nop(), testExchangeConfig(server.URL))
	selected, err := selector.SelectTop(context.Background())
	if err != nil {
		t.Fatalf("SelectTop returned error: %v", err)
	}
	if len(selected) != 2 {
		t.Fatalf("expected 2 instruments, got %d", len(selected))
	}
	// PEPE outranks DOGE on volume; BTC filtered out, DOGE-BTC quote mismatch.
	if selected[0].Symbol != "PEPE" || selected[1].Symbol != "DOGE" {
		t.Fatalf("unexpected ranking: %+v", selected)
	}
	if selected[0].Pair != "PEPE-USDT" {
		t.Fatalf("unexpected pair id: %s", selected[0].Pair)
	}
}

func TestSelectTopRetriesThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(allTickersBody))
	}))
	defer server.Close()

	selector := NewSelector(zerolog.Nop(), testExchangeConfig(server.URL))
	selected, err := selector.SelectTop(context.Background())
	if err != nil {
		t.Fatalf("SelectTop returned error: %v", err)
	}
	if len(selected) == 0 {
		t.Fatalf("expected instruments after retry")
	}
	if calls.Load() != 2 {
		t.Fatalf("expected 2 calls, got %d", calls.Load())
	}
}

func TestSelectTopExhaustsRetries(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	selector := NewSelector(zerolog.Nop(), testExchangeConfig(server.URL))
	if _, err := selector.SelectTop(context.Background()); err == nil {
		t.Fatalf("expected error after retry exhaustion")
	}
}
