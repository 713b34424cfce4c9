// Package feed hosts the streaming price client: token handshake, websocket
// subscriptions, heartbeat, supervised reconnection, and the fallback poller.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/realMNohgee/meme-trader-bot/internal/config"
	"github.com/realMNohgee/meme-trader-bot/internal/market"
	"github.com/realMNohgee/meme-trader-bot/internal/metrics"
)

const (
	tokenPath         = "/api/v1/bullet-public"
	level1Path        = "/api/v1/market/orderbook/level1"
	tickerTopicPrefix = "/market/ticker:"
)

// PriceStore receives parsed price samples and answers whether a symbol has
// one yet. Implemented by the tracker.
type PriceStore interface {
	Observe(symbol string, price float64)
	Price(symbol string) float64
}

// Client streams ticker prices for a fixed instrument set into a PriceStore.
type Client struct {
	log          zerolog.Logger
	cfg          config.Feed
	restBase     string
	httpClient   *http.Client
	instruments  []market.Instrument
	pairToSymbol map[string]string
	store        PriceStore
	msgID        atomic.Int64
}

type bulletResponse struct {
	Code string `json:"code"`
	Data struct {
		Token           string `json:"token"`
		InstanceServers []struct {
			Endpoint     string `json:"endpoint"`
			Protocol     string `json:"protocol"`
			PingInterval int64  `json:"pingInterval"` // milliseconds
		} `json:"instanceServers"`
	} `json:"data"`
}

type streamMessage struct {
	ID    string `json:"id"`
	Type  string `json:"type"`
	Topic string `json:"topic"`
	Data  struct {
		Price string `json:"price"`
	} `json:"data"`
}

type outboundMessage struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Topic    string `json:"topic,omitempty"`
	Response bool   `json:"response,omitempty"`
}

type level1Response struct {
	Data struct {
		Price string `json:"price"`
	} `json:"data"`
}

// NewClient builds a streaming client for the given catalog.
func NewClient(log zerolog.Logger, feedCfg config.Feed, exchangeCfg config.Exchange, instruments []market.Instrument, store PriceStore) *Client {
	pairToSymbol := make(map[string]string, len(instruments))
	for _, inst := range instruments {
		pairToSymbol[inst.Pair] = inst.Symbol
	}
	return &Client{
		log:          log,
		cfg:          feedCfg,
		restBase:     strings.TrimSuffix(exchangeCfg.RESTBaseURL, "/"),
		httpClient:   &http.Client{Timeout: 10 * time.Second},
		instruments:  instruments,
		pairToSymbol: pairToSymbol,
		store:        store,
	}
}

// Run drives the supervised connect loop until the context is canceled. The
// first token acquisition is allowed a bounded retry budget; if it exhausts,
// Run returns the error and startup should abort. Every later failure, token
// or stream, waits the fixed reconnect delay and tries again, indefinitely.
func (c *Client) Run(ctx context.Context) error {
	if len(c.instruments) == 0 {
		return fmt.Errorf("feed requires at least one instrument")
	}

	first := true
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		endpoint, token, pingInterval, err := c.acquireToken(ctx)
		if err != nil {
			if first {
				return fmt.Errorf("acquire stream token: %w", err)
			}
			c.log.Warn().Err(err).Msg("token refresh failed, retrying")
			if !sleepCtx(ctx, c.cfg.ReconnectDelay()) {
				return ctx.Err()
			}
			continue
		}
		first = false

		if err := c.consume(ctx, endpoint, token, pingInterval); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.log.Warn().Err(err).Msg("stream disconnected, reconnecting")
		}
		metrics.FeedReconnectsTotal.Inc()
		if !sleepCtx(ctx, c.cfg.ReconnectDelay()) {
			return ctx.Err()
		}
	}
}

// acquireToken performs the public token handshake with bounded retries and
// returns the websocket endpoint, token, and server-advertised ping interval.
func (c *Client) acquireToken(ctx context.Context) (string, string, time.Duration, error) {
	attempts := c.cfg.TokenRetryAttempts
	if attempts <= 0 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		endpoint, token, ping, err := c.fetchToken(ctx)
		if err == nil {
			return endpoint, token, ping, nil
		}
		lastErr = err
		c.log.Warn().Err(err).Int("attempt", attempt).Msg("token fetch failed")
		if attempt < attempts {
			if !sleepCtx(ctx, c.cfg.TokenRetryDelay()) {
				return "", "", 0, ctx.Err()
			}
		}
	}
	return "", "", 0, lastErr
}

func (c *Client) fetchToken(ctx context.Context) (string, string, time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.restBase+tokenPath, nil)
	if err != nil {
		return "", "", 0, fmt.Errorf("create request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", "", 0, fmt.Errorf("http do: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", "", 0, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var payload bulletResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", "", 0, fmt.Errorf("decode response: %w", err)
	}
	if payload.Data.Token == "" || len(payload.Data.InstanceServers) == 0 {
		return "", "", 0, fmt.Errorf("handshake missing token or endpoint")
	}

	server := payload.Data.InstanceServers[0]
	ping := c.cfg.PingInterval()
	if server.PingInterval > 0 {
		ping = time.Duration(server.PingInterval) * time.Millisecond
	}
	return server.Endpoint, payload.Data.Token, ping, nil
}

// consume owns one websocket connection: subscribe to every instrument with
// a fixed stagger, heartbeat at the advertised interval, and feed parsed
// ticks into the store until the connection drops.
func (c *Client) consume(ctx context.Context, endpoint, token string, pingInterval time.Duration) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, endpoint+"?token="+url.QueryEscape(token), nil)
	if err != nil {
		return fmt.Errorf("dial stream: %w", err)
	}
	defer conn.Close()

	c.log.Info().Int("instruments", len(c.instruments)).Msg("stream connected, subscribing")

	conn.SetReadLimit(1 << 20)
	_ = conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout()))

	for _, inst := range c.instruments {
		sub := outboundMessage{
			ID:       c.nextID(),
			Type:     "subscribe",
			Topic:    tickerTopicPrefix + inst.Pair,
			Response: true,
		}
		_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if err := conn.WriteJSON(sub); err != nil {
			return fmt.Errorf("subscribe %s: %w", inst.Pair, err)
		}
		if !sleepCtx(ctx, c.cfg.SubscribeStagger()) {
			return ctx.Err()
		}
	}

	pingCtx, pingCancel := context.WithCancel(ctx)
	defer pingCancel()
	go c.heartbeat(pingCtx, conn, pingInterval)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		_, message, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		_ = conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout()))
		c.handleMessage(message)
	}
}

// heartbeat pings on a fixed interval. Send failures are logged and end the
// loop; the read deadline detects the dead connection and triggers a
// reconnect.
func (c *Client) heartbeat(ctx context.Context, conn *websocket.Conn, interval time.Duration) {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := conn.WriteJSON(outboundMessage{ID: c.nextID(), Type: "ping"}); err != nil {
				c.log.Warn().Err(err).Msg("heartbeat failed")
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// handleMessage parses one inbound frame. Only ticker updates matter; pongs,
// acks, and malformed frames are skipped.
func (c *Client) handleMessage(message []byte) {
	var msg streamMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		c.log.Debug().Err(err).Msg("unparsable stream message")
		return
	}
	if msg.Type == "pong" {
		return
	}
	if !strings.HasPrefix(msg.Topic, tickerTopicPrefix) {
		return
	}
	pair := strings.TrimPrefix(msg.Topic, tickerTopicPrefix)
	symbol, ok := c.pairToSymbol[pair]
	if !ok {
		return
	}
	price, err := strconv.ParseFloat(msg.Data.Price, 64)
	if err != nil || price <= 0 {
		c.log.Debug().Str("pair", pair).Str("raw", msg.Data.Price).Msg("skipping tick without usable price")
		return
	}

	if prev := c.store.Price(symbol); prev > 0 {
		change := (price - prev) / prev * 100
		c.log.Debug().Str("symbol", symbol).Float64("price", price).Float64("change_pct", change).Msg("tick")
	}
	c.store.Observe(symbol, price)
	metrics.TicksTotal.WithLabelValues(symbol).Inc()
}

// RunPoller periodically fetches a last-trade price over REST for any
// instrument the stream has not fed yet, seeding the store so initial
// funding and trading can start. It never overwrites streamed data with
// anything but a fresh forward sample.
func (c *Client) RunPoller(ctx context.Context) error {
	ticker := time.NewTicker(c.cfg.PollInterval())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			for _, inst := range c.instruments {
				if c.store.Price(inst.Symbol) > 0 {
					continue
				}
				price, err := c.fetchLevel1(ctx, inst.Pair)
				if err != nil {
					if ctx.Err() != nil {
						return ctx.Err()
					}
					c.log.Warn().Err(err).Str("pair", inst.Pair).Msg("fallback price fetch failed")
					continue
				}
				c.store.Observe(inst.Symbol, price)
				metrics.TicksTotal.WithLabelValues(inst.Symbol).Inc()
				c.log.Info().Str("symbol", inst.Symbol).Float64("price", price).Msg("seeded price via fallback poll")
			}
		}
	}
}

func (c *Client) fetchLevel1(ctx context.Context, pair string) (float64, error) {
	endpoint := c.restBase + level1Path + "?symbol=" + url.QueryEscape(pair)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("http do: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var payload level1Response
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return 0, fmt.Errorf("decode response: %w", err)
	}
	price, err := strconv.ParseFloat(payload.Data.Price, 64)
	if err != nil || price <= 0 {
		return 0, fmt.Errorf("no usable price in response")
	}
	return price, nil
}

func (c *Client) nextID() string {
	return strconv.FormatInt(c.msgID.Add(1), 10)
}

// sleepCtx waits for the duration unless the context ends first; it reports
// whether the full wait completed.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	select {
	case <-time.After(d):
		return true
	case <-ctx.Done():
		return false
	}
}
