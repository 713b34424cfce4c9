package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	ossignal "os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/realMNohgee/meme-trader-bot/internal/config"
	"github.com/realMNohgee/meme-trader-bot/internal/engine"
	"github.com/realMNohgee/meme-trader-bot/internal/feed"
	"github.com/realMNohgee/meme-trader-bot/internal/ledger"
	"github.com/realMNohgee/meme-trader-bot/internal/market"
	"github.com/realMNohgee/meme-trader-bot/internal/metrics"
	"github.com/realMNohgee/meme-trader-bot/internal/tracker"
	"github.com/realMNohgee/meme-trader-bot/internal/util"
)

const defaultConfigPath = "config.yaml"

func main() {
	_ = godotenv.Load() // best-effort

	configPath := flag.String("config", defaultConfigPath, "path to YAML config")
	console := flag.Bool("console", true, "human-readable logs on stderr")
	statusEvery := flag.Duration("status", 10*time.Second, "status print interval (0 disables)")
	flag.Parse()

	if path := os.Getenv("TRADER_CONFIG"); path != "" {
		*configPath = path
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
			os.Exit(1)
		}
		cfg = config.Default()
	}
	if base := os.Getenv("TRADER_REST_BASE_URL"); base != "" {
		cfg.Exchange.RESTBaseURL = base
	}

	var log zerolog.Logger
	if *console {
		log = util.NewConsoleLogger(cfg.App.LogLevel)
	} else {
		log = util.NewLogger(cfg.App.LogLevel)
	}

	_ = metrics.Serve(cfg.App.MetricsAddr)
	log.Info().Str("addr", cfg.App.MetricsAddr).Msg("metrics up")

	ctx, cancel := ossignal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	selector := market.NewSelector(log, cfg.Exchange)
	instruments, err := selector.SelectTop(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("instrument selection failed; nothing to trade")
	}
	if len(instruments) == 0 {
		log.Warn().Msg("empty catalog; the bot will idle until restarted")
	}

	tr := tracker.New(cfg.Trading.HistoryWindow)
	led := ledger.New(cfg.Trading.InitialBalance, cfg.Trading.FeePct, cfg.Trading.MaxAllocPerSymbol)
	eng := engine.New(log, cfg.Trading, instruments, tr, led)

	if len(instruments) > 0 {
		client := feed.NewClient(log, cfg.Feed, cfg.Exchange, instruments, tr)
		go func() {
			if err := client.Run(ctx); err != nil && ctx.Err() == nil {
				// Token acquisition exhausted its retries at startup; there
				// is no feed to trade against.
				log.Error().Err(err).Msg("feed failed fatally")
				cancel()
			}
		}()
		go func() { _ = client.RunPoller(ctx) }()
		go func() { _ = eng.Run(ctx) }()
		go eng.RunInitialFunding(ctx)
	}

	go controlLoop(ctx, cancel, log, eng)
	if *statusEvery > 0 {
		go statusLoop(ctx, eng, *statusEvery)
	}

	log.Info().Str("env", cfg.App.Env).Int("instruments", len(instruments)).Msg("trader started (r=reset, q=quit)")
	<-ctx.Done()
	log.Info().Msg("shutting down")
}

// controlLoop services the two presenter signals: reset and quit.
func controlLoop(ctx context.Context, cancel context.CancelFunc, log zerolog.Logger, eng *engine.Engine) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		switch strings.ToLower(strings.TrimSpace(scanner.Text())) {
		case "q", "quit":
			cancel()
			return
		case "r", "reset":
			go eng.Reset(ctx)
		case "":
		default:
			fmt.Println("commands: r=reset, q=quit")
		}
		if ctx.Err() != nil {
			return
		}
	}
}

// statusLoop prints a plain-text snapshot on a fixed cadence, reading only
// the engine's consistent status view.
func statusLoop(ctx context.Context, eng *engine.Engine, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			printStatus(eng.Status())
		}
	}
}

func printStatus(status engine.Status) {
	fmt.Printf("\n--- cash $%.2f | profit $%.2f | trades %d ---\n", status.Cash, status.TotalProfit, status.TotalTrades)
	for _, inst := range status.Instruments {
		fmt.Printf("%-6s $%.8f  dev %+0.3f%%  bal %.4f  inv $%.2f  prof $%.2f\n",
			inst.Instrument.Symbol,
			inst.Quote.Price,
			inst.Quote.Deviation,
			inst.Entry.Quantity,
			inst.Entry.Invested,
			inst.Entry.Realized,
		)
	}
	for _, trade := range status.RecentTrades {
		profit := ""
		if trade.Side == ledger.Sell {
			profit = fmt.Sprintf(" profit $%.4f", trade.Profit)
		}
		fmt.Printf("  %s %s %s $%.2f qty %.4f fee $%.4f%s\n",
			trade.Time.Format("15:04:05"), trade.Side, trade.Symbol, trade.USD, trade.Quantity, trade.Fee, profit)
	}
}
