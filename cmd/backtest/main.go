// Backtest runner CLI: replays persisted BUY StoredSignals through the
// rank -> allocate -> simulate -> metrics pipeline (§4.5) over a date
// range and prints the resulting report.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/signalforge/core/internal/adapters"
	"github.com/signalforge/core/internal/backtest"
	"github.com/signalforge/core/internal/config"
	"github.com/signalforge/core/internal/db"
	"github.com/signalforge/core/internal/domain"
	"github.com/signalforge/core/internal/signals"
)

var (
	configPath     = flag.String("config", "", "Path to config file (optional, falls back to env)")
	tickers        = flag.String("tickers", "", "Comma-separated ticker filter (empty runs every ticker with signals in range)")
	startDate      = flag.String("start", "", "Start date (YYYY-MM-DD), required")
	endDate        = flag.String("end", "", "End date (YYYY-MM-DD), required")
	allocationMode = flag.String("mode", "BALANCED", "Allocation mode: CORE_FOCUS, BALANCED, DIVERSIFIED")
	initialCapital = flag.Float64("capital", 100000.0, "Starting capital in USD")
	holdPeriodDays = flag.Int("hold-days", 10, "Maximum calendar days to hold a simulated position")
	candleInterval = flag.String("interval", "1d", "Candlestick interval to replay (must match ingested data)")
	verbose        = flag.Bool("verbose", false, "Enable debug logging")
)

func main() {
	flag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	if *verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	if *startDate == "" || *endDate == "" {
		fmt.Fprintln(os.Stderr, "Error: -start and -end are required (YYYY-MM-DD)")
		flag.Usage()
		os.Exit(1)
	}

	start, err := time.Parse("2006-01-02", *startDate)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid -start date")
	}
	end, err := time.Parse("2006-01-02", *endDate)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid -end date")
	}

	mode := domain.AllocationMode(strings.ToUpper(*allocationMode))
	switch mode {
	case domain.AllocationCoreFocus, domain.AllocationBalanced, domain.AllocationDiversified:
	default:
		log.Fatal().Str("mode", string(mode)).Msg("unknown allocation mode (want CORE_FOCUS, BALANCED, or DIVERSIFIED)")
	}

	ctx := context.Background()
	result, err := run(ctx, start, end, parseTickers(*tickers), mode)
	if err != nil {
		log.Fatal().Err(err).Msg("backtest run failed")
	}

	printReport(result)
}

func run(ctx context.Context, start, end time.Time, tickerList []string, mode domain.AllocationMode) (backtest.Result, error) {
	dsn := ""
	if *configPath != "" {
		cfg, err := config.Load(*configPath)
		if err != nil {
			return backtest.Result{}, fmt.Errorf("loading config: %w", err)
		}
		dsn = cfg.Database.GetDSN()
	}

	database, err := db.New(ctx, dsn)
	if err != nil {
		return backtest.Result{}, fmt.Errorf("connecting to database: %w", err)
	}
	defer database.Close()

	store := signals.NewStore(database.Pool(), nil, log.Logger)
	signalSet, err := store.ListForBacktest(ctx, start, end, tickerList)
	if err != nil {
		return backtest.Result{}, fmt.Errorf("loading signals: %w", err)
	}
	log.Info().Int("signals", len(signalSet)).Time("start", start).Time("end", end).Msg("loaded signals for backtest")

	history := adapters.NewDBHistorySource(database.Pool(), *candleInterval)
	engine := backtest.NewEngine(history, *holdPeriodDays, time.Now().UnixNano())

	return engine.Run(ctx, signalSet, mode, *initialCapital), nil
}

func parseTickers(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.ToUpper(strings.TrimSpace(p)); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func printReport(result backtest.Result) {
	m := result.Metrics
	fmt.Printf("Backtest %s\n", result.BacktestID)
	fmt.Printf("  Trades:        %d\n", m.TotalTrades)
	fmt.Printf("  Total P&L:     $%.2f\n", m.TotalPnL)
	fmt.Printf("  Win rate:      %.1f%%\n", m.WinRate)
	fmt.Printf("  Avg gain:      $%.2f\n", m.AvgGain)
	fmt.Printf("  Avg loss:      $%.2f\n", m.AvgLoss)
	fmt.Printf("  Largest win:   $%.2f\n", m.LargestWin)
	fmt.Printf("  Largest loss:  $%.2f\n", m.LargestLoss)
	fmt.Printf("  Profit factor: %.2f\n", m.ProfitFactor)
	fmt.Printf("  Sharpe:        %.2f\n", m.Sharpe)
	fmt.Printf("  Max drawdown:  %.1f%%\n", m.MaxDrawdown*100)
	fmt.Printf("  Avg days held: %.1f\n", m.AvgDaysHeld)
}
