package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"sync"
	"syscall"
	"time"

	"ig-streamer/src/factories"
	"ig-streamer/src/ingestor"
	"ig-streamer/src/logger"
	"ig-streamer/src/models"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

var (
	watchFields  string
	watchRefresh time.Duration
)

var watchCmd = &cobra.Command{
	Use:   "watch EPIC [EPIC...]",
	Short: "Print a live price table for the given epics",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runWatch,
}

func init() {
	watchCmd.Flags().StringVarP(&watchFields, "fields", "f", "day", "tick field selector (all, day)")
	watchCmd.Flags().DurationVarP(&watchRefresh, "refresh", "r", time.Second, "table refresh interval")
}

// -----------------------------------------------------------------------------

// priceBoard keeps the latest tick per epic.
type priceBoard struct {
	mu    sync.Mutex
	ticks map[string]models.MTick
}

func (b *priceBoard) OnEvent(event *models.MStreamEvent) {
	tick, ok := event.Payload.(models.MTick)
	if !ok {
		return
	}
	b.mu.Lock()
	b.ticks[tick.Epic] = tick
	b.mu.Unlock()
}

func (b *priceBoard) render(status models.MConnectionStatus) {
	b.mu.Lock()
	epics := make([]string, 0, len(b.ticks))
	for epic := range b.ticks {
		epics = append(epics, epic)
	}
	sort.Strings(epics)

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleLight)
	t.SetTitle("IG prices  [%s]", status)
	t.AppendHeader(table.Row{"Epic", "Bid", "Offer", "Spread", "Day %", "High", "Low", "Time"})
	for _, epic := range epics {
		tick := b.ticks[epic]
		spread := "-"
		if bid, ok := tick.Bid.Get(); ok {
			if offer, ok := tick.Offer.Get(); ok {
				spread = offer.Sub(bid).String()
			}
		}
		when := "-"
		if ts, ok := tick.Time.Get(); ok {
			when = ts.Local().Format("15:04:05.000")
		}
		t.AppendRow(table.Row{
			epic, number(tick.Bid), number(tick.Offer), spread,
			change(tick.DayPercentChangeMid), number(tick.DayHigh), number(tick.DayLow), when,
		})
	}
	b.mu.Unlock()

	fmt.Print("\033[H\033[2J")
	t.Render()
}

func number(f models.MField[decimal.Decimal]) string {
	if v, ok := f.Get(); ok {
		return v.String()
	}
	return "-"
}

func change(f models.MField[decimal.Decimal]) string {
	v, ok := f.Get()
	if !ok {
		return "-"
	}
	switch v.Sign() {
	case 1:
		return text.FgGreen.Sprint("+" + v.StringFixed(2))
	case -1:
		return text.FgRed.Sprint(v.StringFixed(2))
	}
	return v.StringFixed(2)
}

// -----------------------------------------------------------------------------

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	// the table owns stdout, only log warnings
	if cfg.LogLevel == "info" || cfg.LogLevel == "debug" {
		cfg.LogLevel = "warning"
	}
	cfg.Subscriptions = models.MSubscriptionsConfig{}
	log := logger.NewLogger(cfg.Name, cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	board := &priceBoard{ticks: make(map[string]models.MTick)}
	transport, err := factories.NewTransportFactory(cfg, log).CreateTransport(cfg.Name + "-watch")
	if err != nil {
		return err
	}
	source := ingestor.NewMarketDataSource(cfg, transport, log, board.OnEvent)
	defer source.Stop()

	if err := source.Start(ctx); err != nil {
		return err
	}
	for _, epic := range args {
		if err := source.SubscribePrices(ctx, epic, watchFields, true); err != nil {
			return fmt.Errorf("failed to subscribe %s: %w", epic, err)
		}
	}

	ticker := time.NewTicker(watchRefresh)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			board.render(source.Session.Status())
		}
	}
}
