package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/chidi150c/tranchebot/internal/config"
	"github.com/chidi150c/tranchebot/internal/feed"
	"github.com/chidi150c/tranchebot/internal/guards"
	"github.com/chidi150c/tranchebot/internal/ironbeam"
	"github.com/chidi150c/tranchebot/internal/risk"
	"github.com/chidi150c/tranchebot/internal/tranche"
)

func newRunCmd(a *app) *cobra.Command {
	var (
		metricsAddr string
		maxTickAge  time.Duration
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Poll positions, stream prices and reconcile tranche orders",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			err := a.run(ctx, metricsAddr, maxTickAge)
			if err != nil {
				a.log.Error().Err(err).Msg("tranched stopped")
			}
			return err
		},
	}
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", ":9102", "listen address for /metrics and /healthz; empty disables")
	cmd.Flags().DurationVar(&maxTickAge, "max-tick-age", 5*time.Minute, "report unhealthy when no tick arrived for this long; 0 disables")
	return cmd
}

// run blocks until ctx is cancelled. Only configuration problems return
// early; feed failures are retried inside the loops.
func (a *app) run(ctx context.Context, metricsAddr string, maxTickAge time.Duration) error {
	rules, err := config.LoadRules(a.rulesPath)
	if err != nil {
		return err
	}
	if rules.Engine.MDWS == "" {
		return fmt.Errorf("%w: engine.md_ws is required to run", config.ErrInvalidRules)
	}
	creds, err := config.LoadCredentials()
	if err != nil {
		return err
	}

	ins := rules.Instrument()
	client := ironbeam.NewClient(ironbeam.Config{
		BaseURL:    rules.Engine.RestBase,
		APIKey:     creds.APIKey,
		APISecret:  creds.APISecret,
		Account:    creds.Account,
		Instrument: ins,
	}, a.log)
	orders := guards.NewSafeOrders(client, rules.GuardOptions(), a.log)
	state := risk.NewState()
	engine := tranche.New(rules.EngineConfig(), orders, state, a.log)

	poller := &feed.PositionPoller{
		Source:   client,
		State:    state,
		Contract: rules.Contract,
		Interval: rules.PollInterval(),
		Log:      a.log,
	}
	md := &feed.MarketData{
		URL:    rules.Engine.MDWS,
		Symbol: ins.Symbol(),
		OnTick: engine.OnTick,
		Log:    a.log,
	}

	health := feedHealth(orders, state, 3*rules.PollInterval(), maxTickAge, time.Now)
	srv := metricsServer(metricsAddr, health)
	if srv != nil {
		go func() {
			a.log.Info().Str("addr", metricsAddr).Msg("serving /metrics")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.log.Error().Err(err).Msg("metrics server")
			}
		}()
	}

	a.log.Info().
		Str("symbol", ins.Symbol()).
		Int("tranches", len(rules.Tranches)).
		Int("position_limit", rules.PositionLimit).
		Msg("tranched started")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return poller.Run(gctx) })
	g.Go(func() error { return md.Run(gctx) })
	err = g.Wait()

	if srv != nil {
		shutdownCtx, c := context.WithTimeout(context.Background(), 2*time.Second)
		defer c()
		_ = srv.Shutdown(shutdownCtx)
	}
	if errors.Is(err, context.Canceled) {
		a.log.Info().Msg("tranched stopped")
		return nil
	}
	return err
}

type breaker interface {
	BreakerOpen() bool
}

// feedHealth fails while the order breaker is open, before the first
// position poll, when the last poll is older than maxPosAge, or when no tick
// arrived within maxTickAge (0 disables the tick check).
func feedHealth(orders breaker, state *risk.State, maxPosAge, maxTickAge time.Duration, now func() time.Time) func() error {
	return func() error {
		if orders.BreakerOpen() {
			return guards.ErrBreakerOpen
		}
		snap := state.Snapshot()
		t := now()
		if snap.PositionAt.IsZero() {
			return errors.New("no position poll yet")
		}
		if age := t.Sub(snap.PositionAt); age > maxPosAge {
			return fmt.Errorf("position stale for %s", age.Round(time.Second))
		}
		if maxTickAge > 0 && snap.HasPrice {
			if age := t.Sub(snap.LastTickAt); age > maxTickAge {
				return fmt.Errorf("no tick for %s", age.Round(time.Second))
			}
		}
		return nil
	}
}

func metricsServer(addr string, health func() error) *http.Server {
	if addr == "" {
		return nil
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		if health != nil {
			if err := health(); err != nil {
				http.Error(w, "unhealthy: "+err.Error(), http.StatusServiceUnavailable)
				return
			}
		}
		_, _ = w.Write([]byte("ok\n"))
	})
	mux.Handle("/metrics", promhttp.Handler())
	return &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
}
