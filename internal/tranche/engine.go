package tranche

import (
	"context"
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/chidi150c/tranchebot/internal/exchange"
	"github.com/chidi150c/tranchebot/internal/indicators"
	"github.com/chidi150c/tranchebot/internal/risk"
)

// Config wires an Engine.
type Config struct {
	Instrument exchange.Instrument
	Limits     risk.Limits
	ATRPeriod  int
	Strategies []Strategy
}

// Engine evaluates tranches on every tick and reconciles their legs. It is
// driven from a single goroutine; only risk.State is shared.
type Engine struct {
	ins        exchange.Instrument
	limits     risk.Limits
	atrPeriod  int
	orders     exchange.Orders
	state      *risk.State
	bars       *indicators.BarWindow
	strategies []Strategy
	byName     map[string]Strategy
	legIDs     map[string]map[string]string
	log        zerolog.Logger
}

// New builds an engine. orders should already be wrapped in any safety layer.
func New(cfg Config, orders exchange.Orders, state *risk.State, log zerolog.Logger) *Engine {
	period := cfg.ATRPeriod
	if period <= 0 {
		period = indicators.DefaultATRPeriod
	}
	e := &Engine{
		ins:        cfg.Instrument,
		limits:     cfg.Limits,
		atrPeriod:  period,
		orders:     orders,
		state:      state,
		bars:       indicators.NewBarWindow(period + 1),
		strategies: cfg.Strategies,
		byName:     make(map[string]Strategy, len(cfg.Strategies)),
		legIDs:     make(map[string]map[string]string, len(cfg.Strategies)),
		log:        log.With().Str("component", "tranche").Logger(),
	}
	for _, s := range cfg.Strategies {
		e.byName[s.Name()] = s
		e.legIDs[s.Name()] = map[string]string{}
	}
	return e
}

// Bars exposes the one-minute window fed by OnTick.
func (e *Engine) Bars() *indicators.BarWindow { return e.bars }

// LegOrderID is the last order id submitted for a tranche leg.
func (e *Engine) LegOrderID(tranche, leg string) (string, bool) {
	id, ok := e.legIDs[tranche][leg]
	return id, ok
}

// OnTick handles one trade print: it updates price and bars, then runs a
// full evaluation before returning. Prints that are not positive finite
// numbers are dropped.
func (e *Engine) OnTick(ctx context.Context, price float64, at time.Time) {
	if math.IsNaN(price) || math.IsInf(price, 0) || price <= 0 {
		metricSkips.WithLabelValues("bad_price").Inc()
		e.log.Warn().Float64("price", price).Msg("dropping unusable tick")
		return
	}
	e.state.SetPrice(price, at)
	e.bars.RecordTick(price, at)
	metricLastPrice.Set(price)
	e.Evaluate(ctx)
}

type plan struct {
	s    Strategy
	legs Legs
}

// Evaluate runs every active, entered tranche. Nothing is touched while the
// position is over the hard limit. If any tranche fails to produce its legs
// the whole pass is dropped and the next tick starts over.
func (e *Engine) Evaluate(ctx context.Context) {
	snap := e.state.Snapshot()
	metricPosition.Set(float64(snap.Position))
	if e.limits.Breached(snap.Position) {
		metricSkips.WithLabelValues("position_limit").Inc()
		e.log.Debug().Int("position", snap.Position).Int("limit", e.limits.PositionLimit).Msg("position over hard limit; evaluation paused")
		return
	}
	if !snap.HasPrice {
		metricSkips.WithLabelValues("no_price").Inc()
		return
	}

	env := &Env{
		Instrument: e.ins,
		Orders:     e.orders,
		Bars:       e.bars,
		ATRPeriod:  e.atrPeriod,
		Position:   snap.Position,
		Price:      snap.LastPrice,
		Log:        e.log,
	}

	var plans []plan
	for _, s := range e.strategies {
		if !s.Active() || !risk.Entered(snap.Position, s.Qty()) {
			continue
		}
		legs, err := s.Desired(ctx, env)
		if err != nil {
			metricSkips.WithLabelValues("strategy_error").Inc()
			e.log.Warn().Err(err).Str("tranche", s.Name()).Msg("tranche evaluation failed; abandoning tick")
			return
		}
		plans = append(plans, plan{s: s, legs: legs})
	}

	// Legs of every entered tranche are off limits to each tranche's cancel phase.
	claimed := make(map[float64]struct{})
	for _, p := range plans {
		for _, px := range p.legs {
			claimed[px] = struct{}{}
		}
	}
	for _, p := range plans {
		if err := e.reconcile(ctx, p.s.Name(), p.legs, p.s.Qty(), p.s.Side(), snap.LastPrice, claimed); err != nil {
			e.log.Warn().Err(err).Str("tranche", p.s.Name()).Msg("reconcile abandoned")
		}
	}
}
