// Package tranche keeps each tranche's reduce-only protective orders in line
// with its rules. Broker open orders are the source of truth: every pass
// re-derives the wanted legs and diffs them against a fresh listing.
package tranche

import (
	"context"
	"sort"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/chidi150c/tranchebot/internal/exchange"
	"github.com/chidi150c/tranchebot/internal/indicators"
)

// Status gates evaluation of a tranche.
type Status string

const (
	Active   Status = "active"
	Inactive Status = "inactive"
)

// Legs maps a leg name (tp1, stop, tgt2, ...) to its tick-rounded price.
// A leg without a price is absent.
type Legs map[string]float64

// Names returns the leg names in a stable order.
func (l Legs) Names() []string {
	out := make([]string, 0, len(l))
	for k := range l {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Strategy is one tranche archetype. Desired returns the legs that should
// rest at the broker right now; it may place or amend orders it owns.
type Strategy interface {
	Name() string
	Qty() int
	Side() exchange.Side
	Active() bool
	Desired(ctx context.Context, env *Env) (Legs, error)
}

// LegObserver is implemented by strategies that track orders placed for them
// by the reconciler.
type LegObserver interface {
	LegSubmitted(leg, orderID string, price float64)
}

// Base carries the fields every archetype shares.
type Base struct {
	TrancheName string
	Contracts   int
	ExitSide    exchange.Side
	Status      Status
}

func (b *Base) Name() string { return b.TrancheName }
func (b *Base) Qty() int     { return b.Contracts }
func (b *Base) Active() bool { return b.Status == Active }

// Side defaults to BUY, i.e. covering a short.
func (b *Base) Side() exchange.Side {
	if b.ExitSide == "" {
		return exchange.Buy
	}
	return b.ExitSide
}

// Env is what a strategy sees during one evaluation.
type Env struct {
	Instrument exchange.Instrument
	Orders     exchange.Orders
	Bars       *indicators.BarWindow
	ATRPeriod  int
	Position   int
	Price      float64
	Log        zerolog.Logger
}

// OpenOrders lists the instrument's open orders keyed by rounded price.
func (e *Env) OpenOrders(ctx context.Context) (exchange.OrderBook, []exchange.OpenOrder, error) {
	raw, err := e.Orders.OpenOrders(ctx, e.Instrument.Symbol())
	if err != nil {
		return nil, nil, err
	}
	return exchange.Index(e.Instrument, raw), raw, nil
}

// SubmitReduceOnly places a GTC reduce-only order at px.
func (e *Env) SubmitReduceOnly(ctx context.Context, side exchange.Side, qty int, typ exchange.OrderType, px float64) (string, error) {
	return e.Orders.Submit(ctx, exchange.SubmitRequest{
		Symbol:        e.Instrument.Symbol(),
		Side:          side,
		Qty:           qty,
		Type:          typ,
		Price:         e.Instrument.RoundToTick(px),
		TimeInForce:   "GTC",
		ReduceOnly:    true,
		ClientOrderID: uuid.NewString(),
	})
}

// OrderTypeFor picks LIMIT when px is better than the market for side and
// STOP otherwise.
func OrderTypeFor(side exchange.Side, px, market float64) exchange.OrderType {
	if (side == exchange.Buy && px < market) || (side == exchange.Sell && px > market) {
		return exchange.Limit
	}
	return exchange.Stop
}
