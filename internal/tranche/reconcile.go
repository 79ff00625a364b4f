package tranche

import (
	"context"
	"fmt"

	"github.com/chidi150c/tranchebot/internal/exchange"
)

// Reconcile makes the broker's reduce-only orders for the instrument match
// want exactly: stale ones are cancelled first, then missing legs are
// submitted. Cancel and submit failures are logged and left for the next
// pass; only a failed listing aborts.
//
// The listing is trusted as-is. If it lags behind an order submitted on an
// earlier pass, that leg is submitted again. That is not guarded against.
func (e *Engine) Reconcile(ctx context.Context, name string, want Legs, qty int, side exchange.Side) error {
	px, _ := e.state.LastPrice()
	return e.reconcile(ctx, name, want, qty, side, px, nil)
}

func (e *Engine) reconcile(ctx context.Context, name string, want Legs, qty int, side exchange.Side, market float64, keep map[float64]struct{}) error {
	log := e.log.With().Str("tranche", name).Logger()

	raw, err := e.orders.OpenOrders(ctx, e.ins.Symbol())
	if err != nil {
		metricPasses.WithLabelValues(name, "list_failed").Inc()
		return fmt.Errorf("list open orders: %w", err)
	}
	open := exchange.Index(e.ins, raw)

	wanted := make(map[float64]struct{}, len(want))
	for _, px := range want {
		wanted[e.ins.RoundToTick(px)] = struct{}{}
	}

	for px, o := range open {
		if !o.ReduceOnly {
			continue
		}
		if _, ok := wanted[px]; ok {
			continue
		}
		if _, ok := keep[px]; ok {
			continue
		}
		if err := e.orders.Cancel(ctx, o.OrderID); err != nil {
			metricCancels.WithLabelValues(name, "error").Inc()
			log.Warn().Err(err).Str("order_id", o.OrderID).Float64("price", px).Msg("cancel failed")
			continue
		}
		metricCancels.WithLabelValues(name, "ok").Inc()
		log.Info().Str("order_id", o.OrderID).Float64("price", px).Msg("cancelled rogue order")
	}

	env := &Env{Instrument: e.ins, Orders: e.orders}
	observer, _ := e.byName[name].(LegObserver)
	for _, leg := range want.Names() {
		px := e.ins.RoundToTick(want[leg])
		if _, ok := open[px]; ok {
			continue
		}
		typ := OrderTypeFor(side, px, market)
		id, err := env.SubmitReduceOnly(ctx, side, qty, typ, px)
		if err != nil {
			metricSubmits.WithLabelValues(name, string(typ), "error").Inc()
			log.Warn().Err(err).Str("leg", leg).Float64("price", px).Msg("submit failed")
			continue
		}
		metricSubmits.WithLabelValues(name, string(typ), "ok").Inc()
		if _, ok := e.legIDs[name]; !ok {
			e.legIDs[name] = map[string]string{}
		}
		e.legIDs[name][leg] = id
		if observer != nil {
			observer.LegSubmitted(leg, id, px)
		}
		log.Info().Str("leg", leg).Str("type", string(typ)).Float64("price", px).Str("order_id", id).Msg("leg added")
	}

	metricPasses.WithLabelValues(name, "ok").Inc()
	return nil
}
