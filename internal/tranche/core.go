package tranche

import (
	"context"
	"fmt"

	"github.com/chidi150c/tranchebot/internal/exchange"
	"github.com/chidi150c/tranchebot/internal/indicators"
)

// Core is the runner tranche: an ATR-trailed stop plus fixed hard targets.
type Core struct {
	Base
	InitialStop float64
	Targets     []float64

	stopID  string
	stopPx  float64
	hasStop bool
}

// TrackedStop returns the live trailing stop the tranche is managing.
func (c *Core) TrackedStop() (id string, px float64, ok bool) {
	return c.stopID, c.stopPx, c.hasStop
}

// TrackStop seeds the tracked stop, e.g. from an operator override.
func (c *Core) TrackStop(id string, px float64) {
	c.stopID, c.stopPx, c.hasStop = id, px, true
	metricCoreStop.Set(px)
}

func (c *Core) LegSubmitted(leg, orderID string, price float64) {
	if leg == "stop" {
		c.TrackStop(orderID, price)
	}
}

func (c *Core) Desired(ctx context.Context, env *Env) (Legs, error) {
	ins := env.Instrument
	log := env.Log.With().Str("tranche", c.Name()).Logger()

	book, raw, err := env.OpenOrders(ctx)
	if err != nil {
		return nil, fmt.Errorf("list open orders: %w", err)
	}

	if !c.hasStop {
		initial := ins.RoundToTick(c.InitialStop)
		if o, ok := book[initial]; ok && o.ReduceOnly {
			c.TrackStop(o.OrderID, initial)
			log.Info().Str("order_id", o.OrderID).Float64("stop", initial).
				Float64("risk_usd", c.stopRisk(ins, initial, env.Price)).Msg("adopted resting core stop")
		} else {
			id, err := env.SubmitReduceOnly(ctx, c.Side(), c.Qty(), exchange.Stop, initial)
			if err != nil {
				return nil, fmt.Errorf("place initial stop: %w", err)
			}
			c.TrackStop(id, initial)
			log.Info().Str("order_id", id).Float64("stop", initial).
				Float64("risk_usd", c.stopRisk(ins, initial, env.Price)).Msg("core stop placed")
		}
	}

	period := env.ATRPeriod
	if period <= 0 {
		period = indicators.DefaultATRPeriod
	}
	if env.Bars != nil && env.Bars.Len() >= period+1 && c.stopResting(raw) {
		atr := indicators.ATR(env.Bars.Bars(), period)
		last, _ := env.Bars.Last()
		if next, ok := c.trail(ins, last, atr); ok {
			if err := env.Orders.Modify(ctx, c.stopID, next); err != nil {
				return nil, fmt.Errorf("trail stop %s: %w", c.stopID, err)
			}
			log.Info().Float64("from", c.stopPx).Float64("to", next).Float64("atr", atr).
				Float64("risk_usd", c.stopRisk(ins, next, env.Price)).Msg("core stop trailed")
			c.stopPx = next
			metricCoreStop.Set(next)
			metricTrails.Inc()
		}
	}

	legs := Legs{"stop": c.stopPx}
	for i, tgt := range c.Targets {
		legs[fmt.Sprintf("tgt%d", i+1)] = ins.RoundToTick(tgt)
	}
	return legs, nil
}

// stopRisk is the USD lost if the stop fills with the market at price.
func (c *Core) stopRisk(ins exchange.Instrument, stop, price float64) float64 {
	d := ins.Ticks(stop) - ins.Ticks(price)
	if d < 0 {
		d = -d
	}
	return ins.DollarRisk(int(d), c.Qty())
}

// stopResting reports whether the tracked stop is still in the listing. A
// stop that vanished is re-placed by reconciliation before it is trailed.
func (c *Core) stopResting(open []exchange.OpenOrder) bool {
	for _, o := range open {
		if o.OrderID == c.stopID {
			return true
		}
	}
	return false
}

// trail computes the ATR stop and reports whether it tightens the tracked
// one by at least a full tick. Covering a short trails above the latest
// high and only moves down; selling out of a long mirrors that.
func (c *Core) trail(ins exchange.Instrument, last indicators.Bar, atr float64) (float64, bool) {
	cur := ins.Ticks(c.stopPx)
	if c.Side() == exchange.Sell {
		next := ins.Ticks(last.Low - atr)
		return ins.FromTicks(next), next >= cur+1
	}
	next := ins.Ticks(last.High + atr)
	return ins.FromTicks(next), next <= cur-1
}
