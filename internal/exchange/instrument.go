package exchange

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Default MBT increments.
const (
	DefaultTickSize  = 0.5
	DefaultTickValue = 0.5
)

// Instrument carries the contract identity and its price grid.
type Instrument struct {
	Root      string  // e.g. MBT
	Contract  string  // e.g. MBTM25
	TickSize  float64 // minimum price increment
	TickValue float64 // USD per tick per contract
}

// Symbol is the venue symbol used for orders and market data.
func (i Instrument) Symbol() string { return fmt.Sprintf("%s_FUT_CME", i.Contract) }

func (i Instrument) tick() decimal.Decimal {
	if i.TickSize <= 0 {
		return decimal.NewFromFloat(DefaultTickSize)
	}
	return decimal.NewFromFloat(i.TickSize)
}

// RoundToTick snaps px to the nearest multiple of the tick size. Halfway
// values round to the even tick so repeated rounding never drifts.
func (i Instrument) RoundToTick(px float64) float64 {
	t := i.tick()
	return decimal.NewFromFloat(px).Div(t).RoundBank(0).Mul(t).InexactFloat64()
}

// Ticks returns the whole number of ticks in px after rounding.
func (i Instrument) Ticks(px float64) int64 {
	return decimal.NewFromFloat(px).Div(i.tick()).RoundBank(0).IntPart()
}

// FromTicks converts a tick count back into a price.
func (i Instrument) FromTicks(n int64) float64 {
	return decimal.NewFromInt(n).Mul(i.tick()).InexactFloat64()
}

// DollarRisk is the USD at risk for a stop stopTicks away on qty contracts.
func (i Instrument) DollarRisk(stopTicks int, qty int) float64 {
	v := i.TickValue
	if v <= 0 {
		v = DefaultTickValue
	}
	return decimal.NewFromFloat(v).Mul(decimal.NewFromInt(int64(stopTicks) * int64(qty))).InexactFloat64()
}
