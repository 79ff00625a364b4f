package indicators

import "math"

// DefaultATRPeriod is the Wilder lookback.
const DefaultATRPeriod = 14

// ATR is the simple mean of the last period true ranges. The bar preceding
// that window only seeds the previous close. Fewer than period+1 bars yields 0.
func ATR(bars []Bar, period int) float64 {
	if period <= 0 || len(bars) < period+1 {
		return 0
	}
	window := bars[len(bars)-period:]
	prevClose := bars[len(bars)-period-1].Close

	var sum float64
	for _, b := range window {
		tr := math.Max(b.High-b.Low, math.Max(math.Abs(b.High-prevClose), math.Abs(b.Low-prevClose)))
		sum += tr
		prevClose = b.Close
	}
	return sum / float64(period)
}
