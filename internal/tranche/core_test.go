package tranche

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chidi150c/tranchebot/internal/exchange"
	"github.com/chidi150c/tranchebot/internal/indicators"
)

var barT0 = time.Date(2025, 6, 11, 14, 0, 0, 0, time.UTC)

func fixtureWindow() *indicators.BarWindow {
	w := indicators.NewBarWindow(15)
	bars := make([]indicators.Bar, 0, 15)
	for i := 0; i < 14; i++ {
		bars = append(bars, indicators.Bar{High: 105000, Low: 104500, Close: 104700})
	}
	bars = append(bars, indicators.Bar{High: 104600, Low: 104100, Close: 104300})
	w.Load(bars, barT0)
	return w
}

func coreEnv(fb exchange.Orders, bars *indicators.BarWindow) *Env {
	return &Env{
		Instrument: mbt,
		Orders:     fb,
		Bars:       bars,
		ATRPeriod:  indicators.DefaultATRPeriod,
		Position:   5,
		Price:      104300,
		Log:        zerolog.Nop(),
	}
}

func TestCorePlacesInitialStop(t *testing.T) {
	fb := &fakeBroker{}
	c := coreRunner()
	c.InitialStop = 105200.2

	legs, err := c.Desired(context.Background(), coreEnv(fb, indicators.NewBarWindow(15)))
	require.NoError(t, err)

	require.Len(t, fb.submits, 1)
	s := fb.submits[0]
	assert.Equal(t, exchange.Stop, s.Type)
	assert.Equal(t, 105200.0, s.Price)
	assert.True(t, s.ReduceOnly)
	assert.Equal(t, 5, s.Qty)

	id, px, ok := c.TrackedStop()
	assert.True(t, ok)
	assert.Equal(t, "NEW1", id)
	assert.Equal(t, 105200.0, px)
	assert.Equal(t, Legs{"stop": 105200, "tgt1": 98000, "tgt2": 95000}, legs)
}

func TestCoreAdoptsRestingInitialStop(t *testing.T) {
	fb := &fakeBroker{open: []exchange.OpenOrder{{OrderID: "OLD", Price: 105200, ReduceOnly: true, Quantity: 5}}}
	c := coreRunner()

	_, err := c.Desired(context.Background(), coreEnv(fb, indicators.NewBarWindow(15)))
	require.NoError(t, err)

	assert.Empty(t, fb.submits)
	id, _, ok := c.TrackedStop()
	assert.True(t, ok)
	assert.Equal(t, "OLD", id)
}

func TestCoreInitialStopFailureAbandons(t *testing.T) {
	fb := &fakeBroker{submitErr: errBoom}
	c := coreRunner()

	_, err := c.Desired(context.Background(), coreEnv(fb, indicators.NewBarWindow(15)))
	require.ErrorIs(t, err, errBoom)
	_, _, ok := c.TrackedStop()
	assert.False(t, ok)
}

func TestCoreTrailsStopWithATR(t *testing.T) {
	fb := &fakeBroker{open: []exchange.OpenOrder{{OrderID: "STOP1", Price: 105200, ReduceOnly: true, Quantity: 5}}}
	c := coreRunner()
	c.TrackStop("STOP1", 105200)

	legs, err := c.Desired(context.Background(), coreEnv(fb, fixtureWindow()))
	require.NoError(t, err)

	// 104600 high + 7100/14 ATR = 105107.14, on the 0.5 grid
	require.Len(t, fb.modifies, 1)
	assert.Equal(t, modifyCall{ID: "STOP1", Price: 105107}, fb.modifies[0])
	assert.Less(t, fb.modifies[0].Price, 105200.0)
	assert.Empty(t, fb.submits, "tightening amends in place")

	_, px, _ := c.TrackedStop()
	assert.Equal(t, 105107.0, px)
	assert.Equal(t, 105107.0, legs["stop"])
}

func TestCoreNeverLoosensStop(t *testing.T) {
	fb := &fakeBroker{open: []exchange.OpenOrder{{OrderID: "STOP1", Price: 105000, ReduceOnly: true}}}
	c := coreRunner()
	c.TrackStop("STOP1", 105000)

	_, err := c.Desired(context.Background(), coreEnv(fb, fixtureWindow()))
	require.NoError(t, err)
	assert.Empty(t, fb.modifies)
}

func TestCoreRequiresOneFullTick(t *testing.T) {
	fb := &fakeBroker{open: []exchange.OpenOrder{{OrderID: "STOP1", Price: 105107, ReduceOnly: true}}}
	c := coreRunner()
	c.TrackStop("STOP1", 105107)

	_, err := c.Desired(context.Background(), coreEnv(fb, fixtureWindow()))
	require.NoError(t, err)
	assert.Empty(t, fb.modifies)

	c.TrackStop("STOP1", 105107.5)
	_, err = c.Desired(context.Background(), coreEnv(fb, fixtureWindow()))
	require.NoError(t, err)
	assert.Len(t, fb.modifies, 1)
}

func TestCoreWaitsForFullBarWindow(t *testing.T) {
	fb := &fakeBroker{open: []exchange.OpenOrder{{OrderID: "STOP1", Price: 105200, ReduceOnly: true}}}
	c := coreRunner()
	c.TrackStop("STOP1", 105200)

	w := indicators.NewBarWindow(15)
	w.Load(fixtureWindow().Bars()[1:], barT0)
	_, err := c.Desired(context.Background(), coreEnv(fb, w))
	require.NoError(t, err)
	assert.Empty(t, fb.modifies)
}

func TestCoreModifyFailureKeepsStop(t *testing.T) {
	fb := &fakeBroker{
		open:      []exchange.OpenOrder{{OrderID: "STOP1", Price: 105200, ReduceOnly: true}},
		modifyErr: errBoom,
	}
	c := coreRunner()
	c.TrackStop("STOP1", 105200)

	_, err := c.Desired(context.Background(), coreEnv(fb, fixtureWindow()))
	require.ErrorIs(t, err, errBoom)
	_, px, _ := c.TrackedStop()
	assert.Equal(t, 105200.0, px)
}

func TestCoreVanishedStopIsReplacedBeforeTrailing(t *testing.T) {
	fb := &fakeBroker{}
	c := coreRunner()
	c.TrackStop("GONE", 105200)
	e, st := newTestEngine(t, fb, 25, c)
	e.Bars().Load(fixtureWindow().Bars(), barT0)
	st.SetPosition(5, time.Now())
	st.SetPrice(104300, time.Now())

	e.Evaluate(context.Background())
	assert.Empty(t, fb.modifies)
	require.Contains(t, fb.submittedPrices(), 105200.0)
	id, px, _ := c.TrackedStop()
	assert.NotEqual(t, "GONE", id)
	assert.Equal(t, 105200.0, px)

	e.Evaluate(context.Background())
	require.Len(t, fb.modifies, 1)
	assert.Equal(t, id, fb.modifies[0].ID)
}

func TestCoreSellSideTrailsUp(t *testing.T) {
	fb := &fakeBroker{open: []exchange.OpenOrder{{OrderID: "STOP1", Price: 103000, ReduceOnly: true}}}
	c := coreRunner()
	c.ExitSide = exchange.Sell
	c.TrackStop("STOP1", 103000)

	_, err := c.Desired(context.Background(), coreEnv(fb, fixtureWindow()))
	require.NoError(t, err)
	// 104100 low - 507.14 ATR = 103592.86 -> 103593
	require.Len(t, fb.modifies, 1)
	assert.Equal(t, 103593.0, fb.modifies[0].Price)
}

func TestProperty_CoreStopNeverRises(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("tracked stop prices form a non-increasing series", prop.ForAll(
		func(highs []float64, ranges []float64) bool {
			fb := &fakeBroker{}
			c := coreRunner()
			env := coreEnv(fb, indicators.NewBarWindow(15))
			at := barT0
			prev := 0.0
			for i, h := range highs {
				at = at.Add(time.Minute)
				env.Bars.RecordTick(h, at)
				env.Bars.RecordTick(h-ranges[i%len(ranges)], at.Add(time.Second))
				if _, err := c.Desired(context.Background(), env); err != nil {
					return false
				}
				_, px, ok := c.TrackedStop()
				if !ok {
					return false
				}
				if prev != 0 && px > prev {
					return false
				}
				prev = px
			}
			return true
		},
		gen.SliceOfN(40, gen.Float64Range(100000, 110000)),
		gen.SliceOfN(5, gen.Float64Range(0, 800)),
	))

	properties.TestingRun(t)
}

func TestCoreLogsDollarRiskOfStop(t *testing.T) {
	var buf bytes.Buffer
	fb := &fakeBroker{}
	c := coreRunner()
	env := coreEnv(fb, indicators.NewBarWindow(15))
	env.Log = zerolog.New(&buf)

	_, err := c.Desired(context.Background(), env)
	require.NoError(t, err)

	// 105200 vs 104300 is 1800 ticks of $0.50 on 5 contracts
	assert.Contains(t, buf.String(), `"message":"core stop placed"`)
	assert.Contains(t, buf.String(), `"risk_usd":4500`)
}
