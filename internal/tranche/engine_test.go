package tranche

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chidi150c/tranchebot/internal/exchange"
)

func scalpAdd() *Scalp {
	return &Scalp{
		Base: Base{TrancheName: "scalp_add", Contracts: 10, Status: Active},
		TP1:  103300, TP2: 102950, Stop: 104400,
	}
}

func coreRunner() *Core {
	return &Core{
		Base:        Base{TrancheName: "core_runner", Contracts: 5, Status: Active},
		InitialStop: 105200,
		Targets:     []float64{98000.2, 95000},
	}
}

func TestScalpEntryPlacesOneOrderPerLeg(t *testing.T) {
	fb := &fakeBroker{}
	e, st := newTestEngine(t, fb, 25, scalpAdd())
	st.SetPosition(10, time.Now())
	st.SetPrice(103350, time.Now())

	e.Evaluate(context.Background())

	require.Len(t, fb.submits, 3)
	assert.ElementsMatch(t, []float64{103300, 102950, 104400}, fb.submittedPrices())
	for _, s := range fb.submits {
		assert.True(t, s.ReduceOnly)
		assert.Equal(t, 10, s.Qty)
	}
	assert.Empty(t, fb.cancels)
}

func TestScalpRoundsConfiguredPrices(t *testing.T) {
	s := scalpAdd()
	s.TP1 = 103300.2
	legs, err := s.Desired(context.Background(), &Env{Instrument: mbt})
	require.NoError(t, err)
	assert.Equal(t, Legs{"tp1": 103300, "tp2": 102950, "stop": 104400}, legs)
}

func TestPositionLimitBlocksAllOrderActivity(t *testing.T) {
	fb := &fakeBroker{open: []exchange.OpenOrder{{OrderID: "X", Price: 104000, ReduceOnly: true}}}
	e, st := newTestEngine(t, fb, 25, scalpAdd(), coreRunner())
	st.SetPosition(30, time.Now())
	st.SetPrice(103350, time.Now())

	e.Evaluate(context.Background())

	assert.Zero(t, fb.calls())
	assert.Zero(t, fb.lists)
}

func TestNoEvaluationBeforeFirstTick(t *testing.T) {
	fb := &fakeBroker{}
	e, st := newTestEngine(t, fb, 25, scalpAdd())
	st.SetPosition(10, time.Now())

	e.Evaluate(context.Background())
	assert.Zero(t, fb.lists)
}

func TestUnfilledOrInactiveTranchesAreSkipped(t *testing.T) {
	fb := &fakeBroker{}
	s := scalpAdd()
	c := coreRunner()
	c.Status = Inactive
	e, st := newTestEngine(t, fb, 25, s, c)
	st.SetPrice(103350, time.Now())

	st.SetPosition(-9, time.Now())
	e.Evaluate(context.Background())
	assert.Zero(t, fb.calls())

	st.SetPosition(-10, time.Now())
	e.Evaluate(context.Background())
	assert.Len(t, fb.submits, 3)
	_, _, tracked := c.TrackedStop()
	assert.False(t, tracked)
}

func TestTranchesSharingInstrumentConverge(t *testing.T) {
	fb := &fakeBroker{}
	e, st := newTestEngine(t, fb, 25, scalpAdd(), coreRunner())
	st.SetPosition(15, time.Now())
	st.SetPrice(103350, time.Now())

	e.Evaluate(context.Background())
	assert.Empty(t, fb.cancels, "tranches must not cancel each other's legs")
	// scalp: 3 legs; core: initial stop + 2 targets
	assert.Len(t, fb.submits, 6)
	assert.Contains(t, fb.submittedPrices(), 98000.0)

	before := fb.calls()
	e.Evaluate(context.Background())
	assert.Equal(t, before, fb.calls())
}

type failingStrategy struct{ Base }

func (f *failingStrategy) Desired(context.Context, *Env) (Legs, error) { return nil, errBoom }

func TestStrategyErrorAbandonsTick(t *testing.T) {
	fb := &fakeBroker{}
	bad := &failingStrategy{Base{TrancheName: "bad", Contracts: 1, Status: Active}}
	e, st := newTestEngine(t, fb, 25, scalpAdd(), bad)
	st.SetPosition(10, time.Now())
	st.SetPrice(103350, time.Now())

	assert.NotPanics(t, func() { e.Evaluate(context.Background()) })
	assert.Zero(t, fb.calls())

	e2, st2 := newTestEngine(t, fb, 25, scalpAdd())
	st2.SetPosition(10, time.Now())
	st2.SetPrice(103350, time.Now())
	e2.Evaluate(context.Background())
	assert.Len(t, fb.submits, 3, "next evaluation starts from scratch")
}

func TestOnTickFeedsStateAndBars(t *testing.T) {
	fb := &fakeBroker{}
	e, st := newTestEngine(t, fb, 25, scalpAdd())
	st.SetPosition(10, time.Now())
	at := time.Date(2025, 6, 11, 1, 16, 9, 0, time.UTC)

	e.OnTick(context.Background(), 103350, at)

	px, ok := st.LastPrice()
	require.True(t, ok)
	assert.Equal(t, 103350.0, px)
	assert.Equal(t, 1, e.Bars().Len())
	assert.Equal(t, 15, e.Bars().Capacity())
	assert.Len(t, fb.submits, 3)
}

func TestOnTickDropsUnusablePrices(t *testing.T) {
	fb := &fakeBroker{}
	e, st := newTestEngine(t, fb, 25, scalpAdd(), coreRunner())
	st.SetPosition(10, time.Now())
	at := time.Date(2025, 6, 11, 1, 16, 9, 0, time.UTC)

	for _, px := range []float64{math.NaN(), math.Inf(1), math.Inf(-1), 0, -1} {
		e.OnTick(context.Background(), px, at)
	}

	_, ok := st.LastPrice()
	assert.False(t, ok)
	assert.Zero(t, e.Bars().Len())
	assert.Zero(t, fb.calls())
	assert.Zero(t, fb.lists)
}
