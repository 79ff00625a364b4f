package guards

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/chidi150c/tranchebot/internal/exchange"
)

type breakerState int

const (
	breakerClosed breakerState = iota
	breakerHalfOpen
	breakerOpen
)

var (
	ErrBreakerOpen = errors.New("circuit breaker open")
	ErrRateLimited = errors.New("order rate limit hit")
)

var (
	metricOrdersAttempted  = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "bot_orders_attempted_total", Help: "Order actions the bot tried (submit/modify/cancel)"}, []string{"action"})
	metricOrdersPlaced     = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "bot_orders_placed_total", Help: "Order actions accepted by the broker"}, []string{"action"})
	metricOrdersFailed     = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "bot_orders_failed_total", Help: "Order actions that failed after retries"}, []string{"action"})
	metricOrdersSuppressed = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "bot_orders_suppressed_total", Help: "Order actions blocked by the safety layer (rate/breaker)"}, []string{"action"})
	metricBreakerState     = prometheus.NewGauge(prometheus.GaugeOpts{Name: "bot_breaker_state", Help: "0=closed, 1=half_open, 2=open"})
	metricRateWindow       = prometheus.NewGauge(prometheus.GaugeOpts{Name: "bot_orders_in_last_minute", Help: "Submits counted in the current minute window"})
)

func init() {
	prometheus.MustRegister(
		metricOrdersAttempted, metricOrdersPlaced, metricOrdersFailed,
		metricOrdersSuppressed, metricBreakerState, metricRateWindow,
	)
	metricBreakerState.Set(0)
}

// Options tunes SafeOrders. Zero values disable the rate cap and retries.
type Options struct {
	PerMinuteCap     int
	MaxRetries       int
	Backoff          time.Duration
	BreakerThreshold int
	BreakerCooldown  time.Duration
	HalfOpenProbes   int
}

// SafeOrders wraps an order endpoint with a per-minute submit cap, optional
// retries, and a circuit breaker shared by all write actions. Listing open
// orders passes straight through.
type SafeOrders struct {
	inner exchange.Orders
	log   zerolog.Logger
	now   func() time.Time

	// Rate limiting (simple sliding window)
	rateMu       sync.Mutex
	orderTimes   []time.Time
	perMinuteCap int

	// Retries
	maxRetries int
	backoff    time.Duration

	// Circuit breaker
	bMu        sync.Mutex
	bState     breakerState
	failStreak int
	threshold  int
	cooldown   time.Duration
	openedAt   time.Time
	halfProbes int
	halfMax    int
}

func NewSafeOrders(inner exchange.Orders, opt Options, log zerolog.Logger) *SafeOrders {
	if opt.BreakerThreshold < 1 {
		opt.BreakerThreshold = 3
	}
	if opt.HalfOpenProbes < 1 {
		opt.HalfOpenProbes = 1
	}
	if opt.BreakerCooldown <= 0 {
		opt.BreakerCooldown = 30 * time.Second
	}
	return &SafeOrders{
		inner:        inner,
		log:          log.With().Str("component", "guards").Logger(),
		now:          time.Now,
		perMinuteCap: opt.PerMinuteCap,
		maxRetries:   opt.MaxRetries,
		backoff:      opt.Backoff,
		bState:       breakerClosed,
		threshold:    opt.BreakerThreshold,
		cooldown:     opt.BreakerCooldown,
		halfMax:      opt.HalfOpenProbes,
	}
}

func (s *SafeOrders) OpenOrders(ctx context.Context, symbol string) ([]exchange.OpenOrder, error) {
	return s.inner.OpenOrders(ctx, symbol)
}

func (s *SafeOrders) Submit(ctx context.Context, req exchange.SubmitRequest) (string, error) {
	var id string
	err := s.guard(ctx, "submit", true, func() error {
		var err error
		id, err = s.inner.Submit(ctx, req)
		return err
	})
	return id, err
}

func (s *SafeOrders) Modify(ctx context.Context, orderID string, price float64) error {
	return s.guard(ctx, "modify", false, func() error { return s.inner.Modify(ctx, orderID, price) })
}

func (s *SafeOrders) Cancel(ctx context.Context, orderID string) error {
	return s.guard(ctx, "cancel", false, func() error { return s.inner.Cancel(ctx, orderID) })
}

// BreakerOpen reports whether write actions are currently being refused.
func (s *SafeOrders) BreakerOpen() bool {
	s.bMu.Lock()
	defer s.bMu.Unlock()
	return s.bState == breakerOpen
}

func (s *SafeOrders) guard(ctx context.Context, action string, counted bool, call func() error) error {
	now := s.now()
	metricOrdersAttempted.WithLabelValues(action).Inc()

	if !s.allowBreaker(now) {
		metricOrdersSuppressed.WithLabelValues(action).Inc()
		return ErrBreakerOpen
	}
	if counted && s.rateExceeded(now) {
		metricOrdersSuppressed.WithLabelValues(action).Inc()
		return ErrRateLimited
	}

	var err error
	for i := 0; i <= s.maxRetries; i++ {
		if err = call(); err == nil {
			s.noteSuccess(now, counted)
			metricOrdersPlaced.WithLabelValues(action).Inc()
			return nil
		}
		if i == s.maxRetries {
			break
		}
		select {
		case <-ctx.Done():
			s.noteFailure(now)
			metricOrdersFailed.WithLabelValues(action).Inc()
			return ctx.Err()
		case <-time.After(time.Duration(i+1) * s.backoff):
		}
	}
	s.noteFailure(now)
	metricOrdersFailed.WithLabelValues(action).Inc()
	return err
}

// ===== Helpers =====

func (s *SafeOrders) rateExceeded(now time.Time) bool {
	s.rateMu.Lock()
	defer s.rateMu.Unlock()
	oneMin := now.Add(-1 * time.Minute)
	// keep only recent timestamps
	j := 0
	for _, t := range s.orderTimes {
		if t.After(oneMin) {
			s.orderTimes[j] = t
			j++
		}
	}
	s.orderTimes = s.orderTimes[:j]
	metricRateWindow.Set(float64(len(s.orderTimes)))
	return s.perMinuteCap > 0 && len(s.orderTimes) >= s.perMinuteCap
}

func (s *SafeOrders) rateNote(t time.Time) {
	s.rateMu.Lock()
	s.orderTimes = append(s.orderTimes, t)
	metricRateWindow.Set(float64(len(s.orderTimes)))
	s.rateMu.Unlock()
}

func (s *SafeOrders) allowBreaker(now time.Time) bool {
	s.bMu.Lock()
	defer s.bMu.Unlock()

	switch s.bState {
	case breakerClosed:
		return true
	case breakerOpen:
		// move to half-open after cooldown
		if now.Sub(s.openedAt) >= s.cooldown {
			s.bState = breakerHalfOpen
			s.halfProbes = 1
			metricBreakerState.Set(1)
			s.log.Info().Msg("breaker half-open; probing")
			return true
		}
		return false
	case breakerHalfOpen:
		if s.halfProbes < s.halfMax {
			s.halfProbes++
			return true
		}
		return false
	default:
		return false
	}
}

func (s *SafeOrders) noteSuccess(now time.Time, counted bool) {
	if counted {
		s.rateNote(now)
	}

	s.bMu.Lock()
	defer s.bMu.Unlock()
	switch s.bState {
	case breakerClosed:
		s.failStreak = 0
	case breakerHalfOpen:
		s.bState = breakerClosed
		s.failStreak = 0
		metricBreakerState.Set(0)
		s.log.Info().Msg("breaker closed")
	case breakerOpen:
		// allowBreaker blocks calls while open
	}
}

func (s *SafeOrders) noteFailure(now time.Time) {
	s.bMu.Lock()
	defer s.bMu.Unlock()

	switch s.bState {
	case breakerClosed:
		s.failStreak++
		if s.failStreak >= s.threshold {
			s.openedAt = now
			s.bState = breakerOpen
			metricBreakerState.Set(2)
			s.log.Warn().Int("failures", s.failStreak).Dur("cooldown", s.cooldown).Msg("breaker opened")
		}
	case breakerHalfOpen:
		// failed probe -> reopen immediately
		s.openedAt = now
		s.bState = breakerOpen
		s.failStreak = s.threshold
		metricBreakerState.Set(2)
		s.log.Warn().Msg("breaker probe failed; reopened")
	case breakerOpen:
		s.openedAt = now
	}
}
