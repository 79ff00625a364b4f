package feed

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/chidi150c/tranchebot/internal/exchange"
	"github.com/chidi150c/tranchebot/internal/risk"
)

// PositionPoller refreshes the shared net position on a fixed interval.
type PositionPoller struct {
	Source   exchange.Positions
	State    *risk.State
	Contract string        // symbol prefix to match, e.g. MBTM25
	Interval time.Duration
	Timeout  time.Duration // per poll; defaults to 5s
	Log      zerolog.Logger
}

// Run polls until ctx is cancelled. Failures are logged and retried on the
// next interval.
func (p *PositionPoller) Run(ctx context.Context) error {
	interval := p.Interval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	log := p.Log.With().Str("component", "positions").Logger()

	for {
		if err := p.PollOnce(ctx); err != nil {
			log.Warn().Err(err).Msg("pos poll error")
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
	}
}

// PollOnce performs a single query and applies the first matching row. A
// report with no matching row leaves the position untouched.
func (p *PositionPoller) PollOnce(ctx context.Context) error {
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	rows, err := p.Source.Positions(ctx)
	if err != nil {
		return err
	}
	for _, row := range rows {
		if strings.HasPrefix(row.Symbol, p.Contract) {
			prev := p.State.Position()
			p.State.SetPosition(row.Qty, time.Now())
			if prev != row.Qty {
				p.Log.Info().Str("component", "positions").Str("symbol", row.Symbol).Int("from", prev).Int("to", row.Qty).Msg("position changed")
			}
			return nil
		}
	}
	return nil
}
