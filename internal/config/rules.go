// Package config loads the tranche rules document and broker credentials.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/chidi150c/tranchebot/internal/exchange"
	"github.com/chidi150c/tranchebot/internal/guards"
	"github.com/chidi150c/tranchebot/internal/indicators"
	"github.com/chidi150c/tranchebot/internal/risk"
	"github.com/chidi150c/tranchebot/internal/tranche"
)

// ErrInvalidRules wraps every validation failure.
var ErrInvalidRules = errors.New("invalid rules")

// DefaultRulesPath is where the daemon looks when no --rules flag is given.
const DefaultRulesPath = "config/futures_rules.yaml"

type Rules struct {
	Symbol        string        `yaml:"symbol"`
	Contract      string        `yaml:"contract"`
	PositionLimit int           `yaml:"position_limit"`
	TickSize      float64       `yaml:"tick_size"`
	TickValue     float64       `yaml:"tick_value"`
	Engine        EngineRules   `yaml:"engine"`
	Guards        GuardRules    `yaml:"guards"`
	Tranches      []TrancheRule `yaml:"tranches"`
}

type EngineRules struct {
	PollSec   int    `yaml:"poll_sec"`
	MDWS      string `yaml:"md_ws"`
	RestBase  string `yaml:"rest_base"`
	ATRPeriod int    `yaml:"atr_period"`
}

// GuardRules tunes the order safety layer. All fields are optional.
type GuardRules struct {
	PerMinuteCap       int `yaml:"per_minute_cap"`
	BreakerThreshold   int `yaml:"breaker_threshold"`
	BreakerCooldownSec int `yaml:"breaker_cooldown_sec"`
}

// TrancheRule declares one tranche. Exactly one of OCO and TrailingStop is set.
type TrancheRule struct {
	Name         string        `yaml:"name"`
	Qty          int           `yaml:"qty"`
	Status       string        `yaml:"status"`
	Side         string        `yaml:"side"`
	OCO          *OCORule      `yaml:"oco"`
	TrailingStop *TrailingRule `yaml:"trailing_stop"`
	HardTargets  []float64     `yaml:"hard_targets"`
}

type OCORule struct {
	TP1  float64 `yaml:"tp1"`
	TP2  float64 `yaml:"tp2"`
	Stop float64 `yaml:"stop"`
}

type TrailingRule struct {
	Initial float64 `yaml:"initial"`
}

// LoadRules reads, decodes and validates a rules file.
func LoadRules(path string) (*Rules, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules %s: %w", path, err)
	}
	r, err := ParseRules(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return r, nil
}

// ParseRules decodes a rules document, rejecting unknown fields, then fills
// defaults and validates.
func ParseRules(raw []byte) (*Rules, error) {
	var r Rules
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&r); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrInvalidRules, err)
	}
	r.applyDefaults()
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return &r, nil
}

func (r *Rules) applyDefaults() {
	if r.TickSize == 0 {
		r.TickSize = exchange.DefaultTickSize
	}
	if r.TickValue == 0 {
		r.TickValue = exchange.DefaultTickValue
	}
	if r.Engine.ATRPeriod == 0 {
		r.Engine.ATRPeriod = indicators.DefaultATRPeriod
	}
	for i := range r.Tranches {
		t := &r.Tranches[i]
		t.Status = strings.ToLower(strings.TrimSpace(t.Status))
		t.Side = strings.ToUpper(strings.TrimSpace(t.Side))
		if t.Side == "" {
			t.Side = string(exchange.Buy)
		}
	}
}

// Validate reports the first problem found, wrapped in ErrInvalidRules.
func (r *Rules) Validate() error {
	bad := func(format string, args ...any) error {
		return fmt.Errorf("%w: %s", ErrInvalidRules, fmt.Sprintf(format, args...))
	}
	switch {
	case r.Symbol == "":
		return bad("symbol is required")
	case r.Contract == "":
		return bad("contract is required")
	case r.PositionLimit <= 0:
		return bad("position_limit must be positive, got %d", r.PositionLimit)
	case r.TickSize <= 0:
		return bad("tick_size must be positive")
	case r.TickValue <= 0:
		return bad("tick_value must be positive")
	case r.Engine.PollSec <= 0:
		return bad("engine.poll_sec must be positive, got %d", r.Engine.PollSec)
	case r.Engine.ATRPeriod < 1:
		return bad("engine.atr_period must be at least 1")
	case len(r.Tranches) == 0:
		return bad("at least one tranche is required")
	}

	seen := make(map[string]bool, len(r.Tranches))
	for i, t := range r.Tranches {
		if t.Name == "" {
			return bad("tranches[%d]: name is required", i)
		}
		if seen[t.Name] {
			return bad("tranche %q declared twice", t.Name)
		}
		seen[t.Name] = true
		if t.Qty <= 0 {
			return bad("tranche %q: qty must be positive, got %d", t.Name, t.Qty)
		}
		switch tranche.Status(t.Status) {
		case tranche.Active, tranche.Inactive:
		default:
			return bad("tranche %q: unknown status %q", t.Name, t.Status)
		}
		switch exchange.Side(t.Side) {
		case exchange.Buy, exchange.Sell:
		default:
			return bad("tranche %q: unknown side %q", t.Name, t.Side)
		}
		if (t.OCO == nil) == (t.TrailingStop == nil) {
			return bad("tranche %q: exactly one of oco or trailing_stop is required", t.Name)
		}
		if t.OCO != nil && len(t.HardTargets) > 0 {
			return bad("tranche %q: hard_targets only apply to trailing_stop tranches", t.Name)
		}
	}
	return nil
}

// Instrument derives the contract and tick grid.
func (r *Rules) Instrument() exchange.Instrument {
	return exchange.Instrument{
		Root:      r.Symbol,
		Contract:  r.Contract,
		TickSize:  r.TickSize,
		TickValue: r.TickValue,
	}
}

func (r *Rules) Limits() risk.Limits { return risk.Limits{PositionLimit: r.PositionLimit} }

func (r *Rules) PollInterval() time.Duration { return time.Duration(r.Engine.PollSec) * time.Second }

func (r *Rules) GuardOptions() guards.Options {
	return guards.Options{
		PerMinuteCap:     r.Guards.PerMinuteCap,
		BreakerThreshold: r.Guards.BreakerThreshold,
		BreakerCooldown:  time.Duration(r.Guards.BreakerCooldownSec) * time.Second,
	}
}

// Strategies builds one strategy per tranche, in document order.
func (r *Rules) Strategies() []tranche.Strategy {
	out := make([]tranche.Strategy, 0, len(r.Tranches))
	for _, t := range r.Tranches {
		base := tranche.Base{
			TrancheName: t.Name,
			Contracts:   t.Qty,
			ExitSide:    exchange.Side(t.Side),
			Status:      tranche.Status(t.Status),
		}
		if t.OCO != nil {
			out = append(out, &tranche.Scalp{Base: base, TP1: t.OCO.TP1, TP2: t.OCO.TP2, Stop: t.OCO.Stop})
			continue
		}
		out = append(out, &tranche.Core{
			Base:        base,
			InitialStop: t.TrailingStop.Initial,
			Targets:     append([]float64(nil), t.HardTargets...),
		})
	}
	return out
}

// EngineConfig bundles everything tranche.New needs from the rules.
func (r *Rules) EngineConfig() tranche.Config {
	return tranche.Config{
		Instrument: r.Instrument(),
		Limits:     r.Limits(),
		ATRPeriod:  r.Engine.ATRPeriod,
		Strategies: r.Strategies(),
	}
}
