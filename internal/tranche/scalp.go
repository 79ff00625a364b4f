package tranche

import "context"

// Scalp holds two take-profits and a stop at fixed prices.
type Scalp struct {
	Base
	TP1  float64
	TP2  float64
	Stop float64
}

func (s *Scalp) Desired(_ context.Context, env *Env) (Legs, error) {
	ins := env.Instrument
	return Legs{
		"tp1":  ins.RoundToTick(s.TP1),
		"tp2":  ins.RoundToTick(s.TP2),
		"stop": ins.RoundToTick(s.Stop),
	}, nil
}
