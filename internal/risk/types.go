package risk

import (
	"sync"
	"time"
)

// Limits defines static configuration for risk controls.
type Limits struct {
	PositionLimit int // hard ceiling on |position|; evaluation pauses above it
}

// State is the process-wide engine state shared by the position poller and
// the market-data loop.
type State struct {
	mu sync.RWMutex

	position   int       // net signed contracts
	positionAt time.Time // last successful position poll
	lastPrice  float64   // most recent trade
	hasPrice   bool      // false until the first tick
	lastTickAt time.Time
}

// Snapshot is a consistent read of State.
type Snapshot struct {
	Position   int
	PositionAt time.Time
	LastPrice  float64
	HasPrice   bool
	LastTickAt time.Time
}
