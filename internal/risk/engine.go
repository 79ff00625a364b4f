package risk

import "time"

// NewState returns an empty state: flat, no price yet.
func NewState() *State { return &State{} }

// SetPosition records a polled net position.
func (s *State) SetPosition(qty int, at time.Time) {
	s.mu.Lock()
	s.position, s.positionAt = qty, at
	s.mu.Unlock()
}

// Position is the last polled net position.
func (s *State) Position() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.position
}

// SetPrice records the latest trade price.
func (s *State) SetPrice(px float64, at time.Time) {
	s.mu.Lock()
	s.lastPrice, s.hasPrice, s.lastTickAt = px, true, at
	s.mu.Unlock()
}

// LastPrice returns the latest trade price and whether one has arrived.
func (s *State) LastPrice() (float64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastPrice, s.hasPrice
}

func (s *State) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{
		Position:   s.position,
		PositionAt: s.positionAt,
		LastPrice:  s.lastPrice,
		HasPrice:   s.hasPrice,
		LastTickAt: s.lastTickAt,
	}
}

// Breached reports whether |position| exceeds the hard limit. A limit of
// zero or less disables the guard.
func (l Limits) Breached(position int) bool {
	if l.PositionLimit <= 0 {
		return false
	}
	if position < 0 {
		position = -position
	}
	return position > l.PositionLimit
}

// Entered reports whether |position| has reached qty.
func Entered(position, qty int) bool {
	if position < 0 {
		position = -position
	}
	return position >= qty
}
