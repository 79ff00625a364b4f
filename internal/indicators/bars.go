package indicators

import "time"

// Bar is a one-minute high/low/close aggregate.
type Bar struct {
	High  float64 `json:"high"`
	Low   float64 `json:"low"`
	Close float64 `json:"close"`
}

// BarWindow rolls ticks into wall-clock minute bars and keeps the newest
// capacity of them. It is owned by the tick-handling goroutine.
type BarWindow struct {
	bars     []Bar
	capacity int
	lastMin  int64
	started  bool
}

// NewBarWindow returns a window retaining at most capacity bars.
func NewBarWindow(capacity int) *BarWindow {
	if capacity < 1 {
		capacity = 1
	}
	return &BarWindow{capacity: capacity, bars: make([]Bar, 0, capacity)}
}

// RecordTick folds price at wall-clock t into the window. Skipped minutes are
// back-filled with flat bars at price.
func (w *BarWindow) RecordTick(price float64, t time.Time) {
	minute := t.Unix() / 60
	if !w.started {
		w.started = true
		w.lastMin = minute
		w.push(Bar{High: price, Low: price, Close: price})
		return
	}

	if minute > w.lastMin {
		for i := w.lastMin; i < minute; i++ {
			w.push(Bar{High: price, Low: price, Close: price})
		}
		w.lastMin = minute
		return
	}

	// same minute (or a clock step backwards): update the newest bar
	cur := &w.bars[len(w.bars)-1]
	if price > cur.High {
		cur.High = price
	}
	if price < cur.Low {
		cur.Low = price
	}
	cur.Close = price
}

func (w *BarWindow) push(b Bar) {
	if len(w.bars) == w.capacity {
		copy(w.bars, w.bars[1:])
		w.bars = w.bars[:len(w.bars)-1]
	}
	w.bars = append(w.bars, b)
}

// Len is the number of retained bars.
func (w *BarWindow) Len() int { return len(w.bars) }

// Capacity is the retention limit.
func (w *BarWindow) Capacity() int { return w.capacity }

// Last returns the newest bar.
func (w *BarWindow) Last() (Bar, bool) {
	if len(w.bars) == 0 {
		return Bar{}, false
	}
	return w.bars[len(w.bars)-1], true
}

// Bars returns a copy of the retained bars, oldest first.
func (w *BarWindow) Bars() []Bar {
	out := make([]Bar, len(w.bars))
	copy(out, w.bars)
	return out
}

// Load replaces the window contents, keeping the newest capacity bars. The
// next tick is treated as belonging to a new minute.
func (w *BarWindow) Load(bars []Bar, asOf time.Time) {
	if len(bars) > w.capacity {
		bars = bars[len(bars)-w.capacity:]
	}
	w.bars = append(w.bars[:0], bars...)
	w.started = len(w.bars) > 0
	w.lastMin = asOf.Unix() / 60
}
