// Package catalog defines the event/interval history consumed by the fitting engine.
package catalog

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

// NoPrimary marks a history without a primary event.
const NoPrimary = -1

// ErrInvalidHistory is wrapped by every validation failure.
var ErrInvalidHistory = errors.New("invalid history")

// Event is a discrete rupture.
type Event struct {
	Time float64 `toml:"time"`
	Mag  float64 `toml:"mag"`
	// Mc is the detection threshold in force immediately before the event.
	Mc float64 `toml:"mc"`
}

// Interval is a filler segment of below-threshold activity.
type Interval struct {
	Begin float64 `toml:"begin"`
	End   float64 `toml:"end"`
	Mc    float64 `toml:"mc"`
}

// Duration returns End - Begin.
func (iv Interval) Duration() float64 {
	return iv.End - iv.Begin
}

// Window selects the target events and intervals of the likelihood sum.
// Both ranges are half-open.
type Window struct {
	EventBegin    int `toml:"event_begin"`
	EventEnd      int `toml:"event_end"`
	IntervalBegin int `toml:"interval_begin"`
	IntervalEnd   int `toml:"interval_end"`
}

// History is an ordered sequence of events and intervals.
type History struct {
	Events    []Event
	Intervals []Interval
	Primary   int
	MagCat    float64
	Window    Window

	intervalsBefore []int
	eventsBefore    []int
	prepared        bool
}

// FullWindow returns a window covering every event and interval.
func (h *History) FullWindow() Window {
	return Window{
		EventBegin:    0,
		EventEnd:      len(h.Events),
		IntervalBegin: 0,
		IntervalEnd:   len(h.Intervals),
	}
}

// EventCount returns the number of events.
func (h *History) EventCount() int {
	return len(h.Events)
}

// IntervalCount returns the number of intervals.
func (h *History) IntervalCount() int {
	return len(h.Intervals)
}

// HasPrimary reports whether a primary event is designated.
func (h *History) HasPrimary() bool {
	return h.Primary != NoPrimary
}

// Validate checks ordering, ranges and the window.
func (h *History) Validate() error {
	for i, ev := range h.Events {
		if !finite(ev.Time) || !finite(ev.Mag) || !finite(ev.Mc) {
			return fmt.Errorf("event %d has a non-finite value: %w", i, ErrInvalidHistory)
		}
		if i > 0 && ev.Time < h.Events[i-1].Time {
			return fmt.Errorf("event %d at %g precedes event %d at %g: %w", i, ev.Time, i-1, h.Events[i-1].Time, ErrInvalidHistory)
		}
	}
	for j, iv := range h.Intervals {
		if !finite(iv.Begin) || !finite(iv.End) || !finite(iv.Mc) {
			return fmt.Errorf("interval %d has a non-finite value: %w", j, ErrInvalidHistory)
		}
		if iv.End <= iv.Begin {
			return fmt.Errorf("interval %d has end %g <= begin %g: %w", j, iv.End, iv.Begin, ErrInvalidHistory)
		}
		if j > 0 && iv.Begin < h.Intervals[j-1].End {
			return fmt.Errorf("interval %d overlaps interval %d: %w", j, j-1, ErrInvalidHistory)
		}
	}
	for i, ev := range h.Events {
		j := sort.Search(len(h.Intervals), func(k int) bool {
			return h.Intervals[k].End > ev.Time
		})
		if j < len(h.Intervals) && h.Intervals[j].Begin < ev.Time {
			return fmt.Errorf("event %d at %g lies inside interval %d: %w", i, ev.Time, j, ErrInvalidHistory)
		}
	}
	if h.Primary < NoPrimary || h.Primary >= len(h.Events) {
		return fmt.Errorf("primary index %d out of range: %w", h.Primary, ErrInvalidHistory)
	}
	if !finite(h.MagCat) {
		return fmt.Errorf("catalog magnitude is not finite: %w", ErrInvalidHistory)
	}
	w := h.Window
	if w.EventBegin < 0 || w.EventEnd > len(h.Events) || w.EventBegin > w.EventEnd {
		return fmt.Errorf("event window [%d,%d) out of range: %w", w.EventBegin, w.EventEnd, ErrInvalidHistory)
	}
	if w.IntervalBegin < 0 || w.IntervalEnd > len(h.Intervals) || w.IntervalBegin > w.IntervalEnd {
		return fmt.Errorf("interval window [%d,%d) out of range: %w", w.IntervalBegin, w.IntervalEnd, ErrInvalidHistory)
	}
	return nil
}

// Prepare validates the history and computes the event/interval index mappings.
// It must be called before the history is handed to the engine.
func (h *History) Prepare() error {
	if err := h.Validate(); err != nil {
		return err
	}
	h.intervalsBefore = make([]int, len(h.Events))
	for i, ev := range h.Events {
		h.intervalsBefore[i] = sort.Search(len(h.Intervals), func(k int) bool {
			return h.Intervals[k].End > ev.Time
		})
	}
	h.eventsBefore = make([]int, len(h.Intervals))
	for j, iv := range h.Intervals {
		h.eventsBefore[j] = sort.Search(len(h.Events), func(k int) bool {
			return h.Events[k].Time > iv.Begin
		})
	}
	h.prepared = true
	return nil
}

// Prepared reports whether Prepare succeeded.
func (h *History) Prepared() bool {
	return h.prepared
}

// IntervalsBefore returns the number of intervals that end no later than event i.
func (h *History) IntervalsBefore(i int) int {
	return h.intervalsBefore[i]
}

// EventsBefore returns the number of events at or before the start of interval j.
func (h *History) EventsBefore(j int) int {
	return h.eventsBefore[j]
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
