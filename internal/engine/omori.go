package engine

import (
	"fmt"
	"math"
)

// OmoriStage holds the kernel matrices for one (p, c) pair.
//
//	evEv: target event i, source event s < i          K(t_i - t_s)
//	evIv: target event i, source interval before t_i  integral over the source
//	ivEv: target interval j, source event at or before its start,
//	      integral over the target divided by its duration
//	ivIv: target interval j, source interval k < j, double integral divided by
//	      the target duration; self[j] is the same for k = j over tau <= t
type OmoriStage struct {
	fitter *Fitter
	built  bool

	p float64
	c float64

	evEv RaggedMatrix
	evIv RaggedMatrix
	ivEv RaggedMatrix
	ivIv RaggedMatrix
	self []float64
}

func newOmoriStage(f *Fitter) *OmoriStage {
	return &OmoriStage{fitter: f}
}

// Build computes every kernel matrix the fitter options require for (p, c).
// Matrices that are not required become zero matrices.
func (s *OmoriStage) Build(p, c float64) error {
	s.built = false
	if math.IsNaN(p) || math.IsInf(p, 0) || !(c > 0) || math.IsInf(c, 0) {
		return fmt.Errorf("p=%g c=%g: %w", p, c, ErrInvalidParams)
	}
	s.p = p
	s.c = c
	k := newOmoriKernel(p, c)
	h := s.fitter.hist
	opts := s.fitter.opts
	w := h.Window
	nEv := h.EventCount()
	nIv := h.IntervalCount()

	inEventWindow := func(i int) bool {
		return i >= w.EventBegin && i < w.EventEnd
	}

	if opts.needEvEv() {
		s.evEv.reset(nEv, func(i int) int {
			if !inEventWindow(i) {
				return 0
			}
			return i
		})
		for i := w.EventBegin; i < w.EventEnd; i++ {
			ti := h.Events[i].Time
			row := s.evEv.Row(i)
			for src := range row {
				row[src] = k.value(ti - h.Events[src].Time)
			}
		}
	} else {
		s.evEv.resetZero(nEv)
	}

	if opts.needEvIv() {
		s.evIv.reset(nEv, func(i int) int {
			if !inEventWindow(i) {
				return 0
			}
			return h.IntervalsBefore(i)
		})
		for i := w.EventBegin; i < w.EventEnd; i++ {
			ti := h.Events[i].Time
			row := s.evIv.Row(i)
			for src := range row {
				iv := h.Intervals[src]
				row[src] = k.single(ti, iv.Begin, iv.End)
			}
		}
	} else {
		s.evIv.resetZero(nEv)
	}

	if opts.needIvEv() {
		s.ivEv.reset(nIv, h.EventsBefore)
		for j := 0; j < nIv; j++ {
			iv := h.Intervals[j]
			inv := 1 / iv.Duration()
			row := s.ivEv.Row(j)
			for src := range row {
				ts := h.Events[src].Time
				row[src] = k.span(iv.Begin-ts+c, iv.End-ts+c) * inv
			}
		}
	} else {
		s.ivEv.resetZero(nIv)
	}

	s.self = growFloats(s.self, nIv)
	if opts.needIvIv() {
		s.ivIv.reset(nIv, func(j int) int { return j })
		for j := 0; j < nIv; j++ {
			iv := h.Intervals[j]
			d := iv.Duration()
			inv := 1 / d
			row := s.ivIv.Row(j)
			for src := range row {
				sv := h.Intervals[src]
				row[src] = k.double(iv.Begin, iv.End, sv.Begin, sv.End) * inv
			}
			s.self[j] = k.self(d) * inv
		}
	} else {
		s.ivIv.resetZero(nIv)
		clear(s.self)
	}

	s.built = true
	return nil
}

// P returns the decay exponent the stage was built for.
func (s *OmoriStage) P() float64 { return s.p }

// C returns the decay offset the stage was built for.
func (s *OmoriStage) C() float64 { return s.c }

// EventEvent returns the event-target/event-source matrix.
func (s *OmoriStage) EventEvent() *RaggedMatrix { return &s.evEv }

// EventInterval returns the event-target/interval-source matrix.
func (s *OmoriStage) EventInterval() *RaggedMatrix { return &s.evIv }

// IntervalEvent returns the interval-target/event-source density matrix.
func (s *OmoriStage) IntervalEvent() *RaggedMatrix { return &s.ivEv }

// IntervalInterval returns the interval-target/interval-source density matrix.
func (s *OmoriStage) IntervalInterval() *RaggedMatrix { return &s.ivIv }

// Self returns each interval's density contribution to itself.
func (s *OmoriStage) Self() []float64 { return s.self }
