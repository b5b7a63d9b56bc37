package engine

import (
	"fmt"
	"math"
)

// MagExpStage holds everything that depends only on (b, alpha).
type MagExpStage struct {
	fitter *Fitter
	built  bool

	b     float64
	alpha float64
	q     float64

	// Per event, productivity at unit scale split by channel.
	prodNonPrimary []float64
	prodPrimary    []float64
	// Per event, partial likelihood scale; zero outside the window.
	eventLike []float64
	// Per interval, duration times partial likelihood scale; zero outside the window.
	intervalLike []float64
	// Per interval, partial target productivity scale.
	intervalProd []float64
}

func newMagExpStage(f *Fitter) *MagExpStage {
	return &MagExpStage{fitter: f}
}

// Build computes the stage for (b, alpha).
func (s *MagExpStage) Build(b, alpha float64) error {
	s.built = false
	if !(b > 0) || math.IsInf(b, 0) || math.IsNaN(alpha) || math.IsInf(alpha, 0) {
		return fmt.Errorf("b=%g alpha=%g: %w", b, alpha, ErrInvalidParams)
	}
	h := s.fitter.hist
	opts := s.fitter.opts
	r := opts.Range
	nEv := h.EventCount()
	nIv := h.IntervalCount()

	s.b = b
	s.alpha = alpha
	v := math.Ln10 * (alpha - b)
	s.q = math.Exp(v*(r.Ref-r.Min)) * expRatio(v, r.Sup-r.Ref) / expRatio(v, r.Max-r.Min)

	s.prodNonPrimary = growFloats(s.prodNonPrimary, nEv)
	s.prodPrimary = growFloats(s.prodPrimary, nEv)
	for i, ev := range h.Events {
		k := math.Pow(10, alpha*(ev.Mag-r.Ref))
		if i == h.Primary {
			s.prodNonPrimary[i] = 0
			s.prodPrimary[i] = k
		} else {
			s.prodNonPrimary[i] = k
			s.prodPrimary[i] = 0
		}
	}

	w := h.Window
	s.eventLike = growFloats(s.eventLike, nEv)
	clear(s.eventLike)
	if opts.Likelihood {
		for i := w.EventBegin; i < w.EventEnd; i++ {
			s.eventLike[i] = s.partialLike(h.Events[i].Mc, h.MagCat)
		}
	}

	s.intervalLike = growFloats(s.intervalLike, nIv)
	clear(s.intervalLike)
	if opts.Likelihood {
		for j := w.IntervalBegin; j < w.IntervalEnd; j++ {
			iv := h.Intervals[j]
			s.intervalLike[j] = iv.Duration() * s.partialLike(iv.Mc, h.MagCat)
		}
	}

	beta := b * math.Ln10
	base := beta * math.Pow(10, (alpha-b)*(r.Min-r.Ref))
	s.intervalProd = growFloats(s.intervalProd, nIv)
	for j, iv := range h.Intervals {
		if r.Min >= iv.Mc {
			s.intervalProd[j] = 0
			continue
		}
		s.intervalProd[j] = base * expRatio(v, iv.Mc-r.Min)
	}

	s.built = true
	return nil
}

// partialLike is the Gutenberg-Richter fraction of the reference-magnitude rate
// that falls in the window chosen by the LMR option.
func (s *MagExpStage) partialLike(mc, magCat float64) float64 {
	opts := s.fitter.opts
	lo := magCat
	if opts.LMR.timeDependent() {
		lo = mc
	}
	scale := math.Pow(10, s.b*(opts.Range.Ref-lo))
	if !opts.LMR.finiteUpper() {
		return scale
	}
	hi := math.Max(opts.Range.Max, lo+minMagWindow)
	return -scale * math.Expm1(-s.b*math.Ln10*(hi-lo))
}

// B returns the magnitude-distribution slope the stage was built for.
func (s *MagExpStage) B() float64 { return s.b }

// Alpha returns the magnitude-productivity coupling the stage was built for.
func (s *MagExpStage) Alpha() float64 { return s.alpha }

// Q returns the magnitude-range correction.
func (s *MagExpStage) Q() float64 { return s.q }

// TenQ returns 10^x * Q, the scale passed to ProductivityStage for a log-productivity x.
func (s *MagExpStage) TenQ(x float64) float64 {
	return math.Pow(10, x) * s.q
}

// ProdNonPrimary returns unit-scale productivity of every non-primary event.
func (s *MagExpStage) ProdNonPrimary() []float64 { return s.prodNonPrimary }

// ProdPrimary returns unit-scale productivity of the primary event, zero elsewhere.
func (s *MagExpStage) ProdPrimary() []float64 { return s.prodPrimary }

// EventLike returns the per-event partial likelihood scale.
func (s *MagExpStage) EventLike() []float64 { return s.eventLike }

// IntervalLike returns the per-interval integral weight.
func (s *MagExpStage) IntervalLike() []float64 { return s.intervalLike }

// IntervalProd returns the per-interval partial target productivity scale.
func (s *MagExpStage) IntervalProd() []float64 { return s.intervalProd }
